package ml

import "math"

// NaiveBayes 是多项式朴素贝叶斯，拉普拉斯平滑
type NaiveBayes struct {
	vocab      map[string]int
	logPrior   [2]float64
	tokenCount [2]map[string]int
	totalCount [2]int
	trained    bool
}

func NewNaiveBayes() *NaiveBayes { return &NaiveBayes{} }

func (m *NaiveBayes) Name() string { return "nb" }

func (m *NaiveBayes) Train(samples []Sample) {
	if len(samples) == 0 {
		return
	}
	m.vocab = vocabOf(samples)
	m.tokenCount = [2]map[string]int{{}, {}}
	m.totalCount = [2]int{}

	var classN [2]int
	for _, s := range samples {
		c := clampLabel(s.Label)
		classN[c]++
		for _, tok := range tokenize(s.Text) {
			m.tokenCount[c][tok]++
			m.totalCount[c]++
		}
	}
	n := float64(len(samples))
	for c := 0; c < 2; c++ {
		// 某一类为空时给极小先验，避免 log(0)
		if classN[c] == 0 {
			m.logPrior[c] = math.Inf(-1)
			continue
		}
		m.logPrior[c] = math.Log(float64(classN[c]) / n)
	}
	m.trained = true
}

func (m *NaiveBayes) Predict(texts []string) []int {
	out := make([]int, len(texts))
	if !m.trained {
		return out
	}
	v := float64(len(m.vocab))
	for i, t := range texts {
		var score [2]float64
		score[0], score[1] = m.logPrior[0], m.logPrior[1]
		for _, tok := range tokenize(t) {
			if _, known := m.vocab[tok]; !known {
				continue
			}
			for c := 0; c < 2; c++ {
				p := (float64(m.tokenCount[c][tok]) + 1) / (float64(m.totalCount[c]) + v)
				score[c] += math.Log(p)
			}
		}
		if score[1] > score[0] {
			out[i] = 1
		}
	}
	return out
}

func clampLabel(l int) int {
	if l > 0 {
		return 1
	}
	return 0
}
