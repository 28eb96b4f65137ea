package ml

import "math"

const (
	lrEpochs       = 200
	lrLearningRate = 0.1
)

// Logistic 是词袋特征上的逻辑回归，固定轮数梯度下降，结果确定可复现
type Logistic struct {
	vocab   map[string]int
	weights []float64
	bias    float64
	trained bool
}

func NewLogistic() *Logistic { return &Logistic{} }

func (m *Logistic) Name() string { return "lr" }

func (m *Logistic) features(text string) map[int]float64 {
	f := map[int]float64{}
	for _, tok := range tokenize(text) {
		if idx, ok := m.vocab[tok]; ok {
			f[idx]++
		}
	}
	// L2 归一化，词多的长文不至于压过短标题
	var norm float64
	for _, v := range f {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for k := range f {
			f[k] /= norm
		}
	}
	return f
}

func (m *Logistic) Train(samples []Sample) {
	if len(samples) == 0 {
		return
	}
	m.vocab = vocabOf(samples)
	m.weights = make([]float64, len(m.vocab))
	m.bias = 0

	feats := make([]map[int]float64, len(samples))
	for i, s := range samples {
		feats[i] = m.features(s.Text)
	}

	for epoch := 0; epoch < lrEpochs; epoch++ {
		for i, s := range samples {
			y := float64(clampLabel(s.Label))
			pred := m.score(feats[i])
			grad := pred - y
			for idx, v := range feats[i] {
				m.weights[idx] -= lrLearningRate * grad * v
			}
			m.bias -= lrLearningRate * grad
		}
	}
	m.trained = true
}

func (m *Logistic) score(f map[int]float64) float64 {
	z := m.bias
	for idx, v := range f {
		z += m.weights[idx] * v
	}
	return 1 / (1 + math.Exp(-z))
}

func (m *Logistic) Predict(texts []string) []int {
	out := make([]int, len(texts))
	if !m.trained {
		return out
	}
	for i, t := range texts {
		if m.score(m.features(t)) >= 0.5 {
			out[i] = 1
		}
	}
	return out
}
