package ml

import (
	"math"
	"math/rand"
)

const (
	minSamples = 20
	testRatio  = 0.2
	splitSeed  = 42
)

// Result 是一次训练评估的产出
type Result struct {
	OK        bool    `json:"ok"`
	Reason    string  `json:"reason,omitempty"`
	N         int     `json:"n,omitempty"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	NTrain    int     `json:"n_train"`
	NTest     int     `json:"n_test"`
	PassGate  bool    `json:"pass_gate"`
}

// TrainAndEval 按类分层切 80/20，训练后在测试集上算二分类 P/R/F1，
// F1 达到阈值才算过门禁。切分用固定种子，同一批样本结果可复现。
func TrainAndEval(model Model, samples []Sample, threshold float64) Result {
	n := len(samples)
	if n < minSamples {
		return Result{OK: false, Reason: "not-enough-samples", N: n}
	}

	train, test := stratifiedSplit(samples)
	model.Train(train)

	texts := make([]string, len(test))
	want := make([]int, len(test))
	for i, s := range test {
		texts[i] = s.Text
		want[i] = clampLabel(s.Label)
	}
	got := model.Predict(texts)

	p, r, f1 := binaryPRF(want, got)
	return Result{
		OK:        true,
		Precision: p,
		Recall:    r,
		F1:        f1,
		NTrain:    len(train),
		NTest:     len(test),
		PassGate:  f1 >= threshold,
	}
}

// stratifiedSplit 每个类别内部洗牌后按比例切出测试集，保持类别占比
func stratifiedSplit(samples []Sample) (train, test []Sample) {
	byClass := [2][]Sample{}
	for _, s := range samples {
		c := clampLabel(s.Label)
		byClass[c] = append(byClass[c], s)
	}
	rng := rand.New(rand.NewSource(splitSeed))
	for c := 0; c < 2; c++ {
		group := byClass[c]
		rng.Shuffle(len(group), func(i, j int) {
			group[i], group[j] = group[j], group[i]
		})
		nTest := int(math.Round(float64(len(group)) * testRatio))
		if nTest < 1 && len(group) > 1 {
			nTest = 1
		}
		if nTest >= len(group) && len(group) > 0 {
			nTest = len(group) - 1
		}
		test = append(test, group[:nTest]...)
		train = append(train, group[nTest:]...)
	}
	return train, test
}

// binaryPRF 以 1 为正类算精确率/召回率/F1，分母为零时按 0 处理
func binaryPRF(want, got []int) (precision, recall, f1 float64) {
	var tp, fp, fn int
	for i := range want {
		switch {
		case got[i] == 1 && want[i] == 1:
			tp++
		case got[i] == 1 && want[i] == 0:
			fp++
		case got[i] == 0 && want[i] == 1:
			fn++
		}
	}
	if tp+fp > 0 {
		precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		recall = float64(tp) / float64(tp+fn)
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return precision, recall, f1
}
