// Package ml 提供文章相关性二分类：本地可训练的 nb / lr 模型，
// 以及代理到远端推理服务的 bert 模型。标签约定 1=相关 0=不相关。
package ml

import (
	"sort"
	"strings"
	"unicode"
)

// Sample 是一条训练样本，Text 通常为 "标题\n节选"
type Sample struct {
	Text  string
	Label int
}

// Model 是分类器的最小接口
type Model interface {
	Name() string
	Train(samples []Sample)
	Predict(texts []string) []int
}

// New 按名字建模型，未知名字回退 nb。
// bert 需要远端推理地址，没配置时同样回退 nb。
func New(name, endpoint string) Model {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "lr":
		return NewLogistic()
	case "bert":
		if endpoint != "" {
			return NewRemote(endpoint)
		}
		return NewNaiveBayes()
	default:
		return NewNaiveBayes()
	}
}

// tokenize 对中文取字符二元组、对 ASCII 取连续字母数字段。
// 中文无空格分词，bigram 是不引入分词依赖时的常用近似。
func tokenize(text string) []string {
	var tokens []string
	var ascii []rune
	var prev rune

	flushASCII := func() {
		if len(ascii) > 0 {
			tokens = append(tokens, strings.ToLower(string(ascii)))
			ascii = ascii[:0]
		}
	}

	for _, r := range text {
		if r <= unicode.MaxASCII {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				ascii = append(ascii, r)
			} else {
				flushASCII()
			}
			prev = 0
			continue
		}
		flushASCII()
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			prev = 0
			continue
		}
		tokens = append(tokens, string(r))
		if prev != 0 {
			tokens = append(tokens, string([]rune{prev, r}))
		}
		prev = r
	}
	flushASCII()
	return tokens
}

// vocabOf 汇总训练集词表并给出稳定的编号
func vocabOf(samples []Sample) map[string]int {
	set := map[string]bool{}
	for _, s := range samples {
		for _, tok := range tokenize(s.Text) {
			set[tok] = true
		}
	}
	words := make([]string, 0, len(set))
	for w := range set {
		words = append(words, w)
	}
	sort.Strings(words)
	vocab := make(map[string]int, len(words))
	for i, w := range words {
		vocab[w] = i
	}
	return vocab
}
