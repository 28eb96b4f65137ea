package ml

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Remote 把 bert 推理代理到外部服务（HTTP JSON），训练是空操作。
// 服务不可用时回退全 0，不让分类问题拖垮抓取主流程。
type Remote struct {
	Endpoint string
	Client   *http.Client
}

func NewRemote(endpoint string) *Remote {
	return &Remote{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (m *Remote) Name() string { return "bert" }

func (m *Remote) Train(samples []Sample) {}

type remoteRequest struct {
	Texts []string `json:"texts"`
}

type remoteResponse struct {
	Labels []int `json:"labels"`
}

func (m *Remote) Predict(texts []string) []int {
	out := make([]int, len(texts))
	if len(texts) == 0 {
		return out
	}
	labels, err := m.predict(texts)
	if err != nil {
		log.Printf("远端推理失败，回退全 0: %v", err)
		return out
	}
	copy(out, labels)
	return out
}

func (m *Remote) predict(texts []string) ([]int, error) {
	body, err := json.Marshal(remoteRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("编码推理请求失败: %w", err)
	}
	resp, err := m.Client.Post(m.Endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("请求推理服务失败: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("推理服务返回状态码 %d", resp.StatusCode)
	}
	var r remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("解码推理响应失败: %w", err)
	}
	if len(r.Labels) != len(texts) {
		return nil, fmt.Errorf("推理响应条数不符: got %d, want %d", len(r.Labels), len(texts))
	}
	return r.Labels, nil
}
