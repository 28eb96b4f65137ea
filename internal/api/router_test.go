package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/LJTian/MediaTrack/internal/config"
	"github.com/LJTian/MediaTrack/internal/crawler"
	"github.com/LJTian/MediaTrack/internal/ml"
	"github.com/LJTian/MediaTrack/internal/resolver"
	"github.com/LJTian/MediaTrack/internal/storage"
)

// fakeStore 内存实现 Store 接口
type fakeStore struct {
	samples    []ml.Sample
	state      storage.MLState
	latestRun  *storage.MLRun
	savedReq   crawler.Request
	savedItems []crawler.Article
	reviewRows []storage.CrawlResult
	runsLogged int
}

func (f *fakeStore) SaveCrawlResults(req crawler.Request, items []crawler.Article) (string, error) {
	f.savedReq = req
	f.savedItems = items
	return "run-test", nil
}

func (f *fakeStore) ListRunResults(runID string) ([]storage.CrawlResult, error) { return nil, nil }

func (f *fakeStore) SaveReviewResults(runID string, items []storage.ReviewItem, keywords, mediaNames []string) (int, error) {
	kws, _ := json.Marshal(keywords)
	media, _ := json.Marshal(mediaNames)
	n := 0
	for _, it := range items {
		if it.URL == "" {
			continue
		}
		label := it.HumanLabel
		f.reviewRows = append(f.reviewRows, storage.CrawlResult{
			RunID:          runID,
			Title:          it.Title,
			URL:            it.URL,
			PredictedLabel: it.PredictedLabel,
			HumanLabel:     &label,
			Keywords:       datatypes.JSON(kws),
			Media:          datatypes.JSON(media),
		})
		n++
	}
	return n, nil
}

func (f *fakeStore) GetTrainingData() ([]ml.Sample, error) { return f.samples, nil }

func (f *fakeStore) RecordMLRun(model string, threshold float64, res ml.Result) error {
	f.runsLogged++
	f.latestRun = &storage.MLRun{Model: model, F1: res.F1, Threshold: threshold, PassGate: res.PassGate}
	return nil
}

func (f *fakeStore) SetMLState(model string, threshold float64, activated bool) error {
	f.state = storage.MLState{ID: 1, ActiveModel: model, Threshold: threshold, Activated: activated}
	return nil
}

func (f *fakeStore) GetMLState() (storage.MLState, error) { return f.state, nil }

func (f *fakeStore) LatestMLRun(model string) (*storage.MLRun, error) {
	if f.latestRun != nil && f.latestRun.Model == model {
		return f.latestRun, nil
	}
	return nil, nil
}

// fetchMap 内存页面表
type fetchMap map[string]string

func (m fetchMap) Fetch(u string) (string, error) {
	if html, ok := m[u]; ok {
		return html, nil
	}
	return "", errors.New("页面不存在")
}

// resolverStore 实现 resolver.MappingStore
type resolverStore map[string]string

func (m resolverStore) GetSiteDomain(name string) (string, error) {
	if d, ok := m[name]; ok {
		return d, nil
	}
	return "", errors.New("不存在")
}

func (m resolverStore) AddSiteMapping(name, domain string) error {
	m[name] = domain
	return nil
}

func newTestServer(t *testing.T, store Store, manager *crawler.Manager) (*Server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Config{ExportDir: t.TempDir()}
	s := NewServer(store, manager, cfg)
	r := gin.New()
	s.RegisterRoutes(r)
	return s, r
}

func postJSON(t *testing.T, r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	bs, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("编码请求失败: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(bs))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	_, r := newTestServer(t, &fakeStore{}, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("health 应返回 200, got %d", w.Code)
	}
}

func TestCrawlEndpoint(t *testing.T) {
	urlA := "https://news.xkb.com.cn/2025/0812/100001.html"
	searchFn := func(query string, maxResults int) []string {
		if strings.HasPrefix(query, "site:news.xkb.com.cn") {
			return []string{urlA}
		}
		return nil
	}
	fetcher := fetchMap{
		urlA: `<html><head><title>广州城市更新再提速观察</title></head>
			<body><p>本周广州多个城市更新项目集中开工，旧改安置房建设与配套设施同步推进，进度明显加快。</p></body></html>`,
	}
	res := resolver.New(resolverStore{"测试媒体": "news.xkb.com.cn"}, func(string, int) []string { return nil }, "")
	manager := crawler.NewManager(res, searchFn, fetcher, false)

	store := &fakeStore{}
	_, r := newTestServer(t, store, manager)

	w := postJSON(t, r, "/api/v1/crawl", gin.H{
		"keywords":    []string{"城市更新"},
		"media_names": []string{"测试媒体"},
		"start_date":  "2025-08-01",
		"end_date":    "2025-08-31",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("crawl 应返回 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		RunID string            `json:"run_id"`
		Count int               `json:"count"`
		Items []crawler.Article `json:"items"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("响应解码失败: %v", err)
	}
	if resp.RunID != "run-test" || resp.Count != 1 {
		t.Fatalf("响应不对: %+v", resp)
	}
	if resp.Items[0].PredictedLabel != 1 {
		t.Fatalf("规则标签应为 1: %+v", resp.Items[0])
	}
	// strict_date 不传时默认严格
	if !store.savedReq.StrictDate {
		t.Fatalf("strict_date 默认应为严格模式")
	}
	if !store.savedReq.UseAdvanced {
		t.Fatalf("use_advanced 默认应为 true")
	}
}

func TestCrawlRequiresKeywords(t *testing.T) {
	_, r := newTestServer(t, &fakeStore{}, nil)
	w := postJSON(t, r, "/api/v1/crawl", gin.H{"media_names": []string{"x"}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("缺关键词应返回 400, got %d", w.Code)
	}
}

func TestReviewEndpoint(t *testing.T) {
	store := &fakeStore{}
	_, r := newTestServer(t, store, nil)

	w := postJSON(t, r, "/api/v1/review", gin.H{
		"run_id":      "run9",
		"keywords":    []string{"城市更新"},
		"media_names": []string{"测试媒体"},
		"items": []gin.H{
			{"title": "第一条", "url": "https://a.com/1.html", "human_label": 1},
			{"title": "没链接", "url": ""},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("review 应返回 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Saved  int    `json:"saved"`
		CSVURL string `json:"csv_url"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("响应解码失败: %v", err)
	}
	if resp.Saved != 1 {
		t.Fatalf("只应保存带 URL 的条目: %+v", resp)
	}
	if resp.CSVURL != "/download/exports/review_run9.csv" {
		t.Fatalf("csv_url 不对: %s", resp.CSVURL)
	}

	// 复核行要按 run 落库，带人工标签和请求上下文
	if len(store.reviewRows) != 1 {
		t.Fatalf("应存一条复核行, got %d", len(store.reviewRows))
	}
	row := store.reviewRows[0]
	if row.RunID != "run9" || row.HumanLabel == nil || *row.HumanLabel != 1 {
		t.Fatalf("复核行不对: %+v", row)
	}
	if !strings.Contains(string(row.Keywords), "城市更新") {
		t.Fatalf("复核行应携带关键词: %s", row.Keywords)
	}
}

func TestMLTrainInsufficientSamples(t *testing.T) {
	store := &fakeStore{samples: []ml.Sample{{Text: "样本", Label: 1}}}
	_, r := newTestServer(t, store, nil)

	w := postJSON(t, r, "/api/v1/ml/train", gin.H{"model": "nb"})
	if w.Code != http.StatusOK {
		t.Fatalf("train 应返回 200, got %d", w.Code)
	}
	var res ml.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("响应解码失败: %v", err)
	}
	if res.OK || res.Reason != "not-enough-samples" || res.N != 1 {
		t.Fatalf("样本不足应报原因: %+v", res)
	}
	if store.runsLogged != 0 {
		t.Fatalf("失败的评估不应入库")
	}
}

func TestMLActivateGate(t *testing.T) {
	store := &fakeStore{}
	_, r := newTestServer(t, store, nil)

	// 没有任何评估记录：拒绝激活
	w := postJSON(t, r, "/api/v1/ml/activate", gin.H{"model": "nb"})
	if w.Code != http.StatusConflict {
		t.Fatalf("未过门禁应返回 409, got %d", w.Code)
	}

	// 有过线的评估后放行
	store.latestRun = &storage.MLRun{Model: "nb", F1: 0.9, Threshold: 0.75, PassGate: true}
	w = postJSON(t, r, "/api/v1/ml/activate", gin.H{"model": "nb"})
	if w.Code != http.StatusOK {
		t.Fatalf("过线后应激活成功, got %d: %s", w.Code, w.Body.String())
	}
	if !store.state.Activated || store.state.ActiveModel != "nb" {
		t.Fatalf("状态未更新: %+v", store.state)
	}
	// 状态里要留下这次过线依据的门禁线
	if store.state.Threshold != 0.75 {
		t.Fatalf("门禁线未持久化: %+v", store.state)
	}
}

func TestDownloadRejectsTraversal(t *testing.T) {
	s, r := newTestServer(t, &fakeStore{}, nil)

	// 正常文件可以下载
	if err := os.WriteFile(filepath.Join(s.cfg.ExportDir, "ok.csv"), []byte("x"), 0o644); err != nil {
		t.Fatalf("写测试文件失败: %v", err)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/download/exports/ok.csv", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("正常文件应返回 200, got %d", w.Code)
	}

	// 路径穿越直接 400
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/download/exports/..%2Fsecret.txt", nil)
	r.ServeHTTP(w, req)
	if w.Code == http.StatusOK {
		t.Fatalf("路径穿越应被拦截, got %d", w.Code)
	}
}
