package api

import (
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/LJTian/MediaTrack/internal/config"
	"github.com/LJTian/MediaTrack/internal/crawler"
	"github.com/LJTian/MediaTrack/internal/export"
	"github.com/LJTian/MediaTrack/internal/ml"
	"github.com/LJTian/MediaTrack/internal/storage"
)

// Store 是 API 层用到的持久化能力，*storage.Store 即满足；测试时注入假实现
type Store interface {
	SaveCrawlResults(req crawler.Request, items []crawler.Article) (string, error)
	ListRunResults(runID string) ([]storage.CrawlResult, error)
	SaveReviewResults(runID string, items []storage.ReviewItem, keywords, mediaNames []string) (int, error)
	GetTrainingData() ([]ml.Sample, error)
	RecordMLRun(model string, threshold float64, res ml.Result) error
	SetMLState(model string, threshold float64, activated bool) error
	GetMLState() (storage.MLState, error)
	LatestMLRun(model string) (*storage.MLRun, error)
}

type Server struct {
	store   Store
	manager *crawler.Manager
	cfg     config.Config
}

func NewServer(store Store, manager *crawler.Manager, cfg config.Config) *Server {
	return &Server{store: store, manager: manager, cfg: cfg}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)
	r.GET("/download/exports/:name", s.downloadExport)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/crawl", s.crawl)
		v1.POST("/review", s.review)
		v1.POST("/export/xlsx", s.exportXLSX)
		v1.POST("/ml/train", s.mlTrain)
		v1.POST("/ml/activate", s.mlActivate)
		v1.GET("/ml/state", s.mlState)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type crawlRequest struct {
	Keywords    []string `json:"keywords" binding:"required"`
	MediaNames  []string `json:"media_names"`
	StartDate   string   `json:"start_date"`
	EndDate     string   `json:"end_date"`
	UseAdvanced *bool    `json:"use_advanced"` // 默认 true
	StrictDate  *int     `json:"strict_date"`  // 默认 1
	AllowWechat bool     `json:"allow_wechat"`
}

func (s *Server) crawl(c *gin.Context) {
	var body crawlRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "bad_request", "message": err.Error()})
		return
	}

	req := crawler.Request{
		Keywords:    body.Keywords,
		MediaNames:  body.MediaNames,
		StartDate:   body.StartDate,
		EndDate:     body.EndDate,
		UseAdvanced: body.UseAdvanced == nil || *body.UseAdvanced,
		StrictDate:  body.StrictDate == nil || *body.StrictDate != 0,
		AllowWechat: body.AllowWechat,
	}

	items := s.manager.Crawl(req)

	// 有激活的模型时用模型预测覆盖规则标签
	if st, err := s.store.GetMLState(); err == nil && st.Activated && st.ActiveModel != "" {
		s.applyModel(st.ActiveModel, items)
	}

	runID, err := s.store.SaveCrawlResults(req, items)
	if err != nil {
		log.Printf("保存抓取结果失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": "internal_error", "message": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":   "ok",
		"run_id": runID,
		"count":  len(items),
		"items":  items,
	})
}

// applyModel 用训练样本现炼一个模型给本批结果打标，失败时保留规则标签
func (s *Server) applyModel(name string, items []crawler.Article) {
	if len(items) == 0 {
		return
	}
	samples, err := s.store.GetTrainingData()
	if err != nil || len(samples) == 0 {
		log.Printf("读取训练样本失败，保留规则标签: %v", err)
		return
	}
	model := ml.New(name, s.cfg.MLEndpoint)
	model.Train(samples)

	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.Title + "\n" + it.Excerpt
	}
	preds := model.Predict(texts)
	for i := range items {
		items[i].PredictedLabel = preds[i]
	}
}

type reviewRequest struct {
	RunID      string               `json:"run_id"`
	Items      []storage.ReviewItem `json:"items"`
	Keywords   []string             `json:"keywords"`
	MediaNames []string             `json:"media_names"`
}

func (s *Server) review(c *gin.Context) {
	var body reviewRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "bad_request", "message": err.Error()})
		return
	}
	if body.RunID == "" {
		body.RunID = uuid.NewString()
	}

	saved, err := s.store.SaveReviewResults(body.RunID, body.Items, body.Keywords, body.MediaNames)
	if err != nil {
		log.Printf("保存复核结果失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": "internal_error", "message": "internal server error"})
		return
	}

	name, err := export.WriteReviewCSV(s.cfg.ExportDir, body.RunID, body.Items)
	if err != nil {
		log.Printf("导出复核 CSV 失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": "internal_error", "message": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"saved":   saved,
		"csv_url": "/download/exports/" + name,
	})
}

type xlsxRequest struct {
	ProjectName string        `json:"project_name"`
	Items       []export.Item `json:"items"`
}

func (s *Server) exportXLSX(c *gin.Context) {
	var body xlsxRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "bad_request", "message": err.Error()})
		return
	}
	name, err := export.WriteTemplateXLSX(s.cfg.ExportDir, strings.TrimSpace(body.ProjectName), body.Items)
	if err != nil {
		log.Printf("导出模板失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": "internal_error", "message": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":     "ok",
		"xlsx_url": "/download/exports/" + name,
	})
}

type trainRequest struct {
	Model     string   `json:"model"`
	Threshold *float64 `json:"threshold"` // 默认 0.7
}

func (s *Server) mlTrain(c *gin.Context) {
	var body trainRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "bad_request", "message": err.Error()})
		return
	}
	threshold := 0.7
	if body.Threshold != nil {
		threshold = *body.Threshold
	}

	samples, err := s.store.GetTrainingData()
	if err != nil {
		log.Printf("读取训练样本失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": "internal_error", "message": "internal server error"})
		return
	}

	model := ml.New(body.Model, s.cfg.MLEndpoint)
	res := ml.TrainAndEval(model, samples, threshold)
	if res.OK {
		if err := s.store.RecordMLRun(model.Name(), threshold, res); err != nil {
			log.Printf("记录评估结果失败: %v", err)
		}
	}
	c.JSON(http.StatusOK, res)
}

type activateRequest struct {
	Model string `json:"model" binding:"required"`
}

// mlActivate 是门禁的第二步：只有最近一次评估过线的模型才能启用
func (s *Server) mlActivate(c *gin.Context) {
	var body activateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "bad_request", "message": err.Error()})
		return
	}

	run, err := s.store.LatestMLRun(body.Model)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "internal_error", "message": "internal server error"})
		return
	}
	if run == nil || !run.PassGate {
		c.JSON(http.StatusConflict, gin.H{"code": "gate_not_passed", "message": "模型未通过 F1 门禁，先训练评估"})
		return
	}
	// 激活时一并记下这次过线依据的门禁线，状态查询可见
	if err := s.store.SetMLState(body.Model, run.Threshold, true); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "internal_error", "message": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": "ok", "active_model": body.Model, "f1": run.F1, "threshold": run.Threshold})
}

func (s *Server) mlState(c *gin.Context) {
	st, err := s.store.GetMLState()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "internal_error", "message": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, st)
}

// downloadExport 只放行导出目录里的文件，拦掉路径穿越
func (s *Server) downloadExport(c *gin.Context) {
	name := c.Param("name")
	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		c.JSON(http.StatusBadRequest, gin.H{"code": "bad_request", "message": "非法文件名"})
		return
	}
	c.File(filepath.Join(s.cfg.ExportDir, name))
}
