package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/LJTian/MediaTrack/internal/crawler"
	"github.com/LJTian/MediaTrack/internal/ml"
)

// SiteMapping 记录媒体名称到域名的解析缓存，避免重复走搜索兜底
type SiteMapping struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	Name   string `gorm:"size:128;uniqueIndex" json:"name"`
	Domain string `gorm:"size:256" json:"domain"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CrawlResult 是一次聚合抓取里的一条文章记录
type CrawlResult struct {
	ID    string `gorm:"primaryKey;size:40" json:"id"`
	RunID string `gorm:"size:40;index" json:"runId"`

	Title          string `gorm:"size:512" json:"title"`
	URL            string `gorm:"size:1024;index" json:"url"`
	Source         string `gorm:"size:256" json:"source"`
	Date           string `gorm:"size:10;index" json:"date"` // YYYY-MM-DD，空串表示未知
	Excerpt        string `gorm:"size:600" json:"excerpt"`
	Channel        string `gorm:"size:16;index" json:"channel"`
	PredictedLabel int    `json:"predictedLabel"`
	HumanLabel     *int   `json:"humanLabel,omitempty"` // 人工复核标签，nil 表示未复核

	// 本次请求的关键词与媒体名，原样存下来便于回溯
	Keywords datatypes.JSON `gorm:"type:jsonb" json:"keywords"`
	Media    datatypes.JSON `gorm:"type:jsonb" json:"media"`

	CreatedAt time.Time `json:"createdAt"`
}

// TrainingSample 是人工标注后的训练样本，Text 为 "标题\n节选"
type TrainingSample struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	Text   string `gorm:"type:text" json:"text"`
	Label  int    `gorm:"index" json:"label"`
	Origin string `gorm:"size:64" json:"origin"` // review / manual

	CreatedAt time.Time `json:"createdAt"`
}

// MLRun 记录一次训练评估的指标
type MLRun struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	Model     string  `gorm:"size:32;index" json:"model"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	NTrain    int     `json:"nTrain"`
	NTest     int     `json:"nTest"`
	Threshold float64 `json:"threshold"`
	PassGate  bool    `json:"passGate"`

	CreatedAt time.Time `json:"createdAt"`
}

// MLState 是单行表（id 恒为 1），记录当前启用的模型。
// 读取永远落库，不在进程里缓存，保证多实例部署时激活立即生效。
type MLState struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	ActiveModel string  `gorm:"size:32" json:"activeModel"`
	Threshold   float64 `json:"threshold"` // 启用时依据的 F1 门禁线
	Activated   bool    `json:"activated"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// ReviewItem 是人工复核回传的一条记录
type ReviewItem struct {
	Title          string `json:"title"`
	URL            string `json:"url"`
	Source         string `json:"source"`
	Date           string `json:"date"`
	Excerpt        string `json:"excerpt"`
	PredictedLabel int    `json:"predicted_label"`
	HumanLabel     int    `json:"human_label"`
}

type Store struct {
	DB    *gorm.DB
	Redis *redis.Client
}

func NewStore(dsn, redisAddr string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&SiteMapping{}, &CrawlResult{}, &TrainingSample{}, &MLRun{}, &MLState{}); err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("warn: redis ping failed: %v", err)
	}

	return &Store{DB: db, Redis: rdb}, nil
}

// toValidUTF8 将字符串规范为合法 UTF-8，避免 PostgreSQL invalid byte sequence 错误
func toValidUTF8(s string) string {
	return strings.ToValidUTF8(s, "�")
}

// truncateRunesDB 按 rune 数截断，确保不超过数据库字段长度
func truncateRunesDB(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	s = strings.TrimSpace(s)
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit])
}

const mappingCacheTTL = 10 * time.Minute

func mappingCacheKey(name string) string {
	return "site:mapping:" + name
}

// GetSiteDomain 查媒体名称对应的域名，Redis 读穿透到 DB
func (s *Store) GetSiteDomain(name string) (string, error) {
	ctx := context.Background()
	if s.Redis != nil {
		if v, err := s.Redis.Get(ctx, mappingCacheKey(name)).Result(); err == nil && v != "" {
			return v, nil
		}
	}

	var m SiteMapping
	if err := s.DB.Where("name = ?", name).First(&m).Error; err != nil {
		return "", err
	}
	if s.Redis != nil && m.Domain != "" {
		_ = s.Redis.Set(ctx, mappingCacheKey(name), m.Domain, mappingCacheTTL).Err()
	}
	return m.Domain, nil
}

// AddSiteMapping 记录解析结果，已存在时覆盖域名
func (s *Store) AddSiteMapping(name, domain string) error {
	name = toValidUTF8(strings.TrimSpace(name))
	domain = strings.TrimSpace(domain)
	if name == "" || domain == "" {
		return fmt.Errorf("名称和域名不能为空")
	}

	m := &SiteMapping{Name: name, Domain: domain}
	if err := s.DB.Where("name = ?", name).FirstOrCreate(m).Error; err != nil {
		return err
	}
	if m.Domain != domain {
		if err := s.DB.Model(m).Update("domain", domain).Error; err != nil {
			return err
		}
	}
	if s.Redis != nil {
		_ = s.Redis.Set(context.Background(), mappingCacheKey(name), domain, mappingCacheTTL).Err()
	}
	return nil
}

// SaveCrawlResults 整批落库一次抓取的结果，返回 run_id 供后续导出/复核
func (s *Store) SaveCrawlResults(req crawler.Request, items []crawler.Article) (string, error) {
	runID := uuid.NewString()
	kws, _ := json.Marshal(req.Keywords)
	media, _ := json.Marshal(req.MediaNames)

	for _, it := range items {
		r := &CrawlResult{
			ID:             uuid.NewString(),
			RunID:          runID,
			Title:          truncateRunesDB(toValidUTF8(it.Title), 500),
			URL:            it.URL,
			Source:         truncateRunesDB(toValidUTF8(it.Source), 250),
			Date:           it.Date,
			Excerpt:        truncateRunesDB(toValidUTF8(it.Excerpt), 600),
			Channel:        it.Channel,
			PredictedLabel: it.PredictedLabel,
			Keywords:       datatypes.JSON(kws),
			Media:          datatypes.JSON(media),
		}
		if err := s.DB.Create(r).Error; err != nil {
			return runID, err
		}
	}
	return runID, nil
}

// ListRunResults 返回某次抓取的全部记录，短缓存
func (s *Store) ListRunResults(runID string) ([]CrawlResult, error) {
	ctx := context.Background()
	cacheKey := "crawl:run:" + runID

	if s.Redis != nil {
		if bs, err := s.Redis.Get(ctx, cacheKey).Bytes(); err == nil {
			var cached []CrawlResult
			if err := json.Unmarshal(bs, &cached); err == nil {
				return cached, nil
			}
		}
	}

	var list []CrawlResult
	if err := s.DB.Where("run_id = ?", runID).Order("date DESC").Find(&list).Error; err != nil {
		return nil, err
	}
	if s.Redis != nil && len(list) > 0 {
		if bs, err := json.Marshal(list); err == nil {
			_ = s.Redis.Set(ctx, cacheKey, bs, 5*time.Minute).Err()
		}
	}
	return list, nil
}

// SaveReviewResults 把人工复核的标注按 run_id 回写结果表，并转成训练样本，
// 返回实际入库条数。没有 URL 的条目跳过，样本文本固定为 "标题\n节选"。
func (s *Store) SaveReviewResults(runID string, items []ReviewItem, keywords, mediaNames []string) (int, error) {
	kws, _ := json.Marshal(keywords)
	media, _ := json.Marshal(mediaNames)

	saved := 0
	for _, it := range items {
		if strings.TrimSpace(it.URL) == "" {
			continue
		}

		// 同一次抓取里已有这条 URL 就只补人工标签，否则整行补录
		label := it.HumanLabel
		res := s.DB.Model(&CrawlResult{}).
			Where("run_id = ? AND url = ?", runID, it.URL).
			Update("human_label", label)
		if res.Error != nil {
			return saved, res.Error
		}
		if res.RowsAffected == 0 {
			row := &CrawlResult{
				ID:             uuid.NewString(),
				RunID:          runID,
				Title:          truncateRunesDB(toValidUTF8(it.Title), 500),
				URL:            it.URL,
				Source:         truncateRunesDB(toValidUTF8(it.Source), 250),
				Date:           it.Date,
				Excerpt:        truncateRunesDB(toValidUTF8(it.Excerpt), 600),
				PredictedLabel: it.PredictedLabel,
				HumanLabel:     &label,
				Keywords:       datatypes.JSON(kws),
				Media:          datatypes.JSON(media),
			}
			if err := s.DB.Create(row).Error; err != nil {
				return saved, err
			}
		}

		text := toValidUTF8(strings.TrimSpace(it.Title) + "\n" + strings.TrimSpace(it.Excerpt))
		sample := &TrainingSample{
			Text:   text,
			Label:  it.HumanLabel,
			Origin: "review",
		}
		if err := s.DB.Create(sample).Error; err != nil {
			return saved, err
		}
		saved++
	}

	// 结果有更新，失效该 run 的列表缓存
	if s.Redis != nil && saved > 0 {
		_ = s.Redis.Del(context.Background(), "crawl:run:"+runID).Err()
	}
	return saved, nil
}

// AddTrainingSample 手工补样本
func (s *Store) AddTrainingSample(text string, label int) error {
	return s.DB.Create(&TrainingSample{
		Text:   toValidUTF8(text),
		Label:  label,
		Origin: "manual",
	}).Error
}

// GetTrainingData 取全部样本供训练评估
func (s *Store) GetTrainingData() ([]ml.Sample, error) {
	var rows []TrainingSample
	if err := s.DB.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]ml.Sample, 0, len(rows))
	for _, r := range rows {
		out = append(out, ml.Sample{Text: r.Text, Label: r.Label})
	}
	return out, nil
}

// RecordMLRun 记录一次训练评估的指标
func (s *Store) RecordMLRun(model string, threshold float64, res ml.Result) error {
	return s.DB.Create(&MLRun{
		Model:     model,
		Precision: res.Precision,
		Recall:    res.Recall,
		F1:        res.F1,
		NTrain:    res.NTrain,
		NTest:     res.NTest,
		Threshold: threshold,
		PassGate:  res.PassGate,
	}).Error
}

// SetMLState 更新单行状态表
func (s *Store) SetMLState(model string, threshold float64, activated bool) error {
	st := &MLState{ID: 1}
	if err := s.DB.FirstOrCreate(st, MLState{ID: 1}).Error; err != nil {
		return err
	}
	return s.DB.Model(st).Updates(map[string]any{
		"active_model": model,
		"threshold":    threshold,
		"activated":    activated,
	}).Error
}

// GetMLState 读当前状态；没有记录时返回未激活的零值
func (s *Store) GetMLState() (MLState, error) {
	var st MLState
	if err := s.DB.Where("id = ?", 1).First(&st).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return MLState{ID: 1}, nil
		}
		return MLState{}, err
	}
	return st, nil
}

// LatestMLRun 查某个模型最近一次评估，没有时返回 nil
func (s *Store) LatestMLRun(model string) (*MLRun, error) {
	var run MLRun
	q := s.DB.Model(&MLRun{})
	if model != "" {
		q = q.Where("model = ?", model)
	}
	if err := q.Order("id DESC").First(&run).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}
