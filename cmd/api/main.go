package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"

	"github.com/LJTian/MediaTrack/internal/api"
	"github.com/LJTian/MediaTrack/internal/config"
	"github.com/LJTian/MediaTrack/internal/crawler"
	"github.com/LJTian/MediaTrack/internal/ml"
	"github.com/LJTian/MediaTrack/internal/resolver"
	"github.com/LJTian/MediaTrack/internal/search"
	"github.com/LJTian/MediaTrack/internal/storage"
)

func main() {
	cfg := config.Load()

	store, err := storage.NewStore(cfg.PostgresDSN, cfg.RedisAddr)
	if err != nil {
		log.Fatalf("init store failed: %v", err)
	}

	meta := search.NewMeta()
	res := resolver.New(store, meta.Search, cfg.AliasFile)
	manager := crawler.NewManager(res, meta.Search, crawler.NewHTTPFetcher(), cfg.BrowserEnabled)

	// 夜间例行评估：当前激活的模型（没有就用 nb）在最新样本上跑一遍，
	// 指标入库；掉到门禁线以下时报警日志，激活状态不动，留给人工决定
	c := cron.New()
	if _, err := c.AddFunc(cfg.MLCronSpec, func() { nightlyEval(store, cfg.MLEndpoint) }); err != nil {
		log.Printf("warn: add ml cron failed: %v", err)
	}
	c.Start()

	r := gin.Default()
	apiServer := api.NewServer(store, manager, *cfg)
	apiServer.RegisterRoutes(r)

	addr := ":" + cfg.AppPort
	log.Printf("starting api server at %s ...", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("server exit: %v", err)
	}
}

func nightlyEval(store *storage.Store, endpoint string) {
	st, err := store.GetMLState()
	if err != nil {
		log.Printf("夜间评估: 读取模型状态失败: %v", err)
		return
	}
	name := st.ActiveModel
	if name == "" {
		name = "nb"
	}

	samples, err := store.GetTrainingData()
	if err != nil {
		log.Printf("夜间评估: 读取样本失败: %v", err)
		return
	}

	// 用激活时登记的门禁线，没激活过就取默认值
	threshold := st.Threshold
	if threshold <= 0 {
		threshold = 0.7
	}
	model := ml.New(name, endpoint)
	res := ml.TrainAndEval(model, samples, threshold)
	if !res.OK {
		log.Printf("夜间评估: 跳过 (%s, n=%d)", res.Reason, res.N)
		return
	}
	if err := store.RecordMLRun(model.Name(), threshold, res); err != nil {
		log.Printf("夜间评估: 记录指标失败: %v", err)
	}
	if st.Activated && !res.PassGate {
		log.Printf("警告: 模型 %s 最新 F1=%.3f 已低于门禁 %.2f", model.Name(), res.F1, threshold)
		return
	}
	log.Printf("夜间评估完成: model=%s f1=%.3f pass=%v", model.Name(), res.F1, res.PassGate)
}
