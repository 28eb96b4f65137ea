package main

import (
	"flag"
	"log"
	"strings"

	"github.com/LJTian/MediaTrack/internal/config"
	"github.com/LJTian/MediaTrack/internal/crawler"
	"github.com/LJTian/MediaTrack/internal/resolver"
	"github.com/LJTian/MediaTrack/internal/search"
	"github.com/LJTian/MediaTrack/internal/storage"
)

// 一次性抓取入口：适合手动触发或 cron 调用，结果直接落库
func main() {
	var (
		keywords = flag.String("keywords", "", "关键词，逗号分隔（必填）")
		media    = flag.String("media", "", "媒体名称，逗号分隔")
		start    = flag.String("start", "", "开始日期 YYYY-MM-DD")
		end      = flag.String("end", "", "结束日期 YYYY-MM-DD")
		advanced = flag.Bool("advanced", true, "允许无头浏览器渲染")
		strict   = flag.Bool("strict", true, "严格日期模式：区间内无日期的文章丢弃")
		wechat   = flag.Bool("wechat", false, "启用微信公众号渠道")
	)
	flag.Parse()

	if strings.TrimSpace(*keywords) == "" {
		log.Fatal("必须用 -keywords 给出至少一个关键词")
	}

	cfg := config.Load()
	store, err := storage.NewStore(cfg.PostgresDSN, cfg.RedisAddr)
	if err != nil {
		log.Fatalf("init store failed: %v", err)
	}

	meta := search.NewMeta()
	res := resolver.New(store, meta.Search, cfg.AliasFile)
	manager := crawler.NewManager(res, meta.Search, crawler.NewHTTPFetcher(), cfg.BrowserEnabled)

	req := crawler.Request{
		Keywords:    splitList(*keywords),
		MediaNames:  splitList(*media),
		StartDate:   *start,
		EndDate:     *end,
		UseAdvanced: *advanced,
		StrictDate:  *strict,
		AllowWechat: *wechat,
	}

	items := manager.Crawl(req)
	runID, err := store.SaveCrawlResults(req, items)
	if err != nil {
		log.Fatalf("保存抓取结果失败: %v", err)
	}
	log.Printf("抓取完成: run_id=%s 共 %d 条", runID, len(items))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
