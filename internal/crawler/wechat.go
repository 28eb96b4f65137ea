package crawler

import (
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/LJTian/MediaTrack/internal/dateparse"
	"github.com/LJTian/MediaTrack/internal/resolver"
	"github.com/LJTian/MediaTrack/internal/search"
)

const wechatResultMax = 36

// NormalizeWechatURL 归一化公众号文章链接用于去重：
// 有 (mid, idx) 参数时取为规范键，否则去掉 query 和锚点
func NormalizeWechatURL(u string) string {
	if p, err := url.Parse(u); err == nil &&
		strings.HasSuffix(p.Host, resolver.WechatHost) && strings.HasPrefix(p.Path, "/s") {
		qs := p.Query()
		mid := qs.Get("mid")
		if mid == "" {
			mid = qs.Get("appmsgid")
		}
		idx := qs.Get("idx")
		if mid != "" && idx != "" {
			return "mpwx:mid=" + mid + "&idx=" + idx
		}
	}
	s := u
	if i := strings.Index(s, "#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, "?"); i >= 0 {
		s = s[:i]
	}
	return s
}

// WechatCrawler 是渠道 W：靠搜索引擎定位公众号文章，不走私有接口、不登录。
// 带最小抓取间隔，避免被风控。
type WechatCrawler struct {
	Keywords []string
	Boosters []string // 公众号名等增强词，每个生成一条独立查询
	MinDelay time.Duration
	Search   search.Func
	Fetcher  Fetcher

	lastFetch time.Time
	sleep     func(time.Duration) // 测试可替换
}

func NewWechatCrawler(keywords, boosters []string, searchFn search.Func, fetcher Fetcher) *WechatCrawler {
	return &WechatCrawler{
		Keywords: keywords,
		Boosters: boosters,
		MinDelay: 600 * time.Millisecond,
		Search:   searchFn,
		Fetcher:  fetcher,
		sleep:    time.Sleep,
	}
}

func (w *WechatCrawler) Name() string { return "wechat" }

func (w *WechatCrawler) throttle() {
	if w.sleep == nil {
		w.sleep = time.Sleep
	}
	if since := time.Since(w.lastFetch); since < w.MinDelay {
		w.sleep(w.MinDelay - since)
	}
	w.lastFetch = time.Now()
}

// searchURLs 生成查询（有 boosters 时每个一条），聚合结果并按规范键去重
func (w *WechatCrawler) searchURLs(maxResults int) []string {
	base := strings.TrimSpace(strings.Join(w.Keywords, " "))
	var queries []string
	if len(w.Boosters) > 0 {
		for _, b := range w.Boosters {
			queries = append(queries, "site:"+resolver.WechatHost+" "+b+" "+base)
		}
	} else {
		queries = append(queries, "site:"+resolver.WechatHost+" "+base)
	}

	var urls []string
	for _, q := range queries {
		urls = append(urls, w.Search(q, maxResults)...)
	}

	seen := map[string]bool{}
	var out []string
	for _, u := range urls {
		if !strings.Contains(u, resolver.WechatHost) {
			continue
		}
		key := NormalizeWechatURL(u)
		if !seen[key] {
			seen[key] = true
			out = append(out, u)
		}
	}
	if len(out) > maxResults {
		out = out[:maxResults]
	}
	return out
}

func (w *WechatCrawler) Crawl(startDate, endDate string) ([]Article, error) {
	urls := w.searchURLs(wechatResultMax)
	hasRange := startDate != "" || endDate != ""

	var out []Article
	for _, u := range urls {
		w.throttle()
		html, err := w.Fetcher.Fetch(u)
		if err != nil || html == "" {
			continue
		}
		d := dateparse.ExtractDate(html, u)
		// 指定区间时日期缺失或区间外都不保留
		if hasRange && !dateparse.WithinRange(d, startDate, endDate) {
			continue
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			continue
		}
		title := strings.TrimSpace(doc.Find("#activity-name").First().Text())
		if title == "" {
			title = pageTitle(doc)
		}
		if title == "" {
			title = "(untitled)"
		}
		account := strings.TrimSpace(doc.Find("#js_name").First().Text())
		if account == "" {
			account = strings.TrimSpace(doc.Find("#profile_nickname").First().Text())
		}
		if account == "" {
			account = metaContent(doc, "author")
		}
		if account == "" {
			account = "WeChat MP"
		}
		content := doc.Find("#js_content").First()
		if content.Length() == 0 {
			content = doc.Find("section").First()
		}
		excerpt := truncateRunes(strings.Join(strings.Fields(content.Text()), " "), 300)

		out = append(out, Article{
			Title:   title,
			URL:     u,
			Source:  account,
			Date:    d,
			Excerpt: excerpt,
			Channel: ChannelWechat,
		})
	}
	return out, nil
}
