package crawler

import (
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/LJTian/MediaTrack/internal/dateparse"
	"github.com/LJTian/MediaTrack/internal/resolver"
	"github.com/LJTian/MediaTrack/internal/search"
)

// Request 是一次聚合抓取的全部参数
type Request struct {
	Keywords    []string `json:"keywords"`
	MediaNames  []string `json:"media_names"`
	StartDate   string   `json:"start_date"`
	EndDate     string   `json:"end_date"`
	UseAdvanced bool     `json:"use_advanced"`
	StrictDate  bool     `json:"strict_date"`
	AllowWechat bool     `json:"allow_wechat"`
}

// Manager 编排三个渠道：
// 渠道 1 搜索引擎、渠道 2 站点形态枚举、渠道 W 微信公众号，
// 再做 严格日期过滤 -> 相关性过滤 -> 规则预测标签
type Manager struct {
	Resolver       *resolver.Resolver
	Search         search.Func
	Fetcher        Fetcher
	BrowserEnabled bool
	WechatMinDelay time.Duration

	// 测试可替换，默认 BrowserAvailable
	browserCheck func() bool
}

func NewManager(res *resolver.Resolver, searchFn search.Func, fetcher Fetcher, browserEnabled bool) *Manager {
	return &Manager{
		Resolver:       res,
		Search:         searchFn,
		Fetcher:        fetcher,
		BrowserEnabled: browserEnabled,
		WechatMinDelay: 600 * time.Millisecond,
		browserCheck:   BrowserAvailable,
	}
}

// chooseCrawler 选渠道 1 后端：要求且具备浏览器时用 Advanced，否则 Generic
func (m *Manager) chooseCrawler(domain string, keywords []string, useAdvanced bool) Crawler {
	g := GenericCrawler{Domain: domain, Keywords: keywords, Search: m.Search, Fetcher: m.Fetcher}
	if useAdvanced && m.BrowserEnabled && m.browserCheck() {
		return &AdvancedCrawler{GenericCrawler: g}
	}
	return &g
}

// resolveDomains 把媒体名解析成候选域名；没有媒体名或全部解析失败时按关键词探测
func (m *Manager) resolveDomains(req Request) []string {
	var domains []string
	if len(req.MediaNames) > 0 {
		for _, name := range req.MediaNames {
			domains = append(domains, m.Resolver.ResolveMulti(name, 3, req.AllowWechat)...)
		}
		seen := map[string]bool{}
		var uniq []string
		for _, d := range domains {
			if d != "" && !seen[d] {
				seen[d] = true
				uniq = append(uniq, d)
			}
		}
		domains = uniq
	}
	if len(domains) == 0 {
		domains = m.Resolver.DiscoverDomainsByKeywords(req.Keywords, 3)
	}
	if len(domains) == 0 {
		// 纯关键词兜底
		domains = []string{""}
	}
	return domains
}

// Crawl 聚合抓取主流程
func (m *Manager) Crawl(req Request) []Article {
	if len(req.Keywords) == 0 {
		return nil
	}

	domains := m.resolveDomains(req)
	log.Printf("开始聚合抓取: 关键词=%v 域名=%v 区间=[%s,%s]", req.Keywords, domains, req.StartDate, req.EndDate)

	var results []Article
	seenURLs := map[string]bool{}

	// 1) 渠道 1：逐域名搜索
	for _, d := range domains {
		c := m.chooseCrawler(d, req.Keywords, req.UseAdvanced)
		items, err := c.Crawl(req.StartDate, req.EndDate)
		if err != nil {
			log.Printf("渠道 1 (%s) 抓取 %s 出错: %v", c.Name(), d, err)
			continue
		}
		for _, it := range items {
			if it.URL == "" || seenURLs[it.URL] {
				continue
			}
			seenURLs[it.URL] = true
			if it.Source == "" {
				it.Source = d
			}
			if it.Channel == "" {
				it.Channel = ChannelSearch
			}
			results = append(results, it)
		}
	}

	// 2) 严格日期过滤（只过滤渠道 1 的结果，其余渠道自带区间判断）
	if req.StartDate != "" || req.EndDate != "" {
		filtered := results[:0]
		for _, it := range results {
			d := strings.TrimSpace(it.Date)
			ok := dateparse.WithinRange(d, req.StartDate, req.EndDate)
			if ok || (!req.StrictDate && d == "") {
				filtered = append(filtered, it)
			}
		}
		results = filtered
	}

	// 2.5) 渠道 2：站点形态枚举，尽力而为
	for _, d := range domains {
		if d == "" {
			continue
		}
		pc := NewPatternCrawler(d, req.Keywords, m.Fetcher)
		items, err := pc.Crawl(req.StartDate, req.EndDate)
		if err != nil {
			log.Printf("渠道 2 抓取 %s 出错: %v", d, err)
			continue
		}
		for _, it := range items {
			if it.URL == "" || seenURLs[it.URL] {
				continue
			}
			seenURLs[it.URL] = true
			if it.Source == "" {
				it.Source = d
			}
			if it.Channel == "" {
				it.Channel = ChannelPattern
			}
			results = append(results, it)
		}
	}

	// 3) 渠道 W：微信公众号，需显式允许；原始 URL 和规范键双重去重
	if req.AllowWechat {
		wc := NewWechatCrawler(req.Keywords, req.MediaNames, m.Search, m.Fetcher)
		if m.WechatMinDelay > 0 {
			wc.MinDelay = m.WechatMinDelay
		}
		items, err := wc.Crawl(req.StartDate, req.EndDate)
		if err != nil {
			log.Printf("渠道 W 抓取出错: %v", err)
		}
		seenKeys := map[string]bool{}
		for u := range seenURLs {
			seenKeys[NormalizeWechatURL(u)] = true
		}
		for _, it := range items {
			if it.URL == "" {
				continue
			}
			k := NormalizeWechatURL(it.URL)
			if seenURLs[it.URL] || seenKeys[k] {
				continue
			}
			seenURLs[it.URL] = true
			seenKeys[k] = true
			results = append(results, it)
		}
	}

	// 4) 相关性过滤
	filtered := results[:0]
	for i := range results {
		if m.looksRelevant(&results[i], req.Keywords) {
			filtered = append(filtered, results[i])
		}
	}
	results = filtered

	// 5) 规则预测标签，保证没有模型时该列也有意义
	for i := range results {
		results[i].PredictedLabel = RuleBasedPredict(results[i].Title, results[i].Excerpt, req.Keywords)
	}

	log.Printf("聚合抓取完成: 共 %d 条", len(results))
	return results
}

// fetchTitleExcerpt 轻量补抓，用于渠道没填全 title/excerpt 的罕见情况
func (m *Manager) fetchTitleExcerpt(u string) (string, string) {
	html, err := m.Fetcher.Fetch(u)
	if err != nil || html == "" {
		return "", ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", ""
	}
	return pageTitle(doc), firstParagraph(doc, 240)
}

// looksRelevant 硬过滤：路径黑名单 + 关键词命中 + 最小文本长度。
// 政务公开类路径除非标题强命中关键词，否则丢弃；
// 标题至少 6 字、节选至少 30 字。
func (m *Manager) looksRelevant(it *Article, keywords []string) bool {
	lowURL := strings.ToLower(it.URL)
	path := ""
	if p, err := url.Parse(lowURL); err == nil {
		path = p.Path
	}

	if (it.Title == "" || it.Excerpt == "") && it.URL != "" {
		t2, e2 := m.fetchTitleExcerpt(it.URL)
		if it.Title == "" {
			it.Title = t2
		}
		if it.Excerpt == "" {
			it.Excerpt = e2
		}
	}

	for _, b := range blockKeys {
		if strings.Contains(path, b) {
			tLow := strings.ToLower(it.Title)
			hit := false
			for _, kw := range keywords {
				if kw != "" && strings.Contains(tLow, strings.ToLower(kw)) {
					hit = true
					break
				}
			}
			if !hit {
				return false
			}
			break
		}
	}

	if len(keywords) > 0 {
		combo := it.Title + " " + it.Excerpt
		hit := false
		for _, kw := range keywords {
			if kw != "" && strings.Contains(combo, kw) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}

	if len([]rune(strings.TrimSpace(it.Title))) < 6 || len([]rune(strings.TrimSpace(it.Excerpt))) < 30 {
		return false
	}
	return true
}

// RuleBasedPredict 是轻量"零号模型"：关键词命中标题或节选即判 1，否则 0
func RuleBasedPredict(title, excerpt string, keywords []string) int {
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(title, kw) || strings.Contains(excerpt, kw) {
			return 1
		}
	}
	return 0
}
