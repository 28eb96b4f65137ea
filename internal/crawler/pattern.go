package crawler

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/LJTian/MediaTrack/internal/dateparse"
	"github.com/LJTian/MediaTrack/internal/resolver"
)

// 路径启发词：含任一 newsKeys 且不含 blockKeys 才视为新闻栏目
var newsKeys = []string{
	"xw", "news", "xwdt", "gzdt", "yaowen", "yw", "xwzx", "xinwen", "zxxw", "rdxw",
	"html5", "h5", "content", "gzdaily", "channel", "guangzhou", "politics", "finance", "paper", "yuanchuang",
}

// 政务公开/招标类栏目，排除
var blockKeys = []string{
	"tzgg", "zwgk", "zfxxgk", "gkml", "gk", "bsfw", "zcfg", "zhaobiao", "zbgg", "gggs", "gsgg", "jyxx", "xxgk",
}

var (
	nodeRe     = regexp.MustCompile(`(?i)node_\d+(?:_\d+)?\.htm`)
	nodeHeadRe = regexp.MustCompile(`(?i)(node_\d+)(?:_\d+)?\.htm`)
	listLikeRe = regexp.MustCompile(`(?i)/\d{5,}\.s?html?$`) // .../guangzhou/139995.shtml
	contentRe  = regexp.MustCompile(`(?i)content_\d+_\d+\.htm`)
	// 连脚本字符串里的 content_*.htm 一起扫
	contentAnyRe = regexp.MustCompile(`(?i)(?:https?://[^"'#\s]+)?content_\d+_\d+\.htm`)

	hostPrefixRe = regexp.MustCompile(`^(www|m|mp|wap)\.`)
)

// Rule 描述一个站点的 URL 形态枚举规则
type Rule struct {
	Domain          string
	Seeds           []string
	LinkAllow       *regexp.Regexp
	MaxLinks        int
	MaxPerSeed      int
	EnableNodeMode  bool
	EnableListMode  bool
	AcceptedDomains []string
}

// Domains 返回同站判定用的域名集合
func (r *Rule) Domains() []string {
	if len(r.AcceptedDomains) > 0 {
		return r.AcceptedDomains
	}
	return []string{r.Domain}
}

var dateAllowRe = regexp.MustCompile(`(?i)/20\d{2}[-/](0[1-9]|1[0-2])[-/](0[1-9]|[12]\d|3[01])/`)

var siteRules = map[string]*Rule{
	"dayoo.com": {
		Domain:          "dayoo.com",
		Seeds:           []string{"https://news.dayoo.com/guangzhou/", "https://news.dayoo.com/", "https://gzdaily.dayoo.com/"},
		LinkAllow:       regexp.MustCompile(`(?i)/20\d{2}[-/]?(0[1-9]|1[0-2])[-/]?(0[1-9]|[12]\d|3[01])/.+?\.htm[l]?$`),
		MaxLinks:        280,
		MaxPerSeed:      110,
		EnableListMode:  true,
		AcceptedDomains: []string{"dayoo.com", "news.dayoo.com", "gzdaily.dayoo.com"},
	},
	"gzdaily.dayoo.com": {
		Domain:          "gzdaily.dayoo.com",
		Seeds:           []string{"https://gzdaily.dayoo.com/h5/html5/", "https://gzdaily.dayoo.com/", "https://news.dayoo.com/guangzhou/"},
		LinkAllow:       regexp.MustCompile(`(?i)/20\d{2}[-/](0[1-9]|1[0-2])[-/](0[1-9]|[12]\d|3[01])/.+?\.htm[l]?$`),
		MaxLinks:        280,
		MaxPerSeed:      110,
		EnableNodeMode:  true,
		EnableListMode:  true,
		AcceptedDomains: []string{"gzdaily.dayoo.com", "news.dayoo.com", "dayoo.com"},
	},
	"people.com.cn": {
		Domain:         "people.com.cn",
		Seeds:          []string{"https://people.com.cn/", "https://politics.people.com.cn/", "https://cpc.people.com.cn/"},
		LinkAllow:      regexp.MustCompile(`(?i)/n\d/20\d{2}/(0[1-9]|1[0-2])(0[1-9]|[12]\d)/.+?\.html?$`),
		MaxLinks:       280,
		MaxPerSeed:     110,
		EnableListMode: true,
	},
	"news.cn": {
		Domain:         "news.cn",
		Seeds:          []string{"https://www.news.cn/", "https://www.news.cn/politics/", "https://www.news.cn/local/"},
		LinkAllow:      regexp.MustCompile(`(?i)/20\d{2}[-/](0[1-9]|1[0-2])[-/](0[1-9]|[12]\d|3[01])/.+?\.htm[l]?$`),
		MaxLinks:       280,
		MaxPerSeed:     110,
		EnableListMode: true,
	},
	"southcn.com": {
		Domain:         "southcn.com",
		Seeds:          []string{"https://www.southcn.com/", "https://news.southcn.com/", "https://news.southcn.com/gd/"},
		LinkAllow:      regexp.MustCompile(`(?i)/content/20\d{2}[-/](0[1-9]|1[0-2])[-/](0[1-9]|[12]\d|3[01])/.+?\.(htm|html)$`),
		MaxLinks:       280,
		MaxPerSeed:     110,
		EnableListMode: true,
	},
	"nfnews.com": {
		Domain:         "nfnews.com",
		Seeds:          []string{"https://www.nfnews.com/", "https://pc.nfapp.southcn.com/"},
		LinkAllow:      dateAllowRe,
		MaxLinks:       280,
		MaxPerSeed:     110,
		EnableListMode: true,
	},
	"ycwb.com": {
		Domain:         "ycwb.com",
		Seeds:          []string{"https://news.ycwb.com/", "https://news.ycwb.com/guangzhou/", "https://news.ycwb.com/yuanchuang/"},
		LinkAllow:      regexp.MustCompile(`(?i)/20\d{2}[-/](0[1-9]|1[0-2])[-/](0[1-9]|[12]\d|3[01])/.+?\.(htm|html)$`),
		MaxLinks:       280,
		MaxPerSeed:     110,
		EnableListMode: true,
	},
	"nandu.com": {
		Domain:         "nandu.com",
		Seeds:          []string{"https://www.nandu.com/", "https://www.nandu.com/news/"},
		LinkAllow:      dateAllowRe,
		MaxLinks:       280,
		MaxPerSeed:     110,
		EnableListMode: true,
	},
	"xkb.com.cn": {
		Domain:         "xkb.com.cn",
		Seeds:          []string{"https://news.xkb.com.cn/", "https://xkb.com.cn/"},
		LinkAllow:      regexp.MustCompile(`(?i)/20\d{2}[-/]?(0[1-9]|1[0-2])[-/]?(0[1-9]|[12]\d|3[01])/`),
		MaxLinks:       280,
		MaxPerSeed:     110,
		EnableListMode: true,
	},
	"cnstock.com": {
		Domain:         "cnstock.com",
		Seeds:          []string{"https://www.cnstock.com/", "https://news.cnstock.com/"},
		LinkAllow:      regexp.MustCompile(`(?i)/20\d{2}[-/](0[1-9]|1[0-2])[-/](0[1-9]|[12]\d|3[01])/.+?\.(htm|html)$`),
		MaxLinks:       280,
		MaxPerSeed:     110,
		EnableListMode: true,
	},
	"cnr.cn": {
		Domain:         "cnr.cn",
		Seeds:          []string{"https://www.cnr.cn/", "https://news.cnr.cn/"},
		LinkAllow:      dateAllowRe,
		MaxLinks:       280,
		MaxPerSeed:     110,
		EnableListMode: true,
	},
	"gz.gov.cn": {
		Domain:         "gz.gov.cn",
		Seeds:          []string{"https://www.gz.gov.cn/xw/", "https://www.gz.gov.cn/"},
		LinkAllow:      dateAllowRe,
		MaxLinks:       280,
		MaxPerSeed:     110,
		EnableListMode: true,
	},
}

// 广州各区政府站共用一套保守规则（不开 list 模式）
var gzDistricts = []string{
	"yuexiu.gov.cn", "liwan.gov.cn", "haizhu.gov.cn", "tianhe.gov.cn", "baiyun.gov.cn",
	"huadu.gov.cn", "panyu.gov.cn", "nansha.gov.cn", "conghua.gov.cn", "zengcheng.gov.cn",
	"gdd.gov.cn", "huangpu.gov.cn",
}

func init() {
	for _, d := range gzDistricts {
		siteRules[d] = &Rule{
			Domain:     d,
			Seeds:      []string{"https://www." + d + "/"},
			LinkAllow:  dateAllowRe,
			MaxLinks:   160,
			MaxPerSeed: 60,
		}
	}
}

func normHostname(h string) string {
	return hostPrefixRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(h)), "")
}

// GetRule 按最长后缀匹配查规则（gzdaily.dayoo.com 优先于 dayoo.com）
func GetRule(domain string) *Rule {
	d := normHostname(domain)
	var bestKey string
	for k := range siteRules {
		nk := normHostname(k)
		if strings.HasSuffix(d, nk) && len(nk) > len(normHostname(bestKey)) {
			bestKey = k
		}
	}
	if bestKey == "" {
		return nil
	}
	return siteRules[bestKey]
}

// guessGenericRule 给没有专属规则的站点合成一套通用种子与宽松放行
func guessGenericRule(domain string) *Rule {
	return &Rule{
		Domain: domain,
		Seeds: []string{
			"https://" + domain + "/", "https://www." + domain + "/",
			"https://" + domain + "/news/", "https://www." + domain + "/news/",
			"https://" + domain + "/xw/", "https://" + domain + "/xwdt/",
			"https://" + domain + "/content/", "https://" + domain + "/h5/html5/",
		},
		LinkAllow:       regexp.MustCompile(`(?i)/20\d{2}[-/]?(0[1-9]|1[0-2])[-/]?(0[1-9]|[12]\d|3[01])/`),
		MaxLinks:        180,
		MaxPerSeed:      70,
		EnableNodeMode:  true,
		EnableListMode:  true,
		AcceptedDomains: resolver.WidenDomains([]string{domain}),
	}
}

func sameSiteMulti(rawURL string, accepted []string) bool {
	p, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	h := normHostname(p.Host)
	for _, d := range accepted {
		if strings.HasSuffix(h, normHostname(d)) {
			return true
		}
	}
	return false
}

func isNewsPath(path string) bool {
	p := strings.ToLower(path)
	for _, b := range blockKeys {
		if strings.Contains(p, b) {
			return false
		}
	}
	for _, k := range newsKeys {
		if strings.Contains(p, k) {
			return true
		}
	}
	return false
}

// PatternCrawler 是渠道 2：从种子页出发，按站点 URL 形态枚举文章链接
type PatternCrawler struct {
	Domain   string
	Keywords []string
	Fetcher  Fetcher
	Rule     *Rule
}

func NewPatternCrawler(domain string, keywords []string, fetcher Fetcher) *PatternCrawler {
	rule := GetRule(domain)
	if rule == nil {
		rule = guessGenericRule(domain)
	}
	return &PatternCrawler{Domain: domain, Keywords: keywords, Fetcher: fetcher, Rule: rule}
}

func (p *PatternCrawler) Name() string { return "pattern" }

func (p *PatternCrawler) fetch(u string) string {
	html, err := p.Fetcher.Fetch(u)
	if err != nil {
		return ""
	}
	return html
}

// extractLinks 把页面里的同站链接分成三类：文章、node 翻页、列表聚合页
func (p *PatternCrawler) extractLinks(base, html string) (arts, nodes, lists []string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nil, nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, nil, nil
	}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if strings.HasPrefix(href, "//") {
			href = "https:" + href
		} else if strings.HasPrefix(href, "/") {
			ref, err := url.Parse(href)
			if err != nil {
				return
			}
			href = baseURL.ResolveReference(ref).String()
		}
		if !strings.HasPrefix(href, "http") {
			return
		}
		if !sameSiteMulti(href, p.Rule.Domains()) {
			return
		}
		parsed, err := url.Parse(href)
		if err != nil {
			return
		}
		path := strings.ToLower(parsed.Path)

		if p.Rule.EnableNodeMode && nodeRe.MatchString(path) {
			nodes = append(nodes, href)
			return
		}
		if p.Rule.EnableListMode && listLikeRe.MatchString(path) && isNewsPath(path) {
			lists = append(lists, href)
			return
		}

		ok := contentRe.MatchString(path) ||
			p.Rule.LinkAllow.MatchString(href) ||
			dateparse.DateFromURL(href) != ""
		if !ok {
			// 列表页不直接当文章
			return
		}
		arts = append(arts, href)
	})
	return arts, nodes, lists
}

// iterNodePages 合成 node_X.htm / node_X_2.htm ... node_X_8.htm 的翻页序列
func iterNodePages(nodeURL string, maxPages int) []string {
	out := []string{nodeURL}
	m := nodeHeadRe.FindStringSubmatch(nodeURL)
	if m == nil {
		return out
	}
	head := m[1]
	idx := strings.LastIndex(nodeURL, "/")
	if idx < 0 {
		return out
	}
	root := nodeURL[:idx+1]
	for i := 2; i <= maxPages; i++ {
		out = append(out, fmtNodePage(root, head, i))
	}
	return out
}

func fmtNodePage(root, head string, i int) string {
	return root + head + "_" + strconv.Itoa(i) + ".htm"
}

// expandListLike 从聚合页抠出 content_* 链接；<a> 提取为空时对整页正则扫描
// （很多站把文章链接埋在脚本字符串里）
func (p *PatternCrawler) expandListLike(listURL, html string) []string {
	arts, _, _ := p.extractLinks(listURL, html)
	if len(arts) > 0 {
		return arts
	}
	parsed, err := url.Parse(listURL)
	if err != nil {
		return nil
	}
	base := parsed.Scheme + "://" + parsed.Host + "/"
	var out []string
	seen := map[string]bool{}
	for _, m := range contentAnyRe.FindAllString(html, -1) {
		u := m
		if !strings.HasPrefix(u, "http") {
			u = base + strings.TrimPrefix(u, "/")
		}
		if sameSiteMulti(u, p.Rule.Domains()) && !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}

// probeDayooH5ByDates 专项兜底：直探 gzdaily 的 h5 日期目录扫 content_*.htm
func (p *PatternCrawler) probeDayooH5ByDates(startDate, endDate string) []string {
	hasDayoo := false
	for _, d := range p.Rule.Domains() {
		if strings.Contains(d, "dayoo.com") {
			hasDayoo = true
			break
		}
	}
	if !hasDayoo || startDate == "" || endDate == "" {
		return nil
	}
	sd, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return nil
	}
	ed, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return nil
	}
	if ed.Before(sd) {
		sd, ed = ed, sd
	}

	const h5Base = "https://gzdaily.dayoo.com/h5/html5/"
	var out []string
	seen := map[string]bool{}
	for cur := sd; !cur.After(ed); cur = cur.AddDate(0, 0, 1) {
		d := cur.Format("2006-01/02")
		html := p.fetch(h5Base + d + "/")
		if html == "" {
			continue
		}
		for _, m := range contentAnyRe.FindAllString(html, -1) {
			u := m
			if !strings.HasPrefix(u, "http") {
				u = h5Base + d + "/" + u
			}
			if sameSiteMulti(u, p.Rule.Domains()) && !seen[u] {
				seen[u] = true
				out = append(out, u)
			}
		}
	}
	return out
}

// collectLinks 按 种子 -> node 翻页 -> 列表聚合 -> dayoo 日期目录 四段收集文章链接
func (p *PatternCrawler) collectLinks(startDate, endDate string) []string {
	rule := p.Rule
	seen := map[string]bool{}
	var out, nodeQueue, listQueue []string

	add := func(u string) bool {
		if seen[u] {
			return false
		}
		seen[u] = true
		out = append(out, u)
		return len(out) >= rule.MaxLinks
	}

	// 1) 种子页
	for _, seed := range rule.Seeds {
		html := p.fetch(seed)
		if html == "" {
			continue
		}
		arts, nodes, lists := p.extractLinks(seed, html)
		perSeed := 0
		for _, u := range arts {
			if seen[u] {
				continue
			}
			if add(u) {
				return out
			}
			perSeed++
			if perSeed >= rule.MaxPerSeed {
				break
			}
		}
		for _, n := range nodes {
			if !seen[n] {
				seen[n] = true
				nodeQueue = append(nodeQueue, n)
			}
		}
		for _, l := range lists {
			if !seen[l] {
				seen[l] = true
				listQueue = append(listQueue, l)
			}
		}
	}

	// 2) node 翻页
	if rule.EnableNodeMode && len(nodeQueue) > 0 {
		if len(nodeQueue) > 30 {
			nodeQueue = nodeQueue[:30]
		}
		for _, n := range nodeQueue {
			for _, page := range iterNodePages(n, 8) {
				html := p.fetch(page)
				if html == "" {
					continue
				}
				arts, _, _ := p.extractLinks(page, html)
				for _, u := range arts {
					if !seen[u] && add(u) {
						return out
					}
				}
			}
		}
	}

	// 3) 列表聚合页
	if rule.EnableListMode && len(listQueue) > 0 {
		if len(listQueue) > 50 {
			listQueue = listQueue[:50]
		}
		for _, l := range listQueue {
			html := p.fetch(l)
			if html == "" {
				continue
			}
			for _, u := range p.expandListLike(l, html) {
				if !seen[u] && add(u) {
					return out
				}
			}
		}
	}

	// 4) dayoo h5 兜底
	if len(out) == 0 {
		for _, u := range p.probeDayooH5ByDates(startDate, endDate) {
			if !seen[u] {
				seen[u] = true
				out = append(out, u)
				if len(out) >= rule.MaxLinks {
					break
				}
			}
		}
	}
	return out
}

func (p *PatternCrawler) Crawl(startDate, endDate string) ([]Article, error) {
	urls := p.collectLinks(startDate, endDate)
	hasRange := startDate != "" || endDate != ""

	var results []Article
	for _, u := range urls {
		d := dateparse.DateFromURL(u)
		// URL 自带日期且落在区间外：不抓页面直接跳过
		if hasRange && d != "" && !dateparse.WithinRange(d, startDate, endDate) {
			continue
		}

		html := p.fetch(u)
		if html == "" {
			continue
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			continue
		}
		if d == "" {
			d = dateparse.ExtractDate(html, "")
			if d == "" {
				// 结构化提取失败时拿标题和 URL 做一次模糊提取兜底
				d = dateparse.ExtractDateFuzzy(pageTitle(doc), u)
			}
			if hasRange && d != "" && !dateparse.WithinRange(d, startDate, endDate) {
				continue
			}
		}
		// 指定区间时无日期的文章不保留
		if hasRange && d == "" {
			continue
		}
		results = append(results, Article{
			Title:   pageTitle(doc),
			URL:     u,
			Source:  p.Rule.Domain,
			Date:    d,
			Excerpt: firstParagraph(doc, 240),
			Channel: ChannelPattern,
		})
	}
	return results, nil
}
