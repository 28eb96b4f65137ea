package crawler

import (
	"errors"
	"testing"
)

// fakeFetcher 用内存 map 代替真实 HTTP，并记录抓过的 URL
type fakeFetcher struct {
	pages   map[string]string
	fetched []string
}

func newFakeFetcher(pages map[string]string) *fakeFetcher {
	return &fakeFetcher{pages: pages}
}

func (f *fakeFetcher) Fetch(u string) (string, error) {
	f.fetched = append(f.fetched, u)
	if html, ok := f.pages[u]; ok {
		return html, nil
	}
	return "", errors.New("页面不存在")
}

func (f *fakeFetcher) didFetch(u string) bool {
	for _, x := range f.fetched {
		if x == u {
			return true
		}
	}
	return false
}

func TestGetRuleSuffixMatch(t *testing.T) {
	// 最长后缀优先：gzdaily.dayoo.com 不能落到 dayoo.com 的规则
	r := GetRule("gzdaily.dayoo.com")
	if r == nil || r.Domain != "gzdaily.dayoo.com" {
		t.Fatalf("gzdaily.dayoo.com 应命中专属规则, got %+v", r)
	}
	if !r.EnableNodeMode {
		t.Fatalf("gzdaily 规则应开启 node 模式")
	}

	r = GetRule("www.dayoo.com")
	if r == nil || r.Domain != "dayoo.com" {
		t.Fatalf("www.dayoo.com 应命中 dayoo.com 规则, got %+v", r)
	}

	r = GetRule("tianhe.gov.cn")
	if r == nil || r.Domain != "tianhe.gov.cn" {
		t.Fatalf("区政府站应有规则, got %+v", r)
	}
	if r.EnableListMode {
		t.Fatalf("区政府规则不应开启 list 模式")
	}

	if GetRule("unknown.example.com") != nil {
		t.Fatalf("未知域名不应命中规则")
	}
}

func TestGuessGenericRuleWidensDomains(t *testing.T) {
	r := guessGenericRule("news.xkb.com.cn")
	if len(r.Seeds) == 0 || !r.EnableNodeMode || !r.EnableListMode {
		t.Fatalf("通用规则字段不对: %+v", r)
	}
	// 接受域应包含注册域，保证子域链接算同站
	found := false
	for _, d := range r.AcceptedDomains {
		if d == "xkb.com.cn" {
			found = true
		}
	}
	if !found {
		t.Fatalf("通用规则应把注册域收进接受集: %v", r.AcceptedDomains)
	}
}

func TestExtractLinksClassify(t *testing.T) {
	rule := GetRule("gzdaily.dayoo.com")
	pc := &PatternCrawler{Domain: "gzdaily.dayoo.com", Rule: rule, Fetcher: newFakeFetcher(nil)}

	html := `<html><body>
		<a href="/html/2025-08/12/node_123.htm">版面</a>
		<a href="https://news.dayoo.com/guangzhou/163000.shtml">聚合页</a>
		<a href="/html/2025-08/12/content_860_123456.htm">文章</a>
		<a href="https://news.dayoo.com/2025-08/12/headline.html">日期文章</a>
		<a href="https://www.example.com/2025-08/12/offsite.html">站外</a>
		<a href="/about/">关于</a>
	</body></html>`

	arts, nodes, lists := pc.extractLinks("https://gzdaily.dayoo.com/", html)
	if len(nodes) != 1 || nodes[0] != "https://gzdaily.dayoo.com/html/2025-08/12/node_123.htm" {
		t.Fatalf("node 链接分类错误: %v", nodes)
	}
	if len(lists) != 1 {
		t.Fatalf("列表页分类错误: %v", lists)
	}
	if len(arts) != 2 {
		t.Fatalf("文章链接应有 2 条（content + 日期路径）, got %v", arts)
	}
	for _, a := range arts {
		if a == "https://www.example.com/2025-08/12/offsite.html" {
			t.Fatalf("站外链接不应保留")
		}
	}
}

func TestIsNewsPath(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"/news/guangzhou/139995.shtml", true},
		{"/zwgk/tzgg/139995.shtml", false}, // 政务公开栏目被屏蔽
		{"/about/139995.shtml", false},     // 无新闻特征词
		{"/h5/html5/139995.shtml", true},
	}
	for _, c := range cases {
		if got := isNewsPath(c.path); got != c.want {
			t.Fatalf("isNewsPath(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}

func TestIterNodePages(t *testing.T) {
	pages := iterNodePages("https://gzdaily.dayoo.com/html/2025-08/12/node_123.htm", 8)
	if len(pages) != 8 {
		t.Fatalf("应生成 8 个翻页, got %d", len(pages))
	}
	if pages[1] != "https://gzdaily.dayoo.com/html/2025-08/12/node_123_2.htm" {
		t.Fatalf("第二页 URL 错误: %s", pages[1])
	}
	if pages[7] != "https://gzdaily.dayoo.com/html/2025-08/12/node_123_8.htm" {
		t.Fatalf("第八页 URL 错误: %s", pages[7])
	}

	// 从带页码的 URL 出发也要归一到 node_123 前缀
	pages = iterNodePages("https://gzdaily.dayoo.com/html/2025-08/12/node_123_5.htm", 3)
	if pages[1] != "https://gzdaily.dayoo.com/html/2025-08/12/node_123_2.htm" {
		t.Fatalf("带页码 URL 归一失败: %s", pages[1])
	}
}

func TestExpandListLikeRegexFallback(t *testing.T) {
	rule := GetRule("dayoo.com")
	pc := &PatternCrawler{Domain: "dayoo.com", Rule: rule, Fetcher: newFakeFetcher(nil)}

	// 链接都埋在脚本字符串里，<a> 提取不到
	html := `<html><body><script>
		var a = "content_860_111.htm";
		var b = "https://gzdaily.dayoo.com/h5/content_860_222.htm";
		var c = "https://other.example.com/content_1_2.htm";
	</script></body></html>`

	out := pc.expandListLike("https://news.dayoo.com/guangzhou/163000.shtml", html)
	if len(out) != 2 {
		t.Fatalf("应从脚本里扫出 2 条同站链接, got %v", out)
	}
	if out[0] != "https://news.dayoo.com/content_860_111.htm" {
		t.Fatalf("相对链接应以列表页 host 为根补全: %s", out[0])
	}
	if out[1] != "https://gzdaily.dayoo.com/h5/content_860_222.htm" {
		t.Fatalf("绝对链接应原样保留: %s", out[1])
	}
}

func TestPatternCrawlURLDateShortCircuit(t *testing.T) {
	seed := "https://news.xkb.com.cn/"
	inRange := "https://news.xkb.com.cn/2025/0812/123456.html"
	outOfRange := "https://news.xkb.com.cn/2024/0101/999999.html"

	fetcher := newFakeFetcher(map[string]string{
		seed: `<html><body>
			<a href="` + inRange + `">命中</a>
			<a href="` + outOfRange + `">过期</a>
		</body></html>`,
		inRange: `<html><head><title>广州新闻标题测试</title></head>
			<body><p>这是一段足够长的正文节选，用来验证文章记录的节选字段。</p></body></html>`,
	})

	pc := NewPatternCrawler("news.xkb.com.cn", []string{"广州"}, fetcher)
	got, err := pc.Crawl("2025-08-01", "2025-08-31")
	if err != nil {
		t.Fatalf("crawl 出错: %v", err)
	}
	if len(got) != 1 || got[0].URL != inRange {
		t.Fatalf("应只保留区间内文章, got %+v", got)
	}
	if got[0].Date != "2025-08-12" {
		t.Fatalf("URL 日期提取错误: %s", got[0].Date)
	}
	if got[0].Channel != ChannelPattern {
		t.Fatalf("渠道标签应为 pattern: %s", got[0].Channel)
	}
	// 区间外的 URL 不应发起抓取
	if fetcher.didFetch(outOfRange) {
		t.Fatalf("URL 自带区间外日期时应跳过抓取")
	}
}

func TestPatternCrawlFuzzyDateFromTitle(t *testing.T) {
	seed := "https://news.xkb.com.cn/"
	art := "https://news.xkb.com.cn/content_1_777.htm"
	// 页面没有任何结构化日期，标题里是连写的 20250812
	fetcher := newFakeFetcher(map[string]string{
		seed: `<a href="` + art + `">专题</a>`,
		art: `<html><head><title>专题报道20250812期</title></head>
			<body><p>正文</p></body></html>`,
	})

	pc := NewPatternCrawler("news.xkb.com.cn", nil, fetcher)
	got, err := pc.Crawl("2025-08-01", "2025-08-31")
	if err != nil {
		t.Fatalf("crawl 出错: %v", err)
	}
	if len(got) != 1 || got[0].Date != "2025-08-12" {
		t.Fatalf("应通过模糊提取拿到标题里的日期, got %+v", got)
	}
}

func TestPatternCrawlDropsUndatedWhenRangeSet(t *testing.T) {
	seed := "https://news.xkb.com.cn/"
	undated := "https://news.xkb.com.cn/content_1_23456.htm"
	fetcher := newFakeFetcher(map[string]string{
		seed:    `<a href="` + undated + `">无日期</a>`,
		undated: `<html><head><title>没有日期的文章</title></head><body><p>正文</p></body></html>`,
	})

	pc := NewPatternCrawler("news.xkb.com.cn", nil, fetcher)
	got, err := pc.Crawl("2025-08-01", "2025-08-31")
	if err != nil {
		t.Fatalf("crawl 出错: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("指定区间时无日期文章应被丢弃, got %+v", got)
	}

	// 不给区间则保留
	got, _ = pc.Crawl("", "")
	if len(got) != 1 || got[0].Date != "" {
		t.Fatalf("无区间时应保留无日期文章, got %+v", got)
	}
}
