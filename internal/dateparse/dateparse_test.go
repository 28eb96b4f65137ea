package dateparse

import (
	"regexp"
	"testing"
)

var ymd = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

func TestExtractDateJSONLD(t *testing.T) {
	html := `<html><head><script type="application/ld+json">
	{"@type":"NewsArticle","datePublished":"2025-08-14T10:30:00+08:00"}
	</script></head><body></body></html>`

	got := ExtractDate(html, "https://news.dayoo.com/a.html")
	if got != "2025-08-14" {
		t.Fatalf("ExtractDate from json-ld = %q, want 2025-08-14", got)
	}
}

func TestExtractDateMetaBeforeText(t *testing.T) {
	// meta 命中时不应再去看正文里的日期
	html := `<html><head>
	<meta property="article:published_time" content="2025/8/3"/>
	</head><body>发布时间：2024年01月01日</body></html>`

	got := ExtractDate(html, "https://example.com/x.html")
	if got != "2025-08-03" {
		t.Fatalf("ExtractDate = %q, want 2025-08-03 (zero padded)", got)
	}
}

func TestExtractDateVisibleChineseText(t *testing.T) {
	html := `<html><body><p>广州日报讯 2025年8月14日 记者报道</p></body></html>`
	got := ExtractDate(html, "https://example.com/x.html")
	if got != "2025-08-14" {
		t.Fatalf("ExtractDate = %q, want 2025-08-14", got)
	}
}

func TestExtractDateWechatMarkers(t *testing.T) {
	byElem := `<html><body><em id="publish_time">2025-08-14 10:00</em></body></html>`
	if got := ExtractDate(byElem, "https://mp.weixin.qq.com/s?mid=1"); got != "2025-08-14" {
		t.Fatalf("publish_time element = %q, want 2025-08-14", got)
	}

	// var ct 是 unix 时间戳（UTC 口径）
	byScript := `<html><body><script>var ct = '1755129600';</script></body></html>`
	got := ExtractDate(byScript, "https://mp.weixin.qq.com/s?mid=2")
	if !ymd.MatchString(got) {
		t.Fatalf("var ct date = %q, want YYYY-MM-DD", got)
	}
}

func TestExtractDateFromURLOnly(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://news.dayoo.com/guangzhou/2025-08/14/content_1_2.htm", "2025-08-14"},
		{"https://politics.people.com.cn/n1/2025/0814/c1001-1.html", "2025-08-14"},
		{"https://www.news.cn/politics/20250814/abc.htm", "2025-08-14"},
		// 日期段结尾没有斜杠也要认出来
		{"https://example.com/zt/20250814", "2025-08-14"},
		{"https://news.dayoo.com/guangzhou/2025-08/14.html", "2025-08-14"},
		{"https://example.com/about/", ""},
	}
	for _, c := range cases {
		if got := ExtractDate("<html></html>", c.url); got != c.want {
			t.Fatalf("ExtractDate(%q) = %q, want %q", c.url, got, c.want)
		}
	}
}

func TestExtractDateFuzzy(t *testing.T) {
	cases := []struct {
		text string
		url  string
		want string
	}{
		{"发布于 2025-8-14", "", "2025-08-14"},
		{"2025年08月14日 广州", "", "2025-08-14"},
		{"", "https://gzdaily.dayoo.com/h5/html5/2025-08/14/content_1.htm", "2025-08-14"},
		{"档案编号 20250814", "", "2025-08-14"},
		{"没有日期", "", ""},
	}
	for _, c := range cases {
		got := ExtractDateFuzzy(c.text, c.url)
		if got != c.want {
			t.Fatalf("ExtractDateFuzzy(%q, %q) = %q, want %q", c.text, c.url, got, c.want)
		}
		if got != "" && !ymd.MatchString(got) {
			t.Fatalf("ExtractDateFuzzy output not normalized: %q", got)
		}
	}
}

func TestWithinRangeFailClosed(t *testing.T) {
	// 请求了区间时，未知日期必须被排除
	if WithinRange("", "2025-08-01", "2025-08-02") {
		t.Fatalf("empty date should be outside a non-empty range")
	}
	if WithinRange("", "2025-08-01", "") {
		t.Fatalf("empty date should be outside when only start is set")
	}
	// 没有区间时全部放行，包括未知日期
	if !WithinRange("", "", "") {
		t.Fatalf("empty date should pass when no range requested")
	}
	if !WithinRange("2025-08-01", "", "") {
		t.Fatalf("any date should pass when no range requested")
	}
}

func TestWithinRangeBounds(t *testing.T) {
	if !WithinRange("2025-08-01", "2025-08-01", "2025-08-02") {
		t.Fatalf("start boundary should be inclusive")
	}
	if !WithinRange("2025-08-02", "2025-08-01", "2025-08-02") {
		t.Fatalf("end boundary should be inclusive")
	}
	if WithinRange("2025-08-03", "2025-08-01", "2025-08-02") {
		t.Fatalf("date after end should be rejected")
	}
	if WithinRange("2025-07-31", "2025-08-01", "") {
		t.Fatalf("date before start should be rejected")
	}
	if WithinRange("not-a-date", "2025-08-01", "2025-08-02") {
		t.Fatalf("unparseable date should be rejected")
	}
}
