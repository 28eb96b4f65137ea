// Package search 聚合多个搜索引擎（DuckDuckGo / Bing / 百度）的网页结果，
// 输出解包后的真实 URL 列表。单个引擎失败只会让它贡献为零，不影响整体。
package search

import (
	"encoding/base64"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

// Func 是调用方依赖的检索签名，便于测试注入假实现
type Func func(query string, maxResults int) []string

const defaultUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

var seDomains = []string{"bing.com", "duckduckgo.com", "baidu.com", "google.com", "google.com.hk", "so.com", "sogou.com"}

func isSearchEngine(host string) bool {
	host = strings.ToLower(host)
	for _, d := range seDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

type Meta struct {
	UserAgent string
	Timeout   time.Duration
	client    *http.Client
}

func NewMeta() *Meta {
	timeout := 12 * time.Second
	return &Meta{
		UserAgent: defaultUA,
		Timeout:   timeout,
		client:    &http.Client{Timeout: timeout},
	}
}

// Search 依次查询各引擎，解包重定向链接、去掉搜索引擎自身域名，
// 顺序去重并截断到 maxResults。
func (m *Meta) Search(query string, maxResults int) []string {
	if maxResults <= 0 {
		maxResults = 20
	}
	var out []string
	for _, engine := range []func(string, int) []string{m.duckduckgo, m.bing, m.baidu} {
		part := engine(query, maxResults)
		out = dedup(append(out, part...), maxResults)
		if len(out) >= maxResults {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}
	return out
}

func dedup(urls []string, maxResults int) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		nu := strings.TrimSpace(u)
		if i := strings.Index(nu, "#"); i >= 0 {
			nu = nu[:i]
		}
		if nu == "" {
			continue
		}
		if _, ok := seen[nu]; ok {
			continue
		}
		seen[nu] = struct{}{}
		out = append(out, nu)
		if len(out) >= maxResults {
			break
		}
	}
	return out
}

func (m *Meta) newCollector() *colly.Collector {
	c := colly.NewCollector(colly.UserAgent(m.UserAgent))
	c.SetRequestTimeout(m.Timeout)
	return c
}

// keepResult 解包并过滤一条候选链接，合格则追加到 list
func (m *Meta) keepResult(list *[]string, href string) {
	real := m.resolveWrapped(href)
	if !strings.HasPrefix(real, "http") {
		return
	}
	p, err := url.Parse(real)
	if err != nil || isSearchEngine(p.Host) {
		return
	}
	*list = append(*list, real)
}

func (m *Meta) duckduckgo(query string, maxResults int) []string {
	var urls []string
	c := m.newCollector()
	c.OnHTML("a.result__a", func(e *colly.HTMLElement) {
		href := strings.TrimSpace(e.Attr("href"))
		if href == "" {
			return
		}
		if strings.HasPrefix(href, "/l/") {
			href = "https://duckduckgo.com" + href
		}
		m.keepResult(&urls, href)
	})
	if err := c.Visit("https://duckduckgo.com/html/?q=" + url.QueryEscape(query)); err != nil {
		log.Printf("search: duckduckgo %v", err)
		return nil
	}
	return dedup(urls, maxResults)
}

func (m *Meta) bing(query string, maxResults int) []string {
	var urls []string
	c := m.newCollector()
	c.OnHTML("li.b_algo h2 a, h2 a.btop", func(e *colly.HTMLElement) {
		m.keepResult(&urls, e.Attr("href"))
	})
	// 兜底把 ck/a 包装链接也抓出来解包
	c.OnHTML("a[href^='/ck/'], a[href^='https://www.bing.com/ck/']", func(e *colly.HTMLElement) {
		m.keepResult(&urls, e.Request.AbsoluteURL(e.Attr("href")))
	})
	q := url.Values{"q": {query}, "setlang": {"zh-Hans"}, "ensearch": {"1"}}
	if err := c.Visit("https://www.bing.com/search?" + q.Encode()); err != nil {
		log.Printf("search: bing %v", err)
		return nil
	}
	return dedup(urls, maxResults)
}

func (m *Meta) baidu(query string, maxResults int) []string {
	var urls []string
	c := m.newCollector()
	c.OnHTML("#content_left h3 a, #content_left .result h3 a", func(e *colly.HTMLElement) {
		m.keepResult(&urls, e.Attr("href"))
	})
	if err := c.Visit("https://www.baidu.com/s?wd=" + url.QueryEscape(query)); err != nil {
		log.Printf("search: baidu %v", err)
		return nil
	}
	return dedup(urls, maxResults)
}

var b64ish = regexp.MustCompile(`^[A-Za-z0-9+/=]+$`)

// decodeBingCK 解开 bing.com/ck/a 包装；参数可能是 urlencoded 也可能是 base64
func decodeBingCK(raw string) string {
	p, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	qs := p.Query()
	val := qs.Get("u")
	if val == "" {
		val = qs.Get("r")
	}
	if val == "" {
		return raw
	}
	if dec, err := url.QueryUnescape(val); err == nil {
		val = dec
	}
	if b64ish.MatchString(val) && (strings.HasPrefix(val, "aHR0") || strings.HasPrefix(val, "aHRp")) {
		if b, err := base64.StdEncoding.DecodeString(padBase64(strings.TrimRight(val, "="))); err == nil {
			if s := string(b); strings.HasPrefix(s, "http") {
				return s
			}
		}
	}
	if strings.HasPrefix(val, "http") {
		return val
	}
	return raw
}

func padBase64(s string) string {
	if n := len(s) % 4; n != 0 {
		s += strings.Repeat("=", 4-n)
	}
	return s
}

// resolveWrapped 把搜索引擎的包装链接解成真实 URL；解不了就原样返回
func (m *Meta) resolveWrapped(u string) string {
	p, err := url.Parse(u)
	if err != nil {
		return u
	}
	host, path := strings.ToLower(p.Host), p.Path

	if strings.Contains(host, "duckduckgo.com") && strings.HasPrefix(path, "/l/") {
		if real := p.Query().Get("uddg"); real != "" {
			if dec, err := url.QueryUnescape(real); err == nil {
				real = dec
			}
			if strings.HasPrefix(real, "http") {
				return real
			}
		}
	}
	if strings.Contains(host, "bing.com") && (strings.HasPrefix(path, "/ck/") || path == "/r") {
		if real := decodeBingCK(u); strings.HasPrefix(real, "http") {
			return real
		}
	}
	if strings.Contains(host, "baidu.com") && strings.HasPrefix(path, "/link") {
		// 百度跳转链接只能跟随重定向取最终地址
		if m.client != nil {
			req, err := http.NewRequest(http.MethodGet, u, nil)
			if err == nil {
				req.Header.Set("User-Agent", m.UserAgent)
				if resp, err := m.client.Do(req); err == nil {
					final := resp.Request.URL.String()
					resp.Body.Close()
					if strings.HasPrefix(final, "http") {
						return final
					}
				}
			}
		}
	}
	return u
}
