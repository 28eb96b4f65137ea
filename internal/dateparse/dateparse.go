// Package dateparse 从文章页面和 URL 中恢复发布日期。
// 所有结果统一为补零的 YYYY-MM-DD，空串表示未知。
package dateparse

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const wechatHost = "mp.weixin.qq.com"

var (
	datePat = regexp.MustCompile(`(20\d{2})[-/.](0?[1-9]|1[0-2])[-/.](0?[1-9]|[12]\d|3[01])`)
	dateCN  = regexp.MustCompile(`(20\d{2})年(0?[1-9]|1[0-2])月(0?[1-9]|[12]\d|3[01])日`)

	// URL 路径中的日期形态，含 people.com.cn 的 /nX/yyyy/mmdd/ 变体
	dateURLPats = []*regexp.Regexp{
		regexp.MustCompile(`/(20\d{2})[-/]?(0[1-9]|1[0-2])[-/]?(0[1-9]|[12]\d|3[01])`),
		regexp.MustCompile(`/n\d/(20\d{2})/(0[1-9]|1[0-2])(0[1-9]|[12]\d)/`),
		regexp.MustCompile(`/(20\d{2})-(0[1-9]|1[0-2])-(0[1-9]|[12]\d|3[01])/`),
	}

	wechatCT = regexp.MustCompile(`var\s+ct\s*=\s*['"](\d{10})['"]`)
)

func pad(y, m, d string) string {
	yi, _ := strconv.Atoi(y)
	mi, _ := strconv.Atoi(m)
	di, _ := strconv.Atoi(d)
	return fmt.Sprintf("%04d-%02d-%02d", yi, mi, di)
}

// ExtractDate 按层级提取发布日期：JSON-LD -> meta -> 可见文本 -> 微信标记 -> URL。
// 第一个命中的层级生效；全部失败返回空串，调用方应把空串当作"未知"而非"今天"。
func ExtractDate(html, url string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return DateFromURL(url)
	}

	if d := fromJSONLD(doc); d != "" {
		return d
	}
	if d := fromMeta(doc); d != "" {
		return d
	}

	if strings.Contains(url, wechatHost) {
		if el := doc.Find("#publish_time").First(); el.Length() > 0 {
			if m := datePat.FindStringSubmatch(el.Text()); m != nil {
				return pad(m[1], m[2], m[3])
			}
		}
		if m := wechatCT.FindStringSubmatch(html); m != nil {
			if ts, err := strconv.ParseInt(m[1], 10, 64); err == nil {
				return time.Unix(ts, 0).UTC().Format("2006-01-02")
			}
		}
	}

	return DateFromURL(url)
}

func fromJSONLD(doc *goquery.Document) string {
	var out string
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var data any
		if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
			return true
		}
		arr, ok := data.([]any)
		if !ok {
			arr = []any{data}
		}
		for _, item := range arr {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			for _, key := range []string{"datePublished", "dateModified", "uploadDate"} {
				val, _ := obj[key].(string)
				if len(val) < 4 {
					continue
				}
				if m := datePat.FindStringSubmatch(val); m != nil {
					out = pad(m[1], m[2], m[3])
					return false
				}
			}
		}
		return true
	})
	return out
}

var metaSelectors = []string{
	`meta[property="article:published_time"]`,
	`meta[name="pubdate"]`,
	`meta[name="publishdate"]`,
	`meta[property="og:updated_time"]`,
	`meta[name="publish_time"]`,
	`meta[itemprop="datePublished"]`,
}

func fromMeta(doc *goquery.Document) string {
	for _, sel := range metaSelectors {
		content, ok := doc.Find(sel).First().Attr("content")
		if !ok {
			continue
		}
		if m := datePat.FindStringSubmatch(content); m != nil {
			return pad(m[1], m[2], m[3])
		}
	}

	// 兜底扫可见文本，限制在前 4000 个字符控制开销
	text := strings.Join(strings.Fields(doc.Text()), " ")
	if rs := []rune(text); len(rs) > 4000 {
		text = string(rs[:4000])
	}
	if m := dateCN.FindStringSubmatch(text); m != nil {
		return pad(m[1], m[2], m[3])
	}
	if m := datePat.FindStringSubmatch(text); m != nil {
		return pad(m[1], m[2], m[3])
	}
	return ""
}

// DateFromURL 从 URL 路径中读取日期，命中任一已知形态即返回。
func DateFromURL(u string) string {
	for _, rp := range dateURLPats {
		if m := rp.FindStringSubmatch(u); m != nil {
			return pad(m[1], m[2], m[3])
		}
	}
	return ""
}

var (
	fuzzyFull   = regexp.MustCompile(`(20\d{2})-(\d{1,2})-(\d{1,2})`)
	fuzzyLoose  = regexp.MustCompile(`(20\d{2})-(\d{1,2}).*?-(\d{1,2})`)
	fuzzyConcat = regexp.MustCompile(`(20\d{2})(\d{2})(\d{2})`)
)

// ExtractDateFuzzy 在没有结构化数据可用时做模糊提取：
// 归一化中文分隔符后按优先级匹配 yyyy-mm-dd、带路径分段的宽松形态、连写 yyyymmdd。
func ExtractDateFuzzy(text, url string) string {
	s := text + " " + url
	r := strings.NewReplacer("年", "-", "月", "-", "日", "-", ".", "-", "/", "-")
	s = r.Replace(s)

	if m := fuzzyFull.FindStringSubmatch(s); m != nil {
		return pad(m[1], m[2], m[3])
	}
	if m := fuzzyLoose.FindStringSubmatch(s); m != nil {
		return pad(m[1], m[2], m[3])
	}
	if m := fuzzyConcat.FindStringSubmatch(s); m != nil {
		return pad(m[1], m[2], m[3])
	}
	return ""
}

// WithinRange 判断日期是否落入请求区间（闭区间）。
// 严格模式约定：只要请求了区间，未知日期一律视为区间之外；没有区间时全部放行。
func WithinRange(date, start, end string) bool {
	if start == "" && end == "" {
		return true
	}
	if date == "" {
		return false
	}
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return false
	}
	if start != "" {
		s, err := time.Parse("2006-01-02", start)
		if err != nil || d.Before(s) {
			return false
		}
	}
	if end != "" {
		e, err := time.Parse("2006-01-02", end)
		if err != nil || d.After(e) {
			return false
		}
	}
	return true
}
