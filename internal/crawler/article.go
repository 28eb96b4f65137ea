// Package crawler 实现多渠道的文章发现与聚合：
// 渠道 1（搜索引擎）、渠道 2（站点 URL 形态枚举）、渠道 W（微信公众号），
// 由 Manager 统一编排、去重、过滤。
package crawler

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// 渠道标签
const (
	ChannelSearch  = "search"
	ChannelPattern = "pattern"
	ChannelWechat  = "wechat"
)

// Article 是所有渠道统一的输出结构，URL 是去重主键
type Article struct {
	Title          string `json:"title"`
	URL            string `json:"url"`
	Source         string `json:"source"`
	Date           string `json:"date"` // YYYY-MM-DD，空串表示未知
	Excerpt        string `json:"excerpt"`
	Channel        string `json:"channel"`
	PredictedLabel int    `json:"predicted_label"`
}

// Crawler 抽象一个发现渠道
type Crawler interface {
	Name() string
	Crawl(startDate, endDate string) ([]Article, error)
}

// metaContent 按顺序查 meta 标签（name= 与 property= 都认），返回第一个非空 content
func metaContent(doc *goquery.Document, names ...string) string {
	for _, nm := range names {
		for _, sel := range []string{`meta[name="` + nm + `"]`, `meta[property="` + nm + `"]`} {
			if content, ok := doc.Find(sel).First().Attr("content"); ok {
				if c := strings.TrimSpace(content); c != "" {
					return c
				}
			}
		}
	}
	return ""
}

func pageTitle(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// firstParagraph 取第一段正文文本作为节选
func firstParagraph(doc *goquery.Document, limit int) string {
	text := strings.TrimSpace(doc.Find("p").First().Text())
	return truncateRunes(text, limit)
}

// truncateRunes 按 rune 截断，避免把中文截成半个字符
func truncateRunes(s string, limit int) string {
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit])
}
