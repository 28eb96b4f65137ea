package crawler

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/LJTian/MediaTrack/internal/dateparse"
	"github.com/LJTian/MediaTrack/internal/search"
)

const searchResultMax = 24

// GenericCrawler 是渠道 1：用搜索引擎 site: 查询定位文章，再抓页面提取元信息。
// Domain 为空时退化为纯关键词搜索。
type GenericCrawler struct {
	Domain   string
	Keywords []string
	Search   search.Func
	Fetcher  Fetcher
}

func (g *GenericCrawler) Name() string { return "generic" }

func (g *GenericCrawler) query() string {
	q := strings.Join(g.Keywords, " ")
	if g.Domain != "" {
		q = "site:" + g.Domain + " " + q
	}
	return q
}

func (g *GenericCrawler) Crawl(startDate, endDate string) ([]Article, error) {
	urls := g.Search(g.query(), searchResultMax)
	out := make([]Article, 0, len(urls))
	for _, u := range urls {
		html, err := g.Fetcher.Fetch(u)
		if err != nil || html == "" {
			continue
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			continue
		}

		title := metaContent(doc, "og:title", "twitter:title")
		if title == "" {
			title = pageTitle(doc)
		}
		excerpt := metaContent(doc, "og:description", "description", "twitter:description")
		if excerpt == "" {
			excerpt = firstParagraph(doc, 240)
		} else {
			excerpt = truncateRunes(excerpt, 240)
		}
		source := metaContent(doc, "og:site_name")
		if source == "" {
			source = g.Domain
		}

		out = append(out, Article{
			Title:   title,
			URL:     u,
			Source:  source,
			Date:    dateparse.ExtractDate(html, u),
			Excerpt: excerpt,
			Channel: ChannelSearch,
		})
	}
	return out, nil
}
