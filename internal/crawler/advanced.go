package crawler

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"

	"github.com/LJTian/MediaTrack/internal/dateparse"
)

var chromeBinaries = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"chrome",
}

// BrowserAvailable 检查本机是否装了可用的 Chrome/Chromium
func BrowserAvailable() bool {
	for _, bin := range chromeBinaries {
		if _, err := exec.LookPath(bin); err == nil {
			return true
		}
	}
	return false
}

// AdvancedCrawler 在 GenericCrawler 基础上先用无头浏览器渲染页面，
// 应对前端渲染的站点；渲染失败时回退到普通抓取
type AdvancedCrawler struct {
	GenericCrawler
	RenderTimeout time.Duration
}

func (a *AdvancedCrawler) Name() string { return "advanced" }

func (a *AdvancedCrawler) Crawl(startDate, endDate string) ([]Article, error) {
	urls := a.Search(a.query(), searchResultMax)
	if len(urls) == 0 {
		return nil, nil
	}

	timeout := a.RenderTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	out := make([]Article, 0, len(urls))
	for _, u := range urls {
		html := a.render(browserCtx, u, timeout)
		if html == "" {
			// 渲染失败退回普通抓取
			var err error
			html, err = a.Fetcher.Fetch(u)
			if err != nil || html == "" {
				continue
			}
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			continue
		}
		out = append(out, Article{
			Title:   pageTitle(doc),
			URL:     u,
			Source:  a.Domain,
			Date:    dateparse.ExtractDate(html, u),
			Excerpt: firstParagraph(doc, 240),
			Channel: ChannelSearch,
		})
	}
	return out, nil
}

func (a *AdvancedCrawler) render(parent context.Context, u string, timeout time.Duration) string {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	var html string
	err := chromedp.Run(ctx,
		chromedp.Navigate(u),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return ""
	}
	return html
}
