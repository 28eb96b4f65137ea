package crawler

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/net/html/charset"
)

const (
	fetchTimeout = 12 * time.Second
	maxBodyBytes = 4 << 20
	browserUA    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// Fetcher 抽象页面抓取，便于测试时注入假实现
type Fetcher interface {
	Fetch(url string) (string, error)
}

// HTTPFetcher 是默认实现，自动按响应头/页面声明的编码转成 UTF-8
// （国内老站点大量用 GBK/GB2312）
type HTTPFetcher struct {
	Client    *http.Client
	UserAgent string
}

func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		Client:    &http.Client{Timeout: fetchTimeout},
		UserAgent: browserUA,
	}
}

func (f *HTTPFetcher) Fetch(u string) (string, error) {
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("构造请求失败: %w", err)
	}
	req.Header.Set("User-Agent", f.UserAgent)
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9")

	resp, err := f.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("请求 %s 失败: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("请求 %s 返回状态码 %d", u, resp.StatusCode)
	}

	var r io.Reader = io.LimitReader(resp.Body, maxBodyBytes)
	if cr, err := charset.NewReader(r, resp.Header.Get("Content-Type")); err == nil {
		r = cr
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("读取 %s 响应失败: %w", u, err)
	}
	return string(body), nil
}
