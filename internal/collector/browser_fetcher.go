package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// BrowserFetcher 用 headless Chrome 渲染页面后取 HTML，适合列表由 JS 渲染的站点。
// 整个进程复用一个浏览器实例，每次抓取开一个新 tab
type BrowserFetcher struct {
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	timeout       time.Duration
	relay         Relay
}

func NewBrowserFetcher(timeout time.Duration, relay Relay) (*BrowserFetcher, error) {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), chromedp.DefaultExecAllocatorOptions[:]...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	// 预热浏览器，避免首个请求耗时过长
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("start headless browser: %w", err)
	}

	return &BrowserFetcher{
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
		timeout:       timeout,
		relay:         relay,
	}, nil
}

func (f *BrowserFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	target, err := f.relay.target(req)
	if err != nil {
		return nil, &FetchError{Kind: FetchNetwork, URL: req.URL, Err: err}
	}

	tabCtx, cancelTab := chromedp.NewContext(f.browserCtx)
	defer cancelTab()
	tabCtx, cancel := context.WithTimeout(tabCtx, f.timeout)
	defer cancel()
	// 调用方取消时同步关闭 tab
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	headers := network.Headers{}
	for k, v := range req.Headers {
		headers[k] = v
	}
	if err := chromedp.Run(tabCtx, network.Enable(), network.SetExtraHTTPHeaders(headers)); err != nil {
		return nil, f.wrapErr(ctx, req.URL, err)
	}

	resp, err := chromedp.RunResponse(tabCtx, chromedp.Navigate(target))
	if err != nil {
		return nil, f.wrapErr(ctx, req.URL, err)
	}
	if resp != nil && resp.Status != 200 {
		return nil, statusError(req.URL, int(resp.Status))
	}

	var html string
	if err := chromedp.Run(tabCtx,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return nil, f.wrapErr(ctx, req.URL, err)
	}
	if len(html) > maxDocumentBytes {
		html = html[:maxDocumentBytes]
	}
	return []byte(html), nil
}

func (f *BrowserFetcher) wrapErr(ctx context.Context, rawURL string, err error) *FetchError {
	if ctx.Err() != nil {
		return classifyError(rawURL, ctx.Err())
	}
	return classifyError(rawURL, err)
}

// Close 关闭浏览器进程
func (f *BrowserFetcher) Close() {
	f.cancelBrowser()
	f.cancelAlloc()
}
