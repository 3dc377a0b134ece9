package collector

import (
	"context"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// CollyFetcher 使用 colly 发起请求；每次抓取新建 collector，避免跨请求共享回调状态
type CollyFetcher struct {
	timeout time.Duration
	relay   Relay
}

func NewCollyFetcher(timeout time.Duration, relay Relay) *CollyFetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &CollyFetcher{timeout: timeout, relay: relay}
}

func (f *CollyFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	target, err := f.relay.target(req)
	if err != nil {
		return nil, &FetchError{Kind: FetchNetwork, URL: req.URL, Err: err}
	}

	timeout := f.timeout
	if dl, ok := ctx.Deadline(); ok {
		if remain := time.Until(dl); remain < timeout {
			timeout = remain
		}
	}
	if timeout <= 0 {
		return nil, classifyError(req.URL, context.DeadlineExceeded)
	}

	c := colly.NewCollector(colly.AllowURLRevisit())
	c.SetRequestTimeout(timeout)
	c.MaxBodySize = maxDocumentBytes

	var (
		body   []byte
		status int
	)
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	hdr := http.Header{}
	for k, v := range req.Headers {
		hdr.Set(k, v)
	}

	done := make(chan error, 1)
	go func() {
		done <- c.Request(http.MethodGet, target, nil, nil, hdr)
	}()

	select {
	case <-ctx.Done():
		return nil, classifyError(req.URL, ctx.Err())
	case err := <-done:
		if status != 0 && status != http.StatusOK {
			return nil, statusError(req.URL, status)
		}
		if err != nil {
			return nil, classifyError(req.URL, err)
		}
		return body, nil
	}
}
