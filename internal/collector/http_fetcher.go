package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultFetchTimeout = 10 * time.Second

// HTTPFetcher 基于 net/http 的抓取器：共享连接池，按域名限速
type HTTPFetcher struct {
	client *http.Client
	relay  Relay
	rps    float64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPFetcher rps<=0 表示不限速
func NewHTTPFetcher(timeout time.Duration, relay Relay, rps float64) *HTTPFetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		relay:    relay,
		rps:      rps,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	target, err := f.relay.target(req)
	if err != nil {
		return nil, &FetchError{Kind: FetchNetwork, URL: req.URL, Err: err}
	}

	if l := f.limiter(target); l != nil {
		if err := l.Wait(ctx); err != nil {
			return nil, classifyError(req.URL, err)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &FetchError{Kind: FetchNetwork, URL: req.URL, Err: err}
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(req.URL, err)
	}
	defer resp.Body.Close()

	// 中转与直连都以非 200 视为失败
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, statusError(req.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, classifyError(req.URL, err)
	}
	return body, nil
}

// limiter 按 host 懒创建令牌桶
func (f *HTTPFetcher) limiter(rawURL string) *rate.Limiter {
	if f.rps <= 0 {
		return nil
	}
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		host = strings.ToLower(u.Host)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[host]
	if !ok {
		burst := int(f.rps)
		if burst < 1 {
			burst = 1
		}
		l = rate.NewLimiter(rate.Limit(f.rps), burst)
		f.limiters[host] = l
	}
	return l
}
