package collector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

// maxDocumentBytes 防止超大 HTML 占满内存
const maxDocumentBytes = 5 << 20 // 5MB

// Request 描述一次页面抓取
type Request struct {
	URL     string
	Headers map[string]string
	// UseProxy 为 true 且抓取器配置了中转 key 时，经由中转服务请求
	UseProxy bool
}

// Fetcher 抽象单次 HTTP GET，返回原始字节或 *FetchError；不做重试
type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

type FetchErrorKind int

const (
	FetchNetwork FetchErrorKind = iota
	FetchTimeout
	FetchHTTPStatus
)

func (k FetchErrorKind) String() string {
	switch k {
	case FetchTimeout:
		return "timeout"
	case FetchHTTPStatus:
		return "http_status"
	default:
		return "network"
	}
}

type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == FetchHTTPStatus {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable 超时、网络错误、5xx 与 429 可以重试，其余状态码重试也没有意义
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case FetchTimeout, FetchNetwork:
		return true
	case FetchHTTPStatus:
		return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// IsRetryable 供调用方的重试策略使用
func IsRetryable(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Retryable()
	}
	return false
}

// classifyError 把底层错误归类为超时或网络错误
func classifyError(rawURL string, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	kind := FetchNetwork
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		kind = FetchTimeout
	}
	return &FetchError{Kind: kind, URL: rawURL, Err: err}
}

func statusError(rawURL string, code int) *FetchError {
	return &FetchError{Kind: FetchHTTPStatus, URL: rawURL, StatusCode: code}
}

// relayURL 生成中转请求地址：{proxy}?api_key=KEY&url=TARGET
func relayURL(proxyURL, apiKey, target string) (string, error) {
	u, err := url.Parse(proxyURL)
	if err != nil {
		return "", fmt.Errorf("parse proxy url: %w", err)
	}
	q := u.Query()
	q.Set("api_key", apiKey)
	q.Set("url", target)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Relay 中转服务配置，APIKey 为空表示不启用
type Relay struct {
	URL    string
	APIKey string
}

func (r Relay) enabled() bool {
	return r.URL != "" && r.APIKey != ""
}

// target 返回真正要请求的地址
func (r Relay) target(req Request) (string, error) {
	if !req.UseProxy || !r.enabled() {
		return req.URL, nil
	}
	return relayURL(r.URL, r.APIKey, req.URL)
}
