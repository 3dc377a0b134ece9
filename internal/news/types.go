package news

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/LJTian/TickerNews/internal/collector"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"

	MessageFromCache  = "Retrieved from cache"
	MessageNoSources  = "no news sources available"
	MessageBadTicker  = "invalid ticker"
	MessageCancelled  = "request cancelled"
	messagePartialFmt = "partial results: %d source(s) did not finish in time"
)

// Article 对外返回的一条新闻
type Article struct {
	Title         string    `json:"title"`
	URL           string    `json:"url"`
	Date          time.Time `json:"date"`
	Source        string    `json:"source"`
	Paragraphs    string    `json:"paragraphs"`
	DateEstimated bool      `json:"dateEstimated,omitempty"`
	FetchedAt     time.Time `json:"fetchedAt"`
}

// AggregateResult 一次聚合的结果，也是缓存中保存的内容
type AggregateResult struct {
	Ticker          string    `json:"ticker"`
	Timestamp       time.Time `json:"timestamp"`
	Articles        []Article `json:"articles"`
	Status          string    `json:"status"`
	Message         string    `json:"message,omitempty"`
	ServedFromCache bool      `json:"servedFromCache"`
}

// Cache 尽力而为的结果缓存：后端故障时 Get 视为未命中、Set 静默丢弃
type Cache interface {
	Get(ctx context.Context, ticker string) (*AggregateResult, bool)
	Set(ctx context.Context, ticker string, result *AggregateResult, ttl time.Duration)
}

// NopCache 未配置缓存时使用，永远未命中
type NopCache struct{}

func (NopCache) Get(context.Context, string) (*AggregateResult, bool) { return nil, false }
func (NopCache) Set(context.Context, string, *AggregateResult, time.Duration) {}

var tickerRe = regexp.MustCompile(`^[A-Z0-9^][A-Z0-9.\-^=]{0,14}$`)

// NormalizeTicker 统一为大写；不合法时返回空字符串
func NormalizeTicker(ticker string) string {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	if !tickerRe.MatchString(t) {
		return ""
	}
	return t
}

func fromCollector(a collector.Article) Article {
	return Article{
		Title:         a.Title,
		URL:           a.URL,
		Date:          a.PublishedAt,
		Source:        a.Source,
		Paragraphs:    a.Body,
		DateEstimated: a.DateEstimated,
		FetchedAt:     a.FetchedAt,
	}
}
