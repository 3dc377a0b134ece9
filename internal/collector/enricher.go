package collector

import (
	"context"
	"log"
	"time"

	"github.com/LJTian/TickerNews/internal/workerpool"
)

// Source 已注册的数据源：配置 + 抽取策略 + 抓取器
type Source struct {
	Config    SourceConfig
	Extractor Extractor
	Fetcher   Fetcher
}

func (s *Source) Name() string {
	return s.Config.Name
}

// FetchDocument 用该源的请求头与代理设置抓取一个页面
func (s *Source) FetchDocument(ctx context.Context, rawURL string) (*Document, error) {
	body, err := s.Fetcher.Fetch(ctx, Request{
		URL:      rawURL,
		Headers:  s.Config.RequestHeaders(),
		UseProxy: s.Config.UseProxy,
	})
	if err != nil {
		return nil, err
	}
	return NewDocument(rawURL, body), nil
}

// Enricher 为列表中的每条新闻抓取正文。任务提交到共享的固定大小 worker 池，
// 单条失败只会让该条正文为空
type Enricher struct {
	pool         *workerpool.Pool
	fetchTimeout time.Duration
	now          func() time.Time
}

func NewEnricher(pool *workerpool.Pool, fetchTimeout time.Duration) *Enricher {
	if fetchTimeout <= 0 {
		fetchTimeout = defaultFetchTimeout
	}
	return &Enricher{pool: pool, fetchTimeout: fetchTimeout, now: time.Now}
}

type enrichResult struct {
	idx  int
	body string
	at   time.Time
}

// Enrich 返回与 items 顺序一致的文章列表；ctx 结束时未完成的条目正文为空
func (e *Enricher) Enrich(ctx context.Context, src *Source, items []ListingItem) []Article {
	articles := make([]Article, len(items))
	for i, it := range items {
		articles[i] = Article{ListingItem: it}
	}
	if len(items) == 0 {
		return articles
	}

	// 带缓冲，任务写结果永不阻塞，即使调用方已经因超时返回
	results := make(chan enrichResult, len(items))
	submitted := 0
	for i, it := range items {
		idx, link := i, it.URL
		err := e.pool.Submit(ctx, func() {
			r := enrichResult{idx: idx}
			// 抽取 panic 时也要回报，否则会一直等到超时
			defer func() {
				r.at = e.now()
				results <- r
			}()
			r.body = e.fetchBody(ctx, src, link)
		})
		if err != nil {
			log.Printf("enrich %s: stop submitting at item %d/%d: %v", src.Name(), i, len(items), err)
			break
		}
		submitted++
	}

	for received := 0; received < submitted; received++ {
		select {
		case r := <-results:
			articles[r.idx].Body = r.body
			articles[r.idx].FetchedAt = r.at
		case <-ctx.Done():
			log.Printf("enrich %s: %v, %d/%d bodies done", src.Name(), ctx.Err(), received, len(items))
			return fillFetchedAt(articles, e.now())
		}
	}
	return fillFetchedAt(articles, e.now())
}

func (e *Enricher) fetchBody(ctx context.Context, src *Source, link string) string {
	ctx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	defer cancel()

	doc, err := src.FetchDocument(ctx, link)
	if err != nil {
		log.Printf("enrich article error: source=%s url=%s: %v", src.Name(), link, err)
		return ""
	}
	body := src.Extractor.ExtractArticle(doc)
	if body == "" {
		log.Printf("enrich article empty: source=%s url=%s", src.Name(), link)
	}
	return body
}

func fillFetchedAt(articles []Article, now time.Time) []Article {
	for i := range articles {
		if articles[i].FetchedAt.IsZero() {
			articles[i].FetchedAt = now
		}
	}
	return articles
}
