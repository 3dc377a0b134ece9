package news

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"github.com/LJTian/TickerNews/internal/collector"
	"github.com/LJTian/TickerNews/internal/processor"
)

const (
	cacheWriteTimeout = 3 * time.Second
	refreshKeyPrefix  = "refresh:"
)

type Options struct {
	CacheTTL       time.Duration
	RequestTimeout time.Duration
	FetchTimeout   time.Duration
	// Retries 列表页抓取失败后的重试次数，只对超时、网络错误、5xx/429 生效
	Retries int
	// BreakerFailures 连续失败多少次后熔断该源；0 表示不熔断
	BreakerFailures uint32
	BreakerCooldown time.Duration
	Now             func() time.Time
}

func (o *Options) setDefaults() {
	if o.CacheTTL <= 0 {
		o.CacheTTL = 5 * time.Minute
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 25 * time.Second
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 10 * time.Second
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = time.Minute
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Service 聚合多个新闻源：缓存优先，未命中时并行抓取各源、补全正文、合并结果。
// 进程启动时创建一次，并发安全
type Service struct {
	sources   []*collector.Source
	enricher  *collector.Enricher
	processor *processor.SimpleProcessor
	cache     Cache
	opts      Options

	breakers map[string]*gobreaker.CircuitBreaker
	group    singleflight.Group
	pending  sync.WaitGroup
}

func NewService(sources []*collector.Source, enricher *collector.Enricher, p *processor.SimpleProcessor, cache Cache, opts Options) *Service {
	opts.setDefaults()
	if cache == nil {
		cache = NopCache{}
	}
	s := &Service{
		sources:   sources,
		enricher:  enricher,
		processor: p,
		cache:     cache,
		opts:      opts,
		breakers:  make(map[string]*gobreaker.CircuitBreaker, len(sources)),
	}
	if opts.BreakerFailures > 0 {
		for _, src := range sources {
			s.breakers[src.Name()] = newBreaker(src.Name(), opts.BreakerFailures, opts.BreakerCooldown)
		}
	}
	return s
}

func newBreaker(name string, failures uint32, cooldown time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		// 整个请求超时导致的取消不算源站故障
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("source %s breaker: %s -> %s", name, from, to)
		},
	})
}

// Sources 已注册的数据源配置
func (s *Service) Sources() []collector.SourceConfig {
	out := make([]collector.SourceConfig, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, src.Config)
	}
	return out
}

// GetNews 调用方已完成鉴权。任何源失败都不会让调用失败；只有全部源失败且无缓存时返回 status=error
func (s *Service) GetNews(ctx context.Context, ticker string) AggregateResult {
	sym := NormalizeTicker(ticker)
	if sym == "" {
		return s.errorResult(ticker, MessageBadTicker)
	}

	if cached, ok := s.cache.Get(ctx, sym); ok {
		res := *cached
		res.Articles = append([]Article(nil), cached.Articles...)
		res.Status = StatusSuccess
		res.Message = MessageFromCache
		res.ServedFromCache = true
		return res
	}

	// 同一代码的并发未命中只抓取一次
	ch := s.group.DoChan(sym, func() (any, error) {
		res, complete := s.scrape(ctx, sym)
		if complete {
			s.scheduleCacheWrite(sym, res)
		}
		return res, nil
	})

	select {
	case r := <-ch:
		res := r.Val.(AggregateResult)
		res.Articles = append([]Article(nil), res.Articles...)
		return res
	case <-ctx.Done():
		return s.errorResult(sym, MessageCancelled)
	}
}

// Refresh 跳过缓存读取直接抓取，成功后同步写缓存；供定时预热使用
func (s *Service) Refresh(ctx context.Context, ticker string) AggregateResult {
	sym := NormalizeTicker(ticker)
	if sym == "" {
		return s.errorResult(ticker, MessageBadTicker)
	}
	// 并发的强制刷新只抓取一次，抓取受 RequestTimeout 约束
	v, _, _ := s.group.Do(refreshKeyPrefix+sym, func() (any, error) {
		res, complete := s.scrape(ctx, sym)
		if complete {
			wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheWriteTimeout)
			defer cancel()
			s.cache.Set(wctx, sym, &res, s.opts.CacheTTL)
		}
		return res, nil
	})
	res := v.(AggregateResult)
	res.Articles = append([]Article(nil), res.Articles...)
	return res
}

// Close 等待尚未完成的异步缓存写入
func (s *Service) Close() {
	s.pending.Wait()
}

func (s *Service) scheduleCacheWrite(ticker string, res AggregateResult) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
		defer cancel()
		s.cache.Set(ctx, ticker, &res, s.opts.CacheTTL)
	}()
}

type branchResult struct {
	idx      int
	articles []collector.Article
	err      error
}

// scrape 每个源一个分支并行执行。整体超时后只合并已完成的分支；
// complete=false 表示失败或结果不完整，不写缓存
func (s *Service) scrape(parent context.Context, ticker string) (res AggregateResult, complete bool) {
	// 不跟随单个调用方取消：singleflight 下结果会被其它等待者复用
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.opts.RequestTimeout)
	defer cancel()

	run := uuid.NewString()[:8]
	now := s.opts.Now()
	start := time.Now()

	if len(s.sources) == 0 {
		log.Printf("run=%s ticker=%s: no sources configured", run, ticker)
		return s.errorResult(ticker, MessageNoSources), false
	}

	results := make(chan branchResult, len(s.sources))
	for i, src := range s.sources {
		go func(idx int, src *collector.Source) {
			arts, err := s.runBranch(ctx, src, ticker, now)
			results <- branchResult{idx: idx, articles: arts, err: err}
		}(i, src)
	}

	perSource := make([][]collector.Article, len(s.sources))
	finished, failed, timedOut := 0, 0, 0
wait:
	for finished < len(s.sources) {
		select {
		case r := <-results:
			finished++
			name := s.sources[r.idx].Name()
			if r.err != nil {
				failed++
				// 与整体超时同时返回的失败按未完成处理
				if ctx.Err() != nil {
					timedOut++
				}
				log.Printf("run=%s ticker=%s source=%s failed: %v", run, ticker, name, r.err)
				continue
			}
			log.Printf("run=%s ticker=%s source=%s done, articles=%d", run, ticker, name, len(r.articles))
			perSource[r.idx] = r.articles
		case <-ctx.Done():
			log.Printf("run=%s ticker=%s: deadline reached, %d/%d sources finished", run, ticker, finished, len(s.sources))
			break wait
		}
	}

	unfinished := len(s.sources) - finished
	incomplete := unfinished + timedOut
	if failed+unfinished == len(s.sources) {
		return s.errorResult(ticker, MessageNoSources), false
	}

	merged := make([]Article, 0)
	for _, arts := range perSource {
		for _, a := range arts {
			merged = append(merged, fromCollector(a))
		}
	}

	res = AggregateResult{
		Ticker:    ticker,
		Timestamp: now,
		Articles:  merged,
		Status:    StatusSuccess,
	}
	if incomplete > 0 {
		res.Message = fmt.Sprintf(messagePartialFmt, incomplete)
	}
	log.Printf("run=%s ticker=%s: %d articles from %d sources in %s", run, ticker, len(merged), finished-failed, time.Since(start).Round(time.Millisecond))
	return res, incomplete == 0
}

// runBranch 单个源的完整流程；任何错误或 panic 都停在这里
func (s *Service) runBranch(ctx context.Context, src *collector.Source, ticker string, now time.Time) (arts []collector.Article, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	var items []collector.ListingItem
	if cb, ok := s.breakers[src.Name()]; ok {
		v, err := cb.Execute(func() (any, error) {
			return s.listing(ctx, src, ticker, now)
		})
		if err != nil {
			return nil, err
		}
		items = v.([]collector.ListingItem)
	} else {
		items, err = s.listing(ctx, src, ticker, now)
		if err != nil {
			return nil, err
		}
	}

	if len(items) == 0 {
		return nil, nil
	}
	return s.enricher.Enrich(ctx, src, items), nil
}

// listing 抓取列表页（可重试）并抽取、清洗条目
func (s *Service) listing(ctx context.Context, src *collector.Source, ticker string, now time.Time) ([]collector.ListingItem, error) {
	pageURL := src.Config.URL(ticker)

	var doc *collector.Document
	op := func() error {
		fctx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
		defer cancel()
		d, err := src.FetchDocument(fctx, pageURL)
		if err != nil {
			if collector.IsRetryable(err) {
				log.Printf("fetch listing: source=%s url=%s: %v", src.Name(), pageURL, err)
				return err
			}
			return backoff.Permanent(err)
		}
		doc = d
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 300 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.opts.Retries)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, fmt.Errorf("fetch listing %s: %w", pageURL, err)
	}

	items, err := src.Extractor.ExtractListing(doc, now)
	if err != nil {
		return nil, fmt.Errorf("extract listing: %w", err)
	}
	return s.processor.Process(items, now), nil
}

func (s *Service) errorResult(ticker, msg string) AggregateResult {
	return AggregateResult{
		Ticker:    ticker,
		Timestamp: s.opts.Now(),
		Articles:  []Article{},
		Status:    StatusError,
		Message:   msg,
	}
}
