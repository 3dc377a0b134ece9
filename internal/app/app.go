package app

import (
	"fmt"
	"log"
	"strings"

	"github.com/LJTian/TickerNews/internal/collector"
	"github.com/LJTian/TickerNews/internal/config"
	"github.com/LJTian/TickerNews/internal/news"
	"github.com/LJTian/TickerNews/internal/processor"
	"github.com/LJTian/TickerNews/internal/scheduler"
	"github.com/LJTian/TickerNews/internal/storage"
	"github.com/LJTian/TickerNews/internal/workerpool"
)

// 抓取后端
const (
	BackendHTTP    = "http"
	BackendColly   = "colly"
	BackendBrowser = "browser"
)

// App 把配置、存储、抓取器与聚合服务组装在一起，cmd/api 与 cmd/collect 共用
type App struct {
	Config *config.Config
	Store  *storage.Store
	News   *news.Service

	pool     *workerpool.Pool
	fetchers *fetcherSet
}

func New(cfg *config.Config) (*App, error) {
	store, err := storage.NewStore(cfg.PostgresDSN, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	cfgs, err := collector.LoadSources(cfg.SourcesFile)
	if err != nil {
		store.Close()
		return nil, err
	}
	// 数据库中被禁用的渠道不参与聚合
	cfgs, err = store.SyncSources(cfgs)
	if err != nil {
		store.Close()
		return nil, err
	}

	fs := newFetcherSet(cfg)
	dates := collector.NewDateNormalizer(cfg.RecencyWindow)

	sources := make([]*collector.Source, 0, len(cfgs))
	for _, sc := range cfgs {
		ex, err := collector.NewExtractor(sc, dates)
		if err != nil {
			fs.close()
			store.Close()
			return nil, err
		}
		f, err := fs.get(sc.Fetcher)
		if err != nil {
			log.Printf("warn: source %s: %v, skipped", sc.Name, err)
			continue
		}
		sources = append(sources, &collector.Source{Config: sc, Extractor: ex, Fetcher: f})
	}
	log.Printf("registered %d sources", len(sources))

	pool := workerpool.New(cfg.EnrichWorkers)
	svc := news.NewService(
		sources,
		collector.NewEnricher(pool, cfg.FetchTimeout),
		processor.NewSimpleProcessor(dates, cfg.DropUndated),
		storage.NewNewsCache(store.Redis),
		news.Options{
			CacheTTL:        cfg.CacheTTL,
			RequestTimeout:  cfg.RequestTimeout,
			FetchTimeout:    cfg.FetchTimeout,
			Retries:         cfg.FetchRetries,
			BreakerFailures: cfg.BreakerFailures,
			BreakerCooldown: cfg.BreakerCooldown,
		},
	)

	return &App{
		Config:   cfg,
		Store:    store,
		News:     svc,
		pool:     pool,
		fetchers: fs,
	}, nil
}

// WatchLister 未配置数据库时返回 nil，只使用 WATCH_TICKERS
func (a *App) WatchLister() scheduler.TickerLister {
	if a.Store.DB == nil {
		return nil
	}
	return a.Store.ListWatchTickers
}

// Close 先等待缓存写入，再释放 worker 池、浏览器与连接
func (a *App) Close() {
	a.News.Close()
	a.pool.Close()
	a.fetchers.close()
	a.Store.Close()
}

// fetcherSet 按后端名懒创建抓取器，同一后端所有源共用一个实例
type fetcherSet struct {
	cfg     *config.Config
	relay   collector.Relay
	http    *collector.HTTPFetcher
	colly   *collector.CollyFetcher
	browser *collector.BrowserFetcher
}

func newFetcherSet(cfg *config.Config) *fetcherSet {
	return &fetcherSet{
		cfg:   cfg,
		relay: collector.Relay{URL: cfg.ProxyURL, APIKey: cfg.ProxyAPIKey},
	}
}

// get backend 为空时使用 FETCH_BACKEND
func (s *fetcherSet) get(backend string) (collector.Fetcher, error) {
	backend = strings.ToLower(strings.TrimSpace(backend))
	if backend == "" {
		backend = s.cfg.FetchBackend
	}
	switch backend {
	case "", BackendHTTP:
		if s.http == nil {
			s.http = collector.NewHTTPFetcher(s.cfg.FetchTimeout, s.relay, s.cfg.FetchRPS)
		}
		return s.http, nil
	case BackendColly:
		if s.colly == nil {
			s.colly = collector.NewCollyFetcher(s.cfg.FetchTimeout, s.relay)
		}
		return s.colly, nil
	case BackendBrowser:
		if s.browser == nil {
			b, err := collector.NewBrowserFetcher(s.cfg.FetchTimeout, s.relay)
			if err != nil {
				return nil, err
			}
			s.browser = b
		}
		return s.browser, nil
	}
	return nil, fmt.Errorf("unknown fetch backend %q", backend)
}

func (s *fetcherSet) close() {
	if s.browser != nil {
		s.browser.Close()
	}
}
