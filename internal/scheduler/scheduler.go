package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/LJTian/TickerNews/internal/news"
)

// Refresher 跳过缓存抓取一次并写缓存，由 news.Service 实现
type Refresher interface {
	Refresh(ctx context.Context, ticker string) news.AggregateResult
}

// TickerLister 返回需要预热的代码，例如数据库中的关注列表
type TickerLister func(ctx context.Context) ([]string, error)

// 同时预热的代码数；每个代码内部还会并行抓取各源
const refreshParallelism = 2

// Scheduler 定时为关注的代码预热缓存，使用户请求大多命中缓存
type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	static    []string
	lister    TickerLister
	timeout   time.Duration
}

// New static 来自 WATCH_TICKERS；lister 可为 nil
func New(spec string, r Refresher, static []string, lister TickerLister, timeout time.Duration) (*Scheduler, error) {
	c := cron.New()

	s := &Scheduler{
		cron:      c,
		refresher: r,
		static:    static,
		lister:    lister,
		timeout:   timeout,
	}

	_, err := c.AddFunc(spec, s.runOnce)
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	// 延迟执行首轮预热，避免与启动后的首批用户请求争抢源站配额
	const startupDelay = 15 * time.Second
	time.AfterFunc(startupDelay, func() {
		go s.runOnce()
	})
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce 对外暴露的单次执行入口，方便手动触发预热
func (s *Scheduler) RunOnce() {
	s.runOnce()
}

func (s *Scheduler) runOnce() {
	tickers := s.tickers()
	if len(tickers) == 0 {
		log.Println("prewarm job: no watched tickers")
		return
	}
	log.Printf("start prewarm job, tickers=%v", tickers)

	var g errgroup.Group
	g.SetLimit(refreshParallelism)
	for _, t := range tickers {
		ticker := t
		g.Go(func() error {
			ctx := context.Background()
			if s.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, s.timeout)
				defer cancel()
			}
			res := s.refresher.Refresh(ctx, ticker)
			if res.Status != news.StatusSuccess {
				log.Printf("prewarm %s error: %s", ticker, res.Message)
				return nil
			}
			log.Printf("prewarm %s done, articles=%d", ticker, len(res.Articles))
			return nil
		})
	}
	_ = g.Wait()
	log.Println("prewarm job done (all tickers)")
}

// tickers 合并静态配置与关注列表，规范化并去重
func (s *Scheduler) tickers() []string {
	all := append([]string(nil), s.static...)
	if s.lister != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		list, err := s.lister(ctx)
		cancel()
		if err != nil {
			log.Printf("list watch tickers error: %v", err)
		}
		all = append(all, list...)
	}

	seen := make(map[string]struct{}, len(all))
	out := make([]string, 0, len(all))
	for _, t := range all {
		sym := news.NormalizeTicker(t)
		if sym == "" {
			continue
		}
		if _, ok := seen[sym]; ok {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out
}
