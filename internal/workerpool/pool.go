package workerpool

import (
	"context"
	"errors"
	"log"
	"sync"
)

// ErrClosed 向已关闭的池提交任务
var ErrClosed = errors.New("workerpool: closed")

// Pool 固定大小、进程内长期存在的 worker 池。所有请求共享，控制对源站的总并发
type Pool struct {
	tasks chan func()
	quit  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
	size  int
}

func New(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	p := &Pool{
		tasks: make(chan func()),
		quit:  make(chan struct{}),
		size:  size,
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) Size() int { return p.size }

// Submit 阻塞直到有空闲 worker 接手任务，或 ctx 结束、池关闭
func (p *Pool) Submit(ctx context.Context, task func()) error {
	select {
	case <-p.quit:
		return ErrClosed
	default:
	}
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.quit:
		return ErrClosed
	}
}

// Close 停止接收任务并等待正在执行的任务结束
func (p *Pool) Close() {
	p.once.Do(func() {
		close(p.quit)
	})
	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case task := <-p.tasks:
			run(task)
		}
	}
}

// run 单个任务 panic 不能带走 worker
func run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("workerpool: task panic: %v", r)
		}
	}()
	task()
}
