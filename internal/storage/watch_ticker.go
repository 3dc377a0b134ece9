package storage

import (
	"context"
	"errors"
	"time"

	"github.com/LJTian/TickerNews/internal/news"
)

var ErrInvalidTicker = errors.New("storage: invalid ticker")

// WatchTicker 关注列表：定时任务会为其中的代码预热缓存
type WatchTicker struct {
	Ticker    string    `gorm:"primaryKey;size:16" json:"ticker"`
	CreatedAt time.Time `json:"createdAt"`
}

// ListWatchTickers 按添加顺序返回
func (s *Store) ListWatchTickers(ctx context.Context) ([]string, error) {
	if s.DB == nil {
		return nil, ErrNoDatabase
	}
	var list []WatchTicker
	if err := s.DB.WithContext(ctx).Order("created_at ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	out := make([]string, 0, len(list))
	for _, r := range list {
		out = append(out, r.Ticker)
	}
	return out, nil
}

// AddWatchTicker 已存在则忽略；返回规范化后的代码
func (s *Store) AddWatchTicker(ctx context.Context, ticker string) (string, error) {
	if s.DB == nil {
		return "", ErrNoDatabase
	}
	sym := news.NormalizeTicker(ticker)
	if sym == "" {
		return "", ErrInvalidTicker
	}
	r := WatchTicker{Ticker: sym, CreatedAt: time.Now()}
	if err := s.DB.WithContext(ctx).Where("ticker = ?", sym).FirstOrCreate(&r).Error; err != nil {
		return "", err
	}
	return sym, nil
}

func (s *Store) RemoveWatchTicker(ctx context.Context, ticker string) error {
	if s.DB == nil {
		return ErrNoDatabase
	}
	sym := news.NormalizeTicker(ticker)
	if sym == "" {
		return ErrInvalidTicker
	}
	return s.DB.WithContext(ctx).Where("ticker = ?", sym).Delete(&WatchTicker{}).Error
}
