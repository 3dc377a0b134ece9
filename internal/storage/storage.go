package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/LJTian/TickerNews/internal/collector"
)

// ErrNoDatabase 未配置 POSTGRES_DSN 时，依赖数据库的操作返回该错误
var ErrNoDatabase = errors.New("storage: database not configured")

const (
	ChannelActive   = "active"
	ChannelDisabled = "disabled"
)

// Channel 描述一个新闻源，例如 reuters / yahoo-finance。
// Config 保存完整的 SourceConfig，可在库里直接改选择器，重启后生效
type Channel struct {
	ID      uint           `gorm:"primaryKey" json:"id"`
	Code    string         `gorm:"size:64;uniqueIndex" json:"code"`
	Name    string         `gorm:"size:128" json:"name"`
	BaseURL string         `gorm:"size:512" json:"baseUrl"`
	Status  string         `gorm:"size:32;index" json:"status"` // active / disabled
	Config  datatypes.JSON `gorm:"type:jsonb" json:"config"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Store struct {
	// DB 为 nil 表示未启用数据库
	DB    *gorm.DB
	Redis *redis.Client
}

// NewStore dsn 为空时只连接 Redis；Redis 不可用只打印警告，缓存按未命中处理
func NewStore(dsn, redisAddr, redisPassword string) (*Store, error) {
	s := &Store{}

	if dsn != "" {
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			return nil, err
		}
		if err := db.AutoMigrate(&Channel{}, &WatchTicker{}); err != nil {
			return nil, err
		}
		s.DB = db
	}

	if redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			Password: redisPassword,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("warn: redis ping failed: %v", err)
		}
		s.Redis = rdb
	}

	return s, nil
}

func (s *Store) Close() {
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.DB != nil {
		if sqlDB, err := s.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

// EnsureChannel 确保某个渠道存在；首次创建时写入当前配置
func (s *Store) EnsureChannel(cfg collector.SourceConfig) (*Channel, error) {
	if s.DB == nil {
		return nil, ErrNoDatabase
	}
	code := ChannelCode(cfg.Name)
	ch := &Channel{}
	if err := s.DB.Where("code = ?", code).First(ch).Error; err == nil {
		return ch, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode source %s: %w", cfg.Name, err)
	}
	ch = &Channel{
		Code:    code,
		Name:    cfg.Name,
		BaseURL: cfg.BaseURLTemplate,
		Status:  ChannelActive,
		Config:  datatypes.JSON(raw),
	}
	if err := s.DB.Create(ch).Error; err != nil {
		return nil, err
	}
	return ch, nil
}

// SyncSources 把内置/文件中的数据源登记为渠道，返回状态为 active 的数据源。
// 数据库中的配置优先于传入的配置；无法使用时退回传入的配置
func (s *Store) SyncSources(cfgs []collector.SourceConfig) ([]collector.SourceConfig, error) {
	if s.DB == nil {
		return cfgs, nil
	}
	out := make([]collector.SourceConfig, 0, len(cfgs))
	for _, cfg := range cfgs {
		ch, err := s.EnsureChannel(cfg)
		if err != nil {
			return nil, fmt.Errorf("ensure channel %s: %w", cfg.Name, err)
		}
		if ch.Status != ChannelActive {
			log.Printf("source %s disabled by channel status %q", cfg.Name, ch.Status)
			continue
		}
		out = append(out, channelSource(ch, cfg))
	}
	return out, nil
}

// channelSource 解析渠道中保存的配置
func channelSource(ch *Channel, fallback collector.SourceConfig) collector.SourceConfig {
	if len(ch.Config) == 0 {
		return fallback
	}
	var cfg collector.SourceConfig
	if err := json.Unmarshal(ch.Config, &cfg); err != nil {
		log.Printf("warn: channel %s config decode error: %v, use built-in", ch.Code, err)
		return fallback
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("warn: channel %s config invalid: %v, use built-in", ch.Code, err)
		return fallback
	}
	return cfg
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// ChannelCode "Yahoo Finance" -> "yahoo-finance"
func ChannelCode(name string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
}
