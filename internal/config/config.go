package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultProxyURL = "https://proxy.scrapeops.io/v1/"
	DefaultCacheTTL = 5 * time.Minute
)

type Config struct {
	AppPort     string
	CORSOrigins []string

	// PostgresDSN 为空时不启用数据库：数据源只来自内置/文件配置，关注列表只来自 WATCH_TICKERS
	PostgresDSN   string
	RedisAddr     string
	RedisPassword string
	CacheTTL      time.Duration

	CronSpec     string
	WatchTickers []string

	ProxyURL    string
	ProxyAPIKey string

	// FetchBackend: http(默认) / colly / browser
	FetchBackend   string
	FetchTimeout   time.Duration
	RequestTimeout time.Duration
	FetchRetries   int
	FetchRPS       float64
	EnrichWorkers  int

	SourcesFile   string
	RecencyWindow time.Duration
	DropUndated   bool

	BreakerFailures uint32
	BreakerCooldown time.Duration
}

func Load() *Config {
	cfg := &Config{
		AppPort:         getEnv("APP_PORT", "9000"),
		CORSOrigins:     splitList(getEnv("CORS_ORIGINS", "*")),
		PostgresDSN:     getEnv("POSTGRES_DSN", ""),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		CacheTTL:        time.Duration(getEnvInt("CACHE_TTL_SECONDS", int(DefaultCacheTTL/time.Second))) * time.Second,
		CronSpec:        getEnv("CRON_SPEC", "*/5 * * * *"),
		WatchTickers:    splitList(getEnv("WATCH_TICKERS", "")),
		ProxyURL:        getEnv("PROXY_URL", DefaultProxyURL),
		ProxyAPIKey:     getEnv("SCRAPEOPS_API_KEY", ""),
		FetchBackend:    strings.ToLower(getEnv("FETCH_BACKEND", "http")),
		FetchTimeout:    getEnvDuration("FETCH_TIMEOUT", 10*time.Second),
		RequestTimeout:  getEnvDuration("REQUEST_TIMEOUT", 25*time.Second),
		FetchRetries:    getEnvInt("FETCH_RETRIES", 1),
		FetchRPS:        getEnvFloat("FETCH_RPS", 2),
		EnrichWorkers:   getEnvInt("ENRICH_WORKERS", 5),
		SourcesFile:     getEnv("SOURCES_FILE", ""),
		RecencyWindow:   getEnvDuration("RECENCY_WINDOW", 24*time.Hour),
		DropUndated:     getEnvBool("DROP_UNDATED", false),
		BreakerFailures: uint32(getEnvInt("BREAKER_FAILURES", 3)),
		BreakerCooldown: getEnvDuration("BREAKER_COOLDOWN", time.Minute),
	}

	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.EnrichWorkers <= 0 {
		cfg.EnrichWorkers = 5
	}
	if cfg.FetchRetries < 0 {
		cfg.FetchRetries = 0
	}

	log.Printf("config loaded: port=%s backend=%s cache_ttl=%s workers=%d proxy=%t db=%t",
		cfg.AppPort, cfg.FetchBackend, cfg.CacheTTL, cfg.EnrichWorkers, cfg.ProxyAPIKey != "", cfg.PostgresDSN != "")
	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		log.Printf("warn: invalid int for %s=%q, use default %d", key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		log.Printf("warn: invalid float for %s=%q, use default %v", key, v, def)
		return def
	}
	return f
}

// getEnvDuration 同时接受 "10s" 这类 Go duration 与纯数字（按秒）
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	log.Printf("warn: invalid duration for %s=%q, use default %s", key, v, def)
	return def
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

// splitList 按逗号切分，去掉空白项
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
