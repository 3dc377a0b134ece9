package collector

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// TickerPlaceholder 是 URL 模板中的代码占位符
const TickerPlaceholder = "{ticker}"

// 抽取策略
const (
	KindLockstep = "lockstep"
	KindSection  = "section"
	KindFeed     = "feed"
)

// DefaultHeaders 浏览器风格的请求头，部分站点对默认 Go UA 直接返回 401/403
var DefaultHeaders = map[string]string{
	"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.5",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
	"Cache-Control":             "max-age=0",
}

// headerProfiles 可在配置文件中按名字引用
var headerProfiles = map[string]map[string]string{
	"default": DefaultHeaders,
	"none":    {},
}

type ListingSelectors struct {
	// Section 仅 section 策略使用：新闻列表容器，其直接子元素为一条新闻
	Section string `yaml:"section,omitempty" json:"section,omitempty"`
	Titles  string `yaml:"titles" json:"titles"`
	URLs    string `yaml:"urls" json:"urls"`
	Dates   string `yaml:"dates" json:"dates"`
}

type ArticleSelectors struct {
	Paragraphs string `yaml:"paragraphs,omitempty" json:"paragraphs,omitempty"`
}

// SourceConfig 描述一个新闻源：URL 模板、请求头与选择器。启动时加载，之后只读
type SourceConfig struct {
	Name            string            `yaml:"name" json:"name"`
	BaseURLTemplate string            `yaml:"baseUrlTemplate" json:"baseUrlTemplate"`
	HeaderProfile   string            `yaml:"headerProfile,omitempty" json:"headerProfile,omitempty"`
	Headers         map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Kind            string            `yaml:"kind" json:"kind"`
	Listing         ListingSelectors  `yaml:"listingSelectors" json:"listingSelectors"`
	Article         ArticleSelectors  `yaml:"articleSelectors" json:"articleSelectors"`
	// UseProxy 为 true 时（且配置了 API key）经由付费中转抓取
	UseProxy bool `yaml:"useProxy,omitempty" json:"useProxy,omitempty"`
	// StopAtFirstStale 假设列表严格按时间倒序，遇到第一条过期新闻即停止
	StopAtFirstStale bool `yaml:"stopAtFirstStale,omitempty" json:"stopAtFirstStale,omitempty"`
	// Fetcher 覆盖全局抓取后端：http / colly / browser
	Fetcher string `yaml:"fetcher,omitempty" json:"fetcher,omitempty"`
}

// URL 返回指定代码的列表页地址
func (c SourceConfig) URL(ticker string) string {
	return strings.ReplaceAll(c.BaseURLTemplate, TickerPlaceholder, url.PathEscape(ticker))
}

// RequestHeaders 合并 header profile 与自定义头，后者优先
func (c SourceConfig) RequestHeaders() map[string]string {
	out := make(map[string]string)
	profile := c.HeaderProfile
	if profile == "" {
		profile = "default"
	}
	for k, v := range headerProfiles[profile] {
		out[k] = v
	}
	for k, v := range c.Headers {
		out[k] = v
	}
	return out
}

func (c SourceConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("source: name is required")
	}
	if !strings.Contains(c.BaseURLTemplate, TickerPlaceholder) {
		return fmt.Errorf("source %s: baseUrlTemplate must contain %s", c.Name, TickerPlaceholder)
	}
	if c.HeaderProfile != "" {
		if _, ok := headerProfiles[c.HeaderProfile]; !ok {
			return fmt.Errorf("source %s: unknown header profile %q", c.Name, c.HeaderProfile)
		}
	}
	switch c.Kind {
	case KindLockstep:
		if c.Listing.Titles == "" || c.Listing.URLs == "" || c.Listing.Dates == "" {
			return fmt.Errorf("source %s: lockstep needs titles/urls/dates selectors", c.Name)
		}
	case KindSection:
		if c.Listing.Section == "" || c.Listing.Titles == "" || c.Listing.URLs == "" || c.Listing.Dates == "" {
			return fmt.Errorf("source %s: section needs section/titles/urls/dates selectors", c.Name)
		}
	case KindFeed:
	default:
		return fmt.Errorf("source %s: unknown kind %q", c.Name, c.Kind)
	}
	return nil
}

// DefaultSources 内置数据源；选择器随站点改版可能失效，失效时该源只会返回 0 条
func DefaultSources() []SourceConfig {
	return []SourceConfig{
		{
			Name:            "Reuters",
			BaseURLTemplate: "https://www.reuters.com/markets/companies/{ticker}.O/profile",
			Kind:            KindLockstep,
			Listing: ListingSelectors{
				Titles: ".media-story-card__headline__tFMEu[href]",
				URLs:   ".media-story-card__headline__tFMEu[href]",
				Dates:  ".media-story-card__body__3tRWy time",
			},
			Article: ArticleSelectors{
				Paragraphs: `div[data-testid*="paragraph-"]`,
			},
			UseProxy: true,
		},
		{
			Name:            "Yahoo Finance",
			BaseURLTemplate: "https://finance.yahoo.com/quote/{ticker}",
			HeaderProfile:   "none",
			Kind:            KindSection,
			Listing: ListingSelectors{
				Section: "#tabpanel-news > div > section",
				Titles:  "section > div > a > h3",
				URLs:    "section > div > a",
				Dates:   "div.publishing",
			},
			Article: ArticleSelectors{
				Paragraphs: "div[data-testid*='paragraph-']",
			},
		},
		{
			Name:            "MarketWatch",
			BaseURLTemplate: "https://www.marketwatch.com/investing/stock/{ticker}?mod=mw_quote_tab",
			Kind:            KindLockstep,
			Listing: ListingSelectors{
				Titles: "h3.article__headline",
				URLs:   "h3.article__headline a.link",
				Dates:  "span.article__timestamp",
			},
			// 文章链接指向各家媒体，没有统一的正文选择器，走通用正文抽取
			StopAtFirstStale: true,
		},
		{
			Name:            "Yahoo RSS",
			BaseURLTemplate: "https://feeds.finance.yahoo.com/rss/2.0/headline?s={ticker}&region=US&lang=en-US",
			HeaderProfile:   "none",
			Kind:            KindFeed,
			Article: ArticleSelectors{
				Paragraphs: "div[data-testid*='paragraph-'], div.caas-body p",
			},
		},
	}
}

type sourcesFile struct {
	Sources []SourceConfig `yaml:"sources"`
}

// LoadSources 从 YAML 文件读取数据源；path 为空时返回内置配置
func LoadSources(path string) ([]SourceConfig, error) {
	if path == "" {
		return DefaultSources(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	return ParseSources(data)
}

func ParseSources(data []byte) ([]SourceConfig, error) {
	var f sourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}
	if len(f.Sources) == 0 {
		return nil, fmt.Errorf("decode sources: no sources defined")
	}
	seen := make(map[string]struct{}, len(f.Sources))
	for _, s := range f.Sources {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, ok := seen[s.Name]; ok {
			return nil, fmt.Errorf("source %s: duplicated name", s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return f.Sources, nil
}
