package collector

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ListingItem 列表页中的一条新闻（尚未补全正文）
type ListingItem struct {
	Title       string
	URL         string
	PublishedAt time.Time
	// DateEstimated 日期无法解析、按抓取时间估算
	DateEstimated bool
	Source        string
}

// Article 补全正文后的新闻；Body 抓取失败时为空字符串
type Article struct {
	ListingItem
	Body      string
	FetchedAt time.Time
}

// ParseError 文档无法解析
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Document 抓取到的原始页面，HTML DOM 按需解析一次
type Document struct {
	URL  string
	Body []byte

	once sync.Once
	html *goquery.Document
	err  error
}

func NewDocument(rawURL string, body []byte) *Document {
	return &Document{URL: rawURL, Body: body}
}

func (d *Document) HTML() (*goquery.Document, error) {
	d.once.Do(func() {
		d.html, d.err = goquery.NewDocumentFromReader(bytes.NewReader(d.Body))
		if d.err != nil {
			d.err = &ParseError{URL: d.URL, Err: d.err}
		}
	})
	return d.html, d.err
}

// Resolve 把相对链接转换为绝对地址
func (d *Document) Resolve(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if !ref.IsAbs() {
		base, err := url.Parse(d.URL)
		if err != nil || !base.IsAbs() {
			return ""
		}
		ref = base.ResolveReference(ref)
	}
	// 过滤 javascript:、mailto: 等
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	ref.Fragment = ""
	return ref.String()
}

// Extractor 每个数据源一种抽取策略
type Extractor interface {
	// ExtractListing 返回最近窗口内的新闻，顺序与页面一致；选择器没有命中时返回空列表
	ExtractListing(doc *Document, now time.Time) ([]ListingItem, error)
	// ExtractArticle 拼接所有正文块文本；没有命中返回空字符串
	ExtractArticle(doc *Document) string
}

// NewExtractor 根据配置中的 kind 选择策略
func NewExtractor(cfg SourceConfig, dates *DateNormalizer) (Extractor, error) {
	if dates == nil {
		dates = NewDateNormalizer(DefaultRecencyWindow)
	}
	base := listingRules{cfg: cfg, dates: dates}
	switch cfg.Kind {
	case KindLockstep:
		return &LockstepExtractor{listingRules: base}, nil
	case KindSection:
		return &SectionExtractor{listingRules: base}, nil
	case KindFeed:
		return &FeedExtractor{listingRules: base}, nil
	}
	return nil, fmt.Errorf("source %s: unknown kind %q", cfg.Name, cfg.Kind)
}

// listingRules 各策略共用的条目校验、日期过滤与正文抽取
type listingRules struct {
	cfg   SourceConfig
	dates *DateNormalizer
}

type walkState int

const (
	walkKeep walkState = iota
	walkSkip
	walkStop
)

// accept 处理一条候选记录；返回 walkStop 表示按时间倒序假设提前结束
func (r *listingRules) accept(doc *Document, title, href, rawDate string, now time.Time) (ListingItem, walkState) {
	title = cleanText(title)
	link := doc.Resolve(href)
	if title == "" || link == "" {
		return ListingItem{}, walkSkip
	}
	published, estimated := r.dates.Normalize(rawDate, now)
	if !r.dates.IsRecent(published, now) {
		if r.cfg.StopAtFirstStale {
			return ListingItem{}, walkStop
		}
		return ListingItem{}, walkSkip
	}
	return ListingItem{
		Title:         title,
		URL:           link,
		PublishedAt:   published,
		DateEstimated: estimated,
		Source:        r.cfg.Name,
	}, walkKeep
}

func (r *listingRules) ExtractArticle(doc *Document) string {
	return extractBody(doc, r.cfg.Article)
}

// dateText 优先使用 <time datetime="..."> 属性
func dateText(s *goquery.Selection) string {
	if v, ok := s.Attr("datetime"); ok && strings.TrimSpace(v) != "" {
		return v
	}
	if t := s.Find("time[datetime]").First(); t.Length() > 0 {
		if v, _ := t.Attr("datetime"); strings.TrimSpace(v) != "" {
			return v
		}
	}
	return s.Text()
}

// hrefOf 元素自身没有 href 时取其内部第一个链接
func hrefOf(s *goquery.Selection) string {
	if v, ok := s.Attr("href"); ok {
		return v
	}
	v, _ := s.Find("a[href]").First().Attr("href")
	return v
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
