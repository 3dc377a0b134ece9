package processor

import (
	"crypto/sha1"
	"encoding/hex"
	"log"
	"strings"
	"time"

	"github.com/LJTian/TickerNews/internal/collector"
)

// SimpleProcessor 对单个源抽取出的列表做最后一道清洗：时间窗口复核、按 URL 去重、标题整理
type SimpleProcessor struct {
	dates *collector.DateNormalizer
	// DropUndated 为 true 时丢弃日期靠估算的条目
	DropUndated bool
}

func NewSimpleProcessor(dates *collector.DateNormalizer, dropUndated bool) *SimpleProcessor {
	if dates == nil {
		dates = collector.NewDateNormalizer(collector.DefaultRecencyWindow)
	}
	return &SimpleProcessor{dates: dates, DropUndated: dropUndated}
}

// Process 保持原有顺序；不做跨源去重
func (p *SimpleProcessor) Process(items []collector.ListingItem, now time.Time) []collector.ListingItem {
	out := make([]collector.ListingItem, 0, len(items))
	seen := make(map[string]struct{}, len(items))

	for _, it := range items {
		id := hashURL(it.URL)
		if _, ok := seen[id]; ok {
			continue
		}
		if !p.dates.IsRecent(it.PublishedAt, now) {
			continue
		}
		if it.DateEstimated && p.DropUndated {
			log.Printf("drop undated item: source=%s url=%s", it.Source, it.URL)
			continue
		}
		seen[id] = struct{}{}

		it.Title = truncateRunes(strings.Join(strings.Fields(it.Title), " "), maxTitleRunes)
		out = append(out, it)
	}

	return out
}

const maxTitleRunes = 300

// truncateRunes 按 rune 截断并追加省略号
func truncateRunes(s string, limit int) string {
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit]) + "…"
}

func hashURL(url string) string {
	h := sha1.New()
	h.Write([]byte(url))
	return hex.EncodeToString(h.Sum(nil))
}
