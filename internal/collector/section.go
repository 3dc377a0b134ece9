package collector

import (
	"time"

	"github.com/PuerkitoBio/goquery"
)

// SectionExtractor 先定位新闻容器，再在每个直接子元素内部找标题、链接、日期（Yahoo Finance）
type SectionExtractor struct {
	listingRules
}

func (e *SectionExtractor) ExtractListing(doc *Document, now time.Time) ([]ListingItem, error) {
	html, err := doc.HTML()
	if err != nil {
		return nil, err
	}

	sel := e.cfg.Listing
	section := html.Find(sel.Section).First()
	if section.Length() == 0 {
		return nil, nil
	}

	var items []ListingItem
	seen := make(map[string]struct{})
	section.Children().EachWithBreak(func(_ int, child *goquery.Selection) bool {
		title := child.Find(sel.Titles).First()
		link := child.Find(sel.URLs).First()
		date := child.Find(sel.Dates).First()
		// 广告位等不完整的条目直接跳过
		if title.Length() == 0 || link.Length() == 0 || date.Length() == 0 {
			return true
		}

		item, state := e.accept(doc, title.Text(), hrefOf(link), dateText(date), now)
		switch state {
		case walkStop:
			return false
		case walkSkip:
			return true
		}
		if _, dup := seen[item.URL]; dup {
			return true
		}
		seen[item.URL] = struct{}{}
		items = append(items, item)
		return true
	})
	return items, nil
}
