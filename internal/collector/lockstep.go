package collector

import "time"

// LockstepExtractor 分别选出标题、链接、日期三组元素后按位置对齐（Reuters、MarketWatch）。
// 某个位置缺元素时跳过该条，不影响其它条目
type LockstepExtractor struct {
	listingRules
}

func (e *LockstepExtractor) ExtractListing(doc *Document, now time.Time) ([]ListingItem, error) {
	html, err := doc.HTML()
	if err != nil {
		return nil, err
	}

	sel := e.cfg.Listing
	titles := html.Find(sel.Titles)
	urls := html.Find(sel.URLs)
	dates := html.Find(sel.Dates)

	n := min(titles.Length(), urls.Length(), dates.Length())
	items := make([]ListingItem, 0, n)
	seen := make(map[string]struct{}, n)

	for i := 0; i < n; i++ {
		item, state := e.accept(doc,
			titles.Eq(i).Text(),
			hrefOf(urls.Eq(i)),
			dateText(dates.Eq(i)),
			now,
		)
		if state == walkStop {
			break
		}
		if state == walkSkip {
			continue
		}
		if _, dup := seen[item.URL]; dup {
			continue
		}
		seen[item.URL] = struct{}{}
		items = append(items, item)
	}
	return items, nil
}
