package collector

import (
	"bytes"
	"time"

	"github.com/mmcdole/gofeed"
)

// FeedExtractor 解析 RSS/Atom 列表（Yahoo Finance headline feed），正文仍按 HTML 选择器抽取
type FeedExtractor struct {
	listingRules
}

func (e *FeedExtractor) ExtractListing(doc *Document, now time.Time) ([]ListingItem, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(doc.Body))
	if err != nil {
		return nil, &ParseError{URL: doc.URL, Err: err}
	}

	items := make([]ListingItem, 0, len(feed.Items))
	seen := make(map[string]struct{}, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		raw := it.Published
		if it.PublishedParsed != nil {
			raw = it.PublishedParsed.Format(time.RFC3339)
		} else if raw == "" && it.UpdatedParsed != nil {
			raw = it.UpdatedParsed.Format(time.RFC3339)
		}

		item, state := e.accept(doc, it.Title, it.Link, raw, now)
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
