package collector

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func lockstepConfig(stopAtFirstStale bool) SourceConfig {
	return SourceConfig{
		Name:             "Wire",
		BaseURLTemplate:  "https://wire.test/{ticker}",
		Kind:             KindLockstep,
		StopAtFirstStale: stopAtFirstStale,
		Listing: ListingSelectors{
			Titles: "h3.headline",
			URLs:   "h3.headline a",
			Dates:  "span.ts",
		},
		Article: ArticleSelectors{Paragraphs: "div.body p"},
	}
}

func mustExtractor(t *testing.T, cfg SourceConfig) Extractor {
	t.Helper()
	ex, err := NewExtractor(cfg, NewDateNormalizer(0))
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	return ex
}

const lockstepFixture = `<html><body>
<div><h3 class="headline"><a href="/story/1">  Apple   beats estimates </a></h3><span class="ts">2 hours ago</span></div>
<div><h3 class="headline"><a href="https://wire.test/story/2#comments">Old news</a></h3><span class="ts">Oct. 13, 2024</span></div>
<div><h3 class="headline"><a href="/story/3">Services revenue grows</a></h3><span class="ts">5 hours ago</span></div>
<div><h3 class="headline"><a href="javascript:void(0)">Sponsored</a></h3><span class="ts">1 hour ago</span></div>
<div><h3 class="headline"><a href="/story/1">Duplicate link</a></h3><span class="ts">1 hour ago</span></div>
</body></html>`

func TestLockstepExtractorFiltersAndResolves(t *testing.T) {
	ex := mustExtractor(t, lockstepConfig(false))
	doc := NewDocument("https://wire.test/AAPL", []byte(lockstepFixture))

	items, err := ex.ExtractListing(doc, dateNow)
	if err != nil {
		t.Fatalf("ExtractListing: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d: %+v", len(items), items)
	}
	if items[0].Title != "Apple beats estimates" || items[0].URL != "https://wire.test/story/1" {
		t.Fatalf("unexpected first item: %+v", items[0])
	}
	if items[1].URL != "https://wire.test/story/3" {
		t.Fatalf("unexpected second item: %+v", items[1])
	}
	for _, it := range items {
		if it.Source != "Wire" {
			t.Fatalf("item not tagged with source: %+v", it)
		}
		if it.DateEstimated {
			t.Fatalf("date should be parsed: %+v", it)
		}
	}
}

func TestLockstepExtractorStopAtFirstStale(t *testing.T) {
	ex := mustExtractor(t, lockstepConfig(true))
	doc := NewDocument("https://wire.test/AAPL", []byte(lockstepFixture))

	items, err := ex.ExtractListing(doc, dateNow)
	if err != nil {
		t.Fatalf("ExtractListing: %v", err)
	}
	if len(items) != 1 || items[0].URL != "https://wire.test/story/1" {
		t.Fatalf("walk should stop at the first stale item: %+v", items)
	}
}

func TestLockstepExtractorUnevenSelectorCounts(t *testing.T) {
	// 第三条缺少日期元素，只能对齐前两条
	html := `<html><body>
<h3 class="headline"><a href="/a">A</a></h3><span class="ts">1 hour ago</span>
<h3 class="headline"><a href="/b">B</a></h3><span class="ts">2 hours ago</span>
<h3 class="headline"><a href="/c">C</a></h3>
</body></html>`
	ex := mustExtractor(t, lockstepConfig(false))

	items, err := ex.ExtractListing(NewDocument("https://wire.test/AAPL", []byte(html)), dateNow)
	if err != nil {
		t.Fatalf("ExtractListing: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 aligned items, got %+v", items)
	}
	if !items[1].PublishedAt.Equal(dateNow.Add(-2 * time.Hour)) {
		t.Fatalf("title B paired with wrong date: %v", items[1].PublishedAt)
	}
}

func TestLockstepExtractorNoMatches(t *testing.T) {
	ex := mustExtractor(t, lockstepConfig(false))
	items, err := ex.ExtractListing(NewDocument("https://wire.test/AAPL", []byte("<html><body><p>redesigned</p></body></html>")), dateNow)
	if err != nil || len(items) != 0 {
		t.Fatalf("expected empty result without error, got %+v, %v", items, err)
	}
}

func TestSectionExtractorSkipsIncompleteChildren(t *testing.T) {
	cfg := SourceConfig{
		Name:            "Yahoo Finance",
		BaseURLTemplate: "https://finance.test/quote/{ticker}",
		Kind:            KindSection,
		Listing: ListingSelectors{
			Section: "#news",
			Titles:  "a > h3",
			URLs:    "a",
			Dates:   "div.publishing",
		},
	}
	html := `<html><body><section id="news">
<div><a href="https://finance.test/n/1"><h3>Apple unveils new chip</h3></a><div class="publishing">Reuters • 3 hours ago</div></div>
<div class="ad"><a href="https://ads.test/x"><h3>Buy now</h3></a></div>
<div><a href="https://finance.test/n/2"><h3>Apple supplier warns</h3></a><div class="publishing">Bloomberg • 2 days ago</div></div>
<div><a href="https://finance.test/n/3"><h3>Analysts lift target</h3></a><div class="publishing">Barrons • 20 minutes ago</div></div>
</section></body></html>`

	items, err := mustExtractor(t, cfg).ExtractListing(NewDocument("https://finance.test/quote/AAPL", []byte(html)), dateNow)
	if err != nil {
		t.Fatalf("ExtractListing: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %+v", items)
	}
	if !items[0].PublishedAt.Equal(dateNow.Add(-3*time.Hour)) || items[1].Title != "Analysts lift target" {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestSectionExtractorDropsMonthsOldChildren(t *testing.T) {
	cfg := SourceConfig{
		Name:            "Yahoo Finance",
		BaseURLTemplate: "https://finance.test/quote/{ticker}",
		Kind:            KindSection,
		Listing: ListingSelectors{
			Section: "#news",
			Titles:  "a > h3",
			URLs:    "a",
			Dates:   "div.publishing",
		},
	}
	html := `<html><body><section id="news">
<div><a href="https://finance.test/n/1"><h3>Apple archive piece</h3></a><div class="publishing">Yahoo Finance • 2 months ago</div></div>
<div><a href="https://finance.test/n/2"><h3>Apple last year</h3></a><div class="publishing">Reuters • 1 year ago</div></div>
<div><a href="https://finance.test/n/3"><h3>Apple opens store</h3></a><div class="publishing">Reuters • 4 hours ago</div></div>
</section></body></html>`

	items, err := mustExtractor(t, cfg).ExtractListing(NewDocument("https://finance.test/quote/AAPL", []byte(html)), dateNow)
	if err != nil {
		t.Fatalf("ExtractListing: %v", err)
	}
	if len(items) != 1 || items[0].Title != "Apple opens store" {
		t.Fatalf("expected only the fresh item, got %+v", items)
	}
	if items[0].DateEstimated {
		t.Fatalf("fresh item should carry a parsed date: %+v", items[0])
	}
}

func TestSectionExtractorMissingSection(t *testing.T) {
	cfg := SourceConfig{
		Name:            "Yahoo Finance",
		BaseURLTemplate: "https://finance.test/quote/{ticker}",
		Kind:            KindSection,
		Listing:         ListingSelectors{Section: "#news", Titles: "h3", URLs: "a", Dates: "time"},
	}
	items, err := mustExtractor(t, cfg).ExtractListing(NewDocument("https://finance.test/quote/AAPL", []byte("<html></html>")), dateNow)
	if err != nil || len(items) != 0 {
		t.Fatalf("expected empty result, got %+v, %v", items, err)
	}
}

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>AAPL headlines</title>
<item><title>Apple hits record</title><link>https://news.test/apple-record</link><pubDate>Tue, 15 Oct 2024 09:00:00 +0000</pubDate></item>
<item><title>Week-old story</title><link>https://news.test/old</link><pubDate>Tue, 08 Oct 2024 09:00:00 +0000</pubDate></item>
<item><title>Undated story</title><link>https://news.test/undated</link></item>
</channel></rss>`

func TestFeedExtractor(t *testing.T) {
	cfg := SourceConfig{Name: "Yahoo RSS", BaseURLTemplate: "https://feeds.test/?s={ticker}", Kind: KindFeed}
	items, err := mustExtractor(t, cfg).ExtractListing(NewDocument("https://feeds.test/?s=AAPL", []byte(rssFixture)), dateNow)
	if err != nil {
		t.Fatalf("ExtractListing: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %+v", items)
	}
	if !items[0].PublishedAt.Equal(time.Date(2024, 10, 15, 9, 0, 0, 0, time.UTC)) || items[0].DateEstimated {
		t.Fatalf("unexpected first item: %+v", items[0])
	}
	if !items[1].DateEstimated {
		t.Fatalf("undated feed item should be flagged as estimated: %+v", items[1])
	}
}

func TestFeedExtractorRejectsNonFeed(t *testing.T) {
	cfg := SourceConfig{Name: "Yahoo RSS", BaseURLTemplate: "https://feeds.test/?s={ticker}", Kind: KindFeed}
	_, err := mustExtractor(t, cfg).ExtractListing(NewDocument("https://feeds.test/?s=AAPL", []byte("definitely not xml")), dateNow)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
}

func TestExtractArticleWithSelector(t *testing.T) {
	ex := mustExtractor(t, lockstepConfig(false))
	doc := NewDocument("https://wire.test/story/1", []byte(`<html><body><div class="body"><p>One.</p><p>  </p><p>Two   words.</p></div><p>footer</p></body></html>`))

	if got := ex.ExtractArticle(doc); got != "One.\nTwo words." {
		t.Fatalf("ExtractArticle = %q", got)
	}
	if got := ex.ExtractArticle(NewDocument("https://wire.test/x", []byte("<html></html>"))); got != "" {
		t.Fatalf("ExtractArticle on empty page = %q, want empty", got)
	}
}

func TestExtractArticleGenericFallback(t *testing.T) {
	cfg := lockstepConfig(false)
	cfg.Article = ArticleSelectors{}
	ex := mustExtractor(t, cfg)

	html := `<html><body>
<nav><p>Home | Markets | Tech | Opinion pages</p></nav>
<article>
<p>Apple reported quarterly revenue above expectations on Thursday.</p>
<aside><p>Related: five stocks to watch this week and beyond</p></aside>
<p>Short.</p>
<p>Shares rose three percent in after-hours trading in New York.</p>
</article></body></html>`
	got := ex.ExtractArticle(NewDocument("https://other.test/a", []byte(html)))
	want := "Apple reported quarterly revenue above expectations on Thursday.\nShares rose three percent in after-hours trading in New York."
	if got != want {
		t.Fatalf("generic body = %q, want %q", got, want)
	}
}

func TestDocumentResolve(t *testing.T) {
	doc := NewDocument("https://wire.test/markets/AAPL", nil)
	cases := []struct{ in, want string }{
		{"/story/1", "https://wire.test/story/1"},
		{"story/2", "https://wire.test/markets/story/2"},
		{"https://cdn.test/a#frag", "https://cdn.test/a"},
		{"mailto:desk@wire.test", ""},
		{"javascript:void(0)", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := doc.Resolve(c.in); got != c.want {
			t.Fatalf("Resolve(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNewExtractorUnknownKind(t *testing.T) {
	_, err := NewExtractor(SourceConfig{Name: "x", Kind: "xpath"}, nil)
	if err == nil || !strings.Contains(err.Error(), "unknown kind") {
		t.Fatalf("expected unknown kind error, got %v", err)
	}
}
