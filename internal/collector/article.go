package collector

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	minParagraphLength   = 20
	mainContentSelectors = "article, main, div[role='main'], #main, #content, .article-body, .article__body, .caas-body, .entry-content"
	noiseSelectors       = "script, style, noscript, aside, nav, footer, .related-posts, .social-share, .advertisement, .ad-banner"
)

// extractBody 有段落选择器时按选择器拼接；没有时做通用正文抽取
func extractBody(doc *Document, sel ArticleSelectors) string {
	html, err := doc.HTML()
	if err != nil {
		return ""
	}
	if sel.Paragraphs != "" {
		return joinText(html.Find(sel.Paragraphs), 0)
	}
	return genericBody(html)
}

// genericBody 在常见正文容器里取足够长的段落，找不到容器时退回整页
func genericBody(html *goquery.Document) string {
	main := html.Find(mainContentSelectors).First()
	if main.Length() == 0 {
		main = html.Find("body")
	}
	main = main.Clone()
	main.Find(noiseSelectors).Remove()
	return joinText(main.Find("p"), minParagraphLength)
}

func joinText(s *goquery.Selection, minLen int) string {
	parts := make([]string, 0, s.Length())
	s.Each(func(_ int, p *goquery.Selection) {
		t := cleanText(p.Text())
		if t == "" || len(t) < minLen {
			return
		}
		parts = append(parts, t)
	})
	return strings.Join(parts, "\n")
}
