package crawler

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const descriptionFallbackLen = 200

// ExtractedPage holds everything the indexer wants from one HTML document.
type ExtractedPage struct {
	Title       string
	Description string
	Keywords    string
	Links       []string
}

// ExtractPage parses an HTML document and pulls out its title, description,
// keywords and outgoing links. Links are resolved against pageURL, normalized
// and stripped of asset URLs; relative order of first appearance is kept.
func ExtractPage(pageURL string, body []byte) (*ExtractedPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	page := &ExtractedPage{
		Title:       strings.TrimSpace(doc.Find("title").First().Text()),
		Description: strings.TrimSpace(doc.Find("meta[name='description']").AttrOr("content", "")),
		Keywords:    strings.TrimSpace(doc.Find("meta[name='keywords']").AttrOr("content", "")),
	}

	// Pages without a meta description still deserve a snippet; fall back to
	// the first visible paragraph text.
	if page.Description == "" {
		page.Description = fallbackDescription(doc)
	}

	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		if !IsValidLink(abs.Path) {
			return
		}
		normalized, err := NormalizeURL(abs.String())
		if err != nil || normalized == "" || seen[normalized] {
			return
		}
		seen[normalized] = true
		page.Links = append(page.Links, normalized)
	})

	return page, nil
}

func fallbackDescription(doc *goquery.Document) string {
	var parts []string
	doc.Find("p, pre").Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	joined := strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
	runes := []rune(joined)
	if len(runes) > descriptionFallbackLen {
		return string(runes[:descriptionFallbackLen])
	}
	return joined
}

// pagePriority ranks a page for search: home pages float up, pages missing
// basic metadata sink down.
func pagePriority(u *url.URL, page *ExtractedPage) int {
	priority := 0
	if isHomePage(u) {
		priority += 5
	}
	if page.Title == "" {
		priority -= 5
	}
	if page.Description == "" {
		priority -= 3
	}
	if page.Keywords != "" {
		priority++
	}
	return priority
}
