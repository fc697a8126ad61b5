// Package crawl implements the headless-browser collaborator behind
// url-crawl jobs (SPEC_FULL.md §8): fetch a URL's rendered HTML via
// chromedp, then strip it down to the plain text C4 chunks and extracts
// entities from, grounded on knoguchi-rag's document.go fetchAndProcessURL
// (regex stripHTML/extractTitle idiom, now generalized beyond document-only
// ingestion).
package crawl

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/knoguchi/ingestor/internal/ingerrors"
)

// Page is the result of fetching and rendering one URL.
type Page struct {
	URL   string
	Title string
	Text  string
}

// Fetcher renders a URL with a headless Chrome instance and reduces it to
// title + plain text.
type Fetcher struct {
	timeout time.Duration
}

// NewFetcher builds a Fetcher with the given per-page timeout (0 uses a
// 30s default).
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{timeout: timeout}
}

// Fetch navigates to url, waits for the page to render, and returns its
// title and stripped text content.
func (f *Fetcher) Fetch(ctx context.Context, url string) (Page, error) {
	browserCtx, cancelBrowser := chromedp.NewContext(ctx)
	defer cancelBrowser()

	timeoutCtx, cancelTimeout := context.WithTimeout(browserCtx, f.timeout)
	defer cancelTimeout()

	var html string
	err := chromedp.Run(timeoutCtx,
		chromedp.Navigate(url),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return Page{}, ingerrors.Wrap(ingerrors.Transient, "fetch url "+url, err)
	}

	return Page{
		URL:   url,
		Title: extractTitle(html),
		Text:  stripHTML(html),
	}, nil
}

var titleRE = regexp.MustCompile(`(?i)<title[^>]*>([^<]+)</title>`)

// extractTitle pulls the <title> text out of rendered HTML.
func extractTitle(html string) string {
	m := titleRE.FindStringSubmatch(html)
	if len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

var (
	scriptStyleRE = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</\1>`)
	tagRE         = regexp.MustCompile(`<[^>]+>`)
	whitespaceRE  = regexp.MustCompile(`\s+`)
)

// stripHTML removes script/style blocks and tags, collapsing whitespace.
func stripHTML(html string) string {
	text := scriptStyleRE.ReplaceAllString(html, "")
	text = tagRE.ReplaceAllString(text, " ")
	text = whitespaceRE.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
