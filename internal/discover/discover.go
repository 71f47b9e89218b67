// Package discover finds the feeds a web page advertises.
package discover

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Link is a feed advertised by a page.
type Link struct {
	URL    string `json:"url"`
	Title  string `json:"title,omitempty"`
	Format string `json:"format"`
}

var feedTypes = map[string]string{
	"application/atom+xml": "atom",
	"application/rss+xml":  "rss",
	"application/rdf+xml":  "rdf",
}

// Find fetches pageURL and returns the absolute URLs of its feed links
// in document order, without duplicates.
func Find(ctx context.Context, client *http.Client, pageURL string) ([]Link, error) {
	if client == nil {
		client = http.DefaultClient
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch page: %s returned %s", pageURL, resp.Status)
	}
	return FromHTML(resp.Body, base)
}

// FromHTML extracts feed links from an HTML document. Relative hrefs are
// resolved against base, or against the page's <base href> when present.
func FromHTML(r io.Reader, base *url.URL) ([]Link, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := base.Parse(href); err == nil {
			base = b
		}
	}

	var links []Link
	seen := make(map[string]bool)
	doc.Find("link[rel][href]").Each(func(_ int, s *goquery.Selection) {
		rel, _ := s.Attr("rel")
		if !hasToken(rel, "alternate") {
			return
		}
		typ, _ := s.Attr("type")
		format, ok := feedTypes[strings.ToLower(strings.TrimSpace(typ))]
		if !ok {
			return
		}
		href, _ := s.Attr("href")
		abs, err := base.Parse(strings.TrimSpace(href))
		if err != nil || seen[abs.String()] {
			return
		}
		seen[abs.String()] = true
		title, _ := s.Attr("title")
		links = append(links, Link{URL: abs.String(), Title: strings.TrimSpace(title), Format: format})
	})
	return links, nil
}

func hasToken(list, token string) bool {
	for _, f := range strings.Fields(strings.ToLower(list)) {
		if f == token {
			return true
		}
	}
	return false
}
