// Package search crawls BOOTH keyword search result pages.
package search

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/booth-harvest/internal/crawler"
	"github.com/JakeFAU/booth-harvest/internal/metrics"
)

// DefaultBaseURL is the marketplace root.
const DefaultBaseURL = "https://booth.pm"

const (
	cardSelector   = "li.item-card"
	anchorSelector = "a.item-card__title-anchor--multiline"
	productIDAttr  = "data-product-id"
)

// SearchURL builds the results URL for keyword and page. Page 1 carries no
// query string.
func SearchURL(baseURL, keyword string, page int) string {
	// Reserved characters such as & + = : @ are percent-encoded too.
	escaped := strings.ReplaceAll(url.QueryEscape(keyword), "+", "%20")
	u := strings.TrimRight(baseURL, "/") + "/ja/search/" + escaped
	if page >= 2 {
		u += fmt.Sprintf("?page=%d", page)
	}
	return u
}

// Crawler implements crawler.Searcher.
type Crawler struct {
	fetcher crawler.Fetcher
	baseURL *url.URL
	logger  *zap.Logger
}

// New builds a Crawler rooted at baseURL.
func New(fetcher crawler.Fetcher, baseURL string, logger *zap.Logger) (*Crawler, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{fetcher: fetcher, baseURL: base, logger: logger}, nil
}

// Search returns the listings on one results page in page order. Failures
// are logged and produce an empty slice.
func (c *Crawler) Search(ctx context.Context, keyword string, page int) []crawler.ListingSummary {
	target := SearchURL(c.baseURL.String(), keyword, page)
	resp, err := c.fetcher.Fetch(ctx, crawler.FetchRequest{URL: target})
	if err != nil {
		c.logger.Warn("search fetch failed", zap.String("url", target), zap.Error(err))
		metrics.ObserveSearchPage("error")
		return []crawler.ListingSummary{}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		c.logger.Warn("search parse failed", zap.String("url", target), zap.Error(err))
		metrics.ObserveSearchPage("error")
		return []crawler.ListingSummary{}
	}

	items := ParseResults(doc, c.baseURL)
	c.logger.Info("search page crawled",
		zap.String("url", target),
		zap.String("page_title", strings.TrimSpace(doc.Find("title").First().Text())),
		zap.Int("cards", doc.Find(cardSelector).Length()),
		zap.Int("items", len(items)),
	)
	if len(items) == 0 {
		metrics.ObserveSearchPage("empty")
	} else {
		metrics.ObserveSearchPage("ok")
	}
	return items
}

// ParseResults reads the item cards of a results page. Relative links are
// resolved against base and cards without a link are skipped.
func ParseResults(doc *goquery.Document, base *url.URL) []crawler.ListingSummary {
	items := []crawler.ListingSummary{}
	doc.Find(cardSelector).Each(func(_ int, card *goquery.Selection) {
		href, ok := card.Find(anchorSelector).First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		link, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		if base != nil {
			link = base.ResolveReference(link)
		}
		id, _ := card.Attr(productIDAttr)
		items = append(items, crawler.ListingSummary{URL: link.String(), ID: strings.TrimSpace(id)})
	})
	return items
}
