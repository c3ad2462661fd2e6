// Package scraper turns a listing summary into a fully populated detail record.
package scraper

import (
	"bytes"
	"context"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/booth-harvest/internal/crawler"
	"github.com/JakeFAU/booth-harvest/internal/extract"
	"github.com/JakeFAU/booth-harvest/internal/metrics"
)

// Scraper implements crawler.DetailScraper by combining a static page fetch,
// field extraction and a rendered like count.
type Scraper struct {
	fetcher crawler.Fetcher
	likes   crawler.LikesCounter
	logger  *zap.Logger
}

// New builds a Scraper.
func New(fetcher crawler.Fetcher, likes crawler.LikesCounter, logger *zap.Logger) *Scraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scraper{fetcher: fetcher, likes: likes, logger: logger}
}

// Scrape fetches the detail page for summary. It never fails: a fetch error
// yields the fetch error sentinel record and fields that cannot be read are
// left as unknown or null.
func (s *Scraper) Scrape(ctx context.Context, summary crawler.ListingSummary) crawler.ListingDetail {
	resp, err := s.fetcher.Fetch(ctx, crawler.FetchRequest{URL: summary.URL})
	if err != nil {
		s.logger.Warn("detail fetch failed", zap.String("url", summary.URL), zap.Error(err))
		metrics.ObserveListing("fetch_error")
		return crawler.FetchErrorDetail(summary)
	}

	detail := crawler.NewListingDetail(summary)
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		s.logger.Warn("detail parse failed", zap.String("url", summary.URL), zap.Error(err))
	} else {
		detail = extract.Extract(doc).Apply(detail)
	}
	detail.Likes = s.likes.Count(ctx, summary.URL)

	s.logger.Info("listing scraped",
		zap.String("id", summary.ID),
		zap.String("title", detail.Title),
		zap.Intp("price", detail.Price),
		zap.Intp("likes", detail.Likes),
	)
	metrics.ObserveListing("scraped")
	return detail
}
