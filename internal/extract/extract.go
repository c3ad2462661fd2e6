// Package extract pulls listing fields out of a BOOTH item page.
//
// Every field is read by an ordered list of strategies; the first strategy
// that reports success wins and the field falls back to a sentinel when none do.
package extract

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/booth-harvest/internal/crawler"
)

// Strategy attempts to read one field from a parsed page.
type Strategy[T any] func(doc *goquery.Document) (T, bool)

// FirstOf runs strategies in order and returns the first successful value.
func FirstOf[T any](doc *goquery.Document, strategies ...Strategy[T]) (T, bool) {
	for _, strategy := range strategies {
		if v, ok := strategy(doc); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// Fields holds everything the static page yields. Likes are not part of the
// static markup and are read separately.
type Fields struct {
	Title        string
	Price        *int
	Author       string
	Description  string
	ThumbnailURL *string
}

// Extract reads every field from doc, substituting sentinels for misses.
func Extract(doc *goquery.Document) Fields {
	return Fields{
		Title:        Title(doc),
		Price:        Price(doc),
		Author:       Author(doc),
		Description:  Description(doc),
		ThumbnailURL: Thumbnail(doc),
	}
}

// Apply copies the extracted fields onto detail.
func (f Fields) Apply(detail crawler.ListingDetail) crawler.ListingDetail {
	detail.Title = f.Title
	detail.Price = f.Price
	detail.Author = f.Author
	detail.Description = f.Description
	detail.ThumbnailURL = f.ThumbnailURL
	return detail
}

// Title returns the listing title or crawler.Unknown.
func Title(doc *goquery.Document) string {
	if v, ok := FirstOf[string](doc, titleFromHead, titleFromHeading); ok {
		return v
	}
	return crawler.Unknown
}

// Price returns the listed price in yen, or nil.
func Price(doc *goquery.Document) *int {
	if v, ok := FirstOf[int](doc, priceFromTag); ok {
		return &v
	}
	return nil
}

// Author returns the shop name or crawler.Unknown.
func Author(doc *goquery.Document) string {
	if v, ok := FirstOf[string](doc, firstText(authorSelectors...)); ok {
		return v
	}
	return crawler.Unknown
}

// Description returns the listing description or crawler.Unknown.
func Description(doc *goquery.Document) string {
	v, ok := FirstOf[string](doc,
		descriptionFromDetail,
		firstText(alternateDescriptionSelectors...),
		descriptionFromMainContent,
		descriptionFromPage,
	)
	if !ok {
		return crawler.Unknown
	}
	return CollapseNewlines(v)
}

// Thumbnail returns the main image URL, or nil.
func Thumbnail(doc *goquery.Document) *string {
	if v, ok := FirstOf[string](doc, thumbnailFromGallery, thumbnailFromCDN); ok {
		return &v
	}
	return nil
}
