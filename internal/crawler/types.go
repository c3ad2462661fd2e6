package crawler

import (
	"net/http"
	"time"
)

// Sentinel values stored in text fields that could not be populated.
const (
	// Unknown marks a field the extractor could not find on a fetched page.
	Unknown = "unknown"
	// FetchError marks every text field of a listing whose page fetch failed.
	FetchError = "fetch error"
)

// ListingSummary identifies a listing discovered on a search results page.
type ListingSummary struct {
	URL string `json:"url"`
	ID  string `json:"id"`
}

// ListingDetail is a summary enriched with the fields scraped from the detail page.
// Nullable fields are pointers and always marshal, as null when unset.
type ListingDetail struct {
	ListingSummary
	Title        string  `json:"title"`
	Price        *int    `json:"price"`
	Likes        *int    `json:"likes"`
	Author       string  `json:"author"`
	Description  string  `json:"description"`
	ThumbnailURL *string `json:"thumbnail_url"`
}

// NewListingDetail returns a detail with every text field set to Unknown.
func NewListingDetail(summary ListingSummary) ListingDetail {
	return ListingDetail{
		ListingSummary: summary,
		Title:          Unknown,
		Author:         Unknown,
		Description:    Unknown,
	}
}

// FetchErrorDetail returns the record persisted when the detail page could not be fetched.
func FetchErrorDetail(summary ListingSummary) ListingDetail {
	return ListingDetail{
		ListingSummary: summary,
		Title:          FetchError,
		Author:         FetchError,
		Description:    FetchError,
	}
}

// Failed reports whether the detail carries the fetch error sentinel.
func (d ListingDetail) Failed() bool {
	return d.Title == FetchError
}

// Normalize coerces a detail into its persisted shape: blank text becomes
// Unknown, negative counts and blank thumbnails become null.
func Normalize(d ListingDetail) ListingDetail {
	d.Title = orUnknown(d.Title)
	d.Author = orUnknown(d.Author)
	d.Description = orUnknown(d.Description)
	if d.Price != nil && *d.Price < 0 {
		d.Price = nil
	}
	if d.Likes != nil && *d.Likes < 0 {
		d.Likes = nil
	}
	if d.ThumbnailURL != nil && *d.ThumbnailURL == "" {
		d.ThumbnailURL = nil
	}
	return d
}

// NormalizeAll applies Normalize to a copy of items.
func NormalizeAll(items []ListingDetail) []ListingDetail {
	out := make([]ListingDetail, len(items))
	for i, item := range items {
		out[i] = Normalize(item)
	}
	return out
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// SnapshotEvent is published after every snapshot write.
type SnapshotEvent struct {
	Event     string    `json:"event"`
	RunID     string    `json:"run_id"`
	Keyword   string    `json:"keyword"`
	Kind      string    `json:"kind"`
	URI       string    `json:"uri"`
	Count     int       `json:"count"`
	SHA256    string    `json:"sha256,omitempty"`
	WrittenAt time.Time `json:"written_at"`
}
