package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// LikesCounter reads the rendered like counter of a listing page. A nil result
// means the count was unavailable.
type LikesCounter interface {
	Count(ctx context.Context, url string) *int
}

// Searcher lists the listings on one page of keyword search results.
type Searcher interface {
	Search(ctx context.Context, keyword string, page int) []ListingSummary
}

// DetailScraper enriches a summary from its detail page. It never fails;
// problems are reported through sentinel values.
type DetailScraper interface {
	Scrape(ctx context.Context, summary ListingSummary) ListingDetail
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// ListingSink receives every scraped listing as it is collected.
type ListingSink interface {
	UpsertListing(ctx context.Context, runID string, detail ListingDetail) error
}

// Publisher pushes snapshot events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Pauser blocks for a delay or until the context is done.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher fingerprints snapshot payloads.
type Hasher interface {
	Hash(data []byte) string
}
