// Package crawler holds the listing model shared by the scrape pipeline: the
// summary and detail records, the sentinel values used when a field or a whole
// page cannot be read, and the small interfaces (fetcher, likes counter,
// searcher, stores, publisher, pauser) that the pipeline is assembled from.
package crawler
