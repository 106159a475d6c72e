package crawler

import (
	"context"
	"io"
	"time"
)

// JobStore persists normalized listings, one collection per category.
type JobStore interface {
	// HasKey reports whether collection already holds a record with the key.
	HasKey(ctx context.Context, collection, uniqueKey string) (bool, error)
	// InsertMany writes records unordered. Individual failures do not stop the
	// batch; the returned count covers the records that were written.
	InsertMany(ctx context.Context, collection string, records []JobRecord) (int, error)
	Collections(ctx context.Context) ([]CollectionInfo, error)
	// FindJobs returns every record in collection, or in all collections when
	// collection is empty. Records are backfilled before they are returned.
	FindJobs(ctx context.Context, collection string) ([]JobRecord, error)
	// FindCrawledSince returns records crawled at or after since, newest first.
	FindCrawledSince(ctx context.Context, since time.Time) ([]JobRecord, error)
	Ping(ctx context.Context) error
}

// StatusStore persists the single scheduler status document.
type StatusStore interface {
	// GetStatus returns ErrNotFound before the document exists.
	GetStatus(ctx context.Context) (CrawlStatus, error)
	// InitStatus writes initial only when no document exists yet.
	InitStatus(ctx context.Context, initial CrawlStatus) (bool, error)
	PutStatus(ctx context.Context, status CrawlStatus) error
	// AcquireRun atomically marks the crawl running under runID unless another
	// run holds a lease that was refreshed after staleBefore.
	AcquireRun(ctx context.Context, runID string, now, staleBefore time.Time) (bool, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, body io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Cache stores computed aggregates keyed by endpoint and collection.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// PageFetcher retrieves one listing page. It never returns an error; failures
// yield a page with no jobs.
type PageFetcher interface {
	FetchPage(ctx context.Context, sourceURL string, page int) Page
}

// Normalizer turns a raw listing item into a record for category.
type Normalizer interface {
	Normalize(raw RawJob, category Category, fetchedAt time.Time) JobRecord
}

// RecordWriter persists only records whose natural key is new to collection.
type RecordWriter interface {
	SaveNewRecords(ctx context.Context, collection string, records []JobRecord) SaveResult
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher digests archived page bodies.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Pauser blocks for delay unless ctx ends first.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}
