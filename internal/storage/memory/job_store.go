package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/topcv-job-insights/internal/crawler"
)

// Store is an in-memory JobStore and StatusStore.
type Store struct {
	mu          sync.RWMutex
	collections map[string][]crawler.JobRecord
	keys        map[string]map[string]struct{}
	status      *crawler.CrawlStatus
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		collections: make(map[string][]crawler.JobRecord),
		keys:        make(map[string]map[string]struct{}),
	}
}

// HasKey implements crawler.JobStore.
func (s *Store) HasKey(_ context.Context, collection, uniqueKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[collection][uniqueKey]
	return ok, nil
}

// InsertMany implements crawler.JobStore. Records whose key is already
// present fail individually without stopping the batch.
func (s *Store) InsertMany(_ context.Context, collection string, records []crawler.JobRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys, ok := s.keys[collection]
	if !ok {
		keys = make(map[string]struct{})
		s.keys[collection] = keys
	}
	var errs []error
	inserted := 0
	for _, rec := range records {
		if _, dup := keys[rec.UniqueKey]; dup {
			errs = append(errs, fmt.Errorf("duplicate key %q in %s", rec.UniqueKey, collection))
			continue
		}
		keys[rec.UniqueKey] = struct{}{}
		s.collections[collection] = append(s.collections[collection], cloneRecord(rec))
		inserted++
	}
	return inserted, errors.Join(errs...)
}

// Collections implements crawler.JobStore.
func (s *Store) Collections(_ context.Context) ([]crawler.CollectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.CollectionInfo, 0, len(s.collections))
	for name, records := range s.collections {
		out = append(out, crawler.CollectionInfo{Name: name, Count: len(records)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// FindJobs implements crawler.JobStore.
func (s *Store) FindJobs(_ context.Context, collection string) ([]crawler.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []crawler.JobRecord
	for _, name := range s.collectionNames(collection) {
		for _, rec := range s.collections[name] {
			c := cloneRecord(rec)
			c.Backfill(name)
			out = append(out, c)
		}
	}
	return out, nil
}

// FindCrawledSince implements crawler.JobStore.
func (s *Store) FindCrawledSince(_ context.Context, since time.Time) ([]crawler.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []crawler.JobRecord
	for _, name := range s.collectionNames("") {
		for _, rec := range s.collections[name] {
			if rec.CrawledAt.Before(since) {
				continue
			}
			c := cloneRecord(rec)
			c.Backfill(name)
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CrawledAt.After(out[j].CrawledAt) })
	return out, nil
}

// Ping implements crawler.JobStore.
func (s *Store) Ping(context.Context) error {
	return nil
}

func (s *Store) collectionNames(collection string) []string {
	if collection != "" {
		return []string{collection}
	}
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func cloneRecord(rec crawler.JobRecord) crawler.JobRecord {
	if rec.Skills != nil {
		rec.Skills = append([]string(nil), rec.Skills...)
	}
	if rec.UpdateDate != nil {
		d := *rec.UpdateDate
		rec.UpdateDate = &d
	}
	return rec
}
