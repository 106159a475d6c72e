package memory

import (
	"context"
	"time"

	"github.com/JakeFAU/topcv-job-insights/internal/crawler"
)

// GetStatus implements crawler.StatusStore.
func (s *Store) GetStatus(context.Context) (crawler.CrawlStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status == nil {
		return crawler.CrawlStatus{}, crawler.ErrNotFound
	}
	return cloneStatus(*s.status), nil
}

// InitStatus implements crawler.StatusStore.
func (s *Store) InitStatus(_ context.Context, initial crawler.CrawlStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != nil {
		return false, nil
	}
	st := cloneStatus(initial)
	s.status = &st
	return true, nil
}

// PutStatus implements crawler.StatusStore.
func (s *Store) PutStatus(_ context.Context, status crawler.CrawlStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := cloneStatus(status)
	s.status = &st
	return nil
}

// AcquireRun implements crawler.StatusStore.
func (s *Store) AcquireRun(_ context.Context, runID string, now, staleBefore time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == nil {
		return false, crawler.ErrNotFound
	}
	if s.status.State == crawler.StateRunning && !s.status.UpdatedAt.Before(staleBefore) {
		return false, nil
	}
	s.status.State = crawler.StateRunning
	s.status.CrawledToday = false
	s.status.LastRunID = runID
	s.status.UpdatedAt = now
	return true, nil
}

func cloneStatus(st crawler.CrawlStatus) crawler.CrawlStatus {
	if st.LastCrawlDate != nil {
		d := *st.LastCrawlDate
		st.LastCrawlDate = &d
	}
	if st.LastAttemptAt != nil {
		d := *st.LastAttemptAt
		st.LastAttemptAt = &d
	}
	return st
}
