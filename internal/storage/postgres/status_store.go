package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/topcv-job-insights/internal/crawler"
)

const statusColumns = `type, last_crawl_date, last_attempt_at, next_crawl_time, crawled_today, crawl_status,
	last_crawl_records, total_records, last_run_id, updated_at`

// GetStatus implements crawler.StatusStore.
func (s *Store) GetStatus(ctx context.Context) (crawler.CrawlStatus, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE type = $1`, statusColumns, s.statusTable)
	var (
		st    crawler.CrawlStatus
		state string
	)
	err := s.pool.QueryRow(ctx, query, crawler.StatusType).Scan(
		&st.Type,
		&st.LastCrawlDate,
		&st.LastAttemptAt,
		&st.NextCrawlTime,
		&st.CrawledToday,
		&state,
		&st.LastCrawlRecords,
		&st.TotalRecords,
		&st.LastRunID,
		&st.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.CrawlStatus{}, crawler.ErrNotFound
	}
	if err != nil {
		return crawler.CrawlStatus{}, fmt.Errorf("get crawl status: %w", err)
	}
	st.State = crawler.CrawlState(state)
	return st, nil
}

// InitStatus implements crawler.StatusStore.
func (s *Store) InitStatus(ctx context.Context, initial crawler.CrawlStatus) (bool, error) {
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (type) DO NOTHING`, s.statusTable, statusColumns)
	tag, err := s.pool.Exec(ctx, query, statusArgs(initial)...)
	if err != nil {
		return false, fmt.Errorf("init crawl status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// PutStatus implements crawler.StatusStore.
func (s *Store) PutStatus(ctx context.Context, status crawler.CrawlStatus) error {
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (type) DO UPDATE SET
	last_crawl_date = EXCLUDED.last_crawl_date,
	last_attempt_at = EXCLUDED.last_attempt_at,
	next_crawl_time = EXCLUDED.next_crawl_time,
	crawled_today = EXCLUDED.crawled_today,
	crawl_status = EXCLUDED.crawl_status,
	last_crawl_records = EXCLUDED.last_crawl_records,
	total_records = EXCLUDED.total_records,
	last_run_id = EXCLUDED.last_run_id,
	updated_at = EXCLUDED.updated_at`, s.statusTable, statusColumns)
	if _, err := s.pool.Exec(ctx, query, statusArgs(status)...); err != nil {
		return fmt.Errorf("put crawl status: %w", err)
	}
	return nil
}

// AcquireRun implements crawler.StatusStore.
func (s *Store) AcquireRun(ctx context.Context, runID string, now, staleBefore time.Time) (bool, error) {
	query := fmt.Sprintf(`UPDATE %s
SET crawl_status = $1, crawled_today = FALSE, last_run_id = $2, updated_at = $3
WHERE type = $4 AND (crawl_status <> $1 OR updated_at < $5)`, s.statusTable)
	tag, err := s.pool.Exec(ctx, query, string(crawler.StateRunning), runID, now, crawler.StatusType, staleBefore)
	if err != nil {
		return false, fmt.Errorf("acquire crawl lease: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func statusArgs(st crawler.CrawlStatus) []any {
	kind := st.Type
	if kind == "" {
		kind = crawler.StatusType
	}
	return []any{
		kind,
		st.LastCrawlDate,
		st.LastAttemptAt,
		st.NextCrawlTime,
		st.CrawledToday,
		string(st.State),
		st.LastCrawlRecords,
		st.TotalRecords,
		st.LastRunID,
		st.UpdatedAt,
	}
}
