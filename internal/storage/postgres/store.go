// Package postgres provides Postgres-backed persistence for listings and the
// scheduler status row.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/topcv-job-insights/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool and table names.
type Config struct {
	DSN             string
	JobsTable       string
	StatusTable     string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	SendBatch(context.Context, *pgx.Batch) pgx.BatchResults
	Ping(context.Context) error
	Close()
}

// Store implements crawler.JobStore and crawler.StatusStore on Postgres.
type Store struct {
	pool        pool
	jobsTable   string
	statusTable string
}

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(p, cfg.JobsTable, cfg.StatusTable)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, jobsTable, statusTable string) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if jobsTable == "" {
		jobsTable = "jobs"
	}
	if statusTable == "" {
		statusTable = "crawl_status"
	}
	for _, table := range []string{jobsTable, statusTable} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return &Store{pool: p, jobsTable: jobsTable, statusTable: statusTable}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping implements crawler.JobStore.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema creates the tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	collection TEXT NOT NULL,
	unique_key TEXT NOT NULL,
	title TEXT NOT NULL,
	company TEXT NOT NULL,
	salary_text TEXT NOT NULL,
	salary_avg DOUBLE PRECISION NOT NULL DEFAULT 0,
	location TEXT NOT NULL,
	city TEXT NOT NULL,
	experience_text TEXT NOT NULL,
	experience_years INTEGER NOT NULL DEFAULT 0,
	update_raw TEXT NOT NULL,
	update_date DATE,
	skills TEXT[] NOT NULL DEFAULT '{}',
	category TEXT NOT NULL DEFAULT '',
	page INTEGER NOT NULL DEFAULT 0,
	crawled_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (collection, unique_key)
)`, s.jobsTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_crawled_at_idx ON %s (crawled_at)`, s.jobsTable, s.jobsTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	type TEXT PRIMARY KEY,
	last_crawl_date TIMESTAMPTZ,
	last_attempt_at TIMESTAMPTZ,
	next_crawl_time TIMESTAMPTZ NOT NULL,
	crawled_today BOOLEAN NOT NULL DEFAULT FALSE,
	crawl_status TEXT NOT NULL,
	last_crawl_records INTEGER NOT NULL DEFAULT 0,
	total_records INTEGER NOT NULL DEFAULT 0,
	last_run_id TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL
)`, s.statusTable),
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// HasKey implements crawler.JobStore.
func (s *Store) HasKey(ctx context.Context, collection, uniqueKey string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE collection = $1 AND unique_key = $2)`, s.jobsTable)
	var exists bool
	if err := s.pool.QueryRow(ctx, query, collection, uniqueKey).Scan(&exists); err != nil {
		return false, fmt.Errorf("lookup key: %w", err)
	}
	return exists, nil
}

// InsertMany implements crawler.JobStore. All rows go out in one pipelined
// batch; rows that conflict on the natural key are skipped and failed rows are
// reported together after the batch.
func (s *Store) InsertMany(ctx context.Context, collection string, records []crawler.JobRecord) (int, error) {
	query := fmt.Sprintf(`
INSERT INTO %s (
	collection,
	unique_key,
	title,
	company,
	salary_text,
	salary_avg,
	location,
	city,
	experience_text,
	experience_years,
	update_raw,
	update_date,
	skills,
	category,
	page,
	crawled_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
) ON CONFLICT (collection, unique_key) DO NOTHING`, s.jobsTable)

	if len(records) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, rec := range records {
		skills := rec.Skills
		if skills == nil {
			skills = []string{}
		}
		batch.Queue(query,
			collection,
			rec.UniqueKey,
			rec.Title,
			rec.Company,
			rec.SalaryText,
			rec.SalaryAvg,
			rec.Location,
			rec.City,
			rec.ExperienceText,
			rec.ExperienceYears,
			rec.UpdateRaw,
			rec.UpdateDate,
			skills,
			rec.Category,
			rec.Page,
			rec.CrawledAt,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	inserted := 0
	var errs []error
	for _, rec := range records {
		tag, err := results.Exec()
		if err != nil {
			errs = append(errs, fmt.Errorf("insert %q: %w", rec.UniqueKey, err))
			continue
		}
		if tag.RowsAffected() == 1 {
			inserted++
		} else {
			errs = append(errs, fmt.Errorf("insert %q: key already present", rec.UniqueKey))
		}
	}
	if err := results.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close insert batch: %w", err))
	}
	return inserted, errors.Join(errs...)
}

// Collections implements crawler.JobStore.
func (s *Store) Collections(ctx context.Context) ([]crawler.CollectionInfo, error) {
	query := fmt.Sprintf(`SELECT collection, COUNT(*) FROM %s GROUP BY collection ORDER BY collection`, s.jobsTable)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()
	var out []crawler.CollectionInfo
	for rows.Next() {
		var info crawler.CollectionInfo
		var count int64
		if err := rows.Scan(&info.Name, &count); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		info.Count = int(count)
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	return out, nil
}

const recordColumns = `collection, unique_key, title, company, salary_text, salary_avg, location, city,
	experience_text, experience_years, update_raw, update_date, skills, category, page, crawled_at`

// FindJobs implements crawler.JobStore.
func (s *Store) FindJobs(ctx context.Context, collection string) ([]crawler.JobRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE ($1 = '' OR collection = $1) ORDER BY collection, crawled_at`,
		recordColumns, s.jobsTable)
	return s.queryRecords(ctx, query, collection)
}

// FindCrawledSince implements crawler.JobStore.
func (s *Store) FindCrawledSince(ctx context.Context, since time.Time) ([]crawler.JobRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE crawled_at >= $1 ORDER BY crawled_at DESC`,
		recordColumns, s.jobsTable)
	return s.queryRecords(ctx, query, since)
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]crawler.JobRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()
	var out []crawler.JobRecord
	for rows.Next() {
		var (
			collection string
			rec        crawler.JobRecord
		)
		if err := rows.Scan(
			&collection,
			&rec.UniqueKey,
			&rec.Title,
			&rec.Company,
			&rec.SalaryText,
			&rec.SalaryAvg,
			&rec.Location,
			&rec.City,
			&rec.ExperienceText,
			&rec.ExperienceYears,
			&rec.UpdateRaw,
			&rec.UpdateDate,
			&rec.Skills,
			&rec.Category,
			&rec.Page,
			&rec.CrawledAt,
		); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		rec.Backfill(collection)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	return out, nil
}
