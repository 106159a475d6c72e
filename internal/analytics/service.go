package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/topcv-job-insights/internal/crawler"
	"github.com/JakeFAU/topcv-job-insights/internal/metrics"
	"github.com/JakeFAU/topcv-job-insights/internal/normalize"
)

const cachePrefix = "analytics:"

// Reader is the store surface analytics reads from.
type Reader interface {
	Collections(ctx context.Context) ([]crawler.CollectionInfo, error)
	FindJobs(ctx context.Context, collection string) ([]crawler.JobRecord, error)
	FindCrawledSince(ctx context.Context, since time.Time) ([]crawler.JobRecord, error)
}

// Config tunes aggregation output.
type Config struct {
	RecentLimit   int
	TopSkills     int
	HistogramBins int
	CacheTTL      time.Duration
}

// Service computes aggregates, caching them when a cache is configured.
type Service struct {
	cfg    Config
	store  Reader
	rules  normalize.Rules
	cache  crawler.Cache
	clock  crawler.Clock
	logger *zap.Logger
}

// New constructs a Service. cache may be nil.
func New(cfg Config, store Reader, rules normalize.Rules, cache crawler.Cache, clock crawler.Clock, logger *zap.Logger) *Service {
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = 50
	}
	if cfg.TopSkills <= 0 {
		cfg.TopSkills = 20
	}
	if cfg.HistogramBins <= 0 {
		cfg.HistogramBins = 25
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{cfg: cfg, store: store, rules: rules, cache: cache, clock: clock, logger: logger}
}

// Invalidate drops every cached aggregate.
func (s *Service) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.DeletePrefix(ctx, cachePrefix); err != nil {
		return fmt.Errorf("invalidate analytics cache: %w", err)
	}
	return nil
}

// OnCrawlComplete invalidates the cache after a run; it matches the
// scheduler's completion hook signature.
func (s *Service) OnCrawlComplete(ctx context.Context, out crawler.RunOutcome) {
	if err := s.Invalidate(ctx); err != nil {
		s.logger.Warn("analytics cache invalidation failed", zap.String("run_id", out.RunID), zap.Error(err))
	}
}

// Collections lists stored collections with counts.
func (s *Service) Collections(ctx context.Context) (CollectionsResult, error) {
	infos, err := s.store.Collections(ctx)
	if err != nil {
		return CollectionsResult{}, fmt.Errorf("list collections: %w", err)
	}
	if infos == nil {
		infos = []crawler.CollectionInfo{}
	}
	return CollectionsResult{Collections: infos, TotalCollections: len(infos)}, nil
}

// Summary computes headline totals.
func (s *Service) Summary(ctx context.Context, collection string) (Summary, error) {
	return cached(ctx, s, "summary", collection, func() (Summary, error) {
		records, err := s.load(ctx, collection)
		if err != nil {
			return Summary{}, err
		}
		return summarize(records, collectionUsed(collection)), nil
	})
}

// SalaryDistribution computes the salary histogram and per-category boxes.
func (s *Service) SalaryDistribution(ctx context.Context, collection string) (SalaryDistribution, error) {
	return cached(ctx, s, "salary-distribution", collection, func() (SalaryDistribution, error) {
		records, err := s.load(ctx, collection)
		if err != nil {
			return SalaryDistribution{}, err
		}
		return salaryDistribution(records, s.cfg.HistogramBins, collectionUsed(collection))
	})
}

// JobsTrend computes weekly posting counts and salary averages.
func (s *Service) JobsTrend(ctx context.Context, collection string) (JobsTrend, error) {
	return cached(ctx, s, "jobs-trend", collection, func() (JobsTrend, error) {
		records, err := s.load(ctx, collection)
		if err != nil {
			return JobsTrend{}, err
		}
		return jobsTrend(records, collectionUsed(collection))
	})
}

// SalaryLocation relates experience to salary per city.
func (s *Service) SalaryLocation(ctx context.Context, collection string) (SalaryLocation, error) {
	return cached(ctx, s, "salary-location-analysis", collection, func() (SalaryLocation, error) {
		records, err := s.load(ctx, collection)
		if err != nil {
			return SalaryLocation{}, err
		}
		return salaryLocation(records, s.rules, collectionUsed(collection))
	})
}

// Correlation computes the Pearson matrix over encoded listing features.
func (s *Service) Correlation(ctx context.Context, collection string) (Correlation, error) {
	return cached(ctx, s, "correlation-heatmap", collection, func() (Correlation, error) {
		records, err := s.load(ctx, collection)
		if err != nil {
			return Correlation{}, err
		}
		return correlation(records, s.rules, collectionUsed(collection)), nil
	})
}

// Hierarchy computes the treemap and sunburst breakdowns.
func (s *Service) Hierarchy(ctx context.Context, collection string) (Hierarchy, error) {
	return cached(ctx, s, "treemap-sunburst", collection, func() (Hierarchy, error) {
		records, err := s.load(ctx, collection)
		if err != nil {
			return Hierarchy{}, err
		}
		return hierarchy(records, s.rules, collectionUsed(collection)), nil
	})
}

// Skills returns the most requested skills.
func (s *Service) Skills(ctx context.Context, collection string) (Skills, error) {
	return cached(ctx, s, "skills-analysis", collection, func() (Skills, error) {
		records, err := s.load(ctx, collection)
		if err != nil {
			return Skills{}, err
		}
		return Skills{Skills: topSkills(records, s.cfg.TopSkills), CollectionUsed: collectionUsed(collection)}, nil
	})
}

// TodayJobs returns records crawled since local midnight, newest first and
// capped at RecentLimit.
func (s *Service) TodayJobs(ctx context.Context) (TodayJobs, error) {
	now := s.clock.Now()
	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	records, err := s.store.FindCrawledSince(ctx, midnight)
	if err != nil {
		return TodayJobs{}, fmt.Errorf("find today's records: %w", err)
	}
	categories := make(map[string]struct{})
	for _, rec := range records {
		categories[rec.Category] = struct{}{}
	}
	out := TodayJobs{
		CrawlDate:           midnight.Format(time.DateOnly),
		TotalJobs:           len(records),
		CollectionsWithData: len(categories),
		CrawledToday:        len(records) > 0,
	}
	if len(records) > s.cfg.RecentLimit {
		records = records[:s.cfg.RecentLimit]
	}
	if records == nil {
		records = []crawler.JobRecord{}
	}
	out.Jobs = records
	return out, nil
}

func (s *Service) load(ctx context.Context, collection string) ([]crawler.JobRecord, error) {
	records, err := s.store.FindJobs(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	return records, nil
}

// cached serves endpoint results from the cache, computing and storing them
// on a miss. Empty results and failures are not cached.
func cached[T any](ctx context.Context, s *Service, endpoint, collection string, compute func() (T, error)) (T, error) {
	if s.cache == nil {
		return compute()
	}
	key := cachePrefix + endpoint + ":" + collection
	raw, ok, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.ObserveCache("error")
		s.logger.Warn("analytics cache read failed", zap.String("key", key), zap.Error(err))
	case ok:
		var out T
		if err := json.Unmarshal(raw, &out); err == nil {
			metrics.ObserveCache("hit")
			return out, nil
		}
		metrics.ObserveCache("error")
	default:
		metrics.ObserveCache("miss")
	}

	out, err := compute()
	if err != nil {
		return out, err
	}
	payload, err := json.Marshal(out)
	if err != nil {
		s.logger.Warn("analytics cache encode failed", zap.String("key", key), zap.Error(err))
		return out, nil
	}
	if err := s.cache.Set(ctx, key, payload, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("analytics cache write failed", zap.String("key", key), zap.Error(err))
	}
	return out, nil
}

func collectionUsed(collection string) string {
	if collection == "" {
		return "all"
	}
	return collection
}

// IsEmpty reports whether err means an aggregation had no input and returns
// the message to show.
func IsEmpty(err error) (string, bool) {
	var empty *EmptyError
	if errors.As(err, &empty) {
		return empty.Message, true
	}
	return "", false
}
