package crawler

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/topcv-job-insights/internal/metrics"
)

// OrchestratorConfig controls which categories a run walks and how.
type OrchestratorConfig struct {
	Categories    []Category
	CategoryDelay time.Duration
	// MaxPages bounds each category walk; zero walks until exhaustion.
	MaxPages      int
	ArchivePrefix string
}

// Orchestrator walks every configured category page by page, persisting new
// records after each page. A walk stops at the first empty page or after
// MaxPages pages; MaxPages of 1 polls only the first page and 0 walks until a
// page yields no items.
type Orchestrator struct {
	cfg        OrchestratorConfig
	fetcher    PageFetcher
	normalizer Normalizer
	writer     RecordWriter
	archive    BlobStore
	clock      Clock
	pauser     Pauser
	hasher     Hasher
	logger     *zap.Logger
}

// NewOrchestrator constructs an Orchestrator. archive may be nil to skip raw
// page archiving; pauser defaults to a TimerPauser.
func NewOrchestrator(
	cfg OrchestratorConfig,
	fetcher PageFetcher,
	normalizer Normalizer,
	writer RecordWriter,
	archive BlobStore,
	clock Clock,
	pauser Pauser,
	logger *zap.Logger,
) *Orchestrator {
	if pauser == nil {
		pauser = TimerPauser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:        cfg,
		fetcher:    fetcher,
		normalizer: normalizer,
		writer:     writer,
		archive:    archive,
		clock:      clock,
		pauser:     pauser,
		logger:     logger,
	}
}

// WithHasher makes archived page names carry a digest of the page body.
func (o *Orchestrator) WithHasher(h Hasher) *Orchestrator {
	o.hasher = h
	return o
}

// Categories returns the configured category list.
func (o *Orchestrator) Categories() []Category {
	out := make([]Category, len(o.cfg.Categories))
	copy(out, o.cfg.Categories)
	return out
}

// RunCrawl crawls every category in order and returns the number of records
// inserted. It only fails when ctx ends before the walk completes.
func (o *Orchestrator) RunCrawl(ctx context.Context, runID string) (int, error) {
	total := 0
	for i, category := range o.cfg.Categories {
		if err := ctx.Err(); err != nil {
			return total, fmt.Errorf("crawl interrupted before %s: %w", category.Name, err)
		}
		if i > 0 {
			o.pauser.Pause(ctx, o.cfg.CategoryDelay)
		}
		inserted := o.crawlCategory(ctx, runID, category)
		total += inserted
		o.logger.Info("category crawled",
			zap.String("run_id", runID),
			zap.String("category", category.Name),
			zap.Int("inserted", inserted),
		)
	}
	if err := ctx.Err(); err != nil {
		return total, fmt.Errorf("crawl interrupted: %w", err)
	}
	return total, nil
}

func (o *Orchestrator) crawlCategory(ctx context.Context, runID string, category Category) int {
	inserted := 0
	for page := 1; o.cfg.MaxPages <= 0 || page <= o.cfg.MaxPages; page++ {
		if ctx.Err() != nil {
			return inserted
		}
		result := o.fetcher.FetchPage(ctx, category.URL, page)
		if len(result.Jobs) == 0 {
			metrics.ObservePage(category.Collection, "empty")
			o.logger.Info("category exhausted",
				zap.String("run_id", runID),
				zap.String("category", category.Name),
				zap.Int("page", page),
			)
			return inserted
		}
		metrics.ObservePage(category.Collection, "ok")
		o.archivePage(ctx, runID, category, result)

		now := o.clock.Now()
		records := make([]JobRecord, 0, len(result.Jobs))
		for _, raw := range result.Jobs {
			records = append(records, o.normalizer.Normalize(raw, category, now))
		}
		saved := o.writer.SaveNewRecords(ctx, category.Collection, records)
		inserted += saved.Inserted
		o.logger.Debug("page crawled",
			zap.String("run_id", runID),
			zap.String("category", category.Name),
			zap.Int("page", page),
			zap.Int("items", len(records)),
			zap.Int("inserted", saved.Inserted),
			zap.Int("skipped", saved.Skipped),
		)
	}
	return inserted
}

func (o *Orchestrator) archivePage(ctx context.Context, runID string, category Category, page Page) {
	if o.archive == nil || len(page.Body) == 0 {
		return
	}
	path := o.archivePath(runID, category.Collection, page.Number, o.digest(page.Body))
	uri, err := o.archive.PutObject(ctx, path, "text/html; charset=utf-8", bytes.NewReader(page.Body))
	if err != nil {
		o.logger.Warn("archive page failed",
			zap.String("run_id", runID),
			zap.String("path", path),
			zap.Error(err),
		)
		return
	}
	o.logger.Debug("page archived", zap.String("uri", uri))
}

// digest returns the body hash, or "" when hashing is off or fails.
func (o *Orchestrator) digest(body []byte) string {
	if o.hasher == nil {
		return ""
	}
	sum, err := o.hasher.Hash(body)
	if err != nil {
		o.logger.Warn("hash page failed", zap.Error(err))
		return ""
	}
	return sum
}

func (o *Orchestrator) archivePath(runID, collection string, page int, digest string) string {
	date := o.clock.Now().Format(time.DateOnly)
	name := fmt.Sprintf("%s/%s/page-%d-%s.html", collection, date, page, runID)
	if digest != "" {
		name = fmt.Sprintf("%s/%s/page-%d-%s-%s.html", collection, date, page, runID, digest)
	}
	prefix := strings.Trim(o.cfg.ArchivePrefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
