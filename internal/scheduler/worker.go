package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/topcv-job-insights/internal/crawler"
	"github.com/JakeFAU/topcv-job-insights/internal/metrics"
	queue "github.com/JakeFAU/topcv-job-insights/internal/queue/memory"
)

// runWorker drains the queue until it closes or ctx ends.
func (s *Scheduler) runWorker(ctx context.Context) {
	defer s.wg.Done()
	for {
		req, err := s.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			s.logger.Error("dequeue run request", zap.Error(err))
			continue
		}
		out := s.Execute(ctx, req)
		if req.Done != nil {
			select {
			case req.Done <- out:
			default:
			}
		}
	}
}

// Execute performs one guarded crawl: it re-checks today's status unless
// req.Force is set, takes the status lease, runs the crawl and records the
// outcome. The crawl itself is not canceled by ctx.
func (s *Scheduler) Execute(ctx context.Context, req crawler.RunRequest) crawler.RunOutcome {
	out := crawler.RunOutcome{Trigger: req.Trigger}
	now := s.clock.Now()
	logger := s.logger.With(zap.String("trigger", string(req.Trigger)))

	status, err := s.loadStatus(ctx, now)
	if err != nil {
		logger.Error("crawl skipped: status unavailable", zap.Error(err))
		out.State = crawler.StateError
		out.Skipped = SkipStatusUnavailable
		out.Err = err
		return out
	}
	if !req.Force && IsCrawledToday(status, now) {
		logger.Info("already crawled today, skipping")
		out.State = status.State
		out.Skipped = SkipAlreadyCrawled
		return out
	}

	runID, err := s.ids.NewID()
	if err != nil {
		logger.Error("generate run id", zap.Error(err))
		out.State = crawler.StateError
		out.Err = fmt.Errorf("generate run id: %w", err)
		return out
	}
	acquired, err := s.status.AcquireRun(ctx, runID, now, now.Add(-s.cfg.LeaseTTL))
	if err != nil {
		logger.Error("crawl skipped: acquire lease", zap.Error(err))
		out.State = crawler.StateError
		out.Skipped = SkipStatusUnavailable
		out.Err = fmt.Errorf("acquire run: %w", err)
		return out
	}
	if !acquired {
		logger.Info("crawl skipped: another run holds the lease")
		out.State = crawler.StateRunning
		out.Skipped = SkipInProgress
		out.Err = crawler.ErrRunInProgress
		return out
	}

	out.RunID = runID
	logger = logger.With(zap.String("run_id", runID))
	logger.Info("crawl started")

	records, runErr := s.runSafely(context.WithoutCancel(ctx), runID)
	finished := s.clock.Now()
	out.Records = records
	out.State = crawler.StateCompleted
	if runErr != nil {
		out.State = crawler.StateError
		out.Err = runErr
		logger.Error("crawl failed", zap.Int("records", records), zap.Error(runErr))
	} else {
		logger.Info("crawl completed", zap.Int("records", records))
	}

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.FinalizeTimeout)
	defer cancel()
	s.recordOutcome(fctx, out, finished)
	s.publish(fctx, out, finished)
	for _, hook := range s.hooks {
		hook(fctx, out)
	}
	metrics.ObserveRun(string(req.Trigger), string(out.State), finished.Sub(now))
	return out
}

func (s *Scheduler) runSafely(ctx context.Context, runID string) (records int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("crawl panicked: %v", r)
		}
	}()
	return s.runner.RunCrawl(ctx, runID)
}

// recordOutcome read-modify-writes the status document.
func (s *Scheduler) recordOutcome(ctx context.Context, out crawler.RunOutcome, finished time.Time) {
	status, err := s.status.GetStatus(ctx)
	if err != nil {
		s.logger.Error("record crawl outcome: read status",
			zap.String("run_id", out.RunID),
			zap.String("status", string(out.State)),
			zap.Error(err),
		)
		return
	}

	status.Type = crawler.StatusType
	status.State = out.State
	status.LastRunID = out.RunID
	status.LastAttemptAt = &finished
	status.UpdatedAt = finished
	status.LastCrawlRecords = out.Records
	status.TotalRecords += out.Records
	if out.State == crawler.StateCompleted {
		status.LastCrawlDate = &finished
		status.CrawledToday = true
	}
	status.NextCrawlTime = NextRun(finished, s.hour, s.minute, IsCrawledToday(status, finished))

	if err := s.status.PutStatus(ctx, status); err != nil {
		s.logger.Error("record crawl outcome: write status",
			zap.String("run_id", out.RunID),
			zap.String("status", string(out.State)),
			zap.Error(err),
		)
	}
}

func (s *Scheduler) publish(ctx context.Context, out crawler.RunOutcome, finished time.Time) {
	if s.publisher == nil || s.cfg.Topic == "" {
		return
	}
	event := crawler.CompletionEvent{
		RunID:      out.RunID,
		Records:    out.Records,
		Status:     out.State,
		Trigger:    out.Trigger,
		FinishedAt: finished,
	}
	if _, err := s.publisher.Publish(ctx, s.cfg.Topic, event); err != nil {
		s.logger.Warn("publish completion event", zap.String("run_id", out.RunID), zap.Error(err))
	}
}
