package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/topcv-job-insights/internal/crawler"
)

// ErrStopped is returned by TriggerManual once the scheduler stopped.
var ErrStopped = errors.New("scheduler stopped")

// Skip reasons reported in RunOutcome.Skipped.
const (
	SkipAlreadyCrawled    = "already_crawled"
	SkipInProgress        = "in_progress"
	SkipStatusUnavailable = "status_unavailable"
)

// Runner performs one orchestrated crawl.
type Runner interface {
	RunCrawl(ctx context.Context, runID string) (int, error)
}

type runQueue interface {
	Enqueue(ctx context.Context, req crawler.RunRequest) error
	TryEnqueue(req crawler.RunRequest) (bool, error)
	Dequeue(ctx context.Context) (crawler.RunRequest, error)
	Close()
}

// Config controls scheduling.
type Config struct {
	// TriggerTime is the daily "HH:MM" wall-clock time in the clock's location.
	TriggerTime  string
	PollInterval time.Duration
	// LeaseTTL is how long a running status blocks other runs.
	LeaseTTL time.Duration
	// Topic receives a CompletionEvent after every run; empty disables publishing.
	Topic           string
	FinalizeTimeout time.Duration
}

// CompletionHook is called after every finished run.
type CompletionHook func(ctx context.Context, outcome crawler.RunOutcome)

// Scheduler owns the poll loop and the single run worker.
type Scheduler struct {
	cfg       Config
	hour      int
	minute    int
	runner    Runner
	status    crawler.StatusStore
	queue     runQueue
	clock     crawler.Clock
	ids       crawler.IDGenerator
	publisher crawler.Publisher
	logger    *zap.Logger

	hooks []CompletionHook

	mu      sync.Mutex
	started bool
	stopped bool
	cron    *cron.Cron
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a Scheduler. publisher may be nil.
func New(
	cfg Config,
	runner Runner,
	status crawler.StatusStore,
	queue runQueue,
	clock crawler.Clock,
	ids crawler.IDGenerator,
	publisher crawler.Publisher,
	logger *zap.Logger,
) (*Scheduler, error) {
	if runner == nil || status == nil || queue == nil || clock == nil || ids == nil {
		return nil, fmt.Errorf("scheduler: runner, status store, queue, clock and id generator are required")
	}
	hour, minute, err := ParseTriggerTime(cfg.TriggerTime)
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 2 * time.Hour
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:       cfg,
		hour:      hour,
		minute:    minute,
		runner:    runner,
		status:    status,
		queue:     queue,
		clock:     clock,
		ids:       ids,
		publisher: publisher,
		logger:    logger,
	}, nil
}

// OnComplete registers a hook. Hooks must be registered before Start.
func (s *Scheduler) OnComplete(hook CompletionHook) {
	s.hooks = append(s.hooks, hook)
}

// ScheduledTime renders the trigger time for display, e.g. "09:00 daily".
func (s *Scheduler) ScheduledTime() string {
	return fmt.Sprintf("%02d:%02d daily", s.hour, s.minute)
}

// Start initializes the status document and launches the poll loop and the
// run worker. Status store failures are logged; the loop keeps polling.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler already started")
	}

	now := s.clock.Now()
	if _, err := s.loadStatus(ctx, now); err != nil {
		s.logger.Error("initialize crawl status", zap.Error(err))
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := cron.New(
		cron.WithLocation(now.Location()),
		cron.WithLogger(cronLogger{s.logger.Sugar()}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.logger.Sugar()})),
	)
	spec := "@every " + s.cfg.PollInterval.String()
	if _, err := c.AddFunc(spec, func() { s.Tick(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule poll loop: %w", err)
	}

	s.cron = c
	s.cancel = cancel
	s.started = true
	s.wg.Add(1)
	go s.runWorker(runCtx)
	c.Start()

	s.logger.Info("scheduler started",
		zap.String("trigger_time", s.cfg.TriggerTime),
		zap.Duration("poll_interval", s.cfg.PollInterval),
		zap.String("next_crawl", NextRun(now, s.hour, s.minute, false).Format(time.RFC3339)),
	)
	return nil
}

// Stop halts the poll loop, closes the queue and waits for an in-flight run
// until ctx ends. A run still going when ctx ends is abandoned.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.stopped = true
		s.mu.Unlock()
		s.queue.Close()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	<-s.cron.Stop().Done()
	s.queue.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler stop abandoned in-flight crawl", zap.Error(ctx.Err()))
		return fmt.Errorf("wait for run worker: %w", ctx.Err())
	}
}

// Tick checks whether today's crawl is due and, if so, runs it through the
// worker and waits for it to finish.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.clock.Now()
	status, err := s.loadStatus(ctx, now)
	if err != nil {
		s.logger.Warn("poll skipped: status unavailable", zap.Error(err))
		return
	}
	if !s.due(status, now) {
		return
	}

	done := make(chan crawler.RunOutcome, 1)
	req := crawler.RunRequest{Trigger: crawler.TriggerSchedule, Submitted: now, Done: done}
	if err := s.queue.Enqueue(ctx, req); err != nil {
		s.logger.Warn("enqueue scheduled crawl", zap.Error(err))
		return
	}
	select {
	case out := <-done:
		s.logger.Debug("scheduled crawl finished",
			zap.String("run_id", out.RunID),
			zap.String("status", string(out.State)),
			zap.String("skipped", out.Skipped),
		)
	case <-ctx.Done():
	}
}

func (s *Scheduler) due(status crawler.CrawlStatus, now time.Time) bool {
	trigger := TriggerAt(now, s.hour, s.minute)
	if now.Before(trigger) || IsCrawledToday(status, now) {
		return false
	}
	switch status.State {
	case crawler.StateRunning:
		return status.UpdatedAt.Before(now.Add(-s.cfg.LeaseTTL))
	case crawler.StateError:
		// A failed run waits for the next day's boundary.
		return status.LastAttemptAt == nil || status.LastAttemptAt.Before(trigger)
	}
	return true
}

// ManualStatus distinguishes manual trigger results.
type ManualStatus string

// Manual trigger results.
const (
	ManualStarted     ManualStatus = "started"
	ManualAlreadyDone ManualStatus = "already_done"
	ManualBusy        ManualStatus = "busy"
)

// ManualResult is returned by TriggerManual.
type ManualResult struct {
	Status    ManualStatus
	Countdown Countdown
}

// TriggerManual queues a crawl unless today's crawl already happened or a
// run is in flight. It returns without waiting for the crawl.
func (s *Scheduler) TriggerManual(ctx context.Context) (ManualResult, error) {
	now := s.clock.Now()
	status, err := s.loadStatus(ctx, now)
	if err != nil {
		return ManualResult{}, fmt.Errorf("read crawl status: %w", err)
	}
	crawledToday := IsCrawledToday(status, now)
	result := ManualResult{Countdown: ComputeCountdown(now, s.hour, s.minute, crawledToday)}
	if crawledToday {
		result.Status = ManualAlreadyDone
		return result, nil
	}
	if status.State == crawler.StateRunning && !status.UpdatedAt.Before(now.Add(-s.cfg.LeaseTTL)) {
		result.Status = ManualBusy
		return result, nil
	}

	ok, err := s.queue.TryEnqueue(crawler.RunRequest{
		Trigger:   crawler.TriggerManual,
		Submitted: now,
		Done:      make(chan crawler.RunOutcome, 1),
	})
	if err != nil {
		return ManualResult{}, ErrStopped
	}
	if !ok {
		result.Status = ManualBusy
		return result, nil
	}
	result.Status = ManualStarted
	s.logger.Info("manual crawl queued")
	return result, nil
}

// Status returns the persisted status and the countdown to the next run.
func (s *Scheduler) Status(ctx context.Context) (crawler.CrawlStatus, Countdown, error) {
	now := s.clock.Now()
	status, err := s.status.GetStatus(ctx)
	if err != nil && !errors.Is(err, crawler.ErrNotFound) {
		return crawler.CrawlStatus{}, Countdown{}, fmt.Errorf("read crawl status: %w", err)
	}
	if errors.Is(err, crawler.ErrNotFound) {
		status = s.initialStatus(now)
	}
	return status, ComputeCountdown(now, s.hour, s.minute, IsCrawledToday(status, now)), nil
}

// loadStatus reads the status document, creating it when missing.
func (s *Scheduler) loadStatus(ctx context.Context, now time.Time) (crawler.CrawlStatus, error) {
	status, err := s.status.GetStatus(ctx)
	if err == nil {
		return status, nil
	}
	if !errors.Is(err, crawler.ErrNotFound) {
		return crawler.CrawlStatus{}, fmt.Errorf("get status: %w", err)
	}
	initial := s.initialStatus(now)
	created, err := s.status.InitStatus(ctx, initial)
	if err != nil {
		return crawler.CrawlStatus{}, fmt.Errorf("init status: %w", err)
	}
	if created {
		s.logger.Info("initialized crawl status")
		return initial, nil
	}
	status, err = s.status.GetStatus(ctx)
	if err != nil {
		return crawler.CrawlStatus{}, fmt.Errorf("get status: %w", err)
	}
	return status, nil
}

func (s *Scheduler) initialStatus(now time.Time) crawler.CrawlStatus {
	return crawler.CrawlStatus{
		Type:          crawler.StatusType,
		NextCrawlTime: NextRun(now, s.hour, s.minute, false),
		State:         crawler.StateWaiting,
		UpdatedAt:     now,
	}
}

type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
