// Package app initializes and holds long-lived application services, acting
// as a dependency injection container for the commands.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/topcv-job-insights/internal/analytics"
	"github.com/JakeFAU/topcv-job-insights/internal/api"
	memcache "github.com/JakeFAU/topcv-job-insights/internal/cache/memory"
	rediscache "github.com/JakeFAU/topcv-job-insights/internal/cache/redis"
	"github.com/JakeFAU/topcv-job-insights/internal/clock/system"
	"github.com/JakeFAU/topcv-job-insights/internal/config"
	"github.com/JakeFAU/topcv-job-insights/internal/crawler"
	"github.com/JakeFAU/topcv-job-insights/internal/dedup"
	collyfetcher "github.com/JakeFAU/topcv-job-insights/internal/fetcher/colly"
	"github.com/JakeFAU/topcv-job-insights/internal/hash/sha256"
	"github.com/JakeFAU/topcv-job-insights/internal/id/uuid"
	"github.com/JakeFAU/topcv-job-insights/internal/policy/ratelimit"
	mempublisher "github.com/JakeFAU/topcv-job-insights/internal/publisher/memory"
	"github.com/JakeFAU/topcv-job-insights/internal/publisher/pubsub"
	memqueue "github.com/JakeFAU/topcv-job-insights/internal/queue/memory"
	"github.com/JakeFAU/topcv-job-insights/internal/scheduler"
	"github.com/JakeFAU/topcv-job-insights/internal/storage/gcs"
	"github.com/JakeFAU/topcv-job-insights/internal/storage/local"
	"github.com/JakeFAU/topcv-job-insights/internal/storage/memory"
	mongostore "github.com/JakeFAU/topcv-job-insights/internal/storage/mongo"
	"github.com/JakeFAU/topcv-job-insights/internal/storage/postgres"
)

const archiveDigestSize = 12

// Store is the persistence surface shared by the crawler, scheduler and API.
type Store interface {
	crawler.JobStore
	crawler.StatusStore
}

// App holds the shared, long-lived services built from one Config.
type App struct {
	Config       config.Config
	Logger       *zap.Logger
	Clock        crawler.Clock
	Store        Store
	Archive      crawler.BlobStore
	Publisher    crawler.Publisher
	Cache        crawler.Cache
	Orchestrator *crawler.Orchestrator
	Scheduler    *scheduler.Scheduler
	Analytics    *analytics.Service
	Server       *api.Server

	closers []func(context.Context) error
}

// New builds every service described by cfg. It fails fast when a backend
// cannot be reached and releases whatever was opened before the failure.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	a.Clock = system.New(loc)

	if a.Store, err = a.openStore(ctx); err != nil {
		return nil, err
	}
	if a.Archive, err = a.openArchive(ctx); err != nil {
		return nil, err
	}
	if a.Publisher, err = a.openPublisher(ctx); err != nil {
		return nil, err
	}
	if a.Cache, err = a.openCache(ctx); err != nil {
		return nil, err
	}

	rules := cfg.Rules()
	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: cfg.Fetcher.RequestsPerSecond,
		Burst:             cfg.Fetcher.Burst,
	})
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgents:  cfg.Fetcher.UserAgents,
		Timeout:     cfg.Fetcher.Timeout,
		MaxRetries:  cfg.Fetcher.MaxRetries,
		BackoffBase: cfg.Fetcher.BackoffBase,
	}, limiter, nil, logger.Named("fetcher"))

	a.Orchestrator = crawler.NewOrchestrator(crawler.OrchestratorConfig{
		Categories:    cfg.Crawl.Categories,
		CategoryDelay: cfg.Crawl.CategoryDelay,
		MaxPages:      cfg.Crawl.MaxPages,
		ArchivePrefix: cfg.Archive.Prefix,
	}, fetcher, rules, dedup.New(a.Store, logger.Named("dedup")), a.Archive, a.Clock, nil, logger.Named("orchestrator")).
		WithHasher(sha256.New(archiveDigestSize))

	queue := memqueue.NewQueue(cfg.Scheduler.QueueDepth)
	a.Scheduler, err = scheduler.New(scheduler.Config{
		TriggerTime:  cfg.Scheduler.TriggerTime,
		PollInterval: cfg.Scheduler.PollInterval,
		LeaseTTL:     cfg.Scheduler.LeaseTTL,
		Topic:        cfg.PubSub.Topic,
	}, a.Orchestrator, a.Store, queue, a.Clock, uuid.New(), a.Publisher, logger.Named("scheduler"))
	if err != nil {
		return nil, fmt.Errorf("build scheduler: %w", err)
	}

	a.Analytics = analytics.New(analytics.Config{
		RecentLimit: cfg.API.RecentLimit,
		TopSkills:   cfg.API.TopSkills,
		CacheTTL:    cfg.Cache.TTL,
	}, a.Store, rules, a.Cache, a.Clock, logger.Named("analytics"))
	a.Scheduler.OnComplete(a.Analytics.OnCrawlComplete)

	var controller api.CrawlController
	if cfg.Scheduler.Enabled {
		controller = a.Scheduler
	}
	a.Server = api.NewServer(a.Analytics, controller, a.Store, a.Clock, api.Config{
		TriggerTime:    cfg.Scheduler.TriggerTime,
		RequestTimeout: cfg.API.RequestTimeout,
	}, logger.Named("api"))

	logger.Info("application services initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("archive", cfg.Archive.Driver),
		zap.String("cache", cfg.Cache.Driver),
		zap.Int("categories", len(cfg.Crawl.Categories)),
		zap.Bool("scheduler", cfg.Scheduler.Enabled),
	)
	return a, nil
}

func (a *App) openStore(ctx context.Context) (Store, error) {
	cfg := a.Config.Store
	switch cfg.Driver {
	case "memory":
		a.Logger.Warn("using in-memory store; data is lost on restart")
		return memory.NewStore(), nil
	case "postgres":
		store, err := postgres.New(ctx, postgres.Config{
			DSN:         cfg.DSN,
			JobsTable:   cfg.JobsTable,
			StatusTable: cfg.StatusTable,
			MaxConns:    cfg.MaxConns,
			MinConns:    cfg.MinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { store.Close(); return nil })
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure postgres schema: %w", err)
		}
		return store, nil
	case "mongo":
		store, err := mongostore.New(ctx, mongostore.Config{
			URI:              cfg.DSN,
			Database:         cfg.Database,
			StatusCollection: cfg.StatusCollection,
			ConnectTimeout:   cfg.ConnectTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("open mongo store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		if err := store.EnsureIndexes(ctx, a.collections()); err != nil {
			return nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}
}

func (a *App) openArchive(ctx context.Context) (crawler.BlobStore, error) {
	cfg := a.Config.Archive
	switch cfg.Driver {
	case "none", "":
		return nil, nil
	case "memory":
		return memory.NewBlobStore(), nil
	case "local":
		store, err := local.New(local.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("open local archive: %w", err)
		}
		return store, nil
	case "gcs":
		store, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.Bucket})
		if err != nil {
			return nil, fmt.Errorf("open gcs archive: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
		return store, nil
	default:
		return nil, fmt.Errorf("unknown archive driver: %s", cfg.Driver)
	}
}

func (a *App) openPublisher(ctx context.Context) (crawler.Publisher, error) {
	if a.Config.PubSub.ProjectID == "" {
		return mempublisher.New(), nil
	}
	pub, err := pubsub.New(ctx, a.Config.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("open pubsub publisher: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return pub.Close() })
	return pub, nil
}

func (a *App) openCache(ctx context.Context) (crawler.Cache, error) {
	cfg := a.Config.Cache
	switch cfg.Driver {
	case "none", "":
		return nil, nil
	case "memory":
		return memcache.New(a.Clock), nil
	case "redis":
		cache, err := rediscache.New(ctx, rediscache.Config{URL: cfg.RedisURL, KeyPrefix: cfg.KeyPrefix})
		if err != nil {
			return nil, fmt.Errorf("open redis cache: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return cache.Close() })
		return cache, nil
	default:
		return nil, fmt.Errorf("unknown cache driver: %s", cfg.Driver)
	}
}

func (a *App) collections() []string {
	out := make([]string, 0, len(a.Config.Crawl.Categories))
	for _, c := range a.Config.Crawl.Categories {
		out = append(out, c.Collection)
	}
	return out
}

// Close releases backends in reverse order of opening. It is safe to call more
// than once.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.Logger.Warn("error closing application services", zap.Error(err))
		return err
	}
	return nil
}
