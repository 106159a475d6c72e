// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, analytics chart endpoints and crawler control.
//     Aggregates are computed by internal/analytics over the stored listings and cached in memory or Redis until
//     the next crawl completes.
//   - Scheduler: internal/scheduler polls on a cron interval and enqueues one run per day at the configured trigger
//     time. Manual triggers share the same bounded queue and single worker, and the status document carries a
//     lease so only one crawl runs at a time across processes.
//   - Crawl pipeline: the orchestrator walks every category, fetching listing pages with the Colly fetcher (429
//     backoff, user-agent rotation, per-host pacing), normalizing items and saving only records whose natural key
//     is new to the category collection. Raw pages are optionally archived (memory/local/GCS).
//   - Persistence & fanout: listings and the status document live in memory, Postgres or MongoDB. A completion
//     event is published to Pub/Sub when a project is configured.
//   - Configuration & plumbing: Viper populates config from defaults, an optional file and JOBCRAWLER_* env vars
//     (a .env file is loaded first); zap provides structured logging; Prometheus metrics are served on /metrics.
//
// Commands:
//   - serve: API plus scheduler until SIGINT/SIGTERM.
//   - crawl [--force]: one run now.
//   - status: status document and countdown as JSON.
//   - check: store connectivity and per-collection counts.
package cmd
