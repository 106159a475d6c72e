// Package api hosts the HTTP server, middleware, and REST handlers. Notable
// routes:
//   - GET /healthz, /readyz for health checks and GET /metrics for Prometheus.
//   - GET /api/collections, /api/data/summary and /api/charts/... for
//     aggregated listing views. Each accepts an optional collection query.
//   - GET /api/crawler/status, /api/crawler/last-run, /api/crawler/today-jobs
//     and POST /api/crawler/manual-trigger for the daily crawl.
package api
