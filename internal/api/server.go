package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/topcv-job-insights/internal/analytics"
	"github.com/JakeFAU/topcv-job-insights/internal/crawler"
	"github.com/JakeFAU/topcv-job-insights/internal/metrics"
	"github.com/JakeFAU/topcv-job-insights/internal/scheduler"
)

// Analytics serves aggregated listing views.
type Analytics interface {
	Collections(ctx context.Context) (analytics.CollectionsResult, error)
	Summary(ctx context.Context, collection string) (analytics.Summary, error)
	SalaryDistribution(ctx context.Context, collection string) (analytics.SalaryDistribution, error)
	JobsTrend(ctx context.Context, collection string) (analytics.JobsTrend, error)
	SalaryLocation(ctx context.Context, collection string) (analytics.SalaryLocation, error)
	Correlation(ctx context.Context, collection string) (analytics.Correlation, error)
	Hierarchy(ctx context.Context, collection string) (analytics.Hierarchy, error)
	Skills(ctx context.Context, collection string) (analytics.Skills, error)
	TodayJobs(ctx context.Context) (analytics.TodayJobs, error)
}

// CrawlController is the scheduler surface the API drives.
type CrawlController interface {
	Status(ctx context.Context) (crawler.CrawlStatus, scheduler.Countdown, error)
	TriggerManual(ctx context.Context) (scheduler.ManualResult, error)
	ScheduledTime() string
}

// Pinger reports store readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config controls server behavior.
type Config struct {
	// TriggerTime is reported when no scheduler is running.
	TriggerTime    string
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to analytics and the crawl scheduler.
type Server struct {
	router     chi.Router
	analytics  Analytics
	controller CrawlController
	store      Pinger
	clock      crawler.Clock
	cfg        Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes. controller may be
// nil when the scheduler is disabled; store may be nil to skip readiness checks.
func NewServer(
	analytics Analytics,
	controller CrawlController,
	store Pinger,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TriggerTime == "" {
		cfg.TriggerTime = "09:00"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	s := &Server{
		analytics:  analytics,
		controller: controller,
		store:      store,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/", s.root)
	r.Get("/health", s.health)
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/collections", s.collections)
		r.Get("/data/summary", query(s, s.analytics.Summary))
		r.Route("/charts", func(r chi.Router) {
			r.Get("/salary-distribution", query(s, s.analytics.SalaryDistribution))
			r.Get("/jobs-trend", query(s, s.analytics.JobsTrend))
			r.Get("/salary-location-analysis", query(s, s.analytics.SalaryLocation))
			r.Get("/correlation-heatmap", query(s, s.analytics.Correlation))
			r.Get("/treemap-sunburst", query(s, s.analytics.Hierarchy))
			r.Get("/skills-analysis", query(s, s.analytics.Skills))
		})
		r.Route("/crawler", func(r chi.Router) {
			r.Get("/status", s.crawlerStatus)
			r.Get("/last-run", s.lastRun)
			r.Get("/today-jobs", s.todayJobs)
			r.Post("/manual-trigger", s.manualTrigger)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Job Data Analytics API - Ready for data visualization"})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "message": "Job Data Analytics API is running"})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.String("request_id", requestID(r.Context())),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.Any("error", rec),
						zap.String("request_id", requestID(r.Context())),
					)
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
