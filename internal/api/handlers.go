package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/topcv-job-insights/internal/analytics"
	"github.com/JakeFAU/topcv-job-insights/internal/scheduler"
)

const schedulerUnavailable = "scheduler_unavailable"

// query adapts a collection-filtered aggregate to a handler. Empty
// aggregates answer 200 with an error message.
func query[T any](s *Server, fn func(ctx context.Context, collection string) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := fn(r.Context(), r.URL.Query().Get("collection"))
		if err != nil {
			s.writeQueryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) writeQueryError(w http.ResponseWriter, r *http.Request, err error) {
	if msg, ok := analytics.IsEmpty(err); ok {
		writeError(w, http.StatusOK, msg)
		return
	}
	s.logger.Error("query failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", requestID(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) collections(w http.ResponseWriter, r *http.Request) {
	out, err := s.analytics.Collections(r.Context())
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) todayJobs(w http.ResponseWriter, r *http.Request) {
	out, err := s.analytics.TodayJobs(r.Context())
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type crawlStatistics struct {
	LastCrawlDate    *time.Time `json:"last_crawl_date"`
	LastCrawlRecords int        `json:"last_crawl_records"`
	CrawlStatus      string     `json:"crawl_status"`
	ScheduledTime    string     `json:"scheduled_time"`
}

type crawlerStatusResponse struct {
	CrawlInfo  scheduler.Countdown `json:"crawl_info"`
	Statistics crawlStatistics     `json:"statistics"`
}

func (s *Server) crawlerStatus(w http.ResponseWriter, r *http.Request) {
	if s.controller == nil {
		writeJSON(w, http.StatusOK, s.fallbackStatus())
		return
	}
	status, countdown, err := s.controller.Status(r.Context())
	if err != nil {
		s.logger.Error("crawler status failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, crawlerStatusResponse{
		CrawlInfo: countdown,
		Statistics: crawlStatistics{
			LastCrawlDate:    status.LastCrawlDate,
			LastCrawlRecords: status.LastCrawlRecords,
			CrawlStatus:      string(status.State),
			ScheduledTime:    s.controller.ScheduledTime(),
		},
	})
}

// fallbackStatus reports the configured schedule when no scheduler runs.
func (s *Server) fallbackStatus() crawlerStatusResponse {
	hour, minute, err := scheduler.ParseTriggerTime(s.cfg.TriggerTime)
	if err != nil {
		hour, minute = 9, 0
	}
	return crawlerStatusResponse{
		CrawlInfo: scheduler.ComputeCountdown(s.clock.Now(), hour, minute, false),
		Statistics: crawlStatistics{
			CrawlStatus:   schedulerUnavailable,
			ScheduledTime: fmt.Sprintf("%02d:%02d daily", hour, minute),
		},
	}
}

type lastRunResponse struct {
	RunID            string     `json:"run_id"`
	LastCrawlDate    *time.Time `json:"last_crawl_date"`
	LastAttemptAt    *time.Time `json:"last_attempt_at"`
	LastCrawlRecords int        `json:"last_crawl_records"`
	TotalRecords     int        `json:"total_records"`
	CrawlStatus      string     `json:"crawl_status"`
	CrawledToday     bool       `json:"crawled_today"`
	NextCrawlTime    time.Time  `json:"next_crawl_time"`
}

func (s *Server) lastRun(w http.ResponseWriter, r *http.Request) {
	if s.controller == nil {
		writeJSON(w, http.StatusOK, map[string]string{"crawl_status": schedulerUnavailable})
		return
	}
	status, countdown, err := s.controller.Status(r.Context())
	if err != nil {
		s.logger.Error("last run lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, lastRunResponse{
		RunID:            status.LastRunID,
		LastCrawlDate:    status.LastCrawlDate,
		LastAttemptAt:    status.LastAttemptAt,
		LastCrawlRecords: status.LastCrawlRecords,
		TotalRecords:     status.TotalRecords,
		CrawlStatus:      string(status.State),
		CrawledToday:     countdown.CrawledToday,
		NextCrawlTime:    countdown.NextCrawlTime,
	})
}

type manualTriggerResponse struct {
	Success   bool                 `json:"success"`
	Message   string               `json:"message"`
	Status    string               `json:"status,omitempty"`
	Error     string               `json:"error,omitempty"`
	NextCrawl *scheduler.Countdown `json:"next_crawl,omitempty"`
}

func (s *Server) manualTrigger(w http.ResponseWriter, r *http.Request) {
	unavailable := manualTriggerResponse{
		Message: "Scheduler service is not available",
		Error:   schedulerUnavailable,
	}
	if s.controller == nil {
		writeJSON(w, http.StatusOK, unavailable)
		return
	}
	res, err := s.controller.TriggerManual(r.Context())
	if err != nil {
		s.logger.Warn("manual trigger failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, unavailable)
		return
	}
	out := manualTriggerResponse{Status: string(res.Status), NextCrawl: &res.Countdown}
	switch res.Status {
	case scheduler.ManualStarted:
		out.Success = true
		out.Message = "Manual crawl started"
		out.NextCrawl = nil
	case scheduler.ManualAlreadyDone:
		out.Message = "Data already crawled today"
	default:
		out.Message = "A crawl is already running"
	}
	writeJSON(w, http.StatusOK, out)
}
