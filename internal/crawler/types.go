package crawler

import (
	"errors"
	"time"
)

// StatusType identifies the single scheduler status document.
const StatusType = "daily_crawl"

// NotAvailable is the placeholder stored for listing fields the page did not carry.
const NotAvailable = "N/A"

// CrawlState represents the lifecycle state of the daily crawl.
type CrawlState string

// Crawl states persisted in the status store.
const (
	StateWaiting   CrawlState = "waiting"
	StateRunning   CrawlState = "running"
	StateCompleted CrawlState = "completed"
	StateError     CrawlState = "error"
)

// Trigger names what asked for a crawl run.
type Trigger string

// Run triggers.
const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
	TriggerCLI      Trigger = "cli"
)

// Sentinel errors shared by stores and the scheduler.
var (
	ErrNotFound      = errors.New("not found")
	ErrRunInProgress = errors.New("crawl already running")
	ErrNoData        = errors.New("no data found")
)

// Category is one listing source crawled into its own collection.
type Category struct {
	Name       string `json:"name" mapstructure:"name" validate:"required"`
	Collection string `json:"collection" mapstructure:"collection" validate:"required"`
	URL        string `json:"url" mapstructure:"url" validate:"required,url"`
}

// RawJob is a listing item as extracted from the page, before normalization.
type RawJob struct {
	Page           int
	Title          string
	Company        string
	SalaryText     string
	Location       string
	ExperienceText string
	UpdateRaw      string
	Skills         []string
}

// Page is the outcome of fetching one listing page. Jobs is empty, never nil,
// when the page held no items or every attempt failed.
type Page struct {
	URL        string
	Number     int
	StatusCode int
	Body       []byte
	Jobs       []RawJob
}

// JobRecord is a normalized listing persisted per category collection.
type JobRecord struct {
	UniqueKey       string     `json:"unique_key" bson:"unique_key"`
	Title           string     `json:"title" bson:"title"`
	Company         string     `json:"company" bson:"company"`
	SalaryText      string     `json:"salary_text" bson:"salary_text"`
	SalaryAvg       float64    `json:"salary_avg_million_vnd" bson:"salary_avg_million_vnd"`
	Location        string     `json:"location" bson:"location"`
	City            string     `json:"city" bson:"city"`
	ExperienceText  string     `json:"experience_years" bson:"experience_years"`
	ExperienceYears int        `json:"experience_numeric" bson:"experience_numeric"`
	UpdateRaw       string     `json:"update_raw" bson:"update_raw"`
	UpdateDate      *time.Time `json:"update_date" bson:"update_date"`
	Skills          []string   `json:"skills" bson:"skills"`
	Category        string     `json:"category" bson:"category"`
	Page            int        `json:"page" bson:"page"`
	CrawledAt       time.Time  `json:"timestamp" bson:"timestamp"`
}

// NaturalKey derives the deduplication key from title, company and the
// resolved posting date.
func NaturalKey(title, company string, updateDate *time.Time) string {
	date := NotAvailable
	if updateDate != nil {
		date = updateDate.Format(time.DateOnly)
	}
	return title + "_" + company + "_" + date
}

// Backfill fills fields older records may lack. Records read without a
// category inherit the collection they were stored in.
func (r *JobRecord) Backfill(category string) {
	if r.Category == "" {
		r.Category = category
	}
	if r.Skills == nil {
		r.Skills = []string{}
	}
	if r.SalaryAvg < 0 {
		r.SalaryAvg = 0
	}
}

// CollectionInfo summarizes one stored collection.
type CollectionInfo struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// CrawlStatus is the scheduler's persisted view of the daily crawl.
type CrawlStatus struct {
	Type             string     `json:"type" bson:"type"`
	LastCrawlDate    *time.Time `json:"last_crawl_date" bson:"last_crawl_date"`
	LastAttemptAt    *time.Time `json:"last_attempt_at,omitempty" bson:"last_attempt_at"`
	NextCrawlTime    time.Time  `json:"next_crawl_time" bson:"next_crawl_time"`
	CrawledToday     bool       `json:"crawled_today" bson:"crawled_today"`
	State            CrawlState `json:"crawl_status" bson:"crawl_status"`
	LastCrawlRecords int        `json:"last_crawl_records" bson:"last_crawl_records"`
	TotalRecords     int        `json:"total_records" bson:"total_records"`
	LastRunID        string     `json:"last_run_id,omitempty" bson:"last_run_id"`
	UpdatedAt        time.Time  `json:"updated_at" bson:"updated_at"`
}

// RunRequest asks the run worker for one guarded crawl.
type RunRequest struct {
	Trigger   Trigger
	Force     bool
	Submitted time.Time
	Done      chan<- RunOutcome
}

// RunOutcome reports what a run request did.
type RunOutcome struct {
	RunID   string     `json:"run_id,omitempty"`
	Trigger Trigger    `json:"trigger"`
	State   CrawlState `json:"state"`
	Records int        `json:"records"`
	Skipped string     `json:"skipped,omitempty"`
	Err     error      `json:"-"`
}

// CompletionEvent is published after every finished run.
type CompletionEvent struct {
	RunID      string     `json:"run_id"`
	Records    int        `json:"records"`
	Status     CrawlState `json:"status"`
	Trigger    Trigger    `json:"trigger"`
	FinishedAt time.Time  `json:"finished_at"`
}

// SaveResult counts what the deduplicating writer did with a batch.
type SaveResult struct {
	Inserted int
	Skipped  int
	Failed   int
}
