package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/topcv-job-insights/internal/crawler"
)

// TimeUntil breaks a duration down the way status consumers display it.
type TimeUntil struct {
	Days         int   `json:"days"`
	Hours        int   `json:"hours"`
	Minutes      int   `json:"minutes"`
	Seconds      int   `json:"seconds"`
	TotalSeconds int64 `json:"total_seconds"`
}

// Countdown describes the next scheduled crawl relative to now.
type Countdown struct {
	NextCrawlTime time.Time `json:"next_crawl_time"`
	TimeUntil     TimeUntil `json:"time_until_crawl"`
	CrawledToday  bool      `json:"crawled_today"`
	CurrentTime   time.Time `json:"current_time"`
}

// ParseTriggerTime parses an "HH:MM" wall-clock time.
func ParseTriggerTime(value string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 || len(parts[0]) == 0 || len(parts[1]) != 2 {
		return 0, 0, fmt.Errorf("trigger time %q: want HH:MM", value)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("trigger time %q: invalid hour", value)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("trigger time %q: invalid minute", value)
	}
	return hour, minute, nil
}

// TriggerAt returns the trigger instant on now's calendar day in now's location.
func TriggerAt(now time.Time, hour, minute int) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, now.Location())
}

// IsCrawledToday reports whether the last successful crawl fell on now's
// calendar day.
func IsCrawledToday(status crawler.CrawlStatus, now time.Time) bool {
	if status.LastCrawlDate == nil {
		return false
	}
	ly, lm, ld := status.LastCrawlDate.In(now.Location()).Date()
	ny, nm, nd := now.Date()
	return ly == ny && lm == nm && ld == nd
}

// NextRun returns when the next crawl is due.
func NextRun(now time.Time, hour, minute int, crawledToday bool) time.Time {
	today := TriggerAt(now, hour, minute)
	if !crawledToday && now.Before(today) {
		return today
	}
	y, m, d := now.Date()
	return time.Date(y, m, d+1, hour, minute, 0, 0, now.Location())
}

// ComputeCountdown builds the countdown for now.
func ComputeCountdown(now time.Time, hour, minute int, crawledToday bool) Countdown {
	next := NextRun(now, hour, minute, crawledToday)
	return Countdown{
		NextCrawlTime: next,
		TimeUntil:     breakDown(next.Sub(now)),
		CrawledToday:  crawledToday,
		CurrentTime:   now,
	}
}

func breakDown(d time.Duration) TimeUntil {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	rest := total % 86400
	return TimeUntil{
		Days:         int(total / 86400),
		Hours:        int(rest / 3600),
		Minutes:      int(rest % 3600 / 60),
		Seconds:      int(rest % 60),
		TotalSeconds: total,
	}
}
