// Package scheduler runs the daily crawl.
//
// A robfig/cron poll loop and a manual trigger both feed run requests into a
// single queue. One worker drains the queue, re-checks whether today's crawl
// already happened, takes the status lease and invokes the orchestrator.
package scheduler
