package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/topcv-job-insights/internal/crawler"
	"github.com/JakeFAU/topcv-job-insights/internal/normalize"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Fatalf("expected port 8000, got %d", cfg.Server.Port)
	}
	if cfg.Store.Driver != "memory" || cfg.Store.Database != "job_data" {
		t.Fatalf("unexpected store defaults: %+v", cfg.Store)
	}
	if cfg.Scheduler.TriggerTime != "09:00" || cfg.Scheduler.PollInterval != time.Minute {
		t.Fatalf("unexpected scheduler defaults: %+v", cfg.Scheduler)
	}
	if cfg.Fetcher.MaxRetries != 3 || cfg.Fetcher.BackoffBase != 2*time.Second {
		t.Fatalf("unexpected fetcher defaults: %+v", cfg.Fetcher)
	}
	if len(cfg.Fetcher.UserAgents) != 3 {
		t.Fatalf("expected 3 user agents, got %d", len(cfg.Fetcher.UserAgents))
	}
	if len(cfg.Crawl.Categories) != 9 {
		t.Fatalf("expected 9 categories, got %d", len(cfg.Crawl.Categories))
	}
	if got := cfg.Crawl.Categories[7]; got.Collection != "data_science" || !strings.HasPrefix(got.URL, "https://www.topcv.vn/") {
		t.Fatalf("unexpected category: %+v", got)
	}
	if cfg.Crawl.MaxPages != 1 {
		t.Fatalf("expected one page per category, got %d", cfg.Crawl.MaxPages)
	}
	if len(cfg.Normalize.SalaryBuckets) != len(normalize.DefaultSalaryBuckets()) {
		t.Fatalf("unexpected salary buckets: %+v", cfg.Normalize.SalaryBuckets)
	}

	loc, err := cfg.Location()
	if err != nil || loc.String() != "Asia/Ho_Chi_Minh" {
		t.Fatalf("Location() = %v, %v", loc, err)
	}

	rules := cfg.Rules()
	if rules.SalaryRange(25) != "20-30M" {
		t.Fatalf("expected 20-30M, got %q", rules.SalaryRange(25))
	}
	if len(rules.Cities) != len(normalize.DefaultCities()) {
		t.Fatalf("expected default city table, got %d rules", len(rules.Cities))
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
store:
  driver: postgres
  dsn: postgres://jobs@localhost/jobs
scheduler:
  trigger_time: "06:30"
  timezone: UTC
  poll_interval: 30s
crawl:
  max_pages: 0
  categories:
    - name: Data Science
      collection: data
      url: https://example.com/data
normalize:
  usd_to_vnd_million: 25
  cities:
    - pattern: Huế
      city: Huế
cache:
  driver: redis
  redis_url: redis://localhost:6379/0
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Store.Driver != "postgres" || cfg.Store.DSN == "" {
		t.Fatalf("unexpected store: %+v", cfg.Store)
	}
	if cfg.Scheduler.TriggerTime != "06:30" || cfg.Scheduler.PollInterval != 30*time.Second {
		t.Fatalf("unexpected scheduler: %+v", cfg.Scheduler)
	}
	if len(cfg.Crawl.Categories) != 1 || cfg.Crawl.Categories[0].Collection != "data" {
		t.Fatalf("unexpected categories: %+v", cfg.Crawl.Categories)
	}
	if cfg.Crawl.MaxPages != 0 {
		t.Fatalf("expected unbounded walk, got %d", cfg.Crawl.MaxPages)
	}

	rules := cfg.Rules()
	if rules.USDToVNDMillion != 25 {
		t.Fatalf("expected usd rate 25, got %v", rules.USDToVNDMillion)
	}
	if len(rules.Cities) != 1 || rules.Cities[0].City != "Huế" {
		t.Fatalf("unexpected cities: %+v", rules.Cities)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("JOBCRAWLER_SCHEDULER_TRIGGER_TIME", "21:15")
	t.Setenv("JOBCRAWLER_SERVER_PORT", "8081")
	t.Setenv("JOBCRAWLER_CACHE_DRIVER", "none")
	t.Setenv("JOBCRAWLER_STORE_DRIVER", "mongo")
	t.Setenv("JOBCRAWLER_STORE_DSN", "mongodb://localhost:27017")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Scheduler.TriggerTime != "21:15" {
		t.Fatalf("expected env trigger time, got %q", cfg.Scheduler.TriggerTime)
	}
	if cfg.Server.Port != 8081 {
		t.Fatalf("expected env port, got %d", cfg.Server.Port)
	}
	if cfg.Cache.Driver != "none" {
		t.Fatalf("expected cache driver none, got %q", cfg.Cache.Driver)
	}
	if cfg.Store.Driver != "mongo" || cfg.Store.DSN != "mongodb://localhost:27017" {
		t.Fatalf("expected env store settings, got %+v", cfg.Store)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "Port"},
		{name: "unknown store", mutate: func(c *Config) { c.Store.Driver = "sqlite" }, want: "Driver"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Store.Driver = "postgres" }, want: "DSN"},
		{name: "trigger time", mutate: func(c *Config) { c.Scheduler.TriggerTime = "25:00" }, want: "trigger_time"},
		{name: "timezone", mutate: func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }, want: "timezone"},
		{name: "no user agents", mutate: func(c *Config) { c.Fetcher.UserAgents = nil }, want: "UserAgents"},
		{name: "bad category url", mutate: func(c *Config) { c.Crawl.Categories[0].URL = "not a url" }, want: "URL"},
		{name: "duplicate collection", mutate: func(c *Config) {
			c.Crawl.Categories[1].Collection = c.Crawl.Categories[0].Collection
		}, want: "duplicate collection"},
		{name: "unordered buckets", mutate: func(c *Config) {
			c.Normalize.SalaryBuckets = []normalize.Bucket{{Label: "b", Min: 10, Max: 20}, {Label: "a", Min: 0, Max: 10}}
		}, want: "ordered"},
		{name: "unbounded middle bucket", mutate: func(c *Config) {
			c.Normalize.ExperienceBuckets = []normalize.Bucket{{Label: "a", Min: 0}, {Label: "b", Min: 5, Max: 10}}
		}, want: "unbounded"},
		{name: "overlapping buckets", mutate: func(c *Config) {
			c.Normalize.SalaryBuckets = []normalize.Bucket{{Label: "a", Min: 0, Max: 15}, {Label: "b", Min: 10}}
		}, want: "overlaps"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Archive.Driver = "gcs" }, want: "Bucket"},
		{name: "redis without url", mutate: func(c *Config) { c.Cache.Driver = "redis" }, want: "RedisURL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			cfg.Crawl.Categories = append([]crawler.Category(nil), base.Crawl.Categories...)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
