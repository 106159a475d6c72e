// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	// Embedded zone database for containers without /usr/share/zoneinfo.
	_ "time/tzdata"

	"github.com/JakeFAU/topcv-job-insights/internal/crawler"
	"github.com/JakeFAU/topcv-job-insights/internal/normalize"
	"github.com/JakeFAU/topcv-job-insights/internal/scheduler"
)

// EnvPrefix prefixes every environment override, e.g. JOBCRAWLER_STORE_DSN.
const EnvPrefix = "JOBCRAWLER"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Store     StoreConfig     `mapstructure:"store"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	Normalize NormalizeConfig `mapstructure:"normalize"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Cache     CacheConfig     `mapstructure:"cache"`
	API       APIConfig       `mapstructure:"api"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port" validate:"gt=0,lte=65535"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// StoreConfig selects and configures the document store.
type StoreConfig struct {
	Driver           string        `mapstructure:"driver" validate:"oneof=memory postgres mongo"`
	DSN              string        `mapstructure:"dsn" validate:"required_unless=Driver memory"`
	Database         string        `mapstructure:"database"`
	StatusCollection string        `mapstructure:"status_collection"`
	JobsTable        string        `mapstructure:"jobs_table"`
	StatusTable      string        `mapstructure:"status_table"`
	MaxConns         int32         `mapstructure:"max_conns" validate:"gte=0"`
	MinConns         int32         `mapstructure:"min_conns" validate:"gte=0"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
}

// SchedulerConfig controls the daily crawl daemon.
type SchedulerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	TriggerTime  string        `mapstructure:"trigger_time" validate:"required"`
	Timezone     string        `mapstructure:"timezone" validate:"required"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	LeaseTTL     time.Duration `mapstructure:"lease_ttl" validate:"gt=0"`
	QueueDepth   int           `mapstructure:"queue_depth" validate:"gt=0"`
}

// FetcherConfig configures listing page retrieval.
type FetcherConfig struct {
	UserAgents        []string      `mapstructure:"user_agents" validate:"required,min=1,dive,required"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxRetries        int           `mapstructure:"max_retries" validate:"gt=0"`
	BackoffBase       time.Duration `mapstructure:"backoff_base" validate:"gte=0"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int           `mapstructure:"burst" validate:"gte=0"`
}

// CrawlConfig lists the categories a run walks.
type CrawlConfig struct {
	Categories    []crawler.Category `mapstructure:"categories" validate:"required,min=1,dive"`
	CategoryDelay time.Duration      `mapstructure:"category_delay" validate:"gte=0"`
	// MaxPages bounds each category walk; zero walks until a page is empty.
	MaxPages int `mapstructure:"max_pages" validate:"gte=0"`
}

// NormalizeConfig tunes the normalization rule tables.
type NormalizeConfig struct {
	USDToVNDMillion   float64              `mapstructure:"usd_to_vnd_million" validate:"gt=0"`
	ExperienceCap     int                  `mapstructure:"experience_cap" validate:"gte=0"`
	SalaryBuckets     []normalize.Bucket   `mapstructure:"salary_buckets" validate:"required,min=1,dive"`
	ExperienceBuckets []normalize.Bucket   `mapstructure:"experience_buckets" validate:"required,min=1,dive"`
	Cities            []normalize.CityRule `mapstructure:"cities"`
}

// ArchiveConfig selects where raw listing pages are archived.
type ArchiveConfig struct {
	Driver  string `mapstructure:"driver" validate:"oneof=none memory local gcs"`
	BaseDir string `mapstructure:"base_dir" validate:"required_if=Driver local"`
	Bucket  string `mapstructure:"bucket" validate:"required_if=Driver gcs"`
	Prefix  string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// CacheConfig selects the analytics cache.
type CacheConfig struct {
	Driver    string        `mapstructure:"driver" validate:"oneof=none memory redis"`
	RedisURL  string        `mapstructure:"redis_url" validate:"required_if=Driver redis"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl" validate:"gte=0"`
}

// APIConfig tunes query responses.
type APIConfig struct {
	RecentLimit    int           `mapstructure:"recent_limit" validate:"gt=0"`
	TopSkills      int           `mapstructure:"top_skills" validate:"gt=0"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
}

// Load builds a Config from defaults, an optional file and the environment.
// A .env file in the working directory is applied first when present.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")

	// Keys without a default are invisible to AutomaticEnv during Unmarshal.
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.min_conns", 0)
	v.SetDefault("store.database", "job_data")
	v.SetDefault("store.status_collection", "scheduler_status")
	v.SetDefault("store.jobs_table", "jobs")
	v.SetDefault("store.status_table", "crawl_status")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.connect_timeout", "10s")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.trigger_time", "09:00")
	v.SetDefault("scheduler.timezone", "Asia/Ho_Chi_Minh")
	v.SetDefault("scheduler.poll_interval", "60s")
	v.SetDefault("scheduler.lease_ttl", "2h")
	v.SetDefault("scheduler.queue_depth", 1)

	v.SetDefault("fetcher.user_agents", []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.114 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.101 Safari/537.36",
	})
	v.SetDefault("fetcher.timeout", "10s")
	v.SetDefault("fetcher.max_retries", 3)
	v.SetDefault("fetcher.backoff_base", "2s")
	v.SetDefault("fetcher.requests_per_second", 1.0)
	v.SetDefault("fetcher.burst", 1)

	v.SetDefault("crawl.categories", defaultCategories())
	v.SetDefault("crawl.category_delay", "2s")
	v.SetDefault("crawl.max_pages", 1)

	v.SetDefault("normalize.usd_to_vnd_million", 24.0)
	v.SetDefault("normalize.experience_cap", 20)
	v.SetDefault("normalize.salary_buckets", bucketMaps(normalize.DefaultSalaryBuckets()))
	v.SetDefault("normalize.experience_buckets", bucketMaps(normalize.DefaultExperienceBuckets()))

	v.SetDefault("archive.driver", "none")
	v.SetDefault("archive.base_dir", "")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "raw")

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "crawl.completed")

	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.key_prefix", "jobcrawler:")
	v.SetDefault("cache.ttl", "10m")

	v.SetDefault("api.recent_limit", 50)
	v.SetDefault("api.top_skills", 20)
	v.SetDefault("api.request_timeout", "60s")
}

func defaultCategories() []map[string]any {
	categories := []crawler.Category{
		{Name: "Sales IT Phần Mềm", Collection: "sales_it_phan_mem", URL: "https://www.topcv.vn/tim-viec-lam-sales-it-phan-mem-cr1cb5"},
		{Name: "Marketing", Collection: "marketing", URL: "https://www.topcv.vn/tim-viec-lam-marketing-cr92cb99"},
		{Name: "IT Infrastructure and Operations", Collection: "it_infrastructure_and_operations", URL: "https://www.topcv.vn/tim-viec-lam-it-infrastructure-and-operations-cr257cb262"},
		{Name: "Product Management", Collection: "product_management", URL: "https://www.topcv.vn/tim-viec-lam-product-management-cr257cb268"},
		{Name: "Software Testing", Collection: "software_testing", URL: "https://www.topcv.vn/tim-viec-lam-software-testing-cr257cb259"},
		{Name: "IT Project Management", Collection: "it_project_management", URL: "https://www.topcv.vn/tim-viec-lam-it-project-management-cr257cb265"},
		{Name: "Chăm Sóc Khách Hàng Customer Service", Collection: "customer_service", URL: "https://www.topcv.vn/tim-viec-lam-cham-soc-khach-hang-customer-service-cr158cb159"},
		{Name: "Data Science", Collection: "data_science", URL: "https://www.topcv.vn/tim-viec-lam-data-science-cr257cb261"},
		{Name: "Software Engineering", Collection: "software_engineering", URL: "https://www.topcv.vn/tim-viec-lam-software-engineering-cr257cb258"},
	}
	out := make([]map[string]any, 0, len(categories))
	for _, c := range categories {
		out = append(out, map[string]any{"name": c.Name, "collection": c.Collection, "url": c.URL})
	}
	return out
}

func bucketMaps(buckets normalize.BucketSet) []map[string]any {
	out := make([]map[string]any, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, map[string]any{"label": b.Label, "min": b.Min, "max": b.Max})
	}
	return out
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, _, err := scheduler.ParseTriggerTime(c.Scheduler.TriggerTime); err != nil {
		return fmt.Errorf("scheduler.trigger_time: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if err := validateBuckets("normalize.salary_buckets", c.Normalize.SalaryBuckets); err != nil {
		return err
	}
	if err := validateBuckets("normalize.experience_buckets", c.Normalize.ExperienceBuckets); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(c.Crawl.Categories))
	for _, cat := range c.Crawl.Categories {
		if _, dup := seen[cat.Collection]; dup {
			return fmt.Errorf("crawl.categories: duplicate collection %q", cat.Collection)
		}
		seen[cat.Collection] = struct{}{}
	}
	return nil
}

// validateBuckets requires ascending, non-overlapping buckets where only the
// last may be unbounded.
func validateBuckets(name string, buckets []normalize.Bucket) error {
	sorted := sort.SliceIsSorted(buckets, func(i, j int) bool { return buckets[i].Min < buckets[j].Min })
	if !sorted {
		return fmt.Errorf("%s: buckets must be ordered by min", name)
	}
	for i, b := range buckets {
		last := i == len(buckets)-1
		if b.Max <= 0 && !last {
			return fmt.Errorf("%s: only the last bucket may be unbounded", name)
		}
		if b.Max > 0 && b.Max <= b.Min {
			return fmt.Errorf("%s: bucket %q has max <= min", name, b.Label)
		}
		if !last && buckets[i+1].Min < b.Max {
			return fmt.Errorf("%s: bucket %q overlaps %q", name, b.Label, buckets[i+1].Label)
		}
	}
	return nil
}

// Location resolves the scheduler timezone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: %w", err)
	}
	return loc, nil
}

// Rules builds the normalization rules, falling back to the default city table.
func (c Config) Rules() normalize.Rules {
	rules := normalize.DefaultRules()
	rules.USDToVNDMillion = c.Normalize.USDToVNDMillion
	rules.ExperienceCap = c.Normalize.ExperienceCap
	rules.SalaryBuckets = normalize.BucketSet(c.Normalize.SalaryBuckets)
	rules.ExperienceBuckets = normalize.BucketSet(c.Normalize.ExperienceBuckets)
	if len(c.Normalize.Cities) > 0 {
		rules.Cities = c.Normalize.Cities
	}
	return rules
}
