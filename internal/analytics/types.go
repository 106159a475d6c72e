package analytics

import (
	"time"

	"github.com/JakeFAU/topcv-job-insights/internal/crawler"
)

// EmptyError reports that an aggregation had nothing to operate on.
type EmptyError struct {
	Message string
}

func (e *EmptyError) Error() string { return e.Message }

// Unwrap lets callers match crawler.ErrNoData.
func (e *EmptyError) Unwrap() error { return crawler.ErrNoData }

// Empty results.
var (
	ErrNoRecords    = &EmptyError{Message: "No data found"}
	ErrNoSalaryData = &EmptyError{Message: "No salary data found"}
	ErrNoDateData   = &EmptyError{Message: "No valid date data found"}
	ErrNoValidData  = &EmptyError{Message: "No valid data for analysis"}
)

// CollectionsResult lists stored collections.
type CollectionsResult struct {
	Collections      []crawler.CollectionInfo `json:"collections"`
	TotalCollections int                      `json:"total_collections"`
}

// DateRange spans the resolved posting dates.
type DateRange struct {
	Start *time.Time `json:"start"`
	End   *time.Time `json:"end"`
}

// Summary holds headline totals.
type Summary struct {
	TotalJobs      int       `json:"total_jobs"`
	Companies      int       `json:"companies"`
	Categories     int       `json:"categories"`
	AvgSalary      float64   `json:"avg_salary"`
	DateRange      DateRange `json:"date_range"`
	CollectionUsed string    `json:"collection_used"`
}

// HistogramBin counts salaries in [Min, Max).
type HistogramBin struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// BoxStats summarizes one category's valid salaries.
type BoxStats struct {
	Category string  `json:"category"`
	Count    int     `json:"count"`
	Min      float64 `json:"min"`
	Q1       float64 `json:"q1"`
	Median   float64 `json:"median"`
	Q3       float64 `json:"q3"`
	Max      float64 `json:"max"`
	Mean     float64 `json:"mean"`
}

// SalaryDistribution is the histogram plus per-category box statistics.
type SalaryDistribution struct {
	Histogram      []HistogramBin `json:"histogram"`
	ByCategory     []BoxStats     `json:"by_category"`
	CollectionUsed string         `json:"collection_used"`
}

// WeekCount counts listings posted in the week starting Week (a Monday).
type WeekCount struct {
	Week  time.Time `json:"week"`
	Count int       `json:"count"`
}

// CategoryWeekCount is a WeekCount for one category.
type CategoryWeekCount struct {
	Week     time.Time `json:"week"`
	Category string    `json:"category"`
	Count    int       `json:"count"`
}

// WeekSalary is the average valid salary posted in a week.
type WeekSalary struct {
	Week      time.Time `json:"week"`
	AvgSalary float64   `json:"avg_salary"`
}

// JobsTrend is the weekly posting trend.
type JobsTrend struct {
	Weekly         []WeekCount         `json:"jobs_trend"`
	ByCategory     []CategoryWeekCount `json:"category_trend"`
	SalaryTrend    []WeekSalary        `json:"salary_trend"`
	CollectionUsed string              `json:"collection_used"`
}

// SalaryPoint is one listing in the experience/salary scatter.
type SalaryPoint struct {
	ExperienceYears int     `json:"exp_numeric"`
	Salary          float64 `json:"salary_avg_million_vnd"`
	City            string  `json:"city"`
	Title           string  `json:"title"`
	Company         string  `json:"company"`
}

// Trendline is an ordinary least squares fit of salary on experience.
type Trendline struct {
	City      string   `json:"city"`
	Points    int      `json:"points"`
	Slope     *float64 `json:"slope"`
	Intercept *float64 `json:"intercept"`
	RSquared  *float64 `json:"r_squared"`
}

// SalaryLocation is the scatter with per-city and overall trendlines.
type SalaryLocation struct {
	Points         []SalaryPoint `json:"points"`
	Trendlines     []Trendline   `json:"trendlines"`
	CollectionUsed string        `json:"collection_used"`
}

// Correlation is a Pearson matrix over Features. Undefined cells are null.
type Correlation struct {
	Features       []string     `json:"features"`
	Matrix         [][]*float64 `json:"matrix"`
	CollectionUsed string       `json:"collection_used"`
}

// TreemapCell aggregates one (category, city) pair.
type TreemapCell struct {
	Category  string  `json:"category"`
	City      string  `json:"city"`
	JobCount  int     `json:"job_count"`
	AvgSalary float64 `json:"avg_salary"`
}

// SunburstCell counts one (category, experience level, salary range) path.
type SunburstCell struct {
	Category        string `json:"category"`
	ExperienceLevel string `json:"experience_level"`
	SalaryRange     string `json:"salary_range"`
	Count           int    `json:"count"`
}

// Hierarchy holds both hierarchical breakdowns.
type Hierarchy struct {
	Treemap        []TreemapCell  `json:"treemap"`
	Sunburst       []SunburstCell `json:"sunburst"`
	CollectionUsed string         `json:"collection_used"`
}

// SkillCount is one skill's frequency.
type SkillCount struct {
	Skill string `json:"skill"`
	Count int    `json:"count"`
}

// Skills lists the most requested skills.
type Skills struct {
	Skills         []SkillCount `json:"skills_data"`
	CollectionUsed string       `json:"collection_used"`
}

// TodayJobs lists records crawled since local midnight.
type TodayJobs struct {
	CrawlDate           string              `json:"crawl_date"`
	TotalJobs           int                 `json:"total_jobs"`
	Jobs                []crawler.JobRecord `json:"jobs"`
	CollectionsWithData int                 `json:"collections_with_data"`
	CrawledToday        bool                `json:"crawled_today"`
}
