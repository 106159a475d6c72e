package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cachememory "github.com/JakeFAU/topcv-job-insights/internal/cache/memory"
	"github.com/JakeFAU/topcv-job-insights/internal/crawler"
	"github.com/JakeFAU/topcv-job-insights/internal/normalize"
	"github.com/JakeFAU/topcv-job-insights/internal/storage/memory"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func job(title, category, location, experience string, salary float64, posted *time.Time, skills ...string) crawler.JobRecord {
	rec := crawler.JobRecord{
		Title:          title,
		Company:        "Co " + title,
		SalaryAvg:      salary,
		Location:       location,
		ExperienceText: experience,
		UpdateDate:     posted,
		Skills:         skills,
		Category:       category,
	}
	rec.UniqueKey = crawler.NaturalKey(rec.Title, rec.Company, rec.UpdateDate)
	return rec
}

func seed(t *testing.T, store *memory.Store, collection string, records ...crawler.JobRecord) {
	t.Helper()
	n, err := store.InsertMany(context.Background(), collection, records)
	require.NoError(t, err)
	require.Equal(t, len(records), n)
}

func newService(store Reader, cache crawler.Cache, now time.Time) *Service {
	return New(Config{}, store, normalize.DefaultRules(), cache, &fakeClock{now: now}, zap.NewNop())
}

func fixture(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	seed(t, store, "python-developer",
		job("A", "Python Developer", "Hà Nội", "2 năm", 20, day(2025, 10, 6), "Python", "Django"),
		job("B", "Python Developer", "Hồ Chí Minh", "4 năm", 40, day(2025, 10, 8), "Python"),
		job("C", "Python Developer", "Hà Nội", "Không yêu cầu", 0, day(2025, 10, 13), "SQL"),
	)
	seed(t, store, "java-developer",
		job("D", "Java Developer", "Đà Nẵng", "1 năm", 15, day(2025, 10, 13), "Java", "Python"),
		job("E", "Java Developer", "Remote", "N/A", 30, nil),
	)
	return store
}

func TestSummary(t *testing.T) {
	t.Parallel()

	svc := newService(fixture(t), nil, time.Now())
	summary, err := svc.Summary(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, 5, summary.TotalJobs)
	require.Equal(t, 5, summary.Companies)
	require.Equal(t, 2, summary.Categories)
	require.InDelta(t, 21.0, summary.AvgSalary, 1e-9)
	require.True(t, day(2025, 10, 6).Equal(*summary.DateRange.Start))
	require.True(t, day(2025, 10, 13).Equal(*summary.DateRange.End))
	require.Equal(t, "all", summary.CollectionUsed)

	summary, err = svc.Summary(context.Background(), "java-developer")
	require.NoError(t, err)
	require.Equal(t, 2, summary.TotalJobs)
	require.Equal(t, "java-developer", summary.CollectionUsed)
}

func TestEmptyStoreReportsNoData(t *testing.T) {
	t.Parallel()

	svc := newService(memory.NewStore(), nil, time.Now())
	_, err := svc.Summary(context.Background(), "")
	require.ErrorIs(t, err, crawler.ErrNoData)
	msg, ok := IsEmpty(err)
	require.True(t, ok)
	require.Equal(t, "No data found", msg)

	_, ok = IsEmpty(errors.New("boom"))
	require.False(t, ok)
}

func TestSalaryDistributionExcludesUnparsedSalaries(t *testing.T) {
	t.Parallel()

	svc := newService(fixture(t), nil, time.Now())
	dist, err := svc.SalaryDistribution(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, dist.Histogram, 25)
	total := 0
	for _, bin := range dist.Histogram {
		total += bin.Count
	}
	require.Equal(t, 4, total, "the zero salary is excluded")
	require.InDelta(t, 15.0, dist.Histogram[0].Min, 1e-9)
	require.InDelta(t, 40.0, dist.Histogram[24].Max, 1e-9)
	require.Equal(t, 1, dist.Histogram[24].Count)

	require.Len(t, dist.ByCategory, 2)
	java := dist.ByCategory[0]
	require.Equal(t, "Java Developer", java.Category)
	require.Equal(t, 2, java.Count)
	require.InDelta(t, 15.0, java.Min, 1e-9)
	require.InDelta(t, 30.0, java.Max, 1e-9)
	require.InDelta(t, 22.5, java.Mean, 1e-9)

	only := memory.NewStore()
	seed(t, only, "php", job("Z", "PHP", "Hà Nội", "1 năm", 0, nil))
	_, err = newService(only, nil, time.Now()).SalaryDistribution(context.Background(), "")
	require.ErrorIs(t, err, ErrNoSalaryData)
}

func TestJobsTrendGroupsByMondayWeeks(t *testing.T) {
	t.Parallel()

	svc := newService(fixture(t), nil, time.Now())
	trend, err := svc.JobsTrend(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, []WeekCount{
		{Week: *day(2025, 10, 6), Count: 2},
		{Week: *day(2025, 10, 13), Count: 2},
	}, trend.Weekly)
	require.Equal(t, []WeekSalary{
		{Week: *day(2025, 10, 6), AvgSalary: 30},
		{Week: *day(2025, 10, 13), AvgSalary: 15},
	}, trend.SalaryTrend)
	require.Len(t, trend.ByCategory, 3)
	require.Equal(t, "Python Developer", trend.ByCategory[0].Category)
	require.Equal(t, 2, trend.ByCategory[0].Count)

	undated := memory.NewStore()
	seed(t, undated, "php", job("Z", "PHP", "Hà Nội", "1 năm", 10, nil))
	_, err = newService(undated, nil, time.Now()).JobsTrend(context.Background(), "")
	require.ErrorIs(t, err, ErrNoDateData)
}

func TestSalaryLocationFitsTrendlines(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seed(t, store, "go",
		job("A", "Go", "Hà Nội", "1 năm", 12, nil),
		job("B", "Go", "Hà Nội", "3 năm", 22, nil),
		job("C", "Go", "Hà Nội", "5 năm", 32, nil),
		job("D", "Go", "Đà Nẵng", "25 năm", 50, nil),
		job("E", "Go", "N/A", "2 năm", 50, nil),
		job("F", "Go", "Hà Nội", "2 năm", 0, nil),
	)
	svc := newService(store, nil, time.Now())
	res, err := svc.SalaryLocation(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, res.Points, 4)
	require.Equal(t, 20, res.Points[3].ExperienceYears, "experience is capped")

	require.Len(t, res.Trendlines, 3)
	// Cities sort bytewise, so "Hà Nội" precedes "Đà Nẵng".
	hanoi, danang, overall := res.Trendlines[0], res.Trendlines[1], res.Trendlines[2]
	require.Equal(t, "Đà Nẵng", danang.City)
	require.Nil(t, danang.Slope)
	require.Equal(t, "Hà Nội", hanoi.City)
	require.NotNil(t, hanoi.Slope)
	require.InDelta(t, 5.0, *hanoi.Slope, 1e-9)
	require.InDelta(t, 7.0, *hanoi.Intercept, 1e-9)
	require.InDelta(t, 1.0, *hanoi.RSquared, 1e-9)
	require.Equal(t, "All", overall.City)
	require.Equal(t, 4, overall.Points)
}

func TestCorrelation(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seed(t, store, "go",
		job("A", "Go", "Hà Nội", "1 năm", 10, nil, "a"),
		job("B", "Go", "Hà Nội", "2 năm", 20, nil, "a", "b"),
		job("C", "Go", "Hà Nội", "3 năm", 30, nil, "a", "b", "c"),
	)
	res, err := newService(store, nil, time.Now()).Correlation(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, correlationFeatures, res.Features)
	require.Len(t, res.Matrix, 5)
	require.InDelta(t, 1.0, *res.Matrix[0][0], 1e-9)
	require.InDelta(t, 1.0, *res.Matrix[0][1], 1e-9)
	require.InDelta(t, 1.0, *res.Matrix[0][4], 1e-9)
	require.Nil(t, res.Matrix[0][2], "a constant category column has no correlation")
	require.Nil(t, res.Matrix[3][3])
}

func TestHierarchy(t *testing.T) {
	t.Parallel()

	res, err := newService(fixture(t), nil, time.Now()).Hierarchy(context.Background(), "python-developer")
	require.NoError(t, err)
	require.Equal(t, []TreemapCell{
		{Category: "Python Developer", City: "Hà Nội", JobCount: 2, AvgSalary: 10},
		{Category: "Python Developer", City: "TP Hồ Chí Minh", JobCount: 1, AvgSalary: 40},
	}, res.Treemap)
	require.Equal(t, []SunburstCell{
		{Category: "Python Developer", ExperienceLevel: "Junior", SalaryRange: "20-30M", Count: 1},
		{Category: "Python Developer", ExperienceLevel: "Senior", SalaryRange: "30-50M", Count: 1},
	}, res.Sunburst)
}

func TestSkillsRanksByFrequency(t *testing.T) {
	t.Parallel()

	res, err := newService(fixture(t), nil, time.Now()).Skills(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, []SkillCount{
		{Skill: "Python", Count: 3},
		{Skill: "Django", Count: 1},
		{Skill: "Java", Count: 1},
		{Skill: "SQL", Count: 1},
	}, res.Skills)
}

func TestTodayJobsCapsAndCounts(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("ICT", 7*3600)
	now := time.Date(2025, 10, 12, 15, 0, 0, 0, loc)
	store := memory.NewStore()
	var today []crawler.JobRecord
	for i := 0; i < 60; i++ {
		rec := job(string(rune('a'+i%26))+time.Duration(i).String(), "Go", "Hà Nội", "1 năm", 10, nil)
		rec.CrawledAt = now.Add(-time.Duration(i) * time.Minute)
		today = append(today, rec)
	}
	old := job("old", "Java", "Hà Nội", "1 năm", 10, nil)
	old.CrawledAt = time.Date(2025, 10, 11, 23, 0, 0, 0, loc)
	seed(t, store, "go", today...)
	seed(t, store, "java", old)

	res, err := newService(store, nil, now).TodayJobs(context.Background())
	require.NoError(t, err)
	require.Equal(t, "2025-10-12", res.CrawlDate)
	require.Equal(t, 60, res.TotalJobs)
	require.Len(t, res.Jobs, 50)
	require.Equal(t, 1, res.CollectionsWithData)
	require.True(t, res.CrawledToday)

	empty, err := newService(memory.NewStore(), nil, now).TodayJobs(context.Background())
	require.NoError(t, err)
	require.NotNil(t, empty.Jobs)
	require.False(t, empty.CrawledToday)
}

type countingReader struct {
	Reader
	calls int
}

func (c *countingReader) FindJobs(ctx context.Context, collection string) ([]crawler.JobRecord, error) {
	c.calls++
	return c.Reader.FindJobs(ctx, collection)
}

func TestCachedAggregatesAndInvalidation(t *testing.T) {
	t.Parallel()

	reader := &countingReader{Reader: fixture(t)}
	cache := cachememory.New(nil)
	svc := newService(reader, cache, time.Now())
	ctx := context.Background()

	first, err := svc.Summary(ctx, "")
	require.NoError(t, err)
	second, err := svc.Summary(ctx, "")
	require.NoError(t, err)
	require.Equal(t, first.TotalJobs, second.TotalJobs)
	require.Equal(t, 1, reader.calls)

	_, err = svc.Summary(ctx, "java-developer")
	require.NoError(t, err)
	require.Equal(t, 2, reader.calls, "collections are cached separately")

	svc.OnCrawlComplete(ctx, crawler.RunOutcome{RunID: "run-1"})
	require.Equal(t, 0, cache.Len())
	_, err = svc.Summary(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 3, reader.calls)
}

func TestCollections(t *testing.T) {
	t.Parallel()

	res, err := newService(fixture(t), nil, time.Now()).Collections(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, res.TotalCollections)

	empty, err := newService(memory.NewStore(), nil, time.Now()).Collections(context.Background())
	require.NoError(t, err)
	require.NotNil(t, empty.Collections)
	require.Zero(t, empty.TotalCollections)
}
