package analytics

import (
	"math"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/JakeFAU/topcv-job-insights/internal/crawler"
	"github.com/JakeFAU/topcv-job-insights/internal/normalize"
)

// Correlation feature names, in matrix order.
var correlationFeatures = []string{"salary", "experience_years", "category_code", "location_code", "skill_count"}

func summarize(records []crawler.JobRecord, used string) Summary {
	companies := make(map[string]struct{})
	categories := make(map[string]struct{})
	salaries := make([]float64, 0, len(records))
	var dates DateRange
	for _, rec := range records {
		companies[rec.Company] = struct{}{}
		categories[rec.Category] = struct{}{}
		salaries = append(salaries, rec.SalaryAvg)
		if rec.UpdateDate == nil {
			continue
		}
		if dates.Start == nil || rec.UpdateDate.Before(*dates.Start) {
			d := *rec.UpdateDate
			dates.Start = &d
		}
		if dates.End == nil || rec.UpdateDate.After(*dates.End) {
			d := *rec.UpdateDate
			dates.End = &d
		}
	}
	return Summary{
		TotalJobs:      len(records),
		Companies:      len(companies),
		Categories:     len(categories),
		AvgSalary:      normalize.Round2(stat.Mean(salaries, nil)),
		DateRange:      dates,
		CollectionUsed: used,
	}
}

func validSalaries(records []crawler.JobRecord) []crawler.JobRecord {
	out := make([]crawler.JobRecord, 0, len(records))
	for _, rec := range records {
		if rec.SalaryAvg > 0 {
			out = append(out, rec)
		}
	}
	return out
}

func salaryDistribution(records []crawler.JobRecord, bins int, used string) (SalaryDistribution, error) {
	valid := validSalaries(records)
	if len(valid) == 0 {
		return SalaryDistribution{}, ErrNoSalaryData
	}

	all := make([]float64, 0, len(valid))
	byCategory := make(map[string][]float64)
	for _, rec := range valid {
		all = append(all, rec.SalaryAvg)
		byCategory[rec.Category] = append(byCategory[rec.Category], rec.SalaryAvg)
	}

	out := SalaryDistribution{Histogram: histogram(all, bins), CollectionUsed: used}
	for _, name := range sortedKeys(byCategory) {
		out.ByCategory = append(out.ByCategory, boxStats(name, byCategory[name]))
	}
	return out, nil
}

// histogram splits [min, max] into equal-width bins; the last bin includes max.
func histogram(values []float64, bins int) []HistogramBin {
	x := append([]float64(nil), values...)
	sort.Float64s(x)
	lo, hi := x[0], x[len(x)-1]
	if hi == lo {
		hi = lo + 1
	}
	dividers := make([]float64, bins+1)
	floats.Span(dividers, lo, hi)
	upper := dividers[bins]
	dividers[bins] = math.Nextafter(upper, math.Inf(1))
	counts := stat.Histogram(nil, dividers, x, nil)

	out := make([]HistogramBin, bins)
	for i := range out {
		out[i] = HistogramBin{
			Min:   normalize.Round2(dividers[i]),
			Max:   normalize.Round2(dividers[i+1]),
			Count: int(counts[i]),
		}
	}
	out[bins-1].Max = normalize.Round2(upper)
	return out
}

func boxStats(category string, values []float64) BoxStats {
	x := append([]float64(nil), values...)
	sort.Float64s(x)
	return BoxStats{
		Category: category,
		Count:    len(x),
		Min:      x[0],
		Q1:       normalize.Round2(stat.Quantile(0.25, stat.Empirical, x, nil)),
		Median:   normalize.Round2(stat.Quantile(0.5, stat.Empirical, x, nil)),
		Q3:       normalize.Round2(stat.Quantile(0.75, stat.Empirical, x, nil)),
		Max:      x[len(x)-1],
		Mean:     normalize.Round2(stat.Mean(x, nil)),
	}
}

// weekStart returns the Monday starting d's week.
func weekStart(d time.Time) time.Time {
	y, m, day := d.Date()
	midnight := time.Date(y, m, day, 0, 0, 0, 0, d.Location())
	offset := (int(midnight.Weekday()) + 6) % 7
	return midnight.AddDate(0, 0, -offset)
}

func jobsTrend(records []crawler.JobRecord, used string) (JobsTrend, error) {
	type catWeek struct {
		week     time.Time
		category string
	}
	weekly := make(map[time.Time]int)
	byCategory := make(map[catWeek]int)
	salaries := make(map[time.Time][]float64)
	for _, rec := range records {
		if rec.UpdateDate == nil {
			continue
		}
		week := weekStart(*rec.UpdateDate)
		weekly[week]++
		byCategory[catWeek{week, rec.Category}]++
		if rec.SalaryAvg > 0 {
			salaries[week] = append(salaries[week], rec.SalaryAvg)
		}
	}
	if len(weekly) == 0 {
		return JobsTrend{}, ErrNoDateData
	}

	out := JobsTrend{CollectionUsed: used}
	for _, week := range sortedTimes(weekly) {
		out.Weekly = append(out.Weekly, WeekCount{Week: week, Count: weekly[week]})
		if vals, ok := salaries[week]; ok {
			out.SalaryTrend = append(out.SalaryTrend, WeekSalary{Week: week, AvgSalary: normalize.Round2(stat.Mean(vals, nil))})
		}
	}
	for key, count := range byCategory {
		out.ByCategory = append(out.ByCategory, CategoryWeekCount{Week: key.week, Category: key.category, Count: count})
	}
	sort.Slice(out.ByCategory, func(i, j int) bool {
		a, b := out.ByCategory[i], out.ByCategory[j]
		if !a.Week.Equal(b.Week) {
			return a.Week.Before(b.Week)
		}
		return a.Category < b.Category
	})
	if out.SalaryTrend == nil {
		out.SalaryTrend = []WeekSalary{}
	}
	return out, nil
}

func present(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && s != crawler.NotAvailable
}

func salaryLocation(records []crawler.JobRecord, rules normalize.Rules, used string) (SalaryLocation, error) {
	out := SalaryLocation{CollectionUsed: used}
	byCity := make(map[string][]SalaryPoint)
	for _, rec := range records {
		if rec.SalaryAvg <= 0 || !present(rec.Location) || !present(rec.ExperienceText) {
			continue
		}
		p := SalaryPoint{
			ExperienceYears: rules.ExperienceYears(rec.ExperienceText),
			Salary:          rec.SalaryAvg,
			City:            rules.City(rec.Location),
			Title:           rec.Title,
			Company:         rec.Company,
		}
		out.Points = append(out.Points, p)
		byCity[p.City] = append(byCity[p.City], p)
	}
	if len(out.Points) == 0 {
		return SalaryLocation{}, ErrNoValidData
	}
	for _, city := range sortedKeys(byCity) {
		out.Trendlines = append(out.Trendlines, fitTrendline(city, byCity[city]))
	}
	out.Trendlines = append(out.Trendlines, fitTrendline("All", out.Points))
	return out, nil
}

// fitTrendline regresses salary on experience. Fewer than two points, or no
// spread in experience, leaves the fit undefined.
func fitTrendline(city string, points []SalaryPoint) Trendline {
	line := Trendline{City: city, Points: len(points)}
	if len(points) < 2 {
		return line
	}
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = float64(p.ExperienceYears)
		ys[i] = p.Salary
	}
	if stat.Variance(xs, nil) == 0 {
		return line
	}
	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	line.Intercept = finite(alpha)
	line.Slope = finite(beta)
	line.RSquared = finite(stat.RSquared(xs, ys, nil, alpha, beta))
	return line
}

func correlation(records []crawler.JobRecord, rules normalize.Rules, used string) Correlation {
	categoryCodes := labelEncode(records, func(r crawler.JobRecord) string { return r.Category })
	locationCodes := labelEncode(records, func(r crawler.JobRecord) string { return r.Location })

	columns := make([][]float64, len(correlationFeatures))
	for i := range columns {
		columns[i] = make([]float64, len(records))
	}
	for i, rec := range records {
		columns[0][i] = rec.SalaryAvg
		columns[1][i] = float64(rules.ExperienceYears(rec.ExperienceText))
		columns[2][i] = categoryCodes[i]
		columns[3][i] = locationCodes[i]
		columns[4][i] = float64(len(rec.Skills))
	}

	matrix := make([][]*float64, len(columns))
	for i := range columns {
		matrix[i] = make([]*float64, len(columns))
		for j := range columns {
			if len(records) < 2 {
				continue
			}
			matrix[i][j] = finite(normalize.Round2(stat.Correlation(columns[i], columns[j], nil)))
		}
	}
	return Correlation{
		Features:       append([]string(nil), correlationFeatures...),
		Matrix:         matrix,
		CollectionUsed: used,
	}
}

// labelEncode maps each record's value to its index among the sorted
// distinct values. Missing values encode as Unknown.
func labelEncode(records []crawler.JobRecord, field func(crawler.JobRecord) string) []float64 {
	values := make([]string, len(records))
	distinct := make(map[string]int)
	for i, rec := range records {
		v := field(rec)
		if strings.TrimSpace(v) == "" {
			v = normalize.UnknownLabel
		}
		values[i] = v
		distinct[v] = 0
	}
	for code, v := range sortedKeys(distinct) {
		distinct[v] = code
	}
	out := make([]float64, len(records))
	for i, v := range values {
		out[i] = float64(distinct[v])
	}
	return out
}

func hierarchy(records []crawler.JobRecord, rules normalize.Rules, used string) Hierarchy {
	type cityKey struct{ category, city string }
	type pathKey struct{ category, level, salaryRange string }
	cities := make(map[cityKey][]float64)
	paths := make(map[pathKey]int)
	for _, rec := range records {
		city := rules.City(rec.Location)
		ck := cityKey{rec.Category, city}
		cities[ck] = append(cities[ck], rec.SalaryAvg)

		salaryRange := rules.SalaryRange(rec.SalaryAvg)
		if salaryRange == normalize.UnknownLabel {
			continue
		}
		level := rules.ExperienceLevel(rules.ExperienceYears(rec.ExperienceText))
		paths[pathKey{rec.Category, level, salaryRange}]++
	}

	out := Hierarchy{Treemap: []TreemapCell{}, Sunburst: []SunburstCell{}, CollectionUsed: used}
	for key, salaries := range cities {
		out.Treemap = append(out.Treemap, TreemapCell{
			Category:  key.category,
			City:      key.city,
			JobCount:  len(salaries),
			AvgSalary: normalize.Round2(stat.Mean(salaries, nil)),
		})
	}
	sort.Slice(out.Treemap, func(i, j int) bool {
		a, b := out.Treemap[i], out.Treemap[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.City < b.City
	})
	for key, count := range paths {
		out.Sunburst = append(out.Sunburst, SunburstCell{
			Category:        key.category,
			ExperienceLevel: key.level,
			SalaryRange:     key.salaryRange,
			Count:           count,
		})
	}
	sort.Slice(out.Sunburst, func(i, j int) bool {
		a, b := out.Sunburst[i], out.Sunburst[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.ExperienceLevel != b.ExperienceLevel {
			return a.ExperienceLevel < b.ExperienceLevel
		}
		return a.SalaryRange < b.SalaryRange
	})
	return out
}

// topSkills counts skills and returns the n most frequent, ties broken by name.
func topSkills(records []crawler.JobRecord, n int) []SkillCount {
	counts := make(map[string]int)
	for _, rec := range records {
		for _, skill := range rec.Skills {
			if skill = strings.TrimSpace(skill); skill != "" {
				counts[skill]++
			}
		}
	}
	out := make([]SkillCount, 0, len(counts))
	for skill, count := range counts {
		out = append(out, SkillCount{Skill: skill, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Skill < out[j].Skill
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedTimes[V any](m map[time.Time]V) []time.Time {
	keys := make([]time.Time, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
	return keys
}
