package normalize

import (
	"math"
	"strings"
)

// CityRule maps a substring found in location text to a canonical city.
type CityRule struct {
	Pattern string `mapstructure:"pattern" json:"pattern"`
	City    string `mapstructure:"city" json:"city"`
}

// Bucket is a half-open value range [Min, Max). Max of zero or less means the
// bucket is unbounded above.
type Bucket struct {
	Label string  `mapstructure:"label" json:"label" validate:"required"`
	Min   float64 `mapstructure:"min" json:"min"`
	Max   float64 `mapstructure:"max" json:"max"`
}

func (b Bucket) contains(v float64) bool {
	if v < b.Min {
		return false
	}
	return b.Max <= 0 || v < b.Max
}

// BucketSet labels values using the first bucket that contains them.
type BucketSet []Bucket

// Label returns the bucket label for v, or fallback when no bucket matches.
func (s BucketSet) Label(v float64, fallback string) string {
	if math.IsNaN(v) {
		return fallback
	}
	for _, b := range s {
		if b.contains(v) {
			return b.Label
		}
	}
	return fallback
}

// Labels lists bucket labels in order.
func (s BucketSet) Labels() []string {
	out := make([]string, 0, len(s))
	for _, b := range s {
		out = append(out, b.Label)
	}
	return out
}

// Label values shared by the presentation layer.
const (
	UnknownLabel = "Unknown"
	OtherLabel   = "Other"
)

// Rules configures every normalization routine.
type Rules struct {
	// USDToVNDMillion multiplies USD amounts into the salary unit.
	USDToVNDMillion float64
	Cities          []CityRule
	// ZeroExperienceMarkers mark texts that mean no experience is required.
	ZeroExperienceMarkers []string
	// DefaultExperienceYears applies when text carries no number.
	DefaultExperienceYears int
	// ExperienceCap bounds the derived years; zero leaves them uncapped.
	ExperienceCap     int
	SalaryBuckets     BucketSet
	ExperienceBuckets BucketSet
}

// DefaultCities returns the known city table.
func DefaultCities() []CityRule {
	return []CityRule{
		{Pattern: "Hà Nội", City: "Hà Nội"},
		{Pattern: "Hồ Chí Minh", City: "TP Hồ Chí Minh"},
		{Pattern: "TP.HCM", City: "TP Hồ Chí Minh"},
		{Pattern: "Đà Nẵng", City: "Đà Nẵng"},
		{Pattern: "Cần Thơ", City: "Cần Thơ"},
		{Pattern: "Hải Phòng", City: "Hải Phòng"},
		{Pattern: "Biên Hòa", City: "Biên Hòa"},
	}
}

// DefaultSalaryBuckets returns the salary range labels in million VND.
func DefaultSalaryBuckets() BucketSet {
	return BucketSet{
		{Label: "<10M", Min: 0, Max: 10},
		{Label: "10-20M", Min: 10, Max: 20},
		{Label: "20-30M", Min: 20, Max: 30},
		{Label: "30-50M", Min: 30, Max: 50},
		{Label: ">50M", Min: 50},
	}
}

// DefaultExperienceBuckets returns the experience level labels in years.
func DefaultExperienceBuckets() BucketSet {
	return BucketSet{
		{Label: "Entry Level", Min: 0, Max: 1},
		{Label: "Junior", Min: 1, Max: 3},
		{Label: "Senior", Min: 3, Max: 6},
		{Label: "Other", Min: 6},
	}
}

// DefaultRules returns the rule set used when configuration is silent.
func DefaultRules() Rules {
	return Rules{
		USDToVNDMillion:        24,
		Cities:                 DefaultCities(),
		ZeroExperienceMarkers:  []string{"không yêu cầu", "intern", "no experience"},
		DefaultExperienceYears: 1,
		ExperienceCap:          20,
		SalaryBuckets:          DefaultSalaryBuckets(),
		ExperienceBuckets:      DefaultExperienceBuckets(),
	}
}

// SalaryRange labels a salary. Non-positive salaries are unknown.
func (r Rules) SalaryRange(salary float64) string {
	if salary <= 0 {
		return UnknownLabel
	}
	return r.SalaryBuckets.Label(salary, UnknownLabel)
}

// ExperienceLevel labels a number of years.
func (r Rules) ExperienceLevel(years int) string {
	return r.ExperienceBuckets.Label(float64(years), OtherLabel)
}

// City maps location text to a canonical city name. Missing text is
// unknown; text naming no known city is other.
func (r Rules) City(location string) string {
	location = strings.TrimSpace(location)
	if location == "" || location == notAvailable {
		return UnknownLabel
	}
	for _, rule := range r.Cities {
		if rule.Pattern != "" && strings.Contains(location, rule.Pattern) {
			return rule.City
		}
	}
	return OtherLabel
}
