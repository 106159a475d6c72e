package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

type dateUnit int

const (
	unitDay dateUnit = iota
	unitWeek
	unitMonth
	unitYear
)

type relativeRule struct {
	re   *regexp.Regexp
	unit dateUnit
}

var (
	postedMarkers = []string{"đăng", "trước", "hôm nay", "ago", "today"}
	todayMarkers  = []string{"hôm nay", "today"}

	relativeRules = []relativeRule{
		{re: regexp.MustCompile(`(\d+)\s*(?:năm trước|years? ago)`), unit: unitYear},
		{re: regexp.MustCompile(`(\d+)\s*(?:tháng trước|months? ago)`), unit: unitMonth},
		{re: regexp.MustCompile(`(\d+)\s*(?:tuần trước|weeks? ago)`), unit: unitWeek},
		{re: regexp.MustCompile(`(\d+)\s*(?:ngày trước|days? ago)`), unit: unitDay},
	}
)

// ParseRelativeDate resolves posting phrases such as "Đăng 3 ngày trước"
// against now. It returns nil for text it does not recognize. The result is a
// date at UTC midnight carrying now's calendar day.
func ParseRelativeDate(text string, now time.Time) *time.Time {
	text = strings.ToLower(strings.Join(strings.Fields(text), " "))
	if text == "" || !containsAny(text, postedMarkers) {
		return nil
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if containsAny(text, todayMarkers) {
		return &today
	}
	for _, rule := range relativeRules {
		m := rule.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return nil
		}
		resolved := shift(today, rule.unit, n)
		return &resolved
	}
	return nil
}

func shift(today time.Time, unit dateUnit, n int) time.Time {
	switch unit {
	case unitYear:
		return subtractMonths(today, 12*n)
	case unitMonth:
		return subtractMonths(today, n)
	case unitWeek:
		return today.AddDate(0, 0, -7*n)
	default:
		return today.AddDate(0, 0, -n)
	}
}

// subtractMonths moves back n calendar months, clamping the day to the last
// day of the target month.
func subtractMonths(t time.Time, n int) time.Time {
	total := t.Year()*12 + int(t.Month()) - 1 - n
	year, month := total/12, time.Month(total%12+1)
	day := t.Day()
	if last := daysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
