package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

const notAvailable = "N/A"

var (
	negotiableMarkers = []string{"thoả thuận", "thỏa thuận", "negotiable", "n/a"}

	numberPattern = `(\d+(?:[.,]\d+)*)`
	usdRangeRe    = regexp.MustCompile(numberPattern + `\s*[-–]\s*` + numberPattern + `\s*(?i:usd|\$)`)
	vndRangeRe    = regexp.MustCompile(numberPattern + `\s*[-–]\s*` + numberPattern)
	usdSingleRe   = regexp.MustCompile(numberPattern + `\s*(?i:usd|\$)`)
	singleRe      = regexp.MustCompile(numberPattern)
)

// ParseSalary converts salary text into million VND per month. Negotiable or
// empty text and text without numbers yield zero. Ranges yield their
// midpoint; USD amounts are multiplied by usdRate.
func ParseSalary(text string, usdRate float64) float64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	lowered := strings.ToLower(text)
	for _, marker := range negotiableMarkers {
		if strings.Contains(lowered, marker) {
			return 0
		}
	}

	if m := usdRangeRe.FindStringSubmatch(text); m != nil {
		return midpoint(m[1], m[2]) * usdRate
	}
	if m := vndRangeRe.FindStringSubmatch(text); m != nil {
		return midpoint(m[1], m[2])
	}
	if m := usdSingleRe.FindStringSubmatch(text); m != nil {
		return parseAmount(m[1]) * usdRate
	}
	if m := singleRe.FindStringSubmatch(text); m != nil {
		return parseAmount(m[1])
	}
	return 0
}

func midpoint(low, high string) float64 {
	return (parseAmount(low) + parseAmount(high)) / 2
}

// parseAmount strips thousands separators before parsing.
func parseAmount(s string) float64 {
	s = strings.NewReplacer(",", "", ".", "").Replace(s)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0
	}
	return v
}

// Round2 rounds v to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
