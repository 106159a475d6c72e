package normalize

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var firstIntRe = regexp.MustCompile(`\d+`)

// ExperienceYears derives whole years from experience text, capped by
// ExperienceCap. Missing text means zero.
func (r Rules) ExperienceYears(text string) int {
	text = strings.TrimSpace(text)
	if text == "" || text == notAvailable {
		return 0
	}
	lowered := strings.ToLower(text)
	if containsAny(lowered, r.ZeroExperienceMarkers) {
		return 0
	}
	years := r.DefaultExperienceYears
	if m := firstIntRe.FindString(text); m != "" {
		n, err := strconv.Atoi(m)
		switch {
		case err == nil:
			years = n
		case errors.Is(err, strconv.ErrRange):
			// Too many digits to fit an int; treat as the largest value.
			years = math.MaxInt
		}
	}
	if r.ExperienceCap > 0 && years > r.ExperienceCap {
		years = r.ExperienceCap
	}
	return years
}
