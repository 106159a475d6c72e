package normalize

import (
	"strings"
	"time"

	"github.com/JakeFAU/topcv-job-insights/internal/crawler"
)

// Normalize implements crawler.Normalizer.
func (r Rules) Normalize(raw crawler.RawJob, category crawler.Category, fetchedAt time.Time) crawler.JobRecord {
	skills := make([]string, 0, len(raw.Skills))
	for _, s := range raw.Skills {
		if s = cleanText(s); s != "" {
			skills = append(skills, s)
		}
	}
	location := orNotAvailable(raw.Location)
	experience := orNotAvailable(raw.ExperienceText)
	salaryText := orNotAvailable(raw.SalaryText)
	return crawler.JobRecord{
		Title:           orNotAvailable(raw.Title),
		Company:         orNotAvailable(raw.Company),
		SalaryText:      salaryText,
		SalaryAvg:       Round2(ParseSalary(salaryText, r.USDToVNDMillion)),
		Location:        location,
		City:            r.City(location),
		ExperienceText:  experience,
		ExperienceYears: r.ExperienceYears(experience),
		UpdateRaw:       orNotAvailable(raw.UpdateRaw),
		UpdateDate:      ParseRelativeDate(raw.UpdateRaw, fetchedAt),
		Skills:          skills,
		Category:        category.Name,
		Page:            raw.Page,
		CrawledAt:       fetchedAt,
	}
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func orNotAvailable(s string) string {
	if s = cleanText(s); s == "" {
		return notAvailable
	}
	return s
}
