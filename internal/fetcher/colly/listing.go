package collyfetcher

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/topcv-job-insights/internal/crawler"
)

// Listing markup selectors.
const (
	selectorList       = "div.job-list-search-result"
	selectorItem       = "div.job-item-search-result"
	selectorTitle      = `h3.title span[data-toggle="tooltip"]`
	selectorCompany    = "span.company-name"
	selectorSalary     = "label.title-salary"
	selectorLocation   = "label.address span.city-text"
	selectorExperience = "label.exp span"
	selectorUpdate     = "label.label-update"
	selectorSkill      = "div.tag a.item-tag"

	tooltipAttr = "data-original-title"
)

// ParseListing extracts listing items from a result page. A page without the
// result container holds no items.
func ParseListing(body []byte, page int) ([]crawler.RawJob, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse listing html: %w", err)
	}
	jobs := []crawler.RawJob{}
	list := doc.Find(selectorList).First()
	if list.Length() == 0 {
		return jobs, nil
	}
	list.Find(selectorItem).Each(func(_ int, item *goquery.Selection) {
		jobs = append(jobs, parseItem(item, page))
	})
	return jobs, nil
}

func parseItem(item *goquery.Selection, page int) crawler.RawJob {
	skills := []string{}
	item.Find(selectorSkill).Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			skills = append(skills, text)
		}
	})
	return crawler.RawJob{
		Page:           page,
		Title:          tooltipText(item.Find(selectorTitle).First()),
		Company:        tooltipText(item.Find(selectorCompany).First()),
		SalaryText:     text(item.Find(selectorSalary).First()),
		Location:       text(item.Find(selectorLocation).First()),
		ExperienceText: text(item.Find(selectorExperience).First()),
		UpdateRaw:      text(item.Find(selectorUpdate).First()),
		Skills:         skills,
	}
}

// tooltipText prefers the full tooltip title over the visible, possibly
// truncated, text.
func tooltipText(s *goquery.Selection) string {
	if s.Length() == 0 {
		return crawler.NotAvailable
	}
	if title, ok := s.Attr(tooltipAttr); ok && strings.TrimSpace(title) != "" {
		return strings.TrimSpace(title)
	}
	return text(s)
}

func text(s *goquery.Selection) string {
	if s.Length() == 0 {
		return crawler.NotAvailable
	}
	if t := strings.TrimSpace(s.Text()); t != "" {
		return t
	}
	return crawler.NotAvailable
}
