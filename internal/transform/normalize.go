package transform

import (
	"strconv"
	"strings"

	"github.com/gosimple/slug"

	"github.com/threadjuice/threadjuice/internal/analysis"
	"github.com/threadjuice/threadjuice/internal/models"
)

const (
	maxTags       = 8
	maxSlugLength = 80
	excerptLength = 200
)

// Normalize turns a validated draft into a story body. fallbackCategory is
// used when the draft's category is not one the site knows.
func Normalize(d *Draft, fallbackCategory string) *models.Story {
	story := &models.Story{
		Title:    cleanLine(d.Title),
		Excerpt:  cleanLine(d.Excerpt),
		Category: strings.ToLower(strings.TrimSpace(d.Category)),
		Tags:     NormalizeTags(d.Tags),
		Status:   models.StatusPublished,
	}
	if !knownCategory(story.Category) {
		story.Category = fallbackCategory
	}

	counters := make(map[string]int)
	for _, s := range d.Sections {
		s.Title = strings.TrimSpace(s.Title)
		s.Content = strings.TrimSpace(s.Content)
		base := models.BaseSectionType(s.Type)
		if models.NumberedSectionType(base) {
			counters[base]++
			s.Type = base + "-" + strconv.Itoa(counters[base])
		} else {
			s.Type = base
		}
		story.Content.Sections = append(story.Content.Sections, s)
	}

	if story.Excerpt == "" {
		if i := story.Content.FirstSection(models.SectionDescribe); i >= 0 {
			story.Excerpt = truncate(cleanLine(story.Content.Sections[i].Content), excerptLength)
		}
	}
	story.Slug = Slugify(story.Title)
	return story
}

// NormalizeTags lowercases, trims and dedupes tags, keeping at most eight.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "#")))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
		if len(out) == maxTags {
			break
		}
	}
	return out
}

// Slugify builds a URL slug from a title, cut at a word boundary.
func Slugify(title string) string {
	s := slug.Make(title)
	if len(s) <= maxSlugLength {
		return s
	}
	s = s[:maxSlugLength]
	if i := strings.LastIndexByte(s, '-'); i > maxSlugLength/2 {
		s = s[:i]
	}
	return strings.Trim(s, "-")
}

func knownCategory(c string) bool {
	for _, k := range analysis.Categories {
		if k == c {
			return true
		}
	}
	return false
}

func cleanLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
