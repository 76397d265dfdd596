package transform

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/threadjuice/threadjuice/internal/models"
)

var (
	// ErrNoJSON is returned when a model answer holds no JSON object.
	ErrNoJSON = errors.New("no JSON object in model output")

	// ErrRefused is returned when the model declined to write the story.
	ErrRefused = errors.New("model refused")

	// ErrInvalidDraft is returned when a parsed draft fails validation.
	ErrInvalidDraft = errors.New("invalid story draft")
)

// refusalPatterns mark answers where the model talked instead of writing.
var refusalPatterns = []string{
	"i cannot",
	"i can't",
	"i'm sorry",
	"i am unable",
	"as an ai",
	"i won't be able",
}

// Draft is the story as returned by the model.
type Draft struct {
	Title    string           `json:"title"`
	Excerpt  string           `json:"excerpt"`
	Category string           `json:"category"`
	Tags     []string         `json:"tags"`
	Sections []models.Section `json:"sections"`
}

// draftSection accepts quiz questions either nested under "quiz" or at the
// section's top level.
type draftSection struct {
	models.Section
	Questions []models.QuizQuestion `json:"questions"`
}

type rawDraft struct {
	Title    string         `json:"title"`
	Excerpt  string         `json:"excerpt"`
	Category string         `json:"category"`
	Tags     []string       `json:"tags"`
	Sections []draftSection `json:"sections"`
}

// Parse extracts the story draft from a model answer. Markdown code fences
// and prose around the JSON object are tolerated.
func Parse(raw string) (*Draft, error) {
	body, ok := extractJSON(raw)
	if !ok {
		lower := strings.ToLower(raw)
		for _, p := range refusalPatterns {
			if strings.Contains(lower, p) {
				return nil, fmt.Errorf("transform parse: %w", ErrRefused)
			}
		}
		return nil, fmt.Errorf("transform parse: %w", ErrNoJSON)
	}

	var rd rawDraft
	if err := json.Unmarshal([]byte(body), &rd); err != nil {
		return nil, fmt.Errorf("transform parse: %w", err)
	}

	d := &Draft{
		Title:    rd.Title,
		Excerpt:  rd.Excerpt,
		Category: rd.Category,
		Tags:     rd.Tags,
		Sections: make([]models.Section, 0, len(rd.Sections)),
	}
	for _, s := range rd.Sections {
		sec := s.Section
		if sec.Quiz == nil && len(s.Questions) > 0 {
			sec.Quiz = &models.Quiz{Questions: s.Questions}
		}
		d.Sections = append(d.Sections, sec)
	}
	return d, nil
}

// extractJSON returns the outermost JSON object in s.
func extractJSON(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		if strings.Contains(rest, "{") {
			s = rest
		}
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
