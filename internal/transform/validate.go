package transform

import (
	"fmt"
	"strings"

	"github.com/threadjuice/threadjuice/internal/models"
)

const minSections = 3

// Validate checks that a draft can be rendered.
func Validate(d *Draft) error {
	if d == nil {
		return fmt.Errorf("%w: empty draft", ErrInvalidDraft)
	}
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("%w: missing title", ErrInvalidDraft)
	}
	if len(d.Sections) < minSections {
		return fmt.Errorf("%w: %d sections, need at least %d", ErrInvalidDraft, len(d.Sections), minSections)
	}

	describes := 0
	for i, s := range d.Sections {
		if !models.IsKnownSectionType(s.Type) {
			return fmt.Errorf("%w: section %d has unknown type %q", ErrInvalidDraft, i, s.Type)
		}
		switch models.BaseSectionType(s.Type) {
		case models.SectionDescribe:
			if strings.TrimSpace(s.Content) == "" {
				return fmt.Errorf("%w: section %d (%s) is empty", ErrInvalidDraft, i, s.Type)
			}
			describes++
		case models.SectionQuiz:
			if err := validateQuiz(s.Quiz); err != nil {
				return fmt.Errorf("%w: section %d: %v", ErrInvalidDraft, i, err)
			}
		}
	}
	if describes == 0 {
		return fmt.Errorf("%w: no describe section", ErrInvalidDraft)
	}
	return nil
}

func validateQuiz(q *models.Quiz) error {
	if q == nil || len(q.Questions) == 0 {
		return fmt.Errorf("quiz has no questions")
	}
	for i, qq := range q.Questions {
		if strings.TrimSpace(qq.Question) == "" {
			return fmt.Errorf("quiz question %d is empty", i)
		}
		if len(qq.Options) < 2 {
			return fmt.Errorf("quiz question %d has %d options", i, len(qq.Options))
		}
		if qq.Answer < 0 || qq.Answer >= len(qq.Options) {
			return fmt.Errorf("quiz question %d answer %d out of range", i, qq.Answer)
		}
	}
	return nil
}
