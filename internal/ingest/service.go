// Package ingest stores generated stories and runs the batch pipeline that
// produces them.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/threadjuice/threadjuice/internal/models"
	"github.com/threadjuice/threadjuice/internal/scraper"
)

// ErrInvalidStory is returned for stories missing a title, slug or body.
var ErrInvalidStory = errors.New("invalid story")

// Repository is the story persistence the service and pipeline need. Both
// models.StoryStore and models.SQLiteStoryStore implement it.
type Repository interface {
	CreateStory(ctx context.Context, story *models.Story) error
	GetBySlug(ctx context.Context, slug string) (*models.Story, error)
	ListPublished(ctx context.Context, opts models.ListOptions) ([]models.Story, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	SourceExists(ctx context.Context, sourceHash string) (bool, error)
	CountSince(ctx context.Context, since time.Time) (int, error)
}

// Archiver keeps a copy of each stored story and its source.
type Archiver interface {
	Configured() bool
	ArchiveStory(ctx context.Context, story *models.Story, source *models.Post) error
}

// Outcome is the result of one ingestion.
type Outcome struct {
	Story     *models.Story `json:"story,omitempty"`
	Duplicate bool          `json:"duplicate"`
}

// Service writes stories.
type Service struct {
	repo    Repository
	archive Archiver
}

// NewService creates a Service. archive may be nil.
func NewService(repo Repository, archive Archiver) *Service {
	return &Service{repo: repo, archive: archive}
}

// Ingest persists story with its tags, persona and seed comments. A story
// whose slug is already stored is reported as a duplicate and not written.
// source, when given, is archived next to the story.
func (s *Service) Ingest(ctx context.Context, story *models.Story, source *models.Post) (Outcome, error) {
	if err := check(story); err != nil {
		return Outcome{}, err
	}
	if story.SourceHash == "" && story.SourceURL != "" {
		story.SourceHash = scraper.HashURL(story.SourceURL)
	}

	err := s.repo.CreateStory(ctx, story)
	if errors.Is(err, models.ErrDuplicateSlug) {
		zap.S().Infow("ingest: duplicate slug skipped", "slug", story.Slug, "source", story.SourceURL)
		return Outcome{Story: story, Duplicate: true}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("ingest: %w", err)
	}

	zap.S().Infow("ingest: story stored",
		"slug", story.Slug,
		"category", story.Category,
		"persona", story.Persona.Slug,
		"viral_score", story.ViralScore,
		"simulated", story.Simulated,
	)

	if s.archive != nil && s.archive.Configured() {
		if err := s.archive.ArchiveStory(ctx, story, source); err != nil {
			zap.S().Warnw("ingest: archive failed", "slug", story.Slug, "err", err)
		}
	}
	return Outcome{Story: story}, nil
}

func check(story *models.Story) error {
	switch {
	case story == nil:
		return fmt.Errorf("%w: nil story", ErrInvalidStory)
	case strings.TrimSpace(story.Title) == "":
		return fmt.Errorf("%w: missing title", ErrInvalidStory)
	case strings.TrimSpace(story.Slug) == "":
		return fmt.Errorf("%w: missing slug", ErrInvalidStory)
	case len(story.Content.Sections) == 0:
		return fmt.Errorf("%w: no sections", ErrInvalidStory)
	}
	return nil
}
