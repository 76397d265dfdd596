package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/threadjuice/threadjuice/internal/models"
)

// StoryReader is the read side of the story store.
type StoryReader interface {
	GetBySlug(ctx context.Context, slug string) (*models.Story, error)
	ListPublished(ctx context.Context, opts models.ListOptions) ([]models.Story, error)
}

// StoriesHandler serves published stories.
type StoriesHandler struct {
	Stories StoryReader
}

// List handles GET /api/stories?category=&limit=&offset=.
func (h *StoriesHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := models.ListOptions{
		Category: r.URL.Query().Get("category"),
		Limit:    queryInt(r, "limit", 20),
		Offset:   queryInt(r, "offset", 0),
	}
	stories, err := h.Stories.ListPublished(r.Context(), opts)
	if err != nil {
		zap.S().Errorw("stories: list", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list stories")
		return
	}
	if stories == nil {
		stories = []models.Story{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stories": stories,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}

// Get handles GET /api/stories/{slug}.
func (h *StoriesHandler) Get(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	story, err := h.Stories.GetBySlug(r.Context(), slug)
	if errors.Is(err, models.ErrNotFound) {
		writeError(w, http.StatusNotFound, "story not found")
		return
	}
	if err != nil {
		zap.S().Errorw("stories: get", "slug", slug, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load story")
		return
	}
	writeJSON(w, http.StatusOK, story)
}
