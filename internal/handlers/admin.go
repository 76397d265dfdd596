package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/threadjuice/threadjuice/internal/ingest"
	"github.com/threadjuice/threadjuice/internal/ratelimit"
	"github.com/threadjuice/threadjuice/internal/scraper"
	"github.com/threadjuice/threadjuice/internal/storage"
)

// Ingester runs the ingestion pipeline.
type Ingester interface {
	RunExclusive(ctx context.Context, opts ingest.Options) (ingest.Report, bool)
	Running() bool
	RunURL(ctx context.Context, rawURL string) (ingest.Outcome, error)
}

// ScraperStats exposes strategy health.
type ScraperStats interface {
	Stats() []scraper.StrategyStats
}

// Snapshots reads archived stories.
type Snapshots interface {
	Configured() bool
	LoadSnapshot(ctx context.Context, slug string) (*storage.Snapshot, error)
}

// AdminHandler groups admin-only HTTP handlers.
type AdminHandler struct {
	Pipeline   Ingester
	Options    ingest.Options
	RunTimeout time.Duration
	Limiter    *ratelimit.Limiter
	Scraper    ScraperStats
	Archive    Snapshots
}

type ingestRequest struct {
	MaxStories      *int     `json:"max_stories"`
	Subreddits      []string `json:"subreddits"`
	Accounts        []string `json:"accounts"`
	SimulateOnEmpty *bool    `json:"simulate_on_empty"`
}

// TriggerIngest handles POST /api/admin/ingest. The run happens in the
// background; a run already in progress yields 409.
func (h *AdminHandler) TriggerIngest(w http.ResponseWriter, r *http.Request) {
	opts := h.Options
	if r.ContentLength != 0 {
		var req ingestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.MaxStories != nil {
			opts.MaxStories = *req.MaxStories
		}
		if len(req.Subreddits) > 0 {
			opts.Subreddits = req.Subreddits
		}
		if len(req.Accounts) > 0 {
			opts.Accounts = req.Accounts
		}
		if req.SimulateOnEmpty != nil {
			opts.SimulateOnEmpty = *req.SimulateOnEmpty
		}
	}

	if h.Pipeline.Running() {
		writeError(w, http.StatusConflict, "ingestion already running")
		return
	}

	go func() {
		ctx := context.Background()
		if h.RunTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, h.RunTimeout)
			defer cancel()
		}
		if _, ok := h.Pipeline.RunExclusive(ctx, opts); !ok {
			zap.S().Infow("admin: ingestion already running, trigger ignored")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":      "started",
		"max_stories": opts.MaxStories,
		"subreddits":  opts.Subreddits,
		"accounts":    opts.Accounts,
	})
}

// IngestURL handles POST /api/admin/ingest/url with {"url": "..."}.
func (h *AdminHandler) IngestURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	out, err := h.Pipeline.RunURL(r.Context(), req.URL)
	switch {
	case errors.Is(err, ingest.ErrInvalidURL):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		zap.S().Warnw("admin: ingest url failed", "url", req.URL, "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	status := http.StatusCreated
	if out.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, out)
}

// Quota handles GET /api/admin/quota.
func (h *AdminHandler) Quota(w http.ResponseWriter, r *http.Request) {
	usage, err := h.Limiter.Status(r.Context())
	if err != nil {
		zap.S().Errorw("admin: quota status", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to read quota")
		return
	}
	if usage == nil {
		usage = []ratelimit.Usage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": usage})
}

// ScraperHealth handles GET /api/admin/scraper.
func (h *AdminHandler) ScraperHealth(w http.ResponseWriter, r *http.Request) {
	var stats []scraper.StrategyStats
	if h.Scraper != nil {
		stats = h.Scraper.Stats()
	}
	if stats == nil {
		stats = []scraper.StrategyStats{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"strategies": stats})
}

// Snapshot handles GET /api/admin/archive/{slug}.
func (h *AdminHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	if h.Archive == nil || !h.Archive.Configured() {
		writeError(w, http.StatusNotFound, "archive not configured")
		return
	}
	slug := chi.URLParam(r, "slug")
	snap, err := h.Archive.LoadSnapshot(r.Context(), slug)
	if err != nil {
		zap.S().Debugw("admin: snapshot", "slug", slug, "err", err)
		writeError(w, http.StatusNotFound, "snapshot not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
