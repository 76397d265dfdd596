package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadjuice/threadjuice/internal/config"
	"github.com/threadjuice/threadjuice/internal/ingest"
	"github.com/threadjuice/threadjuice/internal/models"
	"github.com/threadjuice/threadjuice/internal/ratelimit"
	"github.com/threadjuice/threadjuice/internal/scraper"
	"github.com/threadjuice/threadjuice/internal/storage"
)

type fakeStories struct {
	stories []models.Story
	err     error
	lastOpt models.ListOptions
}

func (f *fakeStories) GetBySlug(_ context.Context, slug string) (*models.Story, error) {
	for i := range f.stories {
		if f.stories[i].Slug == slug {
			return &f.stories[i], nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeStories) ListPublished(_ context.Context, opts models.ListOptions) ([]models.Story, error) {
	f.lastOpt = opts
	return f.stories, f.err
}

func sampleStories() []models.Story {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []models.Story{
		{Title: "The Fence Feud", Slug: "the-fence-feud", Excerpt: "Pink paint.", Category: "neighbors",
			Persona: models.StoryPersona{Name: "The Snarky Sage"}, ImageURL: "https://img.example/fence.jpg", CreatedAt: at},
		{Title: "Reply All Regret", Slug: "reply-all-regret", Excerpt: "4,000 recipients.", CreatedAt: at.Add(-time.Hour)},
	}
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	(&HealthHandler{}).Health(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = httptest.NewRecorder()
	(&HealthHandler{DB: pingerFunc(func(context.Context) error { return errors.New("down") })}).
		Health(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestStoriesListAndGet(t *testing.T) {
	store := &fakeStories{stories: sampleStories()}
	h := &StoriesHandler{Stories: store}
	r := chi.NewRouter()
	r.Get("/api/stories", h.List)
	r.Get("/api/stories/{slug}", h.Get)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stories?category=neighbors&limit=5&offset=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ListOptions{Category: "neighbors", Limit: 5, Offset: 10}, store.lastOpt)

	var body struct {
		Stories []models.Story `json:"stories"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Stories, 2)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stories/the-fence-feud", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"title":"The Fence Feud"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stories/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	store.err = errors.New("db down")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stories?limit=abc", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 20, store.lastOpt.Limit)
}

func TestFeed(t *testing.T) {
	h := &FeedHandler{Stories: &fakeStories{stories: sampleStories()}, BaseURL: "https://threadjuice.example/"}

	rec := httptest.NewRecorder()
	h.ServeFeed(rec, httptest.NewRequest(http.MethodGet, "/feed.xml", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/rss+xml")

	body := rec.Body.String()
	assert.Contains(t, body, "<rss")
	assert.Contains(t, body, "The Fence Feud")
	assert.Contains(t, body, "https://threadjuice.example/blog/the-fence-feud")
	assert.Equal(t, 2, strings.Count(body, "<item>"))

	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)
	req := httptest.NewRequest(http.MethodGet, "/feed.xml", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	h.ServeFeed(rec, req)
	assert.Equal(t, http.StatusNotModified, rec.Code)
}

type fakeIngester struct {
	mu      sync.Mutex
	running bool
	runs    chan ingest.Options
	out     ingest.Outcome
	err     error
}

func (f *fakeIngester) RunExclusive(_ context.Context, opts ingest.Options) (ingest.Report, bool) {
	f.runs <- opts
	return ingest.Report{}, true
}

func (f *fakeIngester) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeIngester) RunURL(context.Context, string) (ingest.Outcome, error) {
	return f.out, f.err
}

func TestTriggerIngest(t *testing.T) {
	fi := &fakeIngester{runs: make(chan ingest.Options, 1)}
	h := &AdminHandler{Pipeline: fi, Options: ingest.Options{MaxStories: 5, Subreddits: []string{"tifu"}}}

	req := httptest.NewRequest(http.MethodPost, "/api/admin/ingest", strings.NewReader(`{"max_stories":2,"subreddits":["antiwork"]}`))
	rec := httptest.NewRecorder()
	h.TriggerIngest(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case opts := <-fi.runs:
		assert.Equal(t, 2, opts.MaxStories)
		assert.Equal(t, []string{"antiwork"}, opts.Subreddits)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline was not started")
	}
	assert.Equal(t, 5, h.Options.MaxStories, "defaults are not mutated")

	fi.running = true
	rec = httptest.NewRecorder()
	h.TriggerIngest(rec, httptest.NewRequest(http.MethodPost, "/api/admin/ingest", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	h.TriggerIngest(rec, httptest.NewRequest(http.MethodPost, "/api/admin/ingest", strings.NewReader(`{bad`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestURL(t *testing.T) {
	fi := &fakeIngester{out: ingest.Outcome{Story: &models.Story{Slug: "new-story"}}}
	h := &AdminHandler{Pipeline: fi}

	post := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.IngestURL(rec, httptest.NewRequest(http.MethodPost, "/api/admin/ingest/url", strings.NewReader(body)))
		return rec
	}

	rec := post(`{"url":"https://example.com/a"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "new-story")

	fi.out = ingest.Outcome{Duplicate: true}
	assert.Equal(t, http.StatusOK, post(`{"url":"https://example.com/a"}`).Code)

	assert.Equal(t, http.StatusBadRequest, post(`{}`).Code)

	fi.err = fmt.Errorf("ingest url: %w: %q", ingest.ErrInvalidURL, "x")
	assert.Equal(t, http.StatusBadRequest, post(`{"url":"x"}`).Code)

	fi.err = errors.New("scrape failed")
	assert.Equal(t, http.StatusBadGateway, post(`{"url":"https://example.com/b"}`).Code)
}

type fakeStats []scraper.StrategyStats

func (f fakeStats) Stats() []scraper.StrategyStats { return f }

func TestQuotaAndScraperHealth(t *testing.T) {
	limiter := ratelimit.New(ratelimit.NewMemoryCounter(), map[string]config.Quota{"openai": {Daily: 10}})
	require.NoError(t, limiter.Allow(context.Background(), "openai"))

	h := &AdminHandler{
		Limiter: limiter,
		Scraper: fakeStats{{Name: "html", Successes: 3, Rate: 0.8}},
	}

	rec := httptest.NewRecorder()
	h.Quota(rec, httptest.NewRequest(http.MethodGet, "/api/admin/quota", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"service":"openai"`)
	assert.Contains(t, rec.Body.String(), `"daily_used":1`)

	rec = httptest.NewRecorder()
	h.ScraperHealth(rec, httptest.NewRequest(http.MethodGet, "/api/admin/scraper", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"html"`)

	rec = httptest.NewRecorder()
	(&AdminHandler{}).Quota(rec, httptest.NewRequest(http.MethodGet, "/api/admin/quota", nil))
	assert.Equal(t, `{"services":[]}`, strings.TrimSpace(rec.Body.String()))
}

type fakeArchive struct{ snap *storage.Snapshot }

func (f fakeArchive) Configured() bool { return true }

func (f fakeArchive) LoadSnapshot(_ context.Context, slug string) (*storage.Snapshot, error) {
	if f.snap == nil || f.snap.Meta.Slug != slug {
		return nil, errors.New("missing")
	}
	return f.snap, nil
}

func TestSnapshot(t *testing.T) {
	h := &AdminHandler{Archive: fakeArchive{snap: &storage.Snapshot{Meta: storage.Meta{Slug: "s1"}, Story: &models.Story{Slug: "s1"}}}}
	r := chi.NewRouter()
	r.Get("/api/admin/archive/{slug}", h.Snapshot)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/archive/s1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/archive/s2", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	(&AdminHandler{}).Snapshot(rec, httptest.NewRequest(http.MethodGet, "/api/admin/archive/s1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
