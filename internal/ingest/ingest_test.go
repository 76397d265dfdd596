package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadjuice/threadjuice/internal/analysis"
	"github.com/threadjuice/threadjuice/internal/db"
	"github.com/threadjuice/threadjuice/internal/models"
	"github.com/threadjuice/threadjuice/internal/persona"
	"github.com/threadjuice/threadjuice/internal/scraper"
	"github.com/threadjuice/threadjuice/internal/transform"
)

func newStore(t *testing.T) *models.SQLiteStoryStore {
	t.Helper()
	conn, err := db.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return models.NewSQLiteStoryStore(conn)
}

type fakeArchive struct {
	mu    sync.Mutex
	slugs []string
	err   error
}

func (f *fakeArchive) Configured() bool { return true }

func (f *fakeArchive) ArchiveStory(_ context.Context, story *models.Story, _ *models.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slugs = append(f.slugs, story.Slug)
	return f.err
}

type fakeReddit struct {
	mu           sync.Mutex
	posts        map[string][]models.Post
	post         models.Post
	postErr      error
	commentCalls int
}

func (f *fakeReddit) FetchPosts(_ context.Context, sub, _ string, _ int) ([]models.Post, error) {
	if sub == "broken" {
		return nil, errors.New("reddit: status 503")
	}
	return f.posts[sub], nil
}

func (f *fakeReddit) FetchComments(context.Context, string, string, int) ([]models.Comment, error) {
	f.mu.Lock()
	f.commentCalls++
	f.mu.Unlock()
	return []models.Comment{{Author: "top", Body: "This is peak drama.", Score: 500}}, nil
}

func (f *fakeReddit) FetchPost(context.Context, string) (models.Post, error) {
	return f.post, f.postErr
}

type fakeScraper struct{ res *scraper.Result }

func (f *fakeScraper) Fetch(context.Context, string) (*scraper.Result, error) {
	if f.res == nil {
		return nil, errors.New("scrape failed")
	}
	return f.res, nil
}

type fakeEnricher struct{}

func (fakeEnricher) Enrich(_ context.Context, story *models.Story, _ models.Post, _ analysis.Result) {
	story.ImageURL = "https://images.example/hero.jpg"
}

func redditPost(id, title, body string) models.Post {
	return models.Post{
		Platform:    models.PlatformReddit,
		ExternalID:  id,
		Title:       title,
		Body:        body,
		Author:      "op_" + id,
		Community:   "AmItheAsshole",
		URL:         "https://www.reddit.com/r/AmItheAsshole/comments/" + id + "/x/",
		Score:       2500,
		UpvoteRatio: 0.8,
		NumComments: 900,
		CreatedAt:   time.Now().Add(-2 * time.Hour),
	}
}

func newPipeline(t *testing.T, store Repository, reddit RedditSource) (*Pipeline, *fakeArchive) {
	t.Helper()
	archive := &fakeArchive{}
	p := NewPipeline(Deps{
		Reddit:      reddit,
		Scraper:     &fakeScraper{},
		Transformer: transform.New(nil, nil),
		Enricher:    fakeEnricher{},
		Stories:     store,
		Service:     NewService(store, archive),
	})
	return p, archive
}

func TestServiceIngest(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	archive := &fakeArchive{}
	svc := NewService(store, archive)

	story := &models.Story{
		Title:   "The Great Casserole Heist",
		Slug:    "the-great-casserole-heist",
		Content: models.Content{Sections: []models.Section{{Type: "describe-1", Content: "It began."}}},
	}
	out, err := svc.Ingest(ctx, story, nil)
	require.NoError(t, err)
	assert.False(t, out.Duplicate)
	assert.Equal(t, []string{"the-great-casserole-heist"}, archive.slugs)

	again := *story
	again.ID = [16]byte{}
	out, err = svc.Ingest(ctx, &again, nil)
	require.NoError(t, err)
	assert.True(t, out.Duplicate)
	assert.Len(t, archive.slugs, 1, "duplicates are not archived")

	_, err = svc.Ingest(ctx, &models.Story{Title: "No slug"}, nil)
	assert.ErrorIs(t, err, ErrInvalidStory)
	_, err = svc.Ingest(ctx, &models.Story{Title: "t", Slug: "s"}, nil)
	assert.ErrorIs(t, err, ErrInvalidStory)
	_, err = svc.Ingest(ctx, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidStory)
}

func TestServiceArchiveFailureIsNotFatal(t *testing.T) {
	store := newStore(t)
	svc := NewService(store, &fakeArchive{err: errors.New("bucket gone")})

	out, err := svc.Ingest(context.Background(), &models.Story{
		Title:   "Archive Down",
		Slug:    "archive-down",
		Content: models.Content{Sections: []models.Section{{Type: "outro", Content: "bye"}}},
	}, nil)
	require.NoError(t, err)
	assert.False(t, out.Duplicate)

	exists, err := store.SlugExists(context.Background(), "archive-down")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestPipelineRun(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	a := redditPost("aaa", "AITA for skipping my sister's wedding after she moved it to my due date?", "She knew my due date. My mom screamed at me. I am furious and heartbroken.")
	b := redditPost("bbb", "My boss fired me by text and then asked me to train my replacement", "I was livid. HR said it was legal. The whole office is toxic.")
	c := redditPost("ccc", "Already covered story", "Old news.")

	require.NoError(t, store.CreateStory(ctx, &models.Story{
		Title: "Old", Slug: "old", SourceURL: c.URL, SourceHash: scraper.HashURL(c.URL),
		Content: models.Content{Sections: []models.Section{{Type: "outro", Content: "x"}}},
	}))

	reddit := &fakeReddit{posts: map[string][]models.Post{"AmItheAsshole": {a, b, c, a}}}
	p, archive := newPipeline(t, store, reddit)

	opts := Options{
		Subreddits:      []string{"AmItheAsshole", "broken"},
		MaxStories:      5,
		CommentsPerPost: 3,
		Workers:         2,
	}
	report := p.Run(ctx, opts)

	assert.Equal(t, 4, report.Fetched)
	assert.Equal(t, 2, report.Skipped, "in-batch repeat and stored source")
	assert.Equal(t, 2, report.Ranked)
	assert.Equal(t, 2, report.Ingested)
	assert.Equal(t, 2, report.Simulated)
	assert.Zero(t, report.Failed)
	assert.Len(t, report.Slugs, 2)
	assert.Equal(t, 2, reddit.commentCalls)
	assert.Len(t, archive.slugs, 2)

	for _, slug := range report.Slugs {
		st, err := store.GetBySlug(ctx, slug)
		require.NoError(t, err)
		assert.Equal(t, "https://images.example/hero.jpg", st.ImageURL)
		assert.True(t, st.Simulated)
		assert.NotEmpty(t, st.Persona.Slug)
		assert.NotEmpty(t, st.Comments)
	}

	// Everything is stored now, so a second run has nothing to do.
	again := p.Run(ctx, opts)
	assert.Equal(t, 4, again.Fetched)
	assert.Zero(t, again.Ranked)
	assert.Zero(t, again.Ingested)
}

func TestPipelineDailyLimit(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.CreateStory(ctx, &models.Story{
		Title: "Today", Slug: "today",
		Content: models.Content{Sections: []models.Section{{Type: "outro", Content: "x"}}},
	}))

	reddit := &fakeReddit{posts: map[string][]models.Post{"tifu": {redditPost("zzz", "TIFU", "oops")}}}
	p, _ := newPipeline(t, store, reddit)

	report := p.Run(ctx, Options{Subreddits: []string{"tifu"}, DailyLimit: 1, SimulateOnEmpty: true})
	assert.Zero(t, report.Fetched)
	assert.Zero(t, report.Ingested)
}

func TestPipelineSimulateOnEmpty(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	p, _ := newPipeline(t, store, nil)
	day := time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return day }

	report := p.Run(ctx, Options{SimulateOnEmpty: true})
	assert.Zero(t, report.Fetched)
	assert.Equal(t, 1, report.Ingested)
	assert.Equal(t, 1, report.Simulated)
	require.Len(t, report.Slugs, 1)
	assert.True(t, strings.HasSuffix(report.Slugs[0], "-2026-04-10"))

	st, err := store.GetBySlug(ctx, report.Slugs[0])
	require.NoError(t, err)
	assert.Equal(t, "no live candidates", st.FallbackReason)
	assert.Equal(t, models.PlatformSimulated, st.SourcePlatform)

	// The same day yields the same seed, which is reported as a duplicate.
	again := p.Run(ctx, Options{SimulateOnEmpty: true})
	assert.Equal(t, 1, again.Duplicates)
	assert.Zero(t, again.Ingested)

	none := p.Run(ctx, Options{})
	assert.Zero(t, none.Ingested+none.Duplicates)
}

func TestPipelineRunURL(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	post := redditPost("url1", "My roommate labeled every slice of bread", "She counted them. I was shocked.")
	reddit := &fakeReddit{post: post}
	p, _ := newPipeline(t, store, reddit)

	out, err := p.RunURL(ctx, "https://old.reddit.com/r/AmItheAsshole/comments/url1/x/")
	require.NoError(t, err)
	require.NotNil(t, out.Story)
	assert.False(t, out.Duplicate)
	assert.Equal(t, post.URL, out.Story.SourceURL)

	out, err = p.RunURL(ctx, "https://www.reddit.com/r/AmItheAsshole/comments/url1/x/")
	require.NoError(t, err)
	assert.True(t, out.Duplicate)

	_, err = p.RunURL(ctx, "not a url")
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestPipelineRunURLTrackingVariantIsDuplicate(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	p, _ := newPipeline(t, store, nil)

	page := func(u string) *scraper.Result {
		return &scraper.Result{
			URL:      u,
			Title:    "Neighbour stole my casserole dish and returned it full of chili",
			Body:     "I found it on my porch with a note. My wife is furious and I am baffled.",
			Strategy: scraper.StrategyHTML,
		}
	}

	p.deps.Scraper = &fakeScraper{res: page("https://news.example.com/story/casserole")}
	out, err := p.RunURL(ctx, "https://news.example.com/story/casserole")
	require.NoError(t, err)
	require.NotNil(t, out.Story)
	assert.Equal(t, scraper.HashURL("https://news.example.com/story/casserole"), out.Story.SourceHash)

	variant := "https://www.news.example.com/story/casserole/?utm_source=twitter&utm_medium=social#comments"
	p.deps.Scraper = &fakeScraper{res: page(variant)}
	out, err = p.RunURL(ctx, variant)
	require.NoError(t, err)
	assert.True(t, out.Duplicate)
	assert.Nil(t, out.Story)

	stories, err := store.ListPublished(ctx, models.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, stories, 1)
}

func TestFreshMatchesStoredCanonicalSource(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	post := redditPost("canon1", "AITA for eating the last slice", "They screamed.")
	require.NoError(t, store.CreateStory(ctx, &models.Story{
		Title: "Slice", Slug: "slice", SourceURL: post.URL, SourceHash: scraper.HashURL(post.URL),
		Content: models.Content{Sections: []models.Section{{Type: "outro", Content: "x"}}},
	}))
	p, _ := newPipeline(t, store, nil)

	shared := post
	shared.URL = "https://old.reddit.com/r/AmItheAsshole/comments/canon1/x/?utm_source=share&utm_medium=ios_app"
	assert.Empty(t, p.fresh(ctx, []models.Post{shared}))
}

func TestPersonaSeededByPostID(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	post := redditPost("seed42", "My coworker microwaved fish and blamed me", "Everyone glared at me. I was humiliated and angry.")
	p, _ := newPipeline(t, store, &fakeReddit{post: post})

	out, err := p.RunURL(ctx, post.URL)
	require.NoError(t, err)
	require.NotNil(t, out.Story)

	res := analysis.Analyze(post.Text())
	want := persona.Default().Select(analysis.DetectCategory(post), res.Dominant, post.ExternalID)
	assert.Equal(t, want.Slug, out.Story.Persona.Slug)
}

func TestPipelineRunURLFallsBackToScraper(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	reddit := &fakeReddit{postErr: errors.New("reddit: status 403")}
	p, _ := newPipeline(t, store, reddit)
	p.deps.Scraper = &fakeScraper{res: &scraper.Result{
		URL:      "https://www.reddit.com/r/tifu/comments/q/x",
		Title:    "TIFU by microwaving fish at work",
		Body:     "The whole floor smelled it and my manager sent an email to everyone.",
		Strategy: scraper.StrategyHTML,
	}}

	out, err := p.RunURL(ctx, "https://www.reddit.com/r/tifu/comments/q/x")
	require.NoError(t, err)
	require.NotNil(t, out.Story)
	assert.Equal(t, models.PlatformWeb, out.Story.SourcePlatform)

	p.deps.Scraper = &fakeScraper{}
	_, err = p.RunURL(ctx, "https://example.com/article")
	assert.Error(t, err)
}

func TestRunExclusive(t *testing.T) {
	p, _ := newPipeline(t, newStore(t), nil)

	p.running.Store(true)
	_, ok := p.RunExclusive(context.Background(), Options{})
	assert.False(t, ok)

	p.running.Store(false)
	_, ok = p.RunExclusive(context.Background(), Options{})
	assert.True(t, ok)
	assert.False(t, p.Running())
}
