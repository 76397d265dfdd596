package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/threadjuice/threadjuice/internal/analysis"
	"github.com/threadjuice/threadjuice/internal/config"
	"github.com/threadjuice/threadjuice/internal/models"
	"github.com/threadjuice/threadjuice/internal/persona"
	"github.com/threadjuice/threadjuice/internal/scoring"
	"github.com/threadjuice/threadjuice/internal/scraper"
	"github.com/threadjuice/threadjuice/internal/transform"
)

const defaultWorkers = 3

// ErrInvalidURL is returned by RunURL for anything but an absolute http(s)
// URL.
var ErrInvalidURL = errors.New("invalid url")

// RedditSource lists subreddits and loads threads.
type RedditSource interface {
	FetchPosts(ctx context.Context, subreddit, sort string, limit int) ([]models.Post, error)
	FetchComments(ctx context.Context, subreddit, id string, limit int) ([]models.Comment, error)
	FetchPost(ctx context.Context, permalink string) (models.Post, error)
}

// TwitterSource lists account timelines.
type TwitterSource interface {
	FetchTimeline(ctx context.Context, account string, limit int) ([]models.Post, error)
}

// PageScraper extracts a post from an arbitrary URL.
type PageScraper interface {
	Fetch(ctx context.Context, rawURL string) (*scraper.Result, error)
}

// StoryWriter turns a post into a story.
type StoryWriter interface {
	Transform(ctx context.Context, post models.Post, res analysis.Result, p persona.Persona) (*models.Story, error)
}

// MediaEnricher adds images, GIFs and videos to a story.
type MediaEnricher interface {
	Enrich(ctx context.Context, story *models.Story, post models.Post, res analysis.Result)
}

// Deps groups the collaborators of the pipeline. Nil sources are skipped and
// a nil enricher leaves stories without stock media.
type Deps struct {
	Reddit      RedditSource
	Twitter     TwitterSource
	Scraper     PageScraper
	Transformer StoryWriter
	Enricher    MediaEnricher
	Personas    *persona.Registry
	Stories     Repository
	Service     *Service
}

// Options controls one batch run.
type Options struct {
	Subreddits      []string
	Sort            string
	Accounts        []string
	MaxStories      int
	DailyLimit      int
	MinDramaScore   float64
	PostsPerSource  int
	CommentsPerPost int
	Workers         int
	SimulateOnEmpty bool
}

// OptionsFromConfig builds run options from configuration.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Subreddits:      cfg.Reddit.Subreddits,
		Sort:            cfg.Reddit.Sort,
		Accounts:        cfg.Twitter.Accounts,
		MaxStories:      cfg.Pipeline.MaxStories,
		DailyLimit:      cfg.Pipeline.DailyLimit,
		MinDramaScore:   cfg.Pipeline.MinDramaScore,
		PostsPerSource:  cfg.Pipeline.PostsPerSource,
		CommentsPerPost: cfg.Pipeline.CommentsPerPost,
		Workers:         cfg.Pipeline.Workers,
		SimulateOnEmpty: cfg.Pipeline.SimulateOnEmpty,
	}
}

// Report summarises a run.
type Report struct {
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Fetched    int           `json:"fetched"`
	Skipped    int           `json:"skipped"`
	Ranked     int           `json:"ranked"`
	Ingested   int           `json:"ingested"`
	Duplicates int           `json:"duplicates"`
	Simulated  int           `json:"simulated"`
	Failed     int           `json:"failed"`
	Slugs      []string      `json:"slugs,omitempty"`
}

// Pipeline fetches, ranks, writes and stores stories.
type Pipeline struct {
	deps    Deps
	now     func() time.Time
	running atomic.Bool
}

// NewPipeline creates a Pipeline. Without a persona registry the built-in
// personas are used.
func NewPipeline(deps Deps) *Pipeline {
	if deps.Personas == nil {
		deps.Personas = persona.Default()
	}
	return &Pipeline{deps: deps, now: time.Now}
}

// Running reports whether a run is in progress.
func (p *Pipeline) Running() bool { return p.running.Load() }

// RunExclusive runs the pipeline unless a run is already in progress, in
// which case it returns false immediately.
func (p *Pipeline) RunExclusive(ctx context.Context, opts Options) (Report, bool) {
	if !p.running.CompareAndSwap(false, true) {
		return Report{}, false
	}
	defer p.running.Store(false)
	return p.Run(ctx, opts), true
}

// Run executes one batch: collect posts from every source, drop the ones
// already stored, rank by drama score, then transform, enrich and store the
// best candidates concurrently.
func (p *Pipeline) Run(ctx context.Context, opts Options) (report Report) {
	report.StartedAt = p.now()
	defer func() {
		report.Duration = time.Since(report.StartedAt).Round(time.Millisecond)
		zap.S().Infow("pipeline: run complete",
			"fetched", report.Fetched,
			"skipped", report.Skipped,
			"ranked", report.Ranked,
			"ingested", report.Ingested,
			"duplicates", report.Duplicates,
			"simulated", report.Simulated,
			"failed", report.Failed,
			"duration", report.Duration,
		)
	}()

	zap.S().Infow("pipeline: starting run",
		"subreddits", len(opts.Subreddits),
		"accounts", len(opts.Accounts),
		"max_stories", opts.MaxStories,
	)

	budget := opts.MaxStories
	if opts.DailyLimit > 0 {
		used, err := p.deps.Stories.CountSince(ctx, startOfDay(report.StartedAt))
		if err != nil {
			zap.S().Errorw("pipeline: count today", "err", err)
			used = 0
		}
		remaining := opts.DailyLimit - used
		if remaining <= 0 {
			zap.S().Infow("pipeline: daily limit reached", "count", used)
			return report
		}
		if budget <= 0 || remaining < budget {
			budget = remaining
		}
		zap.S().Infow("pipeline: daily budget", "used", used, "remaining", remaining)
	}

	posts := p.collect(ctx, opts)
	report.Fetched = len(posts)

	fresh := p.fresh(ctx, posts)
	report.Skipped = len(posts) - len(fresh)

	analyses := make([]analysis.Result, len(fresh))
	for i, post := range fresh {
		analyses[i] = analysis.Analyze(post.Text())
	}
	ranked := scoring.Rank(fresh, analyses, opts.MinDramaScore, budget)
	report.Ranked = len(ranked)

	if len(ranked) == 0 {
		if opts.SimulateOnEmpty && ctx.Err() == nil {
			p.simulateSeed(ctx, &report)
		}
		return report
	}

	p.loadComments(ctx, ranked, opts)
	p.process(ctx, ranked, opts.Workers, &report)
	return report
}

// RunURL ingests a single URL. Reddit permalinks go through the Reddit
// client first; everything else, and any Reddit failure, through the
// self-healing scraper.
func (p *Pipeline) RunURL(ctx context.Context, rawURL string) (Outcome, error) {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Outcome{}, fmt.Errorf("ingest url: %w: %q", ErrInvalidURL, rawURL)
	}

	post, err := p.fetchURL(ctx, u)
	if err != nil {
		return Outcome{}, fmt.Errorf("ingest url: %w", err)
	}

	exists, err := p.deps.Stories.SourceExists(ctx, scraper.HashURL(post.URL))
	if err != nil {
		return Outcome{}, fmt.Errorf("ingest url: %w", err)
	}
	if exists {
		zap.S().Infow("pipeline: source already stored", "url", post.URL)
		return Outcome{Duplicate: true}, nil
	}

	return p.processOne(ctx, post, analysis.Analyze(post.Text()))
}

func (p *Pipeline) fetchURL(ctx context.Context, u *url.URL) (models.Post, error) {
	if p.deps.Reddit != nil && scraper.IsRedditURL(u) {
		post, err := p.deps.Reddit.FetchPost(ctx, u.String())
		if err == nil {
			return post, nil
		}
		if p.deps.Scraper == nil || ctx.Err() != nil {
			return models.Post{}, err
		}
		zap.S().Warnw("pipeline: reddit fetch failed, scraping instead", "url", u.String(), "err", err)
	}
	if p.deps.Scraper == nil {
		return models.Post{}, errors.New("no scraper configured")
	}
	res, err := p.deps.Scraper.Fetch(ctx, u.String())
	if err != nil {
		return models.Post{}, err
	}
	return res.Post(), nil
}

// collect fetches every configured source concurrently. Failing sources are
// logged and skipped.
func (p *Pipeline) collect(ctx context.Context, opts Options) []models.Post {
	type job struct {
		name  string
		fetch func(context.Context) ([]models.Post, error)
	}
	var jobs []job
	if p.deps.Reddit != nil {
		for _, sub := range opts.Subreddits {
			jobs = append(jobs, job{"r/" + sub, func(ctx context.Context) ([]models.Post, error) {
				return p.deps.Reddit.FetchPosts(ctx, sub, opts.Sort, opts.PostsPerSource)
			}})
		}
	}
	if p.deps.Twitter != nil {
		for _, account := range opts.Accounts {
			jobs = append(jobs, job{"@" + account, func(ctx context.Context) ([]models.Post, error) {
				return p.deps.Twitter.FetchTimeline(ctx, account, opts.PostsPerSource)
			}})
		}
	}

	results := make([][]models.Post, len(jobs))
	var g errgroup.Group
	g.SetLimit(workers(opts.Workers))
	for i, j := range jobs {
		g.Go(func() error {
			posts, err := j.fetch(ctx)
			if err != nil {
				zap.S().Warnw("pipeline: source failed", "source", j.name, "err", err)
				return nil
			}
			zap.S().Debugw("pipeline: source fetched", "source", j.name, "posts", len(posts))
			results[i] = posts
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	var all []models.Post
	for _, r := range results {
		all = append(all, r...)
	}
	return all
}

// fresh keeps posts seen for the first time in this batch and in the store,
// minus the unsuitable ones.
func (p *Pipeline) fresh(ctx context.Context, posts []models.Post) []models.Post {
	seen := make(map[string]bool, len(posts))
	out := make([]models.Post, 0, len(posts))
	for _, post := range posts {
		key := scraper.HashURL(post.URL)
		if seen[key] {
			continue
		}
		seen[key] = true

		if reason := unsuitable(post); reason != "" {
			zap.S().Debugw("pipeline: dropping post", "url", post.URL, "reason", reason)
			continue
		}

		exists, err := p.deps.Stories.SourceExists(ctx, key)
		if err != nil {
			zap.S().Warnw("pipeline: source lookup failed", "url", post.URL, "err", err)
			continue
		}
		if exists {
			continue
		}
		out = append(out, post)
	}
	return out
}

// loadComments fills in the top comments of ranked Reddit candidates.
func (p *Pipeline) loadComments(ctx context.Context, ranked []scoring.Candidate, opts Options) {
	if p.deps.Reddit == nil || opts.CommentsPerPost <= 0 {
		return
	}
	var g errgroup.Group
	g.SetLimit(workers(opts.Workers))
	for i := range ranked {
		post := ranked[i].Post
		if post.Platform != models.PlatformReddit || len(post.Comments) > 0 || post.NumComments == 0 {
			continue
		}
		g.Go(func() error {
			comments, err := p.deps.Reddit.FetchComments(ctx, post.Community, post.ExternalID, opts.CommentsPerPost)
			if err != nil {
				zap.S().Warnw("pipeline: comments failed", "post", post.ExternalID, "err", err)
				return nil
			}
			ranked[i].Post.Comments = comments
			return nil
		})
	}
	g.Wait() //nolint:errcheck
}

// process writes and stores candidates with at most n in flight.
func (p *Pipeline) process(ctx context.Context, ranked []scoring.Candidate, n int, report *Report) {
	sem := make(chan struct{}, workers(n))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, c := range ranked {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(c scoring.Candidate) {
			defer wg.Done()
			defer func() { <-sem }()

			out, err := p.processOne(ctx, c.Post, c.Analysis)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				zap.S().Errorw("pipeline: story failed", "source", c.Post.URL, "err", err)
				return
			}
			report.tally(out)
		}(c)
	}
	wg.Wait()
}

func (p *Pipeline) processOne(ctx context.Context, post models.Post, res analysis.Result) (Outcome, error) {
	category := analysis.DetectCategory(post)
	voice := p.deps.Personas.Select(category, res.Dominant, post.ExternalID)

	story, err := p.deps.Transformer.Transform(ctx, post, res, voice)
	if err != nil {
		return Outcome{}, err
	}
	p.enrich(ctx, story, post, res)
	return p.deps.Service.Ingest(ctx, story, &post)
}

func (p *Pipeline) enrich(ctx context.Context, story *models.Story, post models.Post, res analysis.Result) {
	if p.deps.Enricher == nil {
		return
	}
	p.deps.Enricher.Enrich(ctx, story, post, res)
	transform.Rescore(story)
}

// simulateSeed stores a simulated story from a built-in seed post so a run
// without live candidates still publishes something.
func (p *Pipeline) simulateSeed(ctx context.Context, report *Report) {
	now := p.now()
	post := seedPost(now)
	res := analysis.Analyze(post.Text())
	voice := p.deps.Personas.Select(analysis.DetectCategory(post), res.Dominant, post.ExternalID)

	const reason = "no live candidates"
	zap.S().Warnw("pipeline: simulating from seed post", "reason", reason, "seed", post.ExternalID)

	story := transform.Fallback(post, res, voice, reason)
	story.Slug = fmt.Sprintf("%s-%s", story.Slug, now.UTC().Format("2006-01-02"))
	p.enrich(ctx, story, post, res)

	out, err := p.deps.Service.Ingest(ctx, story, &post)
	if err != nil {
		report.Failed++
		zap.S().Errorw("pipeline: seed story failed", "err", err)
		return
	}
	report.tally(out)
}

func (r *Report) tally(out Outcome) {
	if out.Duplicate {
		r.Duplicates++
		return
	}
	r.Ingested++
	if out.Story != nil {
		r.Slugs = append(r.Slugs, out.Story.Slug)
		if out.Story.Simulated {
			r.Simulated++
		}
	}
}

func workers(n int) int {
	if n <= 0 {
		return defaultWorkers
	}
	return n
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
