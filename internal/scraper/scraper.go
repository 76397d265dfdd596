// Package scraper fetches a single post or article from a URL, trying several
// extraction strategies with retry and backoff and learning which ones work.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/threadjuice/threadjuice/internal/config"
	"github.com/threadjuice/threadjuice/internal/models"
)

// ErrValidation is returned when a strategy produced content too thin to
// use.
var ErrValidation = errors.New("scraped content failed validation")

// Result is the content extracted from one URL.
type Result struct {
	URL         string
	Title       string
	Body        string
	ImageURL    string
	Author      string
	Community   string
	Score       int
	NumComments int
	NSFW        bool
	PublishedAt time.Time
	Comments    []models.Comment
	Strategy    string
}

// Post converts the result into a source post.
func (r *Result) Post() models.Post {
	platform := models.PlatformWeb
	if r.Strategy == StrategyRedditJSON {
		platform = models.PlatformReddit
	}
	p := models.Post{
		Platform:    platform,
		ExternalID:  HashURL(r.URL)[:16],
		Title:       r.Title,
		Body:        r.Body,
		Author:      r.Author,
		Community:   r.Community,
		URL:         r.URL,
		Score:       r.Score,
		NumComments: r.NumComments,
		NSFW:        r.NSFW,
		CreatedAt:   r.PublishedAt,
		Comments:    r.Comments,
	}
	if r.ImageURL != "" {
		p.MediaURLs = []string{r.ImageURL}
	}
	return p
}

// Strategy is one way of extracting content from a page.
type Strategy interface {
	Name() string
	// Applies reports whether the strategy can handle u at all.
	Applies(u *url.URL) bool
	Fetch(ctx context.Context, rawURL string) (*Result, error)
}

// StrategyStats reports how a strategy has fared.
type StrategyStats struct {
	Name      string    `json:"name"`
	Successes int       `json:"successes"`
	Failures  int       `json:"failures"`
	Rate      float64   `json:"success_rate"`
	LastError string    `json:"last_error,omitempty"`
	LastUsed  time.Time `json:"last_used,omitempty"`
}

type health struct {
	successes int
	failures  int
	lastError string
	lastUsed  time.Time
}

// rate is a smoothed success rate, so untried strategies start at 0.5.
func (h health) rate() float64 {
	return float64(h.successes+1) / float64(h.successes+h.failures+2)
}

// Scraper tries its strategies in order of past success.
type Scraper struct {
	strategies    []Strategy
	minBodyLength int
	maxAttempts   int

	initialInterval time.Duration
	maxInterval     time.Duration

	mu     sync.Mutex
	health map[string]*health
}

// New creates a Scraper with the reddit-json, html and meta strategies.
// reddit may be nil, which leaves Reddit threads to the page strategies.
func New(cfg config.ScraperConfig, reddit PostFetcher) *Scraper {
	if reddit == nil {
		return NewWithStrategies(cfg,
			&HTMLStrategy{UserAgent: cfg.UserAgent, Timeout: cfg.Timeout},
			&MetaStrategy{UserAgent: cfg.UserAgent, Timeout: cfg.Timeout},
		)
	}
	return NewWithStrategies(cfg,
		&RedditJSON{Fetcher: reddit},
		&HTMLStrategy{UserAgent: cfg.UserAgent, Timeout: cfg.Timeout},
		&MetaStrategy{UserAgent: cfg.UserAgent, Timeout: cfg.Timeout},
	)
}

// NewWithStrategies creates a Scraper over the given strategies. Their order
// is the initial preference.
func NewWithStrategies(cfg config.ScraperConfig, strategies ...Strategy) *Scraper {
	s := &Scraper{
		strategies:      strategies,
		minBodyLength:   cfg.MinBodyLength,
		maxAttempts:     cfg.MaxAttempts,
		initialInterval: initialInterval,
		maxInterval:     maxInterval,
		health:          make(map[string]*health, len(strategies)),
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = 3
	}
	for _, st := range strategies {
		s.health[st.Name()] = &health{}
	}
	return s
}

// Fetch extracts content from rawURL. Each applicable strategy gets a
// bounded number of retried attempts; permanent failures move on to the
// next strategy at once.
func (s *Scraper) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("scraper: invalid url %q", rawURL)
	}

	var errs []error
	for _, st := range s.ordered(u) {
		name := st.Name()
		res, err := s.retry(ctx, name, func() (*Result, error) {
			res, err := st.Fetch(ctx, u.String())
			if err != nil {
				return nil, err
			}
			return res, s.validate(res)
		})
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.record(name, err)
		if err == nil {
			res.Strategy = name
			if res.URL == "" {
				res.URL = u.String()
			}
			zap.S().Infow("scraper: fetched", "url", rawURL, "strategy", name, "body_len", len(res.Body))
			return res, nil
		}
		zap.S().Warnw("scraper: strategy failed", "url", rawURL, "strategy", name, "err", err)
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
	}

	if len(errs) == 0 {
		return nil, fmt.Errorf("scraper: no strategy applies to %s", rawURL)
	}
	return nil, fmt.Errorf("scraper: all strategies failed for %s: %w", rawURL, errors.Join(errs...))
}

// Stats returns per-strategy health in the current preference order.
func (s *Scraper) Stats() []StrategyStats {
	order := s.ordered(nil)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StrategyStats, 0, len(order))
	for _, st := range order {
		h := s.health[st.Name()]
		out = append(out, StrategyStats{
			Name:      st.Name(),
			Successes: h.successes,
			Failures:  h.failures,
			Rate:      h.rate(),
			LastError: h.lastError,
			LastUsed:  h.lastUsed,
		})
	}
	return out
}

func (s *Scraper) validate(r *Result) error {
	r.Title = strings.TrimSpace(r.Title)
	r.Body = strings.TrimSpace(r.Body)
	if r.Title == "" {
		return fmt.Errorf("%w: empty title", ErrValidation)
	}
	if len([]rune(r.Body)) < s.minBodyLength && r.ImageURL == "" {
		return fmt.Errorf("%w: body %d chars, need %d", ErrValidation, len([]rune(r.Body)), s.minBodyLength)
	}
	return nil
}

// ordered returns the applicable strategies, healthiest first. A nil u
// returns all strategies.
func (s *Scraper) ordered(u *url.URL) []Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Strategy, 0, len(s.strategies))
	for _, st := range s.strategies {
		if u == nil || st.Applies(u) {
			out = append(out, st)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return s.health[out[i].Name()].rate() > s.health[out[j].Name()].rate()
	})
	return out
}

func (s *Scraper) record(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.health[name]
	h.lastUsed = time.Now()
	if err != nil {
		h.failures++
		h.lastError = err.Error()
		return
	}
	h.successes++
}
