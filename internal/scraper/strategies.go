package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/threadjuice/threadjuice/internal/models"
)

// Strategy names.
const (
	StrategyRedditJSON = "reddit-json"
	StrategyHTML       = "html"
	StrategyMeta       = "meta"
)

// IsRedditURL reports whether u points at a Reddit thread.
func IsRedditURL(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	return (host == "reddit.com" || strings.HasSuffix(host, ".reddit.com")) && strings.Contains(u.Path, "/comments/")
}

// PostFetcher loads a Reddit thread by permalink.
type PostFetcher interface {
	FetchPost(ctx context.Context, permalink string) (models.Post, error)
}

// RedditJSON reads a thread through Reddit's JSON view of the permalink.
type RedditJSON struct {
	Fetcher PostFetcher
	// AnyHost lets the strategy handle any URL with a thread path, for
	// mirrors and tests.
	AnyHost bool
}

// Name implements Strategy.
func (r *RedditJSON) Name() string { return StrategyRedditJSON }

// Applies implements Strategy.
func (r *RedditJSON) Applies(u *url.URL) bool {
	if r.AnyHost {
		return strings.Contains(u.Path, "/comments/")
	}
	return IsRedditURL(u)
}

// Fetch implements Strategy.
func (r *RedditJSON) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	p, err := r.Fetcher.FetchPost(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	res := &Result{
		URL:         p.URL,
		Title:       p.Title,
		Body:        p.Body,
		Author:      p.Author,
		Community:   p.Community,
		Score:       p.Score,
		NumComments: p.NumComments,
		NSFW:        p.NSFW,
		PublishedAt: p.CreatedAt,
		Comments:    p.Comments,
	}
	for _, m := range p.MediaURLs {
		if isImageLink(m) {
			res.ImageURL = m
			break
		}
	}
	return res, nil
}

func isImageLink(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	lower := strings.ToLower(u.Path)
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".gif", ".webp"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// HTMLStrategy scrapes article markup with colly: headline, paragraphs,
// lead image and publication date.
type HTMLStrategy struct {
	UserAgent string
	Timeout   time.Duration
}

// Name implements Strategy.
func (h *HTMLStrategy) Name() string { return StrategyHTML }

// Applies implements Strategy.
func (h *HTMLStrategy) Applies(*url.URL) bool { return true }

// Fetch implements Strategy.
func (h *HTMLStrategy) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	var (
		mu         sync.Mutex
		res        = Result{URL: rawURL}
		articleP   []string
		anyP       []string
		h1, ogDesc string
	)

	err := visit(ctx, rawURL, h.UserAgent, h.Timeout, func(c *colly.Collector) {
		c.OnHTML("h1", func(e *colly.HTMLElement) {
			mu.Lock()
			if h1 == "" {
				h1 = strings.TrimSpace(e.Text)
			}
			mu.Unlock()
		})
		c.OnHTML(`meta[property="og:title"]`, func(e *colly.HTMLElement) {
			mu.Lock()
			if res.Title == "" {
				res.Title = strings.TrimSpace(e.Attr("content"))
			}
			mu.Unlock()
		})
		c.OnHTML(`meta[property="og:description"]`, func(e *colly.HTMLElement) {
			mu.Lock()
			ogDesc = strings.TrimSpace(e.Attr("content"))
			mu.Unlock()
		})
		c.OnHTML("article p, main p", func(e *colly.HTMLElement) {
			if text := strings.TrimSpace(e.Text); text != "" {
				mu.Lock()
				articleP = append(articleP, text)
				mu.Unlock()
			}
		})
		c.OnHTML("p", func(e *colly.HTMLElement) {
			if text := strings.TrimSpace(e.Text); text != "" {
				mu.Lock()
				anyP = append(anyP, text)
				mu.Unlock()
			}
		})
		c.OnHTML(`meta[property="og:image"], meta[name="twitter:image"]`, func(e *colly.HTMLElement) {
			mu.Lock()
			if res.ImageURL == "" {
				res.ImageURL = e.Request.AbsoluteURL(strings.TrimSpace(e.Attr("content")))
			}
			mu.Unlock()
		})
		c.OnHTML(`meta[name="author"]`, func(e *colly.HTMLElement) {
			mu.Lock()
			res.Author = strings.TrimSpace(e.Attr("content"))
			mu.Unlock()
		})
		c.OnHTML(`time[datetime], meta[property="article:published_time"]`, func(e *colly.HTMLElement) {
			mu.Lock()
			if res.PublishedAt.IsZero() {
				res.PublishedAt = parseDate(firstNonEmpty(e.Attr("datetime"), e.Attr("content")))
			}
			mu.Unlock()
		})
		c.OnHTML("title", func(e *colly.HTMLElement) {
			mu.Lock()
			if h1 == "" && res.Title == "" {
				h1 = strings.TrimSpace(e.Text)
			}
			mu.Unlock()
		})
	})
	if err != nil {
		return nil, err
	}

	// The page's own headline beats the share title.
	if h1 != "" {
		res.Title = h1
	}
	paragraphs := articleP
	if len(paragraphs) == 0 {
		paragraphs = anyP
	}
	res.Body = strings.Join(paragraphs, "\n\n")
	if res.Body == "" {
		res.Body = ogDesc
	}
	return &res, nil
}

// MetaStrategy reads only the Open Graph and Twitter card tags. It is the
// last resort for pages whose markup the html strategy cannot parse.
type MetaStrategy struct {
	UserAgent string
	Timeout   time.Duration
}

// Name implements Strategy.
func (m *MetaStrategy) Name() string { return StrategyMeta }

// Applies implements Strategy.
func (m *MetaStrategy) Applies(*url.URL) bool { return true }

// Fetch implements Strategy.
func (m *MetaStrategy) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	var (
		mu   sync.Mutex
		tags = make(map[string]string)
	)
	err := visit(ctx, rawURL, m.UserAgent, m.Timeout, func(c *colly.Collector) {
		c.OnHTML("meta", func(e *colly.HTMLElement) {
			key := strings.ToLower(firstNonEmpty(e.Attr("property"), e.Attr("name")))
			if key == "" {
				return
			}
			mu.Lock()
			if _, ok := tags[key]; !ok {
				tags[key] = strings.TrimSpace(e.Attr("content"))
			}
			mu.Unlock()
		})
		c.OnHTML("title", func(e *colly.HTMLElement) {
			mu.Lock()
			tags["html:title"] = strings.TrimSpace(e.Text)
			mu.Unlock()
		})
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		URL:         rawURL,
		Title:       firstNonEmpty(tags["og:title"], tags["twitter:title"], tags["html:title"]),
		Body:        firstNonEmpty(tags["og:description"], tags["twitter:description"], tags["description"]),
		ImageURL:    firstNonEmpty(tags["og:image"], tags["twitter:image"]),
		Author:      tags["author"],
		PublishedAt: parseDate(tags["article:published_time"]),
	}, nil
}

// visit runs a single-page colly crawl. Each call gets its own collector so
// no state leaks between fetches.
func visit(ctx context.Context, rawURL, userAgent string, timeout time.Duration, register func(c *colly.Collector)) error {
	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.AllowURLRevisit(),
		colly.MaxDepth(1),
	)
	if timeout > 0 {
		c.SetRequestTimeout(timeout)
	}
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	})
	register(c)

	var (
		mu     sync.Mutex
		scrErr error
	)
	c.OnError(func(r *colly.Response, err error) {
		mu.Lock()
		defer mu.Unlock()
		if r != nil && r.StatusCode >= 300 {
			var retryAfter time.Duration
			if r.Headers != nil {
				retryAfter = ParseRetryAfter(r.Headers.Get("Retry-After"), time.Now())
			}
			scrErr = &HTTPError{Code: r.StatusCode, URL: rawURL, RetryAfter: retryAfter}
			return
		}
		scrErr = fmt.Errorf("fetch %s: %w", rawURL, err)
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := c.Visit(rawURL); err != nil {
			mu.Lock()
			if scrErr == nil {
				scrErr = fmt.Errorf("visit %s: %w", rawURL, err)
			}
			mu.Unlock()
		}
		c.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}

	mu.Lock()
	defer mu.Unlock()
	return scrErr
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
