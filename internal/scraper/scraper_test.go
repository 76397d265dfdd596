package scraper

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadjuice/threadjuice/internal/config"
	"github.com/threadjuice/threadjuice/internal/models"
)

const longBody = "This is a long enough body for validation to pass without an image."

type fakeStrategy struct {
	name    string
	applies bool
	calls   atomic.Int32
	fetch   func(n int) (*Result, error)
}

func (f *fakeStrategy) Name() string          { return f.name }
func (f *fakeStrategy) Applies(*url.URL) bool { return f.applies }
func (f *fakeStrategy) Fetch(context.Context, string) (*Result, error) {
	return f.fetch(int(f.calls.Add(1)))
}

func newTestScraper(strategies ...Strategy) *Scraper {
	s := NewWithStrategies(config.ScraperConfig{MaxAttempts: 3, MinBodyLength: 40}, strategies...)
	s.initialInterval = time.Millisecond
	s.maxInterval = 2 * time.Millisecond
	return s
}

func ok(title, body string) (*Result, error) {
	return &Result{Title: title, Body: body}, nil
}

func TestFetchRetriesRecoverableErrors(t *testing.T) {
	st := &fakeStrategy{name: "a", applies: true, fetch: func(n int) (*Result, error) {
		if n < 3 {
			return nil, &HTTPError{Code: http.StatusServiceUnavailable}
		}
		return ok("Title", longBody)
	}}
	s := newTestScraper(st)

	res, err := s.Fetch(context.Background(), "https://example.com/post")
	require.NoError(t, err)
	assert.Equal(t, "a", res.Strategy)
	assert.Equal(t, "https://example.com/post", res.URL)
	assert.Equal(t, int32(3), st.calls.Load())
}

func TestFetchBoundedAttempts(t *testing.T) {
	st := &fakeStrategy{name: "a", applies: true, fetch: func(int) (*Result, error) {
		return nil, &HTTPError{Code: http.StatusTooManyRequests}
	}}
	s := newTestScraper(st)

	_, err := s.Fetch(context.Background(), "https://example.com/post")
	require.Error(t, err)
	assert.Equal(t, int32(3), st.calls.Load())
	var he *HTTPError
	assert.True(t, errors.As(err, &he))
}

func TestFetchPermanentErrorMovesOn(t *testing.T) {
	first := &fakeStrategy{name: "first", applies: true, fetch: func(int) (*Result, error) {
		return nil, &HTTPError{Code: http.StatusNotFound}
	}}
	thin := &fakeStrategy{name: "thin", applies: true, fetch: func(int) (*Result, error) {
		return ok("Title", "too short")
	}}
	last := &fakeStrategy{name: "last", applies: true, fetch: func(int) (*Result, error) {
		return ok("Title", longBody)
	}}
	skipped := &fakeStrategy{name: "skipped", applies: false}
	s := newTestScraper(skipped, first, thin, last)

	res, err := s.Fetch(context.Background(), "https://example.com/post")
	require.NoError(t, err)
	assert.Equal(t, "last", res.Strategy)
	assert.Equal(t, int32(1), first.calls.Load())
	assert.Equal(t, int32(1), thin.calls.Load())
	assert.Equal(t, int32(0), skipped.calls.Load())
}

func TestValidationAllowsImageWithShortBody(t *testing.T) {
	s := newTestScraper()
	assert.NoError(t, s.validate(&Result{Title: "t", ImageURL: "https://i.redd.it/x.png"}))
	assert.ErrorIs(t, s.validate(&Result{Title: "t", Body: "short"}), ErrValidation)
	assert.ErrorIs(t, s.validate(&Result{Title: "  ", Body: longBody}), ErrValidation)
}

func TestStrategiesReorderByHealth(t *testing.T) {
	broken := &fakeStrategy{name: "broken", applies: true, fetch: func(int) (*Result, error) {
		return nil, errors.New("parse error")
	}}
	good := &fakeStrategy{name: "good", applies: true, fetch: func(int) (*Result, error) {
		return ok("Title", longBody)
	}}
	s := newTestScraper(broken, good)

	for i := 0; i < 3; i++ {
		_, err := s.Fetch(context.Background(), "https://example.com/x")
		require.NoError(t, err)
	}
	// Once "good" outranks "broken", broken is no longer tried.
	assert.Equal(t, int32(1), broken.calls.Load())

	stats := s.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, "good", stats[0].Name)
	assert.Equal(t, 3, stats[0].Successes)
	assert.Equal(t, 1, stats[1].Failures)
	assert.Contains(t, stats[1].LastError, "parse error")
}

func TestFetchInvalidURLAndCancel(t *testing.T) {
	s := newTestScraper(&fakeStrategy{name: "a", applies: true, fetch: func(int) (*Result, error) {
		return nil, &HTTPError{Code: 500}
	}})
	_, err := s.Fetch(context.Background(), "ftp://nope")
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Fetch(ctx, "https://example.com/x")
	assert.ErrorIs(t, err, context.Canceled)
}

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) StatusCode() int { return int(e) }

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(&HTTPError{Code: 429}))
	assert.True(t, Retryable(&HTTPError{Code: 502}))
	assert.False(t, Retryable(&HTTPError{Code: 403}))
	assert.True(t, Retryable(fmt.Errorf("wrapped: %w", statusErr(503))))
	assert.False(t, Retryable(statusErr(400)))
	assert.True(t, Retryable(context.DeadlineExceeded))
	assert.True(t, Retryable(&url.Error{Op: "Get", URL: "x", Err: &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}}))
	assert.True(t, Retryable(&url.Error{Op: "Get", URL: "x", Err: &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}}))
	assert.True(t, Retryable(&url.Error{Op: "Get", URL: "x", Err: io.ErrUnexpectedEOF}))
	assert.False(t, Retryable(&url.Error{Op: "Get", URL: "x", Err: errors.New("stopped after 10 redirects")}))
	assert.False(t, Retryable(&url.Error{Op: "Get", URL: "x", Err: &tls.CertificateVerificationError{Err: x509.UnknownAuthorityError{}}}))
	assert.False(t, Retryable(&url.Error{Op: "Get", URL: "x", Err: x509.HostnameError{Host: "example.com"}}))
	assert.False(t, Retryable(&url.Error{Op: "Get", URL: "x", Err: &net.OpError{Op: "dial", Net: "tcp", Err: &net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true}}}))
	assert.False(t, Retryable(ErrValidation))
	assert.False(t, Retryable(context.Canceled))
	assert.False(t, Retryable(errors.New("bad json")))
	assert.False(t, Retryable(nil))
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 5*time.Second, ParseRetryAfter("5", now))
	assert.Equal(t, maxRetryAfter, ParseRetryAfter("3600", now))
	assert.Equal(t, 10*time.Second, ParseRetryAfter(now.Add(10*time.Second).Format(http.TimeFormat), now))
	assert.Equal(t, time.Duration(0), ParseRetryAfter("", now))
	assert.Equal(t, time.Duration(0), ParseRetryAfter("soon", now))
}

func TestHonourRetryAfterOverridesOnce(t *testing.T) {
	h := &honourRetryAfter{BackOff: backoff.NewConstantBackOff(time.Second)}
	h.set(3 * time.Second)
	assert.Equal(t, 3*time.Second, h.NextBackOff())
	assert.Equal(t, time.Second, h.NextBackOff())
}

type fakeFetcher struct {
	calls atomic.Int32
	post  models.Post
}

func (f *fakeFetcher) FetchPost(context.Context, string) (models.Post, error) {
	if f.calls.Add(1) == 1 {
		return models.Post{}, statusErr(http.StatusBadGateway)
	}
	return f.post, nil
}

func TestRedditJSONStrategy(t *testing.T) {
	f := &fakeFetcher{post: models.Post{
		Platform:  models.PlatformReddit,
		Title:     "TIFU by replying all",
		Body:      "tiny",
		Community: "tifu",
		URL:       "https://www.reddit.com/r/tifu/comments/abc/my_post/",
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		MediaURLs: []string{"https://v.redd.it/vid", "https://preview.redd.it/x.jpg?width=640"},
		Comments:  []models.Comment{{Author: "c", Body: "legendary", Score: 90}},
	}}
	s := newTestScraper(&RedditJSON{Fetcher: f}, &fakeStrategy{name: "html", applies: true})

	res, err := s.Fetch(context.Background(), "https://old.reddit.com/r/tifu/comments/abc/my_post/")
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.calls.Load())
	assert.Equal(t, StrategyRedditJSON, res.Strategy)
	assert.Equal(t, "https://preview.redd.it/x.jpg?width=640", res.ImageURL)
	require.Len(t, res.Comments, 1)

	post := res.Post()
	assert.Equal(t, models.PlatformReddit, post.Platform)
	assert.Equal(t, "tifu", post.Community)
	assert.Equal(t, []string{"https://preview.redd.it/x.jpg?width=640"}, post.MediaURLs)
	assert.Len(t, post.ExternalID, 16)

	assert.False(t, (&RedditJSON{}).Applies(mustURL(t, "https://example.com/r/a/comments/b")))
	assert.True(t, (&RedditJSON{AnyHost: true}).Applies(mustURL(t, "https://example.com/r/a/comments/b")))
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

const articleHTML = `<!doctype html><html><head>
<title>Site | Neighbor drama</title>
<meta property="og:title" content="Share title">
<meta property="og:description" content="A short description from the share card that is long enough.">
<meta property="og:image" content="/img/hero.jpg">
<meta name="author" content="Jane Writer">
<meta property="article:published_time" content="2026-02-03T04:05:06Z">
</head><body>
<h1>My neighbor painted my fence pink</h1>
<article><p>It started on a Tuesday when I came home from work.</p><p>The fence was bright pink and there was a note.</p></article>
<footer><p>Copyright</p></footer>
</body></html>`

func TestHTMLAndMetaStrategies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, articleHTML)
	}))
	defer srv.Close()

	html := &HTMLStrategy{UserAgent: "tj-test", Timeout: 5 * time.Second}
	res, err := html.Fetch(context.Background(), srv.URL+"/story")
	require.NoError(t, err)
	assert.Equal(t, "My neighbor painted my fence pink", res.Title)
	assert.Equal(t, "It started on a Tuesday when I came home from work.\n\nThe fence was bright pink and there was a note.", res.Body)
	assert.Equal(t, srv.URL+"/img/hero.jpg", res.ImageURL)
	assert.Equal(t, "Jane Writer", res.Author)
	assert.Equal(t, time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC), res.PublishedAt)

	meta := &MetaStrategy{UserAgent: "tj-test", Timeout: 5 * time.Second}
	res, err = meta.Fetch(context.Background(), srv.URL+"/story")
	require.NoError(t, err)
	assert.Equal(t, "Share title", res.Title)
	assert.Equal(t, "A short description from the share card that is long enough.", res.Body)
	assert.Equal(t, "/img/hero.jpg", res.ImageURL)
}

func TestNewFetchesBackToBackWithoutPause(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, articleHTML)
	}))
	defer srv.Close()

	s := New(config.ScraperConfig{UserAgent: "tj-test", Timeout: 5 * time.Second, MaxAttempts: 1, MinBodyLength: 10}, nil)

	start := time.Now()
	for i := range 3 {
		res, err := s.Fetch(context.Background(), fmt.Sprintf("%s/story/%d", srv.URL, i))
		require.NoError(t, err)
		assert.Equal(t, StrategyHTML, res.Strategy)
	}
	assert.Less(t, time.Since(start), time.Second)
}

func TestHTMLStrategyStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := (&HTMLStrategy{UserAgent: "tj-test", Timeout: 5 * time.Second}).Fetch(context.Background(), srv.URL)
	var he *HTTPError
	require.True(t, errors.As(err, &he), "got %v", err)
	assert.Equal(t, http.StatusTooManyRequests, he.Code)
	assert.Equal(t, 2*time.Second, he.RetryAfter)
	assert.True(t, Retryable(err))
}

func TestIsRedditURL(t *testing.T) {
	for raw, want := range map[string]bool{
		"https://www.reddit.com/r/a/comments/x/y/": true,
		"https://old.reddit.com/r/a/comments/x/":   true,
		"https://reddit.com/r/a/":                  false,
		"https://notreddit.com/r/a/comments/x/":    false,
	} {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, want, IsRedditURL(u), raw)
	}
}

func TestCanonicalizeURL(t *testing.T) {
	assert.Equal(t,
		"https://reddit.com/r/tifu/comments/abc/x?sort=top",
		CanonicalizeURL("http://www.Reddit.com/r/tifu/comments/abc/x/?utm_source=share&sort=top#c1"))
	assert.Equal(t, "https://x.com/a/status/1", CanonicalizeURL("https://mobile.twitter.com/a/status/1?s=20&t=abc"))
	assert.Equal(t, HashURL("https://www.reddit.com/r/a/comments/b/"), HashURL("https://reddit.com/r/a/comments/b"))
	assert.Equal(t, "", CanonicalizeURL("  "))
}

func TestCleanText(t *testing.T) {
	got := CleanText("<div><P>Hello &amp; welcome</P><p>  second   line<br/>third</p></div>")
	assert.Equal(t, "Hello & welcome\n\nsecond line\n\nthird", got)
	assert.Equal(t, "", CleanText(""))
}
