// Package sources fetches candidate posts from Reddit and Twitter/X.
package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/threadjuice/threadjuice/internal/ratelimit"
	"github.com/threadjuice/threadjuice/internal/scraper"
)

const (
	requestTimeout   = 20 * time.Second
	defaultUserAgent = "threadjuice/1.0 (content pipeline)"
	maxHeadline      = 120
)

// ErrNotConfigured is returned when a source lacks the credentials or
// endpoint an operation needs.
var ErrNotConfigured = errors.New("source not configured")

// StatusError is a non-2xx response from an upstream API.
type StatusError struct {
	Service    string
	Code       int
	URL        string
	RetryAfter time.Duration
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: %s: status %d: %s", e.Service, e.URL, e.Code, e.Body)
	}
	return fmt.Sprintf("%s: %s: status %d", e.Service, e.URL, e.Code)
}

// StatusCode returns the HTTP status.
func (e *StatusError) StatusCode() int { return e.Code }

// RetryAfterDelay returns the delay requested by the server, if any.
func (e *StatusError) RetryAfterDelay() time.Duration { return e.RetryAfter }

// client is the HTTP plumbing shared by the source clients.
type client struct {
	service   string
	http      *http.Client
	limiter   *ratelimit.Limiter
	userAgent string
}

// get reserves quota and performs a GET. The caller closes the body of the
// returned 2xx response.
func (c client) get(ctx context.Context, rawURL string, header http.Header) (*http.Response, error) {
	if err := c.limiter.Wait(ctx, c.service); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", c.service, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request: %w", c.service, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, &StatusError{
			Service:    c.service,
			Code:       resp.StatusCode,
			URL:        rawURL,
			RetryAfter: scraper.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			Body:       strings.TrimSpace(string(body)),
		}
	}
	return resp, nil
}

func (c client) getJSON(ctx context.Context, rawURL string, header http.Header, out any) error {
	resp, err := c.get(ctx, rawURL, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", c.service, err)
	}
	return nil
}

// userAgentTransport stamps every request, including OAuth token requests,
// with the configured User-Agent.
type userAgentTransport struct {
	userAgent string
	next      http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.next.RoundTrip(req)
}

// headline derives a post title from free text: its first line, cut at a
// word boundary.
func headline(text string) string {
	line := strings.TrimSpace(text)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if utf8.RuneCountInString(line) <= maxHeadline {
		return line
	}
	runes := []rune(line)
	cut := string(runes[:maxHeadline])
	if i := strings.LastIndexByte(cut, ' '); i > maxHeadline/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "…"
}
