// Package media looks up stock photos, reaction GIFs and videos and splices
// them into stories.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/threadjuice/threadjuice/internal/ratelimit"
)

const requestTimeout = 15 * time.Second

// Photo is a stock image with attribution.
type Photo struct {
	URL             string
	Alt             string
	Photographer    string
	PhotographerURL string
	PageURL         string
}

// Video is a stock clip.
type Video struct {
	URL      string
	Poster   string
	PageURL  string
	Author   string
	Duration int
}

// GIF is a reaction GIF.
type GIF struct {
	URL      string
	EmbedURL string
	Title    string
	Provider string
}

// api is the shared HTTP plumbing of the media clients.
type api struct {
	service    string
	baseURL    string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
}

func newAPI(service, baseURL string, limiter *ratelimit.Limiter) api {
	return api{
		service:    service,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		limiter:    limiter,
	}
}

// getJSON reserves quota, performs a GET and decodes the JSON response into
// out.
func (a api) getJSON(ctx context.Context, rawURL string, header http.Header, out any) error {
	if err := a.limiter.Wait(ctx, a.service); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", a.service, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request: %w", a.service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: status %d: %s", a.service, resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", a.service, err)
	}
	return nil
}
