package media

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/threadjuice/threadjuice/internal/ratelimit"
)

// Default API roots.
const (
	DefaultKlipyURL = "https://api.klipy.com"
	DefaultGiphyURL = "https://api.giphy.com"
)

// Klipy searches the Klipy GIF library.
type Klipy struct {
	api
	apiKey string
}

// NewKlipy creates a Klipy client. baseURL defaults to DefaultKlipyURL.
func NewKlipy(apiKey, baseURL string, limiter *ratelimit.Limiter) *Klipy {
	if baseURL == "" {
		baseURL = DefaultKlipyURL
	}
	return &Klipy{api: newAPI("klipy", strings.TrimRight(baseURL, "/"), limiter), apiKey: apiKey}
}

type klipyRendition struct {
	GIF struct {
		URL string `json:"url"`
	} `json:"gif"`
}

type klipyResponse struct {
	Result bool `json:"result"`
	Data   struct {
		Data []struct {
			Slug  string `json:"slug"`
			Title string `json:"title"`
			File  struct {
				HD klipyRendition `json:"hd"`
				MD klipyRendition `json:"md"`
				SM klipyRendition `json:"sm"`
			} `json:"file"`
		} `json:"data"`
	} `json:"data"`
}

// Name returns the provider name.
func (k *Klipy) Name() string { return "klipy" }

// SearchGIFs returns up to n GIFs for query.
func (k *Klipy) SearchGIFs(ctx context.Context, query string, n int) ([]GIF, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("per_page", strconv.Itoa(n))
	q.Set("content_filter", "medium")

	var resp klipyResponse
	endpoint := k.baseURL + "/api/v1/" + url.PathEscape(k.apiKey) + "/gifs/search?" + q.Encode()
	if err := k.getJSON(ctx, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	out := make([]GIF, 0, len(resp.Data.Data))
	for _, g := range resp.Data.Data {
		src := firstNonEmpty(g.File.MD.GIF.URL, g.File.HD.GIF.URL, g.File.SM.GIF.URL)
		if src == "" {
			continue
		}
		out = append(out, GIF{URL: src, Title: g.Title, Provider: "klipy"})
	}
	return out, nil
}

// Giphy searches the Giphy GIF library.
type Giphy struct {
	api
	apiKey string
}

// NewGiphy creates a Giphy client. baseURL defaults to DefaultGiphyURL.
func NewGiphy(apiKey, baseURL string, limiter *ratelimit.Limiter) *Giphy {
	if baseURL == "" {
		baseURL = DefaultGiphyURL
	}
	return &Giphy{api: newAPI("giphy", strings.TrimRight(baseURL, "/"), limiter), apiKey: apiKey}
}

type giphyResponse struct {
	Data []struct {
		Title    string `json:"title"`
		EmbedURL string `json:"embed_url"`
		Images   struct {
			Original struct {
				URL string `json:"url"`
			} `json:"original"`
			Downsized struct {
				URL string `json:"url"`
			} `json:"downsized"`
		} `json:"images"`
	} `json:"data"`
}

// Name returns the provider name.
func (g *Giphy) Name() string { return "giphy" }

// SearchGIFs returns up to n GIFs for query.
func (g *Giphy) SearchGIFs(ctx context.Context, query string, n int) ([]GIF, error) {
	q := url.Values{}
	q.Set("api_key", g.apiKey)
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(n))
	q.Set("rating", "pg-13")

	var resp giphyResponse
	if err := g.getJSON(ctx, g.baseURL+"/v1/gifs/search?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	out := make([]GIF, 0, len(resp.Data))
	for _, d := range resp.Data {
		src := firstNonEmpty(d.Images.Downsized.URL, d.Images.Original.URL)
		if src == "" {
			continue
		}
		out = append(out, GIF{URL: src, EmbedURL: d.EmbedURL, Title: d.Title, Provider: "giphy"})
	}
	return out, nil
}
