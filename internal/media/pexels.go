package media

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/threadjuice/threadjuice/internal/ratelimit"
)

// DefaultPexelsURL is the Pexels API root.
const DefaultPexelsURL = "https://api.pexels.com"

// Pexels searches the Pexels photo and video libraries.
type Pexels struct {
	api
	apiKey string
}

// NewPexels creates a Pexels client. baseURL defaults to DefaultPexelsURL.
func NewPexels(apiKey, baseURL string, limiter *ratelimit.Limiter) *Pexels {
	if baseURL == "" {
		baseURL = DefaultPexelsURL
	}
	return &Pexels{api: newAPI("pexels", strings.TrimRight(baseURL, "/"), limiter), apiKey: apiKey}
}

type pexelsPhotos struct {
	Photos []struct {
		URL             string `json:"url"`
		Alt             string `json:"alt"`
		Photographer    string `json:"photographer"`
		PhotographerURL string `json:"photographer_url"`
		Src             struct {
			Original  string `json:"original"`
			Large     string `json:"large"`
			Landscape string `json:"landscape"`
		} `json:"src"`
	} `json:"photos"`
}

type pexelsVideos struct {
	Videos []struct {
		URL      string `json:"url"`
		Image    string `json:"image"`
		Duration int    `json:"duration"`
		User     struct {
			Name string `json:"name"`
		} `json:"user"`
		VideoFiles []struct {
			Link    string `json:"link"`
			Quality string `json:"quality"`
			Width   int    `json:"width"`
		} `json:"video_files"`
	} `json:"videos"`
}

func (p *Pexels) header() http.Header {
	h := http.Header{}
	h.Set("Authorization", p.apiKey)
	return h
}

// SearchPhotos returns up to n landscape photos for query.
func (p *Pexels) SearchPhotos(ctx context.Context, query string, n int) ([]Photo, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("per_page", strconv.Itoa(n))
	q.Set("orientation", "landscape")

	var resp pexelsPhotos
	if err := p.getJSON(ctx, p.baseURL+"/v1/search?"+q.Encode(), p.header(), &resp); err != nil {
		return nil, err
	}

	out := make([]Photo, 0, len(resp.Photos))
	for _, ph := range resp.Photos {
		src := firstNonEmpty(ph.Src.Landscape, ph.Src.Large, ph.Src.Original)
		if src == "" {
			continue
		}
		out = append(out, Photo{
			URL:             src,
			Alt:             ph.Alt,
			Photographer:    ph.Photographer,
			PhotographerURL: ph.PhotographerURL,
			PageURL:         ph.URL,
		})
	}
	return out, nil
}

// SearchVideos returns up to n clips for query, picking the widest HD file
// of each.
func (p *Pexels) SearchVideos(ctx context.Context, query string, n int) ([]Video, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("per_page", strconv.Itoa(n))

	var resp pexelsVideos
	if err := p.getJSON(ctx, p.baseURL+"/videos/search?"+q.Encode(), p.header(), &resp); err != nil {
		return nil, err
	}

	out := make([]Video, 0, len(resp.Videos))
	for _, v := range resp.Videos {
		best, width := "", -1
		for _, f := range v.VideoFiles {
			if f.Quality == "hd" && f.Width > width {
				best, width = f.Link, f.Width
			}
		}
		if best == "" && len(v.VideoFiles) > 0 {
			best = v.VideoFiles[0].Link
		}
		if best == "" {
			continue
		}
		out = append(out, Video{URL: best, Poster: v.Image, PageURL: v.URL, Author: v.User.Name, Duration: v.Duration})
	}
	return out, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
