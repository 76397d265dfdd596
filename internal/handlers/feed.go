package handlers

import (
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/feeds"
	"go.uber.org/zap"

	"github.com/threadjuice/threadjuice/internal/models"
)

const feedSize = 50

// FeedHandler serves the public RSS feed of the latest stories.
type FeedHandler struct {
	Stories StoryReader
	// BaseURL is the public site URL story links are built from. When empty
	// it is derived from the request.
	BaseURL string
}

// ServeFeed handles GET /feed.xml.
func (h *FeedHandler) ServeFeed(w http.ResponseWriter, r *http.Request) {
	stories, err := h.Stories.ListPublished(r.Context(), models.ListOptions{
		Category: r.URL.Query().Get("category"),
		Limit:    feedSize,
	})
	if err != nil {
		zap.S().Errorw("feed: list stories", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	// HTTP caching: the newest story's CreatedAt is the Last-Modified.
	if len(stories) > 0 {
		lastMod := stories[0].CreatedAt.UTC()
		w.Header().Set("Last-Modified", lastMod.Format(http.TimeFormat))
		etag := fmt.Sprintf(`"%x-%d"`, lastMod.Unix(), len(stories))
		w.Header().Set("ETag", etag)

		if ifNone := r.Header.Get("If-None-Match"); ifNone != "" && strings.Contains(ifNone, etag) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		if ifMod := r.Header.Get("If-Modified-Since"); ifMod != "" {
			if t, err := http.ParseTime(ifMod); err == nil && !lastMod.After(t) {
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}
	}
	w.Header().Set("Cache-Control", "public, max-age=900")

	base := h.baseURL(r)
	feed := &feeds.Feed{
		Title:       "ThreadJuice",
		Link:        &feeds.Link{Href: base},
		Description: "The internet's juiciest threads, retold.",
		Author:      &feeds.Author{Name: "ThreadJuice"},
		Created:     time.Now().UTC(),
	}
	if len(stories) > 0 {
		feed.Updated = stories[0].CreatedAt.UTC()
	}

	for _, s := range stories {
		link := fmt.Sprintf("%s/blog/%s", base, s.Slug)
		item := &feeds.Item{
			Title:       s.Title,
			Link:        &feeds.Link{Href: link},
			Description: s.Excerpt,
			Author:      &feeds.Author{Name: s.Persona.Name},
			Id:          link,
			Created:     s.CreatedAt.UTC(),
		}
		if s.ImageURL != "" {
			item.Content = fmt.Sprintf(`<p><img src="%s" alt=""/></p><p>%s</p>`, html.EscapeString(s.ImageURL), html.EscapeString(s.Excerpt))
		}
		feed.Items = append(feed.Items, item)
	}

	rss, err := feed.ToRss()
	if err != nil {
		zap.S().Errorw("feed: render", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(rss)) //nolint:errcheck
}

func (h *FeedHandler) baseURL(r *http.Request) string {
	if h.BaseURL != "" {
		return strings.TrimRight(h.BaseURL, "/")
	}
	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s", scheme, r.Host)
}
