package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/threadjuice/threadjuice/internal/config"
	"github.com/threadjuice/threadjuice/internal/models"
	"github.com/threadjuice/threadjuice/internal/ratelimit"
)

const (
	redditPublicURL = "https://www.reddit.com"
	redditOAuthURL  = "https://oauth.reddit.com"
	redditTokenURL  = "https://www.reddit.com/api/v1/access_token"

	// DefaultCommentLimit is how many top-level comments FetchPost loads.
	DefaultCommentLimit = 10
)

// Reddit reads subreddit listings and threads. With client credentials it
// uses app-only OAuth against oauth.reddit.com, otherwise the public JSON
// endpoints.
type Reddit struct {
	client
	baseURL string
	oauth   bool
}

// NewReddit creates a Reddit client from cfg.
func NewReddit(cfg config.RedditConfig, limiter *ratelimit.Limiter) *Reddit {
	return newReddit(cfg, limiter, redditPublicURL, redditOAuthURL, redditTokenURL)
}

func newReddit(cfg config.RedditConfig, limiter *ratelimit.Limiter, publicURL, oauthURL, tokenURL string) *Reddit {
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	httpClient := &http.Client{
		Timeout:   requestTimeout,
		Transport: &userAgentTransport{userAgent: ua, next: http.DefaultTransport},
	}

	r := &Reddit{
		client:  client{service: "reddit", http: httpClient, limiter: limiter, userAgent: ua},
		baseURL: strings.TrimRight(publicURL, "/"),
	}
	if cfg.ClientID != "" && cfg.ClientSecret != "" {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		oauthClient := cc.Client(ctx)
		oauthClient.Timeout = requestTimeout
		r.http = oauthClient
		r.baseURL = strings.TrimRight(oauthURL, "/")
		r.oauth = true
	}
	return r
}

// OAuth reports whether the client authenticates with app credentials.
func (r *Reddit) OAuth() bool { return r.oauth }

type redditListing struct {
	Data struct {
		Children []redditThing `json:"children"`
	} `json:"data"`
}

type redditThing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type redditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	Permalink   string  `json:"permalink"`
	URL         string  `json:"url"`
	IsSelf      bool    `json:"is_self"`
	Score       int     `json:"score"`
	UpvoteRatio float64 `json:"upvote_ratio"`
	NumComments int     `json:"num_comments"`
	Over18      bool    `json:"over_18"`
	Stickied    bool    `json:"stickied"`
	CreatedUTC  float64 `json:"created_utc"`
	Preview     struct {
		Images []struct {
			Source struct {
				URL string `json:"url"`
			} `json:"source"`
		} `json:"images"`
	} `json:"preview"`
}

type redditComment struct {
	ID       string `json:"id"`
	Author   string `json:"author"`
	Body     string `json:"body"`
	Score    int    `json:"score"`
	Stickied bool   `json:"stickied"`
}

// FetchPosts returns up to limit posts from a subreddit listing ("hot",
// "top", "rising" or "new"). Stickied, NSFW and empty posts are dropped.
// Comments are not loaded.
func (r *Reddit) FetchPosts(ctx context.Context, subreddit, sortBy string, limit int) ([]models.Post, error) {
	if sortBy == "" {
		sortBy = "hot"
	}
	if limit <= 0 {
		limit = 25
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("t", "day")
	q.Set("raw_json", "1")
	endpoint := fmt.Sprintf("%s/r/%s/%s.json?%s", r.baseURL, url.PathEscape(subreddit), url.PathEscape(sortBy), q.Encode())

	var listing redditListing
	if err := r.getJSON(ctx, endpoint, nil, &listing); err != nil {
		return nil, fmt.Errorf("reddit fetch posts r/%s: %w", subreddit, err)
	}

	posts := make([]models.Post, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		if child.Kind != "t3" {
			continue
		}
		var rp redditPost
		if err := json.Unmarshal(child.Data, &rp); err != nil {
			zap.S().Debugw("reddit: skip undecodable post", "subreddit", subreddit, "err", err)
			continue
		}
		if rp.Stickied || rp.Over18 {
			continue
		}
		if strings.TrimSpace(rp.Title) == "" && strings.TrimSpace(rp.Selftext) == "" {
			continue
		}
		posts = append(posts, rp.post())
		if len(posts) == limit {
			break
		}
	}
	return posts, nil
}

// FetchComments returns up to limit top-level comments of a thread, best
// first. Deleted and removed comments, stickied moderator notes and
// AutoModerator are dropped.
func (r *Reddit) FetchComments(ctx context.Context, subreddit, id string, limit int) ([]models.Comment, error) {
	if limit <= 0 {
		limit = DefaultCommentLimit
	}
	endpoint := fmt.Sprintf("%s/r/%s/comments/%s.json?%s", r.baseURL, url.PathEscape(subreddit), url.PathEscape(id), threadQuery(limit))

	var listings []redditListing
	if err := r.getJSON(ctx, endpoint, nil, &listings); err != nil {
		return nil, fmt.Errorf("reddit fetch comments %s: %w", id, err)
	}
	if len(listings) < 2 {
		return nil, nil
	}
	return decodeComments(listings[1], limit), nil
}

// FetchPost loads a thread and its top comments by permalink. Any Reddit
// host (www, old, np, mobile) is accepted.
func (r *Reddit) FetchPost(ctx context.Context, permalink string) (models.Post, error) {
	u, err := url.Parse(permalink)
	if err != nil || !strings.Contains(u.Path, "/comments/") {
		return models.Post{}, fmt.Errorf("reddit fetch post: not a thread permalink: %q", permalink)
	}
	path := strings.TrimSuffix(strings.TrimRight(u.Path, "/"), ".json")
	endpoint := fmt.Sprintf("%s%s.json?%s", r.baseURL, path, threadQuery(DefaultCommentLimit))

	var listings []redditListing
	if err := r.getJSON(ctx, endpoint, nil, &listings); err != nil {
		return models.Post{}, fmt.Errorf("reddit fetch post: %w", err)
	}
	if len(listings) == 0 || len(listings[0].Data.Children) == 0 {
		return models.Post{}, fmt.Errorf("reddit fetch post: empty thread %q", permalink)
	}

	var rp redditPost
	if err := json.Unmarshal(listings[0].Data.Children[0].Data, &rp); err != nil {
		return models.Post{}, fmt.Errorf("reddit fetch post: decode: %w", err)
	}
	post := rp.post()
	if len(listings) > 1 {
		post.Comments = decodeComments(listings[1], DefaultCommentLimit)
	}
	return post, nil
}

func threadQuery(limit int) string {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("depth", "1")
	q.Set("sort", "top")
	q.Set("raw_json", "1")
	return q.Encode()
}

func (rp redditPost) post() models.Post {
	p := models.Post{
		Platform:    models.PlatformReddit,
		ExternalID:  rp.ID,
		Title:       strings.TrimSpace(rp.Title),
		Body:        strings.TrimSpace(rp.Selftext),
		Author:      rp.Author,
		Community:   rp.Subreddit,
		URL:         "https://www.reddit.com" + rp.Permalink,
		Score:       rp.Score,
		UpvoteRatio: rp.UpvoteRatio,
		NumComments: rp.NumComments,
		NSFW:        rp.Over18,
		CreatedAt:   time.Unix(int64(rp.CreatedUTC), 0).UTC(),
	}
	if !rp.IsSelf && rp.URL != "" && !strings.Contains(rp.URL, rp.Permalink) {
		p.MediaURLs = append(p.MediaURLs, rp.URL)
	}
	for _, img := range rp.Preview.Images {
		if img.Source.URL != "" && img.Source.URL != rp.URL {
			p.MediaURLs = append(p.MediaURLs, img.Source.URL)
		}
	}
	return p
}

func decodeComments(listing redditListing, limit int) []models.Comment {
	var out []models.Comment
	for _, child := range listing.Data.Children {
		if child.Kind != "t1" {
			continue
		}
		var rc redditComment
		if err := json.Unmarshal(child.Data, &rc); err != nil {
			continue
		}
		body := strings.TrimSpace(rc.Body)
		if body == "" || body == "[deleted]" || body == "[removed]" || rc.Stickied || rc.Author == "AutoModerator" {
			continue
		}
		out = append(out, models.Comment{ExternalID: rc.ID, Author: rc.Author, Body: body, Score: rc.Score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
