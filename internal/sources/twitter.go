package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/threadjuice/threadjuice/internal/config"
	"github.com/threadjuice/threadjuice/internal/models"
	"github.com/threadjuice/threadjuice/internal/ratelimit"
	"github.com/threadjuice/threadjuice/internal/scraper"
)

const twitterAPIURL = "https://api.twitter.com"

var reImgSrc = regexp.MustCompile(`<img[^>]+src=["']([^"']+)["']`)

// Twitter reads timelines and searches. Timelines use the v2 API when a
// bearer token is configured and a Nitter RSS mirror otherwise.
type Twitter struct {
	client
	bearer    string
	apiURL    string
	nitterURL string
}

// NewTwitter creates a Twitter client from cfg.
func NewTwitter(cfg config.TwitterConfig, limiter *ratelimit.Limiter) *Twitter {
	return newTwitter(cfg, limiter, twitterAPIURL)
}

func newTwitter(cfg config.TwitterConfig, limiter *ratelimit.Limiter, apiURL string) *Twitter {
	return &Twitter{
		client: client{
			service:   "twitter",
			http:      &http.Client{Timeout: requestTimeout},
			limiter:   limiter,
			userAgent: defaultUserAgent,
		},
		bearer:    cfg.BearerToken,
		apiURL:    strings.TrimRight(apiURL, "/"),
		nitterURL: strings.TrimRight(cfg.NitterURL, "/"),
	}
}

// Configured reports whether either the API or a Nitter mirror is usable.
func (t *Twitter) Configured() bool { return t.bearer != "" || t.nitterURL != "" }

type tweet struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	AuthorID      string `json:"author_id"`
	CreatedAt     string `json:"created_at"`
	PublicMetrics struct {
		RetweetCount int `json:"retweet_count"`
		ReplyCount   int `json:"reply_count"`
		LikeCount    int `json:"like_count"`
		QuoteCount   int `json:"quote_count"`
	} `json:"public_metrics"`
	PossiblySensitive bool `json:"possibly_sensitive"`
}

type twitterUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type tweetsResponse struct {
	Data     []tweet `json:"data"`
	Includes struct {
		Users []twitterUser `json:"users"`
	} `json:"includes"`
}

const tweetFields = "created_at,public_metrics,author_id,possibly_sensitive"

// FetchTimeline returns up to limit recent original tweets of account.
func (t *Twitter) FetchTimeline(ctx context.Context, account string, limit int) ([]models.Post, error) {
	account = strings.TrimPrefix(strings.TrimSpace(account), "@")
	switch {
	case t.bearer != "":
		return t.apiTimeline(ctx, account, limit)
	case t.nitterURL != "":
		return t.nitterTimeline(ctx, account, limit)
	default:
		return nil, fmt.Errorf("twitter fetch timeline: %w", ErrNotConfigured)
	}
}

// Search runs a v2 recent search. It needs a bearer token.
func (t *Twitter) Search(ctx context.Context, query string, limit int) ([]models.Post, error) {
	if t.bearer == "" {
		return nil, fmt.Errorf("twitter search: %w", ErrNotConfigured)
	}
	q := url.Values{}
	q.Set("query", query)
	q.Set("max_results", strconv.Itoa(clampResults(limit)))
	q.Set("tweet.fields", tweetFields)
	q.Set("expansions", "author_id")
	q.Set("user.fields", "username")

	var resp tweetsResponse
	if err := t.getJSON(ctx, t.apiURL+"/2/tweets/search/recent?"+q.Encode(), t.authHeader(), &resp); err != nil {
		return nil, fmt.Errorf("twitter search: %w", err)
	}

	users := make(map[string]string, len(resp.Includes.Users))
	for _, u := range resp.Includes.Users {
		users[u.ID] = u.Username
	}
	return tweetPosts(resp.Data, func(tw tweet) string { return users[tw.AuthorID] }, limit), nil
}

func (t *Twitter) authHeader() http.Header {
	return http.Header{"Authorization": []string{"Bearer " + t.bearer}}
}

func (t *Twitter) apiTimeline(ctx context.Context, account string, limit int) ([]models.Post, error) {
	var user struct {
		Data twitterUser `json:"data"`
	}
	if err := t.getJSON(ctx, t.apiURL+"/2/users/by/username/"+url.PathEscape(account), t.authHeader(), &user); err != nil {
		return nil, fmt.Errorf("twitter user lookup %s: %w", account, err)
	}
	if user.Data.ID == "" {
		return nil, fmt.Errorf("twitter user lookup %s: unknown account", account)
	}

	q := url.Values{}
	q.Set("max_results", strconv.Itoa(clampResults(limit)))
	q.Set("tweet.fields", tweetFields)
	q.Set("exclude", "retweets,replies")

	var resp tweetsResponse
	endpoint := fmt.Sprintf("%s/2/users/%s/tweets?%s", t.apiURL, url.PathEscape(user.Data.ID), q.Encode())
	if err := t.getJSON(ctx, endpoint, t.authHeader(), &resp); err != nil {
		return nil, fmt.Errorf("twitter timeline %s: %w", account, err)
	}
	return tweetPosts(resp.Data, func(tweet) string { return account }, limit), nil
}

func tweetPosts(tweets []tweet, author func(tweet) string, limit int) []models.Post {
	posts := make([]models.Post, 0, len(tweets))
	for _, tw := range tweets {
		if tw.PossiblySensitive || strings.TrimSpace(tw.Text) == "" {
			continue
		}
		name := author(tw)
		created, _ := time.Parse(time.RFC3339, tw.CreatedAt)
		posts = append(posts, models.Post{
			Platform:   models.PlatformTwitter,
			ExternalID: tw.ID,
			Title:      headline(tw.Text),
			Body:       strings.TrimSpace(tw.Text),
			Author:     name,
			Community:  name,
			URL:        fmt.Sprintf("https://x.com/%s/status/%s", name, tw.ID),
			Likes:      tw.PublicMetrics.LikeCount,
			Retweets:   tw.PublicMetrics.RetweetCount + tw.PublicMetrics.QuoteCount,
			Replies:    tw.PublicMetrics.ReplyCount,
			CreatedAt:  created.UTC(),
		})
		if limit > 0 && len(posts) == limit {
			break
		}
	}
	return posts
}

// clampResults keeps max_results inside the API's accepted 5..100 range.
func clampResults(limit int) int {
	switch {
	case limit < 5:
		return 5
	case limit > 100:
		return 100
	default:
		return limit
	}
}

func (t *Twitter) nitterTimeline(ctx context.Context, account string, limit int) ([]models.Post, error) {
	resp, err := t.get(ctx, fmt.Sprintf("%s/%s/rss", t.nitterURL, url.PathEscape(account)), nil)
	if err != nil {
		return nil, fmt.Errorf("twitter nitter feed %s: %w", account, err)
	}
	defer resp.Body.Close()

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("twitter nitter feed %s: parse: %w", account, err)
	}

	var posts []models.Post
	for _, item := range feed.Items {
		// Nitter marks retweets with an "RT by" title prefix.
		if strings.HasPrefix(item.Title, "RT by ") {
			continue
		}
		link := xLink(item.Link)
		body := scraper.CleanText(item.Description)
		if body == "" {
			body = strings.TrimSpace(item.Title)
		}
		if body == "" || link == "" {
			continue
		}

		p := models.Post{
			Platform:   models.PlatformTwitter,
			ExternalID: statusID(link),
			Title:      headline(body),
			Body:       body,
			Author:     account,
			Community:  account,
			URL:        link,
		}
		if item.Author != nil && item.Author.Name != "" {
			p.Author = strings.TrimPrefix(item.Author.Name, "@")
		}
		if item.PublishedParsed != nil {
			p.CreatedAt = item.PublishedParsed.UTC()
		}
		for _, m := range reImgSrc.FindAllStringSubmatch(item.Description, -1) {
			p.MediaURLs = append(p.MediaURLs, m[1])
		}
		posts = append(posts, p)
		if limit > 0 && len(posts) == limit {
			break
		}
	}
	return posts, nil
}

// xLink rewrites a Nitter status link to its canonical x.com form.
func xLink(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	u.Scheme = "https"
	u.Host = "x.com"
	u.Fragment = ""
	u.RawQuery = ""
	return u.String()
}

func statusID(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return scraper.HashURL(link)[:16]
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	return parts[len(parts)-1]
}
