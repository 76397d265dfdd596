package models

import (
	"strings"
	"time"
)

// Source platforms.
const (
	PlatformReddit    = "reddit"
	PlatformTwitter   = "twitter"
	PlatformWeb       = "web"
	PlatformSimulated = "simulated"
)

// Post is a social media post (Reddit submission or tweet) as fetched from
// its source, before any transformation.
type Post struct {
	Platform    string    `json:"platform"`
	ExternalID  string    `json:"external_id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Author      string    `json:"author"`
	Community   string    `json:"community,omitempty"`
	URL         string    `json:"url"`
	Score       int       `json:"score"`
	UpvoteRatio float64   `json:"upvote_ratio,omitempty"`
	NumComments int       `json:"num_comments"`
	Likes       int       `json:"likes,omitempty"`
	Retweets    int       `json:"retweets,omitempty"`
	Replies     int       `json:"replies,omitempty"`
	NSFW        bool      `json:"nsfw,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	MediaURLs   []string  `json:"media_urls,omitempty"`
	Comments    []Comment `json:"comments,omitempty"`
}

// Comment is a reply to a source post. Stories keep the best ones as seed
// comments.
type Comment struct {
	ExternalID string `json:"external_id,omitempty"`
	Author     string `json:"author"`
	Body       string `json:"body"`
	Score      int    `json:"score"`
}

// Text returns the title and body joined for analysis.
func (p Post) Text() string {
	return strings.TrimSpace(p.Title + "\n\n" + p.Body)
}

// Interactions returns the platform-neutral engagement count: upvotes and
// comments for Reddit, likes, retweets and replies for tweets.
func (p Post) Interactions() int {
	if p.Platform == PlatformTwitter {
		return p.Likes + p.Retweets + p.Replies
	}
	return p.Score + p.NumComments
}

// Discussion returns the number of replies regardless of platform.
func (p Post) Discussion() int {
	if p.Platform == PlatformTwitter {
		return p.Replies
	}
	return p.NumComments
}

// Approval returns the positive-signal count (upvotes or likes).
func (p Post) Approval() int {
	if p.Platform == PlatformTwitter {
		return p.Likes + p.Retweets
	}
	return p.Score
}
