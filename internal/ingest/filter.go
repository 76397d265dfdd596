package ingest

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/threadjuice/threadjuice/internal/models"
)

// unsuitable returns why a collected post must not become a story, or ""
// when it may. Nitter items carry no NSFW flag, so text patterns stand in
// for the platform marker there.
func unsuitable(post models.Post) string {
	if isListingURL(post.URL) {
		return "not a post"
	}
	text := strings.ToLower(post.Title + " " + post.Body + " " + post.URL)
	if reNSFW.MatchString(text) {
		return "nsfw"
	}
	for _, pat := range spamPatterns {
		if strings.Contains(text, pat) {
			return "spam"
		}
	}
	return ""
}

// redditPostRe matches actual Reddit post URLs: /r/sub/comments/id/...
var redditPostRe = regexp.MustCompile(`/r/[^/]+/comments/`)

// isListingURL is true for Reddit listings and site front pages.
func isListingURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}
	if strings.HasSuffix(strings.ToLower(u.Host), "reddit.com") {
		return !redditPostRe.MatchString(strings.ToLower(u.Path))
	}
	return strings.Trim(u.Path, "/") == ""
}

var reNSFW = regexp.MustCompile(`\b(?:` + strings.Join([]string{
	"nsfw", "porn", "xxx", "nudes?", "onlyfans?", "fansly", "chaturbate",
	"manyvids", "gonewild", "rule34", "hentai", "milf", "fetish", "leaked nudes",
}, "|") + `)\b`)

// spamPatterns catch promotions and engagement bait.
var spamPatterns = []string{
	"free v-bucks", "free robux", "crypto pump", "bitcoin millionaire",
	"weight loss secret", "diet pill", "dm me for", "link in bio",
	"giveaway", "promo code",
}
