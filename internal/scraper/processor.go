package scraper

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// trackingParams is the set of URL query parameters commonly used for tracking
// that should be stripped during canonicalization.
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"utm_id":       true,
	"fbclid":       true,
	"gclid":        true,
	"msclkid":      true,
	"twclid":       true,
	"ref":          true,
	"ref_source":   true,
	"share_id":     true,
	"context":      true,
	"s":            true,
	"t":            true,
	"_ga":          true,
}

// reHTMLTag matches HTML tags.
var reHTMLTag = regexp.MustCompile(`<[^>]*>`)

// reWhitespace matches sequences of whitespace (spaces, tabs, newlines).
var reWhitespace = regexp.MustCompile(`\s+`)

// reBlockEnd matches tags that end a block of text.
var reBlockEnd = regexp.MustCompile(`(?i)</(?:p|div|li|h[1-6]|tr|blockquote)>|<br\s*/?>`)

var entityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&#x27;", "'",
	"&apos;", "'",
	"&nbsp;", " ",
)

// CleanText strips HTML tags from the input and normalizes whitespace. Block
// elements become paragraph breaks.
func CleanText(html string) string {
	if html == "" {
		return ""
	}

	text := reBlockEnd.ReplaceAllString(html, "\n")
	text = reHTMLTag.ReplaceAllString(text, "")
	text = entityReplacer.Replace(text)

	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(reWhitespace.ReplaceAllString(line, " "))
		if trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return strings.Join(cleaned, "\n\n")
}

// CanonicalizeURL normalizes a URL by lowercasing the scheme and host,
// dropping "www." and "old."/"np." Reddit mirrors, removing tracking
// parameters and fragments, and trimming trailing slashes.
func CanonicalizeURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	if parsed.Scheme == "http" {
		parsed.Scheme = "https"
	}
	host := strings.ToLower(parsed.Host)
	for _, prefix := range []string{"www.", "old.", "np.", "m.", "mobile."} {
		host = strings.TrimPrefix(host, prefix)
	}
	if host == "twitter.com" {
		host = "x.com"
	}
	parsed.Host = host

	parsed.Fragment = ""
	parsed.RawFragment = ""

	if len(parsed.Path) > 1 {
		parsed.Path = strings.TrimRight(parsed.Path, "/")
	}

	query := parsed.Query()
	for key := range query {
		if trackingParams[strings.ToLower(key)] {
			query.Del(key)
		}
	}
	parsed.RawQuery = query.Encode()

	return parsed.String()
}

// HashContent returns the hex-encoded SHA-256 hash of the given content string.
func HashContent(content string) string {
	h := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", h)
}

// HashURL returns the hex-encoded SHA-256 hash of the canonicalized form of the
// given URL.
func HashURL(rawURL string) string {
	return HashContent(CanonicalizeURL(rawURL))
}

// CompressGzip compresses the given data using gzip.
func CompressGzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("gzip: create writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("gzip: write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip: close: %w", err)
	}
	return buf.Bytes(), nil
}

// parseDate tries the date formats pages commonly publish.
func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}

	formats := []string{
		time.RFC3339,
		time.RFC3339Nano,
		time.RFC1123Z,
		time.RFC1123,
		"2006-01-02T15:04:05Z",
		"2006-01-02T15:04:05",
		"2006-01-02",
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"January 2, 2006",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
