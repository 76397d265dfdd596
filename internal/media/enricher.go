package media

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/threadjuice/threadjuice/internal/analysis"
	"github.com/threadjuice/threadjuice/internal/models"
)

// PhotoSearcher finds stock photos and clips.
type PhotoSearcher interface {
	SearchPhotos(ctx context.Context, query string, n int) ([]Photo, error)
	SearchVideos(ctx context.Context, query string, n int) ([]Video, error)
}

// GIFSearcher finds reaction GIFs.
type GIFSearcher interface {
	SearchGIFs(ctx context.Context, query string, n int) ([]GIF, error)
	Name() string
}

var reactionQueries = map[string]string{
	analysis.Anger:    "angry reaction",
	analysis.Joy:      "happy dance",
	analysis.Surprise: "shocked reaction",
	analysis.Sadness:  "sad reaction",
	analysis.Fear:     "scared reaction",
	analysis.Disgust:  "disgusted reaction",
}

const defaultReaction = "drama popcorn"

var (
	reURL       = regexp.MustCompile(`https?://[^\s)\]"'<>]+`)
	reYouTubeID = regexp.MustCompile(`^[A-Za-z0-9_-]{6,20}$`)
)

// Enricher adds images, GIFs and video embeds to stories. Every lookup is
// optional: failures are logged and the story keeps what it has.
type Enricher struct {
	photos   PhotoSearcher
	gifs     []GIFSearcher
	defaults map[string]string
}

// NewEnricher creates an Enricher. photos may be nil. gifs are tried in
// order. defaults maps a category (or "default") to a fallback image URL.
func NewEnricher(photos PhotoSearcher, gifs []GIFSearcher, defaults map[string]string) *Enricher {
	return &Enricher{photos: photos, gifs: gifs, defaults: defaults}
}

// Enrich fills the story's hero image, adds a reaction GIF after the first
// describe section and embeds videos linked from the post.
func (e *Enricher) Enrich(ctx context.Context, story *models.Story, post models.Post, res analysis.Result) {
	query := searchQuery(res, story.Category)

	var (
		photo *Photo
		clip  *Video
		gif   *GIF
	)
	hero := sourceImage(post)

	var g errgroup.Group
	if hero == "" && e.photos != nil {
		g.Go(func() error {
			photo, clip = e.findPhoto(ctx, query)
			return nil
		})
	}
	if len(e.gifs) > 0 && story.Content.FirstSection(models.SectionGIF) < 0 {
		g.Go(func() error {
			gif = e.findGIF(ctx, res.Dominant)
			return nil
		})
	}
	_ = g.Wait()

	img := models.Image{URL: hero}
	switch {
	case hero != "":
	case photo != nil:
		img = models.Image{URL: photo.URL, Alt: photo.Alt, Credit: photo.Photographer, CreditURL: photo.PhotographerURL}
	case clip != nil && clip.Poster != "":
		img = models.Image{URL: clip.Poster, Credit: clip.Author, CreditURL: clip.PageURL}
	default:
		img.URL = e.defaultImage(story.Category)
	}
	if img.URL != "" {
		setHero(story, img)
	}

	if gif != nil {
		at := story.Content.FirstSection(models.SectionDescribe) + 1
		if at == 0 {
			at = len(story.Content.Sections)
		}
		story.Content.Insert(at, models.Section{
			Type:  models.SectionGIF,
			Media: &models.Media{URL: gif.URL, EmbedURL: gif.EmbedURL, Provider: gif.Provider, Title: gif.Title},
		})
	}

	videos := VideoEmbeds(post)
	if len(videos) == 0 && clip != nil && photo == nil {
		videos = append(videos, models.Media{URL: clip.URL, Provider: "pexels", Title: clip.Author})
	}
	for _, v := range videos {
		at := story.Content.FirstSection(models.SectionDiscussion)
		if at < 0 {
			at = len(story.Content.Sections)
		}
		story.Content.Insert(at, models.Section{Type: models.SectionVideo, Media: &v})
	}

	zap.S().Debugw("media: story enriched",
		"slug", story.Slug,
		"image", story.ImageURL,
		"gif", gif != nil,
		"videos", len(videos),
	)
}

// findPhoto tries a stock photo, then a stock clip whose poster frame can
// stand in as the hero image.
func (e *Enricher) findPhoto(ctx context.Context, query string) (*Photo, *Video) {
	photos, err := e.photos.SearchPhotos(ctx, query, 5)
	if err != nil {
		zap.S().Warnw("media: photo search failed", "query", query, "err", err)
	} else if len(photos) > 0 {
		return &photos[0], nil
	}

	videos, err := e.photos.SearchVideos(ctx, query, 3)
	if err != nil {
		zap.S().Warnw("media: video search failed", "query", query, "err", err)
		return nil, nil
	}
	if len(videos) > 0 {
		return nil, &videos[0]
	}
	return nil, nil
}

func (e *Enricher) findGIF(ctx context.Context, emotion string) *GIF {
	query, ok := reactionQueries[emotion]
	if !ok {
		query = defaultReaction
	}
	for _, s := range e.gifs {
		gifs, err := s.SearchGIFs(ctx, query, 5)
		if err != nil {
			zap.S().Warnw("media: gif search failed", "provider", s.Name(), "query", query, "err", err)
			continue
		}
		if len(gifs) > 0 {
			return &gifs[0]
		}
	}
	return nil
}

func (e *Enricher) defaultImage(category string) string {
	if u, ok := e.defaults[category]; ok {
		return u
	}
	return e.defaults["default"]
}

// setHero sets the story image and fills image sections that lack one.
func setHero(story *models.Story, img models.Image) {
	if story.ImageURL == "" {
		story.ImageURL = img.URL
	}
	for i := range story.Content.Sections {
		s := &story.Content.Sections[i]
		if s.Type != models.SectionImage {
			continue
		}
		if s.Image == nil {
			s.Image = &models.Image{}
		}
		if s.Image.URL != "" {
			continue
		}
		s.Image.URL = img.URL
		if s.Image.Alt == "" {
			s.Image.Alt = img.Alt
		}
		s.Image.Credit = img.Credit
		s.Image.CreditURL = img.CreditURL
	}
}

func searchQuery(res analysis.Result, category string) string {
	kw := res.Keywords
	if len(kw) > 3 {
		kw = kw[:3]
	}
	if len(kw) == 0 {
		return category
	}
	return strings.Join(kw, " ")
}

// sourceImage returns the first image attached to the post.
func sourceImage(post models.Post) string {
	for _, u := range post.MediaURLs {
		if isImageURL(u) {
			return u
		}
	}
	return ""
}

func isImageURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".webp", ".gif"} {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	host := strings.ToLower(u.Host)
	return host == "i.redd.it" || host == "pbs.twimg.com" || host == "i.imgur.com"
}

// VideoEmbeds extracts YouTube, X and Reddit video links from a post, in
// order of appearance, without duplicates. The post's own permalink is never
// an embed: a tweet does not embed itself.
func VideoEmbeds(post models.Post) []models.Media {
	candidates := append([]string{post.URL}, post.MediaURLs...)
	candidates = append(candidates, reURL.FindAllString(post.Body, -1)...)

	seen := make(map[string]bool)
	if self, ok := videoEmbed(post.URL); ok && self.Provider == "x" {
		seen[self.URL] = true
	}
	var out []models.Media
	for _, raw := range candidates {
		m, ok := videoEmbed(raw)
		if !ok || seen[m.URL] {
			continue
		}
		seen[m.URL] = true
		out = append(out, m)
	}
	return out
}

func videoEmbed(raw string) (models.Media, bool) {
	u, err := url.Parse(strings.TrimRight(raw, ".,!?"))
	if err != nil || u.Host == "" {
		return models.Media{}, false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	host = strings.TrimPrefix(host, "m.")

	switch host {
	case "youtube.com":
		if id := u.Query().Get("v"); u.Path == "/watch" && reYouTubeID.MatchString(id) {
			return youtube(id), true
		}
		if rest, ok := strings.CutPrefix(u.Path, "/shorts/"); ok && reYouTubeID.MatchString(rest) {
			return youtube(rest), true
		}
	case "youtu.be":
		if id := strings.Trim(u.Path, "/"); reYouTubeID.MatchString(id) {
			return youtube(id), true
		}
	case "x.com", "twitter.com":
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) >= 3 && parts[1] == "status" {
			link := "https://x.com/" + parts[0] + "/status/" + parts[2]
			return models.Media{URL: link, EmbedURL: link, Provider: "x"}, true
		}
	case "v.redd.it":
		if id := strings.Trim(u.Path, "/"); id != "" {
			link := "https://v.redd.it/" + id
			return models.Media{URL: link, EmbedURL: link, Provider: "reddit"}, true
		}
	}
	return models.Media{}, false
}

func youtube(id string) models.Media {
	return models.Media{
		URL:      "https://www.youtube.com/watch?v=" + id,
		EmbedURL: "https://www.youtube.com/embed/" + id,
		Provider: "youtube",
	}
}
