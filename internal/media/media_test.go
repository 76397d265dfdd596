package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadjuice/threadjuice/internal/analysis"
	"github.com/threadjuice/threadjuice/internal/config"
	"github.com/threadjuice/threadjuice/internal/models"
	"github.com/threadjuice/threadjuice/internal/ratelimit"
)

func TestPexelsSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "px-key", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/v1/search":
			assert.Equal(t, "angry boss", r.URL.Query().Get("query"))
			assert.Equal(t, "landscape", r.URL.Query().Get("orientation"))
			fmt.Fprint(w, `{"photos":[
				{"url":"https://pexels.com/p/1","alt":"office","photographer":"Ann","photographer_url":"https://pexels.com/@ann","src":{"original":"o.jpg","landscape":"l.jpg"}},
				{"url":"https://pexels.com/p/2","src":{}}
			]}`)
		case "/videos/search":
			fmt.Fprint(w, `{"videos":[{"url":"https://pexels.com/v/1","image":"poster.jpg","duration":12,"user":{"name":"Bo"},
				"video_files":[{"link":"sd.mp4","quality":"sd","width":640},{"link":"hd1.mp4","quality":"hd","width":1280},{"link":"hd2.mp4","quality":"hd","width":1920}]}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewPexels("px-key", srv.URL, nil)
	photos, err := p.SearchPhotos(context.Background(), "angry boss", 3)
	require.NoError(t, err)
	require.Len(t, photos, 1)
	assert.Equal(t, Photo{URL: "l.jpg", Alt: "office", Photographer: "Ann", PhotographerURL: "https://pexels.com/@ann", PageURL: "https://pexels.com/p/1"}, photos[0])

	videos, err := p.SearchVideos(context.Background(), "angry boss", 3)
	require.NoError(t, err)
	require.Len(t, videos, 1)
	assert.Equal(t, "hd2.mp4", videos[0].URL)
	assert.Equal(t, "poster.jpg", videos[0].Poster)
}

func TestGIFClients(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/kl-key/gifs/search":
			assert.Equal(t, "shocked reaction", r.URL.Query().Get("q"))
			fmt.Fprint(w, `{"result":true,"data":{"data":[{"slug":"wow","title":"Wow","file":{"hd":{"gif":{"url":"hd.gif"}},"md":{"gif":{"url":"md.gif"}}}}]}}`)
		case "/v1/gifs/search":
			assert.Equal(t, "gp-key", r.URL.Query().Get("api_key"))
			fmt.Fprint(w, `{"data":[{"title":"Omg","embed_url":"https://giphy.com/embed/1","images":{"original":{"url":"orig.gif"},"downsized":{"url":"small.gif"}}}]}`)
		}
	}))
	defer srv.Close()

	k, err := NewKlipy("kl-key", srv.URL, nil).SearchGIFs(context.Background(), "shocked reaction", 2)
	require.NoError(t, err)
	assert.Equal(t, []GIF{{URL: "md.gif", Title: "Wow", Provider: "klipy"}}, k)

	g, err := NewGiphy("gp-key", srv.URL, nil).SearchGIFs(context.Background(), "x", 2)
	require.NoError(t, err)
	assert.Equal(t, []GIF{{URL: "small.gif", EmbedURL: "https://giphy.com/embed/1", Title: "Omg", Provider: "giphy"}}, g)
}

func TestClientErrorsAndQuota(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewGiphy("k", srv.URL, nil).SearchGIFs(context.Background(), "x", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")

	limiter := ratelimit.New(ratelimit.NewMemoryCounter(), map[string]config.Quota{"pexels": {Daily: 1}})
	p := NewPexels("k", srv.URL, limiter)
	_, _ = p.SearchPhotos(context.Background(), "x", 1)
	_, err = p.SearchPhotos(context.Background(), "x", 1)
	assert.ErrorIs(t, err, ratelimit.ErrQuotaExceeded)
}

type fakePhotos struct {
	photos []Photo
	videos []Video
	err    error
}

func (f *fakePhotos) SearchPhotos(context.Context, string, int) ([]Photo, error) {
	return f.photos, f.err
}

func (f *fakePhotos) SearchVideos(context.Context, string, int) ([]Video, error) {
	return f.videos, f.err
}

type fakeGIFs struct {
	name string
	gifs []GIF
	err  error
	q    string
}

func (f *fakeGIFs) SearchGIFs(_ context.Context, q string, _ int) ([]GIF, error) {
	f.q = q
	return f.gifs, f.err
}

func (f *fakeGIFs) Name() string { return f.name }

func baseStory() *models.Story {
	return &models.Story{
		Slug:     "s",
		Category: analysis.CategoryWorkplace,
		Content: models.Content{Sections: []models.Section{
			{Type: "image", Image: &models.Image{Alt: "hero"}},
			{Type: "describe-1", Content: "a"},
			{Type: "describe-2", Content: "b"},
			{Type: "discussion", Content: "c"},
			{Type: "outro", Content: "d"},
		}},
	}
}

func sectionTypes(s *models.Story) []string {
	var out []string
	for _, sec := range s.Content.Sections {
		out = append(out, sec.Type)
	}
	return out
}

func TestEnrichFullPath(t *testing.T) {
	photos := &fakePhotos{photos: []Photo{{URL: "p.jpg", Photographer: "Ann", PhotographerURL: "https://ann"}}}
	klipy := &fakeGIFs{name: "klipy", err: errors.New("down")}
	giphy := &fakeGIFs{name: "giphy", gifs: []GIF{{URL: "g.gif", Provider: "giphy"}}}
	e := NewEnricher(photos, []GIFSearcher{klipy, giphy}, nil)

	story := baseStory()
	post := models.Post{Body: "Watch https://youtu.be/dQw4w9WgXcQ and https://x.com/someone/status/123?s=20 again https://youtu.be/dQw4w9WgXcQ."}
	e.Enrich(context.Background(), story, post, analysis.Result{Dominant: analysis.Anger, Keywords: []string{"boss", "office", "fired", "extra"}})

	assert.Equal(t, "p.jpg", story.ImageURL)
	assert.Equal(t, "p.jpg", story.Content.Sections[0].Image.URL)
	assert.Equal(t, "hero", story.Content.Sections[0].Image.Alt)
	assert.Equal(t, "Ann", story.Content.Sections[0].Image.Credit)
	assert.Equal(t, "angry reaction", klipy.q)
	assert.Equal(t, []string{"image", "describe-1", "gif", "describe-2", "video", "video", "discussion", "outro"}, sectionTypes(story))
	assert.Equal(t, "https://www.youtube.com/embed/dQw4w9WgXcQ", story.Content.Sections[4].Media.EmbedURL)
	assert.Equal(t, "https://x.com/someone/status/123", story.Content.Sections[5].Media.URL)
}

func TestEnrichFallbacks(t *testing.T) {
	defaults := map[string]string{"default": "default.jpg", analysis.CategoryFamily: "family.jpg"}

	// Photo search fails and no GIF providers: category default image.
	e := NewEnricher(&fakePhotos{err: errors.New("boom")}, nil, defaults)
	story := baseStory()
	story.Category = analysis.CategoryFamily
	e.Enrich(context.Background(), story, models.Post{}, analysis.Result{})
	assert.Equal(t, "family.jpg", story.ImageURL)
	assert.Equal(t, []string{"image", "describe-1", "describe-2", "discussion", "outro"}, sectionTypes(story))

	// Source media wins over stock photos.
	photos := &fakePhotos{photos: []Photo{{URL: "stock.jpg"}}}
	story = baseStory()
	NewEnricher(photos, nil, defaults).Enrich(context.Background(), story, models.Post{MediaURLs: []string{"https://i.redd.it/abc.png"}}, analysis.Result{})
	assert.Equal(t, "https://i.redd.it/abc.png", story.ImageURL)

	// Only a stock clip: its poster becomes the hero and the clip is embedded.
	clips := &fakePhotos{videos: []Video{{URL: "clip.mp4", Poster: "poster.jpg", Author: "Bo"}}}
	story = baseStory()
	NewEnricher(clips, nil, nil).Enrich(context.Background(), story, models.Post{}, analysis.Result{})
	assert.Equal(t, "poster.jpg", story.ImageURL)
	assert.Equal(t, []string{"image", "describe-1", "describe-2", "video", "discussion", "outro"}, sectionTypes(story))
}

func TestVideoEmbeds(t *testing.T) {
	post := models.Post{
		URL:       "https://v.redd.it/xyz123",
		MediaURLs: []string{"https://www.youtube.com/watch?v=abcdefghijk", "https://i.redd.it/pic.jpg"},
		Body:      "see https://m.youtube.com/shorts/shortID_01 and https://twitter.com/a/status/9 and https://example.com/x",
	}
	got := VideoEmbeds(post)
	require.Len(t, got, 4)
	assert.Equal(t, "reddit", got[0].Provider)
	assert.Equal(t, "https://www.youtube.com/embed/abcdefghijk", got[1].EmbedURL)
	assert.Equal(t, "https://www.youtube.com/embed/shortID_01", got[2].EmbedURL)
	assert.Equal(t, "https://x.com/a/status/9", got[3].URL)
}

func TestVideoEmbedsSkipsOwnTweet(t *testing.T) {
	post := models.Post{
		Platform: models.PlatformTwitter,
		URL:      "https://x.com/someone/status/1234",
		Body:     "my coworker microwaved fish again",
	}
	assert.Empty(t, VideoEmbeds(post))

	post.Body = "replying to https://twitter.com/someone/status/1234 see https://x.com/other/status/77"
	got := VideoEmbeds(post)
	require.Len(t, got, 1)
	assert.Equal(t, "https://x.com/other/status/77", got[0].URL)
}
