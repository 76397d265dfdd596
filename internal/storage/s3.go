// Package storage archives source posts and the stories generated from them
// in S3-compatible object storage.
package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/threadjuice/threadjuice/internal/config"
	"github.com/threadjuice/threadjuice/internal/models"
	"github.com/threadjuice/threadjuice/internal/scraper"
)

// ErrNotConfigured is returned by reads when no endpoint is configured.
var ErrNotConfigured = errors.New("storage: not configured")

// objectAPI is the subset of the S3 client the archive uses.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Client wraps an S3-compatible object storage client.
type Client struct {
	s3     objectAPI
	bucket string
	now    func() time.Time
}

// Snapshot is an archived story together with the post it came from.
type Snapshot struct {
	Meta   Meta          `json:"meta"`
	Source *models.Post  `json:"source,omitempty"`
	Story  *models.Story `json:"story"`
}

// Meta records when and from what a story was archived.
type Meta struct {
	Slug        string    `json:"slug"`
	SourceURL   string    `json:"source_url,omitempty"`
	SourceHash  string    `json:"source_url_hash,omitempty"`
	ContentHash string    `json:"content_hash_sha256,omitempty"`
	Simulated   bool      `json:"simulated"`
	ArchivedAt  time.Time `json:"archived_at"`
}

// NewClient creates a storage client for any S3-compatible endpoint. Without
// an endpoint the client is a no-op.
func NewClient(ctx context.Context, cfg config.S3Config) (*Client, error) {
	if cfg.Endpoint == "" {
		zap.S().Warnw("storage: S3 endpoint not configured, archive disabled")
		return &Client{bucket: cfg.Bucket, now: time.Now}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = &cfg.Endpoint
		o.UsePathStyle = true
	})

	return &Client{s3: client, bucket: cfg.Bucket, now: time.Now}, nil
}

// Configured returns true if the client has an endpoint.
func (c *Client) Configured() bool {
	return c != nil && c.s3 != nil
}

func keyPrefix(slug string) string { return "stories/" + slug }

// ArchiveStory uploads the gzipped story and source post plus a plain JSON
// meta record under stories/{slug}/. source may be nil.
func (c *Client) ArchiveStory(ctx context.Context, story *models.Story, source *models.Post) error {
	if !c.Configured() {
		return nil
	}

	meta := Meta{
		Slug:       story.Slug,
		SourceURL:  story.SourceURL,
		Simulated:  story.Simulated,
		ArchivedAt: c.now().UTC(),
	}
	if story.SourceURL != "" {
		meta.SourceHash = scraper.HashURL(story.SourceURL)
	}
	if source != nil {
		meta.ContentHash = scraper.HashContent(source.Text())
	}

	prefix := keyPrefix(story.Slug)
	uploads := []struct {
		key  string
		v    any
		gzip bool
	}{
		{prefix + "/story.json.gz", story, true},
		{prefix + "/meta.json", meta, false},
	}
	if source != nil {
		uploads = append(uploads, struct {
			key  string
			v    any
			gzip bool
		}{prefix + "/source.json.gz", source, true})
	}

	for _, u := range uploads {
		body, err := json.Marshal(u.v)
		if err != nil {
			return fmt.Errorf("storage: marshal %s: %w", u.key, err)
		}
		if u.gzip {
			if body, err = scraper.CompressGzip(body); err != nil {
				return fmt.Errorf("storage: compress %s: %w", u.key, err)
			}
		}
		if err := c.put(ctx, u.key, body); err != nil {
			return err
		}
		zap.S().Debugw("storage: archived", "key", u.key, "size", len(body))
	}
	return nil
}

// LoadSnapshot reads back an archived story, its source post and meta.
func (c *Client) LoadSnapshot(ctx context.Context, slug string) (*Snapshot, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	prefix := keyPrefix(slug)
	snap := &Snapshot{}

	metaData, err := c.getObject(ctx, prefix+"/meta.json")
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(metaData, &snap.Meta); err != nil {
		return nil, fmt.Errorf("storage: unmarshal meta: %w", err)
	}

	if err := c.getGzipJSON(ctx, prefix+"/story.json.gz", &snap.Story); err != nil {
		return nil, err
	}
	if snap.Meta.ContentHash != "" {
		if err := c.getGzipJSON(ctx, prefix+"/source.json.gz", &snap.Source); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

func (c *Client) put(ctx context.Context, key string, body []byte) error {
	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &c.bucket,
		Key:    &key,
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("storage: upload %s: %w", key, err)
	}
	return nil
}

func (c *Client) getGzipJSON(ctx context.Context, key string, out any) error {
	data, err := c.getObject(ctx, key)
	if err != nil {
		return err
	}
	raw, err := gzipDecompress(data)
	if err != nil {
		return fmt.Errorf("storage: decompress %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("storage: unmarshal %s: %w", key, err)
	}
	return nil
}

func (c *Client) getObject(ctx context.Context, key string) ([]byte, error) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &c.bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", key, err)
	}
	return data, nil
}

func gzipDecompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
