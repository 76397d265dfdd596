package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ListOptions filters and paginates story listings.
type ListOptions struct {
	Category string
	Limit    int
	Offset   int
}

func (o ListOptions) limit() int {
	if o.Limit <= 0 || o.Limit > 100 {
		return 20
	}
	return o.Limit
}

// StoryStore provides data access methods for stories in PostgreSQL.
type StoryStore struct {
	pool *pgxpool.Pool
}

// NewStoryStore creates a new StoryStore.
func NewStoryStore(pool *pgxpool.Pool) *StoryStore {
	return &StoryStore{pool: pool}
}

const storyColumns = `
	s.id, s.slug, s.title, s.excerpt, s.category,
	COALESCE(p.slug, ''), COALESCE(p.name, ''), COALESCE(p.tone, ''),
	s.content, s.viral_score, s.drama_score, s.image_url,
	s.source_platform, s.source_url, s.source_hash, s.source_author, s.source_community,
	s.status, s.simulated, s.fallback_reason,
	s.view_count, s.upvote_count, s.comment_count, s.share_count, s.bookmark_count,
	COALESCE((SELECT array_agg(t.name ORDER BY t.name)
	          FROM story_tags st JOIN tags t ON t.id = st.tag_id
	          WHERE st.story_id = s.id), '{}'),
	s.created_at`

// CreateStory inserts a story with its persona, tags and seed comments in
// one transaction. It returns ErrDuplicateSlug without writing anything when
// the slug is taken.
func (s *StoryStore) CreateStory(ctx context.Context, story *Story) error {
	if story.ID == uuid.Nil {
		story.ID = uuid.New()
	}
	if story.Status == "" {
		story.Status = StatusPublished
	}

	content, err := json.Marshal(story.Content)
	if err != nil {
		return fmt.Errorf("story create: marshal content: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("story create: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var personaSlug *string
	if story.Persona.Slug != "" {
		personaSlug = &story.Persona.Slug
		_, err = tx.Exec(ctx, `
			INSERT INTO personas (slug, name, tone)
			VALUES ($1, $2, $3)
			ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name, tone = EXCLUDED.tone
		`, story.Persona.Slug, story.Persona.Name, story.Persona.Tone)
		if err != nil {
			return fmt.Errorf("story create: upsert persona: %w", err)
		}
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO stories (id, slug, title, excerpt, category, persona_slug, content,
		                     viral_score, drama_score, image_url, source_platform,
		                     source_url, source_hash, source_author, source_community, status,
		                     simulated, fallback_reason, view_count, upvote_count,
		                     comment_count, share_count, bookmark_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		        $16, $17, $18, $19, $20, $21, $22, $23)
		ON CONFLICT (slug) DO NOTHING
		RETURNING created_at
	`,
		story.ID, story.Slug, story.Title, story.Excerpt, story.Category, personaSlug,
		content, story.ViralScore, story.DramaScore, story.ImageURL, story.SourcePlatform,
		story.SourceURL, story.SourceHash, story.SourceAuthor, story.SourceCommunity, story.Status,
		story.Simulated, story.FallbackReason, story.Engagement.Views, story.Engagement.Upvotes,
		story.Engagement.Comments, story.Engagement.Shares, story.Engagement.Bookmarks,
	).Scan(&story.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicateSlug
	}
	if err != nil {
		return fmt.Errorf("story create: %w", err)
	}

	for _, name := range story.Tags {
		var tagID int64
		err := tx.QueryRow(ctx, `
			INSERT INTO tags (name) VALUES ($1)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id
		`, name).Scan(&tagID)
		if err != nil {
			return fmt.Errorf("story create: upsert tag %q: %w", name, err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO story_tags (story_id, tag_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, story.ID, tagID); err != nil {
			return fmt.Errorf("story create: link tag %q: %w", name, err)
		}
	}

	for _, c := range story.Comments {
		if _, err := tx.Exec(ctx, `
			INSERT INTO comments (id, story_id, external_id, author, body, score)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.New(), story.ID, c.ExternalID, c.Author, c.Body, c.Score); err != nil {
			return fmt.Errorf("story create: insert comment: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("story create: commit: %w", err)
	}
	return nil
}

// GetBySlug returns a story with its tags and seed comments.
func (s *StoryStore) GetBySlug(ctx context.Context, slug string) (*Story, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+storyColumns+`
		FROM stories s
		LEFT JOIN personas p ON p.slug = s.persona_slug
		WHERE s.slug = $1
	`, slug)
	story, err := scanStory(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("story get: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT external_id, author, body, score
		FROM comments
		WHERE story_id = $1
		ORDER BY score DESC, created_at ASC
	`, story.ID)
	if err != nil {
		return nil, fmt.Errorf("story get comments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ExternalID, &c.Author, &c.Body, &c.Score); err != nil {
			return nil, fmt.Errorf("story comment scan: %w", err)
		}
		story.Comments = append(story.Comments, c)
	}
	return story, rows.Err()
}

// ListPublished returns published stories, newest first.
func (s *StoryStore) ListPublished(ctx context.Context, opts ListOptions) ([]Story, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+storyColumns+`
		FROM stories s
		LEFT JOIN personas p ON p.slug = s.persona_slug
		WHERE s.status = 'published'
		  AND ($1 = '' OR s.category = $1)
		ORDER BY s.created_at DESC
		LIMIT $2 OFFSET $3
	`, opts.Category, opts.limit(), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("story list: %w", err)
	}
	defer rows.Close()

	var stories []Story
	for rows.Next() {
		story, err := scanStory(rows)
		if err != nil {
			return nil, fmt.Errorf("story list scan: %w", err)
		}
		stories = append(stories, *story)
	}
	return stories, rows.Err()
}

// SlugExists reports whether a story with the slug is stored.
func (s *StoryStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM stories WHERE slug = $1)`, slug).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("story slug exists: %w", err)
	}
	return exists, nil
}

// SourceExists reports whether a story was already generated from the
// source whose canonical URL hashes to sourceHash.
func (s *StoryStore) SourceExists(ctx context.Context, sourceHash string) (bool, error) {
	if sourceHash == "" {
		return false, nil
	}
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM stories WHERE source_hash = $1)`, sourceHash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("story source exists: %w", err)
	}
	return exists, nil
}

// CountSince returns how many stories were created at or after since.
func (s *StoryStore) CountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM stories WHERE created_at >= $1`, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("story count since: %w", err)
	}
	return n, nil
}

// scannable is an interface for pgx Row and Rows.
type scannable interface {
	Scan(dest ...any) error
}

func scanStory(row scannable) (*Story, error) {
	var (
		st      Story
		content []byte
		imgURL  *string
		srcURL  *string
		author  *string
		comm    *string
		reason  *string
	)
	if err := row.Scan(
		&st.ID, &st.Slug, &st.Title, &st.Excerpt, &st.Category,
		&st.Persona.Slug, &st.Persona.Name, &st.Persona.Tone,
		&content, &st.ViralScore, &st.DramaScore, &imgURL,
		&st.SourcePlatform, &srcURL, &st.SourceHash, &author, &comm,
		&st.Status, &st.Simulated, &reason,
		&st.Engagement.Views, &st.Engagement.Upvotes, &st.Engagement.Comments,
		&st.Engagement.Shares, &st.Engagement.Bookmarks,
		&st.Tags, &st.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(content, &st.Content); err != nil {
		return nil, fmt.Errorf("unmarshal content: %w", err)
	}
	st.ImageURL = deref(imgURL)
	st.SourceURL = deref(srcURL)
	st.SourceAuthor = deref(author)
	st.SourceCommunity = deref(comm)
	st.FallbackReason = deref(reason)
	return &st, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
