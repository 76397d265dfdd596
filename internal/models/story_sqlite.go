package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLiteStoryStore is the story store for local runs on a SQLite file.
// Timestamps are stored as unix milliseconds.
type SQLiteStoryStore struct {
	db *sql.DB
}

// NewSQLiteStoryStore creates a new SQLiteStoryStore.
func NewSQLiteStoryStore(db *sql.DB) *SQLiteStoryStore {
	return &SQLiteStoryStore{db: db}
}

const sqliteStoryColumns = `
	s.id, s.slug, s.title, s.excerpt, s.category,
	COALESCE(p.slug, ''), COALESCE(p.name, ''), COALESCE(p.tone, ''),
	s.content, s.viral_score, s.drama_score, s.image_url,
	s.source_platform, s.source_url, s.source_hash, s.source_author, s.source_community,
	s.status, s.simulated, s.fallback_reason,
	s.view_count, s.upvote_count, s.comment_count, s.share_count, s.bookmark_count,
	s.created_at`

// CreateStory inserts a story with its persona, tags and seed comments in
// one transaction. It returns ErrDuplicateSlug when the slug is taken.
func (s *SQLiteStoryStore) CreateStory(ctx context.Context, story *Story) error {
	if story.ID == uuid.Nil {
		story.ID = uuid.New()
	}
	if story.Status == "" {
		story.Status = StatusPublished
	}
	if story.CreatedAt.IsZero() {
		story.CreatedAt = time.Now().UTC()
	}

	content, err := json.Marshal(story.Content)
	if err != nil {
		return fmt.Errorf("story create: marshal content: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("story create: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var personaSlug any
	if story.Persona.Slug != "" {
		personaSlug = story.Persona.Slug
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO personas (slug, name, tone) VALUES (?, ?, ?)
			ON CONFLICT (slug) DO UPDATE SET name = excluded.name, tone = excluded.tone
		`, story.Persona.Slug, story.Persona.Name, story.Persona.Tone); err != nil {
			return fmt.Errorf("story create: upsert persona: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO stories (id, slug, title, excerpt, category, persona_slug, content,
		                     viral_score, drama_score, image_url, source_platform,
		                     source_url, source_hash, source_author, source_community, status,
		                     simulated, fallback_reason, view_count, upvote_count,
		                     comment_count, share_count, bookmark_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (slug) DO NOTHING
	`,
		story.ID.String(), story.Slug, story.Title, story.Excerpt, story.Category, personaSlug,
		string(content), story.ViralScore, story.DramaScore, story.ImageURL, story.SourcePlatform,
		story.SourceURL, story.SourceHash, story.SourceAuthor, story.SourceCommunity, story.Status,
		story.Simulated, story.FallbackReason, story.Engagement.Views, story.Engagement.Upvotes,
		story.Engagement.Comments, story.Engagement.Shares, story.Engagement.Bookmarks,
		story.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("story create: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("story create: rows affected: %w", err)
	} else if n == 0 {
		return ErrDuplicateSlug
	}

	for _, name := range story.Tags {
		if _, err := tx.ExecContext(ctx, `INSERT INTO tags (name) VALUES (?) ON CONFLICT (name) DO NOTHING`, name); err != nil {
			return fmt.Errorf("story create: upsert tag %q: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO story_tags (story_id, tag_id)
			SELECT ?, id FROM tags WHERE name = ?
			ON CONFLICT DO NOTHING
		`, story.ID.String(), name); err != nil {
			return fmt.Errorf("story create: link tag %q: %w", name, err)
		}
	}

	for i, c := range story.Comments {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO comments (id, story_id, external_id, author, body, score, position)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, uuid.NewString(), story.ID.String(), c.ExternalID, c.Author, c.Body, c.Score, i); err != nil {
			return fmt.Errorf("story create: insert comment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("story create: commit: %w", err)
	}
	return nil
}

// GetBySlug returns a story with its tags and seed comments.
func (s *SQLiteStoryStore) GetBySlug(ctx context.Context, slug string) (*Story, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sqliteStoryColumns+`
		FROM stories s
		LEFT JOIN personas p ON p.slug = s.persona_slug
		WHERE s.slug = ?
	`, slug)
	story, err := scanSQLiteStory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("story get: %w", err)
	}
	if story.Tags, err = s.tags(ctx, story.ID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT external_id, author, body, score
		FROM comments
		WHERE story_id = ?
		ORDER BY score DESC, position ASC
	`, story.ID.String())
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
func (s *SQLiteStoryStore) ListPublished(ctx context.Context, opts ListOptions) ([]Story, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteStoryColumns+`
		FROM stories s
		LEFT JOIN personas p ON p.slug = s.persona_slug
		WHERE s.status = 'published'
		  AND (? = '' OR s.category = ?)
		ORDER BY s.created_at DESC
		LIMIT ? OFFSET ?
	`, opts.Category, opts.Category, opts.limit(), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("story list: %w", err)
	}

	var stories []Story
	for rows.Next() {
		story, err := scanSQLiteStory(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("story list scan: %w", err)
		}
		stories = append(stories, *story)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("story list: %w", err)
	}
	rows.Close()

	// Tags are loaded after the cursor is closed; in-memory databases run
	// on a single connection.
	for i := range stories {
		if stories[i].Tags, err = s.tags(ctx, stories[i].ID); err != nil {
			return nil, err
		}
	}
	return stories, nil
}

// SlugExists reports whether a story with the slug is stored.
func (s *SQLiteStoryStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM stories WHERE slug = ?)`, slug).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("story slug exists: %w", err)
	}
	return exists, nil
}

// SourceExists reports whether a story was already generated from the
// source whose canonical URL hashes to sourceHash.
func (s *SQLiteStoryStore) SourceExists(ctx context.Context, sourceHash string) (bool, error) {
	if sourceHash == "" {
		return false, nil
	}
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM stories WHERE source_hash = ?)`, sourceHash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("story source exists: %w", err)
	}
	return exists, nil
}

// CountSince returns how many stories were created at or after since.
func (s *SQLiteStoryStore) CountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM stories WHERE created_at >= ?`, since.UnixMilli()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("story count since: %w", err)
	}
	return n, nil
}

func (s *SQLiteStoryStore) tags(ctx context.Context, storyID uuid.UUID) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.name FROM story_tags st JOIN tags t ON t.id = st.tag_id
		WHERE st.story_id = ?
		ORDER BY t.name
	`, storyID.String())
	if err != nil {
		return nil, fmt.Errorf("story tags: %w", err)
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("story tag scan: %w", err)
		}
		tags = append(tags, name)
	}
	return tags, rows.Err()
}

func scanSQLiteStory(row scannable) (*Story, error) {
	var (
		st        Story
		id        string
		content   string
		createdMs int64
	)
	if err := row.Scan(
		&id, &st.Slug, &st.Title, &st.Excerpt, &st.Category,
		&st.Persona.Slug, &st.Persona.Name, &st.Persona.Tone,
		&content, &st.ViralScore, &st.DramaScore, &st.ImageURL,
		&st.SourcePlatform, &st.SourceURL, &st.SourceHash, &st.SourceAuthor, &st.SourceCommunity,
		&st.Status, &st.Simulated, &st.FallbackReason,
		&st.Engagement.Views, &st.Engagement.Upvotes, &st.Engagement.Comments,
		&st.Engagement.Shares, &st.Engagement.Bookmarks,
		&createdMs,
	); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse id: %w", err)
	}
	st.ID = parsed
	if err := json.Unmarshal([]byte(content), &st.Content); err != nil {
		return nil, fmt.Errorf("unmarshal content: %w", err)
	}
	st.CreatedAt = time.UnixMilli(createdMs).UTC()
	return &st, nil
}
