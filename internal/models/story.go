package models

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrDuplicateSlug is returned when a story with the same slug is already
	// stored.
	ErrDuplicateSlug = errors.New("story slug already exists")

	// ErrNotFound is returned when a lookup matches nothing.
	ErrNotFound = errors.New("not found")
)

// Section types. Describe and comments sections are numbered ("describe-1",
// "comments-2") in story order.
const (
	SectionImage      = "image"
	SectionDescribe   = "describe"
	SectionQuotes     = "quotes"
	SectionComments   = "comments"
	SectionQuiz       = "quiz"
	SectionDiscussion = "discussion"
	SectionOutro      = "outro"
	SectionGIF        = "gif"
	SectionVideo      = "video"
)

// Story statuses.
const (
	StatusPublished = "published"
	StatusDraft     = "draft"
)

// Story is a generated article ready for the web layer.
type Story struct {
	ID              uuid.UUID    `json:"id"`
	Title           string       `json:"title"`
	Slug            string       `json:"slug"`
	Excerpt         string       `json:"excerpt"`
	Category        string       `json:"category"`
	Persona         StoryPersona `json:"persona"`
	Content         Content      `json:"content"`
	Tags            []string     `json:"tags"`
	ViralScore      float64      `json:"viral_score"`
	DramaScore      float64      `json:"drama_score"`
	ImageURL        string       `json:"image_url,omitempty"`
	SourcePlatform  string       `json:"source_platform,omitempty"`
	SourceURL       string       `json:"source_url,omitempty"`
	SourceHash      string       `json:"-"`
	SourceAuthor    string       `json:"source_author,omitempty"`
	SourceCommunity string       `json:"source_community,omitempty"`
	Status          string       `json:"status"`
	Simulated       bool         `json:"simulated"`
	FallbackReason  string       `json:"fallback_reason,omitempty"`
	Engagement      Engagement   `json:"engagement"`
	Comments        []Comment    `json:"comments,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

// StoryPersona identifies the writer voice a story was generated with.
type StoryPersona struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
	Tone string `json:"tone,omitempty"`
}

// Content is the structured story body.
type Content struct {
	Sections []Section `json:"sections"`
}

// Engagement holds the seeded counters a new story starts with.
type Engagement struct {
	Views     int `json:"views"`
	Upvotes   int `json:"upvotes"`
	Comments  int `json:"comments"`
	Shares    int `json:"shares"`
	Bookmarks int `json:"bookmarks"`
}

// Section is one typed block of a story body. Only the fields relevant to
// the section's type are set.
type Section struct {
	Type     string           `json:"type"`
	Title    string           `json:"title,omitempty"`
	Content  string           `json:"content,omitempty"`
	Image    *Image           `json:"image,omitempty"`
	Media    *Media           `json:"media,omitempty"`
	Quotes   []Quote          `json:"quotes,omitempty"`
	Comments []SectionComment `json:"comments,omitempty"`
	Quiz     *Quiz            `json:"quiz,omitempty"`
}

// Image is a still image with attribution.
type Image struct {
	URL       string `json:"url"`
	Alt       string `json:"alt,omitempty"`
	Credit    string `json:"credit,omitempty"`
	CreditURL string `json:"credit_url,omitempty"`
}

// Media is an embedded GIF or video.
type Media struct {
	URL      string `json:"url"`
	EmbedURL string `json:"embed_url,omitempty"`
	Provider string `json:"provider,omitempty"`
	Title    string `json:"title,omitempty"`
}

// Quote is a highlighted line from the source thread.
type Quote struct {
	Text   string `json:"text"`
	Author string `json:"author,omitempty"`
}

// SectionComment is a source comment rendered inside a comments section.
type SectionComment struct {
	Author string `json:"author"`
	Body   string `json:"body"`
	Score  int    `json:"score"`
}

// Quiz is a short multiple-choice block.
type Quiz struct {
	Questions []QuizQuestion `json:"questions"`
}

// QuizQuestion is a single quiz question. Answer indexes Options.
type QuizQuestion struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Answer      int      `json:"answer"`
	Explanation string   `json:"explanation,omitempty"`
}

// BaseSectionType strips the "-N" suffix from numbered section types.
func BaseSectionType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if i := strings.LastIndexByte(t, '-'); i > 0 {
		if _, err := strconv.Atoi(t[i+1:]); err == nil {
			return t[:i]
		}
	}
	return t
}

// IsKnownSectionType reports whether t (numbered or not) is a section type
// the web layer can render.
func IsKnownSectionType(t string) bool {
	switch BaseSectionType(t) {
	case SectionImage, SectionDescribe, SectionQuotes, SectionComments,
		SectionQuiz, SectionDiscussion, SectionOutro, SectionGIF, SectionVideo:
		return true
	}
	return false
}

// NumberedSectionType reports whether sections of type t carry an ordinal.
func NumberedSectionType(t string) bool {
	base := BaseSectionType(t)
	return base == SectionDescribe || base == SectionComments
}

// FirstSection returns the index of the first section whose base type is
// base, or -1.
func (c Content) FirstSection(base string) int {
	for i, s := range c.Sections {
		if BaseSectionType(s.Type) == base {
			return i
		}
	}
	return -1
}

// Insert places s at index i, clamped to the section bounds.
func (c *Content) Insert(i int, s Section) {
	if i < 0 {
		i = 0
	}
	if i > len(c.Sections) {
		i = len(c.Sections)
	}
	c.Sections = append(c.Sections, Section{})
	copy(c.Sections[i+1:], c.Sections[i:])
	c.Sections[i] = s
}
