package transform

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/threadjuice/threadjuice/internal/analysis"
	"github.com/threadjuice/threadjuice/internal/models"
	"github.com/threadjuice/threadjuice/internal/persona"
)

const (
	maxPromptBody     = 4000
	maxPromptComments = 8
	maxCommentLength  = 400
)

const sectionsSchema = `Respond with ONE JSON object and nothing else:
{
  "title": "headline, 40-90 characters",
  "excerpt": "one or two sentence teaser",
  "category": "one of: %s",
  "tags": ["up to 8 lowercase tags"],
  "sections": [
    {"type": "image", "title": "", "image": {"alt": "what the hero image should show"}},
    {"type": "describe-1", "title": "section heading", "content": "narrative paragraphs"},
    {"type": "quotes", "quotes": [{"text": "memorable line", "author": "who said it"}]},
    {"type": "comments-1", "title": "What people said", "comments": [{"author": "name", "body": "comment", "score": 0}]},
    {"type": "describe-2", "title": "section heading", "content": "how it unfolded"},
    {"type": "quiz", "quiz": {"questions": [{"question": "text", "options": ["a", "b", "c"], "answer": 0, "explanation": "why"}]}},
    {"type": "discussion", "content": "question inviting readers to weigh in"},
    {"type": "outro", "content": "closing line in your voice"}
  ]
}
RULES:
- Allowed section types: image, describe-N, quotes, comments-N, quiz, discussion, outro.
- Include at least three sections and at least one describe section.
- Quiz answers are zero-based indexes into options.
- Only use comments and quotes that appear in the source material.
- Do not invent names of real private people.`

// SystemPrompt builds the system prompt for a persona.
func SystemPrompt(p persona.Persona) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s, a writer for ThreadJuice, a site that retells viral social media threads.\n", p.Name)
	if p.Bio != "" {
		fmt.Fprintf(&sb, "About you: %s\n", p.Bio)
	}
	if p.Tone != "" {
		fmt.Fprintf(&sb, "Your tone is %s.\n", p.Tone)
	}
	if len(p.StyleRules) > 0 {
		sb.WriteString("STYLE:\n")
		for _, rule := range p.StyleRules {
			fmt.Fprintf(&sb, "- %s\n", rule)
		}
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, sectionsSchema, strings.Join(analysis.Categories, ", "))
	return sb.String()
}

// UserPrompt builds the user prompt from the source post and its analysis.
func UserPrompt(post models.Post, res analysis.Result, category string) string {
	var sb strings.Builder
	sb.WriteString("Rewrite this thread as a ThreadJuice story.\n\n")
	fmt.Fprintf(&sb, "PLATFORM: %s\n", post.Platform)
	if post.Community != "" {
		fmt.Fprintf(&sb, "COMMUNITY: r/%s\n", post.Community)
	}
	fmt.Fprintf(&sb, "TITLE: %s\n", post.Title)
	fmt.Fprintf(&sb, "ENGAGEMENT: %d interactions, %d replies\n\n", post.Interactions(), post.Discussion())
	fmt.Fprintf(&sb, "POST:\n%s\n\n", truncate(post.Body, maxPromptBody))

	comments := topComments(post.Comments, maxPromptComments)
	if len(comments) > 0 {
		sb.WriteString("TOP COMMENTS:\n")
		for _, c := range comments {
			fmt.Fprintf(&sb, "- %s (%d points): %s\n", c.Author, c.Score, truncate(c.Body, maxCommentLength))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("ANALYSIS:\n")
	fmt.Fprintf(&sb, "- sentiment: %s (%.2f)\n", res.Label, res.Sentiment)
	if res.Dominant != "" {
		fmt.Fprintf(&sb, "- dominant emotion: %s\n", res.Dominant)
	}
	if len(res.Keywords) > 0 {
		fmt.Fprintf(&sb, "- keywords: %s\n", strings.Join(res.Keywords, ", "))
	}
	fmt.Fprintf(&sb, "- suggested category: %s\n", category)
	return sb.String()
}

// topComments returns up to n comments with a body, highest score first.
func topComments(comments []models.Comment, n int) []models.Comment {
	out := make([]models.Comment, 0, len(comments))
	for _, c := range comments {
		if strings.TrimSpace(c.Body) != "" {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// truncate shortens s to at most n bytes, cutting at a word boundary when
// one is near and never inside a UTF-8 sequence.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	cut := s[:n]
	if i := strings.LastIndexAny(cut, " \n\t"); i > n/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "…"
}
