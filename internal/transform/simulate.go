package transform

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/threadjuice/threadjuice/internal/analysis"
	"github.com/threadjuice/threadjuice/internal/models"
	"github.com/threadjuice/threadjuice/internal/persona"
)

const (
	simulatedComments = 5
	maxTitleLength    = 120
)

var reSentence = regexp.MustCompile(`[^.!?]+[.!?]+["')\]]*\s*`)

var emotionHooks = map[string]string{
	analysis.Anger:    "Buckle up, because this one is going to make your blood boil.",
	analysis.Joy:      "Grab a tissue, this one actually ends well.",
	analysis.Surprise: "Nobody saw this twist coming. Nobody.",
	analysis.Sadness:  "This one hits a little close to home.",
	analysis.Fear:     "Lock your doors before you read this one.",
	analysis.Disgust:  "Some people truly have no shame, and this thread proves it.",
}

// Simulate writes a story from the post alone, without a model. The same
// inputs always give the same story.
func Simulate(post models.Post, res analysis.Result, p persona.Persona) *models.Story {
	category := analysis.DetectCategory(post)
	title := cleanLine(post.Title)
	if title == "" {
		title = fallbackTitle(post)
	}
	title = truncate(title, maxTitleLength)

	first, second := splitBody(post.Body)
	hook, ok := emotionHooks[res.Dominant]
	if !ok {
		hook = "Here is a thread the internet cannot stop talking about."
	}
	where := "online"
	if post.Community != "" {
		where = "on r/" + post.Community
	}

	describe1 := strings.TrimSpace(fmt.Sprintf("%s %s posted this %s:\n\n%s", hook, displayAuthor(post.Author), where, first))
	if second == "" {
		second = fmt.Sprintf("Since then the replies have piled up. %s", verdictLine(res))
	}

	comments := topComments(post.Comments, simulatedComments)
	sections := []models.Section{
		{Type: models.SectionImage, Image: &models.Image{Alt: title}},
		{Type: "describe-1", Title: "What happened", Content: describe1},
		{Type: models.SectionQuotes, Quotes: []models.Quote{bestQuote(post, comments)}},
		{Type: "comments-1", Title: "What people are saying", Comments: sectionComments(comments)},
		{Type: "describe-2", Title: "How it unfolded", Content: second},
		{Type: models.SectionQuiz, Quiz: verdictQuiz(res)},
		{Type: models.SectionDiscussion, Content: fmt.Sprintf("So what do you think: who is really in the wrong here? %s wants to hear from you.", p.Name)},
		{Type: models.SectionOutro, Content: fmt.Sprintf("That's the tea for today. Stay juicy. - %s", p.Name)},
	}
	if len(comments) == 0 {
		// Drop the empty comments block; quotes already carry the post itself.
		sections = append(sections[:3], sections[4:]...)
	}

	tags := []string{category}
	tags = append(tags, res.Keywords...)
	if post.Community != "" {
		tags = append(tags, strings.ToLower(post.Community))
	}

	slugText := title
	if Slugify(slugText) == "" {
		slugText = "thread " + post.Platform + " " + post.ExternalID
	}

	return &models.Story{
		Title:    title,
		Slug:     Slugify(slugText),
		Excerpt:  truncate(cleanLine(first), excerptLength),
		Category: category,
		Persona:  p.Ref(),
		Content:  models.Content{Sections: sections},
		Tags:     NormalizeTags(tags),
		Status:   models.StatusPublished,

		Simulated: true,
	}
}

// splitBody divides the post into two roughly equal halves on paragraph or
// sentence boundaries.
func splitBody(body string) (string, string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", ""
	}
	var parts []string
	for _, p := range strings.Split(body, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	sep := "\n\n"
	if len(parts) < 2 {
		parts = nil
		for _, s := range reSentence.FindAllString(body, -1) {
			if s = strings.TrimSpace(s); s != "" {
				parts = append(parts, s)
			}
		}
		sep = " "
	}
	if len(parts) < 2 {
		return body, ""
	}
	half := (len(parts) + 1) / 2
	return strings.Join(parts[:half], sep), strings.Join(parts[half:], sep)
}

func bestQuote(post models.Post, comments []models.Comment) models.Quote {
	if len(comments) > 0 {
		return models.Quote{Text: truncate(cleanLine(comments[0].Body), maxCommentLength), Author: comments[0].Author}
	}
	text := cleanLine(post.Title)
	if s := reSentence.FindString(post.Body); s != "" {
		text = strings.TrimSpace(s)
	}
	return models.Quote{Text: text, Author: post.Author}
}

func sectionComments(comments []models.Comment) []models.SectionComment {
	out := make([]models.SectionComment, 0, len(comments))
	for _, c := range comments {
		out = append(out, models.SectionComment{Author: c.Author, Body: truncate(c.Body, maxCommentLength), Score: c.Score})
	}
	return out
}

func verdictQuiz(res analysis.Result) *models.Quiz {
	answer, explanation := 0, "Most readers sided with the original poster."
	if res.Label == analysis.Positive {
		answer, explanation = 3, "Turns out this one had a happy ending for everyone."
	}
	return &models.Quiz{Questions: []models.QuizQuestion{{
		Question:    "Who comes out of this looking worst?",
		Options:     []string{"The other party", "The original poster", "Everyone involved", "Nobody, honestly"},
		Answer:      answer,
		Explanation: explanation,
	}}}
}

func verdictLine(res analysis.Result) string {
	switch res.Label {
	case analysis.Negative:
		return "The verdict from the comments was swift and it was not kind."
	case analysis.Positive:
		return "For once the internet agrees: this ended the right way."
	default:
		return "The comments are split right down the middle."
	}
}

func displayAuthor(author string) string {
	if author == "" {
		return "Someone"
	}
	return "u/" + strings.TrimPrefix(author, "u/")
}

func fallbackTitle(post models.Post) string {
	if post.Community != "" {
		return "The r/" + post.Community + " thread everyone is talking about"
	}
	if s := reSentence.FindString(post.Body); s != "" {
		return strings.TrimSpace(s)
	}
	return "The thread everyone is talking about"
}
