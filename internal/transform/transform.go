// Package transform turns source posts into structured stories, with a model
// when one is available and a local template when it is not.
package transform

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/threadjuice/threadjuice/internal/ai"
	"github.com/threadjuice/threadjuice/internal/analysis"
	"github.com/threadjuice/threadjuice/internal/models"
	"github.com/threadjuice/threadjuice/internal/persona"
	"github.com/threadjuice/threadjuice/internal/ratelimit"
	"github.com/threadjuice/threadjuice/internal/scoring"
)

const seedComments = 5

var errNoGenerator = errors.New("no story generator configured")

// Transformer writes stories.
type Transformer struct {
	gen     ai.Generator
	limiter *ratelimit.Limiter
}

// New creates a Transformer. gen may be nil, in which case every story is
// simulated. limiter may be nil.
func New(gen ai.Generator, limiter *ratelimit.Limiter) *Transformer {
	return &Transformer{gen: gen, limiter: limiter}
}

// Transform writes a story for post in the persona's voice. Any generator,
// parse, validation or quota failure falls back to a simulated story with
// the reason recorded. The only error returned is the context's.
func (t *Transformer) Transform(ctx context.Context, post models.Post, res analysis.Result, p persona.Persona) (*models.Story, error) {
	category := analysis.DetectCategory(post)

	story, err := t.generate(ctx, post, res, p, category)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		zap.S().Warnw("transform: falling back to simulated story",
			"source", post.URL,
			"persona", p.Slug,
			"reason", err.Error(),
		)
		return Fallback(post, res, p, err.Error()), nil
	}

	finish(story, post, res)
	return story, nil
}

// Fallback writes a simulated story for post without consulting a
// generator, recording reason on it.
func Fallback(post models.Post, res analysis.Result, p persona.Persona, reason string) *models.Story {
	story := Simulate(post, res, p)
	story.FallbackReason = reason
	finish(story, post, res)
	return story
}

func (t *Transformer) generate(ctx context.Context, post models.Post, res analysis.Result, p persona.Persona, category string) (*models.Story, error) {
	if t.gen == nil {
		return nil, errNoGenerator
	}
	if err := t.limiter.Wait(ctx, t.gen.Name()); err != nil {
		return nil, err
	}

	raw, err := t.gen.GenerateJSON(ctx, SystemPrompt(p), UserPrompt(post, res, category))
	if err != nil {
		return nil, err
	}
	draft, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if err := Validate(draft); err != nil {
		return nil, err
	}

	story := Normalize(draft, category)
	if story.Slug == "" {
		return nil, fmt.Errorf("%w: title %q yields an empty slug", ErrInvalidDraft, story.Title)
	}
	story.Persona = p.Ref()

	zap.S().Infow("transform: story generated",
		"generator", t.gen.Name(),
		"slug", story.Slug,
		"sections", len(story.Content.Sections),
	)
	return story, nil
}

// finish stamps the source fields, scores and seed comments on a story.
func finish(story *models.Story, post models.Post, res analysis.Result) {
	story.SourcePlatform = post.Platform
	story.SourceURL = post.URL
	story.SourceAuthor = post.Author
	story.SourceCommunity = post.Community
	story.DramaScore = scoring.DramaScore(post, res).Total
	story.Comments = topComments(post.Comments, seedComments)
	Rescore(story)
}

// Rescore recomputes the viral score and engagement seed. Call it after the
// story body changes.
func Rescore(story *models.Story) {
	story.ViralScore = scoring.ViralScore(story)
	story.Engagement = scoring.EngagementSeed(story)
}
