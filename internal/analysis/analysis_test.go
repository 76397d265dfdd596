package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/threadjuice/threadjuice/internal/models"
)

func TestAnalyzeNegativeAnger(t *testing.T) {
	res := Analyze("My boss screamed at me and I was furious. He is the worst, so toxic. I hate this job and I am livid.")

	assert.Equal(t, Negative, res.Label)
	assert.Less(t, res.Sentiment, -0.5)
	assert.Equal(t, Anger, res.Dominant)
	assert.Greater(t, res.Intensity(), 0.0)
	assert.LessOrEqual(t, res.Intensity(), 1.0)
}

func TestAnalyzePositiveJoy(t *testing.T) {
	res := Analyze("So happy and grateful! My neighbor helped us and it was the most wholesome, amazing day. Love them.")

	assert.Equal(t, Positive, res.Label)
	assert.Equal(t, Joy, res.Dominant)
}

func TestAnalyzeNegation(t *testing.T) {
	res := Analyze("It was not good. Not great either.")
	assert.Equal(t, Negative, res.Label)
}

func TestAnalyzeEmpty(t *testing.T) {
	res := Analyze("   ")
	assert.Equal(t, Neutral, res.Label)
	assert.Equal(t, 0.0, res.Sentiment)
	assert.Empty(t, res.Dominant)
	assert.Equal(t, 0.0, res.Intensity())
}

func TestAnalyzeEntitiesAndKeywords(t *testing.T) {
	res := Analyze("Posted on r/AmItheAsshole about Aunt Linda Morris. @petty_pete said the casserole casserole casserole was stolen from the casserole dish.")

	assert.Contains(t, res.Entities, "r/AmItheAsshole")
	assert.Contains(t, res.Entities, "@petty_pete")
	assert.Contains(t, res.Entities, "Aunt Linda Morris")
	if assert.NotEmpty(t, res.Keywords) {
		assert.Equal(t, "casserole", res.Keywords[0])
	}
	assert.LessOrEqual(t, len(res.Keywords), maxKeywords)
}

func TestDetectCategory(t *testing.T) {
	cases := []struct {
		name string
		post models.Post
		want string
	}{
		{"known subreddit", models.Post{Community: "AntiWork", Title: "my wedding"}, CategoryWorkplace},
		{"wedding keywords", models.Post{Community: "offmychest", Title: "The bride uninvited me from the wedding"}, CategoryWeddings},
		{"neighbor keywords", models.Post{Title: "My neighbor keeps parking in my driveway."}, CategoryNeighbors},
		{"nothing matches", models.Post{Title: "Look at this"}, CategoryViral},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DetectCategory(tc.post))
		})
	}
}
