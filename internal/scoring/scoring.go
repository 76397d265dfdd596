// Package scoring ranks source posts by drama potential and rates generated
// stories for virality.
package scoring

import (
	"hash/fnv"
	"math"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/threadjuice/threadjuice/internal/analysis"
	"github.com/threadjuice/threadjuice/internal/models"
)

// Component ceilings. They add up to the 10 point scale.
const (
	maxEngagement  = 3.0
	maxDiscussion  = 1.5
	maxControversy = 1.0
	maxKeywords    = 2.5
	maxEmotion     = 2.0

	// engagementCeiling is the interaction count that earns full engagement
	// points.
	engagementCeiling = 50000
	keywordCeiling    = 5.0
	recencyHalfLife   = 24 * time.Hour
)

// dramaLexicon weighs phrases that signal a story worth retelling.
var dramaLexicon = map[string]float64{
	"aita": 1, "wibta": 1, "update": 1, "entitled": 1.5, "revenge": 1.5,
	"cheated": 2, "affair": 2, "divorce": 1.5, "fired": 1, "karen": 1.5,
	"wedding": 1, "lawsuit": 1.5, "police": 1, "screamed": 1, "kicked out": 1.5,
	"petty": 1, "betrayed": 1.5, "exposed": 1.5, "drama": 1, "confronted": 1,
	"uninvited": 1.5, "hoa": 1, "inheritance": 1.5, "caught": 1, "lied": 1,
	"mother-in-law": 1.5, "ex": 0.5, "boss": 0.5, "refused": 0.5, "ultimatum": 1.5,
}

// Breakdown records how a drama score was reached.
type Breakdown struct {
	Engagement  float64  `json:"engagement"`
	Discussion  float64  `json:"discussion"`
	Controversy float64  `json:"controversy"`
	Keywords    float64  `json:"keywords"`
	Emotion     float64  `json:"emotion"`
	Recency     float64  `json:"recency"`
	Matched     []string `json:"matched,omitempty"`
	Total       float64  `json:"total"`
}

// DramaScore rates a source post on a 0-10 scale.
func DramaScore(post models.Post, res analysis.Result) Breakdown {
	return DramaScoreAt(post, res, time.Now())
}

// DramaScoreAt is DramaScore with an explicit reference time for the
// recency decay.
func DramaScoreAt(post models.Post, res analysis.Result, at time.Time) Breakdown {
	var b Breakdown

	interactions := float64(max(post.Interactions(), 0))
	b.Engagement = maxEngagement * math.Min(1, math.Log10(interactions+1)/math.Log10(engagementCeiling+1))

	approval := float64(max(post.Approval(), 1))
	b.Discussion = maxDiscussion * math.Min(1, float64(max(post.Discussion(), 0))/approval)

	// An upvote ratio of 0.5 is a split room; 1.0 is consensus.
	if post.UpvoteRatio > 0 && post.UpvoteRatio < 1 {
		b.Controversy = maxControversy * math.Min(1, (1-post.UpvoteRatio)/0.5)
	}

	title := " " + normalise(post.Title) + " "
	body := " " + normalise(post.Body) + " "
	var kw float64
	for phrase, weight := range dramaLexicon {
		needle := " " + phrase + " "
		switch {
		case strings.Contains(title, needle):
			kw += 2 * weight
			b.Matched = append(b.Matched, phrase)
		case strings.Contains(body, needle):
			kw += weight
			b.Matched = append(b.Matched, phrase)
		}
	}
	sort.Strings(b.Matched)
	b.Keywords = maxKeywords * math.Min(1, kw/keywordCeiling)

	b.Emotion = maxEmotion * (0.5*math.Abs(res.Sentiment) + 0.5*res.Intensity())

	b.Recency = 1
	if !post.CreatedAt.IsZero() && at.After(post.CreatedAt) {
		age := at.Sub(post.CreatedAt)
		b.Recency = 0.6 + 0.4*math.Pow(0.5, float64(age)/float64(recencyHalfLife))
	}

	sum := b.Engagement + b.Discussion + b.Controversy + b.Keywords + b.Emotion
	b.Engagement = round2(b.Engagement)
	b.Discussion = round2(b.Discussion)
	b.Controversy = round2(b.Controversy)
	b.Keywords = round2(b.Keywords)
	b.Emotion = round2(b.Emotion)
	b.Recency = round2(b.Recency)
	b.Total = clamp(round2(sum*b.Recency), 0, 10)
	return b
}

// Candidate is a scored source post.
type Candidate struct {
	Post     models.Post
	Analysis analysis.Result
	Score    Breakdown
}

// Rank scores posts, drops those under minScore and returns at most limit
// candidates, best first. analyses is matched to posts by index; posts
// without an analysis are analysed here. A limit of zero or less means no
// limit.
func Rank(posts []models.Post, analyses []analysis.Result, minScore float64, limit int) []Candidate {
	now := time.Now()
	out := make([]Candidate, 0, len(posts))
	for i, p := range posts {
		var res analysis.Result
		if i < len(analyses) {
			res = analyses[i]
		} else {
			res = analysis.Analyze(p.Text())
		}
		score := DramaScoreAt(p, res, now)
		if score.Total < minScore {
			continue
		}
		out = append(out, Candidate{Post: p, Analysis: res, Score: score})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score.Total != b.Score.Total {
			return a.Score.Total > b.Score.Total
		}
		if a.Post.Discussion() != b.Post.Discussion() {
			return a.Post.Discussion() > b.Post.Discussion()
		}
		return a.Post.ExternalID < b.Post.ExternalID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ViralScore rates a generated story on a 0-10 scale: half carried over
// from the source drama score, half from how rich the story is.
func ViralScore(story *models.Story) float64 {
	if story == nil {
		return 0
	}

	types := make(map[string]bool)
	var hasQuiz, hasComments, hasMedia bool
	for _, s := range story.Content.Sections {
		base := models.BaseSectionType(s.Type)
		types[base] = true
		switch base {
		case models.SectionQuiz:
			hasQuiz = s.Quiz != nil && len(s.Quiz.Questions) > 0
		case models.SectionComments:
			hasComments = hasComments || len(s.Comments) > 0
		case models.SectionGIF, models.SectionVideo:
			hasMedia = true
		case models.SectionImage:
			hasMedia = hasMedia || (s.Image != nil && s.Image.URL != "")
		}
	}
	if story.ImageURL != "" {
		hasMedia = true
	}

	structure := 2 * math.Min(1, float64(len(types))/7)
	for _, ok := range []bool{hasQuiz, hasComments, hasMedia} {
		if ok {
			structure += 0.75
		}
	}
	if n := len([]rune(story.Title)); n >= 40 && n <= 90 {
		structure += 0.75
	}

	return clamp(round2(0.5*clamp(story.DramaScore, 0, 10)+structure), 0, 10)
}

// EngagementSeed returns the starting counters for a new story. The same
// slug and viral score always produce the same numbers.
func EngagementSeed(story *models.Story) models.Engagement {
	if story == nil {
		return models.Engagement{}
	}
	h := fnv.New64a()
	h.Write([]byte(story.Slug))
	seed := h.Sum64()
	r := rand.New(rand.NewPCG(seed, seed>>1|1))

	viral := clamp(story.ViralScore, 0, 10)
	views := int((500 + viral*400) * (0.8 + 0.4*r.Float64()))
	upvotes := int(float64(views) * (0.04 + 0.04*r.Float64()))
	return models.Engagement{
		Views:     views,
		Upvotes:   upvotes,
		Comments:  int(float64(upvotes) * (0.10 + 0.15*r.Float64())),
		Shares:    int(float64(upvotes) * (0.05 + 0.10*r.Float64())),
		Bookmarks: int(float64(upvotes) * (0.03 + 0.07*r.Float64())),
	}
}

func normalise(s string) string {
	s = strings.ToLower(s)
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', ',', '!', '?', ':', ';', '(', ')', '[', ']', '"':
			return ' '
		}
		return r
	}, s)
}

func clamp(f, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, f))
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
