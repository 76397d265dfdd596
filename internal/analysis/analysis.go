// Package analysis extracts sentiment, emotions, entities and keywords from
// source text with local lexicon heuristics.
package analysis

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Sentiment labels.
const (
	Positive = "positive"
	Negative = "negative"
	Neutral  = "neutral"
)

// Emotions tracked by Analyze.
const (
	Anger    = "anger"
	Joy      = "joy"
	Surprise = "surprise"
	Sadness  = "sadness"
	Fear     = "fear"
	Disgust  = "disgust"
)

// Result is the outcome of analysing one piece of text.
type Result struct {
	Sentiment float64            `json:"sentiment"`
	Label     string             `json:"label"`
	Emotions  map[string]float64 `json:"emotions"`
	Dominant  string             `json:"dominant_emotion"`
	Entities  []string           `json:"entities"`
	Keywords  []string           `json:"keywords"`
}

// Intensity is the strength of the dominant emotion in [0,1].
func (r Result) Intensity() float64 {
	if r.Dominant == "" {
		return 0
	}
	return r.Emotions[r.Dominant]
}

const maxKeywords = 8

var (
	reWord      = regexp.MustCompile(`[A-Za-z][A-Za-z']+`)
	reHandle    = regexp.MustCompile(`@[A-Za-z0-9_]{2,15}`)
	reCommunity = regexp.MustCompile(`\br/[A-Za-z0-9_]{2,21}`)
	reCapPhrase = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)+\b`)
)

// Analyze scores text. Empty text yields a neutral result with no emotion.
func Analyze(text string) Result {
	res := Result{Label: Neutral, Emotions: make(map[string]float64)}
	words := tokenize(text)
	if len(words) == 0 {
		return res
	}

	var pos, neg float64
	emotionHits := make(map[string]float64)
	for i, w := range words {
		weight := 1.0
		if i > 0 && negators[words[i-1]] {
			weight = -1
		}
		if v, ok := positiveWords[w]; ok {
			if weight > 0 {
				pos += v
			} else {
				neg += v
			}
		}
		if v, ok := negativeWords[w]; ok {
			if weight > 0 {
				neg += v
			} else {
				pos += v * 0.5
			}
		}
		for emotion, lexicon := range emotionLexicon {
			if lexicon[w] {
				emotionHits[emotion]++
			}
		}
	}

	if total := pos + neg; total > 0 {
		res.Sentiment = round2((pos - neg) / total)
	}
	switch {
	case res.Sentiment >= 0.2:
		res.Label = Positive
	case res.Sentiment <= -0.2:
		res.Label = Negative
	}

	// Emotion strength saturates: a handful of hits in a short post is as
	// strong as many hits in a long one.
	norm := math.Max(4, math.Sqrt(float64(len(words))))
	best := 0.0
	for _, emotion := range emotionOrder {
		hits := emotionHits[emotion]
		if hits == 0 {
			continue
		}
		strength := round2(math.Min(1, hits/norm))
		res.Emotions[emotion] = strength
		if strength > best {
			best = strength
			res.Dominant = emotion
		}
	}

	res.Entities = extractEntities(text)
	res.Keywords = extractKeywords(words)
	return res
}

func tokenize(text string) []string {
	raw := reWord.FindAllString(text, -1)
	out := make([]string, 0, len(raw))
	for _, w := range raw {
		out = append(out, strings.Trim(strings.ToLower(w), "'"))
	}
	return out
}

func extractEntities(text string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		key := strings.ToLower(s)
		if seen[key] || len(out) >= 12 {
			return
		}
		seen[key] = true
		out = append(out, s)
	}

	for _, m := range reCommunity.FindAllString(text, -1) {
		add(m)
	}
	for _, m := range reHandle.FindAllString(text, -1) {
		add(m)
	}
	for _, m := range reCapPhrase.FindAllString(text, -1) {
		if first := strings.ToLower(strings.Fields(m)[0]); stopwords[first] {
			continue
		}
		add(m)
	}
	return out
}

func extractKeywords(words []string) []string {
	freq := make(map[string]int)
	first := make(map[string]int)
	for i, w := range words {
		if len(w) < 4 || stopwords[w] || !isAlpha(w) {
			continue
		}
		if _, ok := freq[w]; !ok {
			first[w] = i
		}
		freq[w]++
	}

	keys := make([]string, 0, len(freq))
	for w := range freq {
		keys = append(keys, w)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if freq[a] != freq[b] {
			return freq[a] > freq[b]
		}
		return first[a] < first[b]
	})
	if len(keys) > maxKeywords {
		keys = keys[:maxKeywords]
	}
	return keys
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && r != '\'' {
			return false
		}
	}
	return true
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
