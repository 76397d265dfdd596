package analysis

import (
	"strings"

	"github.com/threadjuice/threadjuice/internal/models"
)

// Story categories.
const (
	CategoryRelationships = "relationships"
	CategoryWorkplace     = "workplace"
	CategoryFamily        = "family"
	CategoryNeighbors     = "neighbors"
	CategoryWeddings      = "weddings"
	CategoryMoney         = "money"
	CategoryTech          = "tech"
	CategoryEntertainment = "entertainment"
	CategoryViral         = "viral"
)

// Categories lists every category DetectCategory can return.
var Categories = []string{
	CategoryRelationships, CategoryWorkplace, CategoryFamily, CategoryNeighbors,
	CategoryWeddings, CategoryMoney, CategoryTech, CategoryEntertainment, CategoryViral,
}

var communityCategories = map[string]string{
	"relationship_advice":   CategoryRelationships,
	"relationships":         CategoryRelationships,
	"amitheasshole":         CategoryRelationships,
	"antiwork":              CategoryWorkplace,
	"maliciouscompliance":   CategoryWorkplace,
	"talesfromretail":       CategoryWorkplace,
	"talesfromtechsupport":  CategoryTech,
	"prorevenge":            CategoryWorkplace,
	"entitledparents":       CategoryFamily,
	"justnomil":             CategoryFamily,
	"raisedbynarcissists":   CategoryFamily,
	"bridezillas":           CategoryWeddings,
	"weddingshaming":        CategoryWeddings,
	"choosingbeggars":       CategoryMoney,
	"personalfinance":       CategoryMoney,
	"neighborsfromhell":     CategoryNeighbors,
	"fuckhoa":               CategoryNeighbors,
	"pettyrevenge":          CategoryNeighbors,
	"tifu":                  CategoryViral,
	"television":            CategoryEntertainment,
	"entertainment":         CategoryEntertainment,
	"popculturechat":        CategoryEntertainment,
}

var categoryKeywords = map[string][]string{
	CategoryWeddings:      {"wedding", "bride", "groom", "bridesmaid", "engagement", "reception", "maid of honor"},
	CategoryWorkplace:     {"boss", "manager", "coworker", "job", "fired", "hr", "office", "shift", "quit", "salary", "promotion"},
	CategoryFamily:        {"mom", "dad", "mother", "father", "sister", "brother", "in-law", "mil", "parents", "grandma", "cousin"},
	CategoryNeighbors:     {"neighbor", "neighbour", "hoa", "fence", "driveway", "yard", "parking"},
	CategoryRelationships: {"boyfriend", "girlfriend", "husband", "wife", "partner", "dating", "ex", "cheated", "divorce"},
	CategoryMoney:         {"money", "rent", "loan", "paid", "venmo", "debt", "inheritance", "bill", "tip"},
	CategoryTech:          {"app", "software", "computer", "ai", "startup", "iphone", "server", "code", "tech"},
	CategoryEntertainment: {"movie", "show", "celebrity", "concert", "netflix", "album", "actor", "streamer"},
}

// categoryOrder breaks keyword ties toward the more specific category.
var categoryOrder = []string{
	CategoryWeddings, CategoryWorkplace, CategoryNeighbors, CategoryFamily,
	CategoryRelationships, CategoryMoney, CategoryTech, CategoryEntertainment,
}

// DetectCategory maps a post to a story category: the subreddit wins when it
// is a known one, then keyword matches over title and body, then "viral".
func DetectCategory(post models.Post) string {
	if c, ok := communityCategories[strings.ToLower(post.Community)]; ok {
		return c
	}

	text := " " + strings.ToLower(post.Text()) + " "
	best, bestHits := CategoryViral, 0
	for _, category := range categoryOrder {
		hits := 0
		for _, kw := range categoryKeywords[category] {
			if strings.Contains(text, " "+kw+" ") || strings.Contains(text, " "+kw+"s ") ||
				strings.Contains(text, " "+kw+"'s ") || strings.Contains(text, " "+kw+",") ||
				strings.Contains(text, " "+kw+".") {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = category, hits
		}
	}
	return best
}
