package analysis

var positiveWords = map[string]float64{
	"love": 1, "happy": 1, "great": 1, "amazing": 1.5, "wholesome": 1.5,
	"thank": 0.5, "thanks": 0.5, "grateful": 1, "proud": 1, "best": 1,
	"awesome": 1.5, "good": 0.5, "glad": 1, "kind": 0.5, "sweet": 0.5,
	"win": 1, "won": 1, "justice": 1, "relieved": 1, "finally": 0.5,
	"support": 0.5, "helped": 0.5, "beautiful": 1, "perfect": 1, "hilarious": 1,
}

var negativeWords = map[string]float64{
	"hate": 1.5, "angry": 1, "furious": 1.5, "terrible": 1.5, "awful": 1.5,
	"worst": 1.5, "bad": 0.5, "rude": 1, "entitled": 1, "cheated": 1.5,
	"lied": 1, "liar": 1, "betrayed": 1.5, "fired": 1, "screamed": 1,
	"yelled": 1, "toxic": 1.5, "disgusting": 1.5, "ruined": 1.5, "refused": 0.5,
	"stole": 1.5, "steal": 1, "insulted": 1, "humiliated": 1.5, "crying": 1,
	"cried": 1, "upset": 1, "sad": 1, "scared": 1, "kicked": 1,
	"petty": 0.5, "drama": 0.5, "nightmare": 1.5, "abuse": 2, "blamed": 1,
}

var negators = map[string]bool{
	"not": true, "never": true, "no": true, "don't": true, "didn't": true,
	"isn't": true, "wasn't": true, "can't": true, "won't": true, "hardly": true,
}

var emotionOrder = []string{Anger, Joy, Surprise, Sadness, Fear, Disgust}

var emotionLexicon = map[string]map[string]bool{
	Anger: set("angry", "furious", "rage", "mad", "livid", "yelled", "screamed",
		"hate", "pissed", "outraged", "fuming", "slammed", "revenge", "petty"),
	Joy: set("happy", "love", "laughed", "hilarious", "wholesome", "glad",
		"excited", "celebrate", "proud", "thrilled", "grateful", "justice"),
	Surprise: set("shocked", "suddenly", "unexpected", "twist", "surprised",
		"wtf", "unbelievable", "plot", "turns", "actually", "revealed"),
	Sadness: set("sad", "cried", "crying", "heartbroken", "lonely", "lost",
		"grief", "miss", "depressed", "hurt", "tears"),
	Fear: set("scared", "afraid", "terrified", "panic", "anxious", "threatened",
		"worried", "creepy", "stalking", "danger"),
	Disgust: set("disgusting", "gross", "nasty", "vile", "entitled", "creep",
		"cheated", "lied", "betrayed", "toxic"),
}

var stopwords = set(
	"the", "and", "that", "this", "with", "have", "from", "they", "their",
	"them", "then", "than", "there", "were", "what", "when", "where", "which",
	"would", "could", "should", "about", "after", "before", "because", "been",
	"being", "into", "just", "like", "more", "most", "much", "only", "other",
	"over", "some", "such", "very", "will", "your", "yours", "said", "says",
	"also", "even", "ever", "every", "here", "how", "its", "it's", "i'm",
	"i've", "she", "he", "her", "his", "him", "you", "our", "out", "was",
	"are", "for", "not", "but", "all", "any", "can", "had", "has", "did",
	"does", "doing", "don't", "didn't", "know", "still", "really", "going",
	"want", "told", "tell", "asked", "back", "time", "years", "year", "thing",
	"things", "update", "edit", "post", "reddit", "aita", "wibta", "tl;dr",
	"my", "me", "so", "so,", "a", "an", "to", "of", "in", "on", "at", "is",
	"it", "be", "as", "or", "if", "we", "us", "do", "up", "am", "i", "get",
	"got", "one", "two", "now", "while", "well", "who", "why", "way", "make",
	"made", "see", "saw", "say", "went", "come", "came", "take", "took",
	"these", "those", "though", "through", "again", "both", "each", "few",
	"own", "same", "too", "off", "down", "day", "days", "week", "last",
	"first", "since", "until", "let", "gonna", "wanna", "yeah", "okay",
)

func set(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}
