package gap

import (
	"math"
	"strings"
)

var (
	strongIntentWords = []string{
		"best", "top", "alternative", "alternatives", "vs", "versus", "pricing", "price",
		"cost", "review", "reviews", "compare", "comparison", "buy", "recommend", "cheapest",
	}
	mediumIntentWords = []string{
		"worth", "should", "legit", "trial", "pros", "cons", "competitors", "like", "good", "tools", "software",
	}
	informationalPhrases = []string{"what is", "who is", "who founded", "where is", "how do i contact"}
)

// BuyerIntent estimates how strongly a query signals active product
// evaluation, in [0,1].
func BuyerIntent(query string) float64 {
	q := strings.ToLower(query)
	words := strings.FieldsFunc(q, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}

	score := 0.3
	strong := 0
	for _, w := range strongIntentWords {
		if set[w] {
			strong++
		}
	}
	if strong > 0 {
		score += 0.4 + math.Min(0.2, 0.1*float64(strong-1))
	}
	for _, w := range mediumIntentWords {
		if set[w] {
			score += 0.2
			break
		}
	}
	for _, p := range informationalPhrases {
		if strings.Contains(q, p) {
			score -= 0.15
			break
		}
	}

	score = math.Max(0, math.Min(1, score))
	return math.Round(score*100) / 100
}
