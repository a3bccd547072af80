package invoice

import "strings"

// DefaultKeywords is the stock keyword set for spotting invoices.
var DefaultKeywords = []string{"invoice", "bill", "total", "amount due", "tax", "invoice no", "invoice #"}

const DefaultMinMatches = 2

type Classifier interface {
	Classify(text string) bool
}

type ClassifierFunc func(text string) bool

func (f ClassifierFunc) Classify(text string) bool { return f(text) }

// KeywordClassifier fires when at least MinMatches distinct keywords occur
// in the text as case-insensitive substrings.
type KeywordClassifier struct {
	Keywords   []string
	MinMatches int
}

func NewKeywordClassifier(keywords []string, minMatches int) *KeywordClassifier {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	if minMatches < 1 {
		minMatches = DefaultMinMatches
	}
	seen := make(map[string]struct{}, len(keywords))
	norm := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		norm = append(norm, kw)
	}
	return &KeywordClassifier{Keywords: norm, MinMatches: minMatches}
}

// Matches returns the keywords found in text, in keyword order.
func (c *KeywordClassifier) Matches(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, kw := range c.Keywords {
		if strings.Contains(lower, kw) {
			found = append(found, kw)
		}
	}
	return found
}

func (c *KeywordClassifier) Classify(text string) bool {
	return len(c.Matches(text)) >= c.MinMatches
}
