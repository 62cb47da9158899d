package service

import (
	"strings"

	"github.com/haldanelabs/nightshift/internal/domain"
)

// Default thresholds for the keyword classifier. These are heuristic
// placeholders for a semantic-similarity backend and deliberately not tuned
// beyond the values the system shipped with.
const (
	DefaultDuplicateOverlap     = 0.80
	DefaultContradictionOverlap = 0.40
	DefaultTemporalOverlap      = 0.50
)

var negationTerms = []string{
	"not", "no", "never", "don't", "doesn't", "didn't", "won't", "can't",
	"cannot", "isn't", "aren't", "dislike", "dislikes", "hate", "hates",
	"stopped", "avoid", "avoids", "anymore",
}

// polarityPairs are opposing word pairs; one side appearing in each statement
// signals a contradiction when the statements otherwise overlap.
var polarityPairs = [][2]string{
	{"like", "dislike"},
	{"likes", "dislikes"},
	{"love", "hate"},
	{"loves", "hates"},
	{"always", "never"},
	{"can", "cannot"},
	{"prefers", "avoids"},
	{"is", "is not"},
}

var temporalMarkers = []string{
	"now", "currently", "recently", "these days", "used to", "no longer",
	"anymore", "lately",
}

// KeywordClassifier implements domain.SimilarityClassifier with token overlap
// and keyword pattern lists.
type KeywordClassifier struct {
	DuplicateOverlap     float64
	ContradictionOverlap float64
	TemporalOverlap      float64
}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{
		DuplicateOverlap:     DefaultDuplicateOverlap,
		ContradictionOverlap: DefaultContradictionOverlap,
		TemporalOverlap:      DefaultTemporalOverlap,
	}
}

func tokenize(s string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r != '\''
	})
	tokens := make(map[string]bool, len(fields))
	for _, f := range fields {
		if len(f) > 3 {
			tokens[f] = true
		}
	}
	return tokens
}

// overlap is the overlap coefficient: shared tokens over the smaller set.
func overlap(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	shared := 0
	for tok := range small {
		if large[tok] {
			shared++
		}
	}
	return float64(shared) / float64(len(small))
}

func containsAny(s string, terms []string) bool {
	lower := " " + strings.ToLower(s) + " "
	for _, term := range terms {
		if strings.Contains(lower, " "+term+" ") || strings.Contains(lower, " "+term+",") || strings.Contains(lower, " "+term+".") {
			return true
		}
	}
	return false
}

func hasPolarityOpposition(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	for _, pair := range polarityPairs {
		if strings.Contains(la, pair[0]) && strings.Contains(lb, pair[1]) {
			return true
		}
		if strings.Contains(la, pair[1]) && strings.Contains(lb, pair[0]) {
			return true
		}
	}
	return false
}

// Contradicts implements the consolidation heuristic: a negation term present
// in exactly one of the two statements.
func (c *KeywordClassifier) Contradicts(existing, incoming string) bool {
	return containsAny(existing, negationTerms) != containsAny(incoming, negationTerms)
}

// Classify judges a statement pair for belief formation: near-total overlap is
// a duplicate; polarity opposition over moderate overlap is a contradiction;
// temporal markers on both sides over moderate overlap is a temporal conflict.
func (c *KeywordClassifier) Classify(existing, incoming string) domain.Verdict {
	ov := overlap(tokenize(existing), tokenize(incoming))

	if ov >= c.DuplicateOverlap {
		return domain.Verdict{Kind: domain.MatchDuplicate, Overlap: ov}
	}
	if ov > c.ContradictionOverlap && (hasPolarityOpposition(existing, incoming) || c.Contradicts(existing, incoming)) {
		return domain.Verdict{Kind: domain.MatchContradiction, Overlap: ov}
	}
	if ov > c.TemporalOverlap && containsAny(existing, temporalMarkers) && containsAny(incoming, temporalMarkers) {
		return domain.Verdict{Kind: domain.MatchTemporal, Overlap: ov}
	}
	return domain.Verdict{Kind: domain.MatchDistinct, Overlap: ov}
}
