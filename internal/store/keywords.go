package store

import (
	"strings"

	"github.com/google/uuid"
)

// maxSimilarityTokens bounds the number of ILIKE conditions per query.
const maxSimilarityTokens = 8

// keywords tokenizes a statement for the similarity lookup: lowercase, strip
// punctuation, drop tokens of 3 characters or fewer. This is a deliberate
// heuristic placeholder for a semantic-similarity backend.
func keywords(statement string) []string {
	fields := strings.FieldsFunc(strings.ToLower(statement), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})

	var tokens []string
	seen := make(map[string]bool)
	for _, f := range fields {
		if len(f) <= 3 || seen[f] {
			continue
		}
		seen[f] = true
		tokens = append(tokens, f)
		if len(tokens) == maxSimilarityTokens {
			break
		}
	}
	return tokens
}

// CanonicalPair orders two belief ids so that an unordered pair always maps to
// the same (a, b) key.
func CanonicalPair(x, y uuid.UUID) (uuid.UUID, uuid.UUID) {
	if strings.Compare(x.String(), y.String()) > 0 {
		return y, x
	}
	return x, y
}
