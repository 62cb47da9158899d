// Package extract wraps the external fact-extraction service with the
// pre-filtering and rate limiting that keep its cost under control.
package extract

import (
	"context"
	"strings"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/haldanelabs/nightshift/internal/domain"
)

// MinObservationLength is the shortest text, in runes, worth sending to
// extraction.
const MinObservationLength = 50

// topicalSignals are cheap markers that an observation likely contains a fact
// about the user. Anything without one is skipped before the extraction call.
var topicalSignals = []string{
	"prefer", "like", "love", "hate", "dislike", "enjoy",
	"always", "never", "usually", "often", "every",
	"want", "need", "plan", "goal", "trying",
	"meeting", "schedule", "calendar", "email", "remind",
	"morning", "evening", "weekend", "deadline",
}

// WorthExtracting applies the pre-filter: minimum length plus at least one
// topical keyword signal.
func WorthExtracting(text string) bool {
	if utf8.RuneCountInString(text) < MinObservationLength {
		return false
	}
	lower := strings.ToLower(text)
	for _, kw := range topicalSignals {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// RateLimited throttles calls to an inner extractor. It is constructed
// explicitly and passed by reference; there is no package-level limiter.
type RateLimited struct {
	inner   domain.Extractor
	limiter *rate.Limiter
}

func NewRateLimited(inner domain.Extractor, rps float64, burst int) *RateLimited {
	return &RateLimited{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (r *RateLimited) Extract(ctx context.Context, text string) ([]domain.ExtractedFact, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Extract(ctx, text)
}
