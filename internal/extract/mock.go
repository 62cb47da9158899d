package extract

import (
	"context"

	"github.com/haldanelabs/nightshift/internal/domain"
)

// MockExtractor is a configurable extractor for testing and local runs. Set
// the response fields to control what Extract returns.
type MockExtractor struct {
	Response []domain.ExtractedFact
	Err      error

	// Call tracking for assertions
	Calls []string
}

func NewMockExtractor() *MockExtractor {
	return &MockExtractor{Response: []domain.ExtractedFact{}}
}

func (m *MockExtractor) Extract(ctx context.Context, text string) ([]domain.ExtractedFact, error) {
	m.Calls = append(m.Calls, text)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Response, nil
}
