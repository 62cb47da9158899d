package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/haldanelabs/nightshift/internal/domain"
)

// HTTPClient calls an external LLM-backed extraction service over a simple
// JSON POST contract.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

type extractRequest struct {
	Text string `json:"text"`
}

type extractResponse struct {
	Facts []domain.ExtractedFact `json:"facts"`
	Error string                 `json:"error,omitempty"`
}

func (c *HTTPClient) Extract(ctx context.Context, text string) ([]domain.ExtractedFact, error) {
	body, err := json.Marshal(extractRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshal extract request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/extract", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create extract request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extract request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read extract response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extraction service returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result extractResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("unmarshal extract response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("extraction service error: %s", result.Error)
	}

	out := result.Facts[:0]
	for _, f := range result.Facts {
		if f.Statement == "" || !domain.ValidLearningCategory(string(f.Category)) {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}
