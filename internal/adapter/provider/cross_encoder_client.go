package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// crossEncoderRequest is the payload for the local cross-encoder service.
type crossEncoderRequest struct {
	Query      string   `json:"query"`
	Candidates []string `json:"candidates"`
	Model      string   `json:"model,omitempty"`
}

type crossEncoderResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

type crossEncoderResponse struct {
	Results []crossEncoderResult `json:"results"`
	Model   string               `json:"model"`
}

// CrossEncoderClient implements domain.CrossEncoder via a self-hosted
// scoring service. An empty BaseURL means no service is deployed; callers
// check Configured before use.
type CrossEncoderClient struct {
	BaseURL string
	Model   string
	client  *http.Client
	logger  *slog.Logger
}

// NewCrossEncoderClient constructs the client. baseURL may be empty when no
// cross-encoder service is deployed.
func NewCrossEncoderClient(baseURL, model string, timeout time.Duration, logger *slog.Logger) *CrossEncoderClient {
	return &CrossEncoderClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// ScorePairs scores each (query, text) pair and returns one score per input
// text, in input order.
func (c *CrossEncoderClient) ScorePairs(ctx context.Context, query string, texts []string) ([]float64, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("cross-encoder service is not configured")
	}
	if len(texts) == 0 {
		return []float64{}, nil
	}

	startTime := time.Now()

	reqBody := crossEncoderRequest{
		Query:      query,
		Candidates: texts,
		Model:      c.Model,
	}
	jsonPayload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cross-encoder request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/rerank", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonPayload))
	if err != nil {
		return nil, fmt.Errorf("failed to create cross-encoder request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("cross_encoder_failed",
			slog.String("error", err.Error()),
			slog.Int64("elapsed_ms", time.Since(startTime).Milliseconds()))
		return nil, fmt.Errorf("failed to call cross-encoder endpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.Warn("cross_encoder_failed",
			slog.Int("status_code", resp.StatusCode),
			slog.String("body", truncateString(string(body), 500)),
			slog.Int64("elapsed_ms", time.Since(startTime).Milliseconds()))
		return nil, fmt.Errorf("cross-encoder endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var ceResp crossEncoderResponse
	if err := json.NewDecoder(resp.Body).Decode(&ceResp); err != nil {
		return nil, fmt.Errorf("failed to decode cross-encoder response: %w", err)
	}

	// The service may return results in score order; map back to input order.
	scores := make([]float64, len(texts))
	seen := make([]bool, len(texts))
	for _, r := range ceResp.Results {
		if r.Index < 0 || r.Index >= len(texts) {
			return nil, fmt.Errorf("invalid result index %d for %d candidates", r.Index, len(texts))
		}
		scores[r.Index] = r.Score
		seen[r.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("cross-encoder response missing score for candidate %d", i)
		}
	}

	c.logger.Info("cross_encoder_completed",
		slog.Int("pair_count", len(scores)),
		slog.Int64("elapsed_ms", time.Since(startTime).Milliseconds()))

	return scores, nil
}

// Configured reports whether a cross-encoder service endpoint is set.
func (c *CrossEncoderClient) Configured() bool {
	return c.BaseURL != ""
}

// ModelName returns the configured model identifier.
func (c *CrossEncoderClient) ModelName() string {
	return c.Model
}
