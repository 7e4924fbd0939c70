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

	"golang.org/x/time/rate"

	"rerank-pipeline/internal/domain"
)

// cohereRerankRequest is the payload for the Cohere v2 rerank endpoint.
type cohereRerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n,omitempty"`
}

type cohereRerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type cohereRerankResponse struct {
	Results []cohereRerankResult `json:"results"`
	ID      string               `json:"id"`
}

// CohereClient implements domain.RerankProvider against the Cohere rerank
// API. Requests are throttled by a client-side limiter so bursts surface as
// local waits instead of upstream 429s.
type CohereClient struct {
	BaseURL string
	Model   string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewCohereClient constructs the client. requestsPerSec bounds the call
// rate; zero disables throttling. If httpClient is nil a default client with
// the given timeout is used.
func NewCohereClient(baseURL, apiKey, model string, requestsPerSec float64, timeout time.Duration, logger *slog.Logger, httpClient ...*http.Client) *CohereClient {
	var c *http.Client
	if len(httpClient) > 0 && httpClient[0] != nil {
		c = httpClient[0]
	} else {
		c = &http.Client{Timeout: timeout}
	}
	var limiter *rate.Limiter
	if requestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSec), 1)
	}
	return &CohereClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		apiKey:  apiKey,
		client:  c,
		limiter: limiter,
		logger:  logger,
	}
}

// Rerank scores texts against the query. Results come back in relevance
// order with indices into the input slice.
func (c *CohereClient) Rerank(ctx context.Context, query string, texts []string, topN int) ([]domain.ProviderScore, error) {
	if len(texts) == 0 {
		return []domain.ProviderScore{}, nil
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	startTime := time.Now()
	c.logger.Info("provider_rerank_started",
		slog.String("query", truncateString(query, 100)),
		slog.Int("document_count", len(texts)),
		slog.String("model", c.Model))

	reqBody := cohereRerankRequest{
		Model:     c.Model,
		Query:     query,
		Documents: texts,
		TopN:      topN,
	}
	jsonPayload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	url := fmt.Sprintf("%s/v2/rerank", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonPayload))
	if err != nil {
		return nil, fmt.Errorf("failed to create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("provider_rerank_failed",
			slog.String("error", err.Error()),
			slog.Int64("elapsed_ms", time.Since(startTime).Milliseconds()))
		return nil, fmt.Errorf("failed to call provider API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.Warn("provider_rerank_failed",
			slog.Int("status_code", resp.StatusCode),
			slog.String("body", truncateString(string(body), 500)),
			slog.Int64("elapsed_ms", time.Since(startTime).Milliseconds()))
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("provider API rate limit exceeded (429): %s", string(body))
		}
		return nil, fmt.Errorf("provider API returned %d: %s", resp.StatusCode, string(body))
	}

	var rerankResp cohereRerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&rerankResp); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}

	scores := make([]domain.ProviderScore, len(rerankResp.Results))
	for i, r := range rerankResp.Results {
		if r.Index < 0 || r.Index >= len(texts) {
			return nil, fmt.Errorf("invalid result index %d for %d documents", r.Index, len(texts))
		}
		scores[i] = domain.ProviderScore{Index: r.Index, Relevance: r.RelevanceScore}
	}

	c.logger.Info("provider_rerank_completed",
		slog.Int("result_count", len(scores)),
		slog.Int64("elapsed_ms", time.Since(startTime).Milliseconds()))

	return scores, nil
}

// ModelName returns the configured model identifier.
func (c *CohereClient) ModelName() string {
	return c.Model
}

// Name identifies the provider for circuit breaker bookkeeping.
func (c *CohereClient) Name() string {
	return "cohere"
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
