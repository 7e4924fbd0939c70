package search

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

// expandQueryRequest is the payload for the query expansion endpoint.
type expandQueryRequest struct {
	Query string `json:"query"`
}

type expandQueryResponse struct {
	ExpandedQuery string `json:"expanded_query"`
	OriginalQuery string `json:"original_query"`
	Model         string `json:"model"`
}

// QueryExpanderClient implements domain.QueryExpander via an LLM-backed
// expansion service. Expansion failures are non-fatal for callers, so errors
// are returned as-is without retries.
type QueryExpanderClient struct {
	BaseURL string
	Client  *http.Client
	logger  *slog.Logger
}

// NewQueryExpanderClient constructs the client.
func NewQueryExpanderClient(baseURL string, timeoutSec int, logger *slog.Logger) *QueryExpanderClient {
	return &QueryExpanderClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client: &http.Client{
			Timeout: time.Duration(timeoutSec) * time.Second,
		},
		logger: logger,
	}
}

// Expand rewrites the query into an expanded form for lexical search.
func (c *QueryExpanderClient) Expand(ctx context.Context, query string) (string, error) {
	startTime := time.Now()

	jsonPayload, err := json.Marshal(expandQueryRequest{Query: query})
	if err != nil {
		return "", fmt.Errorf("failed to marshal expand query request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/expand-query", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonPayload))
	if err != nil {
		return "", fmt.Errorf("failed to create expand query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call expand query endpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("expand query endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var expandResp expandQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&expandResp); err != nil {
		return "", fmt.Errorf("failed to decode expand query response: %w", err)
	}
	if expandResp.ExpandedQuery == "" {
		return query, nil
	}

	c.logger.Info("query_expansion_completed",
		slog.String("model", expandResp.Model),
		slog.Int64("elapsed_ms", time.Since(startTime).Milliseconds()))

	return expandResp.ExpandedQuery, nil
}
