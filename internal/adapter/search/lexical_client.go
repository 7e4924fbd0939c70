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

	"rerank-pipeline/internal/domain"
)

// lexicalSearchRequest is the payload for the search-indexer lexical endpoint.
type lexicalSearchRequest struct {
	Query       string   `json:"query"`
	DocumentIDs []string `json:"document_ids,omitempty"`
	SearchType  string   `json:"search_type"`
	Limit       int      `json:"limit"`
}

type lexicalHit struct {
	DocumentID string         `json:"document_id"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Score      float64        `json:"score"`
}

type lexicalSearchResponse struct {
	Query string       `json:"query"`
	Hits  []lexicalHit `json:"hits"`
}

// LexicalClient implements domain.LexicalSearcher via the search-indexer
// service. Hits come back sorted by relevance; ranks are assigned 1-based
// from the response order.
type LexicalClient struct {
	BaseURL string
	Client  *http.Client
	logger  *slog.Logger
}

// NewLexicalClient constructs the client.
func NewLexicalClient(baseURL string, timeoutSec int, logger *slog.Logger) *LexicalClient {
	return &LexicalClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client: &http.Client{
			Timeout: time.Duration(timeoutSec) * time.Second,
		},
		logger: logger,
	}
}

// SearchLexical runs keyword search restricted to documentIDs.
func (c *LexicalClient) SearchLexical(
	ctx context.Context,
	query string,
	documentIDs []string,
	searchType domain.LexicalSearchType,
	limit int,
) ([]domain.LexicalResult, error) {
	startTime := time.Now()

	reqBody := lexicalSearchRequest{
		Query:       query,
		DocumentIDs: documentIDs,
		SearchType:  string(searchType),
		Limit:       limit,
	}
	jsonPayload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lexical search request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/search", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonPayload))
	if err != nil {
		return nil, fmt.Errorf("failed to create lexical search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lexical search request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("lexical search returned %d: %s", resp.StatusCode, string(body))
	}

	var sResp lexicalSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sResp); err != nil {
		return nil, fmt.Errorf("failed to decode lexical search response: %w", err)
	}

	results := make([]domain.LexicalResult, len(sResp.Hits))
	for i, h := range sResp.Hits {
		results[i] = domain.LexicalResult{
			DocumentID: h.DocumentID,
			Content:    h.Content,
			Metadata:   h.Metadata,
			Rank:       i + 1,
			Score:      h.Score,
		}
	}

	c.logger.Info("lexical_search_completed",
		slog.String("search_type", string(searchType)),
		slog.Int("hit_count", len(results)),
		slog.Int64("elapsed_ms", time.Since(startTime).Milliseconds()))

	return results, nil
}
