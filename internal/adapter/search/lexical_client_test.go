package search

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rerank-pipeline/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func TestLexicalClient_SearchLexical_AssignsRanks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/search", r.URL.Path)

		var req lexicalSearchRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		require.NoError(t, err)

		assert.Equal(t, "golang concurrency", req.Query)
		assert.Equal(t, "bm25", req.SearchType)
		assert.Equal(t, []string{"doc-1", "doc-2"}, req.DocumentIDs)
		assert.Equal(t, 50, req.Limit)

		resp := lexicalSearchResponse{
			Query: req.Query,
			Hits: []lexicalHit{
				{DocumentID: "doc-2", Content: "goroutines and channels", Score: 7.2},
				{DocumentID: "doc-1", Content: "sync primitives", Score: 3.1},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewLexicalClient(server.URL, 5, testLogger())

	results, err := client.SearchLexical(context.Background(), "golang concurrency",
		[]string{"doc-1", "doc-2"}, domain.LexicalBM25, 50)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "doc-2", results[0].DocumentID)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, 7.2, results[0].Score)
	assert.Equal(t, "doc-1", results[1].DocumentID)
	assert.Equal(t, 2, results[1].Rank)
}

func TestLexicalClient_SearchLexical_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewLexicalClient(server.URL, 5, testLogger())

	_, err := client.SearchLexical(context.Background(), "query", nil, domain.LexicalBasic, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestQueryExpanderClient_Expand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/expand-query", r.URL.Path)

		var req expandQueryRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		require.NoError(t, err)
		assert.Equal(t, "go errors", req.Query)

		resp := expandQueryResponse{
			ExpandedQuery: "go errors error handling wrapping",
			OriginalQuery: req.Query,
			Model:         "test-model",
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewQueryExpanderClient(server.URL, 5, testLogger())

	expanded, err := client.Expand(context.Background(), "go errors")
	require.NoError(t, err)
	assert.Equal(t, "go errors error handling wrapping", expanded)
}

func TestQueryExpanderClient_EmptyExpansionFallsBackToOriginal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(expandQueryResponse{})
	}))
	defer server.Close()

	client := NewQueryExpanderClient(server.URL, 5, testLogger())

	expanded, err := client.Expand(context.Background(), "original query")
	require.NoError(t, err)
	assert.Equal(t, "original query", expanded)
}
