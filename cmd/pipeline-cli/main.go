package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	version = "dev"

	// Global flags
	serverURL string
	timeout   time.Duration

	// Rerank command flags
	rerankQuery    string
	documentsFile  string
	topK           int
	providerName   string
	modelName      string
	userID         string
	disableCaching bool

	// Search command flags
	searchQuery    string
	docIDs         []string
	initialLimit   int
	finalLimit     int
	semanticWeight float64
	lexicalWeight  float64
	searchType     string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "pipeline",
	Short:   "Interact with the re-ranking pipeline service",
	Version: version,
}

var rerankCmd = &cobra.Command{
	Use:   "rerank",
	Short: "Re-rank documents against a query",
	Long: `Re-rank a set of documents against a query using the pipeline service.

Documents are read as a JSON array from --file, or from stdin when the
flag is omitted.

Examples:
  # Re-rank documents from a file
  pipeline rerank --query "go concurrency" --file docs.json --user alice

  # Pipe documents in and use the heuristic strategy
  cat docs.json | pipeline rerank --query "go concurrency" --user alice --provider enhanced_fallback`,
	RunE: runRerank,
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Run a two-stage search over a document set",
	RunE:  runSearch,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show pipeline health",
	RunE:  showHealth,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9020", "pipeline service base URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")

	rerankCmd.Flags().StringVar(&rerankQuery, "query", "", "query to rank against (required)")
	rerankCmd.Flags().StringVar(&documentsFile, "file", "", "JSON file with documents, stdin if omitted")
	rerankCmd.Flags().IntVar(&topK, "top-k", 0, "number of results to return")
	rerankCmd.Flags().StringVar(&providerName, "provider", "", "scoring strategy")
	rerankCmd.Flags().StringVar(&modelName, "model", "", "provider model")
	rerankCmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	rerankCmd.Flags().BoolVar(&disableCaching, "no-cache", false, "bypass the result cache")
	_ = rerankCmd.MarkFlagRequired("query")
	_ = rerankCmd.MarkFlagRequired("user")

	searchCmd.Flags().StringVar(&searchQuery, "query", "", "search query (required)")
	searchCmd.Flags().StringSliceVar(&docIDs, "doc-ids", nil, "document ids to search within (required)")
	searchCmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	searchCmd.Flags().IntVar(&initialLimit, "initial-limit", 0, "stage-1 candidate cap")
	searchCmd.Flags().IntVar(&finalLimit, "final-limit", 0, "final result cap")
	searchCmd.Flags().Float64Var(&semanticWeight, "semantic-weight", 0, "semantic fusion weight")
	searchCmd.Flags().Float64Var(&lexicalWeight, "lexical-weight", 0, "lexical fusion weight")
	searchCmd.Flags().StringVar(&searchType, "search-type", "", "lexical search type (basic, bm25, phrase, proximity)")
	_ = searchCmd.MarkFlagRequired("query")
	_ = searchCmd.MarkFlagRequired("doc-ids")
	_ = searchCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(rerankCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(healthCmd)
}

func runRerank(cmd *cobra.Command, args []string) error {
	var docsData []byte
	var err error
	if documentsFile != "" {
		docsData, err = os.ReadFile(documentsFile)
		if err != nil {
			return fmt.Errorf("failed to read documents file: %w", err)
		}
	} else {
		docsData, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read documents from stdin: %w", err)
		}
	}

	var documents []map[string]any
	if err := json.Unmarshal(docsData, &documents); err != nil {
		return fmt.Errorf("documents must be a JSON array: %w", err)
	}

	payload := map[string]any{
		"query":     rerankQuery,
		"documents": documents,
		"userId":    userID,
	}
	if topK > 0 {
		payload["topK"] = topK
	}
	if providerName != "" {
		payload["rerankingProvider"] = providerName
	}
	if modelName != "" {
		payload["model"] = modelName
	}
	if disableCaching {
		payload["enableCaching"] = false
	}

	return postJSON("/v1/rerank", payload)
}

func runSearch(cmd *cobra.Command, args []string) error {
	payload := map[string]any{
		"query":       searchQuery,
		"documentIds": docIDs,
		"userId":      userID,
	}
	if initialLimit > 0 {
		payload["initialLimit"] = initialLimit
	}
	if finalLimit > 0 {
		payload["finalLimit"] = finalLimit
	}
	if semanticWeight > 0 || lexicalWeight > 0 {
		payload["semanticWeight"] = semanticWeight
		payload["lexicalWeight"] = lexicalWeight
	}
	if searchType != "" {
		payload["lexicalSearchType"] = searchType
	}

	return postJSON("/v1/two-stage-search", payload)
}

func showHealth(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(strings.TrimRight(serverURL, "/") + "/v1/rerank/health")
	if err != nil {
		return fmt.Errorf("health request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	return printResponse(resp)
}

func postJSON(path string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	client := &http.Client{Timeout: timeout}
	url := strings.TrimRight(serverURL, "/") + path
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	return printResponse(resp)
}

func printResponse(resp *http.Response) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		fmt.Println(string(data))
	} else {
		fmt.Println(pretty.String())
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return nil
}
