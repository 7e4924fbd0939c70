package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ProviderConfig holds the external re-ranking provider settings.
type ProviderConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	RequestsPerSec float64
	TimeoutSec     int
}

// CrossEncoderConfig holds the self-hosted cross-encoder settings. An empty
// BaseURL disables the cross-encoder strategy.
type CrossEncoderConfig struct {
	BaseURL    string
	Model      string
	TimeoutSec int
}

// EmbeddingConfig holds the embedding service settings for Stage-1.
type EmbeddingConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	CacheSize int
	CacheTTL  time.Duration
}

// RetrievalConfig holds the Stage-1 hybrid search defaults.
type RetrievalConfig struct {
	SemanticWeight    float64
	LexicalWeight     float64
	SemanticThreshold float64
	LexicalThreshold  float64
	SearchLimit       int
	SearchType        string
	ScoringMethod     string
	RRFK              float64
	LexicalURL        string
	LexicalTimeoutSec int
	ExpanderURL       string
}

// ResilienceConfig holds the circuit breaker, retry, and cache settings.
type ResilienceConfig struct {
	BreakerFailureThreshold int
	BreakerCooldownSec      int
	BreakerSuccessThreshold int
	RetryMaxAttempts        int
	RetryBaseDelayMs        int
	RetryMaxDelayMs         int
	CacheSize               int
	CacheTTLSec             int
}

// Config is the process-wide configuration, loaded once at startup.
type Config struct {
	Env          string
	Port         string
	DBHost       string
	DBPort       string
	DBUser       string
	DBPassword   string
	DBName       string
	Provider     ProviderConfig
	CrossEncoder CrossEncoderConfig
	Embedding    EmbeddingConfig
	Retrieval    RetrievalConfig
	Resilience   ResilienceConfig
}

// Load reads configuration from the environment with production defaults.
func Load() *Config {
	return &Config{
		Env:        getEnv("ENV", "development"),
		Port:       getEnv("PORT", "9020"),
		DBHost:     getEnv("DB_HOST", "pipeline-db"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "pipeline_user"),
		DBPassword: getSecret("DB_PASSWORD", "DB_PASSWORD_FILE", "pipeline_password"),
		DBName:     getEnv("DB_NAME", "pipeline_db"),
		Provider: ProviderConfig{
			BaseURL:        getEnv("RERANK_PROVIDER_URL", "https://api.cohere.com"),
			APIKey:         getSecret("RERANK_PROVIDER_API_KEY", "RERANK_PROVIDER_API_KEY_FILE", ""),
			Model:          getEnv("RERANK_PROVIDER_MODEL", "rerank-english-v3.0"),
			RequestsPerSec: getEnvFloat("RERANK_PROVIDER_RPS", 10),
			TimeoutSec:     getEnvInt("RERANK_PROVIDER_TIMEOUT_SEC", 30),
		},
		CrossEncoder: CrossEncoderConfig{
			BaseURL:    getEnv("CROSS_ENCODER_URL", ""),
			Model:      getEnv("CROSS_ENCODER_MODEL", "bge-reranker-v2-m3"),
			TimeoutSec: getEnvInt("CROSS_ENCODER_TIMEOUT_SEC", 30),
		},
		Embedding: EmbeddingConfig{
			BaseURL:   getEnv("EMBEDDING_URL", ""),
			APIKey:    getSecret("EMBEDDING_API_KEY", "EMBEDDING_API_KEY_FILE", ""),
			Model:     getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			CacheSize: getEnvInt("EMBEDDING_CACHE_SIZE", 512),
			CacheTTL:  time.Duration(getEnvInt("EMBEDDING_CACHE_TTL_SEC", 600)) * time.Second,
		},
		Retrieval: RetrievalConfig{
			SemanticWeight:    getEnvFloat("RETRIEVAL_SEMANTIC_WEIGHT", 0.7),
			LexicalWeight:     getEnvFloat("RETRIEVAL_LEXICAL_WEIGHT", 0.3),
			SemanticThreshold: getEnvFloat("RETRIEVAL_SEMANTIC_THRESHOLD", 0.3),
			LexicalThreshold:  getEnvFloat("RETRIEVAL_LEXICAL_THRESHOLD", 0.1),
			SearchLimit:       getEnvInt("RETRIEVAL_SEARCH_LIMIT", 50),
			SearchType:        getEnv("RETRIEVAL_SEARCH_TYPE", "bm25"),
			ScoringMethod:     getEnv("RETRIEVAL_SCORING_METHOD", "weighted_sum"),
			RRFK:              getEnvFloat("RETRIEVAL_RRF_K", 60),
			LexicalURL:        getEnv("LEXICAL_SEARCH_URL", "http://search-indexer:9300"),
			LexicalTimeoutSec: getEnvInt("LEXICAL_SEARCH_TIMEOUT_SEC", 10),
			ExpanderURL:       getEnv("QUERY_EXPANDER_URL", ""),
		},
		Resilience: ResilienceConfig{
			BreakerFailureThreshold: getEnvInt("BREAKER_FAILURE_THRESHOLD", 5),
			BreakerCooldownSec:      getEnvInt("BREAKER_COOLDOWN_SEC", 60),
			BreakerSuccessThreshold: getEnvInt("BREAKER_SUCCESS_THRESHOLD", 3),
			RetryMaxAttempts:        getEnvInt("RETRY_MAX_ATTEMPTS", 3),
			RetryBaseDelayMs:        getEnvInt("RETRY_BASE_DELAY_MS", 1000),
			RetryMaxDelayMs:         getEnvInt("RETRY_MAX_DELAY_MS", 10000),
			CacheSize:               getEnvInt("RESULT_CACHE_SIZE", 1000),
			CacheTTLSec:             getEnvInt("RESULT_CACHE_TTL_SEC", 3600),
		},
	}
}

// DSN builds the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getSecret(envKey, fileEnvKey, fallback string) string {
	if value, ok := os.LookupEnv(envKey); ok {
		return value
	}
	if filePath, ok := os.LookupEnv(fileEnvKey); ok {
		content, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
