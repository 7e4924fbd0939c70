package di

import (
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"rerank-pipeline/internal/adapter/embedding"
	"rerank-pipeline/internal/adapter/provider"
	"rerank-pipeline/internal/adapter/repository"
	"rerank-pipeline/internal/adapter/search"
	"rerank-pipeline/internal/domain"
	"rerank-pipeline/internal/infra/config"
	"rerank-pipeline/internal/infra/httpclient"
	"rerank-pipeline/internal/usecase"
	"rerank-pipeline/internal/usecase/rerank"
	"rerank-pipeline/internal/usecase/retrieval"
)

// ApplicationComponents holds all wired dependencies for the application.
type ApplicationComponents struct {
	// Resilience primitives shared across usecases
	Breaker     *rerank.CircuitBreaker
	ResultCache *rerank.ResultCache

	// Adapters
	Provider      domain.RerankProvider
	CrossEncoder  domain.CrossEncoder
	Encoder       domain.VectorEncoder
	VectorSearch  domain.VectorSearcher
	LexicalSearch domain.LexicalSearcher
	Analytics     domain.AnalyticsSink

	// Usecases
	RerankUsecase   usecase.RerankUsecase
	TwoStageUsecase usecase.TwoStageUsecase
	HealthUsecase   usecase.HealthUsecase
}

// NewApplicationComponents wires all dependencies from config and the
// database pool. pool may be nil in provider-only deployments; vector search
// and analytics are disabled in that case.
func NewApplicationComponents(cfg *config.Config, pool *pgxpool.Pool, log *slog.Logger) *ApplicationComponents {
	breaker := rerank.NewCircuitBreaker(rerank.BreakerConfig{
		FailureThreshold: cfg.Resilience.BreakerFailureThreshold,
		Cooldown:         time.Duration(cfg.Resilience.BreakerCooldownSec) * time.Second,
		SuccessThreshold: cfg.Resilience.BreakerSuccessThreshold,
	})
	retryCfg := rerank.RetryConfig{
		MaxRetries: cfg.Resilience.RetryMaxAttempts,
		BaseDelay:  time.Duration(cfg.Resilience.RetryBaseDelayMs) * time.Millisecond,
		MaxDelay:   time.Duration(cfg.Resilience.RetryMaxDelayMs) * time.Millisecond,
		Jitter:     true,
	}
	resultCache := rerank.NewResultCache(
		cfg.Resilience.CacheSize,
		time.Duration(cfg.Resilience.CacheTTLSec)*time.Second,
	)

	// Shared HTTP client with connection pooling for the provider API
	providerHTTP := httpclient.NewPooledClient(time.Duration(cfg.Provider.TimeoutSec) * time.Second)

	providerClient := provider.NewCohereClient(
		cfg.Provider.BaseURL,
		cfg.Provider.APIKey,
		cfg.Provider.Model,
		cfg.Provider.RequestsPerSec,
		time.Duration(cfg.Provider.TimeoutSec)*time.Second,
		log,
		providerHTTP,
	)
	crossEncoder := provider.NewCrossEncoderClient(
		cfg.CrossEncoder.BaseURL,
		cfg.CrossEncoder.Model,
		time.Duration(cfg.CrossEncoder.TimeoutSec)*time.Second,
		log,
	)
	encoder := embedding.NewOpenAIEmbedder(
		cfg.Embedding.APIKey,
		cfg.Embedding.BaseURL,
		cfg.Embedding.Model,
		cfg.Embedding.CacheSize,
		cfg.Embedding.CacheTTL,
		log,
	)
	lexicalClient := search.NewLexicalClient(cfg.Retrieval.LexicalURL, cfg.Retrieval.LexicalTimeoutSec, log)

	var expander domain.QueryExpander
	if cfg.Retrieval.ExpanderURL != "" {
		expander = search.NewQueryExpanderClient(cfg.Retrieval.ExpanderURL, cfg.Retrieval.LexicalTimeoutSec, log)
		log.Info("query_expander_enabled", slog.String("url", cfg.Retrieval.ExpanderURL))
	}

	var vectorSearch domain.VectorSearcher
	var analytics domain.AnalyticsSink
	if pool != nil {
		vectorSearch = repository.NewVectorRepository(pool)
		analytics = repository.NewAnalyticsRepository(pool, log)
	}

	engine := rerank.NewEngine(providerClient, crossEncoder, breaker, retryCfg, log)
	rerankUsecase := usecase.NewRerankUsecase(engine, resultCache, analytics, log)

	retrievalCfg := retrieval.Config{
		SemanticWeight:    cfg.Retrieval.SemanticWeight,
		LexicalWeight:     cfg.Retrieval.LexicalWeight,
		SemanticThreshold: cfg.Retrieval.SemanticThreshold,
		LexicalThreshold:  cfg.Retrieval.LexicalThreshold,
		SearchLimit:       cfg.Retrieval.SearchLimit,
		SearchType:        domain.LexicalSearchType(cfg.Retrieval.SearchType),
		Method:            retrieval.ScoringMethod(cfg.Retrieval.ScoringMethod),
		RRFK:              cfg.Retrieval.RRFK,
		ExpandQuery:       expander != nil,
	}
	retriever := retrieval.NewHybridRetriever(encoder, vectorSearch, lexicalClient, expander, log)
	twoStageUsecase := usecase.NewTwoStageUsecase(retriever, rerankUsecase, retrievalCfg, log)

	healthUsecase := usecase.NewHealthUsecase(breaker, resultCache, vectorSearch, cfg.Provider.APIKey != "", log)

	return &ApplicationComponents{
		Breaker:         breaker,
		ResultCache:     resultCache,
		Provider:        providerClient,
		CrossEncoder:    crossEncoder,
		Encoder:         encoder,
		VectorSearch:    vectorSearch,
		LexicalSearch:   lexicalClient,
		Analytics:       analytics,
		RerankUsecase:   rerankUsecase,
		TwoStageUsecase: twoStageUsecase,
		HealthUsecase:   healthUsecase,
	}
}
