package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/maktabah/bahith/internal/analytics"
	"github.com/maktabah/bahith/internal/circuitbreaker"
	"github.com/maktabah/bahith/internal/config"
	"github.com/maktabah/bahith/internal/db"
	"github.com/maktabah/bahith/internal/embeddings"
	"github.com/maktabah/bahith/internal/expansion"
	"github.com/maktabah/bahith/internal/graphctx"
	"github.com/maktabah/bahith/internal/health"
	"github.com/maktabah/bahith/internal/httpapi"
	"github.com/maktabah/bahith/internal/lexical"
	"github.com/maktabah/bahith/internal/llm"
	"github.com/maktabah/bahith/internal/rerank"
	"github.com/maktabah/bahith/internal/search"
	"github.com/maktabah/bahith/internal/tracing"
	"github.com/maktabah/bahith/internal/translation"
	"github.com/maktabah/bahith/internal/vectordb"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer logger.Sync()

	cfgMgr, err := config.NewManager(logger)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	defer cfgMgr.Close()
	cfg := cfgMgr.Current()

	if err := tracing.Initialize(tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
	}, logger); err != nil {
		logger.Warn("Failed to initialize tracing", zap.Error(err))
	}

	// Postgres: catalog metadata, stored translations, author fallback.
	dbClient, err := db.NewClient(db.Config{
		URL:             cfg.Database.URL,
		MaxConnections:  cfg.Database.MaxConnections,
		IdleConnections: cfg.Database.IdleConnections,
		MaxLifetime:     cfg.Database.MaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer dbClient.Close()

	// Redis: persistent embedding tier and the analytics stream.
	redisWrapper := circuitbreaker.NewRedisWrapper(redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}), logger)
	defer redisWrapper.Close()

	lexClient := lexical.New(lexical.Config{
		URL:          cfg.Elastic.URL,
		Timeout:      cfg.Elastic.Timeout,
		BooksIndex:   cfg.Elastic.Indexes.Books,
		AyahsIndex:   cfg.Elastic.Indexes.Ayahs,
		HadithsIndex: cfg.Elastic.Indexes.Hadiths,
		AuthorsIndex: cfg.Elastic.Indexes.Authors,
	}, logger)

	vecClient := vectordb.New(vectordb.Config{
		Host:    cfg.Qdrant.Host,
		Port:    cfg.Qdrant.Port,
		Timeout: cfg.Qdrant.Timeout,
		Pages:   cfg.Qdrant.Collections.Pages,
		Quran:   cfg.Qdrant.Collections.Quran,
		Hadith:  cfg.Qdrant.Collections.Hadith,
	}, logger)

	defaultModel, err := embeddings.ParseModel(cfg.Embeddings.DefaultModel)
	if err != nil {
		logger.Fatal("Invalid default embedding model", zap.Error(err))
	}

	embedder := embeddings.New(embeddings.Config{
		DefaultModel: cfg.Embeddings.DefaultModel,
		MemoryTTL:    cfg.Embeddings.MemoryTTL,
		MemoryMax:    cfg.Embeddings.MemoryMax,
		EvictCount:   cfg.Embeddings.EvictCount,
		MaxBatch:     cfg.Embeddings.MaxBatch,
	}, cfg.LLM.BaseURL, embeddings.NewRedisCache(redisWrapper), logger)

	completer := llm.New(cfg.LLM.BaseURL, logger)
	reranker := rerank.New(completer, rerank.Config{
		SmallModel: cfg.LLM.SmallModel,
		LargeModel: cfg.LLM.LargeModel,
		FastModel:  cfg.LLM.FastModel,
	}, logger)
	expander := expansion.New(completer, cfg.LLM.ExpansionModel, logger)

	// The graph side channel is optional; leave it out of the pipeline
	// entirely when no service is configured.
	var graph search.GraphResolver
	if g := graphctx.New(graphctx.Config{
		URL:     cfg.Graph.URL,
		Timeout: cfg.Graph.Timeout,
	}, logger); g.Enabled() {
		graph = g
	}

	indexedSet := lexical.NewIndexedSet(
		lexClient,
		vectorCounter{client: vecClient, model: defaultModel},
		dbClient,
		cfg.Search.HadithSourceBooks,
		cfg.Search.IndexedSetTTL,
		logger,
	)

	emitter := analytics.New(analytics.Config{
		Stream: cfg.Analytics.Stream,
		MaxLen: cfg.Analytics.MaxLen,
	}, redisWrapper, logger)

	svc := search.New(searchOptions(cfg), search.Deps{
		Lexical:  lexClient,
		Vector:   vecClient,
		Embedder: embedder,
		Reranker: reranker,
		Expander: expander,
		Merger:   translation.NewMerger(dbClient, logger),
		Graph:    graph,
		Meta:     dbClient,
		Books:    indexedSet,
		Events:   emitter,
	}, logger)

	cfgMgr.OnReload(func(c *config.Config) {
		svc.SetOptions(searchOptions(c))
	})

	healthMgr := health.NewManager(logger)
	healthMgr.Register(health.NewDatabaseChecker(dbClient))
	healthMgr.Register(health.NewRedisChecker(redisWrapper))
	healthMgr.Register(health.NewEndpointChecker("elasticsearch", cfg.Elastic.URL))
	healthMgr.Register(health.NewEndpointChecker("qdrant",
		fmt.Sprintf("http://%s:%d/readyz", cfg.Qdrant.Host, cfg.Qdrant.Port)))
	healthMgr.Start()
	defer healthMgr.Stop()

	mux := http.NewServeMux()
	httpapi.NewSearchHandler(svc, logger).RegisterRoutes(mux)
	httpapi.NewInternalHandler(embedder, os.Getenv("INTERNAL_API_SECRET"), logger).RegisterRoutes(mux)
	health.NewHandler(healthMgr, logger).RegisterRoutes(mux)

	apiServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: mux,
		// The pipeline caps itself at the request timeout; the write
		// timeout leaves room to encode the response after that.
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Search.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("search API listening", zap.String("addr", cfg.HTTP.Addr))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("API server failed", zap.Error(err))
		}
	}()

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mmux := http.NewServeMux()
		mmux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:    ":" + strconv.Itoa(cfg.Metrics.Port),
			Handler: mmux,
		}
		go func() {
			logger.Info("metrics listening", zap.Int("port", cfg.Metrics.Port))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down search orchestrator")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown failed", zap.Error(err))
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Tracing shutdown failed", zap.Error(err))
	}
}

// searchOptions maps the live config onto the orchestrator tunables.
// Debug stats stay on everywhere except production.
func searchOptions(c *config.Config) search.Options {
	return search.Options{
		DefaultLimit:          c.Search.DefaultLimit,
		MaxLimit:              c.Search.MaxLimit,
		BaseSimilarity:        c.Search.BaseSimilarity,
		RefineSimilarity:      c.Search.RefineSimilarity,
		RefinePerQuery:        c.Search.RefinePerQuery,
		RequestTimeout:        c.Search.RequestTimeout,
		DefaultEmbeddingModel: c.Embeddings.DefaultModel,
		Debug:                 !c.IsProduction(),
	}
}

// vectorCounter binds the default embedding model to the vector
// store's per-book counts; the indexed set tracks the default
// collections only.
type vectorCounter struct {
	client *vectordb.Client
	model  embeddings.Model
}

func (v vectorCounter) CountByBook(ctx context.Context, bookIDs []int64) (map[int64]int64, error) {
	return v.client.CountByBook(ctx, v.model, bookIDs)
}
