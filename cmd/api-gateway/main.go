// Package main API Gateway 服务入口
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"synapse-knowledge-api/internal/application/knowledge"
	appsync "synapse-knowledge-api/internal/application/sync"
	"synapse-knowledge-api/internal/config"
	"synapse-knowledge-api/internal/infrastructure/embedding"
	"synapse-knowledge-api/internal/infrastructure/llm"
	"synapse-knowledge-api/internal/infrastructure/messaging"
	"synapse-knowledge-api/internal/infrastructure/persistence/memory"
	"synapse-knowledge-api/internal/infrastructure/persistence/milvus"
	"synapse-knowledge-api/internal/infrastructure/persistence/postgres"
	"synapse-knowledge-api/internal/infrastructure/persistence/redis"
	"synapse-knowledge-api/internal/interfaces/http/handler"
	"synapse-knowledge-api/internal/interfaces/http/router"
	obseino "synapse-knowledge-api/internal/observability/eino"
	"synapse-knowledge-api/pkg/logger"
	"synapse-knowledge-api/pkg/tracer"
)

// Version 版本信息，构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	ctx := context.Background()
	log := logger.FromContext(ctx)
	log.Info("starting api-gateway",
		"version", Version,
		"build_time", BuildTime,
		"env", cfg.App.Env,
	)

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: cfg.App.Name,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(ctx) }()

	// 基础设施客户端
	pgClient, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		logger.Fatal(ctx, "failed to init postgres", err)
	}
	defer func() { _ = pgClient.Close() }()
	if err := pgClient.AutoMigrate(); err != nil {
		logger.Fatal(ctx, "failed to migrate database", err)
	}

	redisClient, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Fatal(ctx, "failed to init redis", err)
	}
	defer func() { _ = redisClient.Close() }()

	// 向量索引后端
	var vectorStore knowledge.VectorStore
	var milvusClient *milvus.Client
	if cfg.Vector.Backend == "milvus" {
		milvusClient, err = milvus.NewClient(ctx, &cfg.Vector.Milvus)
		if err != nil {
			logger.Fatal(ctx, "failed to init milvus", err)
		}
		defer func() { _ = milvusClient.Close() }()
		vectorStore = milvus.NewStore(milvusClient, cfg.Embedding.Dimension)
	} else {
		log.Warn("using in-memory vector store, data will not survive restarts")
		vectorStore = memory.NewStore(cfg.Embedding.Dimension)
	}

	// Embedding 网关
	einoEmbedder, err := embedding.NewEinoEmbedder(ctx, &cfg.Embedding)
	if err != nil {
		logger.Fatal(ctx, "failed to init embedder", err)
	}
	gateway := embedding.NewGateway(einoEmbedder, &cfg.Embedding)

	// LLM 工厂与应用服务
	obseino.Init()
	llmFactory := llm.NewEinoFactory(cfg)
	provider := cfg.LLM.DefaultProvider
	model := ""
	if p, ok := cfg.LLM.Providers[provider]; ok {
		model = p.Model
	}

	pipeline := knowledge.NewPipeline(gateway, vectorStore,
		cfg.Chunking.MaxTokens, cfg.Chunking.OverlapTokens, cfg.Chunking.Concurrency)
	engine := knowledge.NewEngine(gateway, vectorStore, cfg.Retrieval.TopK)
	synthesizer := knowledge.NewSynthesizer(llmFactory, provider, model,
		cfg.Retrieval.MaxContextSegments, cfg.Retrieval.MaxRunesPerSegment)

	var rewriter *knowledge.Rewriter
	if cfg.Features.QueryRewrite.Enabled {
		rewriter = knowledge.NewRewriter(llmFactory, provider, model)
	}

	// 同步任务服务
	jobRepo := postgres.NewSyncJobRepository(pgClient)
	producer := messaging.NewProducer(redisClient.Redis(), int64(cfg.Messaging.RedisStream.MaxLen))
	cancelFlags := redis.NewCancelFlags(redisClient)
	syncService := appsync.NewService(jobRepo, producer, cancelFlags)

	// 路由
	r := router.New(cfg, router.Handlers{
		Health:    handler.NewHealthHandler(pgClient, redisClient, milvusClient),
		Knowledge: handler.NewKnowledgeHandler(pipeline, engine, synthesizer, rewriter, vectorStore, cfg.Server.HTTP.MaxUploadBytes),
		Sync:      handler.NewSyncHandler(syncService),
	}, redis.NewRateLimiter(redisClient))

	addr := fmt.Sprintf("%s:%d", cfg.Server.HTTP.Host, cfg.Server.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:  cfg.Server.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("http server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server exited")
}
