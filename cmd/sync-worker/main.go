// Package main 数据源同步执行器入口（sync-worker）
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"synapse-knowledge-api/internal/application/knowledge"
	appsync "synapse-knowledge-api/internal/application/sync"
	"synapse-knowledge-api/internal/config"
	"synapse-knowledge-api/internal/infrastructure/embedding"
	"synapse-knowledge-api/internal/infrastructure/messaging"
	"synapse-knowledge-api/internal/infrastructure/persistence/memory"
	"synapse-knowledge-api/internal/infrastructure/persistence/milvus"
	"synapse-knowledge-api/internal/infrastructure/persistence/postgres"
	"synapse-knowledge-api/internal/infrastructure/persistence/redis"
	"synapse-knowledge-api/internal/infrastructure/source"
	"synapse-knowledge-api/pkg/logger"
	"synapse-knowledge-api/pkg/tracer"
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

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "sync-worker",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(ctx) }()

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

	var vectorStore knowledge.VectorStore
	if cfg.Vector.Backend == "milvus" {
		milvusClient, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
		if err != nil {
			logger.Fatal(ctx, "failed to init milvus", err)
		}
		defer func() { _ = milvusClient.Close() }()
		vectorStore = milvus.NewStore(milvusClient, cfg.Embedding.Dimension)
	} else {
		logger.Warn(ctx, "using in-memory vector store, data will not survive restarts")
		vectorStore = memory.NewStore(cfg.Embedding.Dimension)
	}

	einoEmbedder, err := embedding.NewEinoEmbedder(ctx, &cfg.Embedding)
	if err != nil {
		logger.Fatal(ctx, "failed to init embedder", err)
	}
	gateway := embedding.NewGateway(einoEmbedder, &cfg.Embedding)

	pipeline := knowledge.NewPipeline(gateway, vectorStore,
		cfg.Chunking.MaxTokens, cfg.Chunking.OverlapTokens, cfg.Chunking.Concurrency)

	connectors := source.NewRegistry(
		source.NewSlackConnector(cfg.Sources.Slack),
		source.NewGitHubConnector(ctx, cfg.Sources.GitHub),
	)

	jobRepo := postgres.NewSyncJobRepository(pgClient)
	cancelFlags := redis.NewCancelFlags(redisClient)
	runner := appsync.NewRunner(jobRepo, connectors, pipeline, cancelFlags)

	consumer := messaging.NewConsumer(redisClient.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamSyncJobs,
		Group:         messaging.ConsumerGroupSyncWorker,
		ConsumerName:  hostnameConsumerName(),
		BlockTimeout:  cfg.Messaging.RedisStream.BlockTimeout,
		ClaimInterval: cfg.Messaging.RedisStream.ClaimInterval,
		RetryLimit:    cfg.Messaging.RedisStream.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    cfg.Messaging.RedisStream.RetryBackoff.Initial,
			Max:        cfg.Messaging.RedisStream.RetryBackoff.Max,
			Multiplier: cfg.Messaging.RedisStream.RetryBackoff.Multiplier,
		},
	})
	consumer.RegisterHandler(messaging.MsgTypeSyncJob, runner.HandleMessage)

	if err := consumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start consumer", err)
	}

	log := logger.FromContext(ctx)
	log.Info("sync-worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("sync-worker shutting down")
	consumer.Stop()
}

func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
