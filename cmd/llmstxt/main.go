// Package main wires together the llms.txt generation service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pubsubv2 "cloud.google.com/go/pubsub/v2"
	gcstorage "cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/indexfox/llmstxt/internal/api"
	"github.com/indexfox/llmstxt/internal/clock/system"
	"github.com/indexfox/llmstxt/internal/config"
	"github.com/indexfox/llmstxt/internal/controller"
	"github.com/indexfox/llmstxt/internal/files"
	"github.com/indexfox/llmstxt/internal/hash/sha256"
	"github.com/indexfox/llmstxt/internal/id/uuid"
	"github.com/indexfox/llmstxt/internal/llmstxt"
	"github.com/indexfox/llmstxt/internal/logging"
	pubsubpublisher "github.com/indexfox/llmstxt/internal/publisher/pubsub"
	queueredis "github.com/indexfox/llmstxt/internal/queue/redis"
	"github.com/indexfox/llmstxt/internal/ratelimit"
	"github.com/indexfox/llmstxt/internal/scrape"
	"github.com/indexfox/llmstxt/internal/storage/gcs"
	"github.com/indexfox/llmstxt/internal/storage/local"
	memorystorage "github.com/indexfox/llmstxt/internal/storage/memory"
	"github.com/indexfox/llmstxt/internal/storage/postgres"
	"github.com/indexfox/llmstxt/internal/summarize"
	"github.com/indexfox/llmstxt/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := system.New()
	idGen := uuid.New()
	hasher := sha256.New()

	jobStore, urlStore, fileStore, closeDB, err := buildStores(ctx, cfg)
	if err != nil {
		logger.Fatal("storage init failed", zap.Error(err))
	}
	defer closeDB()

	queue, limiter := buildRedis(cfg, clk, logger)
	blobStore := buildBlobStore(ctx, cfg, logger)
	publisher := buildPublisher(ctx, cfg, logger)

	scrapeClient, err := scrape.New(scrape.Config{
		BaseURL: cfg.Scrape.BaseURL,
		APIKey:  cfg.Scrape.APIKey,
		Timeout: time.Duration(cfg.Scrape.TimeoutSeconds) * time.Second,
		PaceRPS: cfg.Scrape.PaceRPS,
	})
	if err != nil {
		logger.Fatal("scrape client init failed", zap.Error(err))
	}
	summarizer, err := summarize.New(summarize.Config{
		APIKey:       cfg.Summarize.APIKey,
		Model:        cfg.Summarize.Model,
		MaxTokens:    cfg.Summarize.MaxTokens,
		ExcerptBytes: cfg.Summarize.ExcerptBytes,
		Timeout:      time.Duration(cfg.Summarize.TimeoutSeconds) * time.Second,
	}, logger)
	if err != nil {
		logger.Fatal("summarizer init failed", zap.Error(err))
	}

	step := worker.NewStep(urlStore, scrapeClient, summarizer, clk, worker.StepConfig{
		Cooldown:     cfg.ScrapeCooldown(),
		ContentCap:   cfg.Crawl.ContentCapBytes,
		ExcerptBytes: cfg.Summarize.ExcerptBytes,
	}, logger)
	generator := files.New(jobStore, urlStore, fileStore, blobStore, publisher,
		hasher, clk, files.Config{
			BlobPrefix: cfg.Storage.Prefix,
			Topic:      cfg.PubSub.TopicName,
		}, logger)
	processor := worker.NewProcessor(jobStore, urlStore, queue, limiter, step,
		generator, clk, logger)
	ctl := controller.New(jobStore, urlStore, queue, scrapeClient, step, processor,
		generator, idGen, clk, controller.Config{
			MaxPagesDefault:  cfg.Crawl.MaxPagesDefault,
			MaxPagesLimit:    cfg.Crawl.MaxPagesLimit,
			BatchSize:        cfg.Crawl.BatchSize,
			InitialBurst:     cfg.Crawl.InitialBurst,
			BatchDelay:       cfg.BatchDelay(),
			InvocationBudget: cfg.InvocationBudget(),
			StuckThreshold:   cfg.StuckThreshold(),
			IncompleteBelow:  cfg.Crawl.IncompleteBelow,
		}, logger)

	apiServer := api.NewServer(ctl, fileStore, cfg, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// buildStores selects Postgres when a DSN is configured, in-memory otherwise.
func buildStores(ctx context.Context, cfg config.Config) (llmstxt.JobStore, llmstxt.URLStore, llmstxt.FileStore, func(), error) {
	if cfg.DB.DSN == "" {
		return memorystorage.NewJobStore(), memorystorage.NewURLStore(),
			memorystorage.NewFileStore(), func() {}, nil
	}
	pool, err := postgres.NewPool(ctx, postgres.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: int32(cfg.DB.MaxOpenConns),
		MinConns: int32(cfg.DB.MinConns),
	})
	if err != nil {
		return nil, nil, nil, nil, err
	}
	jobs, err := postgres.NewJobStore(pool)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	urls, err := postgres.NewURLStore(pool)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	fileStore, err := postgres.NewFileStore(pool)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return jobs, urls, fileStore, pool.Close, nil
}

// buildRedis returns the queue and shared limiter. Without a Redis address
// the queue is nil (degraded batch mode) and the limiter is in-process.
func buildRedis(cfg config.Config, clk llmstxt.Clock, logger *zap.Logger) (llmstxt.Queue, llmstxt.RateLimiter) {
	limitCfg := ratelimit.Config{
		Limit:  cfg.RateLimit.Limit,
		Window: cfg.RateLimitWindow(),
	}
	if cfg.Redis.Address == "" {
		logger.Info("redis not configured, using degraded batch mode")
		return nil, ratelimit.NewLocal(limitCfg, clk)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return queueredis.New(client), ratelimit.NewRedis(client, limitCfg, logger)
}

// buildBlobStore prefers GCS, falls back to the local filesystem, or returns
// nil when neither is configured. Blob storage is best-effort throughout.
func buildBlobStore(ctx context.Context, cfg config.Config, logger *zap.Logger) llmstxt.BlobStore {
	if cfg.Storage.GCSBucket != "" {
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			logger.Warn("gcs client init failed, durable copies disabled", zap.Error(err))
			return nil
		}
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			logger.Warn("gcs store init failed, durable copies disabled", zap.Error(err))
			return nil
		}
		return store
	}
	if cfg.Storage.LocalDir != "" {
		store, err := local.New(local.Config{BaseDir: cfg.Storage.LocalDir})
		if err != nil {
			logger.Warn("local blob store init failed, durable copies disabled", zap.Error(err))
			return nil
		}
		return store
	}
	return nil
}

// buildPublisher returns a Pub/Sub publisher, or nil when not configured.
func buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) llmstxt.Publisher {
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.TopicName == "" {
		return nil
	}
	client, err := pubsubv2.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		logger.Warn("pubsub client init failed, notifications disabled", zap.Error(err))
		return nil
	}
	return pubsubpublisher.New(client.Publisher(cfg.PubSub.TopicName))
}
