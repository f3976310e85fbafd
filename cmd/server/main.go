package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/repoguard/repoguard/backend/internal/ai"
	"github.com/repoguard/repoguard/backend/internal/analyzer"
	"github.com/repoguard/repoguard/backend/internal/api"
	"github.com/repoguard/repoguard/backend/internal/config"
	"github.com/repoguard/repoguard/backend/internal/contentstore"
	"github.com/repoguard/repoguard/backend/internal/db"
	"github.com/repoguard/repoguard/backend/internal/discovery"
	"github.com/repoguard/repoguard/backend/internal/logger"
	"github.com/repoguard/repoguard/backend/internal/metrics"
	"github.com/repoguard/repoguard/backend/internal/notify"
	"github.com/repoguard/repoguard/backend/internal/ratelimit"
	"github.com/repoguard/repoguard/backend/internal/retry"
	"github.com/repoguard/repoguard/backend/internal/scan"
)

func main() {
	cfg := config.Load()

	logger.Init()
	log := logger.Sugar()
	defer logger.Get().Sync()

	baseCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := db.NewNeo4jClient(baseCtx, db.Neo4jConfig{
		URI:      cfg.Neo4jURI,
		Username: cfg.Neo4jUser,
		Password: cfg.Neo4jPass,
	})
	if err != nil {
		log.Fatalw("failed to connect to neo4j", "err", err)
	}
	defer client.Close()

	store := db.NewStore(client)

	gitStore := contentstore.NewGitStore(cfg.ReposPath, logger.Named("git"))
	limiter := ratelimit.New(cfg.RequestsPerMinute, cfg.RequestsPerDay)
	exec := retry.New(limiter, retry.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		Multiplier:     cfg.BackoffMultiplier,
	}, logger.Named("retry"))
	aiClient := ai.NewClient(cfg.AIURL, cfg.AIModel)
	estimator := metrics.NewEstimator()
	fileAnalyzer := analyzer.New(gitStore, aiClient, exec, estimator, cfg.MaxFileBytes, logger.Named("analyzer"))
	discoverer := discovery.New(gitStore, logger.Named("discovery"))
	notifier := notify.New(cfg.WebhookURL, logger.Named("notify"))

	jobs := scan.NewJobStore()
	sweepEvery := cfg.ScanRetention / 4
	if sweepEvery < time.Minute {
		sweepEvery = time.Minute
	}
	go jobs.RunSweeper(baseCtx, sweepEvery, cfg.ScanRetention, logger.Named("sweeper"))

	orchestrator := scan.NewOrchestrator(baseCtx, jobs, store, gitStore, discoverer,
		fileAnalyzer, store, notifier, limiter, scan.Config{
			BatchSize:  cfg.BatchSize,
			BatchDelay: cfg.BatchDelay,
		}, logger.Named("scan"))

	app := fiber.New(fiber.Config{
		AppName: "RepoGuard API",
	})

	handler := api.NewHandler(store, orchestrator, store, client, logger.Named("api"))
	api.SetupRoutes(app, handler)

	go func() {
		<-baseCtx.Done()
		log.Info("shutting down")
		app.Shutdown()
	}()

	log.Infow("starting repoguard backend", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Errorw("server stopped", "err", err)
		os.Exit(1)
	}
}
