// Sentinel - Real-time fraud decisions for mobile money.
// Copyright (c) 2026 securepay.ai
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/securepay-ai/sentinel/internal/alert"
	"github.com/securepay-ai/sentinel/internal/api"
	"github.com/securepay-ai/sentinel/internal/bus"
	"github.com/securepay-ai/sentinel/internal/cache"
	"github.com/securepay-ai/sentinel/internal/config"
	"github.com/securepay-ai/sentinel/internal/decision"
	"github.com/securepay-ai/sentinel/internal/domain"
	"github.com/securepay-ai/sentinel/internal/ensemble"
	"github.com/securepay-ai/sentinel/internal/explain"
	"github.com/securepay-ai/sentinel/internal/feature"
	"github.com/securepay-ai/sentinel/internal/pipeline"
	"github.com/securepay-ai/sentinel/internal/repository"
	"github.com/securepay-ai/sentinel/internal/rules"
	"github.com/securepay-ai/sentinel/internal/stream"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Bootstrap logger; replaced once the configuration is loaded.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load(os.Getenv("SENTINEL_CONFIG"))
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.Logging)

	slog.Info("starting sentinel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"budget_ms", cfg.Pipeline.BudgetMs,
		"stream", cfg.Stream.Enabled(),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Rule Engine
	engine, err := rules.NewEngine(cfg.Pipeline.RuleWorkers)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	if err := loadRules(ctx, repo, engine); err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	// Initialize Ensemble
	registry, err := ensemble.NewRegistry(cfg.Scoring.ModelArtifacts)
	if err != nil {
		slog.Error("failed to load model artifacts", "path", cfg.Scoring.ModelArtifacts, "error", err)
		os.Exit(1)
	}
	scorer := ensemble.NewScorer(registry, cfg.Scoring)
	slog.Info("ensemble initialized", "version", registry.Version(), "models", len(registry.Models()))

	// Initialize Pipeline
	orch := pipeline.NewOrchestrator(
		cfg,
		repo,
		busImpl,
		feature.NewExtractor(repo, cacheImpl, cfg),
		engine,
		scorer,
		decision.NewEngine(cfg.Scoring),
		explain.NewExplainer(cfg.Scoring),
		alert.NewManager(repo, busImpl),
	)

	// Initialize Kafka ingestion when brokers are configured
	var consumer *stream.Consumer
	if cfg.Stream.Enabled() {
		consumer, err = stream.NewConsumer(cfg.Stream, orch)
		if err != nil {
			slog.Error("failed to initialize kafka consumer", "error", err)
			os.Exit(1)
		}
		if err := consumer.Start(ctx); err != nil {
			slog.Error("failed to start kafka consumer", "error", err)
			os.Exit(1)
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg, orch, repo, cacheImpl, engine, scorer, registry, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("sentinel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop ingestion first so no new work enters the pipeline
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			slog.Error("failed to stop kafka consumer", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("sentinel shutdown complete")
}

// loadRules fills the engine from the store, seeding the builtin rule set on
// the very first start so a fresh deployment enforces the regulatory ceiling
// before anyone configures anything.
func loadRules(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	all, err := repo.ListRules(ctx, false)
	if err != nil {
		return err
	}

	if len(all) == 0 {
		for _, rl := range rules.BuiltinRules() {
			if err := repo.SaveRule(ctx, rl); err != nil {
				return fmt.Errorf("seed rule %s: %w", rl.ID, err)
			}
		}
		slog.Info("seeded builtin rules", "count", len(rules.BuiltinRules()))
	}

	enabled, err := repo.ListRules(ctx, true)
	if err != nil {
		return err
	}
	return engine.LoadRules(enabled)
}

func setupLogger(cfg domain.LoggingConfig) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═════════════════════════════════════════╗")
	fmt.Println("  ║              🛡  SENTINEL                 ║")
	fmt.Println("  ║      Real-time Fraud Decisioning          ║")
	fmt.Println("  ║     Every transaction, under 100ms.       ║")
	fmt.Println("  ╚═════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /api/v1/transactions/analyze        - Assess a transaction")
	fmt.Println("    POST /api/v1/transactions/analyze/batch  - Assess a batch")
	fmt.Println("    GET  /api/v1/assessments                 - Query assessments")
	fmt.Println("    GET  /api/v1/alerts                      - Review alerts")
	fmt.Println("    GET  /api/v1/analytics/dashboard         - Dashboard stats")
	fmt.Println("    GET  /api/v1/rules                       - List rules")
	fmt.Println("    POST /api/v1/rules/reload                - Hot-reload rules")
	fmt.Println("    GET  /api/v1/models                      - Ensemble roster")
	fmt.Println("    GET  /health                             - Health check")
	fmt.Println("    GET  /metrics                            - Prometheus metrics")
	fmt.Println()
}
