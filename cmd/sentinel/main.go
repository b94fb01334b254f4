// Sentinel - real-time transaction risk scoring and audit ledger.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/opensource-finance/sentinel/internal/api"
	"github.com/opensource-finance/sentinel/internal/bus"
	"github.com/opensource-finance/sentinel/internal/cache"
	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/hashchain"
	"github.com/opensource-finance/sentinel/internal/repository"
	"github.com/opensource-finance/sentinel/internal/sentinel"
	"github.com/opensource-finance/sentinel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Load .env file if present, for local development; ignored in
	// production where configuration comes from the real environment.
	_ = godotenv.Load()

	logLevel := slog.LevelInfo
	if os.Getenv("SENTINEL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting sentinel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	cfg := domain.DefaultConfig()
	if os.Getenv("SENTINEL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	engine := sentinel.New()
	slog.Info("scoring engine initialized")

	ledger := hashchain.NewLedger()
	if err := restoreLedger(ctx, repo, ledger); err != nil {
		slog.Error("failed to restore ledger from repository", "error", err)
		os.Exit(1)
	}
	slog.Info("ledger initialized", "length", ledger.Len())

	// The async worker drains transactions published to the ingested
	// topic; the Community tier drives everything through the
	// synchronous /evaluate endpoint instead, so the worker is opt-in.
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("SENTINEL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, cacheImpl, engine, ledger)
		if err := asyncWorker.Start(ctx, worker.Config{QueueDepth: 100}); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started")
		}
	}

	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, ledger, Version)

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

	<-ctx.Done()
	slog.Info("shutting down...")

	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("sentinel shutdown complete")
}

// restoreLedger replays persisted ledger entries into the in-memory
// hash chain so a restart doesn't lose tamper-evidence continuity.
// A repository with no entries yet leaves the ledger at its genesis
// block.
func restoreLedger(ctx context.Context, repo domain.Repository, ledger *hashchain.Ledger) error {
	entries, err := repo.ListLedgerEntries(ctx)
	if err != nil {
		slog.Warn("failed to list ledger entries from repository", "error", err)
		return nil
	}
	if len(entries) == 0 {
		return nil
	}
	return ledger.Restore(entries)
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  +----------------------------------------+")
	fmt.Println("  |               SENTINEL                  |")
	fmt.Println("  |   Real-time transaction risk scoring    |")
	fmt.Println("  +----------------------------------------+")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /evaluate            - Score a transaction")
	fmt.Println("    GET  /ledger              - List the hash-chained ledger")
	fmt.Println("    GET  /ledger/verify       - Verify ledger integrity")
	fmt.Println("    GET  /users/{id}/history  - Recent transactions for a user")
	fmt.Println("    GET  /users/{id}/velocity - Persisted transaction count in a window")
	fmt.Println("    GET  /stats/latency       - Rolling evaluation latency")
	fmt.Println("    GET  /health              - Health check")
	fmt.Println("    GET  /ready               - Readiness check")
	fmt.Println()
}
