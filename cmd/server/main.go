package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/csvcure/internal/config"
	"github.com/JonMunkholm/csvcure/internal/core"
	"github.com/JonMunkholm/csvcure/internal/logging"
	"github.com/JonMunkholm/csvcure/internal/store"
	"github.com/JonMunkholm/csvcure/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"journal_enabled", cfg.Journal.Enabled,
		"ingest_max_concurrent", cfg.Ingest.MaxConcurrent,
		"repair_workers", cfg.Repair.Workers,
		"session_ttl", cfg.Session.TTL,
	)

	ctx := context.Background()

	var journal core.Journal = core.NopJournal{}
	if cfg.Journal.Enabled {
		j, closeJournal, err := store.Open(ctx, cfg.Database.URL, cfg.Journal.Path, store.PoolConfig{
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		})
		if err != nil {
			slog.Error("failed to open repair journal", "error", err)
			os.Exit(1)
		}
		defer closeJournal()
		journal = j

		if cfg.Database.URL != "" {
			slog.Info("repair journal ready", "backend", "postgres")
		} else {
			slog.Info("repair journal ready", "backend", "sqlite", "path", cfg.Journal.Path)
		}
	}

	engine := core.NewEngine(
		core.WithWorkers(cfg.Repair.Workers),
		core.WithShareJoin(cfg.Repair.ShareJoin),
		core.WithQuote(cfg.Repair.Quote),
		core.WithLogger(logger),
	)

	service := core.NewService(core.ServiceParams{
		Engine:     engine,
		Inspector:  core.NewInspector(logger),
		Journal:    journal,
		Limiter:    core.NewIngestLimiter(cfg.Ingest.MaxConcurrent, cfg.Ingest.MaxWaitTime),
		Logger:     logger,
		SessionTTL: cfg.Session.TTL,
		MaxTables:  cfg.Session.MaxTables,
	})
	service.Start(cfg.Session.JanitorInterval)
	defer service.Close()

	server := web.NewServer(service, cfg)

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for active ingests to complete (with timeout)
		if active := service.Limiter().Active(); active > 0 {
			slog.Info("waiting for ingests to complete", "active", active)
			if err := service.Limiter().WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("ingests did not complete in time", "error", err)
			} else {
				slog.Info("all ingests completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}
