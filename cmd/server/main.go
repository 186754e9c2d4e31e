package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/JonMunkholm/leadintake/internal/config"
	"github.com/JonMunkholm/leadintake/internal/core"
	"github.com/JonMunkholm/leadintake/internal/logging"
	"github.com/JonMunkholm/leadintake/internal/metrics"
	"github.com/JonMunkholm/leadintake/internal/partner"
	"github.com/JonMunkholm/leadintake/internal/store"
	"github.com/JonMunkholm/leadintake/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(nil, cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"store_driver", cfg.Store.Driver,
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()
	leads, closeStore, err := store.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to open lead store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// A partner with no URL answers ErrNotConfigured per call
	p := partner.NewClient(cfg.Partner, m)
	if cfg.Partner.UnicoreURL == "" || cfg.Partner.LeadcraftURL == "" {
		slog.Warn("partner API partly configured",
			"unicore", cfg.Partner.UnicoreURL != "",
			"leadcraft", cfg.Partner.LeadcraftURL != "",
		)
	}

	service := core.NewService(leads, p, cfg, core.WithMetrics(m))
	server := web.NewServer(cfg, service, reg)

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := service.IngestStatus(); status.Active > 0 {
			slog.Info("waiting for ingests to complete", "active", status.Active)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil {
		slog.Error("server stopped", "error", err)
		return
	}
	<-stopped
	slog.Info("server stopped")
}
