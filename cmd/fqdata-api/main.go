package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fqdata/fqdata/internal/api"
	"github.com/fqdata/fqdata/internal/auth"
	"github.com/fqdata/fqdata/internal/bootstrap"
	"github.com/fqdata/fqdata/internal/config"
	"github.com/fqdata/fqdata/internal/datasource"
	"github.com/fqdata/fqdata/internal/observability"
)

func main() {
	cfg, err := config.LoadFromEnv("fqdata-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	if cfg.Dataset.Source == "" {
		logger.Error("FQDATA_SOURCE is required")
		os.Exit(1)
	}

	dsOpts, err := bootstrap.DataSourceOptions(cfg, logger)
	if err != nil {
		logger.Error("failed to build data source options", slog.Any("error", err))
		os.Exit(1)
	}
	openCtx, cancelOpen := context.WithTimeout(context.Background(), cfg.Dataset.FetchTimeout)
	ds, err := datasource.Open(openCtx, cfg.Dataset.Source, dsOpts)
	cancelOpen()
	if err != nil {
		logger.Error("failed to open dataset", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = ds.Close() }()

	deps := api.Dependencies{
		Logger:            logger,
		QueryEngine:       bootstrap.Engine(cfg, logger),
		DataSource:        ds,
		Readiness:         api.CombineReadinessChecks(api.CheckDataSourceOpen(ds)),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator, auth.RoleQueryReader)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("dataset", ds.Path()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		_ = ds.Close()
		os.Exit(1)
	}
}
