package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/goliatone/go-ledger-cache/internal/config"
	"github.com/goliatone/go-ledger-cache/internal/logging"
	"github.com/goliatone/go-ledger-cache/pkg/di"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.New(logging.DefaultConfig()).Error("failed to load configuration", logging.Err(err))
		os.Exit(1)
	}

	logger := logging.New(cfg.Log)
	logger = logging.Component(logger, logging.ComponentApp)

	if err := cfg.Validate(); err != nil {
		logger.Error("configuration validation failed", logging.Err(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := di.NewContainer(ctx, *cfg, di.WithLogger(logging.New(cfg.Log)))
	if err != nil {
		logger.Error("failed to build container", logging.Err(err))
		os.Exit(1)
	}
	defer container.Close()

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      container.HTTPServer().Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		logger.Info("shutdown signal received", logging.FieldOperation, logging.OpShutdown)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", logging.Err(err))
		}
	}()

	if !cfg.Cache.Shared() {
		logger.Warn("in-process cache backend: invalidations do not reach other replicas, use redis when running more than one")
	}
	logger.Info("server listening", "addr", cfg.Server.Addr, logging.FieldOperation, logging.OpStartup)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", logging.Err(err))
		os.Exit(1)
	}
	<-shutdownDone
	logger.Info("server stopped")
}
