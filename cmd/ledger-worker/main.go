package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goliatone/go-errors"

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

	root := logging.New(cfg.Log)
	logger := logging.Component(root, logging.ComponentWorker)

	if err := cfg.Validate(); err != nil {
		logger.Error("configuration validation failed", logging.Err(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := di.NewContainer(ctx, *cfg, di.WithLogger(root))
	if err != nil {
		logger.Error("failed to build container", logging.Err(err))
		os.Exit(1)
	}
	defer container.Close()

	client, err := container.AMQPClient()
	if err != nil {
		logger.Error("failed to connect to broker", logging.Err(err))
		os.Exit(1)
	}
	defer client.Close()

	job := container.ReportJob(nil)
	scheduler := container.Scheduler(client)

	consumeDone := make(chan error, 1)
	go func() {
		consumeDone <- client.Consume(ctx, job.Handle)
	}()

	tick := func(now time.Time) {
		ran, err := scheduler.Tick(ctx, now)
		if err != nil {
			logger.Error("monthly reports not fully queued", logging.Err(err))
			return
		}
		if ran {
			logger.Info("monthly reports queued")
		}
	}

	// catch up when started on the first of the month
	tick(time.Now())

	ticker := time.NewTicker(cfg.Report.TickInterval)
	defer ticker.Stop()

	logger.Info("worker started", logging.FieldOperation, logging.OpStartup, "tick_interval", cfg.Report.TickInterval)
	for {
		select {
		case now := <-ticker.C:
			tick(now)
		case err := <-consumeDone:
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("message consumption failed", logging.Err(err))
				stop()
				os.Exit(1)
			}
			logger.Info("worker stopped", logging.FieldOperation, logging.OpShutdown)
			return
		}
	}
}
