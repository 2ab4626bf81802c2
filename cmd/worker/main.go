package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/yuvinraja/crm-backend/internal/config"
	"github.com/yuvinraja/crm-backend/internal/db"
	"github.com/yuvinraja/crm-backend/internal/logger"
	"github.com/yuvinraja/crm-backend/internal/queue"
	"github.com/yuvinraja/crm-backend/internal/repository"
	"github.com/yuvinraja/crm-backend/internal/worker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("worker exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(&cfg.App).With(slog.String("process", "worker"))
	slog.SetDefault(log)
	cfg.LogConfig(log)

	if cfg.Queue.Driver == config.QueueDriverMemory {
		return fmt.Errorf("queue driver %q is in-process only; run the api server or choose redis or amqp", cfg.Queue.Driver)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()
	log.Info("connected to database")

	queueClient, err := queue.New(cfg.Queue, log)
	if err != nil {
		return fmt.Errorf("failed to connect to dispatch queue: %w", err)
	}
	defer queueClient.Close()
	log.Info("connected to dispatch queue", slog.String("driver", cfg.Queue.Driver))

	campaignRepo := repository.NewCampaignRepository(database.DB)
	logRepo := repository.NewDeliveryLogRepository(database.DB)

	processor := worker.NewProcessor(worker.Store{
		Campaigns:  campaignRepo,
		Recipients: logRepo,
		Writer:     logRepo,
		Stats:      campaignRepo,
	}, worker.OptionsFromConfig(cfg, queueClient, log))

	log.Info("starting dispatch worker",
		slog.Int("concurrency", cfg.Queue.Concurrency),
		slog.String("queue", cfg.Queue.Name),
	)

	// Run returns once consumers, outstanding receipts and the final flush are done.
	if err := processor.Run(ctx); err != nil {
		return fmt.Errorf("delivery pipeline: %w", err)
	}

	log.Info("worker stopped gracefully")
	return nil
}
