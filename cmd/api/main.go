package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/yuvinraja/crm-backend/internal/config"
	"github.com/yuvinraja/crm-backend/internal/db"
	"github.com/yuvinraja/crm-backend/internal/handler"
	"github.com/yuvinraja/crm-backend/internal/logger"
	"github.com/yuvinraja/crm-backend/internal/queue"
	"github.com/yuvinraja/crm-backend/internal/repository"
	"github.com/yuvinraja/crm-backend/internal/segment"
	"github.com/yuvinraja/crm-backend/internal/service"
	"github.com/yuvinraja/crm-backend/internal/worker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("api server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(&cfg.App)
	slog.SetDefault(log)
	cfg.LogConfig(log)

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

	// Repositories
	customerRepo := repository.NewCustomerRepository(database.DB)
	segmentRepo := repository.NewSegmentRepository(database.DB)
	campaignRepo := repository.NewCampaignRepository(database.DB)
	logRepo := repository.NewDeliveryLogRepository(database.DB)
	orderRepo := repository.NewOrderRepository(database.DB)

	predicates, err := segment.NewPredicateCache(cfg.Delivery.PredicateCacheSize, cfg.Delivery.PredicateCacheTTL)
	if err != nil {
		return err
	}
	defer predicates.Close()
	resolver := segment.NewResolver(customerRepo)

	// With the memory driver there is no separate worker process, so jobs are consumed here.
	// Otherwise the API hosts only the receipt side of the pipeline, for the vendor webhook.
	var consumed queue.Client
	if cfg.Queue.Driver == config.QueueDriverMemory {
		consumed = queueClient
	}
	pipeline := worker.NewProcessor(worker.Store{
		Campaigns:  campaignRepo,
		Recipients: logRepo,
		Writer:     logRepo,
		Stats:      campaignRepo,
	}, worker.OptionsFromConfig(cfg, consumed, log))

	// Services
	segmentSvc := service.NewSegmentService(segmentRepo, resolver, predicates, cfg.Delivery.PreviewSampleSize, log)
	customerSvc := service.NewCustomerService(customerRepo, log)
	orderSvc := service.NewOrderService(orderRepo, log)
	campaignSvc := service.NewCampaignService(
		campaignRepo,
		segmentRepo,
		customerRepo,
		logRepo,
		resolver,
		predicates,
		queueClient,
		log,
	)

	router := handler.NewRouter(handler.Handlers{
		Segments:  handler.NewSegmentHandler(segmentSvc),
		Campaigns: handler.NewCampaignHandler(campaignSvc),
		Customers: handler.NewCustomerHandler(customerSvc),
		Orders:    handler.NewOrderHandler(orderSvc),
		Receipts:  handler.NewReceiptHandler(pipeline.Ingestor()),
		Health: handler.NewHealthHandler(map[string]handler.HealthChecker{
			"database": database,
			"queue":    queueClient,
		}),
	}, log)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.API.Port),
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  cfg.API.IdleTimeout,
	}

	pipelineDone := make(chan error, 1)
	pipelineCtx, stopPipeline := context.WithCancel(context.Background())
	defer stopPipeline()
	go func() { pipelineDone <- pipeline.Run(pipelineCtx) }()

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("API server listening", slog.String("addr", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			stopPipeline()
			return errors.Join(fmt.Errorf("server error: %w", err), <-pipelineDone)
		}
	case <-ctx.Done():
		log.Info("shutting down server")
	}

	// HTTP first so no new campaigns or receipts arrive, then the pipeline drains.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", slog.String("error", err.Error()))
	}

	stopPipeline()
	if err := <-pipelineDone; err != nil {
		return fmt.Errorf("delivery pipeline shutdown: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}
