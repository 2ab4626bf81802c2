// Package worker hosts the delivery pipeline of one process: the dispatch job consumer,
// the vendor simulator, the receipt ingestor and the batch updater.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yuvinraja/crm-backend/internal/config"
	"github.com/yuvinraja/crm-backend/internal/delivery"
	"github.com/yuvinraja/crm-backend/internal/logger"
	"github.com/yuvinraja/crm-backend/internal/models"
	"github.com/yuvinraja/crm-backend/internal/observability"
	"github.com/yuvinraja/crm-backend/internal/queue"
	"github.com/yuvinraja/crm-backend/internal/vendor"
)

// Store is the storage the pipeline needs. The Postgres campaign and delivery-log
// repositories together satisfy it.
type Store struct {
	Campaigns  delivery.CampaignClaimer
	Recipients delivery.RecipientLister
	Writer     delivery.ReceiptWriter
	Stats      delivery.StatsRefresher
}

// Options configures a Processor.
type Options struct {
	// Queue is consumed for dispatch jobs. A nil queue runs the receipt side only.
	Queue               queue.Client
	QueueConcurrency    int
	DispatchConcurrency int
	FlushInterval       time.Duration
	ReceiptCapacity     int
	ShutdownTimeout     time.Duration

	// Channel defaults to a Simulator built from Vendor.
	Channel vendor.Channel
	Vendor  config.VendorConfig

	Logger *slog.Logger
}

// OptionsFromConfig maps the service configuration onto processor options.
func OptionsFromConfig(cfg *config.Config, q queue.Client, log *slog.Logger) Options {
	return Options{
		Queue:               q,
		QueueConcurrency:    cfg.Queue.Concurrency,
		DispatchConcurrency: cfg.Delivery.DispatchConcurrency,
		FlushInterval:       cfg.Delivery.FlushInterval,
		ReceiptCapacity:     cfg.Delivery.ReceiptQueueCapacity,
		ShutdownTimeout:     cfg.App.ShutdownTimeout,
		Vendor:              cfg.Vendor,
		Logger:              log,
	}
}

// closer is implemented by channels that hold outstanding receipts, like the Simulator.
type closer interface {
	Close(ctx context.Context) error
}

// Processor wires the dispatcher to the vendor channel and the channel's receipts back
// to the batch updater.
type Processor struct {
	queue            queue.Client
	queueConcurrency int
	channel          vendor.Channel
	dispatcher       *delivery.Dispatcher
	ingestor         *delivery.Ingestor
	updater          *delivery.BatchUpdater
	shutdownTimeout  time.Duration
	logger           *slog.Logger
}

// NewProcessor creates a processor. Receipts produced by the channel are routed to the
// processor's own ingestor.
func NewProcessor(store Store, opts Options) *Processor {
	log := logger.OrDefault(opts.Logger)

	if opts.Channel == nil {
		opts.Channel = vendor.NewSimulator(vendor.SimulatorOptions{
			SuccessRate: opts.Vendor.SuccessRate,
			MinDelay:    opts.Vendor.MinDelay,
			MaxDelay:    opts.Vendor.MaxDelay,
			Logger:      log,
		})
	}
	if opts.ReceiptCapacity <= 0 {
		opts.ReceiptCapacity = delivery.DefaultQueueCapacity
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 30 * time.Second
	}

	receipts := delivery.NewReceiptQueue(opts.ReceiptCapacity)
	ingestor := delivery.NewIngestor(receipts, log)
	opts.Channel.OnReceipt(ingestor.OnReceipt)

	return &Processor{
		queue:            opts.Queue,
		queueConcurrency: opts.QueueConcurrency,
		channel:          opts.Channel,
		dispatcher:       delivery.NewDispatcher(store.Campaigns, store.Recipients, opts.Channel, opts.DispatchConcurrency, log),
		ingestor:         ingestor,
		updater:          delivery.NewBatchUpdater(log, opts.FlushInterval, receipts, store.Writer, store.Stats),
		shutdownTimeout:  opts.ShutdownTimeout,
		logger:           log.With(slog.String("component", "processor")),
	}
}

// Ingestor accepts receipts from the vendor webhook into the same queue the channel feeds.
func (p *Processor) Ingestor() *delivery.Ingestor {
	return p.ingestor
}

// Process handles a single dispatch job
func (p *Processor) Process(ctx context.Context, job *models.DispatchJob) error {
	if !job.EnqueuedAt.IsZero() {
		observability.DispatchQueueLatency.Observe(time.Since(job.EnqueuedAt).Seconds())
	}
	p.logger.Info("processing dispatch job", slog.Int64("campaign_id", job.CampaignID))

	// A claimed campaign is sent to completion even when shutdown starts mid fan-out.
	ctx = context.WithoutCancel(ctx)

	if err := p.dispatcher.HandleJob(ctx, job); err != nil {
		p.logger.Error("dispatch job failed",
			slog.Int64("campaign_id", job.CampaignID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to dispatch campaign %d: %w", job.CampaignID, err)
	}
	return nil
}

// Run starts the batch updater and, when a queue is configured, the job consumer. It
// blocks until ctx is cancelled and then shuts down in order: the consumer finishes its
// in-flight dispatches, the channel delivers outstanding receipts within the shutdown
// timeout, and the updater performs a final flush.
func (p *Processor) Run(ctx context.Context) error {
	updaterCtx, stopUpdater := context.WithCancel(context.WithoutCancel(ctx))
	defer stopUpdater()

	updaterDone := make(chan error, 1)
	go func() { updaterDone <- p.updater.Run(updaterCtx) }()

	consumerDone := make(chan error, 1)
	if p.queue != nil {
		go func() {
			p.logger.Info("starting dispatch consumer", slog.Int("concurrency", p.queueConcurrency))
			consumerDone <- p.queue.Consume(ctx, p.Process, p.queueConcurrency)
		}()
	} else {
		consumerDone <- nil
	}

	var consumerErr error
	select {
	case <-ctx.Done():
		p.logger.Info("stopping delivery pipeline")
		consumerErr = <-consumerDone
	case consumerErr = <-consumerDone:
		if p.queue != nil {
			// Receipts keep flowing until shutdown even without a consumer.
			p.logger.Error("dispatch consumer stopped early", slog.Any("error", consumerErr))
		}
		<-ctx.Done()
		p.logger.Info("stopping delivery pipeline")
	}
	if errors.Is(consumerErr, context.Canceled) {
		consumerErr = nil
	}

	if c, ok := p.channel.(closer); ok {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.shutdownTimeout)
		if err := c.Close(closeCtx); err != nil {
			// Receipts that never arrive leave their logs PENDING.
			p.logger.Warn("vendor channel closed with receipts outstanding", slog.String("error", err.Error()))
		}
		cancel()
	}

	stopUpdater()
	if err := <-updaterDone; err != nil {
		return errors.Join(consumerErr, err)
	}
	return consumerErr
}
