// Package queue carries campaign dispatch jobs from the API to the workers.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yuvinraja/crm-backend/internal/config"
	"github.com/yuvinraja/crm-backend/internal/models"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("queue: closed")

// Client defines the interface for queue operations
type Client interface {
	// Publish sends a dispatch job to the queue
	Publish(ctx context.Context, job *models.DispatchJob) error

	// Consume receives jobs and processes them with the handler until ctx is done.
	// concurrency controls how many jobs can be processed simultaneously.
	// In-flight jobs finish before Consume returns.
	Consume(ctx context.Context, handler JobHandler, concurrency int) error

	// Close closes the queue connection
	Close() error

	// Health checks if the queue is healthy
	Health(ctx context.Context) error
}

// JobHandler is a function that processes a dispatch job
type JobHandler func(ctx context.Context, job *models.DispatchJob) error

// New opens the client selected by cfg.Driver.
func New(cfg config.QueueConfig, log *slog.Logger) (Client, error) {
	switch cfg.Driver {
	case config.QueueDriverMemory, "":
		return NewMemoryClient(cfg.Buffer, log), nil
	case config.QueueDriverRedis:
		return NewRedisClient(RedisConfig{URL: cfg.RedisURL, QueueName: cfg.Name}, log)
	case config.QueueDriverAMQP:
		return NewAMQPClient(AMQPConfig{URL: cfg.AMQPURL, QueueName: cfg.Name}, log)
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Driver)
	}
}

func clampConcurrency(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// runJob invokes handler and logs its failure. Panics are contained to the job.
func runJob(ctx context.Context, log *slog.Logger, handler JobHandler, job *models.DispatchJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panicked: %v", r)
		}
		if err != nil {
			log.Error("handler failed to process job",
				slog.Int64("campaign_id", job.CampaignID),
				slog.String("error", err.Error()),
			)
		}
	}()
	return handler(ctx, job)
}
