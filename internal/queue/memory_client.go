package queue

import (
	"context"
	"log/slog"
	"sync"

	"github.com/yuvinraja/crm-backend/internal/logger"
	"github.com/yuvinraja/crm-backend/internal/models"
)

// memoryClient is an in-process queue backed by a buffered channel. Jobs do not
// survive a restart; the dispatch claim makes a lost job recoverable by re-publishing.
type memoryClient struct {
	jobs   chan *models.DispatchJob
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewMemoryClient creates an in-process queue holding up to buffer jobs.
func NewMemoryClient(buffer int, log *slog.Logger) Client {
	if buffer < 1 {
		buffer = 1
	}
	return &memoryClient{
		jobs:   make(chan *models.DispatchJob, buffer),
		logger: logger.OrDefault(log).With(slog.String("queue", "memory")),
		done:   make(chan struct{}),
	}
}

// Publish blocks while the buffer is full, until ctx is done.
func (c *memoryClient) Publish(ctx context.Context, job *models.DispatchJob) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}

	select {
	case c.jobs <- job:
		c.logger.Debug("job published to queue", slog.Int64("campaign_id", job.CampaignID))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *memoryClient) Consume(ctx context.Context, handler JobHandler, concurrency int) error {
	concurrency = clampConcurrency(concurrency)
	c.logger.Info("starting queue consumer", slog.Int("concurrency", concurrency))

	semaphore := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopped by context, waiting for in-flight jobs to complete")
			return ctx.Err()
		case <-c.done:
			return nil
		case job := <-c.jobs:
			select {
			case semaphore <- struct{}{}:
			case <-ctx.Done():
				// Put it back so a later consumer can pick it up.
				select {
				case c.jobs <- job:
				default:
					c.logger.Warn("job dropped on shutdown", slog.Int64("campaign_id", job.CampaignID))
				}
				return ctx.Err()
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-semaphore }()
				_ = runJob(ctx, c.logger, handler, job)
			}()
		}
	}
}

func (c *memoryClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

func (c *memoryClient) Health(context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}
