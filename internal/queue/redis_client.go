package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yuvinraja/crm-backend/internal/logger"
	"github.com/yuvinraja/crm-backend/internal/models"
)

// redisClient implements Client using a Redis list
type redisClient struct {
	client    *redis.Client
	queueName string
	logger    *slog.Logger
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL       string
	QueueName string
}

// NewRedisClient creates a new Redis queue client
func NewRedisClient(cfg RedisConfig, log *slog.Logger) (Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log = logger.OrDefault(log).With(slog.String("queue", "redis"))
	log.Info("connected to Redis",
		slog.String("addr", opts.Addr),
		slog.String("queue_name", cfg.QueueName),
	)

	return newRedisClient(client, cfg.QueueName, log), nil
}

func newRedisClient(client *redis.Client, queueName string, log *slog.Logger) *redisClient {
	return &redisClient{
		client:    client,
		queueName: queueName,
		logger:    logger.OrDefault(log),
	}
}

// Publish pushes the job onto the list. LPUSH plus BRPOP gives FIFO order.
func (c *redisClient) Publish(ctx context.Context, job *models.DispatchJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := c.client.LPush(ctx, c.queueName, data).Err(); err != nil {
		return fmt.Errorf("failed to push job to queue: %w", err)
	}

	c.logger.Debug("job published to queue", slog.Int64("campaign_id", job.CampaignID))
	return nil
}

func (c *redisClient) Consume(ctx context.Context, handler JobHandler, concurrency int) error {
	concurrency = clampConcurrency(concurrency)

	c.logger.Info("starting queue consumer",
		slog.String("queue_name", c.queueName),
		slog.Int("concurrency", concurrency),
	)

	semaphore := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		c.logger.Info("all in-flight jobs completed")
	}()

	for {
		if err := ctx.Err(); err != nil {
			c.logger.Info("consumer stopped by context, waiting for in-flight jobs to complete")
			return err
		}

		// Take a slot before popping so a popped job never waits on a full pool.
		select {
		case semaphore <- struct{}{}:
		case <-ctx.Done():
			continue
		}

		result, err := c.client.BRPop(ctx, time.Second, c.queueName).Result()
		if err != nil {
			<-semaphore
			switch {
			case errors.Is(err, redis.Nil):
				continue
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				continue
			}
			c.logger.Error("failed to pop from queue", slog.String("error", err.Error()))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
			continue
		}

		// BRPOP returns [queueName, value]
		if len(result) < 2 {
			<-semaphore
			c.logger.Error("unexpected BRPOP result format")
			continue
		}

		var job models.DispatchJob
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			<-semaphore
			c.logger.Error("failed to unmarshal job",
				slog.String("error", err.Error()),
				slog.String("data", result[1]),
			)
			continue
		}

		c.logger.Debug("job received from queue", slog.Int64("campaign_id", job.CampaignID))

		wg.Add(1)
		go func(job models.DispatchJob) {
			defer wg.Done()
			defer func() { <-semaphore }()
			// The job is already popped; failures are only logged.
			_ = runJob(ctx, c.logger, handler, &job)
		}(job)
	}
}

// Close closes the Redis connection
func (c *redisClient) Close() error {
	c.logger.Info("closing Redis connection")
	return c.client.Close()
}

// Health checks if Redis is healthy
func (c *redisClient) Health(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// QueueLength returns the number of jobs in the queue (for monitoring)
func (c *redisClient) QueueLength(ctx context.Context) (int64, error) {
	length, err := c.client.LLen(ctx, c.queueName).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue length: %w", err)
	}
	return length, nil
}
