package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"

	"github.com/yuvinraja/crm-backend/internal/logger"
	"github.com/yuvinraja/crm-backend/internal/models"
)

// amqpClient implements Client on a durable RabbitMQ queue with manual acks.
type amqpClient struct {
	conn      *amqp.Connection
	queueName string
	logger    *slog.Logger

	// amqp.Channel is not safe for concurrent publishes.
	pubMu sync.Mutex
	pubCh *amqp.Channel
}

// AMQPConfig holds RabbitMQ configuration
type AMQPConfig struct {
	URL       string
	QueueName string
}

// NewAMQPClient dials the broker and declares the durable dispatch queue.
func NewAMQPClient(cfg AMQPConfig, log *slog.Logger) (Client, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	if err := declareQueue(ch, cfg.QueueName); err != nil {
		_ = conn.Close()
		return nil, err
	}

	log = logger.OrDefault(log).With(slog.String("queue", "amqp"))
	log.Info("connected to RabbitMQ", slog.String("queue_name", cfg.QueueName))

	return &amqpClient{
		conn:      conn,
		queueName: cfg.QueueName,
		logger:    log,
		pubCh:     ch,
	}, nil
}

func declareQueue(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	return nil
}

func (c *amqpClient) Publish(ctx context.Context, job *models.DispatchJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	err = c.pubCh.Publish(
		"",          // default exchange
		c.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}

	c.logger.Debug("job published to queue", slog.Int64("campaign_id", job.CampaignID))
	return nil
}

// Consume acks a job after its handler returns. A failed job is requeued once; a
// redelivered failure is dropped so a poisoned job cannot loop forever.
func (c *amqpClient) Consume(ctx context.Context, handler JobHandler, concurrency int) error {
	concurrency = clampConcurrency(concurrency)

	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open a channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(concurrency, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}

	deliveries, err := ch.Consume(
		c.queueName,
		"",    // consumer tag
		false, // autoAck = false for reliability
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("starting queue consumer",
		slog.String("queue_name", c.queueName),
		slog.Int("concurrency", concurrency),
	)

	semaphore := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopped by context, waiting for in-flight jobs to complete")
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("amqp delivery channel closed")
			}

			var job models.DispatchJob
			if err := json.Unmarshal(d.Body, &job); err != nil {
				c.logger.Error("failed to unmarshal job", slog.String("error", err.Error()))
				_ = d.Ack(false)
				continue
			}

			semaphore <- struct{}{}
			wg.Add(1)
			go func(d amqp.Delivery, job models.DispatchJob) {
				defer wg.Done()
				defer func() { <-semaphore }()

				if err := runJob(ctx, c.logger, handler, &job); err != nil && !d.Redelivered {
					_ = d.Nack(false, true)
					return
				}
				_ = d.Ack(false)
			}(d, job)
		}
	}
}

func (c *amqpClient) Close() error {
	c.logger.Info("closing RabbitMQ connection")
	c.pubMu.Lock()
	_ = c.pubCh.Close()
	c.pubMu.Unlock()
	return c.conn.Close()
}

func (c *amqpClient) Health(context.Context) error {
	if c.conn.IsClosed() {
		return errors.New("rabbitmq health check failed: connection closed")
	}
	return nil
}
