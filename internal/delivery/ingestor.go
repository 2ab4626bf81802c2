package delivery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/yuvinraja/crm-backend/internal/logger"
	"github.com/yuvinraja/crm-backend/internal/models"
	"github.com/yuvinraja/crm-backend/internal/observability"
)

// Ingestor accepts delivery receipts from the vendor channel or the webhook and
// queues them for the batch updater. It never writes to storage.
type Ingestor struct {
	queue  *ReceiptQueue
	now    func() time.Time
	logger *slog.Logger
}

// NewIngestor creates an ingestor feeding queue.
func NewIngestor(queue *ReceiptQueue, log *slog.Logger) *Ingestor {
	if queue == nil {
		panic("delivery: receipt queue cannot be nil")
	}
	return &Ingestor{
		queue:  queue,
		now:    time.Now,
		logger: logger.OrDefault(log),
	}
}

// OnReceipt validates and enqueues one receipt. It matches vendor.ReceiptHandler.
// A missing timestamp is stamped with the arrival time.
func (i *Ingestor) OnReceipt(ctx context.Context, receipt models.Receipt) error {
	if err := receipt.Validate(); err != nil {
		observability.ReceiptsIngestedTotal.WithLabelValues("invalid").Inc()
		return err
	}
	if receipt.Timestamp.IsZero() {
		receipt.Timestamp = i.now()
	}

	if err := i.queue.Enqueue(receipt); err != nil {
		observability.ReceiptsIngestedTotal.WithLabelValues("rejected").Inc()
		if errors.Is(err, models.ErrUnavailable) {
			i.logger.WarnContext(ctx, "receipt rejected: queue full",
				slog.Int64("campaign_id", receipt.CampaignID),
				slog.Int64("customer_id", receipt.CustomerID),
			)
		}
		return err
	}

	observability.ReceiptsIngestedTotal.WithLabelValues("queued").Inc()
	i.logger.Debug("receipt queued",
		slog.String("message_id", receipt.MessageID),
		slog.Int64("campaign_id", receipt.CampaignID),
		slog.Int64("customer_id", receipt.CustomerID),
		slog.String("status", string(receipt.Status)),
	)
	return nil
}
