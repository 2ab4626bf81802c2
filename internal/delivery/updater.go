package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yuvinraja/crm-backend/internal/logger"
	"github.com/yuvinraja/crm-backend/internal/models"
	"github.com/yuvinraja/crm-backend/internal/observability"
	"github.com/yuvinraja/crm-backend/internal/repository"
)

// DefaultFlushInterval is the period between batch flushes.
const DefaultFlushInterval = 5 * time.Second

// finalFlushTimeout bounds the flush performed when Run is stopped.
const finalFlushTimeout = 10 * time.Second

// ReceiptWriter applies a batch of receipts in one bulk write.
type ReceiptWriter interface {
	ApplyReceipts(ctx context.Context, receipts []models.Receipt) (*repository.ApplyResult, error)
}

// StatsRefresher recomputes cached campaign counters after a write.
type StatsRefresher interface {
	RefreshStats(ctx context.Context, campaignIDs []int64) error
}

// FlushResult summarizes one flush.
type FlushResult struct {
	Drained   int
	Written   int
	Applied   int64
	Campaigns []int64
}

// BatchUpdater is the single writer of delivery status. On every tick it drains the
// receipt queue and issues one bulk write.
type BatchUpdater struct {
	queue    *ReceiptQueue
	writer   ReceiptWriter
	stats    StatsRefresher
	interval time.Duration
	logger   *slog.Logger

	// flushMu keeps flushes from overlapping, whether started by the ticker or by Flush.
	flushMu sync.Mutex
}

// NewBatchUpdater creates an updater. stats may be nil.
func NewBatchUpdater(log *slog.Logger, interval time.Duration, queue *ReceiptQueue, writer ReceiptWriter, stats StatsRefresher) *BatchUpdater {
	if queue == nil {
		panic("delivery: receipt queue cannot be nil")
	}
	if writer == nil {
		panic("delivery: receipt writer cannot be nil")
	}
	if interval <= 0 {
		interval = DefaultFlushInterval
	}

	return &BatchUpdater{
		queue:    queue,
		writer:   writer,
		stats:    stats,
		interval: interval,
		logger:   logger.OrDefault(log).With(slog.String("component", "batch_updater")),
	}
}

// Run flushes on every tick until ctx is cancelled, then performs one final flush so
// receipts queued during shutdown are not lost.
func (u *BatchUpdater) Run(ctx context.Context) error {
	u.logger.Info("starting batch updater", slog.String("interval", u.interval.String()))

	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			u.logger.Info("batch updater stopping, flushing remaining receipts", slog.Int("queued", u.queue.Len()))

			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalFlushTimeout)
			defer cancel()
			if _, err := u.Flush(flushCtx); err != nil {
				return fmt.Errorf("final flush failed: %w", err)
			}
			return nil
		case <-ticker.C:
			if _, err := u.Flush(ctx); err != nil {
				// Entries were requeued; the next tick retries them.
				u.logger.Error("batch flush failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Flush drains the queue and writes it. An empty queue issues no write. On a write
// failure the drained receipts go back to the front of the queue.
func (u *BatchUpdater) Flush(ctx context.Context) (*FlushResult, error) {
	u.flushMu.Lock()
	defer u.flushMu.Unlock()

	batch := u.queue.Drain()
	result := &FlushResult{Drained: len(batch)}
	if len(batch) == 0 {
		return result, nil
	}

	start := time.Now()
	unique := dedupeFirstWins(batch)
	result.Written = len(unique)

	applied, err := u.writer.ApplyReceipts(ctx, unique)
	if err != nil {
		u.queue.Requeue(unique)
		observability.BatchFlushesTotal.WithLabelValues("fail").Inc()
		u.logger.Error("bulk receipt write failed, batch requeued",
			slog.Int("batch_size", len(unique)),
			slog.String("error", err.Error()),
		)
		return result, fmt.Errorf("failed to apply %d receipts: %w", len(unique), err)
	}

	result.Applied = applied.Applied
	result.Campaigns = applied.CampaignIDs

	observability.BatchFlushesTotal.WithLabelValues("success").Inc()
	observability.BatchSize.Observe(float64(len(unique)))
	observability.ReceiptsAppliedTotal.Add(float64(applied.Applied))

	if u.stats != nil && len(applied.CampaignIDs) > 0 {
		// The delivery logs are already written; a refresh failure only leaves the cached
		// counters stale until the next flush that touches the campaign.
		if err := u.stats.RefreshStats(ctx, applied.CampaignIDs); err != nil {
			u.logger.Warn("failed to refresh campaign stats",
				slog.Any("campaign_ids", applied.CampaignIDs),
				slog.String("error", err.Error()),
			)
		}
	}

	u.logger.Info("batch flushed",
		slog.Int("drained", result.Drained),
		slog.Int("written", result.Written),
		slog.Int64("applied", result.Applied),
		slog.String("duration", time.Since(start).String()),
	)
	return result, nil
}

// dedupeFirstWins keeps the earliest receipt per delivery log. A single bulk statement
// cannot order two updates of the same row, so later duplicates are dropped here and
// the PENDING guard in storage handles receipts from earlier batches.
func dedupeFirstWins(batch []models.Receipt) []models.Receipt {
	seen := make(map[models.DeliveryKey]struct{}, len(batch))
	unique := make([]models.Receipt, 0, len(batch))
	for _, r := range batch {
		k := r.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, r)
	}
	return unique
}
