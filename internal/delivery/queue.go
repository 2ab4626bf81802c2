// Package delivery implements the campaign delivery pipeline: fanning campaigns out to
// the vendor channel, ingesting asynchronous receipts, and flushing them to the
// delivery-log store in batches.
package delivery

import (
	"sync"

	"github.com/yuvinraja/crm-backend/internal/models"
	"github.com/yuvinraja/crm-backend/internal/observability"
)

// DefaultQueueCapacity bounds the receipts held between flushes.
const DefaultQueueCapacity = 100_000

// ReceiptQueue is the bounded in-memory buffer between the ingestor and the batch
// updater. Enqueue is safe from any number of goroutines; Drain and Requeue are
// called only by the updater.
type ReceiptQueue struct {
	mu       sync.Mutex
	items    []models.Receipt
	capacity int
}

// NewReceiptQueue creates a queue holding at most capacity receipts.
func NewReceiptQueue(capacity int) *ReceiptQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &ReceiptQueue{capacity: capacity}
}

// Enqueue appends a receipt. A full queue returns an UNAVAILABLE error so the
// sender can retry later.
func (q *ReceiptQueue) Enqueue(r models.Receipt) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.capacity {
		return models.ErrUnavailableWithMsg("receipt queue is full, retry later")
	}
	q.items = append(q.items, r)
	observability.ReceiptQueueDepth.Set(float64(len(q.items)))
	return nil
}

// Drain removes and returns everything queued so far. Receipts enqueued afterwards
// belong to the next drain.
func (q *ReceiptQueue) Drain() []models.Receipt {
	q.mu.Lock()
	defer q.mu.Unlock()

	batch := q.items
	q.items = nil
	observability.ReceiptQueueDepth.Set(0)
	return batch
}

// Requeue puts a batch whose write failed back at the front, ahead of receipts that
// arrived since the drain. The capacity bound is not applied.
func (q *ReceiptQueue) Requeue(batch []models.Receipt) {
	if len(batch) == 0 {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	merged := make([]models.Receipt, 0, len(batch)+len(q.items))
	merged = append(merged, batch...)
	merged = append(merged, q.items...)
	q.items = merged
	observability.ReceiptQueueDepth.Set(float64(len(q.items)))
}

// Len returns the number of queued receipts.
func (q *ReceiptQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
