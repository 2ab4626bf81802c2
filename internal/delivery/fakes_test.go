package delivery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/yuvinraja/crm-backend/internal/models"
	"github.com/yuvinraja/crm-backend/internal/repository"
	"github.com/yuvinraja/crm-backend/internal/vendor"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memLogStore is an in-memory delivery-log store with the same first-terminal-write-wins
// guard as the Postgres bulk update.
type memLogStore struct {
	mu       sync.Mutex
	logs     map[models.DeliveryKey]models.DeliveryStatus
	writes   int
	failNext int
	batches  [][]models.Receipt
	refresh  [][]int64
}

func newMemLogStore(keys ...models.DeliveryKey) *memLogStore {
	s := &memLogStore{logs: map[models.DeliveryKey]models.DeliveryStatus{}}
	for _, k := range keys {
		s.logs[k] = models.DeliveryStatusPending
	}
	return s
}

func (s *memLogStore) ApplyReceipts(_ context.Context, receipts []models.Receipt) (*repository.ApplyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writes++
	s.batches = append(s.batches, append([]models.Receipt(nil), receipts...))
	if s.failNext > 0 {
		s.failNext--
		return nil, errors.New("connection reset by peer")
	}

	result := &repository.ApplyResult{CampaignIDs: []int64{}}
	for _, r := range receipts {
		status, ok := s.logs[r.Key()]
		if !ok || status != models.DeliveryStatusPending {
			continue
		}
		s.logs[r.Key()] = r.Status
		result.Applied++
		if !slices.Contains(result.CampaignIDs, r.CampaignID) {
			result.CampaignIDs = append(result.CampaignIDs, r.CampaignID)
		}
	}
	return result, nil
}

func (s *memLogStore) RefreshStats(_ context.Context, campaignIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh = append(s.refresh, campaignIDs)
	return nil
}

func (s *memLogStore) status(k models.DeliveryKey) models.DeliveryStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logs[k]
}

func (s *memLogStore) statsFor(campaignID int64) models.DeliveryStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st models.DeliveryStats
	for k, status := range s.logs {
		if k.CampaignID != campaignID {
			continue
		}
		st.Total++
		switch status {
		case models.DeliveryStatusPending:
			st.Pending++
		case models.DeliveryStatusSent:
			st.Sent++
		case models.DeliveryStatusFailed:
			st.Failed++
		}
	}
	return st
}

func (s *memLogStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// fakeChannel acknowledges synchronously and records every message.
type fakeChannel struct {
	mu       sync.Mutex
	sent     []vendor.Message
	reject   map[int64]bool
	failFor  map[int64]error
	panicFor map[int64]bool
	handler  vendor.ReceiptHandler
}

func (c *fakeChannel) Send(_ context.Context, msg vendor.Message) (vendor.Ack, error) {
	if c.panicFor[msg.CustomerID] {
		panic("vendor client exploded")
	}
	if err := c.failFor[msg.CustomerID]; err != nil {
		return vendor.Ack{}, err
	}
	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()
	return vendor.Ack{Accepted: !c.reject[msg.CustomerID], MessageID: "msg_test"}, nil
}

func (c *fakeChannel) OnReceipt(h vendor.ReceiptHandler) { c.handler = h }

func (c *fakeChannel) messages() []vendor.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]vendor.Message(nil), c.sent...)
}

type fakeCampaigns struct {
	mu        sync.Mutex
	campaigns map[int64]*models.Campaign
	claimed   map[int64]bool
}

func newFakeCampaigns(cs ...*models.Campaign) *fakeCampaigns {
	f := &fakeCampaigns{campaigns: map[int64]*models.Campaign{}, claimed: map[int64]bool{}}
	for _, c := range cs {
		f.campaigns[c.ID] = c
	}
	return f
}

func (f *fakeCampaigns) GetByID(_ context.Context, id int64) (*models.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return nil, models.ErrNotFoundWithMsg("campaign not found")
	}
	return c, nil
}

func (f *fakeCampaigns) ClaimDispatch(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.campaigns[id]; !ok {
		return false, models.ErrNotFoundWithMsg("campaign not found")
	}
	if f.claimed[id] {
		return false, nil
	}
	f.claimed[id] = true
	return true, nil
}

type fakeRecipients map[int64][]*models.Recipient

func (f fakeRecipients) ListRecipients(_ context.Context, campaignID int64) ([]*models.Recipient, error) {
	return f[campaignID], nil
}

// gatedChannel blocks every send until release is closed and tracks peak concurrency.
type gatedChannel struct {
	release  chan struct{}
	inflight atomic.Int64
	maxSeen  atomic.Int64
}

func (c *gatedChannel) Send(ctx context.Context, _ vendor.Message) (vendor.Ack, error) {
	n := c.inflight.Add(1)
	defer c.inflight.Add(-1)
	for {
		peak := c.maxSeen.Load()
		if n <= peak || c.maxSeen.CompareAndSwap(peak, n) {
			break
		}
	}
	select {
	case <-c.release:
	case <-ctx.Done():
		return vendor.Ack{}, ctx.Err()
	}
	return vendor.Ack{Accepted: true, MessageID: "msg_gated"}, nil
}

func (c *gatedChannel) OnReceipt(vendor.ReceiptHandler) {}

func (c *gatedChannel) peak() int64 { return c.maxSeen.Load() }

// flakyRecipients fails the first failures calls, then serves recipients.
type flakyRecipients struct {
	mu         sync.Mutex
	failures   int
	recipients fakeRecipients
}

func (f *flakyRecipients) ListRecipients(ctx context.Context, campaignID int64) ([]*models.Recipient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("connection refused")
	}
	return f.recipients.ListRecipients(ctx, campaignID)
}
