package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuvinraja/crm-backend/internal/config"
	"github.com/yuvinraja/crm-backend/internal/models"
	"github.com/yuvinraja/crm-backend/internal/queue"
	"github.com/yuvinraja/crm-backend/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory campaign + delivery-log store implementing Store.
type memStore struct {
	mu         sync.Mutex
	campaign   *models.Campaign
	logs       map[int64]models.DeliveryStatus
	writes     int
	refreshed  []int64
	failWrites int
}

func newMemStore(recipients int) *memStore {
	s := &memStore{
		campaign: &models.Campaign{ID: 1, Name: "c", Message: "Hi {name}"},
		logs:     map[int64]models.DeliveryStatus{},
	}
	for i := 1; i <= recipients; i++ {
		s.logs[int64(i)] = models.DeliveryStatusPending
	}
	return s
}

func (s *memStore) store() Store {
	return Store{Campaigns: s, Recipients: s, Writer: s, Stats: s}
}

func (s *memStore) GetByID(_ context.Context, id int64) (*models.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != s.campaign.ID {
		return nil, models.ErrNotFoundWithMsg("campaign not found")
	}
	c := *s.campaign
	return &c, nil
}

func (s *memStore) ClaimDispatch(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != s.campaign.ID {
		return false, models.ErrNotFoundWithMsg("campaign not found")
	}
	if s.campaign.DispatchedAt != nil {
		return false, nil
	}
	now := time.Now()
	s.campaign.DispatchedAt = &now
	return true, nil
}

func (s *memStore) ListRecipients(_ context.Context, campaignID int64) ([]*models.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.Recipient{}
	for id, st := range s.logs {
		if st == models.DeliveryStatusPending {
			out = append(out, &models.Recipient{LogID: id, CustomerID: id, Name: "n", Email: "n@example.com"})
		}
	}
	return out, nil
}

func (s *memStore) ApplyReceipts(_ context.Context, receipts []models.Receipt) (*repository.ApplyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites > 0 {
		s.failWrites--
		return nil, errors.New("database unavailable")
	}
	s.writes++
	result := &repository.ApplyResult{}
	for _, r := range receipts {
		if s.logs[r.CustomerID] == models.DeliveryStatusPending {
			s.logs[r.CustomerID] = r.Status
			result.Applied++
		}
	}
	if result.Applied > 0 {
		result.CampaignIDs = []int64{s.campaign.ID}
	}
	return result, nil
}

func (s *memStore) RefreshStats(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshed = append(s.refreshed, ids...)
	return nil
}

func (s *memStore) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, st := range s.logs {
		if st == models.DeliveryStatusPending {
			n++
		}
	}
	return n
}

func fastVendor() config.VendorConfig {
	return config.VendorConfig{SuccessRate: 0.5, MinDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestProcessor_DeliversEveryRecipient(t *testing.T) {
	t.Parallel()

	store := newMemStore(25)
	q := queue.NewMemoryClient(4, discardLogger())
	p := NewProcessor(store.store(), Options{
		Queue:            q,
		QueueConcurrency: 2,
		FlushInterval:    10 * time.Millisecond,
		Vendor:           fastVendor(),
		Logger:           discardLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.NoError(t, q.Publish(ctx, &models.DispatchJob{CampaignID: 1, EnqueuedAt: time.Now()}))
	// A redelivered job is skipped by the claim.
	require.NoError(t, q.Publish(ctx, &models.DispatchJob{CampaignID: 1, EnqueuedAt: time.Now()}))

	assert.Eventually(t, func() bool { return store.pending() == 0 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("processor did not stop")
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.NotEmpty(t, store.refreshed, "stats refreshed after applied flushes")
}

func TestProcessor_ShutdownFlushesOutstandingReceipts(t *testing.T) {
	t.Parallel()

	store := newMemStore(10)
	p := NewProcessor(store.store(), Options{
		// The ticker never fires in this test; only the final flush writes.
		FlushInterval: time.Hour,
		Vendor:        config.VendorConfig{SuccessRate: 1, MinDelay: 100 * time.Millisecond, MaxDelay: 150 * time.Millisecond},
		Logger:        discardLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.NoError(t, p.Process(context.Background(), &models.DispatchJob{CampaignID: 1}))
	assert.Equal(t, 10, store.pending(), "receipts are still in flight")

	cancel()
	require.NoError(t, <-done)

	assert.Zero(t, store.pending())
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, 1, store.writes, "one bulk write for the whole batch")
	for _, st := range store.logs {
		assert.Equal(t, models.DeliveryStatusSent, st)
	}
}

func TestProcessor_WebhookReceiptsShareTheQueue(t *testing.T) {
	t.Parallel()

	store := newMemStore(2)
	p := NewProcessor(store.store(), Options{FlushInterval: time.Hour, Vendor: fastVendor(), Logger: discardLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.NoError(t, p.Ingestor().OnReceipt(context.Background(), models.Receipt{
		CampaignID: 1, CustomerID: 1, Status: models.DeliveryStatusFailed, ErrorMessage: "bounced",
	}))

	cancel()
	require.NoError(t, <-done)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, models.DeliveryStatusFailed, store.logs[1])
	assert.Equal(t, models.DeliveryStatusPending, store.logs[2])
}

func TestProcessor_FailedWriteIsRetriedNextTick(t *testing.T) {
	t.Parallel()

	store := newMemStore(1)
	store.failWrites = 1
	p := NewProcessor(store.store(), Options{FlushInterval: 10 * time.Millisecond, Vendor: fastVendor(), Logger: discardLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.NoError(t, p.Ingestor().OnReceipt(context.Background(), models.Receipt{
		CampaignID: 1, CustomerID: 1, Status: models.DeliveryStatusSent,
	}))

	assert.Eventually(t, func() bool { return store.pending() == 0 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestProcessor_Process_ReportsDispatchErrors(t *testing.T) {
	t.Parallel()

	store := newMemStore(1)
	p := NewProcessor(store.store(), Options{Vendor: fastVendor(), Logger: discardLogger()})

	err := p.Process(context.Background(), &models.DispatchJob{CampaignID: 99})

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestOptionsFromConfig(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		App:      config.AppConfig{ShutdownTimeout: 7 * time.Second},
		Queue:    config.QueueConfig{Concurrency: 3},
		Delivery: config.DeliveryConfig{FlushInterval: 2 * time.Second, ReceiptQueueCapacity: 50, DispatchConcurrency: 8},
		Vendor:   fastVendor(),
	}

	opts := OptionsFromConfig(cfg, nil, nil)

	assert.Equal(t, 3, opts.QueueConcurrency)
	assert.Equal(t, 8, opts.DispatchConcurrency)
	assert.Equal(t, 2*time.Second, opts.FlushInterval)
	assert.Equal(t, 50, opts.ReceiptCapacity)
	assert.Equal(t, 7*time.Second, opts.ShutdownTimeout)
	assert.Nil(t, opts.Queue)
}
