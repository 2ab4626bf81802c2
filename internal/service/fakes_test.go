package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/yuvinraja/crm-backend/internal/models"
	"github.com/yuvinraja/crm-backend/internal/queue"
	"github.com/yuvinraja/crm-backend/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func paginate[T any](items []T, page, pageSize int) []T {
	page, pageSize = models.NormalizePage(page, pageSize)
	start := min(models.Offset(page, pageSize), len(items))
	end := min(start+pageSize, len(items))
	return items[start:end]
}

type fakeCustomerRepo struct {
	mu        sync.Mutex
	customers []*models.Customer
	streamErr error
}

var _ repository.CustomerRepository = (*fakeCustomerRepo)(nil)

func (r *fakeCustomerRepo) add(cs ...*models.Customer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range cs {
		if c.ID == 0 {
			c.ID = int64(len(r.customers) + 1)
		}
		r.customers = append(r.customers, c)
	}
}

func (r *fakeCustomerRepo) Create(_ context.Context, c *models.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.Email = strings.ToLower(c.Email)
	for _, existing := range r.customers {
		if existing.Email == c.Email {
			return models.ErrConflictWithMsg("customer with this email already exists")
		}
	}
	c.ID = int64(len(r.customers) + 1)
	c.CreatedAt = time.Now()
	r.customers = append(r.customers, c)
	return nil
}

func (r *fakeCustomerRepo) GetByID(_ context.Context, id int64) (*models.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.customers {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, models.ErrNotFoundWithMsg(fmt.Sprintf("customer with ID %d not found", id))
}

func (r *fakeCustomerRepo) List(_ context.Context, filter models.CustomerFilter) ([]*models.Customer, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.Customer{}
	for _, c := range r.customers {
		if filter.Email == "" || c.Email == strings.ToLower(filter.Email) {
			out = append(out, c)
		}
	}
	return paginate(out, filter.Page, filter.PageSize), int64(len(out)), nil
}

func (r *fakeCustomerRepo) ForEach(_ context.Context, fn func(*models.Customer) error) error {
	r.mu.Lock()
	snapshot := slices.Clone(r.customers)
	streamErr := r.streamErr
	r.mu.Unlock()
	if streamErr != nil {
		return streamErr
	}
	for _, c := range snapshot {
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

type fakeSegmentRepo struct {
	mu       sync.Mutex
	segments map[int64]*models.Segment
	nextID   int64
	clock    time.Time
}

var _ repository.SegmentRepository = (*fakeSegmentRepo)(nil)

func newFakeSegmentRepo() *fakeSegmentRepo {
	return &fakeSegmentRepo{
		segments: map[int64]*models.Segment{},
		clock:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (r *fakeSegmentRepo) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

func (r *fakeSegmentRepo) Create(_ context.Context, s *models.Segment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	s.ID = r.nextID
	s.Combinator = s.Combinator.Normalize()
	s.CreatedAt = r.tick()
	s.UpdatedAt = s.CreatedAt
	stored := *s
	r.segments[s.ID] = &stored
	return nil
}

func (r *fakeSegmentRepo) GetByID(_ context.Context, id int64) (*models.Segment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.segments[id]
	if !ok {
		return nil, models.ErrNotFoundWithMsg(fmt.Sprintf("segment with ID %d not found", id))
	}
	out := *s
	return &out, nil
}

func (r *fakeSegmentRepo) List(_ context.Context, page, pageSize int) ([]*models.Segment, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Segment, 0, len(r.segments))
	for _, s := range r.segments {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b *models.Segment) int { return int(b.ID - a.ID) })
	return paginate(out, page, pageSize), int64(len(out)), nil
}

func (r *fakeSegmentRepo) Update(_ context.Context, s *models.Segment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.segments[s.ID]; !ok {
		return models.ErrNotFoundWithMsg(fmt.Sprintf("segment with ID %d not found", s.ID))
	}
	s.UpdatedAt = r.tick()
	stored := *s
	r.segments[s.ID] = &stored
	return nil
}

func (r *fakeSegmentRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.segments[id]; !ok {
		return models.ErrNotFoundWithMsg(fmt.Sprintf("segment with ID %d not found", id))
	}
	delete(r.segments, id)
	return nil
}

// deliveryStore backs both the campaign and delivery-log fakes so frozen recipients
// written by one are visible to the other.
type deliveryStore struct {
	mu        sync.Mutex
	campaigns map[int64]*models.Campaign
	logs      map[int64][]*models.DeliveryLog
	nextID    int64
	createErr error
}

func newDeliveryStore() *deliveryStore {
	return &deliveryStore{
		campaigns: map[int64]*models.Campaign{},
		logs:      map[int64][]*models.DeliveryLog{},
	}
}

type fakeCampaignRepo struct{ *deliveryStore }

var _ repository.CampaignRepository = fakeCampaignRepo{}

func (r fakeCampaignRepo) CreateWithRecipients(_ context.Context, c *models.Campaign, customerIDs []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.nextID++
	c.ID = r.nextID
	c.CreatedAt = time.Now()
	c.Stats.AudienceSize = int64(len(customerIDs))
	stored := *c
	r.campaigns[c.ID] = &stored
	for i, id := range customerIDs {
		r.logs[c.ID] = append(r.logs[c.ID], &models.DeliveryLog{
			ID:         int64(i + 1),
			CampaignID: c.ID,
			CustomerID: id,
			Status:     models.DeliveryStatusPending,
		})
	}
	return nil
}

func (r fakeCampaignRepo) GetByID(_ context.Context, id int64) (*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, models.ErrNotFoundWithMsg(fmt.Sprintf("campaign with ID %d not found", id))
	}
	out := *c
	return &out, nil
}

func (r fakeCampaignRepo) List(_ context.Context, filter models.CampaignFilter) ([]*models.Campaign, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.Campaign{}
	for _, c := range r.campaigns {
		if filter.SegmentID > 0 && (c.SegmentID == nil || *c.SegmentID != filter.SegmentID) {
			continue
		}
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b *models.Campaign) int { return int(b.ID - a.ID) })
	return paginate(out, filter.Page, filter.PageSize), int64(len(out)), nil
}

func (r fakeCampaignRepo) ClaimDispatch(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return false, models.ErrNotFoundWithMsg("campaign not found")
	}
	if c.DispatchedAt != nil {
		return false, nil
	}
	now := time.Now()
	c.DispatchedAt = &now
	return true, nil
}

func (r fakeCampaignRepo) RefreshStats(context.Context, []int64) error { return nil }

type fakeLogRepo struct{ *deliveryStore }

var _ repository.DeliveryLogRepository = fakeLogRepo{}

func (r fakeLogRepo) ListRecipients(_ context.Context, campaignID int64) ([]*models.Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.Recipient{}
	for _, l := range r.logs[campaignID] {
		if l.Status == models.DeliveryStatusPending {
			out = append(out, &models.Recipient{LogID: l.ID, CustomerID: l.CustomerID})
		}
	}
	return out, nil
}

func (r fakeLogRepo) List(_ context.Context, filter models.DeliveryLogFilter) ([]*models.DeliveryLog, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.DeliveryLog{}
	for _, l := range r.logs[filter.CampaignID] {
		if filter.Status == "" || l.Status == filter.Status {
			out = append(out, l)
		}
	}
	return paginate(out, filter.Page, filter.PageSize), int64(len(out)), nil
}

func (r fakeLogRepo) ApplyReceipts(_ context.Context, receipts []models.Receipt) (*repository.ApplyResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := &repository.ApplyResult{CampaignIDs: []int64{}}
	for _, rc := range receipts {
		for _, l := range r.logs[rc.CampaignID] {
			if l.CustomerID == rc.CustomerID && l.Status == models.DeliveryStatusPending {
				l.Status = rc.Status
				result.Applied++
			}
		}
	}
	return result, nil
}

func (r fakeLogRepo) StatsFor(_ context.Context, campaignID int64) (models.DeliveryStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var st models.DeliveryStats
	for _, l := range r.logs[campaignID] {
		st.Total++
		switch l.Status {
		case models.DeliveryStatusPending:
			st.Pending++
		case models.DeliveryStatusSent:
			st.Sent++
		case models.DeliveryStatusFailed:
			st.Failed++
		}
	}
	return st, nil
}

type fakeQueue struct {
	mu         sync.Mutex
	jobs       []*models.DispatchJob
	publishErr error
}

var _ queue.Client = (*fakeQueue)(nil)

func (q *fakeQueue) Publish(_ context.Context, job *models.DispatchJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.publishErr != nil {
		return q.publishErr
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) Consume(ctx context.Context, _ queue.JobHandler, _ int) error {
	<-ctx.Done()
	return ctx.Err()
}

func (q *fakeQueue) Close() error { return nil }

func (q *fakeQueue) Health(context.Context) error { return nil }

func (q *fakeQueue) published() []*models.DispatchJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.jobs)
}

var errBroker = errors.New("broker unreachable")

// fakeOrderRepo applies orders to a fakeCustomerRepo the way the Postgres transaction does.
type fakeOrderRepo struct {
	mu        sync.Mutex
	customers *fakeCustomerRepo
	orders    []*models.Order
	createErr error
}

var _ repository.OrderRepository = (*fakeOrderRepo)(nil)

func (r *fakeOrderRepo) Create(ctx context.Context, o *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	c, err := r.customers.GetByID(ctx, o.CustomerID)
	if err != nil {
		return err
	}
	if o.OrderDate.IsZero() {
		o.OrderDate = time.Now()
	}
	r.customers.mu.Lock()
	c.TotalSpending += o.OrderAmount
	if c.LastVisit == nil || o.OrderDate.After(*c.LastVisit) {
		visit := o.OrderDate
		c.LastVisit = &visit
	}
	r.customers.mu.Unlock()
	o.ID = int64(len(r.orders) + 1)
	o.CreatedAt = time.Now()
	r.orders = append(r.orders, o)
	return nil
}

func (r *fakeOrderRepo) GetByID(_ context.Context, id int64) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, models.ErrNotFoundWithMsg(fmt.Sprintf("order with ID %d not found", id))
}

func (r *fakeOrderRepo) List(_ context.Context, filter models.OrderFilter) ([]*models.Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.Order{}
	for i := len(r.orders) - 1; i >= 0; i-- {
		if filter.CustomerID == 0 || r.orders[i].CustomerID == filter.CustomerID {
			out = append(out, r.orders[i])
		}
	}
	return paginate(out, filter.Page, filter.PageSize), int64(len(out)), nil
}
