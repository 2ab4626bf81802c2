//go:build integration

package repository_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuvinraja/crm-backend/internal/models"
	"github.com/yuvinraja/crm-backend/internal/repository"
	"github.com/yuvinraja/crm-backend/internal/testsupport"
)

var pg *testsupport.PostgresContainer

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	pg, err = testsupport.StartPostgresContainer(ctx, "../../migrations")
	if err != nil {
		panic(err)
	}

	code := m.Run()
	_ = pg.Terminate(ctx)
	os.Exit(code)
}

type repos struct {
	customers repository.CustomerRepository
	segments  repository.SegmentRepository
	campaigns repository.CampaignRepository
	logs      repository.DeliveryLogRepository
	orders    repository.OrderRepository
}

// setup truncates every table; tests in this package share one database and run serially.
func setup(t *testing.T) repos {
	t.Helper()
	require.NoError(t, pg.Truncate(context.Background()))
	return repos{
		customers: repository.NewCustomerRepository(pg.DB.DB),
		segments:  repository.NewSegmentRepository(pg.DB.DB),
		campaigns: repository.NewCampaignRepository(pg.DB.DB),
		logs:      repository.NewDeliveryLogRepository(pg.DB.DB),
		orders:    repository.NewOrderRepository(pg.DB.DB),
	}
}

func seedCampaign(t *testing.T, r repos, customers int) (*models.Campaign, []int64) {
	t.Helper()
	ctx := context.Background()

	ids := make([]int64, 0, customers)
	for i := 0; i < customers; i++ {
		c := &models.Customer{
			Name:          "Customer",
			Email:         "customer" + string(rune('a'+i)) + "@example.com",
			TotalSpending: float64(100 * i),
		}
		require.NoError(t, r.customers.Create(ctx, c))
		ids = append(ids, c.ID)
	}

	seg := &models.Segment{
		Name:       "all",
		Conditions: []models.Condition{{Field: models.FieldTotalSpending, Operator: models.OpGreaterEqual, Value: 0}},
		Combinator: models.CombinatorAll,
	}
	require.NoError(t, r.segments.Create(ctx, seg))

	campaign := &models.Campaign{Name: "c", SegmentID: &seg.ID, Message: "Hi {name}"}
	require.NoError(t, r.campaigns.CreateWithRecipients(ctx, campaign, ids))
	return campaign, ids
}

func TestCampaignRepository_CreateWithRecipients(t *testing.T) {
	r := setup(t)
	ctx := context.Background()

	campaign, ids := seedCampaign(t, r, 4)

	assert.Equal(t, int64(4), campaign.Stats.AudienceSize)
	stats, err := r.logs.StatsFor(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStats{Total: 4, Pending: 4}, stats)

	recipients, err := r.logs.ListRecipients(ctx, campaign.ID)
	require.NoError(t, err)
	require.Len(t, recipients, len(ids))
	assert.NotEmpty(t, recipients[0].Email)
}

func TestCampaignRepository_CreateWithEmptyAudience(t *testing.T) {
	r := setup(t)
	ctx := context.Background()

	campaign := &models.Campaign{Name: "empty", Message: "m"}
	require.NoError(t, r.campaigns.CreateWithRecipients(ctx, campaign, nil))

	stats, err := r.logs.StatsFor(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStats{}, stats)
}

func TestCampaignRepository_ClaimDispatchOnce(t *testing.T) {
	r := setup(t)
	ctx := context.Background()
	campaign, _ := seedCampaign(t, r, 1)

	first, err := r.campaigns.ClaimDispatch(ctx, campaign.ID)
	require.NoError(t, err)
	second, err := r.campaigns.ClaimDispatch(ctx, campaign.ID)
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)

	_, err = r.campaigns.ClaimDispatch(ctx, 9999)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDeliveryLogRepository_ApplyReceipts(t *testing.T) {
	r := setup(t)
	ctx := context.Background()
	campaign, ids := seedCampaign(t, r, 3)
	now := time.Now()

	result, err := r.logs.ApplyReceipts(ctx, []models.Receipt{
		{MessageID: "msg_a", CampaignID: campaign.ID, CustomerID: ids[0], Status: models.DeliveryStatusSent, Timestamp: now},
		{MessageID: "msg_b", CampaignID: campaign.ID, CustomerID: ids[1], Status: models.DeliveryStatusFailed, Timestamp: now, ErrorMessage: "bounced"},
		// No delivery log exists for this key; it is skipped.
		{MessageID: "msg_c", CampaignID: campaign.ID, CustomerID: 424242, Status: models.DeliveryStatusSent, Timestamp: now},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Applied)
	assert.Equal(t, []int64{campaign.ID}, result.CampaignIDs)

	// A later receipt for an already-terminal log does not overwrite it.
	result, err = r.logs.ApplyReceipts(ctx, []models.Receipt{
		{MessageID: "msg_a2", CampaignID: campaign.ID, CustomerID: ids[0], Status: models.DeliveryStatusFailed, Timestamp: now},
	})
	require.NoError(t, err)
	assert.Zero(t, result.Applied)

	stats, err := r.logs.StatsFor(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStats{Total: 3, Pending: 1, Sent: 1, Failed: 1}, stats)

	failed, total, err := r.logs.List(ctx, models.DeliveryLogFilter{CampaignID: campaign.ID, Status: models.DeliveryStatusFailed})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, failed, 1)
	require.NotNil(t, failed[0].ErrorMessage)
	assert.Equal(t, "bounced", *failed[0].ErrorMessage)
	require.NotNil(t, failed[0].VendorMessageID)
	assert.Equal(t, "msg_b", *failed[0].VendorMessageID)
	assert.Nil(t, failed[0].DeliveredAt)

	recipients, err := r.logs.ListRecipients(ctx, campaign.ID)
	require.NoError(t, err)
	require.Len(t, recipients, 1, "only PENDING logs are recipients")
	assert.Equal(t, ids[2], recipients[0].CustomerID)
}

func TestCampaignRepository_RefreshStats(t *testing.T) {
	r := setup(t)
	ctx := context.Background()
	campaign, ids := seedCampaign(t, r, 2)

	_, err := r.logs.ApplyReceipts(ctx, []models.Receipt{
		{CampaignID: campaign.ID, CustomerID: ids[0], Status: models.DeliveryStatusSent, Timestamp: time.Now()},
	})
	require.NoError(t, err)
	require.NoError(t, r.campaigns.RefreshStats(ctx, []int64{campaign.ID}))

	got, err := r.campaigns.GetByID(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStats{Sent: 1, Failed: 0, AudienceSize: 2}, got.Stats)
}

func TestSegmentRepository_DeleteKeepsFrozenRecipients(t *testing.T) {
	r := setup(t)
	ctx := context.Background()
	campaign, _ := seedCampaign(t, r, 2)

	require.NoError(t, r.segments.Delete(ctx, *campaign.SegmentID))

	got, err := r.campaigns.GetByID(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Nil(t, got.SegmentID)

	stats, err := r.logs.StatsFor(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
}

func TestCustomerRepository_DuplicateEmail(t *testing.T) {
	r := setup(t)
	ctx := context.Background()

	require.NoError(t, r.customers.Create(ctx, &models.Customer{Name: "Ann", Email: "ann@example.com"}))
	err := r.customers.Create(ctx, &models.Customer{Name: "Ann 2", Email: "ann@example.com"})

	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestOrderRepository_CreateUpdatesCustomer(t *testing.T) {
	r := setup(t)
	ctx := context.Background()

	ann := &models.Customer{Name: "Ann", Email: "ann@example.com", TotalSpending: 900}
	require.NoError(t, r.customers.Create(ctx, ann))

	placed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	first := &models.Order{CustomerID: ann.ID, OrderAmount: 150.25, OrderDate: placed}
	require.NoError(t, r.orders.Create(ctx, first))
	// An older order adds to spending but does not move lastVisit back.
	second := &models.Order{CustomerID: ann.ID, OrderAmount: 10, OrderDate: placed.Add(-48 * time.Hour)}
	require.NoError(t, r.orders.Create(ctx, second))

	got, err := r.customers.GetByID(ctx, ann.ID)
	require.NoError(t, err)
	assert.InDelta(t, 1060.25, got.TotalSpending, 0.001)
	require.NotNil(t, got.LastVisit)
	assert.True(t, placed.Equal(*got.LastVisit))

	stored, err := r.orders.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.InDelta(t, 150.25, stored.OrderAmount, 0.001)

	orders, total, err := r.orders.List(ctx, models.OrderFilter{CustomerID: ann.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, orders, 2)
	assert.Equal(t, first.ID, orders[0].ID, "most recent order date first")
}

func TestOrderRepository_UnknownCustomerWritesNothing(t *testing.T) {
	r := setup(t)
	ctx := context.Background()

	err := r.orders.Create(ctx, &models.Order{CustomerID: 777, OrderAmount: 10})
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, total, err := r.orders.List(ctx, models.OrderFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)

	_, err = r.orders.GetByID(ctx, 1)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
