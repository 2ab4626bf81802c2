package repository

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/lib/pq"

	"github.com/yuvinraja/crm-backend/internal/models"
)

// DeliveryLogRepository defines the interface for delivery log data access
type DeliveryLogRepository interface {
	// ListRecipients returns the campaign's PENDING recipients joined with their
	// customer details, in delivery log order.
	ListRecipients(ctx context.Context, campaignID int64) ([]*models.Recipient, error)
	List(ctx context.Context, filter models.DeliveryLogFilter) ([]*models.DeliveryLog, int64, error)
	// ApplyReceipts writes terminal outcomes in one statement. Only logs still PENDING
	// are touched, so the first terminal write wins. Keys must be unique within receipts.
	ApplyReceipts(ctx context.Context, receipts []models.Receipt) (*ApplyResult, error)
	StatsFor(ctx context.Context, campaignID int64) (models.DeliveryStats, error)
}

// ApplyResult reports what a bulk receipt write changed.
type ApplyResult struct {
	Applied     int64
	CampaignIDs []int64
}

type deliveryLogRepository struct {
	db *sql.DB
}

// NewDeliveryLogRepository creates a new delivery log repository
func NewDeliveryLogRepository(db *sql.DB) DeliveryLogRepository {
	return &deliveryLogRepository{db: db}
}

// ListRecipients loads the frozen audience still awaiting a send.
func (r *deliveryLogRepository) ListRecipients(ctx context.Context, campaignID int64) ([]*models.Recipient, error) {
	query := `
		SELECT d.id, c.id, c.name, c.email, c.phone
		FROM delivery_logs d
		JOIN customers c ON c.id = d.customer_id
		WHERE d.campaign_id = $1 AND d.status = 'PENDING'
		ORDER BY d.id ASC`

	rows, err := r.db.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}
	defer rows.Close()

	recipients := []*models.Recipient{}
	for rows.Next() {
		rc := &models.Recipient{}
		if err := rows.Scan(&rc.LogID, &rc.CustomerID, &rc.Name, &rc.Email, &rc.Phone); err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		recipients = append(recipients, rc)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recipients: %w", err)
	}

	return recipients, nil
}

// List retrieves delivery logs with pagination and filtering
func (r *deliveryLogRepository) List(ctx context.Context, filter models.DeliveryLogFilter) ([]*models.DeliveryLog, int64, error) {
	page, pageSize := models.NormalizePage(filter.Page, filter.PageSize)

	where := ` WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if filter.CampaignID > 0 {
		where += fmt.Sprintf(" AND campaign_id = $%d", argPos)
		args = append(args, filter.CampaignID)
		argPos++
	}

	if filter.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, string(filter.Status))
		argPos++
	}

	var totalCount int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM delivery_logs`+where, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count delivery logs: %w", err)
	}

	query := `
		SELECT id, campaign_id, customer_id, status, vendor_message_id, vendor_timestamp,
			error_message, delivered_at, created_at, updated_at
		FROM delivery_logs` + where +
		fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, pageSize, models.Offset(page, pageSize))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list delivery logs: %w", err)
	}
	defer rows.Close()

	logs := []*models.DeliveryLog{}
	for rows.Next() {
		l := &models.DeliveryLog{}
		var status string
		var messageID, errorMessage sql.NullString
		var vendorTS, deliveredAt sql.NullTime
		err := rows.Scan(
			&l.ID,
			&l.CampaignID,
			&l.CustomerID,
			&status,
			&messageID,
			&vendorTS,
			&errorMessage,
			&deliveredAt,
			&l.CreatedAt,
			&l.UpdatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan delivery log: %w", err)
		}
		l.Status = models.DeliveryStatus(status)
		l.VendorMessageID = nullString(messageID)
		l.ErrorMessage = nullString(errorMessage)
		l.VendorTimestamp = nullTime(vendorTS)
		l.DeliveredAt = nullTime(deliveredAt)
		logs = append(logs, l)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating delivery logs: %w", err)
	}

	return logs, totalCount, nil
}

// ApplyReceipts bulk-updates delivery logs from a batch of receipts using parallel arrays.
// Receipts for unknown keys or already-terminal logs are skipped silently.
func (r *deliveryLogRepository) ApplyReceipts(ctx context.Context, receipts []models.Receipt) (*ApplyResult, error) {
	result := &ApplyResult{CampaignIDs: []int64{}}
	if len(receipts) == 0 {
		return result, nil
	}

	campaignIDs := make([]int64, len(receipts))
	customerIDs := make([]int64, len(receipts))
	statuses := make([]string, len(receipts))
	messageIDs := make([]string, len(receipts))
	timestamps := make([]string, len(receipts))
	errorMessages := make([]string, len(receipts))

	for i, rc := range receipts {
		campaignIDs[i] = rc.CampaignID
		customerIDs[i] = rc.CustomerID
		statuses[i] = string(rc.Status)
		messageIDs[i] = rc.MessageID
		ts := rc.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		timestamps[i] = ts.UTC().Format(time.RFC3339Nano)
		errorMessages[i] = rc.ErrorMessage
	}

	query := `
		UPDATE delivery_logs d
		SET status = u.status,
			vendor_message_id = NULLIF(u.message_id, ''),
			vendor_timestamp = u.ts,
			error_message = NULLIF(u.error_message, ''),
			delivered_at = CASE WHEN u.status = 'SENT' THEN NOW() ELSE NULL END,
			updated_at = NOW()
		FROM unnest($1::bigint[], $2::bigint[], $3::text[], $4::text[], $5::text[]::timestamptz[], $6::text[])
			AS u(campaign_id, customer_id, status, message_id, ts, error_message)
		WHERE d.campaign_id = u.campaign_id
			AND d.customer_id = u.customer_id
			AND d.status = 'PENDING'
		RETURNING d.campaign_id`

	rows, err := r.db.QueryContext(ctx, query,
		pq.Array(campaignIDs),
		pq.Array(customerIDs),
		pq.Array(statuses),
		pq.Array(messageIDs),
		pq.Array(timestamps),
		pq.Array(errorMessages),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to apply receipts: %w", err)
	}
	defer rows.Close()

	touched := map[int64]struct{}{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan applied receipt: %w", err)
		}
		result.Applied++
		touched[id] = struct{}{}
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating applied receipts: %w", err)
	}

	for id := range touched {
		result.CampaignIDs = append(result.CampaignIDs, id)
	}
	slices.Sort(result.CampaignIDs)

	return result, nil
}

// StatsFor counts delivery logs by status. A campaign with no logs yields zeros.
func (r *deliveryLogRepository) StatsFor(ctx context.Context, campaignID int64) (models.DeliveryStats, error) {
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'PENDING') AS pending,
			COUNT(*) FILTER (WHERE status = 'SENT') AS sent,
			COUNT(*) FILTER (WHERE status = 'FAILED') AS failed
		FROM delivery_logs
		WHERE campaign_id = $1`

	var stats models.DeliveryStats
	err := r.db.QueryRowContext(ctx, query, campaignID).Scan(
		&stats.Total,
		&stats.Pending,
		&stats.Sent,
		&stats.Failed,
	)
	if err != nil {
		return models.DeliveryStats{}, fmt.Errorf("failed to get delivery stats: %w", err)
	}

	return stats, nil
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
