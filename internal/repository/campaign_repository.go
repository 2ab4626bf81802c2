package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/yuvinraja/crm-backend/internal/models"
)

// CampaignRepository defines the interface for campaign data access
type CampaignRepository interface {
	// CreateWithRecipients inserts the campaign and one PENDING delivery log per recipient
	// in a single transaction, so a campaign never exists with a partial audience.
	CreateWithRecipients(ctx context.Context, campaign *models.Campaign, customerIDs []int64) error
	GetByID(ctx context.Context, id int64) (*models.Campaign, error)
	List(ctx context.Context, filter models.CampaignFilter) ([]*models.Campaign, int64, error)
	// ClaimDispatch marks the campaign dispatched. It returns false when another
	// dispatcher already claimed it.
	ClaimDispatch(ctx context.Context, id int64) (bool, error)
	// RefreshStats recomputes the cached sent/failed columns from delivery logs.
	RefreshStats(ctx context.Context, campaignIDs []int64) error
}

// campaignRepository implements CampaignRepository using PostgreSQL
type campaignRepository struct {
	db *sql.DB
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *sql.DB) CampaignRepository {
	return &campaignRepository{db: db}
}

const campaignColumns = `id, name, segment_id, message, sent, failed, audience_size, dispatched_at, created_at`

// CreateWithRecipients inserts a campaign and freezes its audience as delivery logs.
func (r *campaignRepository) CreateWithRecipients(ctx context.Context, campaign *models.Campaign, customerIDs []int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // Rollback is safe to call even after Commit
	}()

	campaign.Stats.AudienceSize = int64(len(customerIDs))

	err = tx.QueryRowContext(ctx, `
		INSERT INTO campaigns (name, segment_id, message, audience_size)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		campaign.Name,
		campaign.SegmentID,
		campaign.Message,
		campaign.Stats.AudienceSize,
	).Scan(&campaign.ID, &campaign.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	if len(customerIDs) > 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO delivery_logs (campaign_id, customer_id)
			SELECT $1, customer_id FROM unnest($2::bigint[]) AS customer_id
			ON CONFLICT (campaign_id, customer_id) DO NOTHING`,
			campaign.ID, pq.Array(customerIDs),
		)
		if err != nil {
			return fmt.Errorf("failed to create delivery logs: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetByID retrieves a campaign by ID
func (r *campaignRepository) GetByID(ctx context.Context, id int64) (*models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`

	campaign, err := scanCampaign(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFoundWithMsg(fmt.Sprintf("campaign with ID %d not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	return campaign, nil
}

// List retrieves campaigns with pagination and filtering
func (r *campaignRepository) List(ctx context.Context, filter models.CampaignFilter) ([]*models.Campaign, int64, error) {
	page, pageSize := models.NormalizePage(filter.Page, filter.PageSize)

	where := ` WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if filter.SegmentID > 0 {
		where += fmt.Sprintf(" AND segment_id = $%d", argPos)
		args = append(args, filter.SegmentID)
		argPos++
	}

	var totalCount int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`+where, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count campaigns: %w", err)
	}

	// Stable ordering: newest first
	query := `SELECT ` + campaignColumns + ` FROM campaigns` + where +
		fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, pageSize, models.Offset(page, pageSize))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []*models.Campaign{}
	for rows.Next() {
		campaign, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, campaign)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating campaigns: %w", err)
	}

	return campaigns, totalCount, nil
}

// ClaimDispatch sets dispatched_at once. A missing campaign is NOT_FOUND.
func (r *campaignRepository) ClaimDispatch(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE campaigns SET dispatched_at = NOW() WHERE id = $1 AND dispatched_at IS NULL`, id)
	if err != nil {
		return false, fmt.Errorf("failed to claim campaign dispatch: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 1 {
		return true, nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM campaigns WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check campaign: %w", err)
	}
	if !exists {
		return false, models.ErrNotFoundWithMsg(fmt.Sprintf("campaign with ID %d not found", id))
	}
	return false, nil
}

// RefreshStats overwrites sent/failed with the current delivery log counts.
func (r *campaignRepository) RefreshStats(ctx context.Context, campaignIDs []int64) error {
	if len(campaignIDs) == 0 {
		return nil
	}

	query := `
		UPDATE campaigns c
		SET sent = s.sent, failed = s.failed
		FROM (
			SELECT
				campaign_id,
				COUNT(*) FILTER (WHERE status = 'SENT') AS sent,
				COUNT(*) FILTER (WHERE status = 'FAILED') AS failed
			FROM delivery_logs
			WHERE campaign_id = ANY($1)
			GROUP BY campaign_id
		) s
		WHERE c.id = s.campaign_id`

	if _, err := r.db.ExecContext(ctx, query, pq.Array(campaignIDs)); err != nil {
		return fmt.Errorf("failed to refresh campaign stats: %w", err)
	}
	return nil
}

func scanCampaign(row rowScanner) (*models.Campaign, error) {
	c := &models.Campaign{}
	var segmentID sql.NullInt64
	var dispatchedAt sql.NullTime
	err := row.Scan(
		&c.ID,
		&c.Name,
		&segmentID,
		&c.Message,
		&c.Stats.Sent,
		&c.Stats.Failed,
		&c.Stats.AudienceSize,
		&dispatchedAt,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if segmentID.Valid {
		id := segmentID.Int64
		c.SegmentID = &id
	}
	if dispatchedAt.Valid {
		t := dispatchedAt.Time
		c.DispatchedAt = &t
	}
	return c, nil
}
