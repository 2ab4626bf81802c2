package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/yuvinraja/crm-backend/internal/models"
)

// SegmentRepository defines the interface for segment data access
type SegmentRepository interface {
	Create(ctx context.Context, segment *models.Segment) error
	GetByID(ctx context.Context, id int64) (*models.Segment, error)
	List(ctx context.Context, page, pageSize int) ([]*models.Segment, int64, error)
	Update(ctx context.Context, segment *models.Segment) error
	Delete(ctx context.Context, id int64) error
}

type segmentRepository struct {
	db *sql.DB
}

// NewSegmentRepository creates a new segment repository
func NewSegmentRepository(db *sql.DB) SegmentRepository {
	return &segmentRepository{db: db}
}

const segmentColumns = `id, name, conditions, combinator, cached_audience_size, created_at, updated_at`

// Create inserts a new segment. Conditions are stored as JSONB in their given order.
func (r *segmentRepository) Create(ctx context.Context, segment *models.Segment) error {
	conditions, err := json.Marshal(segment.Conditions)
	if err != nil {
		return fmt.Errorf("failed to encode segment conditions: %w", err)
	}

	query := `
		INSERT INTO segments (name, conditions, combinator, cached_audience_size)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	err = r.db.QueryRowContext(ctx, query,
		segment.Name,
		conditions,
		string(segment.Combinator.Normalize()),
		segment.CachedAudienceSize,
	).Scan(&segment.ID, &segment.CreatedAt, &segment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create segment: %w", err)
	}

	segment.Combinator = segment.Combinator.Normalize()
	return nil
}

// GetByID retrieves a segment by ID
func (r *segmentRepository) GetByID(ctx context.Context, id int64) (*models.Segment, error) {
	query := `SELECT ` + segmentColumns + ` FROM segments WHERE id = $1`

	segment, err := scanSegment(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFoundWithMsg(fmt.Sprintf("segment with ID %d not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get segment: %w", err)
	}
	return segment, nil
}

// List retrieves segments newest first
func (r *segmentRepository) List(ctx context.Context, page, pageSize int) ([]*models.Segment, int64, error) {
	page, pageSize = models.NormalizePage(page, pageSize)

	var totalCount int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM segments`).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count segments: %w", err)
	}

	query := `SELECT ` + segmentColumns + ` FROM segments ORDER BY id DESC LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, query, pageSize, models.Offset(page, pageSize))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list segments: %w", err)
	}
	defer rows.Close()

	segments := []*models.Segment{}
	for rows.Next() {
		segment, err := scanSegment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan segment: %w", err)
		}
		segments = append(segments, segment)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating segments: %w", err)
	}

	return segments, totalCount, nil
}

// Update overwrites the segment's rules and cached audience size and bumps updated_at.
func (r *segmentRepository) Update(ctx context.Context, segment *models.Segment) error {
	conditions, err := json.Marshal(segment.Conditions)
	if err != nil {
		return fmt.Errorf("failed to encode segment conditions: %w", err)
	}

	query := `
		UPDATE segments
		SET name = $1, conditions = $2, combinator = $3, cached_audience_size = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING updated_at`

	err = r.db.QueryRowContext(ctx, query,
		segment.Name,
		conditions,
		string(segment.Combinator.Normalize()),
		segment.CachedAudienceSize,
		segment.ID,
	).Scan(&segment.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFoundWithMsg(fmt.Sprintf("segment with ID %d not found", segment.ID))
	}
	if err != nil {
		return fmt.Errorf("failed to update segment: %w", err)
	}

	segment.Combinator = segment.Combinator.Normalize()
	return nil
}

// Delete removes a segment. Campaigns that used it keep their frozen recipients.
func (r *segmentRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM segments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete segment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return models.ErrNotFoundWithMsg(fmt.Sprintf("segment with ID %d not found", id))
	}

	return nil
}

func scanSegment(row rowScanner) (*models.Segment, error) {
	s := &models.Segment{}
	var conditions []byte
	var combinator string
	if err := row.Scan(&s.ID, &s.Name, &conditions, &combinator, &s.CachedAudienceSize, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(conditions, &s.Conditions); err != nil {
		return nil, fmt.Errorf("failed to decode segment conditions: %w", err)
	}
	s.Combinator = models.Combinator(combinator)
	return s, nil
}
