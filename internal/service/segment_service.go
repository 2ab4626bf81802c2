package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yuvinraja/crm-backend/internal/logger"
	"github.com/yuvinraja/crm-backend/internal/models"
	"github.com/yuvinraja/crm-backend/internal/repository"
	"github.com/yuvinraja/crm-backend/internal/segment"
)

// SegmentService handles segment business logic
type SegmentService interface {
	Create(ctx context.Context, req *CreateSegmentRequest) (*models.Segment, error)
	GetByID(ctx context.Context, id int64) (*models.Segment, error)
	List(ctx context.Context, page, pageSize int) (*SegmentListResult, error)
	Update(ctx context.Context, id int64, req *UpdateSegmentRequest) (*models.Segment, error)
	Delete(ctx context.Context, id int64) error
	// Preview evaluates unsaved rules and returns the audience size with a bounded sample.
	Preview(ctx context.Context, req *PreviewSegmentRequest) (*models.AudiencePreview, error)
	// Customers resolves the full current audience of a saved segment.
	Customers(ctx context.Context, id int64) ([]*models.Customer, error)
}

type segmentService struct {
	segmentRepo repository.SegmentRepository
	resolver    *segment.Resolver
	cache       *segment.PredicateCache
	sampleSize  int
	logger      *slog.Logger
}

// NewSegmentService creates a new segment service. cache may be nil, in which case
// saved segments are recompiled on every use.
func NewSegmentService(
	segmentRepo repository.SegmentRepository,
	resolver *segment.Resolver,
	cache *segment.PredicateCache,
	sampleSize int,
	log *slog.Logger,
) SegmentService {
	if sampleSize <= 0 {
		sampleSize = segment.DefaultSampleSize
	}
	return &segmentService{
		segmentRepo: segmentRepo,
		resolver:    resolver,
		cache:       cache,
		sampleSize:  sampleSize,
		logger:      logger.OrDefault(log),
	}
}

// Create compiles the rules, counts the current audience and stores the segment
func (s *segmentService) Create(ctx context.Context, req *CreateSegmentRequest) (*models.Segment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	pred, err := compileRules(req.Conditions, req.Combinator)
	if err != nil {
		return nil, err
	}

	size, err := s.resolver.Count(ctx, pred)
	if err != nil {
		return nil, err
	}

	seg := &models.Segment{
		Name:               req.Name,
		Conditions:         req.Conditions,
		Combinator:         req.Combinator.Normalize(),
		CachedAudienceSize: size,
	}

	if err := s.segmentRepo.Create(ctx, seg); err != nil {
		s.logger.Error("failed to create segment",
			slog.String("name", req.Name),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to create segment: %w", err)
	}

	s.logger.Info("segment created",
		slog.Int64("segment_id", seg.ID),
		slog.String("name", seg.Name),
		slog.Int64("audience_size", size),
	)

	return seg, nil
}

// GetByID retrieves a segment by ID
func (s *segmentService) GetByID(ctx context.Context, id int64) (*models.Segment, error) {
	return s.segmentRepo.GetByID(ctx, id)
}

// List retrieves segments with pagination
func (s *segmentService) List(ctx context.Context, page, pageSize int) (*SegmentListResult, error) {
	segments, totalCount, err := s.segmentRepo.List(ctx, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}

	return &SegmentListResult{
		Data:       segments,
		Pagination: models.NewPaginationResult(page, pageSize, totalCount),
	}, nil
}

// Update applies the changes. The audience size is recounted only when the rules change.
// Campaigns already created from the segment keep their frozen recipients.
func (s *segmentService) Update(ctx context.Context, id int64, req *UpdateSegmentRequest) (*models.Segment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	seg, err := s.segmentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := *seg

	if req.Name != nil {
		seg.Name = *req.Name
	}
	if req.Conditions != nil {
		seg.Conditions = *req.Conditions
	}
	if req.Combinator != nil {
		seg.Combinator = req.Combinator.Normalize()
	}

	if req.changesRules() {
		pred, err := compileRules(seg.Conditions, seg.Combinator)
		if err != nil {
			return nil, err
		}
		size, err := s.resolver.Count(ctx, pred)
		if err != nil {
			return nil, err
		}
		seg.CachedAudienceSize = size
	}

	if err := s.segmentRepo.Update(ctx, seg); err != nil {
		s.logger.Error("failed to update segment",
			slog.Int64("segment_id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to update segment: %w", err)
	}
	s.forget(&previous)

	s.logger.Info("segment updated",
		slog.Int64("segment_id", seg.ID),
		slog.Bool("rules_changed", req.changesRules()),
		slog.Int64("audience_size", seg.CachedAudienceSize),
	)

	return seg, nil
}

// Delete removes a segment
func (s *segmentService) Delete(ctx context.Context, id int64) error {
	seg, err := s.segmentRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.segmentRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return err
		}
		s.logger.Error("failed to delete segment",
			slog.Int64("segment_id", id),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to delete segment: %w", err)
	}
	s.forget(seg)

	s.logger.Info("segment deleted", slog.Int64("segment_id", id))
	return nil
}

// Preview evaluates rules without saving them
func (s *segmentService) Preview(ctx context.Context, req *PreviewSegmentRequest) (*models.AudiencePreview, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	pred, err := compileRules(req.Conditions, req.Combinator)
	if err != nil {
		return nil, err
	}

	return s.resolver.Preview(ctx, pred, s.sampleSize)
}

// Customers resolves the full current audience of a saved segment
func (s *segmentService) Customers(ctx context.Context, id int64) ([]*models.Customer, error) {
	seg, err := s.segmentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	pred, err := s.predicateFor(seg)
	if err != nil {
		return nil, err
	}

	audience, err := s.resolver.Resolve(ctx, pred)
	if err != nil {
		return nil, err
	}
	return audience.Members, nil
}

func (s *segmentService) predicateFor(seg *models.Segment) (segment.Predicate, error) {
	return savedPredicate(s.cache, seg)
}

func (s *segmentService) forget(seg *models.Segment) {
	if s.cache != nil {
		s.cache.Forget(seg)
	}
}

// savedPredicate compiles a stored segment, through the cache when there is one.
func savedPredicate(cache *segment.PredicateCache, seg *models.Segment) (segment.Predicate, error) {
	if cache == nil {
		return compileRules(seg.Conditions, seg.Combinator)
	}
	pred, err := cache.Compile(seg)
	if err != nil {
		return nil, asInvalidRules(err)
	}
	return pred, nil
}

// compileRules compiles conditions and reports rule errors as INVALID_INPUT.
func compileRules(conditions []models.Condition, combinator models.Combinator) (segment.Predicate, error) {
	pred, err := segment.Compile(conditions, combinator)
	if err != nil {
		return nil, asInvalidRules(err)
	}
	return pred, nil
}

func asInvalidRules(err error) error {
	if errors.Is(err, segment.ErrInvalidRules) {
		return models.ErrInvalidInputWrap(err.Error(), err)
	}
	return err
}
