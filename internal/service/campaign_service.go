package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/yuvinraja/crm-backend/internal/delivery"
	"github.com/yuvinraja/crm-backend/internal/logger"
	"github.com/yuvinraja/crm-backend/internal/models"
	"github.com/yuvinraja/crm-backend/internal/queue"
	"github.com/yuvinraja/crm-backend/internal/repository"
	"github.com/yuvinraja/crm-backend/internal/segment"
)

// CampaignService handles campaign business logic
type CampaignService interface {
	// Create resolves the segment's audience, freezes it as PENDING delivery logs and
	// queues the campaign for dispatch.
	Create(ctx context.Context, req *CreateCampaignRequest) (*models.Campaign, error)
	GetByID(ctx context.Context, id int64) (*models.CampaignWithStats, error)
	List(ctx context.Context, filter models.CampaignFilter) (*CampaignListResult, error)
	// Stats recomputes delivery counts from the campaign's logs.
	Stats(ctx context.Context, id int64) (models.DeliveryStats, error)
	Logs(ctx context.Context, id int64, status string, page, pageSize int) (*DeliveryLogListResult, error)
	// Dispatch re-queues a campaign that was never claimed by a dispatcher.
	Dispatch(ctx context.Context, id int64) (*DispatchResult, error)
	PreviewMessage(ctx context.Context, id int64, req *PreviewMessageRequest) (*PreviewMessageResult, error)
}

type campaignService struct {
	campaignRepo repository.CampaignRepository
	segmentRepo  repository.SegmentRepository
	customerRepo repository.CustomerRepository
	logRepo      repository.DeliveryLogRepository
	resolver     *segment.Resolver
	cache        *segment.PredicateCache
	queueClient  queue.Client
	now          func() time.Time
	logger       *slog.Logger
}

// NewCampaignService creates a new campaign service
func NewCampaignService(
	campaignRepo repository.CampaignRepository,
	segmentRepo repository.SegmentRepository,
	customerRepo repository.CustomerRepository,
	logRepo repository.DeliveryLogRepository,
	resolver *segment.Resolver,
	cache *segment.PredicateCache,
	queueClient queue.Client,
	log *slog.Logger,
) CampaignService {
	return &campaignService{
		campaignRepo: campaignRepo,
		segmentRepo:  segmentRepo,
		customerRepo: customerRepo,
		logRepo:      logRepo,
		resolver:     resolver,
		cache:        cache,
		queueClient:  queueClient,
		now:          time.Now,
		logger:       logger.OrDefault(log),
	}
}

// Create creates a campaign and its delivery logs, then hands it to the dispatch queue.
// The request returns once the job is queued; delivery proceeds in the background.
func (s *campaignService) Create(ctx context.Context, req *CreateCampaignRequest) (*models.Campaign, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	seg, err := s.segmentRepo.GetByID(ctx, req.SegmentID)
	if err != nil {
		return nil, err
	}

	pred, err := savedPredicate(s.cache, seg)
	if err != nil {
		return nil, err
	}

	audience, err := s.resolver.Resolve(ctx, pred)
	if err != nil {
		return nil, err
	}

	customerIDs := make([]int64, len(audience.Members))
	for i, c := range audience.Members {
		customerIDs[i] = c.ID
	}

	campaign := &models.Campaign{
		Name:      req.Name,
		SegmentID: &seg.ID,
		Message:   req.Message,
	}

	if err := s.campaignRepo.CreateWithRecipients(ctx, campaign, customerIDs); err != nil {
		s.logger.Error("failed to create campaign",
			slog.String("name", req.Name),
			slog.Int64("segment_id", seg.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}

	s.logger.Info("campaign created",
		slog.Int64("campaign_id", campaign.ID),
		slog.Int64("segment_id", seg.ID),
		slog.Int64("audience_size", campaign.Stats.AudienceSize),
	)

	// A campaign that was created but not queued can be re-queued through Dispatch.
	if _, err := s.enqueue(ctx, campaign); err != nil {
		s.logger.Error("failed to queue campaign dispatch",
			slog.Int64("campaign_id", campaign.ID),
			slog.String("error", err.Error()),
		)
	}

	return campaign, nil
}

// GetByID retrieves a campaign with statistics recomputed from its delivery logs
func (s *campaignService) GetByID(ctx context.Context, id int64) (*models.CampaignWithStats, error) {
	campaign, err := s.campaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	stats, err := s.logRepo.StatsFor(ctx, id)
	if err != nil {
		return nil, err
	}

	return &models.CampaignWithStats{Campaign: *campaign, Delivery: stats}, nil
}

// List retrieves campaigns with pagination
func (s *campaignService) List(ctx context.Context, filter models.CampaignFilter) (*CampaignListResult, error) {
	campaigns, totalCount, err := s.campaignRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}

	return &CampaignListResult{
		Data:       campaigns,
		Pagination: models.NewPaginationResult(filter.Page, filter.PageSize, totalCount),
	}, nil
}

// Stats returns all-zero counts for a campaign whose logs are not written yet
func (s *campaignService) Stats(ctx context.Context, id int64) (models.DeliveryStats, error) {
	if _, err := s.campaignRepo.GetByID(ctx, id); err != nil {
		return models.DeliveryStats{}, err
	}
	return s.logRepo.StatsFor(ctx, id)
}

// Logs lists a campaign's delivery logs, optionally filtered by status
func (s *campaignService) Logs(ctx context.Context, id int64, status string, page, pageSize int) (*DeliveryLogListResult, error) {
	filter := models.DeliveryLogFilter{CampaignID: id, Page: page, PageSize: pageSize}
	if strings.TrimSpace(status) != "" {
		parsed, ok := models.ParseDeliveryStatus(status)
		if !ok {
			return nil, models.ErrInvalidInput(fmt.Sprintf("invalid status: %q (must be PENDING, SENT or FAILED)", status))
		}
		filter.Status = parsed
	}

	if _, err := s.campaignRepo.GetByID(ctx, id); err != nil {
		return nil, err
	}

	logs, totalCount, err := s.logRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery logs: %w", err)
	}

	return &DeliveryLogListResult{
		Data:       logs,
		Pagination: models.NewPaginationResult(page, pageSize, totalCount),
	}, nil
}

// Dispatch queues a dispatch job for a campaign that has not been dispatched yet.
func (s *campaignService) Dispatch(ctx context.Context, id int64) (*DispatchResult, error) {
	campaign, err := s.campaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if campaign.IsDispatched() {
		return nil, models.ErrConflictWithMsg(fmt.Sprintf("campaign %d was already dispatched", id))
	}

	queued, err := s.enqueue(ctx, campaign)
	if err != nil {
		return nil, models.ErrUnavailableWithMsg("dispatch queue unavailable: " + err.Error())
	}

	return &DispatchResult{
		CampaignID:   campaign.ID,
		AudienceSize: campaign.Stats.AudienceSize,
		Queued:       queued,
	}, nil
}

// PreviewMessage personalizes the campaign message, or an override, for one customer
func (s *campaignService) PreviewMessage(ctx context.Context, id int64, req *PreviewMessageRequest) (*PreviewMessageResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	campaign, err := s.campaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	customer, err := s.customerRepo.GetByID(ctx, req.CustomerID)
	if err != nil {
		return nil, err
	}

	message := campaign.Message
	if req.OverrideMessage != nil && strings.TrimSpace(*req.OverrideMessage) != "" {
		message = *req.OverrideMessage
	}

	return &PreviewMessageResult{
		RenderedMessage: delivery.Personalize(message, customer.Name),
		UsedMessage:     message,
		Customer: &CustomerPreview{
			ID:    customer.ID,
			Name:  customer.Name,
			Email: customer.Email,
			Phone: customer.Phone,
		},
	}, nil
}

// enqueue publishes a dispatch job. An empty audience has nothing to send and is not queued.
func (s *campaignService) enqueue(ctx context.Context, campaign *models.Campaign) (bool, error) {
	if campaign.Stats.AudienceSize == 0 {
		s.logger.Info("campaign has an empty audience, nothing to dispatch",
			slog.Int64("campaign_id", campaign.ID),
		)
		return false, nil
	}

	job := &models.DispatchJob{CampaignID: campaign.ID, EnqueuedAt: s.now()}
	if err := s.queueClient.Publish(ctx, job); err != nil {
		return false, err
	}

	s.logger.Debug("campaign dispatch queued", slog.Int64("campaign_id", campaign.ID))
	return true, nil
}
