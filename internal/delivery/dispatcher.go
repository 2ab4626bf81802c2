package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yuvinraja/crm-backend/internal/logger"
	"github.com/yuvinraja/crm-backend/internal/models"
	"github.com/yuvinraja/crm-backend/internal/observability"
	"github.com/yuvinraja/crm-backend/internal/vendor"
)

// DefaultDispatchConcurrency bounds the in-flight vendor sends of one campaign.
const DefaultDispatchConcurrency = 32

var namePlaceholder = regexp.MustCompile(`(?i)\{name\}`)

// Personalize replaces every {name} placeholder, in any casing, with name.
func Personalize(template, name string) string {
	return namePlaceholder.ReplaceAllLiteralString(template, name)
}

// CampaignClaimer loads campaigns and claims them for a single dispatch.
type CampaignClaimer interface {
	GetByID(ctx context.Context, id int64) (*models.Campaign, error)
	ClaimDispatch(ctx context.Context, id int64) (bool, error)
}

// RecipientLister returns a campaign's frozen recipients still awaiting a send.
type RecipientLister interface {
	ListRecipients(ctx context.Context, campaignID int64) ([]*models.Recipient, error)
}

// DispatchResult counts the outcome of one fan-out. Rejected sends were not accepted by
// the vendor; Errors are recipients whose send could not be attempted at all.
type DispatchResult struct {
	CampaignID int64
	Recipients int
	Accepted   int64
	Rejected   int64
	Errors     int64
	Skipped    bool
}

// Dispatcher fans a campaign out to its recipients through the vendor channel.
type Dispatcher struct {
	campaigns   CampaignClaimer
	recipients  RecipientLister
	channel     vendor.Channel
	concurrency int
	logger      *slog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(
	campaigns CampaignClaimer,
	recipients RecipientLister,
	channel vendor.Channel,
	concurrency int,
	log *slog.Logger,
) *Dispatcher {
	if campaigns == nil || recipients == nil || channel == nil {
		panic("delivery: dispatcher dependencies cannot be nil")
	}
	if concurrency <= 0 {
		concurrency = DefaultDispatchConcurrency
	}
	return &Dispatcher{
		campaigns:   campaigns,
		recipients:  recipients,
		channel:     channel,
		concurrency: concurrency,
		logger:      logger.OrDefault(log).With(slog.String("component", "dispatcher")),
	}
}

// HandleJob processes one dispatch job from the queue.
func (d *Dispatcher) HandleJob(ctx context.Context, job *models.DispatchJob) error {
	result, err := d.Dispatch(ctx, job.CampaignID)
	if err != nil {
		observability.DispatchJobsTotal.WithLabelValues("fail").Inc()
		return err
	}
	if result.Skipped {
		observability.DispatchJobsTotal.WithLabelValues("skipped").Inc()
		return nil
	}
	observability.DispatchJobsTotal.WithLabelValues("success").Inc()
	return nil
}

// Dispatch loads the campaign and its PENDING recipients, then claims it and sends. The
// claim comes last so a failed load leaves the campaign unclaimed for the job's retry. A
// campaign that was already claimed, for example by a redelivered job, is skipped.
func (d *Dispatcher) Dispatch(ctx context.Context, campaignID int64) (*DispatchResult, error) {
	campaign, err := d.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign %d: %w", campaignID, err)
	}
	if campaign.IsDispatched() {
		return d.skip(campaignID), nil
	}

	recipients, err := d.recipients.ListRecipients(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load recipients for campaign %d: %w", campaignID, err)
	}

	claimed, err := d.campaigns.ClaimDispatch(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim campaign %d: %w", campaignID, err)
	}
	if !claimed {
		return d.skip(campaignID), nil
	}

	return d.Send(ctx, campaign, recipients), nil
}

func (d *Dispatcher) skip(campaignID int64) *DispatchResult {
	d.logger.Info("campaign already dispatched, skipping", slog.Int64("campaign_id", campaignID))
	return &DispatchResult{CampaignID: campaignID, Skipped: true}
}

// Send personalizes the message and sends it to every recipient concurrently, waiting
// only for the vendor's immediate acknowledgments. A failing recipient never stops
// the others; its delivery log stays PENDING.
func (d *Dispatcher) Send(ctx context.Context, campaign *models.Campaign, recipients []*models.Recipient) *DispatchResult {
	result := &DispatchResult{CampaignID: campaign.ID, Recipients: len(recipients)}
	if len(recipients) == 0 {
		d.logger.Info("campaign has no recipients", slog.Int64("campaign_id", campaign.ID))
		return result
	}

	start := time.Now()
	var accepted, rejected, failed atomic.Int64

	sem := make(chan struct{}, d.concurrency)
	var wg sync.WaitGroup

	for _, r := range recipients {
		sem <- struct{}{}
		wg.Add(1)

		go func(r *models.Recipient) {
			defer wg.Done()
			defer func() { <-sem }()

			ack, err := d.sendOne(ctx, campaign, r)
			switch {
			case err != nil:
				failed.Add(1)
				observability.DispatchSendsTotal.WithLabelValues("error").Inc()
				d.logger.Warn("send to recipient failed",
					slog.Int64("campaign_id", campaign.ID),
					slog.Int64("customer_id", r.CustomerID),
					slog.String("error", err.Error()),
				)
			case ack.Accepted:
				accepted.Add(1)
				observability.DispatchSendsTotal.WithLabelValues("accepted").Inc()
			default:
				rejected.Add(1)
				observability.DispatchSendsTotal.WithLabelValues("rejected").Inc()
			}
		}(r)
	}
	wg.Wait()

	result.Accepted = accepted.Load()
	result.Rejected = rejected.Load()
	result.Errors = failed.Load()
	observability.DispatchDuration.Observe(time.Since(start).Seconds())

	d.logger.Info("campaign dispatched",
		slog.Int64("campaign_id", campaign.ID),
		slog.Int("recipients", result.Recipients),
		slog.Int64("accepted", result.Accepted),
		slog.Int64("rejected", result.Rejected),
		slog.Int64("errors", result.Errors),
		slog.String("duration", time.Since(start).String()),
	)
	return result
}

// sendOne turns a panic in the vendor call into an error so it stays with this recipient.
func (d *Dispatcher) sendOne(ctx context.Context, campaign *models.Campaign, r *models.Recipient) (ack vendor.Ack, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic during send: %v", p)
		}
	}()

	to := r.Phone
	if to == "" {
		to = r.Email
	}

	return d.channel.Send(ctx, vendor.Message{
		CampaignID: campaign.ID,
		CustomerID: r.CustomerID,
		To:         to,
		Body:       Personalize(campaign.Message, r.Name),
	})
}
