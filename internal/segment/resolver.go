package segment

import (
	"context"
	"fmt"

	"github.com/yuvinraja/crm-backend/internal/models"
)

// DefaultSampleSize bounds the customers returned by a preview.
const DefaultSampleSize = 10

// CustomerSource streams the customer population. Implementations must stop and return
// fn's error as soon as fn fails.
type CustomerSource interface {
	ForEach(ctx context.Context, fn func(*models.Customer) error) error
}

// Audience is the full set of customers matching a predicate.
type Audience struct {
	Size    int64
	Members []*models.Customer
}

// Resolver applies compiled predicates to the customer population.
type Resolver struct {
	customers CustomerSource
}

// NewResolver creates a resolver over the given customer source.
func NewResolver(customers CustomerSource) *Resolver {
	if customers == nil {
		panic("segment: customer source cannot be nil")
	}
	return &Resolver{customers: customers}
}

// Resolve materializes every matching customer. Used when freezing a campaign's recipients.
// A zero-match predicate yields an empty audience, not an error.
func (r *Resolver) Resolve(ctx context.Context, pred Predicate) (*Audience, error) {
	audience := &Audience{Members: []*models.Customer{}}

	err := r.customers.ForEach(ctx, func(c *models.Customer) error {
		if pred(c) {
			audience.Members = append(audience.Members, c)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve audience: %w", err)
	}

	audience.Size = int64(len(audience.Members))
	return audience, nil
}

// Preview counts every match but keeps at most sampleSize of them.
func (r *Resolver) Preview(ctx context.Context, pred Predicate, sampleSize int) (*models.AudiencePreview, error) {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}

	preview := &models.AudiencePreview{SampleCustomers: make([]*models.Customer, 0, sampleSize)}

	err := r.customers.ForEach(ctx, func(c *models.Customer) error {
		if !pred(c) {
			return nil
		}
		preview.AudienceSize++
		if len(preview.SampleCustomers) < sampleSize {
			preview.SampleCustomers = append(preview.SampleCustomers, c)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to preview audience: %w", err)
	}

	return preview, nil
}

// Count returns only the number of matching customers.
func (r *Resolver) Count(ctx context.Context, pred Predicate) (int64, error) {
	var n int64
	err := r.customers.ForEach(ctx, func(c *models.Customer) error {
		if pred(c) {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count audience: %w", err)
	}
	return n, nil
}
