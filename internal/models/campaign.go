package models

import (
	"strings"
	"time"
)

// Campaign represents a message dispatched to a frozen audience snapshot
type Campaign struct {
	ID           int64         `json:"id"`
	Name         string        `json:"name"`
	SegmentID    *int64        `json:"segmentId"`
	Message      string        `json:"message"`
	Stats        CampaignStats `json:"stats"`
	DispatchedAt *time.Time    `json:"dispatchedAt,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// CampaignStats is the cached summary stored on the campaign row.
// Sent and Failed are refreshed from delivery logs, never incremented.
type CampaignStats struct {
	Sent         int64 `json:"sent"`
	Failed       int64 `json:"failed"`
	AudienceSize int64 `json:"audienceSize"`
}

// CampaignFilter holds filtering options for listing campaigns
type CampaignFilter struct {
	SegmentID int64
	Page      int
	PageSize  int
}

// DeliveryStats holds delivery counts for a campaign, derived from delivery logs
type DeliveryStats struct {
	Total   int64 `json:"total"`
	Pending int64 `json:"pending"`
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
}

// CampaignWithStats combines campaign details with statistics
type CampaignWithStats struct {
	Campaign
	Delivery DeliveryStats `json:"delivery"`
}

// Validate performs validation on campaign data
func (c *Campaign) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrInvalidInput("name is required")
	}
	if strings.TrimSpace(c.Message) == "" {
		return ErrInvalidInput("message is required")
	}
	return nil
}

// IsDispatched reports whether a dispatcher already claimed the campaign
func (c *Campaign) IsDispatched() bool {
	return c.DispatchedAt != nil
}
