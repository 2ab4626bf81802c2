package models

import (
	"strings"
	"time"
)

// DeliveryStatus is the state of a single recipient's delivery
type DeliveryStatus string

// Delivery status constants
const (
	DeliveryStatusPending DeliveryStatus = "PENDING"
	DeliveryStatusSent    DeliveryStatus = "SENT"
	DeliveryStatusFailed  DeliveryStatus = "FAILED"
)

// ParseDeliveryStatus accepts any casing of a known status
func ParseDeliveryStatus(s string) (DeliveryStatus, bool) {
	switch DeliveryStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case DeliveryStatusPending:
		return DeliveryStatusPending, true
	case DeliveryStatusSent:
		return DeliveryStatusSent, true
	case DeliveryStatusFailed:
		return DeliveryStatusFailed, true
	default:
		return "", false
	}
}

// IsTerminal reports whether the status can no longer change
func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliveryStatusSent || s == DeliveryStatusFailed
}

// DeliveryLog is the per-recipient delivery record of a campaign
type DeliveryLog struct {
	ID              int64          `json:"id"`
	CampaignID      int64          `json:"campaignId"`
	CustomerID      int64          `json:"customerId"`
	Status          DeliveryStatus `json:"status"`
	VendorMessageID *string        `json:"vendorMessageId,omitempty"`
	VendorTimestamp *time.Time     `json:"vendorTimestamp,omitempty"`
	ErrorMessage    *string        `json:"errorMessage,omitempty"`
	DeliveredAt     *time.Time     `json:"deliveredAt,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// DeliveryLogFilter holds filtering options for listing delivery logs
type DeliveryLogFilter struct {
	CampaignID int64
	Status     DeliveryStatus
	Page       int
	PageSize   int
}

// Recipient is one frozen member of a campaign's audience, joined with the fields
// needed to personalize and address the message
type Recipient struct {
	LogID      int64  `json:"logId"`
	CustomerID int64  `json:"customerId"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
}

// DispatchJob asks a worker to fan a campaign out to its recipients
type DispatchJob struct {
	CampaignID int64     `json:"campaign_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
