package models

import (
	"fmt"
	"time"
)

// Receipt is an asynchronous report of a final delivery outcome from the vendor channel
type Receipt struct {
	MessageID    string         `json:"messageId"`
	CampaignID   int64          `json:"campaignId"`
	CustomerID   int64          `json:"customerId"`
	Status       DeliveryStatus `json:"status"`
	Timestamp    time.Time      `json:"timestamp"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
}

// Key identifies the delivery log the receipt belongs to
func (r *Receipt) Key() DeliveryKey {
	return DeliveryKey{CampaignID: r.CampaignID, CustomerID: r.CustomerID}
}

// Validate checks that a receipt can be applied to a delivery log
func (r *Receipt) Validate() error {
	if r.CampaignID <= 0 {
		return ErrInvalidInput("campaignId is required")
	}
	if r.CustomerID <= 0 {
		return ErrInvalidInput("customerId is required")
	}
	if !r.Status.IsTerminal() {
		return ErrInvalidInput(fmt.Sprintf("invalid receipt status: %q (must be SENT or FAILED)", r.Status))
	}
	return nil
}

// DeliveryKey correlates a receipt with exactly one delivery log
type DeliveryKey struct {
	CampaignID int64
	CustomerID int64
}
