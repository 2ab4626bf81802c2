package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/yuvinraja/crm-backend/internal/models"
)

// ReceiptSink accepts a vendor delivery receipt for batched application.
// *delivery.Ingestor implements it.
type ReceiptSink interface {
	OnReceipt(ctx context.Context, receipt models.Receipt) error
}

// ReceiptHandler handles vendor delivery-receipt callbacks
type ReceiptHandler struct {
	sink ReceiptSink
}

// NewReceiptHandler creates a new receipt handler
func NewReceiptHandler(sink ReceiptSink) *ReceiptHandler {
	return &ReceiptHandler{sink: sink}
}

// receiptRequest is the webhook payload. Status is accepted in any casing.
type receiptRequest struct {
	MessageID    string    `json:"messageId"`
	CampaignID   int64     `json:"campaignId"`
	CustomerID   int64     `json:"customerId"`
	Status       string    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}

// ReceiptAccepted is the 202 body returned once a receipt is queued
type ReceiptAccepted struct {
	Accepted bool `json:"accepted"`
	Batched  bool `json:"batched"`
}

// DeliveryReceipt handles POST /vendor/receipts. The receipt is only queued here; storage
// is updated by the batch updater on its next tick. A full queue answers 503 so the
// vendor retries.
func (h *ReceiptHandler) DeliveryReceipt(w http.ResponseWriter, r *http.Request) {
	var req receiptRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	status, ok := models.ParseDeliveryStatus(req.Status)
	if !ok {
		respondError(w, r, http.StatusBadRequest, models.CodeInvalidInput,
			"invalid receipt status: "+req.Status+" (must be SENT or FAILED)")
		return
	}

	receipt := models.Receipt{
		MessageID:    req.MessageID,
		CampaignID:   req.CampaignID,
		CustomerID:   req.CustomerID,
		Status:       status,
		Timestamp:    req.Timestamp,
		ErrorMessage: req.ErrorMessage,
	}

	if err := h.sink.OnReceipt(r.Context(), receipt); err != nil {
		handleError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusAccepted, ReceiptAccepted{Accepted: true, Batched: true})
}
