package handler

import (
	"net/http"
	"strconv"

	"github.com/yuvinraja/crm-backend/internal/models"
	"github.com/yuvinraja/crm-backend/internal/service"
)

// CampaignHandler handles campaign HTTP requests
type CampaignHandler struct {
	campaignService service.CampaignService
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(campaignService service.CampaignService) *CampaignHandler {
	return &CampaignHandler{campaignService: campaignService}
}

// CreateCampaign handles POST /campaigns. Delivery continues in the background after
// the response is written.
func (h *CampaignHandler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req service.CreateCampaignRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	campaign, err := h.campaignService.Create(r.Context(), &req)
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondCreated(w, r, campaign)
}

// ListCampaigns handles GET /campaigns
func (h *CampaignHandler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)
	segmentID, _ := strconv.ParseInt(r.URL.Query().Get("segment_id"), 10, 64)

	filter := models.CampaignFilter{
		SegmentID: segmentID,
		Page:      page,
		PageSize:  pageSize,
	}

	result, err := h.campaignService.List(r.Context(), filter)
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondSuccess(w, r, result)
}

// GetCampaign handles GET /campaigns/{id}
func (h *CampaignHandler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "campaign")
	if !ok {
		return
	}

	campaign, err := h.campaignService.GetByID(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondSuccess(w, r, campaign)
}

// CampaignStats handles GET /campaigns/{id}/stats
func (h *CampaignHandler) CampaignStats(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "campaign")
	if !ok {
		return
	}

	stats, err := h.campaignService.Stats(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondSuccess(w, r, stats)
}

// CampaignLogs handles GET /campaigns/{id}/logs
func (h *CampaignHandler) CampaignLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "campaign")
	if !ok {
		return
	}
	page, pageSize := pageParams(r)

	result, err := h.campaignService.Logs(r.Context(), id, r.URL.Query().Get("status"), page, pageSize)
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondSuccess(w, r, result)
}

// DispatchCampaign handles POST /campaigns/{id}/dispatch
func (h *CampaignHandler) DispatchCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "campaign")
	if !ok {
		return
	}

	result, err := h.campaignService.Dispatch(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusAccepted, result)
}

// PreviewMessage handles POST /campaigns/{id}/preview
func (h *CampaignHandler) PreviewMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "campaign")
	if !ok {
		return
	}

	var req service.PreviewMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.campaignService.PreviewMessage(r.Context(), id, &req)
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondSuccess(w, r, result)
}
