package handler

import (
	"net/http"

	"github.com/yuvinraja/crm-backend/internal/service"
)

// SegmentHandler handles segment HTTP requests
type SegmentHandler struct {
	segmentService service.SegmentService
}

// NewSegmentHandler creates a new segment handler
func NewSegmentHandler(segmentService service.SegmentService) *SegmentHandler {
	return &SegmentHandler{segmentService: segmentService}
}

// CreateSegment handles POST /segments
func (h *SegmentHandler) CreateSegment(w http.ResponseWriter, r *http.Request) {
	var req service.CreateSegmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	seg, err := h.segmentService.Create(r.Context(), &req)
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondCreated(w, r, seg)
}

// ListSegments handles GET /segments
func (h *SegmentHandler) ListSegments(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)

	result, err := h.segmentService.List(r.Context(), page, pageSize)
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondSuccess(w, r, result)
}

// GetSegment handles GET /segments/{id}
func (h *SegmentHandler) GetSegment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "segment")
	if !ok {
		return
	}

	seg, err := h.segmentService.GetByID(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondSuccess(w, r, seg)
}

// UpdateSegment handles PUT /segments/{id}
func (h *SegmentHandler) UpdateSegment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "segment")
	if !ok {
		return
	}

	var req service.UpdateSegmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	seg, err := h.segmentService.Update(r.Context(), id, &req)
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondSuccess(w, r, seg)
}

// DeleteSegment handles DELETE /segments/{id}
func (h *SegmentHandler) DeleteSegment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "segment")
	if !ok {
		return
	}

	if err := h.segmentService.Delete(r.Context(), id); err != nil {
		handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PreviewSegment handles POST /segments/preview
func (h *SegmentHandler) PreviewSegment(w http.ResponseWriter, r *http.Request) {
	var req service.PreviewSegmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	preview, err := h.segmentService.Preview(r.Context(), &req)
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondSuccess(w, r, preview)
}

// SegmentCustomers handles GET /segments/{id}/customers
func (h *SegmentHandler) SegmentCustomers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "segment")
	if !ok {
		return
	}

	customers, err := h.segmentService.Customers(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondSuccess(w, r, customers)
}
