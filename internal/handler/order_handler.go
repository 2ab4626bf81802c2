package handler

import (
	"net/http"
	"strconv"

	"github.com/yuvinraja/crm-backend/internal/models"
	"github.com/yuvinraja/crm-backend/internal/service"
)

// OrderHandler handles order HTTP requests
type OrderHandler struct {
	orderService service.OrderService
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orderService service.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

// CreateOrder handles POST /orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req service.CreateOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	order, err := h.orderService.Create(r.Context(), &req)
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondCreated(w, r, order)
}

// ListOrders handles GET /orders
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	var customerID int64
	if raw := r.URL.Query().Get("customer_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			respondError(w, r, http.StatusBadRequest, "INVALID_ID", "Invalid customer ID")
			return
		}
		customerID = id
	}
	h.list(w, r, customerID)
}

// CustomerOrders handles GET /customers/{id}/orders
func (h *OrderHandler) CustomerOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "customer")
	if !ok {
		return
	}
	h.list(w, r, id)
}

func (h *OrderHandler) list(w http.ResponseWriter, r *http.Request, customerID int64) {
	page, pageSize := pageParams(r)

	result, err := h.orderService.List(r.Context(), models.OrderFilter{
		CustomerID: customerID,
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondSuccess(w, r, result)
}

// GetOrder handles GET /orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "order")
	if !ok {
		return
	}

	order, err := h.orderService.GetByID(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondSuccess(w, r, order)
}
