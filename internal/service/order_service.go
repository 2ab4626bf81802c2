package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yuvinraja/crm-backend/internal/logger"
	"github.com/yuvinraja/crm-backend/internal/models"
	"github.com/yuvinraja/crm-backend/internal/repository"
)

// OrderService records customer orders
type OrderService interface {
	Create(ctx context.Context, req *CreateOrderRequest) (*models.Order, error)
	GetByID(ctx context.Context, id int64) (*models.Order, error)
	List(ctx context.Context, filter models.OrderFilter) (*OrderListResult, error)
}

type orderService struct {
	orderRepo repository.OrderRepository
	logger    *slog.Logger
}

// NewOrderService creates a new order service
func NewOrderService(orderRepo repository.OrderRepository, log *slog.Logger) OrderService {
	return &orderService{
		orderRepo: orderRepo,
		logger:    logger.OrDefault(log),
	}
}

// Create records an order and updates the customer's spending. An unknown customer is
// NOT_FOUND. Campaigns already created keep their frozen recipients.
func (s *orderService) Create(ctx context.Context, req *CreateOrderRequest) (*models.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	order := &models.Order{
		CustomerID:  req.CustomerID,
		OrderAmount: req.OrderAmount,
	}
	if req.OrderDate != nil {
		order.OrderDate = *req.OrderDate
	}

	if err := s.orderRepo.Create(ctx, order); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("failed to create order",
			slog.Int64("customer_id", req.CustomerID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	s.logger.Info("order created",
		slog.Int64("order_id", order.ID),
		slog.Int64("customer_id", order.CustomerID),
	)

	return order, nil
}

// GetByID retrieves an order by ID
func (s *orderService) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	return s.orderRepo.GetByID(ctx, id)
}

// List retrieves orders with pagination, optionally for one customer
func (s *orderService) List(ctx context.Context, filter models.OrderFilter) (*OrderListResult, error) {
	orders, totalCount, err := s.orderRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	return &OrderListResult{
		Data:       orders,
		Pagination: models.NewPaginationResult(filter.Page, filter.PageSize, totalCount),
	}, nil
}
