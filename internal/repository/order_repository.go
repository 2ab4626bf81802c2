package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/yuvinraja/crm-backend/internal/models"
)

// OrderRepository defines the interface for order data access
type OrderRepository interface {
	// Create inserts the order and, in the same transaction, adds its amount to the
	// customer's total_spending and sets last_visit to the order date.
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id int64) (*models.Order, error)
	List(ctx context.Context, filter models.OrderFilter) ([]*models.Order, int64, error)
}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepository{db: db}
}

const orderColumns = `id, customer_id, order_amount, order_date, created_at`

// Create records an order against an existing customer.
func (r *orderRepository) Create(ctx context.Context, order *models.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // Rollback is safe to call even after Commit
	}()

	if order.OrderDate.IsZero() {
		order.OrderDate = time.Now()
	}

	// The customer row is updated first so concurrent orders for one customer serialize on it.
	res, err := tx.ExecContext(ctx, `
		UPDATE customers
		SET total_spending = total_spending + $2,
			last_visit = GREATEST(COALESCE(last_visit, $3), $3)
		WHERE id = $1`,
		order.CustomerID, order.OrderAmount, order.OrderDate,
	)
	if err != nil {
		return fmt.Errorf("failed to update customer spending: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to update customer spending: %w", err)
	} else if n == 0 {
		return models.ErrNotFoundWithMsg(fmt.Sprintf("customer with ID %d not found", order.CustomerID))
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (customer_id, order_amount, order_date)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		order.CustomerID, order.OrderAmount, order.OrderDate,
	).Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetByID retrieves an order by ID
func (r *orderRepository) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFoundWithMsg(fmt.Sprintf("order with ID %d not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	return order, nil
}

// List retrieves orders, most recent first
func (r *orderRepository) List(ctx context.Context, filter models.OrderFilter) ([]*models.Order, int64, error) {
	page, pageSize := models.NormalizePage(filter.Page, filter.PageSize)

	where := ` WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if filter.CustomerID > 0 {
		where += fmt.Sprintf(" AND customer_id = $%d", argPos)
		args = append(args, filter.CustomerID)
		argPos++
	}

	var totalCount int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	query := `SELECT ` + orderColumns + ` FROM orders` + where +
		fmt.Sprintf(" ORDER BY order_date DESC, id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, pageSize, models.Offset(page, pageSize))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []*models.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating orders: %w", err)
	}

	return orders, totalCount, nil
}

func scanOrder(row rowScanner) (*models.Order, error) {
	o := &models.Order{}
	if err := row.Scan(&o.ID, &o.CustomerID, &o.OrderAmount, &o.OrderDate, &o.CreatedAt); err != nil {
		return nil, err
	}
	return o, nil
}
