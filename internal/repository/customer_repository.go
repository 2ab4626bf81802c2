package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/yuvinraja/crm-backend/internal/models"
)

// CustomerRepository defines the interface for customer data access
type CustomerRepository interface {
	Create(ctx context.Context, customer *models.Customer) error
	GetByID(ctx context.Context, id int64) (*models.Customer, error)
	List(ctx context.Context, filter models.CustomerFilter) ([]*models.Customer, int64, error)
	// ForEach streams every customer in id order, stopping at the first error fn returns.
	ForEach(ctx context.Context, fn func(*models.Customer) error) error
}

// customerRepository implements CustomerRepository using PostgreSQL
type customerRepository struct {
	db *sql.DB
}

// NewCustomerRepository creates a new customer repository
func NewCustomerRepository(db *sql.DB) CustomerRepository {
	return &customerRepository{db: db}
}

const customerColumns = `id, name, email, phone, total_spending, last_visit, created_at`

// Create inserts a new customer. Emails are stored lower-cased and must be unique.
func (r *customerRepository) Create(ctx context.Context, customer *models.Customer) error {
	customer.Email = strings.ToLower(strings.TrimSpace(customer.Email))

	query := `
		INSERT INTO customers (name, email, phone, total_spending, last_visit)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(
		ctx,
		query,
		strings.TrimSpace(customer.Name),
		customer.Email,
		strings.TrimSpace(customer.Phone),
		customer.TotalSpending,
		customer.LastVisit,
	).Scan(&customer.ID, &customer.CreatedAt)

	if isUniqueViolation(err) {
		return models.ErrConflictWithMsg(fmt.Sprintf("customer with email %s already exists", customer.Email))
	}
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}

	return nil
}

// GetByID retrieves a customer by ID
func (r *customerRepository) GetByID(ctx context.Context, id int64) (*models.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`

	customer, err := scanCustomer(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFoundWithMsg(fmt.Sprintf("customer with ID %d not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	return customer, nil
}

// List retrieves customers with pagination and filtering
func (r *customerRepository) List(ctx context.Context, filter models.CustomerFilter) ([]*models.Customer, int64, error) {
	page, pageSize := models.NormalizePage(filter.Page, filter.PageSize)

	where := ` WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if filter.Email != "" {
		where += fmt.Sprintf(" AND email = $%d", argPos)
		args = append(args, strings.ToLower(strings.TrimSpace(filter.Email)))
		argPos++
	}

	var totalCount int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM customers`+where, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count customers: %w", err)
	}

	query := `SELECT ` + customerColumns + ` FROM customers` + where +
		fmt.Sprintf(" ORDER BY id ASC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, pageSize, models.Offset(page, pageSize))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	customers := []*models.Customer{}
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan customer: %w", err)
		}
		customers = append(customers, customer)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating customers: %w", err)
	}

	return customers, totalCount, nil
}

// ForEach streams the full customer table through fn.
func (r *customerRepository) ForEach(ctx context.Context, fn func(*models.Customer) error) error {
	rows, err := r.db.QueryContext(ctx, `SELECT `+customerColumns+` FROM customers ORDER BY id ASC`)
	if err != nil {
		return fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return fmt.Errorf("failed to scan customer: %w", err)
		}
		if err := fn(customer); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating customers: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner) (*models.Customer, error) {
	c := &models.Customer{}
	var lastVisit sql.NullTime
	if err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.TotalSpending, &lastVisit, &c.CreatedAt); err != nil {
		return nil, err
	}
	if lastVisit.Valid {
		t := lastVisit.Time
		c.LastVisit = &t
	}
	return c, nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
