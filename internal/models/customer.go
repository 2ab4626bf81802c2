package models

import (
	"strings"
	"time"
)

// Customer represents a customer in the system
type Customer struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Phone         string     `json:"phone,omitempty"`
	TotalSpending float64    `json:"totalSpending"`
	LastVisit     *time.Time `json:"lastVisit,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// CustomerFilter holds filtering options for listing customers
type CustomerFilter struct {
	Email    string
	Page     int
	PageSize int
}

// Validate performs basic validation on customer data
func (c *Customer) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrInvalidInput("name is required")
	}
	if strings.TrimSpace(c.Email) == "" {
		return ErrInvalidInput("email is required")
	}
	if c.TotalSpending < 0 {
		return ErrInvalidInput("totalSpending cannot be negative")
	}
	return nil
}
