package models

import "time"

// Order is a purchase by a customer. Creating one adds its amount to the customer's
// totalSpending and moves lastVisit, which is how spending-based segments change over time.
type Order struct {
	ID          int64     `json:"id"`
	CustomerID  int64     `json:"customerId"`
	OrderAmount float64   `json:"orderAmount"`
	OrderDate   time.Time `json:"orderDate"`
	CreatedAt   time.Time `json:"createdAt"`
}

// OrderFilter holds filtering options for listing orders
type OrderFilter struct {
	CustomerID int64
	Page       int
	PageSize   int
}
