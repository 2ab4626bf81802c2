package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/yuvinraja/crm-backend/internal/models"
)

var validate = validator.New()

// validateStruct runs struct-tag validation and reports the first failure as INVALID_INPUT.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return models.ErrInvalidInputWrap("invalid request", err)
	}

	fe := verrs[0]
	field := lowerFirst(fe.Field())
	switch fe.Tag() {
	case "required":
		return models.ErrInvalidInput(field + " is required")
	case "min":
		return models.ErrInvalidInput(fmt.Sprintf("%s must be at least %s", field, fe.Param()))
	case "gt":
		return models.ErrInvalidInput(fmt.Sprintf("%s must be greater than %s", field, fe.Param()))
	case "max":
		return models.ErrInvalidInput(fmt.Sprintf("%s must be at most %s", field, fe.Param()))
	case "email":
		return models.ErrInvalidInput(field + " must be a valid email address")
	default:
		return models.ErrInvalidInput(fmt.Sprintf("%s is invalid (%s)", field, fe.Tag()))
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// CreateSegmentRequest represents a request to create a segment
type CreateSegmentRequest struct {
	Name       string             `json:"name" validate:"required,max=255"`
	Conditions []models.Condition `json:"conditions" validate:"required,min=1,dive"`
	Combinator models.Combinator  `json:"combinator"`
}

// Validate performs validation on the create segment request
func (r *CreateSegmentRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	return validateStruct(r)
}

// UpdateSegmentRequest changes any subset of a segment's name and rules
type UpdateSegmentRequest struct {
	Name       *string             `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Conditions *[]models.Condition `json:"conditions,omitempty" validate:"omitempty,min=1,dive"`
	Combinator *models.Combinator  `json:"combinator,omitempty"`
}

// Validate performs validation on the update segment request
func (r *UpdateSegmentRequest) Validate() error {
	if r.Name != nil {
		trimmed := strings.TrimSpace(*r.Name)
		r.Name = &trimmed
	}
	if r.Name == nil && r.Conditions == nil && r.Combinator == nil {
		return models.ErrInvalidInput("nothing to update")
	}
	return validateStruct(r)
}

// changesRules reports whether the update touches the compiled predicate.
func (r *UpdateSegmentRequest) changesRules() bool {
	return r.Conditions != nil || r.Combinator != nil
}

// PreviewSegmentRequest evaluates unsaved rules against the current customers
type PreviewSegmentRequest struct {
	Conditions []models.Condition `json:"conditions" validate:"required,min=1,dive"`
	Combinator models.Combinator  `json:"combinator"`
}

// Validate performs validation on the preview request
func (r *PreviewSegmentRequest) Validate() error {
	return validateStruct(r)
}

// CreateCampaignRequest represents a request to create a campaign
type CreateCampaignRequest struct {
	Name      string `json:"name" validate:"required,max=255"`
	SegmentID int64  `json:"segmentId" validate:"required,gt=0"`
	Message   string `json:"message" validate:"required"`
}

// Validate performs validation on the create campaign request
func (r *CreateCampaignRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if strings.TrimSpace(r.Message) == "" {
		return models.ErrInvalidInput("message is required")
	}
	return validateStruct(r)
}

// CreateCustomerRequest represents a request to create a customer
type CreateCustomerRequest struct {
	Name          string     `json:"name" validate:"required,max=255"`
	Email         string     `json:"email" validate:"required,email"`
	Phone         string     `json:"phone,omitempty" validate:"omitempty,max=32"`
	TotalSpending float64    `json:"totalSpending" validate:"min=0"`
	LastVisit     *time.Time `json:"lastVisit,omitempty"`
}

// Validate performs validation on the create customer request
func (r *CreateCustomerRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	r.Phone = strings.TrimSpace(r.Phone)
	return validateStruct(r)
}

// PreviewMessageRequest represents a request to preview a personalized campaign message
type PreviewMessageRequest struct {
	CustomerID      int64   `json:"customerId" validate:"required,gt=0"`
	OverrideMessage *string `json:"overrideMessage,omitempty"`
}

// Validate performs validation on the preview request
func (r *PreviewMessageRequest) Validate() error {
	return validateStruct(r)
}

// PreviewMessageResult represents the result of a personalized preview
type PreviewMessageResult struct {
	RenderedMessage string           `json:"renderedMessage"`
	UsedMessage     string           `json:"usedMessage"`
	Customer        *CustomerPreview `json:"customer"`
}

// CustomerPreview contains minimal customer info for preview
type CustomerPreview struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// DispatchResult reports whether a dispatch job was queued for a campaign
type DispatchResult struct {
	CampaignID   int64 `json:"campaignId"`
	AudienceSize int64 `json:"audienceSize"`
	Queued       bool  `json:"queued"`
}

// CampaignListResult represents paginated campaign list results
type CampaignListResult struct {
	Data       []*models.Campaign      `json:"data"`
	Pagination models.PaginationResult `json:"pagination"`
}

// SegmentListResult represents paginated segment list results
type SegmentListResult struct {
	Data       []*models.Segment       `json:"data"`
	Pagination models.PaginationResult `json:"pagination"`
}

// CreateOrderRequest represents a request to record a customer order
type CreateOrderRequest struct {
	CustomerID  int64      `json:"customerId" validate:"required,gt=0"`
	OrderAmount float64    `json:"orderAmount" validate:"gt=0"`
	OrderDate   *time.Time `json:"orderDate,omitempty"`
}

// Validate performs validation on the create order request
func (r *CreateOrderRequest) Validate() error {
	return validateStruct(r)
}

// OrderListResult represents paginated order list results
type OrderListResult struct {
	Data       []*models.Order         `json:"data"`
	Pagination models.PaginationResult `json:"pagination"`
}

// CustomerListResult represents paginated customer list results
type CustomerListResult struct {
	Data       []*models.Customer      `json:"data"`
	Pagination models.PaginationResult `json:"pagination"`
}

// DeliveryLogListResult represents paginated delivery log results
type DeliveryLogListResult struct {
	Data       []*models.DeliveryLog   `json:"data"`
	Pagination models.PaginationResult `json:"pagination"`
}
