package models

import (
	"strings"
	"time"
)

// Combinator decides how a segment's conditions are joined
type Combinator string

// Supported combinators
const (
	CombinatorAll Combinator = "ALL"
	CombinatorAny Combinator = "ANY"
)

// Normalize maps the legacy AND/OR spellings onto ALL/ANY and upper-cases the value.
// An empty combinator defaults to ALL.
func (c Combinator) Normalize() Combinator {
	switch strings.ToUpper(strings.TrimSpace(string(c))) {
	case "", "ALL", "AND":
		return CombinatorAll
	case "ANY", "OR":
		return CombinatorAny
	default:
		return Combinator(strings.ToUpper(strings.TrimSpace(string(c))))
	}
}

// Operator is a single-field comparison
type Operator string

// Supported operators
const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "="
	OpNotEqual     Operator = "!="
	OpContains     Operator = "contains"
)

// Customer attributes a condition may target
const (
	FieldName          = "name"
	FieldEmail         = "email"
	FieldPhone         = "phone"
	FieldTotalSpending = "totalSpending"
	FieldLastVisit     = "lastVisit"
	FieldCreatedAt     = "createdAt"
)

// Condition is one (field, operator, value) rule of a segment
type Condition struct {
	Field    string   `json:"field" validate:"required"`
	Operator Operator `json:"operator" validate:"required"`
	Value    any      `json:"value"`
}

// Segment is a named, reusable rule set selecting a subset of customers
type Segment struct {
	ID                 int64       `json:"id"`
	Name               string      `json:"name"`
	Conditions         []Condition `json:"conditions"`
	Combinator         Combinator  `json:"combinator"`
	CachedAudienceSize int64       `json:"cachedAudienceSize"`
	CreatedAt          time.Time   `json:"createdAt"`
	UpdatedAt          time.Time   `json:"updatedAt"`
}

// AudiencePreview is the bounded view of a resolved audience
type AudiencePreview struct {
	AudienceSize    int64       `json:"audienceSize"`
	SampleCustomers []*Customer `json:"sampleCustomers"`
}
