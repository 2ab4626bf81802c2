// Package segment turns declarative segment rules into executable predicates and
// resolves them against the customer population.
package segment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/yuvinraja/crm-backend/internal/models"
)

// ErrInvalidRules is wrapped by every compilation failure.
var ErrInvalidRules = errors.New("invalid segment rules")

// Predicate reports whether a customer belongs to the audience.
// Compiled predicates hold no mutable state and are safe for concurrent use.
type Predicate func(c *models.Customer) bool

type fieldKind int

const (
	kindString fieldKind = iota
	kindNumber
	kindDate
)

// fieldSpec describes how a customer attribute is read for comparison.
type fieldSpec struct {
	kind   fieldKind
	str    func(c *models.Customer) string
	number func(c *models.Customer) float64
	// date returns false when the attribute is unset (e.g. a customer who never visited).
	date func(c *models.Customer) (time.Time, bool)
}

var fields = map[string]fieldSpec{
	models.FieldName:  {kind: kindString, str: func(c *models.Customer) string { return c.Name }},
	models.FieldEmail: {kind: kindString, str: func(c *models.Customer) string { return c.Email }},
	models.FieldPhone: {kind: kindString, str: func(c *models.Customer) string { return c.Phone }},
	models.FieldTotalSpending: {kind: kindNumber, number: func(c *models.Customer) float64 {
		return c.TotalSpending
	}},
	models.FieldLastVisit: {kind: kindDate, date: func(c *models.Customer) (time.Time, bool) {
		if c.LastVisit == nil {
			return time.Time{}, false
		}
		return *c.LastVisit, true
	}},
	models.FieldCreatedAt: {kind: kindDate, date: func(c *models.Customer) (time.Time, bool) {
		return c.CreatedAt, !c.CreatedAt.IsZero()
	}},
}

// Fields returns the names of the customer attributes conditions may target.
func Fields() []string {
	return []string{
		models.FieldName,
		models.FieldEmail,
		models.FieldPhone,
		models.FieldTotalSpending,
		models.FieldLastVisit,
		models.FieldCreatedAt,
	}
}

// Compile translates an ordered list of conditions and a combinator into a Predicate.
// An empty list is rejected rather than matching everyone or no one.
func Compile(conditions []models.Condition, combinator models.Combinator) (Predicate, error) {
	if len(conditions) == 0 {
		return nil, fmt.Errorf("%w: at least one condition is required", ErrInvalidRules)
	}

	mode := combinator.Normalize()
	if mode != models.CombinatorAll && mode != models.CombinatorAny {
		return nil, fmt.Errorf("%w: unsupported combinator %q (must be ALL or ANY)", ErrInvalidRules, combinator)
	}

	preds := make([]Predicate, 0, len(conditions))
	for i, cond := range conditions {
		p, err := compileCondition(cond)
		if err != nil {
			return nil, fmt.Errorf("%w: condition %d (%s %s): %v", ErrInvalidRules, i, cond.Field, cond.Operator, err)
		}
		preds = append(preds, p)
	}

	if mode == models.CombinatorAny {
		return func(c *models.Customer) bool {
			for _, p := range preds {
				if p(c) {
					return true
				}
			}
			return false
		}, nil
	}

	return func(c *models.Customer) bool {
		for _, p := range preds {
			if !p(c) {
				return false
			}
		}
		return true
	}, nil
}

// compileCondition builds the single-field comparison for one condition.
func compileCondition(cond models.Condition) (Predicate, error) {
	fs, ok := fields[cond.Field]
	if !ok {
		return nil, fmt.Errorf("unknown field %q", cond.Field)
	}
	if !isKnownOperator(cond.Operator) {
		return nil, fmt.Errorf("unknown operator %q", cond.Operator)
	}
	if cond.Value == nil {
		return nil, errors.New("value is required")
	}

	switch fs.kind {
	case kindNumber:
		return compileNumber(fs, cond)
	case kindDate:
		return compileDate(fs, cond)
	default:
		return compileString(fs, cond)
	}
}

func isKnownOperator(op models.Operator) bool {
	switch op {
	case models.OpGreater, models.OpLess, models.OpGreaterEqual, models.OpLessEqual,
		models.OpEqual, models.OpNotEqual, models.OpContains:
		return true
	default:
		return false
	}
}

func compileNumber(fs fieldSpec, cond models.Condition) (Predicate, error) {
	if cond.Operator == models.OpContains {
		return nil, errors.New("contains is not supported on numeric fields")
	}
	target, err := toFloat(cond.Value)
	if err != nil {
		return nil, err
	}
	op := cond.Operator
	return func(c *models.Customer) bool {
		return compareOrdered(fs.number(c), target, op)
	}, nil
}

func compileString(fs fieldSpec, cond models.Condition) (Predicate, error) {
	target, ok := cond.Value.(string)
	if !ok {
		return nil, fmt.Errorf("expected a string value, got %T", cond.Value)
	}

	if cond.Operator == models.OpContains {
		needle := strings.ToLower(target)
		return func(c *models.Customer) bool {
			return strings.Contains(strings.ToLower(fs.str(c)), needle)
		}, nil
	}

	op := cond.Operator
	return func(c *models.Customer) bool {
		return compareOrdered(fs.str(c), target, op)
	}, nil
}

func compileDate(fs fieldSpec, cond models.Condition) (Predicate, error) {
	if cond.Operator == models.OpContains {
		return nil, errors.New("contains is not supported on date fields")
	}
	target, dateOnly, err := toTime(cond.Value)
	if err != nil {
		return nil, err
	}
	op := cond.Operator
	return func(c *models.Customer) bool {
		t, ok := fs.date(c)
		if !ok {
			// An unset date differs from every value and is ordered against none.
			return op == models.OpNotEqual
		}
		if dateOnly {
			t = truncateDay(t)
		}
		switch {
		case t.Before(target):
			return op == models.OpLess || op == models.OpLessEqual || op == models.OpNotEqual
		case t.After(target):
			return op == models.OpGreater || op == models.OpGreaterEqual || op == models.OpNotEqual
		default:
			return op == models.OpEqual || op == models.OpGreaterEqual || op == models.OpLessEqual
		}
	}, nil
}

func compareOrdered[T float64 | string](v, target T, op models.Operator) bool {
	switch op {
	case models.OpGreater:
		return v > target
	case models.OpLess:
		return v < target
	case models.OpGreaterEqual:
		return v >= target
	case models.OpLessEqual:
		return v <= target
	case models.OpEqual:
		return v == target
	case models.OpNotEqual:
		return v != target
	default:
		return false
	}
}

// toFloat accepts JSON numbers (float64 or json.Number), Go integers, and numeric strings.
func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("expected a numeric value, got %q", n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("expected a numeric value, got %T", v)
	}
}

// toTime accepts RFC 3339 timestamps and YYYY-MM-DD dates. Date-only values compare by
// calendar day in UTC.
func toTime(v any) (time.Time, bool, error) {
	switch t := v.(type) {
	case time.Time:
		return t, false, nil
	case string:
		s := strings.TrimSpace(t)
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return ts, false, nil
		}
		if d, err := time.Parse(time.DateOnly, s); err == nil {
			return d, true, nil
		}
		return time.Time{}, false, fmt.Errorf("expected an RFC 3339 timestamp or YYYY-MM-DD date, got %q", s)
	default:
		return time.Time{}, false, fmt.Errorf("expected a date value, got %T", v)
	}
}

func truncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
