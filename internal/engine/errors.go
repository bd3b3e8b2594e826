// Package engine implements the portfolio risk scoring and alerting engine:
// pure aggregation of holdings into portfolio totals, multi-dimensional risk
// scoring, the alert lifecycle state machine, and plan-tier quota checks.
// All computation here is free of I/O and safe to repeat.
package engine

import (
	"fmt"

	"github.com/riskwatch/riskwatch/internal/models"
)

// ValidationError rejects a caller-supplied mutation before any state change.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// QuotaExceededError rejects a mutation that would exceed the caller's plan
// limits. RequiredPlan is the lowest tier that would allow the operation.
type QuotaExceededError struct {
	Resource     string
	Current      int
	Limit        int
	Plan         models.PlanTier
	RequiredPlan models.PlanTier
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s quota exceeded for %s plan (%d of %d used, upgrade to %s)",
		e.Resource, e.Plan, e.Current, e.Limit, e.RequiredPlan)
}

// ValidateHolding checks the required fields of a holding mutation.
// Optional market metrics are not validated here; out-of-range external
// scores are clamped during scoring instead.
func ValidateHolding(h models.Holding) error {
	if err := models.ValidateSymbol(h.Symbol); err != nil {
		return &ValidationError{Field: "symbol", Message: err.Error()}
	}
	if h.Quantity < 0 {
		return &ValidationError{Field: "quantity", Message: "must not be negative"}
	}
	if h.AvgPrice < 0 {
		return &ValidationError{Field: "avg_price", Message: "must not be negative"}
	}
	if h.CurrentPrice < 0 {
		return &ValidationError{Field: "current_price", Message: "must not be negative"}
	}
	if h.Sector == "" {
		return &ValidationError{Field: "sector", Message: "is required"}
	}
	if h.Exchange == "" {
		return &ValidationError{Field: "exchange", Message: "is required"}
	}
	return nil
}
