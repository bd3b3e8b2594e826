package models

import (
	"fmt"
	"strings"
	"time"
)

// PlanTier is the subscription level supplied by the billing collaborator.
// Tiers are ordered: Free < Pro < Enterprise.
type PlanTier string

const (
	PlanFree       PlanTier = "free"
	PlanPro        PlanTier = "pro"
	PlanEnterprise PlanTier = "enterprise"
)

var planOrder = map[PlanTier]int{
	PlanFree:       0,
	PlanPro:        1,
	PlanEnterprise: 2,
}

// ParsePlanTier parses a plan name, defaulting to free for empty input.
func ParsePlanTier(s string) (PlanTier, error) {
	switch PlanTier(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return PlanFree, nil
	case PlanFree:
		return PlanFree, nil
	case PlanPro:
		return PlanPro, nil
	case PlanEnterprise:
		return PlanEnterprise, nil
	default:
		return "", fmt.Errorf("unknown plan tier %q", s)
	}
}

// AtLeast reports whether the tier is equal to or above another tier.
func (p PlanTier) AtLeast(other PlanTier) bool {
	return planOrder[p] >= planOrder[other]
}

// RiskTolerance is the user's stated appetite for risk. It shapes
// recommendation wording only, never scoring formulas.
type RiskTolerance string

const (
	ToleranceLow    RiskTolerance = "low"
	ToleranceMedium RiskTolerance = "medium"
	ToleranceHigh   RiskTolerance = "high"
)

// NotificationPrefs records which delivery channels the user opted into.
// Delivery itself is handled by the external notification collaborator.
type NotificationPrefs struct {
	Email    bool `json:"email"`
	WhatsApp bool `json:"whatsapp"`
	Push     bool `json:"push"`
}

// User holds the engine-relevant slice of a user account: identity, plan
// tier, and scoring preferences. Authentication is external.
type User struct {
	ID            string            `json:"id" badgerhold:"key"`
	Email         string            `json:"email"`
	Name          string            `json:"name"`
	Plan          PlanTier          `json:"plan"`
	RiskTolerance RiskTolerance     `json:"risk_tolerance"`
	Notifications NotificationPrefs `json:"notifications"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}
