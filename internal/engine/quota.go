package engine

import "github.com/riskwatch/riskwatch/internal/models"

// Unlimited marks a plan resource with no numeric cap.
const Unlimited = -1

// PlanLimits caps the resources a plan tier may hold.
type PlanLimits struct {
	Portfolios int `json:"portfolios"`
	Alerts     int `json:"alerts"`
	RiskScans  int `json:"risk_scans"` // manual re-scans per day
}

var planLimits = map[models.PlanTier]PlanLimits{
	models.PlanFree:       {Portfolios: 1, Alerts: 10, RiskScans: 5},
	models.PlanPro:        {Portfolios: 10, Alerts: Unlimited, RiskScans: Unlimited},
	models.PlanEnterprise: {Portfolios: Unlimited, Alerts: Unlimited, RiskScans: Unlimited},
}

// LimitsFor returns the resource caps for a plan tier. Unknown tiers get
// free-plan limits.
func LimitsFor(tier models.PlanTier) PlanLimits {
	if limits, ok := planLimits[tier]; ok {
		return limits
	}
	return planLimits[models.PlanFree]
}

// allows reports whether a cap permits one more item on top of current.
func allows(limit, current int) bool {
	return limit == Unlimited || current < limit
}

// requiredPlanFor finds the lowest tier whose cap admits current+1 items.
func requiredPlanFor(current int, pick func(PlanLimits) int) models.PlanTier {
	for _, tier := range []models.PlanTier{models.PlanFree, models.PlanPro, models.PlanEnterprise} {
		if allows(pick(planLimits[tier]), current) {
			return tier
		}
	}
	return models.PlanEnterprise
}

// checkQuota rejects with a QuotaExceededError when the cap is reached.
// It runs before any state change so a rejected mutation has no effect.
func checkQuota(resource string, tier models.PlanTier, current int, pick func(PlanLimits) int) error {
	limit := pick(LimitsFor(tier))
	if allows(limit, current) {
		return nil
	}
	return &QuotaExceededError{
		Resource:     resource,
		Current:      current,
		Limit:        limit,
		Plan:         tier,
		RequiredPlan: requiredPlanFor(current, pick),
	}
}

// CheckPortfolioQuota guards creation of a new portfolio.
func CheckPortfolioQuota(tier models.PlanTier, currentCount int) error {
	return checkQuota("portfolio", tier, currentCount, func(l PlanLimits) int { return l.Portfolios })
}

// CheckScanQuota guards a manual risk re-scan against the daily cap.
func CheckScanQuota(tier models.PlanTier, usedToday int) error {
	return checkQuota("risk scan", tier, usedToday, func(l PlanLimits) int { return l.RiskScans })
}
