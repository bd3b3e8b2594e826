package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/riskwatch/riskwatch/internal/models"
)

// PortfolioKey is the dimension key for portfolio-level alert signals.
const PortfolioKey = "portfolio"

// sectorKeyPrefix namespaces sector dimension keys so a sector whose name
// equals PortfolioKey cannot collide with a portfolio-level signature.
const sectorKeyPrefix = "sector:"

// SectorKey returns the alert dimension key for a sector name.
func SectorKey(name string) string {
	return sectorKeyPrefix + name
}

// severityBand maps a metric floor to the severity it activates.
type severityBand struct {
	min      float64
	severity models.AlertSeverity
}

// alertRule defines one signal: activation bands (ascending), the resolve
// threshold below the lowest activation (hysteresis), and the message
// template. A metric above the lowest band opens or sustains an alert; it
// resolves only at or below the resolve threshold.
type alertRule struct {
	bands   []severityBand
	resolve float64
	message func(key string, value float64) string
}

var (
	overallRule = alertRule{
		bands:   []severityBand{{70, models.SeverityHigh}, {85, models.SeverityCritical}},
		resolve: 60,
		message: func(_ string, v float64) string {
			return fmt.Sprintf("Overall portfolio risk score is %.1f", v)
		},
	}
	concentrationRule = alertRule{
		bands:   []severityBand{{70, models.SeverityHigh}, {85, models.SeverityCritical}},
		resolve: 60,
		message: func(_ string, v float64) string {
			return fmt.Sprintf("Portfolio concentration risk is %.1f", v)
		},
	}
	sectorRule = alertRule{
		bands:   []severityBand{{40, models.SeverityMedium}, {60, models.SeverityHigh}, {80, models.SeverityCritical}},
		resolve: 35,
		message: func(key string, v float64) string {
			return fmt.Sprintf("%s sector is %.1f%% of portfolio value", strings.TrimPrefix(key, sectorKeyPrefix), v)
		},
	}
	volatilityRule = alertRule{
		bands:   []severityBand{{70, models.SeverityHigh}, {85, models.SeverityCritical}},
		resolve: 60,
		message: func(_ string, v float64) string {
			return fmt.Sprintf("Portfolio volatility score is %.1f", v)
		},
	}
	fraudRule = alertRule{
		bands:   []severityBand{{70, models.SeverityHigh}, {85, models.SeverityCritical}},
		resolve: 60,
		message: func(key string, v float64) string {
			return fmt.Sprintf("%s carries a fraud risk score of %.0f", key, v)
		},
	}
)

// severityFor returns the severity band the value falls in, or "" when the
// value is below every activation threshold.
func (r alertRule) severityFor(value float64) models.AlertSeverity {
	var sev models.AlertSeverity
	for _, b := range r.bands {
		if value > b.min {
			sev = b.severity
		}
	}
	return sev
}

// signal is one evaluated metric keyed by alert signature.
type signal struct {
	alertType models.AlertType
	key       string
	value     float64
	rule      alertRule
}

// signals derives the full signal set for one evaluation cycle from a
// scoring snapshot and the holdings it was computed from. Order is
// deterministic: portfolio-level signals first, then sector and symbol
// signals sorted by key.
func signals(holdings []models.Holding, totals Totals, ra models.RiskAnalysis) []signal {
	sigs := []signal{
		{models.AlertTypeRisk, PortfolioKey, ra.OverallRiskScore, overallRule},
		{models.AlertTypeConcentration, PortfolioKey, ra.ConcentrationRisk, concentrationRule},
		{models.AlertTypeVolatility, PortfolioKey, ra.VolatilityScore, volatilityRule},
	}

	if totals.TotalValue > 0 {
		sectors := sectorWeights(holdings)
		names := make([]string, 0, len(sectors))
		for name := range sectors {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			pct := sectors[name] / totals.TotalValue * 100
			sigs = append(sigs, signal{models.AlertTypeConcentration, SectorKey(name), pct, sectorRule})
		}
	}

	symbols := make([]string, 0, len(holdings))
	scores := make(map[string]float64, len(holdings))
	for _, h := range holdings {
		if h.FraudScore == nil {
			continue
		}
		symbols = append(symbols, h.Symbol)
		scores[h.Symbol] = clampScore(*h.FraudScore)
	}
	sort.Strings(symbols)
	for _, sym := range symbols {
		sigs = append(sigs, signal{models.AlertTypeFraud, sym, scores[sym], fraudRule})
	}

	return sigs
}

// EvaluateAlerts runs one alert evaluation cycle against the portfolio's
// in-memory alert set and returns the lifecycle transitions that occurred.
// The set is updated as a whole within the orchestrator's transaction, so no
// reader can observe a partially updated list.
//
// Per signature: ABSENT -> ACTIVE when the metric crosses its activation
// threshold; ACTIVE severity is recomputed in place each cycle (escalated /
// deescalated transitions, never a duplicate row); ACTIVE -> RESOLVED only
// at or below the resolve threshold, which sits strictly below activation so
// small oscillations cannot flap; RESOLVED -> ACTIVE later re-opens under
// the same signature with a fresh ID and CreatedAt.
func EvaluateAlerts(p *models.Portfolio, totals Totals, ra models.RiskAnalysis, now time.Time) []models.AlertTransition {
	existing := make(map[string]int, len(p.Alerts))
	for i, a := range p.Alerts {
		existing[a.Signature()] = i
	}

	var transitions []models.AlertTransition
	seen := make(map[string]bool)

	emit := func(a models.Alert, kind models.TransitionKind) {
		transitions = append(transitions, models.AlertTransition{
			PortfolioID: p.ID,
			AlertID:     a.ID,
			Type:        a.Type,
			Key:         a.Key,
			Severity:    a.Severity,
			Message:     a.Message,
			Transition:  kind,
			OccurredAt:  now,
		})
	}

	for _, sig := range signals(p.Holdings, totals, ra) {
		signature := string(sig.alertType) + ":" + sig.key
		seen[signature] = true
		severity := sig.rule.severityFor(sig.value)
		idx, exists := existing[signature]

		switch {
		case exists && p.Alerts[idx].IsActive:
			a := &p.Alerts[idx]
			if sig.value <= sig.rule.resolve {
				a.IsActive = false
				resolvedAt := now
				a.ResolvedAt = &resolvedAt
				a.UpdatedAt = now
				emit(*a, models.TransitionResolved)
				continue
			}
			// Inside the hysteresis band (or still above activation): the
			// alert stays open; only a severity change is reported.
			if severity != "" && severity != a.Severity {
				kind := models.TransitionEscalated
				if severity.Rank() < a.Severity.Rank() {
					kind = models.TransitionDeescalated
				}
				a.Severity = severity
				a.Message = sig.rule.message(sig.key, sig.value)
				a.UpdatedAt = now
				emit(*a, kind)
			}

		case severity != "":
			a := models.Alert{
				ID:        uuid.New().String(),
				Type:      sig.alertType,
				Key:       sig.key,
				Message:   sig.rule.message(sig.key, sig.value),
				Severity:  severity,
				IsActive:  true,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if exists {
				// Re-open under the same signature: CreatedAt resets.
				p.Alerts[idx] = a
			} else {
				p.Alerts = append(p.Alerts, a)
			}
			emit(a, models.TransitionOpened)
		}
	}

	// Active alerts whose signal disappeared (e.g. a holding was removed)
	// resolve this cycle.
	resolveOrphans(p, seen, now, emit)

	return transitions
}

func resolveOrphans(p *models.Portfolio, seen map[string]bool, now time.Time, emit func(models.Alert, models.TransitionKind)) {
	for i := range p.Alerts {
		a := &p.Alerts[i]
		if a.IsActive && !seen[a.Signature()] {
			a.IsActive = false
			resolvedAt := now
			a.ResolvedAt = &resolvedAt
			a.UpdatedAt = now
			emit(*a, models.TransitionResolved)
		}
	}
}

// CapAlertRows enforces the plan's alert quota after an evaluation cycle.
// Newly opened signatures append at the end of the alert list, so rows past
// the cap (or past the pre-evaluation length when that already exceeds the
// cap) are dropped along with their transitions. Existing alerts are never
// evicted by quota.
func CapAlertRows(p *models.Portfolio, tier models.PlanTier, prevCount int, transitions []models.AlertTransition) []models.AlertTransition {
	limit := LimitsFor(tier).Alerts
	if limit == Unlimited || len(p.Alerts) <= limit {
		return transitions
	}
	keep := limit
	if prevCount > keep {
		keep = prevCount
	}
	if keep > len(p.Alerts) {
		return transitions
	}
	dropped := make(map[string]bool)
	for _, a := range p.Alerts[keep:] {
		dropped[a.ID] = true
	}
	p.Alerts = p.Alerts[:keep]

	kept := transitions[:0]
	for _, tr := range transitions {
		if !dropped[tr.AlertID] {
			kept = append(kept, tr)
		}
	}
	return kept
}
