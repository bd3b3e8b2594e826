// Package models defines data structures for RiskWatch
package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// symbolPattern matches exchange tickers: letters, digits, dots and hyphens.
var symbolPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,19}$`)

// NormalizeSymbol uppercases and trims a ticker symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ValidateSymbol checks that a normalized symbol is well-formed.
func ValidateSymbol(symbol string) error {
	if !symbolPattern.MatchString(symbol) {
		return fmt.Errorf("invalid symbol %q", symbol)
	}
	return nil
}

// Holding represents a single position within a portfolio.
// Market metrics and externally supplied scores are optional: a nil pointer
// means the upstream collaborator has not provided a value, which is distinct
// from zero.
type Holding struct {
	Symbol       string  `json:"symbol"`
	Name         string  `json:"name"`
	Quantity     float64 `json:"quantity"`
	AvgPrice     float64 `json:"avg_price"`
	CurrentPrice float64 `json:"current_price"`
	Sector       string  `json:"sector"`
	Exchange     string  `json:"exchange"`

	MarketCap     *float64 `json:"market_cap,omitempty"`
	PE            *float64 `json:"pe,omitempty"`
	PB            *float64 `json:"pb,omitempty"`
	DividendYield *float64 `json:"dividend_yield,omitempty"`
	Beta          *float64 `json:"beta,omitempty"`

	// RiskScore and FraudScore (0-100) come from the external fraud-scoring
	// collaborator via quote refreshes; the engine only aggregates them.
	RiskScore  *float64 `json:"risk_score,omitempty"`
	FraudScore *float64 `json:"fraud_score,omitempty"`

	LastUpdated time.Time `json:"last_updated"`
}

// MarketValue returns quantity × current price.
func (h Holding) MarketValue() float64 {
	return h.Quantity * h.CurrentPrice
}

// CostBasis returns quantity × average buy price.
func (h Holding) CostBasis() float64 {
	return h.Quantity * h.AvgPrice
}

// RiskAnalysis is the scoring snapshot for a portfolio. It is replaced
// atomically on every recompute, never field-by-field.
type RiskAnalysis struct {
	OverallRiskScore     float64   `json:"overall_risk_score"`
	ConcentrationRisk    float64   `json:"concentration_risk"`
	SectorRisk           float64   `json:"sector_risk"`
	VolatilityScore      float64   `json:"volatility_score"`
	BetaScore            float64   `json:"beta_score"` // raw weighted beta, unbounded
	DiversificationScore float64   `json:"diversification_score"`
	FraudRiskScore       float64   `json:"fraud_risk_score"`
	Recommendations      []string  `json:"recommendations"`
	LastAnalyzed         time.Time `json:"last_analyzed"`
}

// AlertType categorizes the scoring dimension an alert tracks.
type AlertType string

const (
	AlertTypeRisk          AlertType = "risk"
	AlertTypeFraud         AlertType = "fraud"
	AlertTypeConcentration AlertType = "concentration"
	AlertTypeVolatility    AlertType = "volatility"
)

// AlertSeverity ranks alert urgency.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// severityRank orders severities for escalation comparison.
var severityRank = map[AlertSeverity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the ordinal of a severity, 0 for unknown.
func (s AlertSeverity) Rank() int {
	return severityRank[s]
}

// Alert is one alert lifecycle instance, identified by its signature
// (Type, Key) within a portfolio. Key names the triggering dimension:
// "portfolio" for portfolio-level metrics, "sector:<name>" for a sector,
// or a symbol.
type Alert struct {
	ID         string        `json:"id"`
	Type       AlertType     `json:"type"`
	Key        string        `json:"key"`
	Message    string        `json:"message"`
	Severity   AlertSeverity `json:"severity"`
	IsActive   bool          `json:"is_active"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty"`
}

// Signature returns the natural key identifying this alert's lifecycle.
func (a Alert) Signature() string {
	return string(a.Type) + ":" + a.Key
}

// Portfolio owns an ordered set of holdings keyed by symbol, the current
// risk analysis snapshot, and the alert set. Version is the optimistic
// concurrency token checked at commit time.
type Portfolio struct {
	ID          string `json:"id" badgerhold:"key"`
	UserID      string `json:"user_id" badgerhold:"index"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	Holdings []Holding `json:"holdings"`

	TotalValue              float64 `json:"total_value"`
	TotalInvestment         float64 `json:"total_investment"`
	TotalGainLoss           float64 `json:"total_gain_loss"`
	TotalGainLossPercentage float64 `json:"total_gain_loss_percentage"`

	RiskAnalysis RiskAnalysis `json:"risk_analysis"`
	Alerts       []Alert      `json:"alerts"`

	IsActive  bool      `json:"is_active"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FindHolding returns the index of the holding with the given symbol, or -1.
func (p *Portfolio) FindHolding(symbol string) int {
	for i := range p.Holdings {
		if p.Holdings[i].Symbol == symbol {
			return i
		}
	}
	return -1
}

// ActiveAlerts returns only the alerts currently active.
func (p *Portfolio) ActiveAlerts() []Alert {
	var active []Alert
	for _, a := range p.Alerts {
		if a.IsActive {
			active = append(active, a)
		}
	}
	return active
}

// PortfolioSnapshot is the read-only view exposed to display collaborators.
// Totals, risk analysis and active alerts all derive from the same committed
// holdings state.
type PortfolioSnapshot struct {
	PortfolioID             string       `json:"portfolio_id"`
	Name                    string       `json:"name"`
	TotalValue              float64      `json:"total_value"`
	TotalInvestment         float64      `json:"total_investment"`
	TotalGainLoss           float64      `json:"total_gain_loss"`
	TotalGainLossPercentage float64      `json:"total_gain_loss_percentage"`
	RiskAnalysis            RiskAnalysis `json:"risk_analysis"`
	ActiveAlerts            []Alert      `json:"active_alerts"`
	HoldingCount            int          `json:"holding_count"`
	AsOf                    time.Time    `json:"as_of"`
}

// TransitionKind labels an alert lifecycle transition.
type TransitionKind string

const (
	TransitionOpened      TransitionKind = "opened"
	TransitionEscalated   TransitionKind = "escalated"
	TransitionDeescalated TransitionKind = "deescalated"
	TransitionResolved    TransitionKind = "resolved"
)

// AlertTransition is the outbound event handed to the notification-delivery
// collaborator. The engine itself never sends notifications.
type AlertTransition struct {
	PortfolioID string         `json:"portfolio_id"`
	AlertID     string         `json:"alert_id"`
	Type        AlertType      `json:"type"`
	Key         string         `json:"key"`
	Severity    AlertSeverity  `json:"severity"`
	Message     string         `json:"message"`
	Transition  TransitionKind `json:"transition"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

// Quote is a price/fraud refresh pushed by the market-data collaborator.
type Quote struct {
	Symbol       string   `json:"symbol"`
	CurrentPrice float64  `json:"current_price"`
	FraudScore   *float64 `json:"fraud_score,omitempty"`
	AsOf         time.Time `json:"as_of"`
}
