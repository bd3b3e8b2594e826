package engine

import "github.com/riskwatch/riskwatch/internal/models"

// Totals are the portfolio-level aggregates recomputed from the holdings set.
type Totals struct {
	TotalValue              float64
	TotalInvestment         float64
	TotalGainLoss           float64
	TotalGainLossPercentage float64
}

// ComputeTotals recomputes portfolio aggregates from the holdings set.
// Pure: an empty set yields all zeros, and a zero total investment yields a
// zero percentage rather than a division by zero.
func ComputeTotals(holdings []models.Holding) Totals {
	var t Totals
	for _, h := range holdings {
		t.TotalValue += h.MarketValue()
		t.TotalInvestment += h.CostBasis()
	}
	t.TotalGainLoss = t.TotalValue - t.TotalInvestment
	if t.TotalInvestment > 0 {
		t.TotalGainLossPercentage = t.TotalGainLoss / t.TotalInvestment * 100
	}
	return t
}

// Apply writes the totals onto a portfolio.
func (t Totals) Apply(p *models.Portfolio) {
	p.TotalValue = t.TotalValue
	p.TotalInvestment = t.TotalInvestment
	p.TotalGainLoss = t.TotalGainLoss
	p.TotalGainLossPercentage = t.TotalGainLossPercentage
}
