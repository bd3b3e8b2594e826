package engine

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/riskwatch/riskwatch/internal/models"
)

// Fixed weights for the overall risk score combination.
const (
	weightConcentration = 0.30
	weightSector        = 0.25
	weightVolatility    = 0.25
	weightFraud         = 0.20
)

// clampScore forces a score into [0,100] and maps NaN to 0. Out-of-range
// values indicate a defect upstream and must never escape the engine.
func clampScore(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// herfindahl returns the sum of squared participation shares scaled to
// [0,100]. values are absolute weights; a zero total yields 0.
func herfindahl(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	if total <= 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		frac := v / total
		sum += frac * frac
	}
	return clampScore(sum * 100)
}

// sectorWeights aggregates holding market values by sector.
func sectorWeights(holdings []models.Holding) map[string]float64 {
	weights := make(map[string]float64, len(holdings))
	for _, h := range holdings {
		weights[h.Sector] += h.MarketValue()
	}
	return weights
}

// Score computes a full risk analysis snapshot from the holdings set and
// pre-computed totals. Pure and deterministic: identical inputs always yield
// an identical snapshot, including recommendation order. The user's risk
// tolerance shapes recommendation wording only, never the formulas.
func Score(holdings []models.Holding, totals Totals, tolerance models.RiskTolerance, now time.Time) models.RiskAnalysis {
	ra := models.RiskAnalysis{
		Recommendations: []string{},
		LastAnalyzed:    now,
	}
	if len(holdings) == 0 || totals.TotalValue <= 0 {
		return ra
	}

	values := make([]float64, len(holdings))
	absBetaDev := make([]float64, len(holdings))
	betas := make([]float64, len(holdings))
	for i, h := range holdings {
		values[i] = h.MarketValue()
		beta := 1.0
		if h.Beta != nil {
			beta = *h.Beta
		}
		betas[i] = beta
		absBetaDev[i] = math.Abs(beta - 1.0)
	}

	ra.ConcentrationRisk = round2(herfindahl(values))

	sectors := sectorWeights(holdings)
	sectorValues := make([]float64, 0, len(sectors))
	for _, v := range sectors {
		sectorValues = append(sectorValues, v)
	}
	ra.SectorRisk = round2(herfindahl(sectorValues))

	// Value-weighted |beta - 1| scaled so a portfolio-wide beta of 2 (or 0)
	// maxes the score. Holdings without a beta contribute nothing.
	ra.VolatilityScore = round2(clampScore(stat.Mean(absBetaDev, values) * 100))
	ra.BetaScore = round2(stat.Mean(betas, values))

	ra.FraudRiskScore = round2(fraudScore(holdings))

	ra.DiversificationScore = round2(diversificationScore(ra.ConcentrationRisk, len(holdings), len(sectors)))

	ra.OverallRiskScore = round2(clampScore(
		ra.ConcentrationRisk*weightConcentration +
			ra.SectorRisk*weightSector +
			ra.VolatilityScore*weightVolatility +
			ra.FraudRiskScore*weightFraud))

	ra.Recommendations = recommendations(holdings, sectors, totals, ra, tolerance)
	return ra
}

// fraudScore value-weights the externally supplied fraud scores. Holdings
// without a score are excluded from numerator and denominator, never treated
// as zero.
func fraudScore(holdings []models.Holding) float64 {
	var scores, weights []float64
	for _, h := range holdings {
		if h.FraudScore == nil {
			continue
		}
		scores = append(scores, clampScore(*h.FraudScore))
		weights = append(weights, h.MarketValue())
	}
	if len(scores) == 0 {
		return 0
	}
	var total float64
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return 0
	}
	return clampScore(stat.Mean(scores, weights))
}

// diversificationScore combines inverse concentration with distinct holding
// and sector counts. For equal weights it is strictly non-decreasing in the
// holding count: the concentration term falls as 100/N while the count terms
// saturate at 10 holdings / 8 sectors.
func diversificationScore(concentration float64, holdingCount, sectorCount int) float64 {
	base := (1 - concentration/100) * 70
	holdingsTerm := math.Min(float64(holdingCount), 10) / 10 * 15
	sectorsTerm := math.Min(float64(sectorCount), 8) / 8 * 15
	return clampScore(base + holdingsTerm + sectorsTerm)
}

// recommendations produces the ordered advisory list. Rules fire in fixed
// order of descending severity; within a rule, ties break on sector or
// symbol name so identical inputs always produce an identical list.
func recommendations(holdings []models.Holding, sectors map[string]float64, totals Totals, ra models.RiskAnalysis, tolerance models.RiskTolerance) []string {
	recs := []string{}

	if ra.OverallRiskScore > 85 {
		recs = append(recs, "Overall portfolio risk is critical; reduce concentrated and volatile positions immediately")
	} else if ra.OverallRiskScore > 70 {
		recs = append(recs, "Overall portfolio risk is high; review position sizing across the portfolio")
	}

	if ra.ConcentrationRisk > 70 {
		recs = append(recs, fmt.Sprintf("Portfolio is heavily concentrated (concentration %.1f); spread capital across more holdings", ra.ConcentrationRisk))
	}

	// Sector rules, largest exposure first, name as tie-break.
	type sectorExposure struct {
		name string
		pct  float64
	}
	exposures := make([]sectorExposure, 0, len(sectors))
	for name, value := range sectors {
		exposures = append(exposures, sectorExposure{name: name, pct: value / totals.TotalValue * 100})
	}
	sort.Slice(exposures, func(i, j int) bool {
		if exposures[i].pct != exposures[j].pct {
			return exposures[i].pct > exposures[j].pct
		}
		return exposures[i].name < exposures[j].name
	})
	for _, se := range exposures {
		if se.pct > 40 {
			recs = append(recs, fmt.Sprintf("Reduce exposure to %s sector (%.1f%% of portfolio)", se.name, se.pct))
		}
	}

	if ra.VolatilityScore > 70 {
		recs = append(recs, fmt.Sprintf("Portfolio volatility is high (score %.1f); consider lower-beta holdings", ra.VolatilityScore))
	}

	// Fraud flags, highest score first, symbol as tie-break.
	type fraudFlag struct {
		symbol string
		score  float64
	}
	var flags []fraudFlag
	for _, h := range holdings {
		if h.FraudScore != nil && *h.FraudScore > 70 {
			flags = append(flags, fraudFlag{symbol: h.Symbol, score: *h.FraudScore})
		}
	}
	sort.Slice(flags, func(i, j int) bool {
		if flags[i].score != flags[j].score {
			return flags[i].score > flags[j].score
		}
		return flags[i].symbol < flags[j].symbol
	})
	for _, f := range flags {
		recs = append(recs, fmt.Sprintf("Review %s: elevated fraud risk score %.0f", f.symbol, f.score))
	}

	if len(holdings) < 5 {
		if tolerance == models.ToleranceLow {
			recs = append(recs, "Portfolio holds fewer than 5 positions; diversification is especially important for a conservative profile")
		} else {
			recs = append(recs, "Portfolio holds fewer than 5 positions; consider adding holdings to improve diversification")
		}
	}

	return recs
}
