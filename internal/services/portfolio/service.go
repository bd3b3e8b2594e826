// Package portfolio implements the orchestrator: every mutation runs the
// quota guard, holdings write, aggregation, scoring and alerting as one
// atomic unit per portfolio, serialized by an optimistic version token.
package portfolio

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/riskwatch/riskwatch/internal/common"
	"github.com/riskwatch/riskwatch/internal/engine"
	"github.com/riskwatch/riskwatch/internal/interfaces"
	"github.com/riskwatch/riskwatch/internal/models"
)

// maxCommitAttempts bounds transparent retries on version conflicts.
const maxCommitAttempts = 3

// retryBaseDelay is the backoff unit between commit attempts.
const retryBaseDelay = 20 * time.Millisecond

// Compile-time interface check
var _ interfaces.PortfolioService = (*Service)(nil)

// Service implements PortfolioService
type Service struct {
	storage   interfaces.StorageManager
	publisher interfaces.AlertPublisher
	logger    *common.Logger

	// now is swappable in tests; defaults to time.Now.
	now func() time.Time
}

// NewService creates a new portfolio service. publisher may be nil when no
// notification collaborator is wired.
func NewService(storage interfaces.StorageManager, publisher interfaces.AlertPublisher, logger *common.Logger) *Service {
	return &Service{
		storage:   storage,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// CreatePortfolio creates an empty portfolio for the user after the quota
// guard passes. A rejected creation changes nothing.
func (s *Service) CreatePortfolio(ctx context.Context, user *models.User, name, description string) (*models.Portfolio, error) {
	if name == "" || len(name) > 100 {
		return nil, &engine.ValidationError{Field: "name", Message: "must be 1-100 characters"}
	}
	if len(description) > 500 {
		return nil, &engine.ValidationError{Field: "description", Message: "must not exceed 500 characters"}
	}

	count, err := s.storage.PortfolioStore().CountActivePortfolios(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count portfolios: %w", err)
	}
	if err := engine.CheckPortfolioQuota(user.Plan, count); err != nil {
		return nil, err
	}

	now := s.now()
	p := &models.Portfolio{
		ID:          uuid.New().String(),
		UserID:      user.ID,
		Name:        name,
		Description: description,
		Holdings:    []models.Holding{},
		Alerts:      []models.Alert{},
		RiskAnalysis: models.RiskAnalysis{
			Recommendations: []string{},
			LastAnalyzed:    now,
		},
		IsActive:  true,
		CreatedAt: now,
	}
	if err := s.storage.PortfolioStore().InsertPortfolio(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info().Str("portfolio", p.ID).Str("user", user.ID).Msg("Portfolio created")
	return p, nil
}

// GetPortfolio retrieves a committed portfolio, scoped to its owner.
func (s *Service) GetPortfolio(ctx context.Context, userID, portfolioID string) (*models.Portfolio, error) {
	p, err := s.storage.PortfolioStore().GetPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, interfaces.ErrPortfolioNotFound
	}
	return p, nil
}

// ListPortfolios returns the user's portfolios.
func (s *Service) ListPortfolios(ctx context.Context, userID string) ([]*models.Portfolio, error) {
	return s.storage.PortfolioStore().ListPortfolios(ctx, userID)
}

// DeactivatePortfolio soft-deactivates a portfolio; holdings and history
// are preserved.
func (s *Service) DeactivatePortfolio(ctx context.Context, userID, portfolioID string) error {
	_, _, err := s.mutate(ctx, userID, portfolioID, nil, func(p *models.Portfolio) error {
		p.IsActive = false
		return nil
	})
	return err
}

// UpsertHolding adds or updates a holding, then recomputes totals, scores
// and alerts against the new holdings set.
func (s *Service) UpsertHolding(ctx context.Context, user *models.User, portfolioID string, holding models.Holding) (*models.Portfolio, error) {
	holding.Symbol = models.NormalizeSymbol(holding.Symbol)
	if err := engine.ValidateHolding(holding); err != nil {
		return nil, err
	}

	p, transitions, err := s.mutate(ctx, user.ID, portfolioID, user, func(p *models.Portfolio) error {
		// Work on a copy: the closure reruns on conflict retries, and the
		// backfill below must re-resolve from each fresh snapshot.
		h := holding
		h.LastUpdated = s.now()
		if i := p.FindHolding(h.Symbol); i >= 0 {
			// Preserve collaborator-supplied scores the command doesn't carry.
			if h.FraudScore == nil {
				h.FraudScore = p.Holdings[i].FraudScore
			}
			if h.RiskScore == nil {
				h.RiskScore = p.Holdings[i].RiskScore
			}
			p.Holdings[i] = h
		} else {
			p.Holdings = append(p.Holdings, h)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, transitions)
	return p, nil
}

// RemoveHolding removes a holding by symbol and recomputes.
func (s *Service) RemoveHolding(ctx context.Context, user *models.User, portfolioID, symbol string) (*models.Portfolio, error) {
	symbol = models.NormalizeSymbol(symbol)
	p, transitions, err := s.mutate(ctx, user.ID, portfolioID, user, func(p *models.Portfolio) error {
		i := p.FindHolding(symbol)
		if i < 0 {
			return &engine.ValidationError{Field: "symbol", Message: fmt.Sprintf("%s not held", symbol)}
		}
		p.Holdings = append(p.Holdings[:i], p.Holdings[i+1:]...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, transitions)
	return p, nil
}

// ApplyQuotes applies a price/fraud refresh to every active portfolio
// holding any quoted symbol. Each portfolio commits independently; one
// portfolio's conflict never blocks the rest.
func (s *Service) ApplyQuotes(ctx context.Context, quotes []models.Quote) error {
	bySymbol := make(map[string]models.Quote, len(quotes))
	for _, q := range quotes {
		bySymbol[models.NormalizeSymbol(q.Symbol)] = q
	}

	targets := make(map[string]*models.Portfolio)
	for symbol := range bySymbol {
		portfolios, err := s.storage.PortfolioStore().ListPortfoliosBySymbol(ctx, symbol)
		if err != nil {
			return fmt.Errorf("failed to find portfolios for %s: %w", symbol, err)
		}
		for _, p := range portfolios {
			targets[p.ID] = p
		}
	}

	var failed int
	for id, target := range targets {
		owner := target.UserID
		user, err := s.storage.UserStore().GetUser(ctx, owner)
		if err != nil {
			// Orphaned portfolio: score with default preferences.
			user = &models.User{ID: owner, Plan: models.PlanFree, RiskTolerance: models.ToleranceMedium}
		}
		_, transitions, err := s.mutate(ctx, owner, id, user, func(p *models.Portfolio) error {
			for i := range p.Holdings {
				q, ok := bySymbol[p.Holdings[i].Symbol]
				if !ok {
					continue
				}
				if q.CurrentPrice >= 0 {
					p.Holdings[i].CurrentPrice = q.CurrentPrice
				}
				if q.FraudScore != nil {
					p.Holdings[i].FraudScore = q.FraudScore
				}
				p.Holdings[i].LastUpdated = s.now()
			}
			return nil
		})
		if err != nil {
			failed++
			s.logger.Warn().Err(err).Str("portfolio", id).Msg("Quote refresh failed for portfolio")
			continue
		}
		s.publish(ctx, transitions)
	}

	s.logger.Info().Int("portfolios", len(targets)).Int("failed", failed).Int("quotes", len(quotes)).Msg("Quote refresh applied")
	if failed > 0 {
		return fmt.Errorf("quote refresh failed for %d of %d portfolios", failed, len(targets))
	}
	return nil
}

// Rescan recomputes scores and alerts on the unchanged holdings set,
// subject to the plan's daily scan quota.
func (s *Service) Rescan(ctx context.Context, user *models.User, portfolioID string) (*models.Portfolio, error) {
	day := s.now().UTC().Format("2006-01-02")
	used, err := s.storage.ScanUsageStore().CountScansToday(ctx, user.ID, day)
	if err != nil {
		return nil, fmt.Errorf("failed to read scan usage: %w", err)
	}
	if err := engine.CheckScanQuota(user.Plan, used); err != nil {
		return nil, err
	}

	p, transitions, err := s.mutate(ctx, user.ID, portfolioID, user, func(p *models.Portfolio) error {
		return nil // recompute only
	})
	if err != nil {
		return nil, err
	}

	if err := s.storage.ScanUsageStore().RecordScan(ctx, user.ID, day); err != nil {
		s.logger.Warn().Err(err).Str("user", user.ID).Msg("Failed to record scan usage")
	}
	s.publish(ctx, transitions)
	return p, nil
}

// Snapshot returns the read-only display view. All fields derive from one
// committed portfolio state, so risk analysis and active alerts always
// match the holdings they were computed from.
func (s *Service) Snapshot(ctx context.Context, userID, portfolioID string) (*models.PortfolioSnapshot, error) {
	p, err := s.GetPortfolio(ctx, userID, portfolioID)
	if err != nil {
		return nil, err
	}
	active := p.ActiveAlerts()
	if active == nil {
		active = []models.Alert{}
	}
	return &models.PortfolioSnapshot{
		PortfolioID:             p.ID,
		Name:                    p.Name,
		TotalValue:              p.TotalValue,
		TotalInvestment:         p.TotalInvestment,
		TotalGainLoss:           p.TotalGainLoss,
		TotalGainLossPercentage: p.TotalGainLossPercentage,
		RiskAnalysis:            p.RiskAnalysis,
		ActiveAlerts:            active,
		HoldingCount:            len(p.Holdings),
		AsOf:                    p.UpdatedAt,
	}, nil
}

// mutate is the four-stage transaction: load a snapshot with its version
// token, apply the mutation, recompute aggregation -> scoring -> alerting in
// memory, and commit with a compare-and-swap on the token. Conflicts retry
// with jittered backoff; the recompute is pure, so repeating it is safe.
// user may be nil when the mutation does not need scoring preferences
// (deactivation); scores are still recomputed with defaults.
func (s *Service) mutate(ctx context.Context, userID, portfolioID string, user *models.User, apply func(*models.Portfolio) error) (*models.Portfolio, []models.AlertTransition, error) {
	tolerance := models.ToleranceMedium
	plan := models.PlanFree
	if user != nil {
		if user.RiskTolerance != "" {
			tolerance = user.RiskTolerance
		}
		if user.Plan != "" {
			plan = user.Plan
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxCommitAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		p, err := s.storage.PortfolioStore().GetPortfolio(ctx, portfolioID)
		if err != nil {
			return nil, nil, err
		}
		if p.UserID != userID {
			return nil, nil, interfaces.ErrPortfolioNotFound
		}
		token := p.Version

		if err := apply(p); err != nil {
			return nil, nil, err
		}

		now := s.now()
		totals := engine.ComputeTotals(p.Holdings)
		totals.Apply(p)

		analysis := engine.Score(p.Holdings, totals, tolerance, now)
		// LastAnalyzed never goes backwards for a portfolio.
		if analysis.LastAnalyzed.Before(p.RiskAnalysis.LastAnalyzed) {
			analysis.LastAnalyzed = p.RiskAnalysis.LastAnalyzed
		}
		p.RiskAnalysis = analysis

		prevAlertCount := len(p.Alerts)
		transitions := engine.EvaluateAlerts(p, totals, analysis, now)
		transitions = engine.CapAlertRows(p, plan, prevAlertCount, transitions)

		err = s.storage.PortfolioStore().SavePortfolioVersion(ctx, p, token)
		if err == nil {
			return p, transitions, nil
		}
		if err != interfaces.ErrVersionConflict {
			return nil, nil, err
		}

		lastErr = err
		s.logger.Debug().Str("portfolio", portfolioID).Int("attempt", attempt).Msg("Version conflict, retrying")
		if attempt < maxCommitAttempts {
			delay := time.Duration(attempt)*retryBaseDelay + time.Duration(rand.Int63n(int64(retryBaseDelay)))
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return nil, nil, fmt.Errorf("commit failed after %d attempts: %w", maxCommitAttempts, lastErr)
}

// publish hands transitions to the notification collaborator after commit.
func (s *Service) publish(ctx context.Context, transitions []models.AlertTransition) {
	if s.publisher == nil || len(transitions) == 0 {
		return
	}
	s.publisher.PublishAlertTransitions(ctx, transitions)
}
