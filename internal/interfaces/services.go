package interfaces

import (
	"context"

	"github.com/riskwatch/riskwatch/internal/models"
)

// PortfolioService orchestrates portfolio mutations. Every mutation runs the
// quota guard, holdings write, aggregation, scoring and alerting as one
// atomic unit per portfolio; on any failure the previously committed
// snapshot remains intact.
type PortfolioService interface {
	// CreatePortfolio creates an empty portfolio for the user, subject to
	// the plan's portfolio quota.
	CreatePortfolio(ctx context.Context, user *models.User, name, description string) (*models.Portfolio, error)

	// GetPortfolio retrieves a committed portfolio by id.
	GetPortfolio(ctx context.Context, userID, portfolioID string) (*models.Portfolio, error)

	// ListPortfolios returns the user's portfolios.
	ListPortfolios(ctx context.Context, userID string) ([]*models.Portfolio, error)

	// DeactivatePortfolio soft-deactivates a portfolio. Portfolios are
	// never hard-deleted while holdings exist.
	DeactivatePortfolio(ctx context.Context, userID, portfolioID string) error

	// UpsertHolding adds or updates a holding and recomputes the portfolio.
	UpsertHolding(ctx context.Context, user *models.User, portfolioID string, holding models.Holding) (*models.Portfolio, error)

	// RemoveHolding removes a holding by symbol and recomputes.
	RemoveHolding(ctx context.Context, user *models.User, portfolioID, symbol string) (*models.Portfolio, error)

	// ApplyQuotes applies a price/fraud refresh to every active portfolio
	// holding any of the quoted symbols.
	ApplyQuotes(ctx context.Context, quotes []models.Quote) error

	// Rescan recomputes scores and alerts on the unchanged holdings set,
	// subject to the plan's daily scan quota.
	Rescan(ctx context.Context, user *models.User, portfolioID string) (*models.Portfolio, error)

	// Snapshot returns the read-only display view of a portfolio.
	Snapshot(ctx context.Context, userID, portfolioID string) (*models.PortfolioSnapshot, error)
}

// AlertPublisher receives alert lifecycle transitions after commit. The
// notification-delivery collaborator implements this; the engine never
// sends notifications itself.
type AlertPublisher interface {
	PublishAlertTransitions(ctx context.Context, transitions []models.AlertTransition)
}

// MarketFeed supplies periodic price/fraud refreshes from the market-data
// collaborator.
type MarketFeed interface {
	FetchQuotes(ctx context.Context) ([]models.Quote, error)
}
