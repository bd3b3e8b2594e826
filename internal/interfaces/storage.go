// Package interfaces defines service and storage contracts for RiskWatch
package interfaces

import (
	"context"
	"errors"

	"github.com/riskwatch/riskwatch/internal/models"
)

// ErrPortfolioNotFound is returned when a portfolio id resolves to nothing.
var ErrPortfolioNotFound = errors.New("portfolio not found")

// ErrVersionConflict is returned by SavePortfolioVersion when the stored
// version no longer matches the expected token. The orchestrator retries
// transparently on this error.
var ErrVersionConflict = errors.New("portfolio version conflict")

// StorageManager coordinates all storage backends.
type StorageManager interface {
	PortfolioStore() PortfolioStore
	UserStore() UserStore
	ScanUsageStore() ScanUsageStore
	Close() error
}

// PortfolioStore persists portfolios with optimistic concurrency control.
type PortfolioStore interface {
	// GetPortfolio retrieves a portfolio by id.
	GetPortfolio(ctx context.Context, id string) (*models.Portfolio, error)

	// InsertPortfolio stores a new portfolio at version 1.
	// Fails if the id already exists.
	InsertPortfolio(ctx context.Context, p *models.Portfolio) error

	// SavePortfolioVersion commits p only if the stored version equals
	// expectedVersion, then bumps p.Version. Returns ErrVersionConflict
	// otherwise; nothing is written on conflict.
	SavePortfolioVersion(ctx context.Context, p *models.Portfolio, expectedVersion int) error

	// ListPortfolios returns all portfolios for a user, active first,
	// ordered by creation time.
	ListPortfolios(ctx context.Context, userID string) ([]*models.Portfolio, error)

	// CountActivePortfolios returns the user's active portfolio count for
	// quota checks.
	CountActivePortfolios(ctx context.Context, userID string) (int, error)

	// ListPortfoliosBySymbol returns active portfolios holding a symbol.
	ListPortfoliosBySymbol(ctx context.Context, symbol string) ([]*models.Portfolio, error)
}

// UserStore persists user records (plan tier + scoring preferences).
type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	SaveUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, id string) error
}

// ScanUsageStore tracks per-user manual risk scans for daily quota limits.
type ScanUsageStore interface {
	// CountScansToday returns the number of scans recorded for the user on
	// the given UTC day (formatted 2006-01-02).
	CountScansToday(ctx context.Context, userID, day string) (int, error)

	// RecordScan increments the user's scan count for the day.
	RecordScan(ctx context.Context, userID, day string) error
}
