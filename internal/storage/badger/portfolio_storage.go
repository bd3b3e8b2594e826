package badger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/riskwatch/riskwatch/internal/common"
	"github.com/riskwatch/riskwatch/internal/interfaces"
	"github.com/riskwatch/riskwatch/internal/models"
)

type portfolioStorage struct {
	store  *Store
	logger *common.Logger

	// mu serializes the read-compare-write in SavePortfolioVersion so the
	// version check and the upsert are one atomic step.
	mu sync.Mutex
}

// NewPortfolioStorage creates a new PortfolioStore backed by BadgerHold.
func NewPortfolioStorage(store *Store, logger *common.Logger) *portfolioStorage {
	return &portfolioStorage{store: store, logger: logger}
}

func (s *portfolioStorage) GetPortfolio(_ context.Context, id string) (*models.Portfolio, error) {
	var portfolio models.Portfolio
	err := s.store.db.Get(id, &portfolio)
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrPortfolioNotFound
		}
		return nil, fmt.Errorf("failed to get portfolio '%s': %w", id, err)
	}
	return &portfolio, nil
}

func (s *portfolioStorage) InsertPortfolio(_ context.Context, portfolio *models.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if portfolio.CreatedAt.IsZero() {
		portfolio.CreatedAt = now
	}
	portfolio.UpdatedAt = now
	portfolio.Version = 1

	if err := s.store.db.Insert(portfolio.ID, portfolio); err != nil {
		if err == badgerhold.ErrKeyExists {
			return fmt.Errorf("portfolio '%s' already exists", portfolio.ID)
		}
		return fmt.Errorf("failed to insert portfolio: %w", err)
	}
	s.logger.Debug().Str("id", portfolio.ID).Str("name", portfolio.Name).Msg("Portfolio created")
	return nil
}

func (s *portfolioStorage) SavePortfolioVersion(_ context.Context, portfolio *models.Portfolio, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current models.Portfolio
	if err := s.store.db.Get(portfolio.ID, &current); err != nil {
		if err == badgerhold.ErrNotFound {
			return interfaces.ErrPortfolioNotFound
		}
		return fmt.Errorf("failed to read portfolio '%s': %w", portfolio.ID, err)
	}
	if current.Version != expectedVersion {
		return interfaces.ErrVersionConflict
	}

	portfolio.Version = expectedVersion + 1
	portfolio.UpdatedAt = time.Now()

	if err := s.store.db.Upsert(portfolio.ID, portfolio); err != nil {
		return fmt.Errorf("failed to save portfolio: %w", err)
	}
	s.logger.Debug().Str("id", portfolio.ID).Int("version", portfolio.Version).Msg("Portfolio saved")
	return nil
}

func (s *portfolioStorage) ListPortfolios(_ context.Context, userID string) ([]*models.Portfolio, error) {
	var portfolios []models.Portfolio
	if err := s.store.db.Find(&portfolios, badgerhold.Where("UserID").Eq(userID)); err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	sort.Slice(portfolios, func(i, j int) bool {
		if portfolios[i].IsActive != portfolios[j].IsActive {
			return portfolios[i].IsActive
		}
		return portfolios[i].CreatedAt.Before(portfolios[j].CreatedAt)
	})
	result := make([]*models.Portfolio, len(portfolios))
	for i := range portfolios {
		result[i] = &portfolios[i]
	}
	return result, nil
}

func (s *portfolioStorage) CountActivePortfolios(_ context.Context, userID string) (int, error) {
	count, err := s.store.db.Count(&models.Portfolio{}, badgerhold.Where("UserID").Eq(userID).And("IsActive").Eq(true))
	if err != nil {
		return 0, fmt.Errorf("failed to count portfolios: %w", err)
	}
	return int(count), nil
}

func (s *portfolioStorage) ListPortfoliosBySymbol(_ context.Context, symbol string) ([]*models.Portfolio, error) {
	// Holdings are nested, so this scans active portfolios and filters.
	var portfolios []models.Portfolio
	if err := s.store.db.Find(&portfolios, badgerhold.Where("IsActive").Eq(true)); err != nil {
		return nil, fmt.Errorf("failed to scan portfolios: %w", err)
	}
	var matched []*models.Portfolio
	for i := range portfolios {
		if portfolios[i].FindHolding(symbol) >= 0 {
			matched = append(matched, &portfolios[i])
		}
	}
	return matched, nil
}
