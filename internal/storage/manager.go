// Package storage provides the top-level StorageManager backed by a single
// embedded BadgerHold store.
package storage

import (
	"fmt"

	"github.com/riskwatch/riskwatch/internal/common"
	"github.com/riskwatch/riskwatch/internal/interfaces"
	"github.com/riskwatch/riskwatch/internal/storage/badger"
)

// Manager implements interfaces.StorageManager.
type Manager struct {
	store      *badger.Store
	portfolios interfaces.PortfolioStore
	users      interfaces.UserStore
	scans      interfaces.ScanUsageStore
	logger     *common.Logger
}

// NewManager opens the embedded store and wires the typed stores.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	store, err := badger.NewStore(logger, config.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	logger.Info().Str("path", config.Storage.Path).Msg("Storage manager initialized")

	return &Manager{
		store:      store,
		portfolios: badger.NewPortfolioStorage(store, logger),
		users:      badger.NewUserStorage(store, logger),
		scans:      badger.NewScanUsageStorage(store, logger),
		logger:     logger,
	}, nil
}

func (m *Manager) PortfolioStore() interfaces.PortfolioStore {
	return m.portfolios
}

func (m *Manager) UserStore() interfaces.UserStore {
	return m.users
}

func (m *Manager) ScanUsageStore() interfaces.ScanUsageStore {
	return m.scans
}

// Close closes the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}
