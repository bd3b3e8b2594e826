// Package app wires configuration, storage, services and the refresh
// scheduler into one application core.
package app

import (
	"fmt"
	"time"

	"github.com/riskwatch/riskwatch/internal/clients/feed"
	"github.com/riskwatch/riskwatch/internal/common"
	"github.com/riskwatch/riskwatch/internal/interfaces"
	"github.com/riskwatch/riskwatch/internal/services/alert"
	"github.com/riskwatch/riskwatch/internal/services/portfolio"
	"github.com/riskwatch/riskwatch/internal/storage"
)

// App holds all initialized services and storage. It is the shared core
// used by cmd/riskwatch-server and by handler tests.
type App struct {
	Config           *common.Config
	Logger           *common.Logger
	Storage          interfaces.StorageManager
	PortfolioService interfaces.PortfolioService
	Publisher        interfaces.AlertPublisher
	MarketFeed       interfaces.MarketFeed
	StartupTime      time.Time

	scheduler *refreshScheduler
}

// NewApp initializes configuration, storage and services.
// configPath may be empty, in which case defaults and env overrides apply.
func NewApp(configPath string) (*App, error) {
	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := common.NewLoggerFromConfig(config.Logging)

	storageManager, err := storage.NewManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	publisher := alert.NewLogPublisher(logger)
	portfolioService := portfolio.NewService(storageManager, publisher, logger)

	a := &App{
		Config:           config,
		Logger:           logger,
		Storage:          storageManager,
		PortfolioService: portfolioService,
		Publisher:        publisher,
		StartupTime:      time.Now(),
	}

	if config.Feed.QuotesFile != "" {
		a.MarketFeed = feed.NewFileClient(config.Feed.QuotesFile, logger)
	}

	return a, nil
}

// StartScheduler begins the periodic quote/fraud refresh if a market feed
// is configured.
func (a *App) StartScheduler() error {
	if a.MarketFeed == nil {
		a.Logger.Info().Msg("No market feed configured, refresh scheduler disabled")
		return nil
	}
	scheduler, err := newRefreshScheduler(a.Config.Feed.Schedule, a.MarketFeed, a.PortfolioService, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to start refresh scheduler: %w", err)
	}
	a.scheduler = scheduler
	return nil
}

// Close stops background work and releases storage.
func (a *App) Close() {
	if a.scheduler != nil {
		a.scheduler.stop()
	}
	if err := a.Storage.Close(); err != nil {
		a.Logger.Error().Err(err).Msg("Storage close failed")
	}
}
