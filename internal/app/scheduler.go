package app

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/riskwatch/riskwatch/internal/common"
	"github.com/riskwatch/riskwatch/internal/interfaces"
)

// refreshTimeout bounds one full refresh pass across all portfolios.
const refreshTimeout = 2 * time.Minute

// refreshScheduler pulls quotes from the market feed on a cron schedule and
// feeds them through the orchestrator.
type refreshScheduler struct {
	cron   *cron.Cron
	logger *common.Logger
}

func newRefreshScheduler(schedule string, marketFeed interfaces.MarketFeed, portfolioService interfaces.PortfolioService, logger *common.Logger) (*refreshScheduler, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		runRefresh(marketFeed, portfolioService, logger)
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	logger.Info().Str("schedule", schedule).Msg("Refresh scheduler started")
	return &refreshScheduler{cron: c, logger: logger}, nil
}

func runRefresh(marketFeed interfaces.MarketFeed, portfolioService interfaces.PortfolioService, logger *common.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	start := time.Now()
	quotes, err := marketFeed.FetchQuotes(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Quote refresh: fetch failed")
		return
	}
	if len(quotes) == 0 {
		return
	}

	if err := portfolioService.ApplyQuotes(ctx, quotes); err != nil {
		logger.Warn().Err(err).Msg("Quote refresh: apply failed")
		return
	}

	logger.Info().
		Int("quotes", len(quotes)).
		Dur("elapsed", time.Since(start)).
		Msg("Quote refresh: complete")
}

// stop halts the cron scheduler, waiting for a running job to finish.
func (s *refreshScheduler) stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Refresh scheduler stopped")
}
