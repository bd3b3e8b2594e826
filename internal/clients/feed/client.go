// Package feed provides a file-based market feed client. It stands in for
// the external market-data collaborator in development: quotes are read
// from a JSON fixture on each refresh tick.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/riskwatch/riskwatch/internal/common"
	"github.com/riskwatch/riskwatch/internal/interfaces"
	"github.com/riskwatch/riskwatch/internal/models"
)

// Compile-time interface check
var _ interfaces.MarketFeed = (*FileClient)(nil)

// FileClient reads quotes from a JSON file of the form:
//
//	[{"symbol": "RELIANCE", "current_price": 2810.5, "fraud_score": 12}]
type FileClient struct {
	path   string
	logger *common.Logger
}

// NewFileClient creates a file-based market feed.
func NewFileClient(path string, logger *common.Logger) *FileClient {
	return &FileClient{path: path, logger: logger}
}

// FetchQuotes reads and parses the quote file. Quotes with empty symbols or
// negative prices are dropped with a warning rather than failing the batch.
func (c *FileClient) FetchQuotes(_ context.Context) ([]models.Quote, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read quotes file %s: %w", c.path, err)
	}

	var raw []models.Quote
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse quotes file %s: %w", c.path, err)
	}

	quotes := make([]models.Quote, 0, len(raw))
	for _, q := range raw {
		q.Symbol = models.NormalizeSymbol(q.Symbol)
		if q.Symbol == "" || q.CurrentPrice < 0 {
			c.logger.Warn().Str("symbol", q.Symbol).Float64("price", q.CurrentPrice).Msg("Dropping malformed quote")
			continue
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}
