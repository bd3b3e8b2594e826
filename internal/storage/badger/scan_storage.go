package badger

import (
	"context"
	"fmt"

	"github.com/timshannon/badgerhold/v4"

	"github.com/riskwatch/riskwatch/internal/common"
)

// scanUsage is one per-user per-day scan counter row.
type scanUsage struct {
	Key    string `badgerhold:"key"` // userID + "/" + day
	UserID string
	Day    string
	Count  int
}

type scanUsageStorage struct {
	store  *Store
	logger *common.Logger
}

// NewScanUsageStorage creates a new ScanUsageStore backed by BadgerHold.
func NewScanUsageStorage(store *Store, logger *common.Logger) *scanUsageStorage {
	return &scanUsageStorage{store: store, logger: logger}
}

func (s *scanUsageStorage) CountScansToday(_ context.Context, userID, day string) (int, error) {
	var usage scanUsage
	err := s.store.db.Get(userID+"/"+day, &usage)
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read scan usage: %w", err)
	}
	return usage.Count, nil
}

func (s *scanUsageStorage) RecordScan(_ context.Context, userID, day string) error {
	key := userID + "/" + day
	var usage scanUsage
	err := s.store.db.Get(key, &usage)
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to read scan usage: %w", err)
	}
	usage.Key = key
	usage.UserID = userID
	usage.Day = day
	usage.Count++
	if err := s.store.db.Upsert(key, usage); err != nil {
		return fmt.Errorf("failed to record scan: %w", err)
	}
	return nil
}
