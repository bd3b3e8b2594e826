package portfolio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/riskwatch/riskwatch/internal/common"
	"github.com/riskwatch/riskwatch/internal/engine"
	"github.com/riskwatch/riskwatch/internal/interfaces"
	"github.com/riskwatch/riskwatch/internal/models"
)

// memStorage is an in-memory StorageManager with the same compare-and-swap
// commit semantics as the badger store. conflictsLeft injects version
// conflicts to exercise the retry loop; onConflict, when set, mutates the
// stored state alongside the injected conflict, standing in for the
// concurrent writer whose commit caused it.
type memStorage struct {
	mu            sync.Mutex
	portfolios    map[string]*models.Portfolio
	users         map[string]*models.User
	scans         map[string]int
	conflictsLeft int
	onConflict    func(stored *models.Portfolio)
	saveCalls     int
}

func newMemStorage() *memStorage {
	return &memStorage{
		portfolios: make(map[string]*models.Portfolio),
		users:      make(map[string]*models.User),
		scans:      make(map[string]int),
	}
}

func (m *memStorage) PortfolioStore() interfaces.PortfolioStore { return m }
func (m *memStorage) UserStore() interfaces.UserStore           { return m }
func (m *memStorage) ScanUsageStore() interfaces.ScanUsageStore { return m }
func (m *memStorage) Close() error                              { return nil }

func clonePortfolio(p *models.Portfolio) *models.Portfolio {
	raw, _ := json.Marshal(p)
	var out models.Portfolio
	_ = json.Unmarshal(raw, &out)
	return &out
}

func (m *memStorage) GetPortfolio(_ context.Context, id string) (*models.Portfolio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.portfolios[id]
	if !ok {
		return nil, interfaces.ErrPortfolioNotFound
	}
	return clonePortfolio(p), nil
}

func (m *memStorage) InsertPortfolio(_ context.Context, p *models.Portfolio) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.portfolios[p.ID]; exists {
		return fmt.Errorf("portfolio %s already exists", p.ID)
	}
	p.Version = 1
	m.portfolios[p.ID] = clonePortfolio(p)
	return nil
}

func (m *memStorage) SavePortfolioVersion(_ context.Context, p *models.Portfolio, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	if m.conflictsLeft > 0 {
		m.conflictsLeft--
		if m.onConflict != nil {
			if stored, ok := m.portfolios[p.ID]; ok {
				m.onConflict(stored)
				stored.Version++
			}
		}
		return interfaces.ErrVersionConflict
	}
	current, ok := m.portfolios[p.ID]
	if !ok {
		return interfaces.ErrPortfolioNotFound
	}
	if current.Version != expectedVersion {
		return interfaces.ErrVersionConflict
	}
	p.Version = expectedVersion + 1
	m.portfolios[p.ID] = clonePortfolio(p)
	return nil
}

func (m *memStorage) ListPortfolios(_ context.Context, userID string) ([]*models.Portfolio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Portfolio
	for _, p := range m.portfolios {
		if p.UserID == userID {
			out = append(out, clonePortfolio(p))
		}
	}
	return out, nil
}

func (m *memStorage) CountActivePortfolios(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, p := range m.portfolios {
		if p.UserID == userID && p.IsActive {
			count++
		}
	}
	return count, nil
}

func (m *memStorage) ListPortfoliosBySymbol(_ context.Context, symbol string) ([]*models.Portfolio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Portfolio
	for _, p := range m.portfolios {
		if !p.IsActive {
			continue
		}
		if p.FindHolding(symbol) >= 0 {
			out = append(out, clonePortfolio(p))
		}
	}
	return out, nil
}

func (m *memStorage) GetUser(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s not found", id)
	}
	copied := *u
	return &copied, nil
}

func (m *memStorage) SaveUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *user
	m.users[user.ID] = &copied
	return nil
}

func (m *memStorage) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	return nil
}

func (m *memStorage) CountScansToday(_ context.Context, userID, day string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scans[userID+"/"+day], nil
}

func (m *memStorage) RecordScan(_ context.Context, userID, day string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scans[userID+"/"+day]++
	return nil
}

// capturePublisher records published transitions for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	calls  int
	events []models.AlertTransition
}

func (c *capturePublisher) PublishAlertTransitions(_ context.Context, transitions []models.AlertTransition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.events = append(c.events, transitions...)
}

func testUser(plan models.PlanTier) *models.User {
	return &models.User{
		ID:            "user-1",
		Email:         "trader@example.com",
		Plan:          plan,
		RiskTolerance: models.ToleranceMedium,
	}
}

func newTestService(storage *memStorage, publisher interfaces.AlertPublisher) *Service {
	return NewService(storage, publisher, common.NewSilentLogger())
}

func mustCreate(t *testing.T, svc *Service, user *models.User) *models.Portfolio {
	t.Helper()
	p, err := svc.CreatePortfolio(context.Background(), user, "Long Term", "")
	if err != nil {
		t.Fatalf("CreatePortfolio: %v", err)
	}
	return p
}

func TestCreatePortfolio_QuotaEnforced(t *testing.T) {
	storage := newMemStorage()
	svc := newTestService(storage, nil)
	user := testUser(models.PlanFree)

	mustCreate(t, svc, user)

	_, err := svc.CreatePortfolio(context.Background(), user, "Second", "")
	var qe *engine.QuotaExceededError
	if !errors.As(err, &qe) {
		t.Fatalf("second free portfolio should hit quota, got %v", err)
	}
	if qe.RequiredPlan != models.PlanPro {
		t.Errorf("RequiredPlan = %s, want pro", qe.RequiredPlan)
	}
	if count := len(storage.portfolios); count != 1 {
		t.Errorf("rejected creation must not persist, have %d portfolios", count)
	}
}

func TestCreatePortfolio_ValidatesName(t *testing.T) {
	svc := newTestService(newMemStorage(), nil)
	_, err := svc.CreatePortfolio(context.Background(), testUser(models.PlanPro), "", "")
	var ve *engine.ValidationError
	if !errors.As(err, &ve) || ve.Field != "name" {
		t.Fatalf("empty name should fail validation, got %v", err)
	}
}

func TestUpsertHolding_RecomputesAndAlerts(t *testing.T) {
	storage := newMemStorage()
	publisher := &capturePublisher{}
	svc := newTestService(storage, publisher)
	user := testUser(models.PlanPro)
	created := mustCreate(t, svc, user)

	// One highly concentrated position: 100 shares bought at 7500, now 8500.
	p, err := svc.UpsertHolding(context.Background(), user, created.ID, models.Holding{
		Symbol:       "reliance",
		Name:         "Reliance Industries",
		Quantity:     100,
		AvgPrice:     7500,
		CurrentPrice: 8500,
		Sector:       "Energy",
		Exchange:     "NSE",
	})
	if err != nil {
		t.Fatalf("UpsertHolding: %v", err)
	}

	if p.TotalValue != 850000 || p.TotalInvestment != 750000 {
		t.Errorf("totals = %v / %v, want 850000 / 750000", p.TotalValue, p.TotalInvestment)
	}
	if got := p.TotalGainLossPercentage; got < 13.33 || got > 13.34 {
		t.Errorf("gain pct = %v, want ~13.33", got)
	}
	if p.RiskAnalysis.ConcentrationRisk != 100 {
		t.Errorf("concentration = %v, want 100 for a single holding", p.RiskAnalysis.ConcentrationRisk)
	}

	// Single-holding concentration must open an alert above the critical band.
	var conc *models.Alert
	for i := range p.Alerts {
		if p.Alerts[i].Type == models.AlertTypeConcentration && p.Alerts[i].Key == engine.PortfolioKey {
			conc = &p.Alerts[i]
		}
	}
	if conc == nil || !conc.IsActive || conc.Severity != models.SeverityCritical {
		t.Fatalf("expected a critical concentration alert, got %+v", conc)
	}

	if publisher.calls != 1 {
		t.Errorf("publisher calls = %d, want 1", publisher.calls)
	}
	opened := 0
	for _, tr := range publisher.events {
		if tr.Transition == models.TransitionOpened {
			opened++
		}
	}
	if opened == 0 {
		t.Error("expected opened transitions to be published")
	}

	// Stored state matches the returned state.
	stored, err := svc.GetPortfolio(context.Background(), user.ID, created.ID)
	if err != nil {
		t.Fatalf("GetPortfolio: %v", err)
	}
	if stored.Version != 2 {
		t.Errorf("version = %d, want 2 after one committed mutation", stored.Version)
	}
	if stored.RiskAnalysis.ConcentrationRisk != p.RiskAnalysis.ConcentrationRisk {
		t.Error("stored risk analysis differs from returned one")
	}
}

func TestUpsertHolding_PreservesExternalScoresOnUpdate(t *testing.T) {
	storage := newMemStorage()
	svc := newTestService(storage, nil)
	user := testUser(models.PlanPro)
	created := mustCreate(t, svc, user)

	fraud := 42.0
	h := models.Holding{
		Symbol: "TCS", Quantity: 10, AvgPrice: 3000, CurrentPrice: 3100,
		Sector: "IT", Exchange: "NSE", FraudScore: &fraud,
	}
	if _, err := svc.UpsertHolding(context.Background(), user, created.ID, h); err != nil {
		t.Fatalf("UpsertHolding: %v", err)
	}

	// Update carries no fraud score: the stored one must survive.
	h2 := models.Holding{Symbol: "TCS", Quantity: 20, AvgPrice: 3000, CurrentPrice: 3100, Sector: "IT", Exchange: "NSE"}
	p, err := svc.UpsertHolding(context.Background(), user, created.ID, h2)
	if err != nil {
		t.Fatalf("UpsertHolding update: %v", err)
	}
	got := p.Holdings[p.FindHolding("TCS")]
	if got.Quantity != 20 {
		t.Errorf("quantity = %v, want 20", got.Quantity)
	}
	if got.FraudScore == nil || *got.FraudScore != 42 {
		t.Errorf("fraud score not preserved on update: %v", got.FraudScore)
	}
}

func TestMutate_RetriesOnVersionConflict(t *testing.T) {
	storage := newMemStorage()
	svc := newTestService(storage, nil)
	user := testUser(models.PlanPro)
	created := mustCreate(t, svc, user)

	storage.conflictsLeft = 2
	storage.saveCalls = 0

	_, err := svc.UpsertHolding(context.Background(), user, created.ID, models.Holding{
		Symbol: "INFY", Quantity: 5, AvgPrice: 1500, CurrentPrice: 1500, Sector: "IT", Exchange: "NSE",
	})
	if err != nil {
		t.Fatalf("mutation should succeed after retries, got %v", err)
	}
	if storage.saveCalls != 3 {
		t.Errorf("save calls = %d, want 3 (two conflicts then success)", storage.saveCalls)
	}
}

func TestUpsertHolding_RetryKeepsConcurrentScoreRefresh(t *testing.T) {
	storage := newMemStorage()
	svc := newTestService(storage, nil)
	user := testUser(models.PlanPro)
	created := mustCreate(t, svc, user)

	fraud := 42.0
	if _, err := svc.UpsertHolding(context.Background(), user, created.ID, models.Holding{
		Symbol: "TCS", Quantity: 10, AvgPrice: 3000, CurrentPrice: 3100,
		Sector: "IT", Exchange: "NSE", FraudScore: &fraud,
	}); err != nil {
		t.Fatalf("UpsertHolding: %v", err)
	}

	// A quote refresh commits between this mutation's read and its CAS: the
	// first attempt conflicts and the stored fraud score moves to 90. The
	// retried attempt must backfill from the fresh snapshot, not from the
	// snapshot read before the conflict.
	storage.conflictsLeft = 1
	storage.onConflict = func(stored *models.Portfolio) {
		refreshed := 90.0
		stored.Holdings[stored.FindHolding("TCS")].FraudScore = &refreshed
	}

	p, err := svc.UpsertHolding(context.Background(), user, created.ID, models.Holding{
		Symbol: "TCS", Quantity: 25, AvgPrice: 3000, CurrentPrice: 3100,
		Sector: "IT", Exchange: "NSE",
	})
	if err != nil {
		t.Fatalf("UpsertHolding retry: %v", err)
	}

	h := p.Holdings[p.FindHolding("TCS")]
	if h.Quantity != 25 {
		t.Errorf("quantity = %v, want 25", h.Quantity)
	}
	if h.FraudScore == nil || *h.FraudScore != 90 {
		t.Errorf("committed fraud score = %v, want 90 from the concurrent refresh", h.FraudScore)
	}
}

func TestMutate_GivesUpAfterMaxAttempts(t *testing.T) {
	storage := newMemStorage()
	publisher := &capturePublisher{}
	svc := newTestService(storage, publisher)
	user := testUser(models.PlanPro)
	created := mustCreate(t, svc, user)

	storage.conflictsLeft = maxCommitAttempts

	_, err := svc.UpsertHolding(context.Background(), user, created.ID, models.Holding{
		Symbol: "INFY", Quantity: 5, AvgPrice: 1500, CurrentPrice: 1500, Sector: "IT", Exchange: "NSE",
	})
	if !errors.Is(err, interfaces.ErrVersionConflict) {
		t.Fatalf("want wrapped ErrVersionConflict, got %v", err)
	}
	if publisher.calls != 0 {
		t.Error("nothing may be published when the commit never lands")
	}
	stored, _ := svc.GetPortfolio(context.Background(), user.ID, created.ID)
	if len(stored.Holdings) != 0 {
		t.Error("failed mutation must leave the stored portfolio unchanged")
	}
}

func TestRemoveHolding_ResolvesItsAlerts(t *testing.T) {
	storage := newMemStorage()
	publisher := &capturePublisher{}
	svc := newTestService(storage, publisher)
	user := testUser(models.PlanPro)
	created := mustCreate(t, svc, user)

	fraud := 95.0
	if _, err := svc.UpsertHolding(context.Background(), user, created.ID, models.Holding{
		Symbol: "SHADY", Quantity: 10, AvgPrice: 50, CurrentPrice: 50,
		Sector: "Finance", Exchange: "BSE", FraudScore: &fraud,
	}); err != nil {
		t.Fatalf("UpsertHolding: %v", err)
	}

	p, err := svc.RemoveHolding(context.Background(), user, created.ID, "shady")
	if err != nil {
		t.Fatalf("RemoveHolding: %v", err)
	}
	if len(p.Holdings) != 0 {
		t.Fatalf("holdings = %d, want 0", len(p.Holdings))
	}
	for _, a := range p.Alerts {
		if a.IsActive {
			t.Errorf("alert %s/%s should resolve when its signal disappears", a.Type, a.Key)
		}
	}
	resolved := false
	for _, tr := range publisher.events {
		if tr.Transition == models.TransitionResolved && tr.Type == models.AlertTypeFraud && tr.Key == "SHADY" {
			resolved = true
		}
	}
	if !resolved {
		t.Error("expected a resolved fraud transition for SHADY")
	}
}

func TestRemoveHolding_UnknownSymbol(t *testing.T) {
	storage := newMemStorage()
	svc := newTestService(storage, nil)
	user := testUser(models.PlanPro)
	created := mustCreate(t, svc, user)

	_, err := svc.RemoveHolding(context.Background(), user, created.ID, "NOPE")
	var ve *engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("want ValidationError, got %v", err)
	}
}

func TestGetPortfolio_OwnershipScoped(t *testing.T) {
	storage := newMemStorage()
	svc := newTestService(storage, nil)
	created := mustCreate(t, svc, testUser(models.PlanPro))

	_, err := svc.GetPortfolio(context.Background(), "someone-else", created.ID)
	if !errors.Is(err, interfaces.ErrPortfolioNotFound) {
		t.Fatalf("foreign portfolio must read as not found, got %v", err)
	}
}

func TestApplyQuotes_UpdatesPricesAndFraud(t *testing.T) {
	storage := newMemStorage()
	publisher := &capturePublisher{}
	svc := newTestService(storage, publisher)
	user := testUser(models.PlanPro)
	_ = storage.SaveUser(context.Background(), user)
	created := mustCreate(t, svc, user)

	if _, err := svc.UpsertHolding(context.Background(), user, created.ID, models.Holding{
		Symbol: "TCS", Quantity: 10, AvgPrice: 3000, CurrentPrice: 3000, Sector: "IT", Exchange: "NSE",
	}); err != nil {
		t.Fatalf("UpsertHolding: %v", err)
	}

	fraud := 90.0
	err := svc.ApplyQuotes(context.Background(), []models.Quote{
		{Symbol: "tcs", CurrentPrice: 3300, FraudScore: &fraud},
		{Symbol: "UNHELD", CurrentPrice: 100},
	})
	if err != nil {
		t.Fatalf("ApplyQuotes: %v", err)
	}

	p, _ := svc.GetPortfolio(context.Background(), user.ID, created.ID)
	h := p.Holdings[p.FindHolding("TCS")]
	if h.CurrentPrice != 3300 {
		t.Errorf("price = %v, want 3300", h.CurrentPrice)
	}
	if h.FraudScore == nil || *h.FraudScore != 90 {
		t.Errorf("fraud score = %v, want 90", h.FraudScore)
	}

	// Fraud 90 crosses the critical band and must publish an opened alert.
	found := false
	for _, tr := range publisher.events {
		if tr.Type == models.AlertTypeFraud && tr.Key == "TCS" && tr.Transition == models.TransitionOpened {
			found = true
		}
	}
	if !found {
		t.Error("expected a published opened fraud transition for TCS")
	}
}

func TestRescan_DailyQuota(t *testing.T) {
	storage := newMemStorage()
	svc := newTestService(storage, nil)
	user := testUser(models.PlanFree)
	created := mustCreate(t, svc, user)

	for i := 0; i < 5; i++ {
		if _, err := svc.Rescan(context.Background(), user, created.ID); err != nil {
			t.Fatalf("scan %d: %v", i+1, err)
		}
	}
	_, err := svc.Rescan(context.Background(), user, created.ID)
	var qe *engine.QuotaExceededError
	if !errors.As(err, &qe) {
		t.Fatalf("sixth free scan should hit the daily quota, got %v", err)
	}
	if qe.Resource != "risk scan" {
		t.Errorf("resource = %q", qe.Resource)
	}
}

func TestRescan_LastAnalyzedMonotone(t *testing.T) {
	storage := newMemStorage()
	svc := newTestService(storage, nil)
	user := testUser(models.PlanPro)
	created := mustCreate(t, svc, user)

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	if _, err := svc.Rescan(context.Background(), user, created.ID); err != nil {
		t.Fatalf("Rescan: %v", err)
	}

	// Clock skew backwards must not move LastAnalyzed backwards.
	svc.now = func() time.Time { return base.Add(-time.Hour) }
	p, err := svc.Rescan(context.Background(), user, created.ID)
	if err != nil {
		t.Fatalf("Rescan: %v", err)
	}
	if p.RiskAnalysis.LastAnalyzed.Before(base) {
		t.Errorf("LastAnalyzed went backwards: %v < %v", p.RiskAnalysis.LastAnalyzed, base)
	}
}

func TestDeactivatePortfolio_FreesQuota(t *testing.T) {
	storage := newMemStorage()
	svc := newTestService(storage, nil)
	user := testUser(models.PlanFree)
	created := mustCreate(t, svc, user)

	if err := svc.DeactivatePortfolio(context.Background(), user.ID, created.ID); err != nil {
		t.Fatalf("DeactivatePortfolio: %v", err)
	}
	if _, err := svc.CreatePortfolio(context.Background(), user, "Fresh Start", ""); err != nil {
		t.Errorf("deactivated portfolio should not count toward quota, got %v", err)
	}
}

func TestSnapshot_ConsistentView(t *testing.T) {
	storage := newMemStorage()
	svc := newTestService(storage, nil)
	user := testUser(models.PlanPro)
	created := mustCreate(t, svc, user)

	if _, err := svc.UpsertHolding(context.Background(), user, created.ID, models.Holding{
		Symbol: "RELIANCE", Quantity: 100, AvgPrice: 7500, CurrentPrice: 8500, Sector: "Energy", Exchange: "NSE",
	}); err != nil {
		t.Fatalf("UpsertHolding: %v", err)
	}

	snap, err := svc.Snapshot(context.Background(), user.ID, created.ID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.TotalValue != 850000 || snap.HoldingCount != 1 {
		t.Errorf("snapshot totals = %v / %d holdings", snap.TotalValue, snap.HoldingCount)
	}
	if snap.RiskAnalysis.ConcentrationRisk != 100 {
		t.Errorf("snapshot concentration = %v, want 100", snap.RiskAnalysis.ConcentrationRisk)
	}
	for _, a := range snap.ActiveAlerts {
		if !a.IsActive {
			t.Error("snapshot must only carry active alerts")
		}
	}
	if len(snap.ActiveAlerts) == 0 {
		t.Error("a fully concentrated portfolio should surface active alerts")
	}
}
