package settlement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"settlement/internal/models"
	"settlement/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository.
// InTx snapshots claim state and restores it when fn fails, mimicking the
// rollback the gorm store gets from postgres.
type stubRepo struct {
	mu sync.Mutex

	markets   map[string]*models.Market
	positions []models.Position
	claims    map[uint64]*models.SettlementClaim

	escalations []models.SettlementEscalation
	runs        []models.SettlementRun

	nextClaimID    uint64
	insertedClaims int64
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		markets: map[string]*models.Market{},
		claims:  map[uint64]*models.SettlementClaim{},
	}
}

func (s *stubRepo) addMarket(m models.Market) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := m
	s.markets[m.ID] = &cp
}

func (s *stubRepo) addPosition(p models.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = append(s.positions, p)
}

func (s *stubRepo) claim(id uint64) models.SettlementClaim {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.claims[id]
}

func (s *stubRepo) claimByUser(userID, marketID string) *models.SettlementClaim {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.claims {
		if c.UserID == userID && c.MarketID == marketID {
			cp := *c
			return &cp
		}
	}
	return nil
}

func (s *stubRepo) snapshotClaims() map[uint64]models.SettlementClaim {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := make(map[uint64]models.SettlementClaim, len(s.claims))
	for id, c := range s.claims {
		snap[id] = *c
	}
	return snap
}

func (s *stubRepo) restoreClaims(snap map[uint64]models.SettlementClaim) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims = make(map[uint64]*models.SettlementClaim, len(snap))
	for id, c := range snap {
		cp := c
		s.claims[id] = &cp
	}
}

func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	snap := s.snapshotClaims()
	if err := fn(nil); err != nil {
		s.restoreClaims(snap)
		return err
	}
	return nil
}

func (s *stubRepo) GetMarket(ctx context.Context, id string) (*models.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (s *stubRepo) FinalizeMarket(ctx context.Context, id string, outcome string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok || m.Status == models.MarketStatusResolved {
		return nil
	}
	m.Status = models.MarketStatusResolved
	out := outcome
	m.WinningOutcome = &out
	m.ResolvedAt = &at
	return nil
}

func (s *stubRepo) ListWinningPositions(ctx context.Context, marketID string, outcome string) ([]models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Position
	for _, p := range s.positions {
		if p.MarketID == marketID && p.Outcome == outcome && p.Quantity.IsPositive() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubRepo) InsertClaims(ctx context.Context, items []models.SettlementClaim) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var inserted int64
	for _, item := range items {
		exists := false
		for _, c := range s.claims {
			if c.UserID == item.UserID && c.MarketID == item.MarketID && c.Outcome == item.Outcome {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		s.nextClaimID++
		cp := item
		cp.ID = s.nextClaimID
		s.claims[cp.ID] = &cp
		inserted++
	}
	s.insertedClaims += inserted
	return inserted, nil
}

func (s *stubRepo) GetPendingClaim(ctx context.Context, userID string, marketID string) (*models.SettlementClaim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.claims {
		if c.UserID == userID && c.MarketID == marketID && c.Status == models.ClaimStatusPending {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) ListPendingAutoSettleClaims(ctx context.Context, marketID string, limit int) ([]models.SettlementClaim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SettlementClaim
	for _, c := range s.claims {
		if c.MarketID == marketID && c.Status == models.ClaimStatusPending && c.OptInAutoSettle {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *stubRepo) ListClaims(ctx context.Context, params repository.ListClaimsParams) ([]models.SettlementClaim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SettlementClaim
	for _, c := range s.claims {
		if params.MarketID != nil && c.MarketID != *params.MarketID {
			continue
		}
		if params.UserID != nil && c.UserID != *params.UserID {
			continue
		}
		if params.Status != nil && c.Status != *params.Status {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *stubRepo) CountClaims(ctx context.Context, params repository.ListClaimsParams) (int64, error) {
	items, _ := s.ListClaims(ctx, params)
	return int64(len(items)), nil
}

func (s *stubRepo) TransitionClaimTx(ctx context.Context, tx *gorm.DB, id uint64, from string, to string, fee *decimal.Decimal, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	c.ClaimedAt = &at
	if fee != nil {
		f := *fee
		c.RelayerFee = &f
	}
	return true, nil
}

func (s *stubRepo) ListMarketIDsWithPendingAutoSettle(ctx context.Context, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]struct{}{}
	var out []string
	for _, c := range s.claims {
		if c.Status != models.ClaimStatusPending || !c.OptInAutoSettle {
			continue
		}
		m, ok := s.markets[c.MarketID]
		if !ok || m.Status != models.MarketStatusResolved {
			continue
		}
		if _, dup := seen[c.MarketID]; dup {
			continue
		}
		seen[c.MarketID] = struct{}{}
		out = append(out, c.MarketID)
	}
	sort.Strings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *stubRepo) InsertEscalation(ctx context.Context, item *models.SettlementEscalation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.escalations {
		if e.MarketID == item.MarketID {
			return nil
		}
	}
	s.escalations = append(s.escalations, *item)
	return nil
}

func (s *stubRepo) ListEscalations(ctx context.Context, params repository.ListEscalationsParams) ([]models.SettlementEscalation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SettlementEscalation
	for _, e := range s.escalations {
		if params.MarketID != nil && e.MarketID != *params.MarketID {
			continue
		}
		if params.Status != nil && e.Status != *params.Status {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *stubRepo) InsertSettlementRun(ctx context.Context, item *models.SettlementRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, *item)
	return nil
}

func (s *stubRepo) ListSettlementRuns(ctx context.Context, params repository.ListRunsParams) ([]models.SettlementRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SettlementRun
	for _, r := range s.runs {
		if params.MarketID != nil && r.MarketID != *params.MarketID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *stubRepo) SettlementStats(ctx context.Context) (repository.SettlementStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := repository.SettlementStats{
		TotalPayout: decimal.Zero,
		TotalFees:   decimal.Zero,
	}
	for _, c := range s.claims {
		stats.TotalClaims++
		stats.TotalPayout = stats.TotalPayout.Add(c.PayoutAmount)
		switch c.Status {
		case models.ClaimStatusClaimed, models.ClaimStatusAutoSettled:
			stats.SettledClaims++
			if c.RelayerFee != nil {
				stats.TotalFees = stats.TotalFees.Add(*c.RelayerFee)
			}
		case models.ClaimStatusPending:
			stats.PendingClaims++
		case models.ClaimStatusFailed:
			stats.FailedClaims++
		}
	}
	return stats, nil
}

// fakeGateway records credits and honors the reference as an idempotency key.
type fakeGateway struct {
	mu      sync.Mutex
	credits map[string]decimal.Decimal // reference -> amount
	byUser  map[string]decimal.Decimal
	failFor map[string]bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		credits: map[string]decimal.Decimal{},
		byUser:  map[string]decimal.Decimal{},
		failFor: map[string]bool{},
	}
}

func (g *fakeGateway) Credit(ctx context.Context, userID string, amount decimal.Decimal, reference string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failFor[userID] {
		return errors.New("gateway timeout")
	}
	if _, seen := g.credits[reference]; seen {
		return nil
	}
	g.credits[reference] = amount
	prev, ok := g.byUser[userID]
	if !ok {
		prev = decimal.Zero
	}
	g.byUser[userID] = prev.Add(amount)
	return nil
}

func (g *fakeGateway) creditCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.credits)
}

func (g *fakeGateway) creditedTo(userID string) decimal.Decimal {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.byUser[userID]
	if !ok {
		return decimal.Zero
	}
	return v
}

func (g *fakeGateway) totalCredited() decimal.Decimal {
	g.mu.Lock()
	defer g.mu.Unlock()
	total := decimal.Zero
	for _, v := range g.credits {
		total = total.Add(v)
	}
	return total
}

var _ repository.Repository = (*stubRepo)(nil)

func mustDecimal(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("bad decimal %q: %v", s, err))
	}
	return v
}

func strPtr(s string) *string {
	v := strings.TrimSpace(s)
	return &v
}

func listClaimsFor(marketID string) repository.ListClaimsParams {
	return repository.ListClaimsParams{MarketID: strPtr(marketID), Limit: 100}
}

func listRunsFor(marketID string) repository.ListRunsParams {
	return repository.ListRunsParams{MarketID: strPtr(marketID), Limit: 100}
}
