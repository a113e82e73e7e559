package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"settlement/internal/models"
	"settlement/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- Markets -----------------------------------------------------------------

func (s *Store) GetMarket(ctx context.Context, id string) (*models.Market, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	var item models.Market
	err := s.db.WithContext(ctx).
		Where("id = ?", id).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) FinalizeMarket(ctx context.Context, id string, outcome string, at time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	// Re-finalizing an already-resolved market is a no-op: the WHERE clause
	// only matches rows that still need the transition.
	return s.db.WithContext(ctx).
		Model(&models.Market{}).
		Where("id = ?", id).
		Where("status <> ?", models.MarketStatusResolved).
		Updates(map[string]any{
			"status":          models.MarketStatusResolved,
			"winning_outcome": strings.TrimSpace(outcome),
			"resolved_at":     at,
			"updated_at":      time.Now().UTC(),
		}).Error
}

// --- Positions ---------------------------------------------------------------

func (s *Store) ListWinningPositions(ctx context.Context, marketID string, outcome string) ([]models.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	marketID = strings.TrimSpace(marketID)
	outcome = strings.TrimSpace(outcome)
	if marketID == "" || outcome == "" {
		return nil, nil
	}
	var items []models.Position
	err := s.db.WithContext(ctx).
		Model(&models.Position{}).
		Where("market_id = ?", marketID).
		Where("outcome = ?", outcome).
		Where("quantity > 0").
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- Claims ------------------------------------------------------------------

func (s *Store) InsertClaims(ctx context.Context, items []models.SettlementClaim) (int64, error) {
	if s == nil || s.db == nil || len(items) == 0 {
		return 0, nil
	}
	// Uniqueness is enforced by uniq_claim_user_market_outcome; re-activation
	// of an already-settled market inserts nothing.
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "market_id"}, {Name: "outcome"}},
		DoNothing: true,
	}).Create(&items)
	return res.RowsAffected, res.Error
}

func (s *Store) GetPendingClaim(ctx context.Context, userID string, marketID string) (*models.SettlementClaim, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	userID = strings.TrimSpace(userID)
	marketID = strings.TrimSpace(marketID)
	if userID == "" || marketID == "" {
		return nil, nil
	}
	var item models.SettlementClaim
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("market_id = ?", marketID).
		Where("status = ?", models.ClaimStatusPending).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListPendingAutoSettleClaims(ctx context.Context, marketID string, limit int) ([]models.SettlementClaim, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	marketID = strings.TrimSpace(marketID)
	if marketID == "" {
		return nil, nil
	}
	limit = normalizeLimit(limit, 100)
	var items []models.SettlementClaim
	err := s.db.WithContext(ctx).
		Model(&models.SettlementClaim{}).
		Where("market_id = ?", marketID).
		Where("status = ?", models.ClaimStatusPending).
		Where("opt_in_auto_settle = ?", true).
		Order("id asc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListClaims(ctx context.Context, params repository.ListClaimsParams) ([]models.SettlementClaim, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.claimsQuery(ctx, params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.SettlementClaim
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountClaims(ctx context.Context, params repository.ListClaimsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.claimsQuery(ctx, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) claimsQuery(ctx context.Context, params repository.ListClaimsParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.SettlementClaim{})
	if params.MarketID != nil && strings.TrimSpace(*params.MarketID) != "" {
		query = query.Where("market_id = ?", strings.TrimSpace(*params.MarketID))
	}
	if params.UserID != nil && strings.TrimSpace(*params.UserID) != "" {
		query = query.Where("user_id = ?", strings.TrimSpace(*params.UserID))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	return query
}

// TransitionClaimTx moves one claim out of pending. The status predicate in the
// WHERE clause is the race guard: whichever writer matches first wins, the
// other observes zero affected rows.
func (s *Store) TransitionClaimTx(ctx context.Context, tx *gorm.DB, id uint64, from string, to string, fee *decimal.Decimal, at time.Time) (bool, error) {
	if s == nil {
		return false, nil
	}
	if tx == nil {
		tx = s.db
	}
	if tx == nil || id == 0 {
		return false, nil
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	updates := map[string]any{
		"status":     strings.TrimSpace(to),
		"claimed_at": at,
	}
	if fee != nil {
		updates["relayer_fee"] = *fee
	}
	res := tx.WithContext(ctx).
		Model(&models.SettlementClaim{}).
		Where("id = ?", id).
		Where("status = ?", strings.TrimSpace(from)).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) ListMarketIDsWithPendingAutoSettle(ctx context.Context, limit int) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	limit = normalizeLimit(limit, 50)
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&models.SettlementClaim{}).
		Distinct("settlement_claims.market_id").
		Joins("JOIN markets ON markets.id = settlement_claims.market_id").
		Where("settlement_claims.status = ?", models.ClaimStatusPending).
		Where("settlement_claims.opt_in_auto_settle = ?", true).
		Where("markets.status = ?", models.MarketStatusResolved).
		Limit(limit).
		Pluck("settlement_claims.market_id", &ids).Error
	return ids, err
}

// --- Escalations -------------------------------------------------------------

func (s *Store) InsertEscalation(ctx context.Context, item *models.SettlementEscalation) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.MarketID) == "" {
		return nil
	}
	// At most one escalation per market, even when the delayed check fires
	// again for a retried settlement.
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "market_id"}},
		DoNothing: true,
	}).Create(item).Error
}

func (s *Store) ListEscalations(ctx context.Context, params repository.ListEscalationsParams) ([]models.SettlementEscalation, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.SettlementEscalation{})
	if params.MarketID != nil && strings.TrimSpace(*params.MarketID) != "" {
		query = query.Where("market_id = ?", strings.TrimSpace(*params.MarketID))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.SettlementEscalation
	err := query.Order("created_at desc").Limit(limit).Offset(offset).Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- Audit trail -------------------------------------------------------------

func (s *Store) InsertSettlementRun(ctx context.Context, item *models.SettlementRun) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.MarketID) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListSettlementRuns(ctx context.Context, params repository.ListRunsParams) ([]models.SettlementRun, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.SettlementRun{})
	if params.MarketID != nil && strings.TrimSpace(*params.MarketID) != "" {
		query = query.Where("market_id = ?", strings.TrimSpace(*params.MarketID))
	}
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.SettlementRun
	err := query.Order("created_at desc").Limit(limit).Offset(offset).Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- Stats -------------------------------------------------------------------

func (s *Store) SettlementStats(ctx context.Context) (repository.SettlementStats, error) {
	stats := repository.SettlementStats{
		TotalPayout: decimal.Zero,
		TotalFees:   decimal.Zero,
	}
	if s == nil || s.db == nil {
		return stats, nil
	}
	type row struct {
		Status string
		Count  int64
		Payout decimal.Decimal
		Fees   decimal.Decimal
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Model(&models.SettlementClaim{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(payout_amount), 0) AS payout, COALESCE(SUM(relayer_fee), 0) AS fees").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return stats, err
	}
	for _, r := range rows {
		stats.TotalClaims += r.Count
		stats.TotalPayout = stats.TotalPayout.Add(r.Payout)
		switch r.Status {
		case models.ClaimStatusClaimed, models.ClaimStatusAutoSettled:
			stats.SettledClaims += r.Count
			stats.TotalFees = stats.TotalFees.Add(r.Fees)
		case models.ClaimStatusPending:
			stats.PendingClaims += r.Count
		case models.ClaimStatusFailed:
			stats.FailedClaims += r.Count
		}
	}
	return stats, nil
}

// --- helpers -----------------------------------------------------------------

func normalizeLimit(limit int, fallback int) int {
	if limit <= 0 || limit > 1000 {
		return fallback
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	col := strings.TrimSpace(orderBy)
	switch col {
	case "created_at", "claimed_at", "payout_amount", "market_id", "user_id", "status":
	default:
		col = fallback
	}
	dir := "desc"
	if asc != nil && *asc {
		dir = "asc"
	}
	return query.Order(col + " " + dir)
}
