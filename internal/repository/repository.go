package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"settlement/internal/models"
)

// Repository is the storage surface the settlement pipeline depends on.
// Claim rows are the single shared mutable resource; every status write goes
// through TransitionClaimTx so the conditional update is the exclusion point
// between the batch path and the user-claim path.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Markets (externally owned; read plus the resolved transition).
	GetMarket(ctx context.Context, id string) (*models.Market, error)
	FinalizeMarket(ctx context.Context, id string, outcome string, at time.Time) error

	// Positions (read-only input to claim generation).
	ListWinningPositions(ctx context.Context, marketID string, outcome string) ([]models.Position, error)

	// Claims.
	InsertClaims(ctx context.Context, items []models.SettlementClaim) (int64, error)
	GetPendingClaim(ctx context.Context, userID string, marketID string) (*models.SettlementClaim, error)
	ListPendingAutoSettleClaims(ctx context.Context, marketID string, limit int) ([]models.SettlementClaim, error)
	ListClaims(ctx context.Context, params ListClaimsParams) ([]models.SettlementClaim, error)
	CountClaims(ctx context.Context, params ListClaimsParams) (int64, error)
	TransitionClaimTx(ctx context.Context, tx *gorm.DB, id uint64, from string, to string, fee *decimal.Decimal, at time.Time) (bool, error)
	ListMarketIDsWithPendingAutoSettle(ctx context.Context, limit int) ([]string, error)

	// Escalations.
	InsertEscalation(ctx context.Context, item *models.SettlementEscalation) error
	ListEscalations(ctx context.Context, params ListEscalationsParams) ([]models.SettlementEscalation, error)

	// Audit trail.
	InsertSettlementRun(ctx context.Context, item *models.SettlementRun) error
	ListSettlementRuns(ctx context.Context, params ListRunsParams) ([]models.SettlementRun, error)

	SettlementStats(ctx context.Context) (SettlementStats, error)
}

type ListClaimsParams struct {
	Limit    int
	Offset   int
	MarketID *string
	UserID   *string
	Status   *string
	OrderBy  string
	Asc      *bool
}

type ListEscalationsParams struct {
	Limit    int
	Offset   int
	MarketID *string
	Status   *string
}

type ListRunsParams struct {
	Limit    int
	Offset   int
	MarketID *string
}

type SettlementStats struct {
	TotalClaims   int64
	SettledClaims int64
	PendingClaims int64
	FailedClaims  int64
	TotalPayout   decimal.Decimal
	TotalFees     decimal.Decimal
}
