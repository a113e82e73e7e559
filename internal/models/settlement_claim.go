package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Claim status values. Transitions are monotonic: pending is the only
// non-terminal status, and the pending -> terminal write is always guarded by
// a conditional update so the batch path and the user path cannot both win.
const (
	ClaimStatusPending     = "pending"
	ClaimStatusClaimed     = "claimed"
	ClaimStatusAutoSettled = "auto_settled"
	ClaimStatusFailed      = "failed"
)

// SettlementClaim is one payout obligation for a winning position.
// The (user_id, market_id, outcome) unique index makes redemption activation
// idempotent: re-running stage 3 inserts nothing for claims that already exist.
type SettlementClaim struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	UserID   string `gorm:"type:varchar(100);not null;uniqueIndex:uniq_claim_user_market_outcome;index"`
	MarketID string `gorm:"type:varchar(100);not null;uniqueIndex:uniq_claim_user_market_outcome;index"`
	Outcome  string `gorm:"type:varchar(50);not null;uniqueIndex:uniq_claim_user_market_outcome"`

	Shares       decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	PayoutAmount decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	Status          string           `gorm:"type:varchar(20);not null;default:'pending';index"`
	OptInAutoSettle bool             `gorm:"not null;default:false;index"`
	RelayerFee      *decimal.Decimal `gorm:"type:numeric(30,10)"`

	CreatedAt time.Time  `gorm:"type:timestamptz;autoCreateTime;index"`
	ClaimedAt *time.Time `gorm:"type:timestamptz"`
}

func (SettlementClaim) TableName() string {
	return "settlement_claims"
}
