package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is a snapshot of a user's holdings at the time trading closed.
// The trading ledger owns these rows; the pipeline only reads them during
// redemption activation.
type Position struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	UserID   string `gorm:"type:varchar(100);not null;index"`
	MarketID string `gorm:"type:varchar(100);not null;index"`
	Outcome  string `gorm:"type:varchar(50);not null"`

	Quantity        decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	OptInAutoSettle bool            `gorm:"not null;default:false"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (Position) TableName() string {
	return "positions"
}
