package models

import (
	"time"
)

const (
	EscalationStatusOpen     = "open"
	EscalationStatusResolved = "resolved"
)

// SettlementEscalation is a manual-review record filed when confirmation
// tracking finds a market still unresolved after the wait window. The unique
// market_id index keeps retried pipelines from filing duplicates.
type SettlementEscalation struct {
	ID       uint64  `gorm:"primaryKey;autoIncrement"`
	MarketID string  `gorm:"type:varchar(100);not null;uniqueIndex"`
	BatchID  *string `gorm:"type:varchar(100)"`

	Reason string `gorm:"type:text;not null"`
	Status string `gorm:"type:varchar(20);not null;default:'open';index"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (SettlementEscalation) TableName() string {
	return "settlement_escalations"
}
