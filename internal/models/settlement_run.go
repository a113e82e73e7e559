package models

import (
	"time"

	"gorm.io/datatypes"
)

// SettlementRun is the audit trail: one row per ExecuteSettlement invocation,
// success or failure, with the per-stage telemetry as jsonb.
type SettlementRun struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	MarketID string `gorm:"type:varchar(100);not null;index"`

	Trigger        string `gorm:"type:varchar(30);not null"`
	WinningOutcome string `gorm:"type:varchar(50);not null"`
	Success        bool   `gorm:"not null;index"`

	BatchID *string        `gorm:"type:varchar(100)"`
	Stages  datatypes.JSON `gorm:"type:jsonb;not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (SettlementRun) TableName() string {
	return "settlement_runs"
}
