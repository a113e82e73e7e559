package models

import (
	"time"
)

// Market status lifecycle. The resolution subsystem owns the open -> resolving
// transition and records the winning outcome; the settlement pipeline owns the
// resolving -> resolved write.
const (
	MarketStatusOpen      = "open"
	MarketStatusResolving = "resolving"
	MarketStatusResolved  = "resolved"
)

type Market struct {
	ID             string     `gorm:"primaryKey;type:text"`
	Question       string     `gorm:"type:text;not null"`
	Status         string     `gorm:"type:varchar(20);not null;default:'open';index"`
	WinningOutcome *string    `gorm:"type:varchar(50)"`
	ResolvedAt     *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Market) TableName() string {
	return "markets"
}
