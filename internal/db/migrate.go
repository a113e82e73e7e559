package db

import (
	"settlement/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Market{},
		&models.Position{},
		&models.SettlementClaim{},
		&models.SettlementEscalation{},
		&models.SettlementRun{},
	)
}
