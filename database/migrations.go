package database

import (
	"gorm.io/gorm"

	"github.com/0xkonka/CDP-backend/models"
)

// Migrate creates or updates the schema for every collection this service
// owns: invite codes, the ledger (points plus its two event tables), the
// reconciliation checkpoint and the mini-app tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.InviteCode{},
		&models.Point{},
		&models.XPEvent{},
		&models.ReferralEvent{},
		&models.PointStat{},
		&models.TelegramUser{},
		&models.TelegramReferral{},
	)
}
