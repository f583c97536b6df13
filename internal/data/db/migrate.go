package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/fleetmdm-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(types.Models()...)
}

// EnsureIndexes adds indexes GORM tags cannot express portably.
func EnsureIndexes(db *gorm.DB) error {
	// Pending-command lookups walk one device's queued commands in issuance order.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_command_device_status_id
		ON command (device_id, status, id);
	`).Error; err != nil {
		return fmt.Errorf("create idx_command_device_status_id: %w", err)
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_group_profile_group
		ON group_profile (group_id);
	`).Error; err != nil {
		return fmt.Errorf("create idx_group_profile_group: %w", err)
	}
	return nil
}

func (s *DatabaseService) AutoMigrateAll() error {
	s.log.Info("Auto migrating tables...", "driver", s.driver)
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if err := EnsureIndexes(s.db); err != nil {
		s.log.Error("Index migration failed", "error", err)
		return err
	}
	return nil
}
