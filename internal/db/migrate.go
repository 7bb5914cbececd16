package db

import (
	"fmt"

	"github.com/zulandar/racetiming/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Organization{},
		&models.Event{},
		&models.Session{},
		&models.SessionResult{},
		&models.CarLapLog{},
		&models.CarLastLap{},
		&models.FlagLog{},
		&models.RelayLog{},
		&models.OpsAlert{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// UpsertOrganization creates or updates an Organization row keyed by
// ShortName, used by operator tooling to provision a new sanctioning body
// without hand-writing SQL.
func UpsertOrganization(db *gorm.DB, org *models.Organization) error {
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "short_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"control_log_type"}),
	}).Create(org)
	if result.Error != nil {
		return fmt.Errorf("db: upsert organization %q: %w", org.ShortName, result.Error)
	}
	return nil
}
