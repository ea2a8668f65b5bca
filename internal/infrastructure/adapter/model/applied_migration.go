package model

import (
	"time"
)

// AppliedMigrationTableName is the per-schema tracking table name.
const AppliedMigrationTableName = "schema_migrations"

// AppliedMigration is one row of a tenant schema's tracking table. Presence
// of a filename means the file was fully applied; there is no in-progress
// state.
type AppliedMigration struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Filename  string    `gorm:"type:text;not null;uniqueIndex"`
	AppliedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}
