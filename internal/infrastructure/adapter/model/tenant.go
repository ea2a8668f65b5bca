package model

import (
	"time"
)

// Tenant is the registry row mapping an external identity and slug to a
// physical schema name. Lives in the shared registry namespace; one row per
// tenant.
type Tenant struct {
	Identity   string    `gorm:"column:identity;primaryKey;type:varchar(64)"`
	Name       string    `gorm:"type:varchar(255);not null"`
	Slug       string    `gorm:"type:varchar(64);not null;uniqueIndex"`
	SchemaName string    `gorm:"type:varchar(72);not null;uniqueIndex"`
	Active     bool      `gorm:"not null;default:true"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the tenant registry model
func (Tenant) TableName() string {
	return "tenants"
}
