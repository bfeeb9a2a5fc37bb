package models

import "gorm.io/gorm"

// MigrationRecord marks a named schema migration as applied.
type MigrationRecord struct {
	gorm.Model
	Name string `gorm:"uniqueIndex"`
}
