// Package dbtest opens migrated SQLite databases for package tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"gtin-api/internal/database/migrations"
	"gtin-api/internal/models"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns a migrated database backed by a file in t.TempDir(). The
// pool holds one connection so concurrent writers queue instead of failing
// with SQLITE_BUSY. Concurrent callers are therefore serialized: tests on
// top of it check that each statement is a self-contained upsert, not how
// two connections race on the insert.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db") + "?_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	log, _ := test.NewNullLogger()
	require.NoError(t, migrations.Run(db, log))
	return db
}

// CreateOrganization inserts an organization and one active key for it.
func CreateOrganization(t testing.TB, db *gorm.DB, plan models.Plan, key string) (*models.Organization, *models.APIKey) {
	t.Helper()

	org := &models.Organization{Name: "Org " + key, Plan: plan}
	require.NoError(t, db.Create(org).Error)

	apiKey := &models.APIKey{OrganizationID: org.ID, Name: "key " + key, Key: key, IsActive: true}
	require.NoError(t, db.Create(apiKey).Error)
	apiKey.Organization = *org
	return org, apiKey
}
