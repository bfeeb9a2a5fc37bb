package migrations

import (
	"errors"
	"fmt"

	"gtin-api/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type Migration struct {
	Name string
	Run  func(*gorm.DB) error
}

// DevAPIKey is the fixed key created by SeedDevelopment. Never seed it in
// production.
const DevAPIKey = "dev_test_key_12345678901234567890123456789012"

func GetMigrations() []Migration {
	return []Migration{
		{
			Name: "CreateTenantTables",
			Run: func(db *gorm.DB) error {
				return db.AutoMigrate(&models.Organization{}, &models.APIKey{})
			},
		},
		{
			Name: "CreateProductsTable",
			Run: func(db *gorm.DB) error {
				return db.AutoMigrate(&models.Product{})
			},
		},
		{
			Name: "CreateUsageTables",
			Run: func(db *gorm.DB) error {
				return db.AutoMigrate(&models.APIKeyUsageDaily{}, &models.OrganizationUsageMonthly{})
			},
		},
	}
}

// Run applies every migration not yet recorded, each in its own transaction.
func Run(db *gorm.DB, logger logrus.FieldLogger) error {
	if err := db.AutoMigrate(&models.MigrationRecord{}); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, migration := range GetMigrations() {
		var record models.MigrationRecord
		result := db.Where("name = ?", migration.Name).First(&record)

		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			logger.WithField("migration", migration.Name).Info("Running migration")

			err := db.Transaction(func(tx *gorm.DB) error {
				if err := migration.Run(tx); err != nil {
					return err
				}
				return tx.Create(&models.MigrationRecord{Name: migration.Name}).Error
			})
			if err != nil {
				return fmt.Errorf("migration '%s' failed: %w", migration.Name, err)
			}
		} else if result.Error != nil {
			return fmt.Errorf("failed to check migration status: %w", result.Error)
		}
	}

	return nil
}

// SeedDevelopment creates a starter-plan organization and an active API key
// for local use. It is idempotent.
func SeedDevelopment(db *gorm.DB, logger logrus.FieldLogger) (*models.APIKey, error) {
	org := models.Organization{Name: "Dev Organization", Plan: models.StarterPlan}
	if err := db.Where(models.Organization{Name: org.Name}).FirstOrCreate(&org).Error; err != nil {
		return nil, fmt.Errorf("failed to seed organization: %w", err)
	}

	key := models.APIKey{OrganizationID: org.ID, Name: "Development", Key: DevAPIKey, IsActive: true}
	if err := db.Where(models.APIKey{Key: DevAPIKey}).FirstOrCreate(&key).Error; err != nil {
		return nil, fmt.Errorf("failed to seed API key: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"organization_id": org.ID,
		"api_key":         DevAPIKey[:16] + "...",
	}).Info("Development data seeded")
	return &key, nil
}
