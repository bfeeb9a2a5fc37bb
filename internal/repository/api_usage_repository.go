package repository

import (
	"context"
	"time"

	"gtin-api/internal/models"
	"gtin-api/internal/pkg/errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// APIUsageRepository persists usage counters. Period arguments are the
// UTC-midnight keys produced by the calendar package.
type APIUsageRepository interface {
	UpsertDaily(ctx context.Context, apiKeyID uint, day time.Time, success, failed int64) error
	UpsertMonthly(ctx context.Context, organizationID uint, month time.Time, success, failed int64) error
	DailyRange(ctx context.Context, apiKeyID uint, from, to time.Time) ([]models.UsageCounts, error)
	MonthlyRange(ctx context.Context, organizationID uint, from, to time.Time) ([]models.UsageCounts, error)
	OrganizationDailyRange(ctx context.Context, organizationID uint, from, to time.Time) ([]models.UsageCounts, error)
	SummaryByKey(ctx context.Context, organizationID uint, from, to time.Time) ([]models.APIKeyUsageTotals, error)
	OrganizationDayTotal(ctx context.Context, organizationID uint, day time.Time) (int64, error)
	OrganizationMonthTotal(ctx context.Context, organizationID uint, month time.Time) (int64, error)
}

type apiUsageRepository struct {
	db *gorm.DB
}

func NewAPIUsageRepository(db *gorm.DB) APIUsageRepository {
	return &apiUsageRepository{db: db}
}

func increments(table string, success, failed int64) clause.Set {
	return clause.Assignments(map[string]interface{}{
		"success_count": gorm.Expr(table+".success_count + ?", success),
		"error_count":   gorm.Expr(table+".error_count + ?", failed),
	})
}

func (r *apiUsageRepository) UpsertDaily(ctx context.Context, apiKeyID uint, day time.Time, success, failed int64) error {
	row := models.APIKeyUsageDaily{
		APIKeyID:     apiKeyID,
		UsageDate:    day,
		SuccessCount: success,
		ErrorCount:   failed,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "api_key_id"}, {Name: "usage_date"}},
		DoUpdates: increments("api_key_usage_daily", success, failed),
	}).Create(&row).Error
	if err != nil {
		return errors.Database(err, "failed to upsert daily usage")
	}
	return nil
}

func (r *apiUsageRepository) UpsertMonthly(ctx context.Context, organizationID uint, month time.Time, success, failed int64) error {
	row := models.OrganizationUsageMonthly{
		OrganizationID: organizationID,
		UsageMonth:     month,
		SuccessCount:   success,
		ErrorCount:     failed,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "organization_id"}, {Name: "usage_month"}},
		DoUpdates: increments("organization_usage_monthly", success, failed),
	}).Create(&row).Error
	if err != nil {
		return errors.Database(err, "failed to upsert monthly usage")
	}
	return nil
}

func (r *apiUsageRepository) DailyRange(ctx context.Context, apiKeyID uint, from, to time.Time) ([]models.UsageCounts, error) {
	var rows []models.UsageCounts
	err := r.db.WithContext(ctx).Model(&models.APIKeyUsageDaily{}).
		Select("usage_date AS period, success_count, error_count").
		Where("api_key_id = ? AND usage_date BETWEEN ? AND ?", apiKeyID, from, to).
		Order("usage_date").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Database(err, "failed to read daily usage")
	}
	return rows, nil
}

func (r *apiUsageRepository) MonthlyRange(ctx context.Context, organizationID uint, from, to time.Time) ([]models.UsageCounts, error) {
	var rows []models.UsageCounts
	err := r.db.WithContext(ctx).Model(&models.OrganizationUsageMonthly{}).
		Select("usage_month AS period, success_count, error_count").
		Where("organization_id = ? AND usage_month BETWEEN ? AND ?", organizationID, from, to).
		Order("usage_month").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Database(err, "failed to read monthly usage")
	}
	return rows, nil
}

// OrganizationDailyRange sums the daily rows of every key the organization owns.
func (r *apiUsageRepository) OrganizationDailyRange(ctx context.Context, organizationID uint, from, to time.Time) ([]models.UsageCounts, error) {
	var rows []models.UsageCounts
	err := r.db.WithContext(ctx).Table("api_key_usage_daily AS u").
		Select("u.usage_date AS period, SUM(u.success_count) AS success_count, SUM(u.error_count) AS error_count").
		Joins("JOIN api_keys k ON k.id = u.api_key_id").
		Where("k.organization_id = ? AND u.usage_date BETWEEN ? AND ?", organizationID, from, to).
		Group("u.usage_date").
		Order("u.usage_date").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Database(err, "failed to read organization daily usage")
	}
	return rows, nil
}

// SummaryByKey returns one line per key of the organization, including keys
// with no usage in the range.
func (r *apiUsageRepository) SummaryByKey(ctx context.Context, organizationID uint, from, to time.Time) ([]models.APIKeyUsageTotals, error) {
	var rows []models.APIKeyUsageTotals
	err := r.db.WithContext(ctx).Table("api_keys AS k").
		Select("k.id AS api_key_id, k.name AS api_key_name, "+
			"COALESCE(SUM(u.success_count), 0) AS total_success, "+
			"COALESCE(SUM(u.error_count), 0) AS total_error").
		Joins("LEFT JOIN api_key_usage_daily u ON u.api_key_id = k.id AND u.usage_date BETWEEN ? AND ?", from, to).
		Where("k.organization_id = ?", organizationID).
		Group("k.id, k.name").
		Order("k.id").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Database(err, "failed to summarize usage by key")
	}
	for i := range rows {
		rows[i].TotalCalls = rows[i].TotalSuccess + rows[i].TotalError
	}
	return rows, nil
}

func (r *apiUsageRepository) OrganizationDayTotal(ctx context.Context, organizationID uint, day time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Table("api_key_usage_daily AS u").
		Select("COALESCE(SUM(u.success_count + u.error_count), 0)").
		Joins("JOIN api_keys k ON k.id = u.api_key_id").
		Where("k.organization_id = ? AND u.usage_date = ?", organizationID, day).
		Scan(&total).Error
	if err != nil {
		return 0, errors.Database(err, "failed to read organization daily total")
	}
	return total, nil
}

func (r *apiUsageRepository) OrganizationMonthTotal(ctx context.Context, organizationID uint, month time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.OrganizationUsageMonthly{}).
		Select("COALESCE(SUM(success_count + error_count), 0)").
		Where("organization_id = ? AND usage_month = ?", organizationID, month).
		Scan(&total).Error
	if err != nil {
		return 0, errors.Database(err, "failed to read organization monthly total")
	}
	return total, nil
}
