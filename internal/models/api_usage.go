package models

import (
	"time"
)

// APIKeyUsageDaily holds one row per credential per reference-zone day.
type APIKeyUsageDaily struct {
	APIKeyID     uint      `gorm:"primaryKey;autoIncrement:false" json:"api_key_id"`
	UsageDate    time.Time `gorm:"primaryKey;type:date" json:"usage_date"`
	SuccessCount int64     `gorm:"not null;default:0" json:"success_count"`
	ErrorCount   int64     `gorm:"not null;default:0" json:"error_count"`
}

func (APIKeyUsageDaily) TableName() string {
	return "api_key_usage_daily"
}

// OrganizationUsageMonthly holds one row per tenant per reference-zone
// month; UsageMonth is the first day of the month.
type OrganizationUsageMonthly struct {
	OrganizationID uint      `gorm:"primaryKey;autoIncrement:false" json:"organization_id"`
	UsageMonth     time.Time `gorm:"primaryKey;type:date" json:"usage_month"`
	SuccessCount   int64     `gorm:"not null;default:0" json:"success_count"`
	ErrorCount     int64     `gorm:"not null;default:0" json:"error_count"`
}

func (OrganizationUsageMonthly) TableName() string {
	return "organization_usage_monthly"
}

// UsageCounts is a row-independent projection used by aggregate reads.
type UsageCounts struct {
	Period       time.Time
	SuccessCount int64
	ErrorCount   int64
}

// APIKeyUsageTotals is one line of the per-key usage summary.
type APIKeyUsageTotals struct {
	APIKeyID     uint   `json:"api_key_id"`
	APIKeyName   string `json:"api_key_name"`
	TotalSuccess int64  `json:"total_success"`
	TotalError   int64  `json:"total_error"`
	TotalCalls   int64  `json:"total_calls"`
}
