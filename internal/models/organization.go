package models

import (
	"strings"
	"time"
)

type Plan string

const (
	BasicPlan    Plan = "basic"
	StarterPlan  Plan = "starter"
	ProPlan      Plan = "pro"
	AdvancedPlan Plan = "advanced"
)

// NormalizePlan lowercases and trims a stored plan name.
func NormalizePlan(p string) Plan {
	return Plan(strings.ToLower(strings.TrimSpace(p)))
}

// Organization is the tenant: every API key belongs to one, and the plan
// decides its limits.
type Organization struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	Plan      Plan      `gorm:"type:varchar(50);not null;default:starter" json:"plan"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Organization) TableName() string {
	return "organizations"
}
