package models

import (
	"time"
)

const DefaultAPIKeyName = "New key"

type APIKey struct {
	ID             uint         `gorm:"primaryKey" json:"id"`
	OrganizationID uint         `gorm:"not null;index" json:"organization_id"`
	Name           string       `gorm:"type:varchar(100);default:'New key'" json:"name"`
	Key            string       `gorm:"type:varchar(64);uniqueIndex;not null" json:"-"`
	IsActive       bool         `gorm:"not null;default:true" json:"is_active"`
	LastUsedAt     *time.Time   `json:"last_used_at,omitempty"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	Organization   Organization `gorm:"foreignKey:OrganizationID" json:"-"`
}

func (APIKey) TableName() string {
	return "api_keys"
}

// MaskedKey shows enough of the key to recognize it without revealing it.
func (k APIKey) MaskedKey() string {
	if len(k.Key) <= 16 {
		return k.Key[:min(4, len(k.Key))] + "..."
	}
	return k.Key[:12] + "..." + k.Key[len(k.Key)-4:]
}
