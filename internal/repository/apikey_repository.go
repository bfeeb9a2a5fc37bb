package repository

import (
	"context"
	stderrors "errors"
	"time"

	"gtin-api/internal/models"
	"gtin-api/internal/pkg/errors"

	"gorm.io/gorm"
)

type APIKeyRepository interface {
	Create(ctx context.Context, apiKey *models.APIKey) error
	GetByKey(ctx context.Context, key string) (*models.APIKey, error)
	GetForOrganization(ctx context.Context, id, organizationID uint) (*models.APIKey, error)
	FirstActiveForOrganization(ctx context.Context, organizationID uint) (*models.APIKey, error)
	TouchLastUsed(ctx context.Context, id uint, at time.Time) error
}

type apiKeyRepository struct {
	db *gorm.DB
}

func NewAPIKeyRepository(db *gorm.DB) APIKeyRepository {
	return &apiKeyRepository{db: db}
}

func (r *apiKeyRepository) Create(ctx context.Context, apiKey *models.APIKey) error {
	result := r.db.WithContext(ctx).Create(apiKey)
	if result.Error != nil {
		return errors.Database(result.Error, "failed to create API key")
	}
	return nil
}

// GetByKey returns an active key together with its organization.
func (r *apiKeyRepository) GetByKey(ctx context.Context, key string) (*models.APIKey, error) {
	var apiKey models.APIKey
	result := r.db.WithContext(ctx).
		Preload("Organization").
		First(&apiKey, "key = ? AND is_active = ?", key, true)

	if result.Error != nil {
		if stderrors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, errors.ErrNotFound
		}
		return nil, errors.Database(result.Error, "failed to get API key by key")
	}

	return &apiKey, nil
}

func (r *apiKeyRepository) GetForOrganization(ctx context.Context, id, organizationID uint) (*models.APIKey, error) {
	var apiKey models.APIKey
	result := r.db.WithContext(ctx).
		First(&apiKey, "id = ? AND organization_id = ?", id, organizationID)

	if result.Error != nil {
		if stderrors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, errors.ErrNotFound
		}
		return nil, errors.Database(result.Error, "failed to get API key")
	}

	return &apiKey, nil
}

// FirstActiveForOrganization returns the organization's oldest active key
// together with the organization.
func (r *apiKeyRepository) FirstActiveForOrganization(ctx context.Context, organizationID uint) (*models.APIKey, error) {
	var apiKey models.APIKey
	result := r.db.WithContext(ctx).
		Preload("Organization").
		Where("organization_id = ? AND is_active = ?", organizationID, true).
		Order("id").
		First(&apiKey)

	if result.Error != nil {
		if stderrors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, errors.ErrNotFound
		}
		return nil, errors.Database(result.Error, "failed to get organization API key")
	}

	return &apiKey, nil
}

func (r *apiKeyRepository) TouchLastUsed(ctx context.Context, id uint, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.APIKey{}).
		Where("id = ?", id).
		Update("last_used_at", at)

	if result.Error != nil {
		return errors.Database(result.Error, "failed to update API key last use")
	}
	if result.RowsAffected == 0 {
		return errors.ErrNotFound
	}
	return nil
}
