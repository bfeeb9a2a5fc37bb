package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"gtin-api/internal/models"
	apperrors "gtin-api/internal/pkg/errors"
	"gtin-api/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Caller is the authenticated credential of an API request. It is resolved
// once at the HTTP boundary and passed down explicitly from there.
type Caller struct {
	APIKeyID       uint
	OrganizationID uint
	Plan           models.Plan
}

type APIKeyService interface {
	GenerateAPIKey() string
	CreateAPIKey(ctx context.Context, organizationID uint, name string) (*models.APIKey, error)
	Authenticate(ctx context.Context, key string) (*Caller, error)
	GetForOrganization(ctx context.Context, id, organizationID uint) (*models.APIKey, error)
	CallerForOrganization(ctx context.Context, organizationID uint) (*Caller, error)
}

type apiKeyService struct {
	apiKeyRepo repository.APIKeyRepository
	logger     logrus.FieldLogger
}

func NewAPIKeyService(apiKeyRepo repository.APIKeyRepository, logger logrus.FieldLogger) APIKeyService {
	return &apiKeyService{
		apiKeyRepo: apiKeyRepo,
		logger:     logger,
	}
}

func (s *apiKeyService) GenerateAPIKey() string {
	return "gtin_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (s *apiKeyService) CreateAPIKey(ctx context.Context, organizationID uint, name string) (*models.APIKey, error) {
	if name = strings.TrimSpace(name); name == "" {
		name = models.DefaultAPIKeyName
	}
	if len(name) > 100 {
		return nil, fmt.Errorf("%w: name must have at most 100 characters", apperrors.ErrInvalidInput)
	}

	apiKey := &models.APIKey{
		OrganizationID: organizationID,
		Name:           name,
		Key:            s.GenerateAPIKey(),
		IsActive:       true,
		CreatedAt:      time.Now(),
	}

	if err := s.apiKeyRepo.Create(ctx, apiKey); err != nil {
		return nil, err
	}
	return apiKey, nil
}

// Authenticate resolves an active key to its caller and records its use.
func (s *apiKeyService) Authenticate(ctx context.Context, key string) (*Caller, error) {
	if key == "" {
		return nil, apperrors.ErrInvalidCredentials
	}

	apiKey, err := s.apiKeyRepo.GetByKey(ctx, key)
	if stderrors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := s.apiKeyRepo.TouchLastUsed(context.WithoutCancel(ctx), apiKey.ID, time.Now()); err != nil {
		s.logger.WithError(err).WithField("api_key_id", apiKey.ID).Warn("Failed to update API key last use")
	}

	return &Caller{
		APIKeyID:       apiKey.ID,
		OrganizationID: apiKey.OrganizationID,
		Plan:           apiKey.Organization.Plan,
	}, nil
}

func (s *apiKeyService) GetForOrganization(ctx context.Context, id, organizationID uint) (*models.APIKey, error) {
	return s.apiKeyRepo.GetForOrganization(ctx, id, organizationID)
}

// CallerForOrganization stands in for an API key on dashboard requests: usage
// is billed to the organization's first active key. ErrNotFound means the
// organization has no active key.
func (s *apiKeyService) CallerForOrganization(ctx context.Context, organizationID uint) (*Caller, error) {
	apiKey, err := s.apiKeyRepo.FirstActiveForOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	return &Caller{
		APIKeyID:       apiKey.ID,
		OrganizationID: apiKey.OrganizationID,
		Plan:           apiKey.Organization.Plan,
	}, nil
}
