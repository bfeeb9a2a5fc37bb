package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"gtin-api/internal/api/response"
	apperrors "gtin-api/internal/pkg/errors"
	"gtin-api/internal/services"

	"github.com/sirupsen/logrus"
)

type APIKeyHandler struct {
	apiKeyService services.APIKeyService
	logger        logrus.FieldLogger
}

func NewAPIKeyHandler(apiKeyService services.APIKeyService, logger logrus.FieldLogger) *APIKeyHandler {
	return &APIKeyHandler{
		apiKeyService: apiKeyService,
		logger:        logger,
	}
}

type CreateAPIKeyRequest struct {
	Name string `json:"name"`
}

// CreatedAPIKeyResponse is the only answer that carries the full key.
type CreatedAPIKeyResponse struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	Key       string    `json:"key"`
	MaskedKey string    `json:"masked_key"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateAPIKey answers POST /v1/api-keys for the token's organization. The
// body is optional.
func (h *APIKeyHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	orgID, ok := services.OrganizationIDFromContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req CreateAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	apiKey, err := h.apiKeyService.CreateAPIKey(r.Context(), orgID, req.Name)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidInput) {
			response.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.WithError(err).WithField("organization_id", orgID).Error("Failed to create API key")
		response.Error(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.logger.WithFields(logrus.Fields{
		"organization_id": orgID,
		"api_key_id":      apiKey.ID,
	}).Info("API key created")

	response.JSON(w, http.StatusCreated, CreatedAPIKeyResponse{
		ID:        apiKey.ID,
		Name:      apiKey.Name,
		Key:       apiKey.Key,
		MaskedKey: apiKey.MaskedKey(),
		Status:    "active",
		CreatedAt: apiKey.CreatedAt,
	})
}
