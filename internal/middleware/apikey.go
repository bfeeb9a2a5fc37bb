package middleware

import (
	"errors"
	"net/http"
	"strings"

	"gtin-api/internal/api/response"
	apperrors "gtin-api/internal/pkg/errors"
	"gtin-api/internal/services"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// APIKeyMiddleware authenticates the API key sent in X-API-Key or as a
// bearer token and stores the resolved caller in the request context.
func APIKeyMiddleware(apiKeyService services.APIKeyService, logger logrus.FieldLogger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractAPIKey(r)
			if key == "" {
				response.Error(w, http.StatusUnauthorized, "API key is required")
				return
			}

			caller, err := apiKeyService.Authenticate(r.Context(), key)
			if errors.Is(err, apperrors.ErrInvalidCredentials) {
				response.Error(w, http.StatusUnauthorized, "Invalid API key")
				return
			}
			if err != nil {
				logger.WithError(err).Error("API key lookup failed")
				response.Error(w, http.StatusInternalServerError, "Internal server error")
				return
			}

			next.ServeHTTP(w, r.WithContext(services.WithCaller(r.Context(), caller)))
		})
	}
}

func extractAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	return extractBearerToken(r)
}

func extractBearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
