package middleware

import (
	"errors"
	"net/http"

	"gtin-api/internal/api/response"
	apperrors "gtin-api/internal/pkg/errors"
	"gtin-api/internal/services"

	"github.com/sirupsen/logrus"
)

// AuthMiddleware guards the dashboard routes with a bearer JWT and stores
// the token's organization in the request context.
func AuthMiddleware(authService services.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractBearerToken(r)
			if tokenString == "" {
				response.Error(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			orgID, err := authService.VerifyToken(tokenString)
			if err != nil {
				response.Error(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			ctx := services.WithOrganizationID(r.Context(), orgID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OrganizationCallerMiddleware follows AuthMiddleware on dashboard routes
// that are metered. It resolves the organization's first active key as the
// caller; without one the request is served unmetered.
func OrganizationCallerMiddleware(apiKeyService services.APIKeyService, logger logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			orgID, ok := services.OrganizationIDFromContext(r.Context())
			if !ok {
				response.Error(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			caller, err := apiKeyService.CallerForOrganization(r.Context(), orgID)
			if err != nil {
				if !errors.Is(err, apperrors.ErrNotFound) {
					logger.WithError(err).WithField("organization_id", orgID).
						Warn("Failed to resolve organization API key, serving unmetered")
				}
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(services.WithCaller(r.Context(), caller)))
		})
	}
}
