package middleware

import (
	"net/http"

	"gtin-api/internal/api/response"
	apperrors "gtin-api/internal/pkg/errors"
	"gtin-api/internal/services"

	"github.com/gorilla/mux"
)

// PlanQuotaMiddleware counts each request as one unit of the caller's
// plan quota. Batch lookups check their own unit count instead.
func PlanQuotaMiddleware(quotaService services.QuotaService) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := services.CallerFromContext(r.Context())
			if !ok {
				response.Error(w, http.StatusUnauthorized, "API key is required")
				return
			}

			err := quotaService.CheckPlanQuota(r.Context(), caller.OrganizationID, caller.Plan, 1)
			if denied, ok := apperrors.IsAdmissionDenied(err); ok {
				response.Denied(w, denied)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
