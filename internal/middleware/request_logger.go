package middleware

import (
	"net/http"

	"gtin-api/internal/services"
)

// UsageRecorder meters every request of an authenticated caller once the
// handler has answered. Metering never changes the response.
type UsageRecorder struct {
	meter services.UsageMeter
}

func NewUsageRecorder(meter services.UsageMeter) *UsageRecorder {
	return &UsageRecorder{meter: meter}
}

func (u *UsageRecorder) Record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := services.CallerFromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		rw := newStatusRecorder(w)
		next.ServeHTTP(rw, r)

		u.meter.RecordRequest(r.Context(), caller.APIKeyID, caller.OrganizationID, rw.status)
	})
}
