package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"gtin-api/internal/api/response"
	"gtin-api/internal/config"
	"gtin-api/internal/metrics"
	"gtin-api/internal/models"
	apperrors "gtin-api/internal/pkg/errors"
	"gtin-api/internal/ratelimit"
	"gtin-api/internal/services"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type RateLimiter struct {
	gate              *ratelimit.Gate
	limits            *config.RateLimitConfig
	logger            logrus.FieldLogger
	metrics           *metrics.Metrics
	trustForwardedFor bool
}

func NewRateLimiter(gate *ratelimit.Gate, limits *config.RateLimitConfig, logger logrus.FieldLogger, m *metrics.Metrics, trustForwardedFor bool) *RateLimiter {
	return &RateLimiter{
		gate:              gate,
		limits:            limits,
		logger:            logger,
		metrics:           m,
		trustForwardedFor: trustForwardedFor,
	}
}

// Limit admits requests of class through the shared gate. Tenant-scoped
// classes need an authenticated caller in the context.
func (rl *RateLimiter) Limit(class config.EndpointClass) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, hasCaller := services.CallerFromContext(r.Context())

			var plan models.Plan
			if hasCaller {
				plan = caller.Plan
			}
			params, err := rl.limits.Resolve(plan, class)
			if err != nil {
				rl.metrics.PolicyFallback()
				rl.logger.WithError(err).WithFields(logrus.Fields{
					"class": class,
					"plan":  plan,
				}).Warn("Rate limit policy misconfigured, applying strictest policy")
			}

			var scopeID string
			switch params.Scope {
			case config.ScopeIP:
				scopeID = ClientIP(r, rl.trustForwardedFor)
			default:
				if !hasCaller {
					response.Error(w, http.StatusUnauthorized, "API key is required")
					return
				}
				scopeID = strconv.FormatUint(uint64(caller.OrganizationID), 10)
			}

			d := rl.gate.Admit(r.Context(), params, scopeID)
			if denied, ok := apperrors.IsAdmissionDenied(d.Err()); ok {
				rl.logger.WithFields(logrus.Fields{
					"key":         d.Key.String(),
					"class":       class,
					"scope":       params.Scope,
					"retry_after": d.RetryAfter,
				}).Info("Request rate limited")
				response.Denied(w, denied)
				return
			}

			response.RateHeaders(w, d.Limit, d.Remaining)
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP is the first X-Forwarded-For hop when the proxy is trusted, the
// connection's peer address otherwise.
func ClientIP(r *http.Request, trustForwardedFor bool) string {
	if trustForwardedFor {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if r.RemoteAddr == "" {
			return "unknown"
		}
		return r.RemoteAddr
	}
	return host
}
