package api

import (
	"net/http"

	"gtin-api/internal/api/controllers"
	"gtin-api/internal/api/handlers"
	"gtin-api/internal/config"
	"gtin-api/internal/middleware"
	"gtin-api/internal/services"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Dependencies are the collaborators the router wires together.
type Dependencies struct {
	DB             *gorm.DB
	Store          controllers.Pinger
	Gatherer       prometheus.Gatherer
	RateLimiter    *middleware.RateLimiter
	APIKeyService  services.APIKeyService
	AuthService    services.AuthService
	ProductService services.ProductService
	QuotaService   services.QuotaService
	UsageMeter     services.UsageMeter
	Logger         logrus.FieldLogger
}

func chain(h http.HandlerFunc, mws ...mux.MiddlewareFunc) http.Handler {
	var handler http.Handler = h
	for i := len(mws) - 1; i >= 0; i-- {
		handler = mws[i](handler)
	}
	return handler
}

func SetupRoutes(deps Dependencies) *mux.Router {
	productHandler := handlers.NewProductHandler(deps.ProductService, deps.QuotaService, deps.UsageMeter, deps.Logger)
	usageHandler := handlers.NewUsageHandler(deps.UsageMeter, deps.APIKeyService, deps.Logger)
	apiKeyHandler := handlers.NewAPIKeyHandler(deps.APIKeyService, deps.Logger)
	usage := middleware.NewUsageRecorder(deps.UsageMeter)
	rl := deps.RateLimiter

	router := mux.NewRouter()
	router.Use(middleware.LoggingMiddleware(deps.Logger))

	router.HandleFunc("/health", controllers.HealthCheckHandler(deps.DB, deps.Store)).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	// Anonymous lookups, limited per client IP
	router.Handle("/v1/public/gtins/{gtin}",
		chain(productHandler.GetPublicProduct, rl.Limit(config.PublicClass)),
	).Methods(http.MethodGet)

	// Product routes (API key)
	gtins := router.PathPrefix("/v1/gtins").Subrouter()
	gtins.Use(middleware.APIKeyMiddleware(deps.APIKeyService, deps.Logger))

	gtins.Handle("/search",
		chain(productHandler.SearchProducts, rl.Limit(config.SearchClass), usage.Record),
	).Methods(http.MethodGet)
	gtins.Handle("/batch",
		chain(productHandler.BatchLookup, rl.Limit(config.LookupClass)),
	).Methods(http.MethodPost)
	gtins.Handle("/batch",
		chain(productHandler.BatchLookupQuery, rl.Limit(config.LookupClass)),
	).Methods(http.MethodGet)
	gtins.Handle("/{gtin}",
		chain(productHandler.GetProduct,
			rl.Limit(config.LookupClass),
			middleware.PlanQuotaMiddleware(deps.QuotaService),
			usage.Record,
		),
	).Methods(http.MethodGet)

	// Dashboard metrics (JWT)
	metrics := router.PathPrefix("/v1/metrics").Subrouter()
	metrics.Use(middleware.AuthMiddleware(deps.AuthService))
	metrics.HandleFunc("/summary", usageHandler.GetSummary).Methods(http.MethodGet)
	metrics.HandleFunc("/daily", usageHandler.GetDailySeries).Methods(http.MethodGet)
	metrics.HandleFunc("/monthly", usageHandler.GetMonthlySeries).Methods(http.MethodGet)
	metrics.HandleFunc("/api-keys/{id:[0-9]+}", usageHandler.GetAPIKeySeries).Methods(http.MethodGet)

	// Dashboard lookups (JWT), billed to the organization's first active key
	dashboard := router.PathPrefix("/v1/dashboard").Subrouter()
	dashboard.Use(middleware.AuthMiddleware(deps.AuthService))
	dashboard.Handle("/gtins/{gtin}",
		chain(productHandler.GetProduct,
			middleware.OrganizationCallerMiddleware(deps.APIKeyService, deps.Logger),
			usage.Record,
		),
	).Methods(http.MethodGet)

	router.Handle("/v1/api-keys",
		chain(apiKeyHandler.CreateAPIKey, middleware.AuthMiddleware(deps.AuthService)),
	).Methods(http.MethodPost)

	return router
}
