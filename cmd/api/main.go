package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gtin-api/internal/api"
	"gtin-api/internal/config"
	"gtin-api/internal/database"
	"gtin-api/internal/logger"
	"gtin-api/internal/metrics"
	"gtin-api/internal/middleware"
	"gtin-api/internal/pkg/calendar"
	"gtin-api/internal/ratelimit"
	"gtin-api/internal/repository"
	"gtin-api/internal/services"
	"gtin-api/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

func main() {
	log := logger.Logger

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	if err := logger.Setup(cfg.Log); err != nil {
		log.WithError(err).Fatal("Failed to set up logging")
	}

	zone, err := calendar.LoadZone(cfg.ReferenceTimezone)
	if err != nil {
		log.WithError(err).WithField("timezone", cfg.ReferenceTimezone).Fatal("Invalid reference timezone")
	}

	// Initialize database connection
	db, err := database.InitDB(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer database.Close(db)

	m, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		log.WithError(err).Fatal("Failed to register metrics")
	}

	// Shared store; connects on first use
	redisStore := store.NewRedisStore(cfg.Redis, log.WithField("component", "store"))
	defer redisStore.Close()
	log.WithFields(logrus.Fields{
		"enabled": cfg.Redis.Enabled,
		"addr":    cfg.Redis.Redacted(),
	}).Info("Shared store configured")

	// Initialize repositories
	apiKeyRepo := repository.NewAPIKeyRepository(db)
	productRepo := repository.NewProductRepository(db)
	usageRepo := repository.NewAPIUsageRepository(db)

	// Initialize services
	gate := ratelimit.NewGate(redisStore, zone, log.WithField("component", "ratelimit"), ratelimit.WithMetrics(m))
	meter := services.NewUsageMeter(usageRepo, zone, cfg.MeterTimeout, log.WithField("component", "usage"), services.WithMeterMetrics(m))
	quotaService := services.NewQuotaService(usageRepo, cfg.RateLimits, zone, log.WithField("component", "quota"), m)
	apiKeyService := services.NewAPIKeyService(apiKeyRepo, log)
	authService := services.NewAuthService(cfg.JWTSecret)
	productService := services.NewProductService(productRepo)

	rateLimiter := middleware.NewRateLimiter(gate, cfg.RateLimits, log, m, cfg.TrustForwardedFor)

	router := api.SetupRoutes(api.Dependencies{
		DB:             db,
		Store:          redisStore,
		Gatherer:       prometheus.DefaultGatherer,
		RateLimiter:    rateLimiter,
		APIKeyService:  apiKeyService,
		AuthService:    authService,
		ProductService: productService,
		QuotaService:   quotaService,
		UsageMeter:     meter,
		Logger:         log,
	})

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-API-Key",
		},
		ExposedHeaders: []string{
			"Retry-After",
			"X-RateLimit-Limit",
			"X-RateLimit-Remaining",
		},
		AllowCredentials: true,
		MaxAge:           300,
	})

	// Create server with timeouts
	srv := &http.Server{
		Handler:      corsMiddleware.Handler(router),
		Addr:         ":" + cfg.Port,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.LogEvent(logrus.InfoLevel, "Server starting", logrus.Fields{
			"port":     cfg.Port,
			"timezone": zone.String(),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}
}
