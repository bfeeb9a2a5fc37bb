package controllers

import (
	"context"
	"net/http"
	"time"

	"gtin-api/internal/api/response"

	"gorm.io/gorm"
)

type HealthCheckResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Store    string `json:"store"`
}

// Pinger is anything the health check can ping, such as the shared store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheckHandler reports database and shared store status. Only a
// database failure makes the check fail: without the store, admission
// degrades to fail-open but requests are still served.
func HealthCheckHandler(db *gorm.DB, store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		resp := HealthCheckResponse{
			Status:   "ok",
			Database: "healthy",
			Store:    "healthy",
		}
		status := http.StatusOK

		if err := pingDB(ctx, db); err != nil {
			resp.Status = "degraded"
			resp.Database = "unreachable"
			status = http.StatusServiceUnavailable
		}

		if err := store.Ping(ctx); err != nil {
			resp.Store = "unavailable"
			if status == http.StatusOK {
				resp.Status = "degraded"
			}
		}

		response.JSON(w, status, resp)
	}
}

func pingDB(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
