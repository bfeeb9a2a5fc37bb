package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"gtin-api/internal/api/response"
	"gtin-api/internal/pkg/calendar"
	apperrors "gtin-api/internal/pkg/errors"
	"gtin-api/internal/services"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const (
	defaultSeriesDays   = 30
	defaultSeriesMonths = 12
	maxSeriesMonths     = 120
)

// UsageHandler serves the dashboard metrics of the authenticated organization.
type UsageHandler struct {
	meter         services.UsageMeter
	apiKeyService services.APIKeyService
	logger        logrus.FieldLogger
}

func NewUsageHandler(meter services.UsageMeter, apiKeyService services.APIKeyService, logger logrus.FieldLogger) *UsageHandler {
	return &UsageHandler{
		meter:         meter,
		apiKeyService: apiKeyService,
		logger:        logger,
	}
}

type SeriesResponse struct {
	OrganizationID uint                  `json:"org_id,omitempty"`
	APIKeyID       uint                  `json:"api_key_id,omitempty"`
	APIKeyName     string                `json:"api_key_name,omitempty"`
	StartDate      string                `json:"start_date"`
	EndDate        string                `json:"end_date"`
	TotalSuccess   int64                 `json:"total_success"`
	TotalError     int64                 `json:"total_error"`
	TotalCalls     int64                 `json:"total_calls"`
	Series         []services.UsagePoint `json:"series"`
}

func newSeriesResponse(series []services.UsagePoint, start, end string) SeriesResponse {
	resp := SeriesResponse{StartDate: start, EndDate: end, Series: series}
	for _, p := range series {
		resp.TotalSuccess += p.SuccessCount
		resp.TotalError += p.ErrorCount
	}
	resp.TotalCalls = resp.TotalSuccess + resp.TotalError
	return resp
}

// GetSummary answers GET /v1/metrics/summary?days=N.
func (h *UsageHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	orgID, ok := services.OrganizationIDFromContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	days := services.DefaultSummaryDays
	if daysParam := r.URL.Query().Get("days"); daysParam != "" {
		parsed, err := strconv.Atoi(daysParam)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "days must be an integer")
			return
		}
		days = parsed
	}

	summary, err := h.meter.Summary(r.Context(), orgID, days)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, summary)
}

// GetDailySeries answers GET /v1/metrics/daily, summing every key of the
// organization. The range defaults to the last 30 days.
func (h *UsageHandler) GetDailySeries(w http.ResponseWriter, r *http.Request) {
	orgID, ok := services.OrganizationIDFromContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	start, end, err := h.dayRange(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	series, err := h.meter.OrganizationDailySeries(r.Context(), orgID, start, end)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := newSeriesResponse(series, calendar.DayKey(start), calendar.DayKey(end))
	resp.OrganizationID = orgID
	response.JSON(w, http.StatusOK, resp)
}

// GetMonthlySeries answers GET /v1/metrics/monthly; the range defaults to
// the last 12 months.
func (h *UsageHandler) GetMonthlySeries(w http.ResponseWriter, r *http.Request) {
	orgID, ok := services.OrganizationIDFromContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	today := h.meter.Today()
	end := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	start := end.AddDate(0, -(defaultSeriesMonths - 1), 0)

	query := r.URL.Query()
	var err error
	if v := query.Get("start_month"); v != "" {
		if start, err = calendar.ParseMonth(v); err != nil {
			response.Error(w, http.StatusBadRequest, "start_month must be YYYY-MM")
			return
		}
	}
	if v := query.Get("end_month"); v != "" {
		if end, err = calendar.ParseMonth(v); err != nil {
			response.Error(w, http.StatusBadRequest, "end_month must be YYYY-MM")
			return
		}
	}
	if months := (end.Year()-start.Year())*12 + int(end.Month()-start.Month()) + 1; months > maxSeriesMonths {
		response.Error(w, http.StatusBadRequest, fmt.Sprintf("range is limited to %d months", maxSeriesMonths))
		return
	}

	series, err := h.meter.ReadAggregate(r.Context(), services.Tenant(orgID), start, end)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := newSeriesResponse(series, start.Format("2006-01"), end.Format("2006-01"))
	resp.OrganizationID = orgID
	response.JSON(w, http.StatusOK, resp)
}

// GetAPIKeySeries answers GET /v1/metrics/api-keys/{id}. Keys of other
// organizations are reported as missing.
func (h *UsageHandler) GetAPIKeySeries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID, ok := services.OrganizationIDFromContext(ctx)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid API key ID")
		return
	}

	apiKey, err := h.apiKeyService.GetForOrganization(ctx, uint(id), orgID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "API key not found")
			return
		}
		h.writeError(w, err)
		return
	}

	start, end, err := h.dayRange(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	series, err := h.meter.ReadAggregate(ctx, services.Credential(apiKey.ID), start, end)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := newSeriesResponse(series, calendar.DayKey(start), calendar.DayKey(end))
	resp.APIKeyID = apiKey.ID
	resp.APIKeyName = apiKey.Name
	response.JSON(w, http.StatusOK, resp)
}

func (h *UsageHandler) dayRange(r *http.Request) (time.Time, time.Time, error) {
	end := h.meter.Today()
	start := end.AddDate(0, 0, -(defaultSeriesDays - 1))

	query := r.URL.Query()
	var err error
	if v := query.Get("start_date"); v != "" {
		if start, err = calendar.ParseDay(v); err != nil {
			return start, end, fmt.Errorf("%w: start_date must be YYYY-MM-DD", apperrors.ErrInvalidInput)
		}
	}
	if v := query.Get("end_date"); v != "" {
		if end, err = calendar.ParseDay(v); err != nil {
			return start, end, fmt.Errorf("%w: end_date must be YYYY-MM-DD", apperrors.ErrInvalidInput)
		}
	}
	if end.Sub(start) >= services.MaxSummaryDays*24*time.Hour {
		return start, end, fmt.Errorf("%w: range is limited to %d days", apperrors.ErrInvalidInput, services.MaxSummaryDays)
	}
	return start, end, nil
}

func (h *UsageHandler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, apperrors.ErrInvalidInput) {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.WithError(err).Error("Usage metrics request failed")
	response.Error(w, http.StatusInternalServerError, "Internal server error")
}
