package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"gtin-api/internal/api/response"
	apperrors "gtin-api/internal/pkg/errors"
	"gtin-api/internal/services"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type ProductHandler struct {
	productService services.ProductService
	quotaService   services.QuotaService
	meter          services.UsageMeter
	logger         logrus.FieldLogger
}

func NewProductHandler(productService services.ProductService, quotaService services.QuotaService, meter services.UsageMeter, logger logrus.FieldLogger) *ProductHandler {
	return &ProductHandler{
		productService: productService,
		quotaService:   quotaService,
		meter:          meter,
		logger:         logger,
	}
}

type BatchRequest struct {
	GTINs []string `json:"gtins"`
}

type SearchResponse struct {
	Query   string      `json:"query"`
	Total   int         `json:"total"`
	Results interface{} `json:"results"`
}

// GetProduct answers GET /v1/gtins/{gtin}.
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.productService.GetProduct(r.Context(), mux.Vars(r)["gtin"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, product)
}

// GetPublicProduct is the anonymous lookup; it never exposes the owner's tax id.
func (h *ProductHandler) GetPublicProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.productService.GetProduct(r.Context(), mux.Vars(r)["gtin"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	public := *product
	public.OwnerTaxID = ""
	response.JSON(w, http.StatusOK, public)
}

func (h *ProductHandler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	term := strings.TrimSpace(query.Get("q"))

	limit := services.DefaultSearchLimit
	if limitParam := query.Get("limit"); limitParam != "" {
		parsed, err := strconv.Atoi(limitParam)
		if err != nil || parsed < 1 {
			response.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	products, err := h.productService.SearchProducts(r.Context(), term, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, SearchResponse{
		Query:   term,
		Total:   len(products),
		Results: products,
	})
}

// BatchLookup answers POST /v1/gtins/batch with a {"gtins": [...]} body.
func (h *ProductHandler) BatchLookup(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	h.batch(w, r, req.GTINs)
}

// BatchLookupQuery answers GET /v1/gtins/batch. GTINs come from repeated
// or comma-separated gtins (or gtin) parameters.
func (h *ProductHandler) BatchLookupQuery(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var gtins []string
	for _, name := range []string{"gtins", "gtin"} {
		for _, value := range query[name] {
			for _, gtin := range strings.Split(value, ",") {
				if gtin = strings.TrimSpace(gtin); gtin != "" {
					gtins = append(gtins, gtin)
				}
			}
		}
	}

	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Header().Set("Vary", "X-API-Key")
	h.batch(w, r, gtins)
}

func (h *ProductHandler) batch(w http.ResponseWriter, r *http.Request, gtins []string) {
	ctx := r.Context()

	caller, ok := services.CallerFromContext(ctx)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "API key is required")
		return
	}

	if err := h.quotaService.CheckBatchSize(caller.Plan, len(gtins)); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.quotaService.CheckPlanQuota(ctx, caller.OrganizationID, caller.Plan, len(gtins)); err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.productService.BatchLookup(ctx, gtins)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.meter.RecordBatch(ctx, caller.APIKeyID, caller.OrganizationID, result.TotalFound, result.TotalRequested-result.TotalFound)
	response.JSON(w, http.StatusOK, result)
}

func (h *ProductHandler) writeError(w http.ResponseWriter, err error) {
	if denied, ok := apperrors.IsAdmissionDenied(err); ok {
		response.Denied(w, denied)
		return
	}

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		response.Error(w, http.StatusNotFound, "Product not found")
	case errors.Is(err, apperrors.ErrBatchNotAllowed):
		response.Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, apperrors.ErrBatchTooLarge), errors.Is(err, apperrors.ErrInvalidInput):
		response.Error(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.WithError(err).Error("Product request failed")
		response.Error(w, http.StatusInternalServerError, "Internal server error")
	}
}
