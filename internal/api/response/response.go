// Package response writes the JSON bodies shared by handlers and middleware.
package response

import (
	"encoding/json"
	"net/http"
	"strconv"

	apperrors "gtin-api/internal/pkg/errors"
)

type ErrorBody struct {
	Error string `json:"error"`
}

// DeniedBody is the body of every 429 answer.
type DeniedBody struct {
	Error      string `json:"error"`
	Limit      int    `json:"limit"`
	Remaining  int    `json:"remaining"`
	RetryAfter int    `json:"retry_after"`
}

func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorBody{Error: message})
}

// RateHeaders sets the X-RateLimit headers on any answer.
func RateHeaders(w http.ResponseWriter, limit, remaining int) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
}

func Denied(w http.ResponseWriter, denied *apperrors.AdmissionDenied) {
	RateHeaders(w, denied.Limit, denied.Remaining)
	w.Header().Set("Retry-After", strconv.Itoa(denied.RetryAfter))
	JSON(w, http.StatusTooManyRequests, DeniedBody{
		Error:      denied.Error(),
		Limit:      denied.Limit,
		Remaining:  denied.Remaining,
		RetryAfter: denied.RetryAfter,
	})
}
