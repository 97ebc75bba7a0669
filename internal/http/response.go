package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"GiftCardPay/internal/models"
	"GiftCardPay/internal/services"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// errorStatus maps domain errors onto HTTP status codes and client-facing messages.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrOrderNotFound):
		return http.StatusNotFound, "order not found"
	case errors.Is(err, models.ErrOrderCancelled):
		return http.StatusConflict, "order cancelled"
	case errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict, "invalid status transition"
	case errors.Is(err, models.ErrUnsupportedCurrency):
		return http.StatusUnprocessableEntity, "unsupported currency"
	case errors.Is(err, services.ErrMissingUserID):
		return http.StatusUnauthorized, "missing user id"
	case errors.Is(err, services.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid amount"
	case errors.Is(err, services.ErrInvalidDiscount):
		return http.StatusBadRequest, "discount percentage must be in [0,100)"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-Id")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
