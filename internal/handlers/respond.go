package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/umutdemirel/bookable/internal/booking"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeBookingError maps the domain error classes onto status codes.
// Transient failures answer 503 with Retry-After so well-behaved clients
// resubmit the identical request instead of giving up.
func writeBookingError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var ve *booking.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: ve.Reason, Field: ve.Field})
	case booking.IsConflict(err):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "time slot already booked or overlapping"})
	case booking.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "booking not found"})
	case booking.IsTransient(err):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "temporarily unavailable, retry shortly"})
	default:
		logger.Error("request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
