package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/umutdemirel/bookable/internal/auth"
	"github.com/umutdemirel/bookable/internal/booking"
	"github.com/umutdemirel/bookable/internal/model"
)

type BookingHandler struct {
	svc    *booking.Service
	logger *slog.Logger
}

func NewBookingHandler(svc *booking.Service, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, logger: logger}
}

type bookingResponse struct {
	ID              string `json:"id"`
	BusinessID      string `json:"business_id"`
	StaffID         string `json:"staff_id"`
	ServiceID       string `json:"service_id,omitempty"`
	CustomerName    string `json:"customer_name"`
	CustomerPhone   string `json:"customer_phone,omitempty"`
	CustomerEmail   string `json:"customer_email,omitempty"`
	Notes           string `json:"notes,omitempty"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration_minutes"`
	StartTime       string `json:"start_time,omitempty"`
	EndTime         string `json:"end_time,omitempty"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at,omitempty"`
}

func toBookingResponse(b model.Booking) bookingResponse {
	resp := bookingResponse{
		ID:              b.ID,
		BusinessID:      b.BusinessID,
		StaffID:         b.StaffID,
		ServiceID:       b.ServiceID,
		CustomerName:    b.CustomerName,
		CustomerPhone:   b.CustomerPhone,
		CustomerEmail:   b.CustomerEmail,
		Notes:           b.Notes,
		Date:            b.Date,
		Time:            b.TimeOfDay,
		DurationMinutes: b.DurationMinutes,
		Status:          b.Status,
	}
	if b.StartTime != nil {
		resp.StartTime = b.StartTime.UTC().Format(time.RFC3339)
	}
	if b.EndTime != nil {
		resp.EndTime = b.EndTime.UTC().Format(time.RFC3339)
	}
	if !b.CreatedAt.IsZero() {
		resp.CreatedAt = b.CreatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// Slots serves the public availability grid. Also mounted under the
// /availability alias kept for older widget embeds.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	day, err := h.svc.Availability(r.Context(), booking.AvailabilityQuery{
		BusinessID: strings.TrimSpace(q.Get("business_id")),
		StaffID:    strings.TrimSpace(q.Get("staff_id")),
		ServiceID:  strings.TrimSpace(q.Get("service_id")),
		Date:       strings.TrimSpace(q.Get("date")),
	})
	if err != nil {
		writeBookingError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, day)
}

type bookRequest struct {
	BusinessID    string `json:"business_id"`
	StaffID       string `json:"staff_id"`
	ServiceID     string `json:"service_id"`
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	CustomerEmail string `json:"customer_email"`
	Notes         string `json:"notes"`
	Date          string `json:"date"`
	Time          string `json:"time"`
}

func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}

	b, err := h.svc.Create(r.Context(), booking.CreateInput{
		BusinessID:     strings.TrimSpace(req.BusinessID),
		StaffID:        strings.TrimSpace(req.StaffID),
		ServiceID:      strings.TrimSpace(req.ServiceID),
		CustomerName:   strings.TrimSpace(req.CustomerName),
		CustomerPhone:  strings.TrimSpace(req.CustomerPhone),
		CustomerEmail:  strings.TrimSpace(req.CustomerEmail),
		Notes:          strings.TrimSpace(req.Notes),
		Date:           strings.TrimSpace(req.Date),
		Time:           strings.TrimSpace(req.Time),
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		writeBookingError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingResponse(b))
}

// List serves the dashboard agenda, scoped to the authenticated tenant.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	limit := 0
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	bookings, err := h.svc.List(r.Context(), claims.BusinessID,
		strings.TrimSpace(q.Get("staff_id")), strings.TrimSpace(q.Get("date")), limit)
	if err != nil {
		writeBookingError(w, h.logger, err)
		return
	}

	items := make([]bookingResponse, 0, len(bookings))
	for _, b := range bookings {
		items = append(items, toBookingResponse(b))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	b, err := h.svc.Get(r.Context(), claims.BusinessID, r.PathValue("id"))
	if err != nil {
		writeBookingError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

type updateBookingRequest struct {
	Date   *string `json:"date"`
	Time   *string `json:"time"`
	Status *string `json:"status"`
	Notes  *string `json:"notes"`
}

func (h *BookingHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req updateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}

	b, err := h.svc.Reschedule(r.Context(), booking.UpdateInput{
		BusinessID: claims.BusinessID,
		ID:         r.PathValue("id"),
		Date:       req.Date,
		Time:       req.Time,
		Status:     req.Status,
		Notes:      req.Notes,
	})
	if err != nil {
		writeBookingError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	b, err := h.svc.Cancel(r.Context(), claims.BusinessID, r.PathValue("id"))
	if err != nil {
		writeBookingError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}
