package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/umutdemirel/bookable/internal/auth"
	"github.com/umutdemirel/bookable/internal/catalog"
	"github.com/umutdemirel/bookable/internal/storage"
)

// CatalogHandler exposes the scheduling configuration the dashboard
// manages: the business profile, bookable services, staff, weekly hours
// and time off.
type CatalogHandler struct {
	repo   *catalog.Repository
	logger *slog.Logger
}

func NewCatalogHandler(repo *catalog.Repository, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{repo: repo, logger: logger}
}

func (h *CatalogHandler) fail(w http.ResponseWriter, err error, msg string) {
	if storage.IsNotFound(err) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
		return
	}
	h.logger.Error(msg, "err", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: msg})
}

func (h *CatalogHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	p, err := h.repo.GetOrCreateProfile(r.Context(), claims.BusinessID)
	if err != nil {
		h.fail(w, err, "failed to load profile")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type updateProfileRequest struct {
	Name                string `json:"name"`
	Timezone            string `json:"timezone"`
	SlotIntervalMinutes int    `json:"slot_interval_minutes"`
}

func (h *CatalogHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}
	if err := h.repo.UpdateProfile(r.Context(), claims.BusinessID,
		strings.TrimSpace(req.Name), strings.TrimSpace(req.Timezone), req.SlotIntervalMinutes); err != nil {
		h.fail(w, err, "failed to update profile")
		return
	}
	p, err := h.repo.GetOrCreateProfile(r.Context(), claims.BusinessID)
	if err != nil {
		h.fail(w, err, "failed to load profile")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type createServiceRequest struct {
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           string `json:"price"`
	Description     string `json:"description"`
}

func (h *CatalogHandler) CreateService(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req createServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "name required", Field: "name"})
		return
	}
	id, err := h.repo.CreateService(r.Context(), claims.BusinessID, req.Name,
		req.DurationMinutes, strings.TrimSpace(req.Price), strings.TrimSpace(req.Description))
	if err != nil {
		h.fail(w, err, "failed to create service")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *CatalogHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	services, err := h.repo.ListServices(r.Context(), claims.BusinessID, 0)
	if err != nil {
		h.fail(w, err, "failed to list services")
		return
	}
	if services == nil {
		services = []catalog.Service{}
	}
	writeJSON(w, http.StatusOK, services)
}

type createStaffRequest struct {
	Name     string `json:"name"`
	IsActive *bool  `json:"is_active"`
}

func (h *CatalogHandler) CreateStaff(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req createStaffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "name required", Field: "name"})
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	id, err := h.repo.CreateStaff(r.Context(), claims.BusinessID, req.Name, active)
	if err != nil {
		h.fail(w, err, "failed to create staff")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *CatalogHandler) ListStaff(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	staff, err := h.repo.ListStaff(r.Context(), claims.BusinessID, 0)
	if err != nil {
		h.fail(w, err, "failed to list staff")
		return
	}
	if staff == nil {
		staff = []catalog.Staff{}
	}
	writeJSON(w, http.StatusOK, staff)
}

func (h *CatalogHandler) ListWorkingHours(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	hours, err := h.repo.ListWorkingHours(r.Context(), claims.BusinessID, r.PathValue("id"))
	if err != nil {
		h.fail(w, err, "failed to list working hours")
		return
	}
	if hours == nil {
		hours = []catalog.WorkingHours{}
	}
	writeJSON(w, http.StatusOK, hours)
}

type upsertWorkingHoursRequest struct {
	Weekday     int  `json:"weekday"`
	IsWorking   bool `json:"is_working"`
	StartMinute int  `json:"start_minute"`
	EndMinute   int  `json:"end_minute"`
}

func (h *CatalogHandler) UpsertWorkingHours(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req upsertWorkingHoursRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}
	if req.Weekday < 0 || req.Weekday > 6 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "weekday must be 0..6", Field: "weekday"})
		return
	}
	if req.IsWorking && req.EndMinute <= req.StartMinute {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "end_minute must be after start_minute", Field: "end_minute"})
		return
	}
	err := h.repo.UpsertWorkingHours(r.Context(), claims.BusinessID, r.PathValue("id"),
		req.Weekday, req.IsWorking, req.StartMinute, req.EndMinute)
	if err != nil {
		h.fail(w, err, "failed to update working hours")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createTimeOffRequest struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Reason    string `json:"reason"`
}

func (h *CatalogHandler) CreateTimeOff(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req createTimeOffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid start_time", Field: "start_time"})
		return
	}
	end, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid end_time", Field: "end_time"})
		return
	}
	if !end.After(start) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "end_time must be after start_time", Field: "end_time"})
		return
	}
	id, err := h.repo.CreateTimeOff(r.Context(), claims.BusinessID, r.PathValue("id"),
		start, end, strings.TrimSpace(req.Reason))
	if err != nil {
		h.fail(w, err, "failed to create time off")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *CatalogHandler) ListTimeOff(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	from := time.Now().UTC()
	to := from.AddDate(0, 3, 0)
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid from", Field: "from"})
			return
		}
		from = t
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid to", Field: "to"})
			return
		}
		to = t
	}

	entries, err := h.repo.ListTimeOff(r.Context(), claims.BusinessID, r.PathValue("id"), from, to, 0)
	if err != nil {
		h.fail(w, err, "failed to list time off")
		return
	}
	if entries == nil {
		entries = []catalog.TimeOffEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *CatalogHandler) DeleteTimeOff(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if err := h.repo.DeleteTimeOff(r.Context(), claims.BusinessID, r.PathValue("id")); err != nil {
		h.fail(w, err, "failed to delete time off")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
