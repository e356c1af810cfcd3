package booking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/umutdemirel/bookable/internal/availability"
	"github.com/umutdemirel/bookable/internal/model"
	"github.com/umutdemirel/bookable/internal/storage"
)

// Store persists bookings. Reserve must be atomic: either the row commits
// with no overlapping non-cancelled booking for the same staff member, or
// it fails with an exclusion violation. The database constraint is the
// source of truth; this layer never tries to pre-empt it with reads.
type Store interface {
	Reserve(ctx context.Context, b *model.Booking, idempotencyKey string) error
	Get(ctx context.Context, businessID, id string) (model.Booking, error)
	Update(ctx context.Context, b *model.Booking) error
	ListDay(ctx context.Context, businessID, staffID string, dayStart, dayEnd time.Time) ([]model.Booking, error)
	ListRecent(ctx context.Context, businessID string, limit int) ([]model.Booking, error)
}

// Catalog resolves the per-business scheduling configuration a booking
// request leaves implicit: service durations, staff working windows and
// the slot grid step.
type Catalog interface {
	ServiceDuration(ctx context.Context, businessID, serviceID string) (int, error)
	SlotInterval(ctx context.Context, businessID string) (int, error)
	WorkingWindow(ctx context.Context, businessID, staffID string, weekday time.Weekday) (startMinute, endMinute int, working bool, err error)
	TimeOff(ctx context.Context, businessID, staffID string, from, to time.Time) ([]availability.Interval, error)
	DefaultStaff(ctx context.Context, businessID string) (string, error)
}

type Service struct {
	store   Store
	catalog Catalog
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(store Store, catalog Catalog, logger *slog.Logger) *Service {
	return &Service{store: store, catalog: catalog, logger: logger, now: time.Now}
}

type AvailabilityQuery struct {
	BusinessID string
	StaffID    string
	ServiceID  string
	Date       string
}

type DayAvailability struct {
	AvailableSlots []string            `json:"available_slots"`
	AllSlots       []availability.Slot `json:"all_slots"`
}

// Availability computes the slot grid for one staff member on one day and
// marks each slot. A slot is available when the requested service fits
// inside the working window starting there, the slot is not in the past,
// and no non-cancelled booking or time-off interval overlaps it.
func (s *Service) Availability(ctx context.Context, q AvailabilityQuery) (DayAvailability, error) {
	empty := DayAvailability{AvailableSlots: []string{}, AllSlots: []availability.Slot{}}
	if q.BusinessID == "" {
		return empty, invalid("business_id", "required")
	}
	day, err := parseDate(q.Date)
	if err != nil {
		return empty, err
	}
	staffID, err := s.resolveStaff(ctx, q.BusinessID, q.StaffID)
	if err != nil {
		return empty, err
	}

	startMin, endMin, working, err := s.catalog.WorkingWindow(ctx, q.BusinessID, staffID, day.Weekday())
	if err != nil {
		return empty, s.mapStoreErr("working window", err)
	}
	if !working || endMin <= startMin {
		return empty, nil
	}
	windowStart := day.Add(time.Duration(startMin) * time.Minute)
	windowEnd := day.Add(time.Duration(endMin) * time.Minute)

	intervalMin, err := s.catalog.SlotInterval(ctx, q.BusinessID)
	if err != nil {
		return empty, s.mapStoreErr("slot interval", err)
	}
	durationMin, err := s.resolveDuration(ctx, q.BusinessID, q.ServiceID)
	if err != nil {
		return empty, err
	}

	bookings, err := s.store.ListDay(ctx, q.BusinessID, staffID, windowStart, windowEnd)
	if err != nil {
		return empty, s.mapStoreErr("list bookings", err)
	}
	busy, err := availability.BusyIntervals(bookings)
	if err != nil {
		return empty, fmt.Errorf("busy intervals: %w", err)
	}
	timeOff, err := s.catalog.TimeOff(ctx, q.BusinessID, staffID, windowStart, windowEnd)
	if err != nil {
		return empty, s.mapStoreErr("time off", err)
	}
	busy = append(busy, timeOff...)

	slots := availability.Annotate(
		windowStart, windowEnd,
		time.Duration(intervalMin)*time.Minute,
		time.Duration(durationMin)*time.Minute,
		busy,
		s.now().UTC(),
	)
	return DayAvailability{AvailableSlots: availability.AvailableTimes(slots), AllSlots: slots}, nil
}

type CreateInput struct {
	BusinessID     string
	StaffID        string
	ServiceID      string
	CustomerName   string
	CustomerPhone  string
	CustomerEmail  string
	Notes          string
	Date           string
	Time           string
	IdempotencyKey string
}

// Create runs the commit protocol: validate, resolve duration, compute the
// half-open interval and hand the row to storage in a single transaction.
// Overlap rejection comes back from the database as a conflict; there is
// deliberately no read-then-write check here, so two concurrent requests
// for the same slot race safely and exactly one commits.
func (s *Service) Create(ctx context.Context, in CreateInput) (model.Booking, error) {
	if in.BusinessID == "" {
		return model.Booking{}, invalid("business_id", "required")
	}
	if in.CustomerName == "" {
		return model.Booking{}, invalid("customer_name", "required")
	}
	day, err := parseDate(in.Date)
	if err != nil {
		return model.Booking{}, err
	}
	startOfDay, err := parseClock(in.Time)
	if err != nil {
		return model.Booking{}, err
	}
	staffID, err := s.resolveStaff(ctx, in.BusinessID, in.StaffID)
	if err != nil {
		return model.Booking{}, err
	}
	durationMin, err := s.resolveDuration(ctx, in.BusinessID, in.ServiceID)
	if err != nil {
		return model.Booking{}, err
	}

	start := day.Add(startOfDay)
	end := start.Add(time.Duration(durationMin) * time.Minute)

	b := model.Booking{
		ID:              uuid.NewString(),
		BusinessID:      in.BusinessID,
		StaffID:         staffID,
		ServiceID:       in.ServiceID,
		CustomerName:    in.CustomerName,
		CustomerPhone:   in.CustomerPhone,
		CustomerEmail:   in.CustomerEmail,
		Notes:           in.Notes,
		Date:            in.Date,
		TimeOfDay:       in.Time,
		DurationMinutes: durationMin,
		StartTime:       &start,
		EndTime:         &end,
		Status:          model.StatusConfirmed,
	}
	if err := s.store.Reserve(ctx, &b, in.IdempotencyKey); err != nil {
		return model.Booking{}, s.mapStoreErr("reserve", err)
	}
	s.logger.InfoContext(ctx, "booking committed",
		"booking_id", b.ID,
		"business_id", b.BusinessID,
		"staff_id", b.StaffID,
		"start_time", start.Format(time.RFC3339),
	)
	return b, nil
}

type UpdateInput struct {
	BusinessID string
	ID         string
	Date       *string
	Time       *string
	Status     *string
	Notes      *string
}

// Reschedule applies a partial update. A changed date or time recomputes
// the interval with the booking's existing duration, and the moved row
// goes through the same storage-level overlap rejection as a new booking.
func (s *Service) Reschedule(ctx context.Context, in UpdateInput) (model.Booking, error) {
	if in.ID == "" {
		return model.Booking{}, invalid("id", "required")
	}
	b, err := s.store.Get(ctx, in.BusinessID, in.ID)
	if err != nil {
		return model.Booking{}, s.mapStoreErr("get booking", err)
	}

	moved := false
	if in.Date != nil {
		if _, err := parseDate(*in.Date); err != nil {
			return model.Booking{}, err
		}
		b.Date = *in.Date
		moved = true
	}
	if in.Time != nil {
		if _, err := parseClock(*in.Time); err != nil {
			return model.Booking{}, err
		}
		b.TimeOfDay = *in.Time
		moved = true
	}
	if in.Status != nil {
		if !model.ValidStatus(*in.Status) {
			return model.Booking{}, invalid("status", "must be one of pending, confirmed, completed, cancelled")
		}
		b.Status = *in.Status
	}
	if in.Notes != nil {
		b.Notes = *in.Notes
	}

	if moved {
		day, _ := parseDate(b.Date)
		clock, _ := parseClock(b.TimeOfDay)
		durationMin := b.DurationMinutes
		if durationMin <= 0 {
			if b.StartTime != nil && b.EndTime != nil {
				durationMin = int(b.EndTime.Sub(*b.StartTime) / time.Minute)
			} else {
				durationMin = model.DefaultDurationMinutes
			}
		}
		start := day.Add(clock)
		end := start.Add(time.Duration(durationMin) * time.Minute)
		b.StartTime = &start
		b.EndTime = &end
		b.DurationMinutes = durationMin
	}

	if err := s.store.Update(ctx, &b); err != nil {
		return model.Booking{}, s.mapStoreErr("update booking", err)
	}
	return b, nil
}

// Cancel is idempotent: cancelling an already-cancelled booking succeeds
// and leaves the row unchanged.
func (s *Service) Cancel(ctx context.Context, businessID, id string) (model.Booking, error) {
	if id == "" {
		return model.Booking{}, invalid("id", "required")
	}
	b, err := s.store.Get(ctx, businessID, id)
	if err != nil {
		return model.Booking{}, s.mapStoreErr("get booking", err)
	}
	if b.Status == model.StatusCancelled {
		return b, nil
	}
	b.Status = model.StatusCancelled
	if err := s.store.Update(ctx, &b); err != nil {
		return model.Booking{}, s.mapStoreErr("cancel booking", err)
	}
	s.logger.InfoContext(ctx, "booking cancelled", "booking_id", b.ID, "business_id", b.BusinessID)
	return b, nil
}

// List returns the bookings for one day when date is set, otherwise the
// most recent bookings for the business.
func (s *Service) List(ctx context.Context, businessID, staffID, date string, limit int) ([]model.Booking, error) {
	if businessID == "" {
		return nil, invalid("business_id", "required")
	}
	if date == "" {
		out, err := s.store.ListRecent(ctx, businessID, limit)
		if err != nil {
			return nil, s.mapStoreErr("list bookings", err)
		}
		return out, nil
	}
	day, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	out, err := s.store.ListDay(ctx, businessID, staffID, day, day.Add(24*time.Hour))
	if err != nil {
		return nil, s.mapStoreErr("list bookings", err)
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, businessID, id string) (model.Booking, error) {
	b, err := s.store.Get(ctx, businessID, id)
	if err != nil {
		return model.Booking{}, s.mapStoreErr("get booking", err)
	}
	return b, nil
}

func (s *Service) resolveStaff(ctx context.Context, businessID, staffID string) (string, error) {
	if staffID != "" {
		return staffID, nil
	}
	id, err := s.catalog.DefaultStaff(ctx, businessID)
	if err != nil {
		if storage.IsNotFound(err) {
			return "", invalid("staff_id", "required when the business has more than one staff member")
		}
		return "", s.mapStoreErr("default staff", err)
	}
	return id, nil
}

func (s *Service) resolveDuration(ctx context.Context, businessID, serviceID string) (int, error) {
	if serviceID == "" {
		return model.DefaultDurationMinutes, nil
	}
	d, err := s.catalog.ServiceDuration(ctx, businessID, serviceID)
	if err != nil {
		if storage.IsNotFound(err) {
			return 0, invalid("service_id", "unknown service")
		}
		return 0, s.mapStoreErr("service duration", err)
	}
	if d <= 0 {
		return model.DefaultDurationMinutes, nil
	}
	return d, nil
}

// mapStoreErr translates storage failures into the domain error classes.
// Anything not recognized stays wrapped so the handler logs the cause and
// answers with a generic 500.
func (s *Service) mapStoreErr(op string, err error) error {
	switch {
	case storage.IsConflict(err):
		return ErrConflict
	case storage.IsNotFound(err):
		return ErrNotFound
	case storage.IsTransient(err):
		return &TransientError{Err: err}
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func parseDate(date string) (time.Time, error) {
	if date == "" {
		return time.Time{}, invalid("date", "required")
	}
	day, err := time.ParseInLocation("2006-01-02", date, time.UTC)
	if err != nil {
		return time.Time{}, invalid("date", "must be formatted YYYY-MM-DD")
	}
	return day, nil
}

func parseClock(clock string) (time.Duration, error) {
	if clock == "" {
		return 0, invalid("time", "required")
	}
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return 0, invalid("time", "must be formatted HH:MM")
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
