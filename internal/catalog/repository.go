package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/umutdemirel/bookable/internal/availability"
	"github.com/umutdemirel/bookable/internal/model"
)

// DB matches the pgxpool.Pool methods the catalog uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository holds the per-business scheduling catalog: the profile with
// its slot grid step, the bookable services with their durations, staff
// and their weekly hours, and ad hoc time off.
type Repository struct {
	pool DB
}

func NewRepository(pool DB) *Repository {
	return &Repository{pool: pool}
}

type Profile struct {
	BusinessID          string    `json:"business_id"`
	Name                string    `json:"name"`
	Timezone            string    `json:"timezone"`
	SlotIntervalMinutes int       `json:"slot_interval_minutes"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (r *Repository) GetOrCreateProfile(ctx context.Context, businessID string) (Profile, error) {
	// A default profile appears on first touch so a fresh business can
	// serve availability before anyone configures it.
	_, err := r.pool.Exec(ctx, `
		INSERT INTO business_profiles (business_id)
		VALUES ($1)
		ON CONFLICT (business_id) DO NOTHING
	`, businessID)
	if err != nil {
		return Profile{}, err
	}

	var p Profile
	err = r.pool.QueryRow(ctx, `
		SELECT business_id::text, name, timezone, slot_interval_minutes, updated_at
		FROM business_profiles
		WHERE business_id = $1
	`, businessID).Scan(&p.BusinessID, &p.Name, &p.Timezone, &p.SlotIntervalMinutes, &p.UpdatedAt)
	return p, err
}

func (r *Repository) UpdateProfile(ctx context.Context, businessID, name, timezone string, slotIntervalMinutes int) error {
	if slotIntervalMinutes <= 0 {
		slotIntervalMinutes = model.DefaultDurationMinutes
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO business_profiles (business_id, name, timezone, slot_interval_minutes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (business_id) DO UPDATE
		SET name = EXCLUDED.name,
			timezone = EXCLUDED.timezone,
			slot_interval_minutes = EXCLUDED.slot_interval_minutes,
			updated_at = now()
	`, businessID, name, timezone, slotIntervalMinutes)
	return err
}

// SlotInterval returns the slot grid step for the business, creating the
// default profile when none exists yet.
func (r *Repository) SlotInterval(ctx context.Context, businessID string) (int, error) {
	var mins int
	err := r.pool.QueryRow(ctx, `
		SELECT slot_interval_minutes
		FROM business_profiles
		WHERE business_id = $1
	`, businessID).Scan(&mins)
	if errors.Is(err, pgx.ErrNoRows) {
		p, err := r.GetOrCreateProfile(ctx, businessID)
		if err != nil {
			return 0, err
		}
		return p.SlotIntervalMinutes, nil
	}
	if err != nil {
		return 0, err
	}
	return mins, nil
}

type Service struct {
	ID              string    `json:"id"`
	BusinessID      string    `json:"business_id"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"duration_minutes"`
	Price           string    `json:"price"`
	Description     string    `json:"description"`
	CreatedAt       time.Time `json:"created_at"`
}

func (r *Repository) CreateService(ctx context.Context, businessID, name string, durationMinutes int, price, description string) (string, error) {
	if durationMinutes <= 0 {
		durationMinutes = model.DefaultDurationMinutes
	}
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO business_services (id, business_id, name, duration_minutes, price, description)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, businessID, name, durationMinutes, price, description)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) ListServices(ctx context.Context, businessID string, limit int) ([]Service, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, business_id::text, name, duration_minutes, price::text, description, created_at
		FROM business_services
		WHERE business_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, businessID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		var s Service
		if err := rows.Scan(&s.ID, &s.BusinessID, &s.Name, &s.DurationMinutes, &s.Price, &s.Description, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// ServiceDuration is the single source for how long a service takes.
// Booking creation and availability both resolve durations through it;
// durations never come from parsing the service name.
func (r *Repository) ServiceDuration(ctx context.Context, businessID, serviceID string) (int, error) {
	var mins int
	err := r.pool.QueryRow(ctx, `
		SELECT duration_minutes
		FROM business_services
		WHERE business_id = $1 AND id = $2
	`, businessID, serviceID).Scan(&mins)
	return mins, err
}

type Staff struct {
	ID         string `json:"id"`
	BusinessID string `json:"business_id"`
	Name       string `json:"name"`
	IsActive   bool   `json:"is_active"`
}

// CreateStaff inserts the staff member and seeds a Mon-Fri 09:00-17:00
// schedule in the same transaction so the new resource is immediately
// bookable.
func (r *Repository) CreateStaff(ctx context.Context, businessID, name string, isActive bool) (string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id string
	err = tx.QueryRow(ctx, `
		INSERT INTO staff (business_id, name, is_active)
		VALUES ($1, $2, $3)
		RETURNING id::text
	`, businessID, name, isActive).Scan(&id)
	if err != nil {
		return "", err
	}

	for wd := 0; wd <= 6; wd++ {
		isWorking := wd >= 1 && wd <= 5
		startMin, endMin := 540, 1020
		if !isWorking {
			startMin, endMin = 0, 0
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO staff_working_hours (staff_id, weekday, is_working, start_minute, end_minute)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (staff_id, weekday) DO NOTHING
		`, id, wd, isWorking, startMin, endMin); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) ListStaff(ctx context.Context, businessID string, limit int) ([]Staff, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, business_id::text, name, is_active
		FROM staff
		WHERE business_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, businessID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Staff
	for rows.Next() {
		var s Staff
		if err := rows.Scan(&s.ID, &s.BusinessID, &s.Name, &s.IsActive); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// DefaultStaff resolves the implicit resource for businesses that never
// send a staff id. It only succeeds when exactly one active staff member
// exists; anything else forces the caller to be explicit.
func (r *Repository) DefaultStaff(ctx context.Context, businessID string) (string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text
		FROM staff
		WHERE business_id = $1 AND is_active
		LIMIT 2
	`, businessID)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return "", rows.Err()
	}
	if len(ids) != 1 {
		return "", pgx.ErrNoRows
	}
	return ids[0], nil
}

type WorkingHours struct {
	StaffID     string `json:"staff_id"`
	Weekday     int    `json:"weekday"`
	IsWorking   bool   `json:"is_working"`
	StartMinute int    `json:"start_minute"`
	EndMinute   int    `json:"end_minute"`
}

// WorkingWindow returns the staff member's window for one weekday. A
// staff member without a seeded schedule falls back to Mon-Fri
// 09:00-17:00 so availability never 500s on missing rows.
func (r *Repository) WorkingWindow(ctx context.Context, businessID, staffID string, weekday time.Weekday) (int, int, bool, error) {
	var wh WorkingHours
	err := r.pool.QueryRow(ctx, `
		SELECT h.weekday, h.is_working, h.start_minute, h.end_minute
		FROM staff_working_hours h
		JOIN staff s ON s.id = h.staff_id
		WHERE s.business_id = $1 AND h.staff_id = $2 AND h.weekday = $3
	`, businessID, staffID, int(weekday)).Scan(&wh.Weekday, &wh.IsWorking, &wh.StartMinute, &wh.EndMinute)
	if errors.Is(err, pgx.ErrNoRows) {
		working := weekday >= time.Monday && weekday <= time.Friday
		if !working {
			return 0, 0, false, nil
		}
		return 540, 1020, true, nil
	}
	if err != nil {
		return 0, 0, false, err
	}
	return wh.StartMinute, wh.EndMinute, wh.IsWorking, nil
}

func (r *Repository) ListWorkingHours(ctx context.Context, businessID, staffID string) ([]WorkingHours, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT h.staff_id::text, h.weekday, h.is_working, h.start_minute, h.end_minute
		FROM staff_working_hours h
		JOIN staff s ON s.id = h.staff_id
		WHERE s.business_id = $1 AND h.staff_id = $2
		ORDER BY h.weekday ASC
	`, businessID, staffID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WorkingHours
	for rows.Next() {
		var wh WorkingHours
		if err := rows.Scan(&wh.StaffID, &wh.Weekday, &wh.IsWorking, &wh.StartMinute, &wh.EndMinute); err != nil {
			return nil, err
		}
		out = append(out, wh)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) UpsertWorkingHours(ctx context.Context, businessID, staffID string, weekday int, isWorking bool, startMinute, endMinute int) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM staff WHERE id = $1 AND business_id = $2
		)
	`, staffID, businessID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return pgx.ErrNoRows
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO staff_working_hours (staff_id, weekday, is_working, start_minute, end_minute)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (staff_id, weekday) DO UPDATE
		SET is_working = EXCLUDED.is_working,
			start_minute = EXCLUDED.start_minute,
			end_minute = EXCLUDED.end_minute
	`, staffID, weekday, isWorking, startMinute, endMinute)
	return err
}

type TimeOffEntry struct {
	ID        string    `json:"id"`
	StaffID   string    `json:"staff_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *Repository) CreateTimeOff(ctx context.Context, businessID, staffID string, startTime, endTime time.Time, reason string) (string, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM staff WHERE id = $1 AND business_id = $2
		)
	`, staffID, businessID).Scan(&exists); err != nil {
		return "", err
	}
	if !exists {
		return "", pgx.ErrNoRows
	}

	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO staff_time_off (id, staff_id, start_time, end_time, reason)
		VALUES ($1, $2, $3, $4, $5)
	`, id, staffID, startTime, endTime, reason)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) ListTimeOff(ctx context.Context, businessID, staffID string, from, to time.Time, limit int) ([]TimeOffEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT t.id::text, t.staff_id::text, t.start_time, t.end_time, t.reason, t.created_at
		FROM staff_time_off t
		JOIN staff s ON s.id = t.staff_id
		WHERE s.business_id = $1
			AND t.staff_id = $2
			AND t.end_time > $3
			AND t.start_time < $4
		ORDER BY t.start_time ASC
		LIMIT $5
	`, businessID, staffID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TimeOffEntry
	for rows.Next() {
		var t TimeOffEntry
		if err := rows.Scan(&t.ID, &t.StaffID, &t.StartTime, &t.EndTime, &t.Reason, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// TimeOff exposes the entries overlapping the window as busy intervals
// for the availability calculator.
func (r *Repository) TimeOff(ctx context.Context, businessID, staffID string, from, to time.Time) ([]availability.Interval, error) {
	entries, err := r.ListTimeOff(ctx, businessID, staffID, from, to, 0)
	if err != nil {
		return nil, err
	}
	out := make([]availability.Interval, 0, len(entries))
	for _, e := range entries {
		out = append(out, availability.Interval{Start: e.StartTime, End: e.EndTime})
	}
	return out, nil
}

func (r *Repository) DeleteTimeOff(ctx context.Context, businessID, timeOffID string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM staff_time_off t
		USING staff s
		WHERE t.staff_id = s.id
		  AND s.business_id = $1
		  AND t.id = $2
	`, businessID, timeOffID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
