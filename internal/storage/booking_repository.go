package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/umutdemirel/bookable/internal/model"
	"github.com/umutdemirel/bookable/internal/outbox"
)

const bookingColumns = `
	id::text, business_id::text, staff_id::text, COALESCE(service_id::text, ''),
	customer_name, COALESCE(customer_phone, ''), COALESCE(customer_email, ''), COALESCE(notes, ''),
	COALESCE(booking_date, ''), COALESCE(time_of_day, ''), COALESCE(duration_minutes, 0),
	start_time, end_time, status, created_at, updated_at`

type BookingRepository struct {
	pool       DB
	outboxRepo *outbox.Repository
}

func NewBookingRepository(pool DB, outboxRepo *outbox.Repository) *BookingRepository {
	return &BookingRepository{pool: pool, outboxRepo: outboxRepo}
}

// Reserve inserts the booking and its outbox event in one transaction.
// Overlap protection is the table's exclusion constraint, nothing here
// checks for conflicts first; an overlapping insert fails the transaction
// with SQLSTATE 23P01 and the caller sees it through IsConflict.
//
// When idempotencyKey is set and a previous request already committed a
// booking under the same key, that booking is loaded into b and no new
// row is written.
func (r *BookingRepository) Reserve(ctx context.Context, b *model.Booking, idempotencyKey string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if idempotencyKey != "" {
		existingID, replay, err := r.lockIdempotencyKey(ctx, tx, b.BusinessID, idempotencyKey)
		if err != nil {
			return err
		}
		if replay {
			prev, err := getBooking(ctx, tx, b.BusinessID, existingID)
			if err != nil {
				return err
			}
			*b = prev
			return tx.Commit(ctx)
		}
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO bookings
			(id, business_id, staff_id, service_id, customer_name, customer_phone, customer_email,
			notes, booking_date, time_of_day, duration_minutes, start_time, end_time, status)
		VALUES ($1, $2, $3, NULLIF($4, '')::uuid, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`, b.ID, b.BusinessID, b.StaffID, b.ServiceID, b.CustomerName, b.CustomerPhone, b.CustomerEmail,
		b.Notes, b.Date, b.TimeOfDay, b.DurationMinutes, b.StartTime, b.EndTime, b.Status,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return err
	}

	if err := r.insertEvent(ctx, tx, outbox.EventBooked, *b); err != nil {
		return err
	}
	if idempotencyKey != "" {
		if err := r.finalizeIdempotencyKey(ctx, tx, b.BusinessID, idempotencyKey, b.ID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *BookingRepository) Get(ctx context.Context, businessID, id string) (model.Booking, error) {
	return getBooking(ctx, r.pool, businessID, id)
}

// Update rewrites the mutable fields and emits a rescheduled or cancelled
// event depending on the row's new status. Moving a booking onto an
// occupied slot trips the same exclusion constraint as an insert.
func (r *BookingRepository) Update(ctx context.Context, b *model.Booking) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		UPDATE bookings
		SET booking_date = $3,
			time_of_day = $4,
			duration_minutes = $5,
			start_time = $6,
			end_time = $7,
			status = $8,
			notes = $9,
			updated_at = now()
		WHERE id = $1 AND business_id = $2
		RETURNING updated_at
	`, b.ID, b.BusinessID, b.Date, b.TimeOfDay, b.DurationMinutes, b.StartTime, b.EndTime, b.Status, b.Notes,
	).Scan(&b.UpdatedAt)
	if err != nil {
		return err
	}

	eventType := outbox.EventRescheduled
	if b.Status == model.StatusCancelled {
		eventType = outbox.EventCancelled
	}
	if err := r.insertEvent(ctx, tx, eventType, *b); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListDay returns every booking touching the window, cancelled rows
// included; availability math excludes them. Legacy rows without explicit
// timestamps are matched on their stored date.
func (r *BookingRepository) ListDay(ctx context.Context, businessID, staffID string, dayStart, dayEnd time.Time) ([]model.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE business_id = $1
			AND ($2 = '' OR staff_id::text = $2)
			AND (
				(start_time < $4 AND end_time > $3)
				OR (start_time IS NULL AND booking_date = to_char($3::timestamptz, 'YYYY-MM-DD'))
			)
		ORDER BY start_time ASC NULLS LAST
	`, businessID, staffID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	return scanBookings(rows)
}

func (r *BookingRepository) ListRecent(ctx context.Context, businessID string, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE business_id = $1
		ORDER BY start_time DESC NULLS LAST
		LIMIT $2
	`, businessID, limit)
	if err != nil {
		return nil, err
	}
	return scanBookings(rows)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getBooking(ctx context.Context, q queryRower, businessID, id string) (model.Booking, error) {
	var b model.Booking
	err := q.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1 AND business_id = $2
	`, id, businessID).Scan(
		&b.ID,
		&b.BusinessID,
		&b.StaffID,
		&b.ServiceID,
		&b.CustomerName,
		&b.CustomerPhone,
		&b.CustomerEmail,
		&b.Notes,
		&b.Date,
		&b.TimeOfDay,
		&b.DurationMinutes,
		&b.StartTime,
		&b.EndTime,
		&b.Status,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return model.Booking{}, err
	}
	return b, nil
}

func scanBookings(rows pgx.Rows) ([]model.Booking, error) {
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		var b model.Booking
		if err := rows.Scan(
			&b.ID,
			&b.BusinessID,
			&b.StaffID,
			&b.ServiceID,
			&b.CustomerName,
			&b.CustomerPhone,
			&b.CustomerEmail,
			&b.Notes,
			&b.Date,
			&b.TimeOfDay,
			&b.DurationMinutes,
			&b.StartTime,
			&b.EndTime,
			&b.Status,
			&b.CreatedAt,
			&b.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// lockIdempotencyKey claims the key row for the duration of the
// transaction. The second return is true when a previous request already
// finished and recorded its booking id, meaning the caller should replay
// that booking instead of inserting a new one.
func (r *BookingRepository) lockIdempotencyKey(ctx context.Context, tx pgx.Tx, businessID, key string) (string, bool, error) {
	bookingID, err := selectIdempotencyForUpdate(ctx, tx, businessID, key)
	if err == nil {
		return bookingID, bookingID != "", nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", false, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (business_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (business_id, idempotency_key) DO NOTHING
	`, businessID, key)
	if err != nil {
		return "", false, err
	}

	bookingID, err = selectIdempotencyForUpdate(ctx, tx, businessID, key)
	if err != nil {
		return "", false, err
	}
	return bookingID, bookingID != "", nil
}

func (r *BookingRepository) finalizeIdempotencyKey(ctx context.Context, tx pgx.Tx, businessID, key, bookingID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET booking_id = $3,
			updated_at = now()
		WHERE business_id = $1 AND idempotency_key = $2
	`, businessID, key, bookingID)
	return err
}

func selectIdempotencyForUpdate(ctx context.Context, tx pgx.Tx, businessID, key string) (string, error) {
	var bookingID string
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(booking_id::text, '')
		FROM booking_idempotency_keys
		WHERE business_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, businessID, key).Scan(&bookingID)
	if err != nil {
		return "", err
	}
	return bookingID, nil
}

func (r *BookingRepository) insertEvent(ctx context.Context, tx pgx.Tx, eventType string, b model.Booking) error {
	payload, err := json.Marshal(eventPayload{
		BookingID:    b.ID,
		BusinessID:   b.BusinessID,
		StaffID:      b.StaffID,
		ServiceID:    b.ServiceID,
		CustomerName: b.CustomerName,
		StartTime:    b.StartTime,
		EndTime:      b.EndTime,
		Status:       b.Status,
	})
	if err != nil {
		return err
	}
	return r.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: outbox.AggregateBooking,
		AggregateID:   b.ID,
		EventType:     eventType,
		Payload:       payload,
	})
}

type eventPayload struct {
	BookingID    string     `json:"booking_id"`
	BusinessID   string     `json:"business_id"`
	StaffID      string     `json:"staff_id"`
	ServiceID    string     `json:"service_id,omitempty"`
	CustomerName string     `json:"customer_name"`
	StartTime    *time.Time `json:"start_time"`
	EndTime      *time.Time `json:"end_time"`
	Status       string     `json:"status"`
}
