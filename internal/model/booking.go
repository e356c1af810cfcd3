package model

import "time"

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// DefaultDurationMinutes is used when a booking row carries no resolvable
// duration (legacy rows imported before the service catalog existed).
const DefaultDurationMinutes = 45

// Booking is one reserved time range for one staff member.
//
// StartTime/EndTime are the precise interval and are always written on new
// rows. Date ("2006-01-02") and TimeOfDay ("15:04") are kept alongside so
// legacy rows without timestamps can still be evaluated for overlap.
type Booking struct {
	ID              string
	BusinessID      string
	StaffID         string
	ServiceID       string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	Notes           string
	Date            string
	TimeOfDay       string
	DurationMinutes int
	StartTime       *time.Time
	EndTime         *time.Time
	Status          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Blocks reports whether the booking occupies its time range for
// availability purposes. Cancelled bookings never block.
func (b Booking) Blocks() bool {
	return b.Status != StatusCancelled
}

func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}
