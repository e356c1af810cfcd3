// Package availability holds the pure scheduling math: generating the slot
// grid for a working window and deciding whether a candidate slot conflicts
// with existing bookings. Nothing in here touches storage; the database
// exclusion constraint remains the final arbiter at commit time and these
// results are advisory.
package availability

import (
	"fmt"
	"time"

	"github.com/umutdemirel/bookable/internal/model"
)

type Interval struct {
	Start time.Time
	End   time.Time
}

// Slot is one candidate start time within a working window, annotated with
// the advisory availability verdict. Time is a wall-clock "15:04" string.
type Slot struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

// Overlaps reports whether the half-open intervals [aStart,aEnd) and
// [bStart,bEnd) intersect. A range ending exactly when another starts does
// not overlap. This is the single overlap formula used everywhere.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// SlotStarts returns the ordered slot grid for [windowStart, windowEnd):
// starts at windowStart and steps by interval, keeping only slots that fit
// entirely inside the window. A partial trailing slot is dropped, never
// rounded. Returns nil on invalid configuration (non-positive interval or
// inverted window); callers treat that as a configuration error.
func SlotStarts(windowStart, windowEnd time.Time, interval time.Duration) []time.Time {
	if interval <= 0 {
		return nil
	}
	if !windowEnd.After(windowStart) {
		return nil
	}

	var starts []time.Time
	for t := windowStart; !t.Add(interval).After(windowEnd); t = t.Add(interval) {
		starts = append(starts, t)
	}
	return starts
}

// IsAvailable reports whether a booking of the given duration starting at
// slotStart would avoid every busy interval. It stops at the first conflict.
func IsAvailable(slotStart time.Time, duration time.Duration, busy []Interval) bool {
	slotEnd := slotStart.Add(duration)
	for _, b := range busy {
		if Overlaps(slotStart, slotEnd, b.Start, b.End) {
			return false
		}
	}
	return true
}

// BookingInterval resolves the occupied interval of a booking. Rows written
// by this service carry explicit timestamps; legacy rows are reconstructed
// from Date + TimeOfDay + DurationMinutes (default 45 when unset). Every
// non-cancelled row must yield an interval, so an unparseable fallback is an
// error rather than a silently skipped booking.
func BookingInterval(b model.Booking) (Interval, error) {
	if b.StartTime != nil && b.EndTime != nil {
		return Interval{Start: *b.StartTime, End: *b.EndTime}, nil
	}

	day, err := time.ParseInLocation("2006-01-02", b.Date, time.UTC)
	if err != nil {
		return Interval{}, fmt.Errorf("booking %s: invalid date %q: %w", b.ID, b.Date, err)
	}
	clock, err := time.Parse("15:04", b.TimeOfDay)
	if err != nil {
		return Interval{}, fmt.Errorf("booking %s: invalid time %q: %w", b.ID, b.TimeOfDay, err)
	}
	mins := b.DurationMinutes
	if mins <= 0 {
		mins = model.DefaultDurationMinutes
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, time.UTC)
	return Interval{Start: start, End: start.Add(time.Duration(mins) * time.Minute)}, nil
}

// BusyIntervals maps the blocking bookings of a day to their occupied
// intervals. Cancelled bookings are excluded from the blocking set.
func BusyIntervals(bookings []model.Booking) ([]Interval, error) {
	busy := make([]Interval, 0, len(bookings))
	for _, b := range bookings {
		if !b.Blocks() {
			continue
		}
		iv, err := BookingInterval(b)
		if err != nil {
			return nil, err
		}
		busy = append(busy, iv)
	}
	return busy, nil
}

// Annotate composes the grid and the conflict check: every slot of the
// window, ascending, marked available unless it overlaps a busy interval,
// would run past the window end, or starts before now. Pass a zero now to
// skip the past-slot check.
func Annotate(windowStart, windowEnd time.Time, interval, duration time.Duration, busy []Interval, now time.Time) []Slot {
	starts := SlotStarts(windowStart, windowEnd, interval)
	slots := make([]Slot, 0, len(starts))
	for _, t := range starts {
		ok := !t.Add(duration).After(windowEnd) &&
			(now.IsZero() || !t.Before(now)) &&
			IsAvailable(t, duration, busy)
		slots = append(slots, Slot{Time: t.Format("15:04"), Available: ok})
	}
	return slots
}

// AvailableTimes filters an annotated slot list down to the bookable starts.
func AvailableTimes(slots []Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		if s.Available {
			out = append(out, s.Time)
		}
	}
	return out
}
