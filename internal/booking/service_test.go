package booking

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/umutdemirel/bookable/internal/availability"
	"github.com/umutdemirel/bookable/internal/model"
)

// memStore mimics the database contract: Reserve and Update reject any
// overlap with a non-cancelled booking for the same staff member, and the
// check plus the write happen under one lock, like a single transaction
// hitting the exclusion constraint.
type memStore struct {
	mu       sync.Mutex
	bookings map[string]model.Booking
	idemKeys map[string]string
}

func newMemStore() *memStore {
	return &memStore{bookings: map[string]model.Booking{}, idemKeys: map[string]string{}}
}

func exclusionViolation() error {
	return &pgconn.PgError{Code: "23P01", ConstraintName: "bookings_no_overlap"}
}

func (s *memStore) Reserve(ctx context.Context, b *model.Booking, idempotencyKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idempotencyKey != "" {
		if id, ok := s.idemKeys[b.BusinessID+"/"+idempotencyKey]; ok {
			*b = s.bookings[id]
			return nil
		}
	}
	for _, other := range s.bookings {
		if other.StaffID == b.StaffID && other.Status != model.StatusCancelled &&
			availability.Overlaps(*b.StartTime, *b.EndTime, *other.StartTime, *other.EndTime) {
			return exclusionViolation()
		}
	}
	s.bookings[b.ID] = *b
	if idempotencyKey != "" {
		s.idemKeys[b.BusinessID+"/"+idempotencyKey] = b.ID
	}
	return nil
}

func (s *memStore) Get(ctx context.Context, businessID, id string) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok || b.BusinessID != businessID {
		return model.Booking{}, pgx.ErrNoRows
	}
	return b, nil
}

func (s *memStore) Update(ctx context.Context, b *model.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bookings[b.ID]; !ok {
		return pgx.ErrNoRows
	}
	if b.Status != model.StatusCancelled {
		for id, other := range s.bookings {
			if id == b.ID || other.StaffID != b.StaffID || other.Status == model.StatusCancelled {
				continue
			}
			if availability.Overlaps(*b.StartTime, *b.EndTime, *other.StartTime, *other.EndTime) {
				return exclusionViolation()
			}
		}
	}
	s.bookings[b.ID] = *b
	return nil
}

func (s *memStore) ListDay(ctx context.Context, businessID, staffID string, dayStart, dayEnd time.Time) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Booking
	for _, b := range s.bookings {
		if b.BusinessID != businessID {
			continue
		}
		if staffID != "" && b.StaffID != staffID {
			continue
		}
		if b.StartTime != nil && b.EndTime != nil &&
			availability.Overlaps(*b.StartTime, *b.EndTime, dayStart, dayEnd) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memStore) ListRecent(ctx context.Context, businessID string, limit int) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Booking
	for _, b := range s.bookings {
		if b.BusinessID == businessID {
			out = append(out, b)
		}
	}
	return out, nil
}

type fakeCatalog struct {
	durations    map[string]int
	slotInterval int
	startMinute  int
	endMinute    int
	closedDays   map[time.Weekday]bool
	timeOff      []availability.Interval
	defaultStaff string
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		durations:    map[string]int{},
		slotInterval: 45,
		startMinute:  9 * 60,
		endMinute:    19 * 60,
		closedDays:   map[time.Weekday]bool{},
	}
}

func (c *fakeCatalog) ServiceDuration(ctx context.Context, businessID, serviceID string) (int, error) {
	d, ok := c.durations[serviceID]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	return d, nil
}

func (c *fakeCatalog) SlotInterval(ctx context.Context, businessID string) (int, error) {
	return c.slotInterval, nil
}

func (c *fakeCatalog) WorkingWindow(ctx context.Context, businessID, staffID string, weekday time.Weekday) (int, int, bool, error) {
	if c.closedDays[weekday] {
		return 0, 0, false, nil
	}
	return c.startMinute, c.endMinute, true, nil
}

func (c *fakeCatalog) TimeOff(ctx context.Context, businessID, staffID string, from, to time.Time) ([]availability.Interval, error) {
	return c.timeOff, nil
}

func (c *fakeCatalog) DefaultStaff(ctx context.Context, businessID string) (string, error) {
	if c.defaultStaff == "" {
		return "", pgx.ErrNoRows
	}
	return c.defaultStaff, nil
}

func newTestService(store Store, cat Catalog) *Service {
	return NewService(store, cat, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func createInput() CreateInput {
	return CreateInput{
		BusinessID:   "biz-1",
		StaffID:      "staff-1",
		CustomerName: "Ayse Kaya",
		Date:         "2026-09-14",
		Time:         "10:30",
	}
}

func TestCreateCommitsBooking(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, newFakeCatalog())

	b, err := svc.Create(context.Background(), createInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.ID == "" {
		t.Fatalf("expected generated booking id")
	}
	if b.Status != model.StatusConfirmed {
		t.Fatalf("status = %q, want %q", b.Status, model.StatusConfirmed)
	}
	wantStart := time.Date(2026, 9, 14, 10, 30, 0, 0, time.UTC)
	if !b.StartTime.Equal(wantStart) {
		t.Fatalf("start = %v, want %v", b.StartTime, wantStart)
	}
	if got := b.EndTime.Sub(*b.StartTime); got != 45*time.Minute {
		t.Fatalf("duration = %v, want 45m", got)
	}
}

func TestCreateUsesServiceDuration(t *testing.T) {
	store := newMemStore()
	cat := newFakeCatalog()
	cat.durations["svc-massage"] = 90
	svc := newTestService(store, cat)

	in := createInput()
	in.ServiceID = "svc-massage"
	b, err := svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := b.EndTime.Sub(*b.StartTime); got != 90*time.Minute {
		t.Fatalf("duration = %v, want 90m", got)
	}
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(newMemStore(), newFakeCatalog())

	cases := []struct {
		name   string
		mutate func(*CreateInput)
	}{
		{"missing customer name", func(in *CreateInput) { in.CustomerName = "" }},
		{"missing date", func(in *CreateInput) { in.Date = "" }},
		{"bad date", func(in *CreateInput) { in.Date = "14.09.2026" }},
		{"bad time", func(in *CreateInput) { in.Time = "10:30pm" }},
		{"unknown service", func(in *CreateInput) { in.ServiceID = "svc-unknown" }},
	}
	for _, tc := range cases {
		in := createInput()
		tc.mutate(&in)
		_, err := svc.Create(context.Background(), in)
		if !IsValidation(err) {
			t.Fatalf("%s: err = %v, want validation error", tc.name, err)
		}
	}
}

func TestCreateConcurrentSameSlot(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, newFakeCatalog())

	const attempts = 8
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(context.Background(), createInput())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var committed, conflicted int
	for err := range errs {
		switch {
		case err == nil:
			committed++
		case IsConflict(err):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if committed != 1 {
		t.Fatalf("committed = %d, want exactly 1", committed)
	}
	if conflicted != attempts-1 {
		t.Fatalf("conflicted = %d, want %d", conflicted, attempts-1)
	}
}

func TestCreateIdempotentReplay(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, newFakeCatalog())

	in := createInput()
	in.IdempotencyKey = "retry-abc"
	first, err := svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("first Create: %v", err)
	}
	second, err := svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("replay returned booking %s, want %s", second.ID, first.ID)
	}
	if len(store.bookings) != 1 {
		t.Fatalf("store holds %d bookings, want 1", len(store.bookings))
	}
}

func TestCreateMapsTransientErrors(t *testing.T) {
	svc := newTestService(failingStore{memStore: newMemStore(), err: &pgconn.PgError{Code: "57014"}}, newFakeCatalog())

	_, err := svc.Create(context.Background(), createInput())
	if !IsTransient(err) {
		t.Fatalf("err = %v, want transient", err)
	}
}

type failingStore struct {
	*memStore
	err error
}

func (s failingStore) Reserve(ctx context.Context, b *model.Booking, idempotencyKey string) error {
	return s.err
}

func TestRescheduleMovesBooking(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, newFakeCatalog())

	b, err := svc.Create(context.Background(), createInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	newTime := "14:00"
	updated, err := svc.Reschedule(context.Background(), UpdateInput{
		BusinessID: b.BusinessID,
		ID:         b.ID,
		Time:       &newTime,
	})
	if err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	wantStart := time.Date(2026, 9, 14, 14, 0, 0, 0, time.UTC)
	if !updated.StartTime.Equal(wantStart) {
		t.Fatalf("start = %v, want %v", updated.StartTime, wantStart)
	}
	if got := updated.EndTime.Sub(*updated.StartTime); got != 45*time.Minute {
		t.Fatalf("duration changed to %v on reschedule", got)
	}
}

func TestRescheduleOntoOccupiedSlotConflicts(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, newFakeCatalog())

	first, err := svc.Create(context.Background(), createInput())
	if err != nil {
		t.Fatalf("Create first: %v", err)
	}
	in := createInput()
	in.Time = "14:00"
	second, err := svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create second: %v", err)
	}

	target := "14:00"
	_, err = svc.Reschedule(context.Background(), UpdateInput{
		BusinessID: first.BusinessID,
		ID:         first.ID,
		Time:       &target,
	})
	if !IsConflict(err) {
		t.Fatalf("err = %v, want conflict with booking %s", err, second.ID)
	}
}

func TestRescheduleUnknownBooking(t *testing.T) {
	svc := newTestService(newMemStore(), newFakeCatalog())

	d := "2026-09-15"
	_, err := svc.Reschedule(context.Background(), UpdateInput{BusinessID: "biz-1", ID: "missing", Date: &d})
	if !IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestRescheduleRejectsBadStatus(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, newFakeCatalog())

	b, err := svc.Create(context.Background(), createInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	bad := "rescheduled"
	_, err = svc.Reschedule(context.Background(), UpdateInput{BusinessID: b.BusinessID, ID: b.ID, Status: &bad})
	if !IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, newFakeCatalog())

	b, err := svc.Create(context.Background(), createInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	first, err := svc.Cancel(context.Background(), b.BusinessID, b.ID)
	if err != nil {
		t.Fatalf("first Cancel: %v", err)
	}
	if first.Status != model.StatusCancelled {
		t.Fatalf("status = %q, want cancelled", first.Status)
	}
	second, err := svc.Cancel(context.Background(), b.BusinessID, b.ID)
	if err != nil {
		t.Fatalf("second Cancel: %v", err)
	}
	if second.Status != model.StatusCancelled {
		t.Fatalf("status after replay = %q, want cancelled", second.Status)
	}
}

func TestCancelledSlotBecomesBookable(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, newFakeCatalog())

	b, err := svc.Create(context.Background(), createInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Cancel(context.Background(), b.BusinessID, b.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := svc.Create(context.Background(), createInput()); err != nil {
		t.Fatalf("rebooking a cancelled slot: %v", err)
	}
}

func TestAvailabilityMarksBusySlots(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, newFakeCatalog())
	svc.now = func() time.Time { return time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC) }

	if _, err := svc.Create(context.Background(), createInput()); err != nil {
		t.Fatalf("Create: %v", err)
	}

	day, err := svc.Availability(context.Background(), AvailabilityQuery{
		BusinessID: "biz-1",
		StaffID:    "staff-1",
		Date:       "2026-09-14",
	})
	if err != nil {
		t.Fatalf("Availability: %v", err)
	}
	if len(day.AllSlots) != 13 {
		t.Fatalf("grid has %d slots, want 13", len(day.AllSlots))
	}
	byTime := map[string]bool{}
	for _, s := range day.AllSlots {
		byTime[s.Time] = s.Available
	}
	if byTime["10:30"] {
		t.Fatalf("10:30 should be blocked by the existing booking")
	}
	if !byTime["09:45"] || !byTime["11:15"] {
		t.Fatalf("neighbors of the booked slot should stay available: %v", byTime)
	}
}

func TestAvailabilityExcludesTimeOff(t *testing.T) {
	store := newMemStore()
	cat := newFakeCatalog()
	cat.timeOff = []availability.Interval{{
		Start: time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 9, 14, 12, 0, 0, 0, time.UTC),
	}}
	svc := newTestService(store, cat)
	svc.now = func() time.Time { return time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC) }

	day, err := svc.Availability(context.Background(), AvailabilityQuery{
		BusinessID: "biz-1",
		StaffID:    "staff-1",
		Date:       "2026-09-14",
	})
	if err != nil {
		t.Fatalf("Availability: %v", err)
	}
	for _, s := range day.AllSlots {
		start, _ := time.Parse("15:04", s.Time)
		beforeNoon := start.Hour() < 12
		if beforeNoon && s.Available {
			t.Fatalf("slot %s falls inside time off but is available", s.Time)
		}
	}
}

func TestAvailabilityNonWorkingDay(t *testing.T) {
	cat := newFakeCatalog()
	cat.closedDays[time.Sunday] = true
	svc := newTestService(newMemStore(), cat)

	day, err := svc.Availability(context.Background(), AvailabilityQuery{
		BusinessID: "biz-1",
		StaffID:    "staff-1",
		Date:       "2026-09-13",
	})
	if err != nil {
		t.Fatalf("Availability: %v", err)
	}
	if day.AvailableSlots == nil || day.AllSlots == nil {
		t.Fatalf("closed day must serialize as empty arrays, not null")
	}
	if len(day.AllSlots) != 0 {
		t.Fatalf("closed day has %d slots, want 0", len(day.AllSlots))
	}
}

func TestAvailabilityResolvesDefaultStaff(t *testing.T) {
	store := newMemStore()
	cat := newFakeCatalog()
	cat.defaultStaff = "staff-1"
	svc := newTestService(store, cat)
	svc.now = func() time.Time { return time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC) }

	if _, err := svc.Create(context.Background(), createInput()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	day, err := svc.Availability(context.Background(), AvailabilityQuery{
		BusinessID: "biz-1",
		Date:       "2026-09-14",
	})
	if err != nil {
		t.Fatalf("Availability: %v", err)
	}
	for _, s := range day.AllSlots {
		if s.Time == "10:30" && s.Available {
			t.Fatalf("10:30 should be blocked for the default staff member")
		}
	}
}

func TestAvailabilityRequiresStaffWhenAmbiguous(t *testing.T) {
	svc := newTestService(newMemStore(), newFakeCatalog())

	_, err := svc.Availability(context.Background(), AvailabilityQuery{
		BusinessID: "biz-1",
		Date:       "2026-09-14",
	})
	if !IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
}
