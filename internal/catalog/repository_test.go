package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *Repository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewRepository(mock)
}

func TestServiceDuration(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectQuery("FROM business_services").
		WithArgs("biz-1", "svc-1").
		WillReturnRows(pgxmock.NewRows([]string{"duration_minutes"}).AddRow(90))

	mins, err := repo.ServiceDuration(context.Background(), "biz-1", "svc-1")
	require.NoError(t, err)
	require.Equal(t, 90, mins)
}

func TestServiceDurationUnknownService(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectQuery("FROM business_services").
		WithArgs("biz-1", "svc-missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.ServiceDuration(context.Background(), "biz-1", "svc-missing")
	require.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestSlotIntervalCreatesDefaultProfile(t *testing.T) {
	mock, repo := newMockRepo(t)
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM business_profiles").
		WithArgs("biz-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO business_profiles").
		WithArgs("biz-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("FROM business_profiles").
		WithArgs("biz-1").
		WillReturnRows(pgxmock.
			NewRows([]string{"business_id", "name", "timezone", "slot_interval_minutes", "updated_at"}).
			AddRow("biz-1", "", "UTC", 45, now))

	mins, err := repo.SlotInterval(context.Background(), "biz-1")
	require.NoError(t, err)
	require.Equal(t, 45, mins)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkingWindowFallsBackToDefaultSchedule(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectQuery("FROM staff_working_hours").
		WillReturnError(pgx.ErrNoRows)

	start, end, working, err := repo.WorkingWindow(context.Background(), "biz-1", "staff-1", time.Wednesday)
	require.NoError(t, err)
	require.True(t, working)
	require.Equal(t, 540, start)
	require.Equal(t, 1020, end)

	mock.ExpectQuery("FROM staff_working_hours").
		WillReturnError(pgx.ErrNoRows)

	_, _, working, err = repo.WorkingWindow(context.Background(), "biz-1", "staff-1", time.Sunday)
	require.NoError(t, err)
	require.False(t, working)
}

func TestDefaultStaffRequiresExactlyOneActive(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectQuery("FROM staff").
		WithArgs("biz-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("staff-1"))

	id, err := repo.DefaultStaff(context.Background(), "biz-1")
	require.NoError(t, err)
	require.Equal(t, "staff-1", id)

	mock.ExpectQuery("FROM staff").
		WithArgs("biz-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("staff-1").AddRow("staff-2"))

	_, err = repo.DefaultStaff(context.Background(), "biz-1")
	require.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestCreateStaffSeedsWeeklySchedule(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO staff").
		WithArgs("biz-1", "Deniz", true).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("staff-1"))
	for wd := 0; wd <= 6; wd++ {
		mock.ExpectExec("INSERT INTO staff_working_hours").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	id, err := repo.CreateStaff(context.Background(), "biz-1", "Deniz", true)
	require.NoError(t, err)
	require.Equal(t, "staff-1", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimeOffConvertsToBusyIntervals(t *testing.T) {
	mock, repo := newMockRepo(t)
	start := time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Hour)

	mock.ExpectQuery("FROM staff_time_off").
		WillReturnRows(pgxmock.
			NewRows([]string{"id", "staff_id", "start_time", "end_time", "reason", "created_at"}).
			AddRow("to-1", "staff-1", start, end, "dentist", start))

	intervals, err := repo.TimeOff(context.Background(), "biz-1", "staff-1",
		start.Add(-time.Hour), end.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, intervals, 1)
	require.True(t, intervals[0].Start.Equal(start))
	require.True(t, intervals[0].End.Equal(end))
}
