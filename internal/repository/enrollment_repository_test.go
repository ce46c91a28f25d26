package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/special-week-api/internal/models"
)

func TestEnrollmentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO enrollments").
		WithArgs(sqlmock.AnyArg(), "s1", "p1", "CONFIRMED", true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	enrollment := &models.Enrollment{StudentID: "s1", PlacementID: "p1", Forced: true}
	require.NoError(t, repo.Create(context.Background(), nil, enrollment))
	assert.Equal(t, models.EnrollmentStatusConfirmed, enrollment.Status)
	assert.NotEmpty(t, enrollment.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCountConfirmed(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE placement_id = $1 AND status = 'CONFIRMED'")).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := repo.CountConfirmed(context.Background(), nil, "p1")
	require.NoError(t, err)
	assert.Equal(t, 7, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryExistsConfirmed(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery("SELECT 1 FROM enrollments WHERE student_id").
		WithArgs("s1", "p1").
		WillReturnError(sql.ErrNoRows)

	exists, err := repo.ExistsConfirmed(context.Background(), nil, "s1", "p1")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListBookings(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery("SELECT e.id AS enrollment_id").
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"enrollment_id", "student_id", "placement_id", "workshop_title", "duration", "start_slot_id"}).
			AddRow("e1", "s1", "p1", "Robotics", 6, "mon-1"))

	bookings, err := repo.ListBookings(context.Background(), nil, "s1")
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, 6, bookings[0].Duration)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListByStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "student_id", "placement_id", "status", "forced", "created_at", "cancelled_at",
		"workshop_id", "workshop_title", "workshop_duration", "start_slot_id", "day_of_week", "block"}).
		AddRow("e1", "s1", "p1", "CONFIRMED", false, time.Now(), nil, "w1", "Robotics", 6, "mon-1", 1, 1)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.student_id = $1 AND e.status = 'CONFIRMED' ORDER BY s.day_of_week, s.position")).
		WithArgs("s1").
		WillReturnRows(rows)

	list, err := repo.ListByStudent(context.Background(), "s1", false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.Monday, list[0].DayOfWeek)
	assert.Nil(t, list[0].CancelledAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCancel(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = 'CANCELLED', cancelled_at = $2 WHERE id = $1 AND status = 'CONFIRMED'")).
		WithArgs("e1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status = 'CONFIRMED'")).
		WithArgs("e1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Cancel(context.Background(), nil, "e1"))
	assert.ErrorIs(t, repo.Cancel(context.Background(), nil, "e1"), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCancelByPlacement(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE placement_id = $1 AND status = 'CONFIRMED'")).
		WithArgs("p1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	affected, err := repo.CancelByPlacement(context.Background(), nil, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}
