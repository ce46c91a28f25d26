package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTeacherRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	rows := sqlmock.NewRows([]string{"id", "acronym", "full_name", "max_load"}).
		AddRow("t1", "ABC", "Ada Bc", 8).
		AddRow("t2", "XYZ", "Xe Yz", 0)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, acronym, full_name, max_load FROM teachers ORDER BY acronym")).
		WillReturnRows(rows)

	teachers, err := repo.List(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, teachers, 2)
	assert.Equal(t, 8, teachers[0].MaxLoad)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryListByIDsSkipsEmpty(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	teachers, err := repo.ListByIDs(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Nil(t, teachers)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryListAvailabilityFiltersTeachers(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT teacher_id, slot_id FROM teacher_availability WHERE teacher_id = ANY($1) ORDER BY teacher_id, slot_id")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"teacher_id", "slot_id"}).AddRow("t1", "mon-1"))

	rows, err := repo.ListAvailability(context.Background(), nil, []string{"t1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "mon-1", rows[0].SlotID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryLoadUsed(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectQuery("SELECT wt.teacher_id, COALESCE\\(SUM\\(w.duration\\), 0\\) AS used").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"teacher_id", "used"}).AddRow("t1", 6))

	used, err := repo.LoadUsed(context.Background(), nil, []string{"t1", "t2"})
	require.NoError(t, err)
	assert.Equal(t, 6, used["t1"])
	assert.Equal(t, 0, used["t2"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
