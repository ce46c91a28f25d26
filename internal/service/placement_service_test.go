package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/special-week-api/internal/dto"
	"github.com/noah-isme/special-week-api/internal/models"
	appErrors "github.com/noah-isme/special-week-api/pkg/errors"
)

type placementFixture struct {
	workshops   []models.Workshop
	rooms       []models.Room
	teachers    teacherStub
	duties      []models.Duty
	placements  *placementStub
	enrollments *enrollmentStub
	locks       *lockStub
	cache       *cacheStub
}

func defaultPlacementFixture() *placementFixture {
	return &placementFixture{
		workshops: []models.Workshop{
			{ID: "w1", Title: "Robotics", Duration: models.DurationHalf, MaxCapacity: 12, TeacherIDs: []string{"t1", "t2"}, Status: models.WorkshopStatusApproved},
			{ID: "w2", Title: "Choir", Duration: models.DurationShort, MaxCapacity: 30, TeacherIDs: []string{"t3"}, Status: models.WorkshopStatusProposed},
		},
		rooms: []models.Room{
			{ID: "r1", Name: "Lab", Capacity: 20, Available: true},
			{ID: "r2", Name: "Closet", Capacity: 5, Available: true},
			{ID: "r3", Name: "Gym", Capacity: 100, Available: false},
		},
		teachers:    teacherStub{teachers: []models.Teacher{{ID: "t1", MaxLoad: 10}, {ID: "t2"}}},
		placements:  &placementStub{},
		enrollments: &enrollmentStub{},
		locks:       &lockStub{},
		cache:       newCacheStub(),
	}
}

func (f *placementFixture) service(tx txProvider) *PlacementService {
	return NewPlacementService(PlacementServiceDeps{
		Tx:          tx,
		Slots:       slotStub{slots: weekSlots()},
		Rooms:       roomStub{rooms: f.rooms},
		Workshops:   workshopStub{workshops: f.workshops},
		Teachers:    f.teachers,
		Duties:      dutyStub{duties: f.duties},
		Placements:  f.placements,
		Enrollments: f.enrollments,
		Locks:       f.locks,
		Cache:       f.cache,
		ShortDay:    models.Wednesday,
	})
}

func requireRejection(t *testing.T, err error, base *appErrors.Error, reason string) *models.SlotConflictError {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, base)
	var detail *models.SlotConflictError
	require.True(t, errors.As(err, &detail), "expected a slot conflict error, got %v", err)
	assert.Equal(t, reason, detail.Reason)
	return detail
}

func TestPlacementServiceCreate(t *testing.T) {
	fx := defaultPlacementFixture()
	tx, mock := newSQLMockTx(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	placement, err := fx.service(tx).Create(context.Background(), dto.CreatePlacementRequest{WorkshopID: "w1", RoomID: "r1", StartSlotID: "tue-2"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, "placement-1", placement.ID)
	assert.Equal(t, 2, placement.SlotCount)
	assert.Equal(t, models.PlacementSourceManual, placement.Source)
	assert.Equal(t, []string{"room:r1", "teacher:t1", "teacher:t2"}, fx.locks.keys)
	assert.Equal(t, 1, fx.locks.shared)
	assert.Equal(t, []string{"special-week:timetable:*"}, fx.cache.invalidated)
}

func TestPlacementServiceCreateLocksKeysInSortedOrder(t *testing.T) {
	fx := defaultPlacementFixture()
	fx.workshops[0].TeacherIDs = []string{"t2", "t1"}
	tx, mock := newSQLMockTx(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	_, err := fx.service(tx).Create(context.Background(), dto.CreatePlacementRequest{WorkshopID: "w1", RoomID: "r1", StartSlotID: "tue-2"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.True(t, sort.StringsAreSorted(fx.locks.keys), "advisory keys out of order: %v", fx.locks.keys)
	assert.Equal(t, []string{"room:r1", "teacher:t1", "teacher:t2"}, fx.locks.keys)
}

func TestPlacementServiceCreateRejectionHoldsSharedBatchLock(t *testing.T) {
	fx := defaultPlacementFixture()
	fx.placements.activities = []models.PlacementActivity{
		{PlacementID: "p0", WorkshopID: "w9", WorkshopTitle: "Chess", Duration: models.DurationShort, RoomID: "r1", StartSlotID: "mon-1", TeacherIDs: []string{"t9"}},
	}
	tx, mock := newSQLMockTx(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := fx.service(tx).Create(context.Background(), dto.CreatePlacementRequest{WorkshopID: "w1", RoomID: "r1", StartSlotID: "mon-1"})
	requireRejection(t, err, appErrors.ErrConflict, "ROOM_BUSY")
	assert.Equal(t, 1, fx.locks.shared)
}

func TestPlacementServiceCreateTeacherBusy(t *testing.T) {
	fx := defaultPlacementFixture()
	fx.placements.activities = []models.PlacementActivity{
		{PlacementID: "p0", WorkshopID: "w9", WorkshopTitle: "Chess", Duration: models.DurationShort, RoomID: "r2", StartSlotID: "mon-2", TeacherIDs: []string{"t2"}},
	}
	tx, mock := newSQLMockTx(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := fx.service(tx).Create(context.Background(), dto.CreatePlacementRequest{WorkshopID: "w1", RoomID: "r1", StartSlotID: "mon-1"})
	detail := requireRejection(t, err, appErrors.ErrConflict, "TEACHER_BUSY")
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, "AVAILABILITY", detail.Category)
	require.NotNil(t, detail.Conflict)
	assert.Equal(t, models.ConflictTeacher, detail.Conflict.Type)
	assert.Equal(t, "Chess", detail.Conflict.ConflictingActivityName)
	assert.Equal(t, models.Monday, detail.Conflict.Day)
	assert.Equal(t, models.BlockEarlyAfternoon, detail.Conflict.Period)
	assert.Empty(t, fx.placements.created)
}

func TestPlacementServiceCreateDutyConflict(t *testing.T) {
	fx := defaultPlacementFixture()
	fx.duties = []models.Duty{{ID: "d1", TeacherID: "t1", SlotID: "thu-1", Label: "Yard supervision"}}
	tx, mock := newSQLMockTx(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := fx.service(tx).Create(context.Background(), dto.CreatePlacementRequest{WorkshopID: "w1", RoomID: "r1", StartSlotID: "thu-1"})
	detail := requireRejection(t, err, appErrors.ErrConflict, "TEACHER_BUSY")
	require.NotNil(t, detail.Conflict)
	assert.Equal(t, models.ConflictDuty, detail.Conflict.Type)
	assert.Equal(t, "Yard supervision", detail.Conflict.ConflictingActivityName)
}

func TestPlacementServiceCreateRoomBusy(t *testing.T) {
	fx := defaultPlacementFixture()
	fx.placements.activities = []models.PlacementActivity{
		{PlacementID: "p0", WorkshopID: "w9", WorkshopTitle: "Chess", Duration: models.DurationFull, RoomID: "r1", StartSlotID: "fri-1", TeacherIDs: []string{"t9"}},
	}
	tx, mock := newSQLMockTx(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := fx.service(tx).Create(context.Background(), dto.CreatePlacementRequest{WorkshopID: "w1", RoomID: "r1", StartSlotID: "fri-2"})
	detail := requireRejection(t, err, appErrors.ErrConflict, "ROOM_BUSY")
	require.NotNil(t, detail.Conflict)
	assert.Equal(t, models.ConflictRoom, detail.Conflict.Type)
}

func TestPlacementServiceCreateOutOfCalendar(t *testing.T) {
	fx := defaultPlacementFixture()
	tx, mock := newSQLMockTx(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := fx.service(tx).Create(context.Background(), dto.CreatePlacementRequest{WorkshopID: "w1", RoomID: "r1", StartSlotID: "mon-3"})
	detail := requireRejection(t, err, appErrors.ErrUnprocessable, "OUT_OF_CALENDAR")
	assert.Equal(t, "STRUCTURAL", detail.Category)
	assert.Nil(t, detail.Conflict)
}

func TestPlacementServiceCreateShortDayAfternoon(t *testing.T) {
	fx := defaultPlacementFixture()
	tx, mock := newSQLMockTx(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := fx.service(tx).Create(context.Background(), dto.CreatePlacementRequest{WorkshopID: "w1", RoomID: "r1", StartSlotID: "wed-2"})
	requireRejection(t, err, appErrors.ErrUnprocessable, "OUT_OF_CALENDAR")
}

func TestPlacementServiceCreateRoomTooSmall(t *testing.T) {
	fx := defaultPlacementFixture()
	tx, mock := newSQLMockTx(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := fx.service(tx).Create(context.Background(), dto.CreatePlacementRequest{WorkshopID: "w1", RoomID: "r2", StartSlotID: "mon-1"})
	detail := requireRejection(t, err, appErrors.ErrUnprocessable, "ROOM_TOO_SMALL")
	assert.Equal(t, "CAPACITY", detail.Category)
}

func TestPlacementServiceCreateLoadExceeded(t *testing.T) {
	fx := defaultPlacementFixture()
	fx.teachers.used = map[string]int{"t1": 8}
	tx, mock := newSQLMockTx(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := fx.service(tx).Create(context.Background(), dto.CreatePlacementRequest{WorkshopID: "w1", RoomID: "r1", StartSlotID: "mon-1"})
	detail := requireRejection(t, err, appErrors.ErrUnprocessable, "LOAD_EXCEEDED")
	assert.Equal(t, "LOAD", detail.Category)
}

func TestPlacementServiceCreateTeacherUnavailable(t *testing.T) {
	fx := defaultPlacementFixture()
	fx.teachers.availability = []models.TeacherAvailability{{TeacherID: "t2", SlotID: "mon-1"}}
	tx, mock := newSQLMockTx(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := fx.service(tx).Create(context.Background(), dto.CreatePlacementRequest{WorkshopID: "w1", RoomID: "r1", StartSlotID: "mon-1"})
	requireRejection(t, err, appErrors.ErrConflict, "TEACHER_UNAVAILABLE")
}

func TestPlacementServiceCreateReportsUnavailableBeforeBusy(t *testing.T) {
	fx := defaultPlacementFixture()
	fx.teachers.availability = []models.TeacherAvailability{{TeacherID: "t2", SlotID: "mon-1"}}
	fx.placements.activities = []models.PlacementActivity{
		{PlacementID: "p0", WorkshopID: "w9", WorkshopTitle: "Chess", Duration: models.DurationShort, RoomID: "r2", StartSlotID: "mon-2", TeacherIDs: []string{"t2"}},
	}
	tx, mock := newSQLMockTx(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := fx.service(tx).Create(context.Background(), dto.CreatePlacementRequest{WorkshopID: "w1", RoomID: "r1", StartSlotID: "mon-1"})
	detail := requireRejection(t, err, appErrors.ErrConflict, "TEACHER_UNAVAILABLE")
	assert.Nil(t, detail.Conflict)
	assert.Empty(t, fx.placements.created)
}

func TestPlacementServiceCreateReportsTooSmallBeforeRoomBusy(t *testing.T) {
	fx := defaultPlacementFixture()
	fx.placements.activities = []models.PlacementActivity{
		{PlacementID: "p0", WorkshopID: "w9", WorkshopTitle: "Chess", Duration: models.DurationShort, RoomID: "r2", StartSlotID: "mon-1", TeacherIDs: []string{"t9"}},
	}
	tx, mock := newSQLMockTx(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := fx.service(tx).Create(context.Background(), dto.CreatePlacementRequest{WorkshopID: "w1", RoomID: "r2", StartSlotID: "mon-1"})
	requireRejection(t, err, appErrors.ErrUnprocessable, "ROOM_TOO_SMALL")
}

func TestPlacementServiceCreatePreconditions(t *testing.T) {
	fx := defaultPlacementFixture()
	svc := fx.service(noopTx{})
	ctx := context.Background()

	_, err := svc.Create(ctx, dto.CreatePlacementRequest{WorkshopID: "w1"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Create(ctx, dto.CreatePlacementRequest{WorkshopID: "missing", RoomID: "r1", StartSlotID: "mon-1"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.Create(ctx, dto.CreatePlacementRequest{WorkshopID: "w2", RoomID: "r1", StartSlotID: "mon-1"})
	assert.ErrorIs(t, err, appErrors.ErrPreconditionFailed)

	_, err = svc.Create(ctx, dto.CreatePlacementRequest{WorkshopID: "w1", RoomID: "r3", StartSlotID: "mon-1"})
	assert.ErrorIs(t, err, appErrors.ErrPreconditionFailed)

	_, err = svc.Create(ctx, dto.CreatePlacementRequest{WorkshopID: "w1", RoomID: "missing", StartSlotID: "mon-1"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestPlacementServiceDeleteCancelsEnrollments(t *testing.T) {
	fx := defaultPlacementFixture()
	fx.enrollments.byPlacement = 3
	tx, mock := newSQLMockTx(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	result, err := fx.service(tx).Delete(context.Background(), "p1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, "p1", result.PlacementID)
	assert.Equal(t, int64(3), result.CancelledEnrollments)
	assert.Equal(t, []string{"p1"}, fx.placements.deleted)
	assert.Equal(t, []string{"placement:p1"}, fx.locks.keys)
	assert.Equal(t, 1, fx.locks.shared)
}

func TestPlacementServiceDeleteNotFound(t *testing.T) {
	fx := defaultPlacementFixture()
	fx.placements.deleteErr = sql.ErrNoRows
	tx, mock := newSQLMockTx(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := fx.service(tx).Delete(context.Background(), "ghost")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Empty(t, fx.cache.invalidated)
}

func TestPlacementServiceListUsesCache(t *testing.T) {
	fx := defaultPlacementFixture()
	fx.placements.details = []models.PlacementDetail{{Placement: models.Placement{ID: "p1"}, WorkshopTitle: "Robotics"}}
	svc := fx.service(noopTx{})
	ctx := context.Background()

	first, err := svc.List(ctx, dto.PlacementQuery{})
	require.NoError(t, err)
	second, err := svc.List(ctx, dto.PlacementQuery{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, fx.placements.detailCalls)
	_, cached := fx.cache.values["special-week:timetable:all"]
	assert.True(t, cached)

	_, err = svc.List(ctx, dto.PlacementQuery{Day: "monday"})
	require.NoError(t, err)
	assert.Equal(t, 2, fx.placements.detailCalls)
	_, cached = fx.cache.values["special-week:timetable:MONDAY:w=:r=:t="]
	assert.True(t, cached)
}

func TestPlacementServiceListRejectsUnknownDay(t *testing.T) {
	fx := defaultPlacementFixture()

	_, err := fx.service(noopTx{}).List(context.Background(), dto.PlacementQuery{Day: "SUNDAY"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
