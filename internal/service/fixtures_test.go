package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/special-week-api/internal/models"
	"github.com/noah-isme/special-week-api/pkg/jobs"
)

type sqlmockTx struct {
	db *sqlx.DB
}

func newSQLMockTx(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &sqlmockTx{db: sqlx.NewDb(db, "sqlmock")}, mock
}

func (s *sqlmockTx) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return s.db.BeginTxx(ctx, opts)
}

var dayPrefixes = map[models.Weekday]string{
	models.Monday:    "mon",
	models.Tuesday:   "tue",
	models.Wednesday: "wed",
	models.Thursday:  "thu",
	models.Friday:    "fri",
}

// weekSlots builds the three-block week; ids look like mon-1.
func weekSlots() []models.TimeSlot {
	var slots []models.TimeSlot
	for _, day := range models.Weekdays {
		for b := models.BlockMorning; b <= models.BlockLateAfternoon; b++ {
			slots = append(slots, models.TimeSlot{
				ID:       fmt.Sprintf("%s-%d", dayPrefixes[day], b),
				Day:      day,
				Block:    b,
				Position: (int(day)-1)*3 + int(b),
			})
		}
	}
	return slots
}

type slotStub struct{ slots []models.TimeSlot }

func (s slotStub) List(ctx context.Context, exec sqlx.ExtContext) ([]models.TimeSlot, error) {
	return s.slots, nil
}

type roomStub struct{ rooms []models.Room }

func (s roomStub) List(ctx context.Context, exec sqlx.ExtContext) ([]models.Room, error) {
	return s.rooms, nil
}

func (s roomStub) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Room, error) {
	for _, room := range s.rooms {
		if room.ID == id {
			r := room
			return &r, nil
		}
	}
	return nil, sql.ErrNoRows
}

type workshopStub struct{ workshops []models.Workshop }

func (s workshopStub) List(ctx context.Context, exec sqlx.ExtContext) ([]models.Workshop, error) {
	return s.workshops, nil
}

func (s workshopStub) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Workshop, error) {
	for _, w := range s.workshops {
		if w.ID == id {
			found := w
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

type teacherStub struct {
	teachers     []models.Teacher
	availability []models.TeacherAvailability
	used         map[string]int
}

func (s teacherStub) List(ctx context.Context, exec sqlx.ExtContext) ([]models.Teacher, error) {
	return s.teachers, nil
}

func (s teacherStub) ListByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]models.Teacher, error) {
	var out []models.Teacher
	for _, teacher := range s.teachers {
		for _, id := range ids {
			if teacher.ID == id {
				out = append(out, teacher)
			}
		}
	}
	return out, nil
}

func (s teacherStub) ListAvailability(ctx context.Context, exec sqlx.ExtContext, teacherIDs []string) ([]models.TeacherAvailability, error) {
	return s.availability, nil
}

func (s teacherStub) LoadUsed(ctx context.Context, exec sqlx.ExtContext, teacherIDs []string) (map[string]int, error) {
	out := make(map[string]int)
	for _, id := range teacherIDs {
		if used, ok := s.used[id]; ok {
			out[id] = used
		}
	}
	return out, nil
}

type dutyStub struct{ duties []models.Duty }

func (s dutyStub) List(ctx context.Context, exec sqlx.ExtContext, teacherIDs []string) ([]models.Duty, error) {
	return s.duties, nil
}

type placementStub struct {
	mu          sync.Mutex
	placements  []models.Placement
	activities  []models.PlacementActivity
	details     []models.PlacementDetail
	created     []models.Placement
	bulk        []models.Placement
	deleted     []string
	deleteErr   error
	detailCalls int
}

func (s *placementStub) ListAll(ctx context.Context, exec sqlx.ExtContext) ([]models.Placement, error) {
	return s.placements, nil
}

func (s *placementStub) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Placement, error) {
	for _, p := range s.placements {
		if p.ID == id {
			found := p
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *placementStub) ListDetails(ctx context.Context, filter models.PlacementFilter) ([]models.PlacementDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detailCalls++
	return s.details, nil
}

func (s *placementStub) ListActivities(ctx context.Context, exec sqlx.ExtContext) ([]models.PlacementActivity, error) {
	return s.activities, nil
}

func (s *placementStub) Create(ctx context.Context, exec sqlx.ExtContext, placement *models.Placement) error {
	placement.ID = fmt.Sprintf("placement-%d", len(s.created)+1)
	s.created = append(s.created, *placement)
	return nil
}

func (s *placementStub) BulkInsert(ctx context.Context, exec sqlx.ExtContext, placements []models.Placement) error {
	s.bulk = append(s.bulk, placements...)
	return nil
}

func (s *placementStub) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, id)
	return nil
}

type enrollmentStub struct {
	enrollments []models.Enrollment
	bookings    []models.StudentBooking
	details     []models.EnrollmentDetail
	exists      bool
	counts      []int
	countCalls  int
	created     []models.Enrollment
	cancelled   []string
	cancelErr   error
	byPlacement int64
}

func (s *enrollmentStub) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Enrollment, error) {
	for _, e := range s.enrollments {
		if e.ID == id {
			found := e
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *enrollmentStub) ExistsConfirmed(ctx context.Context, exec sqlx.ExtContext, studentID, placementID string) (bool, error) {
	return s.exists, nil
}

func (s *enrollmentStub) CountConfirmed(ctx context.Context, exec sqlx.ExtContext, placementID string) (int, error) {
	if len(s.counts) == 0 {
		return 0, nil
	}
	idx := s.countCalls
	if idx >= len(s.counts) {
		idx = len(s.counts) - 1
	}
	s.countCalls++
	return s.counts[idx], nil
}

func (s *enrollmentStub) ListBookings(ctx context.Context, exec sqlx.ExtContext, studentID string) ([]models.StudentBooking, error) {
	return s.bookings, nil
}

func (s *enrollmentStub) ListByStudent(ctx context.Context, studentID string, includeCancelled bool) ([]models.EnrollmentDetail, error) {
	return s.details, nil
}

func (s *enrollmentStub) Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	enrollment.ID = fmt.Sprintf("enrollment-%d", len(s.created)+1)
	s.created = append(s.created, *enrollment)
	return nil
}

func (s *enrollmentStub) Cancel(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if s.cancelErr != nil {
		return s.cancelErr
	}
	s.cancelled = append(s.cancelled, id)
	return nil
}

func (s *enrollmentStub) CancelByPlacement(ctx context.Context, exec sqlx.ExtContext, placementID string) (int64, error) {
	return s.byPlacement, nil
}

type runStub struct {
	mu         sync.Mutex
	runs       map[string]*models.AllocationRun
	markErr    error
	finished   []models.AllocationRun
	nextNumber int
}

func newRunStub() *runStub {
	return &runStub{runs: make(map[string]*models.AllocationRun)}
}

func (s *runStub) Create(ctx context.Context, run *models.AllocationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextNumber++
	run.ID = fmt.Sprintf("run-%d", s.nextNumber)
	run.CreatedAt = time.Now().UTC()
	copied := *run
	s.runs[run.ID] = &copied
	return nil
}

func (s *runStub) FindByID(ctx context.Context, id string) (*models.AllocationRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *run
	return &copied, nil
}

func (s *runStub) List(ctx context.Context, limit int) ([]models.AllocationRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AllocationRun, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, *run)
	}
	return out, nil
}

func (s *runStub) MarkRunning(ctx context.Context, id string, startedAt time.Time) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[id]; ok {
		run.Status = models.AllocationRunRunning
		run.StartedAt = &startedAt
	}
	return nil
}

func (s *runStub) Finish(ctx context.Context, exec sqlx.ExtContext, run *models.AllocationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = append(s.finished, *run)
	if stored, ok := s.runs[run.ID]; ok {
		stored.Status = run.Status
		stored.Placed = run.Placed
		stored.Failed = run.Failed
		stored.Failures = run.Failures
		stored.Error = run.Error
	}
	return nil
}

type lockStub struct {
	busy   bool
	shared int
	keys   []string
	onLock func()
}

func (s *lockStub) TryAllocationLock(ctx context.Context, tx sqlx.ExtContext) (bool, error) {
	return !s.busy, nil
}

func (s *lockStub) SharedAllocationLock(ctx context.Context, tx sqlx.ExtContext) error {
	s.shared++
	return nil
}

func (s *lockStub) Lock(ctx context.Context, tx sqlx.ExtContext, keys ...string) error {
	s.keys = append(s.keys, keys...)
	if s.onLock != nil {
		s.onLock()
	}
	return nil
}

type cacheStub struct {
	mu          sync.Mutex
	values      map[string][]models.PlacementDetail
	invalidated []string
}

func newCacheStub() *cacheStub {
	return &cacheStub{values: make(map[string][]models.PlacementDetail)}
}

func (s *cacheStub) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	if !ok {
		return false, nil
	}
	*dest.(*[]models.PlacementDetail) = value
	return true, nil
}

func (s *cacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value.([]models.PlacementDetail)
	return nil
}

func (s *cacheStub) Invalidate(ctx context.Context, pattern string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated = append(s.invalidated, pattern)
	s.values = make(map[string][]models.PlacementDetail)
	return nil
}

type userStub struct{ users []models.User }

func (s userStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	for _, u := range s.users {
		if u.ID == id {
			found := u
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

type queueStub struct {
	jobs []jobs.Job
	err  error
}

func (q *queueStub) TryEnqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *queueStub) Depth() int {
	return len(q.jobs)
}

func strPtr(v string) *string {
	return &v
}

type noopTx struct{}

func (noopTx) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return nil, sql.ErrConnDone
}
