package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/special-week-api/internal/dto"
	"github.com/noah-isme/special-week-api/internal/models"
	"github.com/noah-isme/special-week-api/internal/scheduler"
	"github.com/noah-isme/special-week-api/pkg/cache"
	"github.com/noah-isme/special-week-api/pkg/database"
	appErrors "github.com/noah-isme/special-week-api/pkg/errors"
	"github.com/noah-isme/special-week-api/pkg/lock"
)

type placementStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Placement, error)
	ListDetails(ctx context.Context, filter models.PlacementFilter) ([]models.PlacementDetail, error)
	ListActivities(ctx context.Context, exec sqlx.ExtContext) ([]models.PlacementActivity, error)
	Create(ctx context.Context, exec sqlx.ExtContext, placement *models.Placement) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type placementEnrollmentCanceller interface {
	CancelByPlacement(ctx context.Context, exec sqlx.ExtContext, placementID string) (int64, error)
}

type timetableCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

// PlacementService manages manual placements and the timetable view.
type PlacementService struct {
	tx          txProvider
	slots       timeSlotReader
	rooms       roomReader
	workshops   workshopReader
	teachers    teacherReader
	duties      dutyReader
	placements  placementStore
	enrollments placementEnrollmentCanceller
	locks       advisoryLocker
	mutex       *lock.KeyedMutex
	cache       timetableCache
	cacheTTL    time.Duration
	shortDay    models.Weekday
	validator   *validator.Validate
	logger      *zap.Logger
}

// PlacementServiceDeps groups the collaborators of PlacementService.
type PlacementServiceDeps struct {
	Tx          txProvider
	Slots       timeSlotReader
	Rooms       roomReader
	Workshops   workshopReader
	Teachers    teacherReader
	Duties      dutyReader
	Placements  placementStore
	Enrollments placementEnrollmentCanceller
	Locks       advisoryLocker
	Mutex       *lock.KeyedMutex
	Cache       timetableCache
	CacheTTL    time.Duration
	ShortDay    models.Weekday
	Validator   *validator.Validate
	Logger      *zap.Logger
}

// NewPlacementService constructs the placement service.
func NewPlacementService(deps PlacementServiceDeps) *PlacementService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Mutex == nil {
		deps.Mutex = lock.NewKeyedMutex()
	}
	return &PlacementService{
		tx:          deps.Tx,
		slots:       deps.Slots,
		rooms:       deps.Rooms,
		workshops:   deps.Workshops,
		teachers:    deps.Teachers,
		duties:      deps.Duties,
		placements:  deps.Placements,
		enrollments: deps.Enrollments,
		locks:       deps.Locks,
		mutex:       deps.Mutex,
		cache:       deps.Cache,
		cacheTTL:    deps.CacheTTL,
		shortDay:    deps.ShortDay,
		validator:   deps.Validator,
		logger:      deps.Logger,
	}
}

// Create places one occurrence of a workshop by hand. The room and every teacher are locked
// in-process and in Postgres for the duration of the check and the insert, and the shared side of
// the batch allocation lock keeps a running batch from reading a snapshot that misses the insert.
func (s *PlacementService) Create(ctx context.Context, req dto.CreatePlacementRequest) (*models.Placement, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid placement payload")
	}
	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}

	workshop, err := s.workshops.FindByID(ctx, nil, req.WorkshopID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "workshop not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workshop")
	}
	if !workshop.Approved() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "only approved workshops can be placed")
	}
	if len(workshop.TeacherIDs) == 0 {
		return nil, engineRejection(scheduler.ReasonTeacherUnavailable, nil)
	}
	room, err := s.rooms.FindByID(ctx, nil, req.RoomID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room")
	}
	if !room.Available {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "room is not available for the special week")
	}

	keys := []string{lockKey("room", room.ID)}
	for _, teacherID := range workshop.TeacherIDs {
		keys = append(keys, lockKey("teacher", teacherID))
	}
	keys = lock.SortedKeys(keys...)
	unlock := s.mutex.Lock(keys...)
	defer unlock()

	var placement *models.Placement
	err = database.WithTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.locks.SharedAllocationLock(ctx, tx); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to wait for allocation batch")
		}
		if err := s.locks.Lock(ctx, tx, keys...); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock placement resources")
		}
		slots, err := s.slots.List(ctx, tx)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load calendar")
		}
		cal := scheduler.NewCalendar(slots, s.shortDay)
		rng, err := cal.SlotRange(req.StartSlotID, workshop.Duration)
		if err != nil || !allowedStart(cal, workshop.Duration, rng.Day, req.StartSlotID) {
			return engineRejection(scheduler.ReasonOutOfCalendar, nil)
		}

		activities, err := s.placements.ListActivities(ctx, tx)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load placements")
		}
		duties, err := s.duties.List(ctx, tx, workshop.TeacherIDs)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher duties")
		}
		checker, err := s.feasibility(ctx, tx, cal, workshop.TeacherIDs, activities, duties)
		if err != nil {
			return err
		}
		detector := scheduler.NewConflictDetector(cal, activityViews(activities), duties, nil)
		decision := checker.CanPlace(*workshop, req.StartSlotID, *room)
		if !decision.OK {
			return engineRejection(decision.Reason, busyConflict(detector, decision.Reason, workshop.TeacherIDs, room.ID, rng))
		}
		for _, reason := range []scheduler.Reason{scheduler.ReasonTeacherBusy, scheduler.ReasonRoomBusy} {
			if conflict := busyConflict(detector, reason, workshop.TeacherIDs, room.ID, rng); conflict != nil {
				return engineRejection(reason, conflict)
			}
		}

		placement = &models.Placement{
			WorkshopID:  workshop.ID,
			RoomID:      room.ID,
			StartSlotID: req.StartSlotID,
			SlotCount:   len(rng.SlotIDs),
			Source:      models.PlacementSourceManual,
		}
		if err := s.placements.Create(ctx, tx, placement); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create placement")
		}
		return nil
	})
	if err != nil {
		return nil, s.normalise(err, "failed to create placement")
	}

	s.invalidate(ctx)
	s.logger.Info("manual placement created",
		zap.String("placement_id", placement.ID),
		zap.String("workshop_id", placement.WorkshopID),
		zap.String("room_id", placement.RoomID),
		zap.String("start_slot_id", placement.StartSlotID),
	)
	return placement, nil
}

// feasibility builds a checker over the stored bookings. Existing placements and duties only
// occupy slots here; the teachers' consumed load comes from LoadUsed.
func (s *PlacementService) feasibility(ctx context.Context, tx sqlx.ExtContext, cal *scheduler.Calendar, teacherIDs []string, activities []models.PlacementActivity, duties []models.Duty) (*scheduler.FeasibilityChecker, error) {
	rows, err := s.teachers.ListAvailability(ctx, tx, teacherIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher availability")
	}
	teachers, err := s.teachers.ListByIDs(ctx, tx, teacherIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teachers")
	}
	used, err := s.teachers.LoadUsed(ctx, tx, teacherIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute teacher load")
	}
	tracker := scheduler.NewOccupancyTracker()
	for _, activity := range activities {
		rng, err := cal.SlotRange(activity.StartSlotID, activity.Duration)
		if err != nil {
			s.logger.Warn("placement outside calendar", zap.String("placement_id", activity.PlacementID), zap.String("start_slot_id", activity.StartSlotID))
			continue
		}
		tracker.Reserve(rng.SlotIDs, activity.RoomID, activity.TeacherIDs, activity.WorkshopID, 0)
	}
	for _, duty := range duties {
		tracker.ReserveTeacher(duty.SlotID, duty.TeacherID, duty.ID)
	}
	for teacherID, periods := range used {
		tracker.AddLoad(teacherID, periods)
	}
	return scheduler.NewFeasibilityChecker(cal, tracker, scheduler.NewAvailability(rows), scheduler.NewLoadBudget(teachers)), nil
}

// busyConflict names the activity behind a TEACHER_BUSY or ROOM_BUSY rejection.
func busyConflict(detector *scheduler.ConflictDetector, reason scheduler.Reason, teacherIDs []string, roomID string, rng scheduler.Range) *models.SlotConflict {
	switch reason {
	case scheduler.ReasonTeacherBusy:
		for _, teacherID := range teacherIDs {
			if conflict := detector.CheckTeacherConflict(teacherID, rng, ""); conflict != nil {
				return conflict
			}
		}
	case scheduler.ReasonRoomBusy:
		return detector.CheckRoomConflict(roomID, rng, "")
	}
	return nil
}

// Delete removes a placement and cancels every confirmed enrollment bound to it.
func (s *PlacementService) Delete(ctx context.Context, id string) (*dto.DeletePlacementResult, error) {
	if strings.TrimSpace(id) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "placement id is required")
	}
	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	key := lockKey("placement", id)
	unlock := s.mutex.Lock(key)
	defer unlock()

	result := &dto.DeletePlacementResult{PlacementID: id}
	err := database.WithTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.locks.SharedAllocationLock(ctx, tx); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to wait for allocation batch")
		}
		if err := s.locks.Lock(ctx, tx, key); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock placement")
		}
		cancelled, err := s.enrollments.CancelByPlacement(ctx, tx, id)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel enrollments")
		}
		if err := s.placements.Delete(ctx, tx, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "placement not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete placement")
		}
		result.CancelledEnrollments = cancelled
		return nil
	})
	if err != nil {
		return nil, s.normalise(err, "failed to delete placement")
	}

	s.invalidate(ctx)
	s.logger.Info("placement deleted", zap.String("placement_id", id), zap.Int64("cancelled_enrollments", result.CancelledEnrollments))
	return result, nil
}

// List returns the timetable, served from Redis when possible.
func (s *PlacementService) List(ctx context.Context, query dto.PlacementQuery) ([]models.PlacementDetail, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable query")
	}
	filter := models.PlacementFilter{
		Day:        models.ParseWeekday(query.Day),
		WorkshopID: strings.TrimSpace(query.WorkshopID),
		RoomID:     strings.TrimSpace(query.RoomID),
		TeacherID:  strings.TrimSpace(query.TeacherID),
	}
	key := timetableKey(filter)
	if s.cache != nil {
		var cached []models.PlacementDetail
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return cached, nil
		}
	}

	details, err := s.placements.ListDetails(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	if details == nil {
		details = []models.PlacementDetail{}
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, details, s.cacheTTL)
	}
	return details, nil
}

func (s *PlacementService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Invalidate(ctx, cache.Key("timetable", "*"))
}

func (s *PlacementService) normalise(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

// allowedStart applies the block start rules the allocator uses, so a manual placement can never
// start where a batch would not.
func allowedStart(cal *scheduler.Calendar, duration int, day models.Weekday, slotID string) bool {
	for _, candidate := range cal.BlockStartCandidates(duration, day) {
		if candidate.ID == slotID {
			return true
		}
	}
	return false
}

func timetableKey(filter models.PlacementFilter) string {
	if filter == (models.PlacementFilter{}) {
		return cache.Key("timetable", "all")
	}
	day := "any"
	if filter.Day.Valid() {
		day = filter.Day.String()
	}
	return cache.Key("timetable", day, "w="+filter.WorkshopID, "r="+filter.RoomID, "t="+filter.TeacherID)
}
