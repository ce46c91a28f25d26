package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

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

type enrollmentStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Enrollment, error)
	ExistsConfirmed(ctx context.Context, exec sqlx.ExtContext, studentID, placementID string) (bool, error)
	CountConfirmed(ctx context.Context, exec sqlx.ExtContext, placementID string) (int, error)
	ListBookings(ctx context.Context, exec sqlx.ExtContext, studentID string) ([]models.StudentBooking, error)
	ListByStudent(ctx context.Context, studentID string, includeCancelled bool) ([]models.EnrollmentDetail, error)
	Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error
	Cancel(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type placementFinder interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Placement, error)
}

type userFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// EnrollmentService books students on placed workshops.
type EnrollmentService struct {
	tx          txProvider
	slots       timeSlotReader
	workshops   workshopReader
	placements  placementFinder
	enrollments enrollmentStore
	users       userFinder
	locks       advisoryLocker
	mutex       *lock.KeyedMutex
	cache       timetableInvalidator
	metrics     *MetricsService
	shortDay    models.Weekday
	validator   *validator.Validate
	logger      *zap.Logger
}

// EnrollmentServiceDeps groups the collaborators of EnrollmentService.
type EnrollmentServiceDeps struct {
	Tx          txProvider
	Slots       timeSlotReader
	Workshops   workshopReader
	Placements  placementFinder
	Enrollments enrollmentStore
	Users       userFinder
	Locks       advisoryLocker
	Mutex       *lock.KeyedMutex
	Cache       timetableInvalidator
	Metrics     *MetricsService
	ShortDay    models.Weekday
	Validator   *validator.Validate
	Logger      *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(deps EnrollmentServiceDeps) *EnrollmentService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Mutex == nil {
		deps.Mutex = lock.NewKeyedMutex()
	}
	return &EnrollmentService{
		tx:          deps.Tx,
		slots:       deps.Slots,
		workshops:   deps.Workshops,
		placements:  deps.Placements,
		enrollments: deps.Enrollments,
		users:       deps.Users,
		locks:       deps.Locks,
		mutex:       deps.Mutex,
		cache:       deps.Cache,
		metrics:     deps.Metrics,
		shortDay:    deps.ShortDay,
		validator:   deps.Validator,
		logger:      deps.Logger,
	}
}

// Enroll books a student on a placement. Capacity and overlap are checked and the row inserted
// while the placement and the student are locked, then the count is re-read as a last guard.
func (s *EnrollmentService) Enroll(ctx context.Context, req dto.EnrollRequest, actor dto.EnrollmentActor) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	if !actor.Admin && actor.UserID != req.StudentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only enroll themselves")
	}
	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	force := req.Force && actor.Admin

	student, err := s.users.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user is not a student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student account is inactive")
	}

	placement, err := s.placements.FindByID(ctx, nil, req.PlacementID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "placement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load placement")
	}
	workshop, err := s.workshops.FindByID(ctx, nil, placement.WorkshopID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "workshop not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workshop")
	}

	keys := lock.SortedKeys(lockKey("placement", placement.ID), lockKey("student", student.ID))
	unlock := s.mutex.Lock(keys...)
	defer unlock()

	enrollment := &models.Enrollment{
		StudentID:   student.ID,
		PlacementID: placement.ID,
		Status:      models.EnrollmentStatusConfirmed,
		Forced:      force,
	}
	err = database.WithTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.locks.Lock(ctx, tx, keys...); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock enrollment resources")
		}
		// The placement may have been deleted while the lock was awaited.
		if _, err := s.placements.FindByID(ctx, tx, placement.ID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "placement not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load placement")
		}
		exists, err := s.enrollments.ExistsConfirmed(ctx, tx, student.ID, placement.ID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollment")
		}
		if exists {
			return rejection(reasonAlreadyEnrolled, scheduler.CategoryAvailability, nil)
		}
		if !force {
			count, err := s.enrollments.CountConfirmed(ctx, tx, placement.ID)
			if err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
			}
			if count >= workshop.MaxCapacity {
				return rejection(reasonWorkshopFull, scheduler.CategoryCapacity, nil)
			}
		}

		slots, err := s.slots.List(ctx, tx)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load calendar")
		}
		cal := scheduler.NewCalendar(slots, s.shortDay)
		rng, err := cal.SlotRange(placement.StartSlotID, workshop.Duration)
		if err != nil {
			return engineRejection(scheduler.ReasonOutOfCalendar, nil)
		}
		bookings, err := s.enrollments.ListBookings(ctx, tx, student.ID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student enrollments")
		}
		detector := scheduler.NewConflictDetector(cal, nil, nil, enrollmentViews(bookings))
		if conflict := detector.CheckStudentConflict(student.ID, rng, ""); conflict != nil {
			return rejection(reasonStudentBusy, scheduler.CategoryAvailability, conflict)
		}

		if err := s.enrollments.Create(ctx, tx, enrollment); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
		}
		if force {
			return nil
		}
		count, err := s.enrollments.CountConfirmed(ctx, tx, placement.ID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to recount enrollments")
		}
		if count > workshop.MaxCapacity {
			return rejection(reasonCapacityExceeded, scheduler.CategoryRace, nil)
		}
		return nil
	})
	if err != nil {
		s.recordRejection(err)
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll student")
	}

	s.invalidate(ctx)
	s.logger.Info("student enrolled",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", student.ID),
		zap.String("placement_id", placement.ID),
		zap.Bool("forced", force),
	)
	return enrollment, nil
}

// Cancel withdraws a confirmed enrollment under the placement lock. Students may only cancel their
// own.
func (s *EnrollmentService) Cancel(ctx context.Context, id string, actor dto.EnrollmentActor) error {
	if strings.TrimSpace(id) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "enrollment id is required")
	}
	enrollment, err := s.enrollments.FindByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if !actor.Admin && enrollment.StudentID != actor.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "cannot cancel another student's enrollment")
	}
	if enrollment.Status == models.EnrollmentStatusCancelled {
		return appErrors.Clone(appErrors.ErrConflict, "enrollment already cancelled")
	}
	if s.tx == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}

	key := lockKey("placement", enrollment.PlacementID)
	unlock := s.mutex.Lock(key)
	defer unlock()

	err = database.WithTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.locks.Lock(ctx, tx, key); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock placement")
		}
		if err := s.enrollments.Cancel(ctx, tx, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrConflict, "enrollment already cancelled")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel enrollment")
		}
		return nil
	})
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return err
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel enrollment")
	}
	s.invalidate(ctx)
	s.logger.Info("enrollment cancelled", zap.String("enrollment_id", id), zap.String("actor", actor.UserID))
	return nil
}

// ListByStudent returns the enrollments of a student, most recent first.
func (s *EnrollmentService) ListByStudent(ctx context.Context, studentID string, includeCancelled bool, actor dto.EnrollmentActor) ([]models.EnrollmentDetail, error) {
	if strings.TrimSpace(studentID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	if !actor.Admin && actor.UserID != studentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot view another student's enrollments")
	}
	items, err := s.enrollments.ListByStudent(ctx, studentID, includeCancelled)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	if items == nil {
		items = []models.EnrollmentDetail{}
	}
	return items, nil
}

func (s *EnrollmentService) recordRejection(err error) {
	var detail *models.SlotConflictError
	if errors.As(err, &detail) {
		s.metrics.RecordEnrollmentRejection(detail.Reason)
		s.logger.Debug("enrollment rejected", zap.String("reason", detail.Reason), zap.String("category", detail.Category))
	}
}

func (s *EnrollmentService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Invalidate(ctx, cache.Key("timetable", "*"))
}
