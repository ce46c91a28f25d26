package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/special-week-api/internal/models"
)

// EnrollmentRepository persists student enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs an EnrollmentRepository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

func (r *EnrollmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID fetches an enrollment by ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, placement_id, status, forced, created_at, cancelled_at FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, r.exec(exec), &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ExistsConfirmed reports whether the student already holds a confirmed seat on the placement.
func (r *EnrollmentRepository) ExistsConfirmed(ctx context.Context, exec sqlx.ExtContext, studentID, placementID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND placement_id = $2 AND status = 'CONFIRMED' LIMIT 1`
	var exists int
	if err := sqlx.GetContext(ctx, r.exec(exec), &exists, query, studentID, placementID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// CountConfirmed counts confirmed seats on a placement.
func (r *EnrollmentRepository) CountConfirmed(ctx context.Context, exec sqlx.ExtContext, placementID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE placement_id = $1 AND status = 'CONFIRMED'`
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, placementID); err != nil {
		return 0, fmt.Errorf("count enrollments: %w", err)
	}
	return count, nil
}

// ListBookings returns the confirmed enrollments of a student with the slot data of their
// placements.
func (r *EnrollmentRepository) ListBookings(ctx context.Context, exec sqlx.ExtContext, studentID string) ([]models.StudentBooking, error) {
	const query = `SELECT e.id AS enrollment_id, e.student_id, e.placement_id, w.title AS workshop_title, w.duration, p.start_slot_id
FROM enrollments e
JOIN placements p ON p.id = e.placement_id
JOIN workshops w ON w.id = p.workshop_id
WHERE e.student_id = $1 AND e.status = 'CONFIRMED'`
	var bookings []models.StudentBooking
	if err := sqlx.SelectContext(ctx, r.exec(exec), &bookings, query, studentID); err != nil {
		return nil, fmt.Errorf("list student bookings: %w", err)
	}
	return bookings, nil
}

// ListByStudent returns the student's enrollments with workshop and slot details.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string, includeCancelled bool) ([]models.EnrollmentDetail, error) {
	query := `SELECT e.id, e.student_id, e.placement_id, e.status, e.forced, e.created_at, e.cancelled_at,
w.id AS workshop_id, w.title AS workshop_title, w.duration AS workshop_duration, p.start_slot_id, s.day_of_week, s.block
FROM enrollments e
JOIN placements p ON p.id = e.placement_id
JOIN workshops w ON w.id = p.workshop_id
JOIN time_slots s ON s.id = p.start_slot_id
WHERE e.student_id = $1`
	if !includeCancelled {
		query += ` AND e.status = 'CONFIRMED'`
	}
	query += ` ORDER BY s.day_of_week, s.position`

	var details []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &details, query, studentID); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return details, nil
}

// Create inserts a confirmed enrollment.
func (r *EnrollmentRepository) Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	if enrollment == nil {
		return fmt.Errorf("enrollment payload is nil")
	}
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusConfirmed
	}
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO enrollments (id, student_id, placement_id, status, forced, created_at)
VALUES (:id, :student_id, :placement_id, :status, :forced, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, enrollment); err != nil {
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return nil
}

// Cancel marks a confirmed enrollment as cancelled.
func (r *EnrollmentRepository) Cancel(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `UPDATE enrollments SET status = 'CANCELLED', cancelled_at = $2 WHERE id = $1 AND status = 'CONFIRMED'`
	result, err := r.exec(exec).ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("cancel enrollment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("enrollment rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CancelByPlacement cancels every confirmed enrollment bound to a placement.
func (r *EnrollmentRepository) CancelByPlacement(ctx context.Context, exec sqlx.ExtContext, placementID string) (int64, error) {
	const query = `UPDATE enrollments SET status = 'CANCELLED', cancelled_at = $2 WHERE placement_id = $1 AND status = 'CONFIRMED'`
	result, err := r.exec(exec).ExecContext(ctx, query, placementID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cancel placement enrollments: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("enrollment rows affected: %w", err)
	}
	return affected, nil
}
