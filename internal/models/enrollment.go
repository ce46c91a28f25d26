package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusConfirmed EnrollmentStatus = "CONFIRMED"
	EnrollmentStatusCancelled EnrollmentStatus = "CANCELLED"
)

// Enrollment binds a student to a workshop placement.
type Enrollment struct {
	ID          string           `db:"id" json:"id"`
	StudentID   string           `db:"student_id" json:"student_id"`
	PlacementID string           `db:"placement_id" json:"placement_id"`
	Status      EnrollmentStatus `db:"status" json:"status"`
	Forced      bool             `db:"forced" json:"forced"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	CancelledAt *time.Time       `db:"cancelled_at" json:"cancelled_at,omitempty"`
}

// EnrollmentDetail enriches an enrollment with the placement it targets.
type EnrollmentDetail struct {
	Enrollment
	WorkshopID       string  `db:"workshop_id" json:"workshop_id"`
	WorkshopTitle    string  `db:"workshop_title" json:"workshop_title"`
	WorkshopDuration int     `db:"workshop_duration" json:"workshop_duration"`
	StartSlotID      string  `db:"start_slot_id" json:"start_slot_id"`
	DayOfWeek        Weekday `db:"day_of_week" json:"day_of_week"`
	Block            Block   `db:"block" json:"block"`
}

// StudentBooking is a confirmed enrollment of a student with the slot data needed for conflict
// detection.
type StudentBooking struct {
	EnrollmentID  string `db:"enrollment_id"`
	StudentID     string `db:"student_id"`
	PlacementID   string `db:"placement_id"`
	WorkshopTitle string `db:"workshop_title"`
	Duration      int    `db:"duration"`
	StartSlotID   string `db:"start_slot_id"`
}
