package models

import (
	"time"

	"github.com/lib/pq"
)

// WorkshopStatus tracks the approval workflow of a workshop proposal.
type WorkshopStatus string

const (
	WorkshopStatusProposed WorkshopStatus = "PROPOSED"
	WorkshopStatusApproved WorkshopStatus = "APPROVED"
	WorkshopStatusRejected WorkshopStatus = "REJECTED"
)

// Allowed workshop durations expressed in periods.
const (
	DurationShort = 2
	DurationHalf  = 4
	DurationFull  = 6
)

// Workshop is a teacher-led activity proposed for the special week.
// TeacherIDs is ordered; the first entry is the primary teacher.
type Workshop struct {
	ID               string         `db:"id" json:"id"`
	Title            string         `db:"title" json:"title"`
	Duration         int            `db:"duration" json:"duration"`
	MaxCapacity      int            `db:"max_capacity" json:"max_capacity"`
	RequiredRoomType *string        `db:"required_room_type" json:"required_room_type,omitempty"`
	TeacherIDs       pq.StringArray `db:"teacher_ids" json:"teacher_ids"`
	Status           WorkshopStatus `db:"status" json:"status"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
}

// PrimaryTeacher returns the first assigned teacher, if any.
func (w Workshop) PrimaryTeacher() string {
	if len(w.TeacherIDs) == 0 {
		return ""
	}
	return w.TeacherIDs[0]
}

// Approved reports whether the workshop may be scheduled.
func (w Workshop) Approved() bool {
	return w.Status == WorkshopStatusApproved
}

// RoomTypeValue returns the required room type or an empty string.
func (w Workshop) RoomTypeValue() string {
	if w.RequiredRoomType == nil {
		return ""
	}
	return *w.RequiredRoomType
}
