package models

import (
	"time"

	"github.com/lib/pq"
)

// PlacementSource records how a placement was created.
type PlacementSource string

const (
	PlacementSourceAuto   PlacementSource = "AUTO"
	PlacementSourceManual PlacementSource = "MANUAL"
)

// Placement assigns one occurrence of a workshop to a room and a starting slot.
type Placement struct {
	ID          string          `db:"id" json:"id"`
	WorkshopID  string          `db:"workshop_id" json:"workshop_id"`
	RoomID      string          `db:"room_id" json:"room_id"`
	StartSlotID string          `db:"start_slot_id" json:"start_slot_id"`
	SlotCount   int             `db:"slot_count" json:"slot_count"`
	Source      PlacementSource `db:"source" json:"source"`
	RunID       *string         `db:"run_id" json:"run_id,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// PlacementDetail is the timetable view of a placement.
type PlacementDetail struct {
	Placement
	WorkshopTitle    string  `db:"workshop_title" json:"workshop_title"`
	WorkshopDuration int     `db:"workshop_duration" json:"workshop_duration"`
	MaxCapacity      int     `db:"max_capacity" json:"max_capacity"`
	RoomName         string  `db:"room_name" json:"room_name"`
	DayOfWeek        Weekday `db:"day_of_week" json:"day_of_week"`
	Block            Block   `db:"block" json:"block"`
	Position         int     `db:"position" json:"position"`
	Enrolled         int     `db:"enrolled" json:"enrolled"`
}

// PlacementActivity is the occupancy view of a placement used by conflict detection.
type PlacementActivity struct {
	PlacementID   string         `db:"placement_id"`
	WorkshopID    string         `db:"workshop_id"`
	WorkshopTitle string         `db:"workshop_title"`
	Duration      int            `db:"duration"`
	RoomID        string         `db:"room_id"`
	StartSlotID   string         `db:"start_slot_id"`
	TeacherIDs    pq.StringArray `db:"teacher_ids"`
}

// PlacementFilter narrows timetable listings.
type PlacementFilter struct {
	Day        Weekday
	WorkshopID string
	RoomID     string
	TeacherID  string
}
