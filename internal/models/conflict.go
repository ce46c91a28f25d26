package models

// ConflictType names the dimension on which two bookings collide.
type ConflictType string

const (
	ConflictTeacher ConflictType = "TEACHER"
	ConflictRoom    ConflictType = "ROOM"
	ConflictStudent ConflictType = "STUDENT"
	ConflictDuty    ConflictType = "DUTY"
)

// SlotConflict describes the existing activity a request collides with.
type SlotConflict struct {
	Type                    ConflictType `json:"type"`
	ConflictingActivityID   string       `json:"conflictingActivityId"`
	ConflictingActivityName string       `json:"conflictingActivityName"`
	Day                     Weekday      `json:"day"`
	Period                  Block        `json:"period"`
	SlotID                  string       `json:"slotId"`
}

// SlotConflictError is returned when a placement or an enrollment is rejected.
type SlotConflictError struct {
	Reason   string        `json:"reason"`
	Category string        `json:"category"`
	Message  string        `json:"message"`
	Conflict *SlotConflict `json:"conflict,omitempty"`
}

// Error implements the error interface for conflict errors.
func (e *SlotConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}
