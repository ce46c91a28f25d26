package dto

// CreatePlacementRequest places one workshop occurrence by hand.
type CreatePlacementRequest struct {
	WorkshopID  string `json:"workshopId" validate:"required"`
	RoomID      string `json:"roomId" validate:"required"`
	StartSlotID string `json:"startSlotId" validate:"required"`
}

// PlacementQuery filters the timetable.
type PlacementQuery struct {
	Day        string `form:"day" validate:"omitempty,oneof=MONDAY TUESDAY WEDNESDAY THURSDAY FRIDAY monday tuesday wednesday thursday friday"`
	WorkshopID string `form:"workshop_id"`
	RoomID     string `form:"room_id"`
	TeacherID  string `form:"teacher_id"`
}

// DeletePlacementResult reports the cascade of a placement removal.
type DeletePlacementResult struct {
	PlacementID          string `json:"placementId"`
	CancelledEnrollments int64  `json:"cancelledEnrollments"`
}

// ExportTimetableQuery selects the export format.
type ExportTimetableQuery struct {
	Format string `form:"format" validate:"omitempty,oneof=csv pdf"`
	PlacementQuery
}
