package service

import (
	"github.com/noah-isme/special-week-api/internal/models"
	"github.com/noah-isme/special-week-api/internal/scheduler"
	appErrors "github.com/noah-isme/special-week-api/pkg/errors"
)

// Enrollment-only rejection reasons.
const (
	reasonWorkshopFull     scheduler.Reason = "WORKSHOP_FULL"
	reasonStudentBusy      scheduler.Reason = "STUDENT_BUSY"
	reasonAlreadyEnrolled  scheduler.Reason = "ALREADY_ENROLLED"
	reasonCapacityExceeded scheduler.Reason = "CAPACITY_RACE"
)

var rejectionMessages = map[scheduler.Reason]string{
	scheduler.ReasonOutOfCalendar:      "workshop does not fit in the calendar from this slot",
	scheduler.ReasonTeacherUnavailable: "a teacher is not available on the requested slots",
	scheduler.ReasonTeacherBusy:        "a teacher is already busy on the requested slots",
	scheduler.ReasonRoomTooSmall:       "room capacity is below the workshop capacity",
	scheduler.ReasonRoomTypeMismatch:   "room type does not match the workshop requirement",
	scheduler.ReasonRoomBusy:           "room is already booked on the requested slots",
	scheduler.ReasonLoadExceeded:       "a teacher would exceed their maximum load",
	reasonWorkshopFull:                 "workshop is full",
	reasonStudentBusy:                  "student is already enrolled in an overlapping workshop",
	reasonAlreadyEnrolled:              "student is already enrolled in this workshop",
	reasonCapacityExceeded:             "workshop capacity was exceeded by a concurrent enrollment, retry the request",
}

// rejection builds the HTTP-aware error for a refused placement or enrollment. The category
// decides the status: structural, capacity, load and type problems are 422, availability
// collisions and full workshops are 409.
func rejection(reason scheduler.Reason, category string, conflict *models.SlotConflict) error {
	message := rejectionMessages[reason]
	if message == "" {
		message = string(reason)
	}
	base := appErrors.ErrUnprocessable
	switch {
	case category == scheduler.CategoryAvailability, reason == reasonWorkshopFull:
		base = appErrors.ErrConflict
	case category == scheduler.CategoryRace:
		base = appErrors.ErrRace
	}
	detail := &models.SlotConflictError{Reason: string(reason), Category: category, Message: message, Conflict: conflict}
	return appErrors.Wrap(detail, base.Code, base.Status, message)
}

func engineRejection(reason scheduler.Reason, conflict *models.SlotConflict) error {
	return rejection(reason, reason.Category(), conflict)
}

func activityViews(rows []models.PlacementActivity) []scheduler.ActivityView {
	out := make([]scheduler.ActivityView, 0, len(rows))
	for _, row := range rows {
		out = append(out, scheduler.ActivityView{
			PlacementID: row.PlacementID,
			Name:        row.WorkshopTitle,
			TeacherIDs:  row.TeacherIDs,
			RoomID:      row.RoomID,
			StartSlotID: row.StartSlotID,
			Duration:    row.Duration,
		})
	}
	return out
}

func enrollmentViews(rows []models.StudentBooking) []scheduler.EnrollmentView {
	out := make([]scheduler.EnrollmentView, 0, len(rows))
	for _, row := range rows {
		out = append(out, scheduler.EnrollmentView{
			EnrollmentID: row.EnrollmentID,
			StudentID:    row.StudentID,
			PlacementID:  row.PlacementID,
			ActivityName: row.WorkshopTitle,
			StartSlotID:  row.StartSlotID,
			Duration:     row.Duration,
		})
	}
	return out
}

func lockKey(kind, id string) string {
	return kind + ":" + id
}
