package scheduler

import (
	"sort"

	"github.com/noah-isme/special-week-api/internal/models"
)

// ActivityView is a placed workshop occurrence as seen by the conflict detector.
type ActivityView struct {
	PlacementID string
	Name        string
	TeacherIDs  []string
	RoomID      string
	StartSlotID string
	Duration    int
}

// EnrollmentView is a confirmed enrollment together with the placement it targets.
type EnrollmentView struct {
	EnrollmentID string
	StudentID    string
	PlacementID  string
	ActivityName string
	StartSlotID  string
	Duration     int
}

type activityRange struct {
	view  ActivityView
	rng   Range
	start models.TimeSlot
}

type enrollmentRange struct {
	view  EnrollmentView
	rng   Range
	start models.TimeSlot
}

type dutyRange struct {
	duty  models.Duty
	rng   Range
	start models.TimeSlot
}

// ConflictDetector answers single-booking questions for manual placement and enrollment
// against the current occupancy.
type ConflictDetector struct {
	calendar    *Calendar
	activities  []activityRange
	duties      []dutyRange
	enrollments []enrollmentRange
}

// NewConflictDetector resolves every booking into a canonical range. Bookings whose start slot
// is not part of the calendar are ignored.
func NewConflictDetector(cal *Calendar, activities []ActivityView, duties []models.Duty, enrollments []EnrollmentView) *ConflictDetector {
	d := &ConflictDetector{calendar: cal}
	for _, a := range activities {
		rng, err := cal.SlotRange(a.StartSlotID, a.Duration)
		if err != nil {
			continue
		}
		start, _ := cal.Slot(a.StartSlotID)
		d.activities = append(d.activities, activityRange{view: a, rng: rng, start: start})
	}
	for _, duty := range duties {
		rng, err := cal.RangeBySlotCount(duty.SlotID, 1)
		if err != nil {
			continue
		}
		start, _ := cal.Slot(duty.SlotID)
		d.duties = append(d.duties, dutyRange{duty: duty, rng: rng, start: start})
	}
	for _, e := range enrollments {
		rng, err := cal.SlotRange(e.StartSlotID, e.Duration)
		if err != nil {
			continue
		}
		start, _ := cal.Slot(e.StartSlotID)
		d.enrollments = append(d.enrollments, enrollmentRange{view: e, rng: rng, start: start})
	}

	sort.SliceStable(d.activities, func(i, j int) bool {
		return d.activities[i].start.Position < d.activities[j].start.Position
	})
	sort.SliceStable(d.duties, func(i, j int) bool {
		return d.duties[i].start.Position < d.duties[j].start.Position
	})
	sort.SliceStable(d.enrollments, func(i, j int) bool {
		return d.enrollments[i].start.Position < d.enrollments[j].start.Position
	})
	return d
}

// RangeFor resolves the canonical range of a booking starting on startSlotID.
func (d *ConflictDetector) RangeFor(startSlotID string, duration int) (Range, error) {
	return d.calendar.SlotRange(startSlotID, duration)
}

// CheckTeacherConflict returns the first workshop or duty of the teacher overlapping rng.
func (d *ConflictDetector) CheckTeacherConflict(teacherID string, rng Range, excludePlacementID string) *models.SlotConflict {
	for _, a := range d.activities {
		if a.view.PlacementID == excludePlacementID && excludePlacementID != "" {
			continue
		}
		if !contains(a.view.TeacherIDs, teacherID) || !Overlaps(rng, a.rng) {
			continue
		}
		return newConflict(models.ConflictTeacher, a.view.PlacementID, a.view.Name, a.start)
	}
	for _, duty := range d.duties {
		if duty.duty.TeacherID != teacherID || !Overlaps(rng, duty.rng) {
			continue
		}
		return newConflict(models.ConflictDuty, duty.duty.ID, duty.duty.Label, duty.start)
	}
	return nil
}

// CheckRoomConflict returns the first workshop holding the room during rng.
func (d *ConflictDetector) CheckRoomConflict(roomID string, rng Range, excludePlacementID string) *models.SlotConflict {
	for _, a := range d.activities {
		if a.view.PlacementID == excludePlacementID && excludePlacementID != "" {
			continue
		}
		if a.view.RoomID != roomID || !Overlaps(rng, a.rng) {
			continue
		}
		return newConflict(models.ConflictRoom, a.view.PlacementID, a.view.Name, a.start)
	}
	return nil
}

// CheckStudentConflict returns the first confirmed enrollment of the student overlapping rng.
// A full-day range on either side blocks the whole day, whichever was booked first.
func (d *ConflictDetector) CheckStudentConflict(studentID string, rng Range, excludeEnrollmentID string) *models.SlotConflict {
	for _, e := range d.enrollments {
		if e.view.StudentID != studentID {
			continue
		}
		if e.view.EnrollmentID == excludeEnrollmentID && excludeEnrollmentID != "" {
			continue
		}
		if !Overlaps(rng, e.rng) {
			continue
		}
		return newConflict(models.ConflictStudent, e.view.PlacementID, e.view.ActivityName, e.start)
	}
	return nil
}

func newConflict(kind models.ConflictType, id, name string, slot models.TimeSlot) *models.SlotConflict {
	return &models.SlotConflict{
		Type:                    kind,
		ConflictingActivityID:   id,
		ConflictingActivityName: name,
		Day:                     slot.Day,
		Period:                  slot.Block,
		SlotID:                  slot.ID,
	}
}

func contains(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}
