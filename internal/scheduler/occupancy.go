package scheduler

import "github.com/noah-isme/special-week-api/internal/models"

// OccupancyTracker holds the in-memory room and teacher bookings of one allocation run.
// It is not safe for concurrent use.
type OccupancyTracker struct {
	roomOccupied    map[string]map[string]string
	teacherOccupied map[string]map[string]string
	loadUsed        map[string]int
	dayCount        map[models.Weekday]int
}

// NewOccupancyTracker returns an empty tracker.
func NewOccupancyTracker() *OccupancyTracker {
	return &OccupancyTracker{
		roomOccupied:    make(map[string]map[string]string),
		teacherOccupied: make(map[string]map[string]string),
		loadUsed:        make(map[string]int),
		dayCount:        make(map[models.Weekday]int),
	}
}

// Reserve books the room and every teacher on each slot and adds duration to the load of
// every teacher. Calling it twice for the same placement counts the load twice.
func (t *OccupancyTracker) Reserve(slotIDs []string, roomID string, teacherIDs []string, workshopID string, duration int) {
	for _, slotID := range slotIDs {
		if roomID != "" {
			if t.roomOccupied[slotID] == nil {
				t.roomOccupied[slotID] = make(map[string]string)
			}
			t.roomOccupied[slotID][roomID] = workshopID
		}
		for _, teacherID := range teacherIDs {
			t.bookTeacher(slotID, teacherID, workshopID)
		}
	}
	for _, teacherID := range teacherIDs {
		t.loadUsed[teacherID] += duration
	}
}

// AddLoad charges periods already consumed outside the tracked bookings.
func (t *OccupancyTracker) AddLoad(teacherID string, periods int) {
	t.loadUsed[teacherID] += periods
}

// ReserveTeacher books a teacher on a single slot without consuming load (duty assignments).
func (t *OccupancyTracker) ReserveTeacher(slotID, teacherID, activityID string) {
	t.bookTeacher(slotID, teacherID, activityID)
}

func (t *OccupancyTracker) bookTeacher(slotID, teacherID, activityID string) {
	if t.teacherOccupied[slotID] == nil {
		t.teacherOccupied[slotID] = make(map[string]string)
	}
	t.teacherOccupied[slotID][teacherID] = activityID
}

// RecordDayPlacement counts one more placement on day for week balancing.
func (t *OccupancyTracker) RecordDayPlacement(day models.Weekday) {
	t.dayCount[day]++
}

// IsRoomFree reports whether the room is free on every slot.
func (t *OccupancyTracker) IsRoomFree(slotIDs []string, roomID string) bool {
	for _, slotID := range slotIDs {
		if _, taken := t.roomOccupied[slotID][roomID]; taken {
			return false
		}
	}
	return true
}

// IsTeacherFree reports whether the teacher is free on every slot.
func (t *OccupancyTracker) IsTeacherFree(slotIDs []string, teacherID string) bool {
	for _, slotID := range slotIDs {
		if _, taken := t.teacherOccupied[slotID][teacherID]; taken {
			return false
		}
	}
	return true
}

// LoadUsed returns the periods already consumed by a teacher.
func (t *OccupancyTracker) LoadUsed(teacherID string) int {
	return t.loadUsed[teacherID]
}

// DayCount returns the number of placements recorded on day.
func (t *OccupancyTracker) DayCount(day models.Weekday) int {
	return t.dayCount[day]
}
