package scheduler

import "github.com/noah-isme/special-week-api/internal/models"

// Reason explains why a workshop cannot be placed.
type Reason string

const (
	ReasonOutOfCalendar      Reason = "OUT_OF_CALENDAR"
	ReasonTeacherUnavailable Reason = "TEACHER_UNAVAILABLE"
	ReasonTeacherBusy        Reason = "TEACHER_BUSY"
	ReasonRoomTooSmall       Reason = "ROOM_TOO_SMALL"
	ReasonRoomTypeMismatch   Reason = "ROOM_TYPE_MISMATCH"
	ReasonRoomBusy           Reason = "ROOM_BUSY"
	ReasonLoadExceeded       Reason = "LOAD_EXCEEDED"
)

// Error categories reported to callers.
const (
	CategoryStructural   = "STRUCTURAL"
	CategoryAvailability = "AVAILABILITY"
	CategoryCapacity     = "CAPACITY"
	CategoryLoad         = "LOAD"
	CategoryTypeMismatch = "TYPE_MISMATCH"
	CategoryRace         = "RACE"
)

// Category maps a reason onto the error taxonomy.
func (r Reason) Category() string {
	switch r {
	case ReasonOutOfCalendar:
		return CategoryStructural
	case ReasonTeacherUnavailable, ReasonTeacherBusy, ReasonRoomBusy:
		return CategoryAvailability
	case ReasonRoomTooSmall:
		return CategoryCapacity
	case ReasonRoomTypeMismatch:
		return CategoryTypeMismatch
	case ReasonLoadExceeded:
		return CategoryLoad
	}
	return ""
}

// Availability maps a teacher to the slots they declared. A teacher without any entry is
// available everywhere.
type Availability map[string]map[string]struct{}

// NewAvailability groups declaration rows by teacher.
func NewAvailability(rows []models.TeacherAvailability) Availability {
	out := make(Availability)
	for _, row := range rows {
		if out[row.TeacherID] == nil {
			out[row.TeacherID] = make(map[string]struct{})
		}
		out[row.TeacherID][row.SlotID] = struct{}{}
	}
	return out
}

// IsAvailable reports whether the teacher may teach on the slot.
func (a Availability) IsAvailable(teacherID, slotID string) bool {
	declared, ok := a[teacherID]
	if !ok {
		return true
	}
	_, ok = declared[slotID]
	return ok
}

// LoadBudget maps a teacher to the maximum number of periods they may teach; 0 is unlimited.
type LoadBudget map[string]int

// NewLoadBudget indexes teacher load limits.
func NewLoadBudget(teachers []models.Teacher) LoadBudget {
	out := make(LoadBudget, len(teachers))
	for _, teacher := range teachers {
		out[teacher.ID] = teacher.MaxLoad
	}
	return out
}

// Fits reports whether adding duration periods to used stays within the teacher budget.
func (b LoadBudget) Fits(teacherID string, used, duration int) bool {
	max := b[teacherID]
	if max <= 0 {
		return true
	}
	return used+duration <= max
}

// Decision is the outcome of a feasibility check.
type Decision struct {
	OK     bool
	Reason Reason
	Range  Range
}

// FeasibilityChecker decides whether a workshop occurrence can start on a slot in a room.
type FeasibilityChecker struct {
	calendar     *Calendar
	tracker      *OccupancyTracker
	availability Availability
	loads        LoadBudget
}

// NewFeasibilityChecker binds the checker to the run state.
func NewFeasibilityChecker(cal *Calendar, tracker *OccupancyTracker, availability Availability, loads LoadBudget) *FeasibilityChecker {
	if availability == nil {
		availability = Availability{}
	}
	if loads == nil {
		loads = LoadBudget{}
	}
	return &FeasibilityChecker{calendar: cal, tracker: tracker, availability: availability, loads: loads}
}

// CanPlace runs the checks in order and stops at the first failure.
func (c *FeasibilityChecker) CanPlace(w models.Workshop, startSlotID string, room models.Room) Decision {
	rng, err := c.calendar.SlotRange(startSlotID, w.Duration)
	if err != nil {
		return reject(ReasonOutOfCalendar, Range{})
	}
	for _, teacherID := range w.TeacherIDs {
		for _, slotID := range rng.SlotIDs {
			if !c.availability.IsAvailable(teacherID, slotID) {
				return reject(ReasonTeacherUnavailable, rng)
			}
		}
	}
	for _, teacherID := range w.TeacherIDs {
		if !c.tracker.IsTeacherFree(rng.SlotIDs, teacherID) {
			return reject(ReasonTeacherBusy, rng)
		}
	}
	if room.Capacity < w.MaxCapacity {
		return reject(ReasonRoomTooSmall, rng)
	}
	if required := w.RoomTypeValue(); required != "" && required != room.TypeValue() {
		return reject(ReasonRoomTypeMismatch, rng)
	}
	if !c.tracker.IsRoomFree(rng.SlotIDs, room.ID) {
		return reject(ReasonRoomBusy, rng)
	}
	if !c.withinLoad(w) {
		return reject(ReasonLoadExceeded, rng)
	}
	return Decision{OK: true, Range: rng}
}

// withinLoad checks the primary teacher first, then co-teachers.
func (c *FeasibilityChecker) withinLoad(w models.Workshop) bool {
	for _, teacherID := range w.TeacherIDs {
		if !c.loads.Fits(teacherID, c.tracker.LoadUsed(teacherID), w.Duration) {
			return false
		}
	}
	return true
}

func reject(reason Reason, rng Range) Decision {
	return Decision{OK: false, Reason: reason, Range: rng}
}
