package scheduler

import (
	"fmt"
	"sort"

	"github.com/noah-isme/special-week-api/internal/models"
)

// Input is the read-only snapshot an allocation run works on. Workshops must contain every
// workshop referenced by ExistingPlacements, approved or not, so their teachers can be seeded.
type Input struct {
	Workshops          []models.Workshop
	Calendar           *Calendar
	Rooms              []models.Room
	Availability       Availability
	Loads              LoadBudget
	ExistingPlacements []models.Placement
	Duties             []models.Duty
}

// Failure records a workshop that could not be placed even once.
type Failure struct {
	WorkshopID    string `json:"workshop_id"`
	WorkshopTitle string `json:"workshop_title"`
	Reason        Reason `json:"reason"`
}

// Result is the outcome of an allocation run. Placed entries carry no ID; the caller persists
// them.
type Result struct {
	Placed   []models.Placement
	Failures []Failure
	Warnings []string
}

// Allocator greedily packs approved workshops into rooms and slots.
type Allocator struct {
	in       Input
	tracker  *OccupancyTracker
	checker  *FeasibilityChecker
	rooms    []models.Room
	byID     map[string]models.Workshop
	warnings []string
}

// Allocate runs one batch over the snapshot.
func Allocate(in Input) Result {
	a := newAllocator(in)
	a.seed()

	var result Result
	for _, w := range a.schedulable() {
		placed, reason := a.placeAll(w)
		result.Placed = append(result.Placed, placed...)
		if len(placed) == 0 {
			result.Failures = append(result.Failures, Failure{WorkshopID: w.ID, WorkshopTitle: w.Title, Reason: reason})
		}
	}
	result.Warnings = a.warnings
	return result
}

func newAllocator(in Input) *Allocator {
	if in.Calendar == nil {
		in.Calendar = NewCalendar(nil, 0)
	}
	tracker := NewOccupancyTracker()

	rooms := make([]models.Room, 0, len(in.Rooms))
	for _, room := range in.Rooms {
		if room.Available {
			rooms = append(rooms, room)
		}
	}
	sort.SliceStable(rooms, func(i, j int) bool {
		if rooms[i].Capacity == rooms[j].Capacity {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].Capacity > rooms[j].Capacity
	})

	byID := make(map[string]models.Workshop, len(in.Workshops))
	for _, w := range in.Workshops {
		byID[w.ID] = w
	}

	return &Allocator{
		in:      in,
		tracker: tracker,
		checker: NewFeasibilityChecker(in.Calendar, tracker, in.Availability, in.Loads),
		rooms:   rooms,
		byID:    byID,
	}
}

// seed books existing placements and duty assignments so a re-run never collides with them.
func (a *Allocator) seed() {
	for _, p := range a.in.ExistingPlacements {
		w, known := a.byID[p.WorkshopID]
		count := p.SlotCount
		if count <= 0 && known {
			count = SlotCount(w.Duration)
		}
		rng, err := a.in.Calendar.RangeBySlotCount(p.StartSlotID, count)
		if err != nil {
			a.warnings = append(a.warnings, fmt.Sprintf("placement %s: start slot %s outside calendar", p.ID, p.StartSlotID))
			continue
		}
		var teachers []string
		duration := 0
		if known {
			teachers = w.TeacherIDs
			duration = w.Duration
		} else {
			a.warnings = append(a.warnings, fmt.Sprintf("placement %s: workshop %s missing from snapshot", p.ID, p.WorkshopID))
		}
		a.tracker.Reserve(rng.SlotIDs, p.RoomID, teachers, p.WorkshopID, duration)
		a.tracker.RecordDayPlacement(rng.Day)
	}
	for _, duty := range a.in.Duties {
		a.tracker.ReserveTeacher(duty.SlotID, duty.TeacherID, duty.ID)
	}
}

// schedulable returns approved workshops, longest first, keeping input order within a duration.
func (a *Allocator) schedulable() []models.Workshop {
	out := make([]models.Workshop, 0, len(a.in.Workshops))
	for _, w := range a.in.Workshops {
		if w.Approved() {
			out = append(out, w)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Duration > out[j].Duration
	})
	return out
}

// placeAll adds occurrences of w until the load budget or the calendar runs out.
func (a *Allocator) placeAll(w models.Workshop) ([]models.Placement, Reason) {
	if len(w.TeacherIDs) == 0 {
		return nil, ReasonTeacherUnavailable
	}
	var placed []models.Placement
	var reason Reason
	for {
		if a.budgetExhausted(w) {
			reason = ReasonLoadExceeded
			break
		}
		placement, why, ok := a.placeOccurrence(w)
		if !ok {
			reason = why
			break
		}
		placed = append(placed, placement)
	}
	return placed, reason
}

func (a *Allocator) budgetExhausted(w models.Workshop) bool {
	for _, teacherID := range w.TeacherIDs {
		if !a.in.Loads.Fits(teacherID, a.tracker.LoadUsed(teacherID), w.Duration) {
			return true
		}
	}
	return false
}

// placeOccurrence tries days from least to most loaded, start candidates in block order and
// rooms from largest to smallest; the first admissible combination wins.
func (a *Allocator) placeOccurrence(w models.Workshop) (models.Placement, Reason, bool) {
	var last Reason
	candidates := 0
	for _, day := range a.rankedDays() {
		for _, start := range a.in.Calendar.BlockStartCandidates(w.Duration, day) {
			candidates++
			for _, room := range a.rooms {
				decision := a.checker.CanPlace(w, start.ID, room)
				if !decision.OK {
					last = decision.Reason
					continue
				}
				a.tracker.Reserve(decision.Range.SlotIDs, room.ID, w.TeacherIDs, w.ID, w.Duration)
				a.tracker.RecordDayPlacement(decision.Range.Day)
				return models.Placement{
					WorkshopID:  w.ID,
					RoomID:      room.ID,
					StartSlotID: start.ID,
					SlotCount:   len(decision.Range.SlotIDs),
					Source:      models.PlacementSourceAuto,
				}, "", true
			}
		}
	}
	if last == "" {
		if candidates == 0 {
			last = ReasonOutOfCalendar
		} else {
			last = ReasonRoomBusy
		}
	}
	return models.Placement{}, last, false
}

func (a *Allocator) rankedDays() []models.Weekday {
	days := make([]models.Weekday, len(models.Weekdays))
	copy(days, models.Weekdays)
	sort.SliceStable(days, func(i, j int) bool {
		return a.tracker.DayCount(days[i]) < a.tracker.DayCount(days[j])
	})
	return days
}
