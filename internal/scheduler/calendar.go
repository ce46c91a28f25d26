package scheduler

import (
	"errors"
	"sort"

	"github.com/noah-isme/special-week-api/internal/models"
)

// ErrOutOfCalendar is returned when a slot range leaves its day or the calendar.
var ErrOutOfCalendar = errors.New("slot range outside calendar")

// Range is a half-open interval [Start, End) of slot positions inside a single day.
type Range struct {
	Day     models.Weekday
	Start   int
	End     int
	FullDay bool
	SlotIDs []string
}

// Overlaps reports whether two ranges collide. A full-day range blocks the whole day.
func Overlaps(a, b Range) bool {
	if a.Day != b.Day {
		return false
	}
	if a.FullDay || b.FullDay {
		return true
	}
	return a.Start < b.End && b.Start < a.End
}

// SlotCount converts a workshop duration in periods into a number of contiguous slots.
func SlotCount(duration int) int {
	switch duration {
	case models.DurationShort:
		return 1
	case models.DurationHalf:
		return 2
	case models.DurationFull:
		return 3
	}
	return 0
}

// Calendar is the ordered set of time slots of the special week.
type Calendar struct {
	slots    []models.TimeSlot
	byID     map[string]models.TimeSlot
	byDay    map[models.Weekday][]models.TimeSlot
	shortDay models.Weekday
}

// NewCalendar indexes the slots. shortDay is the day on which half-day workshops may only
// start in the first block; pass 0 when no day is reduced.
func NewCalendar(slots []models.TimeSlot, shortDay models.Weekday) *Calendar {
	ordered := make([]models.TimeSlot, 0, len(slots))
	for _, slot := range slots {
		if !slot.Day.Valid() {
			continue
		}
		ordered = append(ordered, slot)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Day == ordered[j].Day {
			return ordered[i].Position < ordered[j].Position
		}
		return ordered[i].Day < ordered[j].Day
	})

	cal := &Calendar{
		slots:    ordered,
		byID:     make(map[string]models.TimeSlot, len(ordered)),
		byDay:    make(map[models.Weekday][]models.TimeSlot),
		shortDay: shortDay,
	}
	for _, slot := range ordered {
		cal.byID[slot.ID] = slot
		cal.byDay[slot.Day] = append(cal.byDay[slot.Day], slot)
	}
	return cal
}

// ShortDay returns the designated reduced day.
func (c *Calendar) ShortDay() models.Weekday {
	return c.shortDay
}

// Slot looks a slot up by id.
func (c *Calendar) Slot(id string) (models.TimeSlot, bool) {
	slot, ok := c.byID[id]
	return slot, ok
}

// SlotsOrderedByDay returns every slot ordered by day then position.
func (c *Calendar) SlotsOrderedByDay() []models.TimeSlot {
	out := make([]models.TimeSlot, len(c.slots))
	copy(out, c.slots)
	return out
}

// SlotsForDay returns the ordered slots of one day.
func (c *Calendar) SlotsForDay(day models.Weekday) []models.TimeSlot {
	daySlots := c.byDay[day]
	out := make([]models.TimeSlot, len(daySlots))
	copy(out, daySlots)
	return out
}

// BlockStartCandidates lists the slots a workshop of the given duration may start on.
//
//	6 periods: first block only, the workshop takes the whole day
//	4 periods: first block, or the second block except on the short day
//	2 periods: any block
func (c *Calendar) BlockStartCandidates(duration int, day models.Weekday) []models.TimeSlot {
	daySlots := c.byDay[day]
	if len(daySlots) == 0 {
		return nil
	}
	switch duration {
	case models.DurationFull:
		return []models.TimeSlot{daySlots[0]}
	case models.DurationHalf:
		out := []models.TimeSlot{daySlots[0]}
		if day != c.shortDay && len(daySlots) > 1 {
			out = append(out, daySlots[1])
		}
		return out
	case models.DurationShort:
		return c.SlotsForDay(day)
	}
	return nil
}

// SlotRange resolves the contiguous range a workshop of the given duration occupies when it
// starts on startSlotID.
func (c *Calendar) SlotRange(startSlotID string, duration int) (Range, error) {
	count := SlotCount(duration)
	if count == 0 {
		return Range{}, ErrOutOfCalendar
	}
	rng, err := c.RangeBySlotCount(startSlotID, count)
	if err != nil {
		return Range{}, err
	}
	rng.FullDay = duration == models.DurationFull
	return rng, nil
}

// RangeBySlotCount resolves count consecutive blocks starting on startSlotID.
func (c *Calendar) RangeBySlotCount(startSlotID string, count int) (Range, error) {
	start, ok := c.byID[startSlotID]
	if !ok || count <= 0 {
		return Range{}, ErrOutOfCalendar
	}
	daySlots := c.byDay[start.Day]
	idx := -1
	for i, slot := range daySlots {
		if slot.ID == startSlotID {
			idx = i
			break
		}
	}
	if idx < 0 || idx+count > len(daySlots) {
		return Range{}, ErrOutOfCalendar
	}

	ids := make([]string, 0, count)
	for k := 0; k < count; k++ {
		slot := daySlots[idx+k]
		if slot.Block != start.Block+models.Block(k) {
			return Range{}, ErrOutOfCalendar
		}
		ids = append(ids, slot.ID)
	}
	last := daySlots[idx+count-1]
	return Range{
		Day:     start.Day,
		Start:   start.Position,
		End:     last.Position + 1,
		SlotIDs: ids,
	}, nil
}
