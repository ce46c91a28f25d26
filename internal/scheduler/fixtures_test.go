package scheduler

import (
	"fmt"

	"github.com/noah-isme/special-week-api/internal/models"
)

var dayPrefix = map[models.Weekday]string{
	models.Monday:    "mon",
	models.Tuesday:   "tue",
	models.Wednesday: "wed",
	models.Thursday:  "thu",
	models.Friday:    "fri",
}

func slotID(day models.Weekday, block models.Block) string {
	return fmt.Sprintf("%s-%d", dayPrefix[day], block)
}

// weekSlots builds five days of three blocks; blocksOnShortDay trims the short day.
func weekSlots(shortDay models.Weekday, blocksOnShortDay int) []models.TimeSlot {
	var slots []models.TimeSlot
	position := 0
	for _, day := range models.Weekdays {
		blocks := 3
		if day == shortDay {
			blocks = blocksOnShortDay
		}
		for b := 1; b <= blocks; b++ {
			position++
			slots = append(slots, models.TimeSlot{
				ID:       slotID(day, models.Block(b)),
				Day:      day,
				Block:    models.Block(b),
				Position: position,
			})
		}
	}
	return slots
}

func fullWeek() *Calendar {
	return NewCalendar(weekSlots(0, 3), 0)
}

func weekWithShortWednesday() *Calendar {
	return NewCalendar(weekSlots(models.Wednesday, 2), models.Wednesday)
}

func workshop(id string, duration, capacity int, teachers ...string) models.Workshop {
	return models.Workshop{
		ID:          id,
		Title:       "Workshop " + id,
		Duration:    duration,
		MaxCapacity: capacity,
		TeacherIDs:  teachers,
		Status:      models.WorkshopStatusApproved,
	}
}

func room(id string, capacity int) models.Room {
	return models.Room{ID: id, Name: "Room " + id, Capacity: capacity, Available: true}
}

func strPtr(v string) *string {
	return &v
}
