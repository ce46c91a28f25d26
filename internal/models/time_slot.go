package models

import (
	"fmt"
	"strings"
)

// Weekday identifies a school day of the special week (1 = Monday).
type Weekday int

const (
	Monday Weekday = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
)

// Weekdays lists the five school days in natural order.
var Weekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday}

var weekdayNames = map[Weekday]string{
	Monday:    "MONDAY",
	Tuesday:   "TUESDAY",
	Wednesday: "WEDNESDAY",
	Thursday:  "THURSDAY",
	Friday:    "FRIDAY",
}

// String returns the upper-case day name.
func (d Weekday) String() string {
	if name, ok := weekdayNames[d]; ok {
		return name
	}
	return "UNKNOWN"
}

// Valid reports whether d is one of the five school days.
func (d Weekday) Valid() bool {
	return d >= Monday && d <= Friday
}

// ParseWeekday converts a day name into a Weekday, returning 0 when unknown.
func ParseWeekday(name string) Weekday {
	name = strings.ToUpper(strings.TrimSpace(name))
	for day, label := range weekdayNames {
		if label == name {
			return day
		}
	}
	return 0
}

// MarshalText renders the day name in JSON payloads.
func (d Weekday) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText accepts a day name.
func (d *Weekday) UnmarshalText(text []byte) error {
	day := ParseWeekday(string(text))
	if day == 0 {
		return fmt.Errorf("unknown weekday %q", string(text))
	}
	*d = day
	return nil
}

// Block is one of the fixed positions inside a day.
type Block int

const (
	BlockMorning Block = iota + 1
	BlockEarlyAfternoon
	BlockLateAfternoon
)

// String returns the block label.
func (b Block) String() string {
	switch b {
	case BlockMorning:
		return "MORNING"
	case BlockEarlyAfternoon:
		return "EARLY_AFTERNOON"
	case BlockLateAfternoon:
		return "LATE_AFTERNOON"
	}
	return "UNKNOWN"
}

// ParseBlock converts a block label into a Block, returning 0 when unknown.
func ParseBlock(name string) Block {
	name = strings.ToUpper(strings.TrimSpace(name))
	for b := BlockMorning; b <= BlockLateAfternoon; b++ {
		if b.String() == name {
			return b
		}
	}
	return 0
}

// MarshalText renders the block label in JSON payloads.
func (b Block) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText accepts a block label.
func (b *Block) UnmarshalText(text []byte) error {
	block := ParseBlock(string(text))
	if block == 0 {
		return fmt.Errorf("unknown block %q", string(text))
	}
	*b = block
	return nil
}

// TimeSlot is an indivisible scheduling unit. Position is the global order index.
type TimeSlot struct {
	ID       string  `db:"id" json:"id"`
	Day      Weekday `db:"day_of_week" json:"day_of_week"`
	Block    Block   `db:"block" json:"block"`
	Position int     `db:"position" json:"position"`
}
