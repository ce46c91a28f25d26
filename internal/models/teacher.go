package models

// Teacher holds the identity and the teaching load budget of a teacher.
// MaxLoad is expressed in periods; zero means unlimited.
type Teacher struct {
	ID       string `db:"id" json:"id"`
	Acronym  string `db:"acronym" json:"acronym"`
	FullName string `db:"full_name" json:"full_name"`
	MaxLoad  int    `db:"max_load" json:"max_load"`
}

// TeacherAvailability is a declared (teacher, slot) availability row.
type TeacherAvailability struct {
	TeacherID string `db:"teacher_id" json:"teacher_id"`
	SlotID    string `db:"slot_id" json:"slot_id"`
}

// Duty is a non-workshop teacher commitment on a specific slot.
type Duty struct {
	ID        string `db:"id" json:"id"`
	TeacherID string `db:"teacher_id" json:"teacher_id"`
	SlotID    string `db:"slot_id" json:"slot_id"`
	Label     string `db:"label" json:"label"`
}
