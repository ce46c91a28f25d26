package models

// Room is a bookable space. Rooms are read-only during an allocation run.
type Room struct {
	ID        string  `db:"id" json:"id"`
	Name      string  `db:"name" json:"name"`
	Capacity  int     `db:"capacity" json:"capacity"`
	RoomType  *string `db:"room_type" json:"room_type,omitempty"`
	Available bool    `db:"available" json:"available"`
}

// TypeValue returns the room type or an empty string.
func (r Room) TypeValue() string {
	if r.RoomType == nil {
		return ""
	}
	return *r.RoomType
}
