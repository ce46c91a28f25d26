package dto

import "github.com/noah-isme/special-week-api/internal/models"

// AllocationFailure reports a workshop that received no placement.
type AllocationFailure struct {
	WorkshopID    string `json:"workshopId"`
	WorkshopTitle string `json:"workshopTitle"`
	Reason        string `json:"reason"`
	Category      string `json:"category"`
}

// AllocationPlacement is a placement proposed or created by the allocator.
type AllocationPlacement struct {
	WorkshopID    string         `json:"workshopId"`
	WorkshopTitle string         `json:"workshopTitle"`
	RoomID        string         `json:"roomId"`
	StartSlotID   string         `json:"startSlotId"`
	SlotCount     int            `json:"slotCount"`
	Day           models.Weekday `json:"day"`
	Block         models.Block   `json:"block"`
}

// AllocationResult summarises one allocation pass.
type AllocationResult struct {
	Placed     []AllocationPlacement `json:"placed"`
	Failures   []AllocationFailure   `json:"failures"`
	Warnings   []string              `json:"warnings,omitempty"`
	Existing   int                   `json:"existing"`
	Candidates int                   `json:"candidates"`
}

// ListRunsQuery bounds the run history listing.
type ListRunsQuery struct {
	Limit int `form:"limit" validate:"omitempty,min=1,max=100"`
}
