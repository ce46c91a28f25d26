package dto

// EnrollRequest books a student on a placement. Force skips the capacity check and is only
// honoured for administrators.
type EnrollRequest struct {
	StudentID   string `json:"studentId" validate:"required"`
	PlacementID string `json:"placementId" validate:"required"`
	Force       bool   `json:"force"`
}

// EnrollmentActor identifies who performs an enrollment operation.
type EnrollmentActor struct {
	UserID string
	Admin  bool
}
