package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// AllocationRunStatus represents the lifecycle of a batch allocation.
type AllocationRunStatus string

const (
	AllocationRunQueued    AllocationRunStatus = "QUEUED"
	AllocationRunRunning   AllocationRunStatus = "RUNNING"
	AllocationRunSucceeded AllocationRunStatus = "SUCCEEDED"
	AllocationRunFailed    AllocationRunStatus = "FAILED"
)

// AllocationRun records one execution of the automatic allocator.
type AllocationRun struct {
	ID          string              `db:"id" json:"id"`
	Status      AllocationRunStatus `db:"status" json:"status"`
	Placed      int                 `db:"placed" json:"placed"`
	Failed      int                 `db:"failed" json:"failed"`
	Failures    types.JSONText      `db:"failures" json:"failures,omitempty"`
	Error       *string             `db:"error" json:"error,omitempty"`
	RequestedBy string              `db:"requested_by" json:"requested_by"`
	CreatedAt   time.Time           `db:"created_at" json:"created_at"`
	StartedAt   *time.Time          `db:"started_at" json:"started_at,omitempty"`
	FinishedAt  *time.Time          `db:"finished_at" json:"finished_at,omitempty"`
}
