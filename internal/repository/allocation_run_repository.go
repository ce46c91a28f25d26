package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/special-week-api/internal/models"
)

// AllocationRunRepository tracks batch allocation executions.
type AllocationRunRepository struct {
	db *sqlx.DB
}

// NewAllocationRunRepository constructs an AllocationRunRepository.
func NewAllocationRunRepository(db *sqlx.DB) *AllocationRunRepository {
	return &AllocationRunRepository{db: db}
}

func (r *AllocationRunRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

const allocationRunColumns = `id, status, placed, failed, failures, error, requested_by, created_at, started_at, finished_at`

// Create records a queued run.
func (r *AllocationRunRepository) Create(ctx context.Context, run *models.AllocationRun) error {
	if run == nil {
		return fmt.Errorf("allocation run payload is nil")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = models.AllocationRunQueued
	}
	if len(run.Failures) == 0 {
		run.Failures = types.JSONText(`[]`)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO allocation_runs (id, status, placed, failed, failures, requested_by, created_at)
VALUES (:id, :status, :placed, :failed, :failures, :requested_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("insert allocation run: %w", err)
	}
	return nil
}

// FindByID fetches a run by ID.
func (r *AllocationRunRepository) FindByID(ctx context.Context, id string) (*models.AllocationRun, error) {
	query := `SELECT ` + allocationRunColumns + ` FROM allocation_runs WHERE id = $1`
	var run models.AllocationRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		return nil, err
	}
	return &run, nil
}

// List returns the most recent runs first.
func (r *AllocationRunRepository) List(ctx context.Context, limit int) ([]models.AllocationRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT %s FROM allocation_runs ORDER BY created_at DESC LIMIT %d`, allocationRunColumns, limit)
	var runs []models.AllocationRun
	if err := r.db.SelectContext(ctx, &runs, query); err != nil {
		return nil, fmt.Errorf("list allocation runs: %w", err)
	}
	return runs, nil
}

// MarkRunning moves a run to RUNNING.
func (r *AllocationRunRepository) MarkRunning(ctx context.Context, id string, startedAt time.Time) error {
	const query = `UPDATE allocation_runs SET status = $2, started_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, models.AllocationRunRunning, startedAt)
	if err != nil {
		return fmt.Errorf("mark allocation run running: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("allocation run rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Finish stores the outcome of a run. exec may be the allocation transaction so the result is
// committed together with the placements.
func (r *AllocationRunRepository) Finish(ctx context.Context, exec sqlx.ExtContext, run *models.AllocationRun) error {
	if run == nil {
		return fmt.Errorf("allocation run payload is nil")
	}
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}
	if len(run.Failures) == 0 {
		run.Failures = types.JSONText(`[]`)
	}
	const query = `UPDATE allocation_runs SET status = $2, placed = $3, failed = $4, failures = $5, error = $6, finished_at = $7 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, run.ID, run.Status, run.Placed, run.Failed, run.Failures, run.Error, run.FinishedAt); err != nil {
		return fmt.Errorf("finish allocation run: %w", err)
	}
	return nil
}
