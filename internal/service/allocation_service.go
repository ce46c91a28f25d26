package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/special-week-api/internal/dto"
	"github.com/noah-isme/special-week-api/internal/models"
	"github.com/noah-isme/special-week-api/internal/scheduler"
	"github.com/noah-isme/special-week-api/pkg/cache"
	"github.com/noah-isme/special-week-api/pkg/database"
	appErrors "github.com/noah-isme/special-week-api/pkg/errors"
	"github.com/noah-isme/special-week-api/pkg/jobs"
)

// JobTypeAllocation identifies allocation runs on the job queue.
const JobTypeAllocation = "allocation"

type allocationRunStore interface {
	Create(ctx context.Context, run *models.AllocationRun) error
	FindByID(ctx context.Context, id string) (*models.AllocationRun, error)
	List(ctx context.Context, limit int) ([]models.AllocationRun, error)
	MarkRunning(ctx context.Context, id string, startedAt time.Time) error
	Finish(ctx context.Context, exec sqlx.ExtContext, run *models.AllocationRun) error
}

type placementBulkWriter interface {
	BulkInsert(ctx context.Context, exec sqlx.ExtContext, placements []models.Placement) error
}

type jobEnqueuer interface {
	TryEnqueue(job jobs.Job) error
	Depth() int
}

type timetableInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

// AllocationService runs the greedy allocator, either as a dry-run preview or as a queued batch
// that persists its placements.
type AllocationService struct {
	tx         txProvider
	loader     *SnapshotLoader
	placements placementBulkWriter
	runs       allocationRunStore
	locks      advisoryLocker
	cache      timetableInvalidator
	metrics    *MetricsService
	queue      jobEnqueuer
	shortDay   models.Weekday
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// AllocationServiceConfig groups the optional collaborators of the allocation service.
type AllocationServiceConfig struct {
	ShortDay  models.Weekday
	Cache     timetableInvalidator
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
}

// NewAllocationService constructs the allocation service.
func NewAllocationService(tx txProvider, loader *SnapshotLoader, placements placementBulkWriter, runs allocationRunStore, locks advisoryLocker, cfg AllocationServiceConfig) *AllocationService {
	if cfg.Validator == nil {
		cfg.Validator = validator.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &AllocationService{
		tx:         tx,
		loader:     loader,
		placements: placements,
		runs:       runs,
		locks:      locks,
		cache:      cfg.Cache,
		metrics:    cfg.Metrics,
		shortDay:   cfg.ShortDay,
		validator:  cfg.Validator,
		logger:     cfg.Logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetQueue attaches the worker queue. The queue is built after the service because its handler
// is HandleJob.
func (s *AllocationService) SetQueue(queue jobEnqueuer) {
	s.queue = queue
}

// Preview runs the allocator against the live snapshot without persisting anything.
func (s *AllocationService) Preview(ctx context.Context) (*dto.AllocationResult, error) {
	loadStart := time.Now()
	snap, err := s.loader.Load(ctx)
	s.metrics.ObserveDBQuery("allocation_snapshot", time.Since(loadStart))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load allocation snapshot")
	}
	result := scheduler.Allocate(snap.input(s.shortDay))
	return buildAllocationResult(snap, result), nil
}

// Enqueue records a queued run and hands it to the worker.
func (s *AllocationService) Enqueue(ctx context.Context, requestedBy string) (*models.AllocationRun, error) {
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrServiceUnavailable, "allocation worker is disabled")
	}
	run := &models.AllocationRun{Status: models.AllocationRunQueued, RequestedBy: requestedBy}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record allocation run")
	}
	if err := s.queue.TryEnqueue(jobs.Job{ID: run.ID, Type: JobTypeAllocation}); err != nil {
		msg := err.Error()
		run.Status = models.AllocationRunFailed
		run.Error = &msg
		if finishErr := s.runs.Finish(ctx, nil, run); finishErr != nil {
			s.logger.Warn("failed to mark rejected allocation run", zap.String("run_id", run.ID), zap.Error(finishErr))
		}
		if errors.Is(err, jobs.ErrQueueFull) {
			return nil, appErrors.Clone(appErrors.ErrServiceUnavailable, "allocation queue is full, retry later")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "failed to enqueue allocation run")
	}
	s.metrics.SetQueueDepth(s.queue.Depth())
	s.logger.Info("allocation run queued", zap.String("run_id", run.ID), zap.String("requested_by", requestedBy))
	return run, nil
}

// HandleJob is the queue handler for allocation jobs.
func (s *AllocationService) HandleJob(ctx context.Context, job jobs.Job) error {
	if job.Type != JobTypeAllocation {
		return fmt.Errorf("unexpected job type %q: %w", job.Type, jobs.ErrPermanent)
	}
	if s.queue != nil {
		s.metrics.SetQueueDepth(s.queue.Depth())
	}
	return s.Execute(ctx, job.ID)
}

// Execute runs one batch inside a single transaction guarded by the allocation advisory lock.
// Placements are inserted with the run ID and the run row records the outcome.
func (s *AllocationService) Execute(ctx context.Context, runID string) error {
	if s.tx == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	started := s.now()
	if err := s.runs.MarkRunning(ctx, runID, started); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("allocation run %s not found: %w", runID, jobs.ErrPermanent)
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start allocation run")
	}

	run := &models.AllocationRun{ID: runID}
	var result scheduler.Result
	err := database.WithTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		acquired, err := s.locks.TryAllocationLock(ctx, tx)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to acquire allocation lock")
		}
		if !acquired {
			return appErrors.Clone(appErrors.ErrBatchInProgress, "")
		}
		loadStart := time.Now()
		snap, err := s.loader.LoadTx(ctx, tx)
		s.metrics.ObserveDBQuery("allocation_snapshot_tx", time.Since(loadStart))
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load allocation snapshot")
		}
		result = scheduler.Allocate(snap.input(s.shortDay))
		for i := range result.Placed {
			result.Placed[i].RunID = &run.ID
		}
		if err := s.placements.BulkInsert(ctx, tx, result.Placed); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist placements")
		}

		failures, err := json.Marshal(toFailureDTOs(result.Failures))
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode allocation failures")
		}
		finished := s.now()
		run.Status = models.AllocationRunSucceeded
		run.Placed = len(result.Placed)
		run.Failed = len(result.Failures)
		run.Failures = types.JSONText(failures)
		run.FinishedAt = &finished
		if err := s.runs.Finish(ctx, tx, run); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record allocation result")
		}
		return nil
	})
	if err != nil {
		s.fail(ctx, run, err)
		s.metrics.RecordAllocationRun(models.AllocationRunFailed, 0, nil, s.now().Sub(started))
		return err
	}

	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, cache.Key("timetable", "*"))
	}
	s.metrics.RecordAllocationRun(models.AllocationRunSucceeded, run.Placed, failureCounts(result.Failures), s.now().Sub(started))
	for _, warning := range result.Warnings {
		s.logger.Warn("allocation snapshot warning", zap.String("run_id", runID), zap.String("warning", warning))
	}
	s.logger.Info("allocation run finished",
		zap.String("run_id", runID),
		zap.Int("placed", run.Placed),
		zap.Int("failed", run.Failed),
		zap.Duration("duration", s.now().Sub(started)),
	)
	return nil
}

func (s *AllocationService) fail(ctx context.Context, run *models.AllocationRun, cause error) {
	msg := cause.Error()
	finished := s.now()
	run.Status = models.AllocationRunFailed
	run.Placed = 0
	run.Failed = 0
	run.Failures = nil
	run.Error = &msg
	run.FinishedAt = &finished
	if err := s.runs.Finish(ctx, nil, run); err != nil {
		s.logger.Error("failed to record allocation failure", zap.String("run_id", run.ID), zap.Error(err))
	}
	s.logger.Warn("allocation run failed", zap.String("run_id", run.ID), zap.Error(cause))
}

// GetRun returns one allocation run.
func (s *AllocationService) GetRun(ctx context.Context, id string) (*models.AllocationRun, error) {
	run, err := s.runs.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "allocation run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load allocation run")
	}
	return run, nil
}

// ListRuns returns the most recent runs first.
func (s *AllocationService) ListRuns(ctx context.Context, query dto.ListRunsQuery) ([]models.AllocationRun, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid run listing query")
	}
	runs, err := s.runs.List(ctx, query.Limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list allocation runs")
	}
	return runs, nil
}

func buildAllocationResult(snap *snapshot, result scheduler.Result) *dto.AllocationResult {
	titles := make(map[string]string, len(snap.workshops))
	candidates := 0
	for _, w := range snap.workshops {
		titles[w.ID] = w.Title
		if w.Approved() {
			candidates++
		}
	}
	slots := make(map[string]models.TimeSlot, len(snap.slots))
	for _, slot := range snap.slots {
		slots[slot.ID] = slot
	}

	out := &dto.AllocationResult{
		Placed:     make([]dto.AllocationPlacement, 0, len(result.Placed)),
		Failures:   toFailureDTOs(result.Failures),
		Warnings:   result.Warnings,
		Existing:   len(snap.placements),
		Candidates: candidates,
	}
	for _, p := range result.Placed {
		slot := slots[p.StartSlotID]
		out.Placed = append(out.Placed, dto.AllocationPlacement{
			WorkshopID:    p.WorkshopID,
			WorkshopTitle: titles[p.WorkshopID],
			RoomID:        p.RoomID,
			StartSlotID:   p.StartSlotID,
			SlotCount:     p.SlotCount,
			Day:           slot.Day,
			Block:         slot.Block,
		})
	}
	return out
}

func toFailureDTOs(failures []scheduler.Failure) []dto.AllocationFailure {
	out := make([]dto.AllocationFailure, 0, len(failures))
	for _, f := range failures {
		out = append(out, dto.AllocationFailure{
			WorkshopID:    f.WorkshopID,
			WorkshopTitle: f.WorkshopTitle,
			Reason:        string(f.Reason),
			Category:      f.Reason.Category(),
		})
	}
	return out
}

func failureCounts(failures []scheduler.Failure) map[string]int {
	out := make(map[string]int)
	for _, f := range failures {
		out[string(f.Reason)]++
	}
	return out
}
