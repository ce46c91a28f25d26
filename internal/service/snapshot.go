package service

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/special-week-api/internal/models"
	"github.com/noah-isme/special-week-api/internal/scheduler"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type timeSlotReader interface {
	List(ctx context.Context, exec sqlx.ExtContext) ([]models.TimeSlot, error)
}

type roomReader interface {
	List(ctx context.Context, exec sqlx.ExtContext) ([]models.Room, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Room, error)
}

type workshopReader interface {
	List(ctx context.Context, exec sqlx.ExtContext) ([]models.Workshop, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Workshop, error)
}

type teacherReader interface {
	List(ctx context.Context, exec sqlx.ExtContext) ([]models.Teacher, error)
	ListByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]models.Teacher, error)
	ListAvailability(ctx context.Context, exec sqlx.ExtContext, teacherIDs []string) ([]models.TeacherAvailability, error)
	LoadUsed(ctx context.Context, exec sqlx.ExtContext, teacherIDs []string) (map[string]int, error)
}

type dutyReader interface {
	List(ctx context.Context, exec sqlx.ExtContext, teacherIDs []string) ([]models.Duty, error)
}

type placementReader interface {
	ListAll(ctx context.Context, exec sqlx.ExtContext) ([]models.Placement, error)
}

type advisoryLocker interface {
	TryAllocationLock(ctx context.Context, tx sqlx.ExtContext) (bool, error)
	SharedAllocationLock(ctx context.Context, tx sqlx.ExtContext) error
	Lock(ctx context.Context, tx sqlx.ExtContext, keys ...string) error
}

// SnapshotLoader reads everything the allocator needs from the store.
type SnapshotLoader struct {
	slots      timeSlotReader
	rooms      roomReader
	workshops  workshopReader
	teachers   teacherReader
	duties     dutyReader
	placements placementReader
}

// NewSnapshotLoader wires the readers used for allocation snapshots.
func NewSnapshotLoader(slots timeSlotReader, rooms roomReader, workshops workshopReader, teachers teacherReader, duties dutyReader, placements placementReader) *SnapshotLoader {
	return &SnapshotLoader{slots: slots, rooms: rooms, workshops: workshops, teachers: teachers, duties: duties, placements: placements}
}

type snapshot struct {
	slots        []models.TimeSlot
	rooms        []models.Room
	workshops    []models.Workshop
	teachers     []models.Teacher
	availability []models.TeacherAvailability
	duties       []models.Duty
	placements   []models.Placement
}

// Load reads the snapshot concurrently from the pool.
func (l *SnapshotLoader) Load(ctx context.Context) (*snapshot, error) {
	snap := &snapshot{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.slots, err = l.slots.List(gctx, nil)
		return err
	})
	g.Go(func() (err error) {
		snap.rooms, err = l.rooms.List(gctx, nil)
		return err
	})
	g.Go(func() (err error) {
		snap.workshops, err = l.workshops.List(gctx, nil)
		return err
	})
	g.Go(func() (err error) {
		snap.teachers, err = l.teachers.List(gctx, nil)
		return err
	})
	g.Go(func() (err error) {
		snap.availability, err = l.teachers.ListAvailability(gctx, nil, nil)
		return err
	})
	g.Go(func() (err error) {
		snap.duties, err = l.duties.List(gctx, nil, nil)
		return err
	})
	g.Go(func() (err error) {
		snap.placements, err = l.placements.ListAll(gctx, nil)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}

// LoadTx reads the snapshot sequentially inside a transaction.
func (l *SnapshotLoader) LoadTx(ctx context.Context, tx sqlx.ExtContext) (*snapshot, error) {
	snap := &snapshot{}
	var err error
	if snap.slots, err = l.slots.List(ctx, tx); err != nil {
		return nil, err
	}
	if snap.rooms, err = l.rooms.List(ctx, tx); err != nil {
		return nil, err
	}
	if snap.workshops, err = l.workshops.List(ctx, tx); err != nil {
		return nil, err
	}
	if snap.teachers, err = l.teachers.List(ctx, tx); err != nil {
		return nil, err
	}
	if snap.availability, err = l.teachers.ListAvailability(ctx, tx, nil); err != nil {
		return nil, err
	}
	if snap.duties, err = l.duties.List(ctx, tx, nil); err != nil {
		return nil, err
	}
	if snap.placements, err = l.placements.ListAll(ctx, tx); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *snapshot) input(shortDay models.Weekday) scheduler.Input {
	return scheduler.Input{
		Workshops:          s.workshops,
		Calendar:           scheduler.NewCalendar(s.slots, shortDay),
		Rooms:              s.rooms,
		Availability:       scheduler.NewAvailability(s.availability),
		Loads:              scheduler.NewLoadBudget(s.teachers),
		ExistingPlacements: s.placements,
		Duties:             s.duties,
	}
}
