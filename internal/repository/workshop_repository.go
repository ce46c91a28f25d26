package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/special-week-api/internal/models"
)

// WorkshopRepository reads workshops together with their ordered teacher lists.
type WorkshopRepository struct {
	db *sqlx.DB
}

// NewWorkshopRepository constructs a WorkshopRepository.
func NewWorkshopRepository(db *sqlx.DB) *WorkshopRepository {
	return &WorkshopRepository{db: db}
}

func (r *WorkshopRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

const workshopSelect = `SELECT w.id, w.title, w.duration, w.max_capacity, w.required_room_type, w.status, w.created_at,
COALESCE(array_agg(wt.teacher_id ORDER BY wt.position) FILTER (WHERE wt.teacher_id IS NOT NULL), '{}') AS teacher_ids
FROM workshops w
LEFT JOIN workshop_teachers wt ON wt.workshop_id = w.id`

// List returns every workshop regardless of status, oldest first. Teachers are ordered with the
// primary teacher first.
func (r *WorkshopRepository) List(ctx context.Context, exec sqlx.ExtContext) ([]models.Workshop, error) {
	query := workshopSelect + ` GROUP BY w.id ORDER BY w.created_at, w.id`
	var workshops []models.Workshop
	if err := sqlx.SelectContext(ctx, r.exec(exec), &workshops, query); err != nil {
		return nil, fmt.Errorf("list workshops: %w", err)
	}
	return workshops, nil
}

// FindByID fetches a workshop by ID.
func (r *WorkshopRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Workshop, error) {
	query := workshopSelect + ` WHERE w.id = $1 GROUP BY w.id`
	var workshop models.Workshop
	if err := sqlx.GetContext(ctx, r.exec(exec), &workshop, query, id); err != nil {
		return nil, err
	}
	return &workshop, nil
}
