package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/special-week-api/internal/models"
)

// DutyRepository reads non-workshop teacher commitments.
type DutyRepository struct {
	db *sqlx.DB
}

// NewDutyRepository constructs a DutyRepository.
func NewDutyRepository(db *sqlx.DB) *DutyRepository {
	return &DutyRepository{db: db}
}

func (r *DutyRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns duties, optionally restricted to some teachers.
func (r *DutyRepository) List(ctx context.Context, exec sqlx.ExtContext, teacherIDs []string) ([]models.Duty, error) {
	query := `SELECT id, teacher_id, slot_id, label FROM teacher_duties`
	var args []interface{}
	if len(teacherIDs) > 0 {
		query += ` WHERE teacher_id = ANY($1)`
		args = append(args, pq.Array(teacherIDs))
	}
	query += ` ORDER BY teacher_id, slot_id`

	var duties []models.Duty
	if err := sqlx.SelectContext(ctx, r.exec(exec), &duties, query, args...); err != nil {
		return nil, fmt.Errorf("list teacher duties: %w", err)
	}
	return duties, nil
}
