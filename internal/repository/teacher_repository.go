package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/special-week-api/internal/models"
)

// TeacherRepository reads teacher load budgets and availability declarations.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs a TeacherRepository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

func (r *TeacherRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns every teacher with their load budget.
func (r *TeacherRepository) List(ctx context.Context, exec sqlx.ExtContext) ([]models.Teacher, error) {
	const query = `SELECT id, acronym, full_name, max_load FROM teachers ORDER BY acronym`
	var teachers []models.Teacher
	if err := sqlx.SelectContext(ctx, r.exec(exec), &teachers, query); err != nil {
		return nil, fmt.Errorf("list teachers: %w", err)
	}
	return teachers, nil
}

// ListByIDs returns the teachers with the given IDs.
func (r *TeacherRepository) ListByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]models.Teacher, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const query = `SELECT id, acronym, full_name, max_load FROM teachers WHERE id = ANY($1) ORDER BY acronym`
	var teachers []models.Teacher
	if err := sqlx.SelectContext(ctx, r.exec(exec), &teachers, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list teachers by ids: %w", err)
	}
	return teachers, nil
}

// ListAvailability returns declared availability rows. Teachers without rows are available
// on every slot.
func (r *TeacherRepository) ListAvailability(ctx context.Context, exec sqlx.ExtContext, teacherIDs []string) ([]models.TeacherAvailability, error) {
	query := `SELECT teacher_id, slot_id FROM teacher_availability`
	var args []interface{}
	if len(teacherIDs) > 0 {
		query += ` WHERE teacher_id = ANY($1)`
		args = append(args, pq.Array(teacherIDs))
	}
	query += ` ORDER BY teacher_id, slot_id`

	var rows []models.TeacherAvailability
	if err := sqlx.SelectContext(ctx, r.exec(exec), &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list teacher availability: %w", err)
	}
	return rows, nil
}

type teacherLoadRow struct {
	TeacherID string `db:"teacher_id"`
	Used      int    `db:"used"`
}

// LoadUsed recomputes the periods consumed by each teacher from the stored placements.
func (r *TeacherRepository) LoadUsed(ctx context.Context, exec sqlx.ExtContext, teacherIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(teacherIDs))
	if len(teacherIDs) == 0 {
		return out, nil
	}
	const query = `SELECT wt.teacher_id, COALESCE(SUM(w.duration), 0) AS used
FROM workshop_teachers wt
JOIN workshops w ON w.id = wt.workshop_id
JOIN placements p ON p.workshop_id = w.id
WHERE wt.teacher_id = ANY($1)
GROUP BY wt.teacher_id`
	var rows []teacherLoadRow
	if err := sqlx.SelectContext(ctx, r.exec(exec), &rows, query, pq.Array(teacherIDs)); err != nil {
		return nil, fmt.Errorf("compute teacher load: %w", err)
	}
	for _, row := range rows {
		out[row.TeacherID] = row.Used
	}
	return out, nil
}
