package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/special-week-api/internal/models"
)

// PlacementRepository persists workshop placements.
type PlacementRepository struct {
	db *sqlx.DB
}

// NewPlacementRepository constructs a PlacementRepository.
func NewPlacementRepository(db *sqlx.DB) *PlacementRepository {
	return &PlacementRepository{db: db}
}

func (r *PlacementRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

const placementColumns = `id, workshop_id, room_id, start_slot_id, slot_count, source, run_id, created_at`

// ListAll returns every stored placement.
func (r *PlacementRepository) ListAll(ctx context.Context, exec sqlx.ExtContext) ([]models.Placement, error) {
	query := `SELECT ` + placementColumns + ` FROM placements ORDER BY created_at, id`
	var placements []models.Placement
	if err := sqlx.SelectContext(ctx, r.exec(exec), &placements, query); err != nil {
		return nil, fmt.Errorf("list placements: %w", err)
	}
	return placements, nil
}

// FindByID fetches a placement by ID.
func (r *PlacementRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Placement, error) {
	query := `SELECT ` + placementColumns + ` FROM placements WHERE id = $1`
	var placement models.Placement
	if err := sqlx.GetContext(ctx, r.exec(exec), &placement, query, id); err != nil {
		return nil, err
	}
	return &placement, nil
}

// ListDetails returns the timetable view ordered by day, position and room.
func (r *PlacementRepository) ListDetails(ctx context.Context, filter models.PlacementFilter) ([]models.PlacementDetail, error) {
	base := `SELECT p.id, p.workshop_id, p.room_id, p.start_slot_id, p.slot_count, p.source, p.run_id, p.created_at,
w.title AS workshop_title, w.duration AS workshop_duration, w.max_capacity, r.name AS room_name,
s.day_of_week, s.block, s.position,
(SELECT COUNT(*) FROM enrollments e WHERE e.placement_id = p.id AND e.status = 'CONFIRMED') AS enrolled
FROM placements p
JOIN workshops w ON w.id = p.workshop_id
JOIN rooms r ON r.id = p.room_id
JOIN time_slots s ON s.id = p.start_slot_id
WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Day != 0 {
		conditions = append(conditions, fmt.Sprintf("s.day_of_week = $%d", len(args)+1))
		args = append(args, int(filter.Day))
	}
	if filter.WorkshopID != "" {
		conditions = append(conditions, fmt.Sprintf("p.workshop_id = $%d", len(args)+1))
		args = append(args, filter.WorkshopID)
	}
	if filter.RoomID != "" {
		conditions = append(conditions, fmt.Sprintf("p.room_id = $%d", len(args)+1))
		args = append(args, filter.RoomID)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("EXISTS (SELECT 1 FROM workshop_teachers wt WHERE wt.workshop_id = p.workshop_id AND wt.teacher_id = $%d)", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}
	query := base + " ORDER BY s.day_of_week, s.position, r.name"

	var details []models.PlacementDetail
	if err := r.db.SelectContext(ctx, &details, query, args...); err != nil {
		return nil, fmt.Errorf("list placement details: %w", err)
	}
	return details, nil
}

// ListActivities returns every placement with its workshop title, duration and teachers.
func (r *PlacementRepository) ListActivities(ctx context.Context, exec sqlx.ExtContext) ([]models.PlacementActivity, error) {
	const query = `SELECT p.id AS placement_id, p.workshop_id, w.title AS workshop_title, w.duration, p.room_id, p.start_slot_id,
COALESCE(array_agg(wt.teacher_id ORDER BY wt.position) FILTER (WHERE wt.teacher_id IS NOT NULL), '{}') AS teacher_ids
FROM placements p
JOIN workshops w ON w.id = p.workshop_id
LEFT JOIN workshop_teachers wt ON wt.workshop_id = w.id
GROUP BY p.id, w.id
ORDER BY p.id`
	var activities []models.PlacementActivity
	if err := sqlx.SelectContext(ctx, r.exec(exec), &activities, query); err != nil {
		return nil, fmt.Errorf("list placement activities: %w", err)
	}
	return activities, nil
}

// Create inserts a single placement.
func (r *PlacementRepository) Create(ctx context.Context, exec sqlx.ExtContext, placement *models.Placement) error {
	if placement == nil {
		return fmt.Errorf("placement payload is nil")
	}
	if placement.ID == "" {
		placement.ID = uuid.NewString()
	}
	if placement.Source == "" {
		placement.Source = models.PlacementSourceManual
	}
	if placement.CreatedAt.IsZero() {
		placement.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO placements (id, workshop_id, room_id, start_slot_id, slot_count, source, run_id, created_at)
VALUES (:id, :workshop_id, :room_id, :start_slot_id, :slot_count, :source, :run_id, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, placement); err != nil {
		return fmt.Errorf("insert placement: %w", err)
	}
	return nil
}

// BulkInsert stores the placements produced by an allocation run in a single statement.
func (r *PlacementRepository) BulkInsert(ctx context.Context, exec sqlx.ExtContext, placements []models.Placement) error {
	if len(placements) == 0 {
		return nil
	}
	now := time.Now().UTC()
	var sb strings.Builder
	sb.WriteString(`INSERT INTO placements (id, workshop_id, room_id, start_slot_id, slot_count, source, run_id, created_at) VALUES `)
	args := make([]interface{}, 0, len(placements)*8)
	for i := range placements {
		p := &placements[i]
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		if p.Source == "" {
			p.Source = models.PlacementSourceAuto
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 8
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8))
		args = append(args, p.ID, p.WorkshopID, p.RoomID, p.StartSlotID, p.SlotCount, p.Source, p.RunID, p.CreatedAt)
	}
	if _, err := r.exec(exec).ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("bulk insert placements: %w", err)
	}
	return nil
}

// Delete removes a placement.
func (r *PlacementRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `DELETE FROM placements WHERE id = $1`
	result, err := r.exec(exec).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete placement: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("placement rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
