package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"commentary/api/internal/database"
	"commentary/api/internal/models"
)

// DBTaskRepository persists task state transitions using the primary database.
type DBTaskRepository struct {
	db *database.DB
}

// NewDBTaskRepository constructs a task repository backed by the SQL database.
func NewDBTaskRepository(db *database.DB) *DBTaskRepository {
	return &DBTaskRepository{db: db}
}

// UpdateStatus updates the task status and timestamp.
func (r *DBTaskRepository) UpdateStatus(ctx context.Context, taskID uuid.UUID, status models.TaskStatus, updatedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, "UPDATE tasks SET status = $1, updated_at = $2 WHERE id = $3", status, updatedAt, taskID)
	return err
}

// CancelIfActive flips a non-terminal task to CANCELLED. It reports whether
// the task was actually transitioned; a task that already finished stays put.
func (r *DBTaskRepository) CancelIfActive(ctx context.Context, taskID uuid.UUID, updatedAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE tasks SET status = $1, updated_at = $2 WHERE id = $3 AND status NOT IN ($4, $5, $6)",
		models.TaskStatusCancelled, updatedAt, taskID,
		models.TaskStatusComplete, models.TaskStatusFailed, models.TaskStatusCancelled,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
