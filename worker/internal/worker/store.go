package worker

import (
	"context"
	"fmt"
	"time"

	"commentary/worker/internal/database"
	"commentary/worker/internal/pipeline"
)

// dbStageStore persists pipeline state transitions onto the task row so the
// API can report "stuck at 62% - clip extraction" without talking to the
// worker.
type dbStageStore struct {
	db *database.DB
}

func (s *dbStageStore) SaveState(ctx context.Context, taskID string, state pipeline.State, progress float64, message string) error {
	query := `
		UPDATE tasks
		SET pipeline_state = $1, progress = $2, state_message = $3, updated_at = $4
		WHERE id = $5
	`
	result, err := s.db.ExecContext(ctx, query, string(state), progress, message, time.Now(), taskID)
	if err != nil {
		return fmt.Errorf("failed to save pipeline state: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return fmt.Errorf("task %s not found", taskID)
	}
	return nil
}
