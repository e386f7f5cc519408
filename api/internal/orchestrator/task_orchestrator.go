package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"commentary/api/internal/models"
	"commentary/api/internal/queue"
)

// ErrNotCancellable is returned when a cancel request hits a task that
// already reached a terminal state.
var ErrNotCancellable = errors.New("task is not cancellable")

// DefaultTaskOrchestrator implements task state transitions and initial message dispatch.
// It owns the task state machine entrypoint so the API layer can remain focused on validation
// and persistence.
type DefaultTaskOrchestrator struct {
	publisher QueuePublisher
	repo      TaskRepository
}

// NewTaskOrchestrator builds a DefaultTaskOrchestrator.
func NewTaskOrchestrator(publisher QueuePublisher, repo TaskRepository) *DefaultTaskOrchestrator {
	return &DefaultTaskOrchestrator{
		publisher: publisher,
		repo:      repo,
	}
}

// StartTask initializes the task state machine by publishing the render step and updating the status.
func (o *DefaultTaskOrchestrator) StartTask(ctx context.Context, task *models.Task) error {
	now := time.Now()
	payload := map[string]interface{}{
		"script_key":       task.ScriptKey,
		"source_video_key": task.SourceVideoKey,
		"output_video_key": ResultVideoKey(task.ID),
	}
	if task.BGMKey != nil {
		payload["bgm_key"] = *task.BGMKey
	}
	if task.Voice != nil {
		payload["voice"] = *task.Voice
	}
	if task.Rate != nil {
		payload["rate"] = *task.Rate
	}
	if task.Pitch != nil {
		payload["pitch"] = *task.Pitch
	}
	if task.BestEffort {
		payload["best_effort"] = true
	}

	renderMsg := map[string]interface{}{
		"task_id":    task.ID.String(),
		"step":       "render",
		"attempt":    1,
		"trace_id":   uuid.New().String(),
		"created_at": now.Format(time.RFC3339),
		"payload":    payload,
	}

	if err := o.publisher.Publish(ctx, queue.RouteRender, renderMsg); err != nil {
		return fmt.Errorf("publish initial step: %w", err)
	}

	if err := o.repo.UpdateStatus(ctx, task.ID, models.TaskStatusQueued, now); err != nil {
		return fmt.Errorf("update task status: %w", err)
	}

	task.Status = models.TaskStatusQueued
	task.UpdatedAt = now
	return nil
}

// CancelTask marks a non-terminal task as cancelled. The worker checks the
// status before starting the pipeline, so queued tasks never render.
func (o *DefaultTaskOrchestrator) CancelTask(ctx context.Context, taskID uuid.UUID) error {
	cancelled, err := o.repo.CancelIfActive(ctx, taskID, time.Now())
	if err != nil {
		return fmt.Errorf("cancel task: %w", err)
	}
	if !cancelled {
		return ErrNotCancellable
	}
	return nil
}

// CleanupTask dispatches a cleanup step that removes all stored objects
// under the task prefix.
func (o *DefaultTaskOrchestrator) CleanupTask(ctx context.Context, taskID uuid.UUID) error {
	cleanupMsg := map[string]interface{}{
		"task_id":    taskID.String(),
		"step":       "cleanup",
		"attempt":    1,
		"trace_id":   uuid.New().String(),
		"created_at": time.Now().Format(time.RFC3339),
		"payload": map[string]interface{}{
			"prefix": TaskPrefix(taskID),
		},
	}
	if err := o.publisher.Publish(ctx, queue.RouteCleanup, cleanupMsg); err != nil {
		return fmt.Errorf("publish cleanup step: %w", err)
	}
	return nil
}

// TaskPrefix is the object storage prefix under which all task artifacts live.
func TaskPrefix(taskID uuid.UUID) string {
	return fmt.Sprintf("tasks/%s/", taskID)
}

// ResultVideoKey is the object key of the final rendered video.
func ResultVideoKey(taskID uuid.UUID) string {
	return fmt.Sprintf("tasks/%s/combined.mp4", taskID)
}
