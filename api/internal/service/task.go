package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"time"

	"commentary/api/internal/database"
	"commentary/api/internal/models"
	"commentary/api/internal/orchestrator"
	"commentary/api/internal/storage"
	"commentary/shared/script"

	"github.com/google/uuid"
)

// Service-level errors surfaced to handlers.
var (
	ErrTaskNotFound       = errors.New("task not found")
	ErrTaskNotCompleted   = errors.New("task not completed")
	ErrTaskNotCancellable = errors.New("task not cancellable")
	ErrScriptInvalid      = errors.New("script invalid")
)

// TaskService handles task business logic.
type TaskService struct {
	db           *database.DB
	storage      storage.ObjectStorage
	orchestrator orchestrator.TaskOrchestrator
}

// CreateTaskOptions carries optional per-task narration overrides.
type CreateTaskOptions struct {
	Voice      string
	Rate       string
	Pitch      string
	BestEffort bool
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

// NewTaskService creates a new task service.
func NewTaskService(db *database.DB, store storage.ObjectStorage, orch orchestrator.TaskOrchestrator) *TaskService {
	return &TaskService{
		db:           db,
		storage:      store,
		orchestrator: orch,
	}
}

// CreateTask validates and stores the uploaded script, source video and
// optional background music, persists the task record and hands it to the
// orchestrator.
func (s *TaskService) CreateTask(ctx context.Context, scriptFile, videoFile, bgmFile *multipart.FileHeader, opts CreateTaskOptions) (*models.Task, error) {
	taskID := uuid.New()

	scriptData, err := readUpload(scriptFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read uploaded script: %w", err)
	}
	// Reject broken scripts up front; the worker re-validates before rendering.
	if _, err := script.Parse(scriptData); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScriptInvalid, err)
	}

	prefix := orchestrator.TaskPrefix(taskID)
	scriptKey := prefix + "script.json"
	if err := s.storage.PutObject(ctx, scriptKey,
		bytes.NewReader(scriptData), int64(len(scriptData)), "application/json"); err != nil {
		return nil, fmt.Errorf("failed to upload script: %w", err)
	}

	videoKey := prefix + "source" + safeExt(videoFile.Filename, ".mp4")
	if err := s.uploadMultipart(ctx, videoKey, videoFile, "video/mp4"); err != nil {
		return nil, fmt.Errorf("failed to upload video: %w", err)
	}

	var bgmKey sql.NullString
	if bgmFile != nil {
		bgmKey = toNullString(prefix + "bgm" + safeExt(bgmFile.Filename, ".mp3"))
		if err := s.uploadMultipart(ctx, bgmKey.String, bgmFile, "audio/mpeg"); err != nil {
			return nil, fmt.Errorf("failed to upload background music: %w", err)
		}
	}

	now := time.Now()
	task := &models.Task{
		ID:             taskID,
		Status:         models.TaskStatusCreated,
		Progress:       0,
		PipelineState:  "INIT",
		ScriptKey:      scriptKey,
		SourceVideoKey: videoKey,
		BestEffort:     opts.BestEffort,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if bgmKey.Valid {
		task.BGMKey = &bgmKey.String
	}
	if opts.Voice != "" {
		task.Voice = &opts.Voice
	}
	if opts.Rate != "" {
		task.Rate = &opts.Rate
	}
	if opts.Pitch != "" {
		task.Pitch = &opts.Pitch
	}

	query := `
		INSERT INTO tasks (
			id, status, progress, pipeline_state,
			script_key, source_video_key, bgm_key,
			voice, rate, pitch, best_effort,
			created_at, updated_at
		)
		VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10, $11,
			$12, $13
		)
	`
	if _, err := s.db.ExecContext(ctx, query,
		task.ID, task.Status, task.Progress, task.PipelineState,
		task.ScriptKey, task.SourceVideoKey, bgmKey,
		toNullString(opts.Voice), toNullString(opts.Rate), toNullString(opts.Pitch), task.BestEffort,
		task.CreatedAt, task.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	if err := s.orchestrator.StartTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to start task: %w", err)
	}

	return task, nil
}

// GetTaskWithSteps retrieves a task with its steps.
func (s *TaskService) GetTaskWithSteps(ctx context.Context, taskID uuid.UUID) (*models.Task, []models.TaskStep, error) {
	var task models.Task
	query := `
		SELECT id, status, progress, pipeline_state, state_message, error,
		       script_key, source_video_key, bgm_key,
		       voice, rate, pitch, best_effort,
		       result_video_key, result_subtitle_key, created_at, updated_at
		FROM tasks WHERE id = $1
	`
	err := s.db.QueryRowContext(ctx, query, taskID).Scan(
		&task.ID, &task.Status, &task.Progress, &task.PipelineState, &task.StateMessage, &task.Error,
		&task.ScriptKey, &task.SourceVideoKey, &task.BGMKey,
		&task.Voice, &task.Rate, &task.Pitch, &task.BestEffort,
		&task.ResultVideoKey, &task.ResultSubtitleKey, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, ErrTaskNotFound
		}
		return nil, nil, fmt.Errorf("failed to get task: %w", err)
	}

	stepsQuery := `
		SELECT id, task_id, step, status, attempt, started_at, ended_at, error, metrics_json, created_at, updated_at
		FROM task_steps WHERE task_id = $1 ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, stepsQuery, taskID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get task steps: %w", err)
	}
	defer rows.Close()

	var steps []models.TaskStep
	for rows.Next() {
		var step models.TaskStep
		if err := rows.Scan(
			&step.ID, &step.TaskID, &step.Step, &step.Status, &step.Attempt,
			&step.StartedAt, &step.EndedAt, &step.Error, &step.MetricsJSON,
			&step.CreatedAt, &step.UpdatedAt,
		); err != nil {
			return nil, nil, fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, step)
	}

	return &task, steps, nil
}

// GetTaskResult retrieves the result of a completed task, including the
// normalized segments the worker persisted.
func (s *TaskService) GetTaskResult(ctx context.Context, taskID uuid.UUID) (map[string]interface{}, error) {
	task, _, err := s.GetTaskWithSteps(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if task.Status != models.TaskStatusComplete {
		return nil, ErrTaskNotCompleted
	}

	segmentsQuery := `
		SELECT id, task_id, idx, start_ms, end_ms, picture, narration, audio_mode, created_at
		FROM segments WHERE task_id = $1 ORDER BY idx
	`
	rows, err := s.db.QueryContext(ctx, segmentsQuery, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get segments: %w", err)
	}
	defer rows.Close()

	var segments []map[string]interface{}
	for rows.Next() {
		var seg models.Segment
		if err := rows.Scan(
			&seg.ID, &seg.TaskID, &seg.Idx, &seg.StartMs, &seg.EndMs,
			&seg.Picture, &seg.Narration, &seg.AudioMode, &seg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		segments = append(segments, map[string]interface{}{
			"idx":        seg.Idx,
			"start_ms":   seg.StartMs,
			"end_ms":     seg.EndMs,
			"picture":    seg.Picture,
			"narration":  seg.Narration,
			"audio_mode": seg.AudioMode,
		})
	}

	result := map[string]interface{}{
		"task_id":        task.ID.String(),
		"status":         string(task.Status),
		"pipeline_state": task.PipelineState,
		"segments":       segments,
		"created_at":     task.CreatedAt.Format(time.RFC3339),
	}

	if task.ResultVideoKey != nil {
		url, err := s.storage.PresignedGetURL(ctx, *task.ResultVideoKey, time.Hour)
		if err != nil {
			return nil, fmt.Errorf("failed to generate video URL: %w", err)
		}
		result["video_url"] = url
	}
	if task.ResultSubtitleKey != nil {
		url, err := s.storage.PresignedGetURL(ctx, *task.ResultSubtitleKey, time.Hour)
		if err != nil {
			return nil, fmt.Errorf("failed to generate subtitle URL: %w", err)
		}
		result["subtitle_url"] = url
	}

	return result, nil
}

// GetDownloadURL generates a presigned download URL.
func (s *TaskService) GetDownloadURL(ctx context.Context, taskID uuid.UUID, downloadType string) (string, error) {
	task, _, err := s.GetTaskWithSteps(ctx, taskID)
	if err != nil {
		return "", err
	}

	var key string
	switch downloadType {
	case "video":
		if task.ResultVideoKey == nil {
			return "", ErrTaskNotCompleted
		}
		key = *task.ResultVideoKey
	case "subtitle":
		if task.ResultSubtitleKey == nil {
			return "", ErrTaskNotCompleted
		}
		key = *task.ResultSubtitleKey
	case "script":
		key = task.ScriptKey
	default:
		return "", fmt.Errorf("invalid download type: %s", downloadType)
	}

	url, err := s.storage.PresignedGetURL(ctx, key, time.Hour)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return url, nil
}

// CancelTask marks a non-terminal task as cancelled.
func (s *TaskService) CancelTask(ctx context.Context, taskID uuid.UUID) error {
	if _, _, err := s.GetTaskWithSteps(ctx, taskID); err != nil {
		return err
	}
	if err := s.orchestrator.CancelTask(ctx, taskID); err != nil {
		if errors.Is(err, orchestrator.ErrNotCancellable) {
			return ErrTaskNotCancellable
		}
		return err
	}
	return nil
}

// ListTasks lists tasks with pagination.
func (s *TaskService) ListTasks(ctx context.Context, status string, page, pageSize int) ([]models.Task, int, error) {
	offset := (page - 1) * pageSize

	var query string
	var countQuery string
	var args []interface{}

	if status != "" {
		query = `SELECT id, status, progress, pipeline_state, error, result_video_key, created_at, updated_at
		         FROM tasks WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		countQuery = `SELECT COUNT(*) FROM tasks WHERE status = $1`
		args = []interface{}{status, pageSize, offset}
	} else {
		query = `SELECT id, status, progress, pipeline_state, error, result_video_key, created_at, updated_at
		         FROM tasks ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		countQuery = `SELECT COUNT(*) FROM tasks`
		args = []interface{}{pageSize, offset}
	}

	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, args[:len(args)-2]...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count tasks: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		var task models.Task
		if err := rows.Scan(
			&task.ID, &task.Status, &task.Progress, &task.PipelineState, &task.Error,
			&task.ResultVideoKey, &task.CreatedAt, &task.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	return tasks, total, nil
}

// DeleteTask deletes a task and dispatches cleanup of its stored artifacts.
func (s *TaskService) DeleteTask(ctx context.Context, taskID uuid.UUID) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM tasks WHERE id = $1)", taskID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check task existence: %w", err)
	}
	if !exists {
		return ErrTaskNotFound
	}

	// Queue object cleanup before dropping the row; losing the row first
	// would orphan the stored artifacts.
	if err := s.orchestrator.CleanupTask(ctx, taskID); err != nil {
		return fmt.Errorf("failed to dispatch cleanup: %w", err)
	}

	// Cascade removes steps and segments.
	if _, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = $1", taskID); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	return nil
}

func (s *TaskService) uploadMultipart(ctx context.Context, key string, file *multipart.FileHeader, fallbackType string) error {
	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = fallbackType
	}
	return s.storage.PutObject(ctx, key, src, file.Size, contentType)
}

func readUpload(file *multipart.FileHeader) ([]byte, error) {
	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return io.ReadAll(src)
}

// safeExt keeps the uploaded extension when present, otherwise falls back.
func safeExt(filename, fallback string) string {
	if ext := filepath.Ext(filename); ext != "" {
		return ext
	}
	return fallback
}
