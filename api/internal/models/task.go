package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle status of a render task.
type TaskStatus string

const (
	TaskStatusCreated   TaskStatus = "CREATED"
	TaskStatusQueued    TaskStatus = "QUEUED"
	TaskStatusRendering TaskStatus = "RENDERING"
	TaskStatusFailed    TaskStatus = "FAILED"
	TaskStatusComplete  TaskStatus = "COMPLETE"
	TaskStatusCancelled TaskStatus = "CANCELLED"
)

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusFailed || s == TaskStatusComplete || s == TaskStatusCancelled
}

// Task represents a commentary render task.
type Task struct {
	ID             uuid.UUID  `json:"task_id" db:"id"`
	Status         TaskStatus `json:"status" db:"status"`
	Progress       float64    `json:"progress" db:"progress"`
	PipelineState  string     `json:"pipeline_state" db:"pipeline_state"`
	StateMessage   *string    `json:"state_message,omitempty" db:"state_message"`
	Error          *string    `json:"error,omitempty" db:"error"`
	ScriptKey      string     `json:"-" db:"script_key"`
	SourceVideoKey string     `json:"-" db:"source_video_key"`
	BGMKey         *string    `json:"-" db:"bgm_key"`
	// Per-task narration overrides (fall back to worker defaults when unset)
	Voice             *string   `json:"-" db:"voice"`
	Rate              *string   `json:"-" db:"rate"`
	Pitch             *string   `json:"-" db:"pitch"`
	BestEffort        bool      `json:"-" db:"best_effort"`
	ResultVideoKey    *string   `json:"-" db:"result_video_key"`
	ResultSubtitleKey *string   `json:"-" db:"result_subtitle_key"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// TaskStepStatus represents the status of a task step.
type TaskStepStatus string

const (
	TaskStepStatusPending   TaskStepStatus = "pending"
	TaskStepStatusRunning   TaskStepStatus = "running"
	TaskStepStatusSucceeded TaskStepStatus = "succeeded"
	TaskStepStatusFailed    TaskStepStatus = "failed"
)

// TaskStep represents one worker step execution for a task.
type TaskStep struct {
	ID          uuid.UUID      `json:"id" db:"id"`
	TaskID      uuid.UUID      `json:"task_id" db:"task_id"`
	Step        string         `json:"step" db:"step"`
	Status      TaskStepStatus `json:"status" db:"status"`
	Attempt     int            `json:"attempt" db:"attempt"`
	StartedAt   *time.Time     `json:"started_at,omitempty" db:"started_at"`
	EndedAt     *time.Time     `json:"ended_at,omitempty" db:"ended_at"`
	Error       *string        `json:"error,omitempty" db:"error"`
	MetricsJSON *string        `json:"metrics_json,omitempty" db:"metrics_json"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// Segment represents one normalized script segment as persisted by the
// worker after script validation.
type Segment struct {
	ID        uuid.UUID `json:"id" db:"id"`
	TaskID    uuid.UUID `json:"task_id" db:"task_id"`
	Idx       int       `json:"idx" db:"idx"`
	StartMs   int64     `json:"start_ms" db:"start_ms"`
	EndMs     int64     `json:"end_ms" db:"end_ms"`
	Picture   string    `json:"picture" db:"picture"`
	Narration string    `json:"narration" db:"narration"`
	AudioMode int       `json:"audio_mode" db:"audio_mode"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
