package models

import (
	"encoding/json"
	"fmt"
)

// TaskMessage represents a task message from RabbitMQ.
type TaskMessage struct {
	TaskID    string                 `json:"task_id"`
	Step      string                 `json:"step"`
	Attempt   int                    `json:"attempt"`
	TraceID   string                 `json:"trace_id"`
	CreatedAt string                 `json:"created_at"`
	Payload   map[string]interface{} `json:"payload"`
}

// DecodePayload unmarshals the loosely-typed payload map into a typed
// payload struct.
func (m TaskMessage) DecodePayload(out interface{}) error {
	raw, err := json.Marshal(m.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}

// RenderPayload represents the payload for the render step. Keys reference
// objects in the shared bucket.
type RenderPayload struct {
	ScriptKey      string `json:"script_key"`
	SourceVideoKey string `json:"source_video_key"`
	BGMKey         string `json:"bgm_key,omitempty"`
	OutputVideoKey string `json:"output_video_key"`
	Voice          string `json:"voice,omitempty"`
	Rate           string `json:"rate,omitempty"`
	Pitch          string `json:"pitch,omitempty"`
	BestEffort     bool   `json:"best_effort,omitempty"`
}

// CleanupPayload represents the payload for the cleanup step.
type CleanupPayload struct {
	// Prefix is the bucket prefix whose objects are removed.
	Prefix string `json:"prefix"`
}
