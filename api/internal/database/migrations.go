package database

import (
	"database/sql"
	"fmt"
)

// Migrate runs database migrations.
func Migrate(db *sql.DB) error {
	migrations := []string{
		createExtensions,
		createTasksTable,
		alterTasksTableAddNarrationOverrides,
		createTaskStepsTable,
		createSegmentsTable,
		createSettingsTable,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

const createExtensions = `
CREATE EXTENSION IF NOT EXISTS pgcrypto;
`

const createTasksTable = `
CREATE TABLE IF NOT EXISTS tasks (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    status VARCHAR(20) NOT NULL DEFAULT 'CREATED',
    progress DOUBLE PRECISION NOT NULL DEFAULT 0,
    pipeline_state VARCHAR(20) NOT NULL DEFAULT 'INIT',
    state_message TEXT,
    error TEXT,
    script_key VARCHAR(255) NOT NULL,
    source_video_key VARCHAR(255) NOT NULL,
    bgm_key VARCHAR(255),
    result_video_key VARCHAR(255),
    result_subtitle_key VARCHAR(255),
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at);
`

const alterTasksTableAddNarrationOverrides = `
ALTER TABLE tasks
    ADD COLUMN IF NOT EXISTS voice VARCHAR(64),
    ADD COLUMN IF NOT EXISTS rate VARCHAR(16),
    ADD COLUMN IF NOT EXISTS pitch VARCHAR(16),
    ADD COLUMN IF NOT EXISTS best_effort BOOLEAN NOT NULL DEFAULT FALSE;
`

const createTaskStepsTable = `
CREATE TABLE IF NOT EXISTS task_steps (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    task_id UUID NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
    step VARCHAR(50) NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    attempt INTEGER NOT NULL DEFAULT 0,
    started_at TIMESTAMP,
    ended_at TIMESTAMP,
    error TEXT,
    metrics_json JSONB,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(task_id, step, attempt)
);

CREATE INDEX IF NOT EXISTS idx_task_steps_task_id ON task_steps(task_id);
CREATE INDEX IF NOT EXISTS idx_task_steps_status ON task_steps(status);
CREATE INDEX IF NOT EXISTS idx_task_steps_step ON task_steps(step);
`

const createSegmentsTable = `
CREATE TABLE IF NOT EXISTS segments (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    task_id UUID NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
    idx INTEGER NOT NULL,
    start_ms BIGINT NOT NULL,
    end_ms BIGINT NOT NULL,
    picture TEXT NOT NULL DEFAULT '',
    narration TEXT NOT NULL DEFAULT '',
    audio_mode SMALLINT NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(task_id, idx)
);

CREATE INDEX IF NOT EXISTS idx_segments_task_id ON segments(task_id);
CREATE INDEX IF NOT EXISTS idx_segments_task_id_idx ON segments(task_id, idx);
`

const createSettingsTable = `
CREATE TABLE IF NOT EXISTS settings (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    category VARCHAR(50) NOT NULL,
    key VARCHAR(100) NOT NULL,
    value TEXT NOT NULL,
    is_encrypted BOOLEAN NOT NULL DEFAULT FALSE,
    description TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(category, key)
);
`
