package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"commentary/worker/internal/config"
	"commentary/worker/internal/models"
	"commentary/worker/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CleanupProcessor removes a task's staged objects and local work
// directory after the task is deleted or its artifacts expire.
type CleanupProcessor struct {
	storage storage.ObjectStorage
	config  *config.Config
	logger  *zap.Logger
}

// NewCleanupProcessor creates the cleanup step processor.
func NewCleanupProcessor(store storage.ObjectStorage, cfg *config.Config, logger *zap.Logger) *CleanupProcessor {
	return &CleanupProcessor{storage: store, config: cfg, logger: logger}
}

func (p *CleanupProcessor) Name() string { return StepCleanup }

func (p *CleanupProcessor) Process(ctx context.Context, taskID uuid.UUID, msg models.TaskMessage) error {
	var payload models.CleanupPayload
	if err := msg.DecodePayload(&payload); err != nil {
		return err
	}
	if payload.Prefix == "" {
		return fmt.Errorf("cleanup payload missing prefix")
	}

	if err := p.storage.DeletePrefix(ctx, payload.Prefix); err != nil {
		return fmt.Errorf("failed to delete objects under %s: %w", payload.Prefix, err)
	}

	workDir := filepath.Join(p.config.Render.WorkDir, taskID.String())
	if err := os.RemoveAll(workDir); err != nil {
		p.logger.Warn("failed to remove local work directory",
			zap.String("task_id", taskID.String()),
			zap.String("dir", workDir),
			zap.Error(err))
	}

	p.logger.Info("task artifacts cleaned up",
		zap.String("task_id", taskID.String()),
		zap.String("prefix", payload.Prefix))
	return nil
}
