package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"commentary/shared/script"
	"commentary/worker/internal/config"
	"commentary/worker/internal/database"
	"commentary/worker/internal/models"
	"commentary/worker/internal/pipeline"
	"commentary/worker/internal/storage"
	"commentary/worker/internal/subtitle"
	"commentary/worker/internal/tts"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Step names double as queue routing-key suffixes.
const (
	StepRender  = "render"
	StepCleanup = "cleanup"
)

// RenderProcessor runs the full render pipeline for one task: it stages
// inputs from object storage, normalizes the script, drives the pipeline
// and uploads the deliverable.
type RenderProcessor struct {
	db      *database.DB
	storage storage.ObjectStorage
	config  *config.Config
	media   pipeline.Media
	synth   tts.Synthesizer
	logger  *zap.Logger
}

// NewRenderProcessor creates the render step processor.
func NewRenderProcessor(db *database.DB, store storage.ObjectStorage, cfg *config.Config, media pipeline.Media, synth tts.Synthesizer, logger *zap.Logger) *RenderProcessor {
	return &RenderProcessor{
		db:      db,
		storage: store,
		config:  cfg,
		media:   media,
		synth:   synth,
		logger:  logger,
	}
}

func (p *RenderProcessor) Name() string { return StepRender }

func (p *RenderProcessor) Process(ctx context.Context, taskID uuid.UUID, msg models.TaskMessage) error {
	var payload models.RenderPayload
	if err := msg.DecodePayload(&payload); err != nil {
		return err
	}
	if payload.ScriptKey == "" || payload.SourceVideoKey == "" || payload.OutputVideoKey == "" {
		return fmt.Errorf("render payload missing required keys")
	}

	cancelled, err := p.taskCancelled(ctx, taskID)
	if err != nil {
		p.logger.Warn("failed to check task status before render",
			zap.String("task_id", taskID.String()), zap.Error(err))
	} else if cancelled {
		p.logger.Info("skipping cancelled task", zap.String("task_id", taskID.String()))
		return nil
	}
	if err := p.markRendering(ctx, taskID); err != nil {
		p.logger.Warn("failed to mark task as rendering",
			zap.String("task_id", taskID.String()), zap.Error(err))
	}

	workDir := filepath.Join(p.config.Render.WorkDir, taskID.String())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("failed to create work directory: %w", err)
	}

	scriptPath := filepath.Join(workDir, "script.json")
	sourcePath := filepath.Join(workDir, "source.mp4")
	if err := p.storage.DownloadFile(ctx, payload.ScriptKey, scriptPath); err != nil {
		return fmt.Errorf("failed to download script: %w", err)
	}
	if err := p.storage.DownloadFile(ctx, payload.SourceVideoKey, sourcePath); err != nil {
		return fmt.Errorf("failed to download source video: %w", err)
	}

	bgmPath := ""
	if payload.BGMKey != "" {
		bgmPath = filepath.Join(workDir, "bgm"+filepath.Ext(payload.BGMKey))
		if err := p.storage.DownloadFile(ctx, payload.BGMKey, bgmPath); err != nil {
			return fmt.Errorf("failed to download background music: %w", err)
		}
	}

	segments, err := script.LoadFile(scriptPath)
	if err != nil {
		// validation errors are permanent, retrying cannot fix the script
		p.markValidationFailure(ctx, taskID, err)
		return err
	}

	if err := p.saveSegments(ctx, taskID, segments); err != nil {
		p.logger.Warn("failed to persist script segments",
			zap.String("task_id", taskID.String()), zap.Error(err))
	}

	driver := pipeline.NewDriver(
		p.pipelineConfig(payload),
		p.synth,
		p.media,
		&dbStageStore{db: p.db},
		nil,
		p.logger,
	)

	result, err := driver.Run(ctx, pipeline.Inputs{
		TaskID:      taskID.String(),
		Segments:    segments,
		SourceVideo: sourcePath,
		BGM:         bgmPath,
		WorkDir:     workDir,
	})
	if err != nil {
		return err
	}

	if err := p.storage.UploadFile(ctx, payload.OutputVideoKey, result.FinalVideo, "video/mp4"); err != nil {
		return fmt.Errorf("failed to upload final video: %w", err)
	}
	subtitleKey := ""
	if result.SubtitleTrack != "" {
		subtitleKey = strings.TrimSuffix(payload.OutputVideoKey, filepath.Ext(payload.OutputVideoKey)) + ".srt"
		if err := p.storage.UploadFile(ctx, subtitleKey, result.SubtitleTrack, "text/plain"); err != nil {
			p.logger.Warn("failed to upload merged subtitle",
				zap.String("task_id", taskID.String()), zap.Error(err))
			subtitleKey = ""
		}
	}

	return p.recordDeliverable(ctx, taskID, payload.OutputVideoKey, subtitleKey)
}

func (p *RenderProcessor) pipelineConfig(payload models.RenderPayload) pipeline.Config {
	cfg := pipeline.Config{
		Width:           p.config.Render.Width,
		Height:          p.config.Render.Height,
		FPS:             p.config.Render.FPS,
		SafetyMargin:    p.config.Render.SafetyMargin,
		OriginalVolume:  p.config.Render.OriginalVolume,
		NarrationVolume: p.config.Render.NarrationVolume,
		BGMVolume:       p.config.Render.BGMVolume,
		Voice:           p.config.TTS.Voice,
		Rate:            formatRelative(p.config.TTS.Rate, "%"),
		Pitch:           formatRelative(p.config.TTS.Pitch, "Hz"),
		Concurrency:     p.config.Processing.Concurrency,
		MaxRetries:      p.config.Processing.MaxRetries,
		RetryDelay:      p.config.Processing.RetryDelay,
		BestEffort:      p.config.Render.BestEffort || payload.BestEffort,
		SubtitleEnabled: p.config.Subtitle.Enabled,
		SubtitleStyle:   p.subtitleStyle(),
	}
	if payload.Voice != "" {
		cfg.Voice = payload.Voice
	}
	if payload.Rate != "" {
		cfg.Rate = payload.Rate
	}
	if payload.Pitch != "" {
		cfg.Pitch = payload.Pitch
	}
	return cfg
}

func (p *RenderProcessor) subtitleStyle() subtitle.Style {
	style := subtitle.DefaultStyle()
	sub := p.config.Subtitle
	if sub.FontFile != "" {
		style.FontFile = sub.FontFile
	}
	if sub.FontName != "" {
		style.FontName = sub.FontName
	}
	if sub.FontSize > 0 {
		style.FontSize = int(sub.FontSize)
	}
	if sub.FillColor != "" {
		style.FillColor = sub.FillColor
	}
	if sub.StrokeColor != "" {
		style.StrokeColor = sub.StrokeColor
	}
	if sub.StrokeWidth > 0 {
		style.StrokeWidth = sub.StrokeWidth
	}
	style.Anchor, style.PositionPct = parsePosition(sub.Position)
	return style
}

// parsePosition resolves a position setting: a named anchor or a
// percentage from the top like "70%".
func parsePosition(position string) (subtitle.VerticalAnchor, float64) {
	switch position {
	case "", "bottom":
		return subtitle.AnchorBottom, 0
	case "top":
		return subtitle.AnchorTop, 0
	case "center":
		return subtitle.AnchorCenter, 0
	}
	if pct, err := strconv.ParseFloat(strings.TrimSuffix(position, "%"), 64); err == nil && pct >= 0 && pct <= 100 {
		return subtitle.AnchorCustom, pct / 100
	}
	return subtitle.AnchorBottom, 0
}

// formatRelative turns a 1.0-centred multiplier into the relative
// adjustment syntax the TTS service expects ("+10%", "-2Hz").
func formatRelative(value float64, unit string) string {
	if value == 0 || value == 1.0 {
		return ""
	}
	delta := (value - 1.0) * 100
	return fmt.Sprintf("%+.0f%s", delta, unit)
}

func (p *RenderProcessor) saveSegments(ctx context.Context, taskID uuid.UUID, segments []script.Segment) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM segments WHERE task_id = $1`, taskID); err != nil {
		return err
	}
	query := `
		INSERT INTO segments (task_id, idx, start_ms, end_ms, picture, narration, audio_mode, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	now := time.Now()
	for _, seg := range segments {
		_, err := p.db.ExecContext(ctx, query,
			taskID, seg.ID, int64(seg.Start), int64(seg.End), seg.Picture, seg.Narration, int(seg.Mode), now,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// taskCancelled reports whether the task was cancelled while waiting in
// the queue. The pipeline never starts for such tasks.
func (p *RenderProcessor) taskCancelled(ctx context.Context, taskID uuid.UUID) (bool, error) {
	var status string
	err := p.db.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id = $1`, taskID).Scan(&status)
	if err != nil {
		return false, err
	}
	return status == "CANCELLED", nil
}

func (p *RenderProcessor) markRendering(ctx context.Context, taskID uuid.UUID) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE tasks SET status = $1, updated_at = $2 WHERE id = $3`,
		"RENDERING", time.Now(), taskID)
	return err
}

func (p *RenderProcessor) markValidationFailure(ctx context.Context, taskID uuid.UUID, cause error) {
	msg := cause.Error()
	query := `UPDATE tasks SET status = $1, error = $2, updated_at = $3 WHERE id = $4`
	if _, err := p.db.ExecContext(ctx, query, "FAILED", msg, time.Now(), taskID); err != nil {
		p.logger.Error("failed to record validation failure",
			zap.String("task_id", taskID.String()), zap.Error(err))
	}
}

func (p *RenderProcessor) recordDeliverable(ctx context.Context, taskID uuid.UUID, videoKey, subtitleKey string) error {
	query := `
		UPDATE tasks
		SET status = $1, progress = 100, result_video_key = $2, result_subtitle_key = $3, updated_at = $4
		WHERE id = $5
	`
	_, err := p.db.ExecContext(ctx, query, "COMPLETE", videoKey, nullable(subtitleKey), time.Now(), taskID)
	if err != nil {
		return fmt.Errorf("failed to record deliverable: %w", err)
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
