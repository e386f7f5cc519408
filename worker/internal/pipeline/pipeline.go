package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"commentary/shared/script"
	"commentary/worker/internal/ffmpeg"
	"commentary/worker/internal/subtitle"
	"commentary/worker/internal/tts"

	"go.uber.org/zap"
)

// Media is the transcoder surface the pipeline consumes. *ffmpeg.Executor
// implements it; tests substitute a fake.
type Media interface {
	Probe(ctx context.Context, path string) (*ffmpeg.MediaInfo, error)
	SelectVideoEncoder(ctx context.Context, preference []string) string
	ExtractClip(ctx context.Context, opts ffmpeg.ClipOptions) error
	NormalizeClip(ctx context.Context, opts ffmpeg.NormalizeOptions) error
	Concat(ctx context.Context, inputs []string, output string) error
	MergeAudioTimeline(ctx context.Context, opts ffmpeg.MergeAudioOptions) error
	Mux(ctx context.Context, opts ffmpeg.MuxOptions) error
}

// Config carries all render knobs, passed in at construction. Components
// never reach into ambient settings.
type Config struct {
	Width  int
	Height int
	FPS    int

	// SafetyMargin extends each extraction window so dialogue is not cut
	// mid-word at the segment boundary.
	SafetyMargin time.Duration

	OriginalVolume  float64
	NarrationVolume float64
	BGMVolume       float64

	Voice string
	Rate  string
	Pitch string

	// Concurrency bounds parallel per-segment synthesis and extraction.
	Concurrency int
	MaxRetries  int
	RetryDelay  time.Duration

	// BestEffort downgrades per-segment extraction failures to gaps
	// instead of aborting the run.
	BestEffort bool

	SubtitleEnabled bool
	SubtitleStyle   subtitle.Style

	// SecondsPerChar estimates narration length when neither the service
	// nor a probe yields a duration.
	SecondsPerChar float64
}

// DefaultConfig returns the render defaults for a 1080p landscape output.
func DefaultConfig() Config {
	return Config{
		Width:           1920,
		Height:          1080,
		FPS:             30,
		SafetyMargin:    time.Second,
		OriginalVolume:  0.7,
		NarrationVolume: 1.0,
		BGMVolume:       0.3,
		Voice:           "zh-CN-YunjianNeural",
		Concurrency:     2,
		MaxRetries:      3,
		RetryDelay:      time.Second,
		SubtitleEnabled: true,
		SubtitleStyle:   subtitle.DefaultStyle(),
		SecondsPerChar:  0.2,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Width <= 0 {
		c.Width = def.Width
	}
	if c.Height <= 0 {
		c.Height = def.Height
	}
	if c.FPS <= 0 {
		c.FPS = def.FPS
	}
	if c.SafetyMargin <= 0 {
		c.SafetyMargin = def.SafetyMargin
	}
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = def.RetryDelay
	}
	if c.SecondsPerChar <= 0 {
		c.SecondsPerChar = def.SecondsPerChar
	}
	if c.NarrationVolume <= 0 {
		c.NarrationVolume = def.NarrationVolume
	}
}

// Inputs identifies one render run.
type Inputs struct {
	TaskID      string
	Segments    []script.Segment
	SourceVideo string
	// BGM is an optional background music file, looped to length.
	BGM string
	// WorkDir is the task-scoped directory all artifacts land in.
	WorkDir string
}

// Result is the run outcome. Intermediate artifact paths are retained for
// debugging; nothing is deleted on failure.
type Result struct {
	State          State
	FailedStage    Stage
	Err            error
	FinalVideo     string
	ComposedVideo  string
	NarrationTrack string
	SubtitleTrack  string
	ClipPaths      map[int]string
	Progress       float64
}

// Driver sequences the render stages and owns the segment list and every
// mapping from segment id to intermediate artifact.
type Driver struct {
	cfg      Config
	synth    tts.Synthesizer
	media    Media
	store    StageStore
	logger   *zap.Logger
	progress ProgressFunc
}

// NewDriver wires a pipeline driver. synth may be nil when no segment
// needs narration. store and progress may be nil.
func NewDriver(cfg Config, synth tts.Synthesizer, media Media, store StageStore, progress ProgressFunc, logger *zap.Logger) *Driver {
	cfg.applyDefaults()
	if store == nil {
		store = NoopStore{}
	}
	if progress == nil {
		progress = func(float64, string) {}
	}
	return &Driver{
		cfg:      cfg,
		synth:    synth,
		media:    media,
		store:    store,
		logger:   logger,
		progress: progress,
	}
}

// Stage completion marks on the overall 0-100 scale. Each of the five
// coarse phases contributes an equal fifth.
const (
	progressScript   = 20
	progressTTS      = 35
	progressMerged   = 40
	progressClips    = 60
	progressComposed = 80
	progressMuxed    = 100
)

// Run executes the full pipeline for one task. The returned Result always
// carries a terminal state; the error return mirrors Result.Err for callers
// that only care whether the run succeeded.
func (d *Driver) Run(ctx context.Context, in Inputs) (*Result, error) {
	res := &Result{State: StateInit, ClipPaths: map[int]string{}}
	d.setState(ctx, in.TaskID, res, StateInit, 0, "pipeline starting")

	if err := d.checkResources(ctx, in); err != nil {
		return d.fail(ctx, in.TaskID, res, StageResources, err)
	}

	if len(in.Segments) == 0 {
		return d.fail(ctx, in.TaskID, res, StageScript, fmt.Errorf("no segments to render"))
	}
	d.setState(ctx, in.TaskID, res, StateScriptLoaded, progressScript,
		fmt.Sprintf("script loaded: %d segments", len(in.Segments)))

	if cancelled(ctx) {
		return d.cancel(ctx, in.TaskID, res)
	}

	narration, err := d.runTTS(ctx, in)
	if err != nil {
		return d.fail(ctx, in.TaskID, res, StageSynthesis, err)
	}
	d.setState(ctx, in.TaskID, res, StateTTSDone, progressTTS,
		fmt.Sprintf("narration synthesized: %d/%d segments", narration.succeeded(), narration.requested))

	if cancelled(ctx) {
		return d.cancel(ctx, in.TaskID, res)
	}

	timeline := buildTimeline(in.Segments, narration)
	if err := d.mergeAudio(ctx, in, timeline, res); err != nil {
		return d.fail(ctx, in.TaskID, res, StageAudioMerge, err)
	}
	d.setState(ctx, in.TaskID, res, StateAudioMerged, progressMerged, "narration track merged")

	if cancelled(ctx) {
		return d.cancel(ctx, in.TaskID, res)
	}

	if err := d.extractClips(ctx, in, timeline, res); err != nil {
		return d.fail(ctx, in.TaskID, res, StageExtraction, err)
	}
	d.setState(ctx, in.TaskID, res, StateClipsReady, progressClips,
		fmt.Sprintf("clips extracted: %d segments", len(res.ClipPaths)))

	if cancelled(ctx) {
		return d.cancel(ctx, in.TaskID, res)
	}

	// In best-effort mode extraction may have dropped segments. Everything
	// downstream of the gap would slide earlier in the composed video, so
	// the timeline is rebuilt over the survivors and the narration track
	// and subtitle cues are re-merged against the shortened canvas.
	if pruned, dropped := timeline.prune(res.ClipPaths); dropped {
		d.logger.Warn("rebuilding timeline around failed extractions",
			zap.String("task_id", in.TaskID),
			zap.Int("kept", len(pruned.Entries)),
			zap.Int("dropped", len(timeline.Entries)-len(pruned.Entries)))
		timeline = pruned
		res.NarrationTrack = ""
		res.SubtitleTrack = ""
		if err := d.mergeAudio(ctx, in, timeline, res); err != nil {
			return d.fail(ctx, in.TaskID, res, StageAudioMerge, err)
		}
	}

	if err := d.compose(ctx, in, timeline, res); err != nil {
		return d.fail(ctx, in.TaskID, res, StageComposition, err)
	}
	d.setState(ctx, in.TaskID, res, StateComposed, progressComposed, "clips composed")

	if cancelled(ctx) {
		return d.cancel(ctx, in.TaskID, res)
	}

	if err := d.mux(ctx, in, timeline, res); err != nil {
		return d.fail(ctx, in.TaskID, res, StageMux, err)
	}
	d.setState(ctx, in.TaskID, res, StateMuxed, progressMuxed, "final video muxed")

	d.setState(ctx, in.TaskID, res, StateComplete, progressMuxed, "pipeline complete")
	return res, nil
}

func (d *Driver) checkResources(ctx context.Context, in Inputs) error {
	if _, err := os.Stat(in.SourceVideo); err != nil {
		return &ResourceError{Resource: "source video", Err: err}
	}
	if _, err := d.media.Probe(ctx, in.SourceVideo); err != nil {
		return &ResourceError{Resource: "source video", Err: err}
	}
	if in.BGM != "" {
		if _, err := os.Stat(in.BGM); err != nil {
			return &ResourceError{Resource: "background music", Err: err}
		}
	}
	if err := os.MkdirAll(in.WorkDir, 0o755); err != nil {
		return &ResourceError{Resource: "work directory", Err: err}
	}
	return nil
}

func (d *Driver) setState(ctx context.Context, taskID string, res *Result, state State, percent float64, message string) {
	res.State = state
	res.Progress = percent
	d.progress(percent, message)
	if err := d.store.SaveState(ctx, taskID, state, percent, message); err != nil {
		d.logger.Warn("failed to persist pipeline state",
			zap.String("task_id", taskID),
			zap.String("state", string(state)),
			zap.Error(err))
	}
	d.logger.Info("pipeline state",
		zap.String("task_id", taskID),
		zap.String("state", string(state)),
		zap.Float64("progress", percent),
		zap.String("message", message))
}

// fail records the failing stage and freezes progress at its current value.
func (d *Driver) fail(ctx context.Context, taskID string, res *Result, stage Stage, err error) (*Result, error) {
	wrapped := &StageError{Stage: stage, Err: err}
	res.FailedStage = stage
	res.Err = wrapped
	res.State = StateFailed
	d.progress(res.Progress, wrapped.Error())
	if saveErr := d.store.SaveState(ctx, taskID, StateFailed, res.Progress, wrapped.Error()); saveErr != nil {
		d.logger.Warn("failed to persist failure state", zap.String("task_id", taskID), zap.Error(saveErr))
	}
	d.logger.Error("pipeline failed",
		zap.String("task_id", taskID),
		zap.String("stage", string(stage)),
		zap.Float64("progress", res.Progress),
		zap.Error(err))
	return res, wrapped
}

func (d *Driver) cancel(ctx context.Context, taskID string, res *Result) (*Result, error) {
	res.State = StateCancelled
	// persist with a fresh context since the run context is already done
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := d.store.SaveState(saveCtx, taskID, StateCancelled, res.Progress, "run cancelled"); err != nil {
		d.logger.Warn("failed to persist cancelled state", zap.String("task_id", taskID), zap.Error(err))
	}
	d.logger.Info("pipeline cancelled", zap.String("task_id", taskID), zap.Float64("progress", res.Progress))
	return res, context.Canceled
}

func cancelled(ctx context.Context) bool {
	return ctx.Err() != nil
}
