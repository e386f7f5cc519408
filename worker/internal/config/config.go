package config

import (
	"fmt"
	"time"

	sharedconfig "commentary/shared/config"
)

// Aliases for shared configuration structures to keep existing references intact.
type DatabaseConfig = sharedconfig.DatabaseConfig
type MinIOConfig = sharedconfig.MinIOConfig
type RabbitMQConfig = sharedconfig.RabbitMQConfig
type TTSConfig = sharedconfig.TTSConfig

// Config holds all configuration for the worker.
type Config struct {
	sharedconfig.BaseConfig
	FFmpeg     FFmpegConfig
	Render     RenderConfig
	Subtitle   SubtitleConfig
	Processing ProcessingConfig
	Timeouts   StepTimeouts
}

// FFmpegConfig locates the transcoding binaries. Empty paths resolve from
// PATH at startup.
type FFmpegConfig struct {
	Path      string
	ProbePath string
}

// RenderConfig holds the output format and audio mix settings.
type RenderConfig struct {
	Width           int
	Height          int
	FPS             int
	SafetyMargin    time.Duration
	OriginalVolume  float64
	NarrationVolume float64
	BGMVolume       float64
	BestEffort      bool
	// WorkDir is the root under which each task gets its own directory.
	WorkDir string
}

// SubtitleConfig controls burned-in subtitle styling.
type SubtitleConfig struct {
	Enabled     bool
	FontFile    string
	FontName    string
	FontSize    float64
	FillColor   string
	StrokeColor string
	StrokeWidth float64
	Position    string // top, center, bottom, or a percentage like "70%"
}

// ProcessingConfig tunes concurrency and retries for per-segment work.
type ProcessingConfig struct {
	Concurrency int
	MaxRetries  int
	RetryDelay  time.Duration
}

// StepTimeouts bounds each queue step end to end.
type StepTimeouts struct {
	Render  time.Duration
	Cleanup time.Duration
}

// Load reads worker configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}

	loader := sharedconfig.NewLoader(
		sharedconfig.WithDefaults(map[string]interface{}{
			"FFMPEG_PATH":        "",
			"FFPROBE_PATH":       "",
			"RENDER_WIDTH":       1920,
			"RENDER_HEIGHT":      1080,
			"RENDER_FPS":         30,
			"SAFETY_MARGIN_SEC":  1.0,
			"VOLUME_ORIGINAL":    0.7,
			"VOLUME_NARRATION":   1.0,
			"VOLUME_BGM":         0.3,
			"RENDER_BEST_EFFORT": false,
			"WORK_DIR":           "/tmp/commentary",

			"SUBTITLE_ENABLED":      true,
			"SUBTITLE_FONT_FILE":    "",
			"SUBTITLE_FONT_NAME":    "Arial",
			"SUBTITLE_FONT_SIZE":    48.0,
			"SUBTITLE_FILL_COLOR":   "#FFFFFF",
			"SUBTITLE_STROKE_COLOR": "#000000",
			"SUBTITLE_STROKE_WIDTH": 1.5,
			"SUBTITLE_POSITION":     "bottom",

			"PROCESSING_CONCURRENCY": 2,
			"PROCESSING_MAX_RETRIES": 3,
			"PROCESSING_RETRY_DELAY": "1s",

			"TIMEOUT_RENDER":  "45m",
			"TIMEOUT_CLEANUP": "5m",
		}),
		sharedconfig.WithMinIOPublicFallback(),
	)

	v := loader.Viper()
	base, err := loader.Load()
	if err != nil {
		return nil, err
	}
	cfg.BaseConfig = *base

	cfg.FFmpeg = FFmpegConfig{
		Path:      v.GetString("FFMPEG_PATH"),
		ProbePath: v.GetString("FFPROBE_PATH"),
	}
	cfg.Render = RenderConfig{
		Width:           v.GetInt("RENDER_WIDTH"),
		Height:          v.GetInt("RENDER_HEIGHT"),
		FPS:             v.GetInt("RENDER_FPS"),
		SafetyMargin:    time.Duration(v.GetFloat64("SAFETY_MARGIN_SEC") * float64(time.Second)),
		OriginalVolume:  v.GetFloat64("VOLUME_ORIGINAL"),
		NarrationVolume: v.GetFloat64("VOLUME_NARRATION"),
		BGMVolume:       v.GetFloat64("VOLUME_BGM"),
		BestEffort:      v.GetBool("RENDER_BEST_EFFORT"),
		WorkDir:         v.GetString("WORK_DIR"),
	}
	cfg.Subtitle = SubtitleConfig{
		Enabled:     v.GetBool("SUBTITLE_ENABLED"),
		FontFile:    v.GetString("SUBTITLE_FONT_FILE"),
		FontName:    v.GetString("SUBTITLE_FONT_NAME"),
		FontSize:    v.GetFloat64("SUBTITLE_FONT_SIZE"),
		FillColor:   v.GetString("SUBTITLE_FILL_COLOR"),
		StrokeColor: v.GetString("SUBTITLE_STROKE_COLOR"),
		StrokeWidth: v.GetFloat64("SUBTITLE_STROKE_WIDTH"),
		Position:    v.GetString("SUBTITLE_POSITION"),
	}
	cfg.Processing = ProcessingConfig{
		Concurrency: v.GetInt("PROCESSING_CONCURRENCY"),
		MaxRetries:  v.GetInt("PROCESSING_MAX_RETRIES"),
		RetryDelay:  v.GetDuration("PROCESSING_RETRY_DELAY"),
	}
	cfg.Timeouts = StepTimeouts{
		Render:  v.GetDuration("TIMEOUT_RENDER"),
		Cleanup: v.GetDuration("TIMEOUT_CLEANUP"),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Render.Width <= 0 || cfg.Render.Height <= 0 {
		return fmt.Errorf("invalid render resolution %dx%d", cfg.Render.Width, cfg.Render.Height)
	}
	if cfg.Render.FPS <= 0 {
		return fmt.Errorf("invalid render fps %d", cfg.Render.FPS)
	}
	if cfg.Render.WorkDir == "" {
		return fmt.Errorf("WORK_DIR must be set")
	}
	if cfg.Processing.Concurrency <= 0 {
		return fmt.Errorf("PROCESSING_CONCURRENCY must be positive")
	}
	return nil
}
