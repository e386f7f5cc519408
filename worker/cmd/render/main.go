package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"commentary/shared/script"
	"commentary/worker/internal/config"
	"commentary/worker/internal/ffmpeg"
	"commentary/worker/internal/pipeline"
	"commentary/worker/internal/tts"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Exit codes distinguish why a render did not produce a video.
const (
	exitOK         = 0
	exitValidation = 2
	exitStage      = 3
	exitResource   = 4
)

func main() {
	scriptPath := flag.String("script", "", "path to the script JSON file (required)")
	videoPath := flag.String("video", "", "path to the source video (required)")
	bgmPath := flag.String("bgm", "", "optional background music file")
	workDir := flag.String("workdir", "", "artifact directory (default: a task directory under WORK_DIR)")
	voice := flag.String("voice", "", "narration voice override")
	rate := flag.String("rate", "", "narration rate adjustment, e.g. +10%")
	pitch := flag.String("pitch", "", "narration pitch adjustment, e.g. -2Hz")
	bestEffort := flag.Bool("best-effort", false, "continue with gaps when a segment fails")
	noSubtitles := flag.Bool("no-subtitles", false, "skip subtitle generation and burn-in")
	flag.Parse()

	if *scriptPath == "" || *videoPath == "" {
		flag.Usage()
		os.Exit(exitValidation)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(exitResource)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", zap.Error(err))
		os.Exit(exitResource)
	}

	taskID := uuid.New().String()
	dir := *workDir
	if dir == "" {
		dir = fmt.Sprintf("%s/%s", cfg.Render.WorkDir, taskID)
	}

	segments, err := script.LoadFile(*scriptPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid script: %v\n", err)
		os.Exit(exitValidation)
	}

	media, err := ffmpeg.New(ffmpeg.Config{
		FFmpegPath:  cfg.FFmpeg.Path,
		FFprobePath: cfg.FFmpeg.ProbePath,
	}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(exitResource)
	}

	pipeCfg := pipeline.DefaultConfig()
	pipeCfg.Width = cfg.Render.Width
	pipeCfg.Height = cfg.Render.Height
	pipeCfg.FPS = cfg.Render.FPS
	pipeCfg.SafetyMargin = cfg.Render.SafetyMargin
	pipeCfg.OriginalVolume = cfg.Render.OriginalVolume
	pipeCfg.NarrationVolume = cfg.Render.NarrationVolume
	pipeCfg.BGMVolume = cfg.Render.BGMVolume
	pipeCfg.Concurrency = cfg.Processing.Concurrency
	pipeCfg.MaxRetries = cfg.Processing.MaxRetries
	pipeCfg.RetryDelay = cfg.Processing.RetryDelay
	pipeCfg.BestEffort = *bestEffort
	pipeCfg.SubtitleEnabled = cfg.Subtitle.Enabled && !*noSubtitles
	if cfg.Subtitle.FontFile != "" {
		pipeCfg.SubtitleStyle.FontFile = cfg.Subtitle.FontFile
	}
	if *voice != "" {
		pipeCfg.Voice = *voice
	} else if cfg.TTS.Voice != "" {
		pipeCfg.Voice = cfg.TTS.Voice
	}
	pipeCfg.Rate = *rate
	pipeCfg.Pitch = *pitch

	synth := tts.NewClient(cfg.TTS, logger)

	driver := pipeline.NewDriver(pipeCfg, synth, media, pipeline.NoopStore{}, func(percent float64, message string) {
		fmt.Printf("[%5.1f%%] %s\n", percent, message)
	}, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	result, err := driver.Run(ctx, pipeline.Inputs{
		TaskID:      taskID,
		Segments:    segments,
		SourceVideo: *videoPath,
		BGM:         *bgmPath,
		WorkDir:     dir,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "render failed: %v\n", err)
		var resourceErr *pipeline.ResourceError
		if errors.As(err, &resourceErr) {
			os.Exit(exitResource)
		}
		os.Exit(exitStage)
	}

	fmt.Printf("final video: %s\n", result.FinalVideo)
	if result.SubtitleTrack != "" {
		fmt.Printf("subtitles:   %s\n", result.SubtitleTrack)
	}
	os.Exit(exitOK)
}
