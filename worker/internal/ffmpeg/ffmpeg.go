package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Runner executes external transcoder commands. It exists so tests can
// observe and stub subprocess invocations.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %w: %s", name, err, tail(string(out), 500))
	}
	return nil
}

func (execRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", name, err)
	}
	return out, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

// Config locates the external transcoding binaries.
type Config struct {
	FFmpegPath  string
	FFprobePath string
}

// Executor wraps all ffmpeg/ffprobe operations used by the pipeline.
type Executor struct {
	ffmpegPath  string
	ffprobePath string
	logger      *zap.Logger
	runner      Runner

	encodersOnce sync.Once
	encoders     map[string]bool
	encodersErr  error
}

// New creates an executor, resolving the binaries from PATH when not
// configured. A missing transcoder is reported here so the caller can fail
// before any pipeline work starts.
func New(cfg Config, logger *zap.Logger) (*Executor, error) {
	ffmpegPath := cfg.FFmpegPath
	if ffmpegPath == "" {
		resolved, err := exec.LookPath("ffmpeg")
		if err != nil {
			return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
		}
		ffmpegPath = resolved
	}

	ffprobePath := cfg.FFprobePath
	if ffprobePath == "" {
		resolved, err := exec.LookPath("ffprobe")
		if err != nil {
			return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
		}
		ffprobePath = resolved
	}

	return &Executor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		logger:      logger,
		runner:      execRunner{},
	}, nil
}

// NewWithRunner creates an executor with an injected runner, for tests.
func NewWithRunner(runner Runner, logger *zap.Logger) *Executor {
	return &Executor{
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
		logger:      logger,
		runner:      runner,
	}
}

func (e *Executor) run(ctx context.Context, args ...string) error {
	e.logger.Debug("running ffmpeg", zap.Strings("args", args))
	return e.runner.Run(ctx, e.ffmpegPath, args...)
}
