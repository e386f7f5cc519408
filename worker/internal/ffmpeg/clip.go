package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"
)

// ClipOptions describes a segment extraction from a longer source video.
type ClipOptions struct {
	Input    string
	Output   string
	Start    time.Duration
	Duration time.Duration
	// Encoder re-encodes the clip's video stream. Seeking with stream copy
	// lands on keyframes, so extraction always re-encodes for frame accuracy.
	Encoder string
}

// ExtractClip cuts a window out of the source video, re-encoding for
// frame-accurate boundaries. The output is validated and removed on failure
// so a truncated file is never mistaken for a finished clip.
func (e *Executor) ExtractClip(ctx context.Context, opts ClipOptions) error {
	encoder := opts.Encoder
	if encoder == "" {
		encoder = SoftwareEncoder
	}

	args := []string{
		"-y",
		"-ss", formatSeconds(opts.Start),
		"-i", opts.Input,
		"-t", formatSeconds(opts.Duration),
		"-c:v", encoder,
		"-c:a", "aac",
		"-ar", "44100",
		"-ac", "2",
		"-avoid_negative_ts", "make_zero",
		opts.Output,
	}
	if err := e.run(ctx, args...); err != nil {
		os.Remove(opts.Output)
		return fmt.Errorf("extract clip %s: %w", opts.Output, err)
	}

	if err := e.ValidateOutput(ctx, opts.Output); err != nil {
		os.Remove(opts.Output)
		return err
	}
	return nil
}

// NormalizeOptions describes the uniform format a clip is conformed to
// before concatenation: fixed resolution with letterbox padding, fixed
// frame rate and a uniform stereo audio track.
type NormalizeOptions struct {
	Input   string
	Output  string
	Width   int
	Height  int
	FPS     int
	Encoder string
	// Silence replaces the clip's audio with generated silence. It is also
	// required when the source clip carries no audio stream at all, so the
	// concatenated parts agree on stream layout.
	Silence bool
	// Duration trims the output when positive.
	Duration time.Duration
}

// NormalizeClip re-encodes a clip into the shared composition format.
func (e *Executor) NormalizeClip(ctx context.Context, opts NormalizeOptions) error {
	encoder := opts.Encoder
	if encoder == "" {
		encoder = SoftwareEncoder
	}

	scale := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1",
		opts.Width, opts.Height, opts.Width, opts.Height,
	)

	args := []string{"-y", "-i", opts.Input}
	if opts.Silence {
		args = append(args, "-f", "lavfi", "-i", "anullsrc=r=44100:cl=stereo")
	}
	args = append(args, "-vf", scale, "-r", strconv.Itoa(opts.FPS), "-c:v", encoder)
	if opts.Silence {
		args = append(args, "-map", "0:v", "-map", "1:a", "-shortest")
	}
	if opts.Duration > 0 {
		args = append(args, "-t", formatSeconds(opts.Duration))
	}
	args = append(args,
		"-c:a", "aac",
		"-ar", "44100",
		"-ac", "2",
		opts.Output,
	)

	if err := e.run(ctx, args...); err != nil {
		os.Remove(opts.Output)
		return fmt.Errorf("normalize clip %s: %w", opts.Output, err)
	}

	if err := e.ValidateOutput(ctx, opts.Output); err != nil {
		os.Remove(opts.Output)
		return err
	}
	return nil
}

// ValidateOutput confirms a produced file is non-empty and probeable with a
// positive duration. Used to detect truncated transcoder output.
func (e *Executor) ValidateOutput(ctx context.Context, path string) error {
	stat, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("validate %s: %w", path, err)
	}
	if stat.Size() == 0 {
		return fmt.Errorf("validate %s: file is empty", path)
	}
	info, err := e.Probe(ctx, path)
	if err != nil {
		return fmt.Errorf("validate %s: %w", path, err)
	}
	if info.Duration <= 0 {
		return fmt.Errorf("validate %s: zero duration", path)
	}
	return nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
