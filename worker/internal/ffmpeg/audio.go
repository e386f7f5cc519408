package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// AudioEntry places one narration file at an offset on the merged timeline.
type AudioEntry struct {
	Path   string
	Offset time.Duration
}

// MergeAudioOptions builds a single narration track from per-segment audio
// files laid out on a silent canvas of the given length.
type MergeAudioOptions struct {
	Entries []AudioEntry
	Canvas  time.Duration
	Output  string
}

// MergeAudioTimeline overlays each entry on a silent stereo canvas at its
// offset and mixes the layers without renormalizing their volume. The
// output codec follows the output file extension (pcm for .wav).
func (e *Executor) MergeAudioTimeline(ctx context.Context, opts MergeAudioOptions) error {
	if len(opts.Entries) == 0 {
		return fmt.Errorf("merge audio: no entries")
	}
	if opts.Canvas <= 0 {
		return fmt.Errorf("merge audio: non-positive canvas duration")
	}

	args := []string{
		"-y",
		"-f", "lavfi",
		"-t", formatSeconds(opts.Canvas),
		"-i", "anullsrc=r=44100:cl=stereo",
	}
	for _, entry := range opts.Entries {
		args = append(args, "-i", entry.Path)
	}

	var filter strings.Builder
	labels := make([]string, 0, len(opts.Entries)+1)
	labels = append(labels, "[0:a]")
	for i, entry := range opts.Entries {
		delay := entry.Offset.Milliseconds()
		fmt.Fprintf(&filter, "[%d:a]adelay=%d|%d[d%d];", i+1, delay, delay, i)
		labels = append(labels, fmt.Sprintf("[d%d]", i))
	}
	fmt.Fprintf(&filter, "%samix=inputs=%d:duration=first:normalize=0[aout]",
		strings.Join(labels, ""), len(labels))

	args = append(args,
		"-filter_complex", filter.String(),
		"-map", "[aout]",
	)
	if strings.HasSuffix(opts.Output, ".wav") {
		args = append(args, "-c:a", "pcm_s16le")
	}
	args = append(args, opts.Output)

	if err := e.run(ctx, args...); err != nil {
		os.Remove(opts.Output)
		return fmt.Errorf("merge audio timeline: %w", err)
	}

	if err := e.ValidateOutput(ctx, opts.Output); err != nil {
		os.Remove(opts.Output)
		return err
	}
	return nil
}

// TranscodeAudio converts an audio file to another container/codec, used as
// a fallback when the preferred output format fails to encode.
func (e *Executor) TranscodeAudio(ctx context.Context, input, output string) error {
	if err := e.run(ctx, "-y", "-i", input, output); err != nil {
		os.Remove(output)
		return fmt.Errorf("transcode audio %s: %w", output, err)
	}
	return e.ValidateOutput(ctx, output)
}
