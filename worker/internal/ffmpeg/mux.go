package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// MuxOptions assembles the final deliverable: the composed video, the
// merged narration track, optional looping background music and an optional
// burned-in subtitle file, each audio layer with its own volume.
type MuxOptions struct {
	Video     string
	Narration string
	BGM       string
	// SubtitleASS is burned into the video stream when set.
	SubtitleASS string
	Output      string

	// KeepOriginalAudio mixes the video's own audio track into the output.
	KeepOriginalAudio bool
	OriginalVolume    float64
	NarrationVolume   float64
	BGMVolume         float64

	// Duration trims the output to the composed video's length so the
	// looping music layer cannot extend it.
	Duration time.Duration
	Encoder  string
}

// Mux renders the final video. When the requested encoder fails (hardware
// encoders can be listed but unusable) it retries once with libx264.
func (e *Executor) Mux(ctx context.Context, opts MuxOptions) error {
	encoder := opts.Encoder
	if encoder == "" {
		encoder = SoftwareEncoder
	}

	err := e.muxWith(ctx, opts, encoder)
	if err != nil && encoder != SoftwareEncoder {
		e.logger.Warn("mux failed with hardware encoder, retrying with software encoder",
			zap.String("encoder", encoder), zap.Error(err))
		err = e.muxWith(ctx, opts, SoftwareEncoder)
	}
	if err != nil {
		return err
	}

	if err := e.ValidateOutput(ctx, opts.Output); err != nil {
		os.Remove(opts.Output)
		return err
	}
	return nil
}

func (e *Executor) muxWith(ctx context.Context, opts MuxOptions, encoder string) error {
	args := []string{"-y", "-i", opts.Video}

	narrationIdx := -1
	if opts.Narration != "" {
		narrationIdx = 1
		args = append(args, "-i", opts.Narration)
	}
	bgmIdx := -1
	if opts.BGM != "" {
		bgmIdx = 1
		if narrationIdx > 0 {
			bgmIdx = 2
		}
		args = append(args, "-stream_loop", "-1", "-i", opts.BGM)
	}

	var filter strings.Builder
	videoLabel := "0:v"
	if opts.SubtitleASS != "" {
		fmt.Fprintf(&filter, "[0:v]ass=%s[vout]", escapeFilterPath(opts.SubtitleASS))
		videoLabel = "[vout]"
	}

	layers := make([]string, 0, 3)
	mixIdx := 0
	addLayer := func(input string, volume float64) {
		if filter.Len() > 0 {
			filter.WriteString(";")
		}
		label := fmt.Sprintf("[m%d]", mixIdx)
		fmt.Fprintf(&filter, "[%s]volume=%s%s", input, formatVolume(volume), label)
		layers = append(layers, label)
		mixIdx++
	}

	if opts.KeepOriginalAudio {
		addLayer("0:a", opts.OriginalVolume)
	}
	if narrationIdx > 0 {
		addLayer(fmt.Sprintf("%d:a", narrationIdx), opts.NarrationVolume)
	}
	if bgmIdx > 0 {
		addLayer(fmt.Sprintf("%d:a", bgmIdx), opts.BGMVolume)
	}

	audioLabel := ""
	switch len(layers) {
	case 0:
		// no audio at all
	case 1:
		audioLabel = layers[0]
	default:
		if filter.Len() > 0 {
			filter.WriteString(";")
		}
		fmt.Fprintf(&filter, "%samix=inputs=%d:duration=first:normalize=0[aout]",
			strings.Join(layers, ""), len(layers))
		audioLabel = "[aout]"
	}

	if filter.Len() > 0 {
		args = append(args, "-filter_complex", filter.String())
	}
	args = append(args, "-map", videoLabel)
	if audioLabel != "" {
		args = append(args, "-map", audioLabel, "-c:a", "aac", "-b:a", "192k")
	} else {
		args = append(args, "-an")
	}
	args = append(args, "-c:v", encoder)
	if opts.Duration > 0 {
		args = append(args, "-t", formatSeconds(opts.Duration))
	}
	args = append(args, opts.Output)

	if err := e.run(ctx, args...); err != nil {
		os.Remove(opts.Output)
		return fmt.Errorf("mux %s: %w", opts.Output, err)
	}
	return nil
}

func formatVolume(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// escapeFilterPath quotes a filename for use inside a filtergraph, where
// ':' separates options and '\' escapes.
func escapeFilterPath(path string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		":", `\:`,
		"'", `\'`,
	)
	return replacer.Replace(path)
}
