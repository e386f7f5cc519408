package ffmpeg

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// DefaultEncoderPreference orders hardware H.264 encoders before the
// software fallback. The first one the local ffmpeg build reports is used.
var DefaultEncoderPreference = []string{
	"h264_nvenc",
	"h264_qsv",
	"h264_videotoolbox",
	"libx264",
}

// SoftwareEncoder is the always-available fallback codec.
const SoftwareEncoder = "libx264"

// HasEncoder reports whether the local ffmpeg build ships the named encoder.
// The encoder list is probed once and cached for the executor's lifetime.
func (e *Executor) HasEncoder(ctx context.Context, name string) bool {
	e.loadEncoders(ctx)
	return e.encoders[name]
}

// SelectVideoEncoder returns the first available encoder from the preference
// list, falling back to libx264 when none are present or the probe fails.
func (e *Executor) SelectVideoEncoder(ctx context.Context, preference []string) string {
	if len(preference) == 0 {
		preference = DefaultEncoderPreference
	}
	e.loadEncoders(ctx)
	if e.encodersErr != nil {
		e.logger.Warn("encoder probe failed, using software encoder", zap.Error(e.encodersErr))
		return SoftwareEncoder
	}
	for _, name := range preference {
		if e.encoders[name] {
			return name
		}
	}
	return SoftwareEncoder
}

func (e *Executor) loadEncoders(ctx context.Context) {
	e.encodersOnce.Do(func() {
		out, err := e.runner.Output(ctx, e.ffmpegPath, "-hide_banner", "-encoders")
		if err != nil {
			e.encodersErr = err
			e.encoders = map[string]bool{}
			return
		}
		e.encoders = parseEncoderList(string(out))
		e.logger.Debug("probed available encoders", zap.Int("count", len(e.encoders)))
	})
}

// parseEncoderList extracts encoder names from `ffmpeg -encoders` output.
// Each entry line looks like " V....D h264_nvenc  NVIDIA NVENC H.264 encoder".
func parseEncoderList(out string) map[string]bool {
	encoders := make(map[string]bool)
	seenHeader := false
	for _, line := range strings.Split(out, "\n") {
		if !seenHeader {
			if strings.Contains(line, "------") {
				seenHeader = true
			}
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			encoders[fields[1]] = true
		}
	}
	return encoders
}
