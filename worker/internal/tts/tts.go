package tts

import (
	"context"
	"time"

	"commentary/worker/internal/subtitle"
)

// Request asks for one narration line to be synthesized.
type Request struct {
	Text  string
	Voice string
	// Rate and Pitch are relative adjustments like "+10%" and "-2Hz".
	Rate  string
	Pitch string
}

// Result describes a synthesized narration file. Duration is the realized
// audio length; it may be zero when the service does not report one, in
// which case the caller probes the file. Cues carry sentence-level timing
// relative to the start of the audio when the service provides it.
type Result struct {
	AudioPath string
	Duration  time.Duration
	Cues      []subtitle.Cue
}

// Synthesizer turns narration text into an audio file on disk.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request, outputPath string) (*Result, error)
}
