package script

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AudioMode controls which audio layers a segment contributes to the final mix.
type AudioMode int

const (
	// ModeNarrationOnly strips the source audio and plays synthesized narration.
	ModeNarrationOnly AudioMode = 0
	// ModeOriginalOnly keeps the source audio; the segment carries no narration.
	ModeOriginalOnly AudioMode = 1
	// ModeBoth keeps the source audio and mixes narration on top.
	ModeBoth AudioMode = 2
)

// String returns a readable name for logging.
func (m AudioMode) String() string {
	switch m {
	case ModeNarrationOnly:
		return "narration_only"
	case ModeOriginalOnly:
		return "original_only"
	case ModeBoth:
		return "both"
	default:
		return fmt.Sprintf("invalid(%d)", int(m))
	}
}

// NeedsNarration reports whether the segment requires synthesized narration.
func (m AudioMode) NeedsNarration() bool {
	return m != ModeOriginalOnly
}

// KeepsOriginalAudio reports whether the source audio track is retained.
func (m AudioMode) KeepsOriginalAudio() bool {
	return m != ModeNarrationOnly
}

// coerceAudioMode resolves the loosely-typed OST field (int, float, bool or
// numeric string from LLM output) to exactly one of the three allowed modes.
func coerceAudioMode(raw json.RawMessage) (AudioMode, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("missing OST value")
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return ModeOriginalOnly, nil
		}
		return ModeNarrationOnly, nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return audioModeFromNumber(f)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("non-numeric OST value %q", s)
		}
		return audioModeFromNumber(f)
	}

	return 0, fmt.Errorf("unsupported OST value %s", string(raw))
}

func audioModeFromNumber(f float64) (AudioMode, error) {
	n := int(f)
	if float64(n) != f {
		return 0, fmt.Errorf("fractional OST value %v", f)
	}
	switch AudioMode(n) {
	case ModeNarrationOnly, ModeOriginalOnly, ModeBoth:
		return AudioMode(n), nil
	default:
		return 0, fmt.Errorf("OST value %d out of range", n)
	}
}

// RawSegment is one loosely-typed entry of an authored script, as produced by
// LLM JSON output or a user upload.
type RawSegment struct {
	ID        int             `json:"_id"`
	Timestamp string          `json:"timestamp"`
	Picture   string          `json:"picture"`
	Narration string          `json:"narration"`
	OST       json.RawMessage `json:"OST"`
}

// Segment is one validated unit of the script. Authored fields are immutable
// after normalization; derived per-segment artifacts live with the pipeline.
type Segment struct {
	ID        int
	Start     Timestamp
	End       Timestamp
	Picture   string
	Narration string
	Mode      AudioMode
}

// Duration returns the authored duration of the segment's source window.
func (s Segment) Duration() time.Duration {
	return s.End.Duration() - s.Start.Duration()
}

// TimeRange returns the canonical "HH:MM:SS,mmm-HH:MM:SS,mmm" form.
func (s Segment) TimeRange() string {
	return s.Start.String() + "-" + s.End.String()
}

// TotalDuration returns the merged-timeline canvas length of a normalized
// script: the latest authored end time across all segments.
func TotalDuration(segments []Segment) time.Duration {
	var end Timestamp
	for _, seg := range segments {
		if seg.End > end {
			end = seg.End
		}
	}
	return end.Duration()
}
