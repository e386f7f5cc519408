package script

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Normalize validates and canonicalizes a raw script into a strictly ordered
// segment list. Segments are stably sorted by authored start time (ties keep
// input order) and renumbered 1..N, so downstream artifact naming is
// deterministic regardless of the input order.
func Normalize(raw []RawSegment) ([]Segment, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("script has no segments")
	}

	segments := make([]Segment, 0, len(raw))
	for i, r := range raw {
		position := i + 1

		start, end, err := ParseTimeRange(r.Timestamp)
		if err != nil {
			return nil, &TimestampParseError{Position: position, Value: r.Timestamp, Err: err}
		}
		if start >= end {
			return nil, &InvalidTimeRangeError{Position: position, Start: start, End: end}
		}

		mode, err := coerceAudioMode(r.OST)
		if err != nil {
			return nil, &InvalidAudioModeError{Position: position, Err: err}
		}

		narration := strings.TrimSpace(r.Narration)
		if mode == ModeOriginalOnly && narration != "" {
			return nil, &UnexpectedNarrationError{Position: position}
		}
		if mode != ModeOriginalOnly && narration == "" {
			return nil, &MissingNarrationError{Position: position, Mode: mode}
		}

		segments = append(segments, Segment{
			Start:     start,
			End:       end,
			Picture:   strings.TrimSpace(r.Picture),
			Narration: narration,
			Mode:      mode,
		})
	}

	sort.SliceStable(segments, func(a, b int) bool {
		return segments[a].Start < segments[b].Start
	})

	for i := range segments {
		segments[i].ID = i + 1
	}

	return segments, nil
}

// LoadFile reads a script JSON file and normalizes it.
func LoadFile(path string) ([]Segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a script JSON document and normalizes it.
func Parse(data []byte) ([]Segment, error) {
	var raw []RawSegment
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode script JSON: %w", err)
	}
	return Normalize(raw)
}
