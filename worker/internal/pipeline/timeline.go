package pipeline

import (
	"fmt"
	"path/filepath"
	"time"

	"commentary/shared/script"
	"commentary/worker/internal/subtitle"
)

// narrationResult is one segment's synthesis outcome.
type narrationResult struct {
	AudioPath string
	Duration  time.Duration
	Cues      []subtitle.Cue
	Err       error
}

type narrationResults struct {
	requested int
	results   map[int]*narrationResult
}

func (n *narrationResults) succeeded() int {
	count := 0
	for _, r := range n.results {
		if r.Err == nil {
			count++
		}
	}
	return count
}

func (n *narrationResults) ok(id int) *narrationResult {
	r, found := n.results[id]
	if !found || r.Err != nil {
		return nil
	}
	return r
}

// timelineEntry places one segment on the output timeline. Duration is the
// presentation length of the segment in the final video: the authored
// window, stretched when the realized narration runs longer. Offsets are
// strictly additive over presentation durations, which keeps every
// narration clip aligned with the start of its own video clip.
type timelineEntry struct {
	Segment   script.Segment
	Narration *narrationResult
	Offset    time.Duration
	Duration  time.Duration
}

type timeline struct {
	Entries []timelineEntry
	// Total is the canvas length for the narration and music tracks,
	// equal to the composed video's duration.
	Total time.Duration
}

func buildTimeline(segments []script.Segment, narration *narrationResults) *timeline {
	tl := &timeline{Entries: make([]timelineEntry, 0, len(segments))}
	var offset time.Duration
	for _, seg := range segments {
		entry := timelineEntry{
			Segment:  seg,
			Offset:   offset,
			Duration: seg.Duration(),
		}
		if result := narration.ok(seg.ID); result != nil {
			entry.Narration = result
			if result.Duration > entry.Duration {
				entry.Duration = result.Duration
			}
		}
		offset += entry.Duration
		tl.Entries = append(tl.Entries, entry)
	}
	tl.Total = offset
	return tl
}

// prune returns the timeline restricted to segments that have a clip,
// with offsets and the canvas total recomputed over the survivors so the
// narration track, subtitle cues and mux length keep tracking the video
// that will actually be composed. dropped reports whether any entry was
// removed.
func (tl *timeline) prune(clips map[int]string) (pruned *timeline, dropped bool) {
	pruned = &timeline{Entries: make([]timelineEntry, 0, len(tl.Entries))}
	var offset time.Duration
	for _, entry := range tl.Entries {
		if _, found := clips[entry.Segment.ID]; !found {
			dropped = true
			continue
		}
		entry.Offset = offset
		offset += entry.Duration
		pruned.Entries = append(pruned.Entries, entry)
	}
	pruned.Total = offset
	return pruned, dropped
}

// hasNarration reports whether any entry carries synthesized audio.
func (tl *timeline) hasNarration() bool {
	for _, entry := range tl.Entries {
		if entry.Narration != nil {
			return true
		}
	}
	return false
}

// Artifact naming. Every path is deterministic in segment identity so
// re-runs hit the extraction cache and parallel writers never collide.

func segmentAudioPath(workDir string, seg script.Segment) string {
	return filepath.Join(workDir, fmt.Sprintf("audio_%s.mp3", seg.Start.FileSafe()))
}

func segmentSubtitlePath(workDir string, seg script.Segment) string {
	return filepath.Join(workDir, fmt.Sprintf("subtitle_%s.srt", seg.Start.FileSafe()))
}

func segmentClipPath(workDir string, seg script.Segment) string {
	return filepath.Join(workDir, fmt.Sprintf("vid-%s-%s.mp4", seg.Start.FileSafe(), seg.End.FileSafe()))
}

func normalizedClipPath(workDir string, seg script.Segment) string {
	return filepath.Join(workDir, fmt.Sprintf("norm-%03d.mp4", seg.ID))
}

func narrationTrackPath(workDir string) string {
	return filepath.Join(workDir, "audio.wav")
}

func narrationTrackFallbackPath(workDir string) string {
	return filepath.Join(workDir, "audio.mp3")
}

func mergedSubtitlePath(workDir, taskID string) string {
	return filepath.Join(workDir, fmt.Sprintf("merged_subtitle_%s.srt", taskID))
}

func subtitleStylePath(workDir, taskID string) string {
	return filepath.Join(workDir, fmt.Sprintf("subtitle_%s.ass", taskID))
}

func composedVideoPath(workDir string) string {
	return filepath.Join(workDir, "merger.mp4")
}

func finalVideoPath(workDir string) string {
	return filepath.Join(workDir, "combined.mp4")
}
