package pipeline

import (
	"context"
	"fmt"

	"commentary/worker/internal/ffmpeg"
)

// compose conforms every clip to the target resolution, frame rate and
// audio-mode policy, then concatenates them in segment order. Clips in
// narration-only mode get their source audio replaced by silence here; the
// narration itself joins the mix in the final mux. Each normalized clip is
// trimmed to the segment's presentation duration, which drops the
// extraction safety margin and makes the composed length equal the sum of
// presentation durations.
func (d *Driver) compose(ctx context.Context, in Inputs, tl *timeline, res *Result) error {
	encoder := d.media.SelectVideoEncoder(ctx, nil)

	ordered := make([]string, 0, len(tl.Entries))
	for _, entry := range tl.Entries {
		clipPath, found := res.ClipPaths[entry.Segment.ID]
		if !found {
			// segments without clips were pruned from the timeline
			// before composition, so this is a driver bug
			return &CompositionError{Err: fmt.Errorf("segment %d has no clip", entry.Segment.ID)}
		}

		silence := !entry.Segment.Mode.KeepsOriginalAudio()
		if !silence {
			info, err := d.media.Probe(ctx, clipPath)
			if err != nil {
				return &CompositionError{Err: fmt.Errorf("segment %d: %w", entry.Segment.ID, err)}
			}
			// a clip without an audio stream still needs silence so
			// every concat input shares the same stream layout
			silence = !info.HasAudio
		}

		normalized := normalizedClipPath(in.WorkDir, entry.Segment)
		err := d.media.NormalizeClip(ctx, ffmpeg.NormalizeOptions{
			Input:    clipPath,
			Output:   normalized,
			Width:    d.cfg.Width,
			Height:   d.cfg.Height,
			FPS:      d.cfg.FPS,
			Encoder:  encoder,
			Silence:  silence,
			Duration: entry.Duration,
		})
		if err != nil {
			return &CompositionError{Err: fmt.Errorf("segment %d: %w", entry.Segment.ID, err)}
		}
		ordered = append(ordered, normalized)

		if cancelled(ctx) {
			return nil
		}
	}

	output := composedVideoPath(in.WorkDir)
	if err := d.media.Concat(ctx, ordered, output); err != nil {
		return &CompositionError{Err: err}
	}
	res.ComposedVideo = output
	return nil
}
