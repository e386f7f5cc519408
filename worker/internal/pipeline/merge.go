package pipeline

import (
	"commentary/worker/internal/ffmpeg"
	"commentary/worker/internal/subtitle"
	"context"

	"go.uber.org/zap"
)

// mergeAudio lays every synthesized narration clip on a silent canvas at
// its timeline offset and writes the aligned merged subtitle track. The
// lossless WAV export keeps the narration clean until the final mux; if it
// fails, a compressed fallback is logged as degraded but accepted.
func (d *Driver) mergeAudio(ctx context.Context, in Inputs, tl *timeline, res *Result) error {
	if !tl.hasNarration() {
		d.logger.Info("no narrated segments, skipping narration track", zap.String("task_id", in.TaskID))
		return nil
	}

	entries := make([]ffmpeg.AudioEntry, 0, len(tl.Entries))
	var cues []subtitle.Cue
	for _, entry := range tl.Entries {
		if entry.Narration == nil {
			continue
		}
		entries = append(entries, ffmpeg.AudioEntry{
			Path:   entry.Narration.AudioPath,
			Offset: entry.Offset,
		})
		cues = append(cues, subtitle.Shift(entry.Narration.Cues, entry.Offset)...)
	}

	opts := ffmpeg.MergeAudioOptions{
		Entries: entries,
		Canvas:  tl.Total,
		Output:  narrationTrackPath(in.WorkDir),
	}
	if err := d.media.MergeAudioTimeline(ctx, opts); err != nil {
		d.logger.Warn("lossless narration export failed, falling back to compressed",
			zap.String("task_id", in.TaskID), zap.Error(err))
		opts.Output = narrationTrackFallbackPath(in.WorkDir)
		if err := d.media.MergeAudioTimeline(ctx, opts); err != nil {
			return err
		}
	}
	res.NarrationTrack = opts.Output

	if d.cfg.SubtitleEnabled && len(cues) > 0 {
		merged := subtitle.Merge(cues)
		path := mergedSubtitlePath(in.WorkDir, in.TaskID)
		if err := subtitle.WriteSRTFile(path, merged); err != nil {
			return err
		}
		res.SubtitleTrack = path
	}
	return nil
}
