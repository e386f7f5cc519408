package pipeline

import (
	"context"
	"os"
	"sync"
	"time"

	"commentary/worker/internal/ffmpeg"

	"go.uber.org/zap"
)

// extractClips cuts one sub-clip per segment from the source video. The
// window starts at the authored start and runs for the segment's
// presentation duration plus a safety margin, so narration that outlasts
// the authored window never gets truncated footage. Existing non-empty
// outputs are cache hits and skip the transcoder entirely.
func (d *Driver) extractClips(ctx context.Context, in Inputs, tl *timeline, res *Result) error {
	encoder := d.media.SelectVideoEncoder(ctx, nil)
	d.logger.Info("extracting clips",
		zap.String("task_id", in.TaskID),
		zap.String("encoder", encoder),
		zap.Int("segments", len(tl.Entries)))

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		sem    = make(chan struct{}, d.cfg.Concurrency)
		failed []error
	)
	for _, entry := range tl.Entries {
		if cancelled(ctx) {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(entry timelineEntry) {
			defer wg.Done()
			defer func() { <-sem }()

			path, err := d.extractOne(ctx, in, entry, encoder)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, &ExtractionError{SegmentID: entry.Segment.ID, Err: err})
				return
			}
			res.ClipPaths[entry.Segment.ID] = path
		}(entry)
	}
	wg.Wait()

	if cancelled(ctx) {
		return nil
	}
	if len(failed) > 0 {
		if !d.cfg.BestEffort {
			return failed[0]
		}
		for _, err := range failed {
			d.logger.Warn("segment clip skipped in best-effort mode", zap.Error(err))
		}
		if len(res.ClipPaths) == 0 {
			return failed[0]
		}
	}
	return nil
}

func (d *Driver) extractOne(ctx context.Context, in Inputs, entry timelineEntry, encoder string) (string, error) {
	path := segmentClipPath(in.WorkDir, entry.Segment)
	if stat, err := os.Stat(path); err == nil && stat.Size() > 0 {
		d.logger.Debug("clip cache hit",
			zap.Int("segment_id", entry.Segment.ID),
			zap.String("path", path))
		return path, nil
	}

	opts := ffmpeg.ClipOptions{
		Input:    in.SourceVideo,
		Output:   path,
		Start:    entry.Segment.Start.Duration(),
		Duration: entry.Duration + d.cfg.SafetyMargin,
		Encoder:  encoder,
	}
	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxRetries; attempt++ {
		if cancelled(ctx) {
			return "", ctx.Err()
		}
		lastErr = d.media.ExtractClip(ctx, opts)
		if lastErr == nil {
			return path, nil
		}
		d.logger.Warn("clip extraction attempt failed",
			zap.Int("segment_id", entry.Segment.ID),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
		if attempt < d.cfg.MaxRetries {
			select {
			case <-time.After(time.Duration(attempt) * d.cfg.RetryDelay):
			case <-ctx.Done():
			}
		}
	}
	return "", lastErr
}
