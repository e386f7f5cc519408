package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"commentary/shared/script"
	"commentary/worker/internal/subtitle"
	"commentary/worker/internal/tts"

	"go.uber.org/zap"
)

// runTTS synthesizes narration for every segment that needs it. Segments
// run in parallel under a bounded semaphore; results are keyed by segment
// id so completion order never matters. One segment's failure does not
// abort the batch, but zero successes is fatal.
func (d *Driver) runTTS(ctx context.Context, in Inputs) (*narrationResults, error) {
	narrated := make([]script.Segment, 0, len(in.Segments))
	for _, seg := range in.Segments {
		if seg.Mode.NeedsNarration() {
			narrated = append(narrated, seg)
		}
	}

	out := &narrationResults{
		requested: len(narrated),
		results:   make(map[int]*narrationResult, len(narrated)),
	}
	if len(narrated) == 0 {
		return out, nil
	}
	if d.synth == nil {
		return nil, &ResourceError{Resource: "tts backend", Err: fmt.Errorf("no synthesizer configured")}
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, d.cfg.Concurrency)
	)
	for _, seg := range narrated {
		if cancelled(ctx) {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(seg script.Segment) {
			defer wg.Done()
			defer func() { <-sem }()

			result := d.synthesizeSegment(ctx, in, seg)
			mu.Lock()
			out.results[seg.ID] = result
			mu.Unlock()
		}(seg)
	}
	wg.Wait()

	if cancelled(ctx) {
		return out, nil
	}
	if out.succeeded() == 0 {
		var first error
		for _, seg := range narrated {
			if r := out.results[seg.ID]; r != nil && r.Err != nil {
				first = r.Err
				break
			}
		}
		return nil, fmt.Errorf("all %d narrated segments failed synthesis: %w", len(narrated), first)
	}
	return out, nil
}

func (d *Driver) synthesizeSegment(ctx context.Context, in Inputs, seg script.Segment) *narrationResult {
	audioPath := segmentAudioPath(in.WorkDir, seg)
	req := tts.Request{
		Text:  seg.Narration,
		Voice: d.cfg.Voice,
		Rate:  d.cfg.Rate,
		Pitch: d.cfg.Pitch,
	}

	var synthesized *tts.Result
	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxRetries; attempt++ {
		if cancelled(ctx) {
			return &narrationResult{Err: &SynthesisError{SegmentID: seg.ID, Err: ctx.Err()}}
		}
		synthesized, lastErr = d.synth.Synthesize(ctx, req, audioPath)
		if lastErr == nil {
			break
		}
		d.logger.Warn("narration synthesis attempt failed",
			zap.Int("segment_id", seg.ID),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
		if attempt < d.cfg.MaxRetries {
			select {
			case <-time.After(time.Duration(attempt) * d.cfg.RetryDelay):
			case <-ctx.Done():
			}
		}
	}
	if lastErr != nil {
		return &narrationResult{Err: &SynthesisError{SegmentID: seg.ID, Err: lastErr}}
	}

	duration := d.resolveDuration(ctx, seg, synthesized)
	result := &narrationResult{
		AudioPath: audioPath,
		Duration:  duration,
		Cues:      synthesized.Cues,
	}
	if d.cfg.SubtitleEnabled {
		if len(result.Cues) == 0 {
			result.Cues = approximateCues(seg.Narration, duration)
		}
		if err := subtitle.WriteSRTFile(segmentSubtitlePath(in.WorkDir, seg), result.Cues); err != nil {
			d.logger.Warn("failed to write segment subtitle file",
				zap.Int("segment_id", seg.ID), zap.Error(err))
		}
	}
	return result
}

// resolveDuration returns the realized narration length, falling back from
// the service-reported value to a file probe to a text-length estimate.
// A zero duration would break timeline layout, so the result is never zero.
func (d *Driver) resolveDuration(ctx context.Context, seg script.Segment, synthesized *tts.Result) time.Duration {
	if synthesized.Duration > 0 {
		return synthesized.Duration
	}
	if info, err := d.media.Probe(ctx, synthesized.AudioPath); err == nil && info.Duration > 0 {
		return info.Duration
	}
	d.logger.Warn("estimating narration duration from text length",
		zap.Int("segment_id", seg.ID))
	estimated := time.Duration(float64(len([]rune(seg.Narration))) * d.cfg.SecondsPerChar * float64(time.Second))
	if estimated < 500*time.Millisecond {
		estimated = 500 * time.Millisecond
	}
	return estimated
}

// approximateCues spreads sentence-split narration text evenly across the
// realized audio length when the backend returns no timing metadata.
func approximateCues(text string, duration time.Duration) []subtitle.Cue {
	sentences := subtitle.SplitSentences(text)
	if len(sentences) == 0 {
		return nil
	}
	per := duration / time.Duration(len(sentences))
	cues := make([]subtitle.Cue, 0, len(sentences))
	for i, sentence := range sentences {
		start := time.Duration(i) * per
		end := start + per
		if i == len(sentences)-1 {
			end = duration
		}
		cues = append(cues, subtitle.Cue{
			Index: i + 1,
			Start: start,
			End:   end,
			Text:  sentence,
		})
	}
	return cues
}
