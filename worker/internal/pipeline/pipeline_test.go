package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"commentary/shared/script"
	"commentary/worker/internal/ffmpeg"
	"commentary/worker/internal/tts"

	"go.uber.org/zap"
)

// fakeSynth writes a placeholder audio file and reports a fixed duration
// per narration text. Texts in fail are rejected on every attempt.
type fakeSynth struct {
	mu        sync.Mutex
	durations map[string]time.Duration
	fail      map[string]bool
	calls     int
}

func (f *fakeSynth) Synthesize(_ context.Context, req tts.Request, outputPath string) (*tts.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fail[req.Text] {
		return nil, errors.New("backend unavailable")
	}
	if err := os.WriteFile(outputPath, []byte("audio"), 0o644); err != nil {
		return nil, err
	}
	return &tts.Result{AudioPath: outputPath, Duration: f.durations[req.Text]}, nil
}

// fakeMedia records transcoder invocations and fabricates outputs.
type fakeMedia struct {
	mu              sync.Mutex
	extractCalls    []ffmpeg.ClipOptions
	normalizeCalls  []ffmpeg.NormalizeOptions
	concatCalls     [][]string
	mergeCalls      []ffmpeg.MergeAudioOptions
	muxCalls        []ffmpeg.MuxOptions
	failExtraction  bool
	extractFailures int                    // fail this many leading extract calls, then recover
	failStarts      map[time.Duration]bool // always reject extracts at these start offsets
	failFirstMerge  bool
}

func (f *fakeMedia) Probe(_ context.Context, path string) (*ffmpeg.MediaInfo, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return &ffmpeg.MediaInfo{Duration: 10 * time.Second, HasVideo: true, HasAudio: true}, nil
}

func (f *fakeMedia) SelectVideoEncoder(context.Context, []string) string { return "libx264" }

func (f *fakeMedia) ExtractClip(_ context.Context, opts ffmpeg.ClipOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extractCalls = append(f.extractCalls, opts)
	if f.failExtraction {
		return errors.New("encoder crashed")
	}
	if f.failStarts[opts.Start] {
		return errors.New("corrupt source region")
	}
	if f.extractFailures > 0 {
		f.extractFailures--
		return errors.New("transient encoder error")
	}
	return os.WriteFile(opts.Output, []byte("clip"), 0o644)
}

func (f *fakeMedia) NormalizeClip(_ context.Context, opts ffmpeg.NormalizeOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.normalizeCalls = append(f.normalizeCalls, opts)
	return os.WriteFile(opts.Output, []byte("norm"), 0o644)
}

func (f *fakeMedia) Concat(_ context.Context, inputs []string, output string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.concatCalls = append(f.concatCalls, inputs)
	return os.WriteFile(output, []byte("composed"), 0o644)
}

func (f *fakeMedia) MergeAudioTimeline(_ context.Context, opts ffmpeg.MergeAudioOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mergeCalls = append(f.mergeCalls, opts)
	if f.failFirstMerge && len(f.mergeCalls) == 1 {
		return errors.New("wav encoder missing")
	}
	return os.WriteFile(opts.Output, []byte("track"), 0o644)
}

func (f *fakeMedia) Mux(_ context.Context, opts ffmpeg.MuxOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.muxCalls = append(f.muxCalls, opts)
	return os.WriteFile(opts.Output, []byte("final"), 0o644)
}

type recordingStore struct {
	mu     sync.Mutex
	states []State
}

func (r *recordingStore) SaveState(_ context.Context, _ string, state State, _ float64, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	return nil
}

func ts(t *testing.T, raw string) script.Timestamp {
	t.Helper()
	parsed, err := script.ParseTimestamp(raw)
	if err != nil {
		t.Fatalf("parse timestamp %q: %v", raw, err)
	}
	return parsed
}

func threeSegments(t *testing.T) []script.Segment {
	return []script.Segment{
		{ID: 1, Start: ts(t, "00:00:00,000"), End: ts(t, "00:00:05,000"), Narration: "Hello", Mode: script.ModeBoth},
		{ID: 2, Start: ts(t, "00:00:05,000"), End: ts(t, "00:00:08,000"), Narration: "World", Mode: script.ModeNarrationOnly},
		{ID: 3, Start: ts(t, "00:00:08,000"), End: ts(t, "00:00:10,000"), Mode: script.ModeOriginalOnly},
	}
}

func testInputs(t *testing.T, segments []script.Segment) Inputs {
	dir := t.TempDir()
	source := filepath.Join(dir, "source.mp4")
	if err := os.WriteFile(source, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}
	return Inputs{
		TaskID:      "task-1",
		Segments:    segments,
		SourceVideo: source,
		WorkDir:     filepath.Join(dir, "work"),
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxRetries = 2
	cfg.RetryDelay = time.Millisecond
	return cfg
}

func TestDriverRunsFullPipeline(t *testing.T) {
	synth := &fakeSynth{durations: map[string]time.Duration{
		"Hello": 6 * time.Second, // outruns the 5s authored window
		"World": 2 * time.Second,
	}}
	media := &fakeMedia{}
	store := &recordingStore{}
	var progress []float64
	driver := NewDriver(testConfig(), synth, media, store, func(p float64, _ string) {
		progress = append(progress, p)
	}, zap.NewNop())

	in := testInputs(t, threeSegments(t))
	res, err := driver.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != StateComplete {
		t.Fatalf("state = %s, want COMPLETE", res.State)
	}
	if res.FinalVideo == "" || res.ComposedVideo == "" || res.NarrationTrack == "" {
		t.Fatalf("missing artifacts: %+v", res)
	}

	wantStates := []State{
		StateInit, StateScriptLoaded, StateTTSDone, StateAudioMerged,
		StateClipsReady, StateComposed, StateMuxed, StateComplete,
	}
	if len(store.states) != len(wantStates) {
		t.Fatalf("states = %v, want %v", store.states, wantStates)
	}
	for i, want := range wantStates {
		if store.states[i] != want {
			t.Errorf("state[%d] = %s, want %s", i, store.states[i], want)
		}
	}

	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Errorf("progress regressed: %v", progress)
		}
	}
	if progress[len(progress)-1] != 100 {
		t.Errorf("final progress = %v, want 100", progress[len(progress)-1])
	}

	// only segments 1 and 2 need narration
	if synth.calls != 2 {
		t.Errorf("synthesizer called %d times, want 2", synth.calls)
	}

	// segment 1's narration stretches its window: presentation durations
	// are 6s, 3s, 2s with offsets 0, 6, 9 and an 11s canvas
	if len(media.mergeCalls) != 1 {
		t.Fatalf("merge calls = %d", len(media.mergeCalls))
	}
	merge := media.mergeCalls[0]
	if merge.Canvas != 11*time.Second {
		t.Errorf("canvas = %v, want 11s", merge.Canvas)
	}
	if len(merge.Entries) != 2 {
		t.Fatalf("merge entries = %d, want 2", len(merge.Entries))
	}
	if merge.Entries[0].Offset != 0 || merge.Entries[1].Offset != 6*time.Second {
		t.Errorf("offsets = %v, %v; want 0, 6s", merge.Entries[0].Offset, merge.Entries[1].Offset)
	}

	// narration-only segment gets silence, the others keep source audio
	silenceByOutput := map[string]bool{}
	for _, call := range media.normalizeCalls {
		silenceByOutput[filepath.Base(call.Output)] = call.Silence
	}
	if silenceByOutput["norm-002.mp4"] != true {
		t.Error("narration-only segment should have silenced source audio")
	}
	if silenceByOutput["norm-001.mp4"] || silenceByOutput["norm-003.mp4"] {
		t.Error("segments keeping original audio should not be silenced")
	}

	if len(media.muxCalls) != 1 {
		t.Fatalf("mux calls = %d", len(media.muxCalls))
	}
	mux := media.muxCalls[0]
	if mux.Narration == "" || !mux.KeepOriginalAudio {
		t.Errorf("mux should mix narration over original audio: %+v", mux)
	}
	if mux.Duration != 11*time.Second {
		t.Errorf("mux duration = %v, want 11s", mux.Duration)
	}
	if mux.SubtitleASS == "" {
		t.Error("mux should burn the merged subtitles")
	}
}

func TestDriverIsolatesSynthesisFailure(t *testing.T) {
	synth := &fakeSynth{
		durations: map[string]time.Duration{"Hello": 4 * time.Second},
		fail:      map[string]bool{"World": true},
	}
	media := &fakeMedia{}
	driver := NewDriver(testConfig(), synth, media, nil, nil, zap.NewNop())

	res, err := driver.Run(context.Background(), testInputs(t, threeSegments(t)))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != StateComplete {
		t.Fatalf("state = %s, want COMPLETE", res.State)
	}

	// the failed segment has no narration on the merged track but its
	// clip still plays
	if len(media.mergeCalls[0].Entries) != 1 {
		t.Errorf("merge entries = %d, want only segment 1", len(media.mergeCalls[0].Entries))
	}
	if len(res.ClipPaths) != 3 {
		t.Errorf("clips = %d, want 3", len(res.ClipPaths))
	}
}

func TestDriverFailsWhenAllSynthesisFails(t *testing.T) {
	synth := &fakeSynth{fail: map[string]bool{"Hello": true, "World": true}}
	driver := NewDriver(testConfig(), synth, &fakeMedia{}, nil, nil, zap.NewNop())

	res, err := driver.Run(context.Background(), testInputs(t, threeSegments(t)))
	if err == nil {
		t.Fatal("expected fatal error when no narration succeeds")
	}
	if res.State != StateFailed {
		t.Fatalf("state = %s, want FAILED", res.State)
	}
	if res.FailedStage != StageSynthesis {
		t.Errorf("failed stage = %s, want SYNTHESIS", res.FailedStage)
	}
	// progress freezes at the last completed stage instead of resetting
	if res.Progress != progressScript {
		t.Errorf("progress = %v, want %v", res.Progress, progressScript)
	}
}

func TestDriverExtractionFailureNamesSegment(t *testing.T) {
	synth := &fakeSynth{durations: map[string]time.Duration{"Hello": time.Second, "World": time.Second}}
	media := &fakeMedia{failExtraction: true}
	driver := NewDriver(testConfig(), synth, media, nil, nil, zap.NewNop())

	_, err := driver.Run(context.Background(), testInputs(t, threeSegments(t)))
	var extractErr *ExtractionError
	if !errors.As(err, &extractErr) {
		t.Fatalf("error = %v, want ExtractionError", err)
	}
	if extractErr.SegmentID < 1 || extractErr.SegmentID > 3 {
		t.Errorf("segment id = %d", extractErr.SegmentID)
	}
}

func TestDriverExtractionRetriesTransientFailure(t *testing.T) {
	synth := &fakeSynth{durations: map[string]time.Duration{"Hello": time.Second, "World": time.Second}}
	media := &fakeMedia{extractFailures: 1}
	driver := NewDriver(testConfig(), synth, media, nil, nil, zap.NewNop())

	res, err := driver.Run(context.Background(), testInputs(t, threeSegments(t)))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != StateComplete {
		t.Fatalf("state = %s, want COMPLETE", res.State)
	}
	if len(res.ClipPaths) != 3 {
		t.Errorf("clips = %d, want 3", len(res.ClipPaths))
	}
	// three segments plus one retry of the segment that hit the
	// transient failure
	if len(media.extractCalls) != 4 {
		t.Errorf("extract calls = %d, want 4", len(media.extractCalls))
	}
}

func TestDriverBestEffortRebuildsTimeline(t *testing.T) {
	synth := &fakeSynth{durations: map[string]time.Duration{
		"Hello": 6 * time.Second, // outruns the 5s authored window
		"World": 2 * time.Second,
	}}
	// segment 2 starts at 5s and never extracts
	media := &fakeMedia{failStarts: map[time.Duration]bool{5 * time.Second: true}}
	cfg := testConfig()
	cfg.BestEffort = true
	driver := NewDriver(cfg, synth, media, nil, nil, zap.NewNop())

	res, err := driver.Run(context.Background(), testInputs(t, threeSegments(t)))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != StateComplete {
		t.Fatalf("state = %s, want COMPLETE", res.State)
	}
	if len(res.ClipPaths) != 2 {
		t.Fatalf("clips = %d, want 2", len(res.ClipPaths))
	}

	// presentation durations are 6s, 3s, 2s; dropping segment 2 pulls
	// segment 3 to offset 6s and shrinks the canvas from 11s to 8s. The
	// narration track is re-merged against the shortened canvas, so the
	// last merge call must see only segment 1's narration.
	merge := media.mergeCalls[len(media.mergeCalls)-1]
	if merge.Canvas != 8*time.Second {
		t.Errorf("canvas = %v, want 8s", merge.Canvas)
	}
	if len(merge.Entries) != 1 || merge.Entries[0].Offset != 0 {
		t.Errorf("merge entries = %+v, want only segment 1 at offset 0", merge.Entries)
	}

	concat := media.concatCalls[len(media.concatCalls)-1]
	if len(concat) != 2 {
		t.Fatalf("concat inputs = %v, want 2 surviving clips", concat)
	}
	if filepath.Base(concat[0]) != "norm-001.mp4" || filepath.Base(concat[1]) != "norm-003.mp4" {
		t.Errorf("concat order = %v", concat)
	}

	if media.muxCalls[0].Duration != 8*time.Second {
		t.Errorf("mux duration = %v, want 8s", media.muxCalls[0].Duration)
	}
}

func TestDriverClipCacheHit(t *testing.T) {
	synth := &fakeSynth{durations: map[string]time.Duration{"Hello": time.Second, "World": time.Second}}
	media := &fakeMedia{}
	driver := NewDriver(testConfig(), synth, media, nil, nil, zap.NewNop())

	in := testInputs(t, threeSegments(t))
	if _, err := driver.Run(context.Background(), in); err != nil {
		t.Fatalf("first run: %v", err)
	}
	firstExtracts := len(media.extractCalls)
	if firstExtracts != 3 {
		t.Fatalf("first run extracted %d clips, want 3", firstExtracts)
	}

	if _, err := driver.Run(context.Background(), in); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(media.extractCalls) != firstExtracts {
		t.Errorf("second run re-extracted: %d calls total", len(media.extractCalls))
	}
}

func TestDriverNarrationExportFallback(t *testing.T) {
	synth := &fakeSynth{durations: map[string]time.Duration{"Hello": time.Second, "World": time.Second}}
	media := &fakeMedia{failFirstMerge: true}
	driver := NewDriver(testConfig(), synth, media, nil, nil, zap.NewNop())

	res, err := driver.Run(context.Background(), testInputs(t, threeSegments(t)))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if filepath.Ext(res.NarrationTrack) != ".mp3" {
		t.Errorf("narration track = %s, want compressed fallback", res.NarrationTrack)
	}
}

func TestDriverCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	synth := &fakeSynth{durations: map[string]time.Duration{"Hello": time.Second, "World": time.Second}}
	driver := NewDriver(testConfig(), synth, &fakeMedia{}, nil, nil, zap.NewNop())

	cancel()
	res, err := driver.Run(ctx, testInputs(t, threeSegments(t)))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if res.State != StateCancelled {
		t.Fatalf("state = %s, want CANCELLED", res.State)
	}
}

func TestBuildTimelineOffsetsAdditive(t *testing.T) {
	segments := threeSegments(t)
	narration := &narrationResults{
		requested: 2,
		results: map[int]*narrationResult{
			1: {AudioPath: "a1.mp3", Duration: 7 * time.Second},
			2: {AudioPath: "a2.mp3", Duration: 2 * time.Second},
		},
	}

	tl := buildTimeline(segments, narration)
	var offset time.Duration
	for i, entry := range tl.Entries {
		if entry.Offset != offset {
			t.Errorf("entry %d offset = %v, want %v", i, entry.Offset, offset)
		}
		offset += entry.Duration
	}
	// 7s (stretched) + 3s + 2s
	if tl.Total != 12*time.Second {
		t.Errorf("total = %v, want 12s", tl.Total)
	}
}

func TestTimelinePruneRecomputesOffsets(t *testing.T) {
	segments := threeSegments(t)
	narration := &narrationResults{
		requested: 2,
		results: map[int]*narrationResult{
			1: {AudioPath: "a1.mp3", Duration: 6 * time.Second},
			2: {AudioPath: "a2.mp3", Duration: 2 * time.Second},
		},
	}
	tl := buildTimeline(segments, narration)

	clips := map[int]string{1: "c1.mp4", 3: "c3.mp4"}
	pruned, dropped := tl.prune(clips)
	if !dropped {
		t.Fatal("expected segment 2 to be dropped")
	}
	if len(pruned.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(pruned.Entries))
	}
	if pruned.Entries[1].Offset != 6*time.Second {
		t.Errorf("segment 3 offset = %v, want 6s", pruned.Entries[1].Offset)
	}
	if pruned.Total != 8*time.Second {
		t.Errorf("total = %v, want 8s", pruned.Total)
	}

	all := map[int]string{1: "c1.mp4", 2: "c2.mp4", 3: "c3.mp4"}
	if _, dropped := tl.prune(all); dropped {
		t.Error("nothing should be dropped when every segment has a clip")
	}
}

func TestApproximateCuesCoverDuration(t *testing.T) {
	cues := approximateCues("第一句。第二句！第三句？", 9*time.Second)
	if len(cues) != 3 {
		t.Fatalf("got %d cues, want 3", len(cues))
	}
	if cues[0].Start != 0 {
		t.Errorf("first cue starts at %v", cues[0].Start)
	}
	if cues[2].End != 9*time.Second {
		t.Errorf("last cue ends at %v, want 9s", cues[2].End)
	}
	for i := 1; i < len(cues); i++ {
		if cues[i].Start != cues[i-1].End {
			t.Errorf("cue %d does not abut its predecessor", i)
		}
	}
}

func TestResolveDurationNeverZero(t *testing.T) {
	driver := NewDriver(testConfig(), nil, &fakeMedia{}, nil, nil, zap.NewNop())
	seg := script.Segment{ID: 1, Narration: "short"}

	got := driver.resolveDuration(context.Background(), seg, &tts.Result{AudioPath: "missing.mp3"})
	if got <= 0 {
		t.Fatalf("duration = %v, must be positive", got)
	}
}
