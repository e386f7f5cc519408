package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

const probeJSON = `{
	"streams": [
		{"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "r_frame_rate": "30/1"},
		{"codec_type": "audio", "codec_name": "aac"}
	],
	"format": {"duration": "12.500"}
}`

// spyRunner records invocations and fakes command output. When
// createOutputs is set, each Run writes a small file at the last argument so
// output validation can succeed.
type spyRunner struct {
	runs          [][]string
	outputCalls   int
	outputPayload string
	createOutputs bool
}

func (s *spyRunner) Run(_ context.Context, name string, args ...string) error {
	s.runs = append(s.runs, append([]string{name}, args...))
	if s.createOutputs && len(args) > 0 {
		_ = os.WriteFile(args[len(args)-1], []byte("data"), 0o644)
	}
	return nil
}

func (s *spyRunner) Output(_ context.Context, _ string, _ ...string) ([]byte, error) {
	s.outputCalls++
	return []byte(s.outputPayload), nil
}

func (s *spyRunner) lastRun() []string {
	if len(s.runs) == 0 {
		return nil
	}
	return s.runs[len(s.runs)-1]
}

func argValue(args []string, flag string) string {
	for i, arg := range args {
		if arg == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func TestParseEncoderList(t *testing.T) {
	out := `Encoders:
 V..... = Video
 ------
 V....D libx264              libx264 H.264 / AVC
 V....D h264_nvenc           NVIDIA NVENC H.264 encoder
 A....D aac                  AAC (Advanced Audio Coding)`

	encoders := parseEncoderList(out)
	if !encoders["libx264"] || !encoders["h264_nvenc"] || !encoders["aac"] {
		t.Fatalf("missing expected encoders: %v", encoders)
	}
	if encoders["Encoders:"] || encoders["="] {
		t.Fatalf("header lines leaked into encoder set: %v", encoders)
	}
}

func TestSelectVideoEncoderPrefersHardware(t *testing.T) {
	spy := &spyRunner{outputPayload: " ------\n V....D h264_qsv qsv\n V....D libx264 x264\n"}
	exec := NewWithRunner(spy, zap.NewNop())

	got := exec.SelectVideoEncoder(context.Background(), nil)
	if got != "h264_qsv" {
		t.Fatalf("SelectVideoEncoder = %q, want h264_qsv", got)
	}
}

func TestEncoderProbeRunsOnce(t *testing.T) {
	spy := &spyRunner{outputPayload: " ------\n V....D libx264 x264\n"}
	exec := NewWithRunner(spy, zap.NewNop())

	ctx := context.Background()
	exec.SelectVideoEncoder(ctx, nil)
	exec.HasEncoder(ctx, "libx264")
	exec.SelectVideoEncoder(ctx, nil)

	if spy.outputCalls != 1 {
		t.Fatalf("encoder probe ran %d times, want 1", spy.outputCalls)
	}
}

func TestExtractClipArgs(t *testing.T) {
	spy := &spyRunner{outputPayload: probeJSON, createOutputs: true}
	exec := NewWithRunner(spy, zap.NewNop())

	out := filepath.Join(t.TempDir(), "clip.mp4")
	err := exec.ExtractClip(context.Background(), ClipOptions{
		Input:    "source.mp4",
		Output:   out,
		Start:    90*time.Second + 500*time.Millisecond,
		Duration: 13 * time.Second,
		Encoder:  "h264_nvenc",
	})
	if err != nil {
		t.Fatalf("ExtractClip: %v", err)
	}

	args := spy.lastRun()
	if got := argValue(args, "-ss"); got != "90.500" {
		t.Errorf("-ss = %q, want 90.500", got)
	}
	if got := argValue(args, "-t"); got != "13.000" {
		t.Errorf("-t = %q, want 13.000", got)
	}
	if got := argValue(args, "-c:v"); got != "h264_nvenc" {
		t.Errorf("-c:v = %q, want h264_nvenc", got)
	}
}

func TestNormalizeClipSilence(t *testing.T) {
	spy := &spyRunner{outputPayload: probeJSON, createOutputs: true}
	exec := NewWithRunner(spy, zap.NewNop())

	out := filepath.Join(t.TempDir(), "norm.mp4")
	err := exec.NormalizeClip(context.Background(), NormalizeOptions{
		Input:   "clip.mp4",
		Output:  out,
		Width:   1920,
		Height:  1080,
		FPS:     30,
		Silence: true,
	})
	if err != nil {
		t.Fatalf("NormalizeClip: %v", err)
	}

	joined := strings.Join(spy.lastRun(), " ")
	if !strings.Contains(joined, "anullsrc=r=44100:cl=stereo") {
		t.Errorf("silent normalize missing anullsrc input: %s", joined)
	}
	if !strings.Contains(joined, "-map 0:v -map 1:a -shortest") {
		t.Errorf("silent normalize missing stream mapping: %s", joined)
	}
	if !strings.Contains(joined, "force_original_aspect_ratio=decrease") {
		t.Errorf("normalize missing letterbox scale: %s", joined)
	}
}

func TestMergeAudioTimelineFilter(t *testing.T) {
	spy := &spyRunner{outputPayload: probeJSON, createOutputs: true}
	exec := NewWithRunner(spy, zap.NewNop())

	out := filepath.Join(t.TempDir(), "audio.wav")
	err := exec.MergeAudioTimeline(context.Background(), MergeAudioOptions{
		Entries: []AudioEntry{
			{Path: "a.mp3", Offset: 0},
			{Path: "b.mp3", Offset: 9500 * time.Millisecond},
		},
		Canvas: 30 * time.Second,
		Output: out,
	})
	if err != nil {
		t.Fatalf("MergeAudioTimeline: %v", err)
	}

	args := spy.lastRun()
	filter := argValue(args, "-filter_complex")
	want := "[1:a]adelay=0|0[d0];[2:a]adelay=9500|9500[d1];[0:a][d0][d1]amix=inputs=3:duration=first:normalize=0[aout]"
	if filter != want {
		t.Errorf("filter = %q, want %q", filter, want)
	}
	if got := argValue(args, "-c:a"); got != "pcm_s16le" {
		t.Errorf("wav output should use pcm_s16le, got %q", got)
	}
}

func TestMuxBuildsThreeLayerMix(t *testing.T) {
	spy := &spyRunner{outputPayload: probeJSON, createOutputs: true}
	exec := NewWithRunner(spy, zap.NewNop())

	out := filepath.Join(t.TempDir(), "final.mp4")
	err := exec.Mux(context.Background(), MuxOptions{
		Video:             "merger.mp4",
		Narration:         "audio.wav",
		BGM:               "bgm.mp3",
		SubtitleASS:       "subs.ass",
		Output:            out,
		KeepOriginalAudio: true,
		OriginalVolume:    0.2,
		NarrationVolume:   1,
		BGMVolume:         0.3,
		Duration:          42 * time.Second,
	})
	if err != nil {
		t.Fatalf("Mux: %v", err)
	}

	args := spy.lastRun()
	filter := argValue(args, "-filter_complex")
	for _, part := range []string{
		"[0:v]ass=subs.ass[vout]",
		"[0:a]volume=0.2[m0]",
		"[1:a]volume=1[m1]",
		"[2:a]volume=0.3[m2]",
		"amix=inputs=3:duration=first:normalize=0[aout]",
	} {
		if !strings.Contains(filter, part) {
			t.Errorf("filter missing %q: %s", part, filter)
		}
	}
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-stream_loop -1 -i bgm.mp3") {
		t.Errorf("bgm should loop: %s", joined)
	}
	if got := argValue(args, "-t"); got != "42.000" {
		t.Errorf("-t = %q, want 42.000", got)
	}
}

func TestMuxWithoutAudioLayers(t *testing.T) {
	spy := &spyRunner{outputPayload: probeJSON, createOutputs: true}
	exec := NewWithRunner(spy, zap.NewNop())

	out := filepath.Join(t.TempDir(), "silent.mp4")
	err := exec.Mux(context.Background(), MuxOptions{
		Video:  "merger.mp4",
		Output: out,
	})
	if err != nil {
		t.Fatalf("Mux: %v", err)
	}

	joined := strings.Join(spy.lastRun(), " ")
	if !strings.Contains(joined, "-an") {
		t.Errorf("mux without audio layers should pass -an: %s", joined)
	}
}

func TestEscapeFilterPath(t *testing.T) {
	got := escapeFilterPath(`C:\work\it's.ass`)
	want := `C\:\\work\\it\'s.ass`
	if got != want {
		t.Errorf("escapeFilterPath = %q, want %q", got, want)
	}
}
