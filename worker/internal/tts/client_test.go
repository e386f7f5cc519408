package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"commentary/shared/config"

	"go.uber.org/zap"
)

func TestClientSynthesize(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/synthesize":
			gotAuth = r.Header.Get("Authorization")
			var req synthesisRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode request: %v", err)
			}
			if req.Text != "画面显示主角进入地下室" {
				t.Errorf("unexpected text: %q", req.Text)
			}
			if req.Voice != "zh-CN-YunjianNeural" {
				t.Errorf("unexpected voice: %q", req.Voice)
			}
			json.NewEncoder(w).Encode(synthesisResponse{
				AudioURL:   "/files/out.mp3",
				DurationMs: 8200,
				Marks: []synthesisMark{
					{Text: "画面显示", OffsetMs: 0, DurationMs: 4000},
					{Text: "主角进入地下室", OffsetMs: 4000, DurationMs: 4200},
				},
			})
		case "/files/out.mp3":
			w.Write([]byte("mp3-bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewClient(config.TTSConfig{URL: server.URL, APIKey: "secret"}, zap.NewNop())
	out := filepath.Join(t.TempDir(), "audio_00_00_05_000.mp3")

	result, err := client.Synthesize(context.Background(), Request{
		Text:  "画面显示主角进入地下室",
		Voice: "zh-CN-YunjianNeural",
	}, out)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if result.Duration != 8200*time.Millisecond {
		t.Errorf("Duration = %v, want 8.2s", result.Duration)
	}
	if len(result.Cues) != 2 {
		t.Fatalf("got %d cues, want 2", len(result.Cues))
	}
	if result.Cues[1].Start != 4*time.Second || result.Cues[1].End != 8200*time.Millisecond {
		t.Errorf("second cue timing = %v-%v", result.Cues[1].Start, result.Cues[1].End)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read audio file: %v", err)
	}
	if string(data) != "mp3-bytes" {
		t.Errorf("audio content = %q", data)
	}
}

func TestClientSynthesizeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "voice not found", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(config.TTSConfig{URL: server.URL}, zap.NewNop())
	_, err := client.Synthesize(context.Background(), Request{Text: "hello"}, filepath.Join(t.TempDir(), "a.mp3"))
	if err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
