package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"commentary/shared/config"
	"commentary/worker/internal/subtitle"

	"go.uber.org/zap"
)

// Client calls the TTS service API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

type synthesisRequest struct {
	Text         string `json:"text"`
	Voice        string `json:"voice"`
	Rate         string `json:"rate,omitempty"`
	Pitch        string `json:"pitch,omitempty"`
	OutputFormat string `json:"output_format"`
	WordMarks    bool   `json:"word_marks"`
}

type synthesisResponse struct {
	AudioURL   string          `json:"audio_url"`
	DurationMs int             `json:"duration_ms"`
	Format     string          `json:"format"`
	Marks      []synthesisMark `json:"marks"`
}

// synthesisMark is one timed span of synthesized speech.
type synthesisMark struct {
	Text       string `json:"text"`
	OffsetMs   int    `json:"offset_ms"`
	DurationMs int    `json:"duration_ms"`
}

// NewClient creates a TTS client from service configuration.
func NewClient(cfg config.TTSConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		client: &http.Client{
			Timeout: 600 * time.Second, // long narrations can take a while
		},
		logger: logger,
	}
}

// Synthesize requests narration audio for one line, downloads it to
// outputPath and returns the realized duration with any timing marks the
// service reports. Transient HTTP failures are retried by the caller.
func (c *Client) Synthesize(ctx context.Context, req Request, outputPath string) (*Result, error) {
	body, err := json.Marshal(synthesisRequest{
		Text:         req.Text,
		Voice:        req.Voice,
		Rate:         req.Rate,
		Pitch:        req.Pitch,
		OutputFormat: "mp3",
		WordMarks:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/synthesize"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call TTS API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("TTS API returned status %d: %s", resp.StatusCode, string(payload))
	}

	var apiResp synthesisResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if apiResp.AudioURL == "" {
		return nil, fmt.Errorf("TTS API response missing audio_url")
	}

	if err := c.download(ctx, apiResp.AudioURL, outputPath); err != nil {
		return nil, err
	}

	result := &Result{
		AudioPath: outputPath,
		Duration:  time.Duration(apiResp.DurationMs) * time.Millisecond,
	}
	for i, mark := range apiResp.Marks {
		result.Cues = append(result.Cues, subtitle.Cue{
			Index: i + 1,
			Start: time.Duration(mark.OffsetMs) * time.Millisecond,
			End:   time.Duration(mark.OffsetMs+mark.DurationMs) * time.Millisecond,
			Text:  mark.Text,
		})
	}
	return result, nil
}

func (c *Client) download(ctx context.Context, audioURL, outputPath string) error {
	if strings.HasPrefix(audioURL, "/") {
		audioURL = c.baseURL + audioURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create audio request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download audio: status %d", resp.StatusCode)
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create audio file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, resp.Body); err != nil {
		os.Remove(outputPath)
		return fmt.Errorf("failed to write audio file: %w", err)
	}
	return nil
}
