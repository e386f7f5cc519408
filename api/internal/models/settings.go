package models

import "time"

// SettingRecord represents a single setting record in the database.
type SettingRecord struct {
	ID          string    `json:"id"`
	Category    string    `json:"category"`
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	IsEncrypted bool      `json:"is_encrypted"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Settings represents all application settings grouped by category.
type Settings struct {
	TTS      TTSSettings      `json:"tts"`
	Render   RenderSettings   `json:"render"`
	Subtitle SubtitleSettings `json:"subtitle"`
}

// TTSSettings holds narration synthesis service configuration.
type TTSSettings struct {
	ServiceURL string `json:"service_url"`
	APIKey     string `json:"api_key"`
	Voice      string `json:"voice"`
	Rate       string `json:"rate"`  // relative, e.g. "+10%"
	Pitch      string `json:"pitch"` // relative, e.g. "-2Hz"
}

// RenderSettings holds default render parameters applied to new tasks.
type RenderSettings struct {
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	FPS             int     `json:"fps"`
	OriginalVolume  float64 `json:"original_volume"`
	NarrationVolume float64 `json:"narration_volume"`
	BGMVolume       float64 `json:"bgm_volume"`
	BestEffort      bool    `json:"best_effort"`
}

// SubtitleSettings holds subtitle rendering configuration.
type SubtitleSettings struct {
	Enabled  bool   `json:"enabled"`
	FontName string `json:"font_name"`
	FontSize int    `json:"font_size"`
	Position string `json:"position"` // "top", "center", "bottom" or "NN%"
}

// SettingsUpdateRequest represents a request to update settings.
type SettingsUpdateRequest struct {
	TTS      *TTSSettings      `json:"tts,omitempty"`
	Render   *RenderSettings   `json:"render,omitempty"`
	Subtitle *SubtitleSettings `json:"subtitle,omitempty"`
}

// TestConnectionRequest represents a request to test a service connection.
type TestConnectionRequest struct {
	Type string `json:"type" binding:"required"` // "tts" or "storage"
}

// TestConnectionResponse represents the result of a connection test.
type TestConnectionResponse struct {
	Status    string `json:"status"` // "connected", "failed"
	Message   string `json:"message"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

// MaskSensitive masks sensitive values for display.
func (s *Settings) MaskSensitive() *Settings {
	masked := &Settings{
		TTS: TTSSettings{
			ServiceURL: s.TTS.ServiceURL,
			APIKey:     maskValue(s.TTS.APIKey),
			Voice:      s.TTS.Voice,
			Rate:       s.TTS.Rate,
			Pitch:      s.TTS.Pitch,
		},
		Render:   s.Render,
		Subtitle: s.Subtitle,
	}
	return masked
}

// maskValue masks a sensitive value, showing only first and last 3 characters.
func maskValue(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 8 {
		return "***"
	}
	return value[:3] + "***" + value[len(value)-3:]
}

// HasTTSConfig returns true if TTS settings are configured.
func (s *Settings) HasTTSConfig() bool {
	return s.TTS.ServiceURL != ""
}
