package service

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"commentary/api/internal/database"
	"commentary/api/internal/models"
	"commentary/api/internal/storage"
)

// SettingsService handles settings-related operations.
type SettingsService struct {
	db      *database.DB
	storage storage.ObjectStorage
}

// NewSettingsService creates a new settings service.
func NewSettingsService(db *database.DB, store storage.ObjectStorage) *SettingsService {
	return &SettingsService{db: db, storage: store}
}

// GetSettings retrieves all settings from the database, layered over defaults.
func (s *SettingsService) GetSettings(ctx context.Context) (*models.Settings, error) {
	query := `SELECT category, key, value FROM settings`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	settings := &models.Settings{
		TTS: models.TTSSettings{
			Voice: "zh-CN-YunjianNeural",
		},
		Render: models.RenderSettings{
			Width:           1920,
			Height:          1080,
			FPS:             30,
			OriginalVolume:  0.7,
			NarrationVolume: 1.0,
			BGMVolume:       0.3,
		},
		Subtitle: models.SubtitleSettings{
			Enabled:  true,
			FontName: "Arial",
			FontSize: 48,
			Position: "bottom",
		},
	}

	for rows.Next() {
		var category, key, value string
		if err := rows.Scan(&category, &key, &value); err != nil {
			continue
		}
		s.applySettingValue(settings, category, key, value)
	}

	return settings, nil
}

// applySettingValue applies a single setting value to the settings struct.
func (s *SettingsService) applySettingValue(settings *models.Settings, category, key, value string) {
	switch category {
	case "tts":
		switch key {
		case "service_url":
			settings.TTS.ServiceURL = value
		case "api_key":
			settings.TTS.APIKey = value
		case "voice":
			settings.TTS.Voice = value
		case "rate":
			settings.TTS.Rate = value
		case "pitch":
			settings.TTS.Pitch = value
		}
	case "render":
		switch key {
		case "width":
			if n, err := strconv.Atoi(value); err == nil {
				settings.Render.Width = n
			}
		case "height":
			if n, err := strconv.Atoi(value); err == nil {
				settings.Render.Height = n
			}
		case "fps":
			if n, err := strconv.Atoi(value); err == nil {
				settings.Render.FPS = n
			}
		case "original_volume":
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				settings.Render.OriginalVolume = f
			}
		case "narration_volume":
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				settings.Render.NarrationVolume = f
			}
		case "bgm_volume":
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				settings.Render.BGMVolume = f
			}
		case "best_effort":
			settings.Render.BestEffort = value == "true"
		}
	case "subtitle":
		switch key {
		case "enabled":
			settings.Subtitle.Enabled = value == "true"
		case "font_name":
			settings.Subtitle.FontName = value
		case "font_size":
			if n, err := strconv.Atoi(value); err == nil {
				settings.Subtitle.FontSize = n
			}
		case "position":
			settings.Subtitle.Position = value
		}
	}
}

// UpdateSettings updates settings in the database.
func (s *SettingsService) UpdateSettings(ctx context.Context, req *models.SettingsUpdateRequest) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if req.TTS != nil {
		if err := s.upsertSetting(ctx, tx, "tts", "service_url", req.TTS.ServiceURL, false); err != nil {
			return err
		}
		if err := s.upsertSetting(ctx, tx, "tts", "api_key", req.TTS.APIKey, true); err != nil {
			return err
		}
		if err := s.upsertSetting(ctx, tx, "tts", "voice", req.TTS.Voice, false); err != nil {
			return err
		}
		if err := s.upsertSetting(ctx, tx, "tts", "rate", req.TTS.Rate, false); err != nil {
			return err
		}
		if err := s.upsertSetting(ctx, tx, "tts", "pitch", req.TTS.Pitch, false); err != nil {
			return err
		}
	}

	if req.Render != nil {
		if err := s.upsertSetting(ctx, tx, "render", "width", strconv.Itoa(req.Render.Width), false); err != nil {
			return err
		}
		if err := s.upsertSetting(ctx, tx, "render", "height", strconv.Itoa(req.Render.Height), false); err != nil {
			return err
		}
		if err := s.upsertSetting(ctx, tx, "render", "fps", strconv.Itoa(req.Render.FPS), false); err != nil {
			return err
		}
		if err := s.upsertSetting(ctx, tx, "render", "original_volume", formatFloat(req.Render.OriginalVolume), false); err != nil {
			return err
		}
		if err := s.upsertSetting(ctx, tx, "render", "narration_volume", formatFloat(req.Render.NarrationVolume), false); err != nil {
			return err
		}
		if err := s.upsertSetting(ctx, tx, "render", "bgm_volume", formatFloat(req.Render.BGMVolume), false); err != nil {
			return err
		}
		if err := s.upsertSetting(ctx, tx, "render", "best_effort", strconv.FormatBool(req.Render.BestEffort), false); err != nil {
			return err
		}
	}

	if req.Subtitle != nil {
		if err := s.upsertSetting(ctx, tx, "subtitle", "enabled", strconv.FormatBool(req.Subtitle.Enabled), false); err != nil {
			return err
		}
		if err := s.upsertSetting(ctx, tx, "subtitle", "font_name", req.Subtitle.FontName, false); err != nil {
			return err
		}
		if err := s.upsertSetting(ctx, tx, "subtitle", "font_size", strconv.Itoa(req.Subtitle.FontSize), false); err != nil {
			return err
		}
		if err := s.upsertSetting(ctx, tx, "subtitle", "position", req.Subtitle.Position, false); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// upsertSetting inserts or updates a single setting.
func (s *SettingsService) upsertSetting(ctx context.Context, tx *sql.Tx, category, key, value string, isSensitive bool) error {
	query := `
		INSERT INTO settings (category, key, value, is_encrypted, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (category, key) DO UPDATE
		SET value = EXCLUDED.value, is_encrypted = EXCLUDED.is_encrypted, updated_at = EXCLUDED.updated_at
	`
	_, err := tx.ExecContext(ctx, query, category, key, value, isSensitive, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert setting %s.%s: %w", category, key, err)
	}
	return nil
}

// TestConnection tests the connection to a service.
func (s *SettingsService) TestConnection(ctx context.Context, serviceType string) (*models.TestConnectionResponse, error) {
	settings, err := s.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	switch serviceType {
	case "tts":
		return s.testTTSConnection(ctx, settings)
	case "storage":
		return s.testStorageConnection(ctx)
	default:
		return &models.TestConnectionResponse{
			Status:  "failed",
			Message: "未知的服务类型",
		}, nil
	}
}

// testTTSConnection tests the narration synthesis service connection.
func (s *SettingsService) testTTSConnection(ctx context.Context, settings *models.Settings) (*models.TestConnectionResponse, error) {
	if settings.TTS.ServiceURL == "" {
		return &models.TestConnectionResponse{
			Status:  "failed",
			Message: "TTS 服务地址未配置",
		}, nil
	}

	start := time.Now()
	client := &http.Client{Timeout: 10 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, settings.TTS.ServiceURL+"/health", nil)
	if err != nil {
		return &models.TestConnectionResponse{
			Status:  "failed",
			Message: "创建 HTTP 请求失败: " + err.Error(),
		}, nil
	}
	if settings.TTS.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+settings.TTS.APIKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return &models.TestConnectionResponse{
			Status:  "failed",
			Message: "网络连接失败: " + err.Error(),
		}, nil
	}
	defer resp.Body.Close()

	latency := time.Since(start).Milliseconds()

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return &models.TestConnectionResponse{
			Status:    "connected",
			Message:   "TTS 服务连接成功",
			LatencyMs: latency,
		}, nil
	}
	return &models.TestConnectionResponse{
		Status:    "failed",
		Message:   fmt.Sprintf("TTS 服务返回状态码 %d", resp.StatusCode),
		LatencyMs: latency,
	}, nil
}

// testStorageConnection validates the signing path of the object storage.
func (s *SettingsService) testStorageConnection(ctx context.Context) (*models.TestConnectionResponse, error) {
	start := time.Now()
	// Signing a URL for a non-existing object still exercises credentials
	// and endpoint configuration.
	if _, err := s.storage.PresignedGetURL(ctx, "__connection_test__/probe.txt", 10*time.Minute); err != nil {
		return &models.TestConnectionResponse{
			Status:  "failed",
			Message: "签名URL生成失败: " + err.Error(),
		}, nil
	}
	return &models.TestConnectionResponse{
		Status:    "connected",
		Message:   "对象存储配置可用（签名URL生成成功）",
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// GetSettingValue retrieves a single setting value.
func (s *SettingsService) GetSettingValue(ctx context.Context, category, key string) (string, error) {
	query := `SELECT value FROM settings WHERE category = $1 AND key = $2`
	var value string
	err := s.db.QueryRowContext(ctx, query, category, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting: %w", err)
	}
	return value, nil
}
