package config

import (
	"fmt"

	sharedconfig "commentary/shared/config"
)

// Aliases for shared configuration structures to keep existing references intact.
type DatabaseConfig = sharedconfig.DatabaseConfig
type MinIOConfig = sharedconfig.MinIOConfig
type RabbitMQConfig = sharedconfig.RabbitMQConfig
type TTSConfig = sharedconfig.TTSConfig

// Config holds all configuration for the API service.
type Config struct {
	sharedconfig.BaseConfig
	Server ServerConfig
	Upload UploadConfig
}

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	Host string
	Port int
}

// UploadConfig bounds accepted multipart uploads.
type UploadConfig struct {
	MaxVideoBytes  int64
	MaxScriptBytes int64
}

// Load reads API configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}

	loader := sharedconfig.NewLoader(
		sharedconfig.WithDefaults(map[string]interface{}{
			"API_HOST": "0.0.0.0",
			"API_PORT": 8080,

			"UPLOAD_MAX_VIDEO_MB":  2048,
			"UPLOAD_MAX_SCRIPT_KB": 512,
		}),
		sharedconfig.WithMinIOPublicFallback(),
	)

	v := loader.Viper()
	base, err := loader.Load()
	if err != nil {
		return nil, err
	}
	cfg.BaseConfig = *base

	cfg.Server = ServerConfig{
		Host: v.GetString("API_HOST"),
		Port: v.GetInt("API_PORT"),
	}
	cfg.Upload = UploadConfig{
		MaxVideoBytes:  v.GetInt64("UPLOAD_MAX_VIDEO_MB") << 20,
		MaxScriptBytes: v.GetInt64("UPLOAD_MAX_SCRIPT_KB") << 10,
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("invalid API_PORT %d", cfg.Server.Port)
	}
	return cfg, nil
}
