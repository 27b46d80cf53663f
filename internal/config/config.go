package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	GeminiAPIKey string `yaml:"gemini_api_key" env:"GEMINI_API_KEY"`
	// LegacyAPIKey is read from API_KEY when GEMINI_API_KEY is unset.
	LegacyAPIKey string `yaml:"-" env:"API_KEY"`

	ChatModel     string `yaml:"chat_model" env:"ADVENTURE_CHAT_MODEL"`
	ImageModel    string `yaml:"image_model" env:"ADVENTURE_IMAGE_MODEL"`
	ImageEndpoint string `yaml:"image_endpoint" env:"ADVENTURE_IMAGE_ENDPOINT"`
	// ImageDir, when set, receives a copy of every published scene image.
	ImageDir string `yaml:"image_dir" env:"ADVENTURE_IMAGE_DIR"`
	SaveDir  string `yaml:"save_dir" env:"ADVENTURE_SAVE_DIR"`

	LogFile  string `yaml:"log_file" env:"ADVENTURE_LOG_FILE"`
	LogLevel string `yaml:"log_level" env:"ADVENTURE_LOG_LEVEL"`

	LenientPayloads bool `yaml:"lenient_payloads" env:"ADVENTURE_LENIENT_PAYLOADS"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		ChatModel:     "gemini-2.5-flash",
		ImageModel:    "imagen-3.0-generate-002",
		ImageEndpoint: "https://generativelanguage.googleapis.com/v1beta",
		SaveDir:       ".saves",
		LogFile:       "textadventure.log",
		LogLevel:      "info",
	}
}

// LoadConfig builds the configuration from defaults, then the YAML file at
// path (if path is non-empty), then environment variables.
//
// A missing API key is not an error here; the session reports it when it
// tries to start a conversation.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file %s does not exist", path)
		}
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.GeminiAPIKey == "" {
		cfg.GeminiAPIKey = cfg.LegacyAPIKey
	}
	return cfg, nil
}
