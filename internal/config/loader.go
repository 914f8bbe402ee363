package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Load reads an optional .env file, then the environment, validates the
// result and ensures the download directory exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	applyLegacyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if err := createDirs(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	return &cfg, nil
}

// applyLegacyEnv honours the variable names the hub clients use natively
// when the MF_ variants are not set.
func applyLegacyEnv(cfg *Config) {
	if _, ok := os.LookupEnv("MF_DOWNLOAD_DIR"); !ok {
		if v := os.Getenv("DEFAULT_DOWNLOAD_PATH"); v != "" {
			cfg.DownloadDir = v
		}
	}
	if _, ok := os.LookupEnv("MF_HUGGINGFACE_ENDPOINT"); !ok {
		if v := os.Getenv("HF_ENDPOINT"); v != "" {
			cfg.HuggingFaceEndpoint = v
		}
	}
	cfg.HuggingFaceEndpoint = strings.TrimRight(cfg.HuggingFaceEndpoint, "/")
	cfg.ModelScopeEndpoint = strings.TrimRight(cfg.ModelScopeEndpoint, "/")
}

func createDirs(cfg *Config) error {
	if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", cfg.DownloadDir, err)
	}
	slog.Debug("directory created or verified", "path", cfg.DownloadDir)
	return nil
}

// SetupLogger configures the global slog logger based on configuration.
// Supports "json" or "text" formats and log levels: debug, info, warn, error.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With("env", cfg.Environment)
	slog.SetDefault(logger)
	return logger
}
