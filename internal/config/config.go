// Package config reads config.json, then overlays .env and the process
// environment on top of it.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	"desacordo-backend/internal/models"
)

// Load reads the json file at path when it exists. envFile may be empty to
// skip the .env overlay.
func Load(ctx context.Context, path, envFile string) (*models.ConfigFile, error) {
	cfg := &models.ConfigFile{}

	if err := readConfigFile(path, cfg); err != nil {
		return nil, err
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	if err := envconfig.Process(ctx, cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := sanitize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readConfigFile(path string, cfg *models.ConfigFile) error {
	configFile, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer configFile.Close()

	bytes, err := io.ReadAll(configFile)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(bytes, cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func sanitize(cfg *models.ConfigFile) error {
	if cfg.JwtSecret == "" {
		return errors.New("JwtSecret is not set")
	}

	if cfg.Port == "" {
		cfg.Port = "3000"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.SqlitePath == "" {
		cfg.SqlitePath = "./database.db"
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = "./public/cdn"
	}
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = 25 << 20
	}
	if cfg.RedisAddress == "" {
		cfg.RedisAddress = "localhost:6379"
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 64 << 10
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = 256
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 20
	}
	if cfg.RateLimitInterval == "" {
		cfg.RateLimitInterval = "5s"
	}

	window, err := time.ParseDuration(cfg.RateLimitInterval)
	if err != nil {
		return fmt.Errorf("RateLimitInterval: %w", err)
	}
	if window <= 0 {
		return fmt.Errorf("RateLimitInterval must be positive, got %s", cfg.RateLimitInterval)
	}
	cfg.RateLimitWindow = window

	return nil
}
