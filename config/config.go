// Package config loads server settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/warp/leave-engine/overtime"
)

type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Settlement SettlementConfig
	S3         S3Config
}

type AppConfig struct {
	Port        int
	LogLevel    string
	CORSOrigins []string
}

type DatabaseConfig struct {
	// Path of the SQLite file. Empty selects the in-memory store.
	Path string
}

type SettlementConfig struct {
	BasePolicy     overtime.BasePolicy
	Reauthorize    overtime.ReauthorizePolicy
	ResyncInterval time.Duration
}

// S3Config enables attachment storage when Endpoint is set.
type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
	PublicURL       string
}

func (c S3Config) Enabled() bool {
	return c.Endpoint != ""
}

// Load reads .env if present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	port, err := strconv.Atoi(getEnv("APP_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid APP_PORT: %w", err)
	}
	cfg.App = AppConfig{
		Port:        port,
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"*"}),
	}

	cfg.Database = DatabaseConfig{
		Path: getEnv("DB_PATH", "./data/leave.db"),
	}

	basePolicy, err := overtime.ParseBasePolicy(getEnv("BASE_POLICY", string(overtime.BaseAdvisory)))
	if err != nil {
		return nil, fmt.Errorf("invalid BASE_POLICY: %w", err)
	}
	reauth, err := overtime.ParseReauthorizePolicy(getEnv("REAUTHORIZE_POLICY", string(overtime.ReauthorizeExplicit)))
	if err != nil {
		return nil, fmt.Errorf("invalid REAUTHORIZE_POLICY: %w", err)
	}
	interval, err := time.ParseDuration(getEnv("RESYNC_INTERVAL", "1h"))
	if err != nil {
		return nil, fmt.Errorf("invalid RESYNC_INTERVAL: %w", err)
	}
	cfg.Settlement = SettlementConfig{
		BasePolicy:     basePolicy,
		Reauthorize:    reauth,
		ResyncInterval: interval,
	}

	useSSL, err := strconv.ParseBool(getEnv("S3_USE_SSL", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid S3_USE_SSL: %w", err)
	}
	cfg.S3 = S3Config{
		Endpoint:        getEnv("S3_ENDPOINT", ""),
		AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
		Bucket:          getEnv("S3_BUCKET", "leave-attachments"),
		UseSSL:          useSSL,
		PublicURL:       getEnv("S3_PUBLIC_URL", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("APP_PORT %d out of range", c.App.Port)
	}
	if c.S3.Enabled() && (c.S3.AccessKeyID == "" || c.S3.SecretAccessKey == "") {
		return fmt.Errorf("S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY are required with S3_ENDPOINT")
	}
	if c.Settlement.ResyncInterval < 0 {
		return fmt.Errorf("RESYNC_INTERVAL must not be negative")
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level. Unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.App.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
