// Package config provides configuration management functionality.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/aristath/oracle-portfolio/internal/reliability"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Defaults
const (
	DefaultDataDir          = "./data"
	DefaultPort             = 8002
	DefaultSnapshotSchedule = "0 0 3 * * *" // Every day at 03:00
	DefaultRetention        = 30
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	SeedFile string // Optional export document imported when the registry is empty

	SnapshotSchedule  string // Six-field cron expression, seconds first
	SnapshotRetention int    // Local snapshots kept, 0 keeps all

	S3              reliability.S3Config
	S3RetentionDays int // Age after which off-site copies are deleted
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir, err := filepath.Abs(getEnv("ORACLE_DATA_DIR", DefaultDataDir))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	var errs []error
	cfg := &Config{
		DataDir:           dataDir,
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		Port:              getEnvAsInt("ORACLE_PORT", DefaultPort, &errs),
		DevMode:           getEnvAsBool("DEV_MODE", false, &errs),
		SeedFile:          getEnv("ORACLE_SEED_FILE", ""),
		SnapshotSchedule:  getEnv("SNAPSHOT_SCHEDULE", DefaultSnapshotSchedule),
		SnapshotRetention: getEnvAsInt("SNAPSHOT_RETENTION", DefaultRetention, &errs),
		S3: reliability.S3Config{
			Bucket:          getEnv("S3_BUCKET", ""),
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			Region:          getEnv("S3_REGION", "auto"),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
		},
		S3RetentionDays: getEnvAsInt("S3_RETENTION_DAYS", DefaultRetention, &errs),
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that values are usable
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.SnapshotRetention < 0 {
		return fmt.Errorf("SNAPSHOT_RETENTION must not be negative")
	}
	if c.S3RetentionDays < 0 {
		return fmt.Errorf("S3_RETENTION_DAYS must not be negative")
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.SnapshotSchedule); err != nil {
		return fmt.Errorf("invalid SNAPSHOT_SCHEDULE %q: %w", c.SnapshotSchedule, err)
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int, errs *[]error) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return intVal
}

func getEnvAsBool(key string, defaultValue bool, errs *[]error) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return boolVal
}
