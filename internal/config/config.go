// Package config loads server settings from SG_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL string     // SG_DATABASE_URL (required unless Memory)
	Memory      bool       // SG_MEMORY (default false; in-memory store, nothing persisted)
	GRPCAddr    string     // SG_GRPC_ADDR (default ":9090")
	HTTPAddr    string     // SG_HTTP_ADDR (default ":8080")
	NATSURL     string     // SG_NATS_URL (optional, empty = no bus events)
	AuthToken   string     // SG_AUTH_TOKEN (optional, empty = auth disabled)
	SeedFile    string     // SG_SEED_FILE (optional; TOML or YAML gate definitions applied at startup)
	LogLevel    slog.Level // SG_LOG_LEVEL (default "info")

	// Audit export settings
	SyncInterval   time.Duration // SG_SYNC_INTERVAL (default 15m; 0 = disabled)
	SyncS3Bucket   string        // SG_SYNC_S3_BUCKET (enables S3 when set)
	SyncS3Endpoint string        // SG_SYNC_S3_ENDPOINT (custom endpoint for MinIO)
	SyncS3Region   string        // SG_SYNC_S3_REGION (default "us-east-1")
	SyncS3Key      string        // SG_SYNC_S3_KEY (default "stagegate/evaluations.jsonl")
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:    os.Getenv("SG_DATABASE_URL"),
		GRPCAddr:       envOrDefault("SG_GRPC_ADDR", ":9090"),
		HTTPAddr:       envOrDefault("SG_HTTP_ADDR", ":8080"),
		NATSURL:        os.Getenv("SG_NATS_URL"),
		AuthToken:      os.Getenv("SG_AUTH_TOKEN"),
		SeedFile:       os.Getenv("SG_SEED_FILE"),
		SyncS3Bucket:   os.Getenv("SG_SYNC_S3_BUCKET"),
		SyncS3Endpoint: os.Getenv("SG_SYNC_S3_ENDPOINT"),
		SyncS3Region:   envOrDefault("SG_SYNC_S3_REGION", "us-east-1"),
		SyncS3Key:      envOrDefault("SG_SYNC_S3_KEY", "stagegate/evaluations.jsonl"),
	}

	if v := os.Getenv("SG_MEMORY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("SG_MEMORY: %w", err)
		}
		c.Memory = b
	}

	if err := c.LogLevel.UnmarshalText([]byte(envOrDefault("SG_LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("SG_LOG_LEVEL: %w", err)
	}

	d, err := time.ParseDuration(envOrDefault("SG_SYNC_INTERVAL", "15m"))
	if err != nil {
		return nil, fmt.Errorf("SG_SYNC_INTERVAL: %w", err)
	}
	if d < 0 {
		return nil, fmt.Errorf("SG_SYNC_INTERVAL: must not be negative")
	}
	c.SyncInterval = d

	return c, nil
}

// Validate reports settings that cannot start a server.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" && !c.Memory {
		return fmt.Errorf("SG_DATABASE_URL is required (or run with --memory)")
	}
	return nil
}

// SyncEnabled reports whether the periodic audit export should run.
func (c *Config) SyncEnabled() bool {
	return c.SyncInterval > 0 && c.SyncS3Bucket != ""
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
