package config

import (
	"log/slog"
	"testing"
	"time"
)

var allEnvVars = []string{
	"SG_DATABASE_URL", "SG_MEMORY", "SG_GRPC_ADDR", "SG_HTTP_ADDR", "SG_NATS_URL",
	"SG_AUTH_TOKEN", "SG_SEED_FILE", "SG_LOG_LEVEL",
	"SG_SYNC_INTERVAL", "SG_SYNC_S3_BUCKET", "SG_SYNC_S3_ENDPOINT",
	"SG_SYNC_S3_REGION", "SG_SYNC_S3_KEY",
}

func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, key := range allEnvVars {
		t.Setenv(key, "")
	}
}

func TestLoad(t *testing.T) {
	for _, tc := range []struct {
		name         string
		env          map[string]string
		wantErr      bool
		wantGRPCAddr string
		wantHTTPAddr string
		wantNATSURL  string
		wantMemory   bool
	}{
		{
			name:         "DefaultAddresses",
			env:          map[string]string{"SG_DATABASE_URL": "postgres://localhost/stagegate"},
			wantGRPCAddr: ":9090",
			wantHTTPAddr: ":8080",
		},
		{
			name: "CustomAddresses",
			env: map[string]string{
				"SG_DATABASE_URL": "postgres://db:5432/stagegate",
				"SG_GRPC_ADDR":    ":5050",
				"SG_HTTP_ADDR":    ":3000",
				"SG_NATS_URL":     "nats://localhost:4222",
			},
			wantGRPCAddr: ":5050",
			wantHTTPAddr: ":3000",
			wantNATSURL:  "nats://localhost:4222",
		},
		{
			name:         "Memory",
			env:          map[string]string{"SG_MEMORY": "true"},
			wantGRPCAddr: ":9090",
			wantHTTPAddr: ":8080",
			wantMemory:   true,
		},
		{
			name:    "InvalidMemory",
			env:     map[string]string{"SG_MEMORY": "sometimes"},
			wantErr: true,
		},
		{
			name:    "InvalidLogLevel",
			env:     map[string]string{"SG_LOG_LEVEL": "chatty"},
			wantErr: true,
		},
		{
			name:    "InvalidInterval",
			env:     map[string]string{"SG_SYNC_INTERVAL": "not-a-duration"},
			wantErr: true,
		},
		{
			name:    "NegativeInterval",
			env:     map[string]string{"SG_SYNC_INTERVAL": "-1m"},
			wantErr: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearAllEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.DatabaseURL != tc.env["SG_DATABASE_URL"] {
				t.Errorf("DatabaseURL = %q, want %q", cfg.DatabaseURL, tc.env["SG_DATABASE_URL"])
			}
			if cfg.GRPCAddr != tc.wantGRPCAddr {
				t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, tc.wantGRPCAddr)
			}
			if cfg.HTTPAddr != tc.wantHTTPAddr {
				t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, tc.wantHTTPAddr)
			}
			if cfg.NATSURL != tc.wantNATSURL {
				t.Errorf("NATSURL = %q, want %q", cfg.NATSURL, tc.wantNATSURL)
			}
			if cfg.Memory != tc.wantMemory {
				t.Errorf("Memory = %v, want %v", cfg.Memory, tc.wantMemory)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	clearAllEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SyncInterval != 15*time.Minute {
		t.Errorf("SyncInterval = %v, want 15m", cfg.SyncInterval)
	}
	if cfg.SyncS3Region != "us-east-1" {
		t.Errorf("SyncS3Region = %q, want %q", cfg.SyncS3Region, "us-east-1")
	}
	if cfg.SyncS3Key != "stagegate/evaluations.jsonl" {
		t.Errorf("SyncS3Key = %q", cfg.SyncS3Key)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
	if cfg.SyncEnabled() {
		t.Error("sync enabled without a bucket")
	}
}

func TestLoadCustom(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("SG_SYNC_INTERVAL", "10m")
	t.Setenv("SG_SYNC_S3_BUCKET", "audit")
	t.Setenv("SG_SYNC_S3_ENDPOINT", "http://minio:9000")
	t.Setenv("SG_SYNC_S3_REGION", "eu-west-1")
	t.Setenv("SG_SYNC_S3_KEY", "custom/key.jsonl")
	t.Setenv("SG_SEED_FILE", "/etc/stagegate/gates.toml")
	t.Setenv("SG_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SyncInterval != 10*time.Minute || !cfg.SyncEnabled() {
		t.Errorf("SyncInterval = %v, enabled = %v", cfg.SyncInterval, cfg.SyncEnabled())
	}
	if cfg.SyncS3Bucket != "audit" || cfg.SyncS3Endpoint != "http://minio:9000" {
		t.Errorf("bucket/endpoint = %q %q", cfg.SyncS3Bucket, cfg.SyncS3Endpoint)
	}
	if cfg.SyncS3Region != "eu-west-1" || cfg.SyncS3Key != "custom/key.jsonl" {
		t.Errorf("region/key = %q %q", cfg.SyncS3Region, cfg.SyncS3Key)
	}
	if cfg.SeedFile != "/etc/stagegate/gates.toml" {
		t.Errorf("SeedFile = %q", cfg.SeedFile)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}
}

func TestLoadSyncDisabled(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("SG_SYNC_INTERVAL", "0s")
	t.Setenv("SG_SYNC_S3_BUCKET", "audit")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SyncInterval != 0 || cfg.SyncEnabled() {
		t.Errorf("SyncInterval = %v, want 0 (disabled)", cfg.SyncInterval)
	}
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"MissingDatabaseURL", Config{}, true},
		{"DatabaseURL", Config{DatabaseURL: "postgres://localhost/stagegate"}, false},
		{"Memory", Config{Memory: true}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.cfg.Validate(); (err != nil) != tc.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestEnvOrDefault(t *testing.T) {
	for _, tc := range []struct {
		name     string
		key      string
		envVal   string
		fallback string
		want     string
	}{
		{"EmptyUsesDefault", "TEST_ENVDEFAULT_EMPTY", "", "default-val", "default-val"},
		{"SetUsesEnv", "TEST_ENVDEFAULT_SET", "custom", "default-val", "custom"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.envVal)
			got := envOrDefault(tc.key, tc.fallback)
			if got != tc.want {
				t.Errorf("envOrDefault(%q, %q) = %q, want %q", tc.key, tc.fallback, got, tc.want)
			}
		})
	}
}
