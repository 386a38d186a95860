package config_test

import (
	"log/slog"
	"testing"
	"time"

	"yacut.local/internal/platform/config"
)

func TestConfigLoad_UsesDefaults(t *testing.T) {
	for _, key := range []string{"ADDR", "IDLE_TIMEOUT", "WRITE_TIMEOUT", "STORAGE", "BASE_URL", "UPLOAD_CALL_TIMEOUT", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}

	cfg := config.Load()

	if cfg.Addr != ":8080" {
		t.Fatalf("Addr: got %q, want %q", cfg.Addr, ":8080")
	}
	if cfg.IdleTimeout != 60*time.Second {
		t.Fatalf("IdleTimeout: got %v, want %v", cfg.IdleTimeout, 60*time.Second)
	}
	if cfg.Storage != config.StoragePostgres {
		t.Fatalf("Storage: got %q, want %q", cfg.Storage, config.StoragePostgres)
	}
	if cfg.BaseURL != "" {
		t.Fatalf("BaseURL: got %q, want empty", cfg.BaseURL)
	}
	if cfg.UploadCallTimeout != 30*time.Second {
		t.Fatalf("UploadCallTimeout: got %v, want %v", cfg.UploadCallTimeout, 30*time.Second)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel: got %v, want %v", cfg.LogLevel, slog.LevelInfo)
	}
}

func TestConfigLoad_ReadsEnv(t *testing.T) {
	t.Setenv("ADDR", ":18080")
	t.Setenv("IDLE_TIMEOUT", "2m")
	t.Setenv("STORAGE", "Memory")
	t.Setenv("BASE_URL", "https://ya.cut/")
	t.Setenv("UPLOAD_CALL_TIMEOUT", "3s")
	t.Setenv("LOG_LEVEL", "warning")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("BLOOM_FP_RATE", "2")

	cfg := config.Load()

	if cfg.Addr != ":18080" {
		t.Fatalf("Addr: got %q, want %q", cfg.Addr, ":18080")
	}
	if cfg.IdleTimeout != 2*time.Minute {
		t.Fatalf("IdleTimeout: got %v, want %v", cfg.IdleTimeout, 2*time.Minute)
	}
	if cfg.Storage != config.StorageMemory {
		t.Fatalf("Storage: got %q, want %q", cfg.Storage, config.StorageMemory)
	}
	if cfg.BaseURL != "https://ya.cut" {
		t.Fatalf("BaseURL: got %q, want %q", cfg.BaseURL, "https://ya.cut")
	}
	if cfg.UploadCallTimeout != 3*time.Second {
		t.Fatalf("UploadCallTimeout: got %v, want %v", cfg.UploadCallTimeout, 3*time.Second)
	}
	if cfg.LogLevel != slog.LevelWarn {
		t.Fatalf("LogLevel: got %v, want %v", cfg.LogLevel, slog.LevelWarn)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("KafkaBrokers: got %v", cfg.KafkaBrokers)
	}
	// out of range values keep the default
	if cfg.BloomFPRate != 0.01 {
		t.Fatalf("BloomFPRate: got %v, want %v", cfg.BloomFPRate, 0.01)
	}
}
