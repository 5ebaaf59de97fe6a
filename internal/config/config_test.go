package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ChatPort != 6000 {
		t.Errorf("ChatPort = %d, want 6000", cfg.ChatPort)
	}
	if cfg.HealthPort != 8080 {
		t.Errorf("HealthPort = %d, want 8080", cfg.HealthPort)
	}
	if cfg.DatabaseMaxConn != 25 {
		t.Errorf("DatabaseMaxConn = %d, want 25", cfg.DatabaseMaxConn)
	}
	if cfg.RedisDialTimeout != 5*time.Second {
		t.Errorf("RedisDialTimeout = %v, want 5s", cfg.RedisDialTimeout)
	}
	if cfg.IsDevelopment() {
		t.Error("IsDevelopment() = true for default env")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVER_ENV", "development")
	t.Setenv("CHAT_PORT", "7000")
	t.Setenv("REDIS_DIAL_TIMEOUT", "2s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.IsDevelopment() {
		t.Error("IsDevelopment() = false, want true")
	}
	if cfg.ChatPort != 7000 {
		t.Errorf("ChatPort = %d, want 7000", cfg.ChatPort)
	}
	if cfg.RedisDialTimeout != 2*time.Second {
		t.Errorf("RedisDialTimeout = %v, want 2s", cfg.RedisDialTimeout)
	}
}

func TestLoadInvalidInteger(t *testing.T) {
	t.Setenv("CHAT_PORT", "not-a-number")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for invalid CHAT_PORT, got nil")
	}
	if !strings.Contains(err.Error(), "CHAT_PORT") {
		t.Errorf("error %q does not mention CHAT_PORT", err)
	}
}

func TestLoadCollectsMultipleErrors(t *testing.T) {
	t.Setenv("CHAT_PORT", "abc")
	t.Setenv("DATABASE_MAX_CONNS", "xyz")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error, got nil")
	}
	for _, key := range []string{"CHAT_PORT", "DATABASE_MAX_CONNS"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not mention %s", err, key)
		}
	}
}

func TestValidatePortCollision(t *testing.T) {
	t.Setenv("CHAT_PORT", "8080")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for colliding ports, got nil")
	}
}

func TestValidateConnBounds(t *testing.T) {
	t.Setenv("DATABASE_MIN_CONNS", "50")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for min > max conns, got nil")
	}
}
