package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"DATA_DIR", "USERS_DB_PATH", "JWT_EXPIRATION", "DEFAULT_MODEL", "NATS_URL", "REDIS_ADDR"} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()
	if cfg.DataDir != "data" {
		t.Fatalf("DataDir = %q", cfg.DataDir)
	}
	if cfg.UsersDBPath != filepath.Join("data", "users.db") {
		t.Fatalf("UsersDBPath = %q", cfg.UsersDBPath)
	}
	if cfg.SessionsDir() != filepath.Join("data", "user_data") {
		t.Fatalf("SessionsDir = %q", cfg.SessionsDir())
	}
	if cfg.JWTExpiration != 24*time.Hour {
		t.Fatalf("JWTExpiration = %v", cfg.JWTExpiration)
	}
	if cfg.DefaultModel != "gpt-3.5-turbo" {
		t.Fatalf("DefaultModel = %q", cfg.DefaultModel)
	}
	if cfg.NATSURL != "" || cfg.RedisAddr != "" {
		t.Fatalf("optional backends should default to disabled")
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("DATA_DIR", "/srv/chat")
	t.Setenv("USERS_DB_PATH", "")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")
	t.Setenv("RATE_LIMIT_REQUESTS", "not-a-number")
	t.Setenv("TRACING_ENABLED", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("ANTHROPIC_BASE_URL", "https://proxy.example/anthropic")

	cfg := FromEnv()
	if cfg.UsersDBPath != filepath.Join("/srv/chat", "users.db") {
		t.Fatalf("UsersDBPath should follow DATA_DIR, got %q", cfg.UsersDBPath)
	}
	if cfg.RateLimitWindow != 30*time.Second {
		t.Fatalf("RateLimitWindow = %v", cfg.RateLimitWindow)
	}
	if cfg.RateLimitRequests != 120 {
		t.Fatalf("invalid int should fall back to default, got %d", cfg.RateLimitRequests)
	}
	if !cfg.TracingEnabled {
		t.Fatalf("TracingEnabled should be true")
	}
	if cfg.AnthropicBaseURL != "https://proxy.example/anthropic" {
		t.Fatalf("AnthropicBaseURL = %q", cfg.AnthropicBaseURL)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("CORSAllowedOrigins = %v", cfg.CORSAllowedOrigins)
	}
}
