package main

import (
	"testing"
	"time"
)

func TestGetEnvReturnsValueWhenSet(t *testing.T) {
	const key = "TEST_GETENV_SET"
	const expected = "custom-value"

	t.Setenv(key, expected)

	result := getEnv(key, "fallback")
	if result != expected {
		t.Errorf("expected %q, got %q", expected, result)
	}
}

func TestGetEnvReturnsFallbackWhenUnset(t *testing.T) {
	const key = "TEST_GETENV_UNSET"
	const fallback = "default-value"

	result := getEnv(key, fallback)
	if result != fallback {
		t.Errorf("expected fallback %q, got %q", fallback, result)
	}
}

func TestGetEnvReturnsFallbackWhenEmpty(t *testing.T) {
	const key = "TEST_GETENV_EMPTY"
	const fallback = "default-value"

	t.Setenv(key, "")

	result := getEnv(key, fallback)
	if result != fallback {
		t.Errorf("expected fallback %q for empty env var, got %q", fallback, result)
	}
}

func TestGetEnvInt64(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		fallback int64
		want     int64
	}{
		{"Unset", "", 30, 30},
		{"Valid", "45", 30, 45},
		{"Invalid", "thirty", 30, 30},
		{"Negative", "-1", 30, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_GETENV_INT64", tt.value)
			if got := getEnvInt64("TEST_GETENV_INT64", tt.fallback); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "MAX_UPLOAD_BYTES", "MAX_CLIP_DURATION_SECONDS", "GENERATE_DELAY_SECONDS",
		"OFFERS_ENDPOINT", "OFFERS_TIMEOUT_SECONDS",
	} {
		t.Setenv(key, "")
	}

	cfg := loadConfig()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.MaxUploadBytes != 200*1024*1024 {
		t.Errorf("MaxUploadBytes = %d", cfg.MaxUploadBytes)
	}
	if cfg.MaxDurationSeconds != 30 {
		t.Errorf("MaxDurationSeconds = %d, want 30", cfg.MaxDurationSeconds)
	}
	if cfg.GenerateDelay != 20*time.Second {
		t.Errorf("GenerateDelay = %s, want 20s", cfg.GenerateDelay)
	}
	if cfg.Offers.Endpoint != "" {
		t.Errorf("expected no offers endpoint by default, got %q", cfg.Offers.Endpoint)
	}
	if cfg.Offers.Timeout != 0 {
		t.Errorf("expected no offers timeout by default, got %s", cfg.Offers.Timeout)
	}
}

func TestLoadConfigOffers(t *testing.T) {
	t.Setenv("OFFERS_ENDPOINT", "https://feed.example.com/feed")
	t.Setenv("OFFERS_USER_ID", "538")
	t.Setenv("OFFERS_API_KEY", "secret")
	t.Setenv("OFFERS_TIMEOUT_SECONDS", "8")

	cfg := loadConfig()

	if cfg.Offers.Endpoint != "https://feed.example.com/feed" || cfg.Offers.UserID != "538" || cfg.Offers.APIKey != "secret" {
		t.Errorf("unexpected offers config: %+v", cfg.Offers)
	}
	if cfg.Offers.Timeout != 8*time.Second {
		t.Errorf("Timeout = %s, want 8s", cfg.Offers.Timeout)
	}
}
