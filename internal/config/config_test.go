package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		ListenAddr:       ":8080",
		DBURL:            "postgres://localhost/quadchat",
		JWTSecret:        strings.Repeat("s", 32),
		TokenTTL:         24 * time.Hour,
		RateLimitMax:     10,
		RateLimitWindow:  60 * time.Second,
		MaxMessageLength: 2000,
	}
}

func TestValidate_OK(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidate_MissingDBURL(t *testing.T) {
	cfg := validConfig()
	cfg.DBURL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing db url")
	}
}

func TestValidate_ShortJWTSecret(t *testing.T) {
	cfg := validConfig()
	cfg.JWTSecret = "short"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for short jwt secret")
	}
}

func TestValidate_TLSPairing(t *testing.T) {
	cfg := validConfig()
	cfg.TLSCertPath = "/tmp/cert.pem"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for cert without key")
	}

	cfg.TLSKeyPath = "/tmp/key.pem"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidate_RateLimit(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimitMax = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero rate limit")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	t.Setenv("QUADCHAT_DB_URL", "postgres://localhost/quadchat")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
	if cfg.RateLimitMax != 10 || cfg.RateLimitWindow != 60*time.Second {
		t.Fatalf("rate limit defaults = %d/%v", cfg.RateLimitMax, cfg.RateLimitWindow)
	}
	if cfg.MaxMessageLength != 2000 {
		t.Fatalf("MaxMessageLength = %d, want 2000", cfg.MaxMessageLength)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("QUADCHAT_LISTEN_ADDR", ":9999")
	t.Setenv("QUADCHAT_RATE_LIMIT_MAX", "3")
	t.Setenv("QUADCHAT_RATE_LIMIT_WINDOW", "5s")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Fatalf("ListenAddr = %q, want :9999", cfg.ListenAddr)
	}
	if cfg.RateLimitMax != 3 || cfg.RateLimitWindow != 5*time.Second {
		t.Fatalf("rate limit = %d/%v, want 3/5s", cfg.RateLimitMax, cfg.RateLimitWindow)
	}
}
