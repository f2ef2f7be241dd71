package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds everything the server needs from the environment.
// Variables are prefixed with QUADCHAT_, e.g. QUADCHAT_DB_URL.
type Config struct {
	ListenAddr  string        `envconfig:"LISTEN_ADDR" default:":8080"`
	DBURL       string        `envconfig:"DB_URL"`
	TLSCertPath string        `envconfig:"TLS_CERT"`
	TLSKeyPath  string        `envconfig:"TLS_KEY"`
	JWTSecret   string        `envconfig:"JWT_SECRET"`
	TokenTTL    time.Duration `envconfig:"TOKEN_TTL" default:"24h"`

	// Message-rate budget per user, shared across all rooms they post in.
	RateLimitMax    int           `envconfig:"RATE_LIMIT_MAX" default:"10"`
	RateLimitWindow time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"60s"`

	MaxMessageLength int `envconfig:"MAX_MESSAGE_LENGTH" default:"2000"`
}

func LoadFromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("quadchat", &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("listen addr is required")
	}
	if c.DBURL == "" {
		return errors.New("db url is required")
	}
	if len(c.JWTSecret) < 32 {
		return errors.New("jwt secret must be at least 32 bytes")
	}
	if c.TokenTTL <= 0 {
		return errors.New("token ttl must be positive")
	}
	if c.RateLimitMax <= 0 || c.RateLimitWindow <= 0 {
		return errors.New("rate limit max and window must be positive")
	}
	if c.MaxMessageLength <= 0 {
		return errors.New("max message length must be positive")
	}
	if (c.TLSCertPath == "") != (c.TLSKeyPath == "") {
		return errors.New("both tls cert and key are required when enabling tls")
	}
	return nil
}
