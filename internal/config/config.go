package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`
	JWTSecret   string `env:"JWT_SECRET,required"`

	MediaServerURL string `env:"MEDIA_SERVER_URL,required"`
	MediaAPIKey    string `env:"MEDIA_API_KEY"`

	MinioEndpoint  string `env:"MINIO_ENDPOINT,required"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY,required"`
	MinioSecretKey string `env:"MINIO_SECRET_KEY,required"`
	MinioBucket    string `env:"MINIO_BUCKET" envDefault:"call-recordings"`
	MinioUseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`

	EnhancerURL string `env:"ENHANCER_URL"`

	RingTimeoutSeconds     int `env:"RING_TIMEOUT_SECONDS" envDefault:"60"`
	RecordingSettleSeconds int `env:"RECORDING_SETTLE_SECONDS" envDefault:"10"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) RingTimeout() time.Duration {
	return time.Duration(c.RingTimeoutSeconds) * time.Second
}

func (c *Config) RecordingSettle() time.Duration {
	return time.Duration(c.RecordingSettleSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	if c.RingTimeoutSeconds <= 0 {
		return fmt.Errorf("RING_TIMEOUT_SECONDS must be positive")
	}
	if c.RecordingSettleSeconds < 0 {
		return fmt.Errorf("RECORDING_SETTLE_SECONDS must not be negative")
	}

	if isProduction {
		if err := validateSecret("JWT_SECRET", c.JWTSecret); err != nil {
			return err
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if !c.MinioUseSSL {
			log.Warn().Msg("MINIO_USE_SSL is false in production: recordings will be uploaded over plaintext")
		}
		if c.MediaAPIKey == "" {
			log.Warn().Msg("MEDIA_API_KEY is empty in production: media server calls are unauthenticated")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
