// Package config loads process configuration from the environment once at
// startup. The resulting Config is immutable and injected into handlers.
package config

import (
	"fmt"
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the full service configuration.
type Config struct {
	Env     string `envconfig:"PV_ENV" default:"development"`
	Port    string `envconfig:"PORT" default:"8080"`
	BaseURL string `envconfig:"BASE_URL" default:"http://localhost"`

	DatabaseURL string `envconfig:"DATABASE_URL" default:"postgres://postgres:postgres@db:5432/pagevault?sslmode=disable"`

	JWTSecret string        `envconfig:"JWT_SECRET"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"30m"`

	S3 S3Config
}

// S3Config configures the blob store backend (MinIO or any S3-compatible
// endpoint).
type S3Config struct {
	Endpoint  string `envconfig:"S3_ENDPOINT" default:"http://minio:9000"`
	AccessKey string `envconfig:"S3_ACCESS_KEY" default:"minioadmin"`
	SecretKey string `envconfig:"S3_SECRET_KEY" default:"minioadmin"`
	Bucket    string `envconfig:"S3_BUCKET" default:"html-files"`
	Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	PathStyle bool   `envconfig:"S3_PATH_STYLE" default:"true"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if cfg.JWTSecret == "" {
		if cfg.Env == "production" {
			return nil, fmt.Errorf("JWT_SECRET is required in production mode")
		}
		log.Println("WARNING: JWT_SECRET not set. Using default secret. Set JWT_SECRET in production!")
		cfg.JWTSecret = "pagevault-dev-secret-not-for-production-use"
	} else if len(cfg.JWTSecret) < 32 {
		log.Println("WARNING: JWT_SECRET should be at least 32 characters for security")
	}

	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("TOKEN_TTL must be positive, got %s", cfg.TokenTTL)
	}

	return &cfg, nil
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env != "production"
}
