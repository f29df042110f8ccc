package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config defines all environment-driven runtime options.
type Config struct {
	Host     string `env:"SASS_HOST" envDefault:"0.0.0.0"`
	Port     int    `env:"SASS_PORT" envDefault:"28100"`
	DataDir  string `env:"SASS_DATA_DIR" envDefault:"./data"`
	LogLevel string `env:"SASS_LOG_LEVEL" envDefault:"info"`

	DatabaseURL string `env:"DATABASE_URL"`

	APIBaseURL   string `env:"SASS_API_BASE_URL" envDefault:"https://api.mercadolibre.com"`
	AuthURL      string `env:"SASS_AUTH_URL" envDefault:"https://auth.mercadolibre.com/authorization"`
	TokenURL     string `env:"SASS_TOKEN_URL" envDefault:"https://api.mercadolibre.com/oauth/token"`
	ClientID     string `env:"SASS_CLIENT_ID"`
	ClientSecret string `env:"SASS_CLIENT_SECRET"`
	SiteID       string `env:"SASS_SITE_ID" envDefault:"MLB"`

	SyncInterval         time.Duration `env:"SASS_SYNC_INTERVAL" envDefault:"5m"`
	PageSize             int           `env:"SASS_PAGE_SIZE" envDefault:"100"`
	MaxOffset            int           `env:"SASS_MAX_OFFSET" envDefault:"100000"`
	MaxConsecutiveErrors int           `env:"SASS_MAX_CONSECUTIVE_ERRORS" envDefault:"5"`
	MaxEmptyPages        int           `env:"SASS_MAX_EMPTY_PAGES" envDefault:"3"`
	PageDelay            time.Duration `env:"SASS_PAGE_DELAY" envDefault:"200ms"`
	RateLimitDelay       time.Duration `env:"SASS_RATE_LIMIT_DELAY" envDefault:"2s"`

	LogRingSize int `env:"SASS_LOG_RING_SIZE" envDefault:"500"`
}

// Load reads .env (if present) and parses environment variables into Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	return cfg, nil
}
