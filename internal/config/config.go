// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds everything cmd/api needs to wire the service.
type Config struct {
	Addr       string `env:"SOUNDOFF_ADDR" envDefault:":8080"`
	PGDSN      string `env:"SOUNDOFF_PG_DSN"`
	AuthSecret string `env:"SOUNDOFF_AUTH_SECRET"`

	RateBurst  int `env:"SOUNDOFF_RATE_BURST" envDefault:"50"`
	RatePerSec int `env:"SOUNDOFF_RATE_PER_SEC" envDefault:"25"`

	CreateLimit  int           `env:"SOUNDOFF_CREATE_LIMIT" envDefault:"10"`
	CreateWindow time.Duration `env:"SOUNDOFF_CREATE_WINDOW" envDefault:"1h"`
	EditWindow   time.Duration `env:"SOUNDOFF_EDIT_WINDOW" envDefault:"24h"`
	DeleteWindow time.Duration `env:"SOUNDOFF_DELETE_WINDOW" envDefault:"1h"`

	ShutdownTimeout time.Duration `env:"SOUNDOFF_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
