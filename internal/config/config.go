// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the runtime settings of the onboarding server.
type Config struct {
	Port        int    `env:"PORT"         envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL" envDefault:"file:onboarding.db"`

	SaveDebounce time.Duration `env:"ONBOARDING_SAVE_DEBOUNCE" envDefault:"2s"`
	ToastTTL     time.Duration `env:"ONBOARDING_TOAST_TTL"     envDefault:"3s"`

	SessionMaxAge      time.Duration `env:"ONBOARDING_SESSION_MAX_AGE"      envDefault:"24h"`
	SessionIdleTimeout time.Duration `env:"ONBOARDING_SESSION_IDLE_TIMEOUT" envDefault:"30m"`
	SessionSweep       time.Duration `env:"ONBOARDING_SESSION_SWEEP"        envDefault:"1m"`

	EventBuffer int `env:"ONBOARDING_EVENT_BUFFER"   envDefault:"256"`
	ActivityCap int `env:"ONBOARDING_ACTIVITY_RETAIN" envDefault:"500"`
}

// Load reads Config from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("PORT %d out of range", c.Port)
	case c.SaveDebounce <= 0:
		return fmt.Errorf("ONBOARDING_SAVE_DEBOUNCE must be positive")
	case c.ToastTTL <= 0:
		return fmt.Errorf("ONBOARDING_TOAST_TTL must be positive")
	case c.SessionSweep <= 0:
		return fmt.Errorf("ONBOARDING_SESSION_SWEEP must be positive")
	case c.EventBuffer <= 0:
		return fmt.Errorf("ONBOARDING_EVENT_BUFFER must be positive")
	}
	return nil
}

// Addr is the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
