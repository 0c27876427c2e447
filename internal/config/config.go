// Package config loads runtime settings from the environment.
// Command-line flags registered by the cli package override these values.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds every tunable of the auction server and its sweeper
type Config struct {
	Port            string
	DatabaseURL     string // empty selects the in-memory store
	LogLevel        string
	SweepInterval   time.Duration // zero disables the background sweeper
	SweepWorkers    int
	MaxBidAttempts  int
	LockTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// Default returns the settings used when nothing is configured
func Default() Config {
	return Config{
		Port:            "8080",
		LogLevel:        "info",
		SweepInterval:   10 * time.Second,
		SweepWorkers:    4,
		MaxBidAttempts:  3,
		LockTimeout:     2 * time.Second,
		RequestTimeout:  5 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// FromEnv loads the configuration from the process environment
func FromEnv() (Config, error) {
	return Load(os.LookupEnv)
}

// Load builds a Config from defaults overlaid with the values lookup finds
func Load(lookup func(key string) (string, bool)) (Config, error) {
	cfg := Default()
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("PORT", &cfg.Port)
	str("DATABASE_URL", &cfg.DatabaseURL)
	str("LOG_LEVEL", &cfg.LogLevel)
	dur("SWEEP_INTERVAL", &cfg.SweepInterval)
	num("SWEEP_WORKERS", &cfg.SweepWorkers)
	num("BID_MAX_ATTEMPTS", &cfg.MaxBidAttempts)
	dur("LOCK_TIMEOUT", &cfg.LockTimeout)
	dur("REQUEST_TIMEOUT", &cfg.RequestTimeout)
	dur("SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate reports settings that cannot work
func (c Config) Validate() error {
	var errs []error
	if _, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Errorf("config: port %q is not numeric", c.Port))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("config: log level: %w", err))
	}
	if c.SweepInterval < 0 {
		errs = append(errs, errors.New("config: sweep interval must not be negative"))
	}
	if c.SweepWorkers < 1 {
		errs = append(errs, errors.New("config: sweep workers must be at least 1"))
	}
	if c.MaxBidAttempts < 1 {
		errs = append(errs, errors.New("config: bid attempts must be at least 1"))
	}
	if c.LockTimeout <= 0 {
		errs = append(errs, errors.New("config: lock timeout must be positive"))
	}
	if c.RequestTimeout < 0 || c.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("config: timeouts must not be negative"))
	}
	return errors.Join(errs...)
}

// Addr is the listen address for the HTTP server
func (c Config) Addr() string {
	return ":" + c.Port
}

// UsesPostgres reports whether a database URL was configured
func (c Config) UsesPostgres() bool {
	return c.DatabaseURL != ""
}
