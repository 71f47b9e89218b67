package config

import (
	"errors"
	"fmt"
	"time"
)

// Validate checks the configuration for invalid or missing values.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateFetch(); err != nil {
		return err
	}
	if err := c.validateAutoUpdate(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database.path must be set for the sqlite driver")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("database.dsn must be set for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver: unsupported value %q", c.Database.Driver)
	}
	return nil
}

func (c *Config) validateFetch() error {
	if c.Fetch.Workers < 0 {
		return errors.New("fetch.workers must be zero or positive")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return errors.New("fetch.timeout_seconds must be positive")
	}
	if c.Fetch.PerDomainConcurrency <= 0 {
		return errors.New("fetch.per_domain_concurrency must be positive")
	}
	if c.Fetch.PerDomainDelayMS < 0 {
		return errors.New("fetch.per_domain_delay_ms must be zero or positive")
	}
	return nil
}

func (c *Config) validateAutoUpdate() error {
	if c.AutoUpdate.GlobalIntervalMinutes < 1 {
		return errors.New("auto_update.global_interval_minutes must be at least 1")
	}
	if c.AutoUpdate.TickSeconds <= 0 {
		return errors.New("auto_update.tick_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "auto", "text", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

// GlobalInterval returns the configured default auto-update interval.
func (c *Config) GlobalInterval() time.Duration {
	return time.Duration(c.AutoUpdate.GlobalIntervalMinutes) * time.Minute
}

// TickPeriod returns how often the scheduler advances.
func (c *Config) TickPeriod() time.Duration {
	return time.Duration(c.AutoUpdate.TickSeconds) * time.Second
}

// FetchTimeout returns the HTTP client timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// PerDomainDelay returns the pause between requests to one host.
func (c *Config) PerDomainDelay() time.Duration {
	return time.Duration(c.Fetch.PerDomainDelayMS) * time.Millisecond
}
