package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	Database   Database   `toml:"database" yaml:"database"`
	Server     Server     `toml:"server" yaml:"server"`
	Fetch      Fetch      `toml:"fetch" yaml:"fetch"`
	AutoUpdate AutoUpdate `toml:"auto_update" yaml:"auto_update"`
	Logging    Logging    `toml:"logging" yaml:"logging"`
}

type Database struct {
	Driver string `toml:"driver" yaml:"driver"`
	Path   string `toml:"path" yaml:"path"`
	DSN    string `toml:"dsn" yaml:"dsn"`
}

type Server struct {
	Addr string `toml:"addr" yaml:"addr"`
}

type Fetch struct {
	Workers              int    `toml:"workers" yaml:"workers"`
	TimeoutSeconds       int    `toml:"timeout_seconds" yaml:"timeout_seconds"`
	UserAgent            string `toml:"user_agent" yaml:"user_agent"`
	PerDomainConcurrency int    `toml:"per_domain_concurrency" yaml:"per_domain_concurrency"`
	PerDomainDelayMS     int    `toml:"per_domain_delay_ms" yaml:"per_domain_delay_ms"`
}

type AutoUpdate struct {
	GlobalIntervalMinutes int `toml:"global_interval_minutes" yaml:"global_interval_minutes"`
	TickSeconds           int `toml:"tick_seconds" yaml:"tick_seconds"`
}

type Logging struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// Load builds a Config from defaults, the optional file at path, a .env file
// in the working directory, and FEEDKEEPER_* environment variables, in that
// order. A missing file at path is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return nil, err
		}
		if err := cfg.decodeFile(expanded); err != nil {
			return nil, err
		}
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) decodeFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.NewDecoder(file).Decode(c); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("parse config: %w", err)
		}
	default:
		if err := toml.NewDecoder(file).Decode(c); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	}
	return nil
}

// loadDotEnv populates the process environment from name without overriding
// variables that are already set.
func loadDotEnv(name string) error {
	err := godotenv.Load(name)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", name, err)
}

func (c *Config) applyEnv(getenv func(string) string) error {
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) error {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	setString("FEEDKEEPER_DB_DRIVER", &c.Database.Driver)
	setString("FEEDKEEPER_DB_PATH", &c.Database.Path)
	setString("FEEDKEEPER_DB_DSN", &c.Database.DSN)
	setString("FEEDKEEPER_ADDR", &c.Server.Addr)
	setString("FEEDKEEPER_LOG_LEVEL", &c.Logging.Level)
	setString("FEEDKEEPER_LOG_FORMAT", &c.Logging.Format)
	if err := setInt("FEEDKEEPER_WORKERS", &c.Fetch.Workers); err != nil {
		return err
	}
	return setInt("FEEDKEEPER_GLOBAL_INTERVAL", &c.AutoUpdate.GlobalIntervalMinutes)
}

func (c *Config) normalize() error {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Database.Driver == "sqlite" && c.Database.Path != "" && c.Database.Path != ":memory:" {
		expanded, err := expandPath(c.Database.Path)
		if err != nil {
			return err
		}
		c.Database.Path = expanded
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}
