// Package config reads dashboard settings from MOBILITY_* environment
// variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const Prefix = "MOBILITY"

// Config holds all settings for the CLI and the dashboard server.
type Config struct {
	Source            string        `envconfig:"SOURCE" default:"data/buenosaires.csv"`
	Addr              string        `envconfig:"ADDR" default:":8080"`
	LoadTimeout       time.Duration `envconfig:"LOAD_TIMEOUT" default:"30s"`
	FetchMaxElapsed   time.Duration `envconfig:"FETCH_MAX_ELAPSED" default:"2m"`
	ShutdownTimeout   time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat         string        `envconfig:"LOG_FORMAT" default:"json"`
	DefaultLocalities string        `envconfig:"DEFAULT_LOCALITIES" default:"Mercedes, Buenos Aires;Distrito Federal, Ciudad de Buenos Aires"`
	FTPUser           string        `envconfig:"FTP_USER" default:"anonymous"`
	FTPPassword       string        `envconfig:"FTP_PASSWORD" default:"anonymous"`
}

// LoadEnvFile sets variables from a .env file without overriding ones
// already in the environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads the environment, applying defaults where unset.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Source) == "" {
		return errors.New("MOBILITY_SOURCE is required")
	}
	if c.LoadTimeout <= 0 {
		return errors.New("MOBILITY_LOAD_TIMEOUT must be positive")
	}
	if c.FetchMaxElapsed <= 0 {
		return errors.New("MOBILITY_FETCH_MAX_ELAPSED must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("MOBILITY_SHUTDOWN_TIMEOUT must be positive")
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("MOBILITY_LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	return nil
}

// Localities splits DefaultLocalities on ";". Locality keys contain
// commas, so the envconfig list syntax cannot be used.
func (c *Config) Localities() []string {
	return SplitLocalities(c.DefaultLocalities)
}

func SplitLocalities(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
