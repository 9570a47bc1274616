// Package config loads the chessarchive YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/freeeve/chessarchive/internal/chunk"
)

// DefaultPath is read when no --config flag is given. It is optional.
const DefaultPath = "chessarchive.yaml"

// Environment overrides. Flags override env, env overrides the file.
const (
	EnvDataDir   = "CHESSARCHIVE_DATA_DIR"
	EnvRemote    = "CHESSARCHIVE_REMOTE"
	EnvRatingMin = "CHESSARCHIVE_RATING_MIN"
	EnvLogLevel  = "CHESSARCHIVE_LOG_LEVEL"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config holds all chessarchive configuration.
type Config struct {
	DataDir        string   `yaml:"data_dir"`
	ChunkSize      int      `yaml:"chunk_size"`
	ECODir         string   `yaml:"eco_dir"`
	RatingMin      int      `yaml:"rating_min"`
	Remote         string   `yaml:"remote"`
	RemoteRegion   string   `yaml:"remote_region"`
	RemoteEndpoint string   `yaml:"remote_endpoint"`
	Fetch          Fetch    `yaml:"fetch"`
	Sources        []Source `yaml:"sources"`
	LogLevel       string   `yaml:"log_level"`
}

// Fetch controls upstream downloads.
type Fetch struct {
	Delay            time.Duration `yaml:"delay"`
	Timeout          time.Duration `yaml:"timeout"`
	CheckpointEvery  int           `yaml:"checkpoint_every"`
	ProbeConcurrency int           `yaml:"probe_concurrency"`
	UserAgent        string        `yaml:"user_agent"`
	MaxRetries       int           `yaml:"max_retries"`
}

// Source is one named upstream and its file URLs.
type Source struct {
	Name  string   `yaml:"name"`
	Files []string `yaml:"files"`
}

// Default returns a config with every default applied. Fields where zero is
// a valid setting (delay, max_retries) are only defaulted here, so an
// explicit 0 in the file is kept.
func Default() *Config {
	c := &Config{
		Fetch: Fetch{
			Delay:      2 * time.Second,
			MaxRetries: 3,
		},
	}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = chunk.DefaultCapacity
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = 60 * time.Second
	}
	if c.Fetch.CheckpointEvery <= 0 {
		c.Fetch.CheckpointEvery = 5
	}
	if c.Fetch.ProbeConcurrency <= 0 {
		c.Fetch.ProbeConcurrency = 8
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "chessarchive/1.0"
	}
}

// Load decodes path over the defaults, applies env overrides, and validates.
// A missing file is only an error when required is set.
func Load(path string, required bool) (*Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !required:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := c.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv(EnvDataDir); v != "" {
		c.DataDir = v
	}
	if v := getenv(EnvRemote); v != "" {
		c.Remote = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := getenv(EnvRatingMin); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalid, EnvRatingMin, v)
		}
		c.RatingMin = n
	}
	return nil
}

// Validate checks the config after defaults are applied.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalid, c.ChunkSize)
	}
	if c.RatingMin < 0 {
		return fmt.Errorf("%w: rating_min must not be negative", ErrInvalid)
	}
	if c.Fetch.Delay < 0 || c.Fetch.Timeout < 0 {
		return fmt.Errorf("%w: fetch delay and timeout must not be negative", ErrInvalid)
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("%w: fetch max_retries must not be negative", ErrInvalid)
	}
	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if s.Name == "" {
			return fmt.Errorf("%w: source %d has no name", ErrInvalid, i)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: duplicate source %q", ErrInvalid, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}
