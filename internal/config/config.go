package config

/*
greenlink — finds URLs and domains in source code and checks them for green hosting
Copyright (C) 2025  Pepijn van der Stap <rxtls@vanderstap.info>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package config resolves greenlink settings from defaults, an optional YAML file and
// GREENLINK_* environment variables, in that order. Command-line flags are applied on
// top by the caller.

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/x-stp/greenlink/internal/cache"
	"github.com/x-stp/greenlink/internal/core"
	"github.com/x-stp/greenlink/internal/greencheck"
)

// Store backends.
const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config is the resolved configuration.
type Config struct {
	Store       string
	CacheDir    string
	RedisURL    string
	CacheExpiry time.Duration

	APIURL        string
	LookupTimeout time.Duration
	Workers       int
	RatePerSecond float64

	ListenAddr  string
	MetricsAddr string

	ScanConcurrency int
	MaxFileBytes    int64

	Debug bool
}

type configFile struct {
	Store struct {
		Backend  string        `yaml:"backend"`
		Dir      string        `yaml:"dir"`
		RedisURL string        `yaml:"redis_url"`
		Expiry   time.Duration `yaml:"expiry"`
	} `yaml:"store"`
	Classifier struct {
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout"`
		Workers int           `yaml:"workers"`
		Rate    float64       `yaml:"rate"`
	} `yaml:"classifier"`
	Server struct {
		Listen  string `yaml:"listen"`
		Metrics string `yaml:"metrics"`
	} `yaml:"server"`
	Scan struct {
		Concurrency  int   `yaml:"concurrency"`
		MaxFileBytes int64 `yaml:"max_file_bytes"`
	} `yaml:"scan"`
	Debug bool `yaml:"debug"`
}

// Default returns the built-in configuration. CacheDir is left empty and resolved by
// the file store.
func Default() Config {
	return Config{
		Store:           StoreFile,
		CacheExpiry:     cache.ExpiryWindow,
		APIURL:          greencheck.DefaultBaseURL,
		LookupTimeout:   greencheck.DefaultLookupTimeout,
		Workers:         core.DefaultWorkers,
		ListenAddr:      ":8080",
		ScanConcurrency: core.DefaultScanConcurrency,
		MaxFileBytes:    core.DefaultMaxFileBytes,
	}
}

// Load builds a Config. An empty path skips the file; a named file that does not exist
// is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		var f configFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
		cfg.applyFile(f)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(f configFile) {
	if f.Store.Backend != "" {
		c.Store = f.Store.Backend
	}
	if f.Store.Dir != "" {
		c.CacheDir = f.Store.Dir
	}
	if f.Store.RedisURL != "" {
		c.RedisURL = f.Store.RedisURL
	}
	if f.Store.Expiry > 0 {
		c.CacheExpiry = f.Store.Expiry
	}
	if f.Classifier.BaseURL != "" {
		c.APIURL = f.Classifier.BaseURL
	}
	if f.Classifier.Timeout > 0 {
		c.LookupTimeout = f.Classifier.Timeout
	}
	if f.Classifier.Workers > 0 {
		c.Workers = f.Classifier.Workers
	}
	if f.Classifier.Rate > 0 {
		c.RatePerSecond = f.Classifier.Rate
	}
	if f.Server.Listen != "" {
		c.ListenAddr = f.Server.Listen
	}
	if f.Server.Metrics != "" {
		c.MetricsAddr = f.Server.Metrics
	}
	if f.Scan.Concurrency > 0 {
		c.ScanConcurrency = f.Scan.Concurrency
	}
	if f.Scan.MaxFileBytes > 0 {
		c.MaxFileBytes = f.Scan.MaxFileBytes
	}
	c.Debug = c.Debug || f.Debug
}

func (c *Config) applyEnv() error {
	c.Store = getenv("GREENLINK_STORE", c.Store)
	c.CacheDir = getenv("GREENLINK_CACHE_DIR", c.CacheDir)
	c.RedisURL = getenv("GREENLINK_REDIS_URL", c.RedisURL)
	c.APIURL = getenv("GREENLINK_API_URL", c.APIURL)
	c.ListenAddr = getenv("GREENLINK_LISTEN", c.ListenAddr)
	c.MetricsAddr = getenv("GREENLINK_METRICS_ADDR", c.MetricsAddr)

	var err error
	if c.CacheExpiry, err = envDuration("GREENLINK_CACHE_EXPIRY", c.CacheExpiry); err != nil {
		return err
	}
	if c.LookupTimeout, err = envDuration("GREENLINK_TIMEOUT", c.LookupTimeout); err != nil {
		return err
	}
	if c.Workers, err = envInt("GREENLINK_WORKERS", c.Workers); err != nil {
		return err
	}
	if c.ScanConcurrency, err = envInt("GREENLINK_SCAN_CONCURRENCY", c.ScanConcurrency); err != nil {
		return err
	}
	if raw := getenv("GREENLINK_RATE", ""); raw != "" {
		v, perr := strconv.ParseFloat(raw, 64)
		if perr != nil {
			return fmt.Errorf("invalid GREENLINK_RATE=%q: %w", raw, perr)
		}
		c.RatePerSecond = v
	}
	if raw := getenv("GREENLINK_DEBUG", ""); raw != "" {
		switch strings.ToLower(raw) {
		case "1", "true", "yes":
			c.Debug = true
		case "0", "false", "no":
			c.Debug = false
		default:
			return fmt.Errorf("invalid GREENLINK_DEBUG=%q", raw)
		}
	}
	return nil
}

// Validate checks ranges and cross-field requirements.
func (c Config) Validate() error {
	var errs []error
	switch c.Store {
	case StoreFile, StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("store redis requires a redis url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store %q (want file, redis or memory)", c.Store))
	}
	if c.APIURL == "" {
		errs = append(errs, errors.New("api url must not be empty"))
	}
	if c.LookupTimeout <= 0 {
		errs = append(errs, fmt.Errorf("lookup timeout must be positive, got %s", c.LookupTimeout))
	}
	if c.LookupTimeout > 5*time.Minute {
		errs = append(errs, fmt.Errorf("lookup timeout too large (%s), must be <=5m", c.LookupTimeout))
	}
	if c.Workers < 1 || c.Workers > core.MaxWorkers {
		errs = append(errs, fmt.Errorf("workers must be between 1 and %d, got %d", core.MaxWorkers, c.Workers))
	}
	if c.RatePerSecond < 0 {
		errs = append(errs, fmt.Errorf("rate must not be negative, got %v", c.RatePerSecond))
	}
	if c.CacheExpiry < time.Minute {
		errs = append(errs, fmt.Errorf("cache expiry too small (%s), must be >=1m", c.CacheExpiry))
	}
	if c.ScanConcurrency < 1 {
		errs = append(errs, fmt.Errorf("scan concurrency must be positive, got %d", c.ScanConcurrency))
	}
	if c.MaxFileBytes < 1 {
		errs = append(errs, fmt.Errorf("max file bytes must be positive, got %d", c.MaxFileBytes))
	}
	return errors.Join(errs...)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	raw := getenv(key, "")
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, raw, err)
	}
	return v, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := getenv(key, "")
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, raw, err)
	}
	return d, nil
}
