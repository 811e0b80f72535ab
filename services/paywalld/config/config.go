package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"paywall/core/state"
	"paywall/crypto"
)

// Config captures the runtime settings for the paywall service.
type Config struct {
	ListenAddress string               `yaml:"listen"`
	Environment   string               `yaml:"environment"`
	Storage       StorageConfig        `yaml:"storage"`
	Admins        []string             `yaml:"admins"`
	Auth          AuthConfig           `yaml:"auth"`
	Rent          RentConfig           `yaml:"rent"`
	Index         IndexConfig          `yaml:"index"`
	Metadata      MetadataConfig       `yaml:"metadata"`
	RateLimits    map[string]RateLimit `yaml:"rate_limits"`
	CORS          CORSConfig           `yaml:"cors"`
	Logging       LoggingConfig        `yaml:"logging"`
	Telemetry     TelemetryConfig      `yaml:"telemetry"`
}

// StorageConfig selects the record store backend.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	DataDir string `yaml:"data_dir"`
}

// AuthConfig configures bearer token verification. When disabled the caller is
// taken from the X-Paywall-Caller header, which is only suitable for local
// development.
type AuthConfig struct {
	Enabled    bool          `yaml:"enabled"`
	HMACSecret string        `yaml:"hmac_secret"`
	Issuer     string        `yaml:"issuer"`
	Audience   string        `yaml:"audience"`
	ClockSkew  time.Duration `yaml:"clock_skew"`
}

// RentConfig prices the backing every created record carries. A zero per_byte
// disables rent.
type RentConfig struct {
	PerByte  uint64 `yaml:"per_byte"`
	Currency string `yaml:"currency"`
	Reserve  string `yaml:"reserve"`
}

// IndexConfig points the event read model at sqlite or postgres.
type IndexConfig struct {
	DSN string `yaml:"dsn"`
}

// MetadataConfig tunes the credential metadata worker.
type MetadataConfig struct {
	Interval time.Duration `yaml:"interval"`
	Batch    int           `yaml:"batch"`
}

type RateLimit struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
	Headers  string `yaml:"headers"`
	Traces   bool   `yaml:"traces"`
	Metrics  bool   `yaml:"metrics"`
}

// Default returns the configuration used when a field is left unset.
func Default() Config {
	return Config{
		ListenAddress: ":8080",
		Environment:   "dev",
		Storage:       StorageConfig{Backend: "bolt", DataDir: "data"},
		Auth:          AuthConfig{Issuer: "paywall", ClockSkew: 2 * time.Minute},
		Metadata:      MetadataConfig{Interval: 10 * time.Second, Batch: 100},
		RateLimits: map[string]RateLimit{
			"write": {RequestsPerMinute: 120, Burst: 20},
			"read":  {RequestsPerMinute: 600, Burst: 100},
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the YAML configuration from disk, applies PAYWALL_* environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	}
	applyEnv(&cfg, os.Getenv)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if v := strings.TrimSpace(getenv("PAYWALL_LISTEN")); v != "" {
		cfg.ListenAddress = v
	}
	if v := strings.TrimSpace(getenv("PAYWALL_ENV")); v != "" {
		cfg.Environment = v
	}
	if v := strings.TrimSpace(getenv("PAYWALL_DATA_DIR")); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := strings.TrimSpace(getenv("PAYWALL_STORAGE_BACKEND")); v != "" {
		cfg.Storage.Backend = v
	}
	if v := strings.TrimSpace(getenv("PAYWALL_JWT_SECRET")); v != "" {
		cfg.Auth.HMACSecret = v
		cfg.Auth.Enabled = true
	}
	if v := strings.TrimSpace(getenv("PAYWALL_INDEX_DSN")); v != "" {
		cfg.Index.DSN = v
	}
	if v := strings.TrimSpace(getenv("PAYWALL_ADMINS")); v != "" {
		cfg.Admins = nil
		for _, admin := range strings.Split(v, ",") {
			if admin = strings.TrimSpace(admin); admin != "" {
				cfg.Admins = append(cfg.Admins, admin)
			}
		}
	}
	if v := strings.TrimSpace(getenv("PAYWALL_RENT_PER_BYTE")); v != "" {
		if perByte, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Rent.PerByte = perByte
		}
	}
}

func (c *Config) applyDefaults() {
	defaults := Default()
	if c.ListenAddress == "" {
		c.ListenAddress = defaults.ListenAddress
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = defaults.Storage.Backend
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = defaults.Storage.DataDir
	}
	if c.Index.DSN == "" {
		c.Index.DSN = "sqlite://" + filepath.Join(c.Storage.DataDir, "index.db")
	}
	if c.Metadata.Interval <= 0 {
		c.Metadata.Interval = defaults.Metadata.Interval
	}
	if c.Metadata.Batch <= 0 {
		c.Metadata.Batch = defaults.Metadata.Batch
	}
	if c.Auth.ClockSkew <= 0 {
		c.Auth.ClockSkew = defaults.Auth.ClockSkew
	}
}

// Validate checks required fields and address encodings.
func (c Config) Validate() error {
	if len(c.Admins) == 0 {
		return fmt.Errorf("at least one admin is required")
	}
	if _, err := c.AdminAddresses(); err != nil {
		return err
	}
	if c.Auth.Enabled && strings.TrimSpace(c.Auth.HMACSecret) == "" {
		return fmt.Errorf("auth.hmac_secret is required when auth is enabled")
	}
	if _, err := c.RentPolicy(); err != nil {
		return err
	}
	switch c.Storage.Backend {
	case "bolt", "leveldb", "memory":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}

// AdminAddresses decodes the admin principal set.
func (c Config) AdminAddresses() ([][20]byte, error) {
	out := make([][20]byte, 0, len(c.Admins))
	for _, raw := range c.Admins {
		addr, err := crypto.ParseAddress(crypto.AccountPrefix, strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("admin %q: %w", raw, err)
		}
		out = append(out, addr)
	}
	return out, nil
}

// RentPolicy decodes the rent section.
func (c Config) RentPolicy() (state.RentPolicy, error) {
	if c.Rent.PerByte == 0 {
		return state.RentPolicy{}, nil
	}
	currency, err := crypto.ParseAddress(crypto.CurrencyPrefix, c.Rent.Currency)
	if err != nil {
		return state.RentPolicy{}, fmt.Errorf("rent.currency: %w", err)
	}
	reserve, err := crypto.ParseAddress(crypto.AccountPrefix, c.Rent.Reserve)
	if err != nil {
		return state.RentPolicy{}, fmt.Errorf("rent.reserve: %w", err)
	}
	return state.RentPolicy{PerByte: c.Rent.PerByte, Currency: currency, Reserve: reserve}, nil
}
