// Package config loads service configuration from an optional YAML file
// with environment variable overrides. Environment always wins so the
// same image can run in compose, k8s, or bare shells without editing
// files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Store  StoreConfig  `yaml:"store"`
	Oracle OracleConfig `yaml:"oracle"`
	Ledger LedgerConfig `yaml:"ledger"`
	Sweep  SweepConfig  `yaml:"sweep"`
	Risk   RiskConfig   `yaml:"risk"`
}

// ServerConfig holds HTTP listener parameters.
type ServerConfig struct {
	Port string `yaml:"port"`
}

// StoreConfig selects and parameterizes the ledger store backend.
type StoreConfig struct {
	// Driver is "postgres", "sqlite", or "memory".
	Driver      string `yaml:"driver"`
	DatabaseURL string `yaml:"database_url"`
	SQLitePath  string `yaml:"sqlite_path"`
	// RedisURL, when set, wraps the primary store with a read-through cache.
	RedisURL string `yaml:"redis_url"`
	CacheTTL string `yaml:"cache_ttl"` // e.g. "30s"
}

// OracleConfig selects the market data provider.
type OracleConfig struct {
	// Provider is "yahoo", "alphavantage", or "static".
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	Timeout  string `yaml:"timeout"`   // per-request bound, e.g. "8s"
	CacheTTL string `yaml:"cache_ttl"` // quote cache, e.g. "60s"
}

// LedgerConfig holds account seeding parameters.
type LedgerConfig struct {
	// StartingCash is the fixed initial deposit credited when an account
	// first trades. Kept as a string so YAML round-trips exact decimals.
	StartingCash string `yaml:"starting_cash"`
}

// SweepConfig controls the background pending-order sweeper.
type SweepConfig struct {
	Interval string `yaml:"interval"` // e.g. "15s"; "0" disables
}

// RiskConfig caps share exposure per account. Zero or empty disables a cap.
type RiskConfig struct {
	MaxSharesPerSymbol string `yaml:"max_shares_per_symbol"`
	MaxSharesTotal     string `yaml:"max_shares_total"`
}

// Default returns the configuration used when no file or env is present.
func Default() Config {
	return Config{
		Server: ServerConfig{Port: "8080"},
		Store:  StoreConfig{Driver: "memory", CacheTTL: "30s"},
		Oracle: OracleConfig{Provider: "yahoo", Timeout: "8s", CacheTTL: "60s"},
		Ledger: LedgerConfig{StartingCash: "100000"},
		Sweep:  SweepConfig{Interval: "15s"},
	}
}

// Load reads the YAML file at path (if path is non-empty), applies
// environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setFromEnv(&c.Server.Port, "PORT")
	setFromEnv(&c.Store.Driver, "STORE_DRIVER")
	setFromEnv(&c.Store.DatabaseURL, "DATABASE_URL")
	setFromEnv(&c.Store.SQLitePath, "SQLITE_PATH")
	setFromEnv(&c.Store.RedisURL, "REDIS_URL")
	setFromEnv(&c.Oracle.Provider, "ORACLE_PROVIDER")
	setFromEnv(&c.Oracle.APIKey, "ALPHAVANTAGE_API_KEY")
	setFromEnv(&c.Ledger.StartingCash, "STARTING_CASH")
	setFromEnv(&c.Sweep.Interval, "SWEEP_INTERVAL")
	setFromEnv(&c.Risk.MaxSharesPerSymbol, "MAX_SHARES_PER_SYMBOL")
	setFromEnv(&c.Risk.MaxSharesTotal, "MAX_SHARES_TOTAL")
}

func setFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks cross-field consistency and parseability.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("store driver postgres requires database_url")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store driver sqlite requires sqlite_path")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	switch c.Oracle.Provider {
	case "yahoo", "static":
	case "alphavantage":
		if c.Oracle.APIKey == "" {
			return fmt.Errorf("oracle provider alphavantage requires api_key")
		}
	default:
		return fmt.Errorf("unknown oracle provider %q", c.Oracle.Provider)
	}

	if _, err := c.StartingCash(); err != nil {
		return err
	}
	for name, raw := range map[string]string{
		"store.cache_ttl":  c.Store.CacheTTL,
		"oracle.timeout":   c.Oracle.Timeout,
		"oracle.cache_ttl": c.Oracle.CacheTTL,
		"sweep.interval":   c.Sweep.Interval,
	} {
		if _, err := parseDuration(raw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	for name, raw := range map[string]string{
		"risk.max_shares_per_symbol": c.Risk.MaxSharesPerSymbol,
		"risk.max_shares_total":      c.Risk.MaxSharesTotal,
	} {
		n, err := parseCap(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if n < 0 {
			return fmt.Errorf("%s must be non-negative", name)
		}
	}
	return nil
}

// StartingCash parses the configured initial deposit.
func (c *Config) StartingCash() (decimal.Decimal, error) {
	cash, err := decimal.NewFromString(c.Ledger.StartingCash)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger.starting_cash: %w", err)
	}
	if cash.IsNegative() {
		return decimal.Zero, fmt.Errorf("ledger.starting_cash must be non-negative")
	}
	return cash, nil
}

// CacheTTL returns the parsed store cache TTL.
func (c *StoreConfig) ParsedCacheTTL() time.Duration { return mustDuration(c.CacheTTL) }

// ParsedTimeout returns the oracle request timeout.
func (c *OracleConfig) ParsedTimeout() time.Duration { return mustDuration(c.Timeout) }

// ParsedCacheTTL returns the quote cache TTL.
func (c *OracleConfig) ParsedCacheTTL() time.Duration { return mustDuration(c.CacheTTL) }

// ParsedInterval returns the sweep interval; zero disables sweeping.
func (c *SweepConfig) ParsedInterval() time.Duration { return mustDuration(c.Interval) }

// ParsedMaxPerSymbol returns the per-symbol share cap; zero disables it.
func (c *RiskConfig) ParsedMaxPerSymbol() int64 { return mustCap(c.MaxSharesPerSymbol) }

// ParsedMaxTotal returns the total share cap; zero disables it.
func (c *RiskConfig) ParsedMaxTotal() int64 { return mustCap(c.MaxSharesTotal) }

func parseDuration(raw string) (time.Duration, error) {
	if raw == "" || raw == "0" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}

// mustDuration is only called after Validate has checked the field.
func mustDuration(raw string) time.Duration {
	d, _ := parseDuration(raw)
	return d
}

func parseCap(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

// mustCap is only called after Validate has checked the field.
func mustCap(raw string) int64 {
	n, _ := parseCap(raw)
	return n
}
