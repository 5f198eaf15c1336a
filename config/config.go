package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/rustyeddy/carry/risk"
	"gopkg.in/yaml.v3"
)

// Config is everything a job needs to run against one account.
type Config struct {
	Account  AccountConfig  `json:"account" yaml:"account" toml:"account"`
	Strategy StrategyConfig `json:"strategy" yaml:"strategy" toml:"strategy"`
	Protect  ProtectConfig  `json:"protect" yaml:"protect" toml:"protect"`
	Session  SessionConfig  `json:"session" yaml:"session" toml:"session"`
	Broker   BrokerConfig   `json:"broker" yaml:"broker" toml:"broker"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics" toml:"metrics"`
	Log      LogConfig      `json:"log" yaml:"log" toml:"log"`
	Paper    PaperConfig    `json:"paper" yaml:"paper" toml:"paper"`
}

// AccountConfig identifies the broker account. The token is normally left
// empty in files and supplied through CARRY_OANDA_TOKEN.
type AccountConfig struct {
	ID           string `json:"id" yaml:"id" toml:"id"`
	Token        string `json:"token,omitempty" yaml:"token,omitempty" toml:"token"`
	Tier         string `json:"tier" yaml:"tier" toml:"tier"` // PERS | CORP | DEMO
	HomeCurrency string `json:"home_currency" yaml:"home_currency" toml:"home_currency"`
	BaseURL      string `json:"base_url,omitempty" yaml:"base_url,omitempty" toml:"base_url"`
}

// StrategyConfig sizes the daily basket.
type StrategyConfig struct {
	Leverage      float64  `json:"leverage" yaml:"leverage" toml:"leverage"`
	MonthlyAmount int64    `json:"monthly_amount" yaml:"monthly_amount" toml:"monthly_amount"`
	Instruments   []string `json:"instruments" yaml:"instruments" toml:"instruments"`
}

type ProtectConfig struct {
	ThresholdPct float64 `json:"threshold_pct" yaml:"threshold_pct" toml:"threshold_pct"`
	TopN         int     `json:"top_n" yaml:"top_n" toml:"top_n"`
}

type SessionConfig struct {
	UTCOffsetHours int `json:"utc_offset_hours" yaml:"utc_offset_hours" toml:"utc_offset_hours"`
}

type BrokerConfig struct {
	Timeout    string  `json:"timeout" yaml:"timeout" toml:"timeout"` // e.g. "30s"
	MaxRetries int     `json:"max_retries" yaml:"max_retries" toml:"max_retries"`
	RateLimit  float64 `json:"rate_limit" yaml:"rate_limit" toml:"rate_limit"` // requests per second
}

// ParseTimeout converts the timeout string to time.Duration.
func (b BrokerConfig) ParseTimeout() (time.Duration, error) {
	if b.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(b.Timeout)
}

type MetricsConfig struct {
	PushgatewayURL string `json:"pushgateway_url,omitempty" yaml:"pushgateway_url,omitempty" toml:"pushgateway_url"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level" toml:"level"`
}

// PaperConfig seeds the in-memory account used by --paper runs. With a
// StatePath the account is kept in that SQLite file between runs and
// Balance only seeds the first one.
type PaperConfig struct {
	Balance   float64      `json:"balance" yaml:"balance" toml:"balance"`
	StatePath string       `json:"state_path,omitempty" yaml:"state_path,omitempty" toml:"state_path"`
	Quotes    []PaperQuote `json:"quotes,omitempty" yaml:"quotes,omitempty" toml:"quotes"`
}

type PaperQuote struct {
	Instrument string  `json:"instrument" yaml:"instrument" toml:"instrument"`
	Bid        float64 `json:"bid" yaml:"bid" toml:"bid"`
	Ask        float64 `json:"ask" yaml:"ask" toml:"ask"`
}

var ErrInvalidConfig = errors.New("invalid config")

// ValidationError names the offending field.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string { return e.Field + " " + e.Msg }

func (e *ValidationError) Unwrap() error { return ErrInvalidConfig }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// Load builds the runtime configuration: operational defaults, then the
// file at path when one is given, then .env and CARRY_* environment
// overrides. The account mode, leverage and monthly amount have no default
// and must come from the file or the environment. The result is validated.
func Load(path string) (*Config, error) {
	cfg := base()
	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	// .env is optional
	_ = godotenv.Load()
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromFile loads and validates a single file without consulting the
// environment. Like Load it supplies no account mode, leverage or monthly
// amount.
func LoadFromFile(path string) (*Config, error) {
	cfg := base()
	if err := decodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("parse config (toml): %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config (json): %w", err)
		}
	default:
		// Try YAML first, fall back to JSON
		if err := yaml.Unmarshal(data, cfg); err != nil {
			if jerr := json.Unmarshal(data, cfg); jerr != nil {
				return fmt.Errorf("parse config (tried YAML and JSON): %w", err)
			}
		}
	}
	return nil
}

// SaveToFile writes the configuration in the format implied by the
// extension: YAML, TOML, or JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	case ".toml":
		var sb strings.Builder
		err = toml.NewEncoder(&sb).Encode(c)
		data = []byte(sb.String())
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Tier parses the account tier.
func (c *Config) Tier() (risk.Tier, error) {
	return risk.ParseTier(c.Account.Tier)
}

// Validate checks the parts every run needs. Credentials are checked by
// ValidateLive since paper runs do without them.
func (c *Config) Validate() error {
	if _, err := c.Tier(); err != nil {
		return &ValidationError{Field: "account.tier", Msg: err.Error()}
	}
	if c.Account.HomeCurrency == "" {
		return invalid("account.home_currency", "is required")
	}
	if c.Strategy.Leverage <= 0 {
		return invalid("strategy.leverage", "must be positive")
	}
	if c.Strategy.MonthlyAmount <= 0 {
		return invalid("strategy.monthly_amount", "must be positive")
	}
	if len(c.Strategy.Instruments) != 3 {
		return invalid("strategy.instruments", "must list the direct, cross and high-yield pairs (got %d)", len(c.Strategy.Instruments))
	}
	for _, in := range c.Strategy.Instruments {
		if strings.Count(in, "_") != 1 {
			return invalid("strategy.instruments", "malformed instrument %q", in)
		}
	}
	if c.Protect.ThresholdPct <= 0 {
		return invalid("protect.threshold_pct", "must be positive")
	}
	if c.Protect.TopN <= 0 {
		return invalid("protect.top_n", "must be positive")
	}
	if c.Session.UTCOffsetHours < -12 || c.Session.UTCOffsetHours > 14 {
		return invalid("session.utc_offset_hours", "out of range: %d", c.Session.UTCOffsetHours)
	}
	if _, err := c.Broker.ParseTimeout(); err != nil {
		return invalid("broker.timeout", "%v", err)
	}
	if c.Broker.MaxRetries < 0 {
		return invalid("broker.max_retries", "must not be negative")
	}
	if c.Broker.RateLimit < 0 {
		return invalid("broker.rate_limit", "must not be negative")
	}
	if c.Paper.Balance < 0 {
		return invalid("paper.balance", "must not be negative")
	}
	for _, q := range c.Paper.Quotes {
		if q.Bid <= 0 || q.Ask <= 0 || q.Ask < q.Bid {
			return invalid("paper.quotes", "%s: need 0 < bid <= ask", q.Instrument)
		}
	}
	return nil
}

// ValidateLive additionally requires broker credentials.
func (c *Config) ValidateLive() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Account.ID == "" {
		return invalid("account.id", "is required")
	}
	if c.Account.Token == "" {
		return invalid("account.token", "is required (set CARRY_OANDA_TOKEN)")
	}
	return nil
}

// Default returns a DEMO configuration for the USD_JPY / USD_MXN / TRY_JPY
// basket. It is the template written by config init; Load does not start
// from it.
func Default() *Config {
	cfg := base()
	cfg.Account.Tier = string(risk.TierDemo)
	cfg.Strategy.Leverage = 3
	cfg.Strategy.MonthlyAmount = 230000
	return cfg
}

// base holds the operational defaults. The account mode, leverage and
// monthly amount are left unset so a run without them fails validation.
func base() *Config {
	return &Config{
		Account: AccountConfig{
			HomeCurrency: "JPY",
		},
		Strategy: StrategyConfig{
			Instruments: []string{"USD_JPY", "USD_MXN", "TRY_JPY"},
		},
		Protect: ProtectConfig{
			ThresholdPct: 105,
			TopN:         10,
		},
		Session: SessionConfig{
			UTCOffsetHours: 9,
		},
		Broker: BrokerConfig{
			Timeout:    "30s",
			MaxRetries: 3,
			RateLimit:  100,
		},
		Log: LogConfig{
			Level: "info",
		},
		Paper: PaperConfig{
			Balance: 3000000,
			Quotes: []PaperQuote{
				{Instrument: "USD_JPY", Bid: 149.99, Ask: 150.01},
				{Instrument: "USD_MXN", Bid: 19.60, Ask: 19.62},
				{Instrument: "TRY_JPY", Bid: 4.38, Ask: 4.40},
			},
		},
	}
}
