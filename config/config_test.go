package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rustyeddy/carry/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NotNil(t, cfg)
	assert.Equal(t, "JPY", cfg.Account.HomeCurrency)
	assert.Equal(t, 3.0, cfg.Strategy.Leverage)
	assert.Equal(t, int64(230000), cfg.Strategy.MonthlyAmount)
	assert.Equal(t, 105.0, cfg.Protect.ThresholdPct)
	assert.Equal(t, 10, cfg.Protect.TopN)
	assert.Equal(t, 9, cfg.Session.UTCOffsetHours)
	assert.NoError(t, cfg.Validate())

	tier, err := cfg.Tier()
	require.NoError(t, err)
	assert.Equal(t, risk.TierDemo, tier)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing tier",
			mutate:  func(c *Config) { c.Account.Tier = "" },
			wantErr: true,
			errMsg:  "account.tier",
		},
		{
			name:    "unknown tier",
			mutate:  func(c *Config) { c.Account.Tier = "VIP" },
			wantErr: true,
			errMsg:  "account.tier",
		},
		{
			name:    "missing home currency",
			mutate:  func(c *Config) { c.Account.HomeCurrency = "" },
			wantErr: true,
			errMsg:  "account.home_currency is required",
		},
		{
			name:    "zero leverage",
			mutate:  func(c *Config) { c.Strategy.Leverage = 0 },
			wantErr: true,
			errMsg:  "strategy.leverage must be positive",
		},
		{
			name:    "negative monthly amount",
			mutate:  func(c *Config) { c.Strategy.MonthlyAmount = -1 },
			wantErr: true,
			errMsg:  "strategy.monthly_amount must be positive",
		},
		{
			name:    "missing monthly amount",
			mutate:  func(c *Config) { c.Strategy.MonthlyAmount = 0 },
			wantErr: true,
			errMsg:  "strategy.monthly_amount must be positive",
		},
		{
			name:    "two instruments",
			mutate:  func(c *Config) { c.Strategy.Instruments = []string{"USD_JPY", "TRY_JPY"} },
			wantErr: true,
			errMsg:  "strategy.instruments",
		},
		{
			name:    "malformed instrument",
			mutate:  func(c *Config) { c.Strategy.Instruments = []string{"USD_JPY", "USDMXN", "TRY_JPY"} },
			wantErr: true,
			errMsg:  "malformed instrument",
		},
		{
			name:    "zero threshold",
			mutate:  func(c *Config) { c.Protect.ThresholdPct = 0 },
			wantErr: true,
			errMsg:  "protect.threshold_pct must be positive",
		},
		{
			name:    "zero top n",
			mutate:  func(c *Config) { c.Protect.TopN = 0 },
			wantErr: true,
			errMsg:  "protect.top_n must be positive",
		},
		{
			name:    "bad offset",
			mutate:  func(c *Config) { c.Session.UTCOffsetHours = 15 },
			wantErr: true,
			errMsg:  "session.utc_offset_hours",
		},
		{
			name:    "bad timeout",
			mutate:  func(c *Config) { c.Broker.Timeout = "soon" },
			wantErr: true,
			errMsg:  "broker.timeout",
		},
		{
			name:    "negative paper balance",
			mutate:  func(c *Config) { c.Paper.Balance = -1 },
			wantErr: true,
			errMsg:  "paper.balance",
		},
		{
			name:   "paper state file",
			mutate: func(c *Config) { c.Paper.StatePath = "/tmp/carry-paper.db" },
		},
		{
			name:    "paper ask below bid",
			mutate:  func(c *Config) { c.Paper.Quotes = []PaperQuote{{Instrument: "USD_JPY", Bid: 150, Ask: 149}} },
			wantErr: true,
			errMsg:  "paper.quotes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidConfig))
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateLive(t *testing.T) {
	cfg := Default()
	err := cfg.ValidateLive()
	assert.ErrorContains(t, err, "account.id is required")

	cfg.Account.ID = "101-001-1-001"
	err = cfg.ValidateLive()
	assert.ErrorContains(t, err, "account.token is required")

	cfg.Account.Token = "secret"
	assert.NoError(t, cfg.ValidateLive())
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name string
		ext  string
	}{
		{"json format", ".json"},
		{"yaml format", ".yaml"},
		{"toml format", ".toml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Account.ID = "101-001-1-001"
			cfg.Account.Tier = "CORP"
			cfg.Strategy.MonthlyAmount = 460000
			path := filepath.Join(tmpDir, "test"+tt.ext)

			err := cfg.SaveToFile(path)
			require.NoError(t, err)

			_, err = os.Stat(path)
			require.NoError(t, err)

			loaded, err := LoadFromFile(path)
			require.NoError(t, err)

			assert.Equal(t, cfg.Account.ID, loaded.Account.ID)
			assert.Equal(t, "CORP", loaded.Account.Tier)
			assert.Equal(t, int64(460000), loaded.Strategy.MonthlyAmount)
			assert.Equal(t, cfg.Strategy.Instruments, loaded.Strategy.Instruments)
			assert.Equal(t, cfg.Paper.Quotes, loaded.Paper.Quotes)
		})
	}
}

func TestLoadFromFile_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "carry.yaml")
	body := "account:\n  tier: PERS\nstrategy:\n  leverage: 2\n  monthly_amount: 100000\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "PERS", cfg.Account.Tier)
	assert.Equal(t, "JPY", cfg.Account.HomeCurrency)
	assert.Equal(t, 105.0, cfg.Protect.ThresholdPct)
	assert.Equal(t, 2.0, cfg.Strategy.Leverage)
	assert.Equal(t, []string{"USD_JPY", "USD_MXN", "TRY_JPY"}, cfg.Strategy.Instruments)
}

func TestLoadFromFile_RequiredFields(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		errMsg string
	}{
		{"no tier", "strategy:\n  leverage: 2\n  monthly_amount: 100000\n", "account.tier"},
		{"no leverage", "account:\n  tier: CORP\nstrategy:\n  monthly_amount: 100000\n", "strategy.leverage"},
		{"no monthly amount", "account:\n  tier: CORP\nstrategy:\n  leverage: 2\n", "strategy.monthly_amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "carry.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0600))

			_, err := LoadFromFile(path)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestLoadInvalidFile(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path.yaml")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("account = ["), 0600))
	_, err = LoadFromFile(path)
	assert.ErrorContains(t, err, "toml")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CARRY_OANDA_ACCOUNT_ID", "101-001-9-009")
	t.Setenv("CARRY_OANDA_TOKEN", "from-env")
	t.Setenv("CARRY_ACCOUNT_MODE", "PERS")
	t.Setenv("CARRY_LEVERAGE", "2.5")
	t.Setenv("CARRY_MONTHLY_AMOUNT", "100000")
	t.Setenv("CARRY_PROTECTION_THRESHOLD", "120")
	t.Setenv("CARRY_INSTRUMENTS", "USD_JPY, USD_ZAR ,ZAR_JPY")
	t.Setenv("CARRY_PAPER_STATE", "/var/lib/carry/paper.db")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "101-001-9-009", cfg.Account.ID)
	assert.Equal(t, "from-env", cfg.Account.Token)
	assert.Equal(t, "PERS", cfg.Account.Tier)
	assert.Equal(t, 2.5, cfg.Strategy.Leverage)
	assert.Equal(t, int64(100000), cfg.Strategy.MonthlyAmount)
	assert.Equal(t, 120.0, cfg.Protect.ThresholdPct)
	assert.Equal(t, []string{"USD_JPY", "USD_ZAR", "ZAR_JPY"}, cfg.Strategy.Instruments)
	assert.Equal(t, "/var/lib/carry/paper.db", cfg.Paper.StatePath)
	assert.Equal(t, 3, cfg.Broker.MaxRetries)
	assert.NoError(t, cfg.ValidateLive())
}

// clearRequired unsets the variables that have no default so the host
// environment cannot satisfy them.
func clearRequired(t *testing.T) {
	t.Helper()
	t.Setenv("CARRY_ACCOUNT_MODE", "")
	t.Setenv("CARRY_LEVERAGE", "")
	t.Setenv("CARRY_MONTHLY_AMOUNT", "")
}

func TestLoad_UnsetAccountModeFails(t *testing.T) {
	clearRequired(t)
	t.Setenv("CARRY_LEVERAGE", "3")
	t.Setenv("CARRY_MONTHLY_AMOUNT", "230000")

	cfg, err := Load("")
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorContains(t, err, "account.tier")
}

func TestLoad_RequiresLeverageAndMonthlyAmount(t *testing.T) {
	clearRequired(t)
	t.Setenv("CARRY_ACCOUNT_MODE", "PERS")

	_, err := Load("")
	assert.ErrorContains(t, err, "strategy.leverage must be positive")

	t.Setenv("CARRY_LEVERAGE", "3")
	_, err = Load("")
	assert.ErrorContains(t, err, "strategy.monthly_amount must be positive")

	t.Setenv("CARRY_MONTHLY_AMOUNT", "230000")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "PERS", cfg.Account.Tier)
}

func TestLoad_UnparseableEnvFails(t *testing.T) {
	clearRequired(t)
	t.Setenv("CARRY_ACCOUNT_MODE", "DEMO")
	t.Setenv("CARRY_LEVERAGE", "3x")
	t.Setenv("CARRY_MONTHLY_AMOUNT", "230000")
	t.Setenv("CARRY_PROTECTION_THRESHOLD", "one-oh-five")

	cfg, err := Load("")
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorContains(t, err, `CARRY_LEVERAGE is not a number: "3x"`)
	assert.ErrorContains(t, err, "CARRY_PROTECTION_THRESHOLD")

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "CARRY_LEVERAGE", verr.Field)
}

func TestLoad_UnknownTierFromEnv(t *testing.T) {
	t.Setenv("CARRY_ACCOUNT_MODE", "GOLD")

	_, err := Load("")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestBrokerParseTimeout(t *testing.T) {
	tests := []struct {
		in       string
		expected time.Duration
		wantErr  bool
	}{
		{"30s", 30 * time.Second, false},
		{"1m", time.Minute, false},
		{"", 0, false},
		{"invalid", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := BrokerConfig{Timeout: tt.in}.ParseTimeout()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
