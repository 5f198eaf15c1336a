package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

// applyEnvOverrides overlays CARRY_* variables. A numeric variable that
// does not parse is reported by name.
func applyEnvOverrides(cfg *Config) error {
	setStr(&cfg.Account.ID, "CARRY_OANDA_ACCOUNT_ID")
	setStr(&cfg.Account.Token, "CARRY_OANDA_TOKEN")
	setStr(&cfg.Account.Tier, "CARRY_ACCOUNT_MODE")
	setStr(&cfg.Account.HomeCurrency, "CARRY_HOME_CURRENCY")
	setStr(&cfg.Account.BaseURL, "CARRY_OANDA_API_URL")
	setStringSlice(&cfg.Strategy.Instruments, "CARRY_INSTRUMENTS")
	setStr(&cfg.Broker.Timeout, "CARRY_BROKER_TIMEOUT")
	setStr(&cfg.Metrics.PushgatewayURL, "CARRY_PUSHGATEWAY_URL")
	setStr(&cfg.Log.Level, "CARRY_LOG_LEVEL")
	setStr(&cfg.Paper.StatePath, "CARRY_PAPER_STATE")

	return errors.Join(
		setFloat64(&cfg.Strategy.Leverage, "CARRY_LEVERAGE"),
		setInt64(&cfg.Strategy.MonthlyAmount, "CARRY_MONTHLY_AMOUNT"),
		setFloat64(&cfg.Protect.ThresholdPct, "CARRY_PROTECTION_THRESHOLD"),
		setInt(&cfg.Protect.TopN, "CARRY_PROTECTION_TOP_N"),
		setInt(&cfg.Session.UTCOffsetHours, "CARRY_SESSION_UTC_OFFSET"),
		setInt(&cfg.Broker.MaxRetries, "CARRY_BROKER_MAX_RETRIES"),
		setFloat64(&cfg.Broker.RateLimit, "CARRY_BROKER_RATE_LIMIT"),
		setFloat64(&cfg.Paper.Balance, "CARRY_PAPER_BALANCE"),
	)
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return invalid(key, "is not an integer: %q", v)
	}
	*dst = n
	return nil
}

func setInt64(dst *int64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return invalid(key, "is not an integer: %q", v)
	}
	*dst = n
	return nil
}

func setFloat64(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return invalid(key, "is not a number: %q", v)
	}
	*dst = f
	return nil
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		*dst = cleaned
	}
}
