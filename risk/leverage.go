package risk

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Tier is the account category. It selects the leverage table and whether
// the practice or live endpoint is used.
type Tier string

const (
	TierPersonal  Tier = "PERS"
	TierCorporate Tier = "CORP"
	TierDemo      Tier = "DEMO"
)

var (
	ErrUnknownTier = errors.New("unknown account tier")
	ErrNoLeverage  = errors.New("instrument has no leverage entry")
)

func ParseTier(s string) (Tier, error) {
	switch t := Tier(strings.ToUpper(strings.TrimSpace(s))); t {
	case TierPersonal, TierCorporate, TierDemo:
		return t, nil
	case "":
		return "", fmt.Errorf("%w: tier is not set (want PERS|CORP|DEMO)", ErrUnknownTier)
	default:
		return "", fmt.Errorf("%w: %q (want PERS|CORP|DEMO)", ErrUnknownTier, s)
	}
}

// Practice reports whether the tier trades on the practice endpoint.
func (t Tier) Practice() bool { return t == TierDemo }

// LeverageTable maps an instrument to its margin rate, the fraction of
// notional the broker holds as margin.
type LeverageTable map[string]decimal.Decimal

var tables = map[Tier]map[string]string{
	TierPersonal: {
		"USD_JPY": "0.04",
		"USD_MXN": "0.08",
		"TRY_JPY": "0.25",
	},
	TierCorporate: {
		"USD_JPY": "0.022",
		"USD_MXN": "0.05",
		"TRY_JPY": "0.25",
	},
	TierDemo: {
		"USD_JPY": "0.022",
		"USD_MXN": "0.05",
		"TRY_JPY": "0.25",
	},
}

// LeverageFor returns a fresh copy of the tier's table.
func LeverageFor(t Tier) (LeverageTable, error) {
	src, ok := tables[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTier, string(t))
	}
	out := make(LeverageTable, len(src))
	for k, v := range src {
		out[k] = decimal.RequireFromString(v)
	}
	return out, nil
}

func (lt LeverageTable) Rate(instrument string) (decimal.Decimal, error) {
	r, ok := lt[instrument]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoLeverage, instrument)
	}
	return r, nil
}
