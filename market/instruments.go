// market/instruments.go
package market

import (
	"fmt"
	"strings"
)

type InstrumentMeta struct {
	Name                string
	BaseCurrency        string
	QuoteCurrency       string
	PipLocation         int
	TradeUnitsPrecision int
	MinimumTradeSize    int64
}

var Instruments = map[string]InstrumentMeta{
	"USD_JPY": {
		Name:                "USD_JPY",
		BaseCurrency:        "USD",
		QuoteCurrency:       "JPY",
		PipLocation:         -2,
		TradeUnitsPrecision: 0,
		MinimumTradeSize:    1,
	},
	"USD_MXN": {
		Name:                "USD_MXN",
		BaseCurrency:        "USD",
		QuoteCurrency:       "MXN",
		PipLocation:         -4,
		TradeUnitsPrecision: 0,
		MinimumTradeSize:    1,
	},
	"TRY_JPY": {
		Name:                "TRY_JPY",
		BaseCurrency:        "TRY",
		QuoteCurrency:       "JPY",
		PipLocation:         -2,
		TradeUnitsPrecision: 0,
		MinimumTradeSize:    1,
	},
	"MXN_JPY": {
		Name:                "MXN_JPY",
		BaseCurrency:        "MXN",
		QuoteCurrency:       "JPY",
		PipLocation:         -2,
		TradeUnitsPrecision: 0,
		MinimumTradeSize:    1,
	},
}

// Universe is the default basket, in submission order.
var Universe = []string{"USD_JPY", "USD_MXN", "TRY_JPY"}

// Split returns the base and quote currency codes of an instrument name
// such as "USD_JPY". Names that are not in Instruments are still split.
func Split(instrument string) (base, quote string, err error) {
	if meta, ok := Instruments[instrument]; ok {
		return meta.BaseCurrency, meta.QuoteCurrency, nil
	}
	parts := strings.Split(instrument, "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed instrument %q (want BASE_QUOTE)", instrument)
	}
	return parts[0], parts[1], nil
}

// Inverse returns "QUOTE_BASE" for "BASE_QUOTE".
func Inverse(instrument string) (string, error) {
	base, quote, err := Split(instrument)
	if err != nil {
		return "", err
	}
	return quote + "_" + base, nil
}

// Pair joins two currency codes into an instrument name.
func Pair(base, quote string) string {
	return base + "_" + quote
}
