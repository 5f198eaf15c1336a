package risk

import (
	"fmt"

	"github.com/rustyeddy/carry/market"
	"github.com/shopspring/decimal"
)

// SizeDirect converts a home-currency amount into units of a pair quoted in
// the home currency: round(amount * leverage / ask). Halves round away
// from zero.
func SizeDirect(amount, leverage decimal.Decimal, book *market.PriceBook, instrument string) (int64, error) {
	ask, err := book.Ask(instrument)
	if err != nil {
		return 0, fmt.Errorf("size %s: %w", instrument, err)
	}
	if ask.Sign() <= 0 {
		return 0, fmt.Errorf("size %s: non-positive ask %s", instrument, ask)
	}
	return amount.Mul(leverage).Div(ask).Round(0).IntPart(), nil
}

// SizeInverse sizes the high-yield leg as round(amount / leverage). A zero
// leverage sizes to nothing.
func SizeInverse(amount, leverage decimal.Decimal) int64 {
	if leverage.IsZero() {
		return 0
	}
	return amount.Div(leverage).Round(0).IntPart()
}
