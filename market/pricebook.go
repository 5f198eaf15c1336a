package market

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrQuoteNotFound = errors.New("quote not found")

// QuoteResolutionError reports a pair that is absent from a PriceBook in
// both directions.
type QuoteResolutionError struct {
	Pair string
	Side Side
}

func (e *QuoteResolutionError) Error() string {
	return fmt.Sprintf("resolve %s %s: neither %s nor its inverse is quoted", e.Pair, e.Side, e.Pair)
}

func (e *QuoteResolutionError) Unwrap() error { return ErrQuoteNotFound }

// PriceBook is a point-in-time set of quotes. It is built once per cycle
// and read many times; it never refetches.
type PriceBook struct {
	quotes map[string]Quote
}

func NewPriceBook(quotes ...Quote) *PriceBook {
	pb := &PriceBook{quotes: make(map[string]Quote, len(quotes))}
	for _, q := range quotes {
		pb.quotes[q.Instrument] = q
	}
	return pb
}

// Snapshot fetches every instrument of the universe exactly once.
func Snapshot(ctx context.Context, src QuoteSource, universe []string) (*PriceBook, error) {
	pb := &PriceBook{quotes: make(map[string]Quote, len(universe))}
	for _, instrument := range universe {
		if _, seen := pb.quotes[instrument]; seen {
			continue
		}
		q, err := src.Quote(ctx, instrument)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", instrument, err)
		}
		q.Instrument = instrument
		pb.quotes[instrument] = q
	}
	return pb, nil
}

// Quote returns the stored quote for an instrument exactly as fetched.
func (pb *PriceBook) Quote(instrument string) (Quote, bool) {
	q, ok := pb.quotes[instrument]
	return q, ok
}

// Price returns the requested side for pair. When only the inverse pair is
// quoted the reciprocal is derived: bid from 1/ask, ask from 1/bid and
// mid from 1/mid.
func (pb *PriceBook) Price(pair string, side Side) (decimal.Decimal, error) {
	if q, ok := pb.quotes[pair]; ok {
		return q.Price(side), nil
	}

	inv, err := Inverse(pair)
	if err == nil {
		if q, ok := pb.quotes[inv]; ok {
			p := q.Price(side.Opposite())
			if p.IsZero() {
				return decimal.Zero, fmt.Errorf("resolve %s %s: zero %s on %s", pair, side, side.Opposite(), inv)
			}
			return decimal.NewFromInt(1).Div(p), nil
		}
	}

	return decimal.Zero, &QuoteResolutionError{Pair: pair, Side: side}
}

// Ask is shorthand for Price(pair, Ask).
func (pb *PriceBook) Ask(pair string) (decimal.Decimal, error) {
	return pb.Price(pair, Ask)
}
