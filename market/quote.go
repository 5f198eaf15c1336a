package market

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// QuoteSource fetches the current two-sided price of an instrument.
type QuoteSource interface {
	Quote(ctx context.Context, instrument string) (Quote, error)
}

// Side selects which price of a Quote to read.
type Side int

const (
	Bid Side = iota
	Ask
	Mid
)

func (s Side) String() string {
	switch s {
	case Bid:
		return "bid"
	case Ask:
		return "ask"
	case Mid:
		return "mid"
	default:
		return fmt.Sprintf("Side(%d)", int(s))
	}
}

// Opposite is the side that maps onto s when an instrument is inverted.
func (s Side) Opposite() Side {
	switch s {
	case Bid:
		return Ask
	case Ask:
		return Bid
	default:
		return Mid
	}
}

type Quote struct {
	Instrument string
	Time       time.Time
	Bid        decimal.Decimal
	Ask        decimal.Decimal
	Mid        decimal.Decimal
}

var two = decimal.NewFromInt(2)

// NewQuote fixes Mid at (bid+ask)/2.
func NewQuote(instrument string, bid, ask decimal.Decimal, at time.Time) Quote {
	return Quote{
		Instrument: instrument,
		Time:       at,
		Bid:        bid,
		Ask:        ask,
		Mid:        bid.Add(ask).Div(two),
	}
}

func (q Quote) Price(side Side) decimal.Decimal {
	switch side {
	case Bid:
		return q.Bid
	case Ask:
		return q.Ask
	default:
		return q.Mid
	}
}
