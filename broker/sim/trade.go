package sim

import (
	"time"

	"github.com/rustyeddy/carry/broker"
	"github.com/rustyeddy/carry/market"
	"github.com/shopspring/decimal"
)

type Trade struct {
	ID         string
	Instrument string
	Units      int64
	EntryPrice decimal.Decimal
	OpenTime   time.Time

	MarginUsed   decimal.Decimal // home currency
	UnrealizedPL decimal.Decimal // home currency
	Financing    decimal.Decimal
}

func (t *Trade) snapshot() broker.OpenTrade {
	return broker.OpenTrade{
		ID:           t.ID,
		Instrument:   t.Instrument,
		Price:        t.EntryPrice,
		CurrentUnits: t.Units,
		OpenTime:     t.OpenTime,
		UnrealizedPL: t.UnrealizedPL,
		MarginUsed:   t.MarginUsed,
		Financing:    t.Financing,
	}
}

func fromOpenTrade(t broker.OpenTrade) *Trade {
	return &Trade{
		ID:           t.ID,
		Instrument:   t.Instrument,
		Units:        t.CurrentUnits,
		EntryPrice:   t.Price,
		OpenTime:     t.OpenTime,
		MarginUsed:   t.MarginUsed,
		UnrealizedPL: t.UnrealizedPL,
		Financing:    t.Financing,
	}
}

// closeSide is the price a trade closes at: longs sell on the bid, shorts
// buy back on the ask.
func (t *Trade) closeSide() market.Side {
	if t.Units > 0 {
		return market.Bid
	}
	return market.Ask
}
