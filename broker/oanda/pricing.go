package oanda

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rustyeddy/carry/market"
	"github.com/shopspring/decimal"
)

type priceBucket struct {
	Price string `json:"price"`
}

type clientPrice struct {
	Type       string        `json:"type"`
	Time       string        `json:"time"`
	Instrument string        `json:"instrument"`
	Tradeable  bool          `json:"tradeable"`
	Bids       []priceBucket `json:"bids"`
	Asks       []priceBucket `json:"asks"`
}

type pricingResponse struct {
	Prices []clientPrice `json:"prices"`
}

// Quote returns the top of book for one instrument.
func (c *Client) Quote(ctx context.Context, instrument string) (market.Quote, error) {
	q := url.Values{}
	q.Set("instruments", instrument)

	var resp pricingResponse
	if err := c.get(ctx, c.accountPath("/pricing"), q, &resp); err != nil {
		return market.Quote{}, fmt.Errorf("pricing %s: %w", instrument, err)
	}

	for _, p := range resp.Prices {
		if p.Instrument != "" && p.Instrument != instrument {
			continue
		}
		if len(p.Bids) == 0 || len(p.Asks) == 0 {
			return market.Quote{}, fmt.Errorf("pricing %s: empty book: %w", instrument, market.ErrQuoteNotFound)
		}
		bid, err := decimal.NewFromString(p.Bids[0].Price)
		if err != nil {
			return market.Quote{}, fmt.Errorf("pricing %s: bid %q: %w", instrument, p.Bids[0].Price, err)
		}
		ask, err := decimal.NewFromString(p.Asks[0].Price)
		if err != nil {
			return market.Quote{}, fmt.Errorf("pricing %s: ask %q: %w", instrument, p.Asks[0].Price, err)
		}
		at, _ := time.Parse(time.RFC3339Nano, p.Time)
		return market.NewQuote(instrument, bid, ask, at), nil
	}

	return market.Quote{}, fmt.Errorf("pricing %s: %w", instrument, market.ErrQuoteNotFound)
}
