package oanda

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rustyeddy/carry/broker"
	"github.com/shopspring/decimal"
)

var _ broker.Platform = (*Client)(nil)

type accountSummary struct {
	Account struct {
		ID              string `json:"id"`
		Currency        string `json:"currency"`
		NAV             string `json:"NAV"`
		MarginUsed      string `json:"marginUsed"`
		MarginAvailable string `json:"marginAvailable"`
	} `json:"account"`
}

type apiTrade struct {
	ID           string `json:"id"`
	Instrument   string `json:"instrument"`
	Price        string `json:"price"`
	OpenTime     string `json:"openTime"`
	CurrentUnits string `json:"currentUnits"`
	UnrealizedPL string `json:"unrealizedPL"`
	MarginUsed   string `json:"marginUsed"`
	Financing    string `json:"financing"`
}

type openTradesResponse struct {
	Trades []apiTrade `json:"trades"`
}

func (c *Client) Account(ctx context.Context) (broker.AccountSnapshot, error) {
	var resp accountSummary
	if err := c.get(ctx, c.accountPath("/summary"), nil, &resp); err != nil {
		return broker.AccountSnapshot{}, fmt.Errorf("account summary: %w", err)
	}

	var p parser
	a := resp.Account
	snap := broker.AccountSnapshot{
		ID:              a.ID,
		Currency:        a.Currency,
		NAV:             p.num("NAV", a.NAV),
		MarginUsed:      p.num("marginUsed", a.MarginUsed),
		MarginAvailable: p.num("marginAvailable", a.MarginAvailable),
		Time:            time.Now().UTC(),
	}
	if p.err != nil {
		return broker.AccountSnapshot{}, fmt.Errorf("account summary: %w", p.err)
	}
	return snap, nil
}

func (c *Client) OpenTrades(ctx context.Context) ([]broker.OpenTrade, error) {
	var resp openTradesResponse
	if err := c.get(ctx, c.accountPath("/openTrades"), nil, &resp); err != nil {
		return nil, fmt.Errorf("open trades: %w", err)
	}

	out := make([]broker.OpenTrade, 0, len(resp.Trades))
	for _, t := range resp.Trades {
		var p parser
		ot := broker.OpenTrade{
			ID:           t.ID,
			Instrument:   t.Instrument,
			Price:        p.num("price", t.Price),
			CurrentUnits: p.units("currentUnits", t.CurrentUnits),
			OpenTime:     p.stamp("openTime", t.OpenTime),
			UnrealizedPL: p.num("unrealizedPL", t.UnrealizedPL),
			MarginUsed:   p.num("marginUsed", t.MarginUsed),
			Financing:    p.num("financing", t.Financing),
		}
		if p.err != nil {
			return nil, fmt.Errorf("open trade %s: %w", t.ID, p.err)
		}
		out = append(out, ot)
	}
	return out, nil
}

// parser collects the first conversion error across several fields.
// Empty strings parse as zero.
type parser struct {
	err error
}

func (p *parser) num(field, s string) decimal.Decimal {
	if p.err != nil || s == "" {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		p.err = fmt.Errorf("%s %q: %w", field, s, err)
	}
	return v
}

func (p *parser) units(field, s string) int64 {
	if p.err != nil || s == "" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	// units may come back as "100.0"
	v, err := decimal.NewFromString(s)
	if err != nil {
		p.err = fmt.Errorf("%s %q: %w", field, s, err)
		return 0
	}
	return v.IntPart()
}

func (p *parser) stamp(field, s string) time.Time {
	if p.err != nil || s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		p.err = fmt.Errorf("%s %q: %w", field, s, err)
	}
	return t
}
