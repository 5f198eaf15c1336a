// Package planner turns a home-currency budget into the three-leg carry
// basket and submits it once the account can carry it.
package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/carry/broker"
	"github.com/rustyeddy/carry/calendar"
	"github.com/rustyeddy/carry/internal/id"
	"github.com/rustyeddy/carry/market"
	"github.com/rustyeddy/carry/risk"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Status string

const (
	StatusSubmitted          Status = "submitted"
	StatusInsufficientMargin Status = "insufficient_margin"
	StatusNothingToInvest    Status = "nothing_to_invest"
	StatusFailed             Status = "failed"
)

// OrderRecorder counts order outcomes. *metrics.Recorder satisfies it.
type OrderRecorder interface {
	Order(instrument string, units int64, result string)
}

type nopRecorder struct{}

func (nopRecorder) Order(string, int64, string) {}

// Universe names the three legs. Direct is quoted in the home currency,
// Cross shares Direct's base and is sold, HighYield is bought and sized
// inversely to leverage.
type Universe struct {
	Direct    string
	Cross     string
	HighYield string
}

func UniverseFrom(instruments []string) (Universe, error) {
	if len(instruments) != 3 {
		return Universe{}, fmt.Errorf("universe needs 3 instruments, got %d", len(instruments))
	}
	return Universe{Direct: instruments[0], Cross: instruments[1], HighYield: instruments[2]}, nil
}

func (u Universe) List() []string {
	return []string{u.Direct, u.Cross, u.HighYield}
}

type Result struct {
	Status    Status
	Amount    decimal.Decimal
	Basket    risk.Basket
	Decision  risk.Decision
	Submitted []broker.OrderResult
}

type Accumulator struct {
	platform broker.Platform
	verifier *risk.Verifier
	leverage decimal.Decimal
	universe Universe
	home     string
	job      string
	log      *zap.Logger
	rec      OrderRecorder
}

type Option func(*Accumulator)

func WithLogger(log *zap.Logger) Option {
	return func(a *Accumulator) { a.log = log }
}

func WithRecorder(rec OrderRecorder) Option {
	return func(a *Accumulator) { a.rec = rec }
}

// WithJob sets the prefix of client order ids.
func WithJob(job string) Option {
	return func(a *Accumulator) { a.job = job }
}

func NewAccumulator(p broker.Platform, v *risk.Verifier, leverage decimal.Decimal, u Universe, opts ...Option) *Accumulator {
	a := &Accumulator{
		platform: p,
		verifier: v,
		leverage: leverage,
		universe: u,
		home:     v.Home,
		job:      "accumulate",
		log:      zap.NewNop(),
		rec:      nopRecorder{},
	}
	for _, o := range opts {
		o(a)
	}
	a.log = a.log.With(zap.String("component", "planner"))
	return a
}

// DailyAmount spreads a monthly budget evenly over the weekdays of day's
// month.
func DailyAmount(monthly int64, day time.Time) int64 {
	n := calendar.WeekdaysInMonth(day)
	if n == 0 {
		return 0
	}
	return decimal.NewFromInt(monthly).Div(decimal.NewFromInt(int64(n))).Round(0).IntPart()
}

// Run invests the daily share of monthly for day.
func (a *Accumulator) Run(ctx context.Context, monthly int64, day time.Time) (Result, error) {
	amount := DailyAmount(monthly, day)
	a.log.Info("daily amount",
		zap.Int64("monthly", monthly),
		zap.Int("weekdays", calendar.WeekdaysInMonth(day)),
		zap.Int64("amount", amount))
	return a.ExecutePurchase(ctx, decimal.NewFromInt(amount))
}

// Plan sizes the basket for amount against book without touching the
// account.
func (a *Accumulator) Plan(amount decimal.Decimal, book *market.PriceBook) (risk.Basket, error) {
	u, err := risk.SizeDirect(amount, a.leverage, book, a.universe.Direct)
	if err != nil {
		return nil, err
	}
	t := risk.SizeInverse(amount, a.leverage)
	return risk.Basket{
		{Instrument: a.universe.Direct, Units: u},
		{Instrument: a.universe.Cross, Units: -u},
		{Instrument: a.universe.HighYield, Units: t},
	}, nil
}

// ExecutePurchase prices, sizes, verifies and submits one basket. Legs go
// out in order; the first failure stops the rest and nothing already
// filled is undone. A refused basket is reported in the Result, not as an
// error.
func (a *Accumulator) ExecutePurchase(ctx context.Context, amount decimal.Decimal) (Result, error) {
	res := Result{Amount: amount}
	if amount.Sign() <= 0 {
		res.Status = StatusNothingToInvest
		a.log.Info("nothing to invest", zap.String("amount", amount.String()))
		return res, nil
	}

	book, err := market.Snapshot(ctx, a.platform, a.pricedPairs())
	if err != nil {
		res.Status = StatusFailed
		return res, fmt.Errorf("price basket: %w", err)
	}

	basket, err := a.Plan(amount, book)
	if err != nil {
		res.Status = StatusFailed
		return res, fmt.Errorf("size basket: %w", err)
	}
	res.Basket = basket

	acct, err := a.platform.Account(ctx)
	if err != nil {
		res.Status = StatusFailed
		return res, fmt.Errorf("account snapshot: %w", err)
	}

	dec, err := a.verifier.VerifyBasket(basket, book, acct)
	if err != nil {
		res.Status = StatusFailed
		return res, fmt.Errorf("verify basket: %w", err)
	}
	res.Decision = dec

	if !dec.Allowed {
		res.Status = StatusInsufficientMargin
		a.log.Warn("basket refused",
			zap.Stringer("basket", basket),
			zap.String("required", dec.RequiredMargin.StringFixed(0)),
			zap.String("available", acct.MarginAvailable.StringFixed(0)),
			zap.String("reason", dec.Reason()))
		return res, nil
	}

	for i, leg := range basket {
		if leg.Units == 0 {
			a.log.Warn("skipping zero-unit leg", zap.String("instrument", leg.Instrument))
			continue
		}
		fill, err := a.platform.PlaceMarketOrder(ctx, broker.MarketOrderRequest{
			Instrument: leg.Instrument,
			Units:      leg.Units,
			ClientID:   id.ClientOrderID(a.job),
		})
		if err != nil {
			a.rec.Order(leg.Instrument, leg.Units, orderResult(err))
			res.Status = StatusFailed
			return res, fmt.Errorf("leg %d %s %+d: %w", i+1, leg.Instrument, leg.Units, err)
		}
		a.rec.Order(leg.Instrument, leg.Units, "filled")
		a.log.Info("leg filled",
			zap.String("instrument", fill.Instrument),
			zap.Int64("units", fill.Units),
			zap.String("price", fill.Price.String()))
		res.Submitted = append(res.Submitted, fill)
	}

	res.Status = StatusSubmitted
	return res, nil
}

// pricedPairs is the universe plus any BASE_HOME pair needed to convert a
// leg's margin into the home currency.
func (a *Accumulator) pricedPairs() []string {
	pairs := a.universe.List()
	seen := map[string]bool{}
	for _, p := range pairs {
		seen[p] = true
	}
	for _, p := range a.universe.List() {
		base, _, err := market.Split(p)
		if err != nil || base == a.home {
			continue
		}
		conv := market.Pair(base, a.home)
		if !seen[conv] {
			seen[conv] = true
			pairs = append(pairs, conv)
		}
	}
	return pairs
}

func orderResult(err error) string {
	if errors.Is(err, broker.ErrOrderRejected) {
		return "rejected"
	}
	return "error"
}
