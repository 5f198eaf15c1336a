package planner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rustyeddy/carry/broker"
	"github.com/rustyeddy/carry/broker/sim"
	"github.com/rustyeddy/carry/market"
	"github.com/rustyeddy/carry/risk"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var t0 = time.Date(2024, 10, 1, 0, 30, 0, 0, time.UTC)

var universe = Universe{Direct: "USD_JPY", Cross: "USD_MXN", HighYield: "TRY_JPY"}

type fakeRecorder struct {
	mu     sync.Mutex
	orders []string
	swap   float64
}

func (f *fakeRecorder) Order(instrument string, units int64, result string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, instrument+" "+result)
}

func (f *fakeRecorder) Swap(amount float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.swap = amount
}

func newAccount(t *testing.T, balance string) (*sim.Engine, *Accumulator, *fakeRecorder) {
	t.Helper()
	rates, err := risk.LeverageFor(risk.TierDemo)
	require.NoError(t, err)

	e := sim.NewEngine("SIM-001", "JPY", d(balance), rates)
	e.SetClock(func() time.Time { return t0 })
	e.SetQuote(market.NewQuote("USD_JPY", d("99.99"), d("100"), t0))
	e.SetQuote(market.NewQuote("USD_MXN", d("19.99"), d("20"), t0))
	e.SetQuote(market.NewQuote("TRY_JPY", d("3.99"), d("4"), t0))

	rec := &fakeRecorder{}
	acc := NewAccumulator(e, risk.NewVerifier(rates, "JPY"), d("3"), universe, WithRecorder(rec), WithJob("test"))
	return e, acc, rec
}

func TestDailyAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		monthly int64
		day     time.Time
		want    int64
	}{
		{"october 2024 has 23 weekdays", 230000, time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC), 10000},
		{"february 2024 has 21 weekdays", 210000, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), 10000},
		{"rounds to nearest unit", 230000, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), 10952},
		{"zero budget", 0, time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC), 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DailyAmount(tt.monthly, tt.day))
		})
	}
}

func TestUniverseFrom(t *testing.T) {
	t.Parallel()

	u, err := UniverseFrom([]string{"USD_JPY", "USD_MXN", "TRY_JPY"})
	require.NoError(t, err)
	assert.Equal(t, universe, u)
	assert.Equal(t, []string{"USD_JPY", "USD_MXN", "TRY_JPY"}, u.List())

	_, err = UniverseFrom([]string{"USD_JPY"})
	assert.Error(t, err)
}

func TestPlan_SignsAndSizes(t *testing.T) {
	t.Parallel()

	_, acc, _ := newAccount(t, "1000000")
	book := market.NewPriceBook(market.NewQuote("USD_JPY", d("100"), d("100"), t0))

	basket, err := acc.Plan(d("150000"), book)
	require.NoError(t, err)
	assert.Equal(t, risk.Basket{
		{Instrument: "USD_JPY", Units: 4500},
		{Instrument: "USD_MXN", Units: -4500},
		{Instrument: "TRY_JPY", Units: 50000},
	}, basket)
}

func TestExecutePurchase_SubmitsBasketInOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, acc, rec := newAccount(t, "1000000")

	res, err := acc.ExecutePurchase(ctx, d("150000"))
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, res.Status)
	require.Len(t, res.Submitted, 3)
	// 4500*100*0.022 + 4500*100*0.05 + 50000*4*0.25
	assert.True(t, res.Decision.RequiredMargin.Equal(d("82400")), "required %s", res.Decision.RequiredMargin)

	assert.Equal(t, []string{
		"order USD_JPY 4500",
		"order USD_MXN -4500",
		"order TRY_JPY 50000",
	}, e.Calls())
	assert.Equal(t, []string{"USD_JPY filled", "USD_MXN filled", "TRY_JPY filled"}, rec.orders)

	trades, err := e.OpenTrades(ctx)
	require.NoError(t, err)
	require.Len(t, trades, 3)
	assert.Equal(t, int64(-4500), trades[1].CurrentUnits)
}

func TestExecutePurchase_ClientIDsCarryJob(t *testing.T) {
	t.Parallel()

	_, acc, _ := newAccount(t, "1000000")
	res, err := acc.ExecutePurchase(context.Background(), d("30000"))
	require.NoError(t, err)
	for _, fill := range res.Submitted {
		assert.True(t, strings.HasPrefix(fill.OrderID, "test-"), fill.OrderID)
	}
}

func TestExecutePurchase_InsufficientMarginSubmitsNothing(t *testing.T) {
	t.Parallel()

	e, acc, _ := newAccount(t, "50000")

	res, err := acc.ExecutePurchase(context.Background(), d("150000"))
	require.NoError(t, err)
	assert.Equal(t, StatusInsufficientMargin, res.Status)
	assert.False(t, res.Decision.Allowed)
	assert.Empty(t, res.Submitted)
	assert.Empty(t, e.Calls())
	assert.Len(t, res.Basket, 3)
}

func TestExecutePurchase_NothingToInvest(t *testing.T) {
	t.Parallel()

	for _, amt := range []string{"0", "-10"} {
		amt := amt
		t.Run(amt, func(t *testing.T) {
			t.Parallel()
			e, acc, _ := newAccount(t, "1000000")
			res, err := acc.ExecutePurchase(context.Background(), d(amt))
			require.NoError(t, err)
			assert.Equal(t, StatusNothingToInvest, res.Status)
			assert.Empty(t, e.Calls())
		})
	}
}

func TestExecutePurchase_RejectStopsRemainingLegs(t *testing.T) {
	t.Parallel()

	e, acc, rec := newAccount(t, "1000000")
	e.Reject("USD_MXN", "FIFO_VIOLATION")

	res, err := acc.ExecutePurchase(context.Background(), d("150000"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, broker.ErrOrderRejected))
	assert.Contains(t, err.Error(), "leg 2 USD_MXN -4500")
	assert.Equal(t, StatusFailed, res.Status)
	require.Len(t, res.Submitted, 1)
	assert.Equal(t, "USD_JPY", res.Submitted[0].Instrument)

	assert.Equal(t, []string{"order USD_JPY 4500", "order USD_MXN -4500"}, e.Calls())
	assert.Equal(t, []string{"USD_JPY filled", "USD_MXN rejected"}, rec.orders)
}

func TestExecutePurchase_MissingQuoteFails(t *testing.T) {
	t.Parallel()

	rates, err := risk.LeverageFor(risk.TierDemo)
	require.NoError(t, err)
	e := sim.NewEngine("SIM-002", "JPY", d("1000000"), rates)
	e.SetQuote(market.NewQuote("USD_JPY", d("99.99"), d("100"), t0))
	acc := NewAccumulator(e, risk.NewVerifier(rates, "JPY"), d("3"), universe)

	res, err := acc.ExecutePurchase(context.Background(), d("150000"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, market.ErrQuoteNotFound))
	assert.Equal(t, StatusFailed, res.Status)
	assert.Empty(t, e.Calls())
}

func TestAccumulator_Run(t *testing.T) {
	t.Parallel()

	e, acc, _ := newAccount(t, "1000000")
	res, err := acc.Run(context.Background(), 230000, t0)
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, res.Status)
	assert.True(t, res.Amount.Equal(d("10000")))
	// round(10000*3/100), round(10000/3)
	assert.Equal(t, []string{"order USD_JPY 300", "order USD_MXN -300", "order TRY_JPY 3333"}, e.Calls())
}

func seedFinancing(e *sim.Engine) {
	e.AddTransaction(broker.Transaction{Type: broker.TxDailyFinancing, Time: time.Date(2024, 9, 26, 21, 0, 0, 0, time.UTC), Financing: d("7")})
	e.AddTransaction(broker.Transaction{Type: broker.TxDailyFinancing, Time: time.Date(2024, 9, 27, 21, 0, 0, 0, time.UTC), Financing: d("100000")})
	e.AddTransaction(broker.Transaction{Type: "ORDER_FILL", Time: time.Date(2024, 9, 28, 21, 0, 0, 0, time.UTC)})
	e.AddTransaction(broker.Transaction{Type: broker.TxDailyFinancing, Time: time.Date(2024, 9, 30, 21, 0, 0, 0, time.UTC), Financing: d("50000")})
}

func TestCompounder_DailySwap(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ref  time.Time
		want string
	}{
		{"monday reaches back to friday", time.Date(2024, 9, 30, 22, 0, 0, 0, time.UTC), "150000"},
		{"tuesday looks at monday", time.Date(2024, 10, 1, 22, 0, 0, 0, time.UTC), "50000"},
		{"nothing credited", time.Date(2024, 10, 10, 22, 0, 0, 0, time.UTC), "0"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, acc, rec := newAccount(t, "1000000")
			seedFinancing(e)
			c := NewCompounder(acc, e, rec)
			got, err := c.DailySwap(context.Background(), tt.ref)
			require.NoError(t, err)
			assert.True(t, got.Equal(d(tt.want)), "swap %s", got)
		})
	}
}

func TestCompounder_Run(t *testing.T) {
	t.Parallel()

	e, acc, rec := newAccount(t, "1000000")
	seedFinancing(e)
	c := NewCompounder(acc, e, rec)

	res, err := c.Run(context.Background(), time.Date(2024, 9, 30, 22, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, res.Status)
	assert.True(t, res.Amount.Equal(d("150000")))
	assert.Equal(t, float64(150000), rec.swap)
	assert.Equal(t, []string{
		"order USD_JPY 4500",
		"order USD_MXN -4500",
		"order TRY_JPY 50000",
	}, e.Calls())
}

func TestCompounder_Run_ZeroSwap(t *testing.T) {
	t.Parallel()

	e, acc, rec := newAccount(t, "1000000")
	c := NewCompounder(acc, e, rec)

	res, err := c.Run(context.Background(), time.Date(2024, 10, 2, 22, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, StatusNothingToInvest, res.Status)
	assert.Empty(t, e.Calls())
}
