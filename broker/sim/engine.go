// Package sim is an in-memory broker account. It backs paper runs and the
// tests of everything that talks to a broker.
package sim

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rustyeddy/carry/broker"
	"github.com/rustyeddy/carry/calendar"
	"github.com/rustyeddy/carry/internal/id"
	"github.com/rustyeddy/carry/market"
	"github.com/rustyeddy/carry/risk"
	"github.com/shopspring/decimal"
)

var _ broker.Platform = (*Engine)(nil)

type Engine struct {
	mu       sync.Mutex
	id       string
	home     string
	balance  decimal.Decimal
	rates    risk.LeverageTable
	quotes   map[string]market.Quote
	trades   map[string]*Trade
	order    []string
	txs      []broker.Transaction
	rejects  map[string]string
	closeErr map[string]error
	calls    []string
	now      func() time.Time
}

// NewEngine opens an account holding balance in the home currency. rates
// sets the margin held per instrument.
func NewEngine(accountID, home string, balance decimal.Decimal, rates risk.LeverageTable) *Engine {
	return &Engine{
		id:       accountID,
		home:     home,
		balance:  balance,
		rates:    rates,
		quotes:   make(map[string]market.Quote),
		trades:   make(map[string]*Trade),
		rejects:  make(map[string]string),
		closeErr: make(map[string]error),
		now:      time.Now,
	}
}

// SetClock replaces time.Now, for deterministic fills.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// SetQuote stores a price and revalues open trades on that instrument.
func (e *Engine) SetQuote(q market.Quote) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.quotes[q.Instrument] = q
	e.revalueLocked()
}

// AddTrade seeds an open trade as the broker would report it.
func (e *Engine) AddTrade(t broker.OpenTrade) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t.ID == "" {
		t.ID = id.New()
	}
	e.trades[t.ID] = fromOpenTrade(t)
	e.order = append(e.order, t.ID)
}

func (e *Engine) AddTransaction(tx broker.Transaction) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if tx.ID == "" {
		tx.ID = strconv.Itoa(len(e.txs) + 1)
	}
	e.txs = append(e.txs, tx)
}

// Reject makes every order on instrument fail with reason.
func (e *Engine) Reject(instrument, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rejects[instrument] = reason
}

// FailClose makes closing tradeID return err.
func (e *Engine) FailClose(tradeID string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeErr[tradeID] = err
}

// Calls lists the mutating requests received, oldest first.
func (e *Engine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func (e *Engine) Quote(ctx context.Context, instrument string) (market.Quote, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	q, ok := e.quotes[instrument]
	if !ok {
		return market.Quote{}, fmt.Errorf("sim quote %s: %w", instrument, market.ErrQuoteNotFound)
	}
	return q, nil
}

func (e *Engine) Account(ctx context.Context) (broker.AccountSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.accountLocked(), nil
}

func (e *Engine) accountLocked() broker.AccountSnapshot {
	nav := e.balance
	used := decimal.Zero
	for _, t := range e.trades {
		nav = nav.Add(t.UnrealizedPL)
		used = used.Add(t.MarginUsed)
	}
	avail := nav.Sub(used)
	if avail.IsNegative() {
		avail = decimal.Zero
	}
	return broker.AccountSnapshot{
		ID:              e.id,
		Currency:        e.home,
		NAV:             nav,
		MarginUsed:      used,
		MarginAvailable: avail,
		Time:            e.now(),
	}
}

func (e *Engine) OpenTrades(ctx context.Context) ([]broker.OpenTrade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]broker.OpenTrade, 0, len(e.trades))
	for _, tid := range e.order {
		if t, ok := e.trades[tid]; ok {
			out = append(out, t.snapshot())
		}
	}
	return out, nil
}

func (e *Engine) PlaceMarketOrder(ctx context.Context, req broker.MarketOrderRequest) (broker.OrderResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls = append(e.calls, fmt.Sprintf("order %s %d", req.Instrument, req.Units))

	if reason, ok := e.rejects[req.Instrument]; ok {
		return broker.OrderResult{}, &broker.RejectError{Instrument: req.Instrument, Units: req.Units, Reason: reason}
	}
	if req.Units == 0 {
		return broker.OrderResult{}, &broker.RejectError{Instrument: req.Instrument, Reason: "UNITS_INVALID"}
	}

	q, ok := e.quotes[req.Instrument]
	if !ok {
		return broker.OrderResult{}, &broker.RejectError{Instrument: req.Instrument, Units: req.Units, Reason: "MARKET_HALTED"}
	}
	fill := q.Ask
	if req.Units < 0 {
		fill = q.Bid
	}

	margin := decimal.Zero
	if _, ok := e.rates[req.Instrument]; ok {
		m, err := risk.RequiredMargin(req.Instrument, req.Units, e.bookLocked(), e.rates, e.home)
		if err != nil {
			return broker.OrderResult{}, fmt.Errorf("sim margin: %w", err)
		}
		margin = m
	}
	if e.accountLocked().MarginAvailable.LessThan(margin) {
		return broker.OrderResult{}, &broker.RejectError{Instrument: req.Instrument, Units: req.Units, Reason: "INSUFFICIENT_MARGIN"}
	}

	now := e.now()
	tid := id.At(now)
	e.trades[tid] = &Trade{
		ID:         tid,
		Instrument: req.Instrument,
		Units:      req.Units,
		EntryPrice: fill,
		OpenTime:   now,
		MarginUsed: margin,
	}
	e.order = append(e.order, tid)

	return broker.OrderResult{
		OrderID:       req.ClientID,
		TransactionID: tid,
		TradeID:       tid,
		Instrument:    req.Instrument,
		Units:         req.Units,
		Price:         fill,
		Time:          now,
	}, nil
}

// CloseTrade closes all of a trade, or part of it when units is a count.
// Margin and unrealized P/L are released pro rata.
func (e *Engine) CloseTrade(ctx context.Context, tradeID, units string) (broker.OrderResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls = append(e.calls, fmt.Sprintf("close %s %s", tradeID, units))

	if err, ok := e.closeErr[tradeID]; ok {
		return broker.OrderResult{}, err
	}
	t, ok := e.trades[tradeID]
	if !ok {
		return broker.OrderResult{}, &broker.RejectError{Reason: fmt.Sprintf("TRADE_DOESNT_EXIST %s", tradeID)}
	}

	closing := abs(t.Units)
	if units != broker.CloseAll {
		n, err := strconv.ParseInt(units, 10, 64)
		if err != nil || n <= 0 {
			return broker.OrderResult{}, &broker.RejectError{Instrument: t.Instrument, Reason: fmt.Sprintf("CLOSE_UNITS_INVALID %q", units)}
		}
		if n < closing {
			closing = n
		}
	}

	price := t.EntryPrice
	if q, ok := e.quotes[t.Instrument]; ok {
		price = q.Price(t.closeSide())
	}

	frac := decimal.NewFromInt(closing).Div(decimal.NewFromInt(abs(t.Units)))
	realized := t.UnrealizedPL.Mul(frac)
	e.balance = e.balance.Add(realized)

	signed := closing
	if t.Units < 0 {
		signed = -closing
	}
	if closing == abs(t.Units) {
		delete(e.trades, tradeID)
		e.dropOrderLocked(tradeID)
	} else {
		t.MarginUsed = t.MarginUsed.Sub(t.MarginUsed.Mul(frac))
		t.UnrealizedPL = t.UnrealizedPL.Sub(realized)
		t.Units -= signed
	}

	return broker.OrderResult{
		TransactionID: id.At(e.now()),
		TradeID:       tradeID,
		Instrument:    t.Instrument,
		Units:         -signed,
		Price:         price,
		Time:          e.now(),
	}, nil
}

// Transactions returns transactions of txType dated from..to inclusive,
// in the order they were added.
func (e *Engine) Transactions(ctx context.Context, from, to, txType string) ([]broker.Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []broker.Transaction
	for _, tx := range e.txs {
		if txType != "" && tx.Type != txType {
			continue
		}
		day := tx.Time.UTC().Format(calendar.DateLayout)
		if day < from || day > to {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

// State is what an Engine carries from one paper run to the next. Quotes
// are not part of it.
type State struct {
	AccountID    string
	Home         string
	Balance      decimal.Decimal
	Trades       []broker.OpenTrade
	Transactions []broker.Transaction
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := State{
		AccountID:    e.id,
		Home:         e.home,
		Balance:      e.balance,
		Trades:       make([]broker.OpenTrade, 0, len(e.order)),
		Transactions: append([]broker.Transaction(nil), e.txs...),
	}
	for _, tid := range e.order {
		if t, ok := e.trades[tid]; ok {
			st.Trades = append(st.Trades, t.snapshot())
		}
	}
	return st
}

// Restore replaces the account with st. Open trades are revalued against
// whatever quotes are already set.
func (e *Engine) Restore(st State) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if st.AccountID != "" {
		e.id = st.AccountID
	}
	if st.Home != "" {
		e.home = st.Home
	}
	e.balance = st.Balance
	e.trades = make(map[string]*Trade, len(st.Trades))
	e.order = e.order[:0]
	for _, t := range st.Trades {
		e.trades[t.ID] = fromOpenTrade(t)
		e.order = append(e.order, t.ID)
	}
	e.txs = append([]broker.Transaction(nil), st.Transactions...)
	e.revalueLocked()
}

func (e *Engine) bookLocked() *market.PriceBook {
	qs := make([]market.Quote, 0, len(e.quotes))
	for _, q := range e.quotes {
		qs = append(qs, q)
	}
	return market.NewPriceBook(qs...)
}

// revalueLocked marks every trade to its close side, converted to the home
// currency. Trades whose quote currency cannot be converted keep their
// last value.
func (e *Engine) revalueLocked() {
	book := e.bookLocked()
	ids := make([]string, 0, len(e.trades))
	for tid := range e.trades {
		ids = append(ids, tid)
	}
	sort.Strings(ids)

	for _, tid := range ids {
		t := e.trades[tid]
		q, ok := e.quotes[t.Instrument]
		if !ok {
			continue
		}
		_, quoteCcy, err := market.Split(t.Instrument)
		if err != nil {
			continue
		}
		conv := decimal.NewFromInt(1)
		if quoteCcy != e.home {
			conv, err = book.Price(market.Pair(quoteCcy, e.home), market.Mid)
			if err != nil {
				continue
			}
		}
		move := q.Price(t.closeSide()).Sub(t.EntryPrice)
		t.UnrealizedPL = move.Mul(decimal.NewFromInt(t.Units)).Mul(conv)
	}
}

func (e *Engine) dropOrderLocked(tradeID string) {
	for i, tid := range e.order {
		if tid == tradeID {
			e.order = append(e.order[:i], e.order[i+1:]...)
			return
		}
	}
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
