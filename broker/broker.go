package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/carry/market"
	"github.com/shopspring/decimal"
)

// CloseAll closes the whole trade.
const CloseAll = "ALL"

// TxDailyFinancing is the transaction type carrying the daily swap.
const TxDailyFinancing = "DAILY_FINANCING"

type AccountReader interface {
	Account(ctx context.Context) (AccountSnapshot, error)
}

type TradeLister interface {
	OpenTrades(ctx context.Context) ([]OpenTrade, error)
}

type OrderPlacer interface {
	PlaceMarketOrder(ctx context.Context, req MarketOrderRequest) (OrderResult, error)
}

type TradeCloser interface {
	CloseTrade(ctx context.Context, tradeID, units string) (OrderResult, error)
}

type TransactionLister interface {
	Transactions(ctx context.Context, from, to, txType string) ([]Transaction, error)
}

// Platform is everything the jobs need from a broker account.
type Platform interface {
	market.QuoteSource
	AccountReader
	TradeLister
	OrderPlacer
	TradeCloser
	TransactionLister
}

type AccountSnapshot struct {
	ID              string
	Currency        string
	NAV             decimal.Decimal
	MarginUsed      decimal.Decimal
	MarginAvailable decimal.Decimal
	Time            time.Time
}

type OpenTrade struct {
	ID           string
	Instrument   string
	Price        decimal.Decimal
	CurrentUnits int64
	OpenTime     time.Time
	UnrealizedPL decimal.Decimal
	MarginUsed   decimal.Decimal
	Financing    decimal.Decimal
}

type MarketOrderRequest struct {
	Instrument string
	Units      int64 // signed: positive buys, negative sells
	ClientID   string
}

type OrderResult struct {
	OrderID       string
	TransactionID string
	TradeID       string
	Instrument    string
	Units         int64
	Price         decimal.Decimal
	Time          time.Time
}

type Transaction struct {
	ID         string
	Type       string
	Instrument string
	Time       time.Time
	Financing  decimal.Decimal
}

var ErrOrderRejected = errors.New("order rejected")

// RejectError is returned when the broker refuses an order or close.
type RejectError struct {
	Instrument string
	Units      int64
	Reason     string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("order rejected: %s %d: %s", e.Instrument, e.Units, e.Reason)
}

func (e *RejectError) Unwrap() error { return ErrOrderRejected }
