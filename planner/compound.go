package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/rustyeddy/carry/broker"
	"github.com/rustyeddy/carry/calendar"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SwapRecorder records the harvested financing. *metrics.Recorder
// satisfies it.
type SwapRecorder interface {
	Swap(amount float64)
}

// Compounder reinvests the financing credited since the last business day.
type Compounder struct {
	acc *Accumulator
	txs broker.TransactionLister
	log *zap.Logger
	rec SwapRecorder
}

func NewCompounder(acc *Accumulator, txs broker.TransactionLister, rec SwapRecorder) *Compounder {
	return &Compounder{
		acc: acc,
		txs: txs,
		log: acc.log.With(zap.String("job", "compound")),
		rec: rec,
	}
}

// DailySwap sums the DAILY_FINANCING credits in ref's financing window.
func (c *Compounder) DailySwap(ctx context.Context, ref time.Time) (decimal.Decimal, error) {
	from, to := calendar.FinancingWindow(ref)
	txs, err := c.txs.Transactions(ctx, from, to, broker.TxDailyFinancing)
	if err != nil {
		return decimal.Zero, fmt.Errorf("financing %s..%s: %w", from, to, err)
	}

	sum := decimal.Zero
	n := 0
	for _, tx := range txs {
		if tx.Type != broker.TxDailyFinancing {
			continue
		}
		sum = sum.Add(tx.Financing)
		n++
	}
	c.log.Info("daily swap",
		zap.String("from", from),
		zap.String("to", to),
		zap.Int("transactions", n),
		zap.String("swap", sum.String()))
	return sum, nil
}

// Run harvests the swap for ref and buys a basket with it. A zero or
// negative swap buys nothing.
func (c *Compounder) Run(ctx context.Context, ref time.Time) (Result, error) {
	swap, err := c.DailySwap(ctx, ref)
	if err != nil {
		return Result{Status: StatusFailed}, err
	}
	if c.rec != nil {
		c.rec.Swap(swap.InexactFloat64())
	}
	if swap.Sign() <= 0 {
		c.log.Info("nothing to invest", zap.String("swap", swap.String()))
		return Result{Status: StatusNothingToInvest, Amount: swap}, nil
	}
	return c.acc.ExecutePurchase(ctx, swap)
}
