// Package protect keeps an account away from a margin call by closing the
// worst trade of each instrument until the maintenance ratio recovers.
package protect

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rustyeddy/carry/broker"
	"github.com/rustyeddy/carry/calendar"
	"github.com/rustyeddy/carry/risk"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultThresholdPct = 105
	DefaultTopN         = 10
)

type State int

const (
	Healthy State = iota
	UnderThreshold
	// Exhausted means the ratio is still under threshold but a fresh pass
	// found nothing to close.
	Exhausted
	// OutsideSession means the run was skipped because the market is shut.
	OutsideSession
)

func (s State) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case UnderThreshold:
		return "under_threshold"
	case Exhausted:
		return "exhausted"
	case OutsideSession:
		return "outside_session"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Positions holds, per instrument, the open trades in the order they will
// be closed.
type Positions map[string][]broker.OpenTrade

// Recorder receives trim and ratio observations. *metrics.Recorder
// satisfies it.
type Recorder interface {
	Trim(instrument string)
	Maintenance(pct float64)
}

type nopRecorder struct{}

func (nopRecorder) Trim(string)         {}
func (nopRecorder) Maintenance(float64) {}

// IsUnderThreshold reports whether NAV / margin used * 100 is below
// thresholdPct. An account with no margin in use is never under.
func IsUnderThreshold(acct broker.AccountSnapshot, thresholdPct decimal.Decimal) bool {
	pct, ok := risk.MaintenanceRatio(acct)
	return ok && pct.LessThan(thresholdPct)
}

// SelectWorst groups trades by instrument and orders each group so the
// least favourable lot comes first: highest price for a net long, lowest
// for a net short. Instruments outside universe are dropped and each list
// is cut to topN. Every universe instrument gets an entry.
func SelectWorst(trades []broker.OpenTrade, universe []string, topN int) Positions {
	pos := make(Positions, len(universe))
	for _, in := range universe {
		pos[in] = []broker.OpenTrade{}
	}
	for _, t := range trades {
		if list, ok := pos[t.Instrument]; ok {
			pos[t.Instrument] = append(list, t)
		}
	}

	for in, list := range pos {
		var net int64
		for _, t := range list {
			net += t.CurrentUnits
		}
		long := net > 0
		sort.SliceStable(list, func(i, j int) bool {
			if long {
				return list[i].Price.GreaterThan(list[j].Price)
			}
			return list[i].Price.LessThan(list[j].Price)
		})
		if topN >= 0 && len(list) > topN {
			list = list[:topN]
		}
		pos[in] = list
	}
	return pos
}

type Result struct {
	State State
	// Closed lists the trade ids closed, in order.
	Closed         []string
	Fills          []broker.OrderResult
	Iterations     int
	MaintenancePct decimal.Decimal
	HasMaintenance bool
	// On Exhausted: the universe trades still open, and the first
	// instrument with none, which is where the pass stopped.
	OpenTracked int
	BlockedOn   string
}

type Protector struct {
	platform  broker.Platform
	universe  []string
	threshold decimal.Decimal
	topN      int
	session   *calendar.Session
	log       *zap.Logger
	rec       Recorder
}

type Option func(*Protector)

func WithThreshold(pct float64) Option {
	return func(p *Protector) { p.threshold = decimal.NewFromFloat(pct) }
}

func WithTopN(n int) Option {
	return func(p *Protector) { p.topN = n }
}

// WithSession gates Run on the trading week. Without it Run always
// proceeds.
func WithSession(s *calendar.Session) Option {
	return func(p *Protector) { p.session = s }
}

func WithLogger(log *zap.Logger) Option {
	return func(p *Protector) { p.log = log }
}

func WithRecorder(rec Recorder) Option {
	return func(p *Protector) { p.rec = rec }
}

func NewProtector(p broker.Platform, universe []string, opts ...Option) *Protector {
	pr := &Protector{
		platform:  p,
		universe:  append([]string(nil), universe...),
		threshold: decimal.NewFromInt(DefaultThresholdPct),
		topN:      DefaultTopN,
		log:       zap.NewNop(),
		rec:       nopRecorder{},
	}
	for _, o := range opts {
		o(pr)
	}
	pr.log = pr.log.With(zap.String("component", "protect"))
	return pr
}

// TrimOnce closes the first trade of every universe instrument, in universe
// order. An empty state is refreshed from the broker first. When an
// instrument has nothing left the pass stops there and returns a nil state
// so the next pass starts from fresh data. The close fills are returned
// along with whatever state remains.
func (p *Protector) TrimOnce(ctx context.Context, state Positions) (Positions, []broker.OrderResult, error) {
	if len(state) == 0 {
		trades, err := p.platform.OpenTrades(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("open trades: %w", err)
		}
		state = SelectWorst(trades, p.universe, p.topN)
	}

	next := make(Positions, len(state))
	for k, v := range state {
		next[k] = v
	}

	var closed []broker.OrderResult
	for _, in := range p.universe {
		list := next[in]
		if len(list) == 0 {
			p.log.Info("no trades left, resyncing", zap.String("instrument", in))
			return nil, closed, nil
		}
		worst := list[0]
		fill, err := p.platform.CloseTrade(ctx, worst.ID, broker.CloseAll)
		if err != nil {
			return nil, closed, fmt.Errorf("close trade %s %s: %w", worst.ID, in, err)
		}
		p.rec.Trim(in)
		p.log.Info("trade closed",
			zap.String("id", worst.ID),
			zap.String("instrument", worst.Instrument),
			zap.String("price", worst.Price.String()),
			zap.Int64("units", worst.CurrentUnits))
		if fill.TradeID == "" {
			fill.TradeID = worst.ID
		}
		closed = append(closed, fill)
		next[in] = list[1:]
	}
	return next, closed, nil
}

// Run trims until the account is healthy or nothing is left to trim. The
// session is checked once, against now, before anything else.
func (p *Protector) Run(ctx context.Context, now time.Time) (Result, error) {
	if p.session != nil && !p.session.IsOpen(now) {
		p.log.Info("outside trading session", zap.Time("at", now))
		return Result{State: OutsideSession}, nil
	}

	res := Result{State: Healthy}
	acct, err := p.platform.Account(ctx)
	if err != nil {
		return res, fmt.Errorf("account snapshot: %w", err)
	}
	p.observe(&res, acct)

	var state Positions
	for IsUnderThreshold(acct, p.threshold) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.State = UnderThreshold
		p.log.Warn("maintenance ratio under threshold",
			zap.String("ratio", res.MaintenancePct.StringFixed(2)),
			zap.String("threshold", p.threshold.String()))

		fresh := len(state) == 0
		next, closed, err := p.TrimOnce(ctx, state)
		res.Iterations++
		for _, f := range closed {
			res.Closed = append(res.Closed, f.TradeID)
			res.Fills = append(res.Fills, f)
		}
		if err != nil {
			return res, err
		}
		if fresh && len(closed) == 0 {
			res.State = Exhausted
			if err := p.leftovers(ctx, &res); err != nil {
				return res, err
			}
			p.log.Error("nothing left to trim",
				zap.String("ratio", res.MaintenancePct.StringFixed(2)),
				zap.Int("closed", len(res.Closed)),
				zap.Int("open_tracked", res.OpenTracked),
				zap.String("blocked_on", res.BlockedOn))
			return res, nil
		}
		state = next

		acct, err = p.platform.Account(ctx)
		if err != nil {
			return res, fmt.Errorf("account snapshot: %w", err)
		}
		p.observe(&res, acct)
	}

	res.State = Healthy
	if res.Iterations > 0 {
		p.log.Info("maintenance ratio restored",
			zap.String("ratio", res.MaintenancePct.StringFixed(2)),
			zap.Int("closed", len(res.Closed)),
			zap.Int("iterations", res.Iterations))
	}
	return res, nil
}

func (p *Protector) leftovers(ctx context.Context, res *Result) error {
	trades, err := p.platform.OpenTrades(ctx)
	if err != nil {
		return fmt.Errorf("open trades: %w", err)
	}
	pos := SelectWorst(trades, p.universe, -1)
	for _, in := range p.universe {
		res.OpenTracked += len(pos[in])
		if res.BlockedOn == "" && len(pos[in]) == 0 {
			res.BlockedOn = in
		}
	}
	return nil
}

func (p *Protector) observe(res *Result, acct broker.AccountSnapshot) {
	pct, ok := risk.MaintenanceRatio(acct)
	res.MaintenancePct = pct
	res.HasMaintenance = ok
	if ok {
		p.rec.Maintenance(pct.InexactFloat64())
	}
}
