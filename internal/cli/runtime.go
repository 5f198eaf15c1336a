package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/rustyeddy/carry/broker"
	"github.com/rustyeddy/carry/broker/oanda"
	"github.com/rustyeddy/carry/broker/sim"
	"github.com/rustyeddy/carry/calendar"
	"github.com/rustyeddy/carry/config"
	"github.com/rustyeddy/carry/internal/id"
	"github.com/rustyeddy/carry/internal/logging"
	"github.com/rustyeddy/carry/internal/metrics"
	"github.com/rustyeddy/carry/job"
	"github.com/rustyeddy/carry/market"
	"github.com/rustyeddy/carry/planner"
	"github.com/rustyeddy/carry/risk"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// runtime is what a job command needs, built once from the config.
type runtime struct {
	cfg      *config.Config
	log      *zap.Logger
	rec      *metrics.Recorder
	platform broker.Platform
	rates    risk.LeverageTable
	universe planner.Universe

	// paper runs only
	paper *sim.Engine
	store *sim.Store
}

func (rc *RootConfig) load(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(rc.ConfigPath)
	if err != nil {
		return nil, err
	}
	if rc.LogLevel != "" {
		cfg.Log.Level = rc.LogLevel
	}
	log, err := logging.New(cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	tier, err := cfg.Tier()
	if err != nil {
		return nil, err
	}
	rates, err := risk.LeverageFor(tier)
	if err != nil {
		return nil, err
	}
	universe, err := planner.UniverseFrom(cfg.Strategy.Instruments)
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		cfg:      cfg,
		log:      log,
		rec:      metrics.NewRecorder(),
		rates:    rates,
		universe: universe,
	}

	if rc.Paper {
		if err := rt.openPaper(ctx); err != nil {
			return nil, err
		}
		return rt, nil
	}

	if err := cfg.ValidateLive(); err != nil {
		return nil, err
	}
	base := cfg.Account.BaseURL
	if base == "" {
		base = oanda.BaseURL(tier.Practice())
	}
	timeout, _ := cfg.Broker.ParseTimeout()
	client, err := oanda.NewClient(oanda.Options{
		BaseURL:    base,
		Token:      cfg.Account.Token,
		AccountID:  cfg.Account.ID,
		Timeout:    timeout,
		MaxRetries: cfg.Broker.MaxRetries,
		RateLimit:  cfg.Broker.RateLimit,
	}, log)
	if err != nil {
		return nil, err
	}
	rt.platform = client
	log.Info("broker",
		zap.String("tier", string(tier)),
		zap.String("url", base),
		zap.String("account", cfg.Account.ID))
	return rt, nil
}

// openPaper builds the in-memory account, restoring it from the state file
// when one is configured and already holds an account.
func (rt *runtime) openPaper(ctx context.Context) error {
	cfg := rt.cfg
	e := paperEngine(cfg, rt.rates)
	rt.paper = e
	rt.platform = e

	if cfg.Paper.StatePath == "" {
		rt.log.Info("paper trading", zap.Float64("balance", cfg.Paper.Balance))
		return nil
	}

	store, err := sim.OpenStore(cfg.Paper.StatePath)
	if err != nil {
		return fmt.Errorf("paper state %s: %w", cfg.Paper.StatePath, err)
	}
	st, ok, err := store.Load(ctx)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("paper state %s: %w", cfg.Paper.StatePath, err)
	}
	if ok {
		e.Restore(st)
	}
	rt.store = store

	acct, _ := e.Account(ctx)
	rt.log.Info("paper trading",
		zap.String("state", cfg.Paper.StatePath),
		zap.Bool("restored", ok),
		zap.String("account", acct.ID),
		zap.String("nav", acct.NAV.String()))
	return nil
}

// paperEngine seeds an in-memory account with the configured balance and
// quotes.
func paperEngine(cfg *config.Config, rates risk.LeverageTable) *sim.Engine {
	acct := cfg.Account.ID
	if acct == "" {
		acct = "PAPER-" + id.New()
	}
	e := sim.NewEngine(acct, cfg.Account.HomeCurrency, decimal.NewFromFloat(cfg.Paper.Balance), rates)
	now := time.Now()
	for _, q := range cfg.Paper.Quotes {
		e.SetQuote(market.NewQuote(q.Instrument, decimal.NewFromFloat(q.Bid), decimal.NewFromFloat(q.Ask), now))
	}
	return e
}

func (rt *runtime) accumulator(jobName string, log *zap.Logger) *planner.Accumulator {
	return planner.NewAccumulator(
		rt.platform,
		risk.NewVerifier(rt.rates, rt.cfg.Account.HomeCurrency),
		decimal.NewFromFloat(rt.cfg.Strategy.Leverage),
		rt.universe,
		planner.WithLogger(log),
		planner.WithRecorder(rt.rec),
		planner.WithJob(jobName),
	)
}

func (rt *runtime) session() *calendar.Session {
	return calendar.NewSession(rt.cfg.Session.UTCOffsetHours)
}

// run executes fn as a job, pushes metrics and turns a failed outcome into
// an error so the process exits non-zero. A paper account with a state
// file is saved whatever the outcome.
func (rt *runtime) run(ctx context.Context, name string, fn job.Func) error {
	defer func() { _ = rt.log.Sync() }()

	out := job.Run(ctx, rt.log, rt.rec, name, fn)
	if err := rt.rec.Push(ctx, rt.cfg.Metrics.PushgatewayURL, "carry"); err != nil {
		rt.log.Warn("metrics push failed", zap.Error(err))
	}
	if err := rt.savePaper(ctx, out.RunID); err != nil {
		return err
	}

	fmt.Println(out.String())
	if !out.OK {
		return fmt.Errorf("%s: %s", out.Status, out.Message)
	}
	return nil
}

func (rt *runtime) savePaper(ctx context.Context, runID string) error {
	if rt.store == nil {
		return nil
	}
	defer rt.store.Close()

	if err := rt.store.Save(ctx, rt.paper.State(), runID); err != nil {
		return fmt.Errorf("save paper state: %w", err)
	}
	rt.log.Debug("paper state saved", zap.String("path", rt.cfg.Paper.StatePath))
	return nil
}

// parseDate reads a YYYY-MM-DD flag as a UTC day, defaulting to now.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.ParseInLocation(calendar.DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q (want %s): %w", s, calendar.DateLayout, err)
	}
	return t, nil
}

// parseAt reads an RFC3339 flag, defaulting to now.
func parseAt(s string) (time.Time, error) {
	if s == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at %q (want RFC3339): %w", s, err)
	}
	return t, nil
}
