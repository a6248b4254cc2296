package runner

import (
	"context"
	"reflect"
	"testing"
	"time"

	"crypto-trading-bot/internal/execution"
	"crypto-trading-bot/internal/feed"
	"crypto-trading-bot/internal/logging"
	"crypto-trading-bot/internal/market"
	"crypto-trading-bot/internal/order"
	"crypto-trading-bot/internal/portfolio"
	"crypto-trading-bot/internal/risk"
	"crypto-trading-bot/internal/sim"
	"crypto-trading-bot/internal/strategy"
)

func testLogger() *logging.Logger {
	return logging.New(&logging.Config{Level: "error", Output: "stderr", JSONFormat: true})
}

func newBacktestRunner(t *testing.T, id string, candles int, rules ...risk.Rule) *Runner {
	t.Helper()
	log := testLogger()

	strat, err := strategy.NewSMACrossover("BTCUSDT", "1m", strategy.Params{
		"fast_period": 3, "slow_period": 8, "quantity": 1,
	})
	if err != nil {
		t.Fatalf("strategy: %v", err)
	}

	pf := portfolio.New(id, 10000, portfolio.Limits{FeeEstimateRate: 0.001})
	re := risk.NewEngine(10000, log)
	for _, r := range rules {
		re.AddRule(r)
	}
	s := sim.New(sim.Config{TakerFeeRate: 0.001, Seed: 0}, log)
	engine := execution.New(id, execution.Config{}, pf, re, s, nil, log)

	mock := feed.NewMockFeed(feed.MockConfig{StartPrice: 100, Volatility: 0.01, Seed: 42}, log)

	return New(id, strat, mock, engine, pf, Config{
		Start: 0, End: 60000 * int64(candles), SnapshotEvery: 25,
	}, nil, log)
}

func TestRunnerBacktestCompletes(t *testing.T) {
	r := newBacktestRunner(t, "bot-1", 300)
	if r.Status() != StatusStopped {
		t.Fatalf("initial status = %s", r.Status())
	}

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if r.Status() != StatusStopped {
		t.Errorf("final status = %s, want STOPPED", r.Status())
	}

	rep := r.Report()
	if rep.EventsProcessed != 300 {
		t.Errorf("events processed = %d, want 300", rep.EventsProcessed)
	}
	// Replay feeds must block, never shed: the range is wider than the
	// default queue and still arrives whole.
	if rep.EventsDropped != 0 {
		t.Errorf("events dropped = %d, want 0 on replay", rep.EventsDropped)
	}
	if rep.Portfolio.Equity <= 0 {
		t.Errorf("final equity = %f", rep.Portfolio.Equity)
	}
	// Snapshot cadence of 25 over 300 events plus the final one.
	if snaps := r.Portfolio().Snapshots(); len(snaps) < 12 {
		t.Errorf("snapshots = %d, want >= 12", len(snaps))
	}
}

func TestRunnerDeterministicAcrossRuns(t *testing.T) {
	run := func() *Runner {
		r := newBacktestRunner(t, "bot-det", 300)
		if err := r.Run(context.Background()); err != nil {
			t.Fatalf("run: %v", err)
		}
		return r
	}
	a, b := run(), run()
	if ae, be := a.Portfolio().Equity(), b.Portfolio().Equity(); ae != be {
		t.Errorf("equity differs across seeded runs: %f vs %f", ae, be)
	}
	// The whole recorded history must match, order IDs and snapshot
	// timestamps included; nothing in it may come from the wall clock.
	if !reflect.DeepEqual(a.Portfolio().Trades(), b.Portfolio().Trades()) {
		t.Error("fill logs differ across seeded runs")
	}
	if !reflect.DeepEqual(a.Portfolio().Snapshots(), b.Portfolio().Snapshots()) {
		t.Error("snapshot series differ across seeded runs")
	}
}

func TestRunnerCancellation(t *testing.T) {
	log := testLogger()
	strat, _ := strategy.NewSMACrossover("BTCUSDT", "1m", strategy.Params{
		"fast_period": 3, "slow_period": 8,
	})
	pf := portfolio.New("bot-c", 10000, portfolio.Limits{})
	re := risk.NewEngine(10000, log)
	s := sim.New(sim.Config{Seed: 0}, log)
	engine := execution.New("bot-c", execution.Config{}, pf, re, s, nil, log)

	// Open-ended mock feed with a tick delay: only cancellation ends it.
	mock := feed.NewMockFeed(feed.MockConfig{StartPrice: 100, Seed: 1, TickDelay: time.Millisecond}, log)
	r := New("bot-c", strat, mock, engine, pf, Config{Start: 0, End: 0}, nil, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancellation")
	}
	if r.Status() != StatusStopped {
		t.Errorf("status = %s, want STOPPED after cancel", r.Status())
	}
}

// panicStrategy blows up on the first market event.
type panicStrategy struct{}

func (panicStrategy) Name() string     { return "panic" }
func (panicStrategy) Symbol() string   { return "BTCUSDT" }
func (panicStrategy) Interval() string { return "1m" }
func (panicStrategy) Lookback() int    { return 1 }
func (panicStrategy) GenerateSignals([]market.Snapshot, *portfolio.Position, strategy.Params) []order.Signal {
	panic("boom")
}
func (panicStrategy) ValidateParams(strategy.Params) error       { return nil }
func (panicStrategy) UpdateParams(strategy.Params) error         { return nil }
func (panicStrategy) RequiredIndicators() []string               { return nil }
func (panicStrategy) ParamSchema() map[string]strategy.ParamSpec { return nil }

func TestRunnerPanicRecordedAsError(t *testing.T) {
	log := testLogger()
	pf := portfolio.New("bot-p", 10000, portfolio.Limits{})
	re := risk.NewEngine(10000, log)
	s := sim.New(sim.Config{Seed: 0}, log)
	engine := execution.New("bot-p", execution.Config{}, pf, re, s, nil, log)
	mock := feed.NewMockFeed(feed.MockConfig{StartPrice: 100, Seed: 1}, log)
	r := New("bot-p", panicStrategy{}, mock, engine, pf, Config{Start: 0, End: 60000 * 10}, nil, log)

	err := r.Run(context.Background())
	if err == nil {
		t.Fatal("panic did not surface as an error")
	}
	if r.Status() != StatusError {
		t.Errorf("status = %s, want ERROR after panic", r.Status())
	}
	if rep := r.Report(); rep.Error == "" {
		t.Error("report carries no error message")
	}
}

func TestRunnerKilledOnCriticalViolation(t *testing.T) {
	log := testLogger()
	strat, _ := strategy.NewSMACrossover("BTCUSDT", "1m", strategy.Params{
		"fast_period": 3, "slow_period": 8, "quantity": 50,
	})
	pf := portfolio.New("bot-k", 10000, portfolio.Limits{FeeEstimateRate: 0.001})
	re := risk.NewEngine(10000, log)
	// Fees on the first 50-unit fill alone breach a 0.01% drawdown cap,
	// so the kill-switch engages on the first trade regardless of the
	// walk's direction.
	re.AddRule(&risk.MaxDrawdown{ThresholdPct: 0.01})
	s := sim.New(sim.Config{TakerFeeRate: 0.001, Seed: 0}, log)
	engine := execution.New("bot-k", execution.Config{}, pf, re, s, nil, log)
	mock := feed.NewMockFeed(feed.MockConfig{StartPrice: 100, Volatility: 0.01, Seed: 42}, log)
	r := New("bot-k", strat, mock, engine, pf, Config{
		Start: 0, End: 60000 * 300, SnapshotEvery: 25,
	}, nil, log)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if r.Status() != StatusKilled {
		t.Fatalf("status = %s, want KILLED", r.Status())
	}
	rep := r.Report()
	if rep.HaltReason == "" {
		t.Error("halt reason empty")
	}
	// The kill-switch flattens: nothing may stay open.
	if open := r.Portfolio().OpenPositions(); len(open) != 0 {
		t.Errorf("open positions after kill = %d", len(open))
	}
	if rep.EventsProcessed >= 300 {
		t.Errorf("loop did not break early: processed %d", rep.EventsProcessed)
	}
}
