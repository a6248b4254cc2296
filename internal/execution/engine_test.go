package execution

import (
	"errors"
	"math"
	"testing"

	"crypto-trading-bot/internal/logging"
	"crypto-trading-bot/internal/market"
	"crypto-trading-bot/internal/order"
	"crypto-trading-bot/internal/portfolio"
	"crypto-trading-bot/internal/risk"
	"crypto-trading-bot/internal/sim"
)

func testLogger() *logging.Logger {
	return logging.New(&logging.Config{Level: "error", Output: "stderr", JSONFormat: true})
}

func snapshot(bid, ask, close float64, ts int64) market.Snapshot {
	return market.Snapshot{
		Candle: market.Candle{
			Timestamp: ts,
			Symbol:    "BTCUSDT",
			Interval:  "1m",
			Open:      close,
			High:      ask,
			Low:       bid,
			Close:     close,
			Volume:    100,
		},
		Bid: bid,
		Ask: ask,
	}
}

type engineFixture struct {
	engine *Engine
	pf     *portfolio.Portfolio
	risk   *risk.Engine
}

func newFixture(simCfg sim.Config, rules ...risk.Rule) *engineFixture {
	log := testLogger()
	pf := portfolio.New("s1", 10000, portfolio.Limits{FeeEstimateRate: simCfg.TakerFeeRate})
	re := risk.NewEngine(10000, log)
	for _, r := range rules {
		re.AddRule(r)
	}
	s := sim.New(simCfg, log)
	return &engineFixture{
		engine: New("s1", Config{}, pf, re, s, nil, log),
		pf:     pf,
		risk:   re,
	}
}

func marketSignal(side order.Side, qty float64, ts int64) order.Signal {
	return order.Signal{
		Symbol:      "BTCUSDT",
		Side:        side,
		Quantity:    qty,
		Timestamp:   ts,
		StrategyID:  "s1",
		OrderType:   order.Market,
		TimeInForce: order.GTC,
	}
}

func TestMarketOrderFullPipeline(t *testing.T) {
	fx := newFixture(sim.Config{TakerFeeRate: 0.001, Seed: 0})
	fx.engine.OnMarketEvent(snapshot(99, 101, 100, 1000))

	o, err := fx.engine.Submit(marketSignal(order.Buy, 1, 1000))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if o.Status != order.StatusFilled {
		t.Fatalf("status = %s, want FILLED", o.Status)
	}

	fills := fx.engine.Fills()
	if len(fills) != 1 || fills[0].Price != 101 || fills[0].Fee != 0.101 {
		t.Fatalf("fills = %+v", fills)
	}

	wantCash := 10000 - 101 - 0.101
	if math.Abs(fx.pf.Cash()-wantCash) > 1e-6 {
		t.Errorf("cash = %f, want %f", fx.pf.Cash(), wantCash)
	}
	pos, _ := fx.pf.Position("BTCUSDT")
	if pos.Quantity != 1 || pos.AverageEntryPrice != 101 {
		t.Errorf("position = %+v", pos)
	}
}

func TestRoundTripThroughEngine(t *testing.T) {
	fx := newFixture(sim.Config{TakerFeeRate: 0.001, Seed: 0})
	fx.engine.OnMarketEvent(snapshot(99, 101, 100, 1000))
	fx.engine.Submit(marketSignal(order.Buy, 1, 1000))

	fx.engine.OnMarketEvent(snapshot(109, 111, 110, 2000))
	// Sell fills at bid 109.
	fx.engine.Submit(marketSignal(order.Sell, 1, 2000))

	pos, _ := fx.pf.Position("BTCUSDT")
	if !pos.IsFlat() {
		t.Fatalf("not flat: %f", pos.Quantity)
	}
	if math.Abs(pos.RealizedPnL-(109-101)) > 1e-6 {
		t.Errorf("realized = %f, want 8", pos.RealizedPnL)
	}
}

func TestLimitOrderRestsThenFills(t *testing.T) {
	fx := newFixture(sim.Config{MakerFeeRate: 0.001, Seed: 0})
	fx.engine.OnMarketEvent(snapshot(99, 101, 100, 1000))

	sig := marketSignal(order.Buy, 1, 1000)
	sig.OrderType = order.Limit
	sig.LimitPrice = 95
	o, err := fx.engine.Submit(sig)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if o.Status != order.StatusPending {
		t.Fatalf("status = %s, want PENDING", o.Status)
	}

	// Market stays above the limit: still resting.
	fx.engine.OnMarketEvent(snapshot(97, 99, 98, 2000))
	got, _ := fx.engine.Order(o.ID)
	if got.Status != order.StatusPending {
		t.Fatalf("status = %s, want PENDING", got.Status)
	}

	// Ask drops through the limit: fills at the crossing ask.
	fills := fx.engine.OnMarketEvent(snapshot(93, 94, 93.5, 3000))
	if len(fills) != 1 || fills[0].Price != 94 {
		t.Fatalf("fills = %+v, want one fill at 94", fills)
	}
	got, _ = fx.engine.Order(o.ID)
	if got.Status != order.StatusFilled {
		t.Errorf("status = %s, want FILLED", got.Status)
	}
}

func TestStopMarketThroughEngine(t *testing.T) {
	fx := newFixture(sim.Config{Seed: 0})
	fx.engine.OnMarketEvent(snapshot(99, 101, 100, 1000))
	fx.engine.Submit(marketSignal(order.Buy, 1, 1000))

	sig := marketSignal(order.Sell, 1, 1000)
	sig.OrderType = order.StopMarket
	sig.StopPrice = 95
	fx.engine.Submit(sig)

	// Above the stop: resting.
	if fills := fx.engine.OnMarketEvent(snapshot(97, 99, 98, 2000)); len(fills) != 0 {
		t.Fatalf("stop triggered early: %+v", fills)
	}

	// Close 94 ≤ 95 triggers; fills at bid 93.
	fills := fx.engine.OnMarketEvent(snapshot(93, 95, 94, 3000))
	if len(fills) != 1 || fills[0].Price != 93 {
		t.Fatalf("fills = %+v, want one fill at 93", fills)
	}
	pos, _ := fx.pf.Position("BTCUSDT")
	if math.Abs(pos.RealizedPnL-(93-101)) > 1e-6 {
		t.Errorf("realized = %f, want -8", pos.RealizedPnL)
	}
}

func TestValidationRejection(t *testing.T) {
	fx := newFixture(sim.Config{})
	fx.engine.OnMarketEvent(snapshot(99, 101, 100, 1000))

	sig := marketSignal(order.Buy, -1, 1000)
	o, err := fx.engine.Submit(sig)
	if err == nil {
		t.Fatal("negative quantity accepted")
	}
	if o.Status != order.StatusRejected {
		t.Errorf("status = %s, want REJECTED", o.Status)
	}
	if o.RejectionReason == "" {
		t.Error("rejection reason empty")
	}
}

func TestRiskRejection(t *testing.T) {
	fx := newFixture(sim.Config{}, &risk.MaxPositionNotional{Fraction: 0.1})
	fx.engine.OnMarketEvent(snapshot(99, 101, 100, 1000))

	// 20 × 100 = 2000 > 10% of 10000.
	o, err := fx.engine.Submit(marketSignal(order.Buy, 20, 1000))
	var verr *risk.ViolationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ViolationError", err)
	}
	if o.Status != order.StatusRejected {
		t.Errorf("status = %s, want REJECTED", o.Status)
	}
	if len(fx.engine.Fills()) != 0 {
		t.Error("rejected order produced fills")
	}
}

func TestKillSwitchFlattensAndHalts(t *testing.T) {
	fx := newFixture(sim.Config{Seed: 0}, &risk.MaxDrawdown{ThresholdPct: 10})
	fx.engine.OnMarketEvent(snapshot(99, 101, 100, 1000))
	fx.engine.Submit(marketSignal(order.Buy, 50, 1000))

	// Price collapses 30%: drawdown breaches, engine must flatten.
	fx.engine.OnMarketEvent(snapshot(69, 71, 70, 2000))

	if !fx.engine.Halted() {
		t.Fatal("engine not halted after critical violation")
	}
	pos, _ := fx.pf.Position("BTCUSDT")
	if !pos.IsFlat() {
		t.Errorf("position not flattened: qty = %f", pos.Quantity)
	}

	// New submissions are refused until restart.
	if _, err := fx.engine.Submit(marketSignal(order.Buy, 1, 3000)); !errors.Is(err, ErrHalted) {
		t.Errorf("err = %v, want ErrHalted", err)
	}

	fx.engine.Restart()
	if fx.engine.Halted() {
		t.Error("restart did not lift halt")
	}
}

func TestCancelPendingOrder(t *testing.T) {
	fx := newFixture(sim.Config{})
	fx.engine.OnMarketEvent(snapshot(99, 101, 100, 1000))

	sig := marketSignal(order.Buy, 1, 1000)
	sig.OrderType = order.Limit
	sig.LimitPrice = 90
	o, _ := fx.engine.Submit(sig)

	if !fx.engine.Cancel(o.ID, "strategy exit") {
		t.Fatal("cancel failed")
	}
	got, _ := fx.engine.Order(o.ID)
	if got.Status != order.StatusCancelled {
		t.Errorf("status = %s, want CANCELLED", got.Status)
	}
	if fx.engine.Cancel(o.ID, "again") {
		t.Error("second cancel succeeded")
	}
	if fx.engine.Cancel("missing", "x") {
		t.Error("cancel of unknown order succeeded")
	}
}

func TestDayOrderExpiry(t *testing.T) {
	log := testLogger()
	pf := portfolio.New("s1", 10000, portfolio.Limits{})
	re := risk.NewEngine(10000, log)
	s := sim.New(sim.Config{}, log)
	e := New("s1", Config{SessionDurationMs: 60000}, pf, re, s, nil, log)

	e.OnMarketEvent(snapshot(99, 101, 100, 1000))
	sig := marketSignal(order.Buy, 1, 1000)
	sig.OrderType = order.Limit
	sig.LimitPrice = 90
	sig.TimeInForce = order.Day
	o, _ := e.Submit(sig)

	// Inside the session: still pending.
	e.OnMarketEvent(snapshot(99, 101, 100, 30000))
	got, _ := e.Order(o.ID)
	if got.Status != order.StatusPending {
		t.Fatalf("status = %s, want PENDING", got.Status)
	}

	// Past the session boundary: expired.
	e.OnMarketEvent(snapshot(99, 101, 100, 61001))
	got, _ = e.Order(o.ID)
	if got.Status != order.StatusExpired {
		t.Errorf("status = %s, want EXPIRED", got.Status)
	}
}

func TestResetClearsOrderState(t *testing.T) {
	fx := newFixture(sim.Config{Seed: 0})
	fx.engine.OnMarketEvent(snapshot(99, 101, 100, 1000))
	fx.engine.Submit(marketSignal(order.Buy, 1, 1000))

	fx.engine.Reset()
	if len(fx.engine.Orders()) != 0 || len(fx.engine.Fills()) != 0 {
		t.Error("reset left orders or fills")
	}
	if fx.engine.Halted() {
		t.Error("reset left halt")
	}
}

func TestOrderIDsUniqueAndOrdered(t *testing.T) {
	fx := newFixture(sim.Config{Seed: 0})
	fx.engine.OnMarketEvent(snapshot(99, 101, 100, 1000))

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		o, err := fx.engine.Submit(marketSignal(order.Buy, 0.01, int64(1000+i)))
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		if seen[o.ID] {
			t.Fatalf("duplicate order id %s", o.ID)
		}
		seen[o.ID] = true
	}
	if len(fx.engine.Orders()) != 50 {
		t.Errorf("orders = %d, want 50", len(fx.engine.Orders()))
	}
}
