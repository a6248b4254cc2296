// Package execution implements the order pipeline for one strategy:
// signal validation, risk gating, pending-order management, fill
// simulation and the kill-switch. Each runner owns one Engine; the
// engine is safe for concurrent use but the runner drives it from a
// single goroutine.
package execution

import (
	"errors"
	"fmt"
	"sync"

	"crypto-trading-bot/internal/events"
	"crypto-trading-bot/internal/logging"
	"crypto-trading-bot/internal/market"
	"crypto-trading-bot/internal/metrics"
	"crypto-trading-bot/internal/order"
	"crypto-trading-bot/internal/portfolio"
	"crypto-trading-bot/internal/risk"
	"crypto-trading-bot/internal/sim"
)

// ErrHalted is returned by Submit after a kill-switch until Restart.
var ErrHalted = errors.New("execution engine halted")

// Config holds engine parameters.
type Config struct {
	// SessionDurationMs bounds the lifetime of DAY orders; 0 disables
	// expiry (backtests usually run without a session boundary).
	SessionDurationMs int64
}

// Engine turns accepted signals into orders and orders into fills.
type Engine struct {
	mu sync.Mutex

	strategyID string
	cfg        Config
	pf         *portfolio.Portfolio
	riskEngine *risk.Engine
	simulator  *sim.Simulator
	bus        *events.Bus
	log        *logging.Logger

	idGen        *order.IDGenerator
	orders       map[string]*order.Order
	orderSeq     []string
	pending      []*order.Order
	fills        []order.Fill
	lastSnapshot map[string]market.Snapshot

	halted     bool
	haltReason string
}

// New creates an engine bound to one portfolio, risk engine and
// simulator. The event bus may be nil.
func New(strategyID string, cfg Config, pf *portfolio.Portfolio, re *risk.Engine, s *sim.Simulator, bus *events.Bus, log *logging.Logger) *Engine {
	return &Engine{
		strategyID:   strategyID,
		cfg:          cfg,
		pf:           pf,
		riskEngine:   re,
		simulator:    s,
		bus:          bus,
		log:          log.WithComponent("execution").WithField("strategy_id", strategyID),
		idGen:        order.NewIDGenerator(strategyID),
		orders:       make(map[string]*order.Order),
		lastSnapshot: make(map[string]market.Snapshot),
	}
}

// Submit validates a signal, runs the pre-trade risk check and either
// rejects or registers an order. MARKET orders are simulated against
// the latest known snapshot immediately; LIMIT and STOP orders rest
// until a matching market event arrives.
func (e *Engine) Submit(sig order.Signal) (*order.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.halted {
		metrics.OrdersRejected.WithLabelValues(e.strategyID, "halted").Inc()
		return nil, ErrHalted
	}

	o := order.New(e.idGen.NextOrderID(), sig, sig.Timestamp)
	e.register(o)

	if err := sig.Validate(); err != nil {
		o.Reject(err.Error(), sig.Timestamp)
		metrics.OrdersRejected.WithLabelValues(e.strategyID, "validation").Inc()
		e.log.Warn("signal rejected", "order_id", o.ID, "reason", err.Error())
		return o, err
	}

	price := e.proposedPriceLocked(sig)
	if price <= 0 {
		err := fmt.Errorf("no market data for %s", sig.Symbol)
		o.Reject(err.Error(), sig.Timestamp)
		metrics.OrdersRejected.WithLabelValues(e.strategyID, "no_market_data").Inc()
		return o, err
	}

	if ok, err := e.pf.CanOpen(sig.Symbol, sig.Side, sig.Quantity, price); !ok {
		o.Reject(err.Error(), sig.Timestamp)
		metrics.OrdersRejected.WithLabelValues(e.strategyID, "portfolio").Inc()
		e.log.Warn("order rejected by portfolio", "order_id", o.ID, "reason", err.Error())
		return o, err
	}

	proposed := order.Fill{
		OrderID:   o.ID,
		Symbol:    sig.Symbol,
		Side:      sig.Side,
		Quantity:  sig.Quantity,
		Price:     price,
		Timestamp: sig.Timestamp,
	}
	if ok, violations := e.riskEngine.PreTrade(e.pf.StateNow(sig.Timestamp), proposed); !ok {
		verr := &risk.ViolationError{Violations: violations}
		o.Reject(verr.Error(), sig.Timestamp)
		metrics.OrdersRejected.WithLabelValues(e.strategyID, "risk").Inc()
		e.publishViolations(violations)
		return o, verr
	}

	o.Status = order.StatusPending
	e.pending = append(e.pending, o)
	metrics.OrdersSubmitted.WithLabelValues(e.strategyID).Inc()
	if e.bus != nil {
		e.bus.Publish(events.Event{
			Type: events.EventOrderPlaced,
			Data: map[string]interface{}{
				"order_id": o.ID, "symbol": sig.Symbol,
				"side": string(sig.Side), "type": string(sig.OrderType),
				"quantity": sig.Quantity,
			},
		})
	}
	e.log.Info("order accepted",
		"order_id", o.ID, "symbol", sig.Symbol, "side", sig.Side,
		"type", sig.OrderType, "qty", sig.Quantity)

	if sig.OrderType == order.Market {
		if snap, ok := e.lastSnapshot[sig.Symbol]; ok {
			e.processOrderLocked(o, snap)
			e.checkPostTradeLocked(snap)
		}
	}
	return o, nil
}

// Cancel moves an active order to CANCELLED. Returns false when the
// order is unknown or already terminal.
func (e *Engine) Cancel(orderID, reason string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.orders[orderID]
	if !ok {
		return false
	}
	snap, hasSnap := e.lastSnapshot[o.Symbol()]
	now := o.UpdatedAt
	if hasSnap {
		now = snap.Timestamp
	}
	if !o.Cancel(reason, now) {
		return false
	}
	e.removePendingLocked(o.ID)
	if e.bus != nil {
		e.bus.Publish(events.Event{
			Type: events.EventOrderCancelled,
			Data: map[string]interface{}{"order_id": o.ID, "reason": reason},
		})
	}
	e.log.Info("order cancelled", "order_id", o.ID, "reason", reason)
	return true
}

// OnMarketEvent processes every pending order for the snapshot's
// symbol, applies resulting fills to the portfolio and runs the
// post-trade risk check. A critical violation triggers FlattenAll.
func (e *Engine) OnMarketEvent(snap market.Snapshot) []order.Fill {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap = snap.Normalize()
	e.lastSnapshot[snap.Symbol] = snap
	e.pf.UpdateMarkPrice(snap.Symbol, snap.Close)
	e.expireDayOrdersLocked(snap.Timestamp)

	var produced []order.Fill
	for _, o := range e.pendingForSymbolLocked(snap.Symbol) {
		produced = append(produced, e.processOrderLocked(o, snap)...)
	}
	e.checkPostTradeLocked(snap)
	return produced
}

// FlattenAll closes every open position with MARKET orders that bypass
// the pre-trade check, then halts the engine until Restart.
func (e *Engine) FlattenAll(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.flattenAllLocked(reason)
}

// Restart lifts the halt after a kill-switch.
func (e *Engine) Restart() {
	e.mu.Lock()
	e.halted = false
	e.haltReason = ""
	e.mu.Unlock()
	e.log.Info("engine restarted")
}

// Reset clears all order state and reseeds the simulator. The
// portfolio is left untouched; callers reset it separately.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.orders = make(map[string]*order.Order)
	e.orderSeq = nil
	e.pending = nil
	e.fills = nil
	e.lastSnapshot = make(map[string]market.Snapshot)
	e.halted = false
	e.haltReason = ""
	e.simulator.Reset()
	e.riskEngine.Reset(e.pf.Equity())
}

// Risk exposes the engine's risk engine for the control surface.
func (e *Engine) Risk() *risk.Engine { return e.riskEngine }

// Halted reports whether the kill-switch is engaged.
func (e *Engine) Halted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.halted
}

// HaltReason returns the reason recorded by the last kill-switch.
func (e *Engine) HaltReason() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.haltReason
}

// Orders returns copies of every order in submission order.
func (e *Engine) Orders() []order.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]order.Order, 0, len(e.orderSeq))
	for _, id := range e.orderSeq {
		out = append(out, *e.orders[id])
	}
	return out
}

// ActiveOrders returns copies of orders still able to fill.
func (e *Engine) ActiveOrders() []order.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []order.Order
	for _, id := range e.orderSeq {
		if o := e.orders[id]; o.IsActive() {
			out = append(out, *o)
		}
	}
	return out
}

// Order returns a copy of one order by ID.
func (e *Engine) Order(id string) (order.Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[id]
	if !ok {
		return order.Order{}, false
	}
	return *o, true
}

// Fills returns the full fill log in application order.
func (e *Engine) Fills() []order.Fill {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]order.Fill, len(e.fills))
	copy(out, e.fills)
	return out
}

func (e *Engine) register(o *order.Order) {
	e.orders[o.ID] = o
	e.orderSeq = append(e.orderSeq, o.ID)
}

// proposedPriceLocked picks the best available reference price for the
// pre-trade check: snapshot close for MARKET, limit for LIMIT, stop
// for STOP orders before their limit applies.
func (e *Engine) proposedPriceLocked(sig order.Signal) float64 {
	switch sig.OrderType {
	case order.Limit, order.StopLimit:
		return sig.LimitPrice
	case order.StopMarket:
		return sig.StopPrice
	default:
		if snap, ok := e.lastSnapshot[sig.Symbol]; ok {
			return snap.Close
		}
		return 0
	}
}

func (e *Engine) processOrderLocked(o *order.Order, snap market.Snapshot) []order.Fill {
	produced := e.simulator.Process(o, snap)
	for _, f := range produced {
		e.pf.ApplyFill(f)
		e.fills = append(e.fills, f)
		metrics.FillsTotal.WithLabelValues(e.strategyID).Inc()
		if e.bus != nil {
			e.bus.PublishOrderFilled(e.strategyID, f)
		}
		e.log.Info("fill applied",
			"order_id", f.OrderID, "fill_id", f.ID,
			"qty", f.Quantity, "price", f.Price, "fee", f.Fee)
	}
	if !o.IsActive() {
		e.removePendingLocked(o.ID)
	}
	return produced
}

func (e *Engine) checkPostTradeLocked(snap market.Snapshot) {
	state := e.pf.StateNow(snap.Timestamp)
	metrics.EquityGauge.WithLabelValues(e.strategyID).Set(state.Equity)
	critical, violations := e.riskEngine.PostTrade(state)
	if len(violations) > 0 {
		e.publishViolations(violations)
	}
	if critical && !e.halted {
		reason := (&risk.ViolationError{Violations: violations}).Error()
		e.flattenAllLocked(reason)
	}
}

// flattenAllLocked is the kill-switch: it halts submissions and closes
// every open position at market, bypassing the pre-trade check so the
// exit cannot itself be risk-rejected.
func (e *Engine) flattenAllLocked(reason string) {
	if e.halted {
		return
	}
	e.halted = true
	e.haltReason = reason
	metrics.KillSwitches.WithLabelValues(e.strategyID).Inc()
	e.log.Error("kill switch engaged", "reason", reason)

	flattened := 0
	for _, pos := range e.pf.OpenPositions() {
		snap, ok := e.lastSnapshot[pos.Symbol]
		if !ok {
			e.log.Error("cannot flatten position without market data", "symbol", pos.Symbol)
			continue
		}
		side := order.Sell
		qty := pos.Quantity
		if pos.Quantity < 0 {
			side = order.Buy
			qty = -pos.Quantity
		}
		sig := order.Signal{
			Symbol:      pos.Symbol,
			Side:        side,
			Quantity:    qty,
			Timestamp:   snap.Timestamp,
			StrategyID:  e.strategyID,
			OrderType:   order.Market,
			TimeInForce: order.GTC,
			Metadata:    map[string]string{"flatten": "true", "reason": reason},
		}
		o := order.New(e.idGen.NextOrderID(), sig, snap.Timestamp)
		o.Status = order.StatusPending
		e.register(o)
		e.processOrderLocked(o, snap)
		flattened++
		e.log.Info("position flattened", "symbol", pos.Symbol, "qty", qty, "side", side)
	}

	if e.bus != nil {
		e.bus.PublishKillSwitch(e.strategyID, reason, flattened)
	}
}

func (e *Engine) pendingForSymbolLocked(symbol string) []*order.Order {
	var out []*order.Order
	for _, o := range e.pending {
		if o.Symbol() == symbol {
			out = append(out, o)
		}
	}
	return out
}

func (e *Engine) removePendingLocked(orderID string) {
	for i, o := range e.pending {
		if o.ID == orderID {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			return
		}
	}
}

func (e *Engine) expireDayOrdersLocked(now int64) {
	if e.cfg.SessionDurationMs <= 0 {
		return
	}
	for _, o := range e.pendingForAllLocked() {
		if o.Signal.TimeInForce == order.Day && now >= o.CreatedAt+e.cfg.SessionDurationMs {
			o.Expire(now)
			e.removePendingLocked(o.ID)
			if e.bus != nil {
				e.bus.Publish(events.Event{
					Type: events.EventOrderExpired,
					Data: map[string]interface{}{"order_id": o.ID},
				})
			}
			e.log.Info("day order expired", "order_id", o.ID)
		}
	}
}

func (e *Engine) pendingForAllLocked() []*order.Order {
	out := make([]*order.Order, len(e.pending))
	copy(out, e.pending)
	return out
}

func (e *Engine) publishViolations(violations []risk.Violation) {
	for _, v := range violations {
		metrics.RiskViolations.WithLabelValues(e.strategyID, v.RuleName).Inc()
		if e.bus != nil {
			e.bus.PublishRiskViolation(e.strategyID, v.RuleName, v.Observed, v.Threshold, v.Critical)
		}
	}
}
