package portfolio

import (
	"math"
	"sync"

	"crypto-trading-bot/internal/order"
)

// Limits configures the CanOpen policy.
type Limits struct {
	MaxPositionFraction float64 // max single-position notional as fraction of equity
	MinOrderSize        float64 // minimum order notional in quote currency
	FeeEstimateRate     float64 // fee rate used to estimate cost of a proposed buy
}

// State is an immutable snapshot of the ledger, consumed by the risk
// engine, the bot manager and the control surface.
type State struct {
	StrategyID         string              `json:"strategy_id"`
	Timestamp          int64               `json:"timestamp"`
	CashBalance        float64             `json:"cash_balance"`
	InitialBalance     float64             `json:"initial_balance"`
	Positions          map[string]Position `json:"positions"`
	TotalPositionValue float64             `json:"total_position_value"`
	UnrealizedPnL      float64             `json:"unrealized_pnl"`
	RealizedPnL        float64             `json:"realized_pnl"`
	Equity             float64             `json:"equity"`
	MaxEquity          float64             `json:"max_equity"`
	MaxDrawdownPct     float64             `json:"max_drawdown_pct"`
	TradeCount         int                 `json:"trade_count"`
}

// DrawdownPct returns the current drawdown from the equity peak.
func (s State) DrawdownPct() float64 {
	if s.MaxEquity <= 0 {
		return 0
	}
	return (s.MaxEquity - s.Equity) / s.MaxEquity * 100
}

// Portfolio is the ledger for one strategy. All mutation goes through
// ApplyFill and UpdateMarkPrice; everything else is read-only.
type Portfolio struct {
	mu sync.RWMutex

	strategyID     string
	initialBalance float64
	cash           float64
	positions      map[string]*Position
	markPrices     map[string]float64
	maxEquity      float64
	maxDrawdownPct float64
	trades         []order.Fill
	snapshots      []State
	limits         Limits
}

// New creates a portfolio with the given starting cash.
func New(strategyID string, initialBalance float64, limits Limits) *Portfolio {
	return &Portfolio{
		strategyID:     strategyID,
		initialBalance: initialBalance,
		cash:           initialBalance,
		positions:      make(map[string]*Position),
		markPrices:     make(map[string]float64),
		maxEquity:      initialBalance,
		limits:         limits,
	}
}

// ApplyFill applies an execution to cash and the position for the
// fill's symbol, realizing P&L on closing quantity and re-averaging
// the entry on adds. Reversals open the residual on the opposite side
// at the fill price.
func (p *Portfolio) ApplyFill(f order.Fill) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[f.Symbol]
	if !ok {
		pos = &Position{Symbol: f.Symbol}
		p.positions[f.Symbol] = pos
	}

	delta := f.Quantity
	if f.Side == order.Sell {
		delta = -f.Quantity
	}
	q0 := pos.Quantity
	p0 := pos.AverageEntryPrice

	closing := (q0 > FlatTolerance && delta < 0) || (q0 < -FlatTolerance && delta > 0)
	if closing {
		closeQty := math.Min(math.Abs(q0), math.Abs(delta))
		if q0 > 0 {
			pos.RealizedPnL += closeQty * (f.Price - p0)
		} else {
			pos.RealizedPnL += closeQty * (p0 - f.Price)
		}

		if math.Abs(delta) > math.Abs(q0)+FlatTolerance {
			// Reversal: residual opens on the opposite side at the fill price.
			residual := math.Abs(delta) - math.Abs(q0)
			if delta > 0 {
				pos.Quantity = residual
			} else {
				pos.Quantity = -residual
			}
			pos.AverageEntryPrice = f.Price
			pos.EntryTimestamp = f.Timestamp
		} else {
			pos.Quantity = q0 + delta
			if math.Abs(pos.Quantity) < FlatTolerance {
				pos.Quantity = 0
				pos.AverageEntryPrice = 0
			}
		}
	} else {
		// Opening or adding: weighted-average entry.
		if pos.IsFlat() {
			pos.EntryTimestamp = f.Timestamp
		}
		absQ0 := math.Abs(q0)
		pos.AverageEntryPrice = (absQ0*p0 + f.Quantity*f.Price) / (absQ0 + f.Quantity)
		pos.Quantity = q0 + delta
	}

	pos.TotalFee += f.Fee
	pos.TradeCount++
	pos.LastUpdate = f.Timestamp

	p.cash += f.CashDelta()
	p.trades = append(p.trades, f)

	eq := p.equityLocked()
	if eq > p.maxEquity {
		p.maxEquity = eq
	}
	if p.maxEquity > 0 {
		dd := (p.maxEquity - eq) / p.maxEquity * 100
		if dd > p.maxDrawdownPct {
			p.maxDrawdownPct = dd
		}
	}
}

// UpdateMarkPrice sets the reference price for unrealized P&L.
func (p *Portfolio) UpdateMarkPrice(symbol string, price float64) {
	if price <= 0 {
		return
	}
	p.mu.Lock()
	p.markPrices[symbol] = price
	p.mu.Unlock()
}

func (p *Portfolio) markLocked(pos *Position) float64 {
	if mark, ok := p.markPrices[pos.Symbol]; ok {
		return mark
	}
	// No mark seen yet: value at entry, contributing zero unrealized.
	return pos.AverageEntryPrice
}

func (p *Portfolio) equityLocked() float64 {
	eq := p.cash
	for _, pos := range p.positions {
		eq += pos.Notional()
		eq += pos.UnrealizedPnL(p.markLocked(pos))
	}
	return eq
}

// Equity returns cash + Σ|qty|×avg entry + unrealized P&L.
func (p *Portfolio) Equity() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.equityLocked()
}

// Cash returns the current cash balance.
func (p *Portfolio) Cash() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cash
}

// Position returns a copy of the position for a symbol, if any.
func (p *Portfolio) Position(symbol string) (Position, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pos, ok := p.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// OpenPositions returns copies of every non-flat position.
func (p *Portfolio) OpenPositions() []Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []Position
	for _, pos := range p.positions {
		if !pos.IsFlat() {
			out = append(out, *pos)
		}
	}
	return out
}

// Trades returns the fill log in application order.
func (p *Portfolio) Trades() []order.Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]order.Fill, len(p.trades))
	copy(out, p.trades)
	return out
}

// CanOpen checks whether the portfolio supports a new order of the
// given size at the given price. BUY orders must be covered by cash
// including the estimated fee; any order must stay under the max
// position fraction and over the minimum notional.
func (p *Portfolio) CanOpen(symbol string, side order.Side, qty, price float64) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	notional := qty * price
	if p.limits.MinOrderSize > 0 && notional < p.limits.MinOrderSize {
		return false, &MinOrderSizeError{Notional: notional, Minimum: p.limits.MinOrderSize}
	}

	if side == order.Buy {
		required := notional + notional*p.limits.FeeEstimateRate
		if required > p.cash {
			return false, &InsufficientBalanceError{Required: required, Available: p.cash}
		}
	}

	if p.limits.MaxPositionFraction > 0 {
		// Check the resulting exposure so closing trades always pass.
		q0 := 0.0
		if pos, ok := p.positions[symbol]; ok {
			q0 = pos.Quantity
		}
		delta := qty
		if side == order.Sell {
			delta = -qty
		}
		resulting := math.Abs(q0+delta) * price
		limit := p.limits.MaxPositionFraction * p.equityLocked()
		if resulting > limit {
			return false, &PositionLimitError{Symbol: symbol, Notional: resulting, Limit: limit}
		}
	}

	return true, nil
}

// Snapshot returns a copy of the full ledger state at the given time
// and appends it to the snapshot history.
func (p *Portfolio) Snapshot(timestamp int64) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.stateLocked(timestamp)
	p.snapshots = append(p.snapshots, st)
	return st
}

// StateNow returns the current state without recording a snapshot.
func (p *Portfolio) StateNow(timestamp int64) State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stateLocked(timestamp)
}

func (p *Portfolio) stateLocked(timestamp int64) State {
	positions := make(map[string]Position, len(p.positions))
	var totalValue, unrealized, realized float64
	for sym, pos := range p.positions {
		positions[sym] = *pos
		totalValue += pos.Notional()
		unrealized += pos.UnrealizedPnL(p.markLocked(pos))
		realized += pos.RealizedPnL
	}
	return State{
		StrategyID:         p.strategyID,
		Timestamp:          timestamp,
		CashBalance:        p.cash,
		InitialBalance:     p.initialBalance,
		Positions:          positions,
		TotalPositionValue: totalValue,
		UnrealizedPnL:      unrealized,
		RealizedPnL:        realized,
		Equity:             p.cash + totalValue + unrealized,
		MaxEquity:          p.maxEquity,
		MaxDrawdownPct:     p.maxDrawdownPct,
		TradeCount:         len(p.trades),
	}
}

// Snapshots returns the recorded snapshot history.
func (p *Portfolio) Snapshots() []State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]State, len(p.snapshots))
	copy(out, p.snapshots)
	return out
}

// Reset returns the ledger to the state of a freshly constructed
// instance with the same initial balance.
func (p *Portfolio) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cash = p.initialBalance
	p.positions = make(map[string]*Position)
	p.markPrices = make(map[string]float64)
	p.maxEquity = p.initialBalance
	p.maxDrawdownPct = 0
	p.trades = nil
	p.snapshots = nil
}

// StrategyID returns the owning strategy's identifier.
func (p *Portfolio) StrategyID() string {
	return p.strategyID
}

// InitialBalance returns the configured starting cash.
func (p *Portfolio) InitialBalance() float64 {
	return p.initialBalance
}
