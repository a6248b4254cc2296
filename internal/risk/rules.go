package risk

import (
	"fmt"
	"math"

	"crypto-trading-bot/internal/order"
	"crypto-trading-bot/internal/portfolio"
)

// MaxPositionNotional rejects proposed trades whose resulting position
// notional would exceed a fraction of equity.
type MaxPositionNotional struct {
	Fraction float64
}

func (r *MaxPositionNotional) Name() string   { return "max_position_notional" }
func (r *MaxPositionNotional) Critical() bool { return false }

func (r *MaxPositionNotional) Evaluate(state portfolio.State, proposed *order.Fill) *Violation {
	if proposed == nil || state.Equity <= 0 {
		return nil
	}
	existing := 0.0
	if pos, ok := state.Positions[proposed.Symbol]; ok {
		existing = pos.Notional()
	}
	notional := existing + proposed.Notional()
	limit := r.Fraction * state.Equity
	if notional <= limit {
		return nil
	}
	return &Violation{
		RuleName:  r.Name(),
		Observed:  notional,
		Threshold: limit,
		Message:   fmt.Sprintf("position notional %.2f exceeds %.2f (%.0f%% of equity)", notional, limit, r.Fraction*100),
	}
}

// MaxDrawdown halts trading once the drawdown from the equity peak
// passes a percentage threshold. Critical: triggers the kill-switch.
type MaxDrawdown struct {
	ThresholdPct float64
}

func (r *MaxDrawdown) Name() string   { return "max_drawdown" }
func (r *MaxDrawdown) Critical() bool { return true }

func (r *MaxDrawdown) Evaluate(state portfolio.State, _ *order.Fill) *Violation {
	dd := state.DrawdownPct()
	if dd <= r.ThresholdPct {
		return nil
	}
	return &Violation{
		RuleName:  r.Name(),
		Observed:  dd,
		Threshold: r.ThresholdPct,
		Message:   fmt.Sprintf("drawdown %.2f%% exceeds %.2f%%", dd, r.ThresholdPct),
	}
}

// PositionConcentration limits single-symbol exposure to a fraction of
// equity, counting the proposed fill when present.
type PositionConcentration struct {
	Fraction float64
}

func (r *PositionConcentration) Name() string   { return "position_concentration" }
func (r *PositionConcentration) Critical() bool { return false }

func (r *PositionConcentration) Evaluate(state portfolio.State, proposed *order.Fill) *Violation {
	if state.Equity <= 0 {
		return nil
	}
	limit := r.Fraction * state.Equity
	for sym, pos := range state.Positions {
		exposure := pos.Notional()
		if proposed != nil && proposed.Symbol == sym {
			exposure += proposed.Notional()
		}
		if exposure > limit {
			return &Violation{
				RuleName:  r.Name(),
				Observed:  exposure,
				Threshold: limit,
				Message:   fmt.Sprintf("%s exposure %.2f exceeds %.2f", sym, exposure, limit),
			}
		}
	}
	if proposed != nil {
		if _, ok := state.Positions[proposed.Symbol]; !ok && proposed.Notional() > limit {
			return &Violation{
				RuleName:  r.Name(),
				Observed:  proposed.Notional(),
				Threshold: limit,
				Message:   fmt.Sprintf("%s exposure %.2f exceeds %.2f", proposed.Symbol, proposed.Notional(), limit),
			}
		}
	}
	return nil
}

// DailyLossLimit halts trading once the session P&L (realized plus
// unrealized) drops below −threshold. Critical: triggers the
// kill-switch.
type DailyLossLimit struct {
	Threshold float64 // absolute quote-currency loss
}

func (r *DailyLossLimit) Name() string   { return "daily_loss_limit" }
func (r *DailyLossLimit) Critical() bool { return true }

func (r *DailyLossLimit) Evaluate(state portfolio.State, _ *order.Fill) *Violation {
	pnl := state.RealizedPnL + state.UnrealizedPnL
	if pnl >= -r.Threshold {
		return nil
	}
	return &Violation{
		RuleName:  r.Name(),
		Observed:  math.Abs(pnl),
		Threshold: r.Threshold,
		Message:   fmt.Sprintf("session loss %.2f exceeds limit %.2f", math.Abs(pnl), r.Threshold),
	}
}
