// Package portfolio implements the strategy-scoped ledger: cash,
// positions, realized and unrealized P&L, fee accounting and drawdown
// tracking. Each strategy runner owns exactly one Portfolio; there is
// no cross-strategy sharing.
package portfolio

import "math"

// FlatTolerance is the quantity below which a position counts as flat.
const FlatTolerance = 1e-8

// Position tracks a single symbol. The sign of Quantity encodes the
// side: long > 0, short < 0, flat within FlatTolerance. Zero-quantity
// positions are retained so the historical trade count survives.
type Position struct {
	Symbol            string  `json:"symbol"`
	Quantity          float64 `json:"quantity"`
	AverageEntryPrice float64 `json:"average_entry_price"`
	RealizedPnL       float64 `json:"realized_pnl"`
	TotalFee          float64 `json:"total_fee"`
	TradeCount        int     `json:"trade_count"`
	LastUpdate        int64   `json:"last_update"`
	EntryTimestamp    int64   `json:"entry_timestamp,omitempty"`
}

// IsFlat reports whether the position holds no exposure.
func (p *Position) IsFlat() bool {
	return math.Abs(p.Quantity) < FlatTolerance
}

// Notional returns |quantity| × average entry price.
func (p *Position) Notional() float64 {
	return math.Abs(p.Quantity) * p.AverageEntryPrice
}

// UnrealizedPnL returns the open P&L against a mark price. The signed
// quantity makes the single formula cover shorts: a short contributes
// |qty| × (avg − mark).
func (p *Position) UnrealizedPnL(markPrice float64) float64 {
	if p.IsFlat() || markPrice <= 0 {
		return 0
	}
	return p.Quantity * (markPrice - p.AverageEntryPrice)
}
