package strategy

import (
	"fmt"
	"math"

	"crypto-trading-bot/internal/market"
	"crypto-trading-bot/internal/order"
	"crypto-trading-bot/internal/portfolio"
)

var smaCrossoverSchema = map[string]ParamSpec{
	"fast_period": {Default: 10, Min: 2, Max: 200, Description: "fast SMA lookback in candles"},
	"slow_period": {Default: 30, Min: 3, Max: 500, Description: "slow SMA lookback in candles"},
	"quantity":    {Default: 1, Min: 0.00000001, Max: 1e9, Description: "order size in base asset"},
}

// SMACrossover is the reference strategy: BUY when the fast average
// crosses above the slow one, SELL when it crosses below. The cross is
// detected on the transition between the previous and current candle,
// never on steady-state inequality, so a trend emits one signal.
type SMACrossover struct {
	symbol   string
	interval string
	params   Params
}

// NewSMACrossover creates the strategy with schema defaults merged
// under the given params.
func NewSMACrossover(symbol, interval string, params Params) (*SMACrossover, error) {
	s := &SMACrossover{symbol: symbol, interval: interval, params: Params{}}
	if err := s.UpdateParams(params); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SMACrossover) Name() string {
	return fmt.Sprintf("SMACrossover-%s-%s", s.symbol, s.interval)
}

func (s *SMACrossover) Symbol() string   { return s.symbol }
func (s *SMACrossover) Interval() string { return s.interval }

func (s *SMACrossover) Lookback() int {
	// One extra candle so the previous-bar averages exist.
	return int(paramOr(s.params, smaCrossoverSchema, "slow_period")) + 1
}

func (s *SMACrossover) RequiredIndicators() []string { return []string{"sma"} }

func (s *SMACrossover) ParamSchema() map[string]ParamSpec { return smaCrossoverSchema }

func (s *SMACrossover) ValidateParams(params Params) error {
	if err := validateAgainstSchema(params, smaCrossoverSchema); err != nil {
		return err
	}
	fast := paramOr(params, smaCrossoverSchema, "fast_period")
	slow := paramOr(params, smaCrossoverSchema, "slow_period")
	if fast >= slow {
		return fmt.Errorf("fast_period %v must be below slow_period %v", fast, slow)
	}
	return nil
}

func (s *SMACrossover) UpdateParams(params Params) error {
	merged := s.params.Clone()
	for k, v := range params {
		merged[k] = v
	}
	if err := s.ValidateParams(merged); err != nil {
		return err
	}
	s.params = merged
	return nil
}

func (s *SMACrossover) GenerateSignals(window []market.Snapshot, position *portfolio.Position, params Params) []order.Signal {
	if params == nil {
		params = s.params
	}
	fast := int(paramOr(params, smaCrossoverSchema, "fast_period"))
	slow := int(paramOr(params, smaCrossoverSchema, "slow_period"))
	qty := paramOr(params, smaCrossoverSchema, "quantity")

	if len(window) < slow+1 {
		return nil
	}

	candles := make([]market.Candle, len(window))
	for i, snap := range window {
		candles[i] = snap.Candle
	}
	prev := candles[:len(candles)-1]

	fastPrev := CalculateSMA(prev, fast)
	slowPrev := CalculateSMA(prev, slow)
	fastCur := CalculateSMA(candles, fast)
	slowCur := CalculateSMA(candles, slow)
	if fastPrev == 0 || slowPrev == 0 {
		return nil
	}

	current := window[len(window)-1]
	crossedUp := fastPrev <= slowPrev && fastCur > slowCur
	crossedDown := fastPrev >= slowPrev && fastCur < slowCur

	switch {
	case crossedUp:
		return []order.Signal{s.signal(order.Buy, qty, current)}
	case crossedDown:
		sellQty := qty
		if position != nil && position.Quantity > portfolio.FlatTolerance {
			// Exit the whole long rather than a fixed clip.
			sellQty = math.Max(qty, position.Quantity)
		}
		return []order.Signal{s.signal(order.Sell, sellQty, current)}
	}
	return nil
}

func (s *SMACrossover) signal(side order.Side, qty float64, snap market.Snapshot) order.Signal {
	return order.Signal{
		Symbol:      s.symbol,
		Side:        side,
		Quantity:    qty,
		Timestamp:   snap.Timestamp,
		StrategyID:  s.Name(),
		OrderType:   order.Market,
		TimeInForce: order.GTC,
		Metadata:    map[string]string{"trigger": "sma_crossover"},
	}
}
