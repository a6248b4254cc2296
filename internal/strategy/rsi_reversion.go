package strategy

import (
	"fmt"

	"crypto-trading-bot/internal/market"
	"crypto-trading-bot/internal/order"
	"crypto-trading-bot/internal/portfolio"
)

var rsiReversionSchema = map[string]ParamSpec{
	"period":     {Default: 14, Min: 2, Max: 100, Description: "RSI lookback in candles"},
	"oversold":   {Default: 30, Min: 1, Max: 50, Description: "buy when RSI crosses up through this level"},
	"overbought": {Default: 70, Min: 50, Max: 99, Description: "sell when RSI crosses down through this level"},
	"quantity":   {Default: 1, Min: 0.00000001, Max: 1e9, Description: "order size in base asset"},
}

// RSIReversion buys oversold and sells overbought conditions, acting
// on the level crossing rather than the steady state.
type RSIReversion struct {
	symbol   string
	interval string
	params   Params
}

func NewRSIReversion(symbol, interval string, params Params) (*RSIReversion, error) {
	s := &RSIReversion{symbol: symbol, interval: interval, params: Params{}}
	if err := s.UpdateParams(params); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *RSIReversion) Name() string {
	return fmt.Sprintf("RSIReversion-%s-%s", s.symbol, s.interval)
}

func (s *RSIReversion) Symbol() string   { return s.symbol }
func (s *RSIReversion) Interval() string { return s.interval }

func (s *RSIReversion) Lookback() int {
	return int(paramOr(s.params, rsiReversionSchema, "period")) + 2
}

func (s *RSIReversion) RequiredIndicators() []string { return []string{"rsi"} }

func (s *RSIReversion) ParamSchema() map[string]ParamSpec { return rsiReversionSchema }

func (s *RSIReversion) ValidateParams(params Params) error {
	return validateAgainstSchema(params, rsiReversionSchema)
}

func (s *RSIReversion) UpdateParams(params Params) error {
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

func (s *RSIReversion) GenerateSignals(window []market.Snapshot, position *portfolio.Position, params Params) []order.Signal {
	if params == nil {
		params = s.params
	}
	period := int(paramOr(params, rsiReversionSchema, "period"))
	oversold := paramOr(params, rsiReversionSchema, "oversold")
	overbought := paramOr(params, rsiReversionSchema, "overbought")
	qty := paramOr(params, rsiReversionSchema, "quantity")

	if len(window) < period+2 {
		return nil
	}

	candles := make([]market.Candle, len(window))
	for i, snap := range window {
		candles[i] = snap.Candle
	}
	rsiPrev := CalculateRSI(candles[:len(candles)-1], period)
	rsiCur := CalculateRSI(candles, period)
	current := window[len(window)-1]

	long := position != nil && position.Quantity > portfolio.FlatTolerance

	switch {
	case rsiPrev <= oversold && rsiCur > oversold && !long:
		return []order.Signal{s.signal(order.Buy, qty, current)}
	case rsiPrev >= overbought && rsiCur < overbought && long:
		return []order.Signal{s.signal(order.Sell, position.Quantity, current)}
	}
	return nil
}

func (s *RSIReversion) signal(side order.Side, qty float64, snap market.Snapshot) order.Signal {
	return order.Signal{
		Symbol:      s.symbol,
		Side:        side,
		Quantity:    qty,
		Timestamp:   snap.Timestamp,
		StrategyID:  s.Name(),
		OrderType:   order.Market,
		TimeInForce: order.GTC,
		Metadata:    map[string]string{"trigger": "rsi_reversion"},
	}
}
