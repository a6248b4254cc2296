// Package market defines the canonical market-data records shared by the
// data feeds, strategies and the fill simulator.
package market

import (
	"fmt"
	"math"
)

// Candle represents aggregated OHLCV data over a fixed interval.
// Timestamp is the candle open time in milliseconds.
type Candle struct {
	Timestamp           int64   `json:"timestamp"`
	Symbol              string  `json:"symbol"`
	Interval            string  `json:"interval"`
	Open                float64 `json:"open"`
	High                float64 `json:"high"`
	Low                 float64 `json:"low"`
	Close               float64 `json:"close"`
	Volume              float64 `json:"volume"`
	QuoteVolume         float64 `json:"quote_volume,omitempty"`
	TradeCount          int     `json:"trade_count,omitempty"`
	TakerBuyVolume      float64 `json:"taker_buy_volume,omitempty"`
	TakerBuyQuoteVolume float64 `json:"taker_buy_quote_volume,omitempty"`
}

// Validate checks the candle field invariants.
func (c Candle) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("candle: empty symbol")
	}
	if c.Timestamp <= 0 {
		return fmt.Errorf("candle %s: invalid timestamp %d", c.Symbol, c.Timestamp)
	}
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return fmt.Errorf("candle %s@%d: non-positive price", c.Symbol, c.Timestamp)
	}
	if c.Volume < 0 {
		return fmt.Errorf("candle %s@%d: negative volume %f", c.Symbol, c.Timestamp, c.Volume)
	}
	lo := math.Min(c.Open, c.Close)
	hi := math.Max(c.Open, c.Close)
	if c.Low > lo || c.High < hi {
		return fmt.Errorf("candle %s@%d: OHLC out of order (o=%f h=%f l=%f c=%f)",
			c.Symbol, c.Timestamp, c.Open, c.High, c.Low, c.Close)
	}
	return nil
}

// ValidateSequence checks that candles form a valid series for a single
// (symbol, interval): every candle valid and timestamps strictly increasing.
func ValidateSequence(candles []Candle) error {
	for i, c := range candles {
		if err := c.Validate(); err != nil {
			return err
		}
		if i > 0 {
			prev := candles[i-1]
			if c.Symbol != prev.Symbol || c.Interval != prev.Interval {
				return fmt.Errorf("candle sequence: mixed series %s/%s and %s/%s",
					prev.Symbol, prev.Interval, c.Symbol, c.Interval)
			}
			if c.Timestamp <= prev.Timestamp {
				return fmt.Errorf("candle sequence: timestamp %d not after %d", c.Timestamp, prev.Timestamp)
			}
		}
	}
	return nil
}
