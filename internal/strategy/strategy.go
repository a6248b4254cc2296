// Package strategy defines the pluggable signal generators and the
// indicator math they share. Strategies are stateless across calls:
// the same window, position and params always produce the same
// signals, which keeps backtests reproducible.
package strategy

import (
	"fmt"

	"crypto-trading-bot/internal/market"
	"crypto-trading-bot/internal/order"
	"crypto-trading-bot/internal/portfolio"
)

// Params holds a strategy's tunable numeric parameters.
type Params map[string]float64

// Clone returns an independent copy.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// ParamSpec describes one schema entry for the control surface.
type ParamSpec struct {
	Default     float64 `json:"default"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Description string  `json:"description"`
}

// Strategy is the signal-generation contract. GenerateSignals is
// called once per market event with a window of at least Lookback
// snapshots ending at the current event.
type Strategy interface {
	// Name returns the strategy name
	Name() string

	// Symbol returns the symbol this strategy trades
	Symbol() string

	// Interval returns the candle interval
	Interval() string

	// Lookback returns the minimum window length GenerateSignals needs
	Lookback() int

	// GenerateSignals inspects the window and the current position and
	// returns zero or more signals for the execution engine
	GenerateSignals(window []market.Snapshot, position *portfolio.Position, params Params) []order.Signal

	// ValidateParams rejects out-of-schema parameter sets
	ValidateParams(params Params) error

	// UpdateParams replaces the strategy's working parameters
	UpdateParams(params Params) error

	// RequiredIndicators names the indicators the strategy consumes
	RequiredIndicators() []string

	// ParamSchema describes the tunable parameters
	ParamSchema() map[string]ParamSpec
}

// validateAgainstSchema checks every param against its spec and
// rejects unknown keys.
func validateAgainstSchema(params Params, schema map[string]ParamSpec) error {
	for key, value := range params {
		spec, ok := schema[key]
		if !ok {
			return fmt.Errorf("unknown parameter %q", key)
		}
		if value < spec.Min || value > spec.Max {
			return fmt.Errorf("parameter %q = %v outside [%v, %v]", key, value, spec.Min, spec.Max)
		}
	}
	return nil
}

// paramOr returns the param value or the schema default.
func paramOr(params Params, schema map[string]ParamSpec, key string) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return schema[key].Default
}
