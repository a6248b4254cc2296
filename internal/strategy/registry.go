package strategy

import "fmt"

// Factory builds a strategy instance from a bot configuration.
type Factory func(symbol, interval string, params Params) (Strategy, error)

var factories = map[string]Factory{
	"sma_crossover": func(symbol, interval string, params Params) (Strategy, error) {
		return NewSMACrossover(symbol, interval, params)
	},
	"rsi_reversion": func(symbol, interval string, params Params) (Strategy, error) {
		return NewRSIReversion(symbol, interval, params)
	},
}

// New instantiates a registered strategy class by name.
func New(class, symbol, interval string, params Params) (Strategy, error) {
	factory, ok := factories[class]
	if !ok {
		return nil, fmt.Errorf("unknown strategy class %q", class)
	}
	return factory(symbol, interval, params)
}

// Classes lists the registered strategy class names.
func Classes() []string {
	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	return out
}
