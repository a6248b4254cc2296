package portfolio

import "fmt"

// InsufficientBalanceError means cash cannot cover an intended buy
// including the estimated fee.
type InsufficientBalanceError struct {
	Required  float64
	Available float64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: need %.8f, have %.8f", e.Required, e.Available)
}

// PositionLimitError means an intended order would push a position
// past the configured fraction of equity.
type PositionLimitError struct {
	Symbol   string
	Notional float64
	Limit    float64
}

func (e *PositionLimitError) Error() string {
	return fmt.Sprintf("position limit on %s: notional %.2f exceeds limit %.2f", e.Symbol, e.Notional, e.Limit)
}

// MinOrderSizeError means the order notional is below the venue minimum.
type MinOrderSizeError struct {
	Notional float64
	Minimum  float64
}

func (e *MinOrderSizeError) Error() string {
	return fmt.Sprintf("order notional %.8f below minimum %.8f", e.Notional, e.Minimum)
}
