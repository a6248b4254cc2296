package order

// Fill represents a single execution against an order. Fills are
// immutable; they are appended to the owning order and to the
// portfolio trade log.
type Fill struct {
	ID        string            `json:"id"`
	OrderID   string            `json:"order_id"`
	Symbol    string            `json:"symbol"`
	Side      Side              `json:"side"`
	Quantity  float64           `json:"quantity"`
	Price     float64           `json:"price"`
	Timestamp int64             `json:"timestamp"`
	Fee       float64           `json:"fee"`
	FeeAsset  string            `json:"fee_asset"`
	IsMaker   bool              `json:"is_maker"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Notional returns quantity × price.
func (f Fill) Notional() float64 {
	return f.Quantity * f.Price
}

// CashDelta returns the net cash impact on the owning portfolio:
// −(notional + fee) on BUY, +(notional − fee) on SELL.
func (f Fill) CashDelta() float64 {
	if f.Side == Buy {
		return -(f.Notional() + f.Fee)
	}
	return f.Notional() - f.Fee
}
