package order

// Signal is a trading intent emitted by a strategy. Signals are
// immutable after creation; the execution engine turns accepted
// signals into orders.
type Signal struct {
	Symbol      string            `json:"symbol"`
	Side        Side              `json:"side"`
	Quantity    float64           `json:"quantity"`
	Timestamp   int64             `json:"timestamp"`
	StrategyID  string            `json:"strategy_id"`
	OrderType   Type              `json:"order_type"`
	LimitPrice  float64           `json:"limit_price,omitempty"`
	StopPrice   float64           `json:"stop_price,omitempty"`
	TimeInForce TimeInForce       `json:"time_in_force"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Validate checks the signal field constraints.
func (s Signal) Validate() error {
	if s.Symbol == "" {
		return &ValidationError{Field: "symbol", Reason: "empty"}
	}
	if !s.Side.Valid() {
		return &ValidationError{Field: "side", Reason: "must be BUY or SELL"}
	}
	if s.Quantity <= 0 {
		return &ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if !s.OrderType.Valid() {
		return &ValidationError{Field: "order_type", Reason: "unknown order type"}
	}
	if !s.TimeInForce.Valid() {
		return &ValidationError{Field: "time_in_force", Reason: "unknown time in force"}
	}
	if (s.OrderType == Limit || s.OrderType == StopLimit) && s.LimitPrice <= 0 {
		return &ValidationError{Field: "limit_price", Reason: "required for limit orders"}
	}
	if s.OrderType.IsStop() && s.StopPrice <= 0 {
		return &ValidationError{Field: "stop_price", Reason: "required for stop orders"}
	}
	return nil
}
