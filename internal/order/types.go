// Package order defines the trading intent and order lifecycle records:
// Signal, Order and Fill, plus the closed enums they are built from.
package order

// Side is the trade direction.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the closing side for a position opened on this side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Valid reports whether the side is one of the known values.
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Type is the order execution type.
type Type string

const (
	Market     Type = "MARKET"
	Limit      Type = "LIMIT"
	StopMarket Type = "STOP_MARKET"
	StopLimit  Type = "STOP_LIMIT"
)

// Valid reports whether the type is one of the known values.
func (t Type) Valid() bool {
	switch t {
	case Market, Limit, StopMarket, StopLimit:
		return true
	}
	return false
}

// IsStop reports whether the order rests until a stop price triggers.
func (t Type) IsStop() bool {
	return t == StopMarket || t == StopLimit
}

// Status is the order lifecycle state.
type Status string

const (
	StatusNew             Status = "NEW"
	StatusPending         Status = "PENDING"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusFilled          Status = "FILLED"
	StatusCancelled       Status = "CANCELLED"
	StatusRejected        Status = "REJECTED"
	StatusExpired         Status = "EXPIRED"
)

// Terminal reports whether no further fills can arrive in this state.
func (s Status) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// TimeInForce controls how long an order rests and whether partial
// fills are acceptable.
type TimeInForce string

const (
	GTC TimeInForce = "GTC" // good till cancelled
	IOC TimeInForce = "IOC" // immediate or cancel
	FOK TimeInForce = "FOK" // fill or kill
	Day TimeInForce = "DAY" // good for the trading session
)

// Valid reports whether the TIF is one of the known values.
func (t TimeInForce) Valid() bool {
	switch t {
	case GTC, IOC, FOK, Day:
		return true
	}
	return false
}
