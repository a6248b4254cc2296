package market

import "fmt"

// Ticker represents a point-in-time price summary for a symbol.
type Ticker struct {
	Symbol    string  `json:"symbol"`
	Timestamp int64   `json:"timestamp"`
	Price     float64 `json:"price"`
	Volume    float64 `json:"volume"`
}

// Validate checks the ticker field invariants.
func (t Ticker) Validate() error {
	if t.Symbol == "" {
		return fmt.Errorf("ticker: empty symbol")
	}
	if t.Price <= 0 {
		return fmt.Errorf("ticker %s: non-positive price %f", t.Symbol, t.Price)
	}
	if t.Volume < 0 {
		return fmt.Errorf("ticker %s: negative volume %f", t.Symbol, t.Volume)
	}
	return nil
}

// PriceLevel is a single order-book level.
type PriceLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderBook represents a depth snapshot. Bids are sorted descending,
// asks ascending; validation only checks level sanity, not ordering.
type OrderBook struct {
	Symbol    string       `json:"symbol"`
	Timestamp int64        `json:"timestamp"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
}

// Validate checks every level carries a positive price and quantity.
func (b OrderBook) Validate() error {
	if b.Symbol == "" {
		return fmt.Errorf("order book: empty symbol")
	}
	for _, side := range [][]PriceLevel{b.Bids, b.Asks} {
		for _, lvl := range side {
			if lvl.Price <= 0 || lvl.Quantity <= 0 {
				return fmt.Errorf("order book %s: invalid level %+v", b.Symbol, lvl)
			}
		}
	}
	return nil
}

// BestBid returns the top bid, or zero if the book side is empty.
func (b OrderBook) BestBid() float64 {
	if len(b.Bids) == 0 {
		return 0
	}
	return b.Bids[0].Price
}

// BestAsk returns the top ask, or zero if the book side is empty.
func (b OrderBook) BestAsk() float64 {
	if len(b.Asks) == 0 {
		return 0
	}
	return b.Asks[0].Price
}

// Trade represents a single executed exchange trade (public feed).
type Trade struct {
	Symbol       string  `json:"symbol"`
	Timestamp    int64   `json:"timestamp"`
	Price        float64 `json:"price"`
	Quantity     float64 `json:"quantity"`
	IsBuyerMaker bool    `json:"is_buyer_maker"`
}

// Validate checks the trade field invariants.
func (t Trade) Validate() error {
	if t.Symbol == "" {
		return fmt.Errorf("trade: empty symbol")
	}
	if t.Price <= 0 || t.Quantity <= 0 {
		return fmt.Errorf("trade %s: non-positive price or quantity", t.Symbol)
	}
	return nil
}
