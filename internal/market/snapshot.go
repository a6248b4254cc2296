package market

// DefaultSpreadFraction is the synthetic bid/ask spread applied when a
// feed provides candles without quote data: 0.1% of close, split evenly
// around the close. The fill simulator reads bid/ask, so the synthesis
// is part of the snapshot contract.
const DefaultSpreadFraction = 0.001

// Snapshot is a candle extended with top-of-book quotes. Feeds that only
// produce candles synthesize the quotes via Normalize.
type Snapshot struct {
	Candle
	Bid    float64 `json:"bid,omitempty"`
	Ask    float64 `json:"ask,omitempty"`
	Spread float64 `json:"spread,omitempty"`
}

// Normalize fills in missing bid/ask symmetrically around the close and
// recomputes the spread. A snapshot with both quotes present is returned
// unchanged apart from the spread.
func (s Snapshot) Normalize() Snapshot {
	if s.Bid <= 0 || s.Ask <= 0 {
		half := s.Close * DefaultSpreadFraction / 2
		s.Bid = s.Close - half
		s.Ask = s.Close + half
	}
	s.Spread = s.Ask - s.Bid
	return s
}

// Mid returns the quote midpoint.
func (s Snapshot) Mid() float64 {
	if s.Bid > 0 && s.Ask > 0 {
		return (s.Bid + s.Ask) / 2
	}
	return s.Close
}

// NewSnapshot wraps a candle in a normalized snapshot.
func NewSnapshot(c Candle) Snapshot {
	return Snapshot{Candle: c}.Normalize()
}
