package feed

import (
	"context"
	"math"
	"math/rand"
	"time"

	"crypto-trading-bot/internal/logging"
	"crypto-trading-bot/internal/market"
)

// MockConfig parameterises the random walk.
type MockConfig struct {
	StartPrice float64 `json:"start_price"`
	Volatility float64 `json:"volatility"` // per-candle stddev as a fraction of price
	Seed       int64   `json:"seed"`
	// TickDelay throttles emission for paper-trading style runs; zero
	// replays as fast as the consumer reads.
	TickDelay time.Duration `json:"tick_delay"`
}

// MockFeed emits a seeded geometric random walk. Two feeds with the
// same config and range produce identical candles.
type MockFeed struct {
	cfg MockConfig
	log *logging.Logger
}

// NewMockFeed creates a mock feed.
func NewMockFeed(cfg MockConfig, log *logging.Logger) *MockFeed {
	if cfg.StartPrice <= 0 {
		cfg.StartPrice = 100
	}
	if cfg.Volatility <= 0 {
		cfg.Volatility = 0.002
	}
	return &MockFeed{cfg: cfg, log: log.WithComponent("feed.mock")}
}

// Pushes reports whether the feed behaves like a live stream. A
// throttled mock emits in wall-clock time (paper mode); an unthrottled
// one is a replay and must never lose events.
func (f *MockFeed) Pushes() bool { return f.cfg.TickDelay > 0 }

// walkEpoch anchors zero-start walks: 2020-01-01T00:00:00Z.
const walkEpoch int64 = 1577836800000

// Stream generates candles from start to end at the interval's width.
// End must be after start; both are epoch milliseconds. A zero start
// anchors at walkEpoch so every candle carries a valid timestamp; a
// positive end is shifted with it, keeping the range's width.
func (f *MockFeed) Stream(ctx context.Context, symbol, interval string, start, end int64) (<-chan market.Snapshot, <-chan Event, error) {
	step, err := IntervalMs(interval)
	if err != nil {
		return nil, nil, err
	}
	if start <= 0 {
		if end > 0 {
			end += walkEpoch - start
		}
		start = walkEpoch
	}

	data := make(chan market.Snapshot)
	eventsCh := make(chan Event, 4)

	go func() {
		defer close(data)
		defer close(eventsCh)

		eventsCh <- Event{Type: Connected, Timestamp: time.Now()}

		rng := rand.New(rand.NewSource(f.cfg.Seed))
		price := f.cfg.StartPrice

		for ts := start; end <= 0 || ts < end; ts += step {
			c, next := f.nextCandle(rng, symbol, interval, ts, price)
			price = next

			select {
			case data <- market.NewSnapshot(c):
			case <-ctx.Done():
				return
			}
			if f.cfg.TickDelay > 0 {
				select {
				case <-time.After(f.cfg.TickDelay):
				case <-ctx.Done():
					return
				}
			}
		}
		eventsCh <- Event{Type: Disconnected, Timestamp: time.Now(), Message: "walk complete"}
	}()

	return data, eventsCh, nil
}

// nextCandle draws one candle of the walk and returns it with the
// close that seeds the next step.
func (f *MockFeed) nextCandle(rng *rand.Rand, symbol, interval string, ts int64, open float64) (market.Candle, float64) {
	ret := rng.NormFloat64() * f.cfg.Volatility
	close := open * math.Exp(ret)

	high := math.Max(open, close) * (1 + rng.Float64()*f.cfg.Volatility)
	low := math.Min(open, close) * (1 - rng.Float64()*f.cfg.Volatility)
	volume := 50 + rng.Float64()*100

	return market.Candle{
		Timestamp: ts,
		Symbol:    symbol,
		Interval:  interval,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    volume,
	}, close
}
