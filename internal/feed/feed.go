// Package feed delivers market snapshots to strategy runners from
// three sources sharing one shape: historical replay, a seeded mock
// walk, and a live websocket subscription.
package feed

import (
	"context"
	"fmt"
	"time"

	"crypto-trading-bot/internal/market"
)

// EventType labels feed lifecycle events.
type EventType string

const (
	Connected    EventType = "CONNECTED"
	Disconnected EventType = "DISCONNECTED"
	Reconnecting EventType = "RECONNECTING"
	ErrorEvent   EventType = "ERROR"
	Heartbeat    EventType = "HEARTBEAT"
)

// Event is a lifecycle notification on the feed's side channel.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message,omitempty"`
}

// Feed streams snapshots for one (symbol, interval). The data channel
// closes when the stream ends; the event channel closes after it.
// Cancel the context to stop either stream early.
type Feed interface {
	Stream(ctx context.Context, symbol, interval string, start, end int64) (<-chan market.Snapshot, <-chan Event, error)
}

// Pusher is implemented by feeds that emit in venue time. Their
// consumers may shed load under backpressure; replay feeds block
// instead, so a slow consumer slows the replay and no event is lost.
type Pusher interface {
	Pushes() bool
}

// Provider fetches one page of candles from a market data source.
// Implementations enforce their own rate limits.
type Provider interface {
	FetchCandles(ctx context.Context, symbol, interval string, start, end int64, limit int) ([]market.Candle, error)
}

// IntervalMs converts an interval token ("1m", "4h", "1d") to
// milliseconds. Unknown tokens return an error.
func IntervalMs(interval string) (int64, error) {
	switch interval {
	case "1m":
		return 60_000, nil
	case "3m":
		return 180_000, nil
	case "5m":
		return 300_000, nil
	case "15m":
		return 900_000, nil
	case "30m":
		return 1_800_000, nil
	case "1h":
		return 3_600_000, nil
	case "2h":
		return 7_200_000, nil
	case "4h":
		return 14_400_000, nil
	case "6h":
		return 21_600_000, nil
	case "8h":
		return 28_800_000, nil
	case "12h":
		return 43_200_000, nil
	case "1d":
		return 86_400_000, nil
	case "3d":
		return 259_200_000, nil
	case "1w":
		return 604_800_000, nil
	}
	return 0, fmt.Errorf("unknown interval %q", interval)
}

// CacheKey builds the canonical cache key for a candle range.
func CacheKey(symbol, interval string, start, end int64) string {
	return fmt.Sprintf("%s:%s:%d:%d", symbol, interval, start, end)
}
