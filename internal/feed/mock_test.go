package feed

import (
	"context"
	"testing"
)

func TestMockFeedDeterministic(t *testing.T) {
	cfg := MockConfig{StartPrice: 100, Volatility: 0.01, Seed: 7}

	run := func() []float64 {
		f := NewMockFeed(cfg, testLogger())
		data, _, err := f.Stream(context.Background(), "BTCUSDT", "1m", 0, 60000*50)
		if err != nil {
			t.Fatalf("stream: %v", err)
		}
		var closes []float64
		for snap := range data {
			closes = append(closes, snap.Close)
		}
		return closes
	}

	a, b := run(), run()
	if len(a) != 50 || len(b) != 50 {
		t.Fatalf("lengths = %d, %d; want 50", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("walk diverges at %d: %f vs %f", i, a[i], b[i])
		}
	}
}

func TestMockFeedCandlesValid(t *testing.T) {
	f := NewMockFeed(MockConfig{StartPrice: 100, Volatility: 0.05, Seed: 99}, testLogger())
	data, _, err := f.Stream(context.Background(), "ETHUSDT", "5m", 0, 300000*100)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	count := 0
	var lastTs int64 = -1
	for snap := range data {
		if err := snap.Validate(); err != nil {
			t.Fatalf("candle %d invalid: %v", count, err)
		}
		if snap.Timestamp <= lastTs {
			t.Fatalf("timestamps not ascending at %d", count)
		}
		if snap.Bid <= 0 || snap.Ask <= snap.Bid {
			t.Fatalf("quotes not normalized: bid=%f ask=%f", snap.Bid, snap.Ask)
		}
		lastTs = snap.Timestamp
		count++
	}
	if count != 100 {
		t.Errorf("candles = %d, want 100", count)
	}
}

func TestMockFeedZeroStartAnchorsEpoch(t *testing.T) {
	f := NewMockFeed(MockConfig{StartPrice: 100, Seed: 3}, testLogger())
	data, _, err := f.Stream(context.Background(), "BTCUSDT", "1m", 0, 60000*20)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	count := 0
	for snap := range data {
		if err := snap.Validate(); err != nil {
			t.Fatalf("candle %d invalid: %v", count, err)
		}
		count++
	}
	// The relative end keeps its width after anchoring.
	if count != 20 {
		t.Errorf("candles = %d, want 20", count)
	}
}

func TestMockFeedRejectsUnknownInterval(t *testing.T) {
	f := NewMockFeed(MockConfig{}, testLogger())
	if _, _, err := f.Stream(context.Background(), "BTCUSDT", "9z", 0, 1000); err == nil {
		t.Error("unknown interval accepted")
	}
}

func TestMockFeedCancellation(t *testing.T) {
	f := NewMockFeed(MockConfig{Seed: 1}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	// Open-ended stream: only cancellation ends it.
	data, _, err := f.Stream(ctx, "BTCUSDT", "1m", 0, 0)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	for i := 0; i < 10; i++ {
		<-data
	}
	cancel()
	for range data {
	}
}
