package events

import (
	"sync"
	"testing"
	"time"

	"crypto-trading-bot/internal/order"
)

func TestSubscribeReceivesMatchingType(t *testing.T) {
	bus := NewBus()
	got := make(chan Event, 1)
	bus.Subscribe(EventKillSwitch, func(ev Event) { got <- ev })

	bus.PublishKillSwitch("bot-1", "drawdown breach", 2)

	select {
	case ev := <-got:
		if ev.Data["strategy_id"] != "bot-1" {
			t.Errorf("strategy_id = %v", ev.Data["strategy_id"])
		}
		if ev.Data["positions_flattened"] != 2 {
			t.Errorf("positions_flattened = %v", ev.Data["positions_flattened"])
		}
		if ev.Timestamp.IsZero() {
			t.Error("timestamp not stamped")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never called")
	}

	// Unrelated types must not reach the subscriber.
	bus.PublishSignal("bot-1", "BTCUSDT", "BUY", 1)
	select {
	case ev := <-got:
		t.Errorf("received unrelated event %s", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeAllSeesEverything(t *testing.T) {
	bus := NewBus()
	var mu sync.Mutex
	var seen []EventType
	done := make(chan struct{}, 3)
	bus.SubscribeAll(func(ev Event) {
		mu.Lock()
		seen = append(seen, ev.Type)
		mu.Unlock()
		done <- struct{}{}
	})

	bus.PublishSignal("bot-1", "BTCUSDT", "BUY", 1)
	bus.PublishOrderFilled("bot-1", order.Fill{ID: "ORD-1-F1", OrderID: "ORD-1", Symbol: "BTCUSDT", Side: order.Buy, Quantity: 1, Price: 100})
	bus.PublishError("feed", errTest{})

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("missing event")
		}
	}
	mu.Lock()
	defer mu.Unlock()
	types := map[EventType]bool{}
	for _, typ := range seen {
		types[typ] = true
	}
	for _, want := range []EventType{EventSignalGenerated, EventOrderFilled, EventError} {
		if !types[want] {
			t.Errorf("missing %s in %v", want, seen)
		}
	}
}

func TestOrderFilledCarriesRawFill(t *testing.T) {
	bus := NewBus()
	got := make(chan Event, 1)
	bus.Subscribe(EventOrderFilled, func(ev Event) { got <- ev })

	f := order.Fill{ID: "ORD-9-F1", OrderID: "ORD-9", Symbol: "ETHUSDT", Side: order.Sell, Quantity: 2, Price: 2500, Fee: 5}
	bus.PublishOrderFilled("bot-9", f)

	select {
	case ev := <-got:
		carried, ok := ev.Data["fill"].(order.Fill)
		if !ok {
			t.Fatalf("fill payload type %T", ev.Data["fill"])
		}
		if carried.ID != f.ID || carried.Price != f.Price {
			t.Errorf("fill = %+v, want %+v", carried, f)
		}
		if ev.Data["bot_id"] != "bot-9" {
			t.Errorf("bot_id = %v", ev.Data["bot_id"])
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never called")
	}
}

type errTest struct{}

func (errTest) Error() string { return "boom" }
