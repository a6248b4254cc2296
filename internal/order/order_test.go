package order

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
)

func marketSignal() Signal {
	return Signal{
		Symbol:      "BTCUSDT",
		Side:        Buy,
		Quantity:    2,
		Timestamp:   1700000000000,
		StrategyID:  "sma-test",
		OrderType:   Market,
		TimeInForce: GTC,
	}
}

func TestSignalValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Signal)
		wantField string
	}{
		{"valid market", func(s *Signal) {}, ""},
		{"empty symbol", func(s *Signal) { s.Symbol = "" }, "symbol"},
		{"bad side", func(s *Signal) { s.Side = "HOLD" }, "side"},
		{"zero quantity", func(s *Signal) { s.Quantity = 0 }, "quantity"},
		{"negative quantity", func(s *Signal) { s.Quantity = -1 }, "quantity"},
		{"bad type", func(s *Signal) { s.OrderType = "TRAILING" }, "order_type"},
		{"bad tif", func(s *Signal) { s.TimeInForce = "GTD" }, "time_in_force"},
		{"limit without price", func(s *Signal) { s.OrderType = Limit }, "limit_price"},
		{"stop without stop price", func(s *Signal) { s.OrderType = StopMarket }, "stop_price"},
		{"stop limit without limit price", func(s *Signal) {
			s.OrderType = StopLimit
			s.StopPrice = 95
		}, "limit_price"},
		{"valid stop limit", func(s *Signal) {
			s.OrderType = StopLimit
			s.StopPrice = 95
			s.LimitPrice = 94
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := marketSignal()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			var verr *ValidationError
			if err == nil {
				t.Fatal("expected validation error")
			}
			var ok bool
			if verr, ok = err.(*ValidationError); !ok {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("field = %s, want %s", verr.Field, tt.wantField)
			}
		})
	}
}

func TestOrderFillAccounting(t *testing.T) {
	o := New("ORD-1", marketSignal(), 1700000000000)

	if o.Status != StatusNew || !o.IsActive() {
		t.Fatalf("fresh order: status=%s active=%v", o.Status, o.IsActive())
	}

	o.AddFill(Fill{ID: "ORD-1-F1", OrderID: o.ID, Symbol: "BTCUSDT", Side: Buy,
		Quantity: 0.5, Price: 100, Timestamp: 1700000001000, Fee: 0.05})

	if o.Status != StatusPartiallyFilled {
		t.Errorf("status = %s, want PARTIALLY_FILLED", o.Status)
	}
	if got := o.FilledQuantity + o.RemainingQuantity; math.Abs(got-o.Signal.Quantity) > 1e-12 {
		t.Errorf("filled+remaining = %f, want %f", got, o.Signal.Quantity)
	}

	o.AddFill(Fill{ID: "ORD-1-F2", OrderID: o.ID, Symbol: "BTCUSDT", Side: Buy,
		Quantity: 1.5, Price: 102, Timestamp: 1700000002000, Fee: 0.153})

	if o.Status != StatusFilled {
		t.Errorf("status = %s, want FILLED", o.Status)
	}
	if o.RemainingQuantity != 0 {
		t.Errorf("remaining = %f, want 0", o.RemainingQuantity)
	}
	// avg = (0.5*100 + 1.5*102) / 2 = 101.5
	if got := o.AverageFillPrice(); math.Abs(got-101.5) > 1e-12 {
		t.Errorf("avg fill price = %f, want 101.5", got)
	}
	if math.Abs(o.TotalFee-0.203) > 1e-12 {
		t.Errorf("total fee = %f, want 0.203", o.TotalFee)
	}
	if o.IsActive() {
		t.Error("filled order must be inactive")
	}
}

func TestOrderUndoFills(t *testing.T) {
	o := New("ORD-2", marketSignal(), 1700000000000)
	o.AddFill(Fill{Quantity: 1, Price: 100, Fee: 0.1, Timestamp: 1700000001000})
	o.UndoFills()

	if o.FilledQuantity != 0 || o.TotalFee != 0 || len(o.Fills) != 0 {
		t.Errorf("undo left state: filled=%f fee=%f fills=%d", o.FilledQuantity, o.TotalFee, len(o.Fills))
	}
	if o.RemainingQuantity != o.Signal.Quantity {
		t.Errorf("remaining = %f, want %f", o.RemainingQuantity, o.Signal.Quantity)
	}
}

func TestOrderCancelRejectExpire(t *testing.T) {
	o := New("ORD-3", marketSignal(), 1)
	if !o.Cancel("user request", 2) {
		t.Fatal("cancel of active order failed")
	}
	if o.Status != StatusCancelled || o.IsActive() {
		t.Errorf("status = %s, active = %v", o.Status, o.IsActive())
	}
	if o.Cancel("again", 3) {
		t.Error("cancel of terminal order must fail")
	}

	r := New("ORD-4", marketSignal(), 1)
	r.Reject("minimum notional", 2)
	if r.Status != StatusRejected || r.RejectionReason != "minimum notional" {
		t.Errorf("reject: status=%s reason=%q", r.Status, r.RejectionReason)
	}

	e := New("ORD-5", marketSignal(), 1)
	e.Expire(2)
	if e.Status != StatusExpired || e.IsActive() {
		t.Errorf("expire: status=%s active=%v", e.Status, e.IsActive())
	}
}

func TestOrderIOCRemainder(t *testing.T) {
	o := New("ORD-6", marketSignal(), 1)
	o.AddFill(Fill{Quantity: 1, Price: 100, Timestamp: 2})
	o.CancelRemainder(3)

	if o.Status != StatusPartiallyFilled {
		t.Errorf("status = %s, want PARTIALLY_FILLED", o.Status)
	}
	if o.RemainingQuantity != 0 || o.IsActive() {
		t.Errorf("remaining = %f, active = %v", o.RemainingQuantity, o.IsActive())
	}
}

func TestFillCashDelta(t *testing.T) {
	buy := Fill{Side: Buy, Quantity: 1, Price: 101, Fee: 0.101}
	if got := buy.CashDelta(); math.Abs(got-(-101.101)) > 1e-12 {
		t.Errorf("buy cash delta = %f, want -101.101", got)
	}
	sell := Fill{Side: Sell, Quantity: 1, Price: 109, Fee: 0.109}
	if got := sell.CashDelta(); math.Abs(got-108.891) > 1e-12 {
		t.Errorf("sell cash delta = %f, want 108.891", got)
	}
}

func TestIDGeneratorUnique(t *testing.T) {
	g := NewIDGenerator("bot-1")
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := g.NextOrderID()
		if seen[id] {
			t.Fatalf("duplicate order ID %s", id)
		}
		seen[id] = true
		if !strings.HasPrefix(id, "ORD-bot-1-") {
			t.Fatalf("unexpected ID format %s", id)
		}
	}
}

func TestIDGeneratorDeterministic(t *testing.T) {
	// Two generators with the same scope mint the same sequence: IDs
	// carry no wall-clock component.
	a, b := NewIDGenerator("bot-1"), NewIDGenerator("bot-1")
	for i := 0; i < 10; i++ {
		x, y := a.NextOrderID(), b.NextOrderID()
		if x != y {
			t.Fatalf("sequence diverges at %d: %s vs %s", i, x, y)
		}
	}
}

func TestOrderJSONRoundTrip(t *testing.T) {
	o := New("ORD-7", marketSignal(), 1700000000000)
	o.AddFill(Fill{ID: "ORD-7-F1", OrderID: "ORD-7", Symbol: "BTCUSDT", Side: Buy,
		Quantity: 1, Price: 100, Timestamp: 1700000001000, Fee: 0.1, FeeAsset: "USDT"})

	data, err := json.Marshal(o)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Order
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.ID != o.ID || back.Status != o.Status ||
		back.FilledQuantity != o.FilledQuantity || len(back.Fills) != 1 ||
		back.Fills[0].ID != o.Fills[0].ID {
		t.Errorf("round trip mismatch: %+v", back)
	}
}
