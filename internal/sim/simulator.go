// Package sim models order execution against market snapshots:
// market-order slippage, limit crossing with price improvement, stop
// triggering, partial fills, fees and time-in-force semantics. All
// randomness comes from a single seeded source so a run is
// reproducible bit for bit.
package sim

import (
	"math"
	"math/rand"

	"crypto-trading-bot/internal/logging"
	"crypto-trading-bot/internal/market"
	"crypto-trading-bot/internal/order"
)

// Config holds the execution model parameters.
type Config struct {
	TakerFeeRate           float64 `json:"taker_fee_rate"`
	MakerFeeRate           float64 `json:"maker_fee_rate"`
	MarketSlippageBps      float64 `json:"market_slippage_bps"`
	PartialFillProbability float64 `json:"partial_fill_probability"`
	ExecutionLatencyMs     int64   `json:"execution_latency_ms"`
	FeeAsset               string  `json:"fee_asset"`
	Seed                   int64   `json:"seed"`
}

// DefaultConfig mirrors Binance spot taker/maker tiers with a small
// random slippage on market orders.
func DefaultConfig() Config {
	return Config{
		TakerFeeRate:           0.001,
		MakerFeeRate:           0.001,
		MarketSlippageBps:      5,
		PartialFillProbability: 0.1,
		ExecutionLatencyMs:     50,
		FeeAsset:               "USDT",
	}
}

// Simulator turns (order, snapshot) pairs into fills. Each engine owns
// its own Simulator so concurrent runners draw from independent
// random streams.
type Simulator struct {
	cfg Config
	rng *rand.Rand
	log *logging.Logger
}

// New creates a simulator seeded from cfg.Seed.
func New(cfg Config, log *logging.Logger) *Simulator {
	if cfg.FeeAsset == "" {
		cfg.FeeAsset = "USDT"
	}
	return &Simulator{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
		log: log.WithComponent("sim"),
	}
}

// Reset restores the random stream to its initial seed state.
func (s *Simulator) Reset() {
	s.rng = rand.New(rand.NewSource(s.cfg.Seed))
}

// Process runs one order against one snapshot and returns the fills
// produced, mutating the order's fill accounting and status. Stop
// orders that trigger convert in place and are re-processed against
// the same snapshot. FOK orders that would only partially fill are
// cancelled with all fills from this call undone.
func (s *Simulator) Process(o *order.Order, snap market.Snapshot) []order.Fill {
	if !o.IsActive() || o.Symbol() != snap.Symbol {
		return nil
	}
	snap = snap.Normalize()

	if o.Signal.OrderType.IsStop() {
		if !stopTriggered(o, snap) {
			return nil
		}
		if o.Signal.OrderType == order.StopMarket {
			o.Signal.OrderType = order.Market
		} else {
			o.Signal.OrderType = order.Limit
		}
		s.log.Debug("stop triggered",
			"order_id", o.ID, "stop_price", o.Signal.StopPrice, "close", snap.Close)
	}

	fillsBefore := len(o.Fills)
	ts := snap.Timestamp + s.cfg.ExecutionLatencyMs

	switch o.Signal.OrderType {
	case order.Market:
		s.fillMarket(o, snap, ts)
	case order.Limit:
		s.fillLimit(o, snap, ts)
	default:
		return nil
	}

	produced := o.Fills[fillsBefore:]
	if len(produced) == 0 {
		return nil
	}

	switch o.Signal.TimeInForce {
	case order.FOK:
		if o.Status != order.StatusFilled {
			o.UndoFills()
			o.Cancel("FOK order could not fill in full", ts)
			s.log.Debug("fok cancelled", "order_id", o.ID)
			return nil
		}
	case order.IOC:
		if o.Status == order.StatusPartiallyFilled {
			o.CancelRemainder(ts)
		}
	}

	out := make([]order.Fill, len(produced))
	copy(out, produced)
	return out
}

func stopTriggered(o *order.Order, snap market.Snapshot) bool {
	if o.Signal.Side == order.Buy {
		return snap.Close >= o.Signal.StopPrice
	}
	return snap.Close <= o.Signal.StopPrice
}

// fillMarket executes at the touch plus slippage. Slippage in basis
// points is drawn uniformly within ±25% of the configured mean.
func (s *Simulator) fillMarket(o *order.Order, snap market.Snapshot, ts int64) {
	slipBps := s.cfg.MarketSlippageBps * (0.75 + s.rng.Float64()*0.5)
	slip := slipBps / 10000

	var price float64
	if o.Signal.Side == order.Buy {
		price = snap.Ask * (1 + slip)
	} else {
		price = snap.Bid * (1 - slip)
	}

	qty := o.RemainingQuantity
	if s.rng.Float64() < s.cfg.PartialFillProbability {
		qty *= 0.5 + s.rng.Float64()*0.4
	}
	s.apply(o, qty, price, s.cfg.TakerFeeRate, false, ts)
}

// fillLimit executes only when the touch crosses the limit, at the
// better of the two prices. Partial fills occur at half the market
// probability.
func (s *Simulator) fillLimit(o *order.Order, snap market.Snapshot, ts int64) {
	var price float64
	if o.Signal.Side == order.Buy {
		if snap.Ask > o.Signal.LimitPrice {
			return
		}
		price = math.Min(o.Signal.LimitPrice, snap.Ask)
	} else {
		if snap.Bid < o.Signal.LimitPrice {
			return
		}
		price = math.Max(o.Signal.LimitPrice, snap.Bid)
	}

	qty := o.RemainingQuantity
	if s.rng.Float64() < s.cfg.PartialFillProbability/2 {
		qty *= 0.6 + s.rng.Float64()*0.35
	}
	s.apply(o, qty, price, s.cfg.MakerFeeRate, true, ts)
}

func (s *Simulator) apply(o *order.Order, qty, price, feeRate float64, maker bool, ts int64) {
	if qty <= 0 || price <= 0 {
		return
	}
	f := order.Fill{
		ID:        order.FillID(o.ID, len(o.Fills)+1),
		OrderID:   o.ID,
		Symbol:    o.Symbol(),
		Side:      o.Signal.Side,
		Quantity:  qty,
		Price:     price,
		Timestamp: ts,
		Fee:       qty * price * feeRate,
		FeeAsset:  s.cfg.FeeAsset,
		IsMaker:   maker,
	}
	o.AddFill(f)
	s.log.Debug("fill",
		"order_id", o.ID, "fill_id", f.ID, "qty", qty, "price", price, "maker", maker)
}
