package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"crypto-trading-bot/internal/logging"
	"crypto-trading-bot/internal/market"
	"crypto-trading-bot/internal/metrics"
)

// LiveConfig parameterises the websocket subscription.
type LiveConfig struct {
	// WSBaseURL is the stream endpoint, e.g. wss://stream.binance.com:9443.
	WSBaseURL string `json:"ws_base_url"`
	// MaxReconnectWait caps the exponential backoff between attempts.
	MaxReconnectWait time.Duration `json:"max_reconnect_wait"`
	// HeartbeatEvery is the stall-detection heartbeat cadence.
	HeartbeatEvery time.Duration `json:"heartbeat_every"`
}

// LiveFeed subscribes to the venue's kline stream and emits a snapshot
// for every closed candle. Disconnects reconnect with exponential
// backoff and the subscription is restored before candles flow again.
type LiveFeed struct {
	cfg LiveConfig
	log *logging.Logger
}

// NewLiveFeed creates a live feed.
func NewLiveFeed(cfg LiveConfig, log *logging.Logger) *LiveFeed {
	if cfg.WSBaseURL == "" {
		cfg.WSBaseURL = "wss://stream.binance.com:9443"
	}
	if cfg.MaxReconnectWait <= 0 {
		cfg.MaxReconnectWait = 60 * time.Second
	}
	if cfg.HeartbeatEvery <= 0 {
		cfg.HeartbeatEvery = 30 * time.Second
	}
	return &LiveFeed{cfg: cfg, log: log.WithComponent("feed.live")}
}

// klineMessage is the venue's kline stream payload.
type klineMessage struct {
	EventType string `json:"e"`
	Kline     struct {
		StartTime int64  `json:"t"`
		Symbol    string `json:"s"`
		Interval  string `json:"i"`
		Open      string `json:"o"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Close     string `json:"c"`
		Volume    string `json:"v"`
		Closed    bool   `json:"x"`
		QuoteVol  string `json:"q"`
		Trades    int    `json:"n"`
	} `json:"k"`
}

// Pushes reports that live events arrive in venue time and may be
// shed under backpressure.
func (f *LiveFeed) Pushes() bool { return true }

// Stream subscribes to symbol@kline_interval. Start and end are
// ignored: a live stream begins now and runs until cancelled.
func (f *LiveFeed) Stream(ctx context.Context, symbol, interval string, _, _ int64) (<-chan market.Snapshot, <-chan Event, error) {
	if _, err := IntervalMs(interval); err != nil {
		return nil, nil, err
	}

	data := make(chan market.Snapshot, 16)
	eventsCh := make(chan Event, 16)
	url := fmt.Sprintf("%s/ws/%s@kline_%s", f.cfg.WSBaseURL, strings.ToLower(symbol), interval)

	go f.run(ctx, url, symbol, data, eventsCh)
	return data, eventsCh, nil
}

func (f *LiveFeed) run(ctx context.Context, url, symbol string, data chan<- market.Snapshot, eventsCh chan<- Event) {
	defer close(data)
	defer close(eventsCh)

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = f.cfg.MaxReconnectWait
	bo.MaxElapsedTime = 0 // reconnect forever until cancelled

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			wait := bo.NextBackOff()
			metrics.FeedReconnects.WithLabelValues(symbol).Inc()
			f.emit(eventsCh, Event{Type: Reconnecting, Timestamp: time.Now(), Message: err.Error()})
			f.log.Warn("dial failed", "url", url, "error", err, "retry_in", wait)
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return
			}
		}

		bo.Reset()
		f.emit(eventsCh, Event{Type: Connected, Timestamp: time.Now()})
		f.log.Info("connected", "url", url)

		f.readLoop(ctx, conn, symbol, data, eventsCh)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		metrics.FeedReconnects.WithLabelValues(symbol).Inc()
		f.emit(eventsCh, Event{Type: Disconnected, Timestamp: time.Now()})
		f.log.Warn("connection lost, reconnecting")
	}
}

func (f *LiveFeed) readLoop(ctx context.Context, conn *websocket.Conn, symbol string, data chan<- market.Snapshot, eventsCh chan<- Event) {
	heartbeat := time.NewTicker(f.cfg.HeartbeatEvery)
	defer heartbeat.Stop()

	// Unblock ReadMessage when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	msgs := make(chan []byte, 16)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			// done guards the send: once readLoop returns nobody
			// drains msgs and the reader must not linger.
			select {
			case msgs <- message:
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			f.emit(eventsCh, Event{Type: Heartbeat, Timestamp: time.Now()})
		case err := <-readErr:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				f.log.Info("connection closed by peer")
			} else {
				f.emit(eventsCh, Event{Type: ErrorEvent, Timestamp: time.Now(), Message: err.Error()})
			}
			return
		case message := <-msgs:
			if snap, ok := f.parse(message); ok {
				select {
				case data <- snap:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// parse extracts a snapshot from a kline message. Only closed candles
// become snapshots; in-progress updates are skipped.
func (f *LiveFeed) parse(message []byte) (market.Snapshot, bool) {
	var msg klineMessage
	if err := json.Unmarshal(message, &msg); err != nil || msg.EventType != "kline" || !msg.Kline.Closed {
		return market.Snapshot{}, false
	}
	c := market.Candle{
		Timestamp:  msg.Kline.StartTime,
		Symbol:     msg.Kline.Symbol,
		Interval:   msg.Kline.Interval,
		Open:       parsePrice(msg.Kline.Open),
		High:       parsePrice(msg.Kline.High),
		Low:        parsePrice(msg.Kline.Low),
		Close:      parsePrice(msg.Kline.Close),
		Volume:     parsePrice(msg.Kline.Volume),
		TradeCount: msg.Kline.Trades,
	}
	c.QuoteVolume = parsePrice(msg.Kline.QuoteVol)
	if err := c.Validate(); err != nil {
		f.log.Warn("dropping invalid candle", "error", err)
		return market.Snapshot{}, false
	}
	return market.NewSnapshot(c), true
}

// emit delivers a lifecycle event without ever blocking the read path.
func (f *LiveFeed) emit(ch chan<- Event, ev Event) {
	select {
	case ch <- ev:
	default:
	}
}

func parsePrice(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
