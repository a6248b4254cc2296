// Package runner drives the per-strategy event loop: feed in, signals
// out, fills applied, snapshots on a cadence. One runner owns one
// strategy, one feed, one execution engine and one portfolio.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"crypto-trading-bot/internal/events"
	"crypto-trading-bot/internal/execution"
	"crypto-trading-bot/internal/feed"
	"crypto-trading-bot/internal/logging"
	"crypto-trading-bot/internal/market"
	"crypto-trading-bot/internal/metrics"
	"crypto-trading-bot/internal/portfolio"
	"crypto-trading-bot/internal/risk"
	"crypto-trading-bot/internal/strategy"
)

// Status is the runner lifecycle state.
type Status string

const (
	StatusStopped Status = "STOPPED"
	StatusRunning Status = "RUNNING"
	StatusKilled  Status = "KILLED"
	StatusError   Status = "ERROR"
)

// Config holds runner parameters.
type Config struct {
	// Mode names the feed driving the run: mock, historical or live.
	Mode string
	// Start and End bound the streamed range in epoch milliseconds.
	Start int64
	End   int64
	// SnapshotEvery is the snapshot cadence in events.
	SnapshotEvery int
	// QueueSize bounds the event queue for push feeds; when full the
	// oldest event is dropped.
	QueueSize int
	// PerEventYield bounds CPU on fast replays; zero disables.
	PerEventYield time.Duration
}

// Report is the runner state surfaced through the bot manager.
type Report struct {
	ID              string          `json:"id"`
	Mode            string          `json:"mode"`
	Strategy        string          `json:"strategy"`
	Symbol          string          `json:"symbol"`
	Interval        string          `json:"interval"`
	Status          Status          `json:"status"`
	Error           string          `json:"error,omitempty"`
	HaltReason      string          `json:"halt_reason,omitempty"`
	EventsProcessed int64           `json:"events_processed"`
	EventsDropped   int64           `json:"events_dropped"`
	Portfolio       portfolio.State `json:"portfolio"`
}

// Runner executes one strategy against one feed.
type Runner struct {
	id     string
	strat  strategy.Strategy
	feed   feed.Feed
	engine *execution.Engine
	pf     *portfolio.Portfolio
	cfg    Config
	bus    *events.Bus
	log    *logging.Logger

	mu        sync.RWMutex
	status    Status
	runErr    error
	processed int64
	dropped   int64
	lastTs    int64
}

// New creates a runner in state STOPPED.
func New(id string, strat strategy.Strategy, f feed.Feed, engine *execution.Engine, pf *portfolio.Portfolio, cfg Config, bus *events.Bus, log *logging.Logger) *Runner {
	if cfg.SnapshotEvery <= 0 {
		cfg.SnapshotEvery = 100
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	return &Runner{
		id:     id,
		strat:  strat,
		feed:   f,
		engine: engine,
		pf:     pf,
		cfg:    cfg,
		bus:    bus,
		status: StatusStopped,
		log:    log.WithComponent("runner").WithField("bot_id", id),
	}
}

// ID returns the runner's bot identifier.
func (r *Runner) ID() string { return r.id }

// Engine exposes the runner's execution engine for the control surface.
func (r *Runner) Engine() *execution.Engine { return r.engine }

// Portfolio exposes the runner's ledger for the control surface.
func (r *Runner) Portfolio() *portfolio.Portfolio { return r.pf }

// Strategy exposes the runner's strategy.
func (r *Runner) Strategy() strategy.Strategy { return r.strat }

// Report returns the current state for status aggregation.
func (r *Runner) Report() Report {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rep := Report{
		ID:              r.id,
		Mode:            r.cfg.Mode,
		Strategy:        r.strat.Name(),
		Symbol:          r.strat.Symbol(),
		Interval:        r.strat.Interval(),
		Status:          r.status,
		HaltReason:      r.engine.HaltReason(),
		EventsProcessed: r.processed,
		EventsDropped:   r.dropped,
		Portfolio:       r.pf.StateNow(time.Now().UnixMilli()),
	}
	if r.runErr != nil {
		rep.Error = r.runErr.Error()
	}
	return rep
}

// Status returns the lifecycle state.
func (r *Runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Run executes the event loop until the feed ends, a critical risk
// violation halts the engine, or the context is cancelled. It is not
// reentrant; the bot manager serialises runs. A panic anywhere in the
// loop is recorded against the runner's status instead of escaping.
func (r *Runner) Run(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("runner panic: %v", rec)
			r.finish(err)
		}
	}()

	r.setStatus(StatusRunning, nil)
	if r.bus != nil {
		r.bus.Publish(events.Event{Type: events.EventBotStarted, Data: map[string]interface{}{"bot_id": r.id}})
	}
	r.log.Info("runner starting", "strategy", r.strat.Name(), "symbol", r.strat.Symbol())

	data, feedEvents, err := r.feed.Stream(ctx, r.strat.Symbol(), r.strat.Interval(), r.cfg.Start, r.cfg.End)
	if err != nil {
		r.setStatus(StatusError, err)
		return err
	}

	go r.watchFeedEvents(feedEvents)
	queue := r.buffer(ctx, data)

	err = r.loop(ctx, queue)
	r.finish(err)
	return err
}

// buffer decouples a push feed from the loop with a bounded queue.
// When the queue is full the oldest event is dropped so the runner
// always works on fresh data. Replay feeds bypass the queue entirely:
// a slow consumer slows the replay and every event is processed.
func (r *Runner) buffer(ctx context.Context, data <-chan market.Snapshot) <-chan market.Snapshot {
	if p, ok := r.feed.(feed.Pusher); !ok || !p.Pushes() {
		return data
	}
	queue := make(chan market.Snapshot, r.cfg.QueueSize)
	go func() {
		defer close(queue)
		for snap := range data {
			for {
				select {
				case queue <- snap:
				case <-ctx.Done():
					return
				default:
					select {
					case <-queue:
						r.mu.Lock()
						r.dropped++
						r.mu.Unlock()
						metrics.FeedEventsDropped.WithLabelValues(r.id).Inc()
						r.log.Warn("event queue full, dropped oldest")
						continue
					case <-ctx.Done():
						return
					}
				}
				break
			}
		}
	}()
	return queue
}

func (r *Runner) loop(ctx context.Context, queue <-chan market.Snapshot) error {
	var window []market.Snapshot
	windowCap := r.strat.Lookback() + 1
	sinceSnapshot := 0
	var lastTs int64

	for {
		var snap market.Snapshot
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok = <-queue:
			if !ok {
				return nil
			}
		}

		window = append(window, snap)
		if len(window) > windowCap {
			window = window[len(window)-windowCap:]
		}
		lastTs = snap.Timestamp

		var pos *portfolio.Position
		if p, exists := r.pf.Position(r.strat.Symbol()); exists {
			pos = &p
		}

		critical := false
		for _, sig := range r.strat.GenerateSignals(window, pos, nil) {
			metrics.SignalsGenerated.WithLabelValues(r.id).Inc()
			if r.bus != nil {
				r.bus.PublishSignal(sig.StrategyID, sig.Symbol, string(sig.Side), sig.Quantity)
			}
			if _, err := r.engine.Submit(sig); err != nil {
				var verr *risk.ViolationError
				if errors.As(err, &verr) {
					r.log.Warn("signal vetoed", "error", err)
					if verr.HasCritical() {
						critical = true
					}
					continue
				}
				if errors.Is(err, execution.ErrHalted) {
					critical = true
					continue
				}
				r.log.Warn("submit failed", "error", err)
			}
		}

		r.engine.OnMarketEvent(snap)
		r.pf.UpdateMarkPrice(snap.Symbol, snap.Close)

		r.mu.Lock()
		r.processed++
		r.lastTs = snap.Timestamp
		r.mu.Unlock()

		sinceSnapshot++
		if sinceSnapshot >= r.cfg.SnapshotEvery {
			r.snapshot(snap.Timestamp)
			sinceSnapshot = 0
		}

		if critical || r.engine.Halted() {
			r.snapshot(lastTs)
			return nil
		}
		if r.cfg.PerEventYield > 0 {
			select {
			case <-time.After(r.cfg.PerEventYield):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (r *Runner) snapshot(ts int64) {
	st := r.pf.Snapshot(ts)
	metrics.EquityGauge.WithLabelValues(r.id).Set(st.Equity)
	metrics.OpenPositions.WithLabelValues(r.id).Set(float64(len(r.pf.OpenPositions())))
	if r.bus != nil {
		r.bus.Publish(events.Event{
			Type: events.EventSnapshotTaken,
			Data: map[string]interface{}{"bot_id": r.id, "equity": st.Equity, "timestamp": ts},
		})
	}
}

func (r *Runner) watchFeedEvents(feedEvents <-chan feed.Event) {
	for ev := range feedEvents {
		switch ev.Type {
		case feed.Connected:
			r.log.Info("feed connected")
			if r.bus != nil {
				r.bus.Publish(events.Event{Type: events.EventFeedConnected, Data: map[string]interface{}{"bot_id": r.id}})
			}
		case feed.Disconnected:
			r.log.Info("feed disconnected", "message", ev.Message)
		case feed.Reconnecting:
			r.log.Warn("feed reconnecting", "message", ev.Message)
		case feed.ErrorEvent:
			r.log.Error("feed error", "message", ev.Message)
		case feed.Heartbeat:
			r.log.Debug("feed heartbeat")
		}
	}
}

func (r *Runner) finish(err error) {
	// A final snapshot so the last state is always recorded, stamped
	// with the last event's time so seeded runs produce identical
	// snapshot series.
	r.mu.RLock()
	ts := r.lastTs
	r.mu.RUnlock()
	r.pf.Snapshot(ts)

	switch {
	case r.engine.Halted():
		r.setStatus(StatusKilled, nil)
		if r.bus != nil {
			r.bus.Publish(events.Event{Type: events.EventBotKilled, Data: map[string]interface{}{"bot_id": r.id, "reason": r.engine.HaltReason()}})
		}
		r.log.Warn("runner killed", "reason", r.engine.HaltReason())
	case err != nil && !errors.Is(err, context.Canceled):
		r.setStatus(StatusError, err)
		r.log.Error("runner failed", "error", err)
	default:
		r.setStatus(StatusStopped, nil)
		r.log.Info("runner stopped")
	}
	if r.bus != nil {
		r.bus.Publish(events.Event{Type: events.EventBotStopped, Data: map[string]interface{}{"bot_id": r.id}})
	}
}

func (r *Runner) setStatus(s Status, err error) {
	r.mu.Lock()
	r.status = s
	r.runErr = err
	r.mu.Unlock()
}
