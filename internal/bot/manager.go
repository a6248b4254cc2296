// Package bot supervises the strategy runners: concurrent start,
// cancellation fan-out, bounded-grace shutdown and status aggregation
// for the control surface.
package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"crypto-trading-bot/internal/logging"
	"crypto-trading-bot/internal/runner"
)

// GlobalMetrics aggregates portfolio state across every runner.
type GlobalMetrics struct {
	Bots            int     `json:"bots"`
	Running         int     `json:"running"`
	TotalEquity     float64 `json:"total_equity"`
	TotalRealized   float64 `json:"total_realized_pnl"`
	TotalUnrealized float64 `json:"total_unrealized_pnl"`
	TotalTrades     int     `json:"total_trades"`
}

// Manager owns a set of runners keyed by bot id.
type Manager struct {
	mu      sync.RWMutex
	runners map[string]*runner.Runner
	order   []string
	cancels map[string]context.CancelFunc
	wgs     map[string]*sync.WaitGroup
	grace   time.Duration
	log     *logging.Logger
}

// NewManager creates an empty manager. Grace bounds how long StopAll
// waits for runners to join before giving up on them.
func NewManager(grace time.Duration, log *logging.Logger) *Manager {
	if grace <= 0 {
		grace = 10 * time.Second
	}
	return &Manager{
		runners: make(map[string]*runner.Runner),
		cancels: make(map[string]context.CancelFunc),
		wgs:     make(map[string]*sync.WaitGroup),
		grace:   grace,
		log:     log.WithComponent("manager"),
	}
}

// Add registers a runner. Duplicate ids are rejected.
func (m *Manager) Add(r *runner.Runner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.runners[r.ID()]; exists {
		return fmt.Errorf("bot %q already registered", r.ID())
	}
	m.runners[r.ID()] = r
	m.order = append(m.order, r.ID())
	m.log.Info("bot registered", "bot_id", r.ID())
	return nil
}

// Remove drops a stopped runner from the manager.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runners[id]
	if !ok {
		return fmt.Errorf("bot %q not found", id)
	}
	if r.Status() == runner.StatusRunning {
		return fmt.Errorf("bot %q is running", id)
	}
	delete(m.runners, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns a registered runner.
func (m *Manager) Get(id string) (*runner.Runner, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runners[id]
	return r, ok
}

// RunAll starts every non-running bot concurrently and waits for all
// of them to terminate. A panicking runner is captured and surfaced
// through Status; siblings keep running.
func (m *Manager) RunAll(ctx context.Context) {
	m.mu.RLock()
	ids := make([]string, len(m.order))
	copy(ids, m.order)
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		if err := m.StartBot(ctx, id); err != nil {
			m.log.Warn("start skipped", "bot_id", id, "error", err)
			continue
		}
		m.mu.RLock()
		botWg := m.wgs[id]
		m.mu.RUnlock()
		wg.Add(1)
		go func() {
			defer wg.Done()
			botWg.Wait()
		}()
	}
	wg.Wait()
}

// StartBot launches one bot in its own goroutine.
func (m *Manager) StartBot(ctx context.Context, id string) error {
	m.mu.Lock()
	r, ok := m.runners[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("bot %q not found", id)
	}
	if r.Status() == runner.StatusRunning {
		m.mu.Unlock()
		return fmt.Errorf("bot %q already running", id)
	}

	botCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	m.cancels[id] = cancel
	m.wgs[id] = &wg
	wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				m.log.Error("runner panic", "bot_id", id, "panic", fmt.Sprint(rec))
			}
		}()
		if err := r.Run(botCtx); err != nil && err != context.Canceled {
			m.log.Warn("runner exited with error", "bot_id", id, "error", err)
		}
	}()
	return nil
}

// StopBot cancels one bot and waits for it within the grace period.
func (m *Manager) StopBot(id string) error {
	m.mu.Lock()
	cancel, ok := m.cancels[id]
	wg := m.wgs[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("bot %q not started", id)
	}

	cancel()
	if wg != nil && !waitWithTimeout(wg, m.grace) {
		m.log.Error("bot did not stop within grace period", "bot_id", id)
		return fmt.Errorf("bot %q did not stop within %s", id, m.grace)
	}
	return nil
}

// KillBot engages a bot's kill-switch: flatten everything, halt the
// engine, then stop the runner.
func (m *Manager) KillBot(id, reason string) error {
	m.mu.RLock()
	r, ok := m.runners[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("bot %q not found", id)
	}
	r.Engine().FlattenAll(reason)
	if r.Status() == runner.StatusRunning {
		return m.StopBot(id)
	}
	return nil
}

// StopAll cancels every runner, then joins them with the bounded
// grace period before returning.
func (m *Manager) StopAll() {
	m.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(m.cancels))
	wgs := make([]*sync.WaitGroup, 0, len(m.wgs))
	for _, c := range m.cancels {
		cancels = append(cancels, c)
	}
	for _, wg := range m.wgs {
		wgs = append(wgs, wg)
	}
	m.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	deadline := time.After(m.grace)
	done := make(chan struct{})
	go func() {
		for _, wg := range wgs {
			wg.Wait()
		}
		close(done)
	}()
	select {
	case <-done:
		m.log.Info("all bots stopped")
	case <-deadline:
		m.log.Error("some bots did not stop within grace period")
	}
}

// Status returns per-runner reports in registration order.
func (m *Manager) Status() []runner.Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]runner.Report, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.runners[id].Report())
	}
	return out
}

// Metrics aggregates equity and P&L across all runners.
func (m *Manager) Metrics() GlobalMetrics {
	reports := m.Status()
	gm := GlobalMetrics{Bots: len(reports)}
	for _, rep := range reports {
		if rep.Status == runner.StatusRunning {
			gm.Running++
		}
		gm.TotalEquity += rep.Portfolio.Equity
		gm.TotalRealized += rep.Portfolio.RealizedPnL
		gm.TotalUnrealized += rep.Portfolio.UnrealizedPnL
		gm.TotalTrades += rep.Portfolio.TradeCount
	}
	return gm
}

func waitWithTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
