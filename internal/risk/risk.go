// Package risk evaluates rule sets over portfolio state before and
// after trades. Critical violations drive the execution engine's
// kill-switch.
package risk

import (
	"fmt"
	"strings"
	"sync"

	"crypto-trading-bot/internal/logging"
	"crypto-trading-bot/internal/order"
	"crypto-trading-bot/internal/portfolio"
)

// Violation is one rule breach, shaped for the control surface.
type Violation struct {
	RuleName  string  `json:"rule_name"`
	Observed  float64 `json:"observed"`
	Threshold float64 `json:"threshold"`
	Critical  bool    `json:"critical"`
	Message   string  `json:"message,omitempty"`
}

// Rule inspects portfolio state plus an optional proposed fill.
// Pre-trade checks pass the proposed fill; post-trade checks pass nil.
type Rule interface {
	Name() string
	Critical() bool
	Evaluate(state portfolio.State, proposed *order.Fill) *Violation
}

// ViolationError wraps the violations that rejected a signal.
type ViolationError struct {
	Violations []Violation
}

func (e *ViolationError) Error() string {
	names := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		names[i] = v.RuleName
	}
	return fmt.Sprintf("risk violation: %s", strings.Join(names, ", "))
}

// HasCritical reports whether any wrapped violation is critical.
func (e *ViolationError) HasCritical() bool {
	for _, v := range e.Violations {
		if v.Critical {
			return true
		}
	}
	return false
}

// Engine runs rules in registration order, never short-circuiting, so
// callers always see the complete violation list.
type Engine struct {
	mu                 sync.RWMutex
	rules              []Rule
	sessionStartEquity float64
	recent             []Violation
	log                *logging.Logger
}

// NewEngine creates an engine with no rules. The session start equity
// anchors the daily loss rule.
func NewEngine(sessionStartEquity float64, log *logging.Logger) *Engine {
	return &Engine{
		sessionStartEquity: sessionStartEquity,
		log:                log.WithComponent("risk"),
	}
}

// AddRule appends a rule; evaluation order follows registration order.
func (e *Engine) AddRule(r Rule) {
	e.mu.Lock()
	e.rules = append(e.rules, r)
	e.mu.Unlock()
}

// PreTrade evaluates every rule against the state plus the proposed
// fill. Returns ok=false when any rule is violated.
func (e *Engine) PreTrade(state portfolio.State, proposed order.Fill) (bool, []Violation) {
	violations := e.evaluate(state, &proposed)
	return len(violations) == 0, violations
}

// PostTrade evaluates every rule against the state alone. Returns
// critical=true when any violated rule is critical.
func (e *Engine) PostTrade(state portfolio.State) (bool, []Violation) {
	violations := e.evaluate(state, nil)
	critical := false
	for _, v := range violations {
		if v.Critical {
			critical = true
		}
	}
	return critical, violations
}

func (e *Engine) evaluate(state portfolio.State, proposed *order.Fill) []Violation {
	e.mu.Lock()
	defer e.mu.Unlock()

	var violations []Violation
	for _, r := range e.rules {
		if v := r.Evaluate(state, proposed); v != nil {
			v.Critical = r.Critical()
			violations = append(violations, *v)
			e.log.Warn("rule violated",
				"rule", v.RuleName, "observed", v.Observed,
				"threshold", v.Threshold, "critical", v.Critical)
		}
	}
	e.recent = violations
	return violations
}

// SessionStartEquity returns the equity anchor for loss-based rules.
func (e *Engine) SessionStartEquity() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sessionStartEquity
}

// RecentViolations returns the violations from the last evaluation.
func (e *Engine) RecentViolations() []Violation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Violation, len(e.recent))
	copy(out, e.recent)
	return out
}

// Rules returns the registered rule names in evaluation order.
func (e *Engine) Rules() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, len(e.rules))
	for i, r := range e.rules {
		names[i] = r.Name()
	}
	return names
}

// Reset clears recorded violations and re-anchors the session equity.
func (e *Engine) Reset(sessionStartEquity float64) {
	e.mu.Lock()
	e.recent = nil
	e.sessionStartEquity = sessionStartEquity
	e.mu.Unlock()
}
