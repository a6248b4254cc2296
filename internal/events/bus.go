package events

import (
	"sync"
	"time"

	"crypto-trading-bot/internal/order"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventSignalGenerated EventType = "SIGNAL_GENERATED"
	EventOrderPlaced     EventType = "ORDER_PLACED"
	EventOrderFilled     EventType = "ORDER_FILLED"
	EventOrderCancelled  EventType = "ORDER_CANCELLED"
	EventOrderRejected   EventType = "ORDER_REJECTED"
	EventOrderExpired    EventType = "ORDER_EXPIRED"
	EventPositionUpdate  EventType = "POSITION_UPDATE"
	EventSnapshotTaken   EventType = "SNAPSHOT_TAKEN"
	EventRiskViolation   EventType = "RISK_VIOLATION"
	EventKillSwitch      EventType = "KILL_SWITCH"
	EventBotStarted      EventType = "BOT_STARTED"
	EventBotStopped      EventType = "BOT_STOPPED"
	EventBotKilled       EventType = "BOT_KILLED"
	EventFeedConnected   EventType = "FEED_CONNECTED"
	EventFeedDisconnect  EventType = "FEED_DISCONNECTED"
	EventError           EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// Bus manages event publishing and subscriptions
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (b *Bus) Subscribe(eventType EventType, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (b *Bus) SubscribeAll(subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.allSubs = append(b.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := b.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	for _, sub := range b.allSubs {
		go sub(event)
	}
}

// PublishSignal publishes a signal generated event
func (b *Bus) PublishSignal(strategyID, symbol, side string, quantity float64) {
	b.Publish(Event{
		Type: EventSignalGenerated,
		Data: map[string]interface{}{
			"strategy_id": strategyID,
			"symbol":      symbol,
			"side":        side,
			"quantity":    quantity,
		},
	})
}

// PublishOrderFilled publishes an order filled event. The raw fill
// rides along for persistence subscribers.
func (b *Bus) PublishOrderFilled(botID string, f order.Fill) {
	b.Publish(Event{
		Type: EventOrderFilled,
		Data: map[string]interface{}{
			"bot_id":   botID,
			"order_id": f.OrderID,
			"symbol":   f.Symbol,
			"side":     string(f.Side),
			"quantity": f.Quantity,
			"price":    f.Price,
			"fee":      f.Fee,
			"fill":     f,
		},
	})
}

// PublishKillSwitch publishes a kill-switch event with the triggering
// reason and the number of positions flattened.
func (b *Bus) PublishKillSwitch(strategyID, reason string, positionsFlattened int) {
	b.Publish(Event{
		Type: EventKillSwitch,
		Data: map[string]interface{}{
			"strategy_id":         strategyID,
			"reason":              reason,
			"positions_flattened": positionsFlattened,
		},
	})
}

// PublishRiskViolation publishes a risk violation event
func (b *Bus) PublishRiskViolation(strategyID, rule string, observed, threshold float64, critical bool) {
	b.Publish(Event{
		Type: EventRiskViolation,
		Data: map[string]interface{}{
			"strategy_id": strategyID,
			"rule":        rule,
			"observed":    observed,
			"threshold":   threshold,
			"critical":    critical,
		},
	})
}

// PublishError publishes an error event
func (b *Bus) PublishError(component string, err error) {
	b.Publish(Event{
		Type: EventError,
		Data: map[string]interface{}{
			"component": component,
			"error":     err.Error(),
		},
	})
}
