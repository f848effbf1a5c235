package events

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const Wildcard = "*"

// Event carries a typed payload; handlers type-assert Payload.
type Event struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
	Source    string      `json:"source"`
}

// EventHandler event handler function
type EventHandler func(event Event) error

// EventBus fans events out to handlers, each on its own goroutine.
type EventBus struct {
	handlers       map[string][]EventHandler
	publishedTypes map[string]time.Time
	mu             sync.RWMutex
	inflight       sync.WaitGroup
	logger         *zap.Logger
}

var globalEventBus *EventBus
var once sync.Once

// GetEventBus returns the process-wide bus
func GetEventBus() *EventBus {
	once.Do(func() {
		globalEventBus = NewEventBus(zap.L().Named("events"))
	})
	return globalEventBus
}

// NewEventBus creates a private bus, e.g. one per agent session
func NewEventBus(lg *zap.Logger) *EventBus {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &EventBus{
		handlers:       make(map[string][]EventHandler),
		publishedTypes: make(map[string]time.Time),
		logger:         lg,
	}
}

func (bus *EventBus) Subscribe(eventType string, handler EventHandler) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.handlers[eventType] = append(bus.handlers[eventType], handler)
	bus.logger.Debug("Event handler subscribed", zap.String("eventType", eventType))
}

// Unsubscribe removes all handlers for the type
func (bus *EventBus) Unsubscribe(eventType string) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	delete(bus.handlers, eventType)
}

func (bus *EventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	bus.mu.Lock()
	if _, exists := bus.publishedTypes[event.Type]; !exists {
		bus.publishedTypes[event.Type] = event.Timestamp
	}
	all := make([]EventHandler, 0, len(bus.handlers[event.Type])+len(bus.handlers[Wildcard]))
	all = append(all, bus.handlers[event.Type]...)
	all = append(all, bus.handlers[Wildcard]...)
	bus.mu.Unlock()

	if len(all) == 0 {
		bus.logger.Debug("No handlers for event", zap.String("eventType", event.Type))
		return
	}

	bus.inflight.Add(len(all))
	for _, handler := range all {
		go func(h EventHandler) {
			defer bus.inflight.Done()
			defer func() {
				if r := recover(); r != nil {
					bus.logger.Error("Event handler panicked",
						zap.String("eventType", event.Type),
						zap.Any("panic", r))
				}
			}()
			if err := h(event); err != nil {
				bus.logger.Error("Event handler failed",
					zap.String("eventType", event.Type),
					zap.Error(err))
			}
		}(handler)
	}
}

// Wait blocks until every handler started so far has returned.
func (bus *EventBus) Wait() {
	bus.inflight.Wait()
}

func (bus *EventBus) GetPublishedEventTypes() map[string]time.Time {
	bus.mu.RLock()
	defer bus.mu.RUnlock()
	result := make(map[string]time.Time, len(bus.publishedTypes))
	for k, v := range bus.publishedTypes {
		result[k] = v
	}
	return result
}

// PublishEvent publishes on the global bus
func PublishEvent(eventType string, payload interface{}, source string) {
	GetEventBus().Publish(Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Payload:   payload,
		Source:    source,
	})
}
