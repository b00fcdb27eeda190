package zwave

import (
	"log/slog"
	"sync"
	"time"
)

// Event types
const (
	EventNodeAdded                     = "node_added"
	EventNodeStageChanged              = "node_stage_changed"
	EventNodeReady                     = "node_ready"
	EventValueChanged                  = "value_changed"
	EventBatteryLevelChanged           = "battery_level_changed"
	EventConfigurationParameterChanged = "configuration_parameter_changed"
	EventAssociationChanged            = "association_changed"
	EventWakeUpIntervalChanged         = "wakeup_interval_changed"
	EventWakeUpNotification            = "wakeup_notification"
)

// Event represents a network event. Data holds one of the payload structs below.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// NodeEvent is the payload of node lifecycle events.
type NodeEvent struct {
	Node  uint8 `json:"node"`
	Stage Stage `json:"stage"`
}

// ValueChanged reports a state value from Basic, switch and sensor classes.
type ValueChanged struct {
	Node         uint8        `json:"node"`
	Endpoint     uint8        `json:"endpoint"`
	CommandClass CommandClass `json:"command_class"`
	SensorType   uint8        `json:"sensor_type,omitempty"`
	Scale        uint8        `json:"scale,omitempty"`
	Value        float64      `json:"value"`
}

// BatteryLevelChanged reports a battery level in percent. Low is set for the
// 0xFF low-battery warning, in which case Level is 0.
type BatteryLevelChanged struct {
	Node     uint8 `json:"node"`
	Endpoint uint8 `json:"endpoint"`
	Level    uint8 `json:"level"`
	Low      bool  `json:"low"`
}

// ConfigurationParameterChanged reports a parameter value confirmed by the device.
type ConfigurationParameterChanged struct {
	Node      uint8 `json:"node"`
	Parameter uint8 `json:"parameter"`
	Size      int   `json:"size"`
	Value     int32 `json:"value"`
}

// AssociationChanged carries the complete member set of one group.
type AssociationChanged struct {
	Node    uint8   `json:"node"`
	Group   uint8   `json:"group"`
	Members []uint8 `json:"members"`
}

// WakeUpIntervalChanged reports the interval (seconds) and target node confirmed by the device.
type WakeUpIntervalChanged struct {
	Node     uint8  `json:"node"`
	Interval uint32 `json:"interval"`
	Target   uint8  `json:"target"`
}

// WakeUpNotification is emitted when a sleeping node announces it is awake.
type WakeUpNotification struct {
	Node uint8     `json:"node"`
	At   time.Time `json:"at"`
}

// EventHandler is a callback for events.
type EventHandler func(Event)

// EventBus provides pub/sub for network events.
type EventBus struct {
	mu          sync.RWMutex
	handlers    map[string]map[uint64]EventHandler
	allHandlers map[uint64]EventHandler
	nextID      uint64
	logger      *slog.Logger
}

// NewEventBus creates a new event bus.
func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		handlers:    make(map[string]map[uint64]EventHandler),
		allHandlers: make(map[uint64]EventHandler),
		logger:      logger,
	}
}

// On registers a handler for a specific event type.
// Returns an unsubscribe function.
func (eb *EventBus) On(eventType string, handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eb.nextID
	eb.nextID++
	if eb.handlers[eventType] == nil {
		eb.handlers[eventType] = make(map[uint64]EventHandler)
	}
	eb.handlers[eventType][id] = handler
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		delete(eb.handlers[eventType], id)
	}
}

// OnAll registers a handler that receives all events.
// Returns an unsubscribe function.
func (eb *EventBus) OnAll(handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eb.nextID
	eb.nextID++
	eb.allHandlers[id] = handler
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		delete(eb.allHandlers, id)
	}
}

// Emit sends an event to all matching handlers.
// Handlers are called synchronously, type-specific ones first; a panicking
// handler is recovered.
func (eb *EventBus) Emit(event Event) {
	eb.mu.RLock()
	handlers := make([]EventHandler, 0, len(eb.handlers[event.Type])+len(eb.allHandlers))
	for _, h := range eb.handlers[event.Type] {
		handlers = append(handlers, h)
	}
	for _, h := range eb.allHandlers {
		handlers = append(handlers, h)
	}
	eb.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					eb.logger.Error("event handler panic", "type", event.Type, "panic", r)
				}
			}()
			h(event)
		}()
	}
}
