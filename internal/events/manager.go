package events

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// Manager handles event emission and logging
type Manager struct {
	bus *Bus
	log zerolog.Logger
	now func() time.Time
}

// NewManager creates a new event manager publishing on bus
func NewManager(bus *Bus, log zerolog.Logger) *Manager {
	return &Manager{
		bus: bus,
		log: log.With().Str("service", "events").Logger(),
		now: time.Now,
	}
}

// Bus returns the bus events are published on
func (m *Manager) Bus() *Bus {
	return m.bus
}

// Emit emits an event
func (m *Manager) Emit(eventType EventType, module string, data map[string]any) {
	event := &Event{
		Type:      eventType,
		Timestamp: m.now(),
		Data:      data,
		Module:    module,
	}

	eventJSON, _ := json.Marshal(event)
	m.log.Info().
		Str("event_type", string(eventType)).
		Str("module", module).
		RawJSON("event", eventJSON).
		Msg("Event emitted")

	m.bus.Publish(event)
}

// EmitTyped emits an event carrying typed data
func (m *Manager) EmitTyped(module string, data EventData) {
	m.Emit(data.EventType(), module, ToMap(data))
}

// EmitError emits an error event
func (m *Manager) EmitError(module string, err error, context map[string]any) {
	m.EmitTyped(module, &ErrorEventData{Error: err.Error(), Context: context})
}
