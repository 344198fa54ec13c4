package events

import (
	"encoding/json"
)

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// PluginAddedData contains data for PluginAdded events
type PluginAddedData struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

// EventType returns the event type for PluginAddedData
func (d *PluginAddedData) EventType() EventType {
	return PluginAdded
}

// PluginUpdatedData contains data for PluginUpdated events
type PluginUpdatedData struct {
	Kind    string   `json:"kind"`
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Changed []string `json:"changed,omitempty"` // top-level fields present in the update
}

// EventType returns the event type for PluginUpdatedData
func (d *PluginUpdatedData) EventType() EventType {
	return PluginUpdated
}

// PluginDeletedData contains data for PluginDeleted events
type PluginDeletedData struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// EventType returns the event type for PluginDeletedData
func (d *PluginDeletedData) EventType() EventType {
	return PluginDeleted
}

// ConfigImportedData contains data for ConfigImported events
type ConfigImportedData struct {
	Indicators int `json:"indicators"`
	Formulas   int `json:"formulas"`
	Regimes    int `json:"regimes"`
	Failures   int `json:"failures"`
}

// EventType returns the event type for ConfigImportedData
func (d *ConfigImportedData) EventType() EventType {
	return ConfigImported
}

// SnapshotCreatedData contains data for SnapshotCreated events
type SnapshotCreatedData struct {
	ID          string `json:"id"`
	Reason      string `json:"reason"`
	PluginCount int    `json:"plugin_count"`
	SizeBytes   int    `json:"size_bytes"`
	RemoteKey   string `json:"remote_key,omitempty"`
}

// EventType returns the event type for SnapshotCreatedData
func (d *SnapshotCreatedData) EventType() EventType {
	return SnapshotCreated
}

// SnapshotRestoredData contains data for SnapshotRestored events
type SnapshotRestoredData struct {
	ID       string `json:"id"`
	Deleted  int    `json:"deleted"`
	Imported int    `json:"imported"`
}

// EventType returns the event type for SnapshotRestoredData
func (d *SnapshotRestoredData) EventType() EventType {
	return SnapshotRestored
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string         `json:"error"`
	Context map[string]any `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// SystemStatusData contains data for SystemStatusChanged events
type SystemStatusData struct {
	Status    string         `json:"status"` // healthy or degraded
	Unhealthy []string       `json:"unhealthy,omitempty"`
	Plugins   map[string]int `json:"plugins"`
}

// EventType returns the event type for SystemStatusData
func (d *SystemStatusData) EventType() EventType {
	return SystemStatusChanged
}

// ToMap converts typed event data into the generic map carried by Event.
func ToMap(data EventData) map[string]any {
	raw, err := json.Marshal(data)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{"error": err.Error()}
	}
	return out
}
