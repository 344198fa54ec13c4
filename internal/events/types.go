// Package events provides the application event bus feeding the live event streams.
package events

import "time"

// EventType represents different event types
type EventType string

const (
	PluginAdded      EventType = "PLUGIN_ADDED"
	PluginUpdated    EventType = "PLUGIN_UPDATED"
	PluginDeleted    EventType = "PLUGIN_DELETED"
	ConfigImported   EventType = "CONFIG_IMPORTED"
	SnapshotCreated  EventType = "SNAPSHOT_CREATED"
	SnapshotRestored EventType = "SNAPSHOT_RESTORED"
	ErrorOccurred    EventType = "ERROR_OCCURRED"

	SystemStatusChanged EventType = "SYSTEM_STATUS_CHANGED"
)

// AllEventTypes lists every event type, in the order streams subscribe to them.
var AllEventTypes = []EventType{
	PluginAdded,
	PluginUpdated,
	PluginDeleted,
	ConfigImported,
	SnapshotCreated,
	SnapshotRestored,
	ErrorOccurred,
	SystemStatusChanged,
}

// Event represents a system event
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
	Module    string         `json:"module"`
}
