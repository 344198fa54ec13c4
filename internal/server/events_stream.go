package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aristath/oracle-portfolio/internal/events"
	"github.com/aristath/oracle-portfolio/internal/utils"
	"github.com/rs/zerolog"
)

const (
	// streamBuffer is the per-connection event buffer; events are dropped when it is full
	streamBuffer = 100

	defaultHeartbeat = 30 * time.Second
)

// streamMessage is the JSON shape sent to stream clients
type streamMessage struct {
	Type      string         `json:"type"`
	Module    string         `json:"module,omitempty"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
	Message   string         `json:"message,omitempty"`
}

func eventMessage(event *events.Event) streamMessage {
	return streamMessage{
		Type:      string(event.Type),
		Module:    event.Module,
		Timestamp: event.Timestamp.Format(time.RFC3339),
		Data:      event.Data,
	}
}

// parseTypes reads the comma-separated types filter. An empty filter selects every type.
func parseTypes(filter string) []events.EventType {
	if filter == "" {
		return events.AllEventTypes
	}
	var out []events.EventType
	for _, t := range utils.ParseCSV(filter) {
		out = append(out, events.EventType(t))
	}
	return out
}

// subscribe attaches a buffered channel to the bus for the given types.
// The returned function detaches it.
func subscribe(bus *events.Bus, types []events.EventType, log zerolog.Logger) (<-chan *events.Event, func()) {
	ch := make(chan *events.Event, streamBuffer)

	handler := func(event *events.Event) {
		// Non-blocking send (drop if channel full)
		select {
		case ch <- event:
		default:
			log.Warn().
				Str("event_type", string(event.Type)).
				Msg("Event channel full, dropping event")
		}
	}

	ids := make([]events.Subscription, 0, len(types))
	for _, t := range types {
		ids = append(ids, bus.Subscribe(t, handler))
	}

	return ch, func() {
		for _, id := range ids {
			bus.Unsubscribe(id)
		}
	}
}

// EventsStreamHandler handles Server-Sent Events (SSE) streaming of registry events.
type EventsStreamHandler struct {
	eventBus  *events.Bus
	heartbeat time.Duration
	log       zerolog.Logger
}

// NewEventsStreamHandler creates a new events stream handler.
func NewEventsStreamHandler(eventBus *events.Bus, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		eventBus:  eventBus,
		heartbeat: defaultHeartbeat,
		log:       log.With().Str("component", "events_stream").Logger(),
	}
}

// ServeHTTP handles GET /api/events/stream requests (SSE).
// The optional types query parameter restricts the stream, e.g. ?types=PLUGIN_ADDED,PLUGIN_DELETED
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	typesFilter := r.URL.Query().Get("types")
	eventChan, unsubscribe := subscribe(h.eventBus, parseTypes(typesFilter), h.log)
	defer unsubscribe()

	h.log.Info().Str("types_filter", typesFilter).Msg("Client connected to event stream")

	h.send(w, flusher, streamMessage{
		Type:      "connected",
		Timestamp: time.Now().Format(time.RFC3339),
		Message:   "Connected to event stream",
	})

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.log.Info().Msg("Client disconnected from event stream")
			return

		case event := <-eventChan:
			h.send(w, flusher, eventMessage(event))

		case <-heartbeat.C:
			h.send(w, flusher, streamMessage{
				Type:      "heartbeat",
				Timestamp: time.Now().Format(time.RFC3339),
			})
		}
	}
}

func (h *EventsStreamHandler) send(w http.ResponseWriter, flusher http.Flusher, msg streamMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to marshal event")
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}
