package server

import (
	"context"
	"net/http"
	"time"

	"github.com/aristath/oracle-portfolio/internal/events"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const wsWriteTimeout = 10 * time.Second

// EventsWSHandler streams registry events over a websocket.
// Messages have the same JSON shape as the SSE stream.
type EventsWSHandler struct {
	eventBus  *events.Bus
	heartbeat time.Duration
	log       zerolog.Logger
}

// NewEventsWSHandler creates a new websocket events handler
func NewEventsWSHandler(eventBus *events.Bus, log zerolog.Logger) *EventsWSHandler {
	return &EventsWSHandler{
		eventBus:  eventBus,
		heartbeat: defaultHeartbeat,
		log:       log.With().Str("component", "events_ws").Logger(),
	}
}

// ServeHTTP handles GET /api/events/ws
func (h *EventsWSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	typesFilter := r.URL.Query().Get("types")
	eventChan, unsubscribe := subscribe(h.eventBus, parseTypes(typesFilter), h.log)
	defer unsubscribe()

	// Clients only listen; CloseRead discards their frames and cancels ctx on close
	ctx := conn.CloseRead(r.Context())

	h.log.Info().Str("types_filter", typesFilter).Msg("Client connected to event websocket")

	if err := h.write(ctx, conn, streamMessage{
		Type:      "connected",
		Timestamp: time.Now().Format(time.RFC3339),
		Message:   "Connected to event stream",
	}); err != nil {
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("Client disconnected from event websocket")
			conn.Close(websocket.StatusNormalClosure, "")
			return

		case event := <-eventChan:
			if err := h.write(ctx, conn, eventMessage(event)); err != nil {
				return
			}

		case <-heartbeat.C:
			if err := h.write(ctx, conn, streamMessage{
				Type:      "heartbeat",
				Timestamp: time.Now().Format(time.RFC3339),
			}); err != nil {
				return
			}
		}
	}
}

func (h *EventsWSHandler) write(ctx context.Context, conn *websocket.Conn, msg streamMessage) error {
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()

	if err := wsjson.Write(writeCtx, conn, msg); err != nil {
		status := websocket.CloseStatus(err)
		if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
			h.log.Debug().Err(err).Msg("Websocket write failed")
		}
		return err
	}
	return nil
}
