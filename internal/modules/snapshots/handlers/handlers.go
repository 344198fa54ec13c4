// Package handlers provides HTTP handlers for registry snapshot operations.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/aristath/oracle-portfolio/internal/modules/snapshots"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const defaultListLimit = 50

// Handler handles snapshot HTTP requests
type Handler struct {
	service *snapshots.Service
	log     zerolog.Logger
}

// NewHandler creates a new snapshot handler
func NewHandler(service *snapshots.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "snapshots").Logger(),
	}
}

type createRequest struct {
	Reason string `json:"reason"`
}

// HandleList handles GET /api/snapshots
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, "Limite invalide")
			return
		}
		limit = n
	}

	list, err := h.service.List(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list snapshots")
		h.writeError(w, http.StatusInternalServerError, "Failed to list snapshots")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"snapshots": list,
		"count":     len(list),
	})
}

// HandleCreate handles POST /api/snapshots
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "JSON invalide")
			return
		}
	}
	if req.Reason == "" {
		req.Reason = snapshots.ReasonManual
	}

	snap, err := h.service.Create(r.Context(), req.Reason)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create snapshot")
		h.writeError(w, http.StatusInternalServerError, "Failed to create snapshot")
		return
	}

	h.writeJSON(w, http.StatusCreated, snap)
}

// HandleGet handles GET /api/snapshots/{sid}; the body is the export document
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.Document(r.Context(), chi.URLParam(r, "sid"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc); err != nil {
		h.log.Error().Err(err).Msg("Failed to write snapshot document")
	}
}

// HandleRestore handles POST /api/snapshots/{sid}/restore
func (h *Handler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Restore(r.Context(), chi.URLParam(r, "sid"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, snapshots.ErrSnapshotNotFound) {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.log.Error().Err(err).Msg("Snapshot operation failed")
	h.writeError(w, http.StatusInternalServerError, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
