// Package handlers provides HTTP handlers for the plugin registry and the plugin wizard.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aristath/oracle-portfolio/internal/events"
	"github.com/aristath/oracle-portfolio/internal/modules/plugins"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// maxBodyBytes bounds request bodies (plugin documents and import files)
const maxBodyBytes = 4 << 20

const msgpackContentType = "application/x-msgpack"

// Handler provides HTTP handlers for plugin endpoints
type Handler struct {
	registry     *plugins.Registry
	wizards      *plugins.Wizards
	eventManager *events.Manager
	log          zerolog.Logger
}

// NewHandler creates a new plugin handler
func NewHandler(registry *plugins.Registry, wizards *plugins.Wizards, eventManager *events.Manager, log zerolog.Logger) *Handler {
	return &Handler{
		registry:     registry,
		wizards:      wizards,
		eventManager: eventManager,
		log:          log.With().Str("handler", "plugins").Logger(),
	}
}

// HandleGetTemplate handles GET /api/plugins/templates/{kind}
func (h *Handler) HandleGetTemplate(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}

	template, err := h.registry.Template(kind)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, template)
}

// HandleCreateFromTemplate handles POST /api/plugins/{kind}/template
// The body holds the overrides; the created plugin is returned but not registered.
func (h *Handler) HandleCreateFromTemplate(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}

	var overrides map[string]any
	if !h.decodeBody(w, r, &overrides, true) {
		return
	}

	p, err := h.registry.CreateFromTemplate(kind, overrides)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// HandleList handles GET /api/plugins/{kind}
// An unknown kind yields an empty list.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	kind, err := plugins.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.writeJSON(w, http.StatusOK, []plugins.Plugin{})
		return
	}
	h.writeJSON(w, http.StatusOK, h.registry.Plugins(kind))
}

// HandleGet handles GET /api/plugins/{kind}/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}

	p, err := h.registry.Plugin(kind, chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// HandleRegister handles POST /api/plugins/{kind}
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}

	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	p, err := h.registry.RegisterRaw(r.Context(), kind, body)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, p)
}

// HandleUpdate handles PATCH /api/plugins/{kind}/{id}
// The body is a partial plugin deep-merged onto the stored one.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}

	var partial map[string]any
	if !h.decodeBody(w, r, &partial, false) {
		return
	}

	p, err := h.registry.Update(r.Context(), kind, chi.URLParam(r, "id"), partial)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// HandleDelete handles DELETE /api/plugins/{kind}/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}

	if err := h.registry.Delete(r.Context(), kind, chi.URLParam(r, "id")); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleValidate handles POST /api/plugins/{kind}/validate
func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}

	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	validation, err := h.registry.ValidateRaw(kind, body)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, validation)
}

// HandlePerformance handles POST /api/plugins/{kind}/{id}/performance
// The body is optional test data.
func (h *Handler) HandlePerformance(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}

	var data plugins.TestData
	if !h.decodeBody(w, r, &data, true) {
		return
	}

	result, err := h.registry.PerformanceTest(r.Context(), kind, chi.URLParam(r, "id"), data)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleExport handles GET /api/plugins/export
// ?format=msgpack returns a MessagePack document instead of JSON.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	doc := h.registry.ExportConfig()
	stamp := doc.Exported.Format("20060102-150405")

	if r.URL.Query().Get("format") == "msgpack" {
		body, err := plugins.EncodeMsgpack(doc)
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to encode msgpack export")
			h.writeError(w, http.StatusInternalServerError, "Failed to encode export")
			return
		}
		w.Header().Set("Content-Type", msgpackContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="plugins-%s.msgpack"`, stamp))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="plugins-%s.json"`, stamp))
	h.writeJSON(w, http.StatusOK, doc)
}

// HandleImport handles POST /api/plugins/import
// JSON by default; MessagePack with Content-Type application/x-msgpack or ?format=msgpack.
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	if r.URL.Query().Get("format") == "msgpack" || strings.HasPrefix(r.Header.Get("Content-Type"), msgpackContentType) {
		converted, err := plugins.MsgpackToJSON(body)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		body = converted
	}

	result, err := h.registry.ImportConfig(r.Context(), body)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	if h.eventManager != nil {
		h.eventManager.EmitTyped("plugins", &events.ConfigImportedData{
			Indicators: result.Indicators,
			Formulas:   result.Formulas,
			Regimes:    result.Regimes,
			Failures:   len(result.Failures),
		})
	}

	h.writeJSON(w, http.StatusOK, result)
}

// HandleStartWizard handles POST /api/wizards/{kind}
func (h *Handler) HandleStartWizard(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}

	wizard, err := h.wizards.Start(kind)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, wizard.State())
}

// HandleGetWizard handles GET /api/wizards/session/{wid}
func (h *Handler) HandleGetWizard(w http.ResponseWriter, r *http.Request) {
	wizard, ok := h.wizardParam(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, wizard.State())
}

// HandleUpdateWizard handles PATCH /api/wizards/session/{wid}
// The body maps dotted field paths to values: {"name": "Boom", "allocations.cash": 5}.
func (h *Handler) HandleUpdateWizard(w http.ResponseWriter, r *http.Request) {
	wizard, ok := h.wizardParam(w, r)
	if !ok {
		return
	}

	var updates map[string]any
	if !h.decodeBody(w, r, &updates, false) {
		return
	}

	wizard.SetMany(updates)
	h.writeJSON(w, http.StatusOK, wizard.State())
}

// HandleWizardNext handles POST /api/wizards/session/{wid}/next
func (h *Handler) HandleWizardNext(w http.ResponseWriter, r *http.Request) {
	wizard, ok := h.wizardParam(w, r)
	if !ok {
		return
	}
	wizard.Next()
	h.writeJSON(w, http.StatusOK, wizard.State())
}

// HandleWizardPrev handles POST /api/wizards/session/{wid}/prev
func (h *Handler) HandleWizardPrev(w http.ResponseWriter, r *http.Request) {
	wizard, ok := h.wizardParam(w, r)
	if !ok {
		return
	}
	wizard.Prev()
	h.writeJSON(w, http.StatusOK, wizard.State())
}

// HandleWizardTest handles POST /api/wizards/session/{wid}/test
func (h *Handler) HandleWizardTest(w http.ResponseWriter, r *http.Request) {
	wizard, ok := h.wizardParam(w, r)
	if !ok {
		return
	}

	result, err := wizard.Test(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleWizardFinalize handles POST /api/wizards/session/{wid}/finalize
// On success the plugin is registered and the wizard session closed.
func (h *Handler) HandleWizardFinalize(w http.ResponseWriter, r *http.Request) {
	wizard, ok := h.wizardParam(w, r)
	if !ok {
		return
	}

	p, err := wizard.Finalize(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.wizards.Close(wizard.ID())
	h.writeJSON(w, http.StatusCreated, p)
}

// HandleCloseWizard handles DELETE /api/wizards/session/{wid}
func (h *Handler) HandleCloseWizard(w http.ResponseWriter, r *http.Request) {
	wizard, ok := h.wizardParam(w, r)
	if !ok {
		return
	}
	h.wizards.Close(wizard.ID())
	w.WriteHeader(http.StatusNoContent)
}

// Helper methods

func (h *Handler) kindParam(w http.ResponseWriter, r *http.Request) (plugins.Kind, bool) {
	kind, err := plugins.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.writeDomainError(w, err)
		return "", false
	}
	return kind, true
}

func (h *Handler) wizardParam(w http.ResponseWriter, r *http.Request) (*plugins.Wizard, bool) {
	wizard, err := h.wizards.Get(chi.URLParam(r, "wid"))
	if err != nil {
		h.writeDomainError(w, err)
		return nil, false
	}
	return wizard, true
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}
	return body, true
}

// decodeBody decodes a JSON body into v. An empty body is accepted when optional.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	body, ok := h.readBody(w, r)
	if !ok {
		return false
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		if optional {
			return true
		}
		h.writeError(w, http.StatusBadRequest, "Request body is required")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// writeDomainError maps registry errors onto HTTP status codes
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var validationErr *plugins.ValidationError
	switch {
	case errors.As(err, &validationErr):
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  err.Error(),
			"errors": validationErr.Errors,
		})
	case plugins.IsDuplicate(err):
		h.writeError(w, http.StatusConflict, err.Error())
	case plugins.IsNotFound(err), errors.Is(err, plugins.ErrWizardNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case plugins.IsUnknownKind(err), errors.Is(err, plugins.ErrInvalidDocument):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Msg("Plugin request failed")
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
