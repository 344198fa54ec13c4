package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aristath/oracle-portfolio/internal/events"
	"github.com/aristath/oracle-portfolio/internal/modules/plugins"
	testingpkg "github.com/aristath/oracle-portfolio/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRouter creates a router over an empty registry and returns the event bus
func setupTestRouter(t *testing.T) (chi.Router, *plugins.Registry, *events.Bus) {
	t.Helper()

	log := zerolog.Nop()
	registry := plugins.NewRegistry(log)
	bus := events.NewBus()
	handler := NewHandler(registry, plugins.NewWizards(registry, log), events.NewManager(bus, log), log)

	router := chi.NewRouter()
	handler.RegisterRoutes(router)
	return router, registry, bus
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHandleRegisterAndGet(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	w := do(t, router, http.MethodPost, "/api/plugins/indicator", testingpkg.IndicatorFixture)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "copper_price", decode(t, w)["id"])

	w = do(t, router, http.MethodGet, "/api/plugins/indicators/copper_price", "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode(t, w)
	assert.Equal(t, "Copper Price", got["name"])
	assert.Equal(t, 30.0, got["weight"])

	w = do(t, router, http.MethodPost, "/api/plugins/indicator", testingpkg.IndicatorFixture)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Plugin avec ID copper_price existe déjà", decode(t, w)["error"])
}

func TestHandleRegister_ValidationError(t *testing.T) {
	router, registry, _ := setupTestRouter(t)

	w := do(t, router, http.MethodPost, "/api/plugins/regime", `{"id": "bust", "name": "Bust", "allocations": {"cash": 40}}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	body := decode(t, w)
	assert.Equal(t, []any{"Total des allocations doit être 100% (actuellement 40%)"}, body["errors"])
	assert.Empty(t, registry.Plugins(plugins.KindRegime))
}

func TestHandleList(t *testing.T) {
	router, _, _ := setupTestRouter(t)
	do(t, router, http.MethodPost, "/api/plugins/formula", testingpkg.FormulaFixture)

	w := do(t, router, http.MethodGet, "/api/plugins/formulas", "")
	require.Equal(t, http.StatusOK, w.Code)

	var list []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "weighted_growth", list[0]["id"])

	w = do(t, router, http.MethodGet, "/api/plugins/widgets", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestHandleGet_Errors(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	w := do(t, router, http.MethodGet, "/api/plugins/indicator/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Plugin missing non trouvé", decode(t, w)["error"])

	w = do(t, router, http.MethodGet, "/api/plugins/widget/x", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Type de plugin inconnu: widget", decode(t, w)["error"])
}

func TestHandleUpdate(t *testing.T) {
	router, _, _ := setupTestRouter(t)
	do(t, router, http.MethodPost, "/api/plugins/regime", testingpkg.RegimeFixture)

	w := do(t, router, http.MethodPatch, "/api/plugins/regime/boom", `{"ui": {"color": "#fff"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "#fff", decode(t, w)["ui"].(map[string]any)["color"])

	w = do(t, router, http.MethodPatch, "/api/plugins/regime/boom", `{"allocations": {"commodities": 5}}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodGet, "/api/plugins/regime/boom", "")
	assert.Equal(t, 10.0, decode(t, w)["allocations"].(map[string]any)["commodities"])

	w = do(t, router, http.MethodPatch, "/api/plugins/regime/boom", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPatch, "/api/plugins/regime/missing", `{"name": "X"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleDelete(t *testing.T) {
	router, registry, _ := setupTestRouter(t)
	do(t, router, http.MethodPost, "/api/plugins/indicator", testingpkg.IndicatorFixture)

	w := do(t, router, http.MethodDelete, "/api/plugins/indicator/copper_price", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, registry.Plugins(plugins.KindIndicator))

	w = do(t, router, http.MethodDelete, "/api/plugins/indicator/copper_price", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleValidate(t *testing.T) {
	router, registry, _ := setupTestRouter(t)

	w := do(t, router, http.MethodPost, "/api/plugins/formula/validate", `{"id": "f", "name": "F", "expression": "a / 0"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"valid": true, "errors": []}`, w.Body.String())

	w = do(t, router, http.MethodPost, "/api/plugins/formula/validate", `{"id": "f", "name": "F", "expression": "a +"}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["valid"])
	assert.True(t, strings.HasPrefix(body["errors"].([]any)[0].(string), "Expression invalide"))

	assert.Empty(t, registry.Plugins(plugins.KindFormula))
}

func TestHandleTemplates(t *testing.T) {
	router, registry, _ := setupTestRouter(t)

	w := do(t, router, http.MethodGet, "/api/plugins/templates/regime", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 50.0, decode(t, w)["allocations"].(map[string]any)["stocks"])

	w = do(t, router, http.MethodPost, "/api/plugins/indicator/template", `{"name": "Copper Price", "weight": 30}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "copper_price", body["id"])
	assert.Equal(t, 30.0, body["weight"])
	assert.Empty(t, registry.Plugins(plugins.KindIndicator), "template creation does not register")

	w = do(t, router, http.MethodPost, "/api/plugins/formula/template", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandlePerformance(t *testing.T) {
	router, _, _ := setupTestRouter(t)
	do(t, router, http.MethodPost, "/api/plugins/formula", testingpkg.FormulaFixture)

	w := do(t, router, http.MethodPost, "/api/plugins/formula/weighted_growth/performance", `{"variables": {"a": 1, "b": 2}}`)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.InDelta(t, 1.4, body["result"].(float64), 1e-9)
	assert.Contains(t, []any{"excellent", "good", "acceptable", "slow"}, body["performance_rating"])

	w = do(t, router, http.MethodPost, "/api/plugins/formula/missing/performance", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleExportImport(t *testing.T) {
	router, _, _ := setupTestRouter(t)
	do(t, router, http.MethodPost, "/api/plugins/indicator", testingpkg.IndicatorFixture)
	do(t, router, http.MethodPost, "/api/plugins/regime", testingpkg.RegimeFixture)

	w := do(t, router, http.MethodGet, "/api/plugins/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="plugins-`)
	exported := w.Body.String()

	target, registry, bus := setupTestRouter(t)
	var imported []*events.Event
	bus.Subscribe(events.ConfigImported, func(e *events.Event) { imported = append(imported, e) })

	w = do(t, target, http.MethodPost, "/api/plugins/import", exported)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"indicators": 1, "formulas": 0, "regimes": 1, "failures": []}`, w.Body.String())
	assert.Len(t, registry.Plugins(plugins.KindRegime), 1)

	require.Len(t, imported, 1)
	assert.Equal(t, 1.0, imported[0].Data["indicators"])

	w = do(t, target, http.MethodPost, "/api/plugins/import", `{"plugins": []}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Format de configuration invalide", decode(t, w)["error"])
}

func TestHandleImport_InvalidCollectionRegistersNothing(t *testing.T) {
	router, registry, bus := setupTestRouter(t)
	var imported []*events.Event
	bus.Subscribe(events.ConfigImported, func(e *events.Event) { imported = append(imported, e) })

	body := `{"config": {"indicators": {"copper_price": ` + testingpkg.IndicatorFixture + `}, "formulas": [1, 2]}}`
	w := do(t, router, http.MethodPost, "/api/plugins/import", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Format de configuration invalide", decode(t, w)["error"])
	assert.Empty(t, registry.Plugins(plugins.KindIndicator))
	assert.Empty(t, imported)
}

func TestHandleValidate_DeeplyNestedExpression(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	expression := strings.Repeat("(", 100000) + "a" + strings.Repeat(")", 100000)
	w := do(t, router, http.MethodPost, "/api/plugins/formula/validate",
		`{"id": "deep", "name": "Deep", "expression": "`+expression+`"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	result := decode(t, w)
	assert.Equal(t, false, result["valid"])
	assert.Contains(t, result["errors"], "Expression invalide: syntax error at position 4097: expression longer than 4096 characters")
}

func TestHandleExportImport_Msgpack(t *testing.T) {
	router, _, _ := setupTestRouter(t)
	do(t, router, http.MethodPost, "/api/plugins/formula", testingpkg.FormulaFixture)

	w := do(t, router, http.MethodGet, "/api/plugins/export?format=msgpack", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, msgpackContentType, w.Header().Get("Content-Type"))
	packed := w.Body.Bytes()

	target, registry, _ := setupTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/plugins/import", bytes.NewReader(packed))
	req.Header.Set("Content-Type", msgpackContentType)
	rec := httptest.NewRecorder()
	target.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, registry.Plugins(plugins.KindFormula), 1)
}

func TestHandleWizardFlow(t *testing.T) {
	router, registry, _ := setupTestRouter(t)

	w := do(t, router, http.MethodPost, "/api/wizards/formula", "")
	require.Equal(t, http.StatusCreated, w.Code)
	state := decode(t, w)
	wid := state["id"].(string)
	assert.Equal(t, 1.0, state["step"].(map[string]any)["number"])

	base := "/api/wizards/session/" + wid

	w = do(t, router, http.MethodPatch, base, `{"name": "Growth Mix", "parameters": {"w": 0.5}, "expression": "a * w + b"}`)
	require.Equal(t, http.StatusOK, w.Code)
	state = decode(t, w)
	assert.Equal(t, "growth_mix", state["draft"].(map[string]any)["id"])
	assert.Equal(t, true, state["validation"].(map[string]any)["valid"])

	w = do(t, router, http.MethodPost, base+"/next", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2.0, decode(t, w)["step"].(map[string]any)["number"])

	w = do(t, router, http.MethodPost, base+"/prev", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, decode(t, w)["step"].(map[string]any)["number"])

	w = do(t, router, http.MethodPost, base+"/test", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["success"])

	w = do(t, router, http.MethodPost, base+"/finalize", "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "growth_mix", decode(t, w)["id"])
	assert.Len(t, registry.Plugins(plugins.KindFormula), 1)

	w = do(t, router, http.MethodGet, base, "")
	assert.Equal(t, http.StatusNotFound, w.Code, "finalized wizard is closed")
}

func TestHandleWizard_Errors(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	w := do(t, router, http.MethodPost, "/api/wizards/widget", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodGet, "/api/wizards/session/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Assistant non trouvé", decode(t, w)["error"])

	w = do(t, router, http.MethodPost, "/api/wizards/regime", "")
	wid := decode(t, w)["id"].(string)

	w = do(t, router, http.MethodPatch, "/api/wizards/session/"+wid, `{"name": "Bust", "allocations.stocks": 90}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["validation"].(map[string]any)["valid"])

	w = do(t, router, http.MethodPost, "/api/wizards/session/"+wid+"/finalize", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodDelete, "/api/wizards/session/"+wid, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}
