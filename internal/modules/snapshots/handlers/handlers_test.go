package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aristath/oracle-portfolio/internal/modules/plugins"
	"github.com/aristath/oracle-portfolio/internal/modules/snapshots"
	testingpkg "github.com/aristath/oracle-portfolio/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRouter creates a router serving snapshots of a registry holding one indicator
func setupTestRouter(t *testing.T) (chi.Router, *plugins.Registry) {
	t.Helper()

	db, cleanup := testingpkg.NewTestDB(t, "snapshots")
	t.Cleanup(cleanup)

	log := zerolog.Nop()
	registry := plugins.NewRegistry(log)
	_, err := registry.RegisterRaw(context.Background(), plugins.KindIndicator, []byte(testingpkg.IndicatorFixture))
	require.NoError(t, err)

	service := snapshots.NewService(snapshots.NewRepository(db.Conn(), log), registry, nil, nil, 0, log)

	router := chi.NewRouter()
	NewHandler(service, log).RegisterRoutes(router)
	return router, registry
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

func TestHandleCreateAndList(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := do(t, router, http.MethodPost, "/api/snapshots", `{"reason":"before-upgrade"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var snap snapshots.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, "before-upgrade", snap.Reason)
	assert.Equal(t, 1, snap.PluginCount)

	w = do(t, router, http.MethodGet, "/api/snapshots", "")
	require.Equal(t, http.StatusOK, w.Code)

	var list struct {
		Snapshots []snapshots.Snapshot `json:"snapshots"`
		Count     int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, snap.ID, list.Snapshots[0].ID)
}

func TestHandleCreate_EmptyBody(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := do(t, router, http.MethodPost, "/api/snapshots", "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"reason":"manual"`)
}

func TestHandleList_InvalidLimit(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := do(t, router, http.MethodGet, "/api/snapshots?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGet(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := do(t, router, http.MethodPost, "/api/snapshots", "")
	require.Equal(t, http.StatusCreated, w.Code)
	var snap snapshots.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))

	w = do(t, router, http.MethodGet, "/api/snapshots/"+snap.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "copper_price")

	w = do(t, router, http.MethodGet, "/api/snapshots/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleRestore(t *testing.T) {
	router, registry := setupTestRouter(t)

	w := do(t, router, http.MethodPost, "/api/snapshots", "")
	require.Equal(t, http.StatusCreated, w.Code)
	var snap snapshots.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))

	require.NoError(t, registry.Delete(context.Background(), plugins.KindIndicator, "copper_price"))

	w = do(t, router, http.MethodPost, "/api/snapshots/"+snap.ID+"/restore", "")
	require.Equal(t, http.StatusOK, w.Code)

	var result snapshots.RestoreResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 0, result.Deleted)

	_, err := registry.Plugin(plugins.KindIndicator, "copper_price")
	assert.NoError(t, err)

	w = do(t, router, http.MethodPost, "/api/snapshots/unknown/restore", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
