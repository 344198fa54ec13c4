package snapshots

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aristath/oracle-portfolio/internal/events"
	"github.com/aristath/oracle-portfolio/internal/modules/plugins"
	testingpkg "github.com/aristath/oracle-portfolio/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type fakeUploader struct {
	keys []string
	err  error
}

func (f *fakeUploader) Upload(_ context.Context, id string, created time.Time, document []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	key := "snap-" + id
	f.keys = append(f.keys, key)
	return key, nil
}

func setupService(t *testing.T, offsite OffsiteUploader, retention int) (*Service, *plugins.Registry, *events.Bus) {
	t.Helper()

	db, cleanup := testingpkg.NewTestDB(t, "snapshots")
	t.Cleanup(cleanup)

	log := zerolog.Nop()
	registry := plugins.NewRegistry(log)
	ctx := context.Background()
	for kind, doc := range map[plugins.Kind]string{
		plugins.KindIndicator: testingpkg.IndicatorFixture,
		plugins.KindFormula:   testingpkg.FormulaFixture,
		plugins.KindRegime:    testingpkg.RegimeFixture,
	} {
		_, err := registry.RegisterRaw(ctx, kind, []byte(doc))
		require.NoError(t, err)
	}

	bus := events.NewBus()
	svc := NewService(NewRepository(db.Conn(), log), registry, offsite, events.NewManager(bus, log), retention, log)
	return svc, registry, bus
}

func TestService_Create(t *testing.T) {
	uploader := &fakeUploader{}
	svc, _, bus := setupService(t, uploader, 0)

	var created []*events.Event
	bus.Subscribe(events.SnapshotCreated, func(e *events.Event) { created = append(created, e) })

	snap, err := svc.Create(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, ReasonManual, snap.Reason)
	assert.Equal(t, 3, snap.PluginCount)
	assert.Equal(t, len(snap.Document), snap.SizeBytes)
	assert.Equal(t, "snap-"+snap.ID, snap.RemoteKey)
	require.Len(t, created, 1)
	assert.Equal(t, snap.ID, created[0].Data["id"])

	stored, err := svc.Get(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.RemoteKey, stored.RemoteKey)
	assert.Equal(t, snap.Document, stored.Document)
}

func TestService_Create_OffsiteFailureKeepsSnapshot(t *testing.T) {
	svc, _, bus := setupService(t, &fakeUploader{err: errors.New("bucket unreachable")}, 0)

	var failures int
	bus.Subscribe(events.ErrorOccurred, func(*events.Event) { failures++ })

	snap, err := svc.Create(context.Background(), ReasonScheduled)
	require.NoError(t, err)
	assert.Empty(t, snap.RemoteKey)
	assert.Equal(t, 1, failures)

	list, err := svc.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestService_Create_Rotates(t *testing.T) {
	svc, _, _ := setupService(t, nil, 2)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		snap, err := svc.Create(ctx, ReasonScheduled)
		require.NoError(t, err)
		ids = append(ids, snap.ID)
	}

	list, err := svc.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ids[3], list[0].ID)
	assert.Equal(t, ids[2], list[1].ID)
	assert.Nil(t, list[0].Document, "list omits documents")
}

func TestService_Document(t *testing.T) {
	svc, _, _ := setupService(t, nil, 0)
	ctx := context.Background()

	snap, err := svc.Create(ctx, ReasonManual)
	require.NoError(t, err)

	doc, err := svc.Document(ctx, snap.ID)
	require.NoError(t, err)
	assert.Contains(t, string(doc), `"copper_price"`)
	assert.Contains(t, string(doc), `"version":"1.0.0"`)

	_, err = svc.Document(ctx, "missing")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestService_Restore(t *testing.T) {
	svc, registry, bus := setupService(t, nil, 0)
	ctx := context.Background()

	snap, err := svc.Create(ctx, ReasonManual)
	require.NoError(t, err)

	require.NoError(t, registry.Delete(ctx, plugins.KindIndicator, "copper_price"))
	_, err = registry.Update(ctx, plugins.KindRegime, "boom", map[string]any{"name": "Expansion"})
	require.NoError(t, err)

	var restored []*events.Event
	bus.Subscribe(events.SnapshotRestored, func(e *events.Event) { restored = append(restored, e) })

	result, err := svc.Restore(ctx, snap.ID)
	require.NoError(t, err)

	assert.Equal(t, snap.ID, result.SnapshotID)
	assert.Equal(t, 2, result.Deleted)
	assert.Equal(t, 3, result.Imported)
	assert.Zero(t, result.Failed)
	assert.NotEmpty(t, result.BackupID)
	require.Len(t, restored, 1)

	_, err = registry.Plugin(plugins.KindIndicator, "copper_price")
	assert.NoError(t, err)
	boom, err := registry.Plugin(plugins.KindRegime, "boom")
	require.NoError(t, err)
	assert.Equal(t, "Boom", boom.Common().Name)

	backup, err := svc.Get(ctx, result.BackupID)
	require.NoError(t, err)
	assert.Equal(t, ReasonPreRestore, backup.Reason)
	assert.Equal(t, 2, backup.PluginCount)
}

func TestService_Restore_InvalidDocumentKeepsRegistry(t *testing.T) {
	svc, registry, _ := setupService(t, nil, 0)
	ctx := context.Background()

	document, err := msgpack.Marshal(map[string]any{
		"config": map[string]any{
			"indicators": map[string]any{},
			"formulas":   []any{1, 2},
		},
	})
	require.NoError(t, err)
	require.NoError(t, svc.repo.Create(ctx, &Snapshot{
		ID:        "corrupt",
		Reason:    ReasonManual,
		SizeBytes: len(document),
		CreatedAt: time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC),
		Document:  document,
	}))
	before := registry.Counts()

	result, err := svc.Restore(ctx, "corrupt")
	require.Error(t, err)
	assert.ErrorIs(t, err, plugins.ErrInvalidDocument)
	require.NotEmpty(t, result.BackupID)
	assert.Contains(t, err.Error(), result.BackupID)
	assert.Equal(t, before, registry.Counts(), "registry untouched")
}

func TestService_Restore_NotFound(t *testing.T) {
	svc, registry, _ := setupService(t, nil, 0)

	_, err := svc.Restore(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
	assert.Equal(t, 1, registry.Counts()[plugins.KindIndicator], "registry untouched")
}
