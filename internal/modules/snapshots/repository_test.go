package snapshots

import (
	"context"
	"testing"
	"time"

	testingpkg "github.com/aristath/oracle-portfolio/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRepository(t *testing.T) *Repository {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "snapshots")
	t.Cleanup(cleanup)
	return NewRepository(db.Conn(), zerolog.Nop())
}

func TestRepository_CreateGet(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()
	created := time.Date(2026, 1, 8, 14, 30, 22, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, &Snapshot{
		ID:          "s1",
		Reason:      ReasonManual,
		PluginCount: 2,
		SizeBytes:   3,
		CreatedAt:   created,
		Document:    []byte{0x81, 0xa1, 0x61},
	}))

	got, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created, got.CreatedAt)
	assert.Equal(t, []byte{0x81, 0xa1, 0x61}, got.Document)
	assert.Empty(t, got.RemoteKey)

	require.NoError(t, repo.SetRemoteKey(ctx, "s1", "remote/s1"))
	got, err = repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "remote/s1", got.RemoteKey)
}

func TestRepository_GetMissing(t *testing.T) {
	repo := setupRepository(t)

	got, err := repo.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRepository_ListAndKeepLatest(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Create(ctx, &Snapshot{
			ID:        id,
			Reason:    ReasonScheduled,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
			Document:  []byte{0x80},
		}))
	}

	list, err := repo.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "b", list[1].ID)

	deleted, err := repo.KeepLatest(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	list, err = repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "c", list[0].ID)

	deleted, err = repo.KeepLatest(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
