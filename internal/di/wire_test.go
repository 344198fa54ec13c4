package di

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aristath/oracle-portfolio/internal/config"
	"github.com/aristath/oracle-portfolio/internal/modules/plugins"
	testingpkg "github.com/aristath/oracle-portfolio/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:           t.TempDir(),
		Port:              config.DefaultPort,
		SnapshotSchedule:  config.DefaultSnapshotSchedule,
		SnapshotRetention: config.DefaultRetention,
		S3RetentionDays:   config.DefaultRetention,
	}
}

func TestWire(t *testing.T) {
	cfg := testConfig(t)

	container, jobs, err := Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	assert.NotNil(t, container.Registry)
	assert.NotNil(t, container.Wizards)
	assert.NotNil(t, container.SnapshotService)
	assert.Nil(t, container.S3Client, "S3 is disabled without credentials")
	assert.Nil(t, container.OffsiteBackup)

	require.NotNil(t, jobs)
	assert.Len(t, container.Scheduler.Jobs(), 6)
	assert.Equal(t, "create_snapshot", jobs.CreateSnapshot.Name())
	assert.Equal(t, "expire_wizards", jobs.ExpireWizards.Name())
}

func TestWire_SeedAndRestore(t *testing.T) {
	cfg := testConfig(t)
	seed := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(seed, []byte(testingpkg.ConfigDocumentFixture), 0o644))
	cfg.SeedFile = seed

	ctx := context.Background()

	container, _, err := Wire(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)

	counts := container.Registry.Counts()
	assert.Equal(t, 1, counts[plugins.KindIndicator])
	assert.Equal(t, 1, counts[plugins.KindFormula])
	assert.Equal(t, 1, counts[plugins.KindRegime])

	stored, err := container.PluginRepo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stored, "seeded plugins are persisted")

	require.NoError(t, container.Registry.Delete(ctx, plugins.KindRegime, "boom"))
	require.NoError(t, container.Close())

	// Second start: state comes from plugins.db, the seed is ignored
	container, _, err = Wire(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	counts = container.Registry.Counts()
	assert.Equal(t, 1, counts[plugins.KindIndicator])
	assert.Equal(t, 0, counts[plugins.KindRegime])
}

func TestWire_MissingSeedFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.SeedFile = filepath.Join(t.TempDir(), "missing.json")

	_, _, err := Wire(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestWire_InvalidSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.SnapshotSchedule = "not a schedule"

	_, _, err := Wire(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestWire_ScheduledSnapshot(t *testing.T) {
	cfg := testConfig(t)
	container, jobs, err := Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	require.NoError(t, container.Scheduler.RunNow(jobs.CreateSnapshot))

	list, err := container.SnapshotService.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, jobs.CreateSnapshot.LastSnapshotID(), list[0].ID)
}
