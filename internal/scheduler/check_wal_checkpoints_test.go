package scheduler

import (
	"testing"

	testingpkg "github.com/aristath/oracle-portfolio/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckWALCheckpointsJob_Name(t *testing.T) {
	job := &CheckWALCheckpointsJob{
		log: zerolog.Nop(),
	}
	assert.Equal(t, "check_wal_checkpoints", job.Name())
}

func TestCheckWALCheckpointsJob_Run_NoDatabases(t *testing.T) {
	log := zerolog.New(nil).Level(zerolog.Disabled)
	job := NewCheckWALCheckpointsJob(nil, nil)
	job.SetLogger(log)

	err := job.Run()
	assert.NoError(t, err) // Should handle nil databases gracefully
	assert.Empty(t, job.databases)
}

func TestCheckWALCheckpointsJob_Run(t *testing.T) {
	snapshotsDB, cleanupSnapshots := testingpkg.NewTestDB(t, "snapshots")
	defer cleanupSnapshots()
	pluginsDB, cleanupPlugins := testingpkg.NewTestDB(t, "plugins")
	defer cleanupPlugins()

	job := NewCheckWALCheckpointsJob(snapshotsDB, pluginsDB)
	require.Len(t, job.databases, 2)
	assert.Equal(t, "plugins", job.databases[0].Name(), "databases are checked in name order")

	assert.NoError(t, job.Run())
}
