package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/aristath/oracle-portfolio/internal/modules/snapshots"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCreator struct {
	reasons []string
	err     error
}

func (s *stubCreator) Create(_ context.Context, reason string) (*snapshots.Snapshot, error) {
	s.reasons = append(s.reasons, reason)
	if s.err != nil {
		return nil, s.err
	}
	return &snapshots.Snapshot{ID: "snap-1", Reason: reason, PluginCount: 3}, nil
}

func TestCreateSnapshotJob_Run(t *testing.T) {
	creator := &stubCreator{}
	job := NewCreateSnapshotJob(creator)

	require.NoError(t, job.Run())
	assert.Equal(t, []string{snapshots.ReasonScheduled}, creator.reasons)
	assert.Equal(t, "snap-1", job.LastSnapshotID())
	assert.Equal(t, "create_snapshot", job.Name())
}

func TestCreateSnapshotJob_Run_Error(t *testing.T) {
	job := NewCreateSnapshotJob(&stubCreator{err: errors.New("disk full")})

	err := job.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, job.LastSnapshotID())
}

func TestCreateSnapshotJob_Run_NoCreator(t *testing.T) {
	assert.Error(t, NewCreateSnapshotJob(nil).Run())
}
