package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/oracle-portfolio/internal/modules/snapshots"
	"github.com/rs/zerolog"
)

// snapshotTimeout bounds one scheduled snapshot, off-site upload included
const snapshotTimeout = 5 * time.Minute

// CreateSnapshotJob takes a scheduled snapshot of the plugin registry
type CreateSnapshotJob struct {
	log     zerolog.Logger
	creator SnapshotCreator
	lastID  string
}

// NewCreateSnapshotJob creates a new CreateSnapshotJob
func NewCreateSnapshotJob(creator SnapshotCreator) *CreateSnapshotJob {
	return &CreateSnapshotJob{
		log:     zerolog.Nop(),
		creator: creator,
	}
}

// SetLogger sets the logger for the job
func (j *CreateSnapshotJob) SetLogger(log zerolog.Logger) {
	j.log = log
}

// Name returns the job name
func (j *CreateSnapshotJob) Name() string {
	return "create_snapshot"
}

// Run executes the create snapshot job
func (j *CreateSnapshotJob) Run() error {
	if j.creator == nil {
		return fmt.Errorf("snapshot creator not configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	snap, err := j.creator.Create(ctx, snapshots.ReasonScheduled)
	if err != nil {
		return fmt.Errorf("failed to create scheduled snapshot: %w", err)
	}

	j.lastID = snap.ID

	j.log.Info().
		Str("snapshot_id", snap.ID).
		Int("plugins", snap.PluginCount).
		Bool("offsite", snap.RemoteKey != "").
		Msg("Scheduled snapshot created")

	return nil
}

// LastSnapshotID returns the id of the last snapshot this job created
func (j *CreateSnapshotJob) LastSnapshotID() string {
	return j.lastID
}
