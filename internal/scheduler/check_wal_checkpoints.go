package scheduler

import (
	"sort"

	"github.com/aristath/oracle-portfolio/internal/database"
	"github.com/rs/zerolog"
)

// walFramesWarning is the WAL size (in frames) above which a warning is logged
const walFramesWarning = 1000

// CheckWALCheckpointsJob monitors WAL checkpoint status
type CheckWALCheckpointsJob struct {
	log       zerolog.Logger
	databases []*database.DB
}

// NewCheckWALCheckpointsJob creates a new CheckWALCheckpointsJob.
// Nil databases are ignored.
func NewCheckWALCheckpointsJob(databases ...*database.DB) *CheckWALCheckpointsJob {
	dbs := make([]*database.DB, 0, len(databases))
	for _, db := range databases {
		if db != nil {
			dbs = append(dbs, db)
		}
	}
	sort.Slice(dbs, func(i, j int) bool { return dbs[i].Name() < dbs[j].Name() })

	return &CheckWALCheckpointsJob{
		log:       zerolog.Nop(),
		databases: dbs,
	}
}

// SetLogger sets the logger for the job
func (j *CheckWALCheckpointsJob) SetLogger(log zerolog.Logger) {
	j.log = log
}

// Name returns the job name
func (j *CheckWALCheckpointsJob) Name() string {
	return "check_wal_checkpoints"
}

// Run executes the check WAL checkpoints job
func (j *CheckWALCheckpointsJob) Run() error {
	checkedCount := 0
	for _, db := range j.databases {
		// PRAGMA wal_checkpoint returns: busy, log, checkpointed
		var busy, frames, checkpointed int
		err := db.Conn().QueryRow("PRAGMA wal_checkpoint(PASSIVE)").Scan(&busy, &frames, &checkpointed)
		if err != nil {
			j.log.Warn().
				Err(err).
				Str("database", db.Name()).
				Msg("Failed to check WAL checkpoint")
			continue
		}

		if frames > walFramesWarning {
			j.log.Warn().
				Str("database", db.Name()).
				Int("wal_frames", frames).
				Int("checkpointed", checkpointed).
				Msg("WAL file is large, checkpoint may be needed")
		} else {
			j.log.Debug().
				Str("database", db.Name()).
				Int("wal_frames", frames).
				Msg("WAL checkpoint status OK")
		}

		checkedCount++
	}

	j.log.Info().
		Int("checked", checkedCount).
		Msg("WAL checkpoint check completed")

	return nil
}
