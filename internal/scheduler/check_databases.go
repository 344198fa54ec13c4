package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/oracle-portfolio/internal/database"
	"github.com/rs/zerolog"
)

// checkTimeout bounds the integrity check of one database
const checkTimeout = time.Minute

// CheckDatabasesJob verifies integrity of the SQLite databases
type CheckDatabasesJob struct {
	log       zerolog.Logger
	databases []*database.DB
}

// NewCheckDatabasesJob creates a new CheckDatabasesJob
func NewCheckDatabasesJob(databases ...*database.DB) *CheckDatabasesJob {
	return &CheckDatabasesJob{
		log:       zerolog.Nop(),
		databases: databases,
	}
}

// SetLogger sets the logger for the job
func (j *CheckDatabasesJob) SetLogger(log zerolog.Logger) {
	j.log = log
}

// Name returns the job name
func (j *CheckDatabasesJob) Name() string {
	return "check_databases"
}

// Run executes the integrity check. The first corrupted database stops the run;
// corruption cannot be repaired automatically.
func (j *CheckDatabasesJob) Run() error {
	for _, db := range j.databases {
		if db == nil {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		err := db.HealthCheck(ctx)
		cancel()
		if err != nil {
			j.log.Error().
				Err(err).
				Str("database", db.Name()).
				Msg("Database integrity check failed")
			return fmt.Errorf("database %s is unhealthy: %w", db.Name(), err)
		}

		j.log.Debug().Str("database", db.Name()).Msg("Database integrity OK")
	}

	j.log.Info().Int("databases", len(j.databases)).Msg("Database integrity check passed")
	return nil
}
