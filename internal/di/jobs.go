// Package di provides dependency injection for scheduler jobs.
package di

import (
	"fmt"
	"time"

	"github.com/aristath/oracle-portfolio/internal/config"
	"github.com/aristath/oracle-portfolio/internal/database"
	"github.com/aristath/oracle-portfolio/internal/reliability"
	"github.com/aristath/oracle-portfolio/internal/scheduler"
	"github.com/rs/zerolog"
)

// Fixed maintenance schedules (seconds first)
const (
	walCheckSchedule          = "0 */15 * * * *" // Every 15 minutes
	integrityCheckSchedule    = "0 0 1 * * *"    // Daily at 01:00
	dailyMaintenanceSchedule  = "0 30 2 * * *"   // Daily at 02:30
	weeklyMaintenanceSchedule = "0 0 4 * * 0"    // Sunday at 04:00
	wizardExpirySchedule      = "0 */10 * * * *" // Every 10 minutes
)

// wizardMaxIdle is how long an untouched wizard session stays open
const wizardMaxIdle = 2 * time.Hour

// RegisterJobs creates the scheduler and registers every job.
// The scheduler is returned stopped; the caller starts it.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	sched := scheduler.New(log)
	container.Scheduler = sched
	dbs := container.Databases()

	instances := &JobInstances{}

	// Job 1: Scheduled snapshot (off-site copy included when configured)
	instances.CreateSnapshot = scheduler.NewCreateSnapshotJob(container.SnapshotService)
	instances.CreateSnapshot.SetLogger(log)
	if err := sched.AddJob(cfg.SnapshotSchedule, instances.CreateSnapshot); err != nil {
		return nil, fmt.Errorf("failed to register create_snapshot job: %w", err)
	}

	// Job 2: WAL size monitoring
	instances.CheckWAL = scheduler.NewCheckWALCheckpointsJob(dbs...)
	instances.CheckWAL.SetLogger(log)
	if err := sched.AddJob(walCheckSchedule, instances.CheckWAL); err != nil {
		return nil, fmt.Errorf("failed to register check_wal_checkpoints job: %w", err)
	}

	// Job 3: Integrity check
	instances.CheckDatabases = scheduler.NewCheckDatabasesJob(dbs...)
	instances.CheckDatabases.SetLogger(log)
	if err := sched.AddJob(integrityCheckSchedule, instances.CheckDatabases); err != nil {
		return nil, fmt.Errorf("failed to register check_databases job: %w", err)
	}

	// Job 4: Daily maintenance
	var rotator reliability.BackupRotator
	if container.OffsiteBackup != nil {
		rotator = container.OffsiteBackup
	}
	instances.DailyMaintenance = reliability.NewDailyMaintenanceJob(dbs, cfg.DataDir, rotator, cfg.S3RetentionDays, log)
	if err := sched.AddJob(dailyMaintenanceSchedule, instances.DailyMaintenance); err != nil {
		return nil, fmt.Errorf("failed to register daily_maintenance job: %w", err)
	}

	// Job 5: Weekly VACUUM of the snapshot store, where rotation leaves free pages
	instances.WeeklyMaintenance = reliability.NewWeeklyMaintenanceJob(
		[]*database.DB{container.SnapshotsDB}, log)
	if err := sched.AddJob(weeklyMaintenanceSchedule, instances.WeeklyMaintenance); err != nil {
		return nil, fmt.Errorf("failed to register weekly_maintenance job: %w", err)
	}

	// Job 6: Idle wizard sessions
	instances.ExpireWizards = scheduler.NewExpireWizardsJob(container.Wizards, wizardMaxIdle)
	instances.ExpireWizards.SetLogger(log)
	if err := sched.AddJob(wizardExpirySchedule, instances.ExpireWizards); err != nil {
		return nil, fmt.Errorf("failed to register expire_wizards job: %w", err)
	}

	log.Info().Int("jobs", len(sched.Jobs())).Msg("Jobs registered")

	return instances, nil
}
