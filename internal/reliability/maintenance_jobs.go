package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/oracle-portfolio/internal/database"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
)

// Disk space thresholds in GB
const (
	diskCriticalGB = 0.5
	diskWarningGB  = 5.0
)

// rotationTimeout bounds the off-site rotation of one maintenance run
const rotationTimeout = 2 * time.Minute

// BackupRotator deletes expired off-site backups.
// Satisfied by OffsiteBackupService.
type BackupRotator interface {
	RotateOldBackups(ctx context.Context, retentionDays int) (int, error)
}

// DiskUsageFunc reports the filesystem usage of path
type DiskUsageFunc func(path string) (*disk.UsageStat, error)

// DailyMaintenanceJob performs daily database maintenance
type DailyMaintenanceJob struct {
	databases     []*database.DB
	dataDir       string
	rotator       BackupRotator // nil when off-site backup is disabled
	retentionDays int
	diskUsage     DiskUsageFunc
	log           zerolog.Logger
}

// NewDailyMaintenanceJob creates a new daily maintenance job.
//
// Parameters:
//   - databases: Databases to checkpoint and measure
//   - dataDir: Directory whose filesystem is checked for free space
//   - rotator: Optional off-site backup rotator
//   - retentionDays: Age in days after which off-site backups are deleted
//   - log: Logger
func NewDailyMaintenanceJob(
	databases []*database.DB,
	dataDir string,
	rotator BackupRotator,
	retentionDays int,
	log zerolog.Logger,
) *DailyMaintenanceJob {
	return &DailyMaintenanceJob{
		databases:     databases,
		dataDir:       dataDir,
		rotator:       rotator,
		retentionDays: retentionDays,
		diskUsage:     disk.Usage,
		log:           log.With().Str("job", "daily_maintenance").Logger(),
	}
}

// Run executes the daily maintenance job
func (j *DailyMaintenanceJob) Run() error {
	j.log.Info().Msg("Starting daily maintenance")
	startTime := time.Now()

	// Step 1: WAL checkpoint for all databases (prevent bloat)
	for _, db := range j.databases {
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			// Not critical, the next checkpoint catches up
			j.log.Warn().Err(err).Str("database", db.Name()).Msg("WAL checkpoint failed")
		}
	}

	// Step 2: Check disk space
	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	// Step 3: Expire old off-site snapshots
	if j.rotator != nil {
		ctx, cancel := context.WithTimeout(context.Background(), rotationTimeout)
		deleted, err := j.rotator.RotateOldBackups(ctx, j.retentionDays)
		cancel()
		if err != nil {
			j.log.Error().Err(err).Msg("Off-site backup rotation failed")
		} else {
			j.log.Debug().Int("deleted", deleted).Msg("Off-site backups rotated")
		}
	}

	// Step 4: Log database sizes
	j.logDatabaseSizes()

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Msg("Daily maintenance completed successfully")

	return nil
}

// Name returns the job name for scheduler
func (j *DailyMaintenanceJob) Name() string {
	return "daily_maintenance"
}

// checkDiskSpace fails when the data directory's filesystem is nearly full
func (j *DailyMaintenanceJob) checkDiskSpace() error {
	usage, err := j.diskUsage(j.dataDir)
	if err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	availableGB := float64(usage.Free) / 1e9
	j.log.Debug().
		Float64("available_gb", availableGB).
		Float64("used_percent", usage.UsedPercent).
		Msg("Disk space check")

	if availableGB < diskCriticalGB {
		j.log.Error().
			Float64("available_gb", availableGB).
			Msg("CRITICAL: Insufficient disk space")
		return fmt.Errorf("CRITICAL: only %.2f GB free", availableGB)
	}

	if availableGB < diskWarningGB {
		j.log.Warn().
			Float64("available_gb", availableGB).
			Msg("Disk space running low")
	}

	return nil
}

func (j *DailyMaintenanceJob) logDatabaseSizes() {
	for _, db := range j.databases {
		stats, err := db.GetStats()
		if err != nil {
			j.log.Error().Err(err).Str("database", db.Name()).Msg("Failed to get metrics")
			continue
		}

		j.log.Info().
			Str("database", db.Name()).
			Float64("size_mb", float64(stats.SizeBytes)/1024/1024).
			Float64("wal_size_mb", float64(stats.WALSizeBytes)/1024/1024).
			Int64("freelist_pages", stats.FreelistCount).
			Msg("Database metrics")
	}
}

// WeeklyMaintenanceJob reclaims space left by deleted rows
type WeeklyMaintenanceJob struct {
	databases []*database.DB
	log       zerolog.Logger
}

// NewWeeklyMaintenanceJob creates a new weekly maintenance job
func NewWeeklyMaintenanceJob(databases []*database.DB, log zerolog.Logger) *WeeklyMaintenanceJob {
	return &WeeklyMaintenanceJob{
		databases: databases,
		log:       log.With().Str("job", "weekly_maintenance").Logger(),
	}
}

// Run executes the weekly maintenance job. A failed VACUUM is logged and the
// remaining databases are still processed.
func (j *WeeklyMaintenanceJob) Run() error {
	j.log.Info().Msg("Starting weekly maintenance")
	startTime := time.Now()

	for _, db := range j.databases {
		if err := j.vacuumDatabase(db); err != nil {
			j.log.Error().Err(err).Str("database", db.Name()).Msg("VACUUM failed")
		}
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Msg("Weekly maintenance completed successfully")

	return nil
}

// Name returns the job name for scheduler
func (j *WeeklyMaintenanceJob) Name() string {
	return "weekly_maintenance"
}

func (j *WeeklyMaintenanceJob) vacuumDatabase(db *database.DB) error {
	before, err := db.GetStats()
	if err != nil {
		return err
	}

	if _, err := db.Conn().Exec("VACUUM"); err != nil {
		return fmt.Errorf("VACUUM failed: %w", err)
	}

	after, err := db.GetStats()
	if err != nil {
		return err
	}

	sizeBefore := float64(before.PageCount*before.PageSize) / 1024 / 1024
	sizeAfter := float64(after.PageCount*after.PageSize) / 1024 / 1024

	j.log.Info().
		Str("database", db.Name()).
		Float64("size_before_mb", sizeBefore).
		Float64("size_after_mb", sizeAfter).
		Float64("space_reclaimed_mb", sizeBefore-sizeAfter).
		Msg("VACUUM completed")

	return nil
}
