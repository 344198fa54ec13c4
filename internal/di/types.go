/**
 * Package di provides dependency injection type definitions.
 *
 * This package defines the Container type which holds all application dependencies.
 * The Container is the single source of truth for all service instances and is
 * passed to the HTTP server for access to services.
 */
package di

import (
	"errors"

	"github.com/aristath/oracle-portfolio/internal/database"
	"github.com/aristath/oracle-portfolio/internal/events"
	"github.com/aristath/oracle-portfolio/internal/modules/plugins"
	"github.com/aristath/oracle-portfolio/internal/modules/snapshots"
	"github.com/aristath/oracle-portfolio/internal/reliability"
	"github.com/aristath/oracle-portfolio/internal/scheduler"
)

/**
 * Container holds all dependencies for the application.
 *
 * Architecture:
 * - Databases: plugins.db (live registry) and snapshots.db (msgpack copies)
 * - Events: bus and manager feeding the SSE and websocket streams
 * - Registry: in-memory plugin registry, persisted through its hooks
 * - Off-site: optional S3 client and backup service (nil when not configured)
 * - Scheduler: cron jobs for snapshots, database maintenance and idle wizards
 */
type Container struct {
	// Databases
	PluginsDB   *database.DB
	SnapshotsDB *database.DB

	// Repositories
	PluginRepo   *plugins.Repository
	SnapshotRepo *snapshots.Repository

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// Services
	Registry        *plugins.Registry
	Wizards         *plugins.Wizards
	SnapshotService *snapshots.Service

	// Off-site backup (nil when S3 is not configured)
	S3Client      *reliability.S3Client
	OffsiteBackup *reliability.OffsiteBackupService

	Scheduler *scheduler.Scheduler
}

// JobInstances holds the scheduled jobs so they can be triggered manually
type JobInstances struct {
	CreateSnapshot    *scheduler.CreateSnapshotJob
	CheckDatabases    *scheduler.CheckDatabasesJob
	CheckWAL          *scheduler.CheckWALCheckpointsJob
	DailyMaintenance  *reliability.DailyMaintenanceJob
	WeeklyMaintenance *reliability.WeeklyMaintenanceJob
	ExpireWizards     *scheduler.ExpireWizardsJob
}

// Databases returns the open databases
func (c *Container) Databases() []*database.DB {
	var dbs []*database.DB
	for _, db := range []*database.DB{c.PluginsDB, c.SnapshotsDB} {
		if db != nil {
			dbs = append(dbs, db)
		}
	}
	return dbs
}

// Close closes every open database
func (c *Container) Close() error {
	var errs []error
	for _, db := range c.Databases() {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
