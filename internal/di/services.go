// Package di provides dependency injection for services.
package di

import (
	"context"
	"fmt"
	"os"

	"github.com/aristath/oracle-portfolio/internal/config"
	"github.com/aristath/oracle-portfolio/internal/events"
	"github.com/aristath/oracle-portfolio/internal/modules/plugins"
	"github.com/aristath/oracle-portfolio/internal/modules/snapshots"
	"github.com/aristath/oracle-portfolio/internal/reliability"
	"github.com/rs/zerolog"
)

// InitializeServices creates the registry and everything built on it.
//
// Order matters: stored plugins are loaded before persistence hooks are attached,
// so restoring does not write every row back.
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	// Repositories
	container.PluginRepo = plugins.NewRepository(container.PluginsDB.Conn(), log)
	container.SnapshotRepo = snapshots.NewRepository(container.SnapshotsDB.Conn(), log)

	// Events
	container.EventBus = events.NewBus()
	container.EventManager = events.NewManager(container.EventBus, log)

	// Registry
	container.Registry = plugins.NewRegistry(log)
	restored, err := plugins.Restore(ctx, container.Registry, container.PluginRepo)
	if err != nil {
		return fmt.Errorf("failed to restore plugins: %w", err)
	}
	plugins.AttachPersistence(container.Registry, container.PluginRepo)
	plugins.ForwardEvents(container.Registry, container.EventManager)

	log.Info().Int("plugins", restored).Msg("Plugin registry restored")

	if restored == 0 && cfg.SeedFile != "" {
		if err := seedRegistry(ctx, container.Registry, cfg.SeedFile, log); err != nil {
			return err
		}
	}

	container.Wizards = plugins.NewWizards(container.Registry, log)

	// Off-site backup
	if cfg.S3.Enabled() {
		client, err := reliability.NewS3Client(ctx, cfg.S3, log)
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		container.S3Client = client
		container.OffsiteBackup = reliability.NewOffsiteBackupService(client, log)
		log.Info().Str("bucket", cfg.S3.Bucket).Msg("Off-site snapshot backup enabled")
	}

	// A nil *OffsiteBackupService must not become a non-nil interface
	var uploader snapshots.OffsiteUploader
	if container.OffsiteBackup != nil {
		uploader = container.OffsiteBackup
	}
	container.SnapshotService = snapshots.NewService(
		container.SnapshotRepo,
		container.Registry,
		uploader,
		container.EventManager,
		cfg.SnapshotRetention,
		log,
	)

	return nil
}

// seedRegistry imports an export document into an empty registry
func seedRegistry(ctx context.Context, reg *plugins.Registry, path string, log zerolog.Logger) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}

	result, err := reg.ImportConfig(ctx, raw)
	if err != nil {
		return fmt.Errorf("failed to import seed file %s: %w", path, err)
	}

	log.Info().
		Str("file", path).
		Int("imported", result.Total()).
		Int("failed", len(result.Failures)).
		Msg("Registry seeded")

	return nil
}
