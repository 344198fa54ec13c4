// Package di provides dependency injection for database connections.
package di

import (
	"fmt"
	"path/filepath"

	"github.com/aristath/oracle-portfolio/internal/config"
	"github.com/aristath/oracle-portfolio/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens both databases and applies their schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// 1. plugins.db - Live registry content, one JSON document per plugin
	pluginsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "plugins.db"),
		Profile: database.ProfileLedger, // User-authored configuration, maximum safety
		Name:    database.NamePlugins,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize plugins database: %w", err)
	}
	container.PluginsDB = pluginsDB

	// 2. snapshots.db - Point-in-time copies of the registry
	snapshotsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "snapshots.db"),
		Profile: database.ProfileStandard,
		Name:    database.NameSnapshots,
	})
	if err != nil {
		pluginsDB.Close()
		return nil, fmt.Errorf("failed to initialize snapshots database: %w", err)
	}
	container.SnapshotsDB = snapshotsDB

	for _, db := range container.Databases() {
		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to apply schema to %s: %w", db.Name(), err)
		}
	}

	log.Info().Msg("All databases initialized and schemas applied")

	return container, nil
}
