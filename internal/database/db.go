// Package database provides database connection and initialization functionality.
package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

//go:embed schemas/*.sql
var schemas embed.FS

// DatabaseProfile defines different configuration profiles for databases
type DatabaseProfile string

const (
	// ProfileLedger - Maximum safety for history that must survive power loss (snapshots)
	ProfileLedger DatabaseProfile = "ledger"
	// ProfileStandard - Balanced configuration for working state (plugins)
	ProfileStandard DatabaseProfile = "standard"
)

// Known database names. Each one maps to a schema file under schemas/.
const (
	NamePlugins   = "plugins"
	NameSnapshots = "snapshots"
)

var schemaFiles = map[string]string{
	NamePlugins:   "schemas/plugins_schema.sql",
	NameSnapshots: "schemas/snapshots_schema.sql",
}

// DB wraps the database connection with production-grade configuration
type DB struct {
	conn    *sql.DB
	path    string
	profile DatabaseProfile
	name    string // Database name for logging
}

// Config holds database configuration
type Config struct {
	Path    string
	Profile DatabaseProfile
	Name    string // Friendly name for logging and schema selection ("plugins", "snapshots")
}

// New creates a new database connection with production-grade configuration
func New(cfg Config) (*DB, error) {
	// file: URIs are used as-is (in-memory databases in tests)
	if !strings.HasPrefix(cfg.Path, "file:") {
		absPath, err := filepath.Abs(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path to absolute: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		cfg.Path = absPath
	}

	if cfg.Profile == "" {
		cfg.Profile = ProfileStandard
	}

	conn, err := sql.Open("sqlite", buildConnectionString(cfg.Path, cfg.Profile))
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Name, err)
	}

	configureConnectionPool(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.Name, err)
	}

	return &DB{
		conn:    conn,
		path:    cfg.Path,
		profile: cfg.Profile,
		name:    cfg.Name,
	}, nil
}

// buildConnectionString creates SQLite connection string with profile-specific PRAGMAs
func buildConnectionString(path string, profile DatabaseProfile) string {
	connStr := path + "?_pragma=journal_mode(WAL)"

	switch profile {
	case ProfileLedger:
		connStr += "&_pragma=synchronous(FULL)" // Fsync after every write
		connStr += "&_pragma=auto_vacuum(NONE)"
	default:
		connStr += "&_pragma=synchronous(NORMAL)"      // Fsync at checkpoints
		connStr += "&_pragma=auto_vacuum(INCREMENTAL)" // Gradual space reclamation
		connStr += "&_pragma=temp_store(MEMORY)"
	}

	connStr += "&_pragma=foreign_keys(1)"
	connStr += "&_pragma=busy_timeout(5000)"
	connStr += "&_pragma=wal_autocheckpoint(1000)"

	return connStr
}

// configureConnectionPool sets up connection pool for long-term operation
func configureConnectionPool(conn *sql.DB) {
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(24 * time.Hour)
	conn.SetConnMaxIdleTime(30 * time.Minute)
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying sql.DB connection
// Used by repositories to execute queries
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Name returns the database name for logging
func (db *DB) Name() string {
	return db.name
}

// Profile returns the database profile
func (db *DB) Profile() DatabaseProfile {
	return db.profile
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// Migrate applies the embedded schema of this database.
// Schemas use CREATE ... IF NOT EXISTS and can be applied repeatedly.
// Databases with an unknown name are left untouched.
func (db *DB) Migrate() error {
	schemaFile, ok := schemaFiles[db.name]
	if !ok {
		return nil
	}

	content, err := schemas.ReadFile(schemaFile)
	if err != nil {
		return fmt.Errorf("failed to read schema %s: %w", schemaFile, err)
	}

	return WithTransaction(db.conn, func(tx *sql.Tx) error {
		if _, err := tx.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute schema %s for %s: %w", schemaFile, db.name, err)
		}
		return nil
	})
}

// WithTransaction executes a function within a database transaction.
// If the function returns an error or panics, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func WithTransaction(db *sql.DB, fn func(*sql.Tx) error) (err error) {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", p)
		} else if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				err = fmt.Errorf("transaction failed: %w (rollback also failed: %v)", err, rollbackErr)
			} else {
				err = fmt.Errorf("transaction failed: %w", err)
			}
		} else if commitErr := tx.Commit(); commitErr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", commitErr)
		}
	}()

	err = fn(tx)
	return err
}

// HealthCheck pings the database and runs an integrity check
func (db *DB) HealthCheck(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed for %s: %w", db.name, err)
	}

	var integrityResult string
	if err := db.conn.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&integrityResult); err != nil {
		return fmt.Errorf("integrity check query failed for %s: %w", db.name, err)
	}
	if integrityResult != "ok" {
		return fmt.Errorf("integrity check failed for %s: %s", db.name, integrityResult)
	}

	return nil
}

// WALCheckpoint forces a WAL checkpoint to prevent bloat
func (db *DB) WALCheckpoint(mode string) error {
	// Modes: PASSIVE, FULL, RESTART, TRUNCATE
	if mode == "" {
		mode = "TRUNCATE"
	}

	if _, err := db.conn.Exec(fmt.Sprintf("PRAGMA wal_checkpoint(%s)", mode)); err != nil {
		return fmt.Errorf("WAL checkpoint failed for %s: %w", db.name, err)
	}
	return nil
}

// Stats returns database statistics
type Stats struct {
	SizeBytes     int64 `json:"size_bytes"`
	WALSizeBytes  int64 `json:"wal_size_bytes"`
	PageCount     int64 `json:"page_count"`
	PageSize      int64 `json:"page_size"`
	FreelistCount int64 `json:"freelist_count"`
}

// GetStats retrieves database statistics
func (db *DB) GetStats() (*Stats, error) {
	stats := &Stats{}

	if fileInfo, err := os.Stat(db.path); err == nil {
		stats.SizeBytes = fileInfo.Size()
	}
	if fileInfo, err := os.Stat(db.path + "-wal"); err == nil {
		stats.WALSizeBytes = fileInfo.Size()
	}

	if err := db.conn.QueryRow("PRAGMA page_count").Scan(&stats.PageCount); err != nil {
		return nil, fmt.Errorf("failed to get page count: %w", err)
	}
	if err := db.conn.QueryRow("PRAGMA page_size").Scan(&stats.PageSize); err != nil {
		return nil, fmt.Errorf("failed to get page size: %w", err)
	}
	if err := db.conn.QueryRow("PRAGMA freelist_count").Scan(&stats.FreelistCount); err != nil {
		return nil, fmt.Errorf("failed to get freelist count: %w", err)
	}

	return stats, nil
}
