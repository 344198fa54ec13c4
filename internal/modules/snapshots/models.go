// Package snapshots keeps point-in-time copies of the plugin registry.
//
// A snapshot is the export document of the registry encoded as MessagePack. Snapshots
// are taken on demand, on a schedule and before every restore. They live in
// snapshots.db and are optionally copied to an S3-compatible bucket.
package snapshots

import (
	"errors"
	"time"
)

// Snapshot reasons
const (
	ReasonManual     = "manual"
	ReasonScheduled  = "scheduled"
	ReasonPreRestore = "pre-restore"
)

// ErrSnapshotNotFound is returned for an unknown snapshot id
var ErrSnapshotNotFound = errors.New("Snapshot non trouvé")

// Snapshot is one stored copy of the registry
type Snapshot struct {
	ID          string    `json:"id"`
	Reason      string    `json:"reason"`
	PluginCount int       `json:"plugin_count"`
	SizeBytes   int       `json:"size_bytes"`
	RemoteKey   string    `json:"remote_key,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Document    []byte    `json:"-"` // msgpack configuration document
}

// RestoreResult reports what a restore changed
type RestoreResult struct {
	SnapshotID string `json:"snapshot_id"`
	BackupID   string `json:"backup_id"` // pre-restore snapshot of the replaced state
	Deleted    int    `json:"deleted"`
	Imported   int    `json:"imported"`
	Failed     int    `json:"failed"`
}
