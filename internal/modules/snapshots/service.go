package snapshots

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/oracle-portfolio/internal/events"
	"github.com/aristath/oracle-portfolio/internal/modules/plugins"
	"github.com/aristath/oracle-portfolio/internal/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const eventModule = "snapshots"

// OffsiteUploader copies a snapshot document out of the host.
// Satisfied by reliability.OffsiteBackupService.
type OffsiteUploader interface {
	Upload(ctx context.Context, snapshotID string, created time.Time, document []byte) (string, error)
}

// Service creates, lists and restores registry snapshots
type Service struct {
	repo         *Repository
	registry     *plugins.Registry
	offsite      OffsiteUploader // nil when off-site backup is disabled
	eventManager *events.Manager
	retention    int // local snapshots kept, 0 keeps all
	log          zerolog.Logger
	now          func() time.Time

	// restoreMu serializes restores so a backup always precedes its own replace
	restoreMu sync.Mutex
}

// NewService creates a new snapshot service.
//
// Parameters:
//   - repo: Snapshot storage
//   - registry: Registry that is exported and restored
//   - offsite: Optional off-site uploader (nil disables copying)
//   - eventManager: Optional event manager (nil disables events)
//   - retention: Number of local snapshots to keep after each creation
//   - log: Logger
func NewService(
	repo *Repository,
	registry *plugins.Registry,
	offsite OffsiteUploader,
	eventManager *events.Manager,
	retention int,
	log zerolog.Logger,
) *Service {
	return &Service{
		repo:         repo,
		registry:     registry,
		offsite:      offsite,
		eventManager: eventManager,
		retention:    retention,
		log:          log.With().Str("service", "snapshots").Logger(),
		now:          time.Now,
	}
}

// Create exports the registry and stores it as a new snapshot.
// An off-site copy failure is logged and reported as an event but does not fail
// the snapshot.
func (s *Service) Create(ctx context.Context, reason string) (*Snapshot, error) {
	if reason == "" {
		reason = ReasonManual
	}

	doc := s.registry.ExportConfig()
	blob, err := plugins.EncodeMsgpack(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	snap := &Snapshot{
		ID:          uuid.NewString(),
		Reason:      reason,
		PluginCount: doc.Len(),
		SizeBytes:   len(blob),
		CreatedAt:   s.now().UTC().Truncate(time.Second),
		Document:    blob,
	}

	if err := s.repo.Create(ctx, snap); err != nil {
		return nil, err
	}

	if s.offsite != nil {
		key, err := s.offsite.Upload(ctx, snap.ID, snap.CreatedAt, blob)
		if err != nil {
			s.log.Error().Err(err).Str("snapshot_id", snap.ID).Msg("Off-site copy failed")
			s.emitError(err, snap.ID)
		} else if err := s.repo.SetRemoteKey(ctx, snap.ID, key); err != nil {
			s.log.Warn().Err(err).Str("snapshot_id", snap.ID).Msg("Failed to record off-site key")
		} else {
			snap.RemoteKey = key
		}
	}

	if s.retention > 0 {
		deleted, err := s.repo.KeepLatest(ctx, s.retention)
		if err != nil {
			s.log.Warn().Err(err).Msg("Snapshot rotation failed")
		} else if deleted > 0 {
			s.log.Debug().Int("deleted", deleted).Msg("Old snapshots rotated")
		}
	}

	s.log.Info().
		Str("snapshot_id", snap.ID).
		Str("reason", reason).
		Int("plugins", snap.PluginCount).
		Int("size_bytes", snap.SizeBytes).
		Msg("Snapshot created")

	if s.eventManager != nil {
		s.eventManager.EmitTyped(eventModule, &events.SnapshotCreatedData{
			ID:          snap.ID,
			Reason:      snap.Reason,
			PluginCount: snap.PluginCount,
			SizeBytes:   snap.SizeBytes,
			RemoteKey:   snap.RemoteKey,
		})
	}

	return snap, nil
}

// List returns stored snapshots, newest first
func (s *Service) List(ctx context.Context, limit int) ([]Snapshot, error) {
	return s.repo.List(ctx, limit)
}

// Get returns one snapshot with its document
func (s *Service) Get(ctx context.Context, id string) (*Snapshot, error) {
	snap, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, ErrSnapshotNotFound
	}
	return snap, nil
}

// Document returns the snapshot document as JSON, in the export format
func (s *Service) Document(ctx context.Context, id string) ([]byte, error) {
	snap, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return plugins.MsgpackToJSON(snap.Document)
}

// Restore replaces the registry content with the snapshot content.
//
// The current state is saved first as a pre-restore snapshot. The registry content
// is then replaced in one registry operation, so hooks (persistence, events) observe
// every removal and import and no concurrent mutation lands in between. Entries
// that no longer validate are reported as failed and skipped. On failure the error
// names the pre-restore snapshot.
func (s *Service) Restore(ctx context.Context, id string) (RestoreResult, error) {
	s.restoreMu.Lock()
	defer s.restoreMu.Unlock()
	defer utils.OperationTimer("snapshot_restore", s.log)()

	snap, err := s.Get(ctx, id)
	if err != nil {
		return RestoreResult{}, err
	}

	raw, err := plugins.MsgpackToJSON(snap.Document)
	if err != nil {
		return RestoreResult{}, fmt.Errorf("snapshot %s is unreadable: %w", id, err)
	}

	backup, err := s.Create(ctx, ReasonPreRestore)
	if err != nil {
		return RestoreResult{}, fmt.Errorf("failed to save current state: %w", err)
	}

	deleted, imported, err := s.registry.Replace(ctx, raw)
	if err != nil {
		return RestoreResult{BackupID: backup.ID}, fmt.Errorf("failed to import snapshot %s (pre-restore snapshot %s): %w", id, backup.ID, err)
	}

	result := RestoreResult{
		SnapshotID: id,
		BackupID:   backup.ID,
		Deleted:    deleted,
		Imported:   imported.Total(),
		Failed:     len(imported.Failures),
	}

	s.log.Info().
		Str("snapshot_id", id).
		Str("backup_id", backup.ID).
		Int("deleted", result.Deleted).
		Int("imported", result.Imported).
		Int("failed", result.Failed).
		Msg("Snapshot restored")

	if s.eventManager != nil {
		s.eventManager.EmitTyped(eventModule, &events.SnapshotRestoredData{
			ID:       id,
			Deleted:  result.Deleted,
			Imported: result.Imported,
		})
	}

	return result, nil
}

func (s *Service) emitError(err error, snapshotID string) {
	if s.eventManager == nil {
		return
	}
	s.eventManager.EmitError(eventModule, err, map[string]any{"snapshot_id": snapshotID})
}
