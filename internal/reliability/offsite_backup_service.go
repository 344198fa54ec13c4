package reliability

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	backupKeyPrefix       = "oracle-snapshot-"
	backupKeySuffix       = ".msgpack"
	backupTimestampLayout = "2006-01-02-150405"
	backupContentType     = "application/x-msgpack"

	// minBackupsToKeep is kept off-site regardless of age
	minBackupsToKeep = 3
)

// ObjectStore is the subset of S3Client used for off-site backups
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// BackupInfo represents information about a snapshot stored off-site
type BackupInfo struct {
	Key        string    `json:"key"`
	SnapshotID string    `json:"snapshot_id"`
	Timestamp  time.Time `json:"timestamp"`
	SizeBytes  int64     `json:"size_bytes"`
	AgeHours   int64     `json:"age_hours"`
}

// OffsiteBackupService copies registry snapshots to an S3-compatible bucket
type OffsiteBackupService struct {
	store ObjectStore
	log   zerolog.Logger
	now   func() time.Time
}

// NewOffsiteBackupService creates a new off-site backup service
func NewOffsiteBackupService(store ObjectStore, log zerolog.Logger) *OffsiteBackupService {
	return &OffsiteBackupService{
		store: store,
		log:   log.With().Str("service", "offsite_backup").Logger(),
		now:   time.Now,
	}
}

// BackupKey returns the object key of a snapshot:
// oracle-snapshot-2026-01-08-143022-<id>.msgpack
func BackupKey(snapshotID string, created time.Time) string {
	return backupKeyPrefix + created.UTC().Format(backupTimestampLayout) + "-" + snapshotID + backupKeySuffix
}

// Upload copies one msgpack snapshot document and returns its object key
func (s *OffsiteBackupService) Upload(ctx context.Context, snapshotID string, created time.Time, document []byte) (string, error) {
	key := BackupKey(snapshotID, created)
	start := s.now()

	if err := s.store.Upload(ctx, key, bytes.NewReader(document), backupContentType); err != nil {
		return "", fmt.Errorf("failed to upload snapshot %s: %w", snapshotID, err)
	}

	s.log.Info().
		Str("key", key).
		Int("size_bytes", len(document)).
		Dur("duration_ms", s.now().Sub(start)).
		Msg("Snapshot copied off-site")

	return key, nil
}

// ListBackups lists the snapshots stored off-site, newest first
func (s *OffsiteBackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.store.List(ctx, backupKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list off-site backups: %w", err)
	}

	now := s.now()
	backups := make([]BackupInfo, 0, len(objects))

	for _, obj := range objects {
		info, ok := parseBackupKey(obj.Key)
		if !ok {
			s.log.Warn().Str("key", obj.Key).Msg("Failed to parse timestamp from key")
			continue
		}
		info.SizeBytes = obj.SizeBytes
		info.AgeHours = int64(now.Sub(info.Timestamp).Hours())
		backups = append(backups, info)
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})

	return backups, nil
}

func parseBackupKey(key string) (BackupInfo, bool) {
	if !strings.HasPrefix(key, backupKeyPrefix) || !strings.HasSuffix(key, backupKeySuffix) {
		return BackupInfo{}, false
	}

	rest := strings.TrimSuffix(strings.TrimPrefix(key, backupKeyPrefix), backupKeySuffix)
	if len(rest) < len(backupTimestampLayout)+2 {
		return BackupInfo{}, false
	}

	timestamp, err := time.Parse(backupTimestampLayout, rest[:len(backupTimestampLayout)])
	if err != nil {
		return BackupInfo{}, false
	}

	return BackupInfo{
		Key:        key,
		SnapshotID: rest[len(backupTimestampLayout)+1:],
		Timestamp:  timestamp,
	}, true
}

// RotateOldBackups deletes off-site snapshots older than the retention period.
// The newest three are always kept; a retention of 0 keeps everything.
// Returns the number of deleted objects.
func (s *OffsiteBackupService) RotateOldBackups(ctx context.Context, retentionDays int) (int, error) {
	backups, err := s.ListBackups(ctx)
	if err != nil {
		return 0, err
	}

	if retentionDays <= 0 || len(backups) <= minBackupsToKeep {
		return 0, nil
	}

	cutoff := s.now().AddDate(0, 0, -retentionDays)
	deleted := 0

	for _, backup := range backups[minBackupsToKeep:] {
		if !backup.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, backup.Key); err != nil {
			s.log.Error().Err(err).Str("key", backup.Key).Msg("Failed to delete old backup")
			continue
		}
		deleted++
	}

	s.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(backups)-deleted).
		Msg("Off-site backup rotation completed")

	return deleted, nil
}
