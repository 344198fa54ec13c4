package snapshots

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Repository handles snapshot database operations in snapshots.db
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new snapshot repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "snapshots").Logger(),
	}
}

// Create stores a snapshot
func (r *Repository) Create(ctx context.Context, s *Snapshot) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO snapshots (id, reason, plugin_count, size_bytes, document, remote_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.Reason, s.PluginCount, s.SizeBytes, s.Document, nullString(s.RemoteKey), s.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to create snapshot %s: %w", s.ID, err)
	}
	return nil
}

// SetRemoteKey records the object key of the off-site copy
func (r *Repository) SetRemoteKey(ctx context.Context, id, key string) error {
	if _, err := r.db.ExecContext(ctx, "UPDATE snapshots SET remote_key = ? WHERE id = ?", key, id); err != nil {
		return fmt.Errorf("failed to set remote key of snapshot %s: %w", id, err)
	}
	return nil
}

// List returns the newest snapshots first, without their documents.
// A limit of 0 returns every snapshot.
func (r *Repository) List(ctx context.Context, limit int) ([]Snapshot, error) {
	query := `
		SELECT id, reason, plugin_count, size_bytes, remote_key, created_at
		FROM snapshots
		ORDER BY created_at DESC, rowid DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	out := make([]Snapshot, 0)
	for rows.Next() {
		var s Snapshot
		var remoteKey sql.NullString
		var createdAt int64
		if err := rows.Scan(&s.ID, &s.Reason, &s.PluginCount, &s.SizeBytes, &remoteKey, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		s.RemoteKey = remoteKey.String
		s.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return out, nil
}

// Get returns a snapshot with its document, or nil when it does not exist
func (r *Repository) Get(ctx context.Context, id string) (*Snapshot, error) {
	var s Snapshot
	var remoteKey sql.NullString
	var createdAt int64

	err := r.db.QueryRowContext(ctx, `
		SELECT id, reason, plugin_count, size_bytes, document, remote_key, created_at
		FROM snapshots WHERE id = ?
	`, id).Scan(&s.ID, &s.Reason, &s.PluginCount, &s.SizeBytes, &s.Document, &remoteKey, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot %s: %w", id, err)
	}

	s.RemoteKey = remoteKey.String
	s.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &s, nil
}

// KeepLatest deletes every snapshot except the newest keep ones and returns how
// many were deleted. keep <= 0 deletes nothing.
func (r *Repository) KeepLatest(ctx context.Context, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}

	result, err := r.db.ExecContext(ctx, `
		DELETE FROM snapshots WHERE id NOT IN (
			SELECT id FROM snapshots ORDER BY created_at DESC, rowid DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to rotate snapshots: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count rotated snapshots: %w", err)
	}
	return int(deleted), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
