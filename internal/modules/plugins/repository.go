package plugins

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Repository stores registered plugins as JSON documents in plugins.db.
//
// The registry stays the source of truth at runtime. The repository is written
// through lifecycle hooks (see AttachPersistence) and read once at startup to
// rebuild the registry (see Restore).
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new plugin repository.
//
// Parameters:
//   - db: Database connection to plugins.db
//   - log: Structured logger
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "plugins").Logger(),
	}
}

// Upsert inserts or replaces a plugin row
func (r *Repository) Upsert(ctx context.Context, p Plugin) error {
	common := p.Common()

	document, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode plugin %s: %w", common.ID, err)
	}

	now := time.Now().Unix()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO plugins (kind, id, name, document, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, id) DO UPDATE SET
			name = excluded.name,
			document = excluded.document,
			updated_at = excluded.updated_at
	`, string(p.Kind()), common.ID, common.Name, string(document), now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert plugin %s: %w", common.ID, err)
	}

	return nil
}

// Delete removes a plugin row. Deleting a missing row is not an error.
func (r *Repository) Delete(ctx context.Context, kind Kind, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM plugins WHERE kind = ? AND id = ?", string(kind), id); err != nil {
		return fmt.Errorf("failed to delete plugin %s: %w", id, err)
	}
	return nil
}

// LoadAll returns every stored plugin ordered by kind and id.
// Rows that no longer decode are logged and skipped.
func (r *Repository) LoadAll(ctx context.Context) ([]Plugin, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT kind, id, document FROM plugins ORDER BY kind, id")
	if err != nil {
		return nil, fmt.Errorf("failed to load plugins: %w", err)
	}
	defer rows.Close()

	var out []Plugin
	for rows.Next() {
		var kind, id, document string
		if err := rows.Scan(&kind, &id, &document); err != nil {
			return nil, fmt.Errorf("failed to scan plugin row: %w", err)
		}

		p, err := DecodePlugin(Kind(kind), []byte(document))
		if err != nil {
			r.log.Warn().Err(err).Str("kind", kind).Str("id", id).Msg("Skipping undecodable plugin row")
			continue
		}
		out = append(out, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plugin rows: %w", err)
	}

	return out, nil
}

// Count returns the number of stored plugins
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM plugins").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count plugins: %w", err)
	}
	return n, nil
}

// AttachPersistence keeps repo in sync with reg through after_add, after_update and
// after_delete hooks. A failed write is logged by the hook bus and does not undo
// the registry operation.
func AttachPersistence(reg *Registry, repo *Repository) {
	reg.Hooks().AddHook(AfterAdd, func(ctx context.Context, data HookData) error {
		return repo.Upsert(ctx, data.(*AfterAddData).Plugin)
	})
	reg.Hooks().AddHook(AfterUpdate, func(ctx context.Context, data HookData) error {
		return repo.Upsert(ctx, data.(*AfterUpdateData).Plugin)
	})
	reg.Hooks().AddHook(AfterDelete, func(ctx context.Context, data HookData) error {
		d := data.(*AfterDeleteData)
		return repo.Delete(ctx, d.Kind, d.Plugin.Common().ID)
	})
}

// Restore loads every stored plugin into reg without running hooks.
// Plugins that fail validation are logged and skipped.
func Restore(ctx context.Context, reg *Registry, repo *Repository) (int, error) {
	stored, err := repo.LoadAll(ctx)
	if err != nil {
		return 0, err
	}

	loaded := 0
	for _, p := range stored {
		if err := reg.Load(p); err != nil {
			repo.log.Warn().
				Err(err).
				Str("kind", string(p.Kind())).
				Str("id", p.Common().ID).
				Msg("Skipping stored plugin")
			continue
		}
		loaded++
	}

	repo.log.Info().Int("loaded", loaded).Int("stored", len(stored)).Msg("Plugins restored")
	return loaded, nil
}
