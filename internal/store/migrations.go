package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

// ErrSchemaTooNew is returned when a snapshot was written by a newer build.
var ErrSchemaTooNew = errors.New("snapshot schema is newer than this build")

var migrations = []migration{
	{
		Version:     1,
		Description: "Raw mobility table",
		SQL: `
CREATE TABLE IF NOT EXISTS mobility_columns (
    position INTEGER PRIMARY KEY,
    name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS mobility_raw (
    row_id INTEGER PRIMARY KEY,
    cells TEXT NOT NULL
);
`,
	},
	{
		Version:     2,
		Description: "Snapshot provenance",
		SQL: `
CREATE TABLE IF NOT EXISTS snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source TEXT NOT NULL,
    row_count INTEGER NOT NULL,
    imported_at DATETIME NOT NULL
);
`,
	},
}

// SchemaVersion is the newest migration this build knows how to apply.
func SchemaVersion() int {
	return migrations[len(migrations)-1].Version
}

// Migrate applies pending migrations in order. Each one commits together
// with its schema_migrations row.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	current, err := s.MigrationVersion(ctx)
	if err != nil {
		return err
	}
	if current > SchemaVersion() {
		return fmt.Errorf("%w: v%d > v%d", ErrSchemaTooNew, current, SchemaVersion())
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		s.logger.Info("applying migration", "version", m.Version, "description", m.Description)
		if err := s.apply(ctx, m); err != nil {
			return fmt.Errorf("migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func (s *Store) apply(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)`,
		m.Version, m.Description, time.Now().UTC(),
	); err != nil {
		return err
	}
	return tx.Commit()
}

// MigrationVersion reports the highest applied migration, or zero for a
// migrated-but-empty database.
func (s *Store) MigrationVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return int(version.Int64), nil
}

// CheckSchema verifies db holds a snapshot this build can read and returns
// its schema version.
func (s *Store) CheckSchema(ctx context.Context) (int, error) {
	version, err := s.MigrationVersion(ctx)
	if err != nil {
		return 0, err
	}
	if version > SchemaVersion() {
		return version, fmt.Errorf("%w: v%d > v%d", ErrSchemaTooNew, version, SchemaVersion())
	}
	return version, nil
}
