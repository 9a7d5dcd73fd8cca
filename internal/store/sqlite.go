package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// Store keeps a raw copy of the published mobility table in SQLite so it
// can be used as a load source. Cells are stored exactly as published;
// nothing here is normalised.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func New(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// OpenSQLite opens a SQLite database file with the pragmas the store expects.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	return db, nil
}

// Snapshot records which source a ReplaceRaw call imported.
type Snapshot struct {
	Source     string
	RowCount   int
	ImportedAt time.Time
}

// ReplaceRaw swaps the stored header and rows for new ones in one transaction.
func (s *Store) ReplaceRaw(ctx context.Context, source string, header []string, rows [][]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM mobility_columns`); err != nil {
		return fmt.Errorf("clear columns: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM mobility_raw`); err != nil {
		return fmt.Errorf("clear rows: %w", err)
	}

	for i, name := range header {
		if _, err := tx.ExecContext(ctx, `INSERT INTO mobility_columns (position, name) VALUES (?, ?)`, i, name); err != nil {
			return fmt.Errorf("insert column %q: %w", name, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO mobility_raw (row_id, cells) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare row insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range rows {
		cells, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("encode row %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, i, string(cells)); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (source, row_count, imported_at) VALUES (?, ?, ?)`,
		source, len(rows), time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("record snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Info("raw table stored", "source", source, "columns", len(header), "rows", len(rows))
	return nil
}

// RawTable returns the stored header and rows in insertion order.
func (s *Store) RawTable(ctx context.Context) ([]string, [][]string, error) {
	colRows, err := s.db.QueryContext(ctx, `SELECT name FROM mobility_columns ORDER BY position`)
	if err != nil {
		return nil, nil, fmt.Errorf("query columns: %w", err)
	}
	defer colRows.Close()

	var header []string
	for colRows.Next() {
		var name string
		if err := colRows.Scan(&name); err != nil {
			return nil, nil, err
		}
		header = append(header, name)
	}
	if err := colRows.Err(); err != nil {
		return nil, nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT cells FROM mobility_raw ORDER BY row_id`)
	if err != nil {
		return nil, nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var cells string
		if err := rows.Scan(&cells); err != nil {
			return nil, nil, err
		}
		var row []string
		if err := json.Unmarshal([]byte(cells), &row); err != nil {
			return nil, nil, fmt.Errorf("decode row %d: %w", len(out), err)
		}
		out = append(out, row)
	}
	return header, out, rows.Err()
}

// LatestSnapshot returns the most recent import, or nil if none.
func (s *Store) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	err := s.db.QueryRowContext(ctx,
		`SELECT source, row_count, imported_at FROM snapshots ORDER BY id DESC LIMIT 1`,
	).Scan(&snap.Source, &snap.RowCount, &snap.ImportedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}
