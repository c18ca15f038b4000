package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/JonMunkholm/csvcure/internal/core"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS repair_journal (
	id          TEXT PRIMARY KEY,
	batch_id    TEXT NOT NULL,
	table_id    TEXT NOT NULL,
	operation   TEXT NOT NULL,
	row_index   INTEGER NOT NULL,
	outcome     TEXT NOT NULL,
	error_kind  TEXT,
	error       TEXT,
	before      TEXT,
	after       TEXT,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS repair_journal_table_created_idx
	ON repair_journal (table_id, created_at DESC);
`

const sqliteInsert = `INSERT INTO repair_journal
	(id, batch_id, table_id, operation, row_index, outcome, error_kind, error, before, after, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// LIMIT -1 means no limit.
const sqliteList = `SELECT id, batch_id, table_id, operation, row_index, outcome,
	error_kind, error, before, after, created_at
	FROM repair_journal
	WHERE table_id = ?
	ORDER BY created_at DESC, row_index DESC
	LIMIT ?`

// sqliteTime is fixed width so created_at sorts as text.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

// SQLite is a core.Journal stored in a local SQLite file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and migrates
// it. The parent directory is created too.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("journal dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// one writer; SQLite serializes writes anyway
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal migrate: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Record inserts entries in one transaction.
func (s *SQLite) Record(ctx context.Context, entries []core.JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("journal begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, sqliteInsert)
	if err != nil {
		return fmt.Errorf("journal prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		before, err := encodeCells(e.Before)
		if err != nil {
			return err
		}
		after, err := encodeCells(e.After)
		if err != nil {
			return err
		}
		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}

		if _, err := stmt.ExecContext(ctx,
			e.ID.String(),
			e.BatchID.String(),
			e.TableID,
			string(e.Operation),
			e.RowIndex,
			string(e.Outcome),
			nullString(e.ErrorKind),
			nullString(e.Error),
			nullBytes(before),
			nullBytes(after),
			createdAt.UTC().Format(sqliteTime),
		); err != nil {
			return fmt.Errorf("journal insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("journal commit: %w", err)
	}
	return nil
}

// List returns entries for tableID, newest first.
func (s *SQLite) List(ctx context.Context, tableID string, limit int) ([]core.JournalEntry, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, sqliteList, tableID, limit)
	if err != nil {
		return nil, fmt.Errorf("journal query: %w", err)
	}
	defer rows.Close()

	entries := make([]core.JournalEntry, 0)
	for rows.Next() {
		var (
			id, batchID, operation, outcome, createdAt string
			e                                          core.JournalEntry
			errorKind, errText, before, after          sql.NullString
		)
		if err := rows.Scan(&id, &batchID, &e.TableID, &operation, &e.RowIndex, &outcome,
			&errorKind, &errText, &before, &after, &createdAt); err != nil {
			return nil, fmt.Errorf("journal scan: %w", err)
		}

		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("journal id: %w", err)
		}
		if e.BatchID, err = uuid.Parse(batchID); err != nil {
			return nil, fmt.Errorf("journal batch id: %w", err)
		}
		if e.CreatedAt, err = time.Parse(sqliteTime, createdAt); err != nil {
			return nil, fmt.Errorf("journal created_at: %w", err)
		}
		e.Operation = core.RepairOp(operation)
		e.Outcome = core.Outcome(outcome)
		e.ErrorKind = errorKind.String
		e.Error = errText.String
		if e.Before, err = decodeCells([]byte(before.String)); err != nil {
			return nil, err
		}
		if e.After, err = decodeCells([]byte(after.String)); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal rows: %w", err)
	}
	return entries, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullBytes(b []byte) sql.NullString {
	return sql.NullString{String: string(b), Valid: b != nil}
}
