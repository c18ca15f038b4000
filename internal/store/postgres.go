package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/csvcure/internal/core"
)

// PoolConfig holds connection pool settings for Postgres.
type PoolConfig struct {
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS repair_journal (
	id          uuid PRIMARY KEY,
	batch_id    uuid NOT NULL,
	table_id    text NOT NULL,
	operation   text NOT NULL,
	row_index   integer NOT NULL,
	outcome     text NOT NULL,
	error_kind  text,
	error       text,
	before      jsonb,
	after       jsonb,
	created_at  timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS repair_journal_table_created_idx
	ON repair_journal (table_id, created_at DESC);
`

const postgresInsert = `INSERT INTO repair_journal
	(id, batch_id, table_id, operation, row_index, outcome, error_kind, error, before, after, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

const postgresList = `SELECT id, batch_id, table_id, operation, row_index, outcome,
	error_kind, error, before, after, created_at
	FROM repair_journal
	WHERE table_id = $1
	ORDER BY created_at DESC, row_index DESC
	LIMIT $2`

// Postgres is a core.Journal backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing pool. Call Migrate before first use.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// OpenPostgres connects, pings and migrates.
func OpenPostgres(ctx context.Context, url string, cfg PoolConfig) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	pg := NewPostgres(pool)
	if err := pg.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pg, nil
}

// Migrate creates the journal table if it does not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("journal migrate: %w", err)
	}
	return nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Record inserts entries in one transaction.
func (p *Postgres) Record(ctx context.Context, entries []core.JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now()
		}
		before, err := encodeCells(e.Before)
		if err != nil {
			return err
		}
		after, err := encodeCells(e.After)
		if err != nil {
			return err
		}
		batch.Queue(postgresInsert,
			pgtype.UUID{Bytes: e.ID, Valid: true},
			pgtype.UUID{Bytes: e.BatchID, Valid: true},
			e.TableID,
			string(e.Operation),
			int32(e.RowIndex),
			string(e.Outcome),
			toPgText(e.ErrorKind),
			toPgText(e.Error),
			before,
			after,
			pgtype.Timestamptz{Time: e.CreatedAt, Valid: true},
		)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("journal begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("journal insert: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("journal commit: %w", err)
	}
	return nil
}

// List returns entries for tableID, newest first.
func (p *Postgres) List(ctx context.Context, tableID string, limit int) ([]core.JournalEntry, error) {
	// LIMIT NULL means no limit
	rows, err := p.pool.Query(ctx, postgresList, tableID, pgtype.Int8{Int64: int64(limit), Valid: limit > 0})
	if err != nil {
		return nil, fmt.Errorf("journal query: %w", err)
	}
	defer rows.Close()

	entries := make([]core.JournalEntry, 0)
	for rows.Next() {
		e, err := scanPostgresEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal rows: %w", err)
	}
	return entries, nil
}

func scanPostgresEntry(rows pgx.Rows) (core.JournalEntry, error) {
	var (
		id        pgtype.UUID
		batchID   pgtype.UUID
		tableID   string
		operation string
		rowIndex  int32
		outcome   string
		errorKind pgtype.Text
		errText   pgtype.Text
		before    []byte
		after     []byte
		createdAt pgtype.Timestamptz
	)
	if err := rows.Scan(&id, &batchID, &tableID, &operation, &rowIndex, &outcome,
		&errorKind, &errText, &before, &after, &createdAt); err != nil {
		return core.JournalEntry{}, fmt.Errorf("journal scan: %w", err)
	}

	e := core.JournalEntry{
		ID:        uuid.UUID(id.Bytes),
		BatchID:   uuid.UUID(batchID.Bytes),
		TableID:   tableID,
		Operation: core.RepairOp(operation),
		RowIndex:  int(rowIndex),
		Outcome:   core.Outcome(outcome),
		CreatedAt: createdAt.Time,
	}
	if errorKind.Valid {
		e.ErrorKind = errorKind.String
	}
	if errText.Valid {
		e.Error = errText.String
	}

	var err error
	if e.Before, err = decodeCells(before); err != nil {
		return core.JournalEntry{}, err
	}
	if e.After, err = decodeCells(after); err != nil {
		return core.JournalEntry{}, err
	}
	return e, nil
}

func toPgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}
