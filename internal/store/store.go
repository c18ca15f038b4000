// Package store persists the repair journal.
//
// Two backends implement core.Journal: Postgres (pgx pool, used when
// DATABASE_URL is set) and SQLite (a single local file, the default for the
// CLI and for servers without a database).
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JonMunkholm/csvcure/internal/core"
)

// Open picks a backend: Postgres when databaseURL is set, otherwise SQLite
// at sqlitePath. The returned close func releases the backend.
func Open(ctx context.Context, databaseURL, sqlitePath string, pool PoolConfig) (core.Journal, func(), error) {
	if databaseURL != "" {
		pg, err := OpenPostgres(ctx, databaseURL, pool)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	}

	lite, err := OpenSQLite(ctx, sqlitePath)
	if err != nil {
		return nil, nil, err
	}
	return lite, func() { _ = lite.Close() }, nil
}

// encodeCells stores a row snapshot as a JSON array. A nil snapshot is
// stored as NULL.
func encodeCells(cells []core.Cell) ([]byte, error) {
	if cells == nil {
		return nil, nil
	}
	data, err := json.Marshal(cells)
	if err != nil {
		return nil, fmt.Errorf("encode cells: %w", err)
	}
	return data, nil
}

func decodeCells(data []byte) ([]core.Cell, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var cells []core.Cell
	if err := json.Unmarshal(data, &cells); err != nil {
		return nil, fmt.Errorf("decode cells: %w", err)
	}
	return cells, nil
}
