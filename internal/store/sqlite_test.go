package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/csvcure/internal/core"
)

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "journal", "repairs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLite_RecordAndList(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	batch := uuid.New()
	entries := []core.JournalEntry{
		{
			ID:        uuid.New(),
			BatchID:   batch,
			TableID:   "t1",
			Operation: core.OpStretchByIndex,
			RowIndex:  0,
			Outcome:   core.OutcomeRepaired,
			Before:    []core.Cell{core.Str(`c",d`), core.Null()},
			After:     core.Strs("c", "d"),
			CreatedAt: base,
		},
		{
			ID:        uuid.New(),
			BatchID:   batch,
			TableID:   "t1",
			Operation: core.OpStretchByIndex,
			RowIndex:  1,
			Outcome:   core.OutcomeFailed,
			ErrorKind: "delimiter_not_found",
			Error:     "no delimiter",
			Before:    core.Strs("x", ""),
			CreatedAt: base.Add(time.Second),
		},
		{
			ID:        uuid.New(),
			BatchID:   uuid.New(),
			TableID:   "other",
			Operation: core.OpShareLeft,
			Outcome:   core.OutcomeRepaired,
			CreatedAt: base,
		},
	}
	require.NoError(t, s.Record(ctx, entries))

	got, err := s.List(ctx, "t1", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// newest first
	require.Equal(t, entries[1].ID, got[0].ID)
	require.Equal(t, "delimiter_not_found", got[0].ErrorKind)
	require.Equal(t, "no delimiter", got[0].Error)
	require.Nil(t, got[0].After)

	require.Equal(t, entries[0].ID, got[1].ID)
	require.Equal(t, batch, got[1].BatchID)
	require.Equal(t, entries[0].Before, got[1].Before)
	require.Equal(t, entries[0].After, got[1].After)
	require.True(t, base.Equal(got[1].CreatedAt))
	require.Empty(t, got[1].ErrorKind)
}

func TestSQLite_ListLimit(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	var entries []core.JournalEntry
	for i := range 5 {
		entries = append(entries, core.JournalEntry{
			ID:        uuid.New(),
			BatchID:   uuid.New(),
			TableID:   "t",
			Operation: core.OpAutoStretch,
			RowIndex:  i,
			Outcome:   core.OutcomeSkipped,
			CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
		})
	}
	require.NoError(t, s.Record(ctx, entries))

	got, err := s.List(ctx, "t", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, 4, got[0].RowIndex)
	require.Equal(t, 3, got[1].RowIndex)

	none, err := s.List(ctx, "missing", 10)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestSQLite_RecordEmpty(t *testing.T) {
	s := openTestSQLite(t)
	require.NoError(t, s.Record(context.Background(), nil))
}

func TestSQLite_RecordRollsBackOnDuplicate(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	id := uuid.New()
	e := core.JournalEntry{ID: id, BatchID: uuid.New(), TableID: "t", Operation: core.OpMergeAdjacent, Outcome: core.OutcomeRepaired}
	require.NoError(t, s.Record(ctx, []core.JournalEntry{e}))

	fresh := e
	fresh.ID = uuid.New()
	require.Error(t, s.Record(ctx, []core.JournalEntry{fresh, e}))

	got, err := s.List(ctx, "t", 0)
	require.NoError(t, err)
	require.Len(t, got, 1, "partial batch was committed")
}

func TestOpen_FallsBackToSQLite(t *testing.T) {
	j, closeFn, err := Open(context.Background(), "", filepath.Join(t.TempDir(), "j.db"), PoolConfig{})
	require.NoError(t, err)
	defer closeFn()

	_, ok := j.(*SQLite)
	require.True(t, ok, "got %T", j)
}

func TestCellsEncoding(t *testing.T) {
	data, err := encodeCells([]core.Cell{core.Str("a"), core.Null(), core.Str("")})
	require.NoError(t, err)
	require.JSONEq(t, `["a",null,""]`, string(data))

	cells, err := decodeCells(data)
	require.NoError(t, err)
	require.Equal(t, []core.Cell{core.Str("a"), core.Null(), core.Str("")}, cells)

	data, err = encodeCells(nil)
	require.NoError(t, err)
	require.Nil(t, data)

	_, err = decodeCells([]byte("{"))
	require.Error(t, err)
}
