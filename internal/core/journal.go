package core

//go:generate mockgen -source=journal.go -destination=journal_mock.go -package=core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Outcome is what happened to one row in a repair call.
type Outcome string

const (
	OutcomeRepaired Outcome = "repaired"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// JournalEntry records the effect of a repair call on one row. Entries
// written by the same call share a BatchID.
type JournalEntry struct {
	ID        uuid.UUID `json:"id"`
	BatchID   uuid.UUID `json:"batchId"`
	TableID   string    `json:"tableId"`
	Operation RepairOp  `json:"operation"`
	RowIndex  int       `json:"rowIndex"`
	Outcome   Outcome   `json:"outcome"`
	ErrorKind string    `json:"errorKind,omitempty"`
	Error     string    `json:"error,omitempty"`
	Before    []Cell    `json:"before,omitempty"`
	After     []Cell    `json:"after,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Journal persists repair history. Implementations live in internal/store.
type Journal interface {
	// Record stores entries atomically.
	Record(ctx context.Context, entries []JournalEntry) error
	// List returns the newest entries for tableID, newest first. limit <= 0
	// means no limit.
	List(ctx context.Context, tableID string, limit int) ([]JournalEntry, error)
}

// NopJournal discards everything. Used when no journal is configured.
type NopJournal struct{}

func (NopJournal) Record(context.Context, []JournalEntry) error { return nil }

func (NopJournal) List(context.Context, string, int) ([]JournalEntry, error) {
	return []JournalEntry{}, nil
}
