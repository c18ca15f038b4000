package core

// table.go defines the in-memory grid shared by the repair engine and the
// inspector.
//
// A Table is an ordered list of unique column names and an ordered list of
// rows. Each row carries an integer index label. Tables produced by the
// ingestion layer are labelled densely (0..n-1); tables produced by the
// inspector's extract operations keep the labels of their source rows so a
// caller can map a finding back to the original table.

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Cell is a single value in a Table. Valid=false marks absent data (null),
// which is never the same thing as an empty string. In JSON a cell is a
// string or null.
type Cell struct {
	String string
	Valid  bool
}

// Str returns a non-null cell holding s.
func Str(s string) Cell {
	return Cell{String: s, Valid: true}
}

// Null returns the null cell.
func Null() Cell {
	return Cell{}
}

// IsNull reports whether the cell holds no data.
func (c Cell) IsNull() bool {
	return !c.Valid
}

// Text returns the cell value with null normalized to "".
func (c Cell) Text() string {
	if !c.Valid {
		return ""
	}
	return c.String
}

// MarshalJSON encodes the cell as a JSON string, or null.
func (c Cell) MarshalJSON() ([]byte, error) {
	if !c.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(c.String)
}

// UnmarshalJSON decodes a JSON string or null.
func (c *Cell) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = Null()
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*c = Str(s)
	return nil
}

// Strs builds a row of non-null cells.
func Strs(values ...string) []Cell {
	row := make([]Cell, len(values))
	for i, v := range values {
		row[i] = Str(v)
	}
	return row
}

// Table is an ordered, mutable grid of rows and named columns.
// All exported methods are safe for concurrent use.
type Table struct {
	mu sync.RWMutex

	columns []string
	colPos  map[string]int

	labels   []int
	labelPos map[int]int
	rows     [][]Cell
}

// NewTable creates an empty table with the given column names.
// Column names must be unique; order is significant.
func NewTable(columns []string) (*Table, error) {
	if len(columns) == 0 {
		return nil, newError(ErrEmptyTable, "table needs at least one column")
	}

	colPos := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := colPos[c]; dup {
			return nil, newError(ErrDuplicateColumn, "column %q appears more than once", c)
		}
		colPos[c] = i
	}

	cols := make([]string, len(columns))
	copy(cols, columns)

	return &Table{
		columns:  cols,
		colPos:   colPos,
		labelPos: make(map[int]int),
	}, nil
}

// MustTable builds a table from columns and rows and panics on error.
// Intended for tests and fixtures.
func MustTable(columns []string, rows ...[]Cell) *Table {
	t, err := NewTable(columns)
	if err != nil {
		panic(err)
	}
	for _, r := range rows {
		if err := t.AppendRow(r); err != nil {
			panic(err)
		}
	}
	return t
}

// AppendRow adds a row labelled with the next dense index.
// The row must have exactly one cell per column.
func (t *Table) AppendRow(cells []Cell) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	label := len(t.rows)
	if n := len(t.labels); n > 0 && t.labels[n-1] >= label {
		label = t.labels[n-1] + 1
	}
	return t.appendLabelled(label, cells)
}

// appendLabelled adds a row with an explicit label. Caller holds the write lock.
func (t *Table) appendLabelled(label int, cells []Cell) error {
	if len(cells) != len(t.columns) {
		return newError(ErrStructuralMismatch, "row has %d cells, table has %d columns", len(cells), len(t.columns))
	}
	if _, dup := t.labelPos[label]; dup {
		return newError(ErrStructuralMismatch, "row index %d already present", label)
	}

	row := make([]Cell, len(cells))
	copy(row, cells)

	t.labelPos[label] = len(t.rows)
	t.labels = append(t.labels, label)
	t.rows = append(t.rows, row)
	return nil
}

// Columns returns a copy of the column names in order.
func (t *Table) Columns() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cols := make([]string, len(t.columns))
	copy(cols, t.columns)
	return cols
}

// NumColumns returns the column count.
func (t *Table) NumColumns() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.columns)
}

// Len returns the row count.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Indices returns the row index labels in row order.
func (t *Table) Indices() []int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]int, len(t.labels))
	copy(out, t.labels)
	return out
}

// Has reports whether a row with the given index exists.
func (t *Table) Has(index int) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.labelPos[index]
	return ok
}

// Row returns a copy of the row at index.
func (t *Table) Row(index int) ([]Cell, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	pos, err := t.position(index)
	if err != nil {
		return nil, err
	}
	return cloneRow(t.rows[pos]), nil
}

// Cell returns the value at (index, column).
func (t *Table) Cell(index int, column string) (Cell, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	pos, err := t.position(index)
	if err != nil {
		return Cell{}, err
	}
	col, err := t.column(column)
	if err != nil {
		return Cell{}, err
	}
	return t.rows[pos][col], nil
}

// Set overwrites the value at (index, column).
func (t *Table) Set(index int, column string, c Cell) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos, err := t.position(index)
	if err != nil {
		return err
	}
	col, err := t.column(column)
	if err != nil {
		return err
	}
	t.rows[pos][col] = c
	return nil
}

// Rows returns a deep copy of all rows in order.
func (t *Table) Rows() [][]Cell {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([][]Cell, len(t.rows))
	for i, r := range t.rows {
		out[i] = cloneRow(r)
	}
	return out
}

// Each calls fn for every row in order with the row's index and a read-only
// view of its cells. fn must not retain or modify the slice.
func (t *Table) Each(fn func(index int, cells []Cell) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for pos, r := range t.rows {
		if !fn(t.labels[pos], r) {
			return
		}
	}
}

// ResetIndex renumbers row labels densely from zero, keeping row order.
func (t *Table) ResetIndex() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetIndex()
}

func (t *Table) resetIndex() {
	t.labelPos = make(map[int]int, len(t.rows))
	for pos := range t.rows {
		t.labels[pos] = pos
		t.labelPos[pos] = pos
	}
}

// Clone returns an independent deep copy of the table, labels included.
func (t *Table) Clone() *Table {
	t.mu.RLock()
	defer t.mu.RUnlock()

	c, _ := NewTable(t.columns)
	for pos, r := range t.rows {
		_ = c.appendLabelled(t.labels[pos], r)
	}
	return c
}

type tableJSON struct {
	Columns []string  `json:"columns"`
	Rows    []rowJSON `json:"rows"`
}

type rowJSON struct {
	Index int    `json:"index"`
	Cells []Cell `json:"cells"`
}

// MarshalJSON encodes the table as its columns plus labelled rows.
func (t *Table) MarshalJSON() ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := tableJSON{Columns: t.columns, Rows: make([]rowJSON, len(t.rows))}
	for pos, r := range t.rows {
		out.Rows[pos] = rowJSON{Index: t.labels[pos], Cells: r}
	}
	return json.Marshal(out)
}

// String renders the table shape for logs.
func (t *Table) String() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return fmt.Sprintf("Table{rows: %d, columns: %d}", len(t.rows), len(t.columns))
}

// position resolves an index label to a row position. Caller holds a lock.
func (t *Table) position(index int) (int, error) {
	pos, ok := t.labelPos[index]
	if !ok {
		return 0, newError(ErrIndexNotFound, "row index %d", index)
	}
	return pos, nil
}

// column resolves a column name to its position. Caller holds a lock.
func (t *Table) column(name string) (int, error) {
	col, ok := t.colPos[name]
	if !ok {
		return 0, newError(ErrColumnNotFound, "column %q", name)
	}
	return col, nil
}

func cloneRow(r []Cell) []Cell {
	out := make([]Cell, len(r))
	copy(out, r)
	return out
}
