package core

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultShareJoin is placed between the left column's value and the moved
// text in ShareLeft.
const DefaultShareJoin = " "

// ShiftPlan describes one split-and-shift repair of a single row.
type ShiftPlan struct {
	Index           int      `json:"index" yaml:"index"`
	BreakdownColumn string   `json:"breakdownColumn" yaml:"breakdown_column"`
	Delimiter       string   `json:"delimiter" yaml:"delimiter"`
	Steps           int      `json:"steps" yaml:"steps"`
	Drops           []string `json:"drops,omitempty" yaml:"drops,omitempty"`
}

// Engine repairs misaligned rows of a Table in place.
//
// Every call holds the table's write lock for its whole duration and keeps
// no state between calls, so one Engine may be shared by any number of
// goroutines and tables.
type Engine struct {
	logger    *slog.Logger
	workers   int
	shareJoin string
	detector  detectorFactory
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers sets how many rows a batch operation repairs in parallel.
// Values below 1 are treated as 1.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n < 1 {
			n = 1
		}
		e.workers = n
	}
}

// WithLogger sets the logger used for per-row repair events.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithShareJoin sets the separator ShareLeft inserts before the moved text.
func WithShareJoin(join string) Option {
	return func(e *Engine) {
		e.shareJoin = join
	}
}

// WithQuote sets the quote character of the default quoted-delimiter detector.
func WithQuote(quote string) Option {
	return func(e *Engine) {
		e.detector = quotedDelimiterFactory(quote)
	}
}

// WithDetector replaces the spill detector AutoStretch uses to locate the
// breakdown column. The detector is used as is for every delimiter.
func WithDetector(d SpillDetector) Option {
	return func(e *Engine) {
		if d != nil {
			e.detector = func(string) SpillDetector { return d }
		}
	}
}

// NewEngine returns an Engine with the given options applied.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger:    slog.Default(),
		workers:   1,
		shareJoin: DefaultShareJoin,
		detector:  quotedDelimiterFactory(`"`),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ============================================================================
// Single-row operations
// ============================================================================

// MergeAdjacent joins colB onto colA with delimiter, removes colB from the
// row and shifts every later column one position left. The last column
// becomes "".
func (e *Engine) MergeAdjacent(t *Table, index int, colA, colB, delimiter string, stripQuotes bool) error {
	return e.merge(t, OpMergeAdjacent, index, colA, colB, delimiter, stripQuotes, true)
}

// MergeNoShift joins colB onto colA with delimiter and clears colB in place.
func (e *Engine) MergeNoShift(t *Table, index int, colA, colB, delimiter string, stripQuotes bool) error {
	return e.merge(t, OpMergeNoShift, index, colA, colB, delimiter, stripQuotes, false)
}

func (e *Engine) merge(t *Table, op RepairOp, index int, colA, colB, delimiter string, stripQuotes, shift bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos, err := t.position(index)
	if err != nil {
		return err
	}
	a, err := t.column(colA)
	if err != nil {
		return err
	}
	b, err := t.column(colB)
	if err != nil {
		return err
	}
	if a == b {
		return newError(ErrStructuralMismatch, "cannot merge column %q into itself", colA)
	}

	row := t.rows[pos]
	merged := row[a].Text() + delimiter + row[b].Text()
	if stripQuotes {
		merged = strings.ReplaceAll(merged, `"`, "")
	}

	out := cloneRow(row)
	out[a] = Str(merged)
	if shift {
		out = append(out[:b:b], out[b+1:]...)
		out = append(out, Str(""))
	} else {
		out[b] = Str("")
	}
	if len(out) != len(t.columns) {
		return newError(ErrStructuralMismatch, "row %d: rebuilt %d cells for %d columns", index, len(out), len(t.columns))
	}

	copy(row, out)
	t.resetIndex()
	e.logger.Debug("row merged", "op", op, "index", index, "col_a", colA, "col_b", colB)
	return nil
}

// SplitRight splits the breakdown cell on the delimiter, shifts the row
// right by plan.Steps and copies back only the listed columns. Columns not
// listed keep their current values.
func (e *Engine) SplitRight(t *Table, columnsToFix []string, plan ShiftPlan) error {
	if len(columnsToFix) == 0 {
		return newError(ErrInvalidRequest, "split_right needs at least one column to fix")
	}
	return e.shiftOne(t, OpSplitRight, plan, columnsToFix)
}

// StretchByIndex is SplitRight applied to the whole row.
func (e *Engine) StretchByIndex(t *Table, plan ShiftPlan) error {
	return e.shiftOne(t, OpStretchByIndex, plan, nil)
}

func (e *Engine) shiftOne(t *Table, op RepairOp, plan ShiftPlan, columns []string) error {
	if plan.Delimiter == "" {
		return newError(ErrInvalidRequest, "%s needs a non-empty delimiter", op)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	pos, err := t.position(plan.Index)
	if err != nil {
		return err
	}
	if err := reconstruct(t, pos, plan, columns); err != nil {
		return err
	}
	t.resetIndex()
	e.logger.Debug("row shifted", "op", op, "index", plan.Index,
		"column", plan.BreakdownColumn, "steps", plan.Steps)
	return nil
}

// reconstruct applies plan to the row at pos. columns limits the write-back
// to the named columns; nil writes the whole row. The live row is only
// touched after every check has passed. Caller holds the write lock.
func reconstruct(t *Table, pos int, plan ShiftPlan, columns []string) error {
	ncols := len(t.columns)

	bpos, err := t.column(plan.BreakdownColumn)
	if err != nil {
		return err
	}
	if plan.Steps < 1 || bpos+plan.Steps >= ncols {
		return newError(ErrOutOfBounds, "row %d: cannot shift %d columns right of %q (%d columns)",
			plan.Index, plan.Steps, plan.BreakdownColumn, ncols)
	}

	targets := make([]int, 0, len(columns))
	for _, c := range columns {
		p, err := t.column(c)
		if err != nil {
			return err
		}
		targets = append(targets, p)
	}

	row := t.rows[pos]
	cell := row[bpos]
	if cell.IsNull() {
		return newError(ErrDelimiterNotFound, "row %d: column %q is null", plan.Index, plan.BreakdownColumn)
	}
	part1, part2, err := splitCell(cell.String, plan.Delimiter, plan.Drops)
	if err != nil {
		return newError(ErrDelimiterNotFound, "row %d: column %q has no %q", plan.Index, plan.BreakdownColumn, plan.Delimiter)
	}

	// breakdown, then placeholders, then the rest of the row; the tail
	// overflow is dropped.
	out := make([]Cell, 0, ncols+plan.Steps)
	out = append(out, row[:bpos]...)
	out = append(out, Str(part1))
	for range plan.Steps {
		out = append(out, Str(""))
	}
	out = append(out, row[bpos+1:]...)
	out = out[:ncols]
	out[bpos+plan.Steps] = Str(part2)

	if len(out) != ncols {
		return newError(ErrStructuralMismatch, "row %d: rebuilt %d cells for %d columns", plan.Index, len(out), ncols)
	}

	if columns == nil {
		copy(row, out)
		return nil
	}
	for _, p := range targets {
		row[p] = out[p]
	}
	return nil
}

// splitCell breaks text around delimiter. The first part joins every segment
// but the last, the second joins every segment but the first. drops are
// removed from both parts.
func splitCell(text, delimiter string, drops []string) (string, string, error) {
	if delimiter == "" || !strings.Contains(text, delimiter) {
		return "", "", ErrDelimiterNotFound
	}
	segs := strings.Split(text, delimiter)
	part1 := strings.Join(segs[:len(segs)-1], "")
	part2 := strings.Join(segs[1:], "")
	for _, d := range drops {
		if d == "" {
			continue
		}
		part1 = strings.ReplaceAll(part1, d, "")
		part2 = strings.ReplaceAll(part2, d, "")
	}
	return part1, part2, nil
}

// ============================================================================
// Batch operations
// ============================================================================

// ShareLeft moves the text before the delimiter in breakdownCol onto the end
// of leftCol for every index, keeping the text after it in breakdownCol.
// A failing index is recorded in the report and does not stop the others.
// Unknown columns fail the whole call before any row is touched.
func (e *Engine) ShareLeft(ctx context.Context, t *Table, indices []int, breakdownCol, leftCol, delimiter string, drops []string) (*BatchReport, error) {
	start := time.Now()
	if delimiter == "" {
		return nil, newError(ErrInvalidRequest, "share_left needs a non-empty delimiter")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	bpos, err := t.column(breakdownCol)
	if err != nil {
		return nil, err
	}
	lpos, err := t.column(leftCol)
	if err != nil {
		return nil, err
	}
	if bpos == lpos {
		return nil, newError(ErrStructuralMismatch, "breakdown and left column are both %q", leftCol)
	}

	report := newReport(OpShareLeft)
	if len(indices) == 0 {
		report.NoRepairNeeded = true
		report.Duration = time.Since(start)
		return report, nil
	}

	results := e.fanOut(ctx, t, dedupe(indices), func(index, pos int) rowResult {
		row := t.rows[pos]
		cell := row[bpos]
		if cell.IsNull() {
			return failed(index, breakdownCol, newError(ErrDelimiterNotFound, "row %d: column %q is null", index, breakdownCol))
		}
		part1, part2, err := splitCell(cell.String, delimiter, drops)
		if err != nil {
			return failed(index, breakdownCol, newError(ErrDelimiterNotFound, "row %d: column %q has no %q", index, breakdownCol, delimiter))
		}

		left := part1
		if !row[lpos].IsNull() {
			left = row[lpos].String + e.shareJoin + part1
		}
		row[lpos] = Str(left)
		row[bpos] = Str(part2)
		return rowResult{repaired: &RepairedRow{Index: index, BreakdownColumn: breakdownCol}}
	})

	e.collect(report, results)
	if len(report.Repaired) > 0 {
		t.resetIndex()
	}
	report.Duration = time.Since(start)
	return report, nil
}

// AutoStretch finds the shift width and breakdown column of every candidate
// row and stretches it back into alignment.
//
// The width is the row's trailing null run; rows without one are skipped.
// The breakdown column is the one column whose text the detector flags; a
// row with none or several flagged columns is reported as ambiguous and left
// unmodified.
func (e *Engine) AutoStretch(ctx context.Context, t *Table, candidates []int, delimiter string, drops []string) (*BatchReport, error) {
	start := time.Now()
	report := newReport(OpAutoStretch)
	if len(candidates) == 0 {
		report.NoRepairNeeded = true
		report.Duration = time.Since(start)
		return report, nil
	}
	if delimiter == "" {
		return nil, newError(ErrInvalidRequest, "auto_stretch needs a non-empty delimiter")
	}
	detector := e.detector(delimiter)

	t.mu.Lock()
	defer t.mu.Unlock()

	results := e.fanOut(ctx, t, dedupe(candidates), func(index, pos int) rowResult {
		row := t.rows[pos]
		steps := trailingNullRun(row)
		if steps == 0 {
			return rowResult{skipped: &SkippedRow{Index: index, Reason: SkipNotCorrupt}}
		}

		flagged := flaggedColumns(detector, t.columns, row)
		if len(flagged) != 1 {
			f := failed(index, "", newError(ErrAmbiguousRepair, "row %d: %d columns carry the spill marker", index, len(flagged)))
			f.failure.Columns = flagged
			return f
		}

		plan := ShiftPlan{
			Index:           index,
			BreakdownColumn: flagged[0],
			Delimiter:       delimiter,
			Steps:           steps,
			Drops:           drops,
		}
		if err := reconstruct(t, pos, plan, nil); err != nil {
			return failed(index, flagged[0], err)
		}
		return rowResult{repaired: &RepairedRow{Index: index, BreakdownColumn: flagged[0], Steps: steps}}
	})

	e.collect(report, results)
	if len(report.Repaired) > 0 {
		t.resetIndex()
	}
	report.Duration = time.Since(start)
	return report, nil
}

type rowResult struct {
	repaired *RepairedRow
	skipped  *SkippedRow
	failure  *RowFailure
}

func failed(index int, column string, err error) rowResult {
	return rowResult{failure: &RowFailure{Index: index, Column: column, Kind: KindName(err), Err: err}}
}

// fanOut runs fn for every index on up to e.workers goroutines. Indices are
// resolved to positions up front; each fn call owns its row exclusively.
// The context is checked before each index is scheduled. Caller holds the
// table's write lock.
func (e *Engine) fanOut(ctx context.Context, t *Table, indices []int, fn func(index, pos int) rowResult) []rowResult {
	results := make([]rowResult, len(indices))

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, index := range indices {
		if err := ctx.Err(); err != nil {
			results[i] = failed(index, "", err)
			continue
		}
		pos, err := t.position(index)
		if err != nil {
			results[i] = failed(index, "", err)
			continue
		}
		g.Go(func() error {
			results[i] = fn(index, pos)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Engine) collect(report *BatchReport, results []rowResult) {
	for _, r := range results {
		switch {
		case r.repaired != nil:
			report.Repaired = append(report.Repaired, *r.repaired)
			e.logger.Debug("row repaired", "op", report.Operation, "index", r.repaired.Index,
				"column", r.repaired.BreakdownColumn, "steps", r.repaired.Steps)
		case r.skipped != nil:
			report.Skipped = append(report.Skipped, *r.skipped)
		case r.failure != nil:
			report.Failed = append(report.Failed, *r.failure)
			e.logger.Warn("row not repaired", "op", report.Operation, "index", r.failure.Index,
				"kind", r.failure.Kind, "error", r.failure.Err)
		}
	}
	report.sortByIndex()
}

// trailingNullRun counts consecutive null cells from the right end of row.
func trailingNullRun(row []Cell) int {
	n := 0
	for i := len(row) - 1; i >= 0 && row[i].IsNull(); i-- {
		n++
	}
	return n
}

func flaggedColumns(d SpillDetector, columns []string, row []Cell) []string {
	var out []string
	for i, c := range row {
		if c.IsNull() {
			continue
		}
		if _, ok := d.Detect(c.String); ok {
			out = append(out, columns[i])
		}
	}
	return out
}

// dedupe drops repeated indices, keeping first occurrences in order.
func dedupe(indices []int) []int {
	seen := make(map[int]struct{}, len(indices))
	out := make([]int, 0, len(indices))
	for _, i := range indices {
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		out = append(out, i)
	}
	return out
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
