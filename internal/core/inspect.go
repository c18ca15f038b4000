package core

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"sort"
	"strings"
)

// MatchMode selects how ExtractByPattern compares patterns with cell text.
type MatchMode string

const (
	// MatchSubstring matches when the pattern occurs literally in the text.
	MatchSubstring MatchMode = "substring"
	// MatchRegex compiles each pattern as a regular expression.
	MatchRegex MatchMode = "regex"
)

// ColumnError reports a column ExtractByPattern could not scan.
type ColumnError struct {
	Column  string `json:"column"`
	Pattern string `json:"pattern,omitempty"`
	Err     error  `json:"-"`
}

func (e ColumnError) Error() string {
	return e.Err.Error()
}

func (e ColumnError) Unwrap() error {
	return e.Err
}

// MarshalJSON includes the error text and kind.
func (e ColumnError) MarshalJSON() ([]byte, error) {
	type alias ColumnError
	return json.Marshal(struct {
		alias
		Kind  string `json:"kind"`
		Error string `json:"error"`
	}{alias(e), KindName(e.Err), e.Err.Error()})
}

// PatternReport is the result of ExtractByPattern: the matching rows plus
// one entry per column that could not be scanned.
type PatternReport struct {
	Table  *Table
	Errors []ColumnError
}

// Summary is an overview of a table's corruption signals.
type Summary struct {
	Rows      int         `json:"rows"`
	Columns   int         `json:"columns"`
	NullRuns  map[int]int `json:"nullRuns"` // trailing null run width -> row count
	Corrupt   int         `json:"corrupt"`
	NearBlank int         `json:"nearBlank"`
	Threshold int         `json:"threshold"`
}

// Inspector answers read-only diagnostic queries over a Table.
// Every query holds the table's read lock.
type Inspector struct {
	logger *slog.Logger
}

// NewInspector returns an Inspector. A nil logger uses slog.Default().
func NewInspector(logger *slog.Logger) *Inspector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inspector{logger: logger}
}

// ExtractByIndex builds a table holding the given rows in the given order.
// Rows keep their index labels, so an index may appear only once.
func (in *Inspector) ExtractByIndex(t *Table, indices []int) (*Table, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out, _ := NewTable(t.columns)
	for _, index := range indices {
		if out.Has(index) {
			return nil, newError(ErrInvalidRequest, "index %d is listed more than once", index)
		}
		pos, err := t.position(index)
		if err != nil {
			return nil, err
		}
		if err := out.appendLabelled(index, t.rows[pos]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ExtractByValue builds a table of rows whose cell in column equals one of
// values exactly. Null cells never match. Rows keep table order.
func (in *Inspector) ExtractByValue(t *Table, values []string, column string) (*Table, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	col, err := t.column(column)
	if err != nil {
		return nil, err
	}

	want := make(map[string]struct{}, len(values))
	for _, v := range values {
		want[v] = struct{}{}
	}

	out, _ := NewTable(t.columns)
	for pos, row := range t.rows {
		c := row[col]
		if c.IsNull() {
			continue
		}
		if _, ok := want[c.String]; ok {
			_ = out.appendLabelled(t.labels[pos], row)
		}
	}
	return out, nil
}

// ExtractByPattern builds a table of rows where any pattern matches the
// cell of any listed column. An unknown column or a pattern that does not
// compile is recorded in the report and the scan goes on with the rest.
func (in *Inspector) ExtractByPattern(t *Table, patterns, columns []string, mode MatchMode) *PatternReport {
	if mode == "" {
		mode = MatchSubstring
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	report := &PatternReport{}

	matchers := make([]func(string) bool, 0, len(patterns))
	var bad []ColumnError
	for _, p := range patterns {
		switch mode {
		case MatchRegex:
			re, err := regexp.Compile(p)
			if err != nil {
				bad = append(bad, ColumnError{Pattern: p, Err: newError(ErrPatternParse, "pattern %q: %v", p, err)})
				continue
			}
			matchers = append(matchers, re.MatchString)
		default:
			matchers = append(matchers, func(s string) bool { return strings.Contains(s, p) })
		}
	}

	var cols []int
	for _, name := range columns {
		col, err := t.column(name)
		if err != nil {
			report.Errors = append(report.Errors, ColumnError{
				Column: name,
				Err:    newError(ErrPatternParse, "column %q cannot be searched: %v", name, err),
			})
			continue
		}
		for _, b := range bad {
			b.Column = name
			report.Errors = append(report.Errors, b)
		}
		cols = append(cols, col)
	}
	if len(columns) == 0 {
		report.Errors = append(report.Errors, bad...)
	}

	out, _ := NewTable(t.columns)
	for pos, row := range t.rows {
		if rowMatches(row, cols, matchers) {
			_ = out.appendLabelled(t.labels[pos], row)
		}
	}
	report.Table = out

	for _, e := range report.Errors {
		in.logger.Warn("column not searchable", "column", e.Column, "pattern", e.Pattern, "error", e.Err)
	}
	return report
}

func rowMatches(row []Cell, cols []int, matchers []func(string) bool) bool {
	for _, col := range cols {
		c := row[col]
		if c.IsNull() {
			continue
		}
		for _, m := range matchers {
			if m(c.String) {
				return true
			}
		}
	}
	return false
}

// FindTrailingNullRuns maps the index of every row ending in nulls to the
// length of that trailing run.
func (in *Inspector) FindTrailingNullRuns(t *Table) map[int]int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	runs := make(map[int]int)
	for pos, row := range t.rows {
		if n := trailingNullRun(row); n > 0 {
			runs[t.labels[pos]] = n
		}
	}
	return runs
}

// FindNearBlankRows returns, in table order, the indices of rows with at
// most threshold distinct values. Nulls count as "".
func (in *Inspector) FindNearBlankRows(t *Table, threshold int) []int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := []int{}
	seen := make(map[string]struct{}, len(t.columns))
	for pos, row := range t.rows {
		clear(seen)
		for _, c := range row {
			seen[c.Text()] = struct{}{}
		}
		if len(seen) <= threshold {
			out = append(out, t.labels[pos])
		}
	}
	return out
}

// CandidateIndices returns the keys of a FindTrailingNullRuns result in
// ascending order, ready to pass to AutoStretch.
func CandidateIndices(runs map[int]int) []int {
	out := make([]int, 0, len(runs))
	for index := range runs {
		out = append(out, index)
	}
	sort.Ints(out)
	return out
}

// Summary reports the table's shape and corruption signals.
func (in *Inspector) Summary(t *Table, threshold int) Summary {
	runs := in.FindTrailingNullRuns(t)
	blanks := in.FindNearBlankRows(t, threshold)

	s := Summary{
		Rows:      t.Len(),
		Columns:   t.NumColumns(),
		NullRuns:  make(map[int]int),
		Corrupt:   len(runs),
		NearBlank: len(blanks),
		Threshold: threshold,
	}
	for _, n := range runs {
		s.NullRuns[n]++
	}
	return s
}
