package core

import (
	"encoding/json"
	"sort"
	"time"
)

// RepairOp names a repair operation. The values are used on the wire
// (JSON, YAML plans) and in the repair journal.
type RepairOp string

const (
	OpMergeAdjacent  RepairOp = "merge_adjacent"
	OpMergeNoShift   RepairOp = "merge_no_shift"
	OpSplitRight     RepairOp = "split_right"
	OpStretchByIndex RepairOp = "stretch_by_index"
	OpShareLeft      RepairOp = "share_left"
	OpAutoStretch    RepairOp = "auto_stretch"
)

// Valid reports whether op is a known operation.
func (op RepairOp) Valid() bool {
	switch op {
	case OpMergeAdjacent, OpMergeNoShift, OpSplitRight, OpStretchByIndex, OpShareLeft, OpAutoStretch:
		return true
	}
	return false
}

// SkipReason explains why a batch row was left alone without an error.
type SkipReason string

const (
	// SkipNotCorrupt: the row has no trailing null run.
	SkipNotCorrupt SkipReason = "not_corrupt"
)

// RowFailure records one row a batch operation could not repair.
type RowFailure struct {
	Index   int      `json:"index"`
	Column  string   `json:"column,omitempty"`
	Columns []string `json:"columns,omitempty"` // flagged columns of an ambiguous row
	Kind    string   `json:"kind"`
	Err     error    `json:"-"`
}

// Message returns the failure's error text.
func (f RowFailure) Message() string {
	if f.Err == nil {
		return ""
	}
	return f.Err.Error()
}

// MarshalJSON includes the error text, which error values cannot carry.
func (f RowFailure) MarshalJSON() ([]byte, error) {
	type alias RowFailure
	return json.Marshal(struct {
		alias
		Error string `json:"error"`
	}{alias(f), f.Message()})
}

// SkippedRow records a candidate row that needed no repair.
type SkippedRow struct {
	Index  int        `json:"index"`
	Reason SkipReason `json:"reason"`
}

// RepairedRow records a row that was changed.
type RepairedRow struct {
	Index           int    `json:"index"`
	BreakdownColumn string `json:"breakdownColumn,omitempty"`
	Steps           int    `json:"steps,omitempty"`
}

// BatchReport is the combined result of a batch repair call. Batch
// operations never abort on a per-row failure; indices refer to the row
// labels as they were before the call.
type BatchReport struct {
	Operation      RepairOp      `json:"operation"`
	Repaired       []RepairedRow `json:"repaired"`
	Skipped        []SkippedRow  `json:"skipped"`
	Failed         []RowFailure  `json:"failed"`
	NoRepairNeeded bool          `json:"noRepairNeeded,omitempty"`
	Duration       time.Duration `json:"durationNs"`
}

func newReport(op RepairOp) *BatchReport {
	return &BatchReport{
		Operation: op,
		Repaired:  []RepairedRow{},
		Skipped:   []SkippedRow{},
		Failed:    []RowFailure{},
	}
}

// OK reports whether no row failed.
func (r *BatchReport) OK() bool {
	return len(r.Failed) == 0
}

// RepairedIndices returns the indices of repaired rows in ascending order.
func (r *BatchReport) RepairedIndices() []int {
	out := make([]int, len(r.Repaired))
	for i, row := range r.Repaired {
		out[i] = row.Index
	}
	sort.Ints(out)
	return out
}

// FailedIndices returns the indices of failed rows in ascending order.
func (r *BatchReport) FailedIndices() []int {
	out := make([]int, len(r.Failed))
	for i, f := range r.Failed {
		out[i] = f.Index
	}
	sort.Ints(out)
	return out
}

// Failure returns the failure recorded for index, if any.
func (r *BatchReport) Failure(index int) (RowFailure, bool) {
	for _, f := range r.Failed {
		if f.Index == index {
			return f, true
		}
	}
	return RowFailure{}, false
}

// sortByIndex orders all lists by row index so reports are deterministic
// regardless of worker scheduling.
func (r *BatchReport) sortByIndex() {
	sort.Slice(r.Repaired, func(i, j int) bool { return r.Repaired[i].Index < r.Repaired[j].Index })
	sort.Slice(r.Skipped, func(i, j int) bool { return r.Skipped[i].Index < r.Skipped[j].Index })
	sort.Slice(r.Failed, func(i, j int) bool { return r.Failed[i].Index < r.Failed[j].Index })
}
