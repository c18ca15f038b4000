package core

// RepairRequest is one repair operation with its arguments. It is the
// shared request shape of the HTTP API (JSON) and CLI repair plans (YAML).
//
// Which fields are used depends on Op:
//
//	merge_adjacent, merge_no_shift: Index, ColumnA, ColumnB, Delimiter, StripQuotes
//	split_right:                    Index, Columns, BreakdownColumn, Steps, Delimiter, Drops
//	stretch_by_index:               Index, BreakdownColumn, Steps, Delimiter, Drops
//	share_left:                     Indices, BreakdownColumn, LeftColumn, Delimiter, Drops
//	auto_stretch:                   Indices (or Detect), Delimiter, Drops
type RepairRequest struct {
	Op              RepairOp `json:"op" yaml:"op"`
	Index           int      `json:"index,omitempty" yaml:"index,omitempty"`
	Indices         []int    `json:"indices,omitempty" yaml:"indices,omitempty"`
	ColumnA         string   `json:"columnA,omitempty" yaml:"column_a,omitempty"`
	ColumnB         string   `json:"columnB,omitempty" yaml:"column_b,omitempty"`
	BreakdownColumn string   `json:"breakdownColumn,omitempty" yaml:"breakdown_column,omitempty"`
	LeftColumn      string   `json:"leftColumn,omitempty" yaml:"left_column,omitempty"`
	Columns         []string `json:"columns,omitempty" yaml:"columns,omitempty"`
	Steps           int      `json:"steps,omitempty" yaml:"steps,omitempty"`
	Delimiter       string   `json:"delimiter,omitempty" yaml:"delimiter,omitempty"`
	Drops           []string `json:"drops,omitempty" yaml:"drops,omitempty"`
	StripQuotes     bool     `json:"stripQuotes,omitempty" yaml:"strip_quotes,omitempty"`

	// Detect makes auto_stretch use every row with a trailing null run as
	// a candidate when Indices is empty.
	Detect bool `json:"detect,omitempty" yaml:"detect,omitempty"`
}

// Validate checks that the fields Op needs are present. Values that only
// the table can judge (column names, indices, bounds) are left to the engine.
func (r RepairRequest) Validate() error {
	if !r.Op.Valid() {
		return newError(ErrInvalidRequest, "unknown operation %q", r.Op)
	}

	var missing []string
	need := func(ok bool, field string) {
		if !ok {
			missing = append(missing, field)
		}
	}

	switch r.Op {
	case OpMergeAdjacent, OpMergeNoShift:
		need(r.ColumnA != "", "columnA")
		need(r.ColumnB != "", "columnB")
	case OpSplitRight:
		need(len(r.Columns) > 0, "columns")
		fallthrough
	case OpStretchByIndex:
		need(r.BreakdownColumn != "", "breakdownColumn")
		need(r.Delimiter != "", "delimiter")
	case OpShareLeft:
		need(r.BreakdownColumn != "", "breakdownColumn")
		need(r.LeftColumn != "", "leftColumn")
		need(r.Delimiter != "", "delimiter")
	case OpAutoStretch:
		need(r.Delimiter != "", "delimiter")
	}

	if len(missing) > 0 {
		return newError(ErrInvalidRequest, "%s is missing %v", r.Op, missing)
	}
	return nil
}

// targets lists the row indices the request touches.
func (r RepairRequest) targets() []int {
	switch r.Op {
	case OpShareLeft, OpAutoStretch:
		return dedupe(r.Indices)
	default:
		return []int{r.Index}
	}
}
