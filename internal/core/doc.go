// Package core repairs tables whose rows were torn apart by unescaped
// delimiters.
//
// A naive parse of a delimited file that contains a stray delimiter inside
// one field moves every later value one or more columns over. The damaged
// row either ends in a run of null cells or holds two logical values in one
// cell. This package finds those rows and puts their values back in the
// right columns, without touching any other row.
//
// # Table
//
// [Table] is an ordered grid of named columns and labelled rows. A [Cell] is a
// string or null; null is never the same as "". Every row always has one
// cell per column.
//
// # Repair
//
// [Engine] mutates a table in place:
//
//   - [Engine.MergeAdjacent] and [Engine.MergeNoShift] join two cells.
//   - [Engine.SplitRight] and [Engine.StretchByIndex] split one cell on the
//     delimiter and shift the row right.
//   - [Engine.ShareLeft] moves the front of a cell onto its left neighbour.
//   - [Engine.AutoStretch] works out the shift width and breakdown column of
//     each candidate row by itself.
//
// The split operations share one reconstruction routine. Single-row calls
// are atomic; batch calls return a [BatchReport] and never stop at the first
// bad row. After every successful call the row labels are renumbered 0..n-1.
//
// # Inspection
//
// [Inspector] answers read-only questions: which rows end in nulls
// ([Inspector.FindTrailingNullRuns]), which rows are nearly blank, and which
// rows match an index, value or pattern.
//
//	in := core.NewInspector(logger)
//	runs := in.FindTrailingNullRuns(t)
//	report, err := core.NewEngine().AutoStretch(ctx, t, core.CandidateIndices(runs), ",", []string{`"`})
//
// # Service
//
// [Service] keeps uploaded tables in memory for the HTTP server, dispatches
// [RepairRequest] values to the engine, and writes a [JournalEntry] per
// touched row to a [Journal].
//
// # Error Handling
//
// Every error wraps one of the Err* kinds, so errors.Is works through any
// wrapping. [MapError] turns an error into a [UserMessage] with a support
// code (REP, INS, FILE, SES, JRN, ERR000).
package core
