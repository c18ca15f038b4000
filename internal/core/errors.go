package core

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the engine, the inspector and the
// service wraps exactly one of these, so callers can branch with errors.Is.
var (
	// ErrStructuralMismatch: a reconstructed row does not match the column count.
	ErrStructuralMismatch = errors.New("structural mismatch")
	// ErrOutOfBounds: the requested shift width does not fit in the row.
	ErrOutOfBounds = errors.New("shift out of bounds")
	// ErrIndexNotFound: the referenced row index does not exist.
	ErrIndexNotFound = errors.New("index not found")
	// ErrAmbiguousRepair: automatic detection could not pick one breakdown column.
	ErrAmbiguousRepair = errors.New("ambiguous repair")
	// ErrPatternParse: a column cannot be pattern-matched.
	ErrPatternParse = errors.New("pattern parse error")
	// ErrColumnNotFound: the referenced column does not exist.
	ErrColumnNotFound = errors.New("column not found")
	// ErrDelimiterNotFound: the breakdown cell holds no delimiter occurrence.
	ErrDelimiterNotFound = errors.New("delimiter not found")
	// ErrDuplicateColumn: a column name appears twice in a table.
	ErrDuplicateColumn = errors.New("duplicate column")
	// ErrEmptyTable: a table was requested without any columns.
	ErrEmptyTable = errors.New("empty table")
	// ErrInvalidRequest: a repair request is malformed.
	ErrInvalidRequest = errors.New("invalid repair request")
)

// Error wraps an error kind with the row/column context it occurred in.
type Error struct {
	err     error
	context string
}

// Error satisfies the error interface.
func (e *Error) Error() string {
	if e.context == "" {
		return e.err.Error()
	}
	return fmt.Sprintf("%s: %s", e.err.Error(), e.context)
}

// Unwrap exposes the kind to errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.err
}

// Kind returns the sentinel this error wraps.
func (e *Error) Kind() error {
	return e.err
}

func newError(kind error, format string, args ...any) *Error {
	return &Error{
		err:     kind,
		context: fmt.Sprintf(format, args...),
	}
}

// kinds lists the sentinels in the order KindName resolves them.
var kinds = []struct {
	err  error
	name string
}{
	{ErrStructuralMismatch, "structural_mismatch"},
	{ErrOutOfBounds, "out_of_bounds"},
	{ErrIndexNotFound, "index_not_found"},
	{ErrAmbiguousRepair, "ambiguous_repair"},
	{ErrPatternParse, "pattern_parse_error"},
	{ErrColumnNotFound, "column_not_found"},
	{ErrDelimiterNotFound, "delimiter_not_found"},
	{ErrDuplicateColumn, "duplicate_column"},
	{ErrEmptyTable, "empty_table"},
	{ErrInvalidRequest, "invalid_request"},
	{ErrTableNotFound, "table_not_found"},
	{ErrTooManyTables, "too_many_tables"},
	{ErrIngestBusy, "ingest_busy"},
	{ErrFileTooLarge, "file_too_large"},
	{ErrUnsupportedFile, "unsupported_file"},
}

// KindName returns a stable machine-readable name for err's kind,
// "cancelled" for context errors, or "internal" when no kind matches.
func KindName(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	if isContextErr(err) {
		return "cancelled"
	}
	return "internal"
}
