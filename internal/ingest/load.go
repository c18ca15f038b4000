// Package ingest loads delimited text and spreadsheets into core tables and
// writes them back out.
//
// Parsing here is deliberately naive: rows keep whatever shape the parser
// produced and short rows are padded with null cells. Those trailing nulls
// are the signal the repair engine works from.
package ingest

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/JonMunkholm/csvcure/internal/core"
)

// Format is a supported file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatFromName picks the format from a file name's extension.
func FormatFromName(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt", ".tsv":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %q", core.ErrUnsupportedFile, filepath.Ext(name))
}

// Options controls loading.
type Options struct {
	// Delimiter separates CSV fields. Zero means ','.
	Delimiter rune
	// Header takes column names from the first row. Without it columns are
	// named by position: "0", "1", ...
	Header bool
	// Columns overrides the column names. Missing names are filled in by
	// position.
	Columns []string
	// Encoding of CSV input. Empty means auto detection.
	Encoding Encoding
	// MaxBytes caps the input size. Zero disables the cap.
	MaxBytes int64
}

func (o Options) delimiter() rune {
	if o.Delimiter == 0 {
		return ','
	}
	return o.Delimiter
}

// Load reads a file of the given format into a table.
func Load(ctx context.Context, format Format, r io.Reader, opts Options) (*core.Table, error) {
	switch format {
	case FormatCSV:
		return LoadCSV(ctx, r, opts)
	case FormatXLSX:
		return LoadXLSX(ctx, r, opts)
	}
	return nil, fmt.Errorf("%w: %q", core.ErrUnsupportedFile, format)
}

// build turns ragged records into a table. The width is the longest record
// (or header/override, if longer); short records are padded with nulls.
// blankIsNull maps "" to null, which is how empty spreadsheet cells read.
func build(header []string, records [][]string, opts Options, blankIsNull bool) (*core.Table, error) {
	width := len(header)
	for _, rec := range records {
		width = max(width, len(rec))
	}
	width = max(width, len(opts.Columns))
	if width == 0 {
		return nil, fmt.Errorf("%w: no columns found", core.ErrEmptyTable)
	}

	names := header
	if len(opts.Columns) > 0 {
		names = opts.Columns
	}
	t, err := core.NewTable(columnNames(names, width))
	if err != nil {
		return nil, err
	}

	row := make([]core.Cell, width)
	for _, rec := range records {
		for i := range row {
			switch {
			case i >= len(rec):
				row[i] = core.Null()
			case blankIsNull && rec[i] == "":
				row[i] = core.Null()
			default:
				row[i] = core.Str(rec[i])
			}
		}
		if err := t.AppendRow(row); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// columnNames pads names to width with positional names. Blank names are
// replaced by their position too. Repeated names get a ".N" suffix, so a
// header of "a,a" reads as columns a and a.1.
func columnNames(names []string, width int) []string {
	out := make([]string, width)
	taken := make(map[string]bool, width)
	for i := range out {
		name := strconv.Itoa(i)
		if i < len(names) && strings.TrimSpace(names[i]) != "" {
			name = strings.TrimSpace(names[i])
		}
		unique := name
		for n := 1; taken[unique]; n++ {
			unique = name + "." + strconv.Itoa(n)
		}
		taken[unique] = true
		out[i] = unique
	}
	return out
}

// DelimiterFor picks the CSV delimiter for a file name: tab for .tsv,
// fallback otherwise.
func DelimiterFor(name string, fallback rune) rune {
	if strings.EqualFold(filepath.Ext(name), ".tsv") {
		return '\t'
	}
	return fallback
}
