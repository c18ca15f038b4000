package ingest

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/csvcure/internal/core"
)

// defaultSheet is the sheet excelize creates in a new workbook.
const defaultSheet = "Sheet1"

// LoadXLSX reads every sheet of a workbook, in order, into one table.
// With opts.Header the first row of each sheet is its header; the first
// sheet's header names the columns. Empty cells load as null.
func LoadXLSX(ctx context.Context, r io.Reader, opts Options) (*core.Table, error) {
	if opts.MaxBytes > 0 {
		r = &limitReader{r: r, max: opts.MaxBytes}
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var (
		header  []string
		records [][]string
	)
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		if opts.Header && len(rows) > 0 {
			if header == nil {
				header = rows[0]
			}
			rows = rows[1:]
		}
		records = append(records, rows...)
	}

	if header == nil && len(records) == 0 {
		return nil, fmt.Errorf("%w: workbook has no rows", core.ErrEmptyTable)
	}
	return build(header, records, opts, true)
}

// WriteXLSX writes t to a single-sheet workbook. Nulls become empty cells.
func WriteXLSX(w io.Writer, t *core.Table, header bool) error {
	f := excelize.NewFile()
	defer f.Close()

	sw, err := f.NewStreamWriter(defaultSheet)
	if err != nil {
		return fmt.Errorf("stream writer: %w", err)
	}

	rowNum := 1
	writeRow := func(values []any) error {
		cell, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return err
		}
		rowNum++
		return sw.SetRow(cell, values)
	}

	if header {
		cols := t.Columns()
		values := make([]any, len(cols))
		for i, c := range cols {
			values[i] = c
		}
		if err := writeRow(values); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	var werr error
	t.Each(func(_ int, cells []core.Cell) bool {
		values := make([]any, len(cells))
		for i, c := range cells {
			if !c.IsNull() {
				values[i] = c.String
			}
		}
		werr = writeRow(values)
		return werr == nil
	})
	if werr != nil {
		return fmt.Errorf("write row: %w", werr)
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}
	return f.Write(w)
}
