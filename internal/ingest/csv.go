package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/JonMunkholm/csvcure/internal/core"
)

// ctxCheckEvery is how many records are read between context checks.
const ctxCheckEvery = 1024

// LoadCSV parses delimited text into a table. Quotes are read leniently and
// records may have any number of fields.
func LoadCSV(ctx context.Context, r io.Reader, opts Options) (*core.Table, error) {
	text, _, err := Decode(r, opts.Encoding, opts.MaxBytes)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(text)
	cr.Comma = opts.delimiter()
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var (
		header  []string
		records [][]string
	)
	for n := 0; ; n++ {
		if n%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}

		if opts.Header && header == nil {
			header = rec
			continue
		}
		records = append(records, rec)
	}

	if header == nil && len(records) == 0 {
		return nil, fmt.Errorf("%w: file is empty", core.ErrEmptyTable)
	}
	return build(header, records, opts, false)
}

// WriteCSV writes t as delimited text. Nulls are written as empty fields.
func WriteCSV(w io.Writer, t *core.Table, delimiter rune, header bool) error {
	cw := csv.NewWriter(w)
	if delimiter != 0 {
		cw.Comma = delimiter
	}

	if header {
		if err := cw.Write(t.Columns()); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	var werr error
	rec := make([]string, t.NumColumns())
	t.Each(func(_ int, cells []core.Cell) bool {
		for i, c := range cells {
			rec[i] = c.Text()
		}
		werr = cw.Write(rec)
		return werr == nil
	})
	if werr != nil {
		return fmt.Errorf("write row: %w", werr)
	}

	cw.Flush()
	return cw.Error()
}
