// Package templates holds the templ components for the repair server's
// pages. Edit the .templ files and run `templ generate`; the *_templ.go
// files are generated.
package templates

import (
	"sort"

	"github.com/JonMunkholm/csvcure/internal/core"
)

// TablePageParams feeds TablePage.
type TablePageParams struct {
	Info        core.SessionInfo
	Diagnostics *core.Diagnostics
	Table       *core.Table
	// MaxRows caps the preview; zero shows every row.
	MaxRows int
}

// previewRow is one rendered row of the table page.
type previewRow struct {
	Index   int
	Cells   []core.Cell
	Corrupt bool
	Blank   bool
}

// previewRows copies out the rows the table page shows, flagged from the
// diagnostics.
func previewRows(p TablePageParams) []previewRow {
	blank := make(map[int]bool, len(p.Diagnostics.NearBlank))
	for _, i := range p.Diagnostics.NearBlank {
		blank[i] = true
	}

	var rows []previewRow
	p.Table.Each(func(index int, cells []core.Cell) bool {
		if p.MaxRows > 0 && len(rows) >= p.MaxRows {
			return false
		}
		rows = append(rows, previewRow{
			Index:   index,
			Cells:   append([]core.Cell(nil), cells...),
			Corrupt: p.Diagnostics.TrailingNulls[index] > 0,
			Blank:   blank[index],
		})
		return true
	})
	return rows
}

// runLengths returns the null run lengths in ascending order.
func runLengths(runs map[int]int) []int {
	out := make([]int, 0, len(runs))
	for n := range runs {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// truncated reports whether the preview hides rows.
func truncated(p TablePageParams) bool {
	return p.MaxRows > 0 && p.Diagnostics.Summary.Rows > p.MaxRows
}
