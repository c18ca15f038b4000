package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csvcure/internal/core"
)

func inspectCmd(a *app) *cobra.Command {
	var (
		threshold int
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Report rows that look spilled or near blank",
		Long: `Report a file's corruption signals without changing it.

A row is flagged corrupt when it ends in a run of nulls. A row is near blank
when it holds at most --threshold distinct non-empty values.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			diag := core.Diagnose(a.service.Inspector(), sess.Table, threshold)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(diag)
			}
			printDiagnostics(cmd.OutOrStdout(), sess.Name, diag)
			return nil
		},
	}

	cmd.Flags().IntVar(&threshold, "threshold", core.DefaultBlankThreshold, "near-blank distinct value limit")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print diagnostics as JSON")
	return cmd
}

func printDiagnostics(w io.Writer, name string, d *core.Diagnostics) {
	bold := color.New(color.Bold)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	green := color.New(color.FgGreen)

	fmt.Fprintf(w, "%s  %d rows x %d columns\n", bold.Sprint(name), d.Summary.Rows, d.Summary.Columns)

	if d.Summary.Corrupt == 0 {
		fmt.Fprintf(w, "  %s no rows with trailing nulls\n", green.Sprint("✓"))
	} else {
		fmt.Fprintf(w, "  %s %d rows end in nulls\n", red.Sprint("✗"), d.Summary.Corrupt)

		widths := make([]int, 0, len(d.Summary.NullRuns))
		for n := range d.Summary.NullRuns {
			widths = append(widths, n)
		}
		sort.Ints(widths)
		for _, n := range widths {
			fmt.Fprintf(w, "      %d trailing null(s): %d rows\n", n, d.Summary.NullRuns[n])
		}
		fmt.Fprintf(w, "    rows: %s\n", red.Sprint(joinInts(core.CandidateIndices(d.TrailingNulls), 20)))
	}

	if len(d.NearBlank) > 0 {
		fmt.Fprintf(w, "  %s %d near-blank rows (<= %d values): %s\n",
			yellow.Sprint("!"), len(d.NearBlank), d.Summary.Threshold, joinInts(d.NearBlank, 20))
	}
}

// joinInts formats up to limit indices, noting how many were left out.
func joinInts(ids []int, limit int) string {
	out := ""
	for i, id := range ids {
		if i == limit {
			return out + fmt.Sprintf(" ... (+%d more)", len(ids)-limit)
		}
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprint(id)
	}
	return out
}

func extractCmd(a *app) *cobra.Command {
	var (
		req    core.ExtractRequest
		mode   string
		output string
	)

	cmd := &cobra.Command{
		Use:   "extract FILE",
		Short: "Write a subset of rows",
		Long: `Write the rows selected by index, by value or by pattern.

Examples:
  csvcure extract orders.csv --by index --indices 3,17
  csvcure extract orders.csv --by value --column state --values MA,NY
  csvcure extract orders.csv --by pattern --patterns '^\d+$' --mode regex --columns zip`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			req.Mode = core.MatchMode(mode)
			res, err := a.service.Extract(sess.ID, req)
			if err != nil {
				return err
			}
			for _, ce := range res.Errors {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %v\n", color.New(color.FgYellow).Sprint("skipped column:"), ce)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d rows selected\n", res.Table.Len(), sess.Table.Len())
			return a.write(cmd.OutOrStdout(), res.Table, output)
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.By, "by", core.ExtractIndex, "index, value or pattern")
	f.IntSliceVar(&req.Indices, "indices", nil, "row indices (--by index)")
	f.StringSliceVar(&req.Values, "values", nil, "values to match (--by value)")
	f.StringVar(&req.Column, "column", "", "column to match values in (--by value)")
	f.StringSliceVar(&req.Patterns, "patterns", nil, "patterns to search for (--by pattern)")
	f.StringSliceVar(&req.Columns, "columns", nil, "columns to search, default all (--by pattern)")
	f.StringVar(&mode, "mode", string(core.MatchRegex), "substring or regex (--by pattern)")
	f.StringVarP(&output, "output", "o", "", "output file (.csv, .tsv or .xlsx), default stdout")
	return cmd
}
