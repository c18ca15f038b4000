package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csvcure/internal/core"
)

func journalCmd(a *app) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "journal FILE",
		Short: "Show the repair history recorded for a file",
		Long: `Show the newest journal entries for FILE. Entries are keyed by the
file's absolute path, so the file itself does not need to exist any more.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			entries, err := a.journal.List(cmd.Context(), id, limit)
			if err != nil {
				return fmt.Errorf("journal list: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			printJournal(cmd.OutOrStdout(), entries)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "entries to show, 0 for all")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print entries as JSON")
	return cmd
}

func printJournal(w io.Writer, entries []core.JournalEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no repairs recorded")
		return
	}

	dim := color.New(color.FgHiBlack)
	for _, e := range entries {
		fmt.Fprintf(w, "%s  %-16s row %-6d %s\n",
			dim.Sprint(e.CreatedAt.Local().Format("2006-01-02 15:04:05")),
			e.Operation, e.RowIndex, outcomeColor(e.Outcome).Sprint(e.Outcome))
		if e.Error != "" {
			fmt.Fprintf(w, "    %s\n", e.Error)
		}
	}
}

func outcomeColor(o core.Outcome) *color.Color {
	switch o {
	case core.OutcomeRepaired:
		return color.New(color.FgGreen)
	case core.OutcomeFailed:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgYellow)
	}
}
