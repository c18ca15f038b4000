package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/csvcure/internal/core"
)

func repairCmd(a *app) *cobra.Command {
	var (
		req    core.RepairRequest
		op     string
		output string
	)

	cmd := &cobra.Command{
		Use:   "repair FILE",
		Short: "Run one repair operation and write the result",
		Long: `Run one repair operation against FILE and write the repaired table.

Operations and the flags they read:
  merge_adjacent, merge_no_shift  --index --column-a --column-b [--delimiter] [--strip-quotes]
  split_right                     --index --breakdown --steps --delimiter --fix-columns [--drop]
  stretch_by_index                --index --breakdown --steps --delimiter [--drop]
  share_left                      --indices --breakdown --left --delimiter [--drop]
  auto_stretch                    --indices | --detect, --delimiter [--drop]`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Op = core.RepairOp(op)
			return a.runRepairs(cmd, args[0], []core.RepairRequest{req}, false, output)
		},
	}

	f := cmd.Flags()
	f.StringVar(&op, "op", "", "operation name")
	f.IntVar(&req.Index, "index", 0, "row index for single-row operations")
	f.IntSliceVar(&req.Indices, "indices", nil, "row indices for batch operations")
	f.StringVar(&req.ColumnA, "column-a", "", "column kept by a merge")
	f.StringVar(&req.ColumnB, "column-b", "", "column merged into --column-a")
	f.StringVar(&req.BreakdownColumn, "breakdown", "", "column holding the spilled value")
	f.StringVar(&req.LeftColumn, "left", "", "column receiving the left part (share_left)")
	f.StringSliceVar(&req.Columns, "fix-columns", nil, "columns to copy back (split_right)")
	f.IntVar(&req.Steps, "steps", 0, "columns to shift right")
	f.StringVar(&req.Delimiter, "delimiter", "", "delimiter to split or join on")
	f.StringSliceVar(&req.Drops, "drop", nil, "substrings removed from split parts")
	f.BoolVar(&req.StripQuotes, "strip-quotes", false, "remove double quotes from merged text")
	f.BoolVar(&req.Detect, "detect", false, "auto_stretch every row with trailing nulls")
	f.StringVarP(&output, "output", "o", "", "output file (.csv, .tsv or .xlsx), default stdout")
	_ = cmd.MarkFlagRequired("op")
	return cmd
}

func stretchCmd(a *app) *cobra.Command {
	var (
		delimiter string
		drops     []string
		output    string
	)

	cmd := &cobra.Command{
		Use:   "stretch FILE",
		Short: "Detect and repair every spilled row",
		Long: `Find every row that ends in nulls and try to stretch it back into place.

A row is repaired only when exactly one cell holds a quote followed by the
delimiter (e.g. ",), which is what a quoted field split on its embedded
delimiter leaves behind. Rows that are ambiguous or cannot be split are
reported and left unchanged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := core.RepairRequest{
				Op:        core.OpAutoStretch,
				Detect:    true,
				Delimiter: delimiter,
				Drops:     drops,
			}
			return a.runRepairs(cmd, args[0], []core.RepairRequest{req}, false, output)
		},
	}

	cmd.Flags().StringVar(&delimiter, "delimiter", ",", "delimiter the spilled values were joined with")
	cmd.Flags().StringSliceVar(&drops, "drop", []string{`"`}, "substrings removed from split parts")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (.csv, .tsv or .xlsx), default stdout")
	return cmd
}

// Plan is a sequence of repairs read from YAML:
//
//	keep_going: true
//	steps:
//	  - op: auto_stretch
//	    detect: true
//	    delimiter: ","
//	    drops: ['"']
//	  - op: merge_adjacent
//	    index: 12
//	    column_a: name
//	    column_b: city
type Plan struct {
	KeepGoing bool                 `yaml:"keep_going"`
	Steps     []core.RepairRequest `yaml:"steps"`
}

// LoadPlan decodes a plan, rejecting unknown keys and plans with no steps.
func LoadPlan(r io.Reader) (*Plan, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var p Plan
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: plan: %v", core.ErrInvalidRequest, err)
	}
	if len(p.Steps) == 0 {
		return nil, fmt.Errorf("%w: plan has no steps", core.ErrInvalidRequest)
	}
	for i, step := range p.Steps {
		if err := step.Validate(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return &p, nil
}

func applyCmd(a *app) *cobra.Command {
	var (
		planPath  string
		keepGoing bool
		output    string
	)

	cmd := &cobra.Command{
		Use:   "apply FILE",
		Short: "Run a YAML repair plan",
		Long: `Run every step of a YAML repair plan in order and write the result.

Row indices in later steps refer to the table as the earlier steps left it.
By default the first failing single-row step stops the plan and nothing is
written; --keep-going (or keep_going in the plan) reports it and carries on.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(planPath)
			if err != nil {
				return err
			}
			plan, err := LoadPlan(bytes.NewReader(raw))
			if err != nil {
				return err
			}
			return a.runRepairs(cmd, args[0], plan.Steps, keepGoing || plan.KeepGoing, output)
		},
	}

	cmd.Flags().StringVar(&planPath, "plan", "", "YAML plan file")
	cmd.Flags().BoolVar(&keepGoing, "keep-going", false, "continue after a failed step")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (.csv, .tsv or .xlsx), default stdout")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}

// runRepairs loads path, runs reqs in order through the service (so every
// step is journaled) and writes the table.
func (a *app) runRepairs(cmd *cobra.Command, path string, reqs []core.RepairRequest, keepGoing bool, output string) error {
	ctx := cmd.Context()
	sess, err := a.open(ctx, path)
	if err != nil {
		return err
	}

	stderr := cmd.ErrOrStderr()
	for i, req := range reqs {
		report, err := a.service.Repair(ctx, sess.ID, req)
		if err != nil {
			if !keepGoing {
				return fmt.Errorf("step %d (%s): %w", i+1, req.Op, err)
			}
			fmt.Fprintf(stderr, "%s step %d (%s): %s\n",
				color.New(color.FgRed).Sprint("✗"), i+1, req.Op, core.MapError(err).Message)
			continue
		}
		printReport(stderr, i+1, report)
	}

	return a.write(cmd.OutOrStdout(), sess.Table, output)
}

func printReport(w io.Writer, step int, r *core.BatchReport) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	mark := green.Sprint("✓")
	if !r.OK() {
		mark = red.Sprint("✗")
	}
	if r.NoRepairNeeded {
		fmt.Fprintf(w, "%s step %d (%s): no rows needed repair\n", mark, step, r.Operation)
		return
	}

	fmt.Fprintf(w, "%s step %d (%s): %d repaired, %d skipped, %d failed\n",
		mark, step, r.Operation, len(r.Repaired), len(r.Skipped), len(r.Failed))
	for _, f := range r.Failed {
		fmt.Fprintf(w, "    row %d: %s %s\n", f.Index, red.Sprint(f.Kind), f.Message())
	}
}
