package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/xlab/treeprint"

	"github.com/roach88/recompose/internal/changes"
	"github.com/roach88/recompose/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database    string
	Composition string // optional - filter to one composition
}

// TracePass is one stored pass in the trace timeline.
type TracePass struct {
	ID          string   `json:"id"`
	Composition string   `json:"composition"`
	Seq         int64    `json:"seq"`
	Kind        string   `json:"kind"`
	Executed    int      `json:"executed"`
	Skipped     int      `json:"skipped"`
	Reentered   int      `json:"reentered"`
	Pending     bool     `json:"pending"`
	Error       string   `json:"error,omitempty"`
	Digest      string   `json:"digest"`
	Changes     []string `json:"changes"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Composition string      `json:"composition,omitempty"`
	Passes      []TracePass `json:"passes"`
	Stats       TraceStats  `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Passes  int `json:"passes"`
	Changes int `json:"changes"`
	Inserts int `json:"inserts"`
	Removes int `json:"removes"`
	Moves   int `json:"moves"`
	Sets    int `json:"sets"`
	Failed  int `json:"failed"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the stored pass log",
		Long: `Show the passes stored in a pass log, in sequence order, with their
change lists and summary statistics.

Examples:
  recompose trace --db ./passes.db
  recompose trace --db ./passes.db --composition groceries
  recompose trace --db ./passes.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Composition, "composition", "", "filter to one composition")

	return cmd
}

func runTrace(ctx context.Context, opts *TraceOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	result, err := buildTrace(ctx, st, opts.Composition)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read pass log", err)
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	writeTraceText(formatter.Writer, result, opts.Verbose)
	return nil
}

// buildTrace reads the passes of composition, or of every composition,
// with their change lists.
func buildTrace(ctx context.Context, st *store.Store, composition string) (TraceResult, error) {
	recs, err := st.ListPasses(ctx, composition)
	if err != nil {
		return TraceResult{}, err
	}

	result := TraceResult{
		Composition: composition,
		Passes:      make([]TracePass, 0, len(recs)),
	}
	for _, rec := range recs {
		list, err := st.ReadChanges(ctx, rec.ID)
		if err != nil {
			return TraceResult{}, err
		}
		result.Passes = append(result.Passes, TracePass{
			ID:          rec.ID,
			Composition: rec.Composition,
			Seq:         rec.Seq,
			Kind:        rec.Kind,
			Executed:    rec.Executed,
			Skipped:     rec.Skipped,
			Reentered:   rec.Reentered,
			Pending:     rec.Pending,
			Error:       rec.Error,
			Digest:      rec.Digest,
			Changes:     list.Strings(),
		})

		result.Stats.Changes += len(list)
		result.Stats.Inserts += list.Count(changes.OpInsert)
		result.Stats.Removes += list.Count(changes.OpRemove)
		result.Stats.Moves += list.Count(changes.OpMove)
		result.Stats.Sets += list.Count(changes.OpSetAttribute)
		if rec.Error != "" {
			result.Stats.Failed++
		}
	}
	result.Stats.Passes = len(result.Passes)
	return result, nil
}

// writeTraceText prints the passes as a tree: one branch per pass, one
// leaf per change.
func writeTraceText(w io.Writer, result TraceResult, verbose bool) {
	if len(result.Passes) == 0 {
		if result.Composition != "" {
			fmt.Fprintf(w, "No passes found for composition: %s\n", result.Composition)
		} else {
			fmt.Fprintln(w, "No passes found.")
		}
		return
	}

	root := treeprint.NewWithRoot("passes")
	for _, p := range result.Passes {
		label := fmt.Sprintf("[%d] %s %s: %d executed, %d skipped, %d reentered",
			p.Seq, p.Composition, p.Kind, p.Executed, p.Skipped, p.Reentered)
		if p.Pending {
			label += " (pending)"
		}
		branch := root.AddBranch(label)
		if verbose {
			branch.AddNode("id: " + truncateID(p.ID))
			branch.AddNode("digest: " + truncateID(p.Digest))
		}
		if p.Error != "" {
			branch.AddNode("error: " + p.Error)
		}
		for _, c := range p.Changes {
			branch.AddNode(c)
		}
	}
	fmt.Fprint(w, root.String())

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Passes:  %d\n", result.Stats.Passes)
	fmt.Fprintf(w, "  Changes: %d (%d insert, %d remove, %d move, %d set)\n",
		result.Stats.Changes, result.Stats.Inserts, result.Stats.Removes, result.Stats.Moves, result.Stats.Sets)
	fmt.Fprintf(w, "  Failed:  %d\n", result.Stats.Failed)
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
