package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/recompose/internal/changes"
	"github.com/roach88/recompose/internal/compose"
	"github.com/roach88/recompose/internal/ir"
	"github.com/roach88/recompose/internal/state"
	"github.com/roach88/recompose/internal/store"
	"github.com/roach88/recompose/internal/treespec"
)

// ComposeOptions holds flags for the compose command.
type ComposeOptions struct {
	*RootOptions
	Set      []string // name=json assignments
	Database string   // optional pass log
	Name     string   // composition name; defaults to the tree name
}

// ComposeResult is the data of a compose response.
type ComposeResult struct {
	Composition string   `json:"composition"`
	PassID      string   `json:"pass_id"`
	Seq         int64    `json:"seq"`
	Executed    int      `json:"executed"`
	Skipped     int      `json:"skipped"`
	Changes     []string `json:"changes"`
	Shape       string   `json:"shape"`
	Digest      string   `json:"digest"`
	Tree        any      `json:"tree"`
	Error       string   `json:"error,omitempty"`
}

// NewComposeCommand creates the compose command.
func NewComposeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ComposeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compose <tree>",
		Short: "Compose a tree once and print it",
		Long: `Compose a CUE tree from its declared state and print the resulting node tree.

State entries can be overridden with --set name=value, where value is JSON.
A value that is not valid JSON is taken as a string.

With --db, the last saved state of the composition is restored first, and
the pass and the new state are stored afterwards.

Examples:
  recompose compose ./groceries.cue
  recompose compose ./groceries.cue --set title='"Weekend"' --set showFooter=false
  recompose compose ./groceries.cue --db ./passes.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompose(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Set, "set", nil, "override a state entry (name=json, repeatable)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite pass log")
	cmd.Flags().StringVar(&opts.Name, "name", "", "composition name (default: tree name)")

	return cmd
}

func runCompose(ctx context.Context, opts *ComposeOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	loaded, err := LoadTree(path)
	if err != nil {
		_ = formatter.Error(loadErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load tree", err)
	}
	formatter.VerboseLog("Loaded %s (%d file(s), %d node(s))", path, loaded.FileCount, loaded.Program.Nodes())

	values, err := parseAssignments(opts.Set)
	if err != nil {
		_ = formatter.Error(ErrCodeInvalidState, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid --set", err)
	}

	name := opts.Name
	if name == "" {
		name = loaded.Name
	}

	var st *store.Store
	clock := compose.NewClock()
	if opts.Database != "" {
		st, err = store.Open(opts.Database)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()

		seq, err := st.MaxSeq(ctx)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to read pass log", err)
		}
		clock.Advance(seq)
	}

	tracker := newTracker(logger)
	model := treespec.Bind(loaded.Program, tracker)
	defer model.Dispose()

	if st != nil {
		if err := restoreSnapshot(ctx, st, name, model); err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to restore state", err)
		}
	}
	if err := model.SetAll(values); err != nil {
		_ = formatter.Error(ErrCodeInvalidState, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid --set", err)
	}

	tree := changes.NewTree()
	comp := compose.New(tracker, tree,
		compose.WithName(name),
		compose.WithClock(clock),
		compose.WithLogger(logger),
	)

	res, passErr := comp.Compose(ctx, model.Content())
	if res == nil {
		return WrapExitError(ExitCommandError, "compose cancelled", passErr)
	}

	if st != nil {
		if err := persistPass(ctx, st, res, model); err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to store pass", err)
		}
		formatter.VerboseLog("Stored pass %s (seq %d)", res.PassID, res.Seq)
	}

	result, err := composeResult(res, tree)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to digest tree", err)
	}

	if passErr != nil {
		if formatter.JSON() {
			_ = formatter.Failure(ErrCodePassFailed, passErr.Error(), result)
		} else {
			writeComposeText(formatter.Writer, result, tree)
			fmt.Fprintf(formatter.Writer, "Error [%s]: %v\n", ErrCodePassFailed, passErr)
		}
		return WrapExitError(ExitFailure, "pass completed with errors", passErr)
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	writeComposeText(formatter.Writer, result, tree)
	return nil
}

func newTracker(logger *slog.Logger) *state.Tracker {
	return state.NewTracker(state.WithLogger(logger))
}

// parseAssignments parses name=json pairs. Values that are not JSON are
// strings, so --set title=Groceries works without shell quoting.
func parseAssignments(pairs []string) (map[string]ir.Value, error) {
	values := make(map[string]ir.Value, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid assignment %q: want name=value", pair)
		}
		v, err := ir.Unmarshal([]byte(raw))
		if err != nil {
			v = ir.String(raw)
		}
		values[name] = v
	}
	return values, nil
}

// restoreSnapshot loads the latest saved state of name into model.
// A composition without a snapshot keeps its declared state.
func restoreSnapshot(ctx context.Context, st *store.Store, name string, model *treespec.Model) error {
	snap, err := st.LoadSnapshot(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	return model.Restore(snap.Values)
}

// persistPass stores the pass and the state it composed.
func persistPass(ctx context.Context, st *store.Store, res *compose.Result, model *treespec.Model) error {
	rec, err := store.RecordFromResult(res)
	if err != nil {
		return err
	}
	if err := st.WritePass(ctx, rec); err != nil {
		return err
	}
	_, err = st.SaveSnapshot(ctx, res.Composition, res.Seq, model.Snapshot())
	return err
}

func composeResult(res *compose.Result, tree *changes.Tree) (ComposeResult, error) {
	digest, err := treespec.TreeDigest(tree)
	if err != nil {
		return ComposeResult{}, err
	}
	out := ComposeResult{
		Composition: res.Composition,
		PassID:      res.PassID,
		Seq:         res.Seq,
		Executed:    res.Executed,
		Skipped:     res.Skipped,
		Changes:     res.Changes.Strings(),
		Shape:       tree.Shape(),
		Digest:      digest,
		Tree:        ir.ToGo(treespec.TreeValue(tree)),
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out, nil
}

func writeComposeText(w io.Writer, r ComposeResult, tree *changes.Tree) {
	fmt.Fprint(w, tree.String())
	fmt.Fprintf(w, "Pass %d (%s): %d change(s), %d executed, %d skipped\n",
		r.Seq, r.Composition, len(r.Changes), r.Executed, r.Skipped)
	for _, c := range r.Changes {
		fmt.Fprintf(w, "  %s\n", c)
	}
	fmt.Fprintf(w, "Digest: %s\n", r.Digest)
}
