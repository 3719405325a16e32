package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/recompose/internal/changes"
	"github.com/roach88/recompose/internal/compose"
	"github.com/roach88/recompose/internal/recomposer"
	"github.com/roach88/recompose/internal/store"
	"github.com/roach88/recompose/internal/treespec"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Name     string
	Workers  int
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <tree>",
		Short: "Keep a tree composed while its state changes",
		Long: `Compose a CUE tree and keep it up to date as state is written.

State writes are read from stdin, one per line, as name=value where value
is JSON. Every write schedules a recomposition; each committed pass is
stored in the SQLite database together with the state it composed.
The line "tree" prints the current tree. Input ends at EOF or Ctrl-C.

Example:
  recompose run --db ./passes.db ./groceries.cue
  echo 'title="Weekend"' | recompose run --db /tmp/test.db ./groceries.cue --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoop(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Name, "name", "", "composition name (default: tree name)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "concurrent recompositions (default: GOMAXPROCS)")

	return cmd
}

func runLoop(opts *RunOptions, path string, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))
	out := &lockedWriter{w: cmd.OutOrStdout()}

	logger.Info("loading tree", "path", path)
	loaded, err := LoadTree(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load tree", err)
	}
	name := opts.Name
	if name == "" {
		name = loaded.Name
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	logger.Info("opening database", "path", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	seq, err := st.MaxSeq(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read pass log", err)
	}

	clock := compose.NewClock()
	clock.Advance(seq)

	sink := &reportingSink{next: st.Sink(), store: st, out: out}
	rc := recomposer.New(
		recomposer.WithWorkers(opts.Workers),
		recomposer.WithSink(sink),
		recomposer.WithLogger(logger),
		recomposer.WithClock(clock),
	)

	model := treespec.Bind(loaded.Program, rc.Tracker())
	defer model.Dispose()
	sink.model = model

	if err := restoreSnapshot(ctx, st, name, model); err != nil {
		return WrapExitError(ExitCommandError, "failed to restore state", err)
	}

	tree := changes.NewTree()
	comp := rc.NewComposition(tree, compose.WithName(name))
	if _, err := rc.Compose(ctx, comp, model.Content()); err != nil {
		if ctx.Err() != nil {
			return WrapExitError(ExitCommandError, "compose cancelled", err)
		}
		logger.Warn("initial pass completed with errors", "composition", name, "err", err)
	}
	fmt.Fprint(out, tree.String())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	done := make(chan error, 1)
	go func() {
		done <- rc.Run(ctx)
	}()

	go func() {
		readWrites(cmd.InOrStdin(), model, tree, out, logger)
		rc.Stop()
	}()

	if err := <-done; err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "recomposer error", err)
	}

	fmt.Fprint(out, tree.String())
	logger.Info("recomposer stopped gracefully", "composition", name)
	return nil
}

// readWrites applies state writes from r until EOF. Malformed lines are
// logged and skipped.
func readWrites(r io.Reader, model *treespec.Model, tree *changes.Tree, out io.Writer, logger *slog.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "", strings.HasPrefix(line, "#"):
			continue
		case line == "tree":
			fmt.Fprint(out, tree.String())
			continue
		}

		values, err := parseAssignments([]string{line})
		if err != nil {
			logger.Warn("skipping input", "line", line, "err", err)
			continue
		}
		if err := model.SetAll(values); err != nil {
			logger.Warn("skipping input", "line", line, "err", err)
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Error("reading input", "err", err)
	}
}

// reportingSink stores every pass with the state it composed and prints a
// summary line.
type reportingSink struct {
	next  recomposer.PassSink
	store *store.Store
	model *treespec.Model
	out   io.Writer
}

func (s *reportingSink) WritePass(ctx context.Context, res *compose.Result) error {
	if err := s.next.WritePass(ctx, res); err != nil {
		return err
	}
	if _, err := s.store.SaveSnapshot(ctx, res.Composition, res.Seq, s.model.Snapshot()); err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s %s: %d change(s)\n", res.Seq, res.Composition, res.Kind, len(res.Changes))
	for _, c := range res.Changes {
		fmt.Fprintf(&b, "  %s\n", c)
	}
	if res.Err != nil {
		fmt.Fprintf(&b, "  error: %v\n", res.Err)
	}
	_, err := io.WriteString(s.out, b.String())
	return err
}

// lockedWriter serializes writes from the input reader and the sink.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
