package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/roach88/recompose/internal/compose"
	"github.com/roach88/recompose/internal/treespec"
)

// ValidationIssue is one problem found in a tree.
type ValidationIssue struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Nodes  int               `json:"nodes"`
	State  []string          `json:"state"`
	Errors []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <tree>",
		Short: "Check that a tree compiles and composes cleanly",
		Long: `Compile a CUE tree and compose it once from its declared state without
storing anything. Reports compile errors with their position and the
errors of the trial pass, such as duplicate keys.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.Context(), rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(ctx context.Context, opts *RootOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	loaded, err := LoadTree(path)
	if err != nil {
		var loadErr *LoadError
		if !errors.As(err, &loadErr) {
			return outputValidateError(formatter, ErrCodeGeneric, err.Error())
		}
		if loadErr.Code != ErrCodeInvalidTree && loadErr.Code != ErrCodeBuildFailed {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message)
		}
		return outputValidationErrors(formatter, ValidationResult{
			Errors: []ValidationIssue{{
				Code:    loadErr.Code,
				Message: loadErr.Message,
				Line:    lineOf(loadErr),
			}},
		})
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, path)

	result := ValidationResult{
		Nodes: loaded.Program.Nodes(),
		State: loaded.Program.StateNames,
	}
	if result.State == nil {
		result.State = []string{}
	}

	issues, err := trialCompose(ctx, loaded, opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "trial compose failed", err)
	}
	if len(issues) > 0 {
		result.Errors = issues
		return outputValidationErrors(formatter, result)
	}

	result.Valid = true
	if formatter.JSON() {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ %s valid (%d node(s), %d state value(s))\n",
		loaded.Name, result.Nodes, len(result.State))
	return nil
}

// trialCompose composes the program once and reports the pass errors.
func trialCompose(ctx context.Context, loaded *LoadResult, opts *RootOptions) ([]ValidationIssue, error) {
	logger := newLogger(opts, io.Discard)
	tracker := newTracker(logger)
	model := treespec.Bind(loaded.Program, tracker)
	defer model.Dispose()

	comp := compose.New(tracker, nil, compose.WithName(loaded.Name), compose.WithLogger(logger))
	res, err := comp.Compose(ctx, model.Content())
	if res == nil {
		return nil, err
	}
	if res.Err == nil {
		return nil, nil
	}

	var issues []ValidationIssue
	var merr *multierror.Error
	if errors.As(res.Err, &merr) {
		for _, e := range merr.Errors {
			issues = append(issues, ValidationIssue{Code: ErrCodePassFailed, Message: e.Error()})
		}
		return issues, nil
	}
	return []ValidationIssue{{Code: ErrCodePassFailed, Message: res.Err.Error()}}, nil
}

func lineOf(err *LoadError) int {
	if err.Pos.IsValid() {
		return err.Pos.Line()
	}
	return 0
}

// outputValidateError outputs a command-level error.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs the problems found in a tree.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.JSON() {
		if result.State == nil {
			result.State = []string{}
		}
		if err := formatter.Failure(errs[0].Code, errs[0].Message, result); err != nil {
			return err
		}
		return exitErr
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, e := range errs {
		if e.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", e.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", e.Code, e.Message)
	}
	return exitErr
}
