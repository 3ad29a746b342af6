package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/relplan/internal/backend"
	"github.com/roach88/relplan/internal/lower"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Backend     string
	Database    string
	StableOrder bool
}

// RunResult is the JSON form of a query result.
type RunResult struct {
	Backend string           `json:"backend"`
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <document>",
		Short: "Execute a query document",
		Long: `Execute a query document on an engine and print the result.

The memory backend runs plans with the built-in frame engine. The sqlite
backend loads the document's tables into SQLite and runs the plan as one
SQL query.

Example:
  relplan run ./query.yaml
  relplan run --backend sqlite --db /tmp/scratch.db ./query.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocument(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Backend, "backend", "memory", "execution backend (memory|sqlite)")
	cmd.Flags().StringVar(&opts.Database, "db", ":memory:", "SQLite database path for the sqlite backend")
	cmd.Flags().BoolVar(&opts.StableOrder, "stable-order", false, "sort the output on every column")

	return cmd
}

func runDocument(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := formatter.Logger()

	built, _, err := LoadDocument(path)
	if err != nil {
		return formatter.Fail(err)
	}

	var b backend.Backend
	switch opts.Backend {
	case "memory":
		b = backend.NewMemory(logger)
	case "sqlite":
		lite, err := backend.NewSQLite(opts.Database, logger)
		if err != nil {
			return formatter.FailWith(ErrCodeGeneric, fmt.Sprintf("opening database: %v", err))
		}
		b = lite
	default:
		return formatter.FailWith(ErrCodeGeneric, fmt.Sprintf("unknown backend %q (want memory or sqlite)", opts.Backend))
	}

	conn, err := backend.Connect(built.Frames,
		backend.WithBackend(b),
		backend.WithLogger(logger),
		backend.WithCompilerOptions(lower.WithStableOrder(opts.StableOrder)))
	if err != nil {
		return formatter.Fail(err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Error("error closing backend", "error", closeErr)
		}
	}()

	if _, err := conn.Compile(built.Relation); err != nil {
		return formatter.Fail(convertBuildError(err))
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := conn.Execute(ctx, built.Relation)
	if err != nil {
		_ = formatter.Error(ErrCodeExecFailed, err.Error(), nil)
		return WrapExitError(ExitFailure, "execution failed", err)
	}
	formatter.VerboseLog("%d row(s) from %s", out.Len(), b.Name())

	if formatter.Format == "json" {
		return formatter.Success(RunResult{
			Backend: b.Name(),
			Columns: out.Names(),
			Rows:    out.Records(),
		})
	}
	return formatter.Frame(out)
}
