package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/relplan/internal/lower"
	"github.com/roach88/relplan/internal/physical"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output      string // output file path
	StableOrder bool
}

// CompilationResult is the JSON form of a compiled plan.
type CompilationResult struct {
	Columns     []string `json:"columns"`
	Tables      []string `json:"tables"`
	Fingerprint string   `json:"fingerprint"`
	StableOrder bool     `json:"stable_order"`
	Explain     string   `json:"explain"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:     "compile <document>",
		Aliases: []string{"explain"},
		Short:   "Compile a query document to a physical plan",
		Long: `Compile a query document (.yaml, .yml or .cue) and print its physical
plan: the merge, merge_asof, select, assign, filter and sort steps an
engine will run, with the output columns in order.

Plan errors (non-equality join conditions, ambiguous or duplicate
columns) are reported here without touching any data.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the plan text to this file")
	cmd.Flags().BoolVar(&opts.StableOrder, "stable-order", false, "sort the output on every column")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	built, steps, err := LoadDocument(path)
	if err != nil {
		return formatter.Fail(err)
	}
	formatter.VerboseLog("Built %d step(s) from %s", steps, path)

	compiler := lower.NewCompiler(
		lower.WithStableOrder(opts.StableOrder),
		lower.WithLogger(formatter.Logger()),
	)
	plan, err := compiler.Compile(built.Relation)
	if err != nil {
		return formatter.Fail(convertBuildError(err))
	}

	explain := physical.Explain(plan)
	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(explain), 0644); err != nil {
			return formatter.FailWith(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(CompilationResult{
			Columns:     plan.Schema.Names(),
			Tables:      plan.Tables,
			Fingerprint: plan.Fingerprint,
			StableOrder: plan.StableOrder,
			Explain:     explain,
		})
	}

	fmt.Fprint(formatter.Writer, explain)
	if opts.Output != "" {
		fmt.Fprintf(formatter.Writer, "\nWrote plan to %s\n", opts.Output)
	}
	return nil
}
