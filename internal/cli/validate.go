package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/relplan/internal/relir"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool     `json:"valid"`
	Steps   int      `json:"steps"`
	Tables  []string `json:"tables"`
	Columns []string `json:"columns"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <document>",
		Short: "Check a query document without compiling it",
		Long: `Check a query document: decode it, build every step, and resolve every
column reference and join condition. Nothing is lowered or executed.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	built, steps, err := LoadDocument(path)
	if err == nil {
		err = relir.Validate(built.Relation)
		if err != nil {
			err = convertBuildError(err)
		}
	}
	if err != nil {
		if formatter.Format != "json" {
			fmt.Fprintln(formatter.Writer, "✗ Validation failed")
		}
		return formatter.Fail(err)
	}

	tables, err := relir.Tables(built.Relation)
	if err != nil {
		return formatter.Fail(err)
	}
	result := ValidationResult{
		Valid:   true,
		Steps:   steps,
		Columns: built.Relation.Schema().Names(),
	}
	for _, t := range tables {
		formatter.VerboseLog("Reads table %s [%s]", t.Name, t.Schema())
		result.Tables = append(result.Tables, t.Name)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ %s is valid: %d step(s), %d table(s)\n", path, result.Steps, len(result.Tables))
	fmt.Fprintf(formatter.Writer, "Output columns: %v\n", result.Columns)
	return nil
}
