package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/relplan/internal/ir"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Backend  string // Backend whose output failed; empty for plan checks
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	if e.Backend != "" {
		fmt.Fprintf(&buf, "Assertion failed: %s [%s]\n", e.Type, e.Backend)
	} else {
		fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	}
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	return buf.String()
}

// EvaluateAssertions checks every assertion against every successful
// output and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for _, a := range assertions {
		if a.Type == AssertExplainContains {
			if err := assertExplainContains(result.Explain, a); err != nil {
				errs = append(errs, err.Error())
			}
			continue
		}
		for _, o := range result.Outputs {
			if o.Err != nil {
				continue
			}
			if err := evaluateAssertion(o, a); err != nil {
				errs = append(errs, err.Error())
			}
		}
	}
	return errs
}

func evaluateAssertion(o *Output, a Assertion) error {
	switch a.Type {
	case AssertColumns:
		return assertColumns(o, a)
	case AssertRowCount:
		return assertRowCount(o, a)
	case AssertContainsRow:
		return assertContainsRow(o, a)
	case AssertNoColumn:
		return assertNoColumn(o, a)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

func assertColumns(o *Output, a Assertion) error {
	if slices.Equal(o.Columns, a.Columns) {
		return nil
	}
	return &AssertionError{
		Type:     AssertColumns,
		Backend:  o.Backend,
		Expected: fmt.Sprintf("%v", a.Columns),
		Actual:   fmt.Sprintf("%v", o.Columns),
	}
}

func assertRowCount(o *Output, a Assertion) error {
	if len(o.Rows) == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertRowCount,
		Backend:  o.Backend,
		Expected: fmt.Sprintf("%d rows", a.Count),
		Actual:   fmt.Sprintf("%d rows", len(o.Rows)),
	}
}

// assertContainsRow passes when some row matches every field of a.Row
// (subset match).
func assertContainsRow(o *Output, a Assertion) error {
	want := make(map[string]any, len(a.Row))
	for k, v := range a.Row {
		iv, err := ir.FromAny(v)
		if err != nil {
			return fmt.Errorf("contains_row: %s: %w", k, err)
		}
		want[k] = ir.ToAny(iv)
	}
	for _, row := range o.Rows {
		if matchRow(row, want) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertContainsRow,
		Backend:  o.Backend,
		Expected: fmt.Sprintf("a row matching %v", want),
		Actual:   fmt.Sprintf("%d rows, none matching", len(o.Rows)),
	}
}

func matchRow(row, want map[string]any) bool {
	for k, v := range want {
		got, ok := row[k]
		if !ok || !cmp.Equal(got, v) {
			return false
		}
	}
	return true
}

func assertNoColumn(o *Output, a Assertion) error {
	if !slices.Contains(o.Columns, a.Column) {
		return nil
	}
	return &AssertionError{
		Type:     AssertNoColumn,
		Backend:  o.Backend,
		Expected: fmt.Sprintf("no column %q", a.Column),
		Actual:   fmt.Sprintf("%v", o.Columns),
	}
}

func assertExplainContains(explain string, a Assertion) error {
	if explain != "" && strings.Contains(explain, a.Text) {
		return nil
	}
	return &AssertionError{
		Type:     AssertExplainContains,
		Expected: fmt.Sprintf("plan containing %q", a.Text),
		Actual:   explain,
	}
}
