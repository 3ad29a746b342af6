package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/roach88/relplan/internal/backend"
	"github.com/roach88/relplan/internal/ir"
	"github.com/roach88/relplan/internal/lower"
	"github.com/roach88/relplan/internal/physical"
	"github.com/roach88/relplan/internal/querydef"
	"github.com/roach88/relplan/internal/relir"
)

// Harness is the test execution engine.
type Harness struct {
	logger *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger passed to backends. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// New creates a Harness.
func New(opts ...Option) *Harness {
	h := &Harness{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a test scenario with a default Harness.
func Run(scenario *Scenario) (*Result, error) {
	return New().Run(context.Background(), scenario)
}

// Run executes a test scenario and returns the result.
//
// Each backend gets its own connection, so nothing is shared between
// runs. An error return means the harness itself could not run (for
// example a backend failed to open); scenario failures are reported in
// the result.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	result := NewResult()
	doc := scenario.document()

	for _, name := range scenario.backends() {
		out, explain, err := h.execute(ctx, doc, name, scenario.stableOrder())
		if err != nil {
			return nil, fmt.Errorf("backend %s: %w", name, err)
		}
		result.Outputs = append(result.Outputs, out)
		if result.Explain == "" {
			result.Explain = explain
		}
	}

	checkExpect(scenario, result)
	checkAgreement(scenario, result)
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}

	for _, prop := range scenario.Properties {
		variant := doc
		if prop == PropertyOperandOrder {
			variant = swapOperands(doc)
		}
		first := result.Outputs[0]
		out, _, err := h.execute(ctx, variant, first.Backend, scenario.stableOrder())
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", prop, err)
		}
		if msg := compareOutputs(first, out, true); msg != "" {
			result.AddError(fmt.Sprintf("property %s: %s", prop, msg))
		}
	}

	return result, nil
}

// execute builds doc and runs it on one backend. Build and execution
// failures are recorded in the Output.
func (h *Harness) execute(ctx context.Context, doc *querydef.Document, name string, stable bool) (*Output, string, error) {
	out := &Output{Backend: name}
	built, err := querydef.Build(doc)
	if err != nil {
		out.Err = err
		return out, "", nil
	}

	b, err := backend.Open(name, h.logger)
	if err != nil {
		return nil, "", err
	}
	conn, err := backend.Connect(built.Frames,
		backend.WithBackend(b),
		backend.WithLogger(h.logger),
		backend.WithCompilerOptions(lower.WithStableOrder(stable)))
	if err != nil {
		return nil, "", err
	}
	defer conn.Close()

	plan, err := conn.Compile(built.Relation)
	if err != nil {
		out.Err = err
		return out, "", nil
	}
	f, err := conn.Execute(ctx, built.Relation)
	if err != nil {
		out.Err = err
		return out, physical.Explain(plan), nil
	}
	out.Columns = f.Names()
	out.Rows = f.Records()
	return out, physical.Explain(plan), nil
}

// checkExpect compares every output with the scenario's expectation.
func checkExpect(scenario *Scenario, result *Result) {
	want := scenario.Expect
	if want == nil {
		for _, o := range result.Outputs {
			if o.Err != nil {
				result.AddError(fmt.Sprintf("%s: unexpected error: %v", o.Backend, o.Err))
			}
		}
		return
	}

	for _, o := range result.Outputs {
		if want.Error != "" {
			if o.Err == nil {
				result.AddError(fmt.Sprintf("%s: expected error %q, got %d rows", o.Backend, want.Error, len(o.Rows)))
			} else if !matchesError(o.Err, want.Error) {
				result.AddError(fmt.Sprintf("%s: expected error %q, got: %v", o.Backend, want.Error, o.Err))
			}
			continue
		}
		if o.Err != nil {
			result.AddError(fmt.Sprintf("%s: unexpected error: %v", o.Backend, o.Err))
			continue
		}
		if len(want.Columns) > 0 {
			if diff := cmp.Diff(want.Columns, o.Columns); diff != "" {
				result.AddError(fmt.Sprintf("%s: columns mismatch (-want +got):\n%s", o.Backend, diff))
			}
		}
		if want.Rows == nil {
			continue
		}
		// Without stable order only the memory engine's row order is
		// meaningful; other backends are checked by checkAgreement.
		ordered := scenario.stableOrder()
		if !ordered && o.Backend != "memory" {
			continue
		}
		rows, err := normalizeRows(want.Rows, o.Columns)
		if err != nil {
			result.AddError(fmt.Sprintf("expect.rows: %v", err))
			return
		}
		if diff := cmp.Diff(rows, o.Rows, cmpopts.EquateEmpty()); diff != "" {
			result.AddError(fmt.Sprintf("%s: rows mismatch (-want +got):\n%s", o.Backend, diff))
		}
	}
}

// checkAgreement compares every backend with the first.
func checkAgreement(scenario *Scenario, result *Result) {
	if len(result.Outputs) < 2 {
		return
	}
	first := result.Outputs[0]
	for _, o := range result.Outputs[1:] {
		if msg := compareOutputs(first, o, scenario.stableOrder()); msg != "" {
			result.AddError(fmt.Sprintf("%s disagrees with %s: %s", o.Backend, first.Backend, msg))
		}
	}
}

// compareOutputs returns "" when a and b agree. Errors agree when their
// plan error codes match.
func compareOutputs(a, b *Output, ordered bool) string {
	switch {
	case a.Err != nil && b.Err != nil:
		if relir.CodeOf(a.Err) != relir.CodeOf(b.Err) {
			return fmt.Sprintf("errors differ: %v / %v", a.Err, b.Err)
		}
		return ""
	case a.Err != nil || b.Err != nil:
		return fmt.Sprintf("only one run failed: %v / %v", a.Err, b.Err)
	}
	if diff := cmp.Diff(a.Columns, b.Columns); diff != "" {
		return "columns differ (-a +b):\n" + diff
	}
	opts := []cmp.Option{cmpopts.EquateEmpty()}
	if !ordered {
		opts = append(opts, cmpopts.SortSlices(func(x, y map[string]any) bool {
			return rowKey(x) < rowKey(y)
		}))
	}
	if diff := cmp.Diff(a.Rows, b.Rows, opts...); diff != "" {
		return "rows differ (-a +b):\n" + diff
	}
	return ""
}

func matchesError(err error, want string) bool {
	return string(relir.CodeOf(err)) == want || strings.Contains(err.Error(), want)
}

// normalizeRows converts decoded YAML values to the plain types frames
// produce. Columns missing from a row are null.
func normalizeRows(rows []map[string]any, columns []string) ([]map[string]any, error) {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		norm := make(map[string]any, len(columns))
		for _, c := range columns {
			norm[c] = nil
		}
		for k, v := range row {
			iv, err := ir.FromAny(v)
			if err != nil {
				return nil, fmt.Errorf("row %d: %s: %w", i, k, err)
			}
			norm[k] = ir.ToAny(iv)
		}
		out[i] = norm
	}
	return out, nil
}

func rowKey(row map[string]any) string {
	b, err := ir.MarshalCanonical(row)
	if err != nil {
		return fmt.Sprint(row)
	}
	return string(b)
}
