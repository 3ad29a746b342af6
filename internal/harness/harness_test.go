package harness

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			assert.Equal(t, name, scenario.Name, "scenario name should match its file")

			var result *Result
			if _, statErr := os.Stat(filepath.Join("testdata/golden", name+".golden")); statErr == nil {
				result, err = RunWithGolden(t, scenario)
			} else {
				result, err = Run(scenario)
			}
			require.NoError(t, err)
			assert.True(t, result.Pass, "scenario should pass: errors=%v", result.Errors)
			assert.Len(t, result.Outputs, len(DefaultBackends))
		})
	}
}

const twoBackends = `
name: t
description: d
fixtures: [df1, df2]
query:
  steps:
    - name: joined
      join: {left: df1, right: df2, how: inner, on: [key]}
`

func TestRun_ReportsRowMismatch(t *testing.T) {
	scenario, err := ParseScenario([]byte(twoBackends + `
expect:
  rows:
    - {key: a, value: 3, key2: e, other_value: 1, key3: f}
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2, "one mismatch per backend")
	assert.Contains(t, result.Errors[0], "memory: rows mismatch")
	assert.Contains(t, result.Errors[1], "sqlite: rows mismatch")
}

func TestRun_ReportsUnexpectedError(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: t
description: d
fixtures: [df1]
backends: [memory]
query:
  steps:
    - name: s
      select: {from: df1, columns: [missing]}
expect:
  columns: [missing]
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "UNRESOLVABLE_REFERENCE")
	assert.Empty(t, result.Explain)
}

func TestRun_ExpectedErrorMustOccur(t *testing.T) {
	scenario, err := ParseScenario([]byte(twoBackends + `
backends: [memory]
expect:
  error: INVALID_JOIN_PREDICATE
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "expected error")
}

func TestRun_ExpectedErrorBySubstring(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: t
description: d
fixtures: [df1]
query:
  steps:
    - name: f
      filter: {from: df1, where: "value == 'x'"}
expect:
  error: TYPE_MISMATCH
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors=%v", result.Errors)
	for _, o := range result.Outputs {
		assert.Error(t, o.Err)
	}
}

func TestRun_OutputsPerBackend(t *testing.T) {
	scenario, err := ParseScenario([]byte(twoBackends + `
assertions:
  - type: row_count
    count: 3
`))
	require.NoError(t, err)

	result, err := New().Run(context.Background(), scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors=%v", result.Errors)

	mem, lite := result.Output("memory"), result.Output("sqlite")
	require.NotNil(t, mem)
	require.NotNil(t, lite)
	assert.Equal(t, mem.Rows, lite.Rows)
	assert.Nil(t, result.Output("postgres"))
	assert.Contains(t, result.Explain, "Merge how=inner on=[key]")
}

func TestRun_CanceledContext(t *testing.T) {
	scenario, err := ParseScenario([]byte(twoBackends + `
backends: [memory]
assertions:
  - type: row_count
    count: 3
`))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := New().Run(ctx, scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.True(t, errors.Is(result.Outputs[0].Err, context.Canceled))
}

func TestCompareOutputs(t *testing.T) {
	a := &Output{Backend: "a", Columns: []string{"k"}, Rows: []map[string]any{{"k": "x"}, {"k": "y"}}}
	b := &Output{Backend: "b", Columns: []string{"k"}, Rows: []map[string]any{{"k": "y"}, {"k": "x"}}}

	assert.Contains(t, compareOutputs(a, b, true), "rows differ")
	assert.Empty(t, compareOutputs(a, b, false))

	c := &Output{Backend: "c", Columns: []string{"j"}, Rows: a.Rows}
	assert.Contains(t, compareOutputs(a, c, false), "columns differ")

	failed := &Output{Backend: "d", Err: errors.New("boom")}
	assert.Contains(t, compareOutputs(a, failed, true), "only one run failed")
	assert.Empty(t, compareOutputs(failed, &Output{Err: errors.New("bang")}, true))
}

func TestNormalizeRows(t *testing.T) {
	rows, err := normalizeRows([]map[string]any{{"k": "a", "n": 1}}, []string{"k", "n", "m"})
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"k": "a", "n": int64(1), "m": nil}}, rows)

	_, err = normalizeRows([]map[string]any{{"n": 1.5}}, nil)
	assert.ErrorContains(t, err, "floats are forbidden")
}
