package querydef

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relplan/internal/backend"
	"github.com/roach88/relplan/internal/relir"
)

func execute(t *testing.T, b *Built) []map[string]any {
	t.Helper()
	conn, err := backend.Connect(b.Frames, backend.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	out, err := conn.Execute(context.Background(), b.Relation)
	require.NoError(t, err)
	return out.Records()
}

func TestLoadFile_YAMLMultiHop(t *testing.T) {
	doc, err := LoadFile("testdata/multi_hop.yaml")
	require.NoError(t, err)
	require.Len(t, doc.Steps, 9)

	b, err := Build(doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"key", "value2"}, b.Relation.Schema().Names())
	assert.Same(t, b.Steps["out"], b.Relation)

	assert.Equal(t, []map[string]any{
		{"key": "a", "value2": int64(3)},
		{"key": "b", "value2": int64(3)},
	}, execute(t, b))
}

func TestLoadFile_CUEAsof(t *testing.T) {
	doc, err := LoadFile("testdata/asof.cue")
	require.NoError(t, err)

	b, err := Build(doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"time", "key", "value", "other_value"}, b.Relation.Schema().Names())

	assert.Equal(t, []map[string]any{
		{"time": int64(1), "key": "x", "value": int64(10), "other_value": int64(100)},
		{"time": int64(2), "key": "y", "value": int64(20), "other_value": nil},
		{"time": int64(3), "key": "x", "value": int64(30), "other_value": int64(200)},
	}, execute(t, b))
}

const twoTables = `
tables:
  l:
    columns: [{name: k, type: string}, {name: v, type: int}]
    rows: [{k: a, v: 1}, {k: b}]
  r:
    columns: [{name: k, type: string}, {name: w, type: int}]
    rows: [{k: a, w: 2}]
`

func TestBuild_Steps(t *testing.T) {
	doc, err := LoadYAML([]byte(twoTables + `
steps:
  - name: j
    join: {left: l, right: r, how: left, on: ["left.k == right.k"], suffixes: ["_l", "_r"]}
  - name: m
    mutate: {from: j, set: ["v2 = v * 2", "flag = isnull(w)"]}
  - name: rn
    rename: {from: m, columns: {double: v2}}
  - name: sv
    view: rn
output: rn
`))
	require.NoError(t, err)

	b, err := Build(doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"k", "v", "w", "double", "flag"}, b.Relation.Schema().Names())
	_, isView := b.Steps["sv"].(*relir.View)
	assert.True(t, isView)

	assert.Equal(t, []map[string]any{
		{"k": "a", "v": int64(1), "w": int64(2), "double": int64(2), "flag": false},
		{"k": "b", "v": nil, "w": nil, "double": nil, "flag": true},
	}, execute(t, b))
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name  string
		steps string
		err   string
	}{
		{"non-equality", `[{name: j, join: {left: l, right: r, on: ["left.k < right.k"]}}]`, "only equality"},
		{"unknown input", `[{name: j, join: {left: l, right: nope, on: [k]}}]`, `unknown step or table "nope"`},
		{"two operations", `[{name: s, table: l, view: l}]`, "exactly one of"},
		{"no operation", `[{name: s}]`, "exactly one of"},
		{"duplicate name", `[{name: l, table: r}]`, "name already defined"},
		{"missing name", `[{table: l}]`, "name is required"},
		{"by without asof", `[{name: j, join: {left: l, right: r, on: [k], by: [k]}}]`, "by is only valid"},
		{"asof needs one on", `[{name: j, join: {left: l, right: r, how: asof, on: [k, k]}}]`, "exactly one on"},
		{"bad suffixes", `[{name: j, join: {left: l, right: r, on: [k], suffixes: [x]}}]`, "suffixes"},
		{"bad mutate", `[{name: m, mutate: {from: l, set: ["v == 1"]}}]`, "name = expr"},
		{"ambiguous", `[{name: j, join: {left: l, right: r, on: ["left.v == right.w"]}}, {name: s, select: {from: j, columns: [k]}}]`, "AMBIGUOUS_COLUMN_REFERENCE"},
		{"unknown how", `[{name: j, join: {left: l, right: r, how: cross, on: [k]}}]`, "cross"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := LoadYAML([]byte(twoTables + "steps: " + tt.steps + "\n"))
			require.NoError(t, err)
			_, err = Build(doc)
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.err)
		})
	}
}

func TestBuild_TableErrors(t *testing.T) {
	doc, err := LoadYAML([]byte(`
tables:
  f:
    columns: [{name: x, type: float64}]
steps: [{name: s, table: f}]
`))
	require.NoError(t, err)
	_, err = Build(doc)
	assert.ErrorContains(t, err, "float types are forbidden")

	doc, err = LoadYAML([]byte(`
tables:
  f:
    columns: [{name: x, type: int}]
    rows: [{y: 1}]
`))
	require.NoError(t, err)
	_, err = Build(doc)
	assert.ErrorContains(t, err, `unknown column "y"`)

	_, err = Build(&Document{})
	assert.ErrorContains(t, err, "no steps")
}

func TestLoad_Errors(t *testing.T) {
	_, err := LoadYAML([]byte("tables: {}\nsurprise: 1\n"))
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "yaml", le.Format)

	_, err = LoadCUE([]byte("tables: {\n\tx: columns: 1 & 2\n}\n"), "bad.cue")
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "cue", le.Format)
	assert.Contains(t, err.Error(), "bad.cue:")

	_, err = LoadFile("testdata/nope.json")
	assert.Error(t, err)
}
