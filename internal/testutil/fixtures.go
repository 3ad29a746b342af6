// Package testutil holds the shared frames the join tests run against.
//
// The fixtures are small enough to reason about by hand and shaped so that
// every join kind produces a distinct result: df1 and df2 share some keys,
// miss others, and df2 repeats one key to exercise fan-out.
package testutil

import (
	"fmt"
	"slices"

	"github.com/roach88/relplan/internal/frame"
	"github.com/roach88/relplan/internal/ir"
	"github.com/roach88/relplan/internal/relir"
	"github.com/roach88/relplan/internal/schema"
)

type fixture struct {
	columns schema.Schema
	rows    [][]any
}

func col(name string, t schema.DType) schema.Column {
	return schema.Column{Name: name, Type: t}
}

var fixtures = map[string]fixture{
	"df1": {
		columns: schema.Schema{col("key", schema.String), col("value", schema.Int64), col("key2", schema.String)},
		rows: [][]any{
			{"a", 3, "e"},
			{"b", 4, "e"},
			{"c", 5, "f"},
			{"d", 6, "f"},
		},
	},
	"df2": {
		columns: schema.Schema{col("key", schema.String), col("other_value", schema.Int64), col("key3", schema.String)},
		rows: [][]any{
			{"a", 1, "f"},
			{"b", 2, "g"},
			{"b", 3, "h"},
			{"e", 4, "i"},
		},
	},
	"df3": {
		columns: schema.Schema{
			col("key", schema.String), col("key2", schema.String),
			col("other_value", schema.Int64), col("key3", schema.String),
		},
		rows: [][]any{
			{"a", "g", 1, "k"},
			{"b", "h", 2, "l"},
			{"e", "i", 3, "m"},
			{"f", "j", 4, "n"},
		},
	},
	"time_df1": {
		columns: schema.Schema{col("time", schema.Timestamp), col("value", schema.Int64)},
		rows:    [][]any{{1, 10}, {2, 20}, {3, 30}, {4, 40}, {5, 50}},
	},
	"time_df2": {
		columns: schema.Schema{col("time", schema.Timestamp), col("other_value", schema.Int64)},
		rows:    [][]any{{0, 100}, {2, 200}, {3, 300}, {6, 600}},
	},
	"time_keyed_df1": {
		columns: schema.Schema{col("time", schema.Timestamp), col("key", schema.String), col("value", schema.Int64)},
		rows: [][]any{
			{1, "x", 10},
			{2, "y", 20},
			{3, "x", 30},
			{4, "y", 40},
			{5, "z", 50},
		},
	},
	"time_keyed_df2": {
		columns: schema.Schema{col("time", schema.Timestamp), col("key", schema.String), col("other_value", schema.Int64)},
		rows: [][]any{
			{0, "x", 100},
			{2, "x", 200},
			{3, "y", 300},
			{6, "x", 600},
		},
	},
	"t": {
		columns: schema.Schema{col("a0", schema.Int64), col("b1", schema.String)},
		rows:    [][]any{{1, "a"}, {2, "a"}, {3, "b"}},
	},
	"s": {
		columns: schema.Schema{col("a1", schema.Int64), col("b2", schema.String)},
		rows:    [][]any{{2, "a"}, {3, "b"}, {4, "c"}},
	},
	"df": {
		columns: schema.Schema{col("test", schema.Int64), col("name", schema.String)},
		rows:    [][]any{{1, "a"}, {2, "b"}, {3, "c"}},
	},
	"df_2": {
		columns: schema.Schema{col("test_2", schema.Int64), col("name_2", schema.String)},
		rows:    [][]any{{1, "d"}, {5, "e"}, {6, "f"}},
	},
}

// Names returns the fixture names, sorted.
func Names() []string {
	names := make([]string, 0, len(fixtures))
	for n := range fixtures {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Frame returns a fresh copy of the named fixture. It panics on an unknown
// name.
func Frame(name string) *frame.Frame {
	fx, ok := fixtures[name]
	if !ok {
		panic(fmt.Sprintf("testutil: unknown fixture %q", name))
	}
	return frame.MustNew(fx.columns, Rows(fx.rows...))
}

// Frames returns every fixture keyed by name.
func Frames() map[string]*frame.Frame {
	out := make(map[string]*frame.Frame, len(fixtures))
	for n := range fixtures {
		out[n] = Frame(n)
	}
	return out
}

// Table returns a logical table over the named fixture's schema. Each call
// creates a distinct relation.
func Table(name string) *relir.Table {
	return relir.MustTable(name, Frame(name).Schema())
}

// Rows builds IR rows from plain Go values, for expected results.
func Rows(rows ...[]any) [][]ir.IRValue {
	out := make([][]ir.IRValue, len(rows))
	for i, r := range rows {
		out[i] = make([]ir.IRValue, len(r))
		for j, v := range r {
			out[i][j] = mustValue(v)
		}
	}
	return out
}

func mustValue(v any) ir.IRValue {
	iv, err := ir.FromAny(v)
	if err != nil {
		panic(err)
	}
	return iv
}
