package frame

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relplan/internal/ir"
	"github.com/roach88/relplan/internal/physical"
	"github.com/roach88/relplan/internal/schema"
)

func cols(spec ...string) schema.Schema {
	s := make(schema.Schema, 0, len(spec)/2)
	for i := 0; i < len(spec); i += 2 {
		s = append(s, schema.Column{Name: spec[i], Type: schema.DType(spec[i+1])})
	}
	return s
}

func mk(t *testing.T, s schema.Schema, rows ...[]any) *Frame {
	t.Helper()
	out := make([][]ir.IRValue, len(rows))
	for i, r := range rows {
		out[i] = make([]ir.IRValue, len(r))
		for j, v := range r {
			iv, err := ir.FromAny(v)
			require.NoError(t, err)
			out[i][j] = iv
		}
	}
	f, err := New(s, out)
	require.NoError(t, err)
	return f
}

func leftFrame(t *testing.T) *Frame {
	return mk(t, cols("key", "string", "value", "int64", "key2", "string"),
		[]any{"a", 3, "e"},
		[]any{"b", 4, "e"},
		[]any{"c", 5, "f"},
		[]any{"d", 6, "f"},
	)
}

func rightFrame(t *testing.T) *Frame {
	return mk(t, cols("key", "string", "other_value", "int64", "key3", "string"),
		[]any{"a", 10, "x"},
		[]any{"b", 20, "y"},
		[]any{"b", 30, "z"},
		[]any{"e", 40, "w"},
	)
}

func TestMerge_RowOrderPerHow(t *testing.T) {
	s := cols("key", "string", "value", "int64", "key2", "string", "other_value", "int64", "key3", "string")
	tests := []struct {
		how  physical.How
		want [][]any
	}{
		{physical.HowInner, [][]any{
			{"a", 3, "e", 10, "x"},
			{"b", 4, "e", 20, "y"},
			{"b", 4, "e", 30, "z"},
		}},
		{physical.HowLeft, [][]any{
			{"a", 3, "e", 10, "x"},
			{"b", 4, "e", 20, "y"},
			{"b", 4, "e", 30, "z"},
			{"c", 5, "f", nil, nil},
			{"d", 6, "f", nil, nil},
		}},
		{physical.HowRight, [][]any{
			{"a", 3, "e", 10, "x"},
			{"b", 4, "e", 20, "y"},
			{"b", 4, "e", 30, "z"},
			{"e", nil, nil, 40, "w"},
		}},
		{physical.HowOuter, [][]any{
			{"a", 3, "e", 10, "x"},
			{"b", 4, "e", 20, "y"},
			{"b", 4, "e", 30, "z"},
			{"c", 5, "f", nil, nil},
			{"d", 6, "f", nil, nil},
			{"e", nil, nil, 40, "w"},
		}},
	}
	for _, tt := range tests {
		t.Run(string(tt.how), func(t *testing.T) {
			got, err := Merge(leftFrame(t), rightFrame(t), tt.how, []string{"key"}, []string{"key"}, schema.DefaultSuffixes)
			require.NoError(t, err)
			want := mk(t, s, tt.want...)
			assert.True(t, Equal(want, got), "got %v", got.Records())
		})
	}
}

func TestMerge_DifferentKeysAndSuffixes(t *testing.T) {
	l := mk(t, cols("test", "int64", "name", "string"), []any{1, "a"}, []any{2, "b"}, []any{3, "c"})
	r := mk(t, cols("test_2", "int64", "name", "string"), []any{1, "d"}, []any{5, "e"}, []any{6, "f"})

	got, err := Merge(l, r, physical.HowOuter, []string{"test"}, []string{"test_2"}, schema.Suffixes{Left: "_x", Right: "_y"})
	require.NoError(t, err)
	want := mk(t, cols("test", "int64", "name_x", "string", "test_2", "int64", "name_y", "string"),
		[]any{1, "a", 1, "d"},
		[]any{2, "b", nil, nil},
		[]any{3, "c", nil, nil},
		[]any{nil, nil, 5, "e"},
		[]any{nil, nil, 6, "f"},
	)
	assert.True(t, Equal(want, got), "got %v", got.Records())
}

func TestMerge_NullKeysNeverMatch(t *testing.T) {
	l := mk(t, cols("k", "string", "v", "int64"), []any{nil, 1}, []any{"a", 2})
	r := mk(t, cols("k", "string", "w", "int64"), []any{nil, 10}, []any{"a", 20})

	got, err := Merge(l, r, physical.HowInner, []string{"k"}, []string{"k"}, schema.DefaultSuffixes)
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"k": "a", "v": int64(2), "w": int64(20)}}, got.Records())

	got, err = Merge(l, r, physical.HowOuter, []string{"k"}, []string{"k"}, schema.DefaultSuffixes)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Len())
}

func TestMerge_Errors(t *testing.T) {
	l, r := leftFrame(t), rightFrame(t)

	_, err := Merge(l, r, physical.HowInner, []string{"missing"}, []string{"key"}, schema.DefaultSuffixes)
	assert.Error(t, err)
	_, err = Merge(l, r, physical.HowInner, nil, nil, schema.DefaultSuffixes)
	assert.Error(t, err)
	_, err = Merge(l, r, "cross", []string{"key"}, []string{"key"}, schema.DefaultSuffixes)
	assert.Error(t, err)
}

func asofFrames(t *testing.T) (*Frame, *Frame) {
	l := mk(t, cols("time", "timestamp", "key", "string", "value", "int64"),
		[]any{1, "x", 10},
		[]any{2, "y", 20},
		[]any{3, "x", 30},
		[]any{4, "y", 40},
		[]any{5, "z", 50},
	)
	r := mk(t, cols("time", "timestamp", "key", "string", "other_value", "int64"),
		[]any{0, "x", 100},
		[]any{2, "x", 200},
		[]any{2, "x", 201},
		[]any{3, "y", 300},
		[]any{6, "x", 600},
	)
	return l, r
}

func TestMergeAsof_ByKey(t *testing.T) {
	l, r := asofFrames(t)

	got, err := MergeAsof(l, r, "time", "time", []string{"key"}, []string{"key"}, schema.DefaultSuffixes)
	require.NoError(t, err)
	want := mk(t, cols("time", "timestamp", "key", "string", "value", "int64", "other_value", "int64"),
		[]any{1, "x", 10, 100},
		[]any{2, "y", 20, nil},
		[]any{3, "x", 30, 201},
		[]any{4, "y", 40, 300},
		[]any{5, "z", 50, nil},
	)
	assert.True(t, Equal(want, got), "got %v", got.Records())
}

func TestMergeAsof_NoGroups(t *testing.T) {
	l, r := asofFrames(t)

	got, err := MergeAsof(l, r, "time", "time", nil, nil, schema.DefaultSuffixes)
	require.NoError(t, err)
	assert.Equal(t, []string{"time", "key", "value", "key_right", "other_value"}, got.Names())
	vals, err := got.Column("other_value")
	require.NoError(t, err)
	assert.Equal(t, []ir.IRValue{ir.IRInt(100), ir.IRInt(201), ir.IRInt(300), ir.IRInt(300), ir.IRInt(300)}, vals)
}

func TestSelectAssignFilterSort(t *testing.T) {
	f := leftFrame(t)

	f, err := Assign(f, "value", schema.Int64, &physical.Binary{Op: "*", Left: &physical.Col{Name: "value"}, Right: &physical.Lit{Value: ir.IRInt(2)}})
	require.NoError(t, err)
	f, err = Assign(f, "key_len", schema.Int64, &physical.Unary{Op: "length", Arg: &physical.Col{Name: "key"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"key", "value", "key2", "key_len"}, f.Names())

	f, err = Filter(f, &physical.Binary{Op: ">", Left: &physical.Col{Name: "value"}, Right: &physical.Lit{Value: ir.IRInt(7)}})
	require.NoError(t, err)
	f, err = SortRows(f, []string{"key2", "value"})
	require.NoError(t, err)
	f, err = Select(f, []string{"value", "key"}, []string{"v", "k"})
	require.NoError(t, err)

	assert.Equal(t, []map[string]any{
		{"v": int64(8), "k": "b"},
		{"v": int64(10), "k": "c"},
		{"v": int64(12), "k": "d"},
	}, f.Records())

	_, err = Assign(f, "bad", schema.Bool, &physical.Col{Name: "v"})
	assert.Error(t, err)
	_, err = Select(f, []string{"v", "k"}, []string{"x", "x"})
	assert.Error(t, err)
}

func TestFilter_ThreeValuedLogic(t *testing.T) {
	f := mk(t, cols("a", "bool", "b", "bool"),
		[]any{true, nil},
		[]any{false, nil},
		[]any{nil, nil},
		[]any{true, true},
	)
	a, b := &physical.Col{Name: "a"}, &physical.Col{Name: "b"}

	or, err := Filter(f, &physical.Binary{Op: "or", Left: a, Right: b})
	require.NoError(t, err)
	assert.Equal(t, 2, or.Len(), "true or null is true")

	and, err := Filter(f, &physical.Binary{Op: "and", Left: a, Right: b})
	require.NoError(t, err)
	assert.Equal(t, 1, and.Len(), "true and null is null")

	notAnd, err := Filter(f, &physical.Unary{Op: "not", Arg: &physical.Binary{Op: "and", Left: a, Right: b}})
	require.NoError(t, err)
	assert.Equal(t, 1, notAnd.Len(), "not(false and null) is true")

	isNull, err := Filter(f, &physical.Unary{Op: "isnull", Arg: b})
	require.NoError(t, err)
	assert.Equal(t, 3, isNull.Len())

	_, err = Filter(f, &physical.Binary{Op: "==", Left: a, Right: &physical.Lit{Value: ir.IRInt(1)}})
	assert.Error(t, err, "bool compared with int")
}

func TestSortRows_NullsLast(t *testing.T) {
	f := mk(t, cols("k", "int64"), []any{nil}, []any{2}, []any{1})
	got, err := SortRows(f, []string{"k"})
	require.NoError(t, err)
	vals, _ := got.Column("k")
	assert.Equal(t, []ir.IRValue{ir.IRInt(1), ir.IRInt(2), ir.Null}, vals)
}

func TestNewAndFromRecords(t *testing.T) {
	s := cols("k", "string", "v", "int64")

	_, err := New(s, [][]ir.IRValue{{ir.IRString("a")}})
	assert.Error(t, err, "short row")
	_, err = New(s, [][]ir.IRValue{{ir.IRInt(1), ir.IRInt(1)}})
	assert.Error(t, err, "int in string column")

	f, err := FromRecords(s, []map[string]any{{"k": "a", "v": 1}, {"k": "b"}})
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"k": "a", "v": int64(1)}, {"k": "b", "v": nil}}, f.Records())

	_, err = FromRecords(s, []map[string]any{{"z": 1}})
	assert.Error(t, err)
	_, err = FromRecords(s, []map[string]any{{"v": 1.5}})
	assert.Error(t, err)
}

func TestExecutor(t *testing.T) {
	tables := map[string]*Frame{"l": leftFrame(t), "r": rightFrame(t)}
	root := &physical.Sort{
		Input: &physical.Select{
			Input: &physical.Merge{
				Left:     &physical.Scan{Table: "l", Columns: tables["l"].Schema()},
				Right:    &physical.Scan{Table: "r", Columns: tables["r"].Schema()},
				How:      physical.HowLeft,
				LeftOn:   []string{"key"},
				RightOn:  []string{"key"},
				Suffixes: schema.DefaultSuffixes,
			},
			Columns: []string{"key", "other_value"},
			As:      []string{"key", "other_value"},
		},
		Keys: []string{"key", "other_value"},
	}
	plan, err := physical.NewPlan(root, true)
	require.NoError(t, err)

	got, err := NewExecutor().Execute(context.Background(), plan, tables)
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{
		{"key": "a", "other_value": int64(10)},
		{"key": "b", "other_value": int64(20)},
		{"key": "b", "other_value": int64(30)},
		{"key": "c", "other_value": nil},
		{"key": "d", "other_value": nil},
	}, got.Records())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewExecutor().Execute(ctx, plan, tables)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = NewExecutor().Execute(context.Background(), plan, map[string]*Frame{"l": tables["l"]})
	assert.ErrorContains(t, err, `table "r" is not registered`)
}
