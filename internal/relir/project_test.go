package relir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relplan/internal/schema"
)

func TestNewProject_WholeRelationWithColumns(t *testing.T) {
	for _, kind := range joinKinds {
		t.Run(string(kind), func(t *testing.T) {
			left, right := df1(), df2()
			j, err := NewJoin(left, right, kind, Keys("key"))
			require.NoError(t, err)

			p, err := NewProject(j, left, right.Col("other_value"), right.Col("key3"))
			require.NoError(t, err)
			assert.Equal(t, []string{"key", "value", "key2", "other_value", "key3"}, p.Schema().Names())
		})
	}
}

func TestNewProject_BothRelationsDedupeMergedKey(t *testing.T) {
	left, right := df1(), df2()
	j, err := NewJoin(left, right, Inner, Keys("key"))
	require.NoError(t, err)

	p, err := NewProject(j, left, right)
	require.NoError(t, err)
	assert.Equal(t, []string{"key", "value", "key2", "other_value", "key3"}, p.Schema().Names())

	p, err = NewProject(j, j)
	require.NoError(t, err)
	assert.Equal(t, j.Schema().Names(), p.Schema().Names())
}

func TestNewProject_DuplicateColumnRequiresChoice(t *testing.T) {
	left, right := df1(), df3()
	j, err := NewJoin(left, right, Inner, Keys("key"))
	require.NoError(t, err)

	// Selecting one side's version is fine.
	p, err := NewProject(j, left.Col("key"), right.Col("key2"), right.Col("other_value"))
	require.NoError(t, err)
	assert.Equal(t, []string{"key", "key2", "other_value"}, p.Schema().Names())
	assert.True(t, p.Schema().Column(1).From(right.ID(), "key2"))

	// A bare name matching both versions is ambiguous.
	_, err = NewProject(j, Col("key"), Col("key2"))
	assert.ErrorIs(t, err, ErrAmbiguousColumn)

	// Bringing both versions under one name is rejected.
	_, err = NewProject(j, left, right)
	assert.ErrorIs(t, err, ErrUndefinedDuplicateColumn)

	// Renaming one of them resolves it.
	p, err = NewProject(j, left, As(right.Col("key2"), "key2_df3"))
	require.NoError(t, err)
	assert.Equal(t, []string{"key", "value", "key2", "key2_df3"}, p.Schema().Names())
}

func TestNewProject_SelectionSyntaxesAgree(t *testing.T) {
	a := MustTable("a", schema.MustNew(
		schema.Column{Name: "a0", Type: schema.Int64},
		schema.Column{Name: "b", Type: schema.String},
	))
	b := MustTable("b", schema.MustNew(
		schema.Column{Name: "a1", Type: schema.Int64},
		schema.Column{Name: "b", Type: schema.String},
	))
	j, err := NewJoin(a, b, Inner, Keys("b"))
	require.NoError(t, err)

	byNames, err := SelectNames(j, "a0", "a1")
	require.NoError(t, err)
	byRefs, err := NewProject(j, Col("a0"), Col("a1"))
	require.NoError(t, err)
	byRelation, err := NewProject(j, a.Col("a0"), b.Col("a1"))
	require.NoError(t, err)

	for _, p := range []*Project{byRefs, byRelation} {
		assert.Equal(t, byNames.Schema().Names(), p.Schema().Names())
		require.Len(t, p.Items, 2)
		for i := range p.Items {
			assert.True(t, sameBinding(byNames.Items[i].Expr, p.Items[i].Expr))
		}
	}
}

func TestNewProject_SameColumnTwiceIsKeptOnce(t *testing.T) {
	left := df1()
	p, err := NewProject(left, Col("value"), left.Col("value"), Col("key"))
	require.NoError(t, err)
	assert.Equal(t, []string{"value", "key"}, p.Schema().Names())
}

func TestNewProject_ComputedColumns(t *testing.T) {
	left := df1()

	_, err := NewProject(left, Add(Col("value"), Lit(1)))
	assert.ErrorIs(t, err, ErrInvalidPlan, "computed columns need a name")

	p, err := NewProject(left, Col("key"), As(Add(Col("value"), Lit(1)), "value_plus_one"), As(Length(Col("key")), "key_len"))
	require.NoError(t, err)
	assert.Equal(t, []string{"key", "value_plus_one", "key_len"}, p.Schema().Names())
	assert.Equal(t, schema.Schema{
		{Name: "key", Type: schema.String},
		{Name: "value_plus_one", Type: schema.Int64},
		{Name: "key_len", Type: schema.Int64},
	}, p.Schema().Physical())

	_, err = NewProject(left, Col("key"), As(Lit(1), "key"))
	assert.ErrorIs(t, err, ErrUndefinedDuplicateColumn)

	_, err = NewProject(left, As(Add(Col("key"), Lit(1)), "bad"))
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestNewProject_Errors(t *testing.T) {
	left, right := df1(), df2()

	_, err := NewProject(left)
	assert.ErrorIs(t, err, ErrInvalidPlan)

	_, err = NewProject(left, Col("missing"))
	assert.ErrorIs(t, err, ErrUnresolvableReference)

	_, err = NewProject(left, right)
	assert.ErrorIs(t, err, ErrUnresolvableReference, "a relation not under the input")

	var pe *PlanError
	_, err = NewProject(left, Col("missing"))
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "select", pe.Op)
	assert.Equal(t, "missing", pe.Column)
}

func TestNewFilter_ResolvesAgainstCurrentSchema(t *testing.T) {
	left, right := df1(), df2()
	j, err := NewJoin(left, right, Inner, Keys("key"))
	require.NoError(t, err)
	p, err := NewProject(j, left.Col("key"), left.Col("value"), right.Col("other_value"))
	require.NoError(t, err)

	f, err := NewFilter(p, Eq(Col("other_value"), Lit(4)))
	require.NoError(t, err)
	assert.Equal(t, p.Schema().Names(), f.Schema().Names())

	// Columns dropped by the projection are gone.
	_, err = NewFilter(p, Eq(Col("key2"), Lit("a")))
	assert.ErrorIs(t, err, ErrUnresolvableReference)
	_, err = NewFilter(p, Eq(right.Col("key3"), Lit("a")))
	assert.ErrorIs(t, err, ErrUnresolvableReference)

	// Relation-qualified references still resolve through the projection.
	f, err = NewFilter(p, Gt(right.Col("other_value"), left.Col("value")))
	require.NoError(t, err)
	assert.Equal(t, "(other_value > value)", ExprString(f.Predicate))
}

func TestNewFilter_RequiresBoolean(t *testing.T) {
	left := df1()

	_, err := NewFilter(left, Col("value"))
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = NewFilter(left, And(Eq(Col("key"), Lit("a")), Col("value")))
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = NewFilter(left, Eq(Col("key"), Lit(1)))
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = NewFilter(left, And(IsNull(Col("key2")), Not(Eq(Col("value"), Lit(3)))))
	assert.NoError(t, err)
}

func TestFilter_KeepsSuffixAmbiguity(t *testing.T) {
	left, right := df1(), df3()
	j, err := NewJoin(left, right, Inner, Keys("key"))
	require.NoError(t, err)
	f, err := NewFilter(j, Eq(Col("value"), Lit(1)))
	require.NoError(t, err)

	_, err = Resolve(Col("key2"), f.Schema())
	assert.ErrorIs(t, err, ErrAmbiguousColumn)
}

func TestNewMutate(t *testing.T) {
	left := df1()

	m, err := NewMutate(left, Set("value", Mul(Col("value"), Lit(2))), Set("key_len", Length(Col("key"))))
	require.NoError(t, err)
	assert.Equal(t, []string{"key", "value", "key2", "key_len"}, m.Schema().Names())

	// The replaced column is a new column; the old one is no longer visible.
	_, err = Resolve(left.Col("value"), m.Schema())
	assert.ErrorIs(t, err, ErrUnresolvableReference)
	_, err = Resolve(left.Col("key2"), m.Schema())
	assert.NoError(t, err)

	_, err = NewMutate(left, Set("a", Lit(1)), Set("a", Lit(2)))
	assert.ErrorIs(t, err, ErrUndefinedDuplicateColumn)
	_, err = NewMutate(left)
	assert.ErrorIs(t, err, ErrInvalidPlan)
}

func TestNewRename(t *testing.T) {
	left := df1()

	r, err := NewRename(left, map[string]string{"value2": "value"})
	require.NoError(t, err)
	assert.Equal(t, []string{"key", "value2", "key2"}, r.Schema().Names())
	assert.Equal(t, []RenamePair{{From: "value", To: "value2"}}, r.Pairs)

	bound, err := Resolve(left.Col("value"), r.Schema())
	require.NoError(t, err)
	assert.Equal(t, "value2", bound.(*BoundColumn).Column.Name)

	_, err = NewRename(left, map[string]string{"x": "missing"})
	assert.ErrorIs(t, err, ErrUnresolvableReference)
	_, err = NewRename(left, map[string]string{"key": "value"})
	assert.ErrorIs(t, err, ErrUndefinedDuplicateColumn)
}

func TestResolve_Idempotent(t *testing.T) {
	left, right := df1(), df2()
	j, err := NewJoin(left, right, LeftJoin, Keys("key"))
	require.NoError(t, err)

	first, err := Resolve(Col("other_value"), j.Schema())
	require.NoError(t, err)
	second, err := Resolve(first, j.Schema())
	require.NoError(t, err)
	assert.Same(t, first, second)

	third, err := Resolve(second, j.Schema())
	require.NoError(t, err)
	assert.Same(t, first, third)

	// A binding made against an input carries to the output by provenance.
	f, err := NewFilter(j, Eq(Col("value"), Lit(1)))
	require.NoError(t, err)
	carried, err := Resolve(first, f.Schema())
	require.NoError(t, err)
	assert.Equal(t, first.(*BoundColumn).Index, carried.(*BoundColumn).Index)
	assert.Same(t, f.Schema().Column(3), carried.(*BoundColumn).Column)
}

func TestValidate_ChainedPlan(t *testing.T) {
	left, right := df1(), df2()
	lhs, err := SelectNames(left, "key", "key2")
	require.NoError(t, err)
	rhs, err := SelectNames(left, "key2", "value")
	require.NoError(t, err)

	joined, err := NewJoin(lhs, rhs, Inner, Keys("key2"))
	require.NoError(t, err)
	projected, err := NewProject(joined, lhs, rhs.Col("value"))
	require.NoError(t, err)
	filtered, err := NewFilter(projected, Eq(projected.Col("value"), Lit(4)))
	require.NoError(t, err)

	renamed, err := NewRename(right, map[string]string{"value2": "other_value"})
	require.NoError(t, err)
	joined2, err := NewJoin(filtered, renamed, Inner, Keys("key"))
	require.NoError(t, err)
	projected2, err := NewProject(joined2, filtered.Col("key"), renamed.Col("value2"))
	require.NoError(t, err)
	final, err := NewFilter(projected2, Eq(Col("value2"), Lit(1)))
	require.NoError(t, err)

	assert.Equal(t, []string{"key", "key2", "value"}, projected.Schema().Names())
	assert.Equal(t, []string{"key", "value2"}, final.Schema().Names())
	require.NoError(t, Validate(final))

	tables, err := Tables(final)
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, "df1", tables[0].Name)
	assert.Equal(t, "df2", tables[1].Name)
}

func TestExplain(t *testing.T) {
	left, right := df1(), df2()
	j, err := NewJoin(left, right, Outer, Keys("key"))
	require.NoError(t, err)
	p, err := NewProject(j, left, As(right.Col("other_value"), "ov"))
	require.NoError(t, err)
	f, err := NewFilter(p, Gt(Col("ov"), Lit(2)))
	require.NoError(t, err)

	want := "Filter (ov > 2)\n" +
		"  Project [key, value, key2, ov=other_value]\n" +
		"    Join outer on [key == key] -> [key:string, value:int64, key2:string, other_value:int64, key3:string]\n" +
		"      Table df1 [key:string, value:int64, key2:string]\n" +
		"      Table df2 [key:string, other_value:int64, key3:string]\n"
	assert.Equal(t, want, Explain(f))
}
