package relir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relplan/internal/ir"
	"github.com/roach88/relplan/internal/schema"
)

func TestExprString(t *testing.T) {
	tests := []struct {
		expr Expr
		want string
	}{
		{Col("a"), "a"},
		{LeftCol("a"), "left.a"},
		{RightCol("b"), "right.b"},
		{Lit("x"), `"x"`},
		{Null(), "null"},
		{Eq(LeftCol("k"), RightCol("k")), "(left.k == right.k)"},
		{And(Eq(Col("a"), Lit(1)), Not(IsNull(Col("b")))), "((a == 1) and not(isnull(b)))"},
		{Length(Col("s")), "length(s)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExprString(tt.expr))
	}
}

func TestAndOrFold(t *testing.T) {
	assert.Equal(t, &Literal{Value: ir.IRBool(true)}, And())
	assert.Equal(t, &Literal{Value: ir.IRBool(false)}, Or())

	a, b, c := Col("a"), Col("b"), Col("c")
	e := And(a, b, c)
	assert.Equal(t, []Expr{a, b, c}, conjuncts(e))
	assert.Equal(t, []Expr{a, b, c}, refs(e))
}

func TestLit_PanicsOnFloat(t *testing.T) {
	assert.Panics(t, func() { Lit(1.5) })
	assert.Equal(t, ir.IRInt(2), Lit(2.0).Value)
}

func TestNewTable_Errors(t *testing.T) {
	_, err := NewTable("", schema.Schema{{Name: "a", Type: schema.Int64}})
	assert.ErrorIs(t, err, ErrInvalidPlan)

	_, err = NewTable("t", nil)
	assert.ErrorIs(t, err, ErrInvalidPlan)

	_, err = NewTable("t", schema.Schema{{Name: "a", Type: schema.Int64}, {Name: "a", Type: schema.String}})
	assert.ErrorIs(t, err, ErrUndefinedDuplicateColumn)
}

func TestNodeIDsAreUnique(t *testing.T) {
	a := df1()
	b := df1()
	assert.NotEqual(t, a.ID(), b.ID())

	v, err := NewView(a)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), v.ID())
	assert.Equal(t, a.Schema().Names(), v.Schema().Names())

	_, err = Resolve(a.Col("key"), v.Schema())
	assert.ErrorIs(t, err, ErrUnresolvableReference)
}

func TestPlanError_Format(t *testing.T) {
	err := planErrorf(CodeAmbiguousColumn, "select", "key2", "matches %d columns", 2)
	assert.Equal(t, "AMBIGUOUS_COLUMN_REFERENCE: select: matches 2 columns (key2)", err.Error())
	assert.ErrorIs(t, err, ErrAmbiguousColumn)
	assert.NotErrorIs(t, err, ErrInvalidJoinPredicate)
	assert.Equal(t, CodeAmbiguousColumn, CodeOf(err))
	assert.Equal(t, ErrorCode(""), CodeOf(assert.AnError))
}
