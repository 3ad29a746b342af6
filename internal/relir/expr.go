package relir

import (
	"fmt"
	"strings"

	"github.com/roach88/relplan/internal/ir"
)

// Expr is a scalar expression tree over a relation's columns.
//
// This is a sealed interface - only types in this package implement it.
//
// Expr types:
//   - ColumnRef: an unresolved reference (by name, side, or relation)
//   - BoundColumn: a reference resolved to one column of a schema
//   - Literal: a constant ir.IRValue
//   - BinaryOp: comparison, boolean or arithmetic operator
//   - UnaryOp: length, not, isnull
//
// Every Expr is also a Selection, so expressions can be projected directly.
type Expr interface {
	Selection
	exprNode() // Marker method - seals interface to this package
}

// Op is an expression operator.
type Op string

const (
	OpEq     Op = "=="
	OpNe     Op = "!="
	OpLt     Op = "<"
	OpLe     Op = "<="
	OpGt     Op = ">"
	OpGe     Op = ">="
	OpAnd    Op = "and"
	OpOr     Op = "or"
	OpAdd    Op = "+"
	OpSub    Op = "-"
	OpMul    Op = "*"
	OpLength Op = "length"
	OpNot    Op = "not"
	OpIsNull Op = "isnull"
)

// IsComparison reports whether op compares two values.
func (op Op) IsComparison() bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return true
	}
	return false
}

// IsLogical reports whether op combines booleans.
func (op Op) IsLogical() bool {
	return op == OpAnd || op == OpOr
}

// IsArithmetic reports whether op is an integer operator.
func (op Op) IsArithmetic() bool {
	return op == OpAdd || op == OpSub || op == OpMul
}

// ColumnRef is an unresolved column reference.
//
// Resolution rules:
//   - Node set: the column visible as Name in that relation (provenance)
//   - Side set: a column of that join operand called Name
//   - neither: any column called Name; ambiguous if more than one
type ColumnRef struct {
	Node NodeID
	Side Side
	Name string
}

// BoundColumn is a reference resolved against a specific schema.
// Index is the column position in that schema.
type BoundColumn struct {
	Index  int
	Column *Column
}

// Literal is a constant value.
type Literal struct {
	Value ir.IRValue
}

// BinaryOp applies Op to two operands.
type BinaryOp struct {
	Op    Op
	Left  Expr
	Right Expr
}

// UnaryOp applies Op to one operand.
type UnaryOp struct {
	Op  Op
	Arg Expr
}

func (*ColumnRef) exprNode()   {}
func (*BoundColumn) exprNode() {}
func (*Literal) exprNode()     {}
func (*BinaryOp) exprNode()    {}
func (*UnaryOp) exprNode()     {}

func (*ColumnRef) selectionNode()   {}
func (*BoundColumn) selectionNode() {}
func (*Literal) selectionNode()     {}
func (*BinaryOp) selectionNode()    {}
func (*UnaryOp) selectionNode()     {}

// Col references a column by bare name.
func Col(name string) *ColumnRef {
	return &ColumnRef{Name: name}
}

// LeftCol references a column of the left join operand.
func LeftCol(name string) *ColumnRef {
	return &ColumnRef{Side: SideLeft, Name: name}
}

// RightCol references a column of the right join operand.
func RightCol(name string) *ColumnRef {
	return &ColumnRef{Side: SideRight, Name: name}
}

// Lit wraps a Go value as a literal. Panics on values ir.FromAny rejects;
// use &Literal{} directly for values that are already IRValues.
func Lit(v any) *Literal {
	val, err := ir.FromAny(v)
	if err != nil {
		panic(fmt.Sprintf("relir.Lit: %v", err))
	}
	return &Literal{Value: val}
}

// Null is the null literal.
func Null() *Literal {
	return &Literal{Value: ir.Null}
}

func Eq(l, r Expr) *BinaryOp  { return &BinaryOp{Op: OpEq, Left: l, Right: r} }
func Ne(l, r Expr) *BinaryOp  { return &BinaryOp{Op: OpNe, Left: l, Right: r} }
func Lt(l, r Expr) *BinaryOp  { return &BinaryOp{Op: OpLt, Left: l, Right: r} }
func Le(l, r Expr) *BinaryOp  { return &BinaryOp{Op: OpLe, Left: l, Right: r} }
func Gt(l, r Expr) *BinaryOp  { return &BinaryOp{Op: OpGt, Left: l, Right: r} }
func Ge(l, r Expr) *BinaryOp  { return &BinaryOp{Op: OpGe, Left: l, Right: r} }
func Add(l, r Expr) *BinaryOp { return &BinaryOp{Op: OpAdd, Left: l, Right: r} }
func Sub(l, r Expr) *BinaryOp { return &BinaryOp{Op: OpSub, Left: l, Right: r} }
func Mul(l, r Expr) *BinaryOp { return &BinaryOp{Op: OpMul, Left: l, Right: r} }

// And folds exprs into a left-deep conjunction. And() of nothing is true.
func And(exprs ...Expr) Expr {
	return fold(OpAnd, ir.IRBool(true), exprs)
}

// Or folds exprs into a left-deep disjunction. Or() of nothing is false.
func Or(exprs ...Expr) Expr {
	return fold(OpOr, ir.IRBool(false), exprs)
}

func fold(op Op, empty ir.IRValue, exprs []Expr) Expr {
	if len(exprs) == 0 {
		return &Literal{Value: empty}
	}
	out := exprs[0]
	for _, e := range exprs[1:] {
		out = &BinaryOp{Op: op, Left: out, Right: e}
	}
	return out
}

func Length(e Expr) *UnaryOp { return &UnaryOp{Op: OpLength, Arg: e} }
func Not(e Expr) *UnaryOp    { return &UnaryOp{Op: OpNot, Arg: e} }
func IsNull(e Expr) *UnaryOp { return &UnaryOp{Op: OpIsNull, Arg: e} }

// Key is a join predicate on a column both operands share by name.
func Key(name string) *BinaryOp {
	return Eq(LeftCol(name), RightCol(name))
}

// KeyPair is a join predicate between differently named columns.
func KeyPair(left, right string) *BinaryOp {
	return Eq(LeftCol(left), RightCol(right))
}

// Keys expands names into shared-name join predicates.
func Keys(names ...string) []Expr {
	out := make([]Expr, len(names))
	for i, n := range names {
		out[i] = Key(n)
	}
	return out
}

// ExprString renders e in the infix form used by Explain and errors.
func ExprString(e Expr) string {
	switch x := e.(type) {
	case nil:
		return "<nil>"
	case *ColumnRef:
		switch {
		case x.Side == SideLeft || x.Side == SideRight:
			return x.Side.String() + "." + x.Name
		case x.Node != "":
			return "$" + shortID(x.Node) + "." + x.Name
		default:
			return x.Name
		}
	case *BoundColumn:
		return x.Column.Name
	case *Literal:
		return ir.String(x.Value)
	case *BinaryOp:
		return "(" + ExprString(x.Left) + " " + string(x.Op) + " " + ExprString(x.Right) + ")"
	case *UnaryOp:
		return string(x.Op) + "(" + ExprString(x.Arg) + ")"
	default:
		return fmt.Sprintf("%T", e)
	}
}

func shortID(id NodeID) string {
	s := string(id)
	if i := strings.LastIndexByte(s, '-'); i >= 0 && len(s)-i > 1 {
		return s[i+1:]
	}
	return s
}

// refs returns every ColumnRef and BoundColumn in e, in evaluation order.
func refs(e Expr) []Expr {
	var out []Expr
	var walk func(Expr)
	walk = func(e Expr) {
		switch x := e.(type) {
		case *ColumnRef, *BoundColumn:
			out = append(out, x)
		case *BinaryOp:
			walk(x.Left)
			walk(x.Right)
		case *UnaryOp:
			walk(x.Arg)
		}
	}
	walk(e)
	return out
}

// conjuncts flattens nested ands into their terms.
func conjuncts(e Expr) []Expr {
	if b, ok := e.(*BinaryOp); ok && b.Op == OpAnd {
		return append(conjuncts(b.Left), conjuncts(b.Right)...)
	}
	return []Expr{e}
}
