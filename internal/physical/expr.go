package physical

import (
	"fmt"

	"github.com/roach88/relplan/internal/ir"
)

// Expr is a scalar expression over the physical column names of a node's
// input frame.
//
// This is a sealed interface - only types in this package implement it.
type Expr interface {
	physicalExpr() // Marker method - seals interface to this package
}

// Col reads a column.
type Col struct {
	Name string
}

// Lit is a constant.
type Lit struct {
	Value ir.IRValue
}

// Binary applies Op ("==", "!=", "<", "<=", ">", ">=", "and", "or", "+",
// "-", "*") to two operands. Comparisons involving null are null; "and"
// and "or" use three-valued logic.
type Binary struct {
	Op    string
	Left  Expr
	Right Expr
}

// Unary applies Op ("length", "not", "isnull") to one operand.
type Unary struct {
	Op  string
	Arg Expr
}

func (*Col) physicalExpr()    {}
func (*Lit) physicalExpr()    {}
func (*Binary) physicalExpr() {}
func (*Unary) physicalExpr()  {}

// ExprString renders e for Explain.
func ExprString(e Expr) string {
	switch x := e.(type) {
	case *Col:
		return "col(" + x.Name + ")"
	case *Lit:
		return ir.String(x.Value)
	case *Binary:
		return "(" + ExprString(x.Left) + " " + x.Op + " " + ExprString(x.Right) + ")"
	case *Unary:
		return x.Op + "(" + ExprString(x.Arg) + ")"
	case nil:
		return "<nil>"
	}
	return fmt.Sprintf("%T", e)
}

// ExprColumns returns the distinct column names e reads.
func ExprColumns(e Expr) []string {
	var out []string
	seen := make(map[string]bool)
	var walk func(Expr)
	walk = func(e Expr) {
		switch x := e.(type) {
		case *Col:
			if !seen[x.Name] {
				seen[x.Name] = true
				out = append(out, x.Name)
			}
		case *Binary:
			walk(x.Left)
			walk(x.Right)
		case *Unary:
			walk(x.Arg)
		}
	}
	walk(e)
	return out
}

func encodeExpr(e Expr) any {
	switch x := e.(type) {
	case *Col:
		return map[string]any{"col": x.Name}
	case *Lit:
		v := x.Value
		if v == nil {
			v = ir.Null
		}
		return map[string]any{"lit": v}
	case *Binary:
		return map[string]any{"op": x.Op, "left": encodeExpr(x.Left), "right": encodeExpr(x.Right)}
	case *Unary:
		return map[string]any{"op": x.Op, "arg": encodeExpr(x.Arg)}
	}
	return nil
}
