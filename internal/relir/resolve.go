package relir

import (
	"strings"

	"github.com/roach88/relplan/internal/ir"
	"github.com/roach88/relplan/internal/schema"
)

// Resolve binds every column reference in e against s.
//
// Resolution is idempotent: resolving an expression that is already bound
// to s returns the same bindings, and a binding made against an input
// schema is carried to s through provenance.
func Resolve(e Expr, s *Schema) (Expr, error) {
	return resolveExpr(e, s, true)
}

// resolveExpr binds e against s. When useSide is false, side qualifiers on
// references are ignored (used when binding a join predicate operand
// against one input, where the qualifier already chose the input).
func resolveExpr(e Expr, s *Schema, useSide bool) (Expr, error) {
	switch x := e.(type) {
	case nil:
		return nil, planErrorf(CodeInvalidPlan, "resolve", "", "nil expression")
	case *ColumnRef:
		idx, err := resolveRef(x, s, useSide)
		if err != nil {
			return nil, err
		}
		return &BoundColumn{Index: idx, Column: s.Column(idx)}, nil
	case *BoundColumn:
		return rebind(x, s)
	case *Literal:
		if x.Value == nil {
			return &Literal{Value: ir.Null}, nil
		}
		return x, nil
	case *BinaryOp:
		l, err := resolveExpr(x.Left, s, useSide)
		if err != nil {
			return nil, err
		}
		r, err := resolveExpr(x.Right, s, useSide)
		if err != nil {
			return nil, err
		}
		return &BinaryOp{Op: x.Op, Left: l, Right: r}, nil
	case *UnaryOp:
		arg, err := resolveExpr(x.Arg, s, useSide)
		if err != nil {
			return nil, err
		}
		return &UnaryOp{Op: x.Op, Arg: arg}, nil
	default:
		return nil, planErrorf(CodeInvalidPlan, "resolve", "", "unsupported expression type %T", e)
	}
}

// resolveRef returns the schema position a reference binds to.
func resolveRef(ref *ColumnRef, s *Schema, useSide bool) (int, error) {
	var cands []int
	if ref.Node != "" {
		cands = s.byOrigin(ref.Node, ref.Name)
	} else {
		side := ref.Side
		if !useSide {
			side = SideNone
		}
		cands = s.byName(ref.Name, side)
	}

	switch len(cands) {
	case 1:
		return cands[0], nil
	case 0:
		return -1, planErrorf(CodeUnresolvableReference, "resolve", ExprString(ref),
			"column not found among [%s]", strings.Join(s.Names(), ", "))
	default:
		names := make([]string, len(cands))
		for i, c := range cands {
			col := s.Column(c)
			names[i] = col.Name + "@" + col.Side.String()
		}
		return -1, planErrorf(CodeAmbiguousColumn, "resolve", ExprString(ref),
			"reference matches %d columns [%s]; qualify it with a relation or side", len(cands), strings.Join(names, ", "))
	}
}

// rebind carries a bound column to schema s.
func rebind(b *BoundColumn, s *Schema) (*BoundColumn, error) {
	if b.Index >= 0 && b.Index < s.Len() && s.Column(b.Index) == b.Column {
		return b, nil
	}
	if i := s.indexOfColumn(b.Column); i >= 0 {
		return &BoundColumn{Index: i, Column: b.Column}, nil
	}
	if len(b.Column.Origins) == 0 {
		return nil, planErrorf(CodeUnresolvableReference, "resolve", b.Column.Name, "column has no provenance")
	}
	last := b.Column.Origins[len(b.Column.Origins)-1]
	idx, err := resolveRef(&ColumnRef{Node: last.Node, Name: last.Name}, s, false)
	if err != nil {
		return nil, err
	}
	return &BoundColumn{Index: idx, Column: s.Column(idx)}, nil
}

// TypeOf infers the type of a bound expression.
func TypeOf(e Expr) (schema.DType, error) {
	return typeOf(e)
}

func typeOf(e Expr) (schema.DType, error) {
	switch x := e.(type) {
	case *BoundColumn:
		return x.Column.Type, nil
	case *Literal:
		switch ir.KindOf(x.Value) {
		case ir.KindString:
			return schema.String, nil
		case ir.KindInt:
			return schema.Int64, nil
		case ir.KindBool:
			return schema.Bool, nil
		default:
			return schema.Unknown, nil
		}
	case *BinaryOp:
		lt, err := typeOf(x.Left)
		if err != nil {
			return "", err
		}
		rt, err := typeOf(x.Right)
		if err != nil {
			return "", err
		}
		switch {
		case x.Op.IsComparison():
			if !comparable(lt, rt) {
				return "", typeMismatch(x, "cannot compare %s with %s", lt, rt)
			}
			return schema.Bool, nil
		case x.Op.IsLogical():
			if !isBool(lt) || !isBool(rt) {
				return "", typeMismatch(x, "%s requires boolean operands, got %s and %s", x.Op, lt, rt)
			}
			return schema.Bool, nil
		case x.Op.IsArithmetic():
			if !isNumeric(lt) || !isNumeric(rt) {
				return "", typeMismatch(x, "%s requires integer operands, got %s and %s", x.Op, lt, rt)
			}
			if (lt == schema.Timestamp) != (rt == schema.Timestamp) && x.Op != OpMul {
				return schema.Timestamp, nil
			}
			return schema.Int64, nil
		}
	case *UnaryOp:
		at, err := typeOf(x.Arg)
		if err != nil {
			return "", err
		}
		switch x.Op {
		case OpLength:
			if at != schema.String && at != schema.Unknown {
				return "", typeMismatch(x, "length requires a string, got %s", at)
			}
			return schema.Int64, nil
		case OpNot:
			if !isBool(at) {
				return "", typeMismatch(x, "not requires a boolean, got %s", at)
			}
			return schema.Bool, nil
		case OpIsNull:
			return schema.Bool, nil
		}
	case *ColumnRef:
		return "", planErrorf(CodeInvalidPlan, "typecheck", x.Name, "unresolved column reference")
	}
	return "", planErrorf(CodeInvalidPlan, "typecheck", ExprString(e), "unsupported operator")
}

func typeMismatch(e Expr, format string, args ...any) *PlanError {
	return planErrorf(CodeTypeMismatch, "typecheck", ExprString(e), format, args...)
}

func isBool(t schema.DType) bool {
	return t == schema.Bool || t == schema.Unknown
}

func isNumeric(t schema.DType) bool {
	return t == schema.Int64 || t == schema.Timestamp || t == schema.Unknown
}

func comparable(a, b schema.DType) bool {
	if a == b || a == schema.Unknown || b == schema.Unknown {
		return true
	}
	return isNumeric(a) && isNumeric(b)
}
