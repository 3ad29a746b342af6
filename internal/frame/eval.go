package frame

import (
	"fmt"
	"unicode/utf8"

	"github.com/roach88/relplan/internal/ir"
	"github.com/roach88/relplan/internal/physical"
	"github.com/roach88/relplan/internal/schema"
)

// evalFunc evaluates a compiled expression against one row.
type evalFunc func(row []ir.IRValue) (ir.IRValue, error)

// compileExpr resolves column names against s once, so evaluation per row
// is a closure call.
func compileExpr(e physical.Expr, s schema.Schema) (evalFunc, error) {
	switch x := e.(type) {
	case *physical.Col:
		j := s.Index(x.Name)
		if j < 0 {
			return nil, fmt.Errorf("column %q not in [%s]", x.Name, s)
		}
		return func(row []ir.IRValue) (ir.IRValue, error) { return row[j], nil }, nil
	case *physical.Lit:
		v := x.Value
		if v == nil {
			v = ir.Null
		}
		return func([]ir.IRValue) (ir.IRValue, error) { return v, nil }, nil
	case *physical.Binary:
		l, err := compileExpr(x.Left, s)
		if err != nil {
			return nil, err
		}
		r, err := compileExpr(x.Right, s)
		if err != nil {
			return nil, err
		}
		op, err := binaryOp(x.Op)
		if err != nil {
			return nil, err
		}
		return func(row []ir.IRValue) (ir.IRValue, error) {
			a, err := l(row)
			if err != nil {
				return nil, err
			}
			b, err := r(row)
			if err != nil {
				return nil, err
			}
			return op(a, b)
		}, nil
	case *physical.Unary:
		arg, err := compileExpr(x.Arg, s)
		if err != nil {
			return nil, err
		}
		op, err := unaryOp(x.Op)
		if err != nil {
			return nil, err
		}
		return func(row []ir.IRValue) (ir.IRValue, error) {
			v, err := arg(row)
			if err != nil {
				return nil, err
			}
			return op(v)
		}, nil
	default:
		return nil, fmt.Errorf("unsupported expression %T", e)
	}
}

// Eval evaluates e against every row of f.
func Eval(f *Frame, e physical.Expr) ([]ir.IRValue, error) {
	fn, err := compileExpr(e, f.schema)
	if err != nil {
		return nil, err
	}
	out := make([]ir.IRValue, len(f.rows))
	for i, row := range f.rows {
		v, err := fn(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func binaryOp(op string) (func(a, b ir.IRValue) (ir.IRValue, error), error) {
	switch op {
	case "==", "!=", "<", "<=", ">", ">=":
		return func(a, b ir.IRValue) (ir.IRValue, error) {
			if ir.IsNull(a) || ir.IsNull(b) {
				return ir.Null, nil
			}
			if ir.KindOf(a) != ir.KindOf(b) {
				return nil, fmt.Errorf("cannot compare %s with %s", ir.KindOf(a), ir.KindOf(b))
			}
			c := ir.Compare(a, b)
			var res bool
			switch op {
			case "==":
				res = c == 0
			case "!=":
				res = c != 0
			case "<":
				res = c < 0
			case "<=":
				res = c <= 0
			case ">":
				res = c > 0
			case ">=":
				res = c >= 0
			}
			return ir.IRBool(res), nil
		}, nil
	case "and":
		return func(a, b ir.IRValue) (ir.IRValue, error) {
			x, xok, err := asBool(a)
			if err != nil {
				return nil, err
			}
			y, yok, err := asBool(b)
			if err != nil {
				return nil, err
			}
			switch {
			case (xok && !x) || (yok && !y):
				return ir.IRBool(false), nil
			case !xok || !yok:
				return ir.Null, nil
			}
			return ir.IRBool(true), nil
		}, nil
	case "or":
		return func(a, b ir.IRValue) (ir.IRValue, error) {
			x, xok, err := asBool(a)
			if err != nil {
				return nil, err
			}
			y, yok, err := asBool(b)
			if err != nil {
				return nil, err
			}
			switch {
			case (xok && x) || (yok && y):
				return ir.IRBool(true), nil
			case !xok || !yok:
				return ir.Null, nil
			}
			return ir.IRBool(false), nil
		}, nil
	case "+", "-", "*":
		return func(a, b ir.IRValue) (ir.IRValue, error) {
			if ir.IsNull(a) || ir.IsNull(b) {
				return ir.Null, nil
			}
			x, xok := a.(ir.IRInt)
			y, yok := b.(ir.IRInt)
			if !xok || !yok {
				return nil, fmt.Errorf("%s needs integers, got %s and %s", op, ir.KindOf(a), ir.KindOf(b))
			}
			switch op {
			case "+":
				return x + y, nil
			case "-":
				return x - y, nil
			}
			return x * y, nil
		}, nil
	}
	return nil, fmt.Errorf("unsupported operator %q", op)
}

func unaryOp(op string) (func(v ir.IRValue) (ir.IRValue, error), error) {
	switch op {
	case "length":
		return func(v ir.IRValue) (ir.IRValue, error) {
			if ir.IsNull(v) {
				return ir.Null, nil
			}
			s, ok := v.(ir.IRString)
			if !ok {
				return nil, fmt.Errorf("length needs a string, got %s", ir.KindOf(v))
			}
			return ir.IRInt(utf8.RuneCountInString(string(s))), nil
		}, nil
	case "not":
		return func(v ir.IRValue) (ir.IRValue, error) {
			b, ok, err := asBool(v)
			if err != nil || !ok {
				return ir.Null, err
			}
			return ir.IRBool(!b), nil
		}, nil
	case "isnull":
		return func(v ir.IRValue) (ir.IRValue, error) {
			return ir.IRBool(ir.IsNull(v)), nil
		}, nil
	}
	return nil, fmt.Errorf("unsupported operator %q", op)
}

// asBool returns (value, present, error); present is false for null.
func asBool(v ir.IRValue) (bool, bool, error) {
	if ir.IsNull(v) {
		return false, false, nil
	}
	b, ok := v.(ir.IRBool)
	if !ok {
		return false, false, fmt.Errorf("expected bool, got %s", ir.KindOf(v))
	}
	return bool(b), true, nil
}
