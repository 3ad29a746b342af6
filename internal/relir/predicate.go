package relir

import (
	"errors"
)

// JoinKey is one normalized equality predicate. Left is bound against the
// left operand's schema and Right against the right operand's, regardless
// of the order the operands were written in.
type JoinKey struct {
	Left  Expr
	Right Expr
}

// Plain returns the two key columns when both sides are bare columns.
func (k JoinKey) Plain() (left, right *BoundColumn, ok bool) {
	l, lok := k.Left.(*BoundColumn)
	r, rok := k.Right.(*BoundColumn)
	if !lok || !rok {
		return nil, nil, false
	}
	return l, r, true
}

// String renders the key as "left == right".
func (k JoinKey) String() string {
	return ExprString(k.Left) + " == " + ExprString(k.Right)
}

// ResolvePredicates validates and normalizes join predicates.
//
// Every predicate is flattened into its "and" terms. Each term must be an
// equality whose operands each reference columns of exactly one operand.
// Operands are swapped as needed, so l.k == r.k and r.k == l.k produce
// identical keys. Operands may be expressions (length(l.k) == length(r.k)).
//
// ResolvePredicates is a pure function with no side effects.
func ResolvePredicates(left, right Relation, preds []Expr) ([]JoinKey, error) {
	if left == nil || right == nil {
		return nil, planErrorf(CodeInvalidPlan, "join", "", "join operands must not be nil")
	}

	var keys []JoinKey
	for _, p := range preds {
		if p == nil {
			return nil, planErrorf(CodeInvalidJoinPredicate, "join", "", "nil predicate")
		}
		for _, term := range conjuncts(p) {
			k, err := resolveJoinTerm(left.Schema(), right.Schema(), term)
			if err != nil {
				return nil, withOp(err, "join")
			}
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, planErrorf(CodeInvalidJoinPredicate, "join", "", "at least one equality predicate is required")
	}
	return keys, nil
}

func resolveJoinTerm(ls, rs *Schema, term Expr) (JoinKey, error) {
	bin, ok := term.(*BinaryOp)
	if !ok {
		return JoinKey{}, planErrorf(CodeInvalidJoinPredicate, "join", ExprString(term),
			"join predicate must be an equality comparison")
	}
	if bin.Op != OpEq {
		if bin.Op.IsComparison() {
			return JoinKey{}, planErrorf(CodeInvalidJoinPredicate, "join", ExprString(term),
				"only equality (==) join predicates are supported, got %s", bin.Op)
		}
		return JoinKey{}, planErrorf(CodeInvalidJoinPredicate, "join", ExprString(term),
			"operator %s is not allowed in a join predicate", bin.Op)
	}

	sa, ea, err := bindOperand(ls, rs, bin.Left)
	if err != nil {
		return JoinKey{}, err
	}
	sb, eb, err := bindOperand(ls, rs, bin.Right)
	if err != nil {
		return JoinKey{}, err
	}

	var key JoinKey
	switch {
	case sa == SideLeft && sb == SideRight:
		key = JoinKey{Left: ea, Right: eb}
	case sa == SideRight && sb == SideLeft:
		key = JoinKey{Left: eb, Right: ea}
	default:
		return JoinKey{}, planErrorf(CodeInvalidJoinPredicate, "join", ExprString(term),
			"both operands bind to the %s side", sa)
	}

	lt, err := typeOf(key.Left)
	if err != nil {
		return JoinKey{}, err
	}
	rt, err := typeOf(key.Right)
	if err != nil {
		return JoinKey{}, err
	}
	if !comparable(lt, rt) {
		return JoinKey{}, planErrorf(CodeTypeMismatch, "join", key.String(), "cannot join %s with %s", lt, rt)
	}
	return key, nil
}

// bindOperand decides which side an operand belongs to and binds it there.
func bindOperand(ls, rs *Schema, e Expr) (Side, Expr, error) {
	rr := refs(e)
	if len(rr) == 0 {
		return SideNone, nil, planErrorf(CodeInvalidJoinPredicate, "join", ExprString(e),
			"operand references no column")
	}

	onLeft, onRight := true, true
	for _, r := range rr {
		okL, errL := refResolves(r, ls, SideLeft)
		okR, errR := refResolves(r, rs, SideRight)
		if !okL && !okR {
			return SideNone, nil, pickResolveError(r, errL, errR)
		}
		onLeft = onLeft && okL
		onRight = onRight && okR
	}

	var side Side
	var s *Schema
	switch {
	case onLeft && onRight:
		return SideNone, nil, planErrorf(CodeAmbiguousColumn, "join", ExprString(e),
			"operand resolves on both join sides; qualify it with a relation or side")
	case onLeft:
		side, s = SideLeft, ls
	case onRight:
		side, s = SideRight, rs
	default:
		return SideNone, nil, planErrorf(CodeInvalidJoinPredicate, "join", ExprString(e),
			"operand mixes columns from both join sides")
	}

	bound, err := resolveExpr(e, s, false)
	if err != nil {
		return SideNone, nil, err
	}
	return side, bound, nil
}

// refResolves reports whether a reference binds to exactly one column of
// the operand schema s on the given side.
func refResolves(r Expr, s *Schema, side Side) (bool, error) {
	switch x := r.(type) {
	case *ColumnRef:
		if x.Side != SideNone && x.Side != SideBoth && x.Side != side {
			return false, planErrorf(CodeUnresolvableReference, "join", ExprString(x),
				"reference is qualified for the %s side", x.Side)
		}
		_, err := resolveRef(&ColumnRef{Node: x.Node, Name: x.Name}, s, false)
		return err == nil, err
	case *BoundColumn:
		_, err := rebind(x, s)
		return err == nil, err
	}
	return false, planErrorf(CodeInvalidPlan, "join", ExprString(r), "not a column reference")
}

// pickResolveError prefers an ambiguity over a miss, so the caller hears
// about the more specific problem.
func pickResolveError(r Expr, errL, errR error) error {
	for _, err := range []error{errL, errR} {
		if errors.Is(err, ErrAmbiguousColumn) {
			return err
		}
	}
	return planErrorf(CodeUnresolvableReference, "join", ExprString(r), "column not found on either join side")
}
