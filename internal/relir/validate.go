package relir

import "github.com/roach88/relplan/internal/ir"

// Walk calls fn for rel and every relation below it, inputs before the
// node that consumes them. A relation reachable along several paths is
// visited once. Walk stops at the first error fn returns.
func Walk(rel Relation, fn func(Relation) error) error {
	seen := make(map[NodeID]bool)
	var visit func(Relation) error
	visit = func(r Relation) error {
		if r == nil {
			return planErrorf(CodeInvalidPlan, "walk", "", "nil relation")
		}
		if seen[r.ID()] {
			return nil
		}
		seen[r.ID()] = true
		for _, in := range r.Inputs() {
			if err := visit(in); err != nil {
				return err
			}
		}
		return fn(r)
	}
	return visit(rel)
}

// Tables returns the distinct base tables under rel in first-visit order.
func Tables(rel Relation) ([]*Table, error) {
	var out []*Table
	err := Walk(rel, func(r Relation) error {
		if t, ok := r.(*Table); ok {
			out = append(out, t)
		}
		return nil
	})
	return out, err
}

// Validate re-checks a relation tree before it is lowered.
//
// Every join's predicates are resolved again against its operands (the
// equality-only pass), and every bound expression is re-resolved against
// its input schema, which must reproduce the same bindings. Validate
// returns the first error found.
//
// Validate is a pure function with no side effects.
func Validate(rel Relation) error {
	return Walk(rel, validateNode)
}

func validateNode(r Relation) error {
	switch n := r.(type) {
	case *Table, *View:
		return nil
	case *Join:
		return validateJoin(n)
	case *Project:
		for _, it := range n.Items {
			if err := checkBinding(it.Expr, n.Input.Schema()); err != nil {
				return withOp(err, "select")
			}
		}
		return nil
	case *Filter:
		return withOp(checkBinding(n.Predicate, n.Input.Schema()), "filter")
	case *Mutate:
		for _, a := range n.Assignments {
			if err := checkBinding(a.Expr, n.Input.Schema()); err != nil {
				return withOp(err, "mutate")
			}
		}
		return nil
	case *Rename:
		for _, p := range n.Pairs {
			if n.Input.Schema().Index(p.From) < 0 {
				return planErrorf(CodeUnresolvableReference, "rename", p.From, "renamed column no longer exists")
			}
		}
		return nil
	default:
		return planErrorf(CodeInvalidPlan, "validate", "", "unknown relation type %T", r)
	}
}

func validateJoin(j *Join) error {
	if j.Kind == Asof {
		if j.On == nil || len(j.Predicates) == 0 {
			return planErrorf(CodeInvalidJoinPredicate, "join", "", "as-of join has no ordering column")
		}
		on, err := ResolvePredicates(j.Left, j.Right, j.Predicates[:1])
		if err != nil {
			return err
		}
		if len(on) != 1 || !sameKey(on[0], *j.On) {
			return planErrorf(CodeInvalidPlan, "join", j.On.String(), "as-of ordering no longer resolves to the same columns")
		}
		if len(j.Predicates) == 1 {
			return nil
		}
		by, err := ResolvePredicates(j.Left, j.Right, j.Predicates[1:])
		if err != nil {
			return err
		}
		return compareKeys(by, j.Keys)
	}

	keys, err := ResolvePredicates(j.Left, j.Right, j.Predicates)
	if err != nil {
		return err
	}
	return compareKeys(keys, j.Keys)
}

func compareKeys(got, want []JoinKey) error {
	if len(got) != len(want) {
		return planErrorf(CodeInvalidPlan, "join", "", "predicates resolve to %d keys, built with %d", len(got), len(want))
	}
	for i := range got {
		if !sameKey(got[i], want[i]) {
			return planErrorf(CodeInvalidPlan, "join", want[i].String(), "predicate no longer resolves to the same columns")
		}
	}
	return nil
}

func sameKey(a, b JoinKey) bool {
	return sameBinding(a.Left, b.Left) && sameBinding(a.Right, b.Right)
}

// checkBinding re-resolves a bound expression against s and reports an
// error if any column binds differently.
func checkBinding(e Expr, s *Schema) error {
	again, err := resolveExpr(e, s, true)
	if err != nil {
		return err
	}
	if !sameBinding(e, again) {
		return planErrorf(CodeInvalidPlan, "validate", ExprString(e), "expression no longer resolves to the same columns")
	}
	return nil
}

// sameBinding reports whether two bound expressions have the same shape
// and bind the same columns.
func sameBinding(a, b Expr) bool {
	switch x := a.(type) {
	case *BoundColumn:
		y, ok := b.(*BoundColumn)
		return ok && x.Index == y.Index && x.Column == y.Column
	case *Literal:
		y, ok := b.(*Literal)
		return ok && ir.Identical(x.Value, y.Value)
	case *BinaryOp:
		y, ok := b.(*BinaryOp)
		return ok && x.Op == y.Op && sameBinding(x.Left, y.Left) && sameBinding(x.Right, y.Right)
	case *UnaryOp:
		y, ok := b.(*UnaryOp)
		return ok && x.Op == y.Op && sameBinding(x.Arg, y.Arg)
	}
	return false
}
