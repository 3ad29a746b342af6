package relir

import (
	"slices"

	"github.com/roach88/relplan/internal/schema"
)

// Filter keeps the rows of Input for which Predicate is true.
// Its schema is the input schema.
type Filter struct {
	base
	Input     Relation
	Predicate Expr // bound against Input's schema
}

// Inputs implements Relation.
func (f *Filter) Inputs() []Relation { return []Relation{f.Input} }

// NewFilter filters rel by a boolean predicate.
//
// The predicate resolves against rel's current schema: after a projection,
// only the projected columns are visible.
func NewFilter(rel Relation, pred Expr) (*Filter, error) {
	if rel == nil {
		return nil, planErrorf(CodeInvalidPlan, "filter", "", "input relation is nil")
	}
	bound, err := resolveExpr(pred, rel.Schema(), true)
	if err != nil {
		return nil, withOp(err, "filter")
	}
	typ, err := typeOf(bound)
	if err != nil {
		return nil, withOp(err, "filter")
	}
	if typ != schema.Bool && typ != schema.Unknown {
		return nil, planErrorf(CodeTypeMismatch, "filter", ExprString(bound), "predicate must be boolean, got %s", typ)
	}

	id := newNodeID()
	in := rel.Schema()
	cols := make([]*Column, in.Len())
	for i := range cols {
		c := in.Column(i)
		cols[i] = c.derive(id, c.Name, c.Side)
		cols[i].Base = c.Base
	}
	return &Filter{
		base:      base{id: id, schema: newSchema(cols)},
		Input:     rel,
		Predicate: bound,
	}, nil
}

// Assignment is one computed column of a Mutate.
type Assignment struct {
	Name string
	Expr Expr // bound against the mutate input once built
}

// Set builds an assignment.
func Set(name string, e Expr) Assignment {
	return Assignment{Name: name, Expr: e}
}

// Mutate adds or replaces columns. A replaced column keeps its position;
// new columns are appended in assignment order.
type Mutate struct {
	base
	Input       Relation
	Assignments []Assignment
}

// Inputs implements Relation.
func (m *Mutate) Inputs() []Relation { return []Relation{m.Input} }

// NewMutate computes assignments over rel. Every assignment sees the input
// schema, not the output of earlier assignments.
func NewMutate(rel Relation, assignments ...Assignment) (*Mutate, error) {
	if rel == nil {
		return nil, planErrorf(CodeInvalidPlan, "mutate", "", "input relation is nil")
	}
	if len(assignments) == 0 {
		return nil, planErrorf(CodeInvalidPlan, "mutate", "", "mutate requires at least one assignment")
	}

	in := rel.Schema()
	id := newNodeID()
	cols := make([]*Column, in.Len())
	for i := range cols {
		c := in.Column(i)
		cols[i] = c.derive(id, c.Name, c.Side)
		cols[i].Base = c.Base
	}

	bound := make([]Assignment, len(assignments))
	seen := make(map[string]bool, len(assignments))
	for i, a := range assignments {
		if a.Name == "" {
			return nil, planErrorf(CodeInvalidPlan, "mutate", ExprString(a.Expr), "assignment name is required")
		}
		if seen[a.Name] {
			return nil, planErrorf(CodeUndefinedDuplicateColumn, "mutate", a.Name, "column assigned more than once")
		}
		seen[a.Name] = true

		e, err := resolveExpr(a.Expr, in, true)
		if err != nil {
			return nil, withOp(err, "mutate")
		}
		typ, err := typeOf(e)
		if err != nil {
			return nil, withOp(err, "mutate")
		}
		bound[i] = Assignment{Name: a.Name, Expr: e}

		col := freshColumn(id, a.Name, typ)
		if pos := in.Index(a.Name); pos >= 0 {
			col.Side = in.Column(pos).Side
			cols[pos] = col
		} else {
			cols = append(cols, col)
		}
	}

	return &Mutate{
		base:        base{id: id, schema: newSchema(cols)},
		Input:       rel,
		Assignments: bound,
	}, nil
}

// RenamePair renames column From to To.
type RenamePair struct {
	From string
	To   string
}

// Rename renames columns, keeping order and provenance.
type Rename struct {
	base
	Input Relation
	Pairs []RenamePair // in input column order
}

// Inputs implements Relation.
func (r *Rename) Inputs() []Relation { return []Relation{r.Input} }

// NewRename renames columns of rel. mapping is new name -> old name.
func NewRename(rel Relation, mapping map[string]string) (*Rename, error) {
	if rel == nil {
		return nil, planErrorf(CodeInvalidPlan, "rename", "", "input relation is nil")
	}
	in := rel.Schema()

	oldToNew := make(map[string]string, len(mapping))
	for to, from := range mapping {
		if to == "" {
			return nil, planErrorf(CodeInvalidPlan, "rename", from, "new column name is required")
		}
		if in.Index(from) < 0 {
			return nil, planErrorf(CodeUnresolvableReference, "rename", from,
				"column not found among %v", in.Names())
		}
		if prev, dup := oldToNew[from]; dup {
			return nil, planErrorf(CodeUndefinedDuplicateColumn, "rename", from,
				"column renamed twice (%s and %s)", min(prev, to), max(prev, to))
		}
		oldToNew[from] = to
	}

	id := newNodeID()
	cols := make([]*Column, in.Len())
	var pairs []RenamePair
	names := make([]string, in.Len())
	for i := range cols {
		c := in.Column(i)
		name := c.Name
		if to, ok := oldToNew[c.Name]; ok {
			name = to
			pairs = append(pairs, RenamePair{From: c.Name, To: to})
		}
		cols[i] = c.derive(id, name, c.Side)
		names[i] = name
	}

	sorted := slices.Clone(names)
	slices.Sort(sorted)
	if i := duplicateAt(sorted); i >= 0 {
		return nil, planErrorf(CodeUndefinedDuplicateColumn, "rename", sorted[i], "rename produces a duplicate column name")
	}

	return &Rename{
		base:  base{id: id, schema: newSchema(cols)},
		Input: rel,
		Pairs: pairs,
	}, nil
}

// duplicateAt returns the index of the first repeated name in a sorted
// slice, or -1.
func duplicateAt(sorted []string) int {
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			return i
		}
	}
	return -1
}
