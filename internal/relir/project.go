package relir

import (
	"github.com/roach88/relplan/internal/schema"
)

// Selection is an item of a projection.
//
// This is a sealed interface - only types in this package implement it.
//
// Selection types:
//   - any Relation: all of that relation's columns, as visible in the input
//   - *ColumnRef / *BoundColumn: one column, emitted under its own name
//   - *Alias: any expression emitted under an explicit name
type Selection interface {
	selectionNode() // Marker method - seals interface to this package
}

// Alias names a selected expression.
type Alias struct {
	Expr Expr
	Name string
}

func (*Alias) selectionNode() {}

// As names e in a projection or mutation.
func As(e Expr, name string) *Alias {
	return &Alias{Expr: e, Name: name}
}

// ProjectItem is one output column of a projection. Expr is bound against
// the projection's input schema.
type ProjectItem struct {
	Name string
	Expr Expr
}

// Project selects and orders columns.
type Project struct {
	base
	Input Relation
	Items []ProjectItem
}

// Inputs implements Relation.
func (p *Project) Inputs() []Relation { return []Relation{p.Input} }

// NewProject selects items from rel, in order.
//
// A whole relation expands to every one of its columns that is visible in
// rel, under the name it has in that relation. A reference that matches
// more than one live column fails with ErrAmbiguousColumn; selecting only
// one side's version of a duplicated name is fine. Selecting the same
// column twice under the same name keeps one copy; two distinct columns
// under one name fail with ErrUndefinedDuplicateColumn.
func NewProject(rel Relation, items ...Selection) (*Project, error) {
	if rel == nil {
		return nil, planErrorf(CodeInvalidPlan, "select", "", "input relation is nil")
	}
	if len(items) == 0 {
		return nil, planErrorf(CodeInvalidPlan, "select", "", "select requires at least one column")
	}

	b := &projectBuilder{in: rel.Schema(), byName: make(map[string]int)}
	for _, item := range items {
		if err := b.add(rel, item); err != nil {
			return nil, withOp(err, "select")
		}
	}

	id := newNodeID()
	cols := make([]*Column, len(b.items))
	for i, it := range b.items {
		if bc, ok := it.Expr.(*BoundColumn); ok {
			cols[i] = bc.Column.derive(id, it.Name, bc.Column.Side)
			continue
		}
		cols[i] = freshColumn(id, it.Name, b.types[i])
	}
	return &Project{
		base:  base{id: id, schema: newSchema(cols)},
		Input: rel,
		Items: b.items,
	}, nil
}

// SelectNames projects columns of rel by bare name.
func SelectNames(rel Relation, names ...string) (*Project, error) {
	items := make([]Selection, len(names))
	for i, n := range names {
		items[i] = Col(n)
	}
	return NewProject(rel, items...)
}

type projectBuilder struct {
	in     *Schema
	items  []ProjectItem
	types  []schema.DType
	byName map[string]int
}

func (b *projectBuilder) add(rel Relation, item Selection) error {
	switch x := item.(type) {
	case nil:
		return planErrorf(CodeInvalidPlan, "select", "", "nil selection")
	case Relation:
		return b.addRelation(rel, x)
	case *Alias:
		if x.Name == "" {
			return planErrorf(CodeInvalidPlan, "select", ExprString(x.Expr), "alias name is required")
		}
		return b.addExpr(x.Expr, x.Name)
	case *ColumnRef:
		return b.addExpr(x, x.Name)
	case *BoundColumn:
		return b.addExpr(x, x.Column.Name)
	case Expr:
		return planErrorf(CodeInvalidPlan, "select", ExprString(x), "computed column needs a name; wrap it with As")
	default:
		return planErrorf(CodeInvalidPlan, "select", "", "unsupported selection %T", item)
	}
}

func (b *projectBuilder) addRelation(rel, src Relation) error {
	if src.ID() == rel.ID() {
		for i := 0; i < b.in.Len(); i++ {
			c := b.in.Column(i)
			if err := b.addBound(&BoundColumn{Index: i, Column: c}, c.Name); err != nil {
				return err
			}
		}
		return nil
	}

	ss := src.Schema()
	for i := 0; i < ss.Len(); i++ {
		name := ss.Column(i).Name
		idx, err := resolveRef(&ColumnRef{Node: src.ID(), Name: name}, b.in, false)
		if err != nil {
			return err
		}
		if err := b.addBound(&BoundColumn{Index: idx, Column: b.in.Column(idx)}, name); err != nil {
			return err
		}
	}
	return nil
}

func (b *projectBuilder) addExpr(e Expr, name string) error {
	bound, err := resolveExpr(e, b.in, true)
	if err != nil {
		return err
	}
	if bc, ok := bound.(*BoundColumn); ok {
		return b.addBound(bc, name)
	}
	typ, err := typeOf(bound)
	if err != nil {
		return err
	}
	if _, dup := b.byName[name]; dup {
		return planErrorf(CodeUndefinedDuplicateColumn, "select", name, "output column selected more than once")
	}
	b.append(ProjectItem{Name: name, Expr: bound}, typ)
	return nil
}

func (b *projectBuilder) addBound(bc *BoundColumn, name string) error {
	if i, dup := b.byName[name]; dup {
		if prev, ok := b.items[i].Expr.(*BoundColumn); ok && prev.Column == bc.Column {
			return nil
		}
		return planErrorf(CodeUndefinedDuplicateColumn, "select", name,
			"two different columns would be emitted under this name; rename one with As")
	}
	b.append(ProjectItem{Name: name, Expr: bc}, bc.Column.Type)
	return nil
}

func (b *projectBuilder) append(item ProjectItem, typ schema.DType) {
	b.byName[item.Name] = len(b.items)
	b.items = append(b.items, item)
	b.types = append(b.types, typ)
}
