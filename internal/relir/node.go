package relir

import (
	"github.com/google/uuid"

	"github.com/roach88/relplan/internal/schema"
)

// NodeID identifies a relation node. IDs are UUIDv7 strings: unique per
// constructed node and time-sortable, which helps when reading debug logs.
type NodeID string

func newNodeID() NodeID {
	return NodeID(uuid.Must(uuid.NewV7()).String())
}

// Relation is an immutable logical table-like node.
//
// This is a sealed interface - only types in this package implement it.
//
// Relation types:
//   - Table: a registered base table
//   - Join: two relations combined by equality predicates
//   - Project: a column selection, possibly with computed columns
//   - Filter: rows satisfying a boolean predicate
//   - Mutate: input columns plus added or replaced computed columns
//   - Rename: input columns under new names
//   - View: input columns under a fresh identity (for self-joins)
type Relation interface {
	Selection

	// ID returns the node identity used for provenance.
	ID() NodeID

	// Schema returns the node's output columns.
	Schema() *Schema

	// Inputs returns the child relations (nil for a Table).
	Inputs() []Relation

	// Col returns a reference to one of this relation's columns. The
	// reference resolves through any relation built on top of this one.
	Col(name string) *ColumnRef

	relationNode() // Marker method - seals interface to this package
}

// base carries the fields every relation shares.
type base struct {
	id     NodeID
	schema *Schema
}

func (b *base) ID() NodeID      { return b.id }
func (b *base) Schema() *Schema { return b.schema }
func (b *base) relationNode()   {}
func (b *base) selectionNode()  {}

func (b *base) Col(name string) *ColumnRef {
	return &ColumnRef{Node: b.id, Name: name}
}

// Table is a registered base relation.
type Table struct {
	base
	Name   string
	Source schema.Schema
}

// NewTable creates a table node from a name and a column list.
func NewTable(name string, s schema.Schema) (*Table, error) {
	if name == "" {
		return nil, planErrorf(CodeInvalidPlan, "table", "", "table name is required")
	}
	if len(s) == 0 {
		return nil, planErrorf(CodeInvalidPlan, "table", name, "table must have at least one column")
	}
	if err := s.Validate(); err != nil {
		return nil, planErrorf(CodeUndefinedDuplicateColumn, "table", name, "%v", err)
	}

	id := newNodeID()
	cols := make([]*Column, len(s))
	for i, c := range s {
		cols[i] = freshColumn(id, c.Name, c.Type)
	}
	return &Table{
		base:   base{id: id, schema: newSchema(cols)},
		Name:   name,
		Source: append(schema.Schema(nil), s...),
	}, nil
}

// MustTable is like NewTable but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustTable(name string, s schema.Schema) *Table {
	t, err := NewTable(name, s)
	if err != nil {
		panic(err)
	}
	return t
}

// Inputs implements Relation.
func (t *Table) Inputs() []Relation { return nil }

// View re-exposes a relation under a fresh identity. Its columns do not
// carry the input's provenance, so references to the input never resolve
// to the view. Use it to join a relation with itself.
type View struct {
	base
	Input Relation
}

// NewView creates a view of rel.
func NewView(rel Relation) (*View, error) {
	if rel == nil {
		return nil, planErrorf(CodeInvalidPlan, "view", "", "input relation is nil")
	}
	id := newNodeID()
	in := rel.Schema()
	cols := make([]*Column, in.Len())
	for i := range cols {
		c := in.Column(i)
		cols[i] = freshColumn(id, c.Name, c.Type)
	}
	return &View{base: base{id: id, schema: newSchema(cols)}, Input: rel}, nil
}

// Inputs implements Relation.
func (v *View) Inputs() []Relation { return []Relation{v.Input} }
