package relir

import (
	"slices"
	"strings"

	"github.com/roach88/relplan/internal/schema"
)

// Side records which operand of the nearest join a column came from.
type Side int

const (
	SideNone  Side = iota // not produced by a join
	SideLeft              // left operand
	SideRight             // right operand
	SideBoth              // merged join key, present on both operands
)

func (s Side) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	case SideBoth:
		return "both"
	default:
		return "none"
	}
}

// matches reports whether a column on side s satisfies a reference
// qualified with want.
func (s Side) matches(want Side) bool {
	return want == SideNone || s == want || s == SideBoth
}

// Origin is one provenance step: the column was visible as Name in Node.
type Origin struct {
	Node NodeID
	Name string
}

// Column is a column of a logical schema.
//
// Columns are immutable. Composition creates new Column values whose
// Origins extend the input's.
type Column struct {
	// Name is the emitted column name.
	Name string

	// Base is Name before join suffixing. Equal to Name unless suffixed.
	Base string

	// Type is the column's data type.
	Type schema.DType

	// Side is the operand of the nearest enclosing join.
	Side Side

	// Origins is the provenance chain, oldest first.
	Origins []Origin
}

// From reports whether the column was visible as name in node.
func (c *Column) From(node NodeID, name string) bool {
	for _, o := range c.Origins {
		if o.Node == node && o.Name == name {
			return true
		}
	}
	return false
}

// Suffixed reports whether join suffixing renamed this column.
func (c *Column) Suffixed() bool {
	return c.Base != c.Name
}

// derive returns a copy of c emitted as name by node, keeping provenance.
func (c *Column) derive(node NodeID, name string, side Side) *Column {
	origins := make([]Origin, len(c.Origins), len(c.Origins)+1)
	copy(origins, c.Origins)
	return &Column{
		Name:    name,
		Base:    name,
		Type:    c.Type,
		Side:    side,
		Origins: append(origins, Origin{Node: node, Name: name}),
	}
}

// freshColumn creates a column whose provenance starts at node.
func freshColumn(node NodeID, name string, typ schema.DType) *Column {
	return &Column{
		Name:    name,
		Base:    name,
		Type:    typ,
		Origins: []Origin{{Node: node, Name: name}},
	}
}

// Schema is the ordered column list of a Relation.
type Schema struct {
	cols []*Column
}

func newSchema(cols []*Column) *Schema {
	return &Schema{cols: cols}
}

// Len returns the number of columns.
func (s *Schema) Len() int {
	return len(s.cols)
}

// Column returns the i-th column.
func (s *Schema) Column(i int) *Column {
	return s.cols[i]
}

// Columns returns a copy of the column list.
func (s *Schema) Columns() []*Column {
	return slices.Clone(s.cols)
}

// Names returns emitted column names in order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.cols))
	for i, c := range s.cols {
		names[i] = c.Name
	}
	return names
}

// Physical returns the names and types as a schema.Schema.
func (s *Schema) Physical() schema.Schema {
	out := make(schema.Schema, len(s.cols))
	for i, c := range s.cols {
		out[i] = schema.Column{Name: c.Name, Type: c.Type}
	}
	return out
}

// Index returns the position of the column emitted as name, or -1.
func (s *Schema) Index(name string) int {
	for i, c := range s.cols {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// byOrigin returns positions of columns visible as name in node.
func (s *Schema) byOrigin(node NodeID, name string) []int {
	var out []int
	for i, c := range s.cols {
		if c.From(node, name) {
			out = append(out, i)
		}
	}
	return out
}

// byName returns positions of columns a bare name may refer to: the emitted
// name, or the unsuffixed base of a suffixed join column.
func (s *Schema) byName(name string, side Side) []int {
	var out []int
	for i, c := range s.cols {
		if !c.Side.matches(side) {
			continue
		}
		if c.Name == name || (c.Suffixed() && c.Base == name) {
			out = append(out, i)
		}
	}
	return out
}

// indexOfColumn returns the position of the exact column value, or -1.
func (s *Schema) indexOfColumn(col *Column) int {
	for i, c := range s.cols {
		if c == col {
			return i
		}
	}
	return -1
}

// String renders "name:type, ...".
func (s *Schema) String() string {
	parts := make([]string, len(s.cols))
	for i, c := range s.cols {
		parts[i] = c.Name + ":" + string(c.Type)
	}
	return strings.Join(parts, ", ")
}
