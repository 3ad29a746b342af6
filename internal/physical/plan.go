// Package physical defines execution plans in terms of the primitives an
// external dataframe engine exposes: scan, merge, merge_asof, assign,
// select, filter and sort.
//
// A plan is a tree of Nodes. Every node's output columns are fully
// determined by the node and its inputs (see Output), using the same
// collision rule as the logical planner (schema.Combine), so any engine
// that implements the primitives produces exactly the column layout the
// logical schema declared.
package physical

import (
	"fmt"
	"slices"

	"github.com/roach88/relplan/internal/ir"
	"github.com/roach88/relplan/internal/schema"
)

// Node is a physical operator.
//
// This is a sealed interface - only types in this package implement it.
type Node interface {
	physicalNode() // Marker method - seals interface to this package
}

// How is the merge mode.
type How string

const (
	HowInner How = "inner"
	HowLeft  How = "left"
	HowRight How = "right"
	HowOuter How = "outer"
)

// Scan reads a registered table.
type Scan struct {
	Table   string
	Columns schema.Schema
}

// Merge joins two frames on equal key columns.
//
// LeftOn[i] pairs with RightOn[i]. A pair with equal names is a merged key:
// it appears once in the output, coalesced for right and outer merges.
type Merge struct {
	Left     Node
	Right    Node
	How      How
	LeftOn   []string
	RightOn  []string
	Suffixes schema.Suffixes
}

// On returns the shared key names when every pair is a merged key.
func (m *Merge) On() ([]string, bool) {
	if !slices.Equal(m.LeftOn, m.RightOn) {
		return nil, false
	}
	return m.LeftOn, true
}

// MergeAsof matches each left row to the right row with the greatest
// ordering value not greater than the left one, within equal By groups.
// It always keeps every left row.
type MergeAsof struct {
	Left     Node
	Right    Node
	LeftOn   string
	RightOn  string
	LeftBy   []string
	RightBy  []string
	Suffixes schema.Suffixes
}

// Assign computes a column. An existing column of the same name is
// replaced in place; otherwise the column is appended.
type Assign struct {
	Input Node
	Name  string
	Type  schema.DType
	Expr  Expr
}

// Select keeps Columns, in order, emitting Columns[i] as As[i].
type Select struct {
	Input   Node
	Columns []string
	As      []string
}

// Filter keeps rows where Mask evaluates to true.
type Filter struct {
	Input Node
	Mask  Expr
}

// Sort orders rows by Keys ascending, nulls last. The sort is stable.
type Sort struct {
	Input Node
	Keys  []string
}

func (*Scan) physicalNode()      {}
func (*Merge) physicalNode()     {}
func (*MergeAsof) physicalNode() {}
func (*Assign) physicalNode()    {}
func (*Select) physicalNode()    {}
func (*Filter) physicalNode()    {}
func (*Sort) physicalNode()      {}

// Plan is a lowered, executable plan.
type Plan struct {
	Root Node

	// Schema is the output layout; equal to Output(Root).
	Schema schema.Schema

	// Tables lists the scanned table names in first-scan order.
	Tables []string

	// StableOrder is set when the root sorts on every output column, making
	// row order engine independent.
	StableOrder bool

	// Fingerprint identifies the plan's structure (see Fingerprint).
	Fingerprint string
}

// NewPlan wraps root, computing its schema, table list and fingerprint.
func NewPlan(root Node, stableOrder bool) (*Plan, error) {
	out, err := Output(root)
	if err != nil {
		return nil, err
	}
	fp, err := Fingerprint(root)
	if err != nil {
		return nil, err
	}
	return &Plan{
		Root:        root,
		Schema:      out,
		Tables:      ScannedTables(root),
		StableOrder: stableOrder,
		Fingerprint: fp,
	}, nil
}

// Output returns the columns a node produces.
func Output(n Node) (schema.Schema, error) {
	switch x := n.(type) {
	case *Scan:
		if err := x.Columns.Validate(); err != nil {
			return nil, fmt.Errorf("scan %s: %w", x.Table, err)
		}
		return x.Columns, nil
	case *Merge:
		if len(x.LeftOn) == 0 || len(x.LeftOn) != len(x.RightOn) {
			return nil, fmt.Errorf("merge: need matching left/right keys, got %v and %v", x.LeftOn, x.RightOn)
		}
		return combined(x.Left, x.Right, pairs(x.LeftOn, x.RightOn), x.Suffixes)
	case *MergeAsof:
		if len(x.LeftBy) != len(x.RightBy) {
			return nil, fmt.Errorf("merge_asof: by keys differ in length: %v and %v", x.LeftBy, x.RightBy)
		}
		keys := append([]schema.KeyPair{{Left: x.LeftOn, Right: x.RightOn}}, pairs(x.LeftBy, x.RightBy)...)
		return combined(x.Left, x.Right, keys, x.Suffixes)
	case *Assign:
		in, err := Output(x.Input)
		if err != nil {
			return nil, err
		}
		out := slices.Clone(in)
		col := schema.Column{Name: x.Name, Type: x.Type}
		if i := in.Index(x.Name); i >= 0 {
			out[i] = col
			return out, nil
		}
		return append(out, col), nil
	case *Select:
		in, err := Output(x.Input)
		if err != nil {
			return nil, err
		}
		if len(x.As) != len(x.Columns) {
			return nil, fmt.Errorf("select: %d columns but %d output names", len(x.Columns), len(x.As))
		}
		out := make(schema.Schema, len(x.Columns))
		for i, name := range x.Columns {
			c, ok := in.Lookup(name)
			if !ok {
				return nil, fmt.Errorf("select: column %q not in [%s]", name, in)
			}
			out[i] = schema.Column{Name: x.As[i], Type: c.Type}
		}
		if err := out.Validate(); err != nil {
			return nil, fmt.Errorf("select: %w", err)
		}
		return out, nil
	case *Filter:
		return Output(x.Input)
	case *Sort:
		in, err := Output(x.Input)
		if err != nil {
			return nil, err
		}
		for _, k := range x.Keys {
			if in.Index(k) < 0 {
				return nil, fmt.Errorf("sort: column %q not in [%s]", k, in)
			}
		}
		return in, nil
	default:
		return nil, fmt.Errorf("unknown physical node %T", n)
	}
}

func pairs(left, right []string) []schema.KeyPair {
	out := make([]schema.KeyPair, len(left))
	for i := range left {
		out[i] = schema.KeyPair{Left: left[i], Right: right[i]}
	}
	return out
}

func combined(left, right Node, keys []schema.KeyPair, sfx schema.Suffixes) (schema.Schema, error) {
	ls, err := Output(left)
	if err != nil {
		return nil, err
	}
	rs, err := Output(right)
	if err != nil {
		return nil, err
	}
	comb, err := schema.Combine(ls.Names(), rs.Names(), keys, sfx)
	if err != nil {
		return nil, err
	}
	out := make(schema.Schema, len(comb.Names))
	for i, src := range comb.Sources {
		typ := schema.Unknown
		switch src.Kind {
		case schema.FromLeft:
			typ = ls[src.Left].Type
		case schema.FromRight:
			typ = rs[src.Right].Type
		case schema.FromBoth:
			typ = ls[src.Left].Type
			if typ == schema.Unknown {
				typ = rs[src.Right].Type
			}
		}
		out[i] = schema.Column{Name: comb.Names[i], Type: typ}
	}
	return out, nil
}

// ScannedTables returns the distinct tables scanned under n, in first-scan
// order (depth first, left before right).
func ScannedTables(n Node) []string {
	var out []string
	Walk(n, func(n Node) {
		if s, ok := n.(*Scan); ok && !slices.Contains(out, s.Table) {
			out = append(out, s.Table)
		}
	})
	return out
}

// Walk visits n and its inputs depth first, parents before children.
func Walk(n Node, fn func(Node)) {
	fn(n)
	for _, in := range Inputs(n) {
		Walk(in, fn)
	}
}

// Inputs returns a node's children.
func Inputs(n Node) []Node {
	switch x := n.(type) {
	case *Merge:
		return []Node{x.Left, x.Right}
	case *MergeAsof:
		return []Node{x.Left, x.Right}
	case *Assign:
		return []Node{x.Input}
	case *Select:
		return []Node{x.Input}
	case *Filter:
		return []Node{x.Input}
	case *Sort:
		return []Node{x.Input}
	}
	return nil
}

// Fingerprint hashes the plan's canonical form. Structurally identical
// plans share a fingerprint regardless of how they were built.
func Fingerprint(n Node) (string, error) {
	return ir.Fingerprint(ir.DomainPlan, map[string]any{
		"version": ir.PlanVersion,
		"root":    encode(n),
	})
}

// encode converts a node tree to plain maps for canonical JSON.
func encode(n Node) map[string]any {
	switch x := n.(type) {
	case *Scan:
		cols := make([]any, len(x.Columns))
		for i, c := range x.Columns {
			cols[i] = map[string]any{"name": c.Name, "type": string(c.Type)}
		}
		return map[string]any{"op": "scan", "table": x.Table, "columns": cols}
	case *Merge:
		return map[string]any{
			"op": "merge", "how": string(x.How),
			"left": encode(x.Left), "right": encode(x.Right),
			"left_on": x.LeftOn, "right_on": x.RightOn,
			"suffixes": []string{x.Suffixes.Left, x.Suffixes.Right},
		}
	case *MergeAsof:
		return map[string]any{
			"op":   "merge_asof",
			"left": encode(x.Left), "right": encode(x.Right),
			"left_on": x.LeftOn, "right_on": x.RightOn,
			"left_by": x.LeftBy, "right_by": x.RightBy,
			"suffixes": []string{x.Suffixes.Left, x.Suffixes.Right},
		}
	case *Assign:
		return map[string]any{"op": "assign", "input": encode(x.Input), "name": x.Name, "type": string(x.Type), "expr": encodeExpr(x.Expr)}
	case *Select:
		return map[string]any{"op": "select", "input": encode(x.Input), "columns": x.Columns, "as": x.As}
	case *Filter:
		return map[string]any{"op": "filter", "input": encode(x.Input), "mask": encodeExpr(x.Mask)}
	case *Sort:
		return map[string]any{"op": "sort", "input": encode(x.Input), "keys": x.Keys}
	}
	return map[string]any{"op": fmt.Sprintf("%T", n)}
}
