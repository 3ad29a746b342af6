// Package frame is an in-memory dataframe engine: typed column layouts
// over rows of ir.IRValue, and the merge, merge_asof, select, filter,
// assign and sort primitives physical plans are made of.
//
// Frames are immutable once built. Every primitive returns a new Frame and
// never modifies its inputs, so frames can be shared across goroutines and
// across executions.
package frame

import (
	"fmt"
	"slices"

	"github.com/roach88/relplan/internal/ir"
	"github.com/roach88/relplan/internal/schema"
)

// Frame is a typed table of rows.
type Frame struct {
	schema schema.Schema
	rows   [][]ir.IRValue
}

// New builds a frame. Every row must match the schema width and every
// value must fit its column type.
func New(s schema.Schema, rows [][]ir.IRValue) (*Frame, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	out := make([][]ir.IRValue, len(rows))
	for i, row := range rows {
		if len(row) != len(s) {
			return nil, fmt.Errorf("row %d: %d values for %d columns", i, len(row), len(s))
		}
		cp := make([]ir.IRValue, len(row))
		for j, v := range row {
			if v == nil {
				v = ir.Null
			}
			if !s[j].Type.Accepts(v) {
				return nil, fmt.Errorf("row %d: column %q (%s) cannot hold %s value %s",
					i, s[j].Name, s[j].Type, ir.KindOf(v), ir.String(v))
			}
			cp[j] = v
		}
		out[i] = cp
	}
	return &Frame{schema: slices.Clone(s), rows: out}, nil
}

// MustNew is like New but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustNew(s schema.Schema, rows [][]ir.IRValue) *Frame {
	f, err := New(s, rows)
	if err != nil {
		panic(err)
	}
	return f
}

// FromRecords builds a frame from decoded records (YAML, JSON or CUE).
// Missing keys become null.
func FromRecords(s schema.Schema, records []map[string]any) (*Frame, error) {
	rows := make([][]ir.IRValue, len(records))
	for i, rec := range records {
		for k := range rec {
			if s.Index(k) < 0 {
				return nil, fmt.Errorf("record %d: unknown column %q", i, k)
			}
		}
		row := make([]ir.IRValue, len(s))
		for j, c := range s {
			v, err := ir.FromAny(rec[c.Name])
			if err != nil {
				return nil, fmt.Errorf("record %d column %q: %w", i, c.Name, err)
			}
			row[j] = v
		}
		rows[i] = row
	}
	return New(s, rows)
}

// newTrusted wraps rows produced by a primitive without re-checking them.
func newTrusted(s schema.Schema, rows [][]ir.IRValue) *Frame {
	return &Frame{schema: s, rows: rows}
}

// Schema returns the column layout.
func (f *Frame) Schema() schema.Schema {
	return slices.Clone(f.schema)
}

// Names returns the column names in order.
func (f *Frame) Names() []string {
	return f.schema.Names()
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.rows)
}

// Row returns a copy of row i.
func (f *Frame) Row(i int) []ir.IRValue {
	return slices.Clone(f.rows[i])
}

// Rows returns a copy of all rows.
func (f *Frame) Rows() [][]ir.IRValue {
	out := make([][]ir.IRValue, len(f.rows))
	for i, r := range f.rows {
		out[i] = slices.Clone(r)
	}
	return out
}

// Column returns the values of one column.
func (f *Frame) Column(name string) ([]ir.IRValue, error) {
	j := f.schema.Index(name)
	if j < 0 {
		return nil, fmt.Errorf("column %q not in [%s]", name, f.schema)
	}
	out := make([]ir.IRValue, len(f.rows))
	for i, r := range f.rows {
		out[i] = r[j]
	}
	return out, nil
}

// Records returns rows as maps of plain Go values (nil, bool, int64,
// string), for JSON output and diffs.
func (f *Frame) Records() []map[string]any {
	out := make([]map[string]any, len(f.rows))
	for i, r := range f.rows {
		rec := make(map[string]any, len(r))
		for j, c := range f.schema {
			rec[c.Name] = ir.ToAny(r[j])
		}
		out[i] = rec
	}
	return out
}

// Equal reports whether two frames have the same columns, types and rows in
// the same order. Nulls compare equal to each other here.
func Equal(a, b *Frame) bool {
	if !slices.Equal(a.schema, b.schema) || len(a.rows) != len(b.rows) {
		return false
	}
	for i := range a.rows {
		for j := range a.rows[i] {
			if !ir.Identical(a.rows[i][j], b.rows[i][j]) {
				return false
			}
		}
	}
	return true
}
