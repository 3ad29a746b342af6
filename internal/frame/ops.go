package frame

import (
	"fmt"
	"slices"

	"github.com/roach88/relplan/internal/ir"
	"github.com/roach88/relplan/internal/physical"
	"github.com/roach88/relplan/internal/schema"
)

// Merge joins left and right on leftOn[i] == rightOn[i].
//
// Output columns follow schema.Combine. Row order:
//   - inner, left: left row order, matches in right row order
//   - right: right row order, matches in left row order
//   - outer: as left, then unmatched right rows in right order
//
// Rows with a null key never match.
func Merge(left, right *Frame, how physical.How, leftOn, rightOn []string, sfx schema.Suffixes) (*Frame, error) {
	if len(leftOn) == 0 || len(leftOn) != len(rightOn) {
		return nil, fmt.Errorf("merge: need matching left/right keys, got %v and %v", leftOn, rightOn)
	}
	lk, err := indices(left.schema, leftOn)
	if err != nil {
		return nil, fmt.Errorf("merge left: %w", err)
	}
	rk, err := indices(right.schema, rightOn)
	if err != nil {
		return nil, fmt.Errorf("merge right: %w", err)
	}
	keys := make([]schema.KeyPair, len(leftOn))
	for i := range leftOn {
		keys[i] = schema.KeyPair{Left: leftOn[i], Right: rightOn[i]}
	}
	out, comb, err := combine(left, right, keys, sfx)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	var rows [][]ir.IRValue
	emit := func(l, r []ir.IRValue) {
		rows = append(rows, combineRow(comb, l, r))
	}

	switch how {
	case physical.HowInner, physical.HowLeft, physical.HowOuter:
		index := buildIndex(right.rows, rk)
		matched := make([]bool, len(right.rows))
		for _, l := range left.rows {
			k, ok := keyOf(l, lk)
			hits := index[k]
			if !ok || len(hits) == 0 {
				if how != physical.HowInner {
					emit(l, nil)
				}
				continue
			}
			for _, ri := range hits {
				matched[ri] = true
				emit(l, right.rows[ri])
			}
		}
		if how == physical.HowOuter {
			for ri, r := range right.rows {
				if !matched[ri] {
					emit(nil, r)
				}
			}
		}
	case physical.HowRight:
		index := buildIndex(left.rows, lk)
		for _, r := range right.rows {
			k, ok := keyOf(r, rk)
			hits := index[k]
			if !ok || len(hits) == 0 {
				emit(nil, r)
				continue
			}
			for _, li := range hits {
				emit(left.rows[li], r)
			}
		}
	default:
		return nil, fmt.Errorf("merge: unsupported how %q", how)
	}
	return newTrusted(out, rows), nil
}

// MergeAsof matches each left row to the right row whose leftOn/rightOn
// value is the greatest one not greater than the left row's, among right
// rows with equal by keys. When several right rows share that value the
// last one wins. Every left row is kept, in order; unmatched rows carry
// null right columns.
func MergeAsof(left, right *Frame, leftOn, rightOn string, leftBy, rightBy []string, sfx schema.Suffixes) (*Frame, error) {
	if len(leftBy) != len(rightBy) {
		return nil, fmt.Errorf("merge_asof: by keys differ in length: %v and %v", leftBy, rightBy)
	}
	lo := left.schema.Index(leftOn)
	ro := right.schema.Index(rightOn)
	if lo < 0 || ro < 0 {
		return nil, fmt.Errorf("merge_asof: ordering columns %q/%q not found", leftOn, rightOn)
	}
	lb, err := indices(left.schema, leftBy)
	if err != nil {
		return nil, fmt.Errorf("merge_asof left: %w", err)
	}
	rb, err := indices(right.schema, rightBy)
	if err != nil {
		return nil, fmt.Errorf("merge_asof right: %w", err)
	}
	keys := []schema.KeyPair{{Left: leftOn, Right: rightOn}}
	for i := range leftBy {
		keys = append(keys, schema.KeyPair{Left: leftBy[i], Right: rightBy[i]})
	}
	out, comb, err := combine(left, right, keys, sfx)
	if err != nil {
		return nil, fmt.Errorf("merge_asof: %w", err)
	}

	groups := buildIndex(right.rows, rb)
	rows := make([][]ir.IRValue, 0, len(left.rows))
	for _, l := range left.rows {
		var best []ir.IRValue
		k, ok := keyOf(l, lb)
		if on := l[lo]; ok && !ir.IsNull(on) {
			for _, ri := range groups[k] {
				r := right.rows[ri]
				v := r[ro]
				if ir.IsNull(v) || ir.KindOf(v) != ir.KindOf(on) || ir.Compare(v, on) > 0 {
					continue
				}
				if best == nil || ir.Compare(v, best[ro]) >= 0 {
					best = r
				}
			}
		}
		rows = append(rows, combineRow(comb, l, best))
	}
	return newTrusted(out, rows), nil
}

// Select keeps cols in order, renaming cols[i] to as[i].
func Select(f *Frame, cols, as []string) (*Frame, error) {
	if len(cols) != len(as) {
		return nil, fmt.Errorf("select: %d columns but %d output names", len(cols), len(as))
	}
	idx, err := indices(f.schema, cols)
	if err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	out := make(schema.Schema, len(cols))
	for i, j := range idx {
		out[i] = schema.Column{Name: as[i], Type: f.schema[j].Type}
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	rows := make([][]ir.IRValue, len(f.rows))
	for i, r := range f.rows {
		row := make([]ir.IRValue, len(idx))
		for k, j := range idx {
			row[k] = r[j]
		}
		rows[i] = row
	}
	return newTrusted(out, rows), nil
}

// Filter keeps rows whose mask is true. Null and false drop the row.
func Filter(f *Frame, mask physical.Expr) (*Frame, error) {
	vals, err := Eval(f, mask)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	var rows [][]ir.IRValue
	for i, v := range vals {
		if ir.IsNull(v) {
			continue
		}
		b, ok := v.(ir.IRBool)
		if !ok {
			return nil, fmt.Errorf("filter: mask is %s, not bool", ir.KindOf(v))
		}
		if b {
			rows = append(rows, f.rows[i])
		}
	}
	return newTrusted(f.schema, rows), nil
}

// Assign computes a column of type typ, replacing an existing column of
// the same name in place or appending a new one.
func Assign(f *Frame, name string, typ schema.DType, e physical.Expr) (*Frame, error) {
	vals, err := Eval(f, e)
	if err != nil {
		return nil, fmt.Errorf("assign %s: %w", name, err)
	}
	for i, v := range vals {
		if !typ.Accepts(v) {
			return nil, fmt.Errorf("assign %s: row %d: %s value does not fit %s", name, i, ir.KindOf(v), typ)
		}
	}

	pos := f.schema.Index(name)
	out := slices.Clone(f.schema)
	if pos < 0 {
		out = append(out, schema.Column{Name: name, Type: typ})
	} else {
		out[pos] = schema.Column{Name: name, Type: typ}
	}
	rows := make([][]ir.IRValue, len(f.rows))
	for i, r := range f.rows {
		row := slices.Clone(r)
		if pos < 0 {
			row = append(row, vals[i])
		} else {
			row[pos] = vals[i]
		}
		rows[i] = row
	}
	return newTrusted(out, rows), nil
}

// SortRows orders rows by keys ascending, nulls last. The sort is stable.
func SortRows(f *Frame, keys []string) (*Frame, error) {
	idx, err := indices(f.schema, keys)
	if err != nil {
		return nil, fmt.Errorf("sort: %w", err)
	}
	rows := slices.Clone(f.rows)
	slices.SortStableFunc(rows, func(a, b []ir.IRValue) int {
		for _, j := range idx {
			if c := ir.Compare(a[j], b[j]); c != 0 {
				return c
			}
		}
		return 0
	})
	return newTrusted(f.schema, rows), nil
}

func indices(s schema.Schema, names []string) ([]int, error) {
	out := make([]int, len(names))
	for i, n := range names {
		j := s.Index(n)
		if j < 0 {
			return nil, fmt.Errorf("column %q not in [%s]", n, s)
		}
		out[i] = j
	}
	return out, nil
}

// combine computes the typed output layout of a two-frame combination.
func combine(left, right *Frame, keys []schema.KeyPair, sfx schema.Suffixes) (schema.Schema, *schema.Combined, error) {
	comb, err := schema.Combine(left.schema.Names(), right.schema.Names(), keys, sfx)
	if err != nil {
		return nil, nil, err
	}
	out := make(schema.Schema, len(comb.Names))
	for i, src := range comb.Sources {
		var typ schema.DType
		switch src.Kind {
		case schema.FromLeft:
			typ = left.schema[src.Left].Type
		case schema.FromRight:
			typ = right.schema[src.Right].Type
		default:
			typ = left.schema[src.Left].Type
			if typ == schema.Unknown {
				typ = right.schema[src.Right].Type
			}
		}
		out[i] = schema.Column{Name: comb.Names[i], Type: typ}
	}
	return out, comb, nil
}

// combineRow builds one output row. l or r is nil for an unmatched side;
// merged keys take the left value when present.
func combineRow(comb *schema.Combined, l, r []ir.IRValue) []ir.IRValue {
	row := make([]ir.IRValue, len(comb.Sources))
	for i, src := range comb.Sources {
		v := ir.Null
		switch src.Kind {
		case schema.FromLeft:
			if l != nil {
				v = l[src.Left]
			}
		case schema.FromRight:
			if r != nil {
				v = r[src.Right]
			}
		case schema.FromBoth:
			if l != nil {
				v = l[src.Left]
			} else if r != nil {
				v = r[src.Right]
			}
		}
		row[i] = v
	}
	return row
}

// buildIndex maps key tuples to row positions in row order. Rows with a
// null key are left out.
func buildIndex(rows [][]ir.IRValue, key []int) map[string][]int {
	index := make(map[string][]int)
	for i, r := range rows {
		if k, ok := keyOf(r, key); ok {
			index[k] = append(index[k], i)
		}
	}
	return index
}

// keyOf encodes the key columns of a row. ok is false when any key is null.
func keyOf(row []ir.IRValue, key []int) (string, bool) {
	vals := make(ir.IRArray, len(key))
	for i, j := range key {
		if ir.IsNull(row[j]) {
			return "", false
		}
		vals[i] = row[j]
	}
	b, err := ir.MarshalCanonical(vals)
	if err != nil {
		return "", false
	}
	return string(b), true
}
