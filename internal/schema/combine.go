package schema

import "fmt"

// Suffixes are appended to colliding non-key column names when two frames
// are combined.
type Suffixes struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

// DefaultSuffixes leaves the left column untouched and marks the right one.
var DefaultSuffixes = Suffixes{Left: "", Right: "_right"}

// KeyPair names a left and a right key column. A pair whose names are
// equal is a merged key and produces a single output column.
type KeyPair struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

// Merged reports whether the pair collapses into one output column.
func (k KeyPair) Merged() bool {
	return k.Left == k.Right
}

// SourceKind says which input an output column comes from.
type SourceKind int

const (
	FromLeft SourceKind = iota
	FromRight
	FromBoth // merged key; value coalesces left then right
)

// Source locates an output column in the inputs. Indices are -1 when the
// column has no counterpart on that side.
type Source struct {
	Kind  SourceKind
	Left  int
	Right int
}

// Combined is the output layout of a two-input combination.
type Combined struct {
	Names   []string
	Sources []Source
}

// Combine lays out the output of joining left and right column lists.
//
// Output is every left column in order followed by every right column in
// order, except that the right half of a merged key pair is folded into the
// left column of the same name. Any remaining name present on both sides is
// suffixed: left with sfx.Left, right with sfx.Right. If the suffixed names
// still collide, ErrDuplicateColumn is returned rather than producing two
// columns with one name.
func Combine(left, right []string, keys []KeyPair, sfx Suffixes) (*Combined, error) {
	leftIdx := indexOf(left)
	rightIdx := indexOf(right)

	merged := make(map[string]bool)
	for _, k := range keys {
		if !k.Merged() {
			continue
		}
		if _, ok := leftIdx[k.Left]; !ok {
			return nil, fmt.Errorf("key column %q not found on left", k.Left)
		}
		if _, ok := rightIdx[k.Right]; !ok {
			return nil, fmt.Errorf("key column %q not found on right", k.Right)
		}
		merged[k.Left] = true
	}

	out := &Combined{
		Names:   make([]string, 0, len(left)+len(right)),
		Sources: make([]Source, 0, len(left)+len(right)),
	}

	for i, name := range left {
		if merged[name] {
			out.Names = append(out.Names, name)
			out.Sources = append(out.Sources, Source{Kind: FromBoth, Left: i, Right: rightIdx[name]})
			continue
		}
		if _, collides := rightIdx[name]; collides {
			name += sfx.Left
		}
		out.Names = append(out.Names, name)
		out.Sources = append(out.Sources, Source{Kind: FromLeft, Left: i, Right: -1})
	}

	for j, name := range right {
		if merged[name] {
			continue
		}
		if _, collides := leftIdx[name]; collides {
			name += sfx.Right
		}
		out.Names = append(out.Names, name)
		out.Sources = append(out.Sources, Source{Kind: FromRight, Left: -1, Right: j})
	}

	seen := make(map[string]bool, len(out.Names))
	for _, name := range out.Names {
		if seen[name] {
			return nil, fmt.Errorf("%w: %q after applying suffixes %q/%q", ErrDuplicateColumn, name, sfx.Left, sfx.Right)
		}
		seen[name] = true
	}

	return out, nil
}

func indexOf(names []string) map[string]int {
	idx := make(map[string]int, len(names))
	for i, n := range names {
		idx[n] = i
	}
	return idx
}
