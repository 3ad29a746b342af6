package relir

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/relplan/internal/schema"
)

// JoinKind selects which unmatched rows a join retains.
type JoinKind string

const (
	Inner     JoinKind = "inner"
	LeftJoin  JoinKind = "left"
	RightJoin JoinKind = "right"
	Outer     JoinKind = "outer"
	Asof      JoinKind = "asof"
)

// ParseJoinKind parses a join kind name.
func ParseJoinKind(s string) (JoinKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inner", "":
		return Inner, nil
	case "left", "left_outer":
		return LeftJoin, nil
	case "right", "right_outer":
		return RightJoin, nil
	case "outer", "full", "full_outer":
		return Outer, nil
	case "asof", "as_of":
		return Asof, nil
	default:
		return "", planErrorf(CodeInvalidPlan, "join", "", "unknown join kind %q", s)
	}
}

// JoinOption configures a join.
type JoinOption func(*joinConfig)

type joinConfig struct {
	suffixes schema.Suffixes
}

// WithSuffixes sets the suffixes applied to colliding non-key columns.
// The default leaves left columns unsuffixed and appends "_right" on the
// right.
func WithSuffixes(left, right string) JoinOption {
	return func(c *joinConfig) {
		c.suffixes = schema.Suffixes{Left: left, Right: right}
	}
}

// Join combines two relations.
//
// Output schema: left columns then right columns (schema.Combine). A plain
// key pair with equal names is merged into one column at the left
// position; any other name present on both sides is suffixed.
type Join struct {
	base
	Left  Relation
	Right Relation
	Kind  JoinKind

	// Predicates are the predicates as written.
	Predicates []Expr

	// Keys are the normalized equality keys. For an as-of join these are
	// the grouping ("by") keys.
	Keys []JoinKey

	// On is the as-of ordering pair. Nil for other kinds.
	On *JoinKey

	Suffixes schema.Suffixes
}

// Inputs implements Relation.
func (j *Join) Inputs() []Relation { return []Relation{j.Left, j.Right} }

// NewJoin joins left and right on equality predicates.
//
// Predicates may be Key("k") shared-name pairs, explicit comparisons in
// either operand order, or key expressions. Any non-equality comparison,
// including one nested in an "and", fails with ErrInvalidJoinPredicate.
func NewJoin(left, right Relation, kind JoinKind, preds []Expr, opts ...JoinOption) (*Join, error) {
	if kind == Asof {
		return nil, planErrorf(CodeInvalidPlan, "join", "", "as-of joins are built with NewAsofJoin")
	}
	if _, err := ParseJoinKind(string(kind)); err != nil {
		return nil, err
	}
	cfg, err := checkOperands(left, right, opts)
	if err != nil {
		return nil, err
	}

	keys, err := ResolvePredicates(left, right, preds)
	if err != nil {
		return nil, err
	}

	j := &Join{
		Left:       left,
		Right:      right,
		Kind:       kind,
		Predicates: append([]Expr(nil), preds...),
		Keys:       keys,
		Suffixes:   cfg.suffixes,
	}
	if err := j.build(plainPairs(keys)); err != nil {
		return nil, err
	}
	return j, nil
}

// NewAsofJoin builds an as-of join: for each left row, the right row with
// the greatest ordering value not after the left row's, within the same
// "by" group. Left rows without a match keep null right columns.
//
// on is an equality-shaped pair naming the ordering columns, e.g.
// Key("time") or KeyPair("time", "time2"). by are optional grouping keys;
// both must be plain columns.
func NewAsofJoin(left, right Relation, on Expr, by []Expr, opts ...JoinOption) (*Join, error) {
	cfg, err := checkOperands(left, right, opts)
	if err != nil {
		return nil, err
	}
	if on == nil {
		return nil, planErrorf(CodeInvalidJoinPredicate, "join", "", "as-of join requires an ordering column")
	}

	onKeys, err := ResolvePredicates(left, right, []Expr{on})
	if err != nil {
		return nil, err
	}
	if len(onKeys) != 1 {
		return nil, planErrorf(CodeInvalidJoinPredicate, "join", ExprString(on), "as-of ordering must be a single column pair")
	}
	onKey := onKeys[0]
	lc, rc, ok := onKey.Plain()
	if !ok {
		return nil, planErrorf(CodeInvalidJoinPredicate, "join", onKey.String(), "as-of ordering must compare two columns")
	}
	if !lc.Column.Type.Ordered() || !rc.Column.Type.Ordered() || lc.Column.Type != rc.Column.Type {
		return nil, planErrorf(CodeTypeMismatch, "join", onKey.String(),
			"as-of ordering columns must share an ordered type, got %s and %s", lc.Column.Type, rc.Column.Type)
	}

	var byKeys []JoinKey
	if len(by) > 0 {
		byKeys, err = ResolvePredicates(left, right, by)
		if err != nil {
			return nil, err
		}
		for _, k := range byKeys {
			if _, _, ok := k.Plain(); !ok {
				return nil, planErrorf(CodeInvalidJoinPredicate, "join", k.String(), "as-of grouping keys must compare two columns")
			}
		}
	}

	preds := append([]Expr{on}, by...)
	j := &Join{
		Left:       left,
		Right:      right,
		Kind:       Asof,
		Predicates: preds,
		Keys:       byKeys,
		On:         &onKey,
		Suffixes:   cfg.suffixes,
	}
	if err := j.build(plainPairs(append([]JoinKey{onKey}, byKeys...))); err != nil {
		return nil, err
	}
	return j, nil
}

func checkOperands(left, right Relation, opts []JoinOption) (joinConfig, error) {
	cfg := joinConfig{suffixes: schema.DefaultSuffixes}
	for _, opt := range opts {
		opt(&cfg)
	}
	if left == nil || right == nil {
		return cfg, planErrorf(CodeInvalidPlan, "join", "", "join operands must not be nil")
	}
	if left.ID() == right.ID() {
		return cfg, planErrorf(CodeAmbiguousColumn, "join", "",
			"cannot join a relation with itself; wrap one operand with NewView")
	}
	if cfg.suffixes.Left == cfg.suffixes.Right {
		return cfg, planErrorf(CodeInvalidPlan, "join", "", "suffixes must differ, got %q twice", cfg.suffixes.Left)
	}
	return cfg, nil
}

// plainPairs returns the key pairs that name two bare columns.
func plainPairs(keys []JoinKey) []schema.KeyPair {
	var out []schema.KeyPair
	for _, k := range keys {
		if l, r, ok := k.Plain(); ok {
			out = append(out, schema.KeyPair{Left: l.Column.Name, Right: r.Column.Name})
		}
	}
	return out
}

// build computes the join's identity and output schema.
func (j *Join) build(pairs []schema.KeyPair) error {
	ls, rs := j.Left.Schema(), j.Right.Schema()
	comb, err := schema.Combine(ls.Names(), rs.Names(), pairs, j.Suffixes)
	if err != nil {
		code := CodeInvalidPlan
		if errors.Is(err, schema.ErrDuplicateColumn) {
			code = CodeUndefinedDuplicateColumn
		}
		return planErrorf(code, "join", "", "%v", err)
	}

	id := newNodeID()
	cols := make([]*Column, len(comb.Names))
	for i, src := range comb.Sources {
		name := comb.Names[i]
		switch src.Kind {
		case schema.FromLeft:
			cols[i] = joinColumn(ls.Column(src.Left), id, name, SideLeft)
		case schema.FromRight:
			cols[i] = joinColumn(rs.Column(src.Right), id, name, SideRight)
		case schema.FromBoth:
			lc, rc := ls.Column(src.Left), rs.Column(src.Right)
			typ := lc.Type
			if typ == schema.Unknown {
				typ = rc.Type
			}
			origins := make([]Origin, 0, len(lc.Origins)+len(rc.Origins)+1)
			origins = append(origins, lc.Origins...)
			origins = append(origins, rc.Origins...)
			cols[i] = &Column{
				Name:    name,
				Base:    name,
				Type:    typ,
				Side:    SideBoth,
				Origins: append(origins, Origin{Node: id, Name: name}),
			}
		default:
			return fmt.Errorf("join: unknown column source %d", src.Kind)
		}
	}

	j.base = base{id: id, schema: newSchema(cols)}
	return nil
}

// joinColumn carries an input column through a join. A suffixed column
// keeps its input name as Base, so a bare reference to that name sees both
// candidates.
func joinColumn(c *Column, id NodeID, name string, side Side) *Column {
	out := c.derive(id, name, side)
	if name != c.Name {
		out.Base = c.Name
	} else {
		out.Base = c.Base
	}
	return out
}
