// Package lower translates validated relir trees into physical plans.
//
// Lowering keeps one invariant at every node: the physical node's output
// columns equal the logical node's schema names, in order. Collision
// suffixing is decided once by the logical join (schema.Combine) and the
// physical merge reproduces it with the same suffixes, so a reference
// resolved against the logical schema always names the right physical
// column.
package lower

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/roach88/relplan/internal/physical"
	"github.com/roach88/relplan/internal/relir"
	"github.com/roach88/relplan/internal/schema"
)

// Compiler lowers relations to physical plans. It holds no per-plan state
// and is safe for concurrent use.
type Compiler struct {
	stableOrder bool
	logger      *slog.Logger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithStableOrder sorts the final output on every column, so row order no
// longer depends on the engine's merge strategy. Use it when comparing
// results across engines.
func WithStableOrder(on bool) Option {
	return func(c *Compiler) {
		c.stableOrder = on
	}
}

// WithLogger sets the logger. Lowering logs at debug level only.
func WithLogger(l *slog.Logger) Option {
	return func(c *Compiler) {
		c.logger = l
	}
}

// NewCompiler creates a Compiler.
func NewCompiler(opts ...Option) *Compiler {
	c := &Compiler{logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile validates rel and lowers it.
//
// Every plan construction error surfaces here, before any engine
// primitive is invoked.
func (c *Compiler) Compile(rel relir.Relation) (*physical.Plan, error) {
	if rel == nil {
		return nil, fmt.Errorf("cannot compile nil relation")
	}
	if err := relir.Validate(rel); err != nil {
		return nil, err
	}

	l := &lowering{memo: make(map[relir.NodeID]physical.Node)}
	root, err := l.lower(rel)
	if err != nil {
		return nil, err
	}
	if c.stableOrder {
		root = &physical.Sort{Input: root, Keys: rel.Schema().Names()}
	}

	plan, err := physical.NewPlan(root, c.stableOrder)
	if err != nil {
		return nil, fmt.Errorf("lower: %w", err)
	}
	c.logger.Debug("lowered plan",
		"fingerprint", plan.Fingerprint,
		"tables", plan.Tables,
		"columns", plan.Schema.Names(),
		"stable_order", plan.StableOrder)
	return plan, nil
}

// lowering is the state of one Compile call.
type lowering struct {
	memo map[relir.NodeID]physical.Node
}

func (l *lowering) lower(rel relir.Relation) (physical.Node, error) {
	if n, ok := l.memo[rel.ID()]; ok {
		return n, nil
	}

	n, err := l.lowerNode(rel)
	if err != nil {
		return nil, err
	}

	// Check the column layout invariant.
	out, err := physical.Output(n)
	if err != nil {
		return nil, fmt.Errorf("lower %T: %w", rel, err)
	}
	if want := rel.Schema().Names(); !slices.Equal(out.Names(), want) {
		return nil, fmt.Errorf("lower %T: physical columns %v do not match logical columns %v", rel, out.Names(), want)
	}

	l.memo[rel.ID()] = n
	return n, nil
}

func (l *lowering) lowerNode(rel relir.Relation) (physical.Node, error) {
	switch r := rel.(type) {
	case *relir.Table:
		return &physical.Scan{Table: r.Name, Columns: r.Schema().Physical()}, nil
	case *relir.View:
		return l.lower(r.Input)
	case *relir.Join:
		if r.Kind == relir.Asof {
			return l.lowerAsof(r)
		}
		return l.lowerJoin(r)
	case *relir.Project:
		return l.lowerProject(r)
	case *relir.Filter:
		in, err := l.lower(r.Input)
		if err != nil {
			return nil, err
		}
		return &physical.Filter{Input: in, Mask: lowerExpr(r.Predicate)}, nil
	case *relir.Mutate:
		return l.lowerMutate(r)
	case *relir.Rename:
		in, err := l.lower(r.Input)
		if err != nil {
			return nil, err
		}
		return &physical.Select{Input: in, Columns: r.Input.Schema().Names(), As: r.Schema().Names()}, nil
	default:
		return nil, fmt.Errorf("lower: unsupported relation %T", rel)
	}
}

var howByKind = map[relir.JoinKind]physical.How{
	relir.Inner:     physical.HowInner,
	relir.LeftJoin:  physical.HowLeft,
	relir.RightJoin: physical.HowRight,
	relir.Outer:     physical.HowOuter,
}

// lowerJoin maps a join onto merge. Key expressions are materialized as
// temporary columns on both inputs, merged on, and dropped afterwards.
func (l *lowering) lowerJoin(j *relir.Join) (physical.Node, error) {
	how, ok := howByKind[j.Kind]
	if !ok {
		return nil, fmt.Errorf("lower: unsupported join kind %q", j.Kind)
	}
	left, err := l.lower(j.Left)
	if err != nil {
		return nil, err
	}
	right, err := l.lower(j.Right)
	if err != nil {
		return nil, err
	}

	taken := append(j.Left.Schema().Names(), j.Right.Schema().Names()...)
	var leftOn, rightOn []string
	temps := false
	for _, k := range j.Keys {
		if lc, rc, ok := k.Plain(); ok {
			leftOn = append(leftOn, lc.Column.Name)
			rightOn = append(rightOn, rc.Column.Name)
			continue
		}
		tmp := freshName("__key_", &taken)
		typ, err := keyType(k)
		if err != nil {
			return nil, err
		}
		left = &physical.Assign{Input: left, Name: tmp, Type: typ, Expr: lowerExpr(k.Left)}
		right = &physical.Assign{Input: right, Name: tmp, Type: typ, Expr: lowerExpr(k.Right)}
		leftOn = append(leftOn, tmp)
		rightOn = append(rightOn, tmp)
		temps = true
	}

	var n physical.Node = &physical.Merge{
		Left:     left,
		Right:    right,
		How:      how,
		LeftOn:   leftOn,
		RightOn:  rightOn,
		Suffixes: j.Suffixes,
	}
	if temps {
		names := j.Schema().Names()
		n = &physical.Select{Input: n, Columns: names, As: names}
	}
	return n, nil
}

func (l *lowering) lowerAsof(j *relir.Join) (physical.Node, error) {
	left, err := l.lower(j.Left)
	if err != nil {
		return nil, err
	}
	right, err := l.lower(j.Right)
	if err != nil {
		return nil, err
	}
	lc, rc, ok := j.On.Plain()
	if !ok {
		return nil, fmt.Errorf("lower: as-of ordering %s is not a column pair", j.On)
	}
	m := &physical.MergeAsof{
		Left:     left,
		Right:    right,
		LeftOn:   lc.Column.Name,
		RightOn:  rc.Column.Name,
		Suffixes: j.Suffixes,
	}
	for _, k := range j.Keys {
		lb, rb, ok := k.Plain()
		if !ok {
			return nil, fmt.Errorf("lower: as-of grouping %s is not a column pair", k)
		}
		m.LeftBy = append(m.LeftBy, lb.Column.Name)
		m.RightBy = append(m.RightBy, rb.Column.Name)
	}
	return m, nil
}

// lowerProject computes expression items into temporary columns, then
// selects and renames everything in one step.
func (l *lowering) lowerProject(p *relir.Project) (physical.Node, error) {
	in, err := l.lower(p.Input)
	if err != nil {
		return nil, err
	}
	taken := append(p.Input.Schema().Names(), p.Schema().Names()...)
	cols := make([]string, len(p.Items))
	as := make([]string, len(p.Items))
	for i, it := range p.Items {
		as[i] = it.Name
		if bc, ok := it.Expr.(*relir.BoundColumn); ok {
			cols[i] = bc.Column.Name
			continue
		}
		tmp := freshName("__col_", &taken)
		in = &physical.Assign{Input: in, Name: tmp, Type: p.Schema().Column(i).Type, Expr: lowerExpr(it.Expr)}
		cols[i] = tmp
	}
	return &physical.Select{Input: in, Columns: cols, As: as}, nil
}

// lowerMutate applies assignments. With more than one assignment every
// value is computed into a temporary column first, so each expression sees
// the input columns rather than an earlier assignment's result.
func (l *lowering) lowerMutate(m *relir.Mutate) (physical.Node, error) {
	in, err := l.lower(m.Input)
	if err != nil {
		return nil, err
	}
	out := m.Schema()

	if len(m.Assignments) == 1 {
		a := m.Assignments[0]
		return &physical.Assign{Input: in, Name: a.Name, Type: out.Column(out.Index(a.Name)).Type, Expr: lowerExpr(a.Expr)}, nil
	}

	taken := append(m.Input.Schema().Names(), out.Names()...)
	tmpFor := make(map[string]string, len(m.Assignments))
	for _, a := range m.Assignments {
		tmp := freshName("__col_", &taken)
		tmpFor[a.Name] = tmp
		in = &physical.Assign{Input: in, Name: tmp, Type: out.Column(out.Index(a.Name)).Type, Expr: lowerExpr(a.Expr)}
	}
	names := out.Names()
	cols := make([]string, len(names))
	for i, name := range names {
		cols[i] = name
		if tmp, ok := tmpFor[name]; ok {
			cols[i] = tmp
		}
	}
	return &physical.Select{Input: in, Columns: cols, As: names}, nil
}

// lowerExpr converts a bound expression. Bound column names are the
// physical names of the input frame by the layout invariant.
func lowerExpr(e relir.Expr) physical.Expr {
	switch x := e.(type) {
	case *relir.BoundColumn:
		return &physical.Col{Name: x.Column.Name}
	case *relir.Literal:
		return &physical.Lit{Value: x.Value}
	case *relir.BinaryOp:
		return &physical.Binary{Op: string(x.Op), Left: lowerExpr(x.Left), Right: lowerExpr(x.Right)}
	case *relir.UnaryOp:
		return &physical.Unary{Op: string(x.Op), Arg: lowerExpr(x.Arg)}
	}
	// Validate binds every expression before lowering.
	panic(fmt.Sprintf("lower: unbound expression %T", e))
}

func keyType(k relir.JoinKey) (schema.DType, error) {
	return relir.TypeOf(k.Left)
}

// freshName returns prefix+N not yet in taken and records it.
func freshName(prefix string, taken *[]string) string {
	for i := 0; ; i++ {
		name := prefix + strconv.Itoa(i)
		if !slices.Contains(*taken, name) {
			*taken = append(*taken, name)
			return name
		}
	}
}
