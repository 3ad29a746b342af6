package frame

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/relplan/internal/physical"
)

// Executor runs physical plans against in-memory frames.
type Executor struct {
	logger *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLogger sets the executor's logger.
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = l
	}
}

// NewExecutor creates an Executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute evaluates plan over tables. ctx is checked before each node; a
// canceled context stops execution with ctx.Err().
//
// A node shared by several parents (e.g. a table scanned on both sides of
// a self-join) is evaluated once.
func (e *Executor) Execute(ctx context.Context, plan *physical.Plan, tables map[string]*Frame) (*Frame, error) {
	run := &execution{ctx: ctx, tables: tables, done: make(map[physical.Node]*Frame)}
	out, err := run.eval(plan.Root)
	if err != nil {
		return nil, err
	}
	if !slices.Equal(out.Names(), plan.Schema.Names()) {
		return nil, fmt.Errorf("execute: produced columns %v, plan declares %v", out.Names(), plan.Schema.Names())
	}
	e.logger.Debug("executed plan",
		"engine", "memory",
		"fingerprint", plan.Fingerprint,
		"rows", out.Len())
	return out, nil
}

type execution struct {
	ctx    context.Context
	tables map[string]*Frame
	done   map[physical.Node]*Frame
}

func (x *execution) eval(n physical.Node) (*Frame, error) {
	if err := x.ctx.Err(); err != nil {
		return nil, err
	}
	if f, ok := x.done[n]; ok {
		return f, nil
	}
	f, err := x.evalNode(n)
	if err != nil {
		return nil, err
	}
	x.done[n] = f
	return f, nil
}

func (x *execution) evalNode(n physical.Node) (*Frame, error) {
	switch node := n.(type) {
	case *physical.Scan:
		t, ok := x.tables[node.Table]
		if !ok {
			return nil, fmt.Errorf("scan: table %q is not registered", node.Table)
		}
		names := node.Columns.Names()
		out, err := Select(t, names, names)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", node.Table, err)
		}
		for i, c := range node.Columns {
			if out.schema[i].Type != c.Type {
				return nil, fmt.Errorf("scan %s: column %q is %s, plan expects %s", node.Table, c.Name, out.schema[i].Type, c.Type)
			}
		}
		return out, nil
	case *physical.Merge:
		l, r, err := x.pair(node.Left, node.Right)
		if err != nil {
			return nil, err
		}
		return Merge(l, r, node.How, node.LeftOn, node.RightOn, node.Suffixes)
	case *physical.MergeAsof:
		l, r, err := x.pair(node.Left, node.Right)
		if err != nil {
			return nil, err
		}
		return MergeAsof(l, r, node.LeftOn, node.RightOn, node.LeftBy, node.RightBy, node.Suffixes)
	case *physical.Assign:
		in, err := x.eval(node.Input)
		if err != nil {
			return nil, err
		}
		return Assign(in, node.Name, node.Type, node.Expr)
	case *physical.Select:
		in, err := x.eval(node.Input)
		if err != nil {
			return nil, err
		}
		return Select(in, node.Columns, node.As)
	case *physical.Filter:
		in, err := x.eval(node.Input)
		if err != nil {
			return nil, err
		}
		return Filter(in, node.Mask)
	case *physical.Sort:
		in, err := x.eval(node.Input)
		if err != nil {
			return nil, err
		}
		return SortRows(in, node.Keys)
	default:
		return nil, fmt.Errorf("execute: unsupported node %T", n)
	}
}

func (x *execution) pair(a, b physical.Node) (*Frame, *Frame, error) {
	l, err := x.eval(a)
	if err != nil {
		return nil, nil, err
	}
	r, err := x.eval(b)
	if err != nil {
		return nil, nil, err
	}
	return l, r, nil
}
