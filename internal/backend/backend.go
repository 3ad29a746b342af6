// Package backend connects logical relations to an execution engine.
//
// A Connection owns a set of named frames. Table hands out the logical
// table for a frame, Compile lowers a relation built from those tables to
// a physical plan, and Execute runs the plan on the configured Backend.
// Planning errors surface from Compile before any engine is invoked;
// engine errors are returned to the caller unmodified.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/relplan/internal/frame"
	"github.com/roach88/relplan/internal/lower"
	"github.com/roach88/relplan/internal/physical"
	"github.com/roach88/relplan/internal/relir"
	"github.com/roach88/relplan/internal/sqlexec"
)

// ErrNotRegistered is returned when a relation names a table the
// connection does not hold.
var ErrNotRegistered = errors.New("table is not registered")

// Backend executes physical plans.
type Backend interface {
	Name() string
	Execute(ctx context.Context, plan *physical.Plan, tables map[string]*frame.Frame) (*frame.Frame, error)
}

// Memory runs plans with the in-memory frame engine.
type Memory struct {
	exec *frame.Executor
}

// NewMemory creates the in-memory backend.
func NewMemory(logger *slog.Logger) *Memory {
	return &Memory{exec: frame.NewExecutor(frame.WithLogger(logger))}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Execute(ctx context.Context, plan *physical.Plan, tables map[string]*frame.Frame) (*frame.Frame, error) {
	return m.exec.Execute(ctx, plan, tables)
}

// SQLite runs plans on a SQLite database.
type SQLite struct {
	engine *sqlexec.Engine
}

// NewSQLite opens the SQLite backend at path (":memory:" for a private
// in-memory database). Close releases it.
func NewSQLite(path string, logger *slog.Logger) (*SQLite, error) {
	e, err := sqlexec.Open(path, sqlexec.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return &SQLite{engine: e}, nil
}

func (s *SQLite) Name() string { return "sqlite" }

func (s *SQLite) Execute(ctx context.Context, plan *physical.Plan, tables map[string]*frame.Frame) (*frame.Frame, error) {
	return s.engine.Execute(ctx, plan, tables)
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.engine.Close()
}

// Open returns the backend called name: "memory" or "sqlite". The sqlite
// backend uses a private in-memory database.
func Open(name string, logger *slog.Logger) (Backend, error) {
	switch name {
	case "", "memory":
		return NewMemory(logger), nil
	case "sqlite":
		return NewSQLite(":memory:", logger)
	default:
		return nil, fmt.Errorf("unknown backend %q (want memory or sqlite)", name)
	}
}

// Connection binds named frames to a backend.
//
// Thread-safety: all methods are safe for concurrent use.
type Connection struct {
	backend  Backend
	compiler *lower.Compiler
	logger   *slog.Logger

	compilerOpts []lower.Option

	mu     sync.Mutex
	frames map[string]*frame.Frame
	tables map[string]*relir.Table
	plans  map[relir.NodeID]*physical.Plan
}

// Option configures a Connection.
type Option func(*Connection)

// WithBackend sets the execution backend. The default is Memory.
func WithBackend(b Backend) Option {
	return func(c *Connection) {
		c.backend = b
	}
}

// WithLogger sets the logger for the connection and its default backend.
func WithLogger(l *slog.Logger) Option {
	return func(c *Connection) {
		c.logger = l
	}
}

// WithCompilerOptions passes options to the plan compiler.
func WithCompilerOptions(opts ...lower.Option) Option {
	return func(c *Connection) {
		c.compilerOpts = append(c.compilerOpts, opts...)
	}
}

// Connect registers frames under their map keys.
func Connect(frames map[string]*frame.Frame, opts ...Option) (*Connection, error) {
	c := &Connection{
		logger: slog.Default(),
		frames: make(map[string]*frame.Frame, len(frames)),
		tables: make(map[string]*relir.Table, len(frames)),
		plans:  make(map[relir.NodeID]*physical.Plan),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.backend == nil {
		c.backend = NewMemory(c.logger)
	}
	c.compiler = lower.NewCompiler(append([]lower.Option{lower.WithLogger(c.logger)}, c.compilerOpts...)...)

	for name, f := range frames {
		if name == "" {
			return nil, fmt.Errorf("connect: empty table name")
		}
		if f == nil {
			return nil, fmt.Errorf("connect: table %q has no frame", name)
		}
		t, err := relir.NewTable(name, f.Schema())
		if err != nil {
			return nil, fmt.Errorf("connect: %w", err)
		}
		c.frames[name] = f
		c.tables[name] = t
	}

	c.logger.Debug("connected",
		"backend", c.backend.Name(),
		"tables", c.Names())
	return c, nil
}

// Backend returns the execution backend.
func (c *Connection) Backend() Backend {
	return c.backend
}

// Names returns the registered table names, sorted.
func (c *Connection) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.tables))
	for n := range c.tables {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Table returns the logical table registered as name. Repeated calls
// return the same relation; joining a table with itself needs a
// relir.View on one side.
func (c *Connection) Table(name string) (*relir.Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotRegistered, name)
	}
	return t, nil
}

// Compile lowers rel to a physical plan. Plans are cached per relation;
// relations are immutable, so a cached plan never goes stale.
func (c *Connection) Compile(rel relir.Relation) (*physical.Plan, error) {
	if rel == nil {
		return nil, fmt.Errorf("cannot compile nil relation")
	}
	c.mu.Lock()
	if p, ok := c.plans[rel.ID()]; ok {
		c.mu.Unlock()
		return p, nil
	}
	c.mu.Unlock()

	if err := c.checkTables(rel); err != nil {
		return nil, err
	}
	p, err := c.compiler.Compile(rel)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.plans[rel.ID()]; ok {
		return cached, nil
	}
	c.plans[rel.ID()] = p
	return p, nil
}

// checkTables verifies every table rel reads is registered here with a
// matching layout.
func (c *Connection) checkTables(rel relir.Relation) error {
	tables, err := relir.Tables(rel)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range tables {
		f, ok := c.frames[t.Name]
		if !ok {
			return fmt.Errorf("%w: %q", ErrNotRegistered, t.Name)
		}
		if !slices.Equal(f.Schema(), t.Schema().Physical()) {
			return fmt.Errorf("table %q: relation expects [%s], frame has [%s]", t.Name, t.Schema(), f.Schema())
		}
	}
	return nil
}

// Execute compiles rel and runs it on the backend.
func (c *Connection) Execute(ctx context.Context, rel relir.Relation) (*frame.Frame, error) {
	p, err := c.Compile(rel)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	frames := make(map[string]*frame.Frame, len(c.frames))
	for n, f := range c.frames {
		frames[n] = f
	}
	c.mu.Unlock()

	return c.backend.Execute(ctx, p, frames)
}

// Close releases the backend if it holds resources.
func (c *Connection) Close() error {
	if closer, ok := c.backend.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
