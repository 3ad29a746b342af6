package backend

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relplan/internal/frame"
	"github.com/roach88/relplan/internal/lower"
	"github.com/roach88/relplan/internal/physical"
	"github.com/roach88/relplan/internal/relir"
	"github.com/roach88/relplan/internal/testutil"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func connect(t *testing.T, opts ...Option) *Connection {
	t.Helper()
	c, err := Connect(testutil.Frames(), append([]Option{WithLogger(quiet)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func table(t *testing.T, c *Connection, name string) *relir.Table {
	t.Helper()
	tbl, err := c.Table(name)
	require.NoError(t, err)
	return tbl
}

func TestConnect_Tables(t *testing.T) {
	c := connect(t)
	assert.Equal(t, testutil.Names(), c.Names())
	assert.Equal(t, "memory", c.Backend().Name())

	a, b := table(t, c, "df1"), table(t, c, "df1")
	assert.Same(t, a, b)

	_, err := c.Table("missing")
	assert.ErrorIs(t, err, ErrNotRegistered)

	_, err = Connect(map[string]*frame.Frame{"x": nil})
	assert.Error(t, err)
}

func TestConnection_CompileCachesPlans(t *testing.T) {
	c := connect(t)
	j, err := relir.NewJoin(table(t, c, "df1"), table(t, c, "df2"), relir.Inner, relir.Keys("key"))
	require.NoError(t, err)

	p1, err := c.Compile(j)
	require.NoError(t, err)
	p2, err := c.Compile(j)
	require.NoError(t, err)
	assert.Same(t, p1, p2)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := c.Compile(j)
			assert.NoError(t, err)
			assert.Same(t, p1, p)
		}()
	}
	wg.Wait()
}

func TestConnection_CompileRejectsForeignTables(t *testing.T) {
	c := connect(t)
	foreign := relir.MustTable("elsewhere", testutil.Frame("df1").Schema())
	_, err := c.Compile(foreign)
	assert.ErrorIs(t, err, ErrNotRegistered)

	reshaped := relir.MustTable("df1", testutil.Frame("df2").Schema())
	_, err = c.Compile(reshaped)
	assert.ErrorContains(t, err, `table "df1": relation expects`)
}

func TestConnection_PlanningErrorsBeforeExecution(t *testing.T) {
	spy := &spyBackend{}
	c := connect(t, WithBackend(spy))
	l, r := table(t, c, "df1"), table(t, c, "df2")

	// Hand-built join bypassing the constructor's checks.
	bad := &relir.Join{Left: l, Right: r, Kind: relir.Inner,
		Predicates: []relir.Expr{relir.Le(l.Col("value"), r.Col("other_value"))}}
	_, err := c.Execute(context.Background(), bad)
	assert.ErrorIs(t, err, relir.ErrInvalidJoinPredicate)
	assert.Zero(t, spy.calls)
}

func TestConnection_EngineErrorsPassThrough(t *testing.T) {
	boom := errors.New("engine exploded")
	spy := &spyBackend{err: boom}
	c := connect(t, WithBackend(spy))

	_, err := c.Execute(context.Background(), table(t, c, "df1"))
	assert.Same(t, boom, err)
	assert.Equal(t, 1, spy.calls)
}

func TestConnection_BackendsAgree(t *testing.T) {
	sqlite, err := NewSQLite(":memory:", quiet)
	require.NoError(t, err)

	mem := connect(t, WithCompilerOptions(lower.WithStableOrder(true)))
	sql := connect(t, WithBackend(sqlite), WithCompilerOptions(lower.WithStableOrder(true)))
	assert.Equal(t, "sqlite", sql.Backend().Name())

	build := func(c *Connection) relir.Relation {
		l, r := table(t, c, "df1"), table(t, c, "df3")
		j, err := relir.NewJoin(l, r, relir.LeftJoin, relir.Keys("key"))
		require.NoError(t, err)
		p, err := relir.NewProject(j, l.Col("key"), r.Col("key2"), r.Col("other_value"))
		require.NoError(t, err)
		return p
	}

	want, err := mem.Execute(context.Background(), build(mem))
	require.NoError(t, err)
	got, err := sql.Execute(context.Background(), build(sql))
	require.NoError(t, err)

	assert.Equal(t, []string{"key", "key2", "other_value"}, got.Names())
	assert.Equal(t, want.Records(), got.Records())
	assert.Equal(t, []map[string]any{
		{"key": "a", "key2": "g", "other_value": int64(1)},
		{"key": "b", "key2": "h", "other_value": int64(2)},
		{"key": "c", "key2": nil, "other_value": nil},
		{"key": "d", "key2": nil, "other_value": nil},
	}, got.Records())
}

func TestOpen(t *testing.T) {
	b, err := Open("memory", quiet)
	require.NoError(t, err)
	assert.Equal(t, "memory", b.Name())

	b, err = Open("sqlite", quiet)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", b.Name())
	assert.NoError(t, b.(io.Closer).Close())

	_, err = Open("duckdb", quiet)
	assert.ErrorContains(t, err, "unknown backend")
}

type spyBackend struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *spyBackend) Name() string { return "spy" }

func (s *spyBackend) Execute(ctx context.Context, plan *physical.Plan, tables map[string]*frame.Frame) (*frame.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return frame.NewExecutor(frame.WithLogger(quiet)).Execute(ctx, plan, tables)
}
