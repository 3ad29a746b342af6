// Package sqlexec executes physical plans on SQLite.
//
// Frames are loaded into temporary tables, the plan is compiled to one
// parameterized WITH ... SELECT statement (see Compile), and the result is
// read back into a frame typed by the plan's schema. Booleans are stored
// as 0/1 integers and converted back on read.
package sqlexec

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/relplan/internal/frame"
	"github.com/roach88/relplan/internal/ir"
	"github.com/roach88/relplan/internal/physical"
	"github.com/roach88/relplan/internal/schema"
)

// Engine runs plans against a SQLite database.
// Uses a single connection: temporary tables are connection scoped.
type Engine struct {
	db     *sql.DB
	logger *slog.Logger

	// mu serializes executions so concurrent callers never see each
	// other's temporary tables.
	mu sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// Open creates or opens a SQLite database at path. Use ":memory:" for a
// private in-memory database.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
func Open(path string, opts ...Option) (*Engine, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	e := &Engine{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Close closes the database connection.
func (e *Engine) Close() error {
	if e.db == nil {
		return nil
	}
	return e.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Execute evaluates plan over tables. Source tables are dropped before
// Execute returns, whatever the outcome.
func (e *Engine) Execute(ctx context.Context, plan *physical.Plan, tables map[string]*frame.Frame) (*frame.Frame, error) {
	q, err := Compile(plan)
	if err != nil {
		return nil, fmt.Errorf("compile sql: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	defer e.dropSources(conn, len(q.Tables))
	for i, name := range q.Tables {
		f, ok := tables[name]
		if !ok {
			return nil, fmt.Errorf("scan: table %q is not registered", name)
		}
		if err := load(ctx, conn, SourceTable(i), f); err != nil {
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
	}

	out, err := query(ctx, conn, q, plan.Schema)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("executed plan",
		"engine", "sqlite",
		"fingerprint", plan.Fingerprint,
		"rows", out.Len())
	return out, nil
}

func (e *Engine) dropSources(conn *sql.Conn, n int) {
	for i := 0; i < n; i++ {
		stmt := "DROP TABLE IF EXISTS temp." + quote(SourceTable(i))
		if _, err := conn.ExecContext(context.Background(), stmt); err != nil {
			e.logger.Warn("failed to drop source table", "table", SourceTable(i), "error", err)
		}
	}
}

var affinity = map[schema.DType]string{
	schema.String:    "TEXT",
	schema.Int64:     "INTEGER",
	schema.Timestamp: "INTEGER",
	schema.Bool:      "INTEGER",
	schema.Unknown:   "",
}

// load copies f into a fresh temporary table inside one transaction.
func load(ctx context.Context, conn *sql.Conn, table string, f *frame.Frame) error {
	s := f.Schema()
	defs := make([]string, len(s))
	for i, c := range s {
		defs[i] = strings.TrimSpace(quote(c.Name) + " " + affinity[c.Type])
	}
	name := "temp." + quote(table)
	if _, err := conn.ExecContext(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("CREATE TEMP TABLE %s (%s)", quote(table), strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	marks := strings.TrimSuffix(strings.Repeat("?, ", len(s)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", name, columnList(s.Names()), marks))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(s))
	for i, row := range f.Rows() {
		for j, v := range row {
			if args[j], err = toSQL(v); err != nil {
				return fmt.Errorf("row %d column %q: %w", i, s[j].Name, err)
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// query runs q and converts the result to a frame of layout out.
func query(ctx context.Context, conn *sql.Conn, q *Query, out schema.Schema) (*frame.Frame, error) {
	rows, err := conn.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if len(cols) != len(out) {
		return nil, fmt.Errorf("query returned %d columns, plan declares %d", len(cols), len(out))
	}

	var result [][]ir.IRValue
	raw := make([]any, len(out))
	ptrs := make([]any, len(out))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make([]ir.IRValue, len(out))
		for j, v := range raw {
			if row[j], err = fromSQL(v, out[j].Type); err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", len(result), out[j].Name, err)
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return frame.New(out, result)
}

// fromSQL converts a driver value back to a scalar of column type t.
func fromSQL(v any, t schema.DType) (ir.IRValue, error) {
	switch x := v.(type) {
	case nil:
		return ir.Null, nil
	case int64:
		if t == schema.Bool {
			return ir.IRBool(x != 0), nil
		}
		return ir.IRInt(x), nil
	case bool:
		return ir.IRBool(x), nil
	case string:
		return ir.IRString(x), nil
	case []byte:
		return ir.IRString(x), nil
	case float64:
		return nil, fmt.Errorf("floats are forbidden: %v", x)
	default:
		return nil, fmt.Errorf("unsupported driver value %T", v)
	}
}
