package sqlexec

import (
	"fmt"
	"strings"

	"github.com/roach88/relplan/internal/ir"
	"github.com/roach88/relplan/internal/physical"
	"github.com/roach88/relplan/internal/schema"
)

// rowNumber is the hidden column as-of matching uses to break ties in
// favour of the last right row.
const rowNumber = "__relplan_rn"

// Query is a physical plan compiled to a single SQLite statement.
type Query struct {
	// SQL is a WITH ... SELECT statement. Every value is a ? placeholder.
	SQL string

	// Args holds the placeholder values in order.
	Args []any

	// Tables lists the scanned tables; Tables[i] is read from SourceTable(i).
	Tables []string
}

// SourceTable is the temporary table the i-th scanned frame is loaded into.
func SourceTable(i int) string {
	return fmt.Sprintf("relplan_src_%d", i)
}

// Compile translates plan into SQL.
//
// Each node becomes one common table expression, so a node shared by
// several parents (a self-join through a view) is computed once. The
// final SELECT always carries an ORDER BY: the plan's sort keys when the
// root is a Sort, every output column otherwise. Row order is therefore
// deterministic, though it only matches the in-memory engine for plans
// compiled with stable order.
func Compile(plan *physical.Plan) (*Query, error) {
	if plan == nil || plan.Root == nil {
		return nil, fmt.Errorf("cannot compile nil plan")
	}
	c := &sqlCompiler{
		names:   make(map[physical.Node]string),
		schemas: make(map[physical.Node]schema.Schema),
		tables:  make(map[string]int),
	}

	root := plan.Root
	order := plan.Schema.Names()
	if s, ok := root.(*physical.Sort); ok {
		root = s.Input
		order = s.Keys
	}
	name, err := c.node(root)
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(order))
	for i, k := range order {
		keys[i] = quote(k) + " ASC NULLS LAST"
	}

	var sb strings.Builder
	sb.WriteString("WITH ")
	sb.WriteString(strings.Join(c.ctes, ", "))
	fmt.Fprintf(&sb, " SELECT %s FROM %s", columnList(plan.Schema.Names()), name)
	if len(keys) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(keys, ", "))
	}

	return &Query{SQL: sb.String(), Args: c.args, Tables: c.scans}, nil
}

type sqlCompiler struct {
	names   map[physical.Node]string
	schemas map[physical.Node]schema.Schema
	tables  map[string]int
	scans   []string
	ctes    []string
	args    []any
}

// node compiles n and its inputs, returning the CTE name holding n's rows.
func (c *sqlCompiler) node(n physical.Node) (string, error) {
	if name, ok := c.names[n]; ok {
		return name, nil
	}
	for _, in := range physical.Inputs(n) {
		if _, err := c.node(in); err != nil {
			return "", err
		}
	}
	out, err := physical.Output(n)
	if err != nil {
		return "", err
	}

	var args []any
	body, err := c.body(n, &args)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("n%d", len(c.ctes))
	c.ctes = append(c.ctes, fmt.Sprintf("%s AS (%s)", name, body))
	c.args = append(c.args, args...)
	c.names[n] = name
	c.schemas[n] = out
	return name, nil
}

func (c *sqlCompiler) body(n physical.Node, args *[]any) (string, error) {
	switch node := n.(type) {
	case *physical.Scan:
		i, ok := c.tables[node.Table]
		if !ok {
			i = len(c.scans)
			c.tables[node.Table] = i
			c.scans = append(c.scans, node.Table)
		}
		return fmt.Sprintf("SELECT %s FROM temp.%s", columnList(node.Columns.Names()), quote(SourceTable(i))), nil

	case *physical.Merge:
		return c.merge(node)

	case *physical.MergeAsof:
		return c.mergeAsof(node)

	case *physical.Assign:
		in := c.schemas[node.Input]
		expr, err := exprSQL(node.Expr, args)
		if err != nil {
			return "", err
		}
		items := make([]string, 0, len(in)+1)
		replaced := false
		for _, col := range in {
			if col.Name == node.Name {
				items = append(items, fmt.Sprintf("%s AS %s", expr, quote(node.Name)))
				replaced = true
				continue
			}
			items = append(items, quote(col.Name))
		}
		if !replaced {
			items = append(items, fmt.Sprintf("%s AS %s", expr, quote(node.Name)))
		}
		return fmt.Sprintf("SELECT %s FROM %s", strings.Join(items, ", "), c.names[node.Input]), nil

	case *physical.Select:
		items := make([]string, len(node.Columns))
		for i, col := range node.Columns {
			if col == node.As[i] {
				items[i] = quote(col)
			} else {
				items[i] = fmt.Sprintf("%s AS %s", quote(col), quote(node.As[i]))
			}
		}
		return fmt.Sprintf("SELECT %s FROM %s", strings.Join(items, ", "), c.names[node.Input]), nil

	case *physical.Filter:
		mask, err := exprSQL(node.Mask, args)
		if err != nil {
			return "", err
		}
		cols := columnList(c.schemas[node.Input].Names())
		return fmt.Sprintf("SELECT %s FROM %s WHERE %s", cols, c.names[node.Input], mask), nil

	case *physical.Sort:
		keys := make([]string, len(node.Keys))
		for i, k := range node.Keys {
			keys[i] = quote(k) + " ASC NULLS LAST"
		}
		cols := columnList(c.schemas[node.Input].Names())
		return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", cols, c.names[node.Input], strings.Join(keys, ", ")), nil

	default:
		return "", fmt.Errorf("unsupported node type: %T", n)
	}
}

var joinKeyword = map[physical.How]string{
	physical.HowInner: "JOIN",
	physical.HowLeft:  "LEFT JOIN",
	physical.HowRight: "RIGHT JOIN",
	physical.HowOuter: "FULL OUTER JOIN",
}

func (c *sqlCompiler) merge(m *physical.Merge) (string, error) {
	kw, ok := joinKeyword[m.How]
	if !ok {
		return "", fmt.Errorf("unsupported merge how %q", m.How)
	}
	keys := make([]schema.KeyPair, len(m.LeftOn))
	conds := make([]string, len(m.LeftOn))
	for i := range m.LeftOn {
		keys[i] = schema.KeyPair{Left: m.LeftOn[i], Right: m.RightOn[i]}
		conds[i] = fmt.Sprintf("l.%s = r.%s", quote(m.LeftOn[i]), quote(m.RightOn[i]))
	}
	items, err := c.combined(m.Left, m.Right, keys, m.Suffixes)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT %s FROM %s AS l %s %s AS r ON %s",
		items, c.names[m.Left], kw, c.names[m.Right], strings.Join(conds, " AND ")), nil
}

// mergeAsof joins every left row to at most one right row, chosen by a
// correlated subquery: the greatest ordering value not above the left
// one, last row first among ties.
func (c *sqlCompiler) mergeAsof(m *physical.MergeAsof) (string, error) {
	keys := []schema.KeyPair{{Left: m.LeftOn, Right: m.RightOn}}
	conds := []string{fmt.Sprintf("x.%s <= l.%s", quote(m.RightOn), quote(m.LeftOn))}
	for i := range m.LeftBy {
		keys = append(keys, schema.KeyPair{Left: m.LeftBy[i], Right: m.RightBy[i]})
		conds = append(conds, fmt.Sprintf("x.%s = l.%s", quote(m.RightBy[i]), quote(m.LeftBy[i])))
	}
	items, err := c.combined(m.Left, m.Right, keys, m.Suffixes)
	if err != nil {
		return "", err
	}

	numbered := fmt.Sprintf("n%d", len(c.ctes))
	c.ctes = append(c.ctes, fmt.Sprintf("%s AS MATERIALIZED (SELECT *, ROW_NUMBER() OVER () AS %s FROM %s)",
		numbered, quote(rowNumber), c.names[m.Right]))
	pick := fmt.Sprintf("SELECT x.%s FROM %s AS x WHERE %s ORDER BY x.%s DESC, x.%s DESC LIMIT 1",
		quote(rowNumber), numbered, strings.Join(conds, " AND "), quote(m.RightOn), quote(rowNumber))
	return fmt.Sprintf("SELECT %s FROM %s AS l LEFT JOIN %s AS r ON r.%s = (%s)",
		items, c.names[m.Left], numbered, quote(rowNumber), pick), nil
}

// combined renders the select list of a two-input node, laid out by
// schema.Combine. Merged keys coalesce left then right.
func (c *sqlCompiler) combined(left, right physical.Node, keys []schema.KeyPair, sfx schema.Suffixes) (string, error) {
	ls, rs := c.schemas[left], c.schemas[right]
	comb, err := schema.Combine(ls.Names(), rs.Names(), keys, sfx)
	if err != nil {
		return "", err
	}
	items := make([]string, len(comb.Names))
	for i, src := range comb.Sources {
		var expr string
		switch src.Kind {
		case schema.FromLeft:
			expr = "l." + quote(ls[src.Left].Name)
		case schema.FromRight:
			expr = "r." + quote(rs[src.Right].Name)
		default:
			expr = fmt.Sprintf("COALESCE(l.%s, r.%s)", quote(ls[src.Left].Name), quote(rs[src.Right].Name))
		}
		items[i] = fmt.Sprintf("%s AS %s", expr, quote(comb.Names[i]))
	}
	return strings.Join(items, ", "), nil
}

var sqlOps = map[string]string{
	"==": "=", "!=": "<>", "<": "<", "<=": "<=", ">": ">", ">=": ">=",
	"and": "AND", "or": "OR",
	"+": "+", "-": "-", "*": "*",
}

// exprSQL renders e, appending literal values to args.
func exprSQL(e physical.Expr, args *[]any) (string, error) {
	switch x := e.(type) {
	case *physical.Col:
		return quote(x.Name), nil
	case *physical.Lit:
		if x.Value == nil || ir.IsNull(x.Value) {
			return "NULL", nil
		}
		v, err := toSQL(x.Value)
		if err != nil {
			return "", err
		}
		*args = append(*args, v)
		return "?", nil
	case *physical.Binary:
		op, ok := sqlOps[x.Op]
		if !ok {
			return "", fmt.Errorf("unsupported operator %q", x.Op)
		}
		l, err := exprSQL(x.Left, args)
		if err != nil {
			return "", err
		}
		r, err := exprSQL(x.Right, args)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s %s %s)", l, op, r), nil
	case *physical.Unary:
		arg, err := exprSQL(x.Arg, args)
		if err != nil {
			return "", err
		}
		switch x.Op {
		case "length":
			return fmt.Sprintf("length(%s)", arg), nil
		case "not":
			return fmt.Sprintf("(NOT %s)", arg), nil
		case "isnull":
			return fmt.Sprintf("(%s IS NULL)", arg), nil
		}
		return "", fmt.Errorf("unsupported operator %q", x.Op)
	default:
		return "", fmt.Errorf("unsupported expression type: %T", e)
	}
}

// toSQL converts a scalar to a driver value. Booleans are stored as 0/1.
func toSQL(v ir.IRValue) (any, error) {
	switch x := v.(type) {
	case ir.IRNull:
		return nil, nil
	case ir.IRString:
		return string(x), nil
	case ir.IRInt:
		return int64(x), nil
	case ir.IRBool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	default:
		return nil, fmt.Errorf("%s values cannot be stored in a column", ir.KindOf(v))
	}
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func columnList(names []string) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = quote(n)
	}
	return strings.Join(parts, ", ")
}
