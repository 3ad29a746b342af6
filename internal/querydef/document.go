// Package querydef reads query documents: named input tables with their
// rows, and a sequence of named steps (join, select, filter, mutate,
// rename, view) that build a relation over them.
//
// Documents are written in YAML or CUE with the same shape:
//
//	tables:
//	  df1:
//	    columns: [{name: key, type: string}, {name: value, type: int64}]
//	    rows: [{key: a, value: 3}]
//	steps:
//	  - name: joined
//	    join: {left: df1, right: df2, how: inner, on: [key]}
//	  - name: out
//	    select: {from: joined, columns: ["df1.*", "df2.other_value"]}
//
// Expressions are strings in a small language (see ParseExpr).
package querydef

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/relplan/internal/frame"
	"github.com/roach88/relplan/internal/relir"
	"github.com/roach88/relplan/internal/schema"
)

// Document is a parsed query document.
type Document struct {
	Tables map[string]TableDef `json:"tables" yaml:"tables"`
	Steps  []Step              `json:"steps" yaml:"steps"`

	// Output names the step whose relation the document produces. Defaults
	// to the last step.
	Output string `json:"output,omitempty" yaml:"output,omitempty"`
}

// TableDef declares an input table.
type TableDef struct {
	Columns []ColumnDef      `json:"columns" yaml:"columns"`
	Rows    []map[string]any `json:"rows,omitempty" yaml:"rows,omitempty"`
}

// ColumnDef declares one column. Type is parsed with schema.ParseDType.
type ColumnDef struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// Step is one named relation. Exactly one operation field must be set.
type Step struct {
	Name string `json:"name" yaml:"name"`

	Table  string     `json:"table,omitempty" yaml:"table,omitempty"`
	View   string     `json:"view,omitempty" yaml:"view,omitempty"`
	Join   *JoinDef   `json:"join,omitempty" yaml:"join,omitempty"`
	Select *SelectDef `json:"select,omitempty" yaml:"select,omitempty"`
	Filter *FilterDef `json:"filter,omitempty" yaml:"filter,omitempty"`
	Mutate *MutateDef `json:"mutate,omitempty" yaml:"mutate,omitempty"`
	Rename *RenameDef `json:"rename,omitempty" yaml:"rename,omitempty"`
}

// JoinDef joins two earlier steps or tables.
//
// Each On entry is either a bare column name, shorthand for
// "left.name == right.name", or an equality expression. For how: asof, On
// holds exactly the ordering predicate and By the grouping keys.
type JoinDef struct {
	Left     string   `json:"left" yaml:"left"`
	Right    string   `json:"right" yaml:"right"`
	How      string   `json:"how,omitempty" yaml:"how,omitempty"`
	On       []string `json:"on" yaml:"on"`
	By       []string `json:"by,omitempty" yaml:"by,omitempty"`
	Suffixes []string `json:"suffixes,omitempty" yaml:"suffixes,omitempty"`
}

// SelectDef projects columns of From. Entries follow ParseSelection.
type SelectDef struct {
	From    string   `json:"from" yaml:"from"`
	Columns []string `json:"columns" yaml:"columns"`
}

// FilterDef keeps the rows of From where Where holds.
type FilterDef struct {
	From  string `json:"from" yaml:"from"`
	Where string `json:"where" yaml:"where"`
}

// MutateDef adds or replaces columns. Each Set entry is "name = expr".
type MutateDef struct {
	From string   `json:"from" yaml:"from"`
	Set  []string `json:"set" yaml:"set"`
}

// RenameDef renames columns of From; Columns maps new names to old ones.
type RenameDef struct {
	From    string            `json:"from" yaml:"from"`
	Columns map[string]string `json:"columns" yaml:"columns"`
}

// Built is the result of Build.
type Built struct {
	// Relation is the output step's relation.
	Relation relir.Relation

	// Frames holds the input data keyed by table name.
	Frames map[string]*frame.Frame

	// Steps maps every table and step name to its relation.
	Steps Scope
}

// Build constructs the input frames and the relation a document describes.
func Build(doc *Document) (*Built, error) {
	b := &Built{
		Frames: make(map[string]*frame.Frame, len(doc.Tables)),
		Steps:  make(Scope, len(doc.Tables)+len(doc.Steps)),
	}

	names := make([]string, 0, len(doc.Tables))
	for name := range doc.Tables {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		f, t, err := buildTable(name, doc.Tables[name])
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", name, err)
		}
		b.Frames[name] = f
		b.Steps[name] = t
	}

	var last string
	for i, st := range doc.Steps {
		if st.Name == "" {
			return nil, fmt.Errorf("step %d: name is required", i)
		}
		if _, dup := b.Steps[st.Name]; dup {
			return nil, fmt.Errorf("step %s: name already defined", st.Name)
		}
		rel, err := buildStep(st, b.Steps)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", st.Name, err)
		}
		b.Steps[st.Name] = rel
		last = st.Name
	}

	out := doc.Output
	if out == "" {
		out = last
	}
	if out == "" {
		return nil, fmt.Errorf("document has no steps and no output")
	}
	rel, ok := b.Steps[out]
	if !ok {
		return nil, fmt.Errorf("output %q is not a step or table", out)
	}
	b.Relation = rel
	return b, nil
}

func buildTable(name string, def TableDef) (*frame.Frame, *relir.Table, error) {
	cols := make(schema.Schema, len(def.Columns))
	for i, c := range def.Columns {
		t, err := schema.ParseDType(c.Type)
		if err != nil {
			return nil, nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		cols[i] = schema.Column{Name: c.Name, Type: t}
	}
	t, err := relir.NewTable(name, cols)
	if err != nil {
		return nil, nil, err
	}
	f, err := frame.FromRecords(cols, def.Rows)
	if err != nil {
		return nil, nil, err
	}
	return f, t, nil
}

func buildStep(st Step, scope Scope) (relir.Relation, error) {
	set := 0
	for _, ok := range []bool{st.Table != "", st.View != "", st.Join != nil, st.Select != nil,
		st.Filter != nil, st.Mutate != nil, st.Rename != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("exactly one of table, view, join, select, filter, mutate, rename is required (got %d)", set)
	}

	switch {
	case st.Table != "":
		return lookup(scope, st.Table)
	case st.View != "":
		in, err := lookup(scope, st.View)
		if err != nil {
			return nil, err
		}
		return relir.NewView(in)
	case st.Join != nil:
		return buildJoin(st.Join, scope)
	case st.Select != nil:
		in, err := lookup(scope, st.Select.From)
		if err != nil {
			return nil, err
		}
		items := make([]relir.Selection, len(st.Select.Columns))
		for i, c := range st.Select.Columns {
			if items[i], err = ParseSelection(c, scope); err != nil {
				return nil, err
			}
		}
		return relir.NewProject(in, items...)
	case st.Filter != nil:
		in, err := lookup(scope, st.Filter.From)
		if err != nil {
			return nil, err
		}
		pred, err := ParseExpr(st.Filter.Where, scope)
		if err != nil {
			return nil, err
		}
		return relir.NewFilter(in, pred)
	case st.Mutate != nil:
		in, err := lookup(scope, st.Mutate.From)
		if err != nil {
			return nil, err
		}
		assigns := make([]relir.Assignment, len(st.Mutate.Set))
		for i, s := range st.Mutate.Set {
			name, src, ok := strings.Cut(s, "=")
			name = strings.TrimSpace(name)
			if !ok || name == "" || strings.HasPrefix(src, "=") {
				return nil, fmt.Errorf("mutate entry %q: want \"name = expr\"", s)
			}
			e, err := ParseExpr(src, scope)
			if err != nil {
				return nil, err
			}
			assigns[i] = relir.Set(name, e)
		}
		return relir.NewMutate(in, assigns...)
	default:
		in, err := lookup(scope, st.Rename.From)
		if err != nil {
			return nil, err
		}
		return relir.NewRename(in, st.Rename.Columns)
	}
}

func buildJoin(def *JoinDef, scope Scope) (relir.Relation, error) {
	left, err := lookup(scope, def.Left)
	if err != nil {
		return nil, err
	}
	right, err := lookup(scope, def.Right)
	if err != nil {
		return nil, err
	}
	kind, err := relir.ParseJoinKind(def.How)
	if err != nil {
		return nil, err
	}

	var opts []relir.JoinOption
	switch len(def.Suffixes) {
	case 0:
	case 2:
		opts = append(opts, relir.WithSuffixes(def.Suffixes[0], def.Suffixes[1]))
	default:
		return nil, fmt.Errorf("suffixes: want [left, right], got %d entries", len(def.Suffixes))
	}

	on, err := predicates(def.On, scope)
	if err != nil {
		return nil, err
	}
	by, err := predicates(def.By, scope)
	if err != nil {
		return nil, err
	}

	if kind == relir.Asof {
		if len(on) != 1 {
			return nil, fmt.Errorf("asof join needs exactly one on predicate, got %d", len(on))
		}
		return relir.NewAsofJoin(left, right, on[0], by, opts...)
	}
	if len(by) > 0 {
		return nil, fmt.Errorf("by is only valid for asof joins")
	}
	return relir.NewJoin(left, right, kind, on, opts...)
}

// predicates parses join predicates; a bare identifier is an equi-join
// key present on both sides.
func predicates(srcs []string, scope Scope) ([]relir.Expr, error) {
	out := make([]relir.Expr, 0, len(srcs))
	for _, src := range srcs {
		if isIdentifier(src) {
			out = append(out, relir.Key(strings.TrimSpace(src)))
			continue
		}
		e, err := ParseExpr(src, scope)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func isIdentifier(src string) bool {
	tokens, err := newLexer(src).lex()
	return err == nil && len(tokens) == 2 && tokens[0].tokenType == tkIdentifier
}

func lookup(scope Scope, name string) (relir.Relation, error) {
	rel, ok := scope[name]
	if !ok {
		return nil, fmt.Errorf("unknown step or table %q", name)
	}
	return rel, nil
}
