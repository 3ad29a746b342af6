package relir

import (
	"fmt"
	"strings"
)

// Explain renders a relation tree, one node per line, inputs indented
// below the node that consumes them. Output is deterministic for a given
// tree shape; node IDs are not printed.
func Explain(rel Relation) string {
	var sb strings.Builder
	explainNode(&sb, rel, 0)
	return sb.String()
}

func explainNode(sb *strings.Builder, rel Relation, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
	switch n := rel.(type) {
	case *Table:
		fmt.Fprintf(sb, "Table %s [%s]\n", n.Name, n.Schema())
	case *View:
		fmt.Fprintf(sb, "View [%s]\n", n.Schema())
	case *Join:
		keys := make([]string, len(n.Keys))
		for i, k := range n.Keys {
			keys[i] = k.String()
		}
		if n.Kind == Asof {
			fmt.Fprintf(sb, "Join asof on %s by [%s] -> [%s]\n", n.On.String(), strings.Join(keys, ", "), n.Schema())
		} else {
			fmt.Fprintf(sb, "Join %s on [%s] -> [%s]\n", n.Kind, strings.Join(keys, ", "), n.Schema())
		}
	case *Project:
		items := make([]string, len(n.Items))
		for i, it := range n.Items {
			if bc, ok := it.Expr.(*BoundColumn); ok && bc.Column.Name == it.Name {
				items[i] = it.Name
				continue
			}
			items[i] = it.Name + "=" + ExprString(it.Expr)
		}
		fmt.Fprintf(sb, "Project [%s]\n", strings.Join(items, ", "))
	case *Filter:
		fmt.Fprintf(sb, "Filter %s\n", ExprString(n.Predicate))
	case *Mutate:
		items := make([]string, len(n.Assignments))
		for i, a := range n.Assignments {
			items[i] = a.Name + "=" + ExprString(a.Expr)
		}
		fmt.Fprintf(sb, "Mutate [%s]\n", strings.Join(items, ", "))
	case *Rename:
		items := make([]string, len(n.Pairs))
		for i, p := range n.Pairs {
			items[i] = p.From + "->" + p.To
		}
		fmt.Fprintf(sb, "Rename [%s]\n", strings.Join(items, ", "))
	default:
		fmt.Fprintf(sb, "%T\n", rel)
	}
	for _, in := range rel.Inputs() {
		explainNode(sb, in, depth+1)
	}
}
