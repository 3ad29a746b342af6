package physical

import (
	"fmt"
	"strings"
)

// Explain renders a plan as indented text: the output schema, then the
// operator tree with inputs below their consumer. The fingerprint is not
// included so the text is stable across builds.
func Explain(p *Plan) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "output [%s]\n", p.Schema)
	if p.StableOrder {
		sb.WriteString("stable order\n")
	}
	explainNode(&sb, p.Root, 0)
	return sb.String()
}

// ExplainNode renders a subtree.
func ExplainNode(n Node) string {
	var sb strings.Builder
	explainNode(&sb, n, 0)
	return sb.String()
}

func explainNode(sb *strings.Builder, n Node, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
	switch x := n.(type) {
	case *Scan:
		fmt.Fprintf(sb, "Scan %s [%s]\n", x.Table, x.Columns)
	case *Merge:
		fmt.Fprintf(sb, "Merge how=%s %s suffixes=(%q, %q)\n", x.How, mergeKeys(x), x.Suffixes.Left, x.Suffixes.Right)
	case *MergeAsof:
		on := "on=" + x.LeftOn
		if x.LeftOn != x.RightOn {
			on = "left_on=" + x.LeftOn + " right_on=" + x.RightOn
		}
		by := "by=[" + strings.Join(x.LeftBy, ", ") + "]"
		if strings.Join(x.LeftBy, ",") != strings.Join(x.RightBy, ",") {
			by = "left_by=[" + strings.Join(x.LeftBy, ", ") + "] right_by=[" + strings.Join(x.RightBy, ", ") + "]"
		}
		fmt.Fprintf(sb, "MergeAsof %s %s suffixes=(%q, %q)\n", on, by, x.Suffixes.Left, x.Suffixes.Right)
	case *Assign:
		fmt.Fprintf(sb, "Assign %s:%s = %s\n", x.Name, x.Type, ExprString(x.Expr))
	case *Select:
		cols := make([]string, len(x.Columns))
		for i, c := range x.Columns {
			cols[i] = c
			if i < len(x.As) && x.As[i] != c {
				cols[i] = c + "->" + x.As[i]
			}
		}
		fmt.Fprintf(sb, "Select [%s]\n", strings.Join(cols, ", "))
	case *Filter:
		fmt.Fprintf(sb, "Filter %s\n", ExprString(x.Mask))
	case *Sort:
		fmt.Fprintf(sb, "Sort [%s]\n", strings.Join(x.Keys, ", "))
	default:
		fmt.Fprintf(sb, "%T\n", n)
	}
	for _, in := range Inputs(n) {
		explainNode(sb, in, depth+1)
	}
}

func mergeKeys(m *Merge) string {
	if on, ok := m.On(); ok {
		return "on=[" + strings.Join(on, ", ") + "]"
	}
	return "left_on=[" + strings.Join(m.LeftOn, ", ") + "] right_on=[" + strings.Join(m.RightOn, ", ") + "]"
}
