package harness

import (
	"strings"

	"github.com/roach88/relplan/internal/querydef"
)

// swapOperands returns a copy of doc with the sides of every single
// equality join predicate exchanged: "left.a == right.b" becomes
// "right.b == left.a". Bare key names and compound predicates are left
// alone.
func swapOperands(doc *querydef.Document) *querydef.Document {
	out := *doc
	out.Steps = make([]querydef.Step, len(doc.Steps))
	for i, st := range doc.Steps {
		if st.Join != nil {
			j := *st.Join
			j.On = swapAll(j.On)
			j.By = swapAll(j.By)
			st.Join = &j
		}
		out.Steps[i] = st
	}
	return &out
}

func swapAll(preds []string) []string {
	if preds == nil {
		return nil
	}
	out := make([]string, len(preds))
	for i, p := range preds {
		out[i] = swapPredicate(p)
	}
	return out
}

func swapPredicate(src string) string {
	if strings.Count(src, "==") != 1 {
		return src
	}
	lower := strings.ToLower(src)
	if strings.Contains(lower, " and ") || strings.Contains(lower, " or ") {
		return src
	}
	l, r, _ := strings.Cut(src, "==")
	return strings.TrimSpace(r) + " == " + strings.TrimSpace(l)
}
