package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/relplan/internal/querydef"
)

func TestSwapPredicate(t *testing.T) {
	tests := map[string]string{
		"left.key == right.key":                     "right.key == left.key",
		"df2.key==df1.key":                          "df1.key == df2.key",
		"key":                                       "key",
		"left.a == right.a and left.b == right.b":   "left.a == right.a and left.b == right.b",
		"length(left.k) == length(right.k) or true": "length(left.k) == length(right.k) or true",
		"length(left.k) == length(right.k)":         "length(right.k) == length(left.k)",
	}
	for in, want := range tests {
		assert.Equal(t, want, swapPredicate(in), in)
	}
}

func TestSwapOperands_CopiesDocument(t *testing.T) {
	doc := &querydef.Document{Steps: []querydef.Step{
		{Name: "a", Table: "t"},
		{Name: "j", Join: &querydef.JoinDef{Left: "a", Right: "b", On: []string{"left.x == right.y"}}},
	}}

	swapped := swapOperands(doc)
	assert.Equal(t, []string{"right.y == left.x"}, swapped.Steps[1].Join.On)
	assert.Nil(t, swapped.Steps[1].Join.By)
	assert.Equal(t, []string{"left.x == right.y"}, doc.Steps[1].Join.On, "input is unchanged")
	assert.Equal(t, "t", swapped.Steps[0].Table)
}
