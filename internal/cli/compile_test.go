package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const joinPlan = `output [id:int64, city:string]
Select [id, city]
  Merge how=left left_on=[customer] right_on=[name] suffixes=("", "_right")
    Scan orders [id:int64, customer:string]
    Scan customers [name:string, city:string]
`

func TestCompile_Text(t *testing.T) {
	out, err := execute(t, "compile", "testdata/join.yaml")
	require.NoError(t, err)
	assert.Equal(t, joinPlan, out)
}

func TestCompile_StableOrder(t *testing.T) {
	out, err := execute(t, "explain", "--stable-order", "testdata/join.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "stable order\nSort [id, city]\n")
}

func TestCompile_JSON(t *testing.T) {
	out, err := execute(t, "compile", "--format", "json", "testdata/join.yaml")
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []string{"id", "city"}, resp.Data.Columns)
	assert.Equal(t, []string{"orders", "customers"}, resp.Data.Tables)
	assert.NotEmpty(t, resp.Data.Fingerprint)
	assert.Equal(t, joinPlan, resp.Data.Explain)
}

func TestCompile_OutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.txt")
	out, err := execute(t, "compile", "-o", path, "testdata/join.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote plan to "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, joinPlan, string(data))
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		path string
		code string
	}{
		{"missing document", "testdata/nope.yaml", ErrCodeNotFound},
		{"non-equality join", "testdata/bad_predicate.yaml", ErrCodeInvalidJoinPredicate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, "compile", tt.path)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "Error ["+tt.code+"]")
		})
	}
}

func TestCompile_DecodeErrorHasPosition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.cue")
	require.NoError(t, os.WriteFile(path, []byte("tables: {\n\tx: columns: 1 & 2\n}\n"), 0o644))

	out, err := execute(t, "compile", "--format", "json", path)
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeLoadFailed, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "bad.cue:2:")
}
