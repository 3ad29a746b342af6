package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Valid(t *testing.T) {
	out, err := execute(t, "validate", "testdata/join.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ testdata/join.yaml is valid: 2 step(s), 2 table(s)")
	assert.Contains(t, out, "Output columns: [id city]")
}

func TestValidate_JSON(t *testing.T) {
	out, err := execute(t, "validate", "--format", "json", "testdata/join.yaml")
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 2, resp.Data.Steps)
	assert.Equal(t, []string{"orders", "customers"}, resp.Data.Tables)
}

func TestValidate_Invalid(t *testing.T) {
	out, err := execute(t, "validate", "testdata/bad_predicate.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, "Error [E201]")
	assert.Contains(t, out, "INVALID_JOIN_PREDICATE")
}

func TestMapPlanErrorCode(t *testing.T) {
	assert.Equal(t, ErrCodeDuplicateColumn, MapPlanErrorCode("UNDEFINED_DUPLICATE_COLUMN"))
	assert.Equal(t, ErrCodeAmbiguousColumn, MapPlanErrorCode("AMBIGUOUS_COLUMN_REFERENCE"))
	assert.Equal(t, ErrCodeGeneric, MapPlanErrorCode("SOMETHING_ELSE"))
}
