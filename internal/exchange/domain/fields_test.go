package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFields(t *testing.T) {
	schema := `[{"name":"receipt","required":true},{"name":"note"}]`

	require.NoError(t, ValidateFields(schema, `{"receipt":"r-1"}`))
	require.NoError(t, ValidateFields(schema, `{"receipt":"r-1","note":"paid at 12:00"}`))

	err := ValidateFields(schema, `{"note":"paid"}`)
	assert.ErrorIs(t, err, ErrConfirmationFields)

	err = ValidateFields(schema, `{"receipt":"r-1","amount":"500"}`)
	assert.ErrorIs(t, err, ErrConfirmationFields)

	err = ValidateFields(schema, "")
	assert.ErrorIs(t, err, ErrConfirmationFields)

	err = ValidateFields(schema, "not json")
	assert.ErrorIs(t, err, ErrConfirmationFields)

	// without a schema any non-empty proof is accepted
	require.NoError(t, ValidateFields("", `{"anything":"goes"}`))
	assert.ErrorIs(t, ValidateFields("", "  "), ErrConfirmationFields)
}

func TestParseFieldSchema(t *testing.T) {
	specs, err := ParseFieldSchema(`[{"name":"card","label":"Card number","required":true}]`)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "card", specs[0].Name)
	assert.True(t, specs[0].Required)

	specs, err = ParseFieldSchema("")
	require.NoError(t, err)
	assert.Empty(t, specs)

	_, err = ParseFieldSchema("{broken")
	assert.Error(t, err)
}
