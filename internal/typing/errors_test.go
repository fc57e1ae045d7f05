package typing

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionError(t *testing.T) {
	base := errors.New("deadlock detected")
	err := fmt.Errorf("sync: %w", &ExecutionError{Stream: "shop.orders", Step: "update_table", Err: base})

	assert.True(t, IsExecutionError(err))
	assert.False(t, IsMigrationError(err))
	assert.ErrorIs(t, err, base)
	assert.EqualError(t, err, "sync: execution failed for stream shop.orders during update_table: deadlock detected")
}

func TestMigrationError(t *testing.T) {
	err := &MigrationError{Stream: "shop.orders", Version: 3, Err: errors.New("unknown version")}
	assert.True(t, IsMigrationError(err))
	assert.Contains(t, err.Error(), "version 3")
}

func TestParseTypingErrors(t *testing.T) {
	errs, err := ParseTypingErrors([]byte(`{"errors":{"when":"failed to cast value to DATE","n":"failed to cast value to INTEGER"}}`))
	require.NoError(t, err)
	assert.Equal(t, []TypingError{
		{Field: "n", Message: "failed to cast value to INTEGER"},
		{Field: "when", Message: "failed to cast value to DATE"},
	}, errs)

	errs, err = ParseTypingErrors(nil)
	assert.NoError(t, err)
	assert.Nil(t, errs)

	_, err = ParseTypingErrors([]byte("{"))
	assert.ErrorContains(t, err, "invalid meta blob")
}
