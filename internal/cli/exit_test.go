package cli

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetExitCode(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil", nil, ExitSuccess},
		{"plain error", errors.New("boom"), ExitFailure},
		{"exit error", NewExitError(ExitNothingDone, "nothing"), ExitNothingDone},
		{"wrapped exit error", fmt.Errorf("run: %w", WrapExitError(ExitCommandError, "config", errors.New("bad"))), ExitCommandError},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, GetExitCode(tc.err))
		})
	}
}

func TestExitErrorMessage(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapExitError(ExitCommandError, "failed to establish destination connection", cause)
	assert.EqualError(t, err, "failed to establish destination connection: connection refused")
	assert.ErrorIs(t, err, cause)
	assert.EqualError(t, NewExitError(ExitFailure, "one or more streams failed"), "one or more streams failed")
}
