package typing

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ExecutionError wraps a destination failure. The stream halts, other streams
// continue, and no state is written for the failed stream.
type ExecutionError struct {
	Stream    string
	Step      string
	Statement string
	Err       error
}

func (e *ExecutionError) Error() string {
	msg := "execution failed"
	if e.Stream != "" {
		msg += " for stream " + e.Stream
	}
	if e.Step != "" {
		msg += " during " + e.Step
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// MigrationError reports a state blob that could not be upgraded.
type MigrationError struct {
	Stream  string
	Version int
	Err     error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("state migration to version %d failed for stream %s: %v", e.Version, e.Stream, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// IsExecutionError reports whether err (or anything it wraps) is an ExecutionError.
func IsExecutionError(err error) bool {
	var target *ExecutionError
	return errors.As(err, &target)
}

// IsMigrationError reports whether err (or anything it wraps) is a MigrationError.
func IsMigrationError(err error) bool {
	var target *MigrationError
	return errors.As(err, &target)
}

// TypingError is a row-local cast failure recorded in the final row's meta blob.
type TypingError struct {
	Field   string
	Message string
}

// ParseTypingErrors decodes the "errors" object of a final-table meta blob,
// sorted by field.
func ParseTypingErrors(meta []byte) ([]TypingError, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	var doc struct {
		Errors map[string]string `json:"errors"`
	}
	if err := json.Unmarshal(meta, &doc); err != nil {
		return nil, fmt.Errorf("invalid meta blob: %w", err)
	}
	out := make([]TypingError, 0, len(doc.Errors))
	for f, m := range doc.Errors {
		out = append(out, TypingError{Field: f, Message: m})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out, nil
}

func castErrorMessage(k Kind) string {
	return "failed to cast value to " + string(k)
}
