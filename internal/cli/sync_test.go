package cli

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/arwahdevops/dbtyper/internal/logger"
	"github.com/arwahdevops/dbtyper/internal/typing"
)

func TestProcessResults(t *testing.T) {
	logger.Log = zaptest.NewLogger(t)

	ok := typing.StreamResult{Stream: "shop.orders", Duration: time.Second, TypingErrorRows: 2}
	failed := typing.StreamResult{
		Stream: "shop.events",
		Error:  &typing.ExecutionError{Step: "update_table(incremental)", Statement: "INSERT ...", Err: errors.New("disk full")},
	}
	skipped := typing.StreamResult{Stream: "shop.refunds", Skipped: true, SkipReason: "context canceled"}

	testCases := []struct {
		name     string
		results  map[string]typing.StreamResult
		expected int
	}{
		{"nothing", map[string]typing.StreamResult{}, ExitNothingDone},
		{"success", map[string]typing.StreamResult{"shop.orders": ok}, ExitSuccess},
		{"one failure", map[string]typing.StreamResult{"shop.orders": ok, "shop.events": failed}, ExitFailure},
		{"all skipped", map[string]typing.StreamResult{"shop.refunds": skipped}, ExitNothingDone},
		{"some skipped", map[string]typing.StreamResult{"shop.orders": ok, "shop.refunds": skipped}, ExitSuccess},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, processResults(tc.results))
		})
	}
}
