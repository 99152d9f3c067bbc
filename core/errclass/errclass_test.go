package errclass

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"solvkeep/core/eventstore"
	"solvkeep/core/oracle"
	"solvkeep/core/oracle/adapter"
	"solvkeep/core/ray"
)

func TestClassifyTransientDeadline(t *testing.T) {
	require.Equal(t, TransientExternal, Classify(context.DeadlineExceeded))
	require.True(t, Retryable(Classify(context.DeadlineExceeded)))
}

func TestClassifyDataIntegrity(t *testing.T) {
	require.Equal(t, DataIntegrity, Classify(eventstore.ErrConflictingPayload))
	require.Equal(t, DataIntegrity, Classify(eventstore.ErrOutOfOrder))
}

func TestClassifyNumeric(t *testing.T) {
	require.Equal(t, Numeric, Classify(ray.ErrOverflow))
	require.Equal(t, Numeric, Classify(ray.ErrDivisionByZero))
}

func TestClassifyConfiguration(t *testing.T) {
	require.Equal(t, Configuration, Classify(oracle.ErrUnresolvedSource))
	require.Equal(t, Configuration, Classify(adapter.ErrUnknownKind))
}

func TestClassifyFatalFallback(t *testing.T) {
	require.Equal(t, Fatal, Classify(errors.New("boom")))
	require.False(t, Retryable(Fatal))
}

func TestClassifyNilIsZeroValue(t *testing.T) {
	require.Equal(t, Class(""), Classify(nil))
}
