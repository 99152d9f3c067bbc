// Package errclass classifies pipeline errors into the handling taxonomy
// spec §7 implies: transient external failures are retried, data-integrity
// and configuration errors surface loud, numeric errors degrade the
// specific computation they occurred in, and anything else is fatal.
package errclass

import (
	"context"
	"errors"
	"net"

	"solvkeep/core/eventstore"
	"solvkeep/core/oracle"
	"solvkeep/core/oracle/adapter"
	"solvkeep/core/ray"
)

// Class is one of the taxonomy's five buckets.
type Class string

const (
	// TransientExternal covers RPC timeouts, websocket drops, and other
	// failures expected to clear on retry (spec §5's backoff model).
	TransientExternal Class = "transient_external"
	// DataIntegrity covers conflicting payload re-deliveries and other
	// violations of the append-only event log's invariants.
	DataIntegrity Class = "data_integrity"
	// Numeric covers fixed-point overflow and division by zero.
	Numeric Class = "numeric"
	// Configuration covers unknown adapter kinds and source chains that
	// cannot be resolved within the resolution depth.
	Configuration Class = "configuration"
	// Fatal covers anything not otherwise classified: the pipeline should
	// not guess at recovery.
	Fatal Class = "fatal"
)

// Classify buckets err into one of the five classes. nil classifies as the
// zero Class.
func Classify(err error) Class {
	if err == nil {
		return ""
	}

	switch {
	case isTransient(err):
		return TransientExternal
	case errors.Is(err, eventstore.ErrConflictingPayload), errors.Is(err, eventstore.ErrOutOfOrder):
		return DataIntegrity
	case errors.Is(err, ray.ErrOverflow), errors.Is(err, ray.ErrDivisionByZero), errors.Is(err, oracle.ErrInsufficientObservations):
		return Numeric
	case errors.Is(err, oracle.ErrUnresolvedSource), errors.Is(err, adapter.ErrUnknownKind):
		return Configuration
	default:
		return Fatal
	}
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// Retryable reports whether the Synchronization Coordinator should back off
// and retry rather than degrade the stream immediately.
func Retryable(class Class) bool {
	return class == TransientExternal
}
