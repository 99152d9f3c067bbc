// Package columnar abstracts the append-only, range-scanned row store that
// backs the Event Log Store (core/eventstore). The production backend is
// ClickHouse, using a ReplacingMergeTree keyed on (stream, tx_hash,
// log_index) so idempotent re-appends collapse at merge time without the
// application needing read-before-write semantics on the hot path; an
// in-memory implementation backs unit tests and local development.
package columnar

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a row lookup misses entirely.
var ErrNotFound = errors.New("columnar: row not found")

// Row is one persisted record: an opaque payload addressed by a stream name
// and a monotonic version within that stream. core/eventstore is the only
// caller that interprets Payload; to this package it is just bytes.
type Row struct {
	Stream   string
	Version  uint64
	TxHash   [32]byte
	LogIndex uint32
	Payload  []byte
}

// Store is the append/range/watermark contract core/eventstore drives.
// Implementations need not deduplicate identical rows themselves — the
// ReplacingMergeTree engine does this asynchronously in the ClickHouse
// backend — but must make the most recently appended version for a given
// (Stream, TxHash, LogIndex) win any concurrent range scan.
type Store interface {
	// Append inserts a row. Appending a row with a (Stream, TxHash,
	// LogIndex) that already exists is permitted and must be idempotent.
	Append(ctx context.Context, row Row) error
	// Range returns rows in [fromVersion, toVersion) for stream, ordered by
	// Version ascending.
	Range(ctx context.Context, stream string, fromVersion, toVersion uint64) ([]Row, error)
	// Watermark returns the highest Version appended for stream, or 0 if
	// the stream has no rows yet.
	Watermark(ctx context.Context, stream string) (uint64, error)
	// Close releases any underlying connection.
	Close() error
}
