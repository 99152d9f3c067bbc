// Package coordinator implements the Synchronization Coordinator (spec
// §4.9): per-stream backfill/streaming mode selection, a scheduling tick
// that fans out child tasks under a keyed per-stream lock, and exponential
// backoff with degraded-marking after repeated failures.
package coordinator

import (
	"context"

	"solvkeep/core/events"
)

// ChainHead reports the current chain tip, used to decide backfill vs.
// streaming mode for each stream.
type ChainHead interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Source is one stream's upstream: paged historical log fetches for
// backfill (`eth_getLogs`), and a live subscription for streaming (new
// block + websocket log stream, or the MEV-share pending-tx stream for
// transaction-latest numerators).
type Source interface {
	Stream() events.StreamID
	// FetchRange returns every event observed in [fromBlock, toBlock],
	// ordered ascending, for backfill.
	FetchRange(ctx context.Context, fromBlock, toBlock uint64) ([]events.LogEvent, error)
	// Subscribe opens a live feed of events for streaming mode. The
	// returned channel is closed when the subscription ends; the error
	// channel carries at most one terminal error.
	Subscribe(ctx context.Context) (<-chan events.LogEvent, <-chan error, error)
}

// Sink is the subset of the Event Log Store the Coordinator writes
// through: unordered appends during backfill, order-checked appends
// during streaming, and watermark reads to decide the next range to fetch.
type Sink interface {
	Append(ctx context.Context, ev events.LogEvent) error
	AppendStreaming(ctx context.Context, ev events.LogEvent) error
	Watermark(ctx context.Context, stream events.StreamID) (uint64, error)
}
