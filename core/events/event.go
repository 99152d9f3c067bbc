package events

import (
	"reflect"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// OrderingKey is the (block, tx_index, log_index) tuple that totally orders
// every event within a stream (spec §3).
type OrderingKey struct {
	Block    uint64
	TxIndex  uint32
	LogIndex uint32
}

// Less reports whether k sorts strictly before other.
func (k OrderingKey) Less(other OrderingKey) bool {
	if k.Block != other.Block {
		return k.Block < other.Block
	}
	if k.TxIndex != other.TxIndex {
		return k.TxIndex < other.TxIndex
	}
	return k.LogIndex < other.LogIndex
}

// Version collapses the ordering key into a single monotonic scalar:
//
//	version = block*1e9 + tx_index*1e4 + log_index
//
// Callers that only need relative order (e.g. "is this newer than the
// watermark?") use Version; callers that need the precise tuple for range
// scans use OrderingKey directly.
func (k OrderingKey) Version() uint64 {
	return k.Block*1_000_000_000 + uint64(k.TxIndex)*10_000 + uint64(k.LogIndex)
}

// DedupKey identifies a log event independent of ordering: re-deliveries of
// the same transaction/log-index pair must be idempotent (spec §3, §4.2).
type DedupKey struct {
	TxHash   common.Hash
	LogIndex uint32
}

// LogEvent is an immutable record of one decoded contract log (spec §3).
type LogEvent struct {
	Kind      Kind
	Key       OrderingKey
	Timestamp time.Time
	TxHash    common.Hash
	Contract  common.Address
	Payload   any
}

// Version is a convenience accessor over the embedded ordering key.
func (e LogEvent) Version() uint64 { return e.Key.Version() }

// Dedup returns the identity used to detect re-deliveries.
func (e LogEvent) Dedup() DedupKey {
	return DedupKey{TxHash: e.TxHash, LogIndex: e.Key.LogIndex}
}

// Stream derives the StreamID this event belongs to for a given chain.
func (e LogEvent) Stream(chain uint64) StreamID {
	return StreamID{Chain: chain, Kind: e.Kind, Contract: e.Contract}
}

// SamePayload reports whether two events sharing a DedupKey carry identical
// payloads. The Event Log Store uses this to distinguish a harmless
// re-delivery from a genuine data-integrity violation (spec §7): the same
// (tx_hash, log_index) appearing twice with different fields must fail
// loud rather than be silently overwritten.
func SamePayload(a, b LogEvent) bool {
	if a.Kind != b.Kind || a.Contract != b.Contract || a.Key != b.Key {
		return false
	}
	return payloadEqual(a.Payload, b.Payload)
}

// payloadEqual compares two decoded payloads field-by-field. math/big
// normalizes its internal word slices, so reflect.DeepEqual is safe here for
// every payload type in this package.
func payloadEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
