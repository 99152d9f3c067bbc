// Package eventstore is the Event Log Store: the single append-only record
// of every decoded contract log the pipeline has observed, keyed by
// (block, tx_index, log_index) within each stream. Every other module
// reads from here rather than from the chain directly, so a stream's
// watermark is the pipeline's only notion of "how far we've gotten".
package eventstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"solvkeep/core/events"
	"solvkeep/storage/columnar"
)

// ErrConflictingPayload is returned when an append re-delivers a known
// (tx_hash, log_index) with a payload that differs from the one already on
// record — a decoding or re-org bug upstream, never a harmless retry.
var ErrConflictingPayload = errors.New("eventstore: conflicting payload for already-seen event")

// ErrOutOfOrder is returned by AppendStreaming when an event's version does
// not exceed the stream's current watermark and it is not a re-delivery of
// an already-seen event. Backfill mode uses Append instead, which has no
// such restriction.
var ErrOutOfOrder = errors.New("eventstore: event version does not advance stream watermark")

// Store is the Event Log Store. It wraps a columnar.Store with the
// idempotency and ordering rules core/coordinator depends on.
type Store struct {
	backing columnar.Store
	chain   uint64

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	seen  map[string]map[events.DedupKey]events.LogEvent
}

// New constructs an Event Log Store over backing for the given chain id.
func New(backing columnar.Store, chain uint64) *Store {
	return &Store{
		backing: backing,
		chain:   chain,
		locks:   make(map[string]*sync.Mutex),
		seen:    make(map[string]map[events.DedupKey]events.LogEvent),
	}
}

func (s *Store) lockFor(stream string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[stream]
	if !ok {
		l = &sync.Mutex{}
		s.locks[stream] = l
	}
	return l
}

// Append inserts ev, unconditionally with respect to ordering. Used during
// backfill, where a stream's full history is replayed and watermark
// monotonicity across the whole run is guaranteed by construction rather
// than enforced event-by-event.
func (s *Store) Append(ctx context.Context, ev events.LogEvent) error {
	stream := ev.Stream(s.chain).String()
	lock := s.lockFor(stream)
	lock.Lock()
	defer lock.Unlock()
	return s.appendLocked(ctx, stream, ev)
}

// AppendStreaming inserts ev, additionally requiring that its version
// advance the stream's watermark unless it is a verified re-delivery of an
// event already on record. Used during live streaming, where an
// out-of-order arrival signals a reorg or a misbehaving source that the
// Synchronization Coordinator must handle explicitly rather than silently
// accept.
func (s *Store) AppendStreaming(ctx context.Context, ev events.LogEvent) error {
	stream := ev.Stream(s.chain).String()
	lock := s.lockFor(stream)
	lock.Lock()
	defer lock.Unlock()

	dedup := ev.Dedup()
	if prior, ok := s.seen[stream][dedup]; ok {
		if !events.SamePayload(prior, ev) {
			return ErrConflictingPayload
		}
		return nil // harmless re-delivery, already durable
	}

	watermark, err := s.backing.Watermark(ctx, stream)
	if err != nil {
		return fmt.Errorf("eventstore: watermark: %w", err)
	}
	if ev.Version() <= watermark {
		return ErrOutOfOrder
	}
	return s.appendLocked(ctx, stream, ev)
}

func (s *Store) appendLocked(ctx context.Context, stream string, ev events.LogEvent) error {
	dedup := ev.Dedup()
	if prior, ok := s.seen[stream][dedup]; ok {
		if !events.SamePayload(prior, ev) {
			return ErrConflictingPayload
		}
		return nil
	}

	payload, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	row := columnar.Row{
		Stream:   stream,
		Version:  ev.Version(),
		TxHash:   ev.TxHash,
		LogIndex: ev.Key.LogIndex,
		Payload:  payload,
	}
	if err := s.backing.Append(ctx, row); err != nil {
		return fmt.Errorf("eventstore: append: %w", err)
	}

	byKey, ok := s.seen[stream]
	if !ok {
		byKey = make(map[events.DedupKey]events.LogEvent)
		s.seen[stream] = byKey
	}
	byKey[dedup] = ev
	return nil
}

// Range returns every event in [fromVersion, toVersion) for the given
// stream, ordered by version ascending.
func (s *Store) Range(ctx context.Context, stream events.StreamID, fromVersion, toVersion uint64) ([]events.LogEvent, error) {
	rows, err := s.backing.Range(ctx, stream.String(), fromVersion, toVersion)
	if err != nil {
		return nil, fmt.Errorf("eventstore: range: %w", err)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Version < rows[j].Version })

	out := make([]events.LogEvent, 0, len(rows))
	for _, r := range rows {
		ev, err := decodeEvent(r.Payload)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// Watermark returns the highest version appended for stream, or 0 if the
// stream has no rows yet.
func (s *Store) Watermark(ctx context.Context, stream events.StreamID) (uint64, error) {
	w, err := s.backing.Watermark(ctx, stream.String())
	if err != nil {
		return 0, fmt.Errorf("eventstore: watermark: %w", err)
	}
	return w, nil
}

// Close releases the backing store.
func (s *Store) Close() error {
	return s.backing.Close()
}
