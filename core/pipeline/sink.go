package pipeline

import (
	"context"
	"fmt"
	"sync"

	"solvkeep/core/events"
)

// store is the subset of *eventstore.Store the Sink writes through.
type store interface {
	Append(ctx context.Context, ev events.LogEvent) error
	AppendStreaming(ctx context.Context, ev events.LogEvent) error
	Watermark(ctx context.Context, stream events.StreamID) (uint64, error)
}

// applier folds a single decoded event into the read-model aggregators.
type applier interface {
	Apply(ev events.LogEvent) error
}

// Sink durably appends events to the Event Log Store and then folds them
// into the read-model aggregators, in that order: a restart replays from
// the store's watermark rather than from aggregator state, so the store
// write must win the race.
type Sink struct {
	Store    store
	Dispatch applier

	mu       sync.Mutex
	dispatched map[string]map[events.DedupKey]struct{}
}

// Append durably appends ev during backfill, then dispatches it. The store
// treats a re-delivery of an already-seen (tx_hash, log_index) as a no-op
// rather than an error, so dispatch is gated on a local seen-set to avoid
// double-folding the same event into the aggregators on replay.
func (s *Sink) Append(ctx context.Context, ev events.LogEvent) error {
	if err := s.Store.Append(ctx, ev); err != nil {
		return err
	}
	return s.dispatchOnce(ev)
}

// AppendStreaming durably appends ev during streaming, then dispatches it,
// subject to the same re-delivery gating as Append.
func (s *Sink) AppendStreaming(ctx context.Context, ev events.LogEvent) error {
	if err := s.Store.AppendStreaming(ctx, ev); err != nil {
		return err
	}
	return s.dispatchOnce(ev)
}

func (s *Sink) dispatchOnce(ev events.LogEvent) error {
	stream := fmt.Sprintf("%s:%s", ev.Kind, ev.Contract.Hex())
	dedup := ev.Dedup()

	s.mu.Lock()
	if s.dispatched == nil {
		s.dispatched = make(map[string]map[events.DedupKey]struct{})
	}
	seen := s.dispatched[stream]
	if seen == nil {
		seen = make(map[events.DedupKey]struct{})
		s.dispatched[stream] = seen
	}
	if _, ok := seen[dedup]; ok {
		s.mu.Unlock()
		return nil
	}
	seen[dedup] = struct{}{}
	s.mu.Unlock()

	if err := s.Dispatch.Apply(ev); err != nil {
		return fmt.Errorf("pipeline: dispatch event: %w", err)
	}
	return nil
}

// Watermark delegates to the underlying store.
func (s *Sink) Watermark(ctx context.Context, stream events.StreamID) (uint64, error) {
	return s.Store.Watermark(ctx, stream)
}
