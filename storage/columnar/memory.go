package columnar

import (
	"context"
	"sort"
	"sync"
)

type dedupKey struct {
	txHash   [32]byte
	logIndex uint32
}

// InMemory is a Store backed by a map, for tests and local development: a
// drop-in stand-in for the ClickHouse-backed Store with no external
// dependency.
type InMemory struct {
	mu      sync.RWMutex
	rows    map[string][]Row
	seen    map[string]map[dedupKey]int // stream -> dedup key -> index into rows[stream]
}

// NewInMemory constructs an empty in-memory columnar store.
func NewInMemory() *InMemory {
	return &InMemory{
		rows: make(map[string][]Row),
		seen: make(map[string]map[dedupKey]int),
	}
}

func (m *InMemory) Append(_ context.Context, row Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := dedupKey{txHash: row.TxHash, logIndex: row.LogIndex}
	seen, ok := m.seen[row.Stream]
	if !ok {
		seen = make(map[dedupKey]int)
		m.seen[row.Stream] = seen
	}
	if idx, ok := seen[key]; ok {
		m.rows[row.Stream][idx] = row // last write wins, matching ReplacingMergeTree semantics
		return nil
	}
	m.rows[row.Stream] = append(m.rows[row.Stream], row)
	seen[key] = len(m.rows[row.Stream]) - 1
	return nil
}

func (m *InMemory) Range(_ context.Context, stream string, fromVersion, toVersion uint64) ([]Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := append([]Row(nil), m.rows[stream]...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Version < rows[j].Version })

	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if r.Version >= fromVersion && r.Version < toVersion {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *InMemory) Watermark(_ context.Context, stream string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var max uint64
	for _, r := range m.rows[stream] {
		if r.Version > max {
			max = r.Version
		}
	}
	return max, nil
}

func (m *InMemory) Close() error { return nil }
