// Package snapshot is the read-mostly cache for the latest per-user health
// positions and ranked candidates; the daemon writes the candidates of each
// /candidates scan to it. External
// consumers (an API, a submitter) can read without touching aggregator
// state directly (spec §5: aggregator state is "exposed read-only via
// immutable snapshots").
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"solvkeep/core/candidates"
	"solvkeep/core/health"
)

// ErrNotFound is returned when a key has expired or was never written.
var ErrNotFound = errors.New("snapshot: not found")

// Cache wraps a Redis client with the two snapshot shapes the pipeline
// produces: per-user HealthPosition and per-user ranked candidates.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// New constructs a Cache. ttl bounds how long a snapshot is served before
// a reader falls back to recomputing it; prefix namespaces keys when
// multiple chains share a Redis instance.
func New(client *redis.Client, ttl time.Duration, prefix string) *Cache {
	return &Cache{client: client, ttl: ttl, prefix: prefix}
}

func (c *Cache) healthKey(user common.Address) string {
	return fmt.Sprintf("%s:health:%s", c.prefix, user.Hex())
}

func (c *Cache) candidatesKey(user common.Address) string {
	return fmt.Sprintf("%s:candidates:%s", c.prefix, user.Hex())
}

// PutHealthPosition publishes pos as the latest snapshot for its user,
// overwriting whatever was previously cached (spec §5's backpressure rule:
// only the most recent derived HealthPosition is kept per user).
func (c *Cache) PutHealthPosition(ctx context.Context, pos health.HealthPosition) error {
	data, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("snapshot: marshal health position: %w", err)
	}
	return c.client.Set(ctx, c.healthKey(pos.User), data, c.ttl).Err()
}

// GetHealthPosition reads the latest cached HealthPosition for user.
func (c *Cache) GetHealthPosition(ctx context.Context, user common.Address) (health.HealthPosition, error) {
	data, err := c.client.Get(ctx, c.healthKey(user)).Bytes()
	if errors.Is(err, redis.Nil) {
		return health.HealthPosition{}, ErrNotFound
	}
	if err != nil {
		return health.HealthPosition{}, fmt.Errorf("snapshot: get health position: %w", err)
	}
	var pos health.HealthPosition
	if err := json.Unmarshal(data, &pos); err != nil {
		return health.HealthPosition{}, fmt.Errorf("snapshot: unmarshal health position: %w", err)
	}
	return pos, nil
}

// PutCandidates publishes the ranked candidates produced for user by the
// Liquidation Candidate Engine.
func (c *Cache) PutCandidates(ctx context.Context, user common.Address, rows []candidates.LiquidationCandidate) error {
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("snapshot: marshal candidates: %w", err)
	}
	return c.client.Set(ctx, c.candidatesKey(user), data, c.ttl).Err()
}

// GetCandidates reads the latest cached candidates for user.
func (c *Cache) GetCandidates(ctx context.Context, user common.Address) ([]candidates.LiquidationCandidate, error) {
	data, err := c.client.Get(ctx, c.candidatesKey(user)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: get candidates: %w", err)
	}
	var rows []candidates.LiquidationCandidate
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal candidates: %w", err)
	}
	return rows, nil
}
