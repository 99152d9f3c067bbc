package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"solvkeep/core/events"
	"solvkeep/core/eventstore"
)

// blockScale matches events.OrderingKey.Version's block multiplier, letting
// the Coordinator recover an approximate last-processed block number from a
// stream's stored watermark without a second piece of state.
const blockScale = 1_000_000_000

// Config parameterizes scheduling, mode selection, and retry behavior
// (spec §4.9, §6).
type Config struct {
	Tick                     time.Duration
	StreamingThresholdBlocks uint64
	BackfillBatchBlocks      uint64
	ReorgDepth               uint64
	MaxRetries               int
	BackoffBase              time.Duration
	BackoffMax               time.Duration

	// ObserveLag, when set, receives each stream's head-minus-watermark
	// block distance on every sync attempt. The daemon points this at its
	// coordinator_lag_blocks gauge.
	ObserveLag func(stream string, lagBlocks uint64)
}

// DefaultConfig matches the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		Tick:                     1 * time.Second,
		StreamingThresholdBlocks: 1000,
		BackfillBatchBlocks:      2000,
		ReorgDepth:               32,
		MaxRetries:               5,
		BackoffBase:              1 * time.Second,
		BackoffMax:               60 * time.Second,
	}
}

// ErrStreamDegraded is returned by a sync attempt against a stream that has
// exceeded MaxRetries and is awaiting operator acknowledgement.
var ErrStreamDegraded = errors.New("coordinator: stream degraded")

// ErrDeepReorg is returned when a streaming event lands more than ReorgDepth
// blocks behind the stream's watermark: the chain reorganized deeper than
// this pipeline absorbs, requiring operator intervention.
var ErrDeepReorg = errors.New("coordinator: reorg deeper than configured depth")

// streamState holds the per-stream keyed lock (spec §5: "at most one active
// child task" per stream) plus retry bookkeeping and a live subscription,
// kept across ticks so streaming mode doesn't resubscribe every second.
type streamState struct {
	mu sync.Mutex

	retries  int
	degraded bool

	subscribed bool
	events     <-chan events.LogEvent
	errs       <-chan error
}

// Coordinator fans out a 1s scheduling tick into per-stream sync attempts,
// automatically choosing backfill or streaming mode per stream and
// degrading a stream after repeated failures.
type Coordinator struct {
	head   ChainHead
	sink   Sink
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	sources map[string]Source
	states  map[string]*streamState
}

// New constructs a Coordinator. logger may be nil, in which case logging is
// suppressed.
func New(head ChainHead, sink Sink, cfg Config, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Coordinator{
		head:    head,
		sink:    sink,
		cfg:     cfg,
		logger:  logger,
		sources: make(map[string]Source),
		states:  make(map[string]*streamState),
	}
}

// Register adds a stream source the Coordinator will drive on every tick.
func (c *Coordinator) Register(src Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := src.Stream().String()
	c.sources[key] = src
	if _, ok := c.states[key]; !ok {
		c.states[key] = &streamState{}
	}
}

// Reactivate clears a degraded stream's state after operator
// acknowledgement (spec §4.9).
func (c *Coordinator) Reactivate(stream events.StreamID) {
	c.mu.Lock()
	st, ok := c.states[stream.String()]
	c.mu.Unlock()
	if !ok {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.degraded = false
	st.retries = 0
}

// Degraded reports whether stream is currently suppressed.
func (c *Coordinator) Degraded(stream events.StreamID) bool {
	c.mu.Lock()
	st, ok := c.states[stream.String()]
	c.mu.Unlock()
	if !ok {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.degraded
}

// Run drives the scheduling loop until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// tick fans out one sync attempt per registered stream. Streams whose
// previous attempt is still in flight (or are mid-backoff) are skipped for
// this tick rather than queued.
func (c *Coordinator) tick(ctx context.Context) {
	c.mu.Lock()
	sources := make([]Source, 0, len(c.sources))
	for _, src := range c.sources {
		sources = append(sources, src)
	}
	c.mu.Unlock()

	for _, src := range sources {
		src := src
		go c.runStream(ctx, src)
	}
}

func (c *Coordinator) runStream(ctx context.Context, src Source) {
	stream := src.Stream()
	c.mu.Lock()
	st := c.states[stream.String()]
	c.mu.Unlock()
	if st == nil {
		return
	}
	if !st.mu.TryLock() {
		return
	}
	defer st.mu.Unlock()

	if st.degraded {
		return
	}

	if err := c.syncOnce(ctx, src, st); err != nil {
		st.retries++
		if st.retries > c.cfg.MaxRetries {
			st.degraded = true
			c.logger.Error("stream degraded after exhausting retries", "stream", stream.String(), "retries", st.retries, "error", err)
			return
		}
		delay := backoff(st.retries-1, c.cfg.BackoffBase, c.cfg.BackoffMax)
		c.logger.Warn("stream sync failed, backing off", "stream", stream.String(), "attempt", st.retries, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
		case <-time.After(delay):
		}
		return
	}
	st.retries = 0
}

func (c *Coordinator) syncOnce(ctx context.Context, src Source, st *streamState) error {
	stream := src.Stream()
	head, err := c.head.BlockNumber(ctx)
	if err != nil {
		return err
	}
	watermark, err := c.sink.Watermark(ctx, stream)
	if err != nil {
		return err
	}
	watermarkBlock := watermark / blockScale

	if c.cfg.ObserveLag != nil {
		var lag uint64
		if head > watermarkBlock {
			lag = head - watermarkBlock
		}
		c.cfg.ObserveLag(stream.String(), lag)
	}

	if head > watermarkBlock && head-watermarkBlock > c.cfg.StreamingThresholdBlocks {
		return c.backfillOnce(ctx, src, watermarkBlock, head)
	}
	return c.streamOnce(ctx, src, st)
}

// backfillOnce pages getLogs over one bounded block range. Never partially
// commits: a mid-batch failure discards the whole range rather than
// appending a prefix (spec §5).
func (c *Coordinator) backfillOnce(ctx context.Context, src Source, watermarkBlock, head uint64) error {
	from := watermarkBlock
	if watermarkBlock > 0 {
		from = watermarkBlock + 1
	}
	to := head
	if c.cfg.BackfillBatchBlocks > 0 && to-from+1 > c.cfg.BackfillBatchBlocks {
		to = from + c.cfg.BackfillBatchBlocks - 1
	}

	batch, err := src.FetchRange(ctx, from, to)
	if err != nil {
		return err
	}
	for _, ev := range batch {
		if err := c.sink.Append(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// absorbReorg handles a streaming event that landed behind the stream's
// watermark: a chain reorganization. Reorgs within ReorgDepth blocks are
// absorbed by re-fetching the affected range and re-appending it (appends
// are idempotent on re-delivery, and a conflicting payload under a known
// dedup key still fails loud); anything deeper is fatal (spec §6, §7).
func (c *Coordinator) absorbReorg(ctx context.Context, src Source, ev events.LogEvent) error {
	stream := src.Stream()
	watermark, err := c.sink.Watermark(ctx, stream)
	if err != nil {
		return err
	}
	watermarkBlock := watermark / blockScale
	if watermarkBlock > ev.Key.Block && watermarkBlock-ev.Key.Block > c.cfg.ReorgDepth {
		return fmt.Errorf("%w: stream %s observed block %d behind watermark block %d", ErrDeepReorg, stream.String(), ev.Key.Block, watermarkBlock)
	}

	c.logger.Warn("absorbing shallow reorg", "stream", stream.String(), "from_block", ev.Key.Block, "watermark_block", watermarkBlock)
	batch, err := src.FetchRange(ctx, ev.Key.Block, watermarkBlock)
	if err != nil {
		return err
	}
	for _, refetched := range batch {
		if err := c.sink.Append(ctx, refetched); err != nil {
			return err
		}
	}
	return nil
}

// streamOnce drains whatever is already buffered on the stream's live
// subscription without blocking past this tick, opening the subscription on
// first use and tearing it down on a terminal error or closed channel.
func (c *Coordinator) streamOnce(ctx context.Context, src Source, st *streamState) error {
	if !st.subscribed {
		ch, errs, err := src.Subscribe(ctx)
		if err != nil {
			return err
		}
		st.events = ch
		st.errs = errs
		st.subscribed = true
	}

	for {
		select {
		case ev, ok := <-st.events:
			if !ok {
				st.subscribed = false
				return nil
			}
			if err := c.sink.AppendStreaming(ctx, ev); err != nil {
				if errors.Is(err, eventstore.ErrOutOfOrder) {
					return c.absorbReorg(ctx, src, ev)
				}
				return err
			}
		case err, ok := <-st.errs:
			st.subscribed = false
			if !ok || err == nil {
				return nil
			}
			return err
		default:
			return nil
		}
	}
}
