package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"solvkeep/core/events"
)

type fakeHead struct {
	block uint64
}

func (f *fakeHead) BlockNumber(ctx context.Context) (uint64, error) {
	return f.block, nil
}

type fakeSource struct {
	stream events.StreamID

	mu         sync.Mutex
	fetchCalls int
	rangeEvents []events.LogEvent
	rangeErr    error

	subCh  chan events.LogEvent
	errCh  chan error
}

func (f *fakeSource) Stream() events.StreamID { return f.stream }

func (f *fakeSource) FetchRange(ctx context.Context, from, to uint64) ([]events.LogEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	return f.rangeEvents, f.rangeErr
}

func (f *fakeSource) Subscribe(ctx context.Context) (<-chan events.LogEvent, <-chan error, error) {
	return f.subCh, f.errCh, nil
}

type fakeSink struct {
	mu         sync.Mutex
	appended   []events.LogEvent
	streamed   []events.LogEvent
	watermark  uint64
	appendErr  error
}

func (f *fakeSink) Append(ctx context.Context, ev events.LogEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, ev)
	if v := ev.Version(); v > f.watermark {
		f.watermark = v
	}
	return nil
}

func (f *fakeSink) AppendStreaming(ctx context.Context, ev events.LogEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamed = append(f.streamed, ev)
	if v := ev.Version(); v > f.watermark {
		f.watermark = v
	}
	return nil
}

func (f *fakeSink) Watermark(ctx context.Context, stream events.StreamID) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watermark, nil
}

func testStream() events.StreamID {
	return events.StreamID{Chain: 1, Kind: events.Mint, Contract: common.HexToAddress("0xbeef")}
}

func TestBackfillModeChosenFarBehindHead(t *testing.T) {
	stream := testStream()
	ev := events.LogEvent{Kind: events.Mint, Key: events.OrderingKey{Block: 5}, Contract: stream.Contract}
	src := &fakeSource{stream: stream, rangeEvents: []events.LogEvent{ev}}
	sink := &fakeSink{watermark: 0}
	head := &fakeHead{block: 5000}

	c := New(head, sink, DefaultConfig(), nil)
	c.Register(src)

	c.tick(context.Background())
	waitForCondition(t, func() bool { return src.fetchCalls == 1 })
	require.Len(t, sink.appended, 1)
}

func TestStreamingModeChosenNearHead(t *testing.T) {
	stream := testStream()
	src := &fakeSource{
		stream: stream,
		subCh:  make(chan events.LogEvent, 1),
		errCh:  make(chan error, 1),
	}
	ev := events.LogEvent{Kind: events.Mint, Key: events.OrderingKey{Block: 100, LogIndex: 1}, Contract: stream.Contract}
	src.subCh <- ev

	sink := &fakeSink{watermark: 99 * blockScale}
	head := &fakeHead{block: 100}

	c := New(head, sink, DefaultConfig(), nil)
	c.Register(src)

	c.tick(context.Background())
	waitForCondition(t, func() bool { return len(sink.streamed) == 1 })
	require.Equal(t, ev.Key, sink.streamed[0].Key)
}

func TestRepeatedFailuresDegradeStream(t *testing.T) {
	stream := testStream()
	src := &fakeSource{stream: stream, rangeErr: errors.New("rpc timeout")}
	sink := &fakeSink{watermark: 0}
	head := &fakeHead{block: 5000}

	cfg := DefaultConfig()
	cfg.MaxRetries = 2
	cfg.BackoffBase = time.Millisecond
	cfg.BackoffMax = 5 * time.Millisecond

	c := New(head, sink, cfg, nil)
	c.Register(src)

	for i := 0; i < 5; i++ {
		c.runStream(context.Background(), src)
	}
	require.True(t, c.Degraded(stream))
}

func TestReactivateClearsDegradedState(t *testing.T) {
	stream := testStream()
	src := &fakeSource{stream: stream, rangeErr: errors.New("rpc timeout")}
	sink := &fakeSink{watermark: 0}
	head := &fakeHead{block: 5000}

	cfg := DefaultConfig()
	cfg.MaxRetries = 0
	cfg.BackoffBase = time.Millisecond
	cfg.BackoffMax = time.Millisecond

	c := New(head, sink, cfg, nil)
	c.Register(src)
	c.runStream(context.Background(), src)
	require.True(t, c.Degraded(stream))

	c.Reactivate(stream)
	require.False(t, c.Degraded(stream))
}

func TestShallowReorgAbsorbedByRefetch(t *testing.T) {
	stream := testStream()
	refetched := events.LogEvent{Kind: events.Mint, Key: events.OrderingKey{Block: 98}, Contract: stream.Contract}
	src := &fakeSource{stream: stream, rangeEvents: []events.LogEvent{refetched}}

	c := New(&fakeHead{block: 100}, &fakeSink{watermark: 100 * blockScale}, DefaultConfig(), nil)
	c.Register(src)

	behind := events.LogEvent{Kind: events.Mint, Key: events.OrderingKey{Block: 98, LogIndex: 1}, Contract: stream.Contract}
	require.NoError(t, c.absorbReorg(context.Background(), src, behind))
	require.Equal(t, 1, src.fetchCalls, "a shallow reorg must trigger one re-fetch of the affected range")
}

func TestDeepReorgFailsLoud(t *testing.T) {
	stream := testStream()
	src := &fakeSource{stream: stream}

	c := New(&fakeHead{block: 1000}, &fakeSink{watermark: 1000 * blockScale}, DefaultConfig(), nil)
	c.Register(src)

	behind := events.LogEvent{Kind: events.Mint, Key: events.OrderingKey{Block: 100}, Contract: stream.Contract}
	err := c.absorbReorg(context.Background(), src, behind)
	require.ErrorIs(t, err, ErrDeepReorg)
	require.Zero(t, src.fetchCalls)
}

func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.Fail(t, "condition not met in time")
}
