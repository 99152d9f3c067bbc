package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"solvkeep/chain/decode"
	"solvkeep/core/events"
)

// eventQueueSize bounds each stream's in-memory ingestion queue. A full
// queue blocks the subscription reader, creating natural pushback on the
// websocket transport rather than unbounded buffering.
const eventQueueSize = 10_000

// LogSource implements coordinator.Source for a single (chain, kind,
// contract) stream, backed by eth_getLogs for backfill and a websocket log
// subscription for streaming. Backfill and streaming may use different
// transports: HTTP endpoints don't support subscriptions, so a separate
// websocket-dialed client backs Subscribe when provided.
type LogSource struct {
	client   *Client
	ws       *Client
	chain    uint64
	kind     events.Kind
	contract common.Address
}

// NewLogSource constructs a LogSource for kind's events emitted by
// contract. ws backs the streaming subscription; pass nil to subscribe over
// client (only valid when client itself was dialed over a websocket).
func NewLogSource(client, ws *Client, chain uint64, kind events.Kind, contract common.Address) *LogSource {
	if ws == nil {
		ws = client
	}
	return &LogSource{client: client, ws: ws, chain: chain, kind: kind, contract: contract}
}

// Stream implements coordinator.Source.
func (s *LogSource) Stream() events.StreamID {
	return events.StreamID{Chain: s.chain, Kind: s.kind, Contract: s.contract}
}

func (s *LogSource) query(fromBlock, toBlock *big.Int) (ethereum.FilterQuery, error) {
	topic0, ok := decode.Topic0(s.kind)
	if !ok {
		return ethereum.FilterQuery{}, fmt.Errorf("chain: no topic registered for kind %s", s.kind)
	}
	return ethereum.FilterQuery{
		FromBlock: fromBlock,
		ToBlock:   toBlock,
		Addresses: []common.Address{s.contract},
		Topics:    [][]common.Hash{{topic0}},
	}, nil
}

// FetchRange implements coordinator.Source.
func (s *LogSource) FetchRange(ctx context.Context, fromBlock, toBlock uint64) ([]events.LogEvent, error) {
	q, err := s.query(new(big.Int).SetUint64(fromBlock), new(big.Int).SetUint64(toBlock))
	if err != nil {
		return nil, err
	}
	logs, err := s.client.FilterLogs(ctx, q)
	if err != nil {
		return nil, err
	}

	out := make([]events.LogEvent, 0, len(logs))
	blockTimes := make(map[uint64]uint64)
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		t, ok := blockTimes[lg.BlockNumber]
		if !ok {
			t, err = s.client.BlockTime(ctx, lg.BlockNumber)
			if err != nil {
				return nil, err
			}
			blockTimes[lg.BlockNumber] = t
		}
		ev, err := decode.ToEvent(s.kind, lg, t)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// Subscribe implements coordinator.Source: it opens a live log subscription
// and decodes each delivered log on the fly.
func (s *LogSource) Subscribe(ctx context.Context) (<-chan events.LogEvent, <-chan error, error) {
	q, err := s.query(nil, nil)
	if err != nil {
		return nil, nil, err
	}

	raw := make(chan gethLog)
	sub, err := s.ws.SubscribeFilterLogs(ctx, q, raw)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan events.LogEvent, eventQueueSize)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sub.Err():
				if err != nil {
					errs <- err
				}
				return
			case lg := <-raw:
				if lg.Removed {
					continue
				}
				t, err := s.ws.BlockTime(ctx, lg.BlockNumber)
				if err != nil {
					errs <- err
					return
				}
				ev, err := decode.ToEvent(s.kind, lg, t)
				if err != nil {
					errs <- err
					return
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, errs, nil
}
