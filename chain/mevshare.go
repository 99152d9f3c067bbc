package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"nhooyr.io/websocket"

	"solvkeep/core/oracle"
	"solvkeep/observability/logging"
)

// pendingTx is the subset of an MEV-share pending-transaction event this
// pipeline reads: enough to identify the target feed and extract its
// not-yet-mined numerator.
type pendingTx struct {
	To    string `json:"to"`
	Input string `json:"input"`
}

// MEVShareFeed streams pending transactions from an MEV-share websocket
// endpoint and folds each one's trailing calldata word into the Oracle
// Price Composer's transaction-latest numerator for its target feed
// (spec §4.5.2's "transaction-latest" numerator source).
type MEVShareFeed struct {
	url      string
	composer *oracle.Composer
}

// NewMEVShareFeed constructs a feed that applies pending numerators to
// composer.
func NewMEVShareFeed(url string, composer *oracle.Composer) *MEVShareFeed {
	return &MEVShareFeed{url: url, composer: composer}
}

// Run connects to the MEV-share stream and applies pending numerators until
// ctx is cancelled or the connection drops.
func (f *MEVShareFeed) Run(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("chain: dial mev-share %s: %w", logging.MaskEndpoint(f.url), err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "shutdown")

	var observedVersion uint64
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("chain: mev-share read: %w", err)
		}

		var tx pendingTx
		if err := json.Unmarshal(data, &tx); err != nil {
			continue // malformed frame, skip rather than kill the feed
		}
		value, ok := trailingWord(tx.Input)
		if !ok {
			continue
		}
		observedVersion++
		f.composer.ApplyPendingNumerator(common.HexToAddress(tx.To), value, observedVersion)
	}
}

// trailingWord extracts the final 32-byte word of ABI-encoded calldata,
// treated as the numerator a pending transmit/update call is about to
// write on-chain.
func trailingWord(input string) (*big.Int, bool) {
	input = strings.TrimPrefix(input, "0x")
	if len(input) < 64 {
		return nil, false
	}
	tail := input[len(input)-64:]
	v, ok := new(big.Int).SetString(tail, 16)
	if !ok {
		return nil, false
	}
	return v, true
}
