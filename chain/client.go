// Package chain wires the pipeline's abstract interfaces (adapter.Reader,
// coordinator.ChainHead, coordinator.Source) to a live EVM node over JSON-RPC
// and websockets, using go-ethereum's client.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"solvkeep/observability/logging"
)

// gethLog is the decoded-log type go-ethereum's client hands back.
type gethLog = types.Log

// Client wraps an ethclient.Client, implementing both adapter.Reader
// (eth_call) and coordinator.ChainHead (eth_blockNumber). Every outbound
// call carries a deadline; the default matches the spec's 5s.
type Client struct {
	eth     *ethclient.Client
	timeout time.Duration
}

// Dial connects to an EVM JSON-RPC endpoint (http:// or ws://). Endpoint
// URLs carry provider API keys, so the error path logs a masked form.
func Dial(ctx context.Context, url string) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", logging.MaskEndpoint(url), err)
	}
	return &Client{eth: eth, timeout: 5 * time.Second}, nil
}

// SetTimeout overrides the per-call deadline applied to every outbound RPC.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

func (c *Client) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// BlockNumber implements coordinator.ChainHead.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	n, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("chain: block number: %w", err)
	}
	return n, nil
}

// BlockTime returns the timestamp of block, used to stamp decoded events.
func (c *Client) BlockTime(ctx context.Context, block uint64) (uint64, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	header, err := c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(block))
	if err != nil {
		return 0, fmt.Errorf("chain: header %d: %w", block, err)
	}
	return header.Time, nil
}

// CallUint256 implements adapter.Reader: it computes selector's 4-byte
// function hash, performs a zero-argument eth_call against contract, and
// decodes the 32-byte return as an unsigned integer.
func (c *Client) CallUint256(ctx context.Context, contract common.Address, selector string) (*big.Int, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	sel := crypto.Keccak256([]byte(selector))[:4]
	msg := ethereum.CallMsg{To: &contract, Data: sel}
	out, err := c.eth.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: call %s on %s: %w", selector, contract.Hex(), err)
	}
	if len(out) < 32 {
		return nil, fmt.Errorf("chain: call %s on %s: short return (%d bytes)", selector, contract.Hex(), len(out))
	}
	return new(big.Int).SetBytes(out[len(out)-32:]), nil
}

// FilterLogs fetches every log matching q, used by LogSource.FetchRange.
func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]gethLog, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	logs, err := c.eth.FilterLogs(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("chain: filter logs: %w", err)
	}
	return logs, nil
}

// SubscribeFilterLogs opens a live log subscription, used by
// LogSource.Subscribe.
func (c *Client) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- gethLog) (ethereum.Subscription, error) {
	sub, err := c.eth.SubscribeFilterLogs(ctx, q, ch)
	if err != nil {
		return nil, fmt.Errorf("chain: subscribe logs: %w", err)
	}
	return sub, nil
}
