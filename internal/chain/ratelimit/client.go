package ratelimit

import (
	"context"
	"io"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/exezbcz/paraport/internal/chain"
	"github.com/exezbcz/paraport/internal/domain/model"
)

// Client wraps a chain.Client so every call passes its chain's limiter and
// is recorded in the RPC metrics. Chains without a limiter get one lazily
// with the default rate.
type Client struct {
	inner chain.Client
	rps   float64
	burst int

	mu       sync.Mutex
	limiters map[model.Chain]*Limiter
}

var (
	_ chain.Client    = (*Client)(nil)
	_ chain.Connector = (*Client)(nil)
	_ io.Closer       = (*Client)(nil)
)

func Wrap(inner chain.Client, rps float64, burst int) *Client {
	return &Client{
		inner:    inner,
		rps:      rps,
		burst:    burst,
		limiters: make(map[model.Chain]*Limiter),
	}
}

func (c *Client) limiter(ch model.Chain) *Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[ch]
	if !ok {
		l = NewLimiter(c.rps, c.burst, ch)
		c.limiters[ch] = l
	}
	return l
}

func (c *Client) Balance(ctx context.Context, ch model.Chain, address string, asset model.Asset) (sdkmath.Int, error) {
	if err := c.limiter(ch).Wait(ctx); err != nil {
		return sdkmath.Int{}, err
	}
	v, err := c.inner.Balance(ctx, ch, address, asset)
	RecordRPCCall(ch, "balance", err)
	return v, err
}

func (c *Client) ExistentialDeposit(ctx context.Context, ch model.Chain, asset model.Asset) (sdkmath.Int, error) {
	if err := c.limiter(ch).Wait(ctx); err != nil {
		return sdkmath.Int{}, err
	}
	v, err := c.inner.ExistentialDeposit(ctx, ch, asset)
	RecordRPCCall(ch, "existential_deposit", err)
	return v, err
}

func (c *Client) AssetInfo(ctx context.Context, ch model.Chain, asset model.Asset) (model.AssetInfo, error) {
	if err := c.limiter(ch).Wait(ctx); err != nil {
		return model.AssetInfo{}, err
	}
	v, err := c.inner.AssetInfo(ctx, ch, asset)
	RecordRPCCall(ch, "asset_info", err)
	return v, err
}

// Connect forwards to the wrapped client when it keeps connections.
func (c *Client) Connect(ctx context.Context, ch model.Chain) error {
	conn, ok := c.inner.(chain.Connector)
	if !ok {
		return nil
	}
	err := conn.Connect(ctx, ch)
	RecordRPCCall(ch, "connect", err)
	return err
}

// Unwrap exposes the wrapped client, letting callers discover optional
// capabilities such as chain.Watcher.
func (c *Client) Unwrap() chain.Client {
	return c.inner
}

// Close closes the wrapped client when it holds resources.
func (c *Client) Close() error {
	if closer, ok := c.inner.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
