package creds

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/acksell/dynawire/transport"
)

var (
	// ErrNoCredentials means every provider in the chain was disabled or
	// came up empty. The caller decides whether that is fatal.
	ErrNoCredentials = errors.New("no credentials found")
	// ErrTooManyRetries means a metadata endpoint kept answering badly
	// until the attempt budget ran out.
	ErrTooManyRetries = errors.New("too many retries fetching credentials")
)

// Provider hands out AWS credentials.
//
// GetKey returns (nil, nil) when the provider has no key to offer, which a
// chain treats as "try the next one". Invalidate drops cached credentials,
// forcing a fresh fetch on the next call, and reports whether anything was
// cached. IsDisabled marks providers that can never find a key in this
// environment so chains can skip them outright.
type Provider interface {
	GetKey(ctx context.Context, ht transport.HTTP) (*Key, error)
	Invalidate() bool
	IsDisabled() bool
}

// StaticProvider serves a fixed key.
type StaticProvider struct {
	key Key
}

func Static(key Key) *StaticProvider {
	return &StaticProvider{key: key}
}

func (p *StaticProvider) GetKey(context.Context, transport.HTTP) (*Key, error) {
	if p.key == (Key{}) {
		return nil, nil
	}
	key := p.key
	return &key, nil
}

func (p *StaticProvider) Invalidate() bool { return false }
func (p *StaticProvider) IsDisabled() bool { return false }

// ChainProvider tries candidates in order and pins the first one that
// produces a key; subsequent calls go straight to the pinned provider. A
// candidate failing is logged and the next one is tried.
type ChainProvider struct {
	log        zerolog.Logger
	candidates []Provider

	mu     sync.Mutex
	chosen Provider
}

// Chain builds a provider chain, dropping candidates that are disabled.
func Chain(candidates ...Provider) *ChainProvider {
	c := &ChainProvider{log: zerolog.Nop()}
	for _, candidate := range candidates {
		if candidate.IsDisabled() {
			continue
		}
		c.candidates = append(c.candidates, candidate)
	}
	return c
}

// Default is the standard chain: environment variables, the shared
// credentials file, the ECS container endpoint, then EC2 instance metadata
// (v2 before v1). Local sources come first because the metadata services
// are slow to fail on machines that don't have them.
func Default() *ChainProvider {
	return Chain(
		Environment(),
		File("", ""),
		Container(),
		InstanceMetadataV2(),
		InstanceMetadataV1(),
	)
}

// WithLogger sets the logger on the chain and on every candidate that
// supports one.
func (c *ChainProvider) WithLogger(log zerolog.Logger) *ChainProvider {
	c.log = log
	for _, candidate := range c.candidates {
		if lp, ok := candidate.(interface{ setLogger(zerolog.Logger) }); ok {
			lp.setLogger(log)
		}
	}
	return c
}

func (c *ChainProvider) GetKey(ctx context.Context, ht transport.HTTP) (*Key, error) {
	c.mu.Lock()
	chosen := c.chosen
	c.mu.Unlock()
	if chosen != nil {
		return chosen.GetKey(ctx, ht)
	}
	for _, candidate := range c.candidates {
		key, err := candidate.GetKey(ctx, ht)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Warn().Err(err).Str("provider", providerName(candidate)).Msg("credentials provider failed")
			continue
		}
		if key == nil {
			c.log.Debug().Str("provider", providerName(candidate)).Msg("credentials provider found no key")
			continue
		}
		c.log.Debug().Str("provider", providerName(candidate)).Object("key", key).Msg("credentials provider found a key")
		c.mu.Lock()
		c.chosen = candidate
		c.mu.Unlock()
		return key, nil
	}
	return nil, nil
}

// Invalidate invalidates every candidate. The pinned provider stays
// pinned; its next GetKey fetches fresh credentials.
func (c *ChainProvider) Invalidate() bool {
	invalidated := false
	for _, candidate := range c.candidates {
		if candidate.Invalidate() {
			invalidated = true
		}
	}
	return invalidated
}

func (c *ChainProvider) IsDisabled() bool {
	return len(c.candidates) == 0
}

func providerName(p Provider) string {
	return fmt.Sprintf("%T", p)
}
