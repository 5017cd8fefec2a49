package sundaeauth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"golang.org/x/sync/singleflight"
)

const keySetFlight = "jwks"

const DefaultRefreshRateLimit = time.Minute

// KeyCache holds the identity provider's key set. It is populated lazily, refreshed
// once older than ttl, and concurrent refreshes share a single in-flight fetch.
type KeyCache struct {
	source       KeySource
	ttl          time.Duration
	refreshLimit time.Duration
	now          func() time.Time

	group singleflight.Group

	mu        sync.RWMutex
	keys      *keyfunc.JWKS
	fetchedAt time.Time
	claimedAt time.Time // last refresh triggered by an unknown kid
}

type CacheOption func(*KeyCache)

// WithRefreshRateLimit sets the minimum interval between refreshes triggered by
// unknown kids. It is capped at the cache ttl.
func WithRefreshRateLimit(d time.Duration) CacheOption {
	return func(c *KeyCache) {
		c.refreshLimit = d
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) CacheOption {
	return func(c *KeyCache) {
		c.now = now
	}
}

func NewKeyCache(source KeySource, ttl time.Duration, opts ...CacheOption) *KeyCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c := &KeyCache{
		source:       source,
		ttl:          ttl,
		refreshLimit: DefaultRefreshRateLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.refreshLimit <= 0 || c.refreshLimit > c.ttl {
		c.refreshLimit = c.ttl
	}
	return c
}

// Get returns the key set, fetching it when empty or stale. fetched reports whether
// this call waited on a fetch.
func (c *KeyCache) Get(ctx context.Context) (keys *keyfunc.JWKS, fetched bool, err error) {
	c.mu.RLock()
	keys, fetchedAt := c.keys, c.fetchedAt
	c.mu.RUnlock()

	if keys != nil && c.now().Sub(fetchedAt) < c.ttl {
		return keys, false, nil
	}

	keys, err = c.Refresh(ctx)
	return keys, true, err
}

// ClaimRefresh reports whether a caller holding a token with an unknown kid may
// re-fetch the key set. The kid is read before the signature is checked, so the
// limit is cache wide: at most one such re-fetch per refresh interval, whatever
// the kid. A failed re-fetch keeps the claim.
func (c *KeyCache) ClaimRefresh() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !c.claimedAt.IsZero() && now.Sub(c.claimedAt) < c.refreshLimit {
		return false
	}
	c.claimedAt = now
	return true
}

// Refresh fetches the key set unconditionally. Callers that arrive while a fetch is
// in flight wait for its result instead of issuing their own.
func (c *KeyCache) Refresh(ctx context.Context) (*keyfunc.JWKS, error) {
	ch := c.group.DoChan(keySetFlight, func() (interface{}, error) {
		// the fetch is shared, so it must not die with the first caller's context
		raw, err := c.source.Fetch(context.WithoutCancel(ctx))
		if err != nil {
			if !errors.Is(err, ErrKeySourceUnavailable) && !errors.Is(err, ErrKeySourceRateLimited) {
				err = fmt.Errorf("%w: %v", ErrKeySourceUnavailable, err)
			}
			return nil, err
		}

		keys, err := keyfunc.NewJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing key set: %v", ErrKeySourceUnavailable, err)
		}

		c.mu.Lock()
		c.keys = keys
		c.fetchedAt = c.now()
		c.mu.Unlock()

		return keys, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrKeySourceUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*keyfunc.JWKS), nil
	}
}
