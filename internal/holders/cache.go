// Package holders caches the distinct holder count of a token mint.
package holders

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"solana-swap-feed/internal/observability"
	"solana-swap-feed/internal/solana"
)

// Default configuration values.
const (
	DefaultTTL        = 10 * time.Minute
	DefaultStaleLimit = 1 * time.Hour
	DefaultTimeout    = 60 * time.Second
)

// ErrUnavailable is returned when no refresh succeeded and no usable cached count exists.
var ErrUnavailable = errors.New("holder count unavailable")

// Options configures Cache.
type Options struct {
	TTL        time.Duration // Count is reused while younger than TTL. Default: 10m
	StaleLimit time.Duration // Failed refreshes fall back to counts younger than this. Default: 1h
	Timeout    time.Duration // Per-refresh timeout. Default: 60s
	Logger     *log.Logger
	Now        func() time.Time
}

// Cache is a lazily refreshed holder count for one mint.
// Concurrent callers share a single in-flight refresh.
type Cache struct {
	source     solana.TokenAccountSource
	mint       string
	ttl        time.Duration
	staleLimit time.Duration
	timeout    time.Duration
	logger     *log.Logger
	now        func() time.Time

	group singleflight.Group

	mu        sync.RWMutex
	count     int
	fetchedAt time.Time
	valid     bool
}

// NewCache creates a holder cache for mint.
func NewCache(source solana.TokenAccountSource, mint string, opts Options) *Cache {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	staleLimit := opts.StaleLimit
	if staleLimit <= 0 {
		staleLimit = DefaultStaleLimit
	}
	if staleLimit < ttl {
		staleLimit = ttl
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Cache{
		source:     source,
		mint:       mint,
		ttl:        ttl,
		staleLimit: staleLimit,
		timeout:    timeout,
		logger:     logger,
		now:        now,
	}
}

// Count returns the number of distinct owners holding a positive balance of the mint.
func (c *Cache) Count(ctx context.Context) (int, error) {
	if n, ok := c.cached(c.ttl); ok {
		observability.RecordHolderLookup("hit")
		return n, nil
	}

	ch := c.group.DoChan(c.mint, func() (interface{}, error) {
		// A refresh that finished while this caller was queued is reused.
		if n, ok := c.cached(c.ttl); ok {
			return n, nil
		}
		return c.refresh(ctx)
	})

	select {
	case res := <-ch:
		if res.Err == nil {
			return res.Val.(int), nil
		}
		return c.fallback(res.Err)
	case <-ctx.Done():
		return c.fallback(ctx.Err())
	}
}

// Age returns how old the cached count is, or false if none was fetched yet.
func (c *Cache) Age() (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.valid {
		return 0, false
	}
	return c.now().Sub(c.fetchedAt), true
}

// refresh runs detached from the caller so one cancelled request cannot fail the shared call.
func (c *Cache) refresh(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	start := c.now()
	accounts, err := c.source.GetTokenAccountsByMint(ctx, c.mint)
	if err != nil {
		return 0, fmt.Errorf("fetch token accounts for mint %s: %w", c.mint, err)
	}

	n := CountHolders(accounts)

	c.mu.Lock()
	c.count = n
	c.fetchedAt = c.now()
	c.valid = true
	c.mu.Unlock()

	observability.RecordHolderLookup("refresh")
	observability.UpdateHolderCount(n)
	c.logger.Printf("Holder count for %s: %d (%d accounts in %v)", c.mint, n, len(accounts), c.now().Sub(start))
	return n, nil
}

func (c *Cache) fallback(err error) (int, error) {
	if n, ok := c.cached(c.staleLimit); ok {
		observability.RecordHolderLookup("stale")
		c.logger.Printf("WARN: holder refresh failed, serving cached count %d: %v", n, err)
		return n, nil
	}

	observability.RecordHolderLookup("error")
	c.logger.Printf("Error fetching holders for %s: %v", c.mint, err)
	return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (c *Cache) cached(maxAge time.Duration) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.valid || c.now().Sub(c.fetchedAt) >= maxAge {
		return 0, false
	}
	return c.count, true
}

// CountHolders counts distinct owners of accounts with a positive balance.
func CountHolders(accounts []solana.TokenAccount) int {
	owners := make(map[string]struct{}, len(accounts))
	for _, a := range accounts {
		if a.Amount > 0 {
			owners[a.Owner] = struct{}{}
		}
	}
	return len(owners)
}
