// Package pricing keeps a periodically refreshed SOL/USD price.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"solana-swap-feed/internal/observability"
)

// DefaultRefreshInterval is how often the price is refreshed.
const DefaultRefreshInterval = 60 * time.Second

// ErrInvalidPrice is returned when a source reports a non-positive price.
var ErrInvalidPrice = errors.New("invalid price")

// Source provides the current SOL price in USD.
type Source interface {
	SolPriceUSD(ctx context.Context) (decimal.Decimal, error)
}

// Snapshot is the last successfully fetched price.
type Snapshot struct {
	Price     decimal.Decimal
	UpdatedAt time.Time // zero until the first successful refresh
}

// Options configures Cache.
type Options struct {
	Interval time.Duration // Default: 60s
	Timeout  time.Duration // Per-fetch timeout. Default: 10s
	Logger   *log.Logger
}

// Cache holds the last good SOL/USD price. Reads never block.
type Cache struct {
	source   Source
	interval time.Duration
	timeout  time.Duration
	logger   *log.Logger

	current atomic.Pointer[Snapshot]
}

// NewCache creates a price cache. The price reads as zero until the first refresh.
func NewCache(source Source, opts Options) *Cache {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	c := &Cache{
		source:   source,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
	c.current.Store(&Snapshot{Price: decimal.Zero})
	return c
}

// Price returns the last known SOL price in USD, or zero.
func (c *Cache) Price() decimal.Decimal {
	return c.current.Load().Price
}

// Snapshot returns the last known price with its refresh time.
func (c *Cache) Snapshot() Snapshot {
	return *c.current.Load()
}

// Refresh fetches the price once. On failure the previous value is kept.
func (c *Cache) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	price, err := c.source.SolPriceUSD(ctx)
	if err == nil && !price.IsPositive() {
		err = fmt.Errorf("%w: %s", ErrInvalidPrice, price)
	}
	if err != nil {
		observability.RecordPriceRefresh(0, err)
		return fmt.Errorf("refresh sol price: %w", err)
	}

	c.current.Store(&Snapshot{Price: price, UpdatedAt: time.Now()})
	observability.RecordPriceRefresh(price.InexactFloat64(), nil)
	return nil
}

// Run refreshes immediately, then on every interval tick.
// It blocks until context is cancelled.
func (c *Cache) Run(ctx context.Context) error {
	c.logger.Printf("Price refresher started, interval: %v", c.interval)

	c.refreshAndLog(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Println("Price refresher stopping...")
			return ctx.Err()
		case <-ticker.C:
			c.refreshAndLog(ctx)
		}
	}
}

func (c *Cache) refreshAndLog(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		c.logger.Printf("WARN: %v (keeping %s)", err, c.Price())
		return
	}
	c.logger.Printf("SOL price updated: $%s", c.Price())
}
