package market

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// DefaultTotalSupply is the fixed supply of pump.fun tokens.
const DefaultTotalSupply = 1_000_000_000

// PriceSource provides the latest USD price of a token.
type PriceSource interface {
	TokenPriceUSD(ctx context.Context, mint string) (decimal.Decimal, error)
}

// Quote is a market cap computed from one price observation.
type Quote struct {
	PriceUSD  decimal.Decimal `json:"priceUsd"`
	MarketCap decimal.Decimal `json:"marketCap"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Options configures Service.
type Options struct {
	TotalSupply decimal.Decimal // Default: 1e9
	TTL         time.Duration   // Default: 60s
	Logger      *log.Logger
}

// Service answers market cap queries for one mint, caching each quote for TTL.
type Service struct {
	source      PriceSource
	mint        string
	totalSupply decimal.Decimal
	ttl         time.Duration
	logger      *log.Logger

	group singleflight.Group

	mu    sync.RWMutex
	quote *Quote
}

// NewService creates a market cap service.
func NewService(source PriceSource, mint string, opts Options) *Service {
	supply := opts.TotalSupply
	if !supply.IsPositive() {
		supply = decimal.NewFromInt(DefaultTotalSupply)
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 60 * time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Service{
		source:      source,
		mint:        mint,
		totalSupply: supply,
		ttl:         ttl,
		logger:      logger,
	}
}

// MarketCap returns total supply times the latest trade price.
func (s *Service) MarketCap(ctx context.Context) (Quote, error) {
	if q, ok := s.fresh(); ok {
		return q, nil
	}

	v, err, _ := s.group.Do(s.mint, func() (interface{}, error) {
		if q, ok := s.fresh(); ok {
			return q, nil
		}

		price, err := s.source.TokenPriceUSD(ctx, s.mint)
		if err != nil {
			s.logger.Printf("Error fetching market cap for %s: %v", s.mint, err)
			return Quote{}, fmt.Errorf("market cap for %s: %w", s.mint, err)
		}

		q := Quote{
			PriceUSD:  price,
			MarketCap: price.Mul(s.totalSupply).Round(2),
			UpdatedAt: time.Now(),
		}

		s.mu.Lock()
		s.quote = &q
		s.mu.Unlock()
		return q, nil
	})
	if err != nil {
		return Quote{}, err
	}
	return v.(Quote), nil
}

func (s *Service) fresh() (Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.quote == nil || time.Since(s.quote.UpdatedAt) >= s.ttl {
		return Quote{}, false
	}
	return *s.quote, true
}
