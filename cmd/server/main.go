// Package main runs the swap feed server:
// - Webhook receiver: classifies Helius transaction batches into buys and sells
// - Fanout: publishes significant swaps to WebSocket subscribers, Redis and Kafka
// - Read endpoints: holder count, market cap, status, metrics
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"solana-swap-feed/internal/api"
	"solana-swap-feed/internal/classifier"
	"solana-swap-feed/internal/config"
	"solana-swap-feed/internal/dedup"
	"solana-swap-feed/internal/fanout"
	"solana-swap-feed/internal/holders"
	"solana-swap-feed/internal/ingest"
	"solana-swap-feed/internal/market"
	"solana-swap-feed/internal/pricing"
	"solana-swap-feed/internal/solana"
)

// Server holds the wired components.
type Server struct {
	cfg    *config.Config
	logger *log.Logger

	prices  *pricing.Cache
	holders *holders.Cache
	fanout  *fanout.Fanout
	hub     *fanout.Hub
	sinks   []sink
	http    *http.Server
}

// sink is an optional publisher that owns a connection.
type sink interface {
	fanout.Publisher
	Close() error
}

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "Optional YAML config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	mint := flag.String("mint", "", "Tracked token mint (overrides TOKEN_MINT_ADDRESS)")
	threshold := flag.Float64("threshold", 0, "Significance threshold in SOL (overrides SIGNIFICANCE_THRESHOLD_SOL)")
	amountMode := flag.String("sol-amount-mode", "", "SOL amount derivation: filtered or net-delta")
	strict := flag.Bool("strict-addresses", false, "Reject records whose signature or fee payer is not a valid key")

	flag.Parse()

	// Setup logger
	logger := newLogger("server")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Explicitly set flags win over every other source.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Server.Addr = *addr
		case "mint":
			cfg.Token.MintAddress = *mint
		case "threshold":
			cfg.Swaps.SignificanceThresholdSOL = *threshold
		case "sol-amount-mode":
			cfg.Swaps.SolAmountMode = *amountMode
		case "strict-addresses":
			cfg.Swaps.StrictAddresses = *strict
		}
	})

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	logger.Printf("Tracking mint %s (threshold %.4f SOL, amount mode %s)",
		cfg.Token.MintAddress, cfg.Swaps.SignificanceThresholdSOL, cfg.Swaps.SolAmountMode)
	logger.Printf("Helius RPC: %s", cfg.RedactedRPCURL())

	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := newServer(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to start: %v", err)
	}

	err = server.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

func newLogger(component string) *log.Logger {
	return log.New(os.Stdout, "["+component+"] ", log.LstdFlags|log.Lshortfile)
}

// newServer wires every component from configuration.
func newServer(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Server, error) {
	s := &Server{cfg: cfg, logger: logger}
	mint := cfg.Token.MintAddress

	// HELIUS_RPC_RETRIES defaults to 0.
	rpc := solana.NewHTTPClient(cfg.Helius.RPCURL, solana.WithMaxRetries(cfg.Helius.RPCRetries))

	s.prices = pricing.NewCache(
		pricing.NewCoinGecko(
			pricing.WithBaseURL(cfg.Price.CoinGeckoURL),
			pricing.WithAPIKey(cfg.Price.CoinGeckoAPIKey),
		),
		pricing.Options{
			Interval: cfg.Price.RefreshInterval,
			Logger:   newLogger("price"),
		},
	)

	s.holders = holders.NewCache(rpc, mint, holders.Options{
		TTL:        cfg.Holders.CacheTTL,
		StaleLimit: cfg.Holders.StaleLimit,
		Logger:     newLogger("holders"),
	})

	var marketCap api.MarketCapper
	if cfg.Bitquery.APIKey != "" {
		marketCap = market.NewService(
			market.NewBitquery(cfg.Bitquery.APIKey, market.WithEndpoint(cfg.Bitquery.Endpoint)),
			mint,
			market.Options{
				TotalSupply: decimal.NewFromFloat(cfg.Token.TotalSupply),
				TTL:         cfg.Price.RefreshInterval,
				Logger:      newLogger("market"),
			},
		)
	} else {
		logger.Println("BITQUERY_API_KEY not set, /market-cap disabled")
	}

	fanoutLogger := newLogger("fanout")
	s.hub = fanout.NewHub(fanout.HubOptions{
		CheckOrigin: api.CheckOrigin(cfg.Server.CORSAllowedOrigins),
		Logger:      fanoutLogger,
	})
	publishers := []fanout.Publisher{s.hub}

	if cfg.Redis.Addr != "" {
		rp, err := fanout.NewRedisPublisher(cfg.Redis.Addr, cfg.Redis.Channel)
		if err != nil {
			return nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = rp.Ping(pingCtx)
		cancel()
		if err != nil {
			rp.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		s.sinks = append(s.sinks, rp)
		publishers = append(publishers, rp)
		logger.Printf("Publishing to Redis channel %s", cfg.Redis.Channel)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		kp := fanout.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		s.sinks = append(s.sinks, kp)
		publishers = append(publishers, kp)
		logger.Printf("Publishing to Kafka topic %s on %v", cfg.Kafka.Topic, cfg.Kafka.Brokers)
	}

	threshold := decimal.NewFromFloat(cfg.Swaps.SignificanceThresholdSOL)
	s.fanout = fanout.New(s.prices, publishers, fanout.Options{
		Threshold: &threshold,
		QueueSize: cfg.Swaps.FanoutQueueSize,
		Logger:    fanoutLogger,
	})

	seen, err := dedup.New(cfg.Swaps.DedupCapacity)
	if err != nil {
		s.closeSinks()
		return nil, err
	}

	// Validated by cfg.Validate.
	mode, _ := classifier.ParseAmountMode(cfg.Swaps.SolAmountMode)

	svc := ingest.NewService(ingest.Options{
		Classifier:      classifier.New(classifier.Options{Mode: mode}),
		Dedup:           seen,
		Sink:            s.fanout,
		AuthSecret:      cfg.Helius.AuthHeader,
		StrictAddresses: cfg.Swaps.StrictAddresses,
		Logger:          newLogger("ingest"),
	})

	router := api.New(api.Options{
		Ingest:         svc,
		Holders:        s.holders,
		Market:         marketCap,
		Prices:         s.prices,
		Stream:         s.hub,
		Dedup:          seen,
		AllowedOrigins: cfg.Server.CORSAllowedOrigins,
		Logger:         newLogger("api"),
	})

	s.http = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// Run starts all components and blocks until ctx is cancelled or one fails.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Println("Starting swap feed server...")
	defer s.closeSinks()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.prices.Run(gctx)
	})

	g.Go(func() error {
		return s.fanout.Run(gctx)
	})

	// Warm the holder cache so the first request is served from memory.
	g.Go(func() error {
		if n, err := s.holders.Count(gctx); err != nil {
			s.logger.Printf("WARN: initial holder count failed: %v", err)
		} else {
			s.logger.Printf("Initial holder count: %d", n)
		}
		return nil
	})

	g.Go(func() error {
		s.logger.Printf("Starting HTTP server on %s", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Println("Shutting down...")

		// Hijacked WebSocket connections are not tracked by http.Server.
		s.hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.logger.Printf("HTTP shutdown error: %v", err)
		}
		return nil
	})

	return g.Wait()
}

func (s *Server) closeSinks() {
	for _, sk := range s.sinks {
		if err := sk.Close(); err != nil {
			s.logger.Printf("Error closing %s sink: %v", sk.Name(), err)
		}
	}
	s.sinks = nil
}
