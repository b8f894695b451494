// Package main tails the live swap feed of a running server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"solana-swap-feed/internal/domain"
	"solana-swap-feed/internal/feed"
)

func main() {
	defaultURL := os.Getenv("FEED_URL")
	if defaultURL == "" {
		defaultURL = "ws://localhost:3000/ws"
	}

	url := flag.String("url", defaultURL, "Feed WebSocket URL")
	asJSON := flag.Bool("json", false, "Print raw JSON notifications")
	kind := flag.String("type", "", "Only show buy or sell")
	minUSD := flag.Float64("min-usd", 0, "Only show swaps worth at least this many USD")

	flag.Parse()

	logger := log.New(os.Stderr, "[feedtail] ", log.LstdFlags)

	if *kind != "" && *kind != string(domain.SwapKindBuy) && *kind != string(domain.SwapKindSell) {
		logger.Fatalf("--type must be buy or sell, got %q", *kind)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := feed.DefaultConfig()
	cfg.Logger = logger

	client, err := feed.Dial(ctx, *url, &cfg)
	if err != nil {
		logger.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	logger.Printf("Connected to %s", *url)

	f := filter{kind: domain.SwapKind(*kind), minUSD: *minUSD}
	for {
		select {
		case <-ctx.Done():
			logger.Printf("Stopping (%d reconnects)", client.Reconnects())
			return
		case n, ok := <-client.Events():
			if !ok {
				return
			}
			if !f.match(n) {
				continue
			}
			if err := printNotification(os.Stdout, n, *asJSON); err != nil {
				logger.Printf("Write error: %v", err)
				return
			}
		}
	}
}

type filter struct {
	kind   domain.SwapKind
	minUSD float64
}

func (f filter) match(n domain.Notification) bool {
	if f.kind != "" && n.Type != f.kind {
		return false
	}
	return n.UsdValue >= f.minUSD
}

func printNotification(w io.Writer, n domain.Notification, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(n)
	}

	contract := "-"
	if n.ContractAddress != nil {
		contract = *n.ContractAddress
	}
	_, err := fmt.Fprintf(w, "%s %-4s %12.4f SOL %12.2f USD %18.4f %s via %s %s\n",
		n.Timestamp, n.Type, n.SolSpent, n.UsdValue, n.TokenAmount, n.TokenMint, contract, n.Signature)
	return err
}
