// Package market derives the token market cap from the latest DEX trade price.
package market

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DefaultBitqueryURL is the Bitquery GraphQL endpoint.
	DefaultBitqueryURL = "https://graphql.bitquery.io/"
	// PumpFunProgramID is the pump.fun bonding curve program.
	PumpFunProgramID = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
)

// ErrNoTrades is returned when the mint has no successful trade on the DEX.
var ErrNoTrades = errors.New("no trades found")

const latestPriceQuery = `query LatestPrice($mint: String, $dex: String) {
  Solana {
    DEXTradeByTokens(
      limit: { count: 1 }
      orderBy: { descending: Block_Time }
      where: {
        Trade: {
          Currency: { MintAddress: { is: $mint } }
          Dex: { ProgramAddress: { is: $dex } }
        }
        Transaction: { Result: { Success: true } }
      }
    ) {
      Trade {
        PriceInUSD
      }
    }
  }
}`

// Bitquery queries the latest token USD price from Bitquery.
type Bitquery struct {
	endpoint   string
	apiKey     string
	dexProgram string
	client     *http.Client
}

// BitqueryOption configures Bitquery.
type BitqueryOption func(*Bitquery)

// WithEndpoint overrides the GraphQL endpoint.
func WithEndpoint(u string) BitqueryOption {
	return func(b *Bitquery) {
		b.endpoint = u
	}
}

// WithDexProgram restricts trades to another DEX program.
func WithDexProgram(programID string) BitqueryOption {
	return func(b *Bitquery) {
		b.dexProgram = programID
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) BitqueryOption {
	return func(b *Bitquery) {
		b.client = client
	}
}

// NewBitquery creates a Bitquery price source.
func NewBitquery(apiKey string, opts ...BitqueryOption) *Bitquery {
	b := &Bitquery{
		endpoint:   DefaultBitqueryURL,
		apiKey:     apiKey,
		dexProgram: PumpFunProgramID,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Compile-time interface check.
var _ PriceSource = (*Bitquery)(nil)

type graphQLRequest struct {
	Query     string            `json:"query"`
	Variables map[string]string `json:"variables"`
}

type latestPriceResponse struct {
	Data struct {
		Solana struct {
			DEXTradeByTokens []struct {
				Trade struct {
					PriceInUSD decimal.Decimal `json:"PriceInUSD"`
				} `json:"Trade"`
			} `json:"DEXTradeByTokens"`
		} `json:"Solana"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// TokenPriceUSD returns the USD price of the latest successful trade of mint.
func (b *Bitquery) TokenPriceUSD(ctx context.Context, mint string) (decimal.Decimal, error) {
	body, err := json.Marshal(graphQLRequest{
		Query:     latestPriceQuery,
		Variables: map[string]string{"mint": mint, "dex": b.dexProgram},
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return decimal.Zero, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("http request %s: %w", b.endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed latestPriceResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return decimal.Zero, fmt.Errorf("unmarshal response: %w", err)
	}

	if len(parsed.Errors) > 0 {
		msgs := make([]string, 0, len(parsed.Errors))
		for _, e := range parsed.Errors {
			msgs = append(msgs, e.Message)
		}
		return decimal.Zero, fmt.Errorf("graphql: %s", strings.Join(msgs, "; "))
	}

	trades := parsed.Data.Solana.DEXTradeByTokens
	if len(trades) == 0 {
		return decimal.Zero, fmt.Errorf("%w for mint %s", ErrNoTrades, mint)
	}
	return trades[0].Trade.PriceInUSD, nil
}
