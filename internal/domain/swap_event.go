package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SwapKind is the direction of a classified swap from the fee payer's point of view.
type SwapKind string

// Swap kinds
const (
	SwapKindBuy  SwapKind = "buy"
	SwapKindSell SwapKind = "sell"
)

// SwapEvent is the classification result for a single TransactionRecord.
// USD value is not part of it: it is derived from the price cache at emission time.
type SwapEvent struct {
	Kind            SwapKind
	Signature       string
	SolAmount       decimal.Decimal // SOL, never negative
	TokenAmount     decimal.Decimal // scaled by decimals when known
	TokenMint       string
	ContractAddress *string // nil when no non-infrastructure program touched the user
	Timestamp       int64   // Unix timestamp in milliseconds

	// MissingDecimals is set when TokenAmount is the raw, unscaled transfer amount.
	MissingDecimals bool
}

// Notification is the payload delivered to fanout subscribers.
type Notification struct {
	Type            SwapKind `json:"type"`
	Signature       string   `json:"signature"`
	SolSpent        float64  `json:"solSpent"`
	UsdValue        float64  `json:"usdValue"`
	TokenAmount     float64  `json:"tokenAmount"`
	TokenMint       string   `json:"tokenMint"`
	ContractAddress *string  `json:"contractAddress"`
	Timestamp       string   `json:"timestamp"` // RFC 3339, UTC
}

// NewNotification enriches a swap event with a USD price.
// usdValue = solAmount * price, rounded to cents.
func NewNotification(e *SwapEvent, solPriceUSD decimal.Decimal) Notification {
	return Notification{
		Type:            e.Kind,
		Signature:       e.Signature,
		SolSpent:        e.SolAmount.InexactFloat64(),
		UsdValue:        e.SolAmount.Mul(solPriceUSD).Round(2).InexactFloat64(),
		TokenAmount:     e.TokenAmount.InexactFloat64(),
		TokenMint:       e.TokenMint,
		ContractAddress: e.ContractAddress,
		Timestamp:       time.UnixMilli(e.Timestamp).UTC().Format(time.RFC3339Nano),
	}
}
