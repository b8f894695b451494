package classifier

import (
	"fmt"

	"github.com/shopspring/decimal"

	"solana-swap-feed/internal/domain"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// AmountMode selects how the SOL amount of a swap is derived.
type AmountMode string

const (
	// AmountModeFiltered sums native transfers between the user and the swap accounts.
	AmountModeFiltered AmountMode = "filtered"
	// AmountModeNetDelta uses the absolute native balance change of the user (fees included).
	AmountModeNetDelta AmountMode = "net-delta"
)

// ParseAmountMode parses a mode name. Empty selects AmountModeFiltered.
func ParseAmountMode(s string) (AmountMode, error) {
	switch AmountMode(s) {
	case "", AmountModeFiltered:
		return AmountModeFiltered, nil
	case AmountModeNetDelta:
		return AmountModeNetDelta, nil
	default:
		return "", fmt.Errorf("unknown sol amount mode %q", s)
	}
}

// Options configures Classifier.
type Options struct {
	Registry *Registry
	Mode     AmountMode
}

// Classifier applies the buy/sell decision rule to transaction records.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	registry *Registry
	mode     AmountMode
}

// New creates a classifier. Zero options select the default registry and filtered mode.
func New(opts Options) *Classifier {
	if opts.Registry == nil {
		opts.Registry = DefaultRegistry()
	}
	if opts.Mode == "" {
		opts.Mode = AmountModeFiltered
	}
	return &Classifier{registry: opts.Registry, mode: opts.Mode}
}

// Classify returns the swap event for tx, or false when tx is neither a buy nor a sell.
//
// Decision rule, from the fee payer's point of view:
//   - balance decreased and a token was received: Buy
//   - balance increased and a token was sent: Sell
//   - anything else: Ignore
//
// When both directions are present only the sign of the balance delta decides.
func (c *Classifier) Classify(tx *domain.TransactionRecord) (*domain.SwapEvent, bool) {
	user := tx.FeePayer
	if user == "" || len(tx.TokenTransfers) == 0 || len(tx.NativeTransfers) == 0 {
		return nil, false
	}

	delta := UserBalanceDelta(tx, user)

	var (
		kind     domain.SwapKind
		transfer *domain.TokenTransfer
		sol      decimal.Decimal
	)

	switch {
	case delta < 0:
		transfer = IncomingToken(tx, user)
		if transfer == nil {
			return nil, false
		}
		kind = domain.SwapKindBuy
		sol = c.solSpent(tx, user, delta)
	case delta > 0:
		transfer = OutgoingToken(tx, user)
		if transfer == nil {
			return nil, false
		}
		kind = domain.SwapKindSell
		sol = c.solReceived(tx, user, delta)
	default:
		return nil, false
	}

	amount, scaled := ScaleTokenAmount(transfer)

	return &domain.SwapEvent{
		Kind:            kind,
		Signature:       tx.Signature,
		SolAmount:       sol,
		TokenAmount:     amount,
		TokenMint:       transfer.Mint,
		ContractAddress: ContractAddress(tx, user, c.registry),
		Timestamp:       tx.Timestamp,
		MissingDecimals: !scaled,
	}, true
}

func (c *Classifier) solSpent(tx *domain.TransactionRecord, user string, delta int64) decimal.Decimal {
	if c.mode == AmountModeNetDelta {
		return LamportsToSOL(-delta)
	}
	return SolSpent(tx, user, c.registry)
}

func (c *Classifier) solReceived(tx *domain.TransactionRecord, user string, delta int64) decimal.Decimal {
	if c.mode == AmountModeNetDelta {
		return LamportsToSOL(delta)
	}
	return SolReceived(tx, user)
}

// SolSpent sums native transfers from user into the swap accounts, in SOL.
func SolSpent(tx *domain.TransactionRecord, user string, reg *Registry) decimal.Decimal {
	swapAccounts := SwapAccounts(tx, user, reg)

	var lamports int64
	for _, t := range tx.NativeTransfers {
		if t.From != user || t.Amount <= 0 {
			continue
		}
		if _, ok := swapAccounts[t.To]; ok {
			lamports += t.Amount
		}
	}
	return LamportsToSOL(lamports)
}

// SolReceived sums all native transfers into user, in SOL.
func SolReceived(tx *domain.TransactionRecord, user string) decimal.Decimal {
	var lamports int64
	for _, t := range tx.NativeTransfers {
		if t.To == user && t.Amount > 0 {
			lamports += t.Amount
		}
	}
	return LamportsToSOL(lamports)
}

// LamportsToSOL converts lamports to an exact SOL decimal.
func LamportsToSOL(lamports int64) decimal.Decimal {
	return decimal.New(lamports, -9)
}

// ScaleTokenAmount divides the transfer amount by 10^decimals.
// The second result is false when decimals are unknown and the raw amount is returned.
func ScaleTokenAmount(t *domain.TokenTransfer) (decimal.Decimal, bool) {
	if t.Decimals == nil {
		return t.TokenAmount, false
	}
	return t.TokenAmount.Shift(-*t.Decimals), true
}
