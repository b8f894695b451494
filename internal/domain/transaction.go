package domain

import "github.com/shopspring/decimal"

// TransactionRecord is one element of a Helius enhanced-transaction webhook batch.
// Only the fields used for swap classification are decoded.
type TransactionRecord struct {
	Signature       string           `json:"signature"`
	FeePayer        string           `json:"feePayer"`
	Timestamp       int64            `json:"timestamp"` // seconds or ms on the wire, ms after ingest
	NativeTransfers []NativeTransfer `json:"nativeTransfers"`
	TokenTransfers  []TokenTransfer  `json:"tokenTransfers"`
	AccountData     []AccountDelta   `json:"accountData"`
	Instructions    []Instruction    `json:"instructions"`
}

// NativeTransfer is a SOL movement between two user accounts.
type NativeTransfer struct {
	From   string `json:"fromUserAccount"`
	To     string `json:"toUserAccount"`
	Amount int64  `json:"amount"` // lamports
}

// TokenTransfer is an SPL token movement between two user accounts.
type TokenTransfer struct {
	From        string          `json:"fromUserAccount"`
	To          string          `json:"toUserAccount"`
	Mint        string          `json:"mint"`
	TokenAmount decimal.Decimal `json:"tokenAmount"`
	Decimals    *int32          `json:"decimals,omitempty"` // nil when the source omits it
}

// AccountDelta is the native balance change of one account within a transaction.
type AccountDelta struct {
	Account             string `json:"account"`
	NativeBalanceChange int64  `json:"nativeBalanceChange"` // lamports, fees included
}

// Instruction is a top-level program invocation.
type Instruction struct {
	ProgramID string   `json:"programId"`
	Accounts  []string `json:"accounts"`
}

// HasAccount reports whether account appears in the instruction's account list.
func (i Instruction) HasAccount(account string) bool {
	for _, a := range i.Accounts {
		if a == account {
			return true
		}
	}
	return false
}
