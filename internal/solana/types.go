package solana

import "context"

// Well-known program and sysvar addresses.
const (
	SystemProgramID          = "11111111111111111111111111111111"
	ComputeBudgetProgramID   = "ComputeBudget111111111111111111111111111111"
	TokenProgramID           = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	AssociatedTokenProgramID = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
	SysvarRentID             = "SysvarRent111111111111111111111111111111111"
)

// TokenAccountSize is the byte length of an SPL token account.
const TokenAccountSize = 165

// TokenAccountSource lists token accounts for a mint.
type TokenAccountSource interface {
	// GetTokenAccountsByMint returns every SPL token account holding the mint.
	GetTokenAccountsByMint(ctx context.Context, mint string) ([]TokenAccount, error)
}

// TokenAccount is a parsed SPL token account.
type TokenAccount struct {
	Pubkey   string
	Owner    string
	Mint     string
	Amount   uint64 // raw base units
	Decimals int
}
