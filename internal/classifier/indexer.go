package classifier

import "solana-swap-feed/internal/domain"

// IncomingToken returns the first token transfer received by user, or nil.
func IncomingToken(tx *domain.TransactionRecord, user string) *domain.TokenTransfer {
	for i := range tx.TokenTransfers {
		if tx.TokenTransfers[i].To == user {
			return &tx.TokenTransfers[i]
		}
	}
	return nil
}

// OutgoingToken returns the first token transfer sent by user, or nil.
func OutgoingToken(tx *domain.TransactionRecord, user string) *domain.TokenTransfer {
	for i := range tx.TokenTransfers {
		if tx.TokenTransfers[i].From == user {
			return &tx.TokenTransfers[i]
		}
	}
	return nil
}

// UserBalanceDelta returns the native balance change of user in lamports, 0 if absent.
func UserBalanceDelta(tx *domain.TransactionRecord, user string) int64 {
	for _, d := range tx.AccountData {
		if d.Account == user {
			return d.NativeBalanceChange
		}
	}
	return 0
}

// SwapAccounts returns the program and every account of each non-infrastructure
// instruction that includes user.
func SwapAccounts(tx *domain.TransactionRecord, user string, reg *Registry) map[string]struct{} {
	accounts := make(map[string]struct{})
	for _, ix := range tx.Instructions {
		if reg.Contains(ix.ProgramID) || !ix.HasAccount(user) {
			continue
		}
		accounts[ix.ProgramID] = struct{}{}
		for _, a := range ix.Accounts {
			accounts[a] = struct{}{}
		}
	}
	return accounts
}

// ContractAddress returns the program of the first non-infrastructure instruction
// that includes user, or nil.
func ContractAddress(tx *domain.TransactionRecord, user string, reg *Registry) *string {
	for _, ix := range tx.Instructions {
		if !reg.Contains(ix.ProgramID) && ix.HasAccount(user) {
			id := ix.ProgramID
			return &id
		}
	}
	return nil
}
