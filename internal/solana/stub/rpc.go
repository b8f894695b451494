// Package stub provides an in-memory solana.TokenAccountSource for tests.
package stub

import (
	"context"
	"sync"

	"solana-swap-feed/internal/solana"
)

// TokenAccountSource implements solana.TokenAccountSource for testing.
type TokenAccountSource struct {
	mu       sync.Mutex
	accounts map[string][]solana.TokenAccount
	err      error
	gate     chan struct{}
	calls    int
}

// NewTokenAccountSource creates an empty stub source.
func NewTokenAccountSource() *TokenAccountSource {
	return &TokenAccountSource{
		accounts: make(map[string][]solana.TokenAccount),
	}
}

var _ solana.TokenAccountSource = (*TokenAccountSource)(nil)

// GetTokenAccountsByMint returns the accounts added for mint.
// While the source is held, calls block until Release or ctx is done.
func (s *TokenAccountSource) GetTokenAccountsByMint(ctx context.Context, mint string) ([]solana.TokenAccount, error) {
	s.mu.Lock()
	s.calls++
	gate := s.gate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]solana.TokenAccount, len(s.accounts[mint]))
	copy(out, s.accounts[mint])
	return out, nil
}

// AddAccounts adds token accounts for their mints.
func (s *TokenAccountSource) AddAccounts(accounts ...solana.TokenAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range accounts {
		s.accounts[a.Mint] = append(s.accounts[a.Mint], a)
	}
}

// SetError makes subsequent calls fail with err. Nil clears it.
func (s *TokenAccountSource) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Hold makes subsequent calls block until Release.
func (s *TokenAccountSource) Hold() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = make(chan struct{})
}

// Release unblocks held calls.
func (s *TokenAccountSource) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gate != nil {
		close(s.gate)
		s.gate = nil
	}
}

// Calls returns how many lookups were made.
func (s *TokenAccountSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
