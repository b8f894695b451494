// Package classifier turns Helius transaction records into buy/sell swap events.
package classifier

import (
	"fmt"

	"solana-swap-feed/internal/solana"
)

// Registry is an immutable set of infrastructure program IDs.
// Instructions of these programs never identify the swap counterparty.
type Registry struct {
	ids map[string]struct{}
}

// InfrastructurePrograms lists the programs excluded by DefaultRegistry.
var InfrastructurePrograms = []string{
	solana.SystemProgramID,
	solana.ComputeBudgetProgramID,
	solana.TokenProgramID,
	solana.AssociatedTokenProgramID,
	solana.SysvarRentID,
}

// NewRegistry builds a registry from program IDs. Every ID must be a valid address.
func NewRegistry(ids ...string) (*Registry, error) {
	r := &Registry{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		if err := solana.ValidateAddress(id); err != nil {
			return nil, fmt.Errorf("registry program %q: %w", id, err)
		}
		r.ids[id] = struct{}{}
	}
	return r, nil
}

// DefaultRegistry returns the registry of well-known infrastructure programs.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(InfrastructurePrograms...)
	if err != nil {
		panic(err)
	}
	return r
}

// Contains reports whether programID is an infrastructure program.
func (r *Registry) Contains(programID string) bool {
	_, ok := r.ids[programID]
	return ok
}

// Len returns the number of programs in the registry.
func (r *Registry) Len() int {
	return len(r.ids)
}
