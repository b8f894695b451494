// Package dedup remembers transaction signatures that were already processed.
package dedup

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity bounds the number of remembered signatures.
const DefaultCapacity = 100_000

// Set is a concurrency-safe signature set.
// With a positive capacity the oldest signatures are evicted first;
// capacity 0 keeps every signature for the process lifetime.
type Set struct {
	bounded *lru.Cache[string, struct{}]

	mu        sync.Mutex
	unbounded map[string]struct{}
}

// New creates a set. Negative capacity is rejected.
func New(capacity int) (*Set, error) {
	if capacity < 0 {
		return nil, fmt.Errorf("dedup capacity must be >= 0, got %d", capacity)
	}
	if capacity == 0 {
		return &Set{unbounded: make(map[string]struct{})}, nil
	}

	cache, err := lru.New[string, struct{}](capacity)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &Set{bounded: cache}, nil
}

// MarkSeen records signature and reports whether it was new.
// Check and insert happen atomically: of concurrent callers with the same
// signature exactly one gets true.
func (s *Set) MarkSeen(signature string) bool {
	if s.bounded != nil {
		// ContainsOrAdd leaves recency untouched: eviction follows arrival order.
		found, _ := s.bounded.ContainsOrAdd(signature, struct{}{})
		return !found
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.unbounded[signature]; ok {
		return false
	}
	s.unbounded[signature] = struct{}{}
	return true
}

// Seen reports whether signature is remembered.
func (s *Set) Seen(signature string) bool {
	if s.bounded != nil {
		return s.bounded.Contains(signature)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.unbounded[signature]
	return ok
}

// Forget removes signature so it can be processed again.
func (s *Set) Forget(signature string) {
	if s.bounded != nil {
		s.bounded.Remove(signature)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.unbounded, signature)
}

// Len returns the number of remembered signatures.
func (s *Set) Len() int {
	if s.bounded != nil {
		return s.bounded.Len()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.unbounded)
}
