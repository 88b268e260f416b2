// internal/registry/store.go
package registry

import (
	"context"
	"sync"
)

// Store is the durable home for claims. The registry persists through it
// before committing any mutation to memory; a mutation whose write fails is
// reported as an error and leaves no trace.
type Store interface {
	// Load returns every persisted claim, in no particular order.
	Load(ctx context.Context) ([]Claim, error)
	// Insert writes a new claim. The registry has already established
	// uniqueness under its lock.
	Insert(ctx context.Context, c Claim) error
	// Delete removes a claim by subdomain. Deleting an absent name is not
	// an error.
	Delete(ctx context.Context, subdomain string) error
}

// MemoryStore is the dev and test stand-in for the durable store.
type MemoryStore struct {
	mu     sync.RWMutex
	claims map[string]Claim
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{claims: map[string]Claim{}}
}

func (s *MemoryStore) Load(ctx context.Context) ([]Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Claim, 0, len(s.claims))
	for _, c := range s.claims {
		out = append(out, c)
	}
	return out, nil
}

func (s *MemoryStore) Insert(ctx context.Context, c Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims[c.Subdomain] = c
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, subdomain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, subdomain)
	return nil
}
