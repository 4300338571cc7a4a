package ledger

import (
	"context"
	"sync"
	"time"

	"pactum.org/internal/seal"
)

// MemStore implements Store with in-process concurrency safety. Used by the
// development deployment and tests; production runs on the Postgres store.
type MemStore struct {
	mu     sync.RWMutex
	chains map[string][]Event
	seals  map[string]seal.Seal
	seq    uint64
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory chain store.
func NewMemStore() *MemStore {
	return &MemStore{
		chains: make(map[string][]Event),
		seals:  make(map[string]seal.Seal),
	}
}

func (s *MemStore) LastEventHash(ctx context.Context, contractID string) (*string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.chains[contractID]
	if len(chain) == 0 {
		return nil, nil
	}
	h := chain[len(chain)-1].ContentHash
	return &h, nil
}

func (s *MemStore) InsertSealAndEvent(ctx context.Context, sl seal.Seal, event Event) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain := s.chains[event.ContractID]
	var head *string
	if len(chain) > 0 {
		h := chain[len(chain)-1].ContentHash
		head = &h
	}
	if !hashesEqual(head, event.PrevHash) {
		return 0, ErrChainConflict
	}

	s.seq++
	event.Sequence = s.seq
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	s.seals[sl.ID] = sl
	s.chains[event.ContractID] = append(chain, event)
	return event.Sequence, nil
}

func (s *MemStore) ListEvents(ctx context.Context, contractID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.chains[contractID]
	out := make([]Event, len(chain))
	copy(out, chain)
	return out, nil
}

// GetSeal returns the stored seal by id.
func (s *MemStore) GetSeal(ctx context.Context, id string) (seal.Seal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.seals[id]
	return sl, ok
}

// TamperPayload overwrites a stored event payload in place. Test hook for
// exercising the verifier; the API never mutates persisted events.
func (s *MemStore) TamperPayload(contractID string, index int, payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	chain := s.chains[contractID]
	if index < 0 || index >= len(chain) {
		return false
	}
	chain[index].Payload = payload
	return true
}

func hashesEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
