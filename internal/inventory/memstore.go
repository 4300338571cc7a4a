package inventory

import (
	"context"
	"sort"
	"sync"
)

// MemStore implements Store in memory for tests and the stub deployment.
type MemStore struct {
	mu    sync.RWMutex
	items map[string]map[string]Item // contractID -> itemID -> item
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty inventory store.
func NewMemStore() *MemStore {
	return &MemStore{items: make(map[string]map[string]Item)}
}

func (s *MemStore) ListItems(ctx context.Context, contractID string) ([]Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byID := s.items[contractID]
	out := make([]Item, 0, len(byID))
	for _, item := range byID {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) GetItem(ctx context.Context, contractID, itemID string) (Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[contractID][itemID]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return item, nil
}

func (s *MemStore) PutItem(ctx context.Context, item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.items[item.ContractID]
	if !ok {
		byID = make(map[string]Item)
		s.items[item.ContractID] = byID
	}
	byID[item.ID] = item
	return nil
}

func (s *MemStore) DeleteItem(ctx context.Context, contractID, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[contractID][itemID]; !ok {
		return ErrItemNotFound
	}
	delete(s.items[contractID], itemID)
	return nil
}
