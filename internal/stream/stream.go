// Package stream fan-outs ledger append notices to live subscribers
// (SSE clients watching a contract timeline).
package stream

import (
	"context"
	"sync"
	"time"
)

// AppendNotice is the subset of a ledger receipt pushed to watchers.
type AppendNotice struct {
	ContractID  string    `json:"contract_id"`
	EventID     string    `json:"event_id"`
	Kind        string    `json:"kind"`
	ContentHash string    `json:"content_hash"`
	Sequence    uint64    `json:"sequence"`
	SealID      string    `json:"seal_id"`
	Timestamp   time.Time `json:"timestamp"`
}

type subscriber struct {
	ch chan AppendNotice
	// contractID filters the feed; empty means all contracts.
	contractID string
}

// Stream broadcasts append notices to all active subscribers.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]subscriber
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]subscriber)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// notices. An empty contractID subscribes to every contract. The channel is
// closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context, contractID string) <-chan AppendNotice {
	ch := make(chan AppendNotice, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = subscriber{ch: ch, contractID: contractID}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the notice to all matching subscribers.
func (s *Stream) Publish(notice AppendNotice) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if sub.contractID != "" && sub.contractID != notice.ContractID {
			continue
		}
		select {
		case sub.ch <- notice:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (s *Stream) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
