// Package ledger implements the certified event chain: an append-only,
// hash-linked record of every legally significant action in a contract's
// life, each entry backed by a trusted-timestamp seal.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"pactum.org/internal/seal"
)

// Kind is the closed enumeration of ledgered event types.
type Kind string

const (
	KindContractCreated      Kind = "CONTRACT_CREATED"
	KindTermsAccepted        Kind = "TERMS_ACCEPTED"
	KindSignatureRecorded    Kind = "SIGNATURE_RECORDED"
	KindStateTransitioned    Kind = "STATE_TRANSITIONED"
	KindDocumentSubmitted    Kind = "DOCUMENT_SUBMITTED"
	KindDocumentValidated    Kind = "DOCUMENT_VALIDATED"
	KindDocumentRejected     Kind = "DOCUMENT_REJECTED"
	KindInventoryItemRemoved Kind = "INVENTORY_ITEM_REMOVED"
)

var kinds = map[Kind]struct{}{
	KindContractCreated:      {},
	KindTermsAccepted:        {},
	KindSignatureRecorded:    {},
	KindStateTransitioned:    {},
	KindDocumentSubmitted:    {},
	KindDocumentValidated:    {},
	KindDocumentRejected:     {},
	KindInventoryItemRemoved: {},
}

// Valid reports whether k is a known event kind.
func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

// Event is one immutable fact about a contract. Payload holds the canonical
// serialization of the fact; it is never mutated after insertion.
type Event struct {
	ID          string          `json:"id"`
	ContractID  string          `json:"contract_id"`
	Kind        Kind            `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	ContentHash string          `json:"content_hash"`
	PrevHash    *string         `json:"prev_hash"` // nil only for the genesis event
	SealID      string          `json:"seal_id"`
	Sequence    uint64          `json:"sequence"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Receipt is returned to the caller after a successful append.
type Receipt struct {
	EventID     string    `json:"event_id"`
	SealID      string    `json:"seal_id"`
	ContentHash string    `json:"content_hash"`
	PrevHash    *string   `json:"prev_hash"`
	Sequence    uint64    `json:"sequence"`
	RecordedAt  time.Time `json:"recorded_at"`
}

var (
	// ErrUnknownKind rejects events outside the closed enumeration.
	ErrUnknownKind = errors.New("unknown event kind")
	// ErrContractIDRequired rejects appends without an owning contract.
	ErrContractIDRequired = errors.New("contract id is required")
	// ErrChainConflict signals a concurrent writer won the race for the
	// chain head. The appender retries it transparently before surfacing.
	ErrChainConflict = errors.New("chain head moved concurrently")
)

// Store is the persistence collaborator for the event chain. Implementations
// must make InsertSealAndEvent atomic and compare-and-swap on the previous
// hash, so that a forked chain can never be persisted.
type Store interface {
	// LastEventHash returns the content hash of the most recent event for
	// the contract, or nil when no event exists yet.
	LastEventHash(ctx context.Context, contractID string) (*string, error)

	// InsertSealAndEvent persists the seal and the event referencing it as
	// one atomic unit, verifying that event.PrevHash still matches the
	// stored chain head. Returns the assigned sequence number, or
	// ErrChainConflict when the head moved.
	InsertSealAndEvent(ctx context.Context, s seal.Seal, event Event) (uint64, error)

	// ListEvents returns all events for the contract in creation order,
	// read from a consistent snapshot.
	ListEvents(ctx context.Context, contractID string) ([]Event, error)
}
